package ai

import "fmt"

const slideNotesSystemPrompt = "You are an expert note-taker for university lectures. " +
	"You receive raw text extracted from lecture slides and turn it into clear, well-structured study notes in Markdown. " +
	"Use headings that follow the slide structure, expand abbreviations, and keep every factual claim from the slides. " +
	"Do not invent content that is not supported by the slides."

const mergeNotesSystemPrompt = "You are an expert note-taker for university lectures. " +
	"You receive two sources about the same lecture: raw text extracted from the slides, and a transcript of what the lecturer actually said. " +
	"Merge them into one set of comprehensive study notes in Markdown. " +
	"The slides give the structure; the transcript fills in explanations, examples, and anything the lecturer added verbally. " +
	"Where the sources disagree, prefer the transcript. Do not invent content that appears in neither source."

const studyMaterialsSystemPrompt = "You create study materials from lecture notes. " +
	"Respond with a single JSON object and nothing else, no markdown fences, matching exactly this shape: " +
	`{"flashcards":[{"front":"...","back":"..."}],"test_questions":[{"question":"...","options":["...","...","...","..."],"answer":"...","explanation":"..."}]}` +
	" Every test question must have exactly 4 distinct options and the answer must be copied verbatim from the options. " +
	"If a section was not requested, return it as an empty array."

const interviewSummarySystemPrompt = "You are an experienced technical recruiter. " +
	"You receive the transcript of a job interview and write a concise summary for the hiring team: " +
	"candidate background, key topics discussed, notable strengths and concerns, and overall impression. Use Markdown."

const interviewSectionsSystemPrompt = "You are an experienced technical recruiter. " +
	"You receive the transcript of a job interview and break it into titled sections in chronological order. " +
	"For each section give a heading, the rough position in the conversation, and a short summary of what was discussed. Use Markdown."

func languageInstruction(language string) string {
	if language == "" {
		return ""
	}
	return fmt.Sprintf("\n\nWrite the output in %s.", language)
}

func studyMaterialsUserPrompt(source string, req StudyRequest, flashcards, questions int) string {
	prompt := "Source notes:\n\n" + source + "\n\n"
	if flashcards > 0 {
		prompt += fmt.Sprintf("Create %d flashcards covering the most important concepts.\n", flashcards)
	} else {
		prompt += "Do not create flashcards; return an empty flashcards array.\n"
	}
	if questions > 0 {
		prompt += fmt.Sprintf("Create %d multiple-choice test questions with 4 options each.\n", questions)
	} else {
		prompt += "Do not create test questions; return an empty test_questions array.\n"
	}
	return prompt + languageInstruction(req.Language)
}
