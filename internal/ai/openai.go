package ai

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/ledongthuc/pdf"
	"github.com/sashabaranov/go-openai"

	"github.com/fedutinova/lectary/internal/job"
)

// maxSourceChars bounds how much text a single chat request carries. Longer
// inputs are truncated from the tail; the head of slides and transcripts
// carries the structure.
const maxSourceChars = 120_000

type Models struct {
	Slides string
	Merge  string
	Study  string
}

// OpenAI implements Generator against the OpenAI API, plus local PDF text
// extraction which needs no network call at all.
type OpenAI struct {
	client *openai.Client
	models Models
}

func NewOpenAI(client *openai.Client, models Models) *OpenAI {
	if models.Slides == "" {
		models.Slides = openai.GPT4oMini
	}
	if models.Merge == "" {
		models.Merge = openai.GPT4o
	}
	if models.Study == "" {
		models.Study = openai.GPT4oMini
	}
	return &OpenAI{client: client, models: models}
}

// ExtractSlideText pulls the plain text out of a PDF page by page. Pages
// that fail to parse are skipped; an entirely text-free deck is an error
// because the notes stages would have nothing to work with.
func (g *OpenAI) ExtractSlideText(_ context.Context, pdfPath string) (string, error) {
	f, reader, err := pdf.Open(pdfPath)
	if err != nil {
		return "", fmt.Errorf("open pdf: %w", err)
	}
	defer f.Close()

	var b strings.Builder
	pages := reader.NumPage()
	for i := 1; i <= pages; i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			slog.Warn("skipping unreadable pdf page", "page", i, "err", err)
			continue
		}
		if strings.TrimSpace(text) == "" {
			continue
		}
		fmt.Fprintf(&b, "--- Slide %d ---\n%s\n\n", i, strings.TrimSpace(text))
	}
	out := b.String()
	if strings.TrimSpace(out) == "" {
		return "", fmt.Errorf("no extractable text in pdf (%d pages)", pages)
	}
	return out, nil
}

// TranscribeAudio runs Whisper with verbose JSON output so the response
// carries timed segments alongside the full text.
func (g *OpenAI) TranscribeAudio(ctx context.Context, audioPath string) (string, []job.TranscriptSegment, error) {
	start := time.Now()
	resp, err := g.client.CreateTranscription(ctx, openai.AudioRequest{
		Model:    openai.Whisper1,
		FilePath: audioPath,
		Format:   openai.AudioResponseFormatVerboseJSON,
	})
	if err != nil {
		return "", nil, fmt.Errorf("transcription failed: %w", err)
	}

	segments := make([]job.TranscriptSegment, 0, len(resp.Segments))
	for _, s := range resp.Segments {
		text := strings.TrimSpace(s.Text)
		if text == "" {
			continue
		}
		segments = append(segments, job.TranscriptSegment{
			StartMs: int(s.Start * 1000),
			EndMs:   int(s.End * 1000),
			Text:    text,
		})
	}

	slog.Info("audio transcribed",
		"duration_ms", time.Since(start).Milliseconds(),
		"transcript_length", len(resp.Text),
		"segments", len(segments))
	return resp.Text, segments, nil
}

func (g *OpenAI) SlideNotes(ctx context.Context, slideText, language string) (string, error) {
	user := "Slide text:\n\n" + truncateSource(slideText) + languageInstruction(language)
	return g.chat(ctx, g.models.Slides, slideNotesSystemPrompt, user)
}

func (g *OpenAI) MergeNotes(ctx context.Context, slideText, transcript, language string) (string, error) {
	user := "Slide text:\n\n" + truncateSource(slideText) +
		"\n\nLecture transcript:\n\n" + truncateSource(transcript) +
		languageInstruction(language)
	return g.chat(ctx, g.models.Merge, mergeNotesSystemPrompt, user)
}

func (g *OpenAI) GenerateStudyMaterials(ctx context.Context, source string, req StudyRequest) ([]job.Flashcard, []job.TestQuestion, string, error) {
	flashAmount, questionAmount := resolveAmounts(req, len(source))
	if flashAmount == 0 && questionAmount == 0 {
		return nil, nil, "", nil
	}

	raw, err := g.chat(ctx, g.models.Study, studyMaterialsSystemPrompt,
		studyMaterialsUserPrompt(truncateSource(source), req, flashAmount, questionAmount))
	if err != nil {
		return nil, nil, "", err
	}
	return buildStudyMaterials(raw, flashAmount, questionAmount, len(source) > maxSourceChars)
}

func (g *OpenAI) InterviewSummary(ctx context.Context, transcript, language string) (string, error) {
	user := "Interview transcript:\n\n" + truncateSource(transcript) + languageInstruction(language)
	return g.chat(ctx, g.models.Merge, interviewSummarySystemPrompt, user)
}

func (g *OpenAI) InterviewSections(ctx context.Context, transcript, language string) (string, error) {
	user := "Interview transcript:\n\n" + truncateSource(transcript) + languageInstruction(language)
	return g.chat(ctx, g.models.Merge, interviewSectionsSystemPrompt, user)
}

func (g *OpenAI) chat(ctx context.Context, model, system, user string) (string, error) {
	start := time.Now()
	resp, err := g.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: system},
			{Role: openai.ChatMessageRoleUser, Content: user},
		},
	})
	if err != nil {
		slog.Error("OpenAI API error", "model", model, "err", err)
		return "", fmt.Errorf("OpenAI API error: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("no response from OpenAI")
	}

	content := resp.Choices[0].Message.Content
	slog.Info("received response from OpenAI",
		"model", resp.Model,
		"tokens_used", resp.Usage.TotalTokens,
		"duration_ms", time.Since(start).Milliseconds(),
		"response_length", len(content))
	return content, nil
}

func truncateSource(s string) string {
	if len(s) <= maxSourceChars {
		return s
	}
	return s[:maxSourceChars]
}
