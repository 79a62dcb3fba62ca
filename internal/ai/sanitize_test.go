package ai

import (
	"strings"
	"testing"

	"github.com/fedutinova/lectary/internal/job"
)

func TestExtractJSONPayload(t *testing.T) {
	want := `{"flashcards":[],"test_questions":[]}`

	cases := map[string]string{
		"bare":      want,
		"fenced":    "```json\n" + want + "\n```",
		"fenced_no_lang": "```\n" + want + "\n```",
		"chatty":    "Here you go:\n" + want + "\nLet me know if you need more.",
	}
	for name, raw := range cases {
		got, err := extractJSONPayload(raw)
		if err != nil {
			t.Fatalf("%s: unexpected error: %v", name, err)
		}
		if got != want {
			t.Fatalf("%s: got %q", name, got)
		}
	}

	if _, err := extractJSONPayload("sorry, I cannot help with that"); err == nil {
		t.Fatalf("expected error for output without JSON")
	}
}

func TestParseStudyPayload(t *testing.T) {
	raw := "```json\n" + `{
		"flashcards": [{"front": "What is TCP?", "back": "A reliable transport protocol."}],
		"test_questions": [{"question": "Which layer?", "options": ["L1","L2","L3","L4"], "answer": "L4"}]
	}` + "\n```"

	cards, questions, err := parseStudyPayload(raw)
	if err != nil {
		t.Fatalf("parseStudyPayload error: %v", err)
	}
	if len(cards) != 1 || cards[0].Front != "What is TCP?" {
		t.Fatalf("unexpected flashcards: %+v", cards)
	}
	if len(questions) != 1 || questions[0].Answer != "L4" {
		t.Fatalf("unexpected questions: %+v", questions)
	}
}

func TestSanitizeFlashcards(t *testing.T) {
	cards := []job.Flashcard{
		{Front: "  What is DNS?  ", Back: "Name resolution."},
		{Front: "what is dns?", Back: "duplicate front, different case"},
		{Front: "", Back: "missing front"},
		{Front: "missing back", Back: "   "},
		{Front: strings.Repeat("x", maxCardFieldChars+1), Back: "too long"},
		{Front: "Second", Back: "card"},
		{Front: "Third", Back: "card beyond limit"},
	}

	got := sanitizeFlashcards(cards, 2)
	if len(got) != 2 {
		t.Fatalf("expected 2 cards, got %d: %+v", len(got), got)
	}
	if got[0].Front != "What is DNS?" {
		t.Fatalf("fields should be trimmed, got %q", got[0].Front)
	}
	if got[1].Front != "Second" {
		t.Fatalf("dedup or ordering broken: %+v", got)
	}
	if sanitizeFlashcards(cards, 0) != nil {
		t.Fatalf("zero limit must return nil")
	}
}

func TestSanitizeQuestions(t *testing.T) {
	questions := []job.TestQuestion{
		{Question: "Valid?", Options: []string{"a", "b", "c", "d"}, Answer: "B", Explanation: " yes "},
		{Question: "Three options", Options: []string{"a", "b", "c"}, Answer: "a"},
		{Question: "Dup options", Options: []string{"a", "a", "b", "c"}, Answer: "a"},
		{Question: "Answer missing", Options: []string{"a", "b", "c", "d"}, Answer: "e"},
		{Question: "", Options: []string{"a", "b", "c", "d"}, Answer: "a"},
	}

	got := sanitizeQuestions(questions, 10)
	if len(got) != 1 {
		t.Fatalf("expected 1 valid question, got %d: %+v", len(got), got)
	}
	if got[0].Answer != "B" {
		t.Fatalf("answer match must be case-insensitive but preserved, got %q", got[0].Answer)
	}
	if got[0].Explanation != "yes" {
		t.Fatalf("explanation should be trimmed, got %q", got[0].Explanation)
	}
}

func TestBuildStudyMaterials_Notes(t *testing.T) {
	good := `{"flashcards":[{"front":"Q","back":"A"}],"test_questions":[]}`

	cards, _, note, err := buildStudyMaterials(good, 10, 0, false)
	if err != nil {
		t.Fatalf("buildStudyMaterials error: %v", err)
	}
	if len(cards) != 1 || note != "" {
		t.Fatalf("clean response must carry no note, got %q (%d cards)", note, len(cards))
	}

	_, _, note, err = buildStudyMaterials(good, 10, 0, true)
	if err != nil {
		t.Fatalf("buildStudyMaterials error: %v", err)
	}
	if note != noteSourceTruncated {
		t.Fatalf("truncated source must be noted, got %q", note)
	}

	// every card invalid: success with nothing usable is a note, not an error
	empty := `{"flashcards":[{"front":"","back":"A"}],"test_questions":[]}`
	cards, questions, note, err := buildStudyMaterials(empty, 10, 10, false)
	if err != nil {
		t.Fatalf("buildStudyMaterials error: %v", err)
	}
	if len(cards) != 0 || len(questions) != 0 {
		t.Fatalf("expected nothing to survive sanitization: %+v %+v", cards, questions)
	}
	if note != noteEmptyMaterials {
		t.Fatalf("empty result must be noted, got %q", note)
	}

	if _, _, _, err := buildStudyMaterials("not json at all", 10, 0, false); err == nil {
		t.Fatalf("unparseable response must be an error")
	}
}

func TestResolveAmounts(t *testing.T) {
	flash, questions := resolveAmounts(StudyRequest{
		Features:        "both",
		FlashcardAmount: "20",
		QuestionAmount:  "auto",
	}, 1_000)
	if flash != 20 {
		t.Fatalf("explicit amount should win, got %d", flash)
	}
	if questions != 5 {
		t.Fatalf("auto for a short source should be 5, got %d", questions)
	}

	flash, questions = resolveAmounts(StudyRequest{Features: "flashcards", FlashcardAmount: "auto"}, 50_000)
	if flash != 30 || questions != 0 {
		t.Fatalf("expected 30 flashcards and no questions, got %d/%d", flash, questions)
	}

	flash, questions = resolveAmounts(StudyRequest{Features: "none"}, 50_000)
	if flash != 0 || questions != 0 {
		t.Fatalf("features=none must produce nothing, got %d/%d", flash, questions)
	}
}
