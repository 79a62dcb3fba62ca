package ai

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/fedutinova/lectary/internal/job"
)

// Model output discipline: the prompt demands bare JSON, but models still
// wrap it in markdown fences or chat around it. The parser digs the object
// out; the sanitizers then drop anything malformed instead of failing the
// whole job over one bad card.

const maxCardFieldChars = 2000

// Soft notes recorded on the job instead of failing the stage.
const (
	noteSourceTruncated = "Note: source text was very long and was truncated before study material generation."
	noteEmptyMaterials  = "Study materials were empty after validation."
)

// buildStudyMaterials parses and sanitizes a raw model response. The note
// return carries problems worth surfacing to the user without failing the
// stage: a truncated source, or a response with nothing usable left after
// sanitization.
func buildStudyMaterials(raw string, flashAmount, questionAmount int, truncated bool) ([]job.Flashcard, []job.TestQuestion, string, error) {
	flashcards, questions, err := parseStudyPayload(raw)
	if err != nil {
		return nil, nil, "", fmt.Errorf("study materials response unusable: %w", err)
	}
	cards := sanitizeFlashcards(flashcards, flashAmount)
	tests := sanitizeQuestions(questions, questionAmount)
	if len(cards) == 0 && len(tests) == 0 {
		return nil, nil, noteEmptyMaterials, nil
	}
	var note string
	if truncated {
		note = noteSourceTruncated
	}
	return cards, tests, note, nil
}

type studyPayload struct {
	Flashcards    []job.Flashcard    `json:"flashcards"`
	TestQuestions []job.TestQuestion `json:"test_questions"`
}

func parseStudyPayload(raw string) ([]job.Flashcard, []job.TestQuestion, error) {
	payload, err := extractJSONPayload(raw)
	if err != nil {
		return nil, nil, err
	}
	var parsed studyPayload
	if err := json.Unmarshal([]byte(payload), &parsed); err != nil {
		return nil, nil, fmt.Errorf("decode study payload: %w", err)
	}
	return parsed.Flashcards, parsed.TestQuestions, nil
}

// extractJSONPayload returns the JSON object inside raw: either the whole
// string, the body of a ``` fence, or the outermost {...} span.
func extractJSONPayload(raw string) (string, error) {
	s := strings.TrimSpace(raw)
	if strings.HasPrefix(s, "{") && strings.HasSuffix(s, "}") {
		return s, nil
	}

	if idx := strings.Index(s, "```"); idx >= 0 {
		rest := s[idx+3:]
		rest = strings.TrimPrefix(rest, "json")
		if end := strings.Index(rest, "```"); end >= 0 {
			fenced := strings.TrimSpace(rest[:end])
			if strings.HasPrefix(fenced, "{") {
				return fenced, nil
			}
		}
	}

	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start >= 0 && end > start {
		return s[start : end+1], nil
	}
	return "", fmt.Errorf("no JSON object in model output")
}

// sanitizeFlashcards drops empty or oversized cards, deduplicates by front
// text, and caps the result at the requested amount.
func sanitizeFlashcards(cards []job.Flashcard, limit int) []job.Flashcard {
	if limit <= 0 {
		return nil
	}
	seen := make(map[string]bool, len(cards))
	out := make([]job.Flashcard, 0, len(cards))
	for _, c := range cards {
		front := strings.TrimSpace(c.Front)
		back := strings.TrimSpace(c.Back)
		if front == "" || back == "" {
			continue
		}
		if len(front) > maxCardFieldChars || len(back) > maxCardFieldChars {
			continue
		}
		key := strings.ToLower(front)
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, job.Flashcard{Front: front, Back: back})
		if len(out) == limit {
			break
		}
	}
	return out
}

// sanitizeQuestions keeps only questions with exactly four distinct options
// where the answer is one of them, and caps at the requested amount.
func sanitizeQuestions(questions []job.TestQuestion, limit int) []job.TestQuestion {
	if limit <= 0 {
		return nil
	}
	out := make([]job.TestQuestion, 0, len(questions))
	for _, q := range questions {
		question := strings.TrimSpace(q.Question)
		answer := strings.TrimSpace(q.Answer)
		if question == "" || answer == "" || len(question) > maxCardFieldChars {
			continue
		}

		options := make([]string, 0, 4)
		distinct := make(map[string]bool, 4)
		for _, opt := range q.Options {
			opt = strings.TrimSpace(opt)
			if opt == "" || len(opt) > maxCardFieldChars {
				continue
			}
			key := strings.ToLower(opt)
			if distinct[key] {
				continue
			}
			distinct[key] = true
			options = append(options, opt)
		}
		if len(options) != 4 || !distinct[strings.ToLower(answer)] {
			continue
		}

		out = append(out, job.TestQuestion{
			Question:    question,
			Options:     options,
			Answer:      answer,
			Explanation: strings.TrimSpace(q.Explanation),
		})
		if len(out) == limit {
			break
		}
	}
	return out
}

// resolveAmounts turns client selections into concrete counts. "auto" scales
// with the source length; unknown values fall back to auto rather than
// failing a job that already cost a credit.
func resolveAmounts(req StudyRequest, sourceLen int) (flashcards, questions int) {
	wantFlash := req.Features == "flashcards" || req.Features == "both"
	wantTest := req.Features == "test" || req.Features == "both"

	if wantFlash {
		flashcards = resolveAmount(req.FlashcardAmount, autoFlashcards(sourceLen))
	}
	if wantTest {
		questions = resolveAmount(req.QuestionAmount, autoQuestions(sourceLen))
	}
	return flashcards, questions
}

func resolveAmount(selection string, auto int) int {
	if selection == "" || selection == "auto" {
		return auto
	}
	n, err := strconv.Atoi(selection)
	if err != nil || n <= 0 {
		return auto
	}
	return n
}

func autoFlashcards(sourceLen int) int {
	switch {
	case sourceLen < 5_000:
		return 10
	case sourceLen < 20_000:
		return 20
	default:
		return 30
	}
}

func autoQuestions(sourceLen int) int {
	switch {
	case sourceLen < 5_000:
		return 5
	case sourceLen < 20_000:
		return 10
	default:
		return 15
	}
}
