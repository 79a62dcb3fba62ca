package validation

import (
	"sort"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/fedutinova/lectary/internal/common"
	"github.com/fedutinova/lectary/internal/job"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// Mode parses the mode form field.
func Mode(raw string) (job.Mode, error) {
	switch job.Mode(raw) {
	case job.ModeLectureNotes, job.ModeSlidesOnly, job.ModeInterview:
		return job.Mode(raw), nil
	default:
		return "", common.ValidationError{Field: "mode", Message: "mode must be lecture-notes, slides-only or interview"}
	}
}

// StudyFeatures parses the optional study_features selection. Empty means
// none requested.
func StudyFeatures(raw string) (string, error) {
	switch raw {
	case "", "none":
		return "none", nil
	case "flashcards", "test", "both":
		return raw, nil
	default:
		return "", common.ValidationError{Field: "study_features", Message: "study_features must be none, flashcards, test or both"}
	}
}

// InterviewFeatures parses the requested interview add-ons into a normalized
// ordered list. "both" is shorthand for summary+sections.
func InterviewFeatures(raw string) ([]string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" || raw == "none" {
		return nil, nil
	}
	if raw == "both" {
		return []string{"summary", "sections"}, nil
	}

	seen := map[string]bool{}
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		if part != "summary" && part != "sections" {
			return nil, common.ValidationError{Field: "interview_features", Message: "interview_features must be summary, sections or both"}
		}
		seen[part] = true
	}

	features := make([]string, 0, len(seen))
	for f := range seen {
		features = append(features, f)
	}
	// deterministic order: summary before sections
	sort.Sort(sort.Reverse(sort.StringSlice(features)))
	return features, nil
}

var flashcardAmounts = map[string]bool{"auto": true, "10": true, "20": true, "30": true}
var questionAmounts = map[string]bool{"auto": true, "5": true, "10": true, "15": true}

// FlashcardAmount validates the flashcard_amount selection, defaulting to
// auto.
func FlashcardAmount(raw string) (string, error) {
	if raw == "" {
		return "auto", nil
	}
	if !flashcardAmounts[raw] {
		return "", common.ValidationError{Field: "flashcard_amount", Message: "flashcard_amount must be 10, 20, 30 or auto"}
	}
	return raw, nil
}

// QuestionAmount validates the question_amount selection, defaulting to auto.
func QuestionAmount(raw string) (string, error) {
	if raw == "" {
		return "auto", nil
	}
	if !questionAmounts[raw] {
		return "", common.ValidationError{Field: "question_amount", Message: "question_amount must be 5, 10, 15 or auto"}
	}
	return raw, nil
}

var outputLanguages = map[string]string{
	"english":   "English",
	"german":    "German",
	"french":    "French",
	"spanish":   "Spanish",
	"italian":   "Italian",
	"russian":   "Russian",
	"ukrainian": "Ukrainian",
	"polish":    "Polish",
	"dutch":     "Dutch",
}

// OutputLanguage maps a language selection to the display name handed to the
// prompts. Empty falls back to English; unknown values are rejected.
func OutputLanguage(raw string) (string, error) {
	if raw == "" {
		return outputLanguages["english"], nil
	}
	name, ok := outputLanguages[strings.ToLower(raw)]
	if !ok {
		return "", common.ValidationError{Field: "output_language", Message: "unsupported output language"}
	}
	return name, nil
}

// ImportAudioRequest is the JSON body of POST /import-audio.
type ImportAudioRequest struct {
	AudioURL string `json:"audio_url" validate:"required,url,startswith=https://"`
}

func (r ImportAudioRequest) Validate() error {
	if err := validate.Struct(r); err != nil {
		return common.ValidationError{Field: "audio_url", Message: "audio_url must be a valid https URL"}
	}
	return nil
}

// ReleaseImportedAudioRequest is the JSON body of POST /release-imported-audio.
type ReleaseImportedAudioRequest struct {
	Token string `json:"token" validate:"required,uuid4"`
}

func (r ReleaseImportedAudioRequest) Validate() error {
	if err := validate.Struct(r); err != nil {
		return common.ValidationError{Field: "token", Message: "token must be a valid import token"}
	}
	return nil
}
