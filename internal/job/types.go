package job

import (
	"time"

	"github.com/fedutinova/lectary/internal/billing"
)

type Mode string

const (
	ModeLectureNotes Mode = "lecture-notes"
	ModeSlidesOnly   Mode = "slides-only"
	ModeInterview    Mode = "interview"
)

type Status string

const (
	StatusStarting   Status = "starting"
	StatusProcessing Status = "processing"
	StatusComplete   Status = "complete"
	StatusError      Status = "error"
)

// Terminal reports whether the status admits no further transitions.
func (s Status) Terminal() bool {
	return s == StatusComplete || s == StatusError
}

// Active reports whether a job in this status counts against the
// per-user concurrent job cap.
func (s Status) Active() bool {
	return s == StatusStarting || s == StatusProcessing
}

type Flashcard struct {
	Front string `json:"front"`
	Back  string `json:"back"`
}

type TestQuestion struct {
	Question    string   `json:"question"`
	Options     []string `json:"options"`
	Answer      string   `json:"answer"`
	Explanation string   `json:"explanation,omitempty"`
}

type TranscriptSegment struct {
	StartMs int    `json:"start_ms"`
	EndMs   int    `json:"end_ms"`
	Text    string `json:"text"`
}

// Job is one user-submitted processing request, tracked from upload to a
// terminal outcome. The record is owned by exactly one background task;
// everyone else sees copies handed out by the registry.
type Job struct {
	ID              string
	Status          Status
	Step            int
	StepDescription string
	TotalSteps      int
	Mode            Mode

	UserID    string
	UserEmail string

	CreditDeducted string
	CreditRefunded bool
	Receipt        billing.Receipt

	StartedAt  time.Time
	FinishedAt time.Time

	Result             string
	SlideText          string
	Transcript         string
	TranscriptSegments []TranscriptSegment
	AudioStorageKey    string

	FlashcardSelection string
	QuestionSelection  string
	StudyFeatures      string
	OutputLanguage     string

	Flashcards           []Flashcard
	TestQuestions        []TestQuestion
	StudyGenerationError string
	StudyPackID          string

	InterviewFeatures           []string
	InterviewFeaturesCost       int
	InterviewFeaturesSuccessful []string
	InterviewSummary            string
	InterviewSections           string
	InterviewCombined           string
	ExtraSlidesRefunded         int

	Error string
}

// Clone returns a deep copy. Snapshots handed to pollers must not alias
// slices or maps still being written by the owning task.
func (j *Job) Clone() *Job {
	if j == nil {
		return nil
	}
	c := *j
	c.Receipt = j.Receipt.Snapshot()
	c.TranscriptSegments = append([]TranscriptSegment(nil), j.TranscriptSegments...)
	c.Flashcards = append([]Flashcard(nil), j.Flashcards...)
	c.InterviewFeatures = append([]string(nil), j.InterviewFeatures...)
	c.InterviewFeaturesSuccessful = append([]string(nil), j.InterviewFeaturesSuccessful...)
	if j.TestQuestions != nil {
		c.TestQuestions = make([]TestQuestion, len(j.TestQuestions))
		for i, q := range j.TestQuestions {
			qc := q
			qc.Options = append([]string(nil), q.Options...)
			c.TestQuestions[i] = qc
		}
	}
	return &c
}
