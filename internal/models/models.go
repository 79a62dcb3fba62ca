package models

import (
	"time"

	"github.com/fedutinova/lectary/internal/job"
)

// Credit balance column names. Deduction priority is positional: the ledger
// walks the list it is given and decrements the first positive balance.
const (
	CreditLectureStandard = "lecture_credits_standard"
	CreditLectureExtended = "lecture_credits_extended"
	CreditSlides          = "slides_credits"
	CreditInterviewShort  = "interview_credits_short"
	CreditInterviewMedium = "interview_credits_medium"
	CreditInterviewLong   = "interview_credits_long"
)

// CreditColumns lists every balance column, in schema order.
var CreditColumns = []string{
	CreditLectureStandard,
	CreditLectureExtended,
	CreditSlides,
	CreditInterviewShort,
	CreditInterviewMedium,
	CreditInterviewLong,
}

type User struct {
	UID            string         `json:"uid"`
	Email          string         `json:"email"`
	Credits        map[string]int `json:"credits"`
	TotalProcessed int            `json:"total_processed"`
	OutputLanguage string         `json:"preferred_output_language"`
	CreatedAt      time.Time      `json:"created_at"`
}

// LectureBalance is the combined standard+extended balance used by the
// upload admission gate.
func (u *User) LectureBalance() int {
	return u.Credits[CreditLectureStandard] + u.Credits[CreditLectureExtended]
}

func (u *User) InterviewBalance() int {
	return u.Credits[CreditInterviewShort] + u.Credits[CreditInterviewMedium] + u.Credits[CreditInterviewLong]
}

func (u *User) SlidesBalance() int {
	return u.Credits[CreditSlides]
}

type StudyPack struct {
	ID                string                  `json:"study_pack_id"`
	SourceJobID       string                  `json:"source_job_id"`
	UID               string                  `json:"uid"`
	Mode              string                  `json:"mode"`
	Title             string                  `json:"title"`
	OutputLanguage    string                  `json:"output_language"`
	NotesMarkdown     string                  `json:"notes_markdown"`
	NotesTruncated    bool                    `json:"notes_truncated"`
	Transcript        string                  `json:"transcript,omitempty"`
	AudioStorageKey   string                  `json:"audio_storage_key,omitempty"`
	Flashcards        []job.Flashcard         `json:"flashcards"`
	TestQuestions     []job.TestQuestion      `json:"test_questions"`
	StudyFeatures     string                  `json:"study_features"`
	InterviewSummary  string                  `json:"interview_summary,omitempty"`
	InterviewSections string                  `json:"interview_sections,omitempty"`
	InterviewCombined string                  `json:"interview_combined,omitempty"`
	Segments          []job.TranscriptSegment `json:"transcript_segments,omitempty"`
	CreatedAt         time.Time               `json:"created_at"`
}

type JobLog struct {
	JobID           string    `json:"job_id"`
	UID             string    `json:"uid"`
	Email           string    `json:"email"`
	Mode            string    `json:"mode"`
	Status          string    `json:"status"`
	CreditDeducted  string    `json:"credit_deducted"`
	CreditRefunded  bool      `json:"credit_refunded"`
	ErrorMessage    string    `json:"error_message,omitempty"`
	StartedAt       time.Time `json:"started_at"`
	FinishedAt      time.Time `json:"finished_at"`
	DurationSeconds float64   `json:"duration_seconds"`
}

type AnalyticsEvent struct {
	Event     string         `json:"event"`
	Source    string         `json:"source"`
	UID       string         `json:"uid,omitempty"`
	Email     string         `json:"email,omitempty"`
	SessionID string         `json:"session_id,omitempty"`
	Props     map[string]any `json:"properties,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
}
