package ai

import (
	"context"

	"github.com/fedutinova/lectary/internal/job"
)

// StudyRequest describes what supplementary materials to produce alongside
// the notes. Amounts are the raw client selections ("10", "auto", ...);
// "auto" is resolved against the source length at generation time.
type StudyRequest struct {
	Features        string
	FlashcardAmount string
	QuestionAmount  string
	Language        string
}

// Generator produces every model-backed artifact in the pipeline. One
// interface so the orchestrator can be exercised with a fake.
type Generator interface {
	ExtractSlideText(ctx context.Context, pdfPath string) (string, error)
	TranscribeAudio(ctx context.Context, audioPath string) (string, []job.TranscriptSegment, error)
	SlideNotes(ctx context.Context, slideText, language string) (string, error)
	MergeNotes(ctx context.Context, slideText, transcript, language string) (string, error)
	// GenerateStudyMaterials additionally returns a soft note (source was
	// truncated, results were empty after validation) the caller should
	// record on the job without treating the stage as failed.
	GenerateStudyMaterials(ctx context.Context, source string, req StudyRequest) ([]job.Flashcard, []job.TestQuestion, string, error)
	InterviewSummary(ctx context.Context, transcript, language string) (string, error)
	InterviewSections(ctx context.Context, transcript, language string) (string, error)
}
