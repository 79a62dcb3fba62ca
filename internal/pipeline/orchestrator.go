package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fedutinova/lectary/internal/ai"
	"github.com/fedutinova/lectary/internal/job"
	"github.com/fedutinova/lectary/internal/models"
	"github.com/fedutinova/lectary/internal/registry"
	"github.com/fedutinova/lectary/internal/storage"
)

// CreditLedger is the compensation half of the billing saga. The upload
// handler deducts before spawning a task; the task refunds on failure.
type CreditLedger interface {
	Refund(ctx context.Context, uid, creditType string) error
	RefundSlides(ctx context.Context, uid string, amount int) error
}

// PackStore persists the durable deliverable and the job log.
type PackStore interface {
	SaveStudyPack(ctx context.Context, j *job.Job) (string, error)
	SaveJobLog(ctx context.Context, j *job.Job, finishedAt time.Time) error
}

// Task carries everything a background run needs beyond the registry record:
// the staged input files, which are owned by the task until cleanup.
type Task struct {
	JobID      string
	SlidesPath string
	AudioPath  string
}

// Orchestrator runs one background goroutine per job through its mode's
// stage list, updating the registry as it goes. Registry mutations never
// perform I/O; every ledger, model, and store call happens outside the lock.
type Orchestrator struct {
	registry    registry.Registry
	generator   ai.Generator
	ledger      CreditLedger
	store       PackStore
	files       storage.Storage
	cleanup     func(paths []string)
	maxDuration time.Duration
}

func New(
	reg registry.Registry,
	generator ai.Generator,
	ledger CreditLedger,
	store PackStore,
	files storage.Storage,
	cleanup func(paths []string),
	maxDuration time.Duration,
) *Orchestrator {
	if cleanup == nil {
		cleanup = func([]string) {}
	}
	return &Orchestrator{
		registry:    reg,
		generator:   generator,
		ledger:      ledger,
		store:       store,
		files:       files,
		cleanup:     cleanup,
		maxDuration: maxDuration,
	}
}

// TotalSteps returns the mode's stage count for progress display.
func TotalSteps(mode job.Mode, withStudyMaterials bool, withInterviewExtras bool) int {
	switch mode {
	case job.ModeLectureNotes:
		if withStudyMaterials {
			return 4
		}
		return 3
	case job.ModeSlidesOnly:
		if withStudyMaterials {
			return 2
		}
		return 1
	case job.ModeInterview:
		if withInterviewExtras {
			return 2
		}
		return 1
	default:
		return 1
	}
}

// Start launches the background task for a job already present in the
// registry. It returns immediately; the client polls for progress.
func (o *Orchestrator) Start(task Task) {
	go o.run(task)
}

func (o *Orchestrator) run(task Task) {
	ctx, cancel := context.WithTimeout(context.Background(), o.maxDuration)
	defer cancel()

	defer func() {
		if r := recover(); r != nil {
			slog.Error("panic in processing task", "job_id", task.JobID, "panic", r)
			o.fail(ctx, task.JobID, "Internal processing error. Your credit has been refunded.")
		}
		o.finalize(task)
	}()

	snap, ok := o.registry.Snapshot(task.JobID)
	if !ok {
		slog.Error("task started for unknown job", "job_id", task.JobID)
		return
	}

	var err error
	switch snap.Mode {
	case job.ModeLectureNotes:
		err = o.runLectureNotes(ctx, task, snap)
	case job.ModeSlidesOnly:
		err = o.runSlidesOnly(ctx, task, snap)
	case job.ModeInterview:
		err = o.runInterview(ctx, task, snap)
	default:
		err = fmt.Errorf("unknown mode %q", snap.Mode)
	}
	if err != nil {
		slog.Error("job failed", "job_id", task.JobID, "mode", snap.Mode, "err", err)
	}
}

func (o *Orchestrator) runLectureNotes(ctx context.Context, task Task, snap *job.Job) error {
	o.progress(task.JobID, 1, "Reading the slides...")
	slideText, err := o.generator.ExtractSlideText(ctx, task.SlidesPath)
	if err != nil {
		o.fail(ctx, task.JobID, "Could not read text from the slides. Your credit has been refunded.")
		return fmt.Errorf("extract slide text: %w", err)
	}
	o.registry.Mutate(task.JobID, func(j *job.Job) { j.SlideText = slideText })

	o.progress(task.JobID, 2, "Transcribing the lecture audio...")
	transcript, segments, err := o.generator.TranscribeAudio(ctx, task.AudioPath)
	if err != nil {
		o.fail(ctx, task.JobID, "Audio transcription failed. Your credit has been refunded.")
		return fmt.Errorf("transcribe audio: %w", err)
	}
	audioKey := o.storeAudio(ctx, task.AudioPath)
	o.registry.Mutate(task.JobID, func(j *job.Job) {
		j.Transcript = transcript
		j.TranscriptSegments = segments
		j.AudioStorageKey = audioKey
	})

	o.progress(task.JobID, 3, "Merging slides and lecture into notes...")
	notes, err := o.generator.MergeNotes(ctx, slideText, transcript, snap.OutputLanguage)
	if err != nil {
		o.fail(ctx, task.JobID, "Could not generate the combined notes. Your credit has been refunded.")
		return fmt.Errorf("merge notes: %w", err)
	}
	o.registry.Mutate(task.JobID, func(j *job.Job) { j.Result = notes })

	if wantsStudyMaterials(snap) {
		o.progress(task.JobID, 4, "Creating flashcards and test questions...")
		o.generateStudyMaterials(ctx, task.JobID, notes, snap)
	}

	return o.complete(ctx, task.JobID)
}

func (o *Orchestrator) runSlidesOnly(ctx context.Context, task Task, snap *job.Job) error {
	o.progress(task.JobID, 1, "Turning the slides into notes...")
	slideText, err := o.generator.ExtractSlideText(ctx, task.SlidesPath)
	if err != nil {
		o.fail(ctx, task.JobID, "Could not read text from the slides. Your credit has been refunded.")
		return fmt.Errorf("extract slide text: %w", err)
	}
	notes, err := o.generator.SlideNotes(ctx, slideText, snap.OutputLanguage)
	if err != nil {
		o.fail(ctx, task.JobID, "Could not generate notes from the slides. Your credit has been refunded.")
		return fmt.Errorf("slide notes: %w", err)
	}
	o.registry.Mutate(task.JobID, func(j *job.Job) {
		j.SlideText = slideText
		j.Result = notes
	})

	if wantsStudyMaterials(snap) {
		o.progress(task.JobID, 2, "Creating flashcards and test questions...")
		o.generateStudyMaterials(ctx, task.JobID, notes, snap)
	}

	return o.complete(ctx, task.JobID)
}

func (o *Orchestrator) runInterview(ctx context.Context, task Task, snap *job.Job) error {
	o.progress(task.JobID, 1, "Transcribing the interview...")
	transcript, segments, err := o.generator.TranscribeAudio(ctx, task.AudioPath)
	if err != nil {
		o.fail(ctx, task.JobID, "Audio transcription failed. Your credits have been refunded.")
		return fmt.Errorf("transcribe audio: %w", err)
	}
	audioKey := o.storeAudio(ctx, task.AudioPath)
	o.registry.Mutate(task.JobID, func(j *job.Job) {
		j.Transcript = transcript
		j.TranscriptSegments = segments
		j.AudioStorageKey = audioKey
		j.Result = transcript
	})

	if len(snap.InterviewFeatures) > 0 {
		o.progress(task.JobID, 2, "Generating interview analysis...")
		o.runInterviewExtras(ctx, task.JobID, transcript, snap)
	}

	return o.complete(ctx, task.JobID)
}

// runInterviewExtras executes each requested add-on independently. Add-ons
// are priced per feature in slides credits, deducted up front; a failed
// add-on — including one that produced empty output — refunds exactly its
// own credit and never fails the job.
func (o *Orchestrator) runInterviewExtras(ctx context.Context, jobID, transcript string, snap *job.Job) {
	var summary, sections string
	var successful, notes []string

	for _, feature := range snap.InterviewFeatures {
		var out string
		var err error
		switch feature {
		case "summary":
			out, err = o.generator.InterviewSummary(ctx, transcript, snap.OutputLanguage)
		case "sections":
			out, err = o.generator.InterviewSections(ctx, transcript, snap.OutputLanguage)
		default:
			err = fmt.Errorf("unknown interview feature %q", feature)
		}
		out = strings.TrimSpace(out)
		if err == nil && out == "" {
			err = fmt.Errorf("model returned empty output")
		}
		if err != nil {
			slog.Warn("interview add-on failed", "job_id", jobID, "feature", feature, "err", err)
			notes = append(notes, fmt.Sprintf("%s generation failed", feature))
			o.refundInterviewExtras(ctx, jobID, snap.UserID, 1)
			continue
		}
		switch feature {
		case "summary":
			summary = out
		case "sections":
			sections = out
		}
		successful = append(successful, feature)
	}

	var combined string
	if summary != "" && sections != "" {
		combined = summary + "\n\n---\n\n" + sections
	}

	o.registry.Mutate(jobID, func(j *job.Job) {
		j.InterviewFeaturesSuccessful = successful
		j.InterviewSummary = summary
		j.InterviewSections = sections
		j.InterviewCombined = combined
		if len(notes) > 0 {
			j.StudyGenerationError = strings.Join(notes, "; ")
		}
		switch {
		case combined != "":
			j.Result = combined
		case summary != "":
			j.Result = summary
		case sections != "":
			j.Result = sections
		}
	})
}

// generateStudyMaterials is a soft stage: the primary deliverable already
// exists, so a failure here is recorded on the job instead of failing it,
// and the base credit stays charged. A successful call may still carry a
// note (truncated source, empty results) worth showing to the user.
func (o *Orchestrator) generateStudyMaterials(ctx context.Context, jobID, source string, snap *job.Job) {
	flashcards, questions, note, err := o.generator.GenerateStudyMaterials(ctx, source, ai.StudyRequest{
		Features:        snap.StudyFeatures,
		FlashcardAmount: snap.FlashcardSelection,
		QuestionAmount:  snap.QuestionSelection,
		Language:        snap.OutputLanguage,
	})
	if err != nil {
		slog.Warn("study material generation failed", "job_id", jobID, "err", err)
		o.registry.Mutate(jobID, func(j *job.Job) {
			j.StudyGenerationError = "Could not generate study materials for this upload."
		})
		return
	}
	o.registry.Mutate(jobID, func(j *job.Job) {
		j.Flashcards = flashcards
		j.TestQuestions = questions
		if note != "" {
			j.StudyGenerationError = note
		}
	})
}

// complete persists the study pack and only then flips the job terminal, so
// a client observing "complete" can rely on the pack existing.
func (o *Orchestrator) complete(ctx context.Context, jobID string) error {
	snap, ok := o.registry.Snapshot(jobID)
	if !ok {
		return fmt.Errorf("job %s vanished before completion", jobID)
	}

	packID := ""
	if o.store != nil {
		var err error
		packID, err = o.store.SaveStudyPack(ctx, snap)
		if err != nil {
			o.fail(ctx, jobID, "Could not save your results. Your credit has been refunded.")
			return fmt.Errorf("save study pack: %w", err)
		}
	}

	o.registry.Mutate(jobID, func(j *job.Job) {
		j.Status = job.StatusComplete
		j.Step = j.TotalSteps
		j.StepDescription = "Complete!"
		j.StudyPackID = packID
	})
	return nil
}

// fail flips the job to error and runs the compensating refunds: the base
// credit (once), plus any interview add-on slides credits not already
// refunded per-feature.
func (o *Orchestrator) fail(ctx context.Context, jobID, publicMessage string) {
	snap, ok := o.registry.Snapshot(jobID)
	if !ok {
		return
	}

	refundBase := snap.CreditDeducted != "" && !snap.CreditRefunded
	if refundBase && o.ledger != nil {
		// Best effort; the ledger logs its own failures.
		_ = o.ledger.Refund(ctx, snap.UserID, snap.CreditDeducted)
	}
	remainingExtras := snap.InterviewFeaturesCost - snap.ExtraSlidesRefunded
	if remainingExtras > 0 && o.ledger != nil {
		_ = o.ledger.RefundSlides(ctx, snap.UserID, remainingExtras)
	}

	o.registry.Mutate(jobID, func(j *job.Job) {
		j.Status = job.StatusError
		j.Error = publicMessage
		if refundBase {
			j.CreditRefunded = true
			j.Receipt.AddRefund(j.CreditDeducted, 1)
		}
		if remainingExtras > 0 {
			j.ExtraSlidesRefunded += remainingExtras
			j.Receipt.AddRefund(models.CreditSlides, remainingExtras)
		}
	})
}

func (o *Orchestrator) refundInterviewExtras(ctx context.Context, jobID, uid string, amount int) {
	if o.ledger != nil {
		_ = o.ledger.RefundSlides(ctx, uid, amount)
	}
	o.registry.Mutate(jobID, func(j *job.Job) {
		j.ExtraSlidesRefunded += amount
		j.Receipt.AddRefund(models.CreditSlides, amount)
	})
}

// finalize runs on every exit path: staged files are removed, the finish
// time recorded, and the job log written from the terminal snapshot.
func (o *Orchestrator) finalize(task Task) {
	o.cleanup(staged(task))

	finishedAt := time.Now()
	snap, ok := o.registry.Mutate(task.JobID, func(j *job.Job) {
		j.FinishedAt = finishedAt
	})
	if !ok || o.store == nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := o.store.SaveJobLog(ctx, snap, finishedAt); err != nil {
		slog.Error("failed to save job log", "job_id", task.JobID, "err", err)
	}
}

func (o *Orchestrator) progress(jobID string, step int, description string) {
	o.registry.Mutate(jobID, func(j *job.Job) {
		j.Status = job.StatusProcessing
		j.Step = step
		j.StepDescription = description
	})
}

// storeAudio uploads processed audio so the study pack can replay it.
// Best effort: a storage outage must not fail a job the user paid for.
func (o *Orchestrator) storeAudio(ctx context.Context, audioPath string) string {
	if o.files == nil || audioPath == "" {
		return ""
	}
	f, err := os.Open(audioPath)
	if err != nil {
		slog.Warn("could not open audio for storage", "path", audioPath, "err", err)
		return ""
	}
	defer f.Close()

	result, err := o.files.UploadFile(ctx, filepath.Base(audioPath), f, contentTypeForAudio(audioPath))
	if err != nil {
		slog.Warn("could not persist audio to storage", "path", audioPath, "err", err)
		return ""
	}
	return result.Key
}

func wantsStudyMaterials(j *job.Job) bool {
	return j.StudyFeatures != "" && j.StudyFeatures != "none"
}

func staged(task Task) []string {
	var paths []string
	if task.SlidesPath != "" {
		paths = append(paths, task.SlidesPath)
	}
	if task.AudioPath != "" {
		paths = append(paths, task.AudioPath)
	}
	return paths
}

func contentTypeForAudio(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".mp3":
		return "audio/mpeg"
	case ".m4a":
		return "audio/mp4"
	case ".wav":
		return "audio/wav"
	case ".ogg":
		return "audio/ogg"
	case ".flac":
		return "audio/flac"
	default:
		return "application/octet-stream"
	}
}
