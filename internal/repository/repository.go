package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/fedutinova/lectary/internal/database"
	"github.com/fedutinova/lectary/internal/job"
	"github.com/fedutinova/lectary/internal/models"
)

type Repository struct {
	db *database.DB

	FreeLectureCredits   int
	FreeSlidesCredits    int
	FreeInterviewCredits int
}

func New(db *database.DB) *Repository {
	return &Repository{
		db:                 db,
		FreeLectureCredits: 1,
		FreeSlidesCredits:  1,
	}
}

// GetOrCreateUser loads the user record, creating it with the free starter
// credits on first contact. The stored email is refreshed when the identity
// provider reports a new one.
func (r *Repository) GetOrCreateUser(ctx context.Context, uid, email string) (*models.User, error) {
	user, err := r.getUser(ctx, uid)
	if err == nil {
		if email != "" && user.Email != email {
			if _, err := r.db.Pool().Exec(ctx,
				`UPDATE users SET email = $1 WHERE uid = $2`, email, uid,
			); err != nil {
				return nil, fmt.Errorf("update user email: %w", err)
			}
			user.Email = email
		}
		return user, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, err
	}

	query := `
		INSERT INTO users (
			uid, email,
			lecture_credits_standard, lecture_credits_extended, slides_credits,
			interview_credits_short, interview_credits_medium, interview_credits_long,
			total_processed, preferred_output_language, created_at
		)
		VALUES ($1, $2, $3, 0, $4, $5, 0, 0, 0, 'english', NOW())
		ON CONFLICT (uid) DO NOTHING
	`
	if _, err := r.db.Pool().Exec(ctx, query,
		uid, email, r.FreeLectureCredits, r.FreeSlidesCredits, r.FreeInterviewCredits,
	); err != nil {
		return nil, fmt.Errorf("create user: %w", err)
	}
	slog.Info("new user created", "uid", uid, "email", email)
	return r.getUser(ctx, uid)
}

func (r *Repository) getUser(ctx context.Context, uid string) (*models.User, error) {
	query := `
		SELECT uid, email,
		       lecture_credits_standard, lecture_credits_extended, slides_credits,
		       interview_credits_short, interview_credits_medium, interview_credits_long,
		       total_processed, preferred_output_language, created_at
		FROM users
		WHERE uid = $1
	`
	var u models.User
	var standard, extended, slides, short, medium, long int
	err := r.db.Pool().QueryRow(ctx, query, uid).Scan(
		&u.UID,
		&u.Email,
		&standard,
		&extended,
		&slides,
		&short,
		&medium,
		&long,
		&u.TotalProcessed,
		&u.OutputLanguage,
		&u.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	u.Credits = map[string]int{
		models.CreditLectureStandard: standard,
		models.CreditLectureExtended: extended,
		models.CreditSlides:          slides,
		models.CreditInterviewShort:  short,
		models.CreditInterviewMedium: medium,
		models.CreditInterviewLong:   long,
	}
	return &u, nil
}

const maxNotesChars = 180_000

// SaveStudyPack persists the durable deliverable for a completed job and
// returns the pack id. Oversized notes are truncated, not rejected.
func (r *Repository) SaveStudyPack(ctx context.Context, j *job.Job) (string, error) {
	notes := j.Result
	truncated := len(notes) > maxNotesChars
	if truncated {
		notes = notes[:maxNotesChars]
	}

	packID := uuid.New().String()
	title := fmt.Sprintf("%s %s", j.Mode, time.Now().Format("2006-01-02 15:04"))

	flashcards, err := json.Marshal(j.Flashcards)
	if err != nil {
		return "", fmt.Errorf("marshal flashcards: %w", err)
	}
	questions, err := json.Marshal(j.TestQuestions)
	if err != nil {
		return "", fmt.Errorf("marshal test questions: %w", err)
	}
	segments, err := json.Marshal(j.TranscriptSegments)
	if err != nil {
		return "", fmt.Errorf("marshal transcript segments: %w", err)
	}

	query := `
		INSERT INTO study_packs (
			id, source_job_id, uid, mode, title, output_language,
			notes_markdown, notes_truncated, transcript, audio_storage_key,
			flashcards, test_questions, transcript_segments, study_features,
			interview_summary, interview_sections, interview_combined,
			study_generation_error, created_at, updated_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, NOW(), NOW())
	`
	_, err = r.db.Pool().Exec(ctx, query,
		packID,
		j.ID,
		j.UserID,
		string(j.Mode),
		title,
		j.OutputLanguage,
		notes,
		truncated,
		j.Transcript,
		j.AudioStorageKey,
		flashcards,
		questions,
		segments,
		j.StudyFeatures,
		j.InterviewSummary,
		j.InterviewSections,
		j.InterviewCombined,
		j.StudyGenerationError,
	)
	if err != nil {
		return "", fmt.Errorf("save study pack: %w", err)
	}
	return packID, nil
}

// SaveJobLog records the job outcome for analytics. Best-effort: callers log
// and continue on failure so a dead analytics table cannot fail a job.
func (r *Repository) SaveJobLog(ctx context.Context, j *job.Job, finishedAt time.Time) error {
	duration := 0.0
	if !j.StartedAt.IsZero() {
		duration = finishedAt.Sub(j.StartedAt).Round(100 * time.Millisecond).Seconds()
	}
	query := `
		INSERT INTO job_logs (
			job_id, uid, email, mode, status,
			credit_deducted, credit_refunded, error_message,
			started_at, finished_at, duration_seconds
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (job_id) DO UPDATE SET
			status = EXCLUDED.status,
			credit_refunded = EXCLUDED.credit_refunded,
			error_message = EXCLUDED.error_message,
			finished_at = EXCLUDED.finished_at,
			duration_seconds = EXCLUDED.duration_seconds
	`
	_, err := r.db.Pool().Exec(ctx, query,
		j.ID,
		j.UserID,
		j.UserEmail,
		string(j.Mode),
		string(j.Status),
		j.CreditDeducted,
		j.CreditRefunded,
		j.Error,
		j.StartedAt,
		finishedAt,
		duration,
	)
	if err != nil {
		return fmt.Errorf("save job log: %w", err)
	}

	event := "processing_finished_backend"
	switch j.Status {
	case job.StatusComplete:
		event = "processing_completed_backend"
	case job.StatusError:
		event = "processing_failed_backend"
	}
	r.LogEvent(ctx, models.AnalyticsEvent{
		Event:     event,
		Source:    "backend",
		UID:       j.UserID,
		Email:     j.UserEmail,
		SessionID: j.ID,
		Props: map[string]any{
			"job_id":           j.ID,
			"mode":             string(j.Mode),
			"duration_seconds": duration,
			"credit_refunded":  j.CreditRefunded,
		},
		CreatedAt: finishedAt,
	})
	return nil
}

// LogEvent writes an analytics event, swallowing failures.
func (r *Repository) LogEvent(ctx context.Context, e models.AnalyticsEvent) {
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now()
	}
	props, err := json.Marshal(e.Props)
	if err != nil {
		slog.Error("failed to marshal analytics props", "event", e.Event, "err", err)
		return
	}
	_, err = r.db.Pool().Exec(ctx,
		`INSERT INTO analytics_events (event, source, uid, email, session_id, properties, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		e.Event, e.Source, e.UID, e.Email, e.SessionID, props, e.CreatedAt,
	)
	if err != nil {
		slog.Error("failed to log analytics event", "event", e.Event, "err", err)
	}
}

// LogRateLimitHit records a denied admission for capacity tuning.
func (r *Repository) LogRateLimitHit(ctx context.Context, limitName string, retryAfter time.Duration) {
	r.LogEvent(ctx, models.AnalyticsEvent{
		Event:  "rate_limit_hit",
		Source: "backend",
		Props: map[string]any{
			"limit_name":          limitName,
			"retry_after_seconds": int(retryAfter.Seconds()),
		},
	})
}
