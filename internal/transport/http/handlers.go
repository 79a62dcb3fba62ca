package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/fedutinova/lectary/internal/auth"
	"github.com/fedutinova/lectary/internal/billing"
	"github.com/fedutinova/lectary/internal/common"
	"github.com/fedutinova/lectary/internal/config"
	"github.com/fedutinova/lectary/internal/export"
	"github.com/fedutinova/lectary/internal/ingest"
	"github.com/fedutinova/lectary/internal/job"
	"github.com/fedutinova/lectary/internal/models"
	"github.com/fedutinova/lectary/internal/pipeline"
	"github.com/fedutinova/lectary/internal/ratelimit"
	"github.com/fedutinova/lectary/internal/registry"
	"github.com/fedutinova/lectary/internal/storage"
	"github.com/fedutinova/lectary/internal/validation"
)

// CreditLedger is the slice of the ledger the handlers need: the deduction
// half of the saga plus the rollbacks for admission-time failures.
type CreditLedger interface {
	Deduct(ctx context.Context, uid string, creditTypes ...string) (string, error)
	Refund(ctx context.Context, uid, creditType string) error
	DeductSlides(ctx context.Context, uid string, amount int) (bool, error)
	RefundSlides(ctx context.Context, uid string, amount int) error
}

// UserStore covers user lookup and analytics writes.
type UserStore interface {
	GetOrCreateUser(ctx context.Context, uid, email string) (*models.User, error)
	LogEvent(ctx context.Context, e models.AnalyticsEvent)
	LogRateLimitHit(ctx context.Context, limitName string, retryAfter time.Duration)
}

// Runner spawns the background task for a created job.
type Runner interface {
	Start(task pipeline.Task)
}

type Handlers struct {
	Registry  registry.Registry
	Runner    Runner
	Ledger    CreditLedger
	Users     UserStore
	Limiter   *ratelimit.Service
	Staging   *ingest.Staging
	Tokens    *ingest.TokenStore
	Fetcher   *ingest.RemoteFetcher
	Renderer  export.Renderer
	Files     storage.Storage
	Allowlist auth.Allowlist
	Config    config.Config
}

func (h *Handlers) Routers(r chi.Router) {
	r.Get("/health", h.Health)

	// static file serving for local storage
	if h.Files != nil && (h.Config.StorageMode == "local" || h.Config.StorageMode == "filesystem") {
		r.Get("/files/*", h.serveFiles)
	}

	r.Group(func(r chi.Router) {
		r.Use(auth.JWTMiddleware(h.Config.JWTSecret))

		r.Post("/upload", h.upload)
		r.Get("/status/{jobID}", h.status)
		r.Get("/download-docx/{jobID}", h.downloadDocument)
		r.Get("/download-flashcards-csv/{jobID}", h.downloadCSV)
		r.Post("/import-audio", h.importAudio)
		r.Post("/release-imported-audio", h.releaseImportedAudio)
	})
}

// upload admits a new processing job. The checks run strictly in order:
// allowlist, active-job cap, rate limit, size, user record, input parsing
// and staging, credit gate, deduction. Everything cheap fails before
// anything expensive runs, and nothing is charged before the inputs are
// known good.
func (h *Handlers) upload(w http.ResponseWriter, r *http.Request) {
	claims, ok := auth.FromContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "authentication required")
		return
	}
	if !h.Allowlist.Allowed(claims.Email) {
		respondError(w, http.StatusForbidden, "your email domain does not have access to this service")
		return
	}

	if h.Registry.CountActiveForUser(claims.UID) >= h.Config.MaxActiveJobsPerUser {
		h.rateLimited(w, r, "active_jobs", 30*time.Second,
			"You already have jobs in progress. Wait for them to finish before uploading more.")
		return
	}

	if d := h.Limiter.Allow(r.Context(), "upload:"+claims.UID, h.Config.UploadRateLimit, h.Config.UploadRateWindow); !d.Allowed {
		h.rateLimited(w, r, "upload", d.RetryAfter,
			"Too many uploads. Please wait before trying again.")
		return
	}

	maxBody := h.Config.MaxSlidesBytes + h.Config.MaxAudioBytes + 1<<20
	if r.ContentLength > maxBody {
		respondError(w, http.StatusRequestEntityTooLarge, "upload exceeds the size limit")
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, maxBody)

	user, err := h.Users.GetOrCreateUser(r.Context(), claims.UID, claims.Email)
	if err != nil {
		slog.Error("failed to load user", "uid", claims.UID, "err", err)
		respondError(w, http.StatusInternalServerError, "could not load your account")
		return
	}

	if err := r.ParseMultipartForm(32 << 20); err != nil {
		respondError(w, http.StatusBadRequest, "invalid upload form")
		return
	}

	mode, err := validation.Mode(r.FormValue("mode"))
	if err != nil {
		respondValidation(w, err)
		return
	}

	switch mode {
	case job.ModeLectureNotes, job.ModeSlidesOnly:
		h.uploadLecture(w, r, claims, user, mode)
	case job.ModeInterview:
		h.uploadInterview(w, r, claims, user)
	}
}

type stagedInputs struct {
	slidesPath string
	audioPath  string
	audioToken string
}

func (h *Handlers) uploadLecture(w http.ResponseWriter, r *http.Request, claims *auth.Claims, user *models.User, mode job.Mode) {
	studyFeatures, err := validation.StudyFeatures(r.FormValue("study_features"))
	if err != nil {
		respondValidation(w, err)
		return
	}
	flashcardAmount, err := validation.FlashcardAmount(r.FormValue("flashcard_amount"))
	if err != nil {
		respondValidation(w, err)
		return
	}
	questionAmount, err := validation.QuestionAmount(r.FormValue("question_amount"))
	if err != nil {
		respondValidation(w, err)
		return
	}
	language, err := validation.OutputLanguage(r.FormValue("output_language"))
	if err != nil {
		respondValidation(w, err)
		return
	}

	// credit gate before any staging I/O
	if mode == job.ModeLectureNotes && user.LectureBalance() <= 0 {
		respondError(w, http.StatusPaymentRequired, "You have no lecture credits left.")
		return
	}
	if mode == job.ModeSlidesOnly && user.SlidesBalance() <= 0 {
		respondError(w, http.StatusPaymentRequired, "You have no slides credits left.")
		return
	}

	jobID := uuid.New().String()
	inputs, err := h.stageInputs(r, claims, jobID, mode)
	if err != nil {
		h.Staging.Cleanup([]string{inputs.slidesPath, inputs.audioPath})
		respondValidation(w, err)
		return
	}

	priorities := []string{models.CreditLectureStandard, models.CreditLectureExtended}
	if mode == job.ModeSlidesOnly {
		priorities = []string{models.CreditSlides}
	}
	deducted, err := h.Ledger.Deduct(r.Context(), claims.UID, priorities...)
	if err != nil {
		h.Staging.Cleanup([]string{inputs.slidesPath, inputs.audioPath})
		slog.Error("credit deduction failed", "uid", claims.UID, "err", err)
		respondError(w, http.StatusInternalServerError, "could not process your credits")
		return
	}
	if deducted == "" {
		h.Staging.Cleanup([]string{inputs.slidesPath, inputs.audioPath})
		respondError(w, http.StatusPaymentRequired, "You have no credits left for this mode.")
		return
	}

	if inputs.audioToken != "" {
		path, _, err := h.Tokens.Resolve(claims.UID, inputs.audioToken, true)
		if err != nil {
			h.Staging.Cleanup([]string{inputs.slidesPath})
			_ = h.Ledger.Refund(r.Context(), claims.UID, deducted)
			respondValidation(w, err)
			return
		}
		inputs.audioPath = path
	}

	withStudy := studyFeatures != "none"
	j := &job.Job{
		Mode:               mode,
		Status:             job.StatusStarting,
		Step:               0,
		StepDescription:    "Starting...",
		TotalSteps:         pipeline.TotalSteps(mode, withStudy, false),
		UserID:             claims.UID,
		UserEmail:          claims.Email,
		CreditDeducted:     deducted,
		Receipt:            billing.NewReceipt(map[string]int{deducted: 1}),
		StartedAt:          time.Now(),
		StudyFeatures:      studyFeatures,
		FlashcardSelection: flashcardAmount,
		QuestionSelection:  questionAmount,
		OutputLanguage:     language,
	}
	h.createAndSpawn(w, r, claims, jobID, j, inputs, deducted)
}

func (h *Handlers) uploadInterview(w http.ResponseWriter, r *http.Request, claims *auth.Claims, user *models.User) {
	features, err := validation.InterviewFeatures(r.FormValue("interview_features"))
	if err != nil {
		respondValidation(w, err)
		return
	}
	language, err := validation.OutputLanguage(r.FormValue("output_language"))
	if err != nil {
		respondValidation(w, err)
		return
	}

	// gate both the base credit and the add-on cost before touching audio
	if user.InterviewBalance() <= 0 {
		respondError(w, http.StatusPaymentRequired, "You have no interview credits left.")
		return
	}
	extrasCost := len(features)
	if extrasCost > 0 && user.SlidesBalance() < extrasCost {
		respondError(w, http.StatusPaymentRequired,
			fmt.Sprintf("Interview extras need %d slides credits; you have %d.", extrasCost, user.SlidesBalance()))
		return
	}

	jobID := uuid.New().String()
	inputs, err := h.stageInputs(r, claims, jobID, job.ModeInterview)
	if err != nil {
		h.Staging.Cleanup([]string{inputs.audioPath})
		respondValidation(w, err)
		return
	}

	deducted, err := h.Ledger.Deduct(r.Context(), claims.UID,
		models.CreditInterviewShort, models.CreditInterviewMedium, models.CreditInterviewLong)
	if err != nil {
		h.Staging.Cleanup([]string{inputs.audioPath})
		slog.Error("credit deduction failed", "uid", claims.UID, "err", err)
		respondError(w, http.StatusInternalServerError, "could not process your credits")
		return
	}
	if deducted == "" {
		h.Staging.Cleanup([]string{inputs.audioPath})
		respondError(w, http.StatusPaymentRequired, "You have no interview credits left.")
		return
	}

	charged := map[string]int{deducted: 1}
	if extrasCost > 0 {
		ok, err := h.Ledger.DeductSlides(r.Context(), claims.UID, extrasCost)
		if err != nil || !ok {
			h.Staging.Cleanup([]string{inputs.audioPath})
			_ = h.Ledger.Refund(r.Context(), claims.UID, deducted)
			if err != nil {
				slog.Error("slides deduction failed", "uid", claims.UID, "err", err)
				respondError(w, http.StatusInternalServerError, "could not process your credits")
				return
			}
			respondError(w, http.StatusPaymentRequired, "Not enough slides credits for the requested interview extras.")
			return
		}
		charged[models.CreditSlides] = extrasCost
	}

	if inputs.audioToken != "" {
		path, _, err := h.Tokens.Resolve(claims.UID, inputs.audioToken, true)
		if err != nil {
			_ = h.Ledger.Refund(r.Context(), claims.UID, deducted)
			if extrasCost > 0 {
				_ = h.Ledger.RefundSlides(r.Context(), claims.UID, extrasCost)
			}
			respondValidation(w, err)
			return
		}
		inputs.audioPath = path
	}

	j := &job.Job{
		Mode:                  job.ModeInterview,
		Status:                job.StatusStarting,
		StepDescription:       "Starting...",
		TotalSteps:            pipeline.TotalSteps(job.ModeInterview, false, extrasCost > 0),
		UserID:                claims.UID,
		UserEmail:             claims.Email,
		CreditDeducted:        deducted,
		Receipt:               billing.NewReceipt(charged),
		StartedAt:             time.Now(),
		OutputLanguage:        language,
		InterviewFeatures:     features,
		InterviewFeaturesCost: extrasCost,
	}
	h.createAndSpawn(w, r, claims, jobID, j, inputs, deducted)
}

// stageInputs validates and stages the mode's file parts. The audio part may
// come either as a multipart file or as an import token staged earlier; the
// token is only checked here, consumed after deduction succeeds.
func (h *Handlers) stageInputs(r *http.Request, claims *auth.Claims, jobID string, mode job.Mode) (stagedInputs, error) {
	var inputs stagedInputs

	if mode == job.ModeLectureNotes || mode == job.ModeSlidesOnly {
		header, err := formFileHeader(r, "pdf")
		if err != nil {
			return inputs, common.ValidationError{Field: "pdf", Message: "slides file is required"}
		}
		path, err := h.Staging.StageSlides(jobID, header)
		if err != nil {
			return inputs, err
		}
		inputs.slidesPath = path
	}

	if mode == job.ModeLectureNotes || mode == job.ModeInterview {
		if token := r.FormValue("audio_import_token"); token != "" {
			if _, _, err := h.Tokens.Resolve(claims.UID, token, false); err != nil {
				return inputs, err
			}
			inputs.audioToken = token
			return inputs, nil
		}
		header, err := formFileHeader(r, "audio")
		if err != nil {
			return inputs, common.ValidationError{Field: "audio", Message: "audio file is required"}
		}
		path, err := h.Staging.StageAudio(jobID, header)
		if err != nil {
			return inputs, err
		}
		inputs.audioPath = path
	}
	return inputs, nil
}

// formFileHeader fetches a multipart header without opening the file the way
// r.FormFile does; staging opens the part itself when it copies it out.
func formFileHeader(r *http.Request, field string) (*multipart.FileHeader, error) {
	if r.MultipartForm == nil || len(r.MultipartForm.File[field]) == 0 {
		return nil, http.ErrMissingFile
	}
	return r.MultipartForm.File[field][0], nil
}

func (h *Handlers) createAndSpawn(w http.ResponseWriter, r *http.Request, claims *auth.Claims, jobID string, j *job.Job, inputs stagedInputs, deducted string) {
	if err := h.Registry.Create(jobID, j); err != nil {
		h.Staging.Cleanup([]string{inputs.slidesPath, inputs.audioPath})
		_ = h.Ledger.Refund(r.Context(), claims.UID, deducted)
		if j.InterviewFeaturesCost > 0 {
			_ = h.Ledger.RefundSlides(r.Context(), claims.UID, j.InterviewFeaturesCost)
		}
		slog.Error("failed to create job", "job_id", jobID, "err", err)
		respondError(w, http.StatusInternalServerError, "could not create the job")
		return
	}

	h.Users.LogEvent(r.Context(), models.AnalyticsEvent{
		Event:     "processing_started_backend",
		Source:    "backend",
		UID:       claims.UID,
		Email:     claims.Email,
		SessionID: jobID,
		Props: map[string]any{
			"job_id": jobID,
			"mode":   string(j.Mode),
		},
	})

	h.Runner.Start(pipeline.Task{
		JobID:      jobID,
		SlidesPath: inputs.slidesPath,
		AudioPath:  inputs.audioPath,
	})

	respondJSON(w, http.StatusOK, map[string]string{"job_id": jobID})
}

func (h *Handlers) status(w http.ResponseWriter, r *http.Request) {
	claims, _ := auth.FromContext(r.Context())
	jobID := chi.URLParam(r, "jobID")

	snap, ok := h.Registry.Snapshot(jobID)
	if !ok {
		// one lazy sweep, then retry: the id may sit behind a backlog of
		// expired records
		h.Registry.SweepTerminal(h.Config.JobTTL)
		snap, ok = h.Registry.Snapshot(jobID)
	}
	if !ok || (claims != nil && snap.UserID != claims.UID) {
		respondJSON(w, http.StatusNotFound, map[string]any{
			"job_lost": true,
			"error":    "This job is no longer available. It may have expired or the server restarted.",
		})
		return
	}

	resp := map[string]any{
		"status":           snap.Status,
		"step":             snap.Step,
		"step_description": snap.StepDescription,
		"total_steps":      snap.TotalSteps,
		"mode":             snap.Mode,
	}
	if !snap.Receipt.Empty() {
		resp["billing_receipt"] = snap.Receipt.Snapshot()
	}

	switch snap.Status {
	case job.StatusComplete:
		resp["result"] = snap.Result
		resp["study_pack_id"] = snap.StudyPackID
		if snap.Transcript != "" {
			resp["transcript"] = snap.Transcript
		}
		if len(snap.TranscriptSegments) > 0 {
			resp["transcript_segments"] = snap.TranscriptSegments
		}
		if snap.Mode != job.ModeInterview {
			if len(snap.Flashcards) > 0 {
				resp["flashcards"] = snap.Flashcards
			}
			if len(snap.TestQuestions) > 0 {
				resp["test_questions"] = snap.TestQuestions
			}
			if snap.StudyGenerationError != "" {
				resp["study_generation_error"] = snap.StudyGenerationError
			}
		} else {
			resp["interview_features_successful"] = snap.InterviewFeaturesSuccessful
			if snap.InterviewSummary != "" {
				resp["interview_summary"] = snap.InterviewSummary
			}
			if snap.InterviewSections != "" {
				resp["interview_sections"] = snap.InterviewSections
			}
			if snap.StudyGenerationError != "" {
				resp["study_generation_error"] = snap.StudyGenerationError
			}
		}
	case job.StatusError:
		resp["error"] = snap.Error
		resp["credit_refunded"] = snap.CreditRefunded
	}

	respondJSON(w, http.StatusOK, resp)
}

// downloadDocument renders one artifact of a completed job as a document.
// The route name is historical; the renderer decides the actual format.
func (h *Handlers) downloadDocument(w http.ResponseWriter, r *http.Request) {
	claims, _ := auth.FromContext(r.Context())
	snap, ok := h.ownedJob(claims, chi.URLParam(r, "jobID"))
	if !ok {
		respondJSON(w, http.StatusNotFound, map[string]any{"job_lost": true, "error": "job not found"})
		return
	}
	if snap.Status != job.StatusComplete {
		respondError(w, http.StatusBadRequest, "job is not complete yet")
		return
	}

	artifactType := r.URL.Query().Get("type")
	if artifactType == "" {
		artifactType = "result"
	}

	var title, body string
	switch artifactType {
	case "result":
		title, body = "Study Notes", snap.Result
	case "slides":
		title, body = "Slide Text", snap.SlideText
	case "transcript":
		title, body = "Transcript", snap.Transcript
	case "summary":
		title, body = "Interview Summary", snap.InterviewSummary
	case "sections":
		title, body = "Interview Sections", snap.InterviewSections
	case "combined":
		title, body = "Interview Analysis", snap.InterviewCombined
	default:
		respondError(w, http.StatusBadRequest, "unknown document type")
		return
	}
	if strings.TrimSpace(body) == "" {
		respondError(w, http.StatusBadRequest, "this job has no such artifact")
		return
	}

	data, contentType, ext, err := h.Renderer.Render(title, body)
	if err != nil {
		slog.Error("document render failed", "job_id", snap.ID, "type", artifactType, "err", err)
		respondError(w, http.StatusInternalServerError, "could not render the document")
		return
	}

	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition",
		fmt.Sprintf(`attachment; filename="%s_%s.%s"`, artifactType, shortID(snap.ID), ext))
	w.WriteHeader(http.StatusOK)
	w.Write(data)
}

func (h *Handlers) downloadCSV(w http.ResponseWriter, r *http.Request) {
	claims, _ := auth.FromContext(r.Context())
	snap, ok := h.ownedJob(claims, chi.URLParam(r, "jobID"))
	if !ok {
		respondJSON(w, http.StatusNotFound, map[string]any{"job_lost": true, "error": "job not found"})
		return
	}
	if snap.Status != job.StatusComplete {
		respondError(w, http.StatusBadRequest, "job is not complete yet")
		return
	}

	var data []byte
	var err error
	name := r.URL.Query().Get("type")
	switch name {
	case "", "flashcards":
		name = "flashcards"
		data, err = export.FlashcardsCSV(snap.Flashcards)
	case "test":
		data, err = export.TestQuestionsCSV(snap.TestQuestions)
	default:
		respondError(w, http.StatusBadRequest, "type must be flashcards or test")
		return
	}
	if err != nil {
		slog.Error("csv render failed", "job_id", snap.ID, "err", err)
		respondError(w, http.StatusInternalServerError, "could not render the csv")
		return
	}

	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition",
		fmt.Sprintf(`attachment; filename="%s_%s.csv"`, name, shortID(snap.ID)))
	w.WriteHeader(http.StatusOK)
	w.Write(data)
}

// importAudio downloads a recording from an allowlisted host ahead of the
// upload call and hands back a single-use token for it.
func (h *Handlers) importAudio(w http.ResponseWriter, r *http.Request) {
	claims, ok := auth.FromContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "authentication required")
		return
	}
	if !h.Allowlist.Allowed(claims.Email) {
		respondError(w, http.StatusForbidden, "your email domain does not have access to this service")
		return
	}

	if d := h.Limiter.Allow(r.Context(), "audio_import:"+claims.UID, h.Config.AudioImportRateLimit, h.Config.AudioImportRateWindow); !d.Allowed {
		h.rateLimited(w, r, "audio_import", d.RetryAfter,
			"Too many audio imports. Please wait before trying again.")
		return
	}

	var req validation.ImportAudioRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := req.Validate(); err != nil {
		respondValidation(w, err)
		return
	}

	path, filename, err := h.Fetcher.Fetch(r.Context(), "import_"+uuid.New().String()[:8], req.AudioURL)
	if err != nil {
		respondValidation(w, err)
		return
	}

	token := h.Tokens.Register(claims.UID, path, filename)
	respondJSON(w, http.StatusOK, map[string]any{
		"token":              token,
		"filename":           filename,
		"expires_in_seconds": int(h.Config.AudioImportTTL.Seconds()),
	})
}

func (h *Handlers) releaseImportedAudio(w http.ResponseWriter, r *http.Request) {
	claims, ok := auth.FromContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "authentication required")
		return
	}

	var req validation.ReleaseImportedAudioRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := req.Validate(); err != nil {
		respondValidation(w, err)
		return
	}

	if err := h.Tokens.Release(claims.UID, req.Token); err != nil {
		respondValidation(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]bool{"released": true})
}

func (h *Handlers) serveFiles(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "*")
	clean := filepath.Clean("/" + key)
	if strings.Contains(clean, "..") {
		respondError(w, http.StatusBadRequest, "invalid path")
		return
	}

	body, contentType, err := h.Files.GetFile(r.Context(), strings.TrimPrefix(clean, "/"))
	if err != nil {
		respondError(w, http.StatusNotFound, "file not found")
		return
	}
	defer body.Close()

	w.Header().Set("Content-Type", contentType)
	w.WriteHeader(http.StatusOK)
	if _, err := io.Copy(w, body); err != nil {
		slog.Warn("file stream interrupted", "key", key, "err", err)
	}
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func (h *Handlers) ownedJob(claims *auth.Claims, jobID string) (*job.Job, bool) {
	snap, ok := h.Registry.Snapshot(jobID)
	if !ok {
		return nil, false
	}
	if claims != nil && snap.UserID != claims.UID {
		return nil, false
	}
	return snap, true
}

// rateLimited writes the 429 contract the client backs off on: a Retry-After
// header in whole seconds and the same value in the body.
func (h *Handlers) rateLimited(w http.ResponseWriter, r *http.Request, limitName string, retryAfter time.Duration, msg string) {
	seconds := int(retryAfter.Seconds())
	if seconds < 1 {
		seconds = 1
	}
	if h.Users != nil {
		h.Users.LogRateLimitHit(r.Context(), limitName, retryAfter)
	}
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Retry-After", fmt.Sprintf("%d", seconds))
	w.WriteHeader(http.StatusTooManyRequests)
	json.NewEncoder(w).Encode(map[string]any{
		"error":               msg,
		"retry_after_seconds": seconds,
	})
}

func respondValidation(w http.ResponseWriter, err error) {
	var verr common.ValidationError
	switch {
	case errors.As(err, &verr):
		respondError(w, http.StatusBadRequest, verr.Message)
	case errors.Is(err, common.ErrImportTokenInvalid):
		respondError(w, http.StatusBadRequest, "the imported audio has expired; please import it again")
	case errors.Is(err, common.ErrImportTokenOwner):
		respondError(w, http.StatusForbidden, "this imported audio belongs to a different account")
	default:
		slog.Error("unexpected error during validation", "err", err)
		respondError(w, http.StatusInternalServerError, "internal error")
	}
}

func respondError(w http.ResponseWriter, code int, msg string) {
	respondJSON(w, code, map[string]string{"error": msg})
}

func respondJSON(w http.ResponseWriter, code int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		slog.Error("failed to encode response", "err", err)
	}
}
