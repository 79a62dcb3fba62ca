package http

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/fedutinova/lectary/internal/auth"
	"github.com/fedutinova/lectary/internal/billing"
	"github.com/fedutinova/lectary/internal/config"
	"github.com/fedutinova/lectary/internal/export"
	"github.com/fedutinova/lectary/internal/ingest"
	"github.com/fedutinova/lectary/internal/job"
	"github.com/fedutinova/lectary/internal/models"
	"github.com/fedutinova/lectary/internal/pipeline"
	"github.com/fedutinova/lectary/internal/ratelimit"
	"github.com/fedutinova/lectary/internal/registry"
	"github.com/fedutinova/lectary/internal/storage"
)

type fakeLedger struct {
	mu           sync.Mutex
	deductResult string
	slidesOK     bool
	deducts      int
	slideDeducts int
	refunds      int
}

func (f *fakeLedger) Deduct(_ context.Context, _ string, _ ...string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deducts++
	return f.deductResult, nil
}

func (f *fakeLedger) Refund(context.Context, string, string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.refunds++
	return nil
}

func (f *fakeLedger) DeductSlides(_ context.Context, _ string, _ int) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.slideDeducts++
	return f.slidesOK, nil
}

func (f *fakeLedger) RefundSlides(context.Context, string, int) error { return nil }

type fakeUsers struct {
	user *models.User
}

func (f *fakeUsers) GetOrCreateUser(context.Context, string, string) (*models.User, error) {
	return f.user, nil
}
func (f *fakeUsers) LogEvent(context.Context, models.AnalyticsEvent)      {}
func (f *fakeUsers) LogRateLimitHit(context.Context, string, time.Duration) {}

type fakeRunner struct {
	mu    sync.Mutex
	tasks []pipeline.Task
}

func (f *fakeRunner) Start(task pipeline.Task) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.tasks = append(f.tasks, task)
}

type fixture struct {
	handlers *Handlers
	registry registry.Registry
	ledger   *fakeLedger
	runner   *fakeRunner
	router   http.Handler
	token    string
}

func newFixture(t *testing.T, user *models.User) *fixture {
	t.Helper()

	cfg := config.Config{
		JWTSecret:             "test-secret",
		StorageMode:           "local",
		MaxSlidesBytes:        50 * 1024 * 1024,
		MaxAudioBytes:         500 * 1024 * 1024,
		MaxActiveJobsPerUser:  2,
		UploadRateLimit:       100,
		UploadRateWindow:      time.Minute,
		AudioImportRateLimit:  100,
		AudioImportRateWindow: time.Minute,
		JobTTL:                time.Hour,
		AudioImportTTL:        30 * time.Minute,
	}

	staging, err := ingest.NewStaging(t.TempDir(), cfg.MaxSlidesBytes, cfg.MaxAudioBytes)
	if err != nil {
		t.Fatalf("NewStaging: %v", err)
	}
	files, err := storage.NewLocalStorage(t.TempDir(), "http://localhost:8080/files")
	if err != nil {
		t.Fatalf("NewLocalStorage: %v", err)
	}

	f := &fixture{
		registry: registry.NewMemory(),
		ledger:   &fakeLedger{deductResult: models.CreditLectureStandard, slidesOK: true},
		runner:   &fakeRunner{},
	}
	f.handlers = &Handlers{
		Registry: f.registry,
		Runner:   f.runner,
		Ledger:   f.ledger,
		Users:    &fakeUsers{user: user},
		Limiter:  ratelimit.NewService(nil),
		Staging:  staging,
		Tokens:   ingest.NewTokenStore(cfg.AudioImportTTL),
		Renderer: export.NewPDFRenderer(),
		Files:    files,
		Config:   cfg,
	}

	r := chi.NewRouter()
	f.handlers.Routers(r)
	f.router = r

	token, err := auth.NewToken(cfg.JWTSecret, "lectary-test", "u1", "student@uni.edu", time.Minute)
	if err != nil {
		t.Fatalf("NewToken: %v", err)
	}
	f.token = token
	return f
}

func richUser() *models.User {
	return &models.User{
		UID:   "u1",
		Email: "student@uni.edu",
		Credits: map[string]int{
			models.CreditLectureStandard: 3,
			models.CreditSlides:          3,
			models.CreditInterviewShort:  3,
		},
	}
}

func (f *fixture) do(t *testing.T, req *http.Request) *httptest.ResponseRecorder {
	t.Helper()
	req.Header.Set("Authorization", "Bearer "+f.token)
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	return rec
}

func uploadRequest(t *testing.T, fields map[string]string, files map[string][]byte) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	for k, v := range fields {
		if err := w.WriteField(k, v); err != nil {
			t.Fatalf("write field: %v", err)
		}
	}
	for name, content := range files {
		filename := name + ".pdf"
		contentType := "application/pdf"
		if name == "audio" {
			filename = name + ".mp3"
			contentType = "audio/mpeg"
		}
		hdr := textproto.MIMEHeader{}
		hdr.Set("Content-Disposition", fmt.Sprintf(`form-data; name=%q; filename=%q`, name, filename))
		hdr.Set("Content-Type", contentType)
		fw, err := w.CreatePart(hdr)
		if err != nil {
			t.Fatalf("create form file: %v", err)
		}
		if _, err := fw.Write(content); err != nil {
			t.Fatalf("write form file: %v", err)
		}
	}
	w.Close()

	req := httptest.NewRequest(http.MethodPost, "/upload", &buf)
	req.Header.Set("Content-Type", w.FormDataContentType())
	return req
}

// minimal but correctly sniffable file contents
var (
	pdfBytes = []byte("%PDF-1.4\n1 0 obj\n<< /Type /Catalog >>\nendobj\ntrailer\n<< /Root 1 0 R >>\n%%EOF\n")
	mp3Bytes = append([]byte("ID3\x03\x00\x00\x00\x00\x00\x00"), bytes.Repeat([]byte{0xff, 0xfb, 0x90, 0x00}, 64)...)
)

func TestUpload_SpawnsJob(t *testing.T) {
	f := newFixture(t, richUser())

	req := uploadRequest(t,
		map[string]string{"mode": "lecture-notes"},
		map[string][]byte{"pdf": pdfBytes, "audio": mp3Bytes},
	)
	rec := f.do(t, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var resp map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	jobID := resp["job_id"]
	if jobID == "" {
		t.Fatalf("expected job_id in response")
	}

	snap, ok := f.registry.Snapshot(jobID)
	if !ok {
		t.Fatalf("job not in registry")
	}
	if snap.Status != job.StatusStarting {
		t.Fatalf("expected starting status, got %s", snap.Status)
	}
	if snap.CreditDeducted != models.CreditLectureStandard {
		t.Fatalf("expected lecture credit deducted, got %q", snap.CreditDeducted)
	}
	if snap.TotalSteps != 3 {
		t.Fatalf("expected 3 steps without study materials, got %d", snap.TotalSteps)
	}

	if len(f.runner.tasks) != 1 {
		t.Fatalf("expected one spawned task, got %d", len(f.runner.tasks))
	}
	if f.runner.tasks[0].SlidesPath == "" || f.runner.tasks[0].AudioPath == "" {
		t.Fatalf("task should carry staged paths: %+v", f.runner.tasks[0])
	}
}

func TestUpload_ActiveJobCapBeforeAnyWork(t *testing.T) {
	f := newFixture(t, richUser())
	for i := 0; i < 2; i++ {
		j := &job.Job{UserID: "u1", Status: job.StatusProcessing, Mode: job.ModeLectureNotes}
		if err := f.registry.Create(fmt.Sprintf("busy-%d", i), j); err != nil {
			t.Fatalf("seed job: %v", err)
		}
	}

	req := uploadRequest(t,
		map[string]string{"mode": "lecture-notes"},
		map[string][]byte{"pdf": pdfBytes, "audio": mp3Bytes},
	)
	rec := f.do(t, req)

	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", rec.Code)
	}
	if rec.Header().Get("Retry-After") == "" {
		t.Fatalf("429 must carry Retry-After header")
	}
	var resp map[string]any
	json.Unmarshal(rec.Body.Bytes(), &resp)
	if _, ok := resp["retry_after_seconds"]; !ok {
		t.Fatalf("429 body must carry retry_after_seconds: %s", rec.Body.String())
	}
	// rejected before credits or staging were touched
	if f.ledger.deducts != 0 {
		t.Fatalf("no deduction should happen after cap rejection")
	}
	if len(f.runner.tasks) != 0 {
		t.Fatalf("no task should be spawned")
	}
}

func TestUpload_InsufficientCreditsBeforeStaging(t *testing.T) {
	broke := richUser()
	broke.Credits = map[string]int{}
	f := newFixture(t, broke)

	req := uploadRequest(t,
		map[string]string{"mode": "lecture-notes"},
		map[string][]byte{"pdf": pdfBytes, "audio": mp3Bytes},
	)
	rec := f.do(t, req)

	if rec.Code != http.StatusPaymentRequired {
		t.Fatalf("expected 402, got %d: %s", rec.Code, rec.Body.String())
	}
	if f.ledger.deducts != 0 {
		t.Fatalf("gate must reject before any deduction attempt")
	}
}

func TestUpload_DeductRaceLossIs402(t *testing.T) {
	f := newFixture(t, richUser())
	f.ledger.deductResult = "" // balance vanished between gate and deduct

	req := uploadRequest(t,
		map[string]string{"mode": "lecture-notes"},
		map[string][]byte{"pdf": pdfBytes, "audio": mp3Bytes},
	)
	rec := f.do(t, req)

	if rec.Code != http.StatusPaymentRequired {
		t.Fatalf("expected 402 on deduct race loss, got %d", rec.Code)
	}
	if len(f.runner.tasks) != 0 {
		t.Fatalf("no task should be spawned")
	}
}

func TestUpload_InterviewExtrasGate(t *testing.T) {
	user := richUser()
	user.Credits[models.CreditSlides] = 1
	f := newFixture(t, user)

	req := uploadRequest(t,
		map[string]string{"mode": "interview", "interview_features": "both"},
		map[string][]byte{"audio": mp3Bytes},
	)
	rec := f.do(t, req)

	if rec.Code != http.StatusPaymentRequired {
		t.Fatalf("expected 402 when extras exceed slides balance, got %d: %s", rec.Code, rec.Body.String())
	}
	// rejected at the gate: neither credit type touched
	if f.ledger.deducts != 0 || f.ledger.slideDeducts != 0 {
		t.Fatalf("gate must reject before deductions, got %d/%d", f.ledger.deducts, f.ledger.slideDeducts)
	}
}

func TestUpload_BadModeIs400(t *testing.T) {
	f := newFixture(t, richUser())
	req := uploadRequest(t, map[string]string{"mode": "podcast"}, nil)
	if rec := f.do(t, req); rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for unknown mode, got %d", rec.Code)
	}
}

func TestUpload_MissingAudioIs400(t *testing.T) {
	f := newFixture(t, richUser())

	req := uploadRequest(t,
		map[string]string{"mode": "lecture-notes"},
		map[string][]byte{"pdf": pdfBytes},
	)
	rec := f.do(t, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 without an audio part, got %d: %s", rec.Code, rec.Body.String())
	}
	if len(f.runner.tasks) != 0 {
		t.Fatalf("no task should be spawned")
	}
}

func TestUpload_RateLimited(t *testing.T) {
	f := newFixture(t, richUser())
	f.handlers.Config.UploadRateLimit = 1

	first := f.do(t, uploadRequest(t,
		map[string]string{"mode": "lecture-notes"},
		map[string][]byte{"pdf": pdfBytes, "audio": mp3Bytes},
	))
	if first.Code != http.StatusOK {
		t.Fatalf("first upload should pass, got %d", first.Code)
	}

	second := f.do(t, uploadRequest(t,
		map[string]string{"mode": "lecture-notes"},
		map[string][]byte{"pdf": pdfBytes, "audio": mp3Bytes},
	))
	if second.Code != http.StatusTooManyRequests {
		t.Fatalf("second upload should be rate limited, got %d", second.Code)
	}
	if second.Header().Get("Retry-After") == "" {
		t.Fatalf("429 must carry Retry-After header")
	}
}

func TestStatus_UnknownJobIsLost(t *testing.T) {
	f := newFixture(t, richUser())

	req := httptest.NewRequest(http.MethodGet, "/status/nope", nil)
	rec := f.do(t, req)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
	var resp map[string]any
	json.Unmarshal(rec.Body.Bytes(), &resp)
	if resp["job_lost"] != true {
		t.Fatalf("404 body must carry job_lost: true, got %s", rec.Body.String())
	}
}

func TestStatus_CompleteWithReceipt(t *testing.T) {
	f := newFixture(t, richUser())
	j := &job.Job{
		UserID:          "u1",
		Mode:            job.ModeLectureNotes,
		Status:          job.StatusComplete,
		Step:            3,
		TotalSteps:      3,
		StepDescription: "Complete!",
		Result:          "notes",
		CreditDeducted:  models.CreditLectureStandard,
		Receipt:         billing.NewReceipt(map[string]int{models.CreditLectureStandard: 1}),
	}
	if err := f.registry.Create("done-1", j); err != nil {
		t.Fatalf("seed job: %v", err)
	}

	rec := f.do(t, httptest.NewRequest(http.MethodGet, "/status/done-1", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var resp map[string]any
	json.Unmarshal(rec.Body.Bytes(), &resp)
	if resp["result"] != "notes" {
		t.Fatalf("complete status must include result: %s", rec.Body.String())
	}
	if _, ok := resp["billing_receipt"]; !ok {
		t.Fatalf("non-empty receipt must be included: %s", rec.Body.String())
	}
}

func TestStatus_ErrorIncludesRefundFlag(t *testing.T) {
	f := newFixture(t, richUser())
	j := &job.Job{
		UserID:         "u1",
		Mode:           job.ModeLectureNotes,
		Status:         job.StatusError,
		Error:          "Audio transcription failed. Your credit has been refunded.",
		CreditRefunded: true,
	}
	if err := f.registry.Create("failed-1", j); err != nil {
		t.Fatalf("seed job: %v", err)
	}

	rec := f.do(t, httptest.NewRequest(http.MethodGet, "/status/failed-1", nil))
	var resp map[string]any
	json.Unmarshal(rec.Body.Bytes(), &resp)
	if resp["credit_refunded"] != true {
		t.Fatalf("error status must include credit_refunded: %s", rec.Body.String())
	}
	if _, ok := resp["billing_receipt"]; ok {
		t.Fatalf("empty receipt must be omitted: %s", rec.Body.String())
	}
}

func TestStatus_OtherUsersJobHidden(t *testing.T) {
	f := newFixture(t, richUser())
	j := &job.Job{UserID: "someone-else", Status: job.StatusProcessing, Mode: job.ModeInterview}
	if err := f.registry.Create("foreign-1", j); err != nil {
		t.Fatalf("seed job: %v", err)
	}

	if rec := f.do(t, httptest.NewRequest(http.MethodGet, "/status/foreign-1", nil)); rec.Code != http.StatusNotFound {
		t.Fatalf("foreign job must look lost, got %d", rec.Code)
	}
}

func TestDownload_RequiresCompleteJob(t *testing.T) {
	f := newFixture(t, richUser())
	j := &job.Job{UserID: "u1", Status: job.StatusProcessing, Mode: job.ModeLectureNotes}
	if err := f.registry.Create("running-1", j); err != nil {
		t.Fatalf("seed job: %v", err)
	}

	rec := f.do(t, httptest.NewRequest(http.MethodGet, "/download-docx/running-1?type=result", nil))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for incomplete job, got %d", rec.Code)
	}
}

func TestDownload_RendersDocument(t *testing.T) {
	f := newFixture(t, richUser())
	j := &job.Job{
		UserID:     "u1",
		Status:     job.StatusComplete,
		Mode:       job.ModeLectureNotes,
		Result:     "# Notes\n\n- point one\n- point two",
		TotalSteps: 3,
		Step:       3,
	}
	if err := f.registry.Create("done-2", j); err != nil {
		t.Fatalf("seed job: %v", err)
	}

	rec := f.do(t, httptest.NewRequest(http.MethodGet, "/download-docx/done-2?type=result", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/pdf" {
		t.Fatalf("expected pdf content type, got %q", ct)
	}
	if !bytes.HasPrefix(rec.Body.Bytes(), []byte("%PDF")) {
		t.Fatalf("response should be a PDF document")
	}
}

func TestDownloadCSV_Flashcards(t *testing.T) {
	f := newFixture(t, richUser())
	j := &job.Job{
		UserID: "u1",
		Status: job.StatusComplete,
		Mode:   job.ModeSlidesOnly,
		Flashcards: []job.Flashcard{
			{Front: "What is DNS?", Back: "Name resolution."},
		},
	}
	if err := f.registry.Create("done-3", j); err != nil {
		t.Fatalf("seed job: %v", err)
	}

	rec := f.do(t, httptest.NewRequest(http.MethodGet, "/download-flashcards-csv/done-3?type=flashcards", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	body := rec.Body.String()
	if !bytes.Contains([]byte(body), []byte("question,answer")) || !bytes.Contains([]byte(body), []byte("What is DNS?")) {
		t.Fatalf("unexpected csv body: %s", body)
	}
}

func TestServeFiles_ReadsFromStorage(t *testing.T) {
	f := newFixture(t, richUser())

	result, err := f.handlers.Files.UploadFile(context.Background(), "lecture.mp3", bytes.NewReader(mp3Bytes), "audio/mpeg")
	if err != nil {
		t.Fatalf("UploadFile: %v", err)
	}

	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/files/"+result.Key, nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if ct := rec.Header().Get("Content-Type"); ct != "audio/mpeg" {
		t.Fatalf("expected audio/mpeg, got %q", ct)
	}
	if !bytes.Equal(rec.Body.Bytes(), mp3Bytes) {
		t.Fatalf("served body does not match the stored file")
	}

	rec = httptest.NewRecorder()
	f.router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/files/media/nope.mp3", nil))
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for a missing key, got %d", rec.Code)
	}
}

func TestUpload_RejectsUnauthenticated(t *testing.T) {
	f := newFixture(t, richUser())
	req := uploadRequest(t, map[string]string{"mode": "lecture-notes"}, nil)
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req) // no bearer token
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %d", rec.Code)
	}
}

func TestReleaseImportedAudio(t *testing.T) {
	f := newFixture(t, richUser())
	token := f.handlers.Tokens.Register("u1", "", "audio.mp3")

	body, _ := json.Marshal(map[string]string{"token": token})
	req := httptest.NewRequest(http.MethodPost, "/release-imported-audio", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := f.do(t, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	// second release of the same token fails
	req = httptest.NewRequest(http.MethodPost, "/release-imported-audio", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if rec := f.do(t, req); rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for spent token, got %d", rec.Code)
	}
}
