package ingest

import (
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"

	"github.com/fedutinova/lectary/internal/common"
)

var allowedAudioExtensions = map[string]bool{
	".mp3": true, ".m4a": true, ".wav": true, ".aac": true, ".ogg": true, ".flac": true,
}

var allowedAudioMimePrefixes = []string{
	"audio/",
	"video/mp4", // m4a containers frequently sniff as video/mp4
}

// Staging validates uploads and stages them on local disk for the pipeline.
// Every staged path is prefixed with the job id, so concurrent jobs never
// collide and cleanup can be done by path list alone.
type Staging struct {
	Dir            string
	MaxSlidesBytes int64
	MaxAudioBytes  int64
}

func NewStaging(dir string, maxSlidesBytes, maxAudioBytes int64) (*Staging, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create staging directory: %w", err)
	}
	return &Staging{
		Dir:            dir,
		MaxSlidesBytes: maxSlidesBytes,
		MaxAudioBytes:  maxAudioBytes,
	}, nil
}

// StageSlides saves an uploaded slides file and returns a path to a PDF.
// PPTX uploads are converted through LibreOffice when the binary is present;
// anything failing extension, size, or signature checks is rejected and
// nothing is left on disk.
func (s *Staging) StageSlides(jobID string, file *multipart.FileHeader) (string, error) {
	ext := strings.ToLower(filepath.Ext(file.Filename))
	if ext != ".pdf" && ext != ".pptx" {
		return "", common.ValidationError{Field: "pdf", Message: "slides must be a PDF or PPTX file"}
	}
	if file.Size <= 0 || file.Size > s.MaxSlidesBytes {
		return "", common.ValidationError{Field: "pdf", Message: "slides file is empty or exceeds the size limit"}
	}

	rawPath := filepath.Join(s.Dir, fmt.Sprintf("%s_slides%s", jobID, ext))
	if err := saveUpload(file, rawPath); err != nil {
		return "", err
	}

	mtype, err := mimetype.DetectFile(rawPath)
	if err != nil {
		os.Remove(rawPath)
		return "", fmt.Errorf("sniff slides file: %w", err)
	}

	switch {
	case ext == ".pdf" && mtype.Is("application/pdf"):
		return rawPath, nil
	case ext == ".pptx" && (mtype.Is("application/vnd.openxmlformats-officedocument.presentationml.presentation") || mtype.Is("application/zip")):
		pdfPath := filepath.Join(s.Dir, fmt.Sprintf("%s_slides.pdf", jobID))
		if err := convertPPTXToPDF(rawPath, pdfPath, s.Dir); err != nil {
			os.Remove(rawPath)
			return "", common.ValidationError{Field: "pdf", Message: "could not convert PPTX slides; please upload a PDF"}
		}
		os.Remove(rawPath)
		return pdfPath, nil
	default:
		os.Remove(rawPath)
		return "", common.ValidationError{Field: "pdf", Message: "slides file content does not match its extension"}
	}
}

// StageAudio saves an uploaded audio file after extension, declared
// content-type, size, and signature checks.
func (s *Staging) StageAudio(jobID string, file *multipart.FileHeader) (string, error) {
	ext := strings.ToLower(filepath.Ext(file.Filename))
	if !allowedAudioExtensions[ext] {
		return "", common.ValidationError{Field: "audio", Message: "invalid audio file"}
	}
	declared := strings.ToLower(file.Header.Get("Content-Type"))
	if declared != "" && !audioContentType(declared) {
		return "", common.ValidationError{Field: "audio", Message: "invalid audio content type"}
	}
	if file.Size <= 0 || file.Size > s.MaxAudioBytes {
		return "", common.ValidationError{Field: "audio", Message: "audio exceeds the server limit or is empty"}
	}

	path := filepath.Join(s.Dir, fmt.Sprintf("%s_%s", jobID, sanitizeFilename(file.Filename)))
	if err := saveUpload(file, path); err != nil {
		return "", err
	}

	if !LooksLikeAudio(path) {
		os.Remove(path)
		return "", common.ValidationError{Field: "audio", Message: "uploaded audio file is invalid or unsupported"}
	}
	return path, nil
}

// LooksLikeAudio sniffs the file signature; extension allowlists alone are
// trivially spoofed.
func LooksLikeAudio(path string) bool {
	mtype, err := mimetype.DetectFile(path)
	if err != nil {
		return false
	}
	return audioContentType(mtype.String())
}

func audioContentType(contentType string) bool {
	for _, prefix := range allowedAudioMimePrefixes {
		if strings.HasPrefix(contentType, prefix) {
			return true
		}
	}
	return false
}

// Cleanup removes staged files, logging rather than failing on errors:
// cleanup runs on every pipeline exit path and must never mask the real
// outcome.
func (s *Staging) Cleanup(paths []string) {
	for _, path := range paths {
		if path == "" {
			continue
		}
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			slog.Warn("could not delete staged file", "path", path, "err", err)
		}
	}
}

func saveUpload(file *multipart.FileHeader, dst string) error {
	src, err := file.Open()
	if err != nil {
		return fmt.Errorf("open upload: %w", err)
	}
	defer src.Close()

	out, err := os.Create(dst)
	if err != nil {
		return fmt.Errorf("create staged file: %w", err)
	}
	defer out.Close()

	if _, err := io.Copy(out, src); err != nil {
		os.Remove(dst)
		return fmt.Errorf("write staged file: %w", err)
	}
	return nil
}

func sanitizeFilename(name string) string {
	name = filepath.Base(name)
	name = strings.ReplaceAll(name, " ", "_")
	var b strings.Builder
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9',
			r == '.', r == '-', r == '_':
			b.WriteRune(r)
		}
	}
	if b.Len() == 0 {
		return "upload"
	}
	return b.String()
}

func convertPPTXToPDF(srcPath, dstPath, workDir string) error {
	soffice, err := exec.LookPath("soffice")
	if err != nil {
		return fmt.Errorf("soffice not available: %w", err)
	}
	cmd := exec.Command(soffice, "--headless", "--convert-to", "pdf", "--outdir", workDir, srcPath)
	if out, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("pptx conversion failed: %w: %s", err, string(out))
	}
	// soffice names the output after the input basename
	produced := filepath.Join(workDir, strings.TrimSuffix(filepath.Base(srcPath), filepath.Ext(srcPath))+".pdf")
	if produced != dstPath {
		if err := os.Rename(produced, dstPath); err != nil {
			return fmt.Errorf("move converted pdf: %w", err)
		}
	}
	return nil
}
