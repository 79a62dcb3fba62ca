package ingest

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fedutinova/lectary/internal/common"
)

// RemoteFetcher downloads audio from allowlisted external hosts into the
// staging directory. It exists for recordings that live on meeting platforms
// and are too large to proxy through the browser.
type RemoteFetcher struct {
	staging      *Staging
	hostSuffixes []string
	client       *http.Client
}

func NewRemoteFetcher(staging *Staging, hostSuffixes []string) *RemoteFetcher {
	f := &RemoteFetcher{
		staging:      staging,
		hostSuffixes: hostSuffixes,
	}
	f.client = &http.Client{
		Timeout: 5 * time.Minute,
		// every redirect hop has to clear the same checks as the first URL
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			if len(via) >= 5 {
				return fmt.Errorf("too many redirects")
			}
			return f.validate(req.URL)
		},
	}
	return f
}

func (f *RemoteFetcher) validate(u *url.URL) error {
	return validateRemoteURL(u, f.hostSuffixes)
}

// Fetch downloads rawURL into staging under the given prefix and returns the
// staged path and the remote filename. HTTPS only, host allowlisted, private
// and loopback addresses rejected, size capped while streaming.
func (f *RemoteFetcher) Fetch(ctx context.Context, prefix, rawURL string) (string, string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", "", common.ValidationError{Field: "audio_url", Message: "invalid URL"}
	}
	if err := f.validate(u); err != nil {
		return "", "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return "", "", fmt.Errorf("build download request: %w", err)
	}
	resp, err := f.client.Do(req)
	if err != nil {
		return "", "", common.ValidationError{Field: "audio_url", Message: "could not download audio from URL"}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", "", common.ValidationError{Field: "audio_url", Message: fmt.Sprintf("remote server returned status %d", resp.StatusCode)}
	}
	if resp.ContentLength > f.staging.MaxAudioBytes {
		return "", "", common.ValidationError{Field: "audio_url", Message: "remote audio exceeds the size limit"}
	}

	filename := remoteFilename(u)
	path := filepath.Join(f.staging.Dir, fmt.Sprintf("%s_%s", prefix, sanitizeFilename(filename)))

	out, err := os.Create(path)
	if err != nil {
		return "", "", fmt.Errorf("create staged file: %w", err)
	}
	written, err := io.Copy(out, io.LimitReader(resp.Body, f.staging.MaxAudioBytes+1))
	out.Close()
	if err != nil {
		os.Remove(path)
		return "", "", fmt.Errorf("download remote audio: %w", err)
	}
	if written > f.staging.MaxAudioBytes {
		os.Remove(path)
		return "", "", common.ValidationError{Field: "audio_url", Message: "remote audio exceeds the size limit"}
	}
	if written == 0 || !LooksLikeAudio(path) {
		os.Remove(path)
		return "", "", common.ValidationError{Field: "audio_url", Message: "downloaded file is not valid audio"}
	}
	return path, filename, nil
}

func validateRemoteURL(u *url.URL, hostSuffixes []string) error {
	if u.Scheme != "https" {
		return common.ValidationError{Field: "audio_url", Message: "only https URLs are allowed"}
	}
	host := u.Hostname()
	if host == "" {
		return common.ValidationError{Field: "audio_url", Message: "invalid URL"}
	}
	if len(hostSuffixes) > 0 && !hostAllowed(host, hostSuffixes) {
		return common.ValidationError{Field: "audio_url", Message: "audio host is not allowed"}
	}

	// Resolve once up front; a host pointing at internal address space is a
	// request to fetch something this service must not reach.
	addrs, err := net.LookupIP(host)
	if err != nil {
		return common.ValidationError{Field: "audio_url", Message: "could not resolve audio host"}
	}
	for _, addr := range addrs {
		if addr.IsLoopback() || addr.IsPrivate() || addr.IsLinkLocalUnicast() || addr.IsUnspecified() {
			return common.ValidationError{Field: "audio_url", Message: "audio host is not allowed"}
		}
	}
	return nil
}

func hostAllowed(host string, suffixes []string) bool {
	host = strings.ToLower(host)
	for _, suffix := range suffixes {
		suffix = strings.ToLower(strings.TrimSpace(suffix))
		if suffix == "" {
			continue
		}
		if host == suffix || strings.HasSuffix(host, "."+suffix) {
			return true
		}
	}
	return false
}

func remoteFilename(u *url.URL) string {
	name := filepath.Base(u.Path)
	if name == "" || name == "/" || name == "." {
		name = "imported_audio"
	}
	if filepath.Ext(name) == "" {
		name += ".mp3"
	}
	return name
}
