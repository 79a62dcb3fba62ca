package ingest

import (
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/fedutinova/lectary/internal/common"
)

type stagedAudio struct {
	uid       string
	path      string
	filename  string
	expiresAt time.Time
}

// TokenStore hands out short-lived opaque tokens for audio that was imported
// ahead of the upload call. Tokens are single-use, owner-bound, and expire
// together with their staged file.
type TokenStore struct {
	mu     sync.Mutex
	tokens map[string]stagedAudio
	ttl    time.Duration
	now    func() time.Time
}

func NewTokenStore(ttl time.Duration) *TokenStore {
	return &TokenStore{
		tokens: make(map[string]stagedAudio),
		ttl:    ttl,
		now:    time.Now,
	}
}

// Register stores a staged audio path under a fresh token owned by uid.
func (s *TokenStore) Register(uid, path, filename string) string {
	token := uuid.NewString()
	s.mu.Lock()
	s.tokens[token] = stagedAudio{
		uid:       uid,
		path:      path,
		filename:  filename,
		expiresAt: s.now().Add(s.ttl),
	}
	s.mu.Unlock()
	return token
}

// Resolve returns the staged path for token. With consume set the token is
// removed from the store and ownership of the file passes to the caller.
// Expired or unknown tokens fail identically so callers cannot probe which.
func (s *TokenStore) Resolve(uid, token string, consume bool) (string, string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.tokens[token]
	if !ok || s.now().After(entry.expiresAt) {
		if ok {
			delete(s.tokens, token)
			removeQuiet(entry.path)
		}
		return "", "", common.ErrImportTokenInvalid
	}
	if entry.uid != uid {
		return "", "", common.ErrImportTokenOwner
	}
	if consume {
		delete(s.tokens, token)
	}
	return entry.path, entry.filename, nil
}

// Release discards a token and deletes its staged file. Used when the client
// abandons an import without starting a job.
func (s *TokenStore) Release(uid, token string) error {
	s.mu.Lock()
	entry, ok := s.tokens[token]
	if ok && entry.uid == uid {
		delete(s.tokens, token)
	}
	s.mu.Unlock()

	if !ok {
		return common.ErrImportTokenInvalid
	}
	if entry.uid != uid {
		return common.ErrImportTokenOwner
	}
	removeQuiet(entry.path)
	return nil
}

// SweepExpired drops expired tokens and their staged files. Returns how many
// entries were removed.
func (s *TokenStore) SweepExpired() int {
	now := s.now()
	var stale []stagedAudio

	s.mu.Lock()
	for token, entry := range s.tokens {
		if now.After(entry.expiresAt) {
			stale = append(stale, entry)
			delete(s.tokens, token)
		}
	}
	s.mu.Unlock()

	for _, entry := range stale {
		removeQuiet(entry.path)
	}
	return len(stale)
}

// StartSweeper runs SweepExpired on a fixed interval until done closes.
func (s *TokenStore) StartSweeper(done <-chan struct{}, interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				if n := s.SweepExpired(); n > 0 {
					slog.Info("removed expired imported audio", "count", n)
				}
			}
		}
	}()
}

func removeQuiet(path string) {
	if path == "" {
		return
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		slog.Warn("could not delete imported audio", "path", path, "err", err)
	}
}
