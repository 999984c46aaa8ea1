package infra_fingerprint

import (
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/google/uuid"
)

const fileName = "fingerprint"

// Store hands out the durable anonymous device identifier presented on
// every vote and results request. The value is generated once per device
// and persisted under a fixed path; if the file cannot be written the
// in-memory value still serves the current process, so voting is never
// blocked on storage.
type Store struct {
	path   string
	logger *slog.Logger

	once  sync.Once
	value string
}

type StoreOption func(*Store)

func WithLogger(logger *slog.Logger) StoreOption {
	return func(s *Store) {
		s.logger = logger
	}
}

func New(stateDir string, opts ...StoreOption) *Store {
	s := &Store{
		path:   filepath.Join(stateDir, fileName),
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Fingerprint never fails. Two calls in one process always return the same
// value; two processes sharing the state dir converge on the persisted one.
func (s *Store) Fingerprint() string {
	s.once.Do(s.resolve)
	return s.value
}

func (s *Store) resolve() {
	if raw, err := os.ReadFile(s.path); err == nil {
		existing := strings.TrimSpace(string(raw))
		if _, err := uuid.Parse(existing); err == nil {
			s.value = existing
			return
		}
		s.logger.Warn("discarding malformed fingerprint file",
			slog.String("path", s.path))
	}

	s.value = uuid.NewString()

	if err := os.MkdirAll(filepath.Dir(s.path), 0o700); err != nil {
		s.logger.Warn("fingerprint not persisted",
			slog.String("path", s.path), slog.String("error", err.Error()))
		return
	}
	if err := os.WriteFile(s.path, []byte(s.value+"\n"), 0o600); err != nil {
		s.logger.Warn("fingerprint not persisted",
			slog.String("path", s.path), slog.String("error", err.Error()))
	}
}
