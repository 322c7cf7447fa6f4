package persist

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"time"
	"unicode"

	"github.com/miguelbarbosa0221/automatizacao-plantao-sub000/schema"
	"pkt.systems/pslog"
)

// DraftSnapshot captures a user's in-progress demand rows.
type DraftSnapshot struct {
	Rows      []schema.DemandRow `json:"rows"`
	UpdatedAt time.Time          `json:"updated_at"`
}

// Store persists per-identity drafts to disk. The last write wins.
type Store struct {
	dir string
	log pslog.Logger
}

// NewStore constructs a persistent store at the given directory.
func NewStore(dir string) (*Store, error) {
	return NewStoreWithLogger(dir, nil)
}

// NewStoreWithLogger constructs a persistent store with logging.
func NewStoreWithLogger(dir string, logger pslog.Logger) (*Store, error) {
	if strings.TrimSpace(dir) == "" {
		return nil, errors.New("draft directory is required")
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, err
	}
	if logger != nil {
		logger = logger.With("draft_dir", dir)
	}
	return &Store{dir: dir, log: logger}, nil
}

// Load reads the user's draft from disk.
func (s *Store) Load(userID schema.UserID) (DraftSnapshot, bool, error) {
	path := s.pathForUser(userID)
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			if s.log != nil {
				s.log.Debug("draft load miss", "user", userID)
			}
			return DraftSnapshot{}, false, nil
		}
		if s.log != nil {
			s.log.Warn("draft load failed", "user", userID, "err", err)
		}
		return DraftSnapshot{}, false, err
	}
	var snapshot DraftSnapshot
	if err := json.Unmarshal(data, &snapshot); err != nil {
		if s.log != nil {
			s.log.Warn("draft load failed", "user", userID, "err", err)
		}
		return DraftSnapshot{}, false, err
	}
	if s.log != nil {
		s.log.Debug("draft load ok", "user", userID, "rows", len(snapshot.Rows))
	}
	return snapshot, true, nil
}

// Save writes the user's draft to disk.
func (s *Store) Save(userID schema.UserID, snapshot DraftSnapshot) error {
	path := s.pathForUser(userID)
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		if s.log != nil {
			s.log.Warn("draft save failed", "user", userID, "err", err)
		}
		return err
	}
	data, err := json.MarshalIndent(snapshot, "", "  ")
	if err != nil {
		if s.log != nil {
			s.log.Warn("draft save failed", "user", userID, "err", err)
		}
		return err
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), "draft-*.json")
	if err != nil {
		if s.log != nil {
			s.log.Warn("draft save failed", "user", userID, "err", err)
		}
		return err
	}
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
		if s.log != nil {
			s.log.Warn("draft save failed", "user", userID, "err", err)
		}
		return err
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
		if s.log != nil {
			s.log.Warn("draft save failed", "user", userID, "err", err)
		}
		return err
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmp.Name())
		if s.log != nil {
			s.log.Warn("draft save failed", "user", userID, "err", err)
		}
		return err
	}
	if err := os.Chmod(tmp.Name(), 0o600); err != nil {
		_ = os.Remove(tmp.Name())
		if s.log != nil {
			s.log.Warn("draft save failed", "user", userID, "err", err)
		}
		return err
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		if s.log != nil {
			s.log.Warn("draft save failed", "user", userID, "err", err)
		}
		return err
	}
	if s.log != nil {
		s.log.Trace("draft save ok", "user", userID, "rows", len(snapshot.Rows))
	}
	return nil
}

// Clear removes the user's draft. Clearing a missing draft succeeds.
func (s *Store) Clear(userID schema.UserID) error {
	if err := os.Remove(s.pathForUser(userID)); err != nil && !errors.Is(err, os.ErrNotExist) {
		if s.log != nil {
			s.log.Warn("draft clear failed", "user", userID, "err", err)
		}
		return err
	}
	if s.log != nil {
		s.log.Debug("draft cleared", "user", userID)
	}
	return nil
}

func (s *Store) pathForUser(userID schema.UserID) string {
	name := sanitize(string(userID))
	if name == "" {
		name = "unknown"
	}
	return filepath.Join(s.dir, name+".json")
}

func sanitize(value string) string {
	var b strings.Builder
	for _, r := range value {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
			continue
		}
		if r == '-' || r == '_' || r == '.' {
			b.WriteRune(r)
			continue
		}
		b.WriteRune('_')
	}
	return b.String()
}
