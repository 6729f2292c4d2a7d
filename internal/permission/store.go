package permission

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/relaydev/clauder/internal/logging"
	"github.com/relaydev/clauder/internal/storage"
)

// Record is one stored permission decision.
type Record struct {
	Action    string    `json:"action"`
	Target    string    `json:"target"`
	Outcome   Outcome   `json:"outcome"`
	Scope     Scope     `json:"scope"`
	CreatedAt time.Time `json:"created_at"`
}

// document is the on-disk shape of the store file.
type document struct {
	Permissions map[string]Record `json:"permissions"`
}

// Store is the persistent permission table: a single JSON document keyed
// by fingerprint. Writes go through storage.Update, which holds a file
// lock for the read-modify-write cycle and replaces the file atomically,
// so independent processes can share one store. Reads are served from an
// in-memory snapshot that is refreshed whenever the file's mtime moves.
type Store struct {
	db   *storage.Storage
	key  []string
	path string

	mu     sync.Mutex
	doc    document
	mod    time.Time
	loaded bool
}

// NewStore opens the store at path. The file is created on first write.
func NewStore(path string) *Store {
	dir := filepath.Dir(path)
	key := strings.TrimSuffix(filepath.Base(path), ".json")
	return &Store{
		db:   storage.New(dir),
		key:  []string{key},
		path: filepath.Join(dir, key+".json"),
	}
}

// Path returns the store file's location.
func (s *Store) Path() string {
	return s.path
}

// Get looks up a fingerprint.
func (s *Store) Get(ctx context.Context, fingerprint string) (Record, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.refreshLocked(ctx); err != nil {
		return Record{}, false, err
	}
	rec, ok := s.doc.Permissions[fingerprint]
	return rec, ok, nil
}

// Put stores a record under a fingerprint, preserving concurrent
// writers' entries.
func (s *Store) Put(ctx context.Context, fingerprint string, rec Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var doc document
	err := s.db.Update(ctx, s.key, &doc, func() error {
		if doc.Permissions == nil {
			doc.Permissions = make(map[string]Record)
		}
		doc.Permissions[fingerprint] = rec
		return nil
	})
	if err != nil {
		return err
	}

	s.doc = doc
	s.stampLocked()
	return nil
}

// Remove deletes one record. Removing an absent fingerprint is not an
// error.
func (s *Store) Remove(ctx context.Context, fingerprint string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var doc document
	err := s.db.Update(ctx, s.key, &doc, func() error {
		delete(doc.Permissions, fingerprint)
		return nil
	})
	if err != nil {
		return err
	}

	s.doc = doc
	s.stampLocked()
	return nil
}

// All returns a copy of every stored record, keyed by fingerprint.
func (s *Store) All(ctx context.Context) (map[string]Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.refreshLocked(ctx); err != nil {
		return nil, err
	}
	out := make(map[string]Record, len(s.doc.Permissions))
	for k, v := range s.doc.Permissions {
		out[k] = v
	}
	return out, nil
}

// Clear removes every record.
func (s *Store) Clear(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var doc document
	err := s.db.Update(ctx, s.key, &doc, func() error {
		doc.Permissions = make(map[string]Record)
		return nil
	})
	if err != nil {
		return err
	}

	s.doc = doc
	s.stampLocked()
	return nil
}

// refreshLocked reloads the snapshot when the file changed since the
// last load. A missing file is an empty store; an unreadable document is
// logged and treated as empty rather than wedging every query.
func (s *Store) refreshLocked(ctx context.Context) error {
	info, err := os.Stat(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			s.doc = document{}
			s.mod = time.Time{}
			s.loaded = true
			return nil
		}
		return err
	}

	if s.loaded && info.ModTime().Equal(s.mod) {
		return nil
	}

	var doc document
	if err := s.db.Get(ctx, s.key, &doc); err != nil && !errors.Is(err, storage.ErrNotFound) {
		logging.Warn().Err(err).Str("path", s.path).Msg("unreadable permission store, treating as empty")
		doc = document{}
	}

	s.doc = doc
	s.mod = info.ModTime()
	s.loaded = true
	return nil
}

// stampLocked records the current file mtime so the snapshot written by
// our own update is not immediately re-read.
func (s *Store) stampLocked() {
	if info, err := os.Stat(s.path); err == nil {
		s.mod = info.ModTime()
	}
	s.loaded = true
}
