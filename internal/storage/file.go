package storage

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"

	logx "castbot/pkg/logx"
)

const fileCompactEvery = 500

// fileStore is a dependency-free persistence backend.
//
// Files:
//   - <prefix>.audit.jsonl                (append-only JSON Lines)
//   - <prefix>.subscribers.json           (snapshot, ordered id list)
//   - <prefix>.subscribers.journal.jsonl  (append-only add/remove journal)
//
// The journal is compacted into the snapshot every fileCompactEvery writes
// and on Close.
type fileStore struct {
	log logx.Logger

	mu sync.Mutex

	auditFile *os.File

	snapshotPath string
	journalFile  *os.File
	order        []string
	index        map[string]struct{}

	writes int
}

type journalRecord struct {
	Op string `json:"op"` // "add" | "remove"
	ID string `json:"id"`
}

func openFile(cfg Config, log logx.Logger) (Store, error) {
	path := strings.TrimSpace(cfg.Path)
	if path == "" {
		return nil, errors.New("storage.path is required for file driver")
	}

	dir := filepath.Dir(path)
	base := filepath.Base(path)
	base = strings.TrimSuffix(base, filepath.Ext(base))
	prefix := filepath.Join(dir, base)

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}

	auditPath := prefix + ".audit.jsonl"
	snapPath := prefix + ".subscribers.json"
	journalPath := prefix + ".subscribers.journal.jsonl"

	af, err := os.OpenFile(auditPath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		return nil, err
	}

	s := &fileStore{
		log:          log,
		auditFile:    af,
		snapshotPath: snapPath,
		index:        map[string]struct{}{},
	}
	if err := s.loadSnapshot(); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Warn("subscriber snapshot unreadable", logx.String("path", snapPath), logx.Err(err))
	}
	if err := s.replayJournal(journalPath); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Warn("subscriber journal unreadable", logx.String("path", journalPath), logx.Err(err))
	}

	jf, err := os.OpenFile(journalPath, os.O_CREATE|os.O_APPEND|os.O_RDWR, 0o600)
	if err != nil {
		_ = af.Close()
		return nil, err
	}
	s.journalFile = jf
	return s, nil
}

func (s *fileStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.journalFile == nil {
		return nil
	}
	if err := s.compactLocked(); err != nil {
		s.log.Warn("subscriber compact failed", logx.Err(err))
	}
	err1 := s.auditFile.Close()
	err2 := s.journalFile.Close()
	s.auditFile = nil
	s.journalFile = nil
	return errors.Join(err1, err2)
}

func (s *fileStore) AppendAudit(_ context.Context, e AuditEntry) error {
	stampAudit(&e)
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.auditFile == nil {
		return ErrDisabled
	}
	return json.NewEncoder(s.auditFile).Encode(e)
}

func (s *fileStore) AddSubscriber(_ context.Context, id string) (bool, error) {
	id, err := NormalizeID(id)
	if err != nil {
		return false, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.journalFile == nil {
		return false, ErrDisabled
	}
	if _, ok := s.index[id]; ok {
		return false, nil
	}
	if err := s.appendLocked(journalRecord{Op: "add", ID: id}); err != nil {
		return false, err
	}
	s.apply(journalRecord{Op: "add", ID: id})
	return true, nil
}

func (s *fileStore) RemoveSubscriber(_ context.Context, id string) (bool, error) {
	id, err := NormalizeID(id)
	if err != nil {
		return false, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.journalFile == nil {
		return false, ErrDisabled
	}
	if _, ok := s.index[id]; !ok {
		return false, nil
	}
	if err := s.appendLocked(journalRecord{Op: "remove", ID: id}); err != nil {
		return false, err
	}
	s.apply(journalRecord{Op: "remove", ID: id})
	return true, nil
}

func (s *fileStore) ListSubscribers(context.Context) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.journalFile == nil {
		return nil, ErrDisabled
	}
	return slices.Clone(s.order), nil
}

func (s *fileStore) CountSubscribers(context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.journalFile == nil {
		return 0, ErrDisabled
	}
	return len(s.order), nil
}

func (s *fileStore) HasSubscriber(_ context.Context, id string) (bool, error) {
	id, err := NormalizeID(id)
	if err != nil {
		return false, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.journalFile == nil {
		return false, ErrDisabled
	}
	_, ok := s.index[id]
	return ok, nil
}

func (s *fileStore) apply(r journalRecord) {
	switch r.Op {
	case "add":
		if _, ok := s.index[r.ID]; ok {
			return
		}
		s.index[r.ID] = struct{}{}
		s.order = append(s.order, r.ID)
	case "remove":
		if _, ok := s.index[r.ID]; !ok {
			return
		}
		delete(s.index, r.ID)
		if i := slices.Index(s.order, r.ID); i >= 0 {
			s.order = slices.Delete(s.order, i, i+1)
		}
	}
}

func (s *fileStore) appendLocked(r journalRecord) error {
	if err := json.NewEncoder(s.journalFile).Encode(r); err != nil {
		return err
	}
	s.writes++
	if s.writes%fileCompactEvery == 0 {
		if err := s.compactLocked(); err != nil {
			s.log.Debug("subscriber compact failed", logx.Err(err))
		}
	}
	return nil
}

func (s *fileStore) compactLocked() error {
	tmp := s.snapshotPath + ".tmp"
	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o600)
	if err != nil {
		return err
	}
	ids := s.order
	if ids == nil {
		ids = []string{}
	}
	if err := json.NewEncoder(f).Encode(ids); err != nil {
		_ = f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	if err := os.Rename(tmp, s.snapshotPath); err != nil {
		return err
	}
	if err := s.journalFile.Truncate(0); err != nil {
		return err
	}
	_, err = s.journalFile.Seek(0, 2)
	return err
}

func (s *fileStore) loadSnapshot() error {
	f, err := os.Open(s.snapshotPath)
	if err != nil {
		return err
	}
	defer f.Close()
	var ids []string
	if err := json.NewDecoder(f).Decode(&ids); err != nil {
		return err
	}
	for _, id := range ids {
		s.apply(journalRecord{Op: "add", ID: id})
	}
	return nil
}

func (s *fileStore) replayJournal(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		var r journalRecord
		if err := json.Unmarshal(sc.Bytes(), &r); err != nil || r.ID == "" {
			continue
		}
		s.apply(r)
	}
	return sc.Err()
}
