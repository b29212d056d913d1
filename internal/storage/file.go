package storage

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	logx "nudged/pkg/logx"
)

// fileStore is a dependency-free persistence backend.
//
// Files:
//   - <prefix>.delivery.jsonl        (append-only JSON Lines)
//   - <prefix>.stamps.snapshot.json  (periodic snapshot)
//   - <prefix>.stamps.journal.jsonl  (append-only journal)
//   - <prefix>.settings.json         (single settings document)
//
// The journal is periodically compacted into the snapshot.
type fileStore struct {
	log logx.Logger

	mu sync.Mutex

	deliveryFile *os.File

	stampSnapshotPath string
	stampJournalFile  *os.File
	stamps            map[string]int64 // unix milli

	settingsPath string

	stampWrites int
}

type stampRecord struct {
	Key string `json:"key"`
	At  int64  `json:"at"`
}

func openFile(cfg Config, log logx.Logger) (Store, error) {
	path := strings.TrimSpace(cfg.Path)
	if path == "" {
		return nil, errors.New("storage.path is required for file driver")
	}
	if log.IsZero() {
		log = logx.Nop()
	}

	dir := filepath.Dir(path)
	base := filepath.Base(path)
	base = strings.TrimSuffix(base, filepath.Ext(base))
	prefix := filepath.Join(dir, base)

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}

	deliveryPath := prefix + ".delivery.jsonl"
	snapPath := prefix + ".stamps.snapshot.json"
	journalPath := prefix + ".stamps.journal.jsonl"
	settingsPath := prefix + ".settings.json"

	df, err := os.OpenFile(deliveryPath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		return nil, err
	}

	// Load stamps from snapshot + journal.
	stamps := map[string]int64{}
	_ = loadStampSnapshot(snapPath, stamps)
	_ = replayStampJournal(journalPath, stamps)

	jf, err := os.OpenFile(journalPath, os.O_CREATE|os.O_APPEND|os.O_RDWR, 0o600)
	if err != nil {
		_ = df.Close()
		return nil, err
	}

	return &fileStore{
		log:               log,
		deliveryFile:      df,
		stampSnapshotPath: snapPath,
		stampJournalFile:  jf,
		stamps:            stamps,
		settingsPath:      settingsPath,
	}, nil
}

func (s *fileStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	var err1, err2 error
	if s.deliveryFile != nil {
		err1 = s.deliveryFile.Close()
		s.deliveryFile = nil
	}
	if s.stampJournalFile != nil {
		err2 = s.stampJournalFile.Close()
		s.stampJournalFile = nil
	}
	if err1 != nil {
		return err1
	}
	return err2
}

func (s *fileStore) AppendDelivery(ctx context.Context, e DeliveryEntry) error {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.deliveryFile == nil {
		return errors.New("delivery log closed")
	}
	enc := json.NewEncoder(s.deliveryFile)
	return enc.Encode(e)
}

func (s *fileStore) PutStamp(ctx context.Context, key string, at time.Time) error {
	_ = ctx
	key = strings.TrimSpace(key)
	if key == "" {
		return nil
	}
	ms := at.UnixMilli()

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stampJournalFile == nil {
		return errors.New("stamp journal closed")
	}
	if s.stamps == nil {
		s.stamps = map[string]int64{}
	}
	s.stamps[key] = ms

	// Append journal record.
	enc := json.NewEncoder(s.stampJournalFile)
	if err := enc.Encode(stampRecord{Key: key, At: ms}); err != nil {
		return err
	}
	s.stampWrites++
	if s.stampWrites%1000 == 0 {
		// Best-effort compact.
		if err := s.compactLocked(); err != nil {
			s.log.Debug("stamp compact failed", logx.Any("err", err))
		}
	}
	return nil
}

func (s *fileStore) LoadStamps(ctx context.Context) (map[string]time.Time, error) {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]time.Time, len(s.stamps))
	for k, ms := range s.stamps {
		out[k] = time.UnixMilli(ms)
	}
	return out, nil
}

func (s *fileStore) PutSettings(ctx context.Context, doc []byte) error {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	tmp := s.settingsPath + ".tmp"
	if err := os.WriteFile(tmp, doc, 0o600); err != nil {
		return err
	}
	return os.Rename(tmp, s.settingsPath)
}

func (s *fileStore) GetSettings(ctx context.Context) ([]byte, bool, error) {
	_ = ctx
	s.mu.Lock()
	path := s.settingsPath
	s.mu.Unlock()
	b, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return b, true, nil
}

func (s *fileStore) compactLocked() error {
	if s.stamps == nil {
		return nil
	}

	tmp := s.stampSnapshotPath + ".tmp"
	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o600)
	if err != nil {
		return err
	}
	if err := json.NewEncoder(f).Encode(s.stamps); err != nil {
		_ = f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	if err := os.Rename(tmp, s.stampSnapshotPath); err != nil {
		return err
	}
	// Truncate journal.
	if err := s.stampJournalFile.Truncate(0); err != nil {
		return err
	}
	_, err = s.stampJournalFile.Seek(0, 2)
	return err
}

func loadStampSnapshot(path string, out map[string]int64) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	var m map[string]int64
	if err := json.NewDecoder(f).Decode(&m); err != nil {
		return err
	}
	for k, v := range m {
		out[k] = v
	}
	return nil
}

func replayStampJournal(path string, out map[string]int64) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		var r stampRecord
		if err := json.Unmarshal(sc.Bytes(), &r); err != nil {
			continue
		}
		if r.Key == "" {
			continue
		}
		out[r.Key] = r.At
	}
	return sc.Err()
}
