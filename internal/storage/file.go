package storage

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	logx "planbot/pkg/logx"
)

// fileStore keeps every record in memory and persists it as:
//   - <prefix>.snapshot.json      (periodic snapshot)
//   - <prefix>.journal.jsonl      (append-only journal of save and done ops)
//
// The journal is compacted into the snapshot every compactEvery writes and after prunes.
type fileStore struct {
	log logx.Logger

	mu sync.Mutex

	snapshotPath string
	journal      *os.File
	records      map[string]ScheduleRecord
	// seq preserves insertion order for records with equal CreatedAt.
	seq   map[string]uint64
	next  uint64
	wrote int
}

const compactEvery = 500

type journalOp struct {
	Op     string          `json:"op"`
	Record *ScheduleRecord `json:"record,omitempty"`
	ID     string          `json:"id,omitempty"`
	Pos    int             `json:"pos,omitempty"`
	At     int64           `json:"at,omitempty"`
}

func openFile(cfg Config, log logx.Logger) (Store, error) {
	path := strings.TrimSpace(cfg.Path)
	if path == "" {
		return nil, errors.New("storage.path is required for file driver")
	}

	dir := filepath.Dir(path)
	base := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	prefix := filepath.Join(dir, base)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}

	s := &fileStore{
		log:          log,
		snapshotPath: prefix + ".snapshot.json",
		records:      map[string]ScheduleRecord{},
		seq:          map[string]uint64{},
	}
	if err := s.loadSnapshot(); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Warn("snapshot unreadable, starting from journal", logx.Err(err))
	}
	journalPath := prefix + ".journal.jsonl"
	if err := s.replay(journalPath); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, err
	}

	jf, err := os.OpenFile(journalPath, os.O_CREATE|os.O_APPEND|os.O_RDWR, 0o600)
	if err != nil {
		return nil, err
	}
	s.journal = jf
	log.Debug("file store opened", logx.String("prefix", prefix), logx.Int("records", len(s.records)))
	return s, nil
}

func (s *fileStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.journal == nil {
		return nil
	}
	err := s.compactLocked()
	if cerr := s.journal.Close(); err == nil {
		err = cerr
	}
	s.journal = nil
	return err
}

func (s *fileStore) SaveSchedule(ctx context.Context, rec ScheduleRecord) (string, error) {
	_ = ctx
	rec = prepareRecord(cloneRecord(rec))

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.journal == nil {
		return "", ErrDisabled
	}
	if _, dup := s.records[rec.ID]; dup {
		return "", errors.New("schedule id already exists: " + rec.ID)
	}
	if err := s.appendLocked(journalOp{Op: "save", Record: &rec}); err != nil {
		return "", err
	}
	s.applySave(rec)
	return rec.ID, nil
}

func (s *fileStore) GetSchedule(ctx context.Context, id string) (ScheduleRecord, error) {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[id]
	if !ok {
		return ScheduleRecord{}, ErrNotFound
	}
	return cloneRecord(rec), nil
}

func (s *fileStore) ListSchedules(ctx context.Context, userID int64, limit int) ([]ScheduleRecord, error) {
	_ = ctx
	if limit <= 0 {
		limit = 10
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []ScheduleRecord
	for _, rec := range s.records {
		if rec.UserID == userID {
			out = append(out, rec)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return s.seq[out[i].ID] > s.seq[out[j].ID]
	})
	if len(out) > limit {
		out = out[:limit]
	}
	for i := range out {
		out[i] = cloneRecord(out[i])
	}
	return out, nil
}

func (s *fileStore) MarkItemDone(ctx context.Context, id string, pos int, at time.Time) error {
	_ = ctx
	if at.IsZero() {
		at = time.Now()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.journal == nil {
		return ErrDisabled
	}
	rec, ok := s.records[id]
	if !ok || pos < 0 || pos >= len(rec.Items) {
		return ErrNotFound
	}
	if rec.Items[pos].DoneAt != nil {
		return nil
	}
	op := journalOp{Op: "done", ID: id, Pos: pos, At: at.UnixMilli()}
	if err := s.appendLocked(op); err != nil {
		return err
	}
	s.applyDone(op)
	return nil
}

func (s *fileStore) Prune(ctx context.Context, cutoff time.Time) (int, error) {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.journal == nil {
		return 0, ErrDisabled
	}
	n := s.applyPrune(cutoff.UnixMilli())
	if n == 0 {
		return 0, nil
	}
	if err := s.compactLocked(); err != nil {
		return n, err
	}
	return n, nil
}

func (s *fileStore) applySave(rec ScheduleRecord) {
	s.next++
	s.records[rec.ID] = rec
	s.seq[rec.ID] = s.next
}

func (s *fileStore) applyDone(op journalOp) {
	rec, ok := s.records[op.ID]
	if !ok || op.Pos < 0 || op.Pos >= len(rec.Items) || rec.Items[op.Pos].DoneAt != nil {
		return
	}
	at := time.UnixMilli(op.At).UTC()
	rec.Items[op.Pos].DoneAt = &at
}

func (s *fileStore) applyPrune(cutoffMS int64) int {
	n := 0
	for id, rec := range s.records {
		if rec.CreatedAt.UnixMilli() < cutoffMS {
			delete(s.records, id)
			delete(s.seq, id)
			n++
		}
	}
	return n
}

func (s *fileStore) appendLocked(op journalOp) error {
	if err := json.NewEncoder(s.journal).Encode(op); err != nil {
		return err
	}
	s.wrote++
	if s.wrote%compactEvery == 0 {
		if err := s.compactLocked(); err != nil {
			s.log.Debug("journal compact failed", logx.Err(err))
		}
	}
	return nil
}

type snapshot struct {
	Records []ScheduleRecord `json:"records"`
}

// compactLocked writes all records to the snapshot atomically and truncates the journal.
func (s *fileStore) compactLocked() error {
	snap := snapshot{Records: make([]ScheduleRecord, 0, len(s.records))}
	for _, rec := range s.records {
		snap.Records = append(snap.Records, rec)
	}
	sort.Slice(snap.Records, func(i, j int) bool {
		return s.seq[snap.Records[i].ID] < s.seq[snap.Records[j].ID]
	})

	tmp := s.snapshotPath + ".tmp"
	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o600)
	if err != nil {
		return err
	}
	if err := json.NewEncoder(f).Encode(snap); err != nil {
		_ = f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	if err := os.Rename(tmp, s.snapshotPath); err != nil {
		return err
	}
	if err := s.journal.Truncate(0); err != nil {
		return err
	}
	_, err = s.journal.Seek(0, 2)
	return err
}

func (s *fileStore) loadSnapshot() error {
	f, err := os.Open(s.snapshotPath)
	if err != nil {
		return err
	}
	defer f.Close()
	var snap snapshot
	if err := json.NewDecoder(f).Decode(&snap); err != nil {
		return err
	}
	for _, rec := range snap.Records {
		s.applySave(rec)
	}
	return nil
}

func (s *fileStore) replay(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 64*1024), 4*1024*1024)
	for sc.Scan() {
		var op journalOp
		if err := json.Unmarshal(sc.Bytes(), &op); err != nil {
			continue
		}
		switch op.Op {
		case "save":
			if op.Record != nil && op.Record.ID != "" {
				s.applySave(*op.Record)
			}
		case "done":
			s.applyDone(op)
		}
	}
	return sc.Err()
}
