package storage

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	logx "planbot/pkg/logx"
)

//go:embed migrations.sql
var migrationsFS embed.FS

type sqliteStore struct {
	db  *sql.DB
	log logx.Logger
}

func openSQLite(cfg Config, log logx.Logger) (Store, error) {
	if strings.TrimSpace(cfg.Path) == "" {
		return nil, errors.New("sqlite path is required")
	}
	path := cfg.Path
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// SQLite prefers a single writer.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	st := &sqliteStore{db: db, log: log}

	busy := cfg.BusyTimeout
	if busy <= 0 {
		busy = 5 * time.Second
	}
	_, _ = db.Exec(fmt.Sprintf("PRAGMA busy_timeout = %d", busy.Milliseconds()))
	_, _ = db.Exec("PRAGMA journal_mode = WAL")
	_, _ = db.Exec("PRAGMA synchronous = NORMAL")
	_, _ = db.Exec("PRAGMA foreign_keys = ON")

	if err := st.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	log.Debug("sqlite store opened", logx.String("path", path))
	return st, nil
}

func (s *sqliteStore) migrate(ctx context.Context) error {
	b, err := migrationsFS.ReadFile("migrations.sql")
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, string(b))
	return err
}

func (s *sqliteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *sqliteStore) SaveSchedule(ctx context.Context, rec ScheduleRecord) (string, error) {
	if s == nil || s.db == nil {
		return "", ErrDisabled
	}
	rec = prepareRecord(cloneRecord(rec))

	recs, err := json.Marshal(rec.Recommendations)
	if err != nil {
		return "", err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return "", err
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO schedules(id, user_id, chat_id, created_at, raw_input, raw_timeframe, window_start, window_end,
		                       total_tasks, total_duration, productivity_score, recommendations, diagnostic)
		 VALUES(?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		rec.ID, rec.UserID, rec.ChatID, rec.CreatedAt.UnixMilli(), rec.RawInput, rec.RawTimeframe,
		rec.WindowStart, rec.WindowEnd, rec.TotalTasks, rec.TotalDuration,
		nullFloat(rec.ProductivityScore), string(recs), nullStr(rec.Diagnostic),
	)
	if err != nil {
		return "", fmt.Errorf("insert schedule: %w", err)
	}
	for _, t := range rec.Tasks {
		_, err = tx.ExecContext(ctx,
			`INSERT INTO tasks(schedule_id, position, description, priority, type, preferred_offset) VALUES(?,?,?,?,?,?)`,
			rec.ID, t.Position, t.Description, t.Priority, t.Type, nullInt(t.PreferredOffset),
		)
		if err != nil {
			return "", fmt.Errorf("insert task %d: %w", t.Position, err)
		}
	}
	for _, it := range rec.Items {
		var done any
		if it.DoneAt != nil {
			done = it.DoneAt.UnixMilli()
		}
		_, err = tx.ExecContext(ctx,
			`INSERT INTO items(schedule_id, position, task, task_index, start_min, end_min, priority, type, reasoning, done_at)
			 VALUES(?,?,?,?,?,?,?,?,?,?)`,
			rec.ID, it.Position, it.TaskRef, it.TaskIndex, it.Start, it.End,
			nullStr(it.Priority), nullStr(it.Type), nullStr(it.Reasoning), done,
		)
		if err != nil {
			return "", fmt.Errorf("insert item %d: %w", it.Position, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return "", err
	}
	return rec.ID, nil
}

func (s *sqliteStore) GetSchedule(ctx context.Context, id string) (ScheduleRecord, error) {
	if s == nil || s.db == nil {
		return ScheduleRecord{}, ErrDisabled
	}
	row := s.db.QueryRowContext(ctx, selectSchedule+` WHERE id = ?`, id)
	rec, err := scanSchedule(row)
	if errors.Is(err, sql.ErrNoRows) {
		return ScheduleRecord{}, ErrNotFound
	}
	if err != nil {
		return ScheduleRecord{}, err
	}
	if err := s.loadChildren(ctx, &rec); err != nil {
		return ScheduleRecord{}, err
	}
	return rec, nil
}

func (s *sqliteStore) ListSchedules(ctx context.Context, userID int64, limit int) ([]ScheduleRecord, error) {
	if s == nil || s.db == nil {
		return nil, ErrDisabled
	}
	if limit <= 0 {
		limit = 10
	}
	rows, err := s.db.QueryContext(ctx,
		selectSchedule+` WHERE user_id = ? ORDER BY created_at DESC, rowid DESC LIMIT ?`, userID, limit)
	if err != nil {
		return nil, err
	}
	var out []ScheduleRecord
	for rows.Next() {
		rec, err := scanSchedule(rows)
		if err != nil {
			_ = rows.Close()
			return nil, err
		}
		out = append(out, rec)
	}
	if err := rows.Close(); err != nil {
		return nil, err
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for i := range out {
		if err := s.loadChildren(ctx, &out[i]); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func (s *sqliteStore) MarkItemDone(ctx context.Context, id string, pos int, at time.Time) error {
	if s == nil || s.db == nil {
		return ErrDisabled
	}
	if at.IsZero() {
		at = time.Now()
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE items SET done_at = COALESCE(done_at, ?) WHERE schedule_id = ? AND position = ?`,
		at.UnixMilli(), id, pos)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *sqliteStore) Prune(ctx context.Context, cutoff time.Time) (int, error) {
	if s == nil || s.db == nil {
		return 0, ErrDisabled
	}
	ms := cutoff.UnixMilli()
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer func() { _ = tx.Rollback() }()

	for _, q := range []string{
		`DELETE FROM items WHERE schedule_id IN (SELECT id FROM schedules WHERE created_at < ?)`,
		`DELETE FROM tasks WHERE schedule_id IN (SELECT id FROM schedules WHERE created_at < ?)`,
	} {
		if _, err := tx.ExecContext(ctx, q, ms); err != nil {
			return 0, err
		}
	}
	res, err := tx.ExecContext(ctx, `DELETE FROM schedules WHERE created_at < ?`, ms)
	if err != nil {
		return 0, err
	}
	n, _ := res.RowsAffected()
	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return int(n), nil
}

const selectSchedule = `SELECT id, user_id, chat_id, created_at, raw_input, raw_timeframe, window_start, window_end,
       total_tasks, total_duration, productivity_score, recommendations, diagnostic FROM schedules`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSchedule(r rowScanner) (ScheduleRecord, error) {
	var (
		rec     ScheduleRecord
		created int64
		score   sql.NullFloat64
		recs    sql.NullString
		diag    sql.NullString
	)
	err := r.Scan(&rec.ID, &rec.UserID, &rec.ChatID, &created, &rec.RawInput, &rec.RawTimeframe,
		&rec.WindowStart, &rec.WindowEnd, &rec.TotalTasks, &rec.TotalDuration, &score, &recs, &diag)
	if err != nil {
		return ScheduleRecord{}, err
	}
	rec.CreatedAt = time.UnixMilli(created).UTC()
	if score.Valid {
		v := score.Float64
		rec.ProductivityScore = &v
	}
	if recs.Valid && recs.String != "" && recs.String != "null" {
		_ = json.Unmarshal([]byte(recs.String), &rec.Recommendations)
	}
	rec.Diagnostic = diag.String
	return rec, nil
}

func (s *sqliteStore) loadChildren(ctx context.Context, rec *ScheduleRecord) error {
	trows, err := s.db.QueryContext(ctx,
		`SELECT position, description, priority, type, preferred_offset FROM tasks WHERE schedule_id = ? ORDER BY position`, rec.ID)
	if err != nil {
		return err
	}
	for trows.Next() {
		var (
			t   TaskRecord
			off sql.NullInt64
		)
		if err := trows.Scan(&t.Position, &t.Description, &t.Priority, &t.Type, &off); err != nil {
			_ = trows.Close()
			return err
		}
		if off.Valid {
			v := int(off.Int64)
			t.PreferredOffset = &v
		}
		rec.Tasks = append(rec.Tasks, t)
	}
	if err := trows.Close(); err != nil {
		return err
	}

	irows, err := s.db.QueryContext(ctx,
		`SELECT position, task, task_index, start_min, end_min, priority, type, reasoning, done_at
		 FROM items WHERE schedule_id = ? ORDER BY position`, rec.ID)
	if err != nil {
		return err
	}
	defer irows.Close()
	for irows.Next() {
		var (
			it                ItemRecord
			prio, typ, reason sql.NullString
			done              sql.NullInt64
		)
		if err := irows.Scan(&it.Position, &it.TaskRef, &it.TaskIndex, &it.Start, &it.End, &prio, &typ, &reason, &done); err != nil {
			return err
		}
		it.Priority, it.Type, it.Reasoning = prio.String, typ.String, reason.String
		if done.Valid {
			at := time.UnixMilli(done.Int64).UTC()
			it.DoneAt = &at
		}
		rec.Items = append(rec.Items, it)
	}
	return irows.Err()
}

func nullStr(v string) any {
	if strings.TrimSpace(v) == "" {
		return nil
	}
	return v
}

func nullInt(v *int) any {
	if v == nil {
		return nil
	}
	return *v
}

func nullFloat(v *float64) any {
	if v == nil {
		return nil
	}
	return *v
}
