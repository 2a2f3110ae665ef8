package storage

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"

	logx "planbot/pkg/logx"
)

// Store is the persistence API used by the bot front-end and planctl.
type Store interface {
	// SaveSchedule stores rec, assigning ID and CreatedAt when empty, and returns the stored ID.
	SaveSchedule(ctx context.Context, rec ScheduleRecord) (string, error)
	GetSchedule(ctx context.Context, id string) (ScheduleRecord, error)
	// ListSchedules returns the newest records of userID first. limit <= 0 means 10.
	ListSchedules(ctx context.Context, userID int64, limit int) ([]ScheduleRecord, error)
	// MarkItemDone flags item pos of schedule id as complete. Marking twice keeps the first time.
	MarkItemDone(ctx context.Context, id string, pos int, at time.Time) error
	// Prune deletes records created before cutoff and returns how many were removed.
	Prune(ctx context.Context, cutoff time.Time) (int, error)
	Close() error
}

// Open initializes the configured store. It returns (nil, nil) when storage is disabled.
func Open(cfg Config, log logx.Logger) (Store, error) {
	driver := strings.ToLower(strings.TrimSpace(cfg.Driver))
	if driver == "" || driver == "none" {
		return nil, nil
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	log = log.With(logx.String("comp", "storage"), logx.String("driver", driver))

	switch driver {
	case "file":
		return openFile(cfg, log)
	case "sqlite", "sqlite3":
		return openSQLite(cfg, log)
	default:
		return nil, errors.New("unknown storage driver: " + driver)
	}
}

func prepareRecord(rec ScheduleRecord) ScheduleRecord {
	if strings.TrimSpace(rec.ID) == "" {
		rec.ID = uuid.NewString()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now()
	}
	rec.CreatedAt = rec.CreatedAt.UTC()
	for i := range rec.Tasks {
		rec.Tasks[i].Position = i
	}
	for i := range rec.Items {
		rec.Items[i].Position = i
	}
	return rec
}
