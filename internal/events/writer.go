package events

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"aicoo/internal/db"
	"aicoo/internal/domain"
	"aicoo/internal/repo"
)

// Writer appends task log rows inside the caller's transaction.
type Writer struct {
	DB      *sql.DB
	Dialect db.Dialect
	Now     func() time.Time
}

// Append writes one TaskLog. ID and CreatedAt are filled when empty.
func (w Writer) Append(ctx context.Context, tx *sql.Tx, l domain.TaskLog) (domain.TaskLog, error) {
	if tx == nil {
		return l, errors.New("task log requires a transaction")
	}
	if l.TaskID == "" {
		return l, errors.New("task_id required")
	}
	if l.Event == "" {
		return l, errors.New("event required")
	}
	if w.Now == nil {
		w.Now = time.Now
	}
	if l.ID == "" {
		id, err := uuid.NewV7()
		if err != nil {
			return l, fmt.Errorf("task log id: %w", err)
		}
		l.ID = id.String()
	}
	if l.CreatedAt.IsZero() {
		l.CreatedAt = w.Now().UTC()
	}
	_, err := tx.ExecContext(ctx, db.Rebind(w.Dialect, `INSERT INTO task_logs(id,task_id,event,old_status,new_status,result_text,created_at) VALUES (?,?,?,?,?,?,?)`),
		l.ID, l.TaskID, l.Event, nullable(string(l.OldStatus)), nullable(string(l.NewStatus)), nullable(l.ResultText),
		l.CreatedAt.UTC().Format(repo.TimeLayout))
	return l, err
}

func nullable(v string) any {
	if v == "" {
		return nil
	}
	return v
}
