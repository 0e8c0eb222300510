package repo

import (
	"context"
	"database/sql"

	"aicoo/internal/domain"
)

// ListTaskLogs returns the logs of a task oldest first. Log ids are time ordered
// so they break ties between rows written in the same microsecond.
func (r Repo) ListTaskLogs(ctx context.Context, taskID string) ([]domain.TaskLog, error) {
	rows, err := r.query(ctx, nil, `SELECT id,task_id,event,old_status,new_status,result_text,created_at FROM task_logs WHERE task_id=? ORDER BY created_at, id`, taskID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.TaskLog
	for rows.Next() {
		var l domain.TaskLog
		var oldStatus, newStatus, result sql.NullString
		var created string
		if err := rows.Scan(&l.ID, &l.TaskID, &l.Event, &oldStatus, &newStatus, &result, &created); err != nil {
			return nil, err
		}
		l.OldStatus = domain.TaskStatus(oldStatus.String)
		l.NewStatus = domain.TaskStatus(newStatus.String)
		l.ResultText = result.String
		t, err := parseTime(created)
		if err != nil {
			return nil, err
		}
		l.CreatedAt = t
		res = append(res, l)
	}
	return res, rows.Err()
}
