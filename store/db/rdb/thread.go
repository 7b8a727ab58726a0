package rdb

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/pkg/errors"

	"github.com/hrygo/plaza/store"
)

const threadColumns = `thread.id, thread.event_id, thread.parent_id, thread.creator_id, thread.title, thread.content,
	thread.lock_history, thread.row_status, thread.created_ts, thread.updated_ts`

func encodeLockHistory(history []store.LockEntry) (string, error) {
	if history == nil {
		history = []store.LockEntry{}
	}
	data, err := json.Marshal(history)
	if err != nil {
		return "", errors.Wrap(err, "failed to encode lock history")
	}
	return string(data), nil
}

func decodeLockHistory(raw string) ([]store.LockEntry, error) {
	history := []store.LockEntry{}
	if raw == "" {
		return history, nil
	}
	if err := json.Unmarshal([]byte(raw), &history); err != nil {
		return nil, errors.Wrap(err, "failed to decode lock history")
	}
	return history, nil
}

func (d *DB) CreateThread(ctx context.Context, create *store.Thread) (*store.Thread, error) {
	history, err := encodeLockHistory(create.LockHistory)
	if err != nil {
		return nil, err
	}
	stmt := bind(d.dialect, `INSERT INTO thread (event_id, parent_id, creator_id, title, content, lock_history, row_status, created_ts, updated_ts)
		VALUES (`+placeholders(9)+`)
		RETURNING id`, 0)
	if err := d.conn(ctx).QueryRowContext(ctx, stmt,
		create.EventID, create.ParentID, create.CreatorID, create.Title, create.Content,
		history, create.RowStatus, create.CreatedTs, create.UpdatedTs,
	).Scan(&create.ID); err != nil {
		return nil, d.wrap(err, "failed to create thread")
	}
	return create, nil
}

func (d *DB) ListThreads(ctx context.Context, find *store.FindThread) ([]*store.Thread, error) {
	b := d.builder()
	if v := find.ID; v != nil {
		b.and("thread.id = ?", *v)
	}
	if find.IDList != nil {
		b.in("thread.id", find.IDList)
	}
	if v := find.EventID; v != nil {
		b.and("thread.event_id = ?", *v)
	}
	if v := find.ParentID; v != nil {
		b.and("thread.parent_id = ?", *v)
	}
	if v := find.CreatorID; v != nil {
		b.and("thread.creator_id = ?", *v)
	}
	if find.TopLevel {
		b.and("thread.parent_id IS NULL")
	}
	if !find.IncludeArchived {
		b.and("thread.row_status = ?", store.Normal)
	}

	var tail string
	if find.Window != nil {
		tail = b.page("thread", find.Window)
	} else {
		tail = ` ORDER BY thread.created_ts DESC, thread.id DESC` + limit(find.Limit, find.Offset)
	}
	query := `SELECT ` + threadColumns + ` FROM thread WHERE ` + b.whereSQL() + tail + d.lock(ctx, find.ForUpdate)

	rows, err := d.conn(ctx).QueryContext(ctx, query, b.args...)
	if err != nil {
		return nil, d.wrap(err, "failed to query threads")
	}
	defer rows.Close()

	list := make([]*store.Thread, 0)
	for rows.Next() {
		var thread store.Thread
		var eventID, parentID sql.NullInt32
		var history string
		if err := rows.Scan(
			&thread.ID,
			&eventID,
			&parentID,
			&thread.CreatorID,
			&thread.Title,
			&thread.Content,
			&history,
			&thread.RowStatus,
			&thread.CreatedTs,
			&thread.UpdatedTs,
		); err != nil {
			return nil, d.wrap(err, "failed to scan thread")
		}
		if eventID.Valid {
			thread.EventID = &eventID.Int32
		}
		if parentID.Valid {
			thread.ParentID = &parentID.Int32
		}
		if thread.LockHistory, err = decodeLockHistory(history); err != nil {
			return nil, err
		}
		list = append(list, &thread)
	}
	if err := rows.Err(); err != nil {
		return nil, d.wrap(err, "failed to iterate threads")
	}
	return list, nil
}

func (d *DB) UpdateThread(ctx context.Context, update *store.UpdateThread) (*store.Thread, error) {
	b := d.builder()
	if v := update.UpdatedTs; v != nil {
		b.assign("updated_ts", *v)
	}
	if v := update.RowStatus; v != nil {
		b.assign("row_status", *v)
	}
	if v := update.Title; v != nil {
		b.assign("title", *v)
	}
	if v := update.Content; v != nil {
		b.assign("content", *v)
	}
	if v := update.LockHistory; v != nil {
		history, err := encodeLockHistory(*v)
		if err != nil {
			return nil, err
		}
		b.assign("lock_history", history)
	}
	if len(b.set) == 0 {
		b.assign("updated_ts", time.Now().Unix())
	}
	b.and("id = ?", update.ID)

	result, err := d.conn(ctx).ExecContext(ctx, `UPDATE thread SET `+b.setSQL()+` WHERE `+b.whereSQL(), b.args...)
	if err != nil {
		return nil, d.wrap(err, "failed to update thread")
	}
	if err := affected(result); err != nil {
		return nil, err
	}

	list, err := d.ListThreads(ctx, &store.FindThread{ID: &update.ID, IncludeArchived: true})
	if err != nil {
		return nil, err
	}
	if len(list) == 0 {
		return nil, store.ErrNotFound
	}
	return list[0], nil
}

// DeleteThread archives the thread.
func (d *DB) DeleteThread(ctx context.Context, delete *store.DeleteThread) error {
	now := time.Now().Unix()
	stmt := bind(d.dialect, `UPDATE thread SET row_status = ?, deleted_ts = ?, updated_ts = ? WHERE id = ?`, 0)
	result, err := d.conn(ctx).ExecContext(ctx, stmt, store.Archived, now, now, delete.ID)
	if err != nil {
		return d.wrap(err, "failed to delete thread")
	}
	return affected(result)
}
