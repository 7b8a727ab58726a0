package rdb

import (
	"context"

	"github.com/hrygo/plaza/store"
)

func (d *DB) CreateMessage(ctx context.Context, create *store.Message) (*store.Message, error) {
	stmt := bind(d.dialect, `INSERT INTO message (thread_id, creator_id, content, created_ts) VALUES (?, ?, ?, ?) RETURNING id`, 0)
	if err := d.conn(ctx).QueryRowContext(ctx, stmt, create.ThreadID, create.CreatorID, create.Content, create.CreatedTs).Scan(&create.ID); err != nil {
		return nil, d.wrap(err, "failed to create message")
	}
	return create, nil
}

func (d *DB) ListMessages(ctx context.Context, find *store.FindMessage) ([]*store.Message, error) {
	b := d.builder()
	if v := find.ID; v != nil {
		b.and("message.id = ?", *v)
	}
	if v := find.ThreadID; v != nil {
		b.and("message.thread_id = ?", *v)
	}

	var tail string
	if find.Window != nil {
		tail = b.page("message", find.Window)
	} else {
		tail = ` ORDER BY message.created_ts DESC, message.id DESC` + limit(find.Limit, find.Offset)
	}
	query := `SELECT message.id, message.thread_id, message.creator_id, message.content, message.created_ts
		FROM message WHERE ` + b.whereSQL() + tail

	rows, err := d.conn(ctx).QueryContext(ctx, query, b.args...)
	if err != nil {
		return nil, d.wrap(err, "failed to query messages")
	}
	defer rows.Close()

	list := make([]*store.Message, 0)
	for rows.Next() {
		var message store.Message
		if err := rows.Scan(&message.ID, &message.ThreadID, &message.CreatorID, &message.Content, &message.CreatedTs); err != nil {
			return nil, d.wrap(err, "failed to scan message")
		}
		list = append(list, &message)
	}
	if err := rows.Err(); err != nil {
		return nil, d.wrap(err, "failed to iterate messages")
	}
	return list, nil
}
