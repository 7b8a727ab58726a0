package rdb

import (
	"context"

	"github.com/hrygo/plaza/store"
)

func (d *DB) CreateMedia(ctx context.Context, create *store.Media) (*store.Media, error) {
	stmt := bind(d.dialect, `INSERT INTO media (event_id, creator_id, url, type, created_ts)
		VALUES (`+placeholders(5)+`)
		RETURNING id`, 0)
	if err := d.conn(ctx).QueryRowContext(ctx, stmt, create.EventID, create.CreatorID, create.URL, create.Type, create.CreatedTs).Scan(&create.ID); err != nil {
		return nil, d.wrap(err, "failed to create media")
	}
	return create, nil
}

func (d *DB) ListMedia(ctx context.Context, find *store.FindMedia) ([]*store.Media, error) {
	b := d.builder()
	if v := find.ID; v != nil {
		b.and("id = ?", *v)
	}
	if v := find.EventID; v != nil {
		b.and("event_id = ?", *v)
	}
	query := `SELECT id, event_id, creator_id, url, type, created_ts FROM media WHERE ` + b.whereSQL() +
		` ORDER BY created_ts ASC, id ASC` + limit(find.Limit, find.Offset)

	rows, err := d.conn(ctx).QueryContext(ctx, query, b.args...)
	if err != nil {
		return nil, d.wrap(err, "failed to query media")
	}
	defer rows.Close()

	list := make([]*store.Media, 0)
	for rows.Next() {
		var media store.Media
		if err := rows.Scan(&media.ID, &media.EventID, &media.CreatorID, &media.URL, &media.Type, &media.CreatedTs); err != nil {
			return nil, d.wrap(err, "failed to scan media")
		}
		list = append(list, &media)
	}
	if err := rows.Err(); err != nil {
		return nil, d.wrap(err, "failed to iterate media")
	}
	return list, nil
}

func (d *DB) DeleteMedia(ctx context.Context, delete *store.DeleteMedia) error {
	result, err := d.conn(ctx).ExecContext(ctx, bind(d.dialect, `DELETE FROM media WHERE id = ?`, 0), delete.ID)
	if err != nil {
		return d.wrap(err, "failed to delete media")
	}
	return affected(result)
}
