package rdb

import (
	"context"

	"github.com/hrygo/plaza/store"
)

func (d *DB) CreateTag(ctx context.Context, create *store.Tag) (*store.Tag, error) {
	stmt := bind(d.dialect, `INSERT INTO tag (name, created_ts) VALUES (?, ?) RETURNING id`, 0)
	if err := d.conn(ctx).QueryRowContext(ctx, stmt, create.Name, create.CreatedTs).Scan(&create.ID); err != nil {
		return nil, d.wrap(err, "failed to create tag")
	}
	return create, nil
}

func (d *DB) tagWhere(find *store.FindTag) *builder {
	b := d.builder()
	if v := find.ID; v != nil {
		b.and("tag.id = ?", *v)
	}
	if find.IDList != nil {
		b.in("tag.id", find.IDList)
	}
	if v := find.Name; v != nil {
		b.and("tag.name = ?", *v)
	}
	if v := find.EventID; v != nil {
		b.and("tag.id IN (SELECT tag_id FROM event_tag WHERE event_id = ?)", *v)
	}
	if v := find.Search; v != nil && *v != "" {
		b.like(*v, "tag.name")
	}
	return b
}

func (d *DB) ListTags(ctx context.Context, find *store.FindTag) ([]*store.Tag, error) {
	b := d.tagWhere(find)
	query := `SELECT tag.id, tag.name, tag.created_ts,
			(SELECT COUNT(*) FROM event_tag WHERE event_tag.tag_id = tag.id) AS usage_count
		FROM tag
		WHERE ` + b.whereSQL() + ` ORDER BY tag.name ASC` + limit(find.Limit, find.Offset)

	rows, err := d.conn(ctx).QueryContext(ctx, query, b.args...)
	if err != nil {
		return nil, d.wrap(err, "failed to query tags")
	}
	defer rows.Close()

	list := make([]*store.Tag, 0)
	for rows.Next() {
		var tag store.Tag
		if err := rows.Scan(&tag.ID, &tag.Name, &tag.CreatedTs, &tag.UsageCount); err != nil {
			return nil, d.wrap(err, "failed to scan tag")
		}
		list = append(list, &tag)
	}
	if err := rows.Err(); err != nil {
		return nil, d.wrap(err, "failed to iterate tags")
	}
	return list, nil
}

func (d *DB) CountTags(ctx context.Context, find *store.FindTag) (int64, error) {
	b := d.tagWhere(find)
	var count int64
	if err := d.conn(ctx).QueryRowContext(ctx, `SELECT COUNT(*) FROM tag WHERE `+b.whereSQL(), b.args...).Scan(&count); err != nil {
		return 0, d.wrap(err, "failed to count tags")
	}
	return count, nil
}

// DeleteTag removes the tag and its event links.
func (d *DB) DeleteTag(ctx context.Context, delete *store.DeleteTag) error {
	return d.WithTx(ctx, func(ctx context.Context) error {
		if _, err := d.conn(ctx).ExecContext(ctx, bind(d.dialect, `DELETE FROM event_tag WHERE tag_id = ?`, 0), delete.ID); err != nil {
			return d.wrap(err, "failed to delete tag links")
		}
		result, err := d.conn(ctx).ExecContext(ctx, bind(d.dialect, `DELETE FROM tag WHERE id = ?`, 0), delete.ID)
		if err != nil {
			return d.wrap(err, "failed to delete tag")
		}
		return affected(result)
	})
}
