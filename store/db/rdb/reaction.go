package rdb

import (
	"context"

	"github.com/hrygo/plaza/store"
)

// UpsertReaction returns the stored row; an identical reaction is not duplicated.
func (d *DB) UpsertReaction(ctx context.Context, upsert *store.Reaction) (*store.Reaction, error) {
	stmt := bind(d.dialect, `INSERT INTO reaction (creator_id, content_type, content_id, reaction_type, created_ts)
		VALUES (`+placeholders(5)+`)
		ON CONFLICT (creator_id, content_type, content_id, reaction_type) DO UPDATE SET reaction_type = excluded.reaction_type
		RETURNING id, creator_id, content_type, content_id, reaction_type, created_ts`, 0)
	var reaction store.Reaction
	if err := d.conn(ctx).QueryRowContext(ctx, stmt,
		upsert.CreatorID, upsert.ContentType, upsert.ContentID, upsert.ReactionType, upsert.CreatedTs,
	).Scan(
		&reaction.ID,
		&reaction.CreatorID,
		&reaction.ContentType,
		&reaction.ContentID,
		&reaction.ReactionType,
		&reaction.CreatedTs,
	); err != nil {
		return nil, d.wrap(err, "failed to upsert reaction")
	}
	return &reaction, nil
}

func (d *DB) ListReactions(ctx context.Context, find *store.FindReaction) ([]*store.Reaction, error) {
	b := d.builder()
	if v := find.ID; v != nil {
		b.and("id = ?", *v)
	}
	if v := find.CreatorID; v != nil {
		b.and("creator_id = ?", *v)
	}
	if v := find.ContentType; v != nil {
		b.and("content_type = ?", *v)
	}
	if v := find.ContentID; v != nil {
		b.and("content_id = ?", *v)
	}
	if find.ContentIDList != nil {
		b.in("content_id", find.ContentIDList)
	}

	rows, err := d.conn(ctx).QueryContext(ctx, `SELECT id, creator_id, content_type, content_id, reaction_type, created_ts
		FROM reaction WHERE `+b.whereSQL()+` ORDER BY created_ts ASC, id ASC`, b.args...)
	if err != nil {
		return nil, d.wrap(err, "failed to query reactions")
	}
	defer rows.Close()

	list := make([]*store.Reaction, 0)
	for rows.Next() {
		var reaction store.Reaction
		if err := rows.Scan(
			&reaction.ID,
			&reaction.CreatorID,
			&reaction.ContentType,
			&reaction.ContentID,
			&reaction.ReactionType,
			&reaction.CreatedTs,
		); err != nil {
			return nil, d.wrap(err, "failed to scan reaction")
		}
		list = append(list, &reaction)
	}
	if err := rows.Err(); err != nil {
		return nil, d.wrap(err, "failed to iterate reactions")
	}
	return list, nil
}

func (d *DB) DeleteReaction(ctx context.Context, delete *store.DeleteReaction) error {
	result, err := d.conn(ctx).ExecContext(ctx, bind(d.dialect, `DELETE FROM reaction WHERE id = ?`, 0), delete.ID)
	if err != nil {
		return d.wrap(err, "failed to delete reaction")
	}
	return affected(result)
}
