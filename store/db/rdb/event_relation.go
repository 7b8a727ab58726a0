package rdb

import (
	"context"

	"github.com/hrygo/plaza/store"
)

func (d *DB) UpsertEventTag(ctx context.Context, upsert *store.EventTag) error {
	stmt := bind(d.dialect, `INSERT INTO event_tag (event_id, tag_id, created_ts)
		VALUES (?, ?, ?)
		ON CONFLICT (event_id, tag_id) DO NOTHING`, 0)
	if _, err := d.conn(ctx).ExecContext(ctx, stmt, upsert.EventID, upsert.TagID, upsert.CreatedTs); err != nil {
		return d.wrap(err, "failed to upsert event tag")
	}
	return nil
}

func (d *DB) ListEventTags(ctx context.Context, find *store.FindEventTag) ([]*store.EventTag, error) {
	b := d.builder()
	if v := find.EventID; v != nil {
		b.and("event_id = ?", *v)
	}
	if v := find.TagID; v != nil {
		b.and("tag_id = ?", *v)
	}

	rows, err := d.conn(ctx).QueryContext(ctx, `SELECT event_id, tag_id, created_ts FROM event_tag WHERE `+b.whereSQL()+` ORDER BY created_ts ASC, tag_id ASC`, b.args...)
	if err != nil {
		return nil, d.wrap(err, "failed to query event tags")
	}
	defer rows.Close()

	list := make([]*store.EventTag, 0)
	for rows.Next() {
		var link store.EventTag
		if err := rows.Scan(&link.EventID, &link.TagID, &link.CreatedTs); err != nil {
			return nil, d.wrap(err, "failed to scan event tag")
		}
		list = append(list, &link)
	}
	if err := rows.Err(); err != nil {
		return nil, d.wrap(err, "failed to iterate event tags")
	}
	return list, nil
}

func (d *DB) DeleteEventTag(ctx context.Context, delete *store.EventTag) error {
	stmt := bind(d.dialect, `DELETE FROM event_tag WHERE event_id = ? AND tag_id = ?`, 0)
	if _, err := d.conn(ctx).ExecContext(ctx, stmt, delete.EventID, delete.TagID); err != nil {
		return d.wrap(err, "failed to delete event tag")
	}
	return nil
}

func (d *DB) UpsertEventParticipant(ctx context.Context, upsert *store.EventParticipant) (*store.EventParticipant, error) {
	stmt := bind(d.dialect, `INSERT INTO event_participant (event_id, user_id, role, created_ts)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (event_id, user_id) DO UPDATE SET role = excluded.role
		RETURNING event_id, user_id, role, created_ts`, 0)
	var participant store.EventParticipant
	if err := d.conn(ctx).QueryRowContext(ctx, stmt, upsert.EventID, upsert.UserID, upsert.Role, upsert.CreatedTs).Scan(
		&participant.EventID,
		&participant.UserID,
		&participant.Role,
		&participant.CreatedTs,
	); err != nil {
		return nil, d.wrap(err, "failed to upsert event participant")
	}
	return &participant, nil
}

func (d *DB) ListEventParticipants(ctx context.Context, find *store.FindEventParticipant) ([]*store.EventParticipant, error) {
	b := d.builder()
	if v := find.EventID; v != nil {
		b.and("event_id = ?", *v)
	}
	if v := find.UserID; v != nil {
		b.and("user_id = ?", *v)
	}

	rows, err := d.conn(ctx).QueryContext(ctx, `SELECT event_id, user_id, role, created_ts FROM event_participant WHERE `+b.whereSQL()+` ORDER BY created_ts ASC, user_id ASC`, b.args...)
	if err != nil {
		return nil, d.wrap(err, "failed to query event participants")
	}
	defer rows.Close()

	list := make([]*store.EventParticipant, 0)
	for rows.Next() {
		var participant store.EventParticipant
		if err := rows.Scan(&participant.EventID, &participant.UserID, &participant.Role, &participant.CreatedTs); err != nil {
			return nil, d.wrap(err, "failed to scan event participant")
		}
		list = append(list, &participant)
	}
	if err := rows.Err(); err != nil {
		return nil, d.wrap(err, "failed to iterate event participants")
	}
	return list, nil
}

func (d *DB) DeleteEventParticipant(ctx context.Context, delete *store.DeleteEventParticipant) error {
	stmt := bind(d.dialect, `DELETE FROM event_participant WHERE event_id = ? AND user_id = ?`, 0)
	result, err := d.conn(ctx).ExecContext(ctx, stmt, delete.EventID, delete.UserID)
	if err != nil {
		return d.wrap(err, "failed to delete event participant")
	}
	return affected(result)
}

// CreateEventVerifier fails with store.ErrConflict when the user already verified the event.
func (d *DB) CreateEventVerifier(ctx context.Context, create *store.EventVerifier) (*store.EventVerifier, error) {
	stmt := bind(d.dialect, `INSERT INTO event_verifier (event_id, user_id, created_ts) VALUES (?, ?, ?)`, 0)
	if _, err := d.conn(ctx).ExecContext(ctx, stmt, create.EventID, create.UserID, create.CreatedTs); err != nil {
		return nil, d.wrap(err, "failed to create event verifier")
	}
	return create, nil
}

func (d *DB) ListEventVerifiers(ctx context.Context, find *store.FindEventVerifier) ([]*store.EventVerifier, error) {
	b := d.builder()
	if v := find.EventID; v != nil {
		b.and("event_id = ?", *v)
	}
	if v := find.UserID; v != nil {
		b.and("user_id = ?", *v)
	}

	rows, err := d.conn(ctx).QueryContext(ctx, `SELECT event_id, user_id, created_ts FROM event_verifier WHERE `+b.whereSQL()+` ORDER BY created_ts ASC, user_id ASC`, b.args...)
	if err != nil {
		return nil, d.wrap(err, "failed to query event verifiers")
	}
	defer rows.Close()

	list := make([]*store.EventVerifier, 0)
	for rows.Next() {
		var verifier store.EventVerifier
		if err := rows.Scan(&verifier.EventID, &verifier.UserID, &verifier.CreatedTs); err != nil {
			return nil, d.wrap(err, "failed to scan event verifier")
		}
		list = append(list, &verifier)
	}
	if err := rows.Err(); err != nil {
		return nil, d.wrap(err, "failed to iterate event verifiers")
	}
	return list, nil
}
