package rdb

import (
	"context"
	"time"

	"github.com/hrygo/plaza/store"
)

const eventColumns = `event.id, event.uid, event.creator_id, event.title, event.description, event.status,
	event.latitude, event.longitude, event.start_ts, event.end_ts,
	event.row_status, event.created_ts, event.updated_ts,
	(SELECT COUNT(*) FROM event_participant WHERE event_participant.event_id = event.id) AS participant_count`

func (d *DB) CreateEvent(ctx context.Context, create *store.Event) (*store.Event, error) {
	stmt := bind(d.dialect, `INSERT INTO event (uid, creator_id, title, description, status, latitude, longitude, start_ts, end_ts, row_status, created_ts, updated_ts)
		VALUES (`+placeholders(12)+`)
		RETURNING id`, 0)
	if err := d.conn(ctx).QueryRowContext(ctx, stmt,
		create.UID, create.CreatorID, create.Title, create.Description, create.Status,
		create.Latitude, create.Longitude, create.StartTs, create.EndTs,
		create.RowStatus, create.CreatedTs, create.UpdatedTs,
	).Scan(&create.ID); err != nil {
		return nil, d.wrap(err, "failed to create event")
	}
	return create, nil
}

func (d *DB) eventWhere(find *store.FindEvent) *builder {
	b := d.builder()
	if v := find.ID; v != nil {
		b.and("event.id = ?", *v)
	}
	if v := find.UID; v != nil {
		b.and("event.uid = ?", *v)
	}
	if find.IDList != nil {
		b.in("event.id", find.IDList)
	}
	if v := find.CreatorID; v != nil {
		b.and("event.creator_id = ?", *v)
	}
	if v := find.Status; v != nil {
		b.and("event.status = ?", *v)
	}
	if v := find.Search; v != nil && *v != "" {
		b.like(*v, "event.title", "event.description")
	}
	if !find.IncludeArchived {
		b.and("event.row_status = ?", store.Normal)
	}
	return b
}

func (d *DB) ListEvents(ctx context.Context, find *store.FindEvent) ([]*store.Event, error) {
	b := d.eventWhere(find)
	var tail string
	if find.Window != nil {
		tail = b.page("event", find.Window)
	} else {
		tail = ` ORDER BY event.created_ts DESC, event.id DESC` + limit(find.Limit, find.Offset)
	}
	query := `SELECT ` + eventColumns + ` FROM event WHERE ` + b.whereSQL() + tail + d.lock(ctx, find.ForUpdate)

	rows, err := d.conn(ctx).QueryContext(ctx, query, b.args...)
	if err != nil {
		return nil, d.wrap(err, "failed to query events")
	}
	defer rows.Close()

	list := make([]*store.Event, 0)
	for rows.Next() {
		var event store.Event
		if err := rows.Scan(
			&event.ID,
			&event.UID,
			&event.CreatorID,
			&event.Title,
			&event.Description,
			&event.Status,
			&event.Latitude,
			&event.Longitude,
			&event.StartTs,
			&event.EndTs,
			&event.RowStatus,
			&event.CreatedTs,
			&event.UpdatedTs,
			&event.ParticipantCount,
		); err != nil {
			return nil, d.wrap(err, "failed to scan event")
		}
		list = append(list, &event)
	}
	if err := rows.Err(); err != nil {
		return nil, d.wrap(err, "failed to iterate events")
	}
	return list, nil
}

func (d *DB) CountEvents(ctx context.Context, find *store.FindEvent) (int64, error) {
	b := d.eventWhere(find)
	var count int64
	if err := d.conn(ctx).QueryRowContext(ctx, `SELECT COUNT(*) FROM event WHERE `+b.whereSQL(), b.args...).Scan(&count); err != nil {
		return 0, d.wrap(err, "failed to count events")
	}
	return count, nil
}

func (d *DB) UpdateEvent(ctx context.Context, update *store.UpdateEvent) (*store.Event, error) {
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
	if v := update.Description; v != nil {
		b.assign("description", *v)
	}
	if v := update.Status; v != nil {
		b.assign("status", *v)
	}
	if v := update.Latitude; v != nil {
		b.assign("latitude", *v)
	}
	if v := update.Longitude; v != nil {
		b.assign("longitude", *v)
	}
	if v := update.StartTs; v != nil {
		b.assign("start_ts", *v)
	}
	if v := update.EndTs; v != nil {
		b.assign("end_ts", *v)
	}
	if len(b.set) == 0 {
		b.assign("updated_ts", time.Now().Unix())
	}
	b.and("id = ?", update.ID)

	result, err := d.conn(ctx).ExecContext(ctx, `UPDATE event SET `+b.setSQL()+` WHERE `+b.whereSQL(), b.args...)
	if err != nil {
		return nil, d.wrap(err, "failed to update event")
	}
	if err := affected(result); err != nil {
		return nil, err
	}

	list, err := d.ListEvents(ctx, &store.FindEvent{ID: &update.ID, IncludeArchived: true})
	if err != nil {
		return nil, err
	}
	if len(list) == 0 {
		return nil, store.ErrNotFound
	}
	return list[0], nil
}

// DeleteEvent archives the event.
func (d *DB) DeleteEvent(ctx context.Context, delete *store.DeleteEvent) error {
	now := time.Now().Unix()
	stmt := bind(d.dialect, `UPDATE event SET row_status = ?, deleted_ts = ?, updated_ts = ? WHERE id = ?`, 0)
	result, err := d.conn(ctx).ExecContext(ctx, stmt, store.Archived, now, now, delete.ID)
	if err != nil {
		return d.wrap(err, "failed to delete event")
	}
	return affected(result)
}
