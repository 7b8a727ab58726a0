package rdb

import (
	"context"
	"time"

	"github.com/hrygo/plaza/store"
)

const userColumns = `id, username, email, nickname, avatar_url, bio, row_status, created_ts, updated_ts`

func (d *DB) CreateUser(ctx context.Context, create *store.User) (*store.User, error) {
	stmt := bind(d.dialect, `INSERT INTO users (username, email, nickname, avatar_url, bio, row_status, created_ts, updated_ts)
		VALUES (`+placeholders(8)+`)
		RETURNING id`, 0)
	if err := d.conn(ctx).QueryRowContext(ctx, stmt,
		create.Username, create.Email, create.Nickname, create.AvatarURL, create.Bio,
		create.RowStatus, create.CreatedTs, create.UpdatedTs,
	).Scan(&create.ID); err != nil {
		return nil, d.wrap(err, "failed to create user")
	}
	return create, nil
}

func (d *DB) userWhere(find *store.FindUser) *builder {
	b := d.builder()
	if v := find.ID; v != nil {
		b.and("users.id = ?", *v)
	}
	if find.IDList != nil {
		b.in("users.id", find.IDList)
	}
	if v := find.Username; v != nil {
		b.and("users.username = ?", *v)
	}
	if v := find.Email; v != nil {
		b.and("users.email = ?", *v)
	}
	if v := find.Search; v != nil && *v != "" {
		b.like(*v, "users.username", "users.nickname", "users.bio")
	}
	if !find.IncludeArchived {
		b.and("users.row_status = ?", store.Normal)
	}
	return b
}

func (d *DB) ListUsers(ctx context.Context, find *store.FindUser) ([]*store.User, error) {
	b := d.userWhere(find)
	query := `SELECT ` + userColumns + ` FROM users WHERE ` + b.whereSQL() +
		` ORDER BY users.created_ts DESC, users.id DESC` + limit(find.Limit, find.Offset)

	rows, err := d.conn(ctx).QueryContext(ctx, query, b.args...)
	if err != nil {
		return nil, d.wrap(err, "failed to query users")
	}
	defer rows.Close()

	list := make([]*store.User, 0)
	for rows.Next() {
		var user store.User
		if err := rows.Scan(
			&user.ID,
			&user.Username,
			&user.Email,
			&user.Nickname,
			&user.AvatarURL,
			&user.Bio,
			&user.RowStatus,
			&user.CreatedTs,
			&user.UpdatedTs,
		); err != nil {
			return nil, d.wrap(err, "failed to scan user")
		}
		list = append(list, &user)
	}
	if err := rows.Err(); err != nil {
		return nil, d.wrap(err, "failed to iterate users")
	}
	return list, nil
}

func (d *DB) CountUsers(ctx context.Context, find *store.FindUser) (int64, error) {
	b := d.userWhere(find)
	var count int64
	if err := d.conn(ctx).QueryRowContext(ctx, `SELECT COUNT(*) FROM users WHERE `+b.whereSQL(), b.args...).Scan(&count); err != nil {
		return 0, d.wrap(err, "failed to count users")
	}
	return count, nil
}

func (d *DB) UpdateUser(ctx context.Context, update *store.UpdateUser) (*store.User, error) {
	b := d.builder()
	if v := update.UpdatedTs; v != nil {
		b.assign("updated_ts", *v)
	}
	if v := update.RowStatus; v != nil {
		b.assign("row_status", *v)
	}
	if v := update.Username; v != nil {
		b.assign("username", *v)
	}
	if v := update.Email; v != nil {
		b.assign("email", *v)
	}
	if v := update.Nickname; v != nil {
		b.assign("nickname", *v)
	}
	if v := update.AvatarURL; v != nil {
		b.assign("avatar_url", *v)
	}
	if v := update.Bio; v != nil {
		b.assign("bio", *v)
	}
	if len(b.set) == 0 {
		b.assign("updated_ts", time.Now().Unix())
	}
	b.and("id = ?", update.ID)

	stmt := `UPDATE users SET ` + b.setSQL() + ` WHERE ` + b.whereSQL() + ` RETURNING ` + userColumns
	var user store.User
	if err := d.conn(ctx).QueryRowContext(ctx, stmt, b.args...).Scan(
		&user.ID,
		&user.Username,
		&user.Email,
		&user.Nickname,
		&user.AvatarURL,
		&user.Bio,
		&user.RowStatus,
		&user.CreatedTs,
		&user.UpdatedTs,
	); err != nil {
		return nil, d.wrap(err, "failed to update user")
	}
	return &user, nil
}

// DeleteUser archives the user.
func (d *DB) DeleteUser(ctx context.Context, delete *store.DeleteUser) error {
	now := time.Now().Unix()
	stmt := bind(d.dialect, `UPDATE users SET row_status = ?, deleted_ts = ?, updated_ts = ? WHERE id = ?`, 0)
	result, err := d.conn(ctx).ExecContext(ctx, stmt, store.Archived, now, now, delete.ID)
	if err != nil {
		return d.wrap(err, "failed to delete user")
	}
	return affected(result)
}
