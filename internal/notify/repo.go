package notify

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

var ErrNotFound = errors.New("notification not found")

type Repo struct{ DB *pgxpool.Pool }

const notifColumns = `id, type, title, message, data, fingerprint, read, assigned_user_id, assigned_user_name, created_at`

func scanNotification(row pgx.Row) (Notification, error) {
	var (
		n        Notification
		raw      []byte
		uid, unm *string
	)
	err := row.Scan(&n.ID, &n.Type, &n.Title, &n.Message, &raw, &n.Fingerprint,
		&n.Read, &uid, &unm, &n.Timestamp)
	if errors.Is(err, pgx.ErrNoRows) {
		return Notification{}, ErrNotFound
	}
	if err != nil {
		return Notification{}, err
	}
	if err := json.Unmarshal(raw, &n.Data); err != nil {
		return Notification{}, err
	}
	if uid != nil {
		name := ""
		if unm != nil {
			name = *unm
		}
		n.AssignedTo = &Assignee{UserID: *uid, UserName: name}
	}
	return n, nil
}

// Insert persists the notification and drops everything past the retention
// cap, oldest first, in the same transaction.
func (r *Repo) Insert(ctx context.Context, n Notification, keep int) error {
	raw, err := json.Marshal(n.Data)
	if err != nil {
		return err
	}

	tx, err := r.DB.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var uid, unm *string
	if n.AssignedTo != nil {
		uid, unm = &n.AssignedTo.UserID, &n.AssignedTo.UserName
	}
	if _, err := tx.Exec(ctx, `
		INSERT INTO notifications (id, type, title, message, data, fingerprint, read,
		                           assigned_user_id, assigned_user_name, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)`,
		n.ID, n.Type, n.Title, n.Message, raw, n.Fingerprint, n.Read, uid, unm, n.Timestamp); err != nil {
		return err
	}
	if _, err := tx.Exec(ctx, `
		DELETE FROM notifications WHERE id IN (
			SELECT id FROM notifications ORDER BY created_at DESC OFFSET $1)`, keep); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func (r *Repo) RecentByFingerprint(ctx context.Context, fp string, since time.Time) (Notification, error) {
	return scanNotification(r.DB.QueryRow(ctx, `
		SELECT `+notifColumns+` FROM notifications
		WHERE fingerprint=$1 AND created_at >= $2
		ORDER BY created_at DESC LIMIT 1`, fp, since))
}

func (r *Repo) Get(ctx context.Context, id string) (Notification, error) {
	return scanNotification(r.DB.QueryRow(ctx,
		`SELECT `+notifColumns+` FROM notifications WHERE id=$1`, id))
}

func (r *Repo) List(ctx context.Context, limit int) ([]Notification, error) {
	rows, err := r.DB.Query(ctx, `
		SELECT `+notifColumns+` FROM notifications ORDER BY created_at DESC LIMIT $1`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Notification
	for rows.Next() {
		n, err := scanNotification(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, n)
	}
	return out, rows.Err()
}

func (r *Repo) UnreadCount(ctx context.Context) (int, error) {
	var n int
	err := r.DB.QueryRow(ctx, `SELECT COUNT(*) FROM notifications WHERE NOT read`).Scan(&n)
	return n, err
}

func (r *Repo) MarkRead(ctx context.Context, id string) error {
	ct, err := r.DB.Exec(ctx, `UPDATE notifications SET read=TRUE WHERE id=$1`, id)
	if err != nil {
		return err
	}
	if ct.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *Repo) MarkAllRead(ctx context.Context) error {
	_, err := r.DB.Exec(ctx, `UPDATE notifications SET read=TRUE WHERE NOT read`)
	return err
}

func (r *Repo) Delete(ctx context.Context, id string) error {
	ct, err := r.DB.Exec(ctx, `DELETE FROM notifications WHERE id=$1`, id)
	if err != nil {
		return err
	}
	if ct.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *Repo) DeleteAll(ctx context.Context) error {
	_, err := r.DB.Exec(ctx, `DELETE FROM notifications`)
	return err
}

func (r *Repo) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	ct, err := r.DB.Exec(ctx, `DELETE FROM notifications WHERE created_at < $1`, cutoff)
	if err != nil {
		return 0, err
	}
	return ct.RowsAffected(), nil
}

// DeleteForOrder purges every notification referencing the order, matched by
// id or embedded order code in the event payload.
func (r *Repo) DeleteForOrder(ctx context.Context, orderID, orderCode string) error {
	_, err := r.DB.Exec(ctx, `
		DELETE FROM notifications
		WHERE ($1 <> '' AND data->>'orderId' = $1)
		   OR ($2 <> '' AND data->>'orderCode' = $2)`, orderID, orderCode)
	return err
}

// SetAssigneeForOrder mirrors order assignment onto the matching
// notifications. A nil assignee clears the field.
func (r *Repo) SetAssigneeForOrder(ctx context.Context, orderID, orderCode string, a *Assignee) error {
	var uid, unm *string
	if a != nil {
		uid, unm = &a.UserID, &a.UserName
	}
	_, err := r.DB.Exec(ctx, `
		UPDATE notifications SET assigned_user_id=$3, assigned_user_name=$4
		WHERE ($1 <> '' AND data->>'orderId' = $1)
		   OR ($2 <> '' AND data->>'orderCode' = $2)`, orderID, orderCode, uid, unm)
	return err
}
