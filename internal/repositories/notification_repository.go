package repositories

import (
	"context"
	"database/sql"
	"errors"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"skillswap-service/internal/models"
)

var ErrNotificationNotFound = errors.New("notification not found")

// NotificationFilter narrows notification listings.
type NotificationFilter struct {
	IsRead *bool
	Type   string
	Limit  int
	Offset int
}

// NotificationRepository defines interactions for user notifications.
type NotificationRepository interface {
	CreateNotification(ctx context.Context, n models.Notification) (models.Notification, error)
	CreateNotifications(ctx context.Context, ns []models.Notification) ([]models.Notification, error)
	ListNotifications(ctx context.Context, recipientID string, filter NotificationFilter) ([]models.Notification, int, error)
	GetNotification(ctx context.Context, notificationID string) (models.Notification, error)
	MarkNotificationRead(ctx context.Context, notificationID string) (models.Notification, error)
	MarkAllNotificationsRead(ctx context.Context, recipientID string) (int64, error)
	DeleteNotification(ctx context.Context, notificationID string) (models.Notification, error)
	CountUnreadNotifications(ctx context.Context, recipientID string) (int, error)
}

// NotificationRepo is a sqlx-backed repository.
type NotificationRepo struct {
	db *sqlx.DB
}

// NewNotificationRepo constructs NotificationRepo.
func NewNotificationRepo(db *sqlx.DB) *NotificationRepo {
	return &NotificationRepo{db: db}
}

const notificationColumns = `id, recipient_id, sender_id, type, title, message, link, data, is_read, read_at, priority, created_at`

// CreateNotification stores a single notification.
func (r *NotificationRepo) CreateNotification(ctx context.Context, n models.Notification) (models.Notification, error) {
	if n.ID == "" {
		n.ID = uuid.NewString()
	}
	if n.Priority == "" {
		n.Priority = models.PriorityMedium
	}
	var stored models.Notification
	err := r.db.QueryRowxContext(ctx, `INSERT INTO notifications (id, recipient_id, sender_id, type, title, message, link, data, priority)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
        RETURNING `+notificationColumns,
		n.ID, n.RecipientID, n.SenderID, n.Type, n.Title, n.Message, n.Link, n.Data, n.Priority).
		StructScan(&stored)
	return stored, err
}

// CreateNotifications stores a batch inside one transaction. The batch is
// all-or-nothing: any insert failure rolls back every draft.
func (r *NotificationRepo) CreateNotifications(ctx context.Context, ns []models.Notification) ([]models.Notification, error) {
	if len(ns) == 0 {
		return []models.Notification{}, nil
	}
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, err
	}
	stored := make([]models.Notification, 0, len(ns))
	for _, n := range ns {
		if n.ID == "" {
			n.ID = uuid.NewString()
		}
		if n.Priority == "" {
			n.Priority = models.PriorityMedium
		}
		var row models.Notification
		err := tx.QueryRowxContext(ctx, `INSERT INTO notifications (id, recipient_id, sender_id, type, title, message, link, data, priority)
            VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
            RETURNING `+notificationColumns,
			n.ID, n.RecipientID, n.SenderID, n.Type, n.Title, n.Message, n.Link, n.Data, n.Priority).
			StructScan(&row)
		if err != nil {
			_ = tx.Rollback()
			return nil, err
		}
		stored = append(stored, row)
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return stored, nil
}

// ListNotifications returns a page of notifications newest-first plus the
// total matching the filter.
func (r *NotificationRepo) ListNotifications(ctx context.Context, recipientID string, filter NotificationFilter) ([]models.Notification, int, error) {
	query := `SELECT ` + notificationColumns + ` FROM notifications WHERE recipient_id=$1`
	countQuery := `SELECT COUNT(*) FROM notifications WHERE recipient_id=$1`
	args := []interface{}{recipientID}

	if filter.IsRead != nil {
		args = append(args, *filter.IsRead)
		clause := ` AND is_read=$2`
		query += clause
		countQuery += clause
	}
	if filter.Type != "" && filter.Type != "all" {
		args = append(args, filter.Type)
		clause := ` AND type=$` + strconv.Itoa(len(args))
		query += clause
		countQuery += clause
	}

	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, err
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = 20
	}
	args = append(args, limit, filter.Offset)
	query += ` ORDER BY created_at DESC LIMIT $` + strconv.Itoa(len(args)-1) + ` OFFSET $` + strconv.Itoa(len(args))

	var list []models.Notification
	if err := r.db.SelectContext(ctx, &list, query, args...); err != nil {
		return nil, 0, err
	}
	return list, total, nil
}

// GetNotification retrieves a single notification.
func (r *NotificationRepo) GetNotification(ctx context.Context, notificationID string) (models.Notification, error) {
	var n models.Notification
	err := r.db.GetContext(ctx, &n, `SELECT `+notificationColumns+` FROM notifications WHERE id=$1`, notificationID)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Notification{}, ErrNotificationNotFound
	}
	return n, err
}

// MarkNotificationRead sets the read flag and returns the updated row.
func (r *NotificationRepo) MarkNotificationRead(ctx context.Context, notificationID string) (models.Notification, error) {
	var n models.Notification
	err := r.db.QueryRowxContext(ctx, `UPDATE notifications SET is_read = TRUE, read_at = $2 WHERE id=$1 RETURNING `+notificationColumns,
		notificationID, time.Now().UTC()).StructScan(&n)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Notification{}, ErrNotificationNotFound
	}
	return n, err
}

// MarkAllNotificationsRead marks every unread notification for the recipient
// and returns how many rows changed.
func (r *NotificationRepo) MarkAllNotificationsRead(ctx context.Context, recipientID string) (int64, error) {
	res, err := r.db.ExecContext(ctx, `UPDATE notifications SET is_read = TRUE, read_at = $2 WHERE recipient_id=$1 AND is_read = FALSE`,
		recipientID, time.Now().UTC())
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// DeleteNotification removes the row and returns it so callers can tell
// whether an unread notification disappeared.
func (r *NotificationRepo) DeleteNotification(ctx context.Context, notificationID string) (models.Notification, error) {
	var n models.Notification
	err := r.db.QueryRowxContext(ctx, `DELETE FROM notifications WHERE id=$1 RETURNING `+notificationColumns, notificationID).StructScan(&n)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Notification{}, ErrNotificationNotFound
	}
	return n, err
}

// CountUnreadNotifications counts unread notifications for the recipient.
func (r *NotificationRepo) CountUnreadNotifications(ctx context.Context, recipientID string) (int, error) {
	var count int
	err := r.db.GetContext(ctx, &count, `SELECT COUNT(*) FROM notifications WHERE recipient_id=$1 AND is_read = FALSE`, recipientID)
	return count, err
}

