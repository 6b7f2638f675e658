package notification

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
)

const (
	DefaultPageSize = 20
	MaxPageSize     = 100
)

type Repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) Create(ctx context.Context, n *Notification) error {
	return r.db.WithContext(ctx).Create(n).Error
}

func (r *Repository) GetByID(ctx context.Context, id int64) (*Notification, error) {
	var n Notification
	err := r.db.WithContext(ctx).First(&n, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &n, nil
}

// ListByRecipient returns one page of the recipient's notifications, newest
// first. The id tiebreak keeps ordering deterministic when timestamps collide.
func (r *Repository) ListByRecipient(ctx context.Context, recipientID int64, page, limit int) ([]Notification, error) {
	if limit <= 0 {
		limit = DefaultPageSize
	}
	if limit > MaxPageSize {
		limit = MaxPageSize
	}
	if page < 1 {
		page = 1
	}

	var out []Notification
	err := r.db.WithContext(ctx).
		Where("recipient_id = ?", recipientID).
		Order("created_at DESC").
		Order("id DESC").
		Limit(limit).
		Offset((page - 1) * limit).
		Find(&out).Error
	return out, err
}

func (r *Repository) CountUnread(ctx context.Context, recipientID int64) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&Notification{}).
		Where("recipient_id = ? AND is_read = ?", recipientID, false).
		Count(&count).Error
	return count, err
}

func (r *Repository) MarkRead(ctx context.Context, id int64) error {
	res := r.db.WithContext(ctx).
		Model(&Notification{}).
		Where("id = ?", id).
		Update("is_read", true)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *Repository) MarkAllRead(ctx context.Context, recipientID int64) error {
	return r.db.WithContext(ctx).
		Model(&Notification{}).
		Where("recipient_id = ? AND is_read = ?", recipientID, false).
		Update("is_read", true).Error
}

func (r *Repository) MarkAllUnread(ctx context.Context, recipientID int64) error {
	return r.db.WithContext(ctx).
		Model(&Notification{}).
		Where("recipient_id = ? AND is_read = ?", recipientID, true).
		Update("is_read", false).Error
}

func (r *Repository) Delete(ctx context.Context, id int64) error {
	res := r.db.WithContext(ctx).Delete(&Notification{}, id)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *Repository) DeleteAllByRecipient(ctx context.Context, recipientID int64) (int64, error) {
	res := r.db.WithContext(ctx).
		Where("recipient_id = ?", recipientID).
		Delete(&Notification{})
	return res.RowsAffected, res.Error
}

// DeleteOlderThan removes one recipient's notifications older than the
// cutoff. The client decides when to call this; the server only executes.
func (r *Repository) DeleteOlderThan(ctx context.Context, recipientID int64, cutoff time.Time) (int64, error) {
	res := r.db.WithContext(ctx).
		Where("recipient_id = ? AND created_at < ?", recipientID, cutoff).
		Delete(&Notification{})
	return res.RowsAffected, res.Error
}

// DeleteAllOlderThan is the global retention sweep used by cmd/cleanup.
func (r *Repository) DeleteAllOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	res := r.db.WithContext(ctx).
		Where("created_at < ?", cutoff).
		Delete(&Notification{})
	return res.RowsAffected, res.Error
}

// CountRecent is the idempotence probe for lifecycle rules: how many
// notifications of this type about this project were already delivered to the
// recipient since the given instant.
func (r *Repository) CountRecent(ctx context.Context, recipientID int64, t Type, projectID int64, since time.Time) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&Notification{}).
		Where("recipient_id = ? AND type = ? AND project_id = ? AND created_at >= ?", recipientID, t, projectID, since).
		Count(&count).Error
	return count, err
}
