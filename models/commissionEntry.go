package models

import (
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
)

var (
	ErrPaidEntryImmutable = errors.New("paid commission entries are immutable")
	ErrEntriesAppendOnly  = errors.New("commission entries are append-only and cannot be deleted")
)

// CommissionEntry is a single recorded earning event for a user, denominated
// in integer minor currency units (USD cents). Entries start unpaid and are
// flipped to paid exactly once by the payout workflow; corrections happen via
// new offsetting entries, never by editing paid rows.
type CommissionEntry struct {
	ID              int64            `gorm:"primary_key" json:"id"`
	UserId          string           `gorm:"size:64;not null;index:idx_user_paid,priority:1" json:"user_id"`
	AmountCents     int64            `gorm:"not null" json:"amount_cents"`
	Description     string           `gorm:"size:255" json:"description"`
	Source          CommissionSource `gorm:"size:32;not null" json:"source"`
	IdempotencyKey  *string          `gorm:"size:64;uniqueIndex" json:"idempotency_key,omitempty"`
	PaidOut         bool             `gorm:"not null;default:false;index:idx_user_paid,priority:2" json:"paid_out"`
	PaidAt          *time.Time       `json:"paid_at"`
	PayoutReference *string          `gorm:"size:128" json:"payout_reference"`
	CreatedAt       time.Time        `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt       time.Time        `gorm:"autoUpdateTime" json:"updated_at"`
}

// BeforeUpdate enforces the append-only ledger rule for single-row updates.
// MarkEntriesPaid uses a conditional bulk UPDATE and is the only sanctioned
// mutation path for the paid transition.
func (e *CommissionEntry) BeforeUpdate(tx *gorm.DB) error {
	if e.ID == 0 {
		return nil
	}
	var current CommissionEntry
	err := tx.Session(&gorm.Session{NewDB: true}).Select("paid_out").First(&current, e.ID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil
		}
		return err
	}
	if current.PaidOut {
		return ErrPaidEntryImmutable
	}
	return nil
}

func (e *CommissionEntry) BeforeDelete(tx *gorm.DB) error {
	return ErrEntriesAppendOnly
}

// NewCommissionEntry is the accrual input.
type NewCommissionEntry struct {
	UserId      string           `json:"user_id" binding:"required"`
	AmountCents int64            `json:"amount_cents" binding:"gte=0"`
	Description string           `json:"description"`
	Source      CommissionSource `json:"source" binding:"required"`
	// IdempotencyKey deduplicates accrual retries. A repeated key returns the
	// original entry instead of creating a second one.
	IdempotencyKey string `json:"idempotency_key"`
}

func (input *NewCommissionEntry) Validate() error {
	if input.UserId == "" {
		return errors.New("user_id is required")
	}
	if input.AmountCents < 0 {
		return fmt.Errorf("amount_cents must be non-negative, got %d", input.AmountCents)
	}
	if !input.Source.IsValid() || input.Source == CommissionSourceAdjustment {
		return fmt.Errorf("unrecognized commission source %q", input.Source)
	}
	return nil
}

func CreateCommissionEntry(db *gorm.DB, input *NewCommissionEntry) (*CommissionEntry, error) {
	if err := input.Validate(); err != nil {
		return nil, err
	}
	entry := CommissionEntry{
		UserId:      input.UserId,
		AmountCents: input.AmountCents,
		Description: input.Description,
		Source:      input.Source,
		PaidOut:     false,
	}
	if input.IdempotencyKey != "" {
		entry.IdempotencyKey = &input.IdempotencyKey
	}
	if err := db.Create(&entry).Error; err != nil {
		return nil, err
	}
	return &entry, nil
}

// FindEntryByIdempotencyKey looks up a previously accepted accrual.
func FindEntryByIdempotencyKey(db *gorm.DB, key string) (*CommissionEntry, error) {
	var entry CommissionEntry
	if err := db.Where("idempotency_key = ?", key).First(&entry).Error; err != nil {
		return nil, err
	}
	return &entry, nil
}

// UnpaidSummary is the aggregate of a user's unpaid entries, computed in a
// single query so total and count come from one consistent read.
type UnpaidSummary struct {
	TotalUnpaidCents int64 `gorm:"column:total_unpaid_cents" json:"total_unpaid_cents"`
	Count            int64 `gorm:"column:entry_count" json:"count"`
}

func GetUnpaidSummary(db *gorm.DB, userId string) (*UnpaidSummary, error) {
	var summary UnpaidSummary
	err := db.Model(&CommissionEntry{}).
		Where("user_id = ? AND paid_out = ?", userId, false).
		Select("COALESCE(SUM(amount_cents), 0) AS total_unpaid_cents, COUNT(*) AS entry_count").
		Scan(&summary).Error
	if err != nil {
		return nil, err
	}
	return &summary, nil
}

func ListCommissionEntries(db *gorm.DB, userId string, limit int, offset int) ([]CommissionEntry, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	var entries []CommissionEntry
	err := db.Where("user_id = ?", userId).
		Order("id DESC").
		Limit(limit).
		Offset(offset).
		Find(&entries).Error
	return entries, err
}

// UsersWithUnpaidBalance returns the distinct user ids that currently hold
// unpaid commission. The payout-run scheduler iterates this set.
func UsersWithUnpaidBalance(db *gorm.DB) ([]string, error) {
	var userIds []string
	err := db.Model(&CommissionEntry{}).
		Where("paid_out = ?", false).
		Distinct("user_id").
		Order("user_id ASC").
		Pluck("user_id", &userIds).Error
	return userIds, err
}
