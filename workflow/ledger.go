package workflow

import (
	"time"

	"github.com/earnflowhq/earnflow_backend/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// LedgerSnapshot is the frozen set of unpaid entries a payout attempt is
// "for". The eventual MarkEntriesPaid call must use exactly this set;
// entries accrued after the snapshot belong to a later payout.
type LedgerSnapshot struct {
	EntryIds   []int64
	TotalCents int64
}

// SnapshotUnpaidEntries captures the exact unpaid entry set for a user.
// Must run inside the payout posting transaction so the set and its total
// come from one consistent read.
func SnapshotUnpaidEntries(tx *gorm.DB, userId string) (*LedgerSnapshot, error) {
	q := tx.Where("user_id = ? AND paid_out = ?", userId, false).Order("id ASC")
	if tx.Dialector.Name() == "mysql" {
		q = q.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	var entries []models.CommissionEntry
	if err := q.Find(&entries).Error; err != nil {
		return nil, err
	}

	snapshot := &LedgerSnapshot{EntryIds: make([]int64, 0, len(entries))}
	for _, e := range entries {
		snapshot.EntryIds = append(snapshot.EntryIds, e.ID)
		snapshot.TotalCents += e.AmountCents
	}
	return snapshot, nil
}

// MarkEntriesPaid flips exactly entryIds to paid, all or nothing. The single
// conditional UPDATE is the compare-and-set: if any entry in the set is
// already paid the affected-row count comes up short, ErrLedgerConflict is
// returned, and the caller's transaction rolls back with no entry changed.
func MarkEntriesPaid(tx *gorm.DB, entryIds []int64, payoutReference string) error {
	if len(entryIds) == 0 {
		return ErrNoUnpaidCommissions
	}
	now := time.Now().UTC()
	res := tx.Model(&models.CommissionEntry{}).
		Where("id IN ? AND paid_out = ?", entryIds, false).
		Updates(map[string]interface{}{
			"paid_out":         true,
			"paid_at":          &now,
			"payout_reference": payoutReference,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected != int64(len(entryIds)) {
		return ErrLedgerConflict
	}
	return nil
}
