package workflow

import (
	"fmt"

	"gorm.io/gorm"
)

// AcquireUserPayoutLock serializes payout posting per user across instances
// using MySQL advisory locks.
// NOTE: GET_LOCK is connection-scoped, so this must be called on the same
// *gorm.DB that will do the posting transaction. Non-MySQL dialects (tests
// run on SQLite) have no advisory locks; there the paid_out compare-and-set
// in MarkEntriesPaid is the backstop.
func AcquireUserPayoutLock(tx *gorm.DB, userId string) error {
	if tx.Dialector.Name() != "mysql" {
		return nil
	}
	lockName := fmt.Sprintf("payout:%s", userId)
	var ok int
	if err := tx.Raw("SELECT GET_LOCK(?, 30)", lockName).Scan(&ok).Error; err != nil {
		return err
	}
	if ok != 1 {
		return fmt.Errorf("could not acquire payout lock for user_id=%s", userId)
	}
	return nil
}

func ReleaseUserPayoutLock(tx *gorm.DB, userId string) {
	if tx.Dialector.Name() != "mysql" {
		return
	}
	lockName := fmt.Sprintf("payout:%s", userId)
	var _ok int
	_ = tx.Raw("SELECT RELEASE_LOCK(?)", lockName).Scan(&_ok).Error
}
