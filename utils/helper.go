package utils

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bsm/redislock"
	"github.com/earnflowhq/earnflow_backend/config"
	"github.com/shopspring/decimal"
)

var ErrLockNotObtained = errors.New("lock not obtained")

// ObtainUserPayoutLock takes the per-user payout lock. The caller must hold
// the returned lock until the payout attempt reaches a terminal state and
// release it with lock.Release(ctx).
//
// Redis locking is a best-effort fast-fail: reliability must not depend on
// Redis, so the payout transaction also takes a MySQL advisory lock and the
// paid transition itself is a compare-and-set.
func ObtainUserPayoutLock(ctx context.Context, userId string, ttl time.Duration, moduleName string, functionName string) (*redislock.Lock, error) {
	logger := config.GetLogger()
	locker := config.GetRedisLock()
	if locker == nil {
		config.LogError(logger, moduleName, functionName, "Redis lock not initialized", userId, errors.New("redis lock is nil"))
		return nil, errors.New("service not ready (redis lock not initialized)")
	}
	lockKey := fmt.Sprintf("payout:%s", userId)
	lock, err := locker.Obtain(ctx, lockKey, ttl, nil)
	if err == redislock.ErrNotObtained {
		return nil, ErrLockNotObtained
	} else if err != nil {
		config.LogError(logger, moduleName, functionName, "Error obtaining payout lock", userId, err)
		return nil, err
	}
	return lock, nil
}

// CentsToDecimal converts integer USD cents into a decimal dollar amount.
// Ledger arithmetic stays in integer cents; decimals only appear at the
// conversion boundary.
func CentsToDecimal(amountCents int64) decimal.Decimal {
	return decimal.NewFromInt(amountCents).Div(decimal.NewFromInt(100))
}
