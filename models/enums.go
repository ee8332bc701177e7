package models

type CommissionSource string

const (
	CommissionSourceTaskCompletion CommissionSource = "TASK_COMPLETION"
	CommissionSourceAffiliateSale  CommissionSource = "AFFILIATE_SALE"
	CommissionSourceReferralBonus  CommissionSource = "REFERRAL_BONUS"
	CommissionSourceAdRevenueShare CommissionSource = "AD_REVENUE_SHARE"
	// CommissionSourceAdjustment is reserved for operator-created offsetting
	// entries. The public accrual API never accepts it.
	CommissionSourceAdjustment CommissionSource = "ADJUSTMENT"
)

func (s CommissionSource) IsValid() bool {
	switch s {
	case CommissionSourceTaskCompletion,
		CommissionSourceAffiliateSale,
		CommissionSourceReferralBonus,
		CommissionSourceAdRevenueShare,
		CommissionSourceAdjustment:
		return true
	}
	return false
}

type PayoutBatchStatus string

const (
	PayoutBatchStatusPending   PayoutBatchStatus = "PENDING"
	PayoutBatchStatusSubmitted PayoutBatchStatus = "SUBMITTED"
	PayoutBatchStatusSucceeded PayoutBatchStatus = "SUCCEEDED"
	PayoutBatchStatusFailed    PayoutBatchStatus = "FAILED"
)

type PayoutDestinationKind string

const (
	PayoutDestinationBank          PayoutDestinationKind = "bank"
	PayoutDestinationWallet        PayoutDestinationKind = "wallet"
	PayoutDestinationCryptoAddress PayoutDestinationKind = "crypto_address"
)

func (k PayoutDestinationKind) IsValid() bool {
	switch k {
	case PayoutDestinationBank, PayoutDestinationWallet, PayoutDestinationCryptoAddress:
		return true
	}
	return false
}

type PayoutEventType string

const (
	PayoutEventSucceeded              PayoutEventType = "payout.succeeded"
	PayoutEventFailed                 PayoutEventType = "payout.failed"
	PayoutEventReconciliationRequired PayoutEventType = "payout.reconciliation_required"
)

// Outbox publish states for payout event records.
const (
	OutboxPublishStatusPending    = "PENDING"
	OutboxPublishStatusProcessing = "PROCESSING"
	OutboxPublishStatusSent       = "SENT"
	OutboxPublishStatusFailed     = "FAILED"
	OutboxPublishStatusDead       = "DEAD"
)

// Ledger amounts are always USD cents; payouts may settle in another currency.
const (
	CurrencyUSD = "USD"
	CurrencyBTC = "BTC"
	CurrencyETH = "ETH"
)
