package models

import "time"

// AccountType is the closed set of ledger account kinds. USER_WALLET and
// ESCROW balances must never go negative; EXTERNAL_* and PLATFORM_RESERVE
// are the ledger's boundary with the outside world and may.
type AccountType string

const (
	AccountUserWallet       AccountType = "USER_WALLET"
	AccountEscrow           AccountType = "ESCROW"
	AccountPlatformRevenue  AccountType = "PLATFORM_REVENUE"
	AccountPlatformReserve  AccountType = "PLATFORM_RESERVE"
	AccountExternalMoneyIn  AccountType = "EXTERNAL_MONEY_IN"
	AccountExternalMoneyOut AccountType = "EXTERNAL_MONEY_OUT"
)

// MayGoNegative reports whether a debit may push this account type below zero.
func (t AccountType) MayGoNegative() bool {
	switch t {
	case AccountExternalMoneyIn, AccountExternalMoneyOut, AccountPlatformReserve:
		return true
	default:
		return false
	}
}

type EntryType string

const (
	EntryWalletTopup        EntryType = "WALLET_TOPUP"
	EntryWalletWithdrawal   EntryType = "WALLET_WITHDRAWAL"
	EntryPurchase           EntryType = "PURCHASE"
	EntryEscrowRelease      EntryType = "ESCROW_RELEASE"
	EntryRefund             EntryType = "REFUND"
	EntryFeeCollection      EntryType = "FEE_COLLECTION"
	EntryGroupPurchase      EntryType = "GROUP_PURCHASE"
	EntryGroupRefund        EntryType = "GROUP_REFUND"
	EntryInstallmentPayment EntryType = "INSTALLMENT_PAYMENT"
	EntryInstallmentRefund  EntryType = "INSTALLMENT_REFUND"
	EntryExternalPayment    EntryType = "EXTERNAL_PAYMENT"
	EntryExternalWithdrawal EntryType = "EXTERNAL_WITHDRAWAL"
	EntryDisputeRefund      EntryType = "DISPUTE_REFUND"
	EntryInitialBalance     EntryType = "INITIAL_BALANCE"
	EntryAdjustment         EntryType = "ADJUSTMENT"
)

type EscrowStatus string

const (
	EscrowHeld     EscrowStatus = "HELD"
	EscrowDisputed EscrowStatus = "DISPUTED"
	EscrowReleased EscrowStatus = "RELEASED"
	EscrowRefunded EscrowStatus = "REFUNDED"
)

// Terminal reports whether no further transition is allowed.
func (s EscrowStatus) Terminal() bool {
	return s == EscrowReleased || s == EscrowRefunded
}

type SessionDomain string

const (
	SessionProduct SessionDomain = "PRODUCT"
	SessionEvent   SessionDomain = "EVENT"
)

type HistoryDirection string

const (
	DirectionCredit HistoryDirection = "CREDIT"
	DirectionDebit  HistoryDirection = "DEBIT"
)

type User struct {
	ID           string    `db:"id" json:"id"`
	Username     string    `db:"username" json:"username"`
	Email        string    `db:"email" json:"email"`
	PasswordHash string    `db:"password_hash" json:"-"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
}

// LedgerAccount is an addressable balance holder. Balance is stored in minor
// units and must always equal the journal replay for the account.
type LedgerAccount struct {
	ID          string      `db:"id" json:"id"`
	Type        AccountType `db:"type" json:"type"`
	OwnerUserID *string     `db:"owner_user_id" json:"owner_user_id,omitempty"`
	Currency    string      `db:"currency" json:"currency"`
	Balance     int64       `db:"balance" json:"balance"`
	CreatedAt   time.Time   `db:"created_at" json:"created_at"`
}

// LedgerEntry is one immutable paired debit/credit movement. There is no
// update or delete path anywhere in the codebase.
type LedgerEntry struct {
	ID              string    `db:"id" json:"id"`
	TransactionRef  string    `db:"transaction_ref" json:"transaction_ref"`
	DebitAccountID  string    `db:"debit_account_id" json:"debit_account_id"`
	CreditAccountID string    `db:"credit_account_id" json:"credit_account_id"`
	Amount          int64     `db:"amount" json:"amount"`
	Currency        string    `db:"currency" json:"currency"`
	EntryType       EntryType `db:"entry_type" json:"entry_type"`
	ReferenceType   string    `db:"reference_type" json:"reference_type"`
	ReferenceID     string    `db:"reference_id" json:"reference_id"`
	CreatedAt       time.Time `db:"created_at" json:"created_at"`
}

type EscrowAccount struct {
	ID                string        `db:"id" json:"id"`
	EscrowNumber      string        `db:"escrow_number" json:"escrow_number"`
	CheckoutSessionID string        `db:"checkout_session_id" json:"checkout_session_id"`
	SessionDomain     SessionDomain `db:"session_domain" json:"session_domain"`
	LedgerAccountID   string        `db:"ledger_account_id" json:"ledger_account_id"`
	BuyerUserID       string        `db:"buyer_user_id" json:"buyer_user_id"`
	SellerUserID      string        `db:"seller_user_id" json:"seller_user_id"`
	Amount            int64         `db:"amount" json:"amount"`
	Currency          string        `db:"currency" json:"currency"`
	Status            EscrowStatus  `db:"status" json:"status"`
	CreatedAt         time.Time     `db:"created_at" json:"created_at"`
	ReleasedAt        *time.Time    `db:"released_at" json:"released_at,omitempty"`
	RefundedAt        *time.Time    `db:"refunded_at" json:"refunded_at,omitempty"`
}

// Wallet wraps exactly one USER_WALLET ledger account, created lazily on
// first use. Deactivation blocks outgoing debits only; incoming credits,
// such as an escrow release in flight, still land.
type Wallet struct {
	ID                 string     `db:"id" json:"id"`
	OwnerUserID        string     `db:"owner_user_id" json:"owner_user_id"`
	LedgerAccountID    string     `db:"ledger_account_id" json:"ledger_account_id"`
	IsActive           bool       `db:"is_active" json:"is_active"`
	LastActivityAt     time.Time  `db:"last_activity_at" json:"last_activity_at"`
	DeactivatedAt      *time.Time `db:"deactivated_at" json:"deactivated_at,omitempty"`
	DeactivatedBy      *string    `db:"deactivated_by" json:"deactivated_by,omitempty"`
	DeactivationReason *string    `db:"deactivation_reason" json:"deactivation_reason,omitempty"`
	CreatedAt          time.Time  `db:"created_at" json:"created_at"`
}

type TransactionHistory struct {
	ID             string           `db:"id" json:"id"`
	TransactionRef string           `db:"transaction_ref" json:"transaction_ref"`
	AccountOwner   string           `db:"account_owner" json:"account_owner"`
	EntryType      EntryType        `db:"entry_type" json:"entry_type"`
	Direction      HistoryDirection `db:"direction" json:"direction"`
	Amount         int64            `db:"amount" json:"amount"`
	Currency       string           `db:"currency" json:"currency"`
	Title          string           `db:"title" json:"title"`
	Description    string           `db:"description" json:"description"`
	ReferenceType  string           `db:"reference_type" json:"reference_type"`
	ReferenceID    string           `db:"reference_id" json:"reference_id"`
	Status         string           `db:"status" json:"status"`
	CreatedAt      time.Time        `db:"created_at" json:"created_at"`
}

// DisplayAmount is derived at read time: credits positive, debits negated.
// Never stored, so it cannot diverge from the ledger.
func (t TransactionHistory) DisplayAmount() int64 {
	if t.Direction == DirectionDebit {
		return -t.Amount
	}
	return t.Amount
}
