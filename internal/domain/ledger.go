package domain

import (
	"fmt"
	"time"
)

// Amount is an integer quantity of the smallest currency unit (e8s).
type Amount int64

type TransactionKind string

const (
	TransactionDeposit           TransactionKind = "deposit"
	TransactionWithdraw          TransactionKind = "withdraw"
	TransactionGroupContribution TransactionKind = "groupContribution"
	TransactionGroupPayout       TransactionKind = "groupPayout"
)

func (k TransactionKind) Valid() bool {
	switch k {
	case TransactionDeposit, TransactionWithdraw, TransactionGroupContribution, TransactionGroupPayout:
		return true
	}
	return false
}

// Direction is how an entry moves the owner's personal pool.
type Direction int

const (
	DirectionNone Direction = iota
	DirectionCredit
	DirectionDebit
)

// Direction reports the personal-pool effect of k. Contributions are funded
// from the external payment method and leave the personal pool untouched.
func (k TransactionKind) Direction() Direction {
	switch k {
	case TransactionDeposit, TransactionGroupPayout:
		return DirectionCredit
	case TransactionWithdraw:
		return DirectionDebit
	case TransactionGroupContribution:
		return DirectionNone
	}
	return DirectionNone
}

// SignedAmount is the personal balance delta of a completed entry.
func (k TransactionKind) SignedAmount(a Amount) Amount {
	switch k.Direction() {
	case DirectionCredit:
		return a
	case DirectionDebit:
		return -a
	case DirectionNone:
		return 0
	}
	return 0
}

type TransactionStatus string

const (
	TransactionPending   TransactionStatus = "pending"
	TransactionCompleted TransactionStatus = "completed"
	TransactionFailed    TransactionStatus = "failed"
	TransactionCancelled TransactionStatus = "cancelled"
)

func (s TransactionStatus) Valid() bool {
	switch s {
	case TransactionPending, TransactionCompleted, TransactionFailed, TransactionCancelled:
		return true
	}
	return false
}

func (s TransactionStatus) IsTerminal() bool {
	switch s {
	case TransactionCompleted, TransactionFailed, TransactionCancelled:
		return true
	case TransactionPending:
		return false
	}
	return false
}

type PaymentMethodType string

const (
	PaymentMobileMoney  PaymentMethodType = "mobileMoney"
	PaymentBankTransfer PaymentMethodType = "bankTransfer"
	PaymentCrypto       PaymentMethodType = "crypto"
)

type MobileMoneyProvider string

const (
	ProviderMTN        MobileMoneyProvider = "mtn"
	ProviderVodafone   MobileMoneyProvider = "vodafone"
	ProviderAirtelTigo MobileMoneyProvider = "airtelTigo"
)

func (p MobileMoneyProvider) Valid() bool {
	switch p {
	case ProviderMTN, ProviderVodafone, ProviderAirtelTigo:
		return true
	}
	return false
}

// PaymentMethod is an opaque tag for the external rail. Provider is set
// only for mobile money.
type PaymentMethod struct {
	Type     PaymentMethodType   `json:"type"`
	Provider MobileMoneyProvider `json:"provider,omitempty"`
}

func (m PaymentMethod) Validate() error {
	switch m.Type {
	case PaymentMobileMoney:
		if !m.Provider.Valid() {
			return BadRequest("unknown mobile money provider %q", m.Provider)
		}
		return nil
	case PaymentBankTransfer, PaymentCrypto:
		if m.Provider != "" {
			return BadRequest("provider is only valid for mobile money")
		}
		return nil
	}
	return BadRequest("unknown payment method %q", m.Type)
}

func (m PaymentMethod) String() string {
	if m.Type == PaymentMobileMoney {
		return fmt.Sprintf("%s:%s", m.Type, m.Provider)
	}
	return string(m.Type)
}

// ParsePaymentMethod is the inverse of PaymentMethod.String.
func ParsePaymentMethod(s string) (PaymentMethod, error) {
	for i := 0; i < len(s); i++ {
		if s[i] == ':' {
			m := PaymentMethod{Type: PaymentMethodType(s[:i]), Provider: MobileMoneyProvider(s[i+1:])}
			return m, m.Validate()
		}
	}
	m := PaymentMethod{Type: PaymentMethodType(s)}
	return m, m.Validate()
}

// Transaction is an append-only ledger record. Only Status may change, and
// only from pending to a terminal status.
type Transaction struct {
	ID        string            `json:"id"`
	AccountID AccountID         `json:"account_id"`
	Kind      TransactionKind   `json:"kind"`
	Amount    Amount            `json:"amount"`
	Method    PaymentMethod     `json:"method"`
	Status    TransactionStatus `json:"status"`
	Reference *string           `json:"reference,omitempty"`
	Timestamp time.Time         `json:"timestamp"`
	GroupID   *GroupCode        `json:"group_id,omitempty"`
	Cycle     *uint32           `json:"cycle,omitempty"`
	DedupeKey *string           `json:"-"`
	SettledAt *time.Time        `json:"settled_at,omitempty"`
}

func ContributionKey(group GroupCode, user AccountID, cycle uint32) string {
	return fmt.Sprintf("contrib:%s:%s:%d", group, user, cycle)
}

func PayoutKey(group GroupCode, user AccountID, cycle uint32) string {
	return fmt.Sprintf("payout:%s:%s:%d", group, user, cycle)
}

// Receipt is what mutating ledger operations hand back. Duplicate is set when
// an idempotent retry returned an earlier result.
type Receipt struct {
	Transaction Transaction `json:"transaction"`
	Duplicate   bool        `json:"duplicate"`
}

// HistoryCursor marks the last entry of a page; the next page starts after it.
type HistoryCursor struct {
	Timestamp time.Time
	ID        string
}

type HistoryFilter struct {
	Kind    *TransactionKind
	Status  *TransactionStatus
	GroupID *GroupCode
	Limit   int
	After   *HistoryCursor
}

type HistoryPage struct {
	Transactions []Transaction `json:"transactions"`
	Next         *HistoryCursor
}
