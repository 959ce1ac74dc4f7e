package domain

import "time"

// AccountID is the opaque principal handed to us by the identity provider.
type AccountID string

type WalletKind string

const (
	WalletKindPlug             WalletKind = "plug"
	WalletKindInternetIdentity WalletKind = "internetIdentity"
)

func (k WalletKind) Valid() bool {
	switch k {
	case WalletKindPlug, WalletKindInternetIdentity:
		return true
	}
	return false
}

type User struct {
	ID         AccountID  `json:"id"`
	WalletKind WalletKind `json:"wallet_kind"`
	// Balance is a cache of the completed personal-pool ledger entries.
	// Only the ledger repository writes it.
	Balance   Amount    `json:"balance"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
