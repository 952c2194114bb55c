package model

import "time"

// EpochZero is the last_synced sentinel for accounts that have never
// completed a full reconciliation pass.
var EpochZero = time.Unix(0, 0).UTC()

// Account represents one distinct remote mailbox identity, keyed by
// username. Identity fields are immutable once created.
type Account struct {
	// ID is the store-assigned identifier for this account.
	ID int64 `json:"id"`

	// Username is the remote mailbox login, unique across accounts.
	Username string `json:"username"`

	// LastSynced is when the last fully successful reconciliation
	// pass finished. EpochZero until the first complete pass.
	LastSynced time.Time `json:"last_synced"`
}

// Credentials holds the connection settings for one remote mailbox.
type Credentials struct {
	// Host is the IMAP server address, with optional :port.
	Host string `json:"host"`

	// Username is the mailbox login name.
	Username string `json:"username"`

	// Password is the mailbox password. Never serialized.
	Password string `json:"-"`
}
