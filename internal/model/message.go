package model

import (
	"encoding/json"
	"fmt"
	"time"
)

// Message is one archived email. Immutable once stored except for the
// analytics version/payload pair, which the analysis step updates in
// place.
type Message struct {
	// IdentityHash is the content-derived primary key, computed from
	// the account username, timestamp string, sender, and subject.
	IdentityHash string `json:"identity_hash"`

	// AccountID links the message to its owning account.
	AccountID int64 `json:"account_id"`

	// Timestamp is the message date as reported by the remote source.
	Timestamp time.Time `json:"timestamp"`

	// Folder is the remote mailbox partition the message came from.
	Folder string `json:"folder"`

	// RemoteID is the server-assigned identifier within the folder.
	RemoteID string `json:"remote_id"`

	// FromAddress is the lower-cased sender address.
	FromAddress string `json:"from_address"`

	// ToAddresses is a comma-joined list of lower-cased recipients.
	ToAddresses string `json:"to_addresses"`

	// Subject is the raw subject with newlines collapsed.
	Subject string `json:"subject"`

	// ThreadKey is the canonicalized subject used for conversation
	// grouping.
	ThreadKey string `json:"thread_key"`

	// BodyText is the cleaned plain-text body.
	BodyText string `json:"body_text"`

	// AnalyticsVersion tracks which analysis pass last processed
	// this message. Zero means never analysed.
	AnalyticsVersion int `json:"analytics_version"`

	// AnalyticsPayload holds the opaque JSON-encoded analysis output.
	AnalyticsPayload []byte `json:"analytics_payload,omitempty"`
}

// Analytics decodes the analytics payload into out. It is a no-op
// when no payload has been stored yet.
func (m *Message) Analytics(out any) error {
	if len(m.AnalyticsPayload) == 0 {
		return nil
	}
	if err := json.Unmarshal(m.AnalyticsPayload, out); err != nil {
		return fmt.Errorf("decoding analytics payload for %s: %w", m.IdentityHash, err)
	}
	return nil
}

// EncodeAnalytics serializes data as the analytics payload and bumps
// the version.
func (m *Message) EncodeAnalytics(version int, data any) error {
	raw, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("encoding analytics payload for %s: %w", m.IdentityHash, err)
	}
	m.AnalyticsVersion = version
	m.AnalyticsPayload = raw
	return nil
}

// Thread summarizes one conversation within an account.
type Thread struct {
	// Key is the canonical thread key shared by the grouped messages.
	Key string `json:"key"`

	// MessageCount is the number of archived messages in the thread.
	MessageCount int `json:"message_count"`
}
