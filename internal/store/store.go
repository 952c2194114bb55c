package store

import (
	"context"
	"errors"

	"github.com/nhle/mail-archive/internal/model"
)

// ErrDuplicate is returned by PutMessage when a message with the same
// identity hash is already archived. Concurrent folder workers race
// between existence check and insert; callers treat this error as a
// skip, not a failure.
var ErrDuplicate = errors.New("store: duplicate key")

// MessageFilter narrows ListMessages results.
type MessageFilter struct {
	// MinAnalyticsVersion, when set, restricts results to messages
	// whose analytics version is below the given value (i.e. messages
	// still awaiting that analysis pass).
	MinAnalyticsVersion *int
}

// Store is the persistence interface for accounts, messages,
// attachments, and message-attachment links. Every mutating call
// commits synchronously before returning, and existence checks
// precede inserts so repeated ingestion of the same remote message is
// a no-op.
type Store interface {
	// GetOrCreateAccount looks an account up by username, creating it
	// with an epoch-zero last_synced on first encounter.
	GetOrCreateAccount(ctx context.Context, username string) (model.Account, error)

	// ListAccounts returns all known accounts.
	ListAccounts(ctx context.Context) ([]model.Account, error)

	// SetAccountLastSynced records the completion time of a fully
	// successful reconciliation pass.
	SetAccountLastSynced(ctx context.Context, accountID int64) error

	// MessageExists reports whether a message with the given identity
	// hash is already archived.
	MessageExists(ctx context.Context, identityHash string) (bool, error)

	// PutMessage inserts a new message. Returns ErrDuplicate if the
	// identity hash is already present; it is not an upsert.
	PutMessage(ctx context.Context, msg model.Message) error

	// AttachmentExists reports whether attachment content with the
	// given hash is already stored.
	AttachmentExists(ctx context.Context, contentHash string) (bool, error)

	// PutAttachment stores attachment content if absent; storing the
	// same content twice is a silent no-op.
	PutAttachment(ctx context.Context, att model.Attachment) error

	// LinkExists reports whether a message-attachment link row exists.
	LinkExists(ctx context.Context, accountID int64, messageHash, attachmentHash string) (bool, error)

	// PutAttachmentLink inserts a link row if absent.
	PutAttachmentLink(ctx context.Context, link model.AttachmentLink) error

	// UpdateMessageAnalytics sets the analytics version and payload
	// for an archived message in place.
	UpdateMessageAnalytics(ctx context.Context, identityHash string, version int, payload []byte) error

	// ListMessages returns an account's messages ordered newest-first.
	ListMessages(ctx context.Context, accountID int64, filter MessageFilter) ([]model.Message, error)

	// ListThreads returns an account's conversation threads with
	// message counts, ordered by most recent message first.
	ListThreads(ctx context.Context, accountID int64) ([]model.Thread, error)

	// ListMessagesInThread returns the messages of one thread,
	// newest-first.
	ListMessagesInThread(ctx context.Context, accountID int64, threadKey string) ([]model.Message, error)
}
