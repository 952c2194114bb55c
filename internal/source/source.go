// Package source defines the contract between the ingestion engine
// and a remote mail source. The engine depends only on folder
// listing, header-only fetches, and selective full fetches; any
// adapter implementing this interface over a mail-retrieval protocol
// is acceptable.
package source

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// AuthError indicates that authentication failed for a remote source.
type AuthError struct {
	Username string
	Message  string
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("auth error (%s): %s", e.Username, e.Message)
}

// IsAuthError reports whether err (or any error in its chain) is an AuthError.
func IsAuthError(err error) bool {
	var authErr *AuthError
	return errors.As(err, &authErr)
}

// Header is the lightweight envelope metadata of one remote message,
// returned by a headers-only fetch. No body or attachment payloads.
type Header struct {
	// RemoteID is the server-assigned identifier within the folder.
	RemoteID string

	// DateRaw is the canonical timestamp string the adapter reports
	// for this message. It feeds the identity hash and must be stable
	// across runs and machines.
	DateRaw string

	// Date is the parsed message date.
	Date time.Time

	// From is the lower-cased sender address.
	From string

	// To holds the lower-cased recipient addresses.
	To []string

	// Subject is the raw message subject.
	Subject string
}

// AttachmentPart is one non-inline attachment of a full message.
type AttachmentPart struct {
	Filename    string
	ContentType string
	Content     []byte
}

// FullMessage is the complete content of one remote message.
type FullMessage struct {
	Header

	// HTMLBody is the text/html part, empty if absent.
	HTMLBody string

	// TextBody is the text/plain part, empty if absent.
	TextBody string

	// Attachments holds the attachment parts with payloads.
	Attachments []AttachmentPart
}

// Source is the remote mail source contract. Every call opens and
// cleanly closes its own connection; a connection is never held
// across calls.
type Source interface {
	// ListFolders returns the content folders of the mailbox,
	// excluding known non-content folders such as Drafts and Trash.
	ListFolders(ctx context.Context) ([]string, error)

	// FetchHeaders returns envelope metadata for every message in the
	// folder without downloading bodies or attachments.
	FetchHeaders(ctx context.Context, folder string) ([]Header, error)

	// FetchFull returns full body and attachment payloads for exactly
	// the requested remote identifiers.
	FetchFull(ctx context.Context, folder string, remoteIDs []string) ([]FullMessage, error)
}
