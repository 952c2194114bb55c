package model

// Attachment is a deduplicated attachment body, keyed by the SHA-256
// of its raw bytes. Identical content is stored once regardless of
// how many messages reference it.
type Attachment struct {
	// ContentHash is the hex SHA-256 digest of Content.
	ContentHash string `json:"content_hash"`

	// Content is the raw attachment bytes.
	Content []byte `json:"-"`
}

// AttachmentLink records that a message, under an account, carried an
// attachment with a particular filename and content type. Junction
// rows are created alongside message ingestion and never mutated.
type AttachmentLink struct {
	// AccountID is the owning account.
	AccountID int64 `json:"account_id"`

	// MessageHash is the identity hash of the carrying message.
	MessageHash string `json:"message_hash"`

	// AttachmentHash is the content hash of the attachment body.
	AttachmentHash string `json:"attachment_hash"`

	// Filename is the declared attachment filename.
	Filename string `json:"filename"`

	// ContentType is the declared MIME type.
	ContentType string `json:"content_type"`
}
