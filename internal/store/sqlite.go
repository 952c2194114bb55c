package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	sqlite "modernc.org/sqlite"

	"github.com/nhle/mail-archive/internal/model"
)

// SQLiteStore implements the Store interface using a local SQLite database.
type SQLiteStore struct {
	db *sqlx.DB
}

// NewSQLiteStore opens (or creates) a SQLite database at dbPath,
// enables WAL mode, and runs any pending schema migrations. The
// connection pool is capped at a single connection so that writes
// from concurrent folder workers serialize at the handle rather than
// failing with SQLITE_BUSY.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sqlx.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("opening sqlite db: %w", err)
	}

	db.SetMaxOpenConns(1)

	// Enable WAL mode for better concurrent read performance.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling WAL mode: %w", err)
	}

	// Enable foreign keys.
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling foreign keys: %w", err)
	}

	if _, err := db.Exec("PRAGMA busy_timeout=5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting busy timeout: %w", err)
	}

	s := &SQLiteStore{db: db}
	if err := s.runMigrations(); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return s, nil
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// runMigrations checks the current schema version and applies any
// outstanding migrations in order.
func (s *SQLiteStore) runMigrations() error {
	currentVersion := 0

	// Check if schema_version table exists.
	var tableCount int
	err := s.db.Get(
		&tableCount,
		"SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name='schema_version'",
	)
	if err != nil {
		return fmt.Errorf("checking schema_version table: %w", err)
	}

	if tableCount > 0 {
		err = s.db.Get(&currentVersion, "SELECT COALESCE(MAX(version), 0) FROM schema_version")
		if err != nil {
			return fmt.Errorf("reading schema version: %w", err)
		}
	}

	for _, m := range migrations {
		if m.version <= currentVersion {
			continue
		}
		if _, err := s.db.Exec(m.sql); err != nil {
			return fmt.Errorf("applying migration v%d: %w", m.version, err)
		}
	}

	return nil
}

// GetOrCreateAccount looks an account up by username, creating it
// with an epoch-zero last_synced sentinel on first encounter.
func (s *SQLiteStore) GetOrCreateAccount(
	ctx context.Context,
	username string,
) (model.Account, error) {
	var acct model.Account

	row := s.db.QueryRowxContext(ctx,
		"SELECT id, username, last_synced FROM accounts WHERE username = ?",
		username,
	)
	err := row.Scan(&acct.ID, &acct.Username, &acct.LastSynced)
	if err == nil {
		return acct, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return model.Account{}, fmt.Errorf("looking up account %q: %w", username, err)
	}

	res, err := s.db.ExecContext(ctx,
		"INSERT INTO accounts (username, last_synced) VALUES (?, ?)",
		username, model.EpochZero,
	)
	if err != nil {
		return model.Account{}, fmt.Errorf("creating account %q: %w", username, err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return model.Account{}, fmt.Errorf("reading new account id for %q: %w", username, err)
	}

	return model.Account{
		ID:         id,
		Username:   username,
		LastSynced: model.EpochZero,
	}, nil
}

// ListAccounts returns all known accounts.
func (s *SQLiteStore) ListAccounts(ctx context.Context) ([]model.Account, error) {
	rows, err := s.db.QueryxContext(ctx,
		"SELECT id, username, last_synced FROM accounts ORDER BY id",
	)
	if err != nil {
		return nil, fmt.Errorf("querying accounts: %w", err)
	}
	defer rows.Close()

	var accounts []model.Account
	for rows.Next() {
		var acct model.Account
		if err := rows.Scan(&acct.ID, &acct.Username, &acct.LastSynced); err != nil {
			return nil, fmt.Errorf("scanning account row: %w", err)
		}
		accounts = append(accounts, acct)
	}

	return accounts, rows.Err()
}

// SetAccountLastSynced records the completion time of a fully
// successful reconciliation pass.
func (s *SQLiteStore) SetAccountLastSynced(ctx context.Context, accountID int64) error {
	_, err := s.db.ExecContext(ctx,
		"UPDATE accounts SET last_synced = ? WHERE id = ?",
		time.Now().UTC(), accountID,
	)
	if err != nil {
		return fmt.Errorf("updating last_synced for account %d: %w", accountID, err)
	}
	return nil
}

// MessageExists reports whether a message with the given identity
// hash is already archived.
func (s *SQLiteStore) MessageExists(ctx context.Context, identityHash string) (bool, error) {
	var count int
	err := s.db.GetContext(ctx, &count,
		"SELECT COUNT(*) FROM messages WHERE identity_hash = ?", identityHash,
	)
	if err != nil {
		return false, fmt.Errorf("checking message %s: %w", identityHash, err)
	}
	return count > 0, nil
}

// PutMessage inserts a new message. A message whose identity hash is
// already present yields ErrDuplicate; callers are expected to have
// checked MessageExists first and to treat the race-window duplicate
// as a skip.
func (s *SQLiteStore) PutMessage(ctx context.Context, msg model.Message) error {
	payload := string(msg.AnalyticsPayload)
	if payload == "" {
		payload = "{}"
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO messages (
			identity_hash, account_id, timestamp, folder, remote_id,
			from_address, to_addresses, subject, thread_key, body_text,
			analytics_version, analytics_payload
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		msg.IdentityHash, msg.AccountID, msg.Timestamp.UTC(), msg.Folder, msg.RemoteID,
		msg.FromAddress, msg.ToAddresses, msg.Subject, msg.ThreadKey, msg.BodyText,
		msg.AnalyticsVersion, payload,
	)
	if err != nil {
		if isConstraintViolation(err) {
			return fmt.Errorf("inserting message %s: %w", msg.IdentityHash, ErrDuplicate)
		}
		return fmt.Errorf("inserting message %s: %w", msg.IdentityHash, err)
	}
	return nil
}

// AttachmentExists reports whether attachment content with the given
// hash is already stored.
func (s *SQLiteStore) AttachmentExists(ctx context.Context, contentHash string) (bool, error) {
	var count int
	err := s.db.GetContext(ctx, &count,
		"SELECT COUNT(*) FROM attachments WHERE content_hash = ?", contentHash,
	)
	if err != nil {
		return false, fmt.Errorf("checking attachment %s: %w", contentHash, err)
	}
	return count > 0, nil
}

// PutAttachment stores attachment content. Re-inserting identical
// content is a silent no-op, which makes the check-then-insert
// pattern safe under concurrent folder workers.
func (s *SQLiteStore) PutAttachment(ctx context.Context, att model.Attachment) error {
	_, err := s.db.ExecContext(ctx,
		"INSERT OR IGNORE INTO attachments (content_hash, binary_content) VALUES (?, ?)",
		att.ContentHash, att.Content,
	)
	if err != nil {
		return fmt.Errorf("inserting attachment %s: %w", att.ContentHash, err)
	}
	return nil
}

// LinkExists reports whether a message-attachment link row exists.
func (s *SQLiteStore) LinkExists(
	ctx context.Context,
	accountID int64,
	messageHash, attachmentHash string,
) (bool, error) {
	var count int
	err := s.db.GetContext(ctx, &count, `
		SELECT COUNT(*) FROM message_attachment_links
		WHERE account_id = ? AND message_hash = ? AND attachment_hash = ?`,
		accountID, messageHash, attachmentHash,
	)
	if err != nil {
		return false, fmt.Errorf("checking link %s/%s: %w", messageHash, attachmentHash, err)
	}
	return count > 0, nil
}

// PutAttachmentLink inserts a link row if absent.
func (s *SQLiteStore) PutAttachmentLink(ctx context.Context, link model.AttachmentLink) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT OR IGNORE INTO message_attachment_links (
			account_id, message_hash, attachment_hash, filename, content_type
		) VALUES (?, ?, ?, ?, ?)`,
		link.AccountID, link.MessageHash, link.AttachmentHash,
		link.Filename, link.ContentType,
	)
	if err != nil {
		return fmt.Errorf("inserting link %s/%s: %w", link.MessageHash, link.AttachmentHash, err)
	}
	return nil
}

// UpdateMessageAnalytics sets the analytics version and payload for
// an archived message in place. Messages are otherwise immutable.
func (s *SQLiteStore) UpdateMessageAnalytics(
	ctx context.Context,
	identityHash string,
	version int,
	payload []byte,
) error {
	if len(payload) == 0 {
		payload = []byte("{}")
	}

	_, err := s.db.ExecContext(ctx,
		"UPDATE messages SET analytics_version = ?, analytics_payload = ? WHERE identity_hash = ?",
		version, string(payload), identityHash,
	)
	if err != nil {
		return fmt.Errorf("updating analytics for %s: %w", identityHash, err)
	}
	return nil
}

const messageColumns = `
	identity_hash, account_id, timestamp, folder, remote_id,
	from_address, to_addresses, subject, thread_key, body_text,
	analytics_version, analytics_payload`

// ListMessages returns an account's messages ordered newest-first,
// optionally restricted to messages below a minimum analytics version.
func (s *SQLiteStore) ListMessages(
	ctx context.Context,
	accountID int64,
	filter MessageFilter,
) ([]model.Message, error) {
	query := "SELECT " + messageColumns + " FROM messages WHERE account_id = ?"
	args := []interface{}{accountID}

	if filter.MinAnalyticsVersion != nil {
		query += " AND analytics_version < ?"
		args = append(args, *filter.MinAnalyticsVersion)
	}
	query += " ORDER BY timestamp DESC"

	rows, err := s.db.QueryxContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying messages for account %d: %w", accountID, err)
	}
	defer rows.Close()

	return scanMessages(rows)
}

// ListThreads returns an account's conversation threads with message
// counts, ordered by most recent message first.
func (s *SQLiteStore) ListThreads(ctx context.Context, accountID int64) ([]model.Thread, error) {
	rows, err := s.db.QueryxContext(ctx, `
		SELECT thread_key, COUNT(*)
		FROM messages
		WHERE account_id = ?
		GROUP BY thread_key
		ORDER BY MAX(timestamp) DESC`,
		accountID,
	)
	if err != nil {
		return nil, fmt.Errorf("querying threads for account %d: %w", accountID, err)
	}
	defer rows.Close()

	var threads []model.Thread
	for rows.Next() {
		var t model.Thread
		if err := rows.Scan(&t.Key, &t.MessageCount); err != nil {
			return nil, fmt.Errorf("scanning thread row: %w", err)
		}
		threads = append(threads, t)
	}

	return threads, rows.Err()
}

// ListMessagesInThread returns the messages of one thread, where the
// first message is the most recent.
func (s *SQLiteStore) ListMessagesInThread(
	ctx context.Context,
	accountID int64,
	threadKey string,
) ([]model.Message, error) {
	rows, err := s.db.QueryxContext(ctx,
		"SELECT "+messageColumns+` FROM messages
		WHERE account_id = ? AND thread_key = ?
		ORDER BY timestamp DESC`,
		accountID, threadKey,
	)
	if err != nil {
		return nil, fmt.Errorf("querying thread %q for account %d: %w", threadKey, accountID, err)
	}
	defer rows.Close()

	return scanMessages(rows)
}

// scanMessages scans message rows from a sqlx.Rows result set.
func scanMessages(rows *sqlx.Rows) ([]model.Message, error) {
	var messages []model.Message
	for rows.Next() {
		var (
			msg     model.Message
			payload string
		)
		err := rows.Scan(
			&msg.IdentityHash, &msg.AccountID, &msg.Timestamp, &msg.Folder, &msg.RemoteID,
			&msg.FromAddress, &msg.ToAddresses, &msg.Subject, &msg.ThreadKey, &msg.BodyText,
			&msg.AnalyticsVersion, &payload,
		)
		if err != nil {
			return nil, fmt.Errorf("scanning message row: %w", err)
		}
		msg.AnalyticsPayload = []byte(payload)
		messages = append(messages, msg)
	}

	return messages, rows.Err()
}

// SQLite extended result codes for constraint violations on primary
// and unique keys.
const (
	sqliteConstraintPrimaryKey = 1555
	sqliteConstraintUnique     = 2067
)

// isConstraintViolation reports whether err is a duplicate-key
// constraint failure from the SQLite driver.
func isConstraintViolation(err error) bool {
	var se *sqlite.Error
	if !errors.As(err, &se) {
		return false
	}
	code := se.Code()
	return code == sqliteConstraintPrimaryKey || code == sqliteConstraintUnique
}
