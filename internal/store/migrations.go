package store

// migration holds a single schema migration with its target version and SQL.
type migration struct {
	version int
	sql     string
}

// migrations is the ordered list of schema migrations.
// Each migration's version must be sequential starting from 1.
var migrations = []migration{
	{
		version: 1,
		sql: `
CREATE TABLE IF NOT EXISTS schema_version (
	version INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS accounts (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	username    TEXT NOT NULL UNIQUE,
	last_synced DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS messages (
	identity_hash     TEXT PRIMARY KEY,
	account_id        INTEGER NOT NULL REFERENCES accounts(id),
	timestamp         DATETIME NOT NULL,
	folder            TEXT NOT NULL DEFAULT '',
	remote_id         TEXT NOT NULL DEFAULT '',
	from_address      TEXT NOT NULL DEFAULT '',
	to_addresses      TEXT NOT NULL DEFAULT '',
	subject           TEXT NOT NULL DEFAULT '',
	thread_key        TEXT NOT NULL DEFAULT '',
	body_text         TEXT NOT NULL DEFAULT '',
	analytics_version INTEGER NOT NULL DEFAULT 0,
	analytics_payload TEXT NOT NULL DEFAULT '{}'
);

CREATE TABLE IF NOT EXISTS attachments (
	content_hash   TEXT PRIMARY KEY,
	binary_content BLOB NOT NULL
);

CREATE TABLE IF NOT EXISTS message_attachment_links (
	account_id      INTEGER NOT NULL REFERENCES accounts(id),
	message_hash    TEXT NOT NULL REFERENCES messages(identity_hash),
	attachment_hash TEXT NOT NULL REFERENCES attachments(content_hash),
	filename        TEXT NOT NULL DEFAULT '',
	content_type    TEXT NOT NULL DEFAULT '',
	PRIMARY KEY (account_id, message_hash, attachment_hash)
);

CREATE INDEX IF NOT EXISTS idx_messages_account_timestamp
	ON messages(account_id, timestamp);
CREATE INDEX IF NOT EXISTS idx_messages_account_thread
	ON messages(account_id, thread_key);

INSERT INTO schema_version (version) VALUES (1);
`,
	},
	{
		version: 2,
		sql: `
CREATE INDEX IF NOT EXISTS idx_links_attachment_hash
	ON message_attachment_links(attachment_hash);
CREATE INDEX IF NOT EXISTS idx_messages_analytics_version
	ON messages(account_id, analytics_version);

INSERT INTO schema_version (version) VALUES (2);
`,
	},
}
