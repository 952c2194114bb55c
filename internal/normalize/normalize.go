// Package normalize converts raw message content into canonical,
// deduplicatable records: a content-derived identity hash, a thread
// grouping key, and a cleaned plain-text body. All functions are pure.
package normalize

import (
	"crypto/sha256"
	"encoding/hex"
	"regexp"
	"strings"
)

// IdentityHash derives the deterministic message fingerprint used as
// the primary key and existence-check token. It hashes the account
// username, the timestamp string exactly as reported by the remote
// source, the sender, and the subject. Body content is deliberately
// excluded, so duplicate notifications sharing all four fields
// collapse into one archived message.
func IdentityHash(username, timestamp, from, subject string) string {
	sum := sha256.Sum256([]byte(username + "_" + timestamp + from + subject))
	return hex.EncodeToString(sum[:])
}

// ContentHash returns the hex SHA-256 digest of raw attachment bytes,
// used for global attachment dedup.
func ContentHash(content []byte) string {
	sum := sha256.Sum256(content)
	return hex.EncodeToString(sum[:])
}

// Subject collapses a raw subject into a single trimmed line.
func Subject(raw string) string {
	return strings.TrimSpace(strings.ReplaceAll(raw, "\n", " "))
}

var (
	threadDateFragment = regexp.MustCompile(`:\s+\w+\s+\d{1,2},\s+\d{4}`)
	whitespaceRun      = regexp.MustCompile(`\s+`)
)

// ThreadKey canonicalizes a subject into a conversation grouping key.
// Reply and forward markers are stripped anywhere in the lowered text,
// calendar-style date fragments after a colon are removed, non-ASCII
// characters are dropped, and whitespace runs collapse to one space.
// The result is stable, not presentable.
func ThreadKey(subject string) string {
	key := strings.ToLower(subject)

	key = strings.ReplaceAll(key, "re: ", "")
	key = strings.ReplaceAll(key, "fwd: ", "")

	key = threadDateFragment.ReplaceAllString(key, "")

	var ascii strings.Builder
	ascii.Grow(len(key))
	for _, r := range key {
		if r < 0x80 {
			ascii.WriteRune(r)
		}
	}
	key = ascii.String()

	key = strings.ReplaceAll(key, "\n", " ")
	key = whitespaceRun.ReplaceAllString(key, " ")

	return key
}

// headerPrefixes are forwarded raw-header and quoted-reply markers
// that get dropped line-by-line from message bodies.
var headerPrefixes = []string{
	"FROM: ", "TO: ", "SUBJECT: ", "DATE: ", "CC: ", "BCC: ", "> ", ">> ",
}

// boilerplate substrings stripped from cleaned bodies.
var boilerplate = []string{
	"________________________________",
	"This message was sent from a notification-only email address that does not accept incoming email. Please do not reply to this message.",
	"This is an automated message. Please do not reply to this email.",
}

// BodyText produces the cleaned plain-text body for a message,
// preferring rendered HTML when present and non-empty, else the raw
// plain part. Lines are trimmed, blank lines and quoted-reply or
// forwarded-header lines are dropped, and known boilerplate substrings
// are removed. This is lossy best-effort cleanup, not a MIME-faithful
// rendering.
func BodyText(html, plain string) string {
	var text string
	switch {
	case html != "":
		text = RenderHTMLToText(html)
	case plain != "":
		text = plain
	}

	lines := strings.Split(text, "\n")
	kept := make([]string, 0, len(lines))
	for _, line := range lines {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if hasHeaderPrefix(line) {
			continue
		}
		kept = append(kept, line)
	}
	text = strings.Join(kept, "\n")

	for _, b := range boilerplate {
		text = strings.ReplaceAll(text, b, "")
	}

	return text
}

func hasHeaderPrefix(line string) bool {
	upper := strings.ToUpper(line)
	for _, prefix := range headerPrefixes {
		if strings.HasPrefix(upper, prefix) {
			return true
		}
	}
	return false
}

// ArchivableAttachment reports whether an attachment with the given
// declared content type should be archived. Calendar invites, inline
// message and delivery-status parts, text parts already captured as
// the body, and images are excluded.
func ArchivableAttachment(contentType string) bool {
	switch contentType {
	case "application/ics", "text/calendar", "text/calender":
		return false
	case "message/rfc822", "message/delivery-status", "text/html", "text/plain":
		return false
	}
	return !strings.HasPrefix(contentType, "image/")
}
