package normalize

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIdentityHashIsStable(t *testing.T) {
	first := IdentityHash("alice", "2024-01-05T10:00:00", "bob@x.com", "Hello")
	second := IdentityHash("alice", "2024-01-05T10:00:00", "bob@x.com", "Hello")

	assert.Equal(t, first, second)

	// Known digest of "alice_2024-01-05T10:00:00bob@x.comHello"; this
	// must never drift between releases or existing archives break.
	assert.Equal(t,
		"137048ba1c29fb1be2b5b04f66c57fc3720464d968fa241956bd9252ded76dc5",
		first,
	)
}

func TestIdentityHashIgnoresBody(t *testing.T) {
	// The hash covers only username, timestamp, sender, and subject,
	// so there is nothing body-related to vary. Changing any of the
	// four inputs changes the hash.
	base := IdentityHash("alice", "2024-01-05T10:00:00", "bob@x.com", "Hello")

	assert.NotEqual(t, base, IdentityHash("alice", "2024-01-05T10:00:01", "bob@x.com", "Hello"))
	assert.NotEqual(t, base, IdentityHash("alice", "2024-01-05T10:00:00", "eve@x.com", "Hello"))
	assert.NotEqual(t, base, IdentityHash("alice", "2024-01-05T10:00:00", "bob@x.com", "Goodbye"))
	assert.NotEqual(t, base, IdentityHash("alicia", "2024-01-05T10:00:00", "bob@x.com", "Hello"))
}

func TestThreadKeyStripsMarkersAndDates(t *testing.T) {
	assert.Equal(t, ThreadKey("meeting"), ThreadKey("Re: Meeting: Jan 5, 2024"))
	assert.Equal(t, "status", ThreadKey("Fwd: RE: Status"))
	assert.Equal(t, "weekly report", ThreadKey("Weekly Report"))
}

func TestThreadKeyStripsMarkersAnywhere(t *testing.T) {
	// Markers are removed anywhere in the lowered text, not only as
	// a prefix.
	assert.Equal(t, "update project", ThreadKey("Update re: Project"))
}

func TestThreadKeyDropsNonASCII(t *testing.T) {
	assert.Equal(t, "party ", ThreadKey("Party 🎉"))
	assert.Equal(t, "caf menu", ThreadKey("Café Menu"))
}

func TestThreadKeyCollapsesWhitespace(t *testing.T) {
	assert.Equal(t, "one two three", ThreadKey("One\nTwo\t  Three"))
}

func TestSubjectCollapsesNewlines(t *testing.T) {
	assert.Equal(t, "Hello  World", Subject("Hello\n World\n"))
}

func TestBodyTextPrefersHTML(t *testing.T) {
	got := BodyText("<p>Hello from HTML</p>", "plain fallback")
	assert.Equal(t, "Hello from HTML", got)
}

func TestBodyTextFallsBackToPlain(t *testing.T) {
	got := BodyText("", "plain fallback")
	assert.Equal(t, "plain fallback", got)
}

func TestBodyTextDropsQuotedAndHeaderLines(t *testing.T) {
	in := strings.Join([]string{
		"  Hello there  ",
		"",
		"> quoted reply",
		">> older reply",
		"From: someone@example.com",
		"subject: forwarded subject",
		"Actual content",
	}, "\n")

	got := BodyText("", in)
	assert.Equal(t, "Hello there\nActual content", got)
}

func TestBodyTextStripsBoilerplate(t *testing.T) {
	in := "Keep this\n________________________________\nThis is an automated message. Please do not reply to this email."
	got := BodyText("", in)
	assert.Equal(t, "Keep this\n\n", got)
}

func TestRenderHTMLToTextSkipsScriptAndStyle(t *testing.T) {
	in := `<html><head><style>p{color:red}</style><script>alert(1)</script></head>` +
		`<body><p>First</p><p>Second</p></body></html>`
	got := RenderHTMLToText(in)

	assert.Contains(t, got, "First")
	assert.Contains(t, got, "Second")
	assert.NotContains(t, got, "color:red")
	assert.NotContains(t, got, "alert")
}

func TestRenderHTMLToTextBreaksOnBlocks(t *testing.T) {
	got := RenderHTMLToText("<div>one</div><div>two<br>three</div>")
	assert.Equal(t, []string{"one", "two", "three"}, strings.Split(strings.TrimRight(got, "\n"), "\n"))
}

func TestArchivableAttachment(t *testing.T) {
	excluded := []string{
		"application/ics", "text/calendar", "text/calender",
		"message/rfc822", "message/delivery-status",
		"text/html", "text/plain",
		"image/png", "image/jpeg",
	}
	for _, ct := range excluded {
		assert.False(t, ArchivableAttachment(ct), ct)
	}

	included := []string{"application/pdf", "application/zip", "audio/mpeg", "application/octet-stream"}
	for _, ct := range included {
		assert.True(t, ArchivableAttachment(ct), ct)
	}
}

func TestContentHashMatchesContentOnly(t *testing.T) {
	a := ContentHash([]byte("same bytes"))
	b := ContentHash([]byte("same bytes"))
	c := ContentHash([]byte("other bytes"))

	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
}
