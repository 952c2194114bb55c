package ingest_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/nhle/mail-archive/internal/ingest"
	"github.com/nhle/mail-archive/internal/model"
	"github.com/nhle/mail-archive/internal/normalize"
	"github.com/nhle/mail-archive/internal/source"
	"github.com/nhle/mail-archive/internal/store"
	"github.com/nhle/mail-archive/tests/testutil"
)

// fakeSource serves canned folders and messages and records which
// remote identifiers each full fetch requested.
type fakeSource struct {
	mu sync.Mutex

	folders   []string
	headers   map[string][]source.Header
	fulls     map[string][]source.FullMessage
	headerErr map[string]error

	fullRequests map[string][][]string
}

func newFakeSource(folders ...string) *fakeSource {
	return &fakeSource{
		folders:      folders,
		headers:      make(map[string][]source.Header),
		fulls:        make(map[string][]source.FullMessage),
		headerErr:    make(map[string]error),
		fullRequests: make(map[string][][]string),
	}
}

func (f *fakeSource) add(folder string, msg source.FullMessage) {
	f.headers[folder] = append(f.headers[folder], msg.Header)
	f.fulls[folder] = append(f.fulls[folder], msg)
}

func (f *fakeSource) ListFolders(context.Context) ([]string, error) {
	return f.folders, nil
}

func (f *fakeSource) FetchHeaders(_ context.Context, folder string) ([]source.Header, error) {
	if err := f.headerErr[folder]; err != nil {
		return nil, err
	}
	return f.headers[folder], nil
}

func (f *fakeSource) FetchFull(_ context.Context, folder string, remoteIDs []string) ([]source.FullMessage, error) {
	f.mu.Lock()
	f.fullRequests[folder] = append(f.fullRequests[folder], remoteIDs)
	f.mu.Unlock()

	wanted := make(map[string]bool, len(remoteIDs))
	for _, id := range remoteIDs {
		wanted[id] = true
	}

	var out []source.FullMessage
	for _, m := range f.fulls[folder] {
		if wanted[m.RemoteID] {
			out = append(out, m)
		}
	}
	return out, nil
}

func msg(remoteID, dateRaw, from, subject, body string) source.FullMessage {
	date, _ := time.Parse(time.RFC3339, dateRaw)
	return source.FullMessage{
		Header: source.Header{
			RemoteID: remoteID,
			DateRaw:  dateRaw,
			Date:     date,
			From:     from,
			To:       []string{"alice@x.com"},
			Subject:  subject,
		},
		TextBody: body,
	}
}

func newEngine(t *testing.T) (*ingest.Engine, *store.SQLiteStore) {
	t.Helper()
	s := testutil.NewTestStore(t)
	return ingest.New(s, zap.NewNop(), 4), s
}

func TestFetchAllArchivesMessages(t *testing.T) {
	engine, s := newEngine(t)
	ctx := context.Background()

	src := newFakeSource("INBOX")
	src.add("INBOX", msg("1", "2024-01-05T10:00:00Z", "bob@x.com", "Hello", "hi"))
	src.add("INBOX", msg("2", "2024-01-05T11:00:00Z", "carol@x.com", "Re: Hello", "hi back"))

	report, err := engine.FetchAll(ctx, src, "alice@x.com", ingest.AllFolders)
	require.NoError(t, err)
	assert.False(t, report.Failed())
	assert.Equal(t, 2, report.Stored())

	messages, err := s.ListMessages(ctx, report.Account.ID, store.MessageFilter{})
	require.NoError(t, err)
	assert.Len(t, messages, 2)

	// A fully successful pass advances last_synced.
	accounts, err := s.ListAccounts(ctx)
	require.NoError(t, err)
	require.Len(t, accounts, 1)
	assert.True(t, accounts[0].LastSynced.After(model.EpochZero))
}

func TestFetchAllIsIdempotent(t *testing.T) {
	engine, s := newEngine(t)
	ctx := context.Background()

	src := newFakeSource("INBOX")
	src.add("INBOX", msg("1", "2024-01-05T10:00:00Z", "bob@x.com", "Hello", "hi"))
	src.add("INBOX", msg("2", "2024-01-05T11:00:00Z", "carol@x.com", "News", "update"))

	first, err := engine.FetchAll(ctx, src, "alice@x.com", ingest.AllFolders)
	require.NoError(t, err)
	assert.Equal(t, 2, first.Stored())

	second, err := engine.FetchAll(ctx, src, "alice@x.com", ingest.AllFolders)
	require.NoError(t, err)
	assert.Equal(t, 0, second.Stored())
	assert.Equal(t, 2, second.Folders[0].Found)
	assert.Equal(t, 0, second.Folders[0].Missing)

	// The second pass made no full fetch at all.
	assert.Len(t, src.fullRequests["INBOX"], 1)

	messages, err := s.ListMessages(ctx, second.Account.ID, store.MessageFilter{})
	require.NoError(t, err)
	assert.Len(t, messages, 2)
}

func TestFetchAllRequestsOnlyMissingIDs(t *testing.T) {
	engine, _ := newEngine(t)
	ctx := context.Background()

	src := newFakeSource("INBOX")
	for i, id := range []string{"1", "2", "3", "4", "5", "6", "7"} {
		src.add("INBOX", msg(id, time.Date(2024, 1, 5, 10, i, 0, 0, time.UTC).Format(time.RFC3339), "bob@x.com", "Msg "+id, "body"))
	}

	_, err := engine.FetchAll(ctx, src, "alice@x.com", ingest.AllFolders)
	require.NoError(t, err)

	// Three new messages appear remotely.
	for i, id := range []string{"8", "9", "10"} {
		src.add("INBOX", msg(id, time.Date(2024, 1, 5, 11, i, 0, 0, time.UTC).Format(time.RFC3339), "bob@x.com", "Msg "+id, "body"))
	}

	_, err = engine.FetchAll(ctx, src, "alice@x.com", ingest.AllFolders)
	require.NoError(t, err)

	requests := src.fullRequests["INBOX"]
	require.Len(t, requests, 2)
	assert.ElementsMatch(t, []string{"1", "2", "3", "4", "5", "6", "7"}, requests[0])
	assert.ElementsMatch(t, []string{"8", "9", "10"}, requests[1])
}

func TestFetchAllIsolatesFolderFailures(t *testing.T) {
	engine, s := newEngine(t)
	ctx := context.Background()

	src := newFakeSource("Good", "Bad")
	src.add("Good", msg("1", "2024-01-05T10:00:00Z", "bob@x.com", "Hello", "hi"))
	src.headerErr["Bad"] = errors.New("connection reset")

	report, err := engine.FetchAll(ctx, src, "alice@x.com", ingest.AllFolders)
	require.NoError(t, err)

	assert.True(t, report.Failed())
	assert.Equal(t, []string{"Bad"}, report.FailedFolders())
	assert.Equal(t, 1, report.Stored())

	messages, err := s.ListMessages(ctx, report.Account.ID, store.MessageFilter{})
	require.NoError(t, err)
	assert.Len(t, messages, 1)

	// A partial failure must not advance last_synced.
	accounts, err := s.ListAccounts(ctx)
	require.NoError(t, err)
	assert.True(t, accounts[0].LastSynced.Equal(model.EpochZero))
}

func TestFetchAllFiltersAttachments(t *testing.T) {
	engine, s := newEngine(t)
	ctx := context.Background()

	m := msg("1", "2024-01-05T10:00:00Z", "bob@x.com", "Report attached", "see attached")
	m.Attachments = []source.AttachmentPart{
		{Filename: "logo.png", ContentType: "image/png", Content: []byte("png bytes")},
		{Filename: "report.pdf", ContentType: "application/pdf", Content: []byte("pdf bytes")},
		{Filename: "invite.ics", ContentType: "text/calendar", Content: []byte("ics bytes")},
	}

	src := newFakeSource("INBOX")
	src.add("INBOX", m)

	report, err := engine.FetchAll(ctx, src, "alice@x.com", ingest.AllFolders)
	require.NoError(t, err)
	require.Equal(t, 1, report.Stored())

	pdfHash := normalize.ContentHash([]byte("pdf bytes"))
	exists, err := s.AttachmentExists(ctx, pdfHash)
	require.NoError(t, err)
	assert.True(t, exists)

	pngHash := normalize.ContentHash([]byte("png bytes"))
	exists, err = s.AttachmentExists(ctx, pngHash)
	require.NoError(t, err)
	assert.False(t, exists)

	icsHash := normalize.ContentHash([]byte("ics bytes"))
	exists, err = s.AttachmentExists(ctx, icsHash)
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestFetchAllDeduplicatesAttachmentContent(t *testing.T) {
	engine, s := newEngine(t)
	ctx := context.Background()

	a := msg("1", "2024-01-05T10:00:00Z", "bob@x.com", "First copy", "one")
	a.Attachments = []source.AttachmentPart{
		{Filename: "report.pdf", ContentType: "application/pdf", Content: []byte("same bytes")},
	}
	b := msg("2", "2024-01-05T11:00:00Z", "carol@x.com", "Second copy", "two")
	b.Attachments = []source.AttachmentPart{
		{Filename: "report-final.pdf", ContentType: "application/pdf", Content: []byte("same bytes")},
	}

	src := newFakeSource("INBOX")
	src.add("INBOX", a)
	src.add("INBOX", b)

	report, err := engine.FetchAll(ctx, src, "alice@x.com", ingest.AllFolders)
	require.NoError(t, err)
	require.Equal(t, 2, report.Stored())

	hash := normalize.ContentHash([]byte("same bytes"))

	messages, err := s.ListMessages(ctx, report.Account.ID, store.MessageFilter{})
	require.NoError(t, err)
	require.Len(t, messages, 2)

	for _, m := range messages {
		exists, err := s.LinkExists(ctx, report.Account.ID, m.IdentityHash, hash)
		require.NoError(t, err)
		assert.True(t, exists, m.IdentityHash)
	}
}

func TestFetchAllCollapsesDuplicateIdentities(t *testing.T) {
	engine, _ := newEngine(t)
	ctx := context.Background()

	// Two remote copies sharing sender, subject, and timestamp string
	// collide by design; only the first is kept.
	src := newFakeSource("INBOX")
	src.add("INBOX", msg("1", "2024-01-05T10:00:00Z", "bob@x.com", "Duplicate alert", "copy one"))
	src.add("INBOX", msg("2", "2024-01-05T10:00:00Z", "bob@x.com", "Duplicate alert", "copy two"))

	report, err := engine.FetchAll(ctx, src, "alice@x.com", ingest.AllFolders)
	require.NoError(t, err)

	folder := report.Folders[0]
	assert.Equal(t, 1, folder.StoredCount)
	assert.Equal(t, 1, folder.SkippedCount)
}

func TestFetchAllSkipsMalformedHeaders(t *testing.T) {
	engine, _ := newEngine(t)
	ctx := context.Background()

	src := newFakeSource("INBOX")
	src.add("INBOX", msg("1", "2024-01-05T10:00:00Z", "bob@x.com", "Fine", "ok"))

	broken := msg("2", "", "bob@x.com", "No date", "bad")
	src.add("INBOX", broken)

	report, err := engine.FetchAll(ctx, src, "alice@x.com", ingest.AllFolders)
	require.NoError(t, err)

	folder := report.Folders[0]
	assert.Nil(t, folder.Err)
	assert.Equal(t, 1, folder.StoredCount)
	assert.Equal(t, 1, folder.SkippedCount)
}

func TestFetchAllSingleFolder(t *testing.T) {
	engine, _ := newEngine(t)
	ctx := context.Background()

	src := newFakeSource("INBOX", "Archive")
	src.add("INBOX", msg("1", "2024-01-05T10:00:00Z", "bob@x.com", "Hello", "hi"))
	src.add("Archive", msg("2", "2024-01-05T11:00:00Z", "bob@x.com", "Old", "old"))

	report, err := engine.FetchAll(ctx, src, "alice@x.com", "Archive")
	require.NoError(t, err)

	require.Len(t, report.Folders, 1)
	assert.Equal(t, "Archive", report.Folders[0].Folder)
	assert.Equal(t, 1, report.Stored())
	assert.Empty(t, src.fullRequests["INBOX"])
}
