// Package ingest orchestrates per-account, per-folder concurrent
// reconciliation of a remote mailbox against the local archive:
// list folders, fetch headers, diff against the store, fetch only the
// missing bodies, normalize, persist.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/nhle/mail-archive/internal/model"
	"github.com/nhle/mail-archive/internal/normalize"
	"github.com/nhle/mail-archive/internal/source"
	"github.com/nhle/mail-archive/internal/store"
)

// DefaultFolderWorkers caps how many folders are reconciled at once,
// which also bounds simultaneous remote connections per account pass.
const DefaultFolderWorkers = 14

// AllFolders selects every archivable folder of the account.
const AllFolders = "ALL"

// Engine runs reconciliation passes against a Store.
type Engine struct {
	store   store.Store
	log     *zap.Logger
	workers int
}

// New creates an Engine. A non-positive workers value falls back to
// DefaultFolderWorkers.
func New(s store.Store, log *zap.Logger, workers int) *Engine {
	if workers <= 0 {
		workers = DefaultFolderWorkers
	}
	return &Engine{store: s, log: log, workers: workers}
}

// FetchAll reconciles the given remote source against the archive.
// folder names a single folder, or AllFolders (or empty) for every
// archivable folder. Folders run concurrently under a bounded pool;
// the call blocks until every folder worker has finished. A folder
// failure is recorded in its report and never halts sibling folders;
// last_synced advances only when every folder succeeded.
func (e *Engine) FetchAll(
	ctx context.Context,
	src source.Source,
	username string,
	folder string,
) (*Report, error) {
	acct, err := e.store.GetOrCreateAccount(ctx, username)
	if err != nil {
		return nil, fmt.Errorf("resolving account %q: %w", username, err)
	}

	var folders []string
	if folder == "" || folder == AllFolders {
		folders, err = src.ListFolders(ctx)
		if err != nil {
			return nil, fmt.Errorf("listing folders for %q: %w", username, err)
		}
	} else {
		folders = []string{folder}
	}

	report := &Report{
		RunID:   uuid.New().String(),
		Account: acct,
		Folders: make([]FolderReport, len(folders)),
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.workers)

	for i, name := range folders {
		g.Go(func() error {
			report.Folders[i] = e.reconcileFolder(gctx, src, acct, name)
			// Folder failures live in the report; never fail the group.
			return nil
		})
	}
	_ = g.Wait()

	if report.Failed() {
		e.log.Warn("finished with failed folders",
			zap.String("account", acct.Username),
			zap.String("run_id", report.RunID),
			zap.Int("failed_folders", len(report.FailedFolders())),
		)
		return report, nil
	}

	if err := e.store.SetAccountLastSynced(ctx, acct.ID); err != nil {
		return report, fmt.Errorf("recording last_synced for %q: %w", username, err)
	}

	e.log.Info("finished fetching emails",
		zap.String("account", acct.Username),
		zap.String("run_id", report.RunID),
		zap.Int("folders", len(folders)),
		zap.Int("stored", report.Stored()),
	)

	return report, nil
}

// reconcileFolder runs the per-folder procedure: headers first, diff
// against the store, then a full fetch of exactly the missing
// identifiers, persisting each message with an explicit outcome.
func (e *Engine) reconcileFolder(
	ctx context.Context,
	src source.Source,
	acct model.Account,
	folder string,
) FolderReport {
	rep := FolderReport{Folder: folder}
	log := e.log.With(
		zap.String("account", acct.Username),
		zap.String("folder", folder),
	)

	log.Info("querying folder")

	headers, err := src.FetchHeaders(ctx, folder)
	if err != nil {
		rep.Err = fmt.Errorf("fetching headers: %w", err)
		log.Error("header fetch failed", zap.Error(err))
		return rep
	}
	rep.Found = len(headers)
	log.Info("found messages", zap.Int("count", rep.Found))

	var missing []string
	for _, h := range headers {
		hash, err := headerIdentity(acct.Username, h)
		if err != nil {
			// A malformed header skips that single message only.
			rep.record(MessageOutcome{
				RemoteID: h.RemoteID,
				Status:   OutcomeSkipped,
				Reason:   err.Error(),
			})
			log.Warn("skipping malformed header",
				zap.String("remote_id", h.RemoteID), zap.Error(err))
			continue
		}

		exists, err := e.store.MessageExists(ctx, hash)
		if err != nil {
			rep.record(MessageOutcome{
				RemoteID: h.RemoteID,
				Status:   OutcomeFailed,
				Err:      err,
			})
			log.Error("existence check failed",
				zap.String("remote_id", h.RemoteID), zap.Error(err))
			continue
		}
		if exists {
			continue
		}
		missing = append(missing, h.RemoteID)
	}
	rep.Missing = len(missing)

	if len(missing) == 0 {
		log.Info("folder up to date")
		return rep
	}

	log.Info("fetching missing messages", zap.Int("count", len(missing)))

	fulls, err := src.FetchFull(ctx, folder, missing)
	if err != nil {
		rep.Err = fmt.Errorf("fetching full messages: %w", err)
		log.Error("full fetch failed", zap.Error(err))
		return rep
	}

	for _, m := range fulls {
		outcome := e.persistMessage(ctx, acct, folder, m)
		rep.record(outcome)
		if outcome.Status == OutcomeFailed {
			log.Error("persisting message failed",
				zap.String("remote_id", m.RemoteID), zap.Error(outcome.Err))
		}
	}

	log.Info("finished folder",
		zap.Int("found", rep.Found),
		zap.Int("missing", rep.Missing),
		zap.Int("stored", rep.StoredCount),
		zap.Int("skipped", rep.SkippedCount),
		zap.Int("failed", rep.FailedCount),
	)

	return rep
}

// persistMessage normalizes one fetched message and writes it plus
// its attachment links. Store errors are fatal for this message only.
func (e *Engine) persistMessage(
	ctx context.Context,
	acct model.Account,
	folder string,
	m source.FullMessage,
) MessageOutcome {
	msg, items, err := buildMessage(acct, folder, m)
	if err != nil {
		return MessageOutcome{
			RemoteID: m.RemoteID,
			Status:   OutcomeSkipped,
			Reason:   err.Error(),
		}
	}

	if err := e.store.PutMessage(ctx, msg); err != nil {
		// A sibling worker may have stored the same identity between
		// the existence check and this insert.
		if errors.Is(err, store.ErrDuplicate) {
			return MessageOutcome{
				RemoteID: m.RemoteID,
				Status:   OutcomeSkipped,
				Reason:   "already archived",
			}
		}
		return MessageOutcome{RemoteID: m.RemoteID, Status: OutcomeFailed, Err: err}
	}

	for _, item := range items {
		exists, err := e.store.AttachmentExists(ctx, item.att.ContentHash)
		if err != nil {
			return MessageOutcome{RemoteID: m.RemoteID, Status: OutcomeFailed, Err: err}
		}
		if !exists {
			if err := e.store.PutAttachment(ctx, item.att); err != nil {
				return MessageOutcome{RemoteID: m.RemoteID, Status: OutcomeFailed, Err: err}
			}
		}

		exists, err = e.store.LinkExists(ctx, item.link.AccountID, item.link.MessageHash, item.link.AttachmentHash)
		if err != nil {
			return MessageOutcome{RemoteID: m.RemoteID, Status: OutcomeFailed, Err: err}
		}
		if !exists {
			if err := e.store.PutAttachmentLink(ctx, item.link); err != nil {
				return MessageOutcome{RemoteID: m.RemoteID, Status: OutcomeFailed, Err: err}
			}
		}
	}

	return MessageOutcome{RemoteID: m.RemoteID, Status: OutcomeStored}
}

// attachmentItem pairs deduplicated attachment content with the link
// row tying it to its message.
type attachmentItem struct {
	att  model.Attachment
	link model.AttachmentLink
}

// headerIdentity computes the identity hash for a header-only record.
// The same fields feed buildMessage, so the hash from the header phase
// matches the hash of the fully fetched message.
func headerIdentity(username string, h source.Header) (string, error) {
	if h.DateRaw == "" {
		return "", fmt.Errorf("message %s has no date", h.RemoteID)
	}
	subject := normalize.Subject(h.Subject)
	return normalize.IdentityHash(username, h.DateRaw, h.From, subject), nil
}

// buildMessage normalizes a fetched message into its archive record
// and the attachment items that survive content-type filtering.
func buildMessage(
	acct model.Account,
	folder string,
	m source.FullMessage,
) (model.Message, []attachmentItem, error) {
	hash, err := headerIdentity(acct.Username, m.Header)
	if err != nil {
		return model.Message{}, nil, err
	}

	subject := normalize.Subject(m.Subject)
	msg := model.Message{
		IdentityHash: hash,
		AccountID:    acct.ID,
		Timestamp:    m.Date,
		Folder:       folder,
		RemoteID:     m.RemoteID,
		FromAddress:  m.From,
		ToAddresses:  strings.Join(m.To, ","),
		Subject:      subject,
		ThreadKey:    normalize.ThreadKey(subject),
		BodyText:     normalize.BodyText(m.HTMLBody, m.TextBody),
	}

	var items []attachmentItem
	for _, part := range m.Attachments {
		if !normalize.ArchivableAttachment(part.ContentType) {
			continue
		}

		contentHash := normalize.ContentHash(part.Content)
		items = append(items, attachmentItem{
			att: model.Attachment{
				ContentHash: contentHash,
				Content:     part.Content,
			},
			link: model.AttachmentLink{
				AccountID:      acct.ID,
				MessageHash:    hash,
				AttachmentHash: contentHash,
				Filename:       part.Filename,
				ContentType:    part.ContentType,
			},
		})
	}

	return msg, items, nil
}
