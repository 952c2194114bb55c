// Package imap adapts an IMAP mailbox to the source.Source contract
// using go-imap v2. Each operation dials, authenticates, and logs out
// on its own, so no connection outlives a single call.
package imap

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/emersion/go-imap/v2"
	"github.com/emersion/go-imap/v2/imapclient"
	"github.com/emersion/go-message/mail"

	"github.com/nhle/mail-archive/internal/model"
	"github.com/nhle/mail-archive/internal/source"
)

// Client implements source.Source over IMAP.
type Client struct {
	host     string
	port     string
	username string
	password string
}

// NewClient creates an IMAP source for the given account credentials.
// The host may carry an explicit port; the implicit-TLS default of
// 993 is used otherwise.
func NewClient(creds model.Credentials) *Client {
	host, port := creds.Host, "993"
	if h, p, err := net.SplitHostPort(creds.Host); err == nil {
		host, port = h, p
	}
	return &Client{
		host:     host,
		port:     port,
		username: creds.Username,
		password: creds.Password,
	}
}

// connect establishes a connection to the IMAP server, authenticates,
// and returns the connected client. The caller is responsible for
// calling Logout on the returned client.
func (c *Client) connect(_ context.Context) (*imapclient.Client, error) {
	addr := c.host + ":" + c.port

	var client *imapclient.Client
	var err error

	// Port 143 is the cleartext port; everything else gets implicit TLS.
	if c.port == "143" {
		client, err = imapclient.DialStartTLS(addr, nil)
	} else {
		client, err = imapclient.DialTLS(addr, nil)
	}
	if err != nil {
		return nil, fmt.Errorf("connecting to IMAP %s: %w", addr, err)
	}

	if err := client.Login(c.username, c.password).Wait(); err != nil {
		_ = client.Logout().Wait()
		return nil, &source.AuthError{
			Username: c.username,
			Message:  fmt.Sprintf("authentication failed: %v", err),
		}
	}

	return client, nil
}

// excludedFolders are remote folders that never hold archivable
// content.
var excludedFolders = map[string]bool{
	"Outbox": true,
	"Notes":  true,
	"Junk":   true,
	"Drafts": true,
	"Trash":  true,
}

// archivableFolder reports whether a remote folder should be included
// in an archive pass.
func archivableFolder(name string) bool {
	if excludedFolders[name] {
		return false
	}
	if strings.HasPrefix(name, "Sync Issues") || strings.HasPrefix(name, "Deleted") {
		return false
	}
	return true
}

// ListFolders connects to IMAP and returns the content folders of the
// mailbox, excluding known non-content folders.
func (c *Client) ListFolders(ctx context.Context) ([]string, error) {
	client, err := c.connect(ctx)
	if err != nil {
		return nil, err
	}
	defer func() { _ = client.Logout().Wait() }()

	mailboxes, err := client.List("", "*", nil).Collect()
	if err != nil {
		return nil, fmt.Errorf("listing folders: %w", err)
	}

	var folders []string
	for _, mbox := range mailboxes {
		if archivableFolder(mbox.Mailbox) {
			folders = append(folders, mbox.Mailbox)
		}
	}

	return folders, nil
}

// FetchHeaders connects to IMAP, selects the folder read-only, and
// returns envelope metadata for every message in it. No bodies or
// attachment payloads are downloaded.
func (c *Client) FetchHeaders(ctx context.Context, folder string) ([]source.Header, error) {
	client, err := c.connect(ctx)
	if err != nil {
		return nil, err
	}
	defer func() { _ = client.Logout().Wait() }()

	selectData, err := client.Select(folder, &imap.SelectOptions{ReadOnly: true}).Wait()
	if err != nil {
		return nil, fmt.Errorf("selecting folder %q: %w", folder, err)
	}
	if selectData.NumMessages == 0 {
		return nil, nil
	}

	var seqSet imap.SeqSet
	seqSet.AddRange(1, 0) // 1:*

	fetchOpts := &imap.FetchOptions{
		Envelope: true,
		UID:      true,
	}

	fetchCmd := client.Fetch(seqSet, fetchOpts)
	defer fetchCmd.Close()

	var headers []source.Header
	for {
		msg := fetchCmd.Next()
		if msg == nil {
			break
		}

		buf, err := msg.Collect()
		if err != nil {
			continue
		}

		headers = append(headers, headerFromBuffer(buf))
	}

	if err := fetchCmd.Close(); err != nil {
		return headers, fmt.Errorf("fetching headers from %q: %w", folder, err)
	}

	return headers, nil
}

// FetchFull connects to IMAP, selects the folder read-only, and
// fetches full body and attachment payloads for exactly the requested
// remote identifiers.
func (c *Client) FetchFull(
	ctx context.Context,
	folder string,
	remoteIDs []string,
) ([]source.FullMessage, error) {
	if len(remoteIDs) == 0 {
		return nil, nil
	}

	uids := make([]imap.UID, 0, len(remoteIDs))
	for _, id := range remoteIDs {
		uid, err := strconv.ParseUint(id, 10, 32)
		if err != nil {
			return nil, fmt.Errorf("invalid remote id %q: %w", id, err)
		}
		uids = append(uids, imap.UID(uid))
	}

	client, err := c.connect(ctx)
	if err != nil {
		return nil, err
	}
	defer func() { _ = client.Logout().Wait() }()

	if _, err := client.Select(folder, &imap.SelectOptions{ReadOnly: true}).Wait(); err != nil {
		return nil, fmt.Errorf("selecting folder %q: %w", folder, err)
	}

	bodySection := &imap.FetchItemBodySection{Peek: true}
	fetchOpts := &imap.FetchOptions{
		Envelope:    true,
		UID:         true,
		BodySection: []*imap.FetchItemBodySection{bodySection},
	}

	fetchCmd := client.Fetch(imap.UIDSetNum(uids...), fetchOpts)
	defer fetchCmd.Close()

	var messages []source.FullMessage
	for {
		msg := fetchCmd.Next()
		if msg == nil {
			break
		}

		buf, err := msg.Collect()
		if err != nil {
			continue
		}

		full := source.FullMessage{Header: headerFromBuffer(buf)}
		if raw := buf.FindBodySection(bodySection); raw != nil {
			full.TextBody, full.HTMLBody, full.Attachments = parseMIMEBody(raw)
		}

		messages = append(messages, full)
	}

	if err := fetchCmd.Close(); err != nil {
		return messages, fmt.Errorf("fetching messages from %q: %w", folder, err)
	}

	return messages, nil
}

// headerFromBuffer extracts a source.Header from a FetchMessageBuffer.
// The envelope date is canonicalized to an RFC 3339 UTC string, which
// is the stable timestamp form fed into the identity hash.
func headerFromBuffer(buf *imapclient.FetchMessageBuffer) source.Header {
	h := source.Header{
		RemoteID: strconv.FormatUint(uint64(buf.UID), 10),
	}

	if buf.Envelope != nil {
		h.Subject = buf.Envelope.Subject
		h.Date = buf.Envelope.Date
		h.DateRaw = buf.Envelope.Date.UTC().Format(time.RFC3339)

		if len(buf.Envelope.From) > 0 {
			h.From = strings.ToLower(buf.Envelope.From[0].Addr())
		}
		for _, to := range buf.Envelope.To {
			h.To = append(h.To, strings.ToLower(to.Addr()))
		}
	}

	return h
}

// parseMIMEBody parses a raw RFC 2822 message using go-message and
// extracts the text/plain body, text/html body, and attachment parts
// with their payloads.
func parseMIMEBody(raw []byte) (
	textBody string, htmlBody string, attachments []source.AttachmentPart,
) {
	mr, err := mail.CreateReader(bytes.NewReader(raw))
	if err != nil {
		// If parsing fails, treat the whole thing as plain text.
		return string(raw), "", nil
	}
	defer mr.Close()

	for {
		part, err := mr.NextPart()
		if err == io.EOF {
			break
		}
		if err != nil {
			break
		}

		switch h := part.Header.(type) {
		case *mail.InlineHeader:
			contentType, _, _ := h.ContentType()
			body, readErr := io.ReadAll(part.Body)
			if readErr != nil {
				continue
			}

			switch {
			case strings.HasPrefix(contentType, "text/plain"):
				textBody = string(body)
			case strings.HasPrefix(contentType, "text/html"):
				htmlBody = string(body)
			}

		case *mail.AttachmentHeader:
			filename, _ := h.Filename()
			contentType, _, _ := h.ContentType()

			body, readErr := io.ReadAll(part.Body)
			if readErr != nil {
				continue
			}

			attachments = append(attachments, source.AttachmentPart{
				Filename:    filename,
				ContentType: contentType,
				Content:     body,
			})
		}
	}

	return textBody, htmlBody, attachments
}
