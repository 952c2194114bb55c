// Package analyse is the read-side collaborator over the archive: it
// summarizes archived mail per account and per conversation thread
// through the Store's read accessors only.
package analyse

import (
	"context"
	"fmt"
	"io"

	"github.com/charmbracelet/lipgloss"

	"github.com/nhle/mail-archive/internal/store"
)

var (
	accountStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	threadStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	dimStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
)

// Analyser renders archive summaries.
type Analyser struct {
	store store.Store
	out   io.Writer
}

// New creates an Analyser writing to out.
func New(s store.Store, out io.Writer) *Analyser {
	return &Analyser{store: s, out: out}
}

// Run prints every account's archived messages newest-first, followed
// by its conversation threads with message counts.
func (a *Analyser) Run(ctx context.Context) error {
	accounts, err := a.store.ListAccounts(ctx)
	if err != nil {
		return fmt.Errorf("listing accounts: %w", err)
	}

	for _, acct := range accounts {
		fmt.Fprintln(a.out, accountStyle.Render(acct.Username))

		messages, err := a.store.ListMessages(ctx, acct.ID, store.MessageFilter{})
		if err != nil {
			return fmt.Errorf("listing messages for %q: %w", acct.Username, err)
		}

		for _, msg := range messages {
			fmt.Fprintf(a.out, "%s - %s - %s - %s\n",
				acct.Username,
				dimStyle.Render(msg.Timestamp.Format("2006-01-02 15:04")),
				msg.Folder,
				msg.Subject,
			)
		}

		threads, err := a.store.ListThreads(ctx, acct.ID)
		if err != nil {
			return fmt.Errorf("listing threads for %q: %w", acct.Username, err)
		}

		if len(threads) > 0 {
			fmt.Fprintln(a.out, threadStyle.Render("threads:"))
			for _, t := range threads {
				fmt.Fprintf(a.out, "  %s (%d)\n", t.Key, t.MessageCount)
			}
		}

		fmt.Fprintln(a.out)
	}

	return nil
}
