package ingest

import "github.com/nhle/mail-archive/internal/model"

// MessageStatus classifies the outcome of processing one remote
// message.
type MessageStatus int

const (
	// OutcomeStored means the message and its links were persisted.
	OutcomeStored MessageStatus = iota

	// OutcomeSkipped means the message was intentionally not stored
	// (malformed header, or already archived by a sibling worker).
	OutcomeSkipped

	// OutcomeFailed means a store write failed for this message.
	OutcomeFailed
)

// MessageOutcome is the explicit per-message result aggregated by a
// folder worker.
type MessageOutcome struct {
	RemoteID string
	Status   MessageStatus
	Reason   string
	Err      error
}

// FolderReport summarizes one folder's reconciliation.
type FolderReport struct {
	// Folder is the remote folder name.
	Folder string

	// Found is how many headers the folder reported.
	Found int

	// Missing is how many of those were not yet archived.
	Missing int

	// StoredCount, SkippedCount, and FailedCount break down the
	// per-message outcomes.
	StoredCount  int
	SkippedCount int
	FailedCount  int

	// Outcomes holds the individual message results.
	Outcomes []MessageOutcome

	// Err is set when a remote fetch aborted the folder. Messages not
	// yet fetched when the error hit were not partially persisted.
	Err error
}

func (r *FolderReport) record(o MessageOutcome) {
	r.Outcomes = append(r.Outcomes, o)
	switch o.Status {
	case OutcomeStored:
		r.StoredCount++
	case OutcomeSkipped:
		r.SkippedCount++
	case OutcomeFailed:
		r.FailedCount++
	}
}

// Report is the result of one FetchAll pass over an account.
type Report struct {
	// RunID uniquely identifies this pass in logs.
	RunID string

	// Account is the resolved archive account.
	Account model.Account

	// Folders holds one report per reconciled folder.
	Folders []FolderReport
}

// Failed reports whether any folder aborted with a remote error.
func (r *Report) Failed() bool {
	return len(r.FailedFolders()) > 0
}

// FailedFolders returns the names of folders whose reconciliation
// aborted.
func (r *Report) FailedFolders() []string {
	var failed []string
	for i := range r.Folders {
		if r.Folders[i].Err != nil {
			failed = append(failed, r.Folders[i].Folder)
		}
	}
	return failed
}

// Stored returns the total count of newly archived messages across
// all folders.
func (r *Report) Stored() int {
	total := 0
	for i := range r.Folders {
		total += r.Folders[i].StoredCount
	}
	return total
}
