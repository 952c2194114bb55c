package imap

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/nhle/mail-archive/internal/model"
)

func TestArchivableFolder(t *testing.T) {
	excluded := []string{
		"Outbox", "Notes", "Junk", "Drafts", "Trash",
		"Sync Issues", "Sync Issues (This computer only)",
		"Deleted", "Deleted Items",
	}
	for _, name := range excluded {
		assert.False(t, archivableFolder(name), name)
	}

	included := []string{"INBOX", "Sent", "Archive", "Receipts/2024"}
	for _, name := range included {
		assert.True(t, archivableFolder(name), name)
	}
}

func TestNewClientSplitsHostPort(t *testing.T) {
	c := NewClient(model.Credentials{Host: "mail.example.com:143", Username: "alice"})
	assert.Equal(t, "mail.example.com", c.host)
	assert.Equal(t, "143", c.port)

	c = NewClient(model.Credentials{Host: "mail.example.com", Username: "alice"})
	assert.Equal(t, "mail.example.com", c.host)
	assert.Equal(t, "993", c.port)
}
