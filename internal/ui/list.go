package ui

import (
	"fmt"
	"time"

	"github.com/charmbracelet/bubbles/list"
	"github.com/desertthunder/playroom/internal/formatter"
	"github.com/desertthunder/playroom/internal/models"
)

var (
	_ list.Item = entryItem{}
	_ list.Item = rowItem{}
)

// entryItem wraps a queued [models.LedgerEntry] to implement [list.Item].
type entryItem struct {
	entry models.LedgerEntry
	now   time.Time
}

func (i entryItem) FilterValue() string { return i.entry.Title }
func (i entryItem) Title() string       { return i.entry.Title }
func (i entryItem) Description() string {
	desc := fmt.Sprintf("%s • by %s • %s ago", i.entry.Token, i.entry.SubmittedBy, formatter.Age(i.now.Sub(i.entry.SubmittedAt)))
	if i.entry.State == models.StateInProgress {
		desc = fmt.Sprintf("%s • reviewing: %s", desc, i.entry.DecidedBy)
	}
	return desc
}

// rowItem wraps [models.PlaylistEntry] to implement [list.Item].
type rowItem struct {
	row models.PlaylistEntry
}

func (i rowItem) FilterValue() string { return i.row.Title }
func (i rowItem) Title() string       { return fmt.Sprintf("%d. %s", i.row.Position, i.row.Title) }
func (i rowItem) Description() string {
	desc := "by " + i.row.SubmittedBy
	if i.row.ApprovedBy != "" {
		desc = fmt.Sprintf("%s • approved by %s", desc, i.row.ApprovedBy)
	}
	return desc
}
