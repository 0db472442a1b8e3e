package ui

import (
	tea "github.com/charmbracelet/bubbletea"
	"github.com/desertthunder/playroom/internal/ledger"
	"github.com/desertthunder/playroom/internal/models"
)

// MsgKind enumerates all message types in the application.
type MsgKind int

// Msg represents all possible messages in the console (Elm-style message union).
type Msg struct {
	kind MsgKind
	data any
	err  error
}

var (
	_ tea.Msg = Msg{}
)

const (
	MsgQueueFetched MsgKind = iota
	MsgPlaylistFetched
	MsgReviewStarted
	MsgApproved
	MsgRejected
	MsgTick
)

// queueFetchedMsg is the constructor for [MsgQueueFetched]
func queueFetchedMsg(entries []models.LedgerEntry, err error) Msg {
	return Msg{kind: MsgQueueFetched, data: entries, err: err}
}

// playlistFetchedMsg is the constructor for [MsgPlaylistFetched]
func playlistFetchedMsg(rows []models.PlaylistEntry, err error) Msg {
	return Msg{kind: MsgPlaylistFetched, data: rows, err: err}
}

// reviewStartedMsg is the constructor for [MsgReviewStarted]
func reviewStartedMsg(entry *models.LedgerEntry, err error) Msg {
	return Msg{kind: MsgReviewStarted, data: entry, err: err}
}

// approvedMsg is the constructor for [MsgApproved]
func approvedMsg(result *ledger.ApproveResult, err error) Msg {
	return Msg{kind: MsgApproved, data: result, err: err}
}

// rejectedMsg is the constructor for [MsgRejected]
func rejectedMsg(entry *models.RejectedEntry, err error) Msg {
	return Msg{kind: MsgRejected, data: entry, err: err}
}

func tickMsg() Msg {
	return Msg{kind: MsgTick}
}
