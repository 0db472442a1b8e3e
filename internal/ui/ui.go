package ui

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/list"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/desertthunder/playroom/internal/ledger"
	"github.com/desertthunder/playroom/internal/models"
	"github.com/desertthunder/playroom/internal/moderation"
)

// ViewState represents the current view in the console.
type ViewState int

const (
	QueueView ViewState = iota
	ReviewView
	ConfirmView
	PlaylistView
)

// DefaultRefresh is how often the queue is reloaded while it is shown.
const DefaultRefresh = 5 * time.Second

// Backend is what the console needs from the moderation core.
type Backend interface {
	ListAll(ctx context.Context, room string) ([]models.LedgerEntry, error)
	Playlist(ctx context.Context, room string) ([]models.PlaylistEntry, error)
	BeginReview(ctx context.Context, room, token, admin string) (*models.LedgerEntry, error)
	Approve(ctx context.Context, room, token, admin string) (*ledger.ApproveResult, error)
	Reject(ctx context.Context, room, token, admin string) (*models.RejectedEntry, error)
}

type backend struct {
	*ledger.Ledger
	queue *moderation.Queue
}

func (b backend) ListAll(ctx context.Context, room string) ([]models.LedgerEntry, error) {
	return b.queue.ListAll(ctx, room)
}

// NewBackend joins a ledger and a queue into a [Backend].
func NewBackend(l *ledger.Ledger, q *moderation.Queue) Backend {
	return backend{Ledger: l, queue: q}
}

// Model represents the console state.
type Model struct {
	ctx       context.Context
	backend   Backend
	room      string
	admin     string
	clock     func() time.Time
	refresh   time.Duration
	view      ViewState
	width     int
	height    int
	queueList list.Model
	queue     []models.LedgerEntry
	rowList   list.Model
	reviewing *models.LedgerEntry
	status    string
	err       error
	help      help.Model
	keys      keyMap
}

// NewModel creates a console for admin in room.
func NewModel(ctx context.Context, b Backend, room, admin string) *Model {
	return &Model{
		ctx:       ctx,
		backend:   b,
		room:      room,
		admin:     admin,
		clock:     time.Now,
		refresh:   DefaultRefresh,
		view:      QueueView,
		queueList: newList(nil, "Queue"),
		rowList:   newList(nil, "Playlist"),
		help:      help.New(),
		keys:      newKeyMap(),
	}
}

func newList(items []list.Item, title string) list.Model {
	l := list.New(items, list.NewDefaultDelegate(), 0, 0)
	l.Title = title
	l.SetShowHelp(false)
	return l
}

// Init loads the queue and starts the refresh timer.
func (m *Model) Init() tea.Cmd {
	return tea.Batch(m.fetchQueue(), m.tick())
}

// Update handles incoming messages and updates the model state.
func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.queueList.SetSize(msg.Width-4, msg.Height-8)
		m.rowList.SetSize(msg.Width-4, msg.Height-8)
		return m, nil

	case tea.KeyMsg:
		switch m.view {
		case QueueView:
			return m.handleQueueKeys(msg)
		case ReviewView:
			return m.handleReviewKeys(msg)
		case ConfirmView:
			return m.handleConfirmKeys(msg)
		case PlaylistView:
			return m.handlePlaylistKeys(msg)
		}

	case Msg:
		return m.handleMsg(msg)
	}

	return m.updateLists(msg)
}

func (m *Model) handleMsg(msg Msg) (tea.Model, tea.Cmd) {
	switch msg.kind {
	case MsgTick:
		if m.view == QueueView {
			return m, tea.Batch(m.fetchQueue(), m.tick())
		}
		return m, m.tick()

	case MsgQueueFetched:
		if msg.err != nil {
			m.err = msg.err
			return m, nil
		}
		m.err = nil
		m.queue = msg.data.([]models.LedgerEntry)
		now := m.clock()
		items := make([]list.Item, len(m.queue))
		for i, e := range m.queue {
			items[i] = entryItem{entry: e, now: now}
		}
		cmd := m.queueList.SetItems(items)
		m.queueList.Title = fmt.Sprintf("Queue for %s (%d)", m.room, len(m.queue))
		return m, cmd

	case MsgPlaylistFetched:
		if msg.err != nil {
			m.err = msg.err
			return m, nil
		}
		rows := msg.data.([]models.PlaylistEntry)
		items := make([]list.Item, len(rows))
		for i, row := range rows {
			items[i] = rowItem{row: row}
		}
		cmd := m.rowList.SetItems(items)
		m.rowList.Title = fmt.Sprintf("Playlist for %s (%d)", m.room, len(rows))
		m.view = PlaylistView
		return m, cmd

	case MsgReviewStarted:
		if msg.err != nil {
			m.status = styles.notice.Render(fmt.Sprintf("Could not review: %v", msg.err))
			return m, m.fetchQueue()
		}
		m.reviewing = msg.data.(*models.LedgerEntry)
		m.status = ""
		m.view = ReviewView
		return m, nil

	case MsgApproved:
		m.view = QueueView
		m.reviewing = nil
		if msg.err != nil {
			m.status = styles.failure.Render(fmt.Sprintf("Approve failed: %v", msg.err))
			return m, m.fetchQueue()
		}
		result := msg.data.(*ledger.ApproveResult)
		if result.AlreadyApplied {
			m.status = styles.notice.Render(fmt.Sprintf("%q is already in the playlist at #%d", result.Entry.Title, result.Entry.Position))
		} else {
			m.status = styles.success.Render(fmt.Sprintf("✓ Approved %q at #%d", result.Entry.Title, result.Entry.Position))
		}
		return m, m.fetchQueue()

	case MsgRejected:
		m.view = QueueView
		m.reviewing = nil
		if msg.err != nil {
			m.status = styles.failure.Render(fmt.Sprintf("Reject failed: %v", msg.err))
			return m, m.fetchQueue()
		}
		m.status = styles.success.Render(fmt.Sprintf("✗ Rejected %q", msg.data.(*models.RejectedEntry).Title))
		return m, m.fetchQueue()
	}
	return m, nil
}

// View renders the UI based on the current view state.
func (m *Model) View() string {
	if m.err != nil {
		return styles.failure.Render(fmt.Sprintf("Error: %v\n\nPress r to retry, q to quit", m.err))
	}

	switch m.view {
	case QueueView:
		return m.renderQueue()
	case ReviewView:
		return m.renderReview()
	case ConfirmView:
		return m.renderConfirm()
	case PlaylistView:
		return m.renderPlaylist()
	default:
		return ""
	}
}

func (m *Model) handleQueueKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if m.queueList.FilterState() == list.Filtering {
		var cmd tea.Cmd
		m.queueList, cmd = m.queueList.Update(msg)
		return m, cmd
	}

	switch {
	case key.Matches(msg, m.keys.quit):
		return m, tea.Quit
	case key.Matches(msg, m.keys.refresh):
		m.err = nil
		return m, m.fetchQueue()
	case key.Matches(msg, m.keys.playlist):
		return m, m.fetchPlaylist()
	case key.Matches(msg, m.keys.enter):
		if item, ok := m.queueList.SelectedItem().(entryItem); ok {
			return m, m.beginReview(item.entry.Token)
		}
		return m, nil
	}

	var cmd tea.Cmd
	m.queueList, cmd = m.queueList.Update(msg)
	return m, cmd
}

func (m *Model) handleReviewKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.quit):
		return m, tea.Quit
	case key.Matches(msg, m.keys.back):
		m.view = QueueView
		m.reviewing = nil
		return m, m.fetchQueue()
	case key.Matches(msg, m.keys.approve):
		return m, m.approve(m.reviewing.Token)
	case key.Matches(msg, m.keys.reject):
		m.view = ConfirmView
		return m, nil
	}
	return m, nil
}

func (m *Model) handleConfirmKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.yes):
		return m, m.reject(m.reviewing.Token)
	case key.Matches(msg, m.keys.no), key.Matches(msg, m.keys.back), key.Matches(msg, m.keys.quit):
		m.view = ReviewView
		return m, nil
	}
	return m, nil
}

func (m *Model) handlePlaylistKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.quit):
		return m, tea.Quit
	case key.Matches(msg, m.keys.back):
		m.view = QueueView
		return m, m.fetchQueue()
	}

	var cmd tea.Cmd
	m.rowList, cmd = m.rowList.Update(msg)
	return m, cmd
}

func (m *Model) updateLists(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd
	switch m.view {
	case QueueView:
		m.queueList, cmd = m.queueList.Update(msg)
	case PlaylistView:
		m.rowList, cmd = m.rowList.Update(msg)
	}
	return m, cmd
}

func (m *Model) tick() tea.Cmd {
	return tea.Tick(m.refresh, func(time.Time) tea.Msg { return tickMsg() })
}

func (m *Model) fetchQueue() tea.Cmd {
	return func() tea.Msg {
		entries, err := m.backend.ListAll(m.ctx, m.room)
		return queueFetchedMsg(entries, err)
	}
}

func (m *Model) fetchPlaylist() tea.Cmd {
	return func() tea.Msg {
		rows, err := m.backend.Playlist(m.ctx, m.room)
		return playlistFetchedMsg(rows, err)
	}
}

func (m *Model) beginReview(token string) tea.Cmd {
	return func() tea.Msg {
		entry, err := m.backend.BeginReview(m.ctx, m.room, token, m.admin)
		return reviewStartedMsg(entry, err)
	}
}

func (m *Model) approve(token string) tea.Cmd {
	return func() tea.Msg {
		result, err := m.backend.Approve(m.ctx, m.room, token, m.admin)
		return approvedMsg(result, err)
	}
}

func (m *Model) reject(token string) tea.Cmd {
	return func() tea.Msg {
		entry, err := m.backend.Reject(m.ctx, m.room, token, m.admin)
		return rejectedMsg(entry, err)
	}
}

func (m *Model) renderQueue() string {
	helpKeys := []key.Binding{m.keys.enter, m.keys.playlist, m.keys.refresh, m.keys.quit}
	parts := []string{m.queueList.View()}
	if m.status != "" {
		parts = append(parts, m.status)
	}
	parts = append(parts, m.help.ShortHelpView(helpKeys))
	return strings.Join(parts, "\n\n")
}

func (m *Model) renderReview() string {
	e := m.reviewing
	title := styles.heading.Render(fmt.Sprintf("Reviewing %q", e.Title))

	var b strings.Builder
	line := func(label, value string) {
		b.WriteString(styles.field.Render(label) + value + "\n")
	}
	line("Token", e.Token)
	line("State", styles.badge(e.State))
	line("Submitter", e.SubmittedBy)
	line("Submitted", e.SubmittedAt.Local().Format("2006-01-02 15:04:05"))
	line("Artifact", e.ArtifactKey)
	line("Reviewer", e.DecidedBy)

	helpKeys := []key.Binding{m.keys.approve, m.keys.reject, m.keys.back, m.keys.quit}
	return fmt.Sprintf("%s\n%s\n%s", title, b.String(), m.help.ShortHelpView(helpKeys))
}

func (m *Model) renderConfirm() string {
	title := styles.heading.Render(fmt.Sprintf("Reject %q?", m.reviewing.Title))
	info := styles.hint.Render("Rejected tracks can be restored for 30 days.")
	helpKeys := []key.Binding{m.keys.yes, m.keys.no}
	return fmt.Sprintf("%s\n%s\n\n%s", title, info, m.help.ShortHelpView(helpKeys))
}

func (m *Model) renderPlaylist() string {
	helpKeys := []key.Binding{m.keys.back, m.keys.quit}
	return fmt.Sprintf("%s\n\n%s", m.rowList.View(), m.help.ShortHelpView(helpKeys))
}
