package ui

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
)

// Call states as the screen knows them.
const (
	CallStateIdle             = "idle"
	CallStateAwaitingConfig   = "awaiting-config"
	CallStateAwaitingPeer     = "awaiting-peer"
	CallStateKeyExchanging    = "key-exchanging"
	CallStateMediaNegotiating = "media-negotiating"
	CallStateConnected        = "connected"
	CallStateClosed           = "closed"
)

const refreshInterval = 250 * time.Millisecond

// CallSnapshot is what the call screen renders. It is polled, so the
// function producing it must be safe to call from the UI goroutine.
type CallSnapshot struct {
	RoomID   string
	RoomLink string
	// ShowRoom adds the room box while waiting for the peer.
	ShowRoom bool

	Role      string
	State     string
	Encrypted bool
	Peer      string

	FramesSent     uint64
	FramesReceived uint64
	BytesReceived  uint64
	Dropped        uint64
}

type refreshMsg time.Time

// CallEndedMsg closes the screen.
type CallEndedMsg struct{}

// CallModel is the bubbletea model of a running call.
type CallModel struct {
	snapshot func() CallSnapshot
	onHangup func()

	spinner   spinner.Model
	startTime time.Time
	current   CallSnapshot
	quitting  bool
}

func NewCallModel(snapshot func() CallSnapshot, onHangup func()) *CallModel {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = SpinnerStyle

	return &CallModel{
		snapshot:  snapshot,
		onHangup:  onHangup,
		spinner:   s,
		startTime: time.Now(),
		current:   snapshot(),
	}
}

func (m *CallModel) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, refresh())
}

func refresh() tea.Cmd {
	return tea.Tick(refreshInterval, func(t time.Time) tea.Msg {
		return refreshMsg(t)
	})
}

func (m *CallModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			m.quitting = true
			if m.onHangup != nil {
				m.onHangup()
			}
			return m, tea.Quit
		}

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case refreshMsg:
		m.current = m.snapshot()
		if m.current.State == CallStateClosed {
			m.quitting = true
			return m, tea.Quit
		}
		return m, refresh()

	case CallEndedMsg:
		m.quitting = true
		return m, tea.Quit
	}
	return m, nil
}

func (m *CallModel) View() string {
	if m.quitting {
		return ""
	}
	s := m.current

	var b strings.Builder
	b.WriteString(HeaderStyle.Render(fmt.Sprintf("%s Talkr - room %s", IconCall, s.RoomID)))
	b.WriteString("\n")

	switch s.State {
	case CallStateIdle, CallStateAwaitingConfig, "":
		b.WriteString(fmt.Sprintf("%s Connecting to relay...", m.spinner.View()))
	case CallStateAwaitingPeer:
		if s.ShowRoom {
			b.WriteString(NewRoomInfo(s.RoomID, s.RoomLink).View())
			b.WriteString("\n\n")
		}
		b.WriteString(fmt.Sprintf("%s Waiting for peer to join...", m.spinner.View()))
	case CallStateKeyExchanging:
		b.WriteString(fmt.Sprintf("%s %s Exchanging keys...", m.spinner.View(), IconPeer))
	case CallStateMediaNegotiating:
		b.WriteString(fmt.Sprintf("%s %s Setting up media...", m.spinner.View(), IconVideo))
	default:
		b.WriteString(m.viewCall(s))
	}

	b.WriteString("\n" + FooterStyle.Render("Press q to hang up"))
	return ContainerStyle.Render(b.String())
}

func (m *CallModel) viewCall(s CallSnapshot) string {
	lock := ErrorStyle.Render(IconUnlock + " not encrypted")
	if s.Encrypted {
		lock = SuccessStyle.Render(IconLock + " end-to-end encrypted")
	}
	peer := s.Peer
	if peer == "" {
		peer = MutedStyle.Render("unknown")
	}

	rows := [][2]string{
		{"State", StatusStyle.Render(s.State)},
		{"Role", s.Role},
		{"Peer", peer},
		{"Encryption", lock},
		{"Duration", time.Since(m.startTime).Truncate(time.Second).String()},
		{"Frames out", fmt.Sprintf("%d", s.FramesSent)},
		{"Frames in", fmt.Sprintf("%d", s.FramesReceived)},
		{"Dropped", fmt.Sprintf("%d", s.Dropped)},
	}

	var b strings.Builder
	for i, r := range rows {
		if i > 0 {
			b.WriteString("\n")
		}
		b.WriteString(LabelStyle.Render(r[0]) + r[1])
	}
	return StatsBoxStyle.Render(b.String())
}

// CallUI runs the call screen on its own goroutine.
type CallUI struct {
	program *tea.Program
	wg      sync.WaitGroup
	once    sync.Once
}

func NewCallUI(snapshot func() CallSnapshot, onHangup func()) *CallUI {
	// Default is inline mode without alt screen, so earlier output stays visible.
	return &CallUI{program: tea.NewProgram(NewCallModel(snapshot, onHangup))}
}

func (ui *CallUI) Start() {
	ui.wg.Add(1)
	go func() {
		defer ui.wg.Done()
		if _, err := ui.program.Run(); err != nil {
			PrintError(fmt.Sprintf("UI error: %v", err))
		}
	}()
}

// Stop closes the screen and waits for the terminal to be restored.
func (ui *CallUI) Stop() {
	ui.once.Do(func() {
		ui.program.Send(CallEndedMsg{})
		ui.wg.Wait()
	})
}
