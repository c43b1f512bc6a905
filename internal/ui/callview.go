package ui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"github.com/AmanBang/meshcall/internal/rtc"
)

// CallModel is the Bubble Tea model for an active call. It renders the
// roster from session snapshots and forwards key presses to the session.
type CallModel struct {
	session *rtc.Session

	roomID   string
	code     string
	selfName string

	snap      rtc.Snapshot
	spinner   spinner.Model
	peersSeen int

	quitting bool
	err      error
}

type snapshotMsg rtc.Snapshot

type sessionEndedMsg struct{}

type sessionErrMsg struct{ err error }

// NewCallModel creates the call view for a running session.
func NewCallModel(session *rtc.Session, roomID, code, selfName string) *CallModel {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = SpinnerStyle

	return &CallModel{
		session:  session,
		roomID:   roomID,
		code:     code,
		selfName: selfName,
		spinner:  s,
	}
}

func (m *CallModel) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, m.waitForSnapshot())
}

// waitForSnapshot blocks on the session's update stream and converts it
// into a tea message.
func (m *CallModel) waitForSnapshot() tea.Cmd {
	return func() tea.Msg {
		select {
		case snap := <-m.session.Updates():
			return snapshotMsg(snap)
		case <-m.session.Done():
			return sessionEndedMsg{}
		}
	}
}

func (m *CallModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			m.quitting = true
			return m, tea.Sequence(m.leaveCmd(), tea.Quit)

		case "m":
			cmds = append(cmds, func() tea.Msg {
				if _, err := m.session.ToggleMute(); err != nil {
					return sessionErrMsg{err: err}
				}
				return nil
			})

		case "v":
			cmds = append(cmds, func() tea.Msg {
				if _, err := m.session.ToggleVideo(); err != nil {
					return sessionErrMsg{err: err}
				}
				return nil
			})
		}

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		cmds = append(cmds, cmd)

	case snapshotMsg:
		m.snap = rtc.Snapshot(msg)
		if n := len(m.snap.Peers); n > m.peersSeen {
			m.peersSeen = n
		}
		cmds = append(cmds, m.waitForSnapshot())

	case sessionEndedMsg:
		m.quitting = true
		return m, tea.Quit

	case sessionErrMsg:
		m.err = msg.err
	}

	return m, tea.Batch(cmds...)
}

// PeersSeen reports the largest roster observed during the call.
func (m *CallModel) PeersSeen() int {
	return m.peersSeen
}

func (m *CallModel) leaveCmd() tea.Cmd {
	return func() tea.Msg {
		m.session.Leave()
		<-m.session.Done()
		return nil
	}
}

func (m *CallModel) View() string {
	if m.quitting {
		return ""
	}

	var b strings.Builder

	header := HeaderStyle.Render(fmt.Sprintf("%s Meshcall - In Call", IconCall))
	b.WriteString(header + "\n\n")

	b.WriteString(fmt.Sprintf("%s Room: %s", IconRoom, BoldStyle.Render(m.roomID)))
	if m.code != "" {
		b.WriteString(MutedStyle.Render(fmt.Sprintf("  (code: %s)", m.code)))
	}
	b.WriteString("\n\n")

	b.WriteString(m.viewSelf() + "\n\n")
	b.WriteString(m.viewPeers())

	footer := FooterStyle.Render("m: mute/unmute • v: video on/off • q: leave")
	b.WriteString("\n" + footer)

	return ContainerStyle.Render(b.String())
}

func (m *CallModel) viewSelf() string {
	audio := fmt.Sprintf("%s live", IconMic)
	if m.snap.Muted {
		audio = WarningStyle.Render(fmt.Sprintf("%s muted", IconMicOff))
	}
	video := fmt.Sprintf("%s on", IconCam)
	if !m.snap.VideoEnabled {
		video = MutedStyle.Render(fmt.Sprintf("%s off", IconCamOff))
	}

	return fmt.Sprintf("%s %s   %s   %s",
		IconPeer, BoldStyle.Render(m.selfName+" (you)"), audio, video)
}

func (m *CallModel) viewPeers() string {
	if len(m.snap.Peers) == 0 {
		return fmt.Sprintf("%s Waiting for others to join...", m.spinner.View())
	}

	rows := make([][]string, 0, len(m.snap.Peers))
	for _, p := range m.snap.Peers {
		name := p.Name
		if name == "" {
			name = p.ID
		}

		audio := IconMic
		if p.Muted {
			audio = IconMicOff
		}
		video := IconCam
		if !p.VideoEnabled {
			video = IconCamOff
		}

		rows = append(rows, []string{name, audio, video, linkLabel(p)})
	}

	tbl := table.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(Primary)).
		Headers("Participant", "Audio", "Video", "Link").
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			switch {
			case row == table.HeaderRow:
				return TableHeaderStyle
			case row%2 == 0:
				return TableRowStyle
			default:
				return TableRowAltStyle
			}
		})

	out := tbl.Render()
	if m.err != nil {
		out += "\n" + WarningStyle.Render(m.err.Error())
	}
	return out
}

func linkLabel(p rtc.PeerStatus) string {
	switch p.State {
	case rtc.StateConnected:
		return SuccessStyle.Render("connected")
	case rtc.StateFailed:
		return ErrorStyle.Render("failed")
	case rtc.StateDisconnected:
		return WarningStyle.Render("reconnecting")
	default:
		return MutedStyle.Render(p.Stage.String())
	}
}
