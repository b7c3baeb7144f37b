// Package tui holds the interactive output device picker.
package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"yukkuri/internal/playback"
)

var (
	titleStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FFFDF5")).
			Background(lipgloss.Color("#25A065")).
			Padding(0, 1).
			Bold(true)

	infoStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FFFDF5"))

	highlightStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#25A065")).
			Bold(true)

	dimStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#777777"))
)

var keys = struct {
	quit, up, down, enter, back key.Binding
}{
	quit:  key.NewBinding(key.WithKeys("q", "ctrl+c")),
	up:    key.NewBinding(key.WithKeys("up", "k")),
	down:  key.NewBinding(key.WithKeys("down", "j")),
	enter: key.NewBinding(key.WithKeys("enter")),
	back:  key.NewBinding(key.WithKeys("esc")),
}

// BufferSizes are the frames-per-buffer choices offered for preview.
var BufferSizes = []int{256, 512, 1024, 2048, 4096}

// ScreenType defines which screen is currently active.
type ScreenType int

const (
	ListScreen ScreenType = iota
	ConfigScreen
)

// Selection is the device and buffer size the user confirmed.
type Selection struct {
	DeviceID        int
	DeviceName      string
	FramesPerBuffer int
}

// FetchFunc lists the devices to offer.
type FetchFunc func() ([]playback.Device, error)

type devicesMsg struct {
	devices []playback.Device
}

type errMsg struct {
	err error
}

// DeviceListModel lists output devices and lets the user pick one for
// previews.
type DeviceListModel struct {
	fetch         FetchFunc
	devices       []playback.Device
	selectedIndex int
	viewport      viewport.Model
	ready         bool
	err           error
	activeScreen  ScreenType

	bufferIndex int
	selection   *Selection
}

// NewDeviceListModel returns a model that lists devices from fetch with
// framesPerBuffer preselected on the config screen.
func NewDeviceListModel(fetch FetchFunc, framesPerBuffer int) DeviceListModel {
	m := DeviceListModel{fetch: fetch, activeScreen: ListScreen}
	for i, n := range BufferSizes {
		if n == framesPerBuffer {
			m.bufferIndex = i
		}
	}
	return m
}

// Selection returns the confirmed choice, or nil if the user quit.
func (m DeviceListModel) Selection() *Selection { return m.selection }

// Init starts the device fetch.
func (m DeviceListModel) Init() tea.Cmd {
	fetch := m.fetch
	return func() tea.Msg {
		devices, err := fetch()
		if err != nil {
			return errMsg{err}
		}
		var outputs []playback.Device
		for _, d := range devices {
			if d.MaxOutputChannels > 0 {
				outputs = append(outputs, d)
			}
		}
		return devicesMsg{outputs}
	}
}

func (m DeviceListModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		if !m.ready {
			m.viewport = viewport.New(msg.Width, msg.Height-4)
			m.ready = true
		} else {
			m.viewport.Width = msg.Width
			m.viewport.Height = msg.Height - 4
		}
		m.refresh()

	case devicesMsg:
		m.devices = msg.devices
		m.refresh()

	case errMsg:
		m.err = msg.err

	case tea.KeyMsg:
		if key.Matches(msg, keys.quit) {
			return m, tea.Quit
		}
		switch m.activeScreen {
		case ListScreen:
			switch {
			case key.Matches(msg, keys.up):
				if m.selectedIndex > 0 {
					m.selectedIndex--
				}
			case key.Matches(msg, keys.down):
				if m.selectedIndex < len(m.devices)-1 {
					m.selectedIndex++
				}
			case key.Matches(msg, keys.enter):
				if len(m.devices) > 0 {
					m.activeScreen = ConfigScreen
				}
			}
		case ConfigScreen:
			switch {
			case key.Matches(msg, keys.back):
				m.activeScreen = ListScreen
			case key.Matches(msg, keys.up):
				if m.bufferIndex > 0 {
					m.bufferIndex--
				}
			case key.Matches(msg, keys.down):
				if m.bufferIndex < len(BufferSizes)-1 {
					m.bufferIndex++
				}
			case key.Matches(msg, keys.enter):
				d := m.devices[m.selectedIndex]
				m.selection = &Selection{
					DeviceID:        d.ID,
					DeviceName:      d.Name,
					FramesPerBuffer: BufferSizes[m.bufferIndex],
				}
				return m, tea.Quit
			}
		}
		m.refresh()
	}

	m.viewport, cmd = m.viewport.Update(msg)
	return m, cmd
}

func (m *DeviceListModel) refresh() {
	if !m.ready {
		return
	}
	if m.activeScreen == ConfigScreen {
		m.viewport.SetContent(m.renderDeviceConfig())
		return
	}
	m.viewport.SetContent(m.renderDevices())
}

// View renders the UI.
func (m DeviceListModel) View() string {
	if m.err != nil {
		return fmt.Sprintf("Error: %v\n\nPress q to exit.", m.err)
	}
	if !m.ready {
		return "Initializing..."
	}

	var title, help string
	if m.activeScreen == ListScreen {
		title = titleStyle.Render("Preview Output Device")
		help = infoStyle.Render("↑/↓: Navigate • Enter: Configure • q: Quit")
	} else {
		title = titleStyle.Render("Preview Buffer Size")
		help = infoStyle.Render("↑/↓: Change Value • Enter: Save • Esc: Back • q: Quit")
	}
	return fmt.Sprintf("%s\n\n%s\n\n%s", title, m.viewport.View(), help)
}

func (m DeviceListModel) renderDevices() string {
	if len(m.devices) == 0 {
		return "No output devices found."
	}

	var sb strings.Builder
	for i, d := range m.devices {
		line := fmt.Sprintf("[%d] %s (%s)\n", d.ID, d.Name, d.Kind())
		line += fmt.Sprintf("    Output channels: %d, Default sample rate: %.0f Hz\n", d.MaxOutputChannels, d.DefaultSampleRate)
		if i == m.selectedIndex {
			line = highlightStyle.Render(line)
		}
		sb.WriteString(line)
		sb.WriteString("\n")
	}
	return sb.String()
}

func (m DeviceListModel) renderDeviceConfig() string {
	var sb strings.Builder
	d := m.devices[m.selectedIndex]
	fmt.Fprintf(&sb, "Device: %s\n\n", d.Name)
	sb.WriteString("Frames per buffer:\n")
	for i, n := range BufferSizes {
		marker := " "
		if i == m.bufferIndex {
			marker = "▶"
		}
		line := fmt.Sprintf("  %s %d (%.1f ms)\n", marker, n, float64(n)/d.DefaultSampleRate*1000)
		if i == m.bufferIndex {
			line = highlightStyle.Render(line)
		} else {
			line = dimStyle.Render(line)
		}
		sb.WriteString(line)
	}
	return sb.String()
}

// PickDevice runs the picker and returns the confirmed selection, or nil if
// the user quit without choosing.
func PickDevice(fetch FetchFunc, framesPerBuffer int) (*Selection, error) {
	p := tea.NewProgram(NewDeviceListModel(fetch, framesPerBuffer), tea.WithAltScreen())
	final, err := p.Run()
	if err != nil {
		return nil, err
	}
	return final.(DeviceListModel).Selection(), nil
}
