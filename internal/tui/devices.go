// SPDX-License-Identifier: MIT
// Package tui is the interactive capture device picker behind the devices
// command. The chosen device is printed as an audio: configuration snippet.
package tui

import (
	"fmt"
	"strings"

	"spectrum/internal/audio"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"gopkg.in/yaml.v3"
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
)

// SampleRates offered on the configuration screen. The analyser runs at 8 kHz
// by default; the others suit devices that cannot resample.
var SampleRates = []float64{8000, 16000, 44100, 48000}

var (
	quitKeys   = key.NewBinding(key.WithKeys("q", "ctrl+c"))
	upKeys     = key.NewBinding(key.WithKeys("up", "k"))
	downKeys   = key.NewBinding(key.WithKeys("down", "j"))
	leftKeys   = key.NewBinding(key.WithKeys("left", "h"))
	rightKeys  = key.NewBinding(key.WithKeys("right", "l"))
	enterKeys  = key.NewBinding(key.WithKeys("enter"))
	escapeKeys = key.NewBinding(key.WithKeys("esc"))
)

// ScreenType defines which screen is currently active
type ScreenType int

const (
	ListScreen ScreenType = iota
	ConfigScreen
)

// Selection is the device configuration the user confirmed.
type Selection struct {
	DeviceID   int
	DeviceName string
	SampleRate float64
	Channels   int
}

// YAML renders the selection as an audio: section for spectrum.yaml.
func (s Selection) YAML() (string, error) {
	snippet := struct {
		Audio struct {
			Source      string  `yaml:"source"`
			InputDevice int     `yaml:"input_device"`
			SampleRate  float64 `yaml:"sample_rate"`
			Channels    int     `yaml:"channels"`
		} `yaml:"audio"`
	}{}
	snippet.Audio.Source = audio.BackendPortAudio
	snippet.Audio.InputDevice = s.DeviceID
	snippet.Audio.SampleRate = s.SampleRate
	snippet.Audio.Channels = s.Channels

	out, err := yaml.Marshal(snippet)
	if err != nil {
		return "", fmt.Errorf("failed to render selection: %w", err)
	}
	return fmt.Sprintf("# %s\n%s", s.DeviceName, out), nil
}

// DeviceListModel represents the Bubble Tea model for picking a capture device
type DeviceListModel struct {
	fetch         func() ([]audio.Device, error)
	devices       []audio.Device
	selectedIndex int
	viewport      viewport.Model
	ready         bool
	err           error
	activeScreen  ScreenType

	sampleRateIndex int
	channels        int

	selection *Selection
}

// NewDeviceListModel creates a picker that lists devices with fetch.
func NewDeviceListModel(fetch func() ([]audio.Device, error)) DeviceListModel {
	return DeviceListModel{
		fetch:        fetch,
		activeScreen: ListScreen,
	}
}

// Selection returns the confirmed choice, if any.
func (m DeviceListModel) Selection() (Selection, bool) {
	if m.selection == nil {
		return Selection{}, false
	}
	return *m.selection, true
}

type devicesMsg struct {
	devices []audio.Device
}

type errMsg struct {
	err error
}

// Init starts the device query.
func (m DeviceListModel) Init() tea.Cmd {
	fetch := m.fetch
	return func() tea.Msg {
		devices, err := fetch()
		if err != nil {
			return errMsg{err}
		}
		return devicesMsg{devices}
	}
}

func (m DeviceListModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		if !m.ready {
			m.viewport = viewport.New(msg.Width, msg.Height-4)
			m.viewport.Style = lipgloss.NewStyle()
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
		if key.Matches(msg, quitKeys) {
			return m, tea.Quit
		}
		if m.err != nil {
			return m, tea.Quit
		}

		switch m.activeScreen {
		case ListScreen:
			switch {
			case key.Matches(msg, upKeys):
				if m.selectedIndex > 0 {
					m.selectedIndex--
				}
			case key.Matches(msg, downKeys):
				if m.selectedIndex < len(m.devices)-1 {
					m.selectedIndex++
				}
			case key.Matches(msg, enterKeys):
				if len(m.devices) > 0 {
					m.openConfig()
				}
			}

		case ConfigScreen:
			device := m.devices[m.selectedIndex]
			switch {
			case key.Matches(msg, escapeKeys):
				m.activeScreen = ListScreen
			case key.Matches(msg, upKeys):
				if m.sampleRateIndex > 0 {
					m.sampleRateIndex--
				}
			case key.Matches(msg, downKeys):
				if m.sampleRateIndex < len(SampleRates)-1 {
					m.sampleRateIndex++
				}
			case key.Matches(msg, leftKeys):
				if m.channels > 1 {
					m.channels--
				}
			case key.Matches(msg, rightKeys):
				if m.channels < device.MaxInputChannels {
					m.channels++
				}
			case key.Matches(msg, enterKeys):
				m.selection = &Selection{
					DeviceID:   device.ID,
					DeviceName: device.Name,
					SampleRate: SampleRates[m.sampleRateIndex],
					Channels:   m.channels,
				}
				return m, tea.Quit
			}
		}
		m.refresh()
	}

	if m.ready {
		m.viewport, cmd = m.viewport.Update(msg)
	}
	return m, cmd
}

func (m *DeviceListModel) openConfig() {
	device := m.devices[m.selectedIndex]
	m.activeScreen = ConfigScreen
	m.channels = min(2, max(1, device.MaxInputChannels))
	m.sampleRateIndex = 0
	for i, rate := range SampleRates {
		if rate == device.DefaultSampleRate {
			m.sampleRateIndex = i
			break
		}
	}
}

func (m *DeviceListModel) refresh() {
	if !m.ready {
		return
	}
	if m.activeScreen == ConfigScreen {
		m.viewport.SetContent(m.renderDeviceConfig())
	} else {
		m.viewport.SetContent(m.renderDevices())
	}
}

// View renders the UI
func (m DeviceListModel) View() string {
	if !m.ready {
		return "Initializing..."
	}

	if m.err != nil {
		return fmt.Sprintf("Error: %v\n\nPress any key to exit.", m.err)
	}

	var title, help string
	if m.activeScreen == ListScreen {
		title = titleStyle.Render("Capture Devices")
		help = infoStyle.Render("↑/↓: Navigate • Enter: Configure • q: Quit")
	} else {
		title = titleStyle.Render("Device Configuration")
		help = infoStyle.Render("↑/↓: Sample rate • ←/→: Channels • Enter: Use • Esc: Back • q: Quit")
	}

	return fmt.Sprintf("%s\n\n%s\n\n%s", title, m.viewport.View(), help)
}

func (m DeviceListModel) renderDevices() string {
	if len(m.devices) == 0 {
		return "No capture devices found."
	}

	var sb strings.Builder
	for i, device := range m.devices {
		marker := ""
		if device.IsDefaultInput {
			marker = " [default]"
		}
		deviceInfo := fmt.Sprintf("[%d] %s (%s)%s\n", device.ID, device.Name, device.Kind(), marker)
		deviceInfo += fmt.Sprintf("    Input channels: %d\n", device.MaxInputChannels)
		deviceInfo += fmt.Sprintf("    Default sample rate: %.0f Hz\n", device.DefaultSampleRate)

		if i == m.selectedIndex {
			deviceInfo = highlightStyle.Render(deviceInfo)
		}
		sb.WriteString(deviceInfo)
		sb.WriteString("\n")
	}
	return sb.String()
}

func (m DeviceListModel) renderDeviceConfig() string {
	var sb strings.Builder
	device := m.devices[m.selectedIndex]

	fmt.Fprintf(&sb, "Configure Device: %s\n\n", device.Name)
	fmt.Fprintf(&sb, "Channels: %d of %d\n\n", m.channels, device.MaxInputChannels)
	sb.WriteString("Sample Rate:\n")

	for i, rate := range SampleRates {
		cursor := " "
		if i == m.sampleRateIndex {
			cursor = "▶"
		}
		line := fmt.Sprintf("  %s %.0f Hz\n", cursor, rate)
		if i == m.sampleRateIndex {
			line = highlightStyle.Render(line)
		}
		sb.WriteString(line)
	}
	return sb.String()
}

// StartDeviceListUI runs the picker on the terminal. ok is false when the user
// quit without choosing.
func StartDeviceListUI() (sel Selection, ok bool, err error) {
	p := tea.NewProgram(
		NewDeviceListModel(audio.InputDevices),
		tea.WithAltScreen(),
	)
	final, err := p.Run()
	if err != nil {
		return Selection{}, false, err
	}
	model, isModel := final.(DeviceListModel)
	if !isModel {
		return Selection{}, false, nil
	}
	if model.err != nil {
		return Selection{}, false, model.err
	}
	sel, ok = model.Selection()
	return sel, ok, nil
}
