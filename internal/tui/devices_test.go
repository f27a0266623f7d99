// SPDX-License-Identifier: MIT
package tui

import (
	"errors"
	"strings"
	"testing"

	"spectrum/internal/audio"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

var testDevices = []audio.Device{
	{ID: 0, Name: "Built-in Mic", MaxInputChannels: 2, DefaultSampleRate: 48000, IsDefaultInput: true},
	{ID: 3, Name: "USB Interface", MaxInputChannels: 4, MaxOutputChannels: 4, DefaultSampleRate: 96000},
}

func fetchTestDevices() ([]audio.Device, error) { return testDevices, nil }

func keyMsg(s string) tea.KeyMsg {
	switch s {
	case "enter":
		return tea.KeyMsg{Type: tea.KeyEnter}
	case "esc":
		return tea.KeyMsg{Type: tea.KeyEsc}
	case "up":
		return tea.KeyMsg{Type: tea.KeyUp}
	case "down":
		return tea.KeyMsg{Type: tea.KeyDown}
	case "left":
		return tea.KeyMsg{Type: tea.KeyLeft}
	case "right":
		return tea.KeyMsg{Type: tea.KeyRight}
	}
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

// drive feeds msgs through Update and returns the final model and the last
// command.
func drive(t *testing.T, m DeviceListModel, msgs ...tea.Msg) (DeviceListModel, tea.Cmd) {
	t.Helper()
	var cmd tea.Cmd
	for _, msg := range msgs {
		var next tea.Model
		next, cmd = m.Update(msg)
		m = next.(DeviceListModel)
	}
	return m, cmd
}

func readyModel(t *testing.T) DeviceListModel {
	t.Helper()
	m := NewDeviceListModel(fetchTestDevices)
	msg := m.Init()()
	m, _ = drive(t, m, tea.WindowSizeMsg{Width: 80, Height: 40}, msg)
	return m
}

func isQuit(cmd tea.Cmd) bool {
	if cmd == nil {
		return false
	}
	_, ok := cmd().(tea.QuitMsg)
	return ok
}

func TestViewBeforeReady(t *testing.T) {
	m := NewDeviceListModel(fetchTestDevices)
	assert.Equal(t, "Initializing...", m.View())
}

func TestListsDevices(t *testing.T) {
	m := readyModel(t)
	view := m.View()
	assert.Contains(t, view, "Capture Devices")
	assert.Contains(t, view, "Built-in Mic")
	assert.Contains(t, view, "[default]")
	assert.Contains(t, view, "USB Interface")
}

func TestSelectDeviceAndConfigure(t *testing.T) {
	m := readyModel(t)

	m, _ = drive(t, m, keyMsg("down"), keyMsg("enter"))
	require.Equal(t, ConfigScreen, m.activeScreen)
	assert.Contains(t, m.View(), "Configure Device: USB Interface")
	assert.Equal(t, 2, m.channels)

	// 96 kHz is not offered, so the first rate is preselected.
	m, _ = drive(t, m, keyMsg("down"), keyMsg("right"), keyMsg("right"), keyMsg("right"))
	assert.Equal(t, 4, m.channels, "channels are capped at the device maximum")

	m, cmd := drive(t, m, keyMsg("enter"))
	require.True(t, isQuit(cmd))

	sel, ok := m.Selection()
	require.True(t, ok)
	assert.Equal(t, Selection{DeviceID: 3, DeviceName: "USB Interface", SampleRate: 16000, Channels: 4}, sel)
}

func TestEscapeReturnsToList(t *testing.T) {
	m := readyModel(t)
	m, _ = drive(t, m, keyMsg("enter"), keyMsg("esc"))
	assert.Equal(t, ListScreen, m.activeScreen)
	_, ok := m.Selection()
	assert.False(t, ok)
}

func TestQuitWithoutSelection(t *testing.T) {
	m := readyModel(t)
	m, cmd := drive(t, m, keyMsg("q"))
	assert.True(t, isQuit(cmd))
	_, ok := m.Selection()
	assert.False(t, ok)
}

func TestFetchError(t *testing.T) {
	m := NewDeviceListModel(func() ([]audio.Device, error) { return nil, errors.New("no host") })
	m, _ = drive(t, m, tea.WindowSizeMsg{Width: 80, Height: 20}, m.Init()())
	assert.Contains(t, m.View(), "Error: no host")
}

func TestSelectionYAML(t *testing.T) {
	sel := Selection{DeviceID: 3, DeviceName: "USB Interface", SampleRate: 8000, Channels: 2}
	out, err := sel.YAML()
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(out, "# USB Interface\n"))

	var parsed struct {
		Audio struct {
			Source      string  `yaml:"source"`
			InputDevice int     `yaml:"input_device"`
			SampleRate  float64 `yaml:"sample_rate"`
			Channels    int     `yaml:"channels"`
		} `yaml:"audio"`
	}
	require.NoError(t, yaml.Unmarshal([]byte(out), &parsed))
	assert.Equal(t, "portaudio", parsed.Audio.Source)
	assert.Equal(t, 3, parsed.Audio.InputDevice)
	assert.Equal(t, 8000.0, parsed.Audio.SampleRate)
	assert.Equal(t, 2, parsed.Audio.Channels)
}
