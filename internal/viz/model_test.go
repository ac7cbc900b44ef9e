package viz

import (
	"errors"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/san-kum/heaterloop/internal/cell"
	"github.com/san-kum/heaterloop/internal/metrics"
	"github.com/san-kum/heaterloop/internal/series"
	"github.com/san-kum/heaterloop/internal/storage"
	"github.com/san-kum/heaterloop/internal/telemetry"
	"github.com/san-kum/heaterloop/internal/units"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixedStatus struct {
	state telemetry.State
	err   error
}

func (f fixedStatus) State() telemetry.State { return f.state }
func (f fixedStatus) LastError() error       { return f.err }
func (f fixedStatus) Endpoint() string       { return "opc.tcp://10.0.0.7:4840/rust_ciet_opcua_server" }

func newTestModel(t *testing.T, manual bool) (Model, *cell.Board, *series.Set) {
	t.Helper()
	board := cell.NewBoard(cell.Seed{
		Address:      "10.0.0.7",
		PumpPressure: 1600,
		InletTemp:    79.12,
		HeaterPower:  units.Watts(8000),
		OutletTemp:   102.4,
	})
	set := series.NewSet(series.DefaultWindows())
	m, err := NewModel(Sources{
		Board:       board,
		Series:      set,
		Status:      fixedStatus{state: telemetry.Connected, err: errors.New("write: BadTimeout")},
		Metrics:     metrics.Standard(8000, 0.5),
		Mode:        "parallel-sum",
		ManualPower: manual,
	})
	require.NoError(t, err)
	return m, board, set
}

func send(m Model, msgs ...tea.Msg) Model {
	for _, msg := range msgs {
		next, _ := m.Update(msg)
		m = next.(Model)
	}
	return m
}

func runes(s string) tea.KeyMsg {
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

func TestFramePrunesOncePerBuffer(t *testing.T) {
	m, _, set := newTestModel(t, false)
	for i := 0; i < 5; i++ {
		require.NoError(t, set.Flow.Append(series.Point{T: float64(i), V: []float64{1600, 0.18}}))
	}
	require.NoError(t, set.Flow.Append(series.Point{T: 100, V: []float64{1600, 0.18}}))

	next, cmd := m.Update(frameMsg(time.Now()))
	m = next.(Model)
	assert.NotNil(t, cmd)
	assert.Equal(t, 5, set.Flow.Len())
	assert.Equal(t, 1, m.pruned)

	for i := 0; i < 10; i++ {
		m = send(m, frameMsg(time.Now()))
	}
	assert.Equal(t, 1, set.Flow.Len())
	assert.Equal(t, 5, m.pruned)
	assert.Equal(t, 11, m.frames)
}

func TestAddressEditor(t *testing.T) {
	m, board, _ := newTestModel(t, false)
	assert.Equal(t, cell.Operator, board.Address.Owner())

	m = send(m, runes("a"))
	require.True(t, m.editing)
	assert.Equal(t, "10.0.0.7", string(m.draft))

	m = send(m,
		tea.KeyMsg{Type: tea.KeyBackspace},
		runes("9"),
		runes("q"),
	)
	assert.Equal(t, "10.0.0.9q", string(m.draft), "q is text while editing")
	m = send(m, tea.KeyMsg{Type: tea.KeyBackspace}, tea.KeyMsg{Type: tea.KeyEnter})

	assert.False(t, m.editing)
	assert.Equal(t, "10.0.0.9", board.Address.Read())
}

func TestAddressEditorCancel(t *testing.T) {
	m, board, _ := newTestModel(t, false)
	m = send(m, runes("a"), runes("x"), tea.KeyMsg{Type: tea.KeyEsc})
	assert.False(t, m.editing)
	assert.Equal(t, "10.0.0.7", board.Address.Read())
}

func TestAdjustInputs(t *testing.T) {
	m, board, _ := newTestModel(t, false)
	require.Len(t, m.inputs, 3)
	assert.Equal(t, cell.Role(""), board.HeaterPower.Owner())

	m = send(m, tea.KeyMsg{Type: tea.KeyUp})
	assert.InDelta(t, 79.62, board.InletTemp.Read().Celsius(), 1e-9)

	m = send(m, tea.KeyMsg{Type: tea.KeyTab}, runes("j"), runes("j"))
	assert.InDelta(t, 1400, board.PumpPressure.Read().Pascals(), 1e-9)

	m = send(m, tea.KeyMsg{Type: tea.KeyTab}, runes("k"))
	assert.InDelta(t, 0.5, board.ProbeInput.Read(), 1e-9)

	// wraps back to the inlet
	m = send(m, tea.KeyMsg{Type: tea.KeyTab})
	assert.Equal(t, 0, m.selected)
}

func TestManualPowerInput(t *testing.T) {
	m, board, _ := newTestModel(t, true)
	require.Len(t, m.inputs, 4)
	assert.Equal(t, cell.Operator, board.HeaterPower.Owner())

	m = send(m, tea.KeyMsg{Type: tea.KeyShiftTab})
	assert.Equal(t, 3, m.selected)
	for i := 0; i < 40; i++ {
		m = send(m, runes("j"))
	}
	assert.Equal(t, 0.0, board.HeaterPower.Read().Watts(), "clamped at zero")
}

type mapTuner struct {
	params map[string]float64
	reject error
}

func (m *mapTuner) Params() map[string]float64 { return m.params }

func (m *mapTuner) Tune(name string, v float64) error {
	if m.reject != nil {
		return m.reject
	}
	m.params[name] = v
	return nil
}

func TestTunerInputs(t *testing.T) {
	tuner := &mapTuner{params: map[string]float64{"outer.Ki": 0.5, "inner.Kp": 1}}
	m, err := NewModel(Sources{
		Board:  cell.NewBoard(cell.Seed{}),
		Series: series.NewSet(series.DefaultWindows()),
		Tuner:  tuner,
	})
	require.NoError(t, err)
	require.Len(t, m.inputs, 5)
	assert.Equal(t, "inner.Kp", m.inputs[3].name)
	assert.Equal(t, "outer.Ki", m.inputs[4].name)

	m = send(m, tea.KeyMsg{Type: tea.KeyShiftTab}, runes("k"), runes("k"))
	assert.InDelta(t, 0.6, tuner.params["outer.Ki"], 1e-9)
	for i := 0; i < 20; i++ {
		m = send(m, runes("j"))
	}
	assert.Equal(t, 0.0, tuner.params["outer.Ki"], "clamped at zero")
	assert.Contains(t, m.View(), "outer.Ki")

	tuner.reject = errors.New("gain rejected")
	m = send(m, tea.KeyMsg{Type: tea.KeyShiftTab}, runes("k"))
	assert.Equal(t, 1.0, tuner.params["inner.Kp"])
	assert.Contains(t, m.View(), "gain rejected")
}

func TestQuit(t *testing.T) {
	m, _, _ := newTestModel(t, false)
	_, cmd := m.Update(runes("q"))
	require.NotNil(t, cmd)
	assert.IsType(t, tea.QuitMsg{}, cmd())
}

func TestViewShowsLinkAndValues(t *testing.T) {
	m, _, set := newTestModel(t, false)
	for i := 0; i < 3; i++ {
		require.NoError(t, set.Heater.Append(series.Point{T: float64(i), V: []float64{79.12, 8, 102.4}}))
		require.NoError(t, set.Reference.Append(series.Point{T: float64(i), V: []float64{102.41}}))
	}

	out := m.View()
	assert.Contains(t, out, "CONNECTED")
	assert.Contains(t, out, "opc.tcp://10.0.0.7:4840")
	assert.Contains(t, out, "BadTimeout")
	assert.Contains(t, out, "102.41 degC")
	assert.Contains(t, out, "probe: input blue, response red: waiting for data")
	assert.Contains(t, out, "control_effort")

	m = send(m, runes("?"), runes("a"))
	out = m.View()
	assert.Contains(t, out, "KEYBOARD SHORTCUTS")
	assert.Contains(t, out, "server address: 10.0.0.7")
}

func TestThemeCycles(t *testing.T) {
	m, _, _ := newTestModel(t, false)
	for range Themes {
		m = send(m, runes("t"))
	}
	assert.Equal(t, ThemeControlRoom.Name, m.styles.theme.Name)
	assert.Equal(t, ThemeMinimal, GetTheme("minimal"))
	assert.Equal(t, ThemeControlRoom, GetTheme("nope"))
}

func TestPlotTrace(t *testing.T) {
	tr := &storage.Trace{Columns: storage.Columns}
	_, err := PlotTrace(tr, 40, 6)
	assert.Error(t, err)

	for i := 0; i < 4; i++ {
		tr.Rows = append(tr.Rows, []float64{float64(i), 79.12, 102.4, 102.41, 8, 1600, 0.18, 0})
	}
	out, err := PlotTrace(tr, 40, 6)
	require.NoError(t, err)
	assert.Contains(t, out, "heater power kW")
}

func TestSparkline(t *testing.T) {
	assert.Equal(t, "────", sparkline(nil, 4))
	assert.Equal(t, "▁█", sparkline([]float64{0, 1}, 4))
}
