package viz

import (
	"fmt"
	"maps"
	"slices"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/guptarohit/asciigraph"
	"github.com/san-kum/heaterloop/internal/cell"
	"github.com/san-kum/heaterloop/internal/metrics"
	"github.com/san-kum/heaterloop/internal/series"
	"github.com/san-kum/heaterloop/internal/telemetry"
	"github.com/san-kum/heaterloop/internal/units"
)

const (
	defaultFPS   = 30
	minPlotWidth = 30
	plotHeight   = 7
)

// Status is the read side of the reconnect supervisor.
type Status interface {
	State() telemetry.State
	LastError() error
	Endpoint() string
}

// Tuner adjusts controller parameters while the loop runs.
type Tuner interface {
	Params() map[string]float64
	Tune(name string, value float64) error
}

type Sources struct {
	Board   *cell.Board
	Series  *series.Set
	Status  Status
	Metrics []metrics.Metric
	Mode    string
	// ManualPower hands the heater power cell to the operator.
	ManualPower bool
	FPS         int
	// Theme names the starting theme; unknown names fall back to the first.
	Theme string
	// Tuner, when set, adds one input per controller parameter.
	Tuner Tuner
}

// input is one operator-editable cell.
type input struct {
	name   string
	unit   string
	step   float64
	lo, hi float64
	read   func() float64
	write  func(float64)
}

func (in input) adjust(dir float64) {
	v := in.read() + dir*in.step
	in.write(max(in.lo, min(in.hi, v)))
}

type frameMsg time.Time

type Model struct {
	src    Sources
	styles styles
	frame  time.Duration

	inputs   []input
	selected int

	address *cell.Writer[string]
	editing bool
	draft   []rune
	// last rejected parameter change, shared by every copy of the model
	tuneErr *error

	frames   int
	pruned   int
	width    int
	showHelp bool
}

// NewModel claims the operator cells of the board.
func NewModel(src Sources) (Model, error) {
	if src.FPS <= 0 {
		src.FPS = defaultFPS
	}
	b := src.Board
	m := Model{
		src:     src,
		styles:  newStyles(GetTheme(src.Theme)),
		frame:   time.Second / time.Duration(src.FPS),
		width:   100,
		tuneErr: new(error),
	}

	var err error
	if m.address, err = b.Address.Claim(cell.Operator); err != nil {
		return Model{}, err
	}
	inlet, err := b.InletTemp.Claim(cell.Operator)
	if err != nil {
		return Model{}, err
	}
	pump, err := b.PumpPressure.Claim(cell.Operator)
	if err != nil {
		return Model{}, err
	}
	probe, err := b.ProbeInput.Claim(cell.Operator)
	if err != nil {
		return Model{}, err
	}

	m.inputs = []input{
		{
			name:  "BT-11 inlet",
			unit:  "degC",
			step:  0.5,
			lo:    0,
			hi:    200,
			read:  func() float64 { return inlet.Read().Celsius() },
			write: func(v float64) { inlet.Write(units.Celsius(v)) },
		},
		{
			name:  "pump",
			unit:  "Pa",
			step:  100,
			lo:    -10000,
			hi:    10000,
			read:  func() float64 { return pump.Read().Pascals() },
			write: func(v float64) { pump.Write(units.Pressure(v)) },
		},
		{
			name:  "probe input",
			step:  0.5,
			lo:    -10,
			hi:    10,
			read:  probe.Read,
			write: probe.Write,
		},
	}
	if src.ManualPower {
		power, err := b.HeaterPower.Claim(cell.Operator)
		if err != nil {
			return Model{}, err
		}
		m.inputs = append(m.inputs, input{
			name:  "heater power",
			unit:  "kW",
			step:  0.5,
			lo:    0,
			hi:    20,
			read:  func() float64 { return power.Read().Kilowatts() },
			write: func(v float64) { power.Write(units.Kilowatts(v)) },
		})
	}
	if src.Tuner != nil {
		m.inputs = append(m.inputs, tunerInputs(src.Tuner, m.tuneErr)...)
	}
	return m, nil
}

// tunerInputs steps each parameter by a tenth of its starting value and
// keeps it non-negative.
func tunerInputs(tu Tuner, lastErr *error) []input {
	params := tu.Params()
	inputs := make([]input, 0, len(params))
	for _, name := range slices.Sorted(maps.Keys(params)) {
		start := params[name]
		inputs = append(inputs, input{
			name: name,
			step: max(0.01, start/10),
			lo:   0,
			hi:   max(1, start*10),
			read: func() float64 { return tu.Params()[name] },
			write: func(v float64) {
				*lastErr = tu.Tune(name, v)
			},
		})
	}
	return inputs
}

func (m Model) nextFrame() tea.Cmd {
	return tea.Tick(m.frame, func(t time.Time) tea.Msg { return frameMsg(t) })
}

func (m Model) Init() tea.Cmd {
	return m.nextFrame()
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
	case tea.KeyMsg:
		if m.editing {
			return m.editAddress(msg)
		}
		switch msg.String() {
		case "q", "ctrl+c":
			return m, tea.Quit
		case "tab":
			m.selected = (m.selected + 1) % len(m.inputs)
		case "shift+tab":
			m.selected = (m.selected + len(m.inputs) - 1) % len(m.inputs)
		case "up", "k":
			m.inputs[m.selected].adjust(1)
		case "down", "j":
			m.inputs[m.selected].adjust(-1)
		case "a":
			m.editing = true
			m.draft = []rune(m.src.Board.Address.Read())
		case "t":
			m.styles = newStyles(m.styles.theme.next())
		case "?":
			m.showHelp = !m.showHelp
		}
	case frameMsg:
		m.frames++
		m.pruned += m.src.Series.PruneAll()
		return m, m.nextFrame()
	}
	return m, nil
}

func (m Model) editAddress(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.Type {
	case tea.KeyCtrlC:
		return m, tea.Quit
	case tea.KeyEsc:
		m.editing = false
	case tea.KeyEnter:
		m.address.Write(strings.TrimSpace(string(m.draft)))
		m.editing = false
	case tea.KeyBackspace:
		if len(m.draft) > 0 {
			m.draft = m.draft[:len(m.draft)-1]
		}
	case tea.KeyRunes, tea.KeySpace:
		m.draft = append(append([]rune(nil), m.draft...), msg.Runes...)
	}
	return m, nil
}

func (m Model) View() string {
	plotWidth := max(minPlotWidth, m.width-62)
	set := m.src.Series

	var left strings.Builder
	left.WriteString(m.plot("temperatures degC: BT-11 blue, BT-12 red, expected green", plotWidth,
		[][]float64{set.Heater.Column(0), set.Heater.Column(2), set.Reference.Column(0)},
		asciigraph.Blue, asciigraph.Red, asciigraph.Green))
	left.WriteString(m.plot("heater power kW", plotWidth,
		[][]float64{set.Heater.Column(1)}, asciigraph.Yellow))
	left.WriteString(m.plot("probe: input blue, response red", plotWidth,
		[][]float64{set.Probe.Column(0), set.Probe.Column(1)}, asciigraph.Blue, asciigraph.Red))

	body := lipgloss.JoinHorizontal(lipgloss.Top, left.String(), m.styles.panel.Render(m.panel()))
	if m.editing {
		body = m.styles.editor.Render("server address: "+string(m.draft)+"█") + "\n" + body
	}
	if m.showHelp {
		return m.styles.help.Render(helpText) + "\n\n" + body
	}
	return body
}

func (m Model) plot(caption string, width int, data [][]float64, colors ...asciigraph.AnsiColor) string {
	for _, d := range data {
		if len(d) < 2 {
			return m.styles.muted.Render(caption+": waiting for data") + "\n\n"
		}
	}
	chart := asciigraph.PlotMany(data,
		asciigraph.Height(plotHeight),
		asciigraph.Width(width),
		asciigraph.SeriesColors(colors...),
		asciigraph.Caption(caption),
	)
	return m.styles.graph.Render(chart) + "\n\n"
}

func (m Model) panel() string {
	b := m.src.Board
	var s strings.Builder
	row := func(label, value string) {
		s.WriteString(m.styles.label.Render(label) + m.styles.value.Render(value) + "\n")
	}

	s.WriteString(m.styles.header.Render("HEATERLOOP "+strings.ToUpper(m.src.Mode)) + "\n")
	if st := m.src.Status; st != nil {
		row("link", m.styles.state(st.State()))
		row("endpoint", st.Endpoint())
		if err := st.LastError(); err != nil {
			msg := err.Error()
			if len(msg) > 60 {
				msg = msg[:57] + "..."
			}
			s.WriteString(m.styles.err.Render(msg) + "\n")
		}
	} else {
		row("link", "local")
	}
	s.WriteString("\n")

	row("BT-11", fmt.Sprintf("%.2f degC", b.InletTemp.Read().Celsius()))
	row("BT-12", fmt.Sprintf("%.2f degC", b.OutletTemp.Read().Celsius()))
	if p, ok := m.src.Series.Reference.Latest(); ok {
		row("expected", fmt.Sprintf("%.2f degC", p.V[0]))
	}
	row("heater", fmt.Sprintf("%.3f kW", b.HeaterPower.Read().Kilowatts()))
	row("heater flow", fmt.Sprintf("%.4f kg/s", b.HeaterFlow.Read().KilogramsPerSecond()))
	row("ctah flow", fmt.Sprintf("%.4f kg/s", b.CTAHFlow.Read().KilogramsPerSecond()))
	row("calc time", fmt.Sprintf("%.3f ms", b.CalcTime.Read()))
	v := b.Valves.Read()
	row("valves", fmt.Sprintf("heater %s  dhx %s  ctah %s", valve(v.Heater), valve(v.DHX), valve(v.CTAH)))
	row("flow trend", sparkline(m.src.Series.Flow.Column(1), 24))
	s.WriteString("\n")

	for _, mt := range m.src.Metrics {
		if mt.Name() == "tracking" {
			row(mt.Name(), m.styles.ratioBar(mt.Value(), 16)+fmt.Sprintf(" %.0f%%", mt.Value()*100))
			continue
		}
		row(mt.Name(), fmt.Sprintf("%.3f", mt.Value()))
	}
	row("points", fmt.Sprintf("%d/%d/%d/%d", m.src.Series.Flow.Len(), m.src.Series.Heater.Len(),
		m.src.Series.Reference.Len(), m.src.Series.Probe.Len()))
	s.WriteString("\nINPUTS\n")

	for i, in := range m.inputs {
		line := fmt.Sprintf("%-13s %8.3f %s", in.name, in.read(), in.unit)
		if i == m.selected {
			s.WriteString(m.styles.active.Render("> "+line) + "\n")
		} else {
			s.WriteString("  " + m.styles.value.Render(line) + "\n")
		}
	}
	if err := *m.tuneErr; err != nil {
		s.WriteString(m.styles.err.Render(err.Error()) + "\n")
	}
	s.WriteString(m.styles.help.Render("TAB:select ↑↓:adjust A:address T:theme ?:help Q:quit"))
	return s.String()
}

func valve(open bool) string {
	if open {
		return "open"
	}
	return "shut"
}

const helpText = `KEYBOARD SHORTCUTS
  Tab/Shift+Tab  select operator input or controller gain
  Up/K Down/J    adjust the selected input
  A              edit server address (Enter applies, Esc cancels)
  T              cycle themes
  ?              toggle this help
  Q              quit`
