package viz

import (
	"fmt"
	"strings"

	"github.com/guptarohit/asciigraph"
	"github.com/san-kum/heaterloop/internal/storage"
)

// PlotTrace renders the temperature and power columns of a recorded run.
func PlotTrace(tr *storage.Trace, width, height int) (string, error) {
	if len(tr.Rows) < 2 {
		return "", fmt.Errorf("trace has %d rows, need at least 2", len(tr.Rows))
	}
	var b strings.Builder
	b.WriteString(asciigraph.PlotMany(
		[][]float64{tr.Column("bt11_degc"), tr.Column("bt12_degc"), tr.Column("expected_bt12_degc")},
		asciigraph.Height(height),
		asciigraph.Width(width),
		asciigraph.SeriesColors(asciigraph.Blue, asciigraph.Red, asciigraph.Green),
		asciigraph.Caption("degC: BT-11 blue, BT-12 red, expected green"),
	))
	b.WriteString("\n\n")
	b.WriteString(asciigraph.Plot(tr.Column("heater_kw"),
		asciigraph.Height(height/2+1),
		asciigraph.Width(width),
		asciigraph.Caption("heater power kW"),
	))
	b.WriteString("\n")
	return b.String(), nil
}
