package reporting

import (
	"io"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"github.com/ethereum-optimism/infra/op-cycler/types"
)

// TableWriter prints the summary rows as a console table
type TableWriter struct {
	// Color enables ANSI colors in the status column and table style
	Color bool
}

// Write renders r as a table to w
func (tw *TableWriter) Write(w io.Writer, r *Report) {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetTitle(r.Title())

	t.AppendHeader(table.Row{"#", "Test", "Duration", "Status", "Summary"})
	t.SetColumnConfigs([]table.ColumnConfig{
		{Name: "#", Align: text.AlignRight},
		{Name: "Test", WidthMax: 50, WidthMaxEnforcer: text.WrapSoft},
		{Name: "Duration", Align: text.AlignRight},
		{Name: "Summary", WidthMax: 60, WidthMaxEnforcer: text.WrapSoft},
	})

	for _, row := range r.Rows {
		t.AppendRow(table.Row{
			row.Sequence,
			row.Name,
			formatMinutes(row.Duration),
			tw.status(row.Outcome),
			row.Summary,
		})
	}

	t.AppendFooter(table.Row{
		"",
		"TOTAL",
		formatMinutes(r.Duration),
		tw.status(r.Status),
		r.Totals.String(),
	})

	if tw.Color {
		switch r.Status {
		case types.OutcomePass:
			t.SetStyle(table.StyleColoredBlackOnGreenWhite)
		case types.OutcomeFail:
			t.SetStyle(table.StyleColoredBlackOnRedWhite)
		default:
			t.SetStyle(table.StyleColoredBlackOnYellowWhite)
		}
	} else {
		t.SetStyle(table.StyleLight)
	}

	t.Render()
}

func (tw *TableWriter) status(o types.Outcome) string {
	if !tw.Color {
		return string(o)
	}
	switch types.ColorFor(o) {
	case types.ColorGreen:
		return text.FgGreen.Sprint(o)
	case types.ColorRed:
		return text.FgRed.Sprint(o)
	default:
		return text.FgYellow.Sprint(o)
	}
}
