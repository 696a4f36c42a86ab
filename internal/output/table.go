package output

import (
	"fmt"
	"strings"

	"github.com/olekukonko/tablewriter"

	"github.com/wonny/ewreturns/internal/returns"
)

// MetricsTable renders one row of metrics per mode
func MetricsTable(metrics []returns.Metrics) string {
	if len(metrics) == 0 {
		return "<NO DATA>"
	}

	s := &strings.Builder{}
	table := tablewriter.NewWriter(s)
	table.SetHeader([]string{"Mode", "Start", "End", "Start Value", "End Value", "Total Return", "CAGR", "Volatility", "Max DD", "Distributed"})
	table.SetBorder(false)

	for _, m := range metrics {
		table.Append([]string{
			string(m.Mode),
			m.Start.Format("2006-01-02"),
			m.End.Format("2006-01-02"),
			fmt.Sprintf("%.2f", m.StartValue),
			fmt.Sprintf("%.2f", m.EndValue),
			pct(m.TotalReturn),
			pct(m.CAGR),
			pct(m.Volatility),
			pct(m.MaxDrawdown),
			fmt.Sprintf("%.4f", m.Distributed),
		})
	}

	table.Render()
	return s.String()
}

// PeriodTable renders the per-period states of one result
func PeriodTable(a *returns.AnnotatedDataset) string {
	if len(a.States) == 0 {
		return "<NO DATA>"
	}

	s := &strings.Builder{}
	table := tablewriter.NewWriter(s)
	table.SetHeader([]string{"Period", "Start", "End", "Eligible", "Capital", "End Value", "Distributions", "Next Capital"})
	footer := make([]string, 8)
	footer[0] = string(a.Mode)
	footer[1] = "Final"
	footer[7] = fmt.Sprintf("%.4f", a.EndingCapital())
	table.SetFooter(footer)
	table.SetBorder(false)

	for _, st := range a.States {
		eligible := fmt.Sprintf("%d", len(st.Eligible))
		if st.Degenerate {
			eligible = "0 (flat)"
		}
		table.Append([]string{
			fmt.Sprintf("%d", st.Period),
			st.Start.Format("2006-01-02"),
			st.End.Format("2006-01-02"),
			eligible,
			fmt.Sprintf("%.4f", st.Capital),
			fmt.Sprintf("%.4f", st.EndValue),
			fmt.Sprintf("%.4f", st.Distributions),
			fmt.Sprintf("%.4f", st.NextCapital),
		})
	}

	table.Render()
	return s.String()
}

func pct(x float64) string {
	if x != x {
		return "-"
	}
	return fmt.Sprintf("%.2f%%", x*100)
}
