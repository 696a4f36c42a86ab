package output

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"

	"github.com/wonny/ewreturns/internal/contracts"
	"github.com/wonny/ewreturns/internal/dataset"
	"github.com/wonny/ewreturns/internal/returns"
	"github.com/wonny/ewreturns/pkg/logger"
)

// instrumentFields is the per-ticker column order of the return file
var instrumentFields = []string{"Open", "High", "Low", "Close", "Volume", "Adj_Close", "action", "action_amount", "Shares", "Position_Value"}

// ReturnFileName is the full annotated table for mode
func ReturnFileName(mode contracts.Mode) string {
	return fmt.Sprintf("%s_return_output.csv", mode)
}

// SummaryFileName is the Date,Portfolio_Value table for mode
func SummaryFileName(mode contracts.Mode) string {
	return fmt.Sprintf("%s_summary_output.csv", mode)
}

// Header returns the column names of the return file
func Header(a *returns.AnnotatedDataset) []string {
	header := []string{"Date"}
	for _, t := range a.Tickers {
		for _, f := range instrumentFields {
			header = append(header, t+"_"+f)
		}
	}
	return append(header, "rebalance_date", "rebalance_period", "Portfolio_Value")
}

// WriteReturn writes the annotated table as CSV
func WriteReturn(w io.Writer, a *returns.AnnotatedDataset) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(Header(a)); err != nil {
		return err
	}

	ds := a.Dataset
	for row, date := range ds.Dates {
		record := []string{date.Format("2006-01-02")}
		for _, t := range a.Tickers {
			s := ds.Series[t]
			pos := a.Positions[t]
			record = append(record,
				fmtFloat(s.Open[row]),
				fmtFloat(s.High[row]),
				fmtFloat(s.Low[row]),
				fmtFloat(s.Close[row]),
				fmtFloat(s.Volume[row]),
				fmtFloat(s.AdjClose[row]),
				s.Action[row],
				fmtFloat(ds.Value(t, dataset.FieldDistribution, row)),
				fmtFloat(pos.Shares[row]),
				fmtFloat(pos.Value[row]),
			)
		}

		rebalanceDate := ""
		if a.Schedule.IsRebalanceDate(date) {
			rebalanceDate = "true"
		}
		period := ""
		if a.Tags[row] >= 0 {
			period = strconv.Itoa(a.Tags[row])
		}
		record = append(record, rebalanceDate, period, fmtFloat(a.PortfolioValue[row]))

		if err := cw.Write(record); err != nil {
			return err
		}
	}

	cw.Flush()
	return cw.Error()
}

// WriteSummary writes Date,Portfolio_Value as CSV
func WriteSummary(w io.Writer, a *returns.AnnotatedDataset) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"Date", "Portfolio_Value"}); err != nil {
		return err
	}
	for row, date := range a.Dataset.Dates {
		if err := cw.Write([]string{date.Format("2006-01-02"), fmtFloat(a.PortfolioValue[row])}); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// fmtFloat renders NaN as an empty cell
func fmtFloat(x float64) string {
	if contracts.IsMissing(x) {
		return ""
	}
	return strconv.FormatFloat(x, 'f', -1, 64)
}

// FileSink writes both files of every result into a directory
// ⭐ SSOT: 결과 파일 출력은 여기서만
type FileSink struct {
	dir    string
	logger *logger.Logger
}

// NewFileSink creates a sink writing into dir
func NewFileSink(dir string, log *logger.Logger) *FileSink {
	return &FileSink{dir: dir, logger: log.WithField("module", "output")}
}

// Write stages every file as a temp file first and renames them only when
// all were written, so a failure leaves no partial output behind
func (s *FileSink) Write(results []*returns.AnnotatedDataset) ([]string, error) {
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return nil, fmt.Errorf("create output dir: %w", err)
	}

	type staged struct{ tmp, final string }
	var files []staged
	cleanup := func() {
		for _, f := range files {
			_ = os.Remove(f.tmp)
		}
	}

	for _, a := range results {
		writers := []struct {
			name  string
			write func(io.Writer, *returns.AnnotatedDataset) error
		}{
			{ReturnFileName(a.Mode), WriteReturn},
			{SummaryFileName(a.Mode), WriteSummary},
		}
		for _, wr := range writers {
			tmp, err := s.stage(wr.name, func(w io.Writer) error { return wr.write(w, a) })
			if tmp != "" {
				files = append(files, staged{tmp: tmp, final: filepath.Join(s.dir, wr.name)})
			}
			if err != nil {
				cleanup()
				return nil, fmt.Errorf("write %s: %w", wr.name, err)
			}
		}
	}

	paths := make([]string, 0, len(files))
	for _, f := range files {
		if err := os.Rename(f.tmp, f.final); err != nil {
			cleanup()
			return nil, fmt.Errorf("rename %s: %w", f.final, err)
		}
		paths = append(paths, f.final)
	}

	s.logger.WithField("files", paths).Info("Output written")
	return paths, nil
}

func (s *FileSink) stage(name string, write func(io.Writer) error) (string, error) {
	f, err := os.CreateTemp(s.dir, "."+name+".*.tmp")
	if err != nil {
		return "", err
	}
	if err := write(f); err != nil {
		f.Close()
		return f.Name(), err
	}
	if err := f.Close(); err != nil {
		return f.Name(), err
	}
	return f.Name(), nil
}
