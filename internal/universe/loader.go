package universe

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/wonny/ewreturns/internal/contracts"
)

// TickerColumn is the required header of an instrument list
const TickerColumn = "Ticker"

// LoadFile reads an instrument list from path
func LoadFile(path string) ([]contracts.Instrument, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", contracts.ErrInputUnreadable, err)
	}
	defer f.Close()

	return Load(f)
}

// Load parses a comma-delimited instrument list with a Ticker column.
// The header match is case-insensitive. Blank rows and repeated tickers
// are skipped; the first occurrence keeps its position.
func Load(r io.Reader) ([]contracts.Instrument, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("%w: empty file", contracts.ErrInputUnreadable)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", contracts.ErrInputUnreadable, err)
	}

	col := -1
	for i, name := range header {
		name = strings.TrimPrefix(name, "\uFEFF")
		if strings.EqualFold(strings.TrimSpace(name), TickerColumn) {
			col = i
			break
		}
	}
	if col < 0 {
		return nil, fmt.Errorf("%w: missing %q column", contracts.ErrInputUnreadable, TickerColumn)
	}

	seen := make(map[string]bool)
	var instruments []contracts.Instrument
	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%w: %v", contracts.ErrInputUnreadable, err)
		}
		if col >= len(record) {
			continue
		}

		inst := contracts.NewInstrument(record[col])
		if inst.Ticker == "" || seen[inst.Ticker] {
			continue
		}
		seen[inst.Ticker] = true
		instruments = append(instruments, inst)
	}

	return instruments, nil
}
