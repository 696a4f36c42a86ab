package contracts

import (
	"fmt"
	"strings"
)

// Mode selects price-only or total-return accumulation
type Mode string

const (
	ModePrice Mode = "price" // 배당 제외
	ModeTotal Mode = "total" // 배당 재투자
)

// Modes lists every mode in output order
var Modes = []Mode{ModePrice, ModeTotal}

// ParseMode parses a mode name
func ParseMode(s string) (Mode, error) {
	switch Mode(strings.ToLower(strings.TrimSpace(s))) {
	case ModePrice:
		return ModePrice, nil
	case ModeTotal:
		return ModeTotal, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownMode, s)
	}
}

// SweepsDistributions reports whether distributions are added to capital
func (m Mode) SweepsDistributions() bool {
	return m == ModeTotal
}
