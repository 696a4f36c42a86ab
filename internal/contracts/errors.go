package contracts

import "errors"

// ⭐ SSOT: 에러 분류는 여기서만 정의
var (
	// ErrInstrumentNotFound is recoverable: the instrument is skipped
	ErrInstrumentNotFound = errors.New("instrument not found")

	// ErrInputUnreadable is fatal and raised before any fetch
	ErrInputUnreadable = errors.New("instrument list unreadable")

	// ErrEmptyRebalancePeriod means a calendar year has no usable year-end date
	ErrEmptyRebalancePeriod = errors.New("empty rebalance period")

	// ErrNoInstruments means no instrument survived dataset building
	ErrNoInstruments = errors.New("no instruments with data")

	ErrInvalidRange   = errors.New("invalid date range")
	ErrInvalidCapital = errors.New("invalid starting capital")
	ErrUnknownMode    = errors.New("unknown return mode")
)
