package monitor

import "errors"

var (
	// ErrInvariantViolation means both instruments resolved to the same condition id
	ErrInvariantViolation = errors.New("monitor: sol and btc markets share a condition id")
	// ErrNoMarket means discovery exhausted the current and fallback periods
	ErrNoMarket = errors.New("monitor: no active market found")
)
