package usage

import (
	"fmt"
	"sync/atomic"
)

// PriceTable holds per-million-unit rates for the metered scoring service.
type PriceTable struct {
	InputPerMillion  float64
	OutputPerMillion float64
}

// DefaultPrices are the published claude-3.5-sonnet rates.
var DefaultPrices = PriceTable{InputPerMillion: 3.0, OutputPerMillion: 15.0}

func (p PriceTable) ComputeCost(inputUnits, outputUnits int64) float64 {
	return float64(inputUnits)*p.InputPerMillion/1e6 + float64(outputUnits)*p.OutputPerMillion/1e6
}

// Snapshot is an immutable copy of the ledger at a point in time.
type Snapshot struct {
	TotalInputUnits  int64   `json:"totalInputUnits"`
	TotalOutputUnits int64   `json:"totalOutputUnits"`
	APICalls         int64   `json:"apiCalls"`
	Errors           int64   `json:"errors"`
	EstimatedCost    float64 `json:"estimatedCost"`
}

func (s Snapshot) String() string {
	return fmt.Sprintf("calls=%d errors=%d in=%d out=%d cost=$%.4f",
		s.APICalls, s.Errors, s.TotalInputUnits, s.TotalOutputUnits, s.EstimatedCost)
}

// Ledger accumulates consumption for a single run. Writers are expected to be
// sequential; readers may call Snapshot concurrently.
type Ledger struct {
	prices PriceTable
	in     atomic.Int64
	out    atomic.Int64
	calls  atomic.Int64
	errs   atomic.Int64
}

func NewLedger(prices PriceTable) *Ledger { return &Ledger{prices: prices} }

// Record accounts one successful metered call.
func (l *Ledger) Record(inputUnits, outputUnits int) {
	if inputUnits < 0 {
		inputUnits = 0
	}
	if outputUnits < 0 {
		outputUnits = 0
	}
	l.in.Add(int64(inputUnits))
	l.out.Add(int64(outputUnits))
	l.calls.Add(1)
}

func (l *Ledger) RecordError() { l.errs.Add(1) }

func (l *Ledger) Snapshot() Snapshot {
	in, out := l.in.Load(), l.out.Load()
	return Snapshot{
		TotalInputUnits:  in,
		TotalOutputUnits: out,
		APICalls:         l.calls.Load(),
		Errors:           l.errs.Load(),
		EstimatedCost:    l.prices.ComputeCost(in, out),
	}
}

func (l *Ledger) Reset() {
	l.in.Store(0)
	l.out.Store(0)
	l.calls.Store(0)
	l.errs.Store(0)
}

func (l *Ledger) Prices() PriceTable { return l.prices }
