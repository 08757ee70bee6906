package usage

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestComputeCost(t *testing.T) {
	assert.InDelta(t, 0.0105, DefaultPrices.ComputeCost(1000, 500), 1e-12)
	assert.Zero(t, DefaultPrices.ComputeCost(0, 0))
}

func TestLedgerRecordAndSnapshot(t *testing.T) {
	l := NewLedger(DefaultPrices)

	l.Record(1000, 500)
	l.Record(2000, 100)
	l.RecordError()

	s := l.Snapshot()
	assert.Equal(t, int64(3000), s.TotalInputUnits)
	assert.Equal(t, int64(600), s.TotalOutputUnits)
	assert.Equal(t, int64(2), s.APICalls)
	assert.Equal(t, int64(1), s.Errors)
	assert.InDelta(t, 3000*3.0/1e6+600*15.0/1e6, s.EstimatedCost, 1e-12)
}

func TestLedgerRecordErrorLeavesUnits(t *testing.T) {
	l := NewLedger(DefaultPrices)
	l.RecordError()

	s := l.Snapshot()
	assert.Zero(t, s.APICalls)
	assert.Zero(t, s.TotalInputUnits)
	assert.Zero(t, s.EstimatedCost)
}

func TestSnapshotIsACopy(t *testing.T) {
	l := NewLedger(DefaultPrices)
	l.Record(10, 10)
	before := l.Snapshot()
	l.Record(10, 10)
	assert.Equal(t, int64(1), before.APICalls)
}

func TestReset(t *testing.T) {
	l := NewLedger(DefaultPrices)
	l.Record(10, 20)
	l.RecordError()
	l.Reset()
	assert.Equal(t, Snapshot{}, l.Snapshot())
}

func TestConcurrentSnapshotReaders(t *testing.T) {
	l := NewLedger(DefaultPrices)
	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				_ = l.Snapshot()
			}
		}()
	}
	for i := 0; i < 100; i++ {
		l.Record(1, 1)
	}
	wg.Wait()
	assert.Equal(t, int64(100), l.Snapshot().APICalls)
}
