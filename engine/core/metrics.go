package core

import (
	"sync"
	"time"
)

const AVG_COUNT uint8 = 30

// MetricsState tracks the bind passes run by the engine.
type MetricsState struct {
	mu sync.Mutex

	passAVGCounter uint8
	passTimes      [AVG_COUNT]time.Duration
	passAVG        time.Duration
	passes         uint64
	lastUnresolved int
	totalReports   uint64
}

var onceMetrics sync.Once
var metricsState *MetricsState = nil

func MetricsInitialize() error {
	onceMetrics.Do(func() {
		metricsState = &MetricsState{}
	})
	return nil
}

// MetricsUpdate records a bind pass that took elapsed and left unresolved
// variable elements.
func MetricsUpdate(elapsed time.Duration, unresolved int) {
	m := metricsState
	m.mu.Lock()
	defer m.mu.Unlock()

	m.passTimes[m.passAVGCounter] = elapsed
	m.passes++
	// Average over the recorded passes until the window is full.
	n := uint64(AVG_COUNT)
	if m.passes < n {
		n = m.passes
	}
	var sum time.Duration
	for i := uint64(0); i < n; i++ {
		sum += m.passTimes[i]
	}
	m.passAVG = sum / time.Duration(n)
	m.passAVGCounter = (m.passAVGCounter + 1) % AVG_COUNT

	m.lastUnresolved = unresolved
	m.totalReports += uint64(unresolved)
}

// MetricsPassTime returns the average duration of the recent bind passes.
func MetricsPassTime() time.Duration {
	metricsState.mu.Lock()
	defer metricsState.mu.Unlock()
	return metricsState.passAVG
}

func MetricsPasses() uint64 {
	metricsState.mu.Lock()
	defer metricsState.mu.Unlock()
	return metricsState.passes
}

// MetricsUnresolved returns the unresolved count of the last pass and the
// total over every pass.
func MetricsUnresolved() (int, uint64) {
	metricsState.mu.Lock()
	defer metricsState.mu.Unlock()
	return metricsState.lastUnresolved, metricsState.totalReports
}
