// Package monitor samples host and process health on an interval and
// publishes the readings onto the event bus: system.metrics every tick,
// system.health at high priority whenever the host looks degraded. A
// reading that fails is reported as system.error.
package monitor

import (
	"context"
	"fmt"
	"log"
	"runtime"
	"sync"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/load"
	"github.com/shirou/gopsutil/v3/mem"

	"github.com/billchurch/webssh2-sub007/internal/bus"
	"github.com/billchurch/webssh2-sub007/internal/events"
)

const (
	DefaultInterval = 30 * time.Second

	// Degradation thresholds, percent.
	DefaultCPUDegraded = 90.0
	DefaultMemDegraded = 90.0
)

// Sample is one reading of host and gateway vitals.
type Sample struct {
	Timestamp      time.Time
	CPUPercent     float64
	MemUsedPercent float64
	Load1          float64
	Goroutines     int
	Sessions       int
	Connections    int
}

// Counter supplies a gauge value at sample time.
type Counter func() int

type Monitor struct {
	bus         *bus.Bus
	interval    time.Duration
	sessions    Counter
	connections Counter

	cpuDegraded float64
	memDegraded float64

	mu          sync.RWMutex
	last        Sample
	lastStatus  string
	lastReasons []string

	cancel context.CancelFunc
	readFn func() (cpuPct, memPct, load1 float64, err error)
}

// New builds a monitor publishing to b. The counters report current session
// and connection counts; either may be nil.
func New(b *bus.Bus, interval time.Duration, sessions, connections Counter) *Monitor {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Monitor{
		bus:         b,
		interval:    interval,
		sessions:    sessions,
		connections: connections,
		cpuDegraded: DefaultCPUDegraded,
		memDegraded: DefaultMemDegraded,
		lastStatus:  events.HealthOK,
		readFn:      readSystem,
	}
}

func readSystem() (float64, float64, float64, error) {
	percents, err := cpu.Percent(0, false)
	if err != nil {
		return 0, 0, 0, fmt.Errorf("cpu: %w", err)
	}
	var cpuPct float64
	if len(percents) > 0 {
		cpuPct = percents[0]
	}

	vm, err := mem.VirtualMemory()
	if err != nil {
		return cpuPct, 0, 0, fmt.Errorf("mem: %w", err)
	}

	// Load average is unsupported on some platforms; zero is fine there.
	var load1 float64
	if avg, err := load.Avg(); err == nil {
		load1 = avg.Load1
	}

	return cpuPct, vm.UsedPercent, load1, nil
}

// Start launches the sampling loop. Stop or cancel ctx to end it.
func (m *Monitor) Start(ctx context.Context) {
	runCtx, cancel := context.WithCancel(ctx)
	m.cancel = cancel

	go func() {
		ticker := time.NewTicker(m.interval)
		defer ticker.Stop()
		for {
			select {
			case <-runCtx.Done():
				return
			case <-ticker.C:
				m.publish(m.sample())
			}
		}
	}()

	log.Printf("[monitor] started (interval: %s)", m.interval)
}

func (m *Monitor) Stop() {
	if m.cancel != nil {
		m.cancel()
		m.cancel = nil
	}
}

func (m *Monitor) sample() Sample {
	cpuPct, memPct, load1, err := m.readFn()
	if err != nil {
		log.Printf("[monitor] read system stats: %v", err)
		if pubErr := m.bus.Publish(events.NewSystemError("monitor", "read system stats", err), bus.Normal); pubErr != nil {
			log.Printf("[monitor] publish error event: %v", pubErr)
		}
	}

	s := Sample{
		Timestamp:      time.Now(),
		CPUPercent:     cpuPct,
		MemUsedPercent: memPct,
		Load1:          load1,
		Goroutines:     runtime.NumGoroutine(),
	}
	if m.sessions != nil {
		s.Sessions = m.sessions()
	}
	if m.connections != nil {
		s.Connections = m.connections()
	}
	return s
}

// publish records the sample and pushes metrics plus, when warranted, a
// health event. Degraded health repeats every tick at high priority;
// recovery is announced once.
func (m *Monitor) publish(s Sample) {
	var reasons []string
	if s.CPUPercent >= m.cpuDegraded {
		reasons = append(reasons, fmt.Sprintf("cpu at %.0f%%", s.CPUPercent))
	}
	if s.MemUsedPercent >= m.memDegraded {
		reasons = append(reasons, fmt.Sprintf("memory at %.0f%%", s.MemUsedPercent))
	}
	status := events.HealthOK
	if len(reasons) > 0 {
		status = events.HealthDegraded
	}

	m.mu.Lock()
	m.last = s
	changed := status != m.lastStatus
	m.lastStatus = status
	m.lastReasons = reasons
	m.mu.Unlock()

	metrics := events.NewSystemMetrics(events.MetricsPayload{
		CPUPercent:     s.CPUPercent,
		MemUsedPercent: s.MemUsedPercent,
		Load1:          s.Load1,
		Goroutines:     s.Goroutines,
		Sessions:       s.Sessions,
		Connections:    s.Connections,
	})
	if err := m.bus.Publish(metrics, bus.Normal); err != nil {
		log.Printf("[monitor] publish metrics: %v", err)
	}

	if status == events.HealthDegraded {
		if err := m.bus.Publish(events.NewSystemHealth(status, reasons...), bus.High); err != nil {
			log.Printf("[monitor] publish health: %v", err)
		}
	} else if changed {
		if err := m.bus.Publish(events.NewSystemHealth(status), bus.Normal); err != nil {
			log.Printf("[monitor] publish health: %v", err)
		}
	}
}

// Snapshot returns the most recent sample.
func (m *Monitor) Snapshot() Sample {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.last
}

// Status returns the current health status and its reasons.
func (m *Monitor) Status() (string, []string) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	reasons := make([]string, len(m.lastReasons))
	copy(reasons, m.lastReasons)
	return m.lastStatus, reasons
}
