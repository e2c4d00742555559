package chaind

import (
	"sync"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/jive-evlbi/chaind/internal/interfaces"
)

// StepCounters tracks per-step throughput, mirroring spec.md §3 Runtime's
// "per-step counters": written only by the worker that owns the step,
// read by everyone else via atomic load.
type StepCounters struct {
	Blocks atomic.Uint64
	Bytes  atomic.Uint64
	Errors atomic.Uint64
}

// SenderStats tracks the eVLBI statistics spec.md §4.5 keeps per UDP
// sender: packets in, lost, out-of-order, and the summed out-of-order
// displacement. ObservePacket carries no displacement and does not
// update OOOSum, so OOOSum stays zero.
type SenderStats struct {
	PktIn   atomic.Uint64
	PktLost atomic.Uint64
	PktOOO  atomic.Uint64
	OOOSum  atomic.Uint64
}

// Metrics aggregates per-step and per-sender counters for one Runtime.
type Metrics struct {
	mu      sync.RWMutex
	steps   map[int]*StepCounters
	senders map[string]*SenderStats
}

// NewMetrics creates an empty metrics aggregate.
func NewMetrics() *Metrics {
	return &Metrics{
		steps:   make(map[int]*StepCounters),
		senders: make(map[string]*SenderStats),
	}
}

func (m *Metrics) step(stepID int) *StepCounters {
	m.mu.RLock()
	c, ok := m.steps[stepID]
	m.mu.RUnlock()
	if ok {
		return c
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if c, ok = m.steps[stepID]; ok {
		return c
	}
	c = &StepCounters{}
	m.steps[stepID] = c
	return c
}

func (m *Metrics) sender(addr string) *SenderStats {
	m.mu.RLock()
	s, ok := m.senders[addr]
	m.mu.RUnlock()
	if ok {
		return s
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok = m.senders[addr]; ok {
		return s
	}
	s = &SenderStats{}
	m.senders[addr] = s
	return s
}

// StepSnapshot returns the blocks/bytes/errors counted for stepID so far.
func (m *Metrics) StepSnapshot(stepID int) (blocks, bytes, errs uint64) {
	c := m.step(stepID)
	return c.Blocks.Load(), c.Bytes.Load(), c.Errors.Load()
}

// SenderSnapshot returns the eVLBI counters for a given sender address.
func (m *Metrics) SenderSnapshot(addr string) (pktIn, pktLost, pktOOO, oooSum uint64) {
	s := m.sender(addr)
	return s.PktIn.Load(), s.PktLost.Load(), s.PktOOO.Load(), s.OOOSum.Load()
}

// ObserveBlock implements interfaces.Observer.
func (m *Metrics) ObserveBlock(stepID int, bytes uint64) {
	c := m.step(stepID)
	c.Blocks.Add(1)
	c.Bytes.Add(bytes)
}

// ObserveError implements interfaces.Observer.
func (m *Metrics) ObserveError(stepID int, _ error) {
	m.step(stepID).Errors.Add(1)
}

// ObservePacket implements interfaces.Observer, recording per-sender UDP
// sequence statistics (spec.md §4.5).
func (m *Metrics) ObservePacket(sender string, pktIn, pktLost, pktOOO uint64) {
	s := m.sender(sender)
	s.PktIn.Add(pktIn)
	s.PktLost.Add(pktLost)
	s.PktOOO.Add(pktOOO)
}

var _ interfaces.Observer = (*Metrics)(nil)

// PrometheusObserver mirrors every event onto Prometheus collectors, so a
// Runtime can be scraped alongside its atomic-counter Metrics without the
// two disagreeing on totals.
type PrometheusObserver struct {
	blocks  *prometheus.CounterVec
	bytes   *prometheus.CounterVec
	errors  *prometheus.CounterVec
	pktIn   *prometheus.CounterVec
	pktLost *prometheus.CounterVec
	pktOOO  *prometheus.CounterVec
}

// NewPrometheusObserver registers chaind's counters with reg (or the
// default registerer when reg is nil) and returns an Observer that feeds
// them.
func NewPrometheusObserver(reg prometheus.Registerer) *PrometheusObserver {
	factory := promauto.With(reg)
	return &PrometheusObserver{
		blocks: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "chaind_step_blocks_total",
			Help: "Blocks processed per chain step.",
		}, []string{"step"}),
		bytes: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "chaind_step_bytes_total",
			Help: "Bytes processed per chain step.",
		}, []string{"step"}),
		errors: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "chaind_step_errors_total",
			Help: "Errors observed per chain step.",
		}, []string{"step"}),
		pktIn: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "chaind_udp_packets_in_total",
			Help: "UDP-PSN packets received per sender.",
		}, []string{"sender"}),
		pktLost: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "chaind_udp_packets_lost_total",
			Help: "UDP-PSN packets inferred lost per sender.",
		}, []string{"sender"}),
		pktOOO: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "chaind_udp_packets_ooo_total",
			Help: "UDP-PSN packets received out of order per sender.",
		}, []string{"sender"}),
	}
}

func (p *PrometheusObserver) ObserveBlock(stepID int, bytes uint64) {
	label := stepLabel(stepID)
	p.blocks.WithLabelValues(label).Inc()
	p.bytes.WithLabelValues(label).Add(float64(bytes))
}

func (p *PrometheusObserver) ObserveError(stepID int, _ error) {
	p.errors.WithLabelValues(stepLabel(stepID)).Inc()
}

func (p *PrometheusObserver) ObservePacket(sender string, pktIn, pktLost, pktOOO uint64) {
	p.pktIn.WithLabelValues(sender).Add(float64(pktIn))
	p.pktLost.WithLabelValues(sender).Add(float64(pktLost))
	p.pktOOO.WithLabelValues(sender).Add(float64(pktOOO))
}

func stepLabel(stepID int) string {
	return "step" + itoa(stepID)
}

// itoa avoids pulling in strconv purely for this one call site's worth of
// formatting inside a hot metrics path.
func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	neg := n < 0
	if neg {
		n = -n
	}
	var buf [20]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	if neg {
		i--
		buf[i] = '-'
	}
	return string(buf[i:])
}

var _ interfaces.Observer = (*PrometheusObserver)(nil)

// MultiObserver fans a single event out to several observers, letting a
// Runtime feed both the in-process Metrics and the Prometheus exporter.
type MultiObserver []interfaces.Observer

func (m MultiObserver) ObserveBlock(stepID int, bytes uint64) {
	for _, o := range m {
		o.ObserveBlock(stepID, bytes)
	}
}

func (m MultiObserver) ObserveError(stepID int, err error) {
	for _, o := range m {
		o.ObserveError(stepID, err)
	}
}

func (m MultiObserver) ObservePacket(sender string, pktIn, pktLost, pktOOO uint64) {
	for _, o := range m {
		o.ObservePacket(sender, pktIn, pktLost, pktOOO)
	}
}

var _ interfaces.Observer = (MultiObserver)(nil)
