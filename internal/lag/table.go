package lag

import (
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/subzone/zonecore/internal/mainloop"
	"github.com/subzone/zonecore/internal/player"
)

// Table owns every connected player's lag statistics, guarded by a
// single RWMutex the same way internal/broker guards its interface
// maps: writes are frequent (every transport thread touches it) but
// short, so one lock beats per-player locks at this player count.
type Table struct {
	mu    sync.RWMutex
	stats map[player.PID]*playerStats

	positionGauge *prometheus.GaugeVec
	reliableGauge *prometheus.GaugeVec
	lossGauge     *prometheus.GaugeVec
	driftGauge    *prometheus.GaugeVec
}

// NewTable creates an empty lag table and registers its gauges with
// reg (pass nil to skip Prometheus registration, e.g. in tests).
func NewTable(reg prometheus.Registerer) *Table {
	t := &Table{
		stats: make(map[player.PID]*playerStats),
		positionGauge: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "zonecore", Subsystem: "lag", Name: "position_ping_ms",
		}, []string{"pid", "stat"}),
		reliableGauge: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "zonecore", Subsystem: "lag", Name: "reliable_ping_ms",
		}, []string{"pid", "stat"}),
		lossGauge: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "zonecore", Subsystem: "lag", Name: "packet_loss_ratio",
		}, []string{"pid", "direction"}),
		driftGauge: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "zonecore", Subsystem: "lag", Name: "time_sync_drift_ms",
		}, []string{"pid"}),
	}
	if reg != nil {
		reg.MustRegister(t.positionGauge, t.reliableGauge, t.lossGauge, t.driftGauge)
	}
	return t
}

func (t *Table) statsFor(pid player.PID) *playerStats {
	t.mu.RLock()
	s, ok := t.stats[pid]
	t.mu.RUnlock()
	if ok {
		return s
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if s, ok = t.stats[pid]; ok {
		return s
	}
	s = newPlayerStats()
	t.stats[pid] = s
	return s
}

// Remove drops pid's statistics, e.g. on disconnect.
func (t *Table) Remove(pid player.PID) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.stats, pid)

	pidLabel := pidString(pid)
	t.positionGauge.DeletePartialMatch(prometheus.Labels{"pid": pidLabel})
	t.reliableGauge.DeletePartialMatch(prometheus.Labels{"pid": pidLabel})
	t.lossGauge.DeletePartialMatch(prometheus.Labels{"pid": pidLabel})
	t.driftGauge.DeleteLabelValues(pidLabel)
}

// --- writer side (collect.*, §4.9: "on any thread that touches the
// transport") ---

// CollectPosition records the one-way delay of a position packet.
func (t *Table) CollectPosition(pid player.PID, delay time.Duration) {
	ms := float64(delay.Milliseconds())
	s := t.statsFor(pid)
	s.positionPing.push(ms)
	s.positionHist.add(ms)
	t.publishPosition(pid, s)
}

// CollectRelDelay records a reliable packet's send-to-ACK round trip.
func (t *Table) CollectRelDelay(pid player.PID, rtt time.Duration) {
	ms := float64(rtt.Milliseconds())
	s := t.statsFor(pid)
	s.reliablePing.push(ms)
	t.publishReliable(pid, s)
}

// CollectClientReported records a ping value the client itself sent
// in a security/client-latency packet.
func (t *Table) CollectClientReported(pid player.PID, ms float64) {
	s := t.statsFor(pid)
	s.clientReportedPing.push(ms)
}

// LossDirection names which packet-loss moving average to update.
type LossDirection int

const (
	LossS2C LossDirection = iota
	LossC2S
	LossS2CWeapons
)

// CollectPacketLoss feeds one fresh loss-ratio sample (0..1) into dir's
// moving average.
func (t *Table) CollectPacketLoss(pid player.PID, dir LossDirection, ratio float64) {
	s := t.statsFor(pid)
	var avg *movingAverage
	var label string
	switch dir {
	case LossS2C:
		avg, label = s.lossS2C, "s2c"
	case LossC2S:
		avg, label = s.lossC2S, "c2s"
	case LossS2CWeapons:
		avg, label = s.lossS2CWeapons, "s2c_weapons"
	default:
		return
	}
	avg.add(ratio)
	t.lossGauge.WithLabelValues(pidString(pid), label).Set(avg.value)
}

// CollectTimeSync records one ZSync exchange pair.
func (t *Table) CollectTimeSync(pid player.PID, serverTime, clientTime time.Time) {
	s := t.statsFor(pid)
	s.addTimeSync(serverTime, clientTime)
	t.driftGauge.WithLabelValues(pidString(pid)).Set(float64(s.averageDrift().Milliseconds()))
}

func (t *Table) publishPosition(pid player.PID, s *playerStats) {
	min, avg, max, _ := s.positionPing.stats()
	pidLabel := pidString(pid)
	t.positionGauge.WithLabelValues(pidLabel, "min").Set(min)
	t.positionGauge.WithLabelValues(pidLabel, "avg").Set(avg)
	t.positionGauge.WithLabelValues(pidLabel, "max").Set(max)
}

func (t *Table) publishReliable(pid player.PID, s *playerStats) {
	min, avg, max, _ := s.reliablePing.stats()
	pidLabel := pidString(pid)
	t.reliableGauge.WithLabelValues(pidLabel, "min").Set(min)
	t.reliableGauge.WithLabelValues(pidLabel, "avg").Set(avg)
	t.reliableGauge.WithLabelValues(pidLabel, "max").Set(max)
}

// --- reader side (query.*, §4.9: dispatched through the mainloop) ---

// Query reads pid's current snapshot on m's mainloop thread and
// invokes cb with the result (or the zero Snapshot if pid is
// unknown). Administrators are expected to call this rather than
// reading the table directly, matching the mainloop-marshalled
// pattern other cross-thread reads in this core use.
func (t *Table) Query(pid player.PID, m *mainloop.Mainloop, cb func(Snapshot)) {
	m.QueueWorkItem(func() {
		t.mu.RLock()
		s, ok := t.stats[pid]
		t.mu.RUnlock()
		if !ok {
			cb(Snapshot{})
			return
		}
		cb(s.snapshot())
	})
}

func pidString(pid player.PID) string {
	return strconv.Itoa(int(pid))
}
