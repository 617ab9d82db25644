package lag

import "time"

const (
	ringCapacity  = 64
	syncHistoryN  = 32
	lossAlpha    = 0.1
	pingBinWidth = 10.0 // ms
	pingNumBins  = 32
)

// timeSyncPair is one (server_time, client_time) exchange (§4.9).
type timeSyncPair struct {
	serverTime time.Time
	clientTime time.Time
	drift      time.Duration
}

// playerStats is one player's full set of lag histograms; all fields
// are mutated only through Table's locked accessors.
type playerStats struct {
	positionPing *ring
	positionHist *histogram

	reliablePing *ring

	clientReportedPing *ring

	lossS2C        *movingAverage
	lossC2S        *movingAverage
	lossS2CWeapons *movingAverage

	syncHistory []timeSyncPair
	syncNext    int
}

func newPlayerStats() *playerStats {
	return &playerStats{
		positionPing:       newRing(ringCapacity),
		positionHist:       newHistogram(pingBinWidth, pingNumBins),
		reliablePing:       newRing(ringCapacity),
		clientReportedPing: newRing(ringCapacity),
		lossS2C:            newMovingAverage(lossAlpha),
		lossC2S:            newMovingAverage(lossAlpha),
		lossS2CWeapons:     newMovingAverage(lossAlpha),
		syncHistory:        make([]timeSyncPair, syncHistoryN),
	}
}

func (s *playerStats) addTimeSync(serverTime, clientTime time.Time) {
	drift := clientTime.Sub(serverTime)
	s.syncHistory[s.syncNext%len(s.syncHistory)] = timeSyncPair{serverTime, clientTime, drift}
	s.syncNext++
}

func (s *playerStats) averageDrift() time.Duration {
	n := s.syncNext
	if n > len(s.syncHistory) {
		n = len(s.syncHistory)
	}
	if n == 0 {
		return 0
	}
	var sum time.Duration
	for i := 0; i < n; i++ {
		sum += s.syncHistory[i].drift
	}
	return sum / time.Duration(n)
}

// PingStats is the min/avg/max/histogram snapshot of one ring (§4.9).
type PingStats struct {
	Min, Avg, Max float64
	Samples       int
	Histogram     []uint64 // nil when the series carries no histogram
}

// Snapshot is the full read-side view of one player's lag data (§4.9),
// returned by Query through the mainloop.
type Snapshot struct {
	PositionPing       PingStats
	ReliablePing       PingStats
	ClientReportedPing PingStats

	LossS2C        float64
	LossC2S        float64
	LossS2CWeapons float64

	AverageDrift time.Duration
}

func (s *playerStats) snapshot() Snapshot {
	pMin, pAvg, pMax, pN := s.positionPing.stats()
	rMin, rAvg, rMax, rN := s.reliablePing.stats()
	cMin, cAvg, cMax, cN := s.clientReportedPing.stats()
	return Snapshot{
		PositionPing:       PingStats{pMin, pAvg, pMax, pN, s.positionHist.snapshot()},
		ReliablePing:       PingStats{Min: rMin, Avg: rAvg, Max: rMax, Samples: rN},
		ClientReportedPing: PingStats{Min: cMin, Avg: cAvg, Max: cMax, Samples: cN},
		LossS2C:            s.lossS2C.value,
		LossC2S:            s.lossC2S.value,
		LossS2CWeapons:     s.lossS2CWeapons.value,
		AverageDrift:       s.averageDrift(),
	}
}
