package ingest

import (
	"fmt"
	"sync"
	"time"

	"github.com/trafficvitals/tvsi/internal/monitoring"
)

// PacketStats tracks listener statistics with thread-safe operations.
type PacketStats struct {
	mu             sync.Mutex
	packetCount    int64
	byteCount      int64
	detectionCount int64
	malformedCount int64
	lastReset      time.Time
}

// NewPacketStats creates a new PacketStats instance.
func NewPacketStats() *PacketStats {
	return &PacketStats{lastReset: time.Now()}
}

// AddPacket increments packet count and byte count.
func (ps *PacketStats) AddPacket(bytes int) {
	ps.mu.Lock()
	defer ps.mu.Unlock()
	ps.packetCount++
	ps.byteCount += int64(bytes)
}

// AddDetections increments the decoded detection count.
func (ps *PacketStats) AddDetections(count int) {
	ps.mu.Lock()
	defer ps.mu.Unlock()
	ps.detectionCount += int64(count)
}

// AddMalformed increments the undecodable line count.
func (ps *PacketStats) AddMalformed() {
	ps.mu.Lock()
	defer ps.mu.Unlock()
	ps.malformedCount++
}

// GetAndReset returns current stats and resets counters.
func (ps *PacketStats) GetAndReset() (packets, bytes, detections, malformed int64, duration time.Duration) {
	ps.mu.Lock()
	defer ps.mu.Unlock()

	now := time.Now()
	duration = now.Sub(ps.lastReset)
	packets = ps.packetCount
	bytes = ps.byteCount
	detections = ps.detectionCount
	malformed = ps.malformedCount

	ps.packetCount = 0
	ps.byteCount = 0
	ps.detectionCount = 0
	ps.malformedCount = 0
	ps.lastReset = now

	return
}

// LogStats logs formatted per-second statistics since the last reset.
func (ps *PacketStats) LogStats() {
	packets, bytes, detections, malformed, duration := ps.GetAndReset()
	if packets == 0 && malformed == 0 {
		return
	}

	packetsPerSec := float64(packets) / duration.Seconds()
	kbPerSec := float64(bytes) / duration.Seconds() / 1024
	detectionsPerSec := float64(detections) / duration.Seconds()

	logMsg := fmt.Sprintf("Ingest stats (/sec): %.1f KB, %.1f packets, %.1f detections",
		kbPerSec, packetsPerSec, detectionsPerSec)
	if malformed > 0 {
		logMsg += fmt.Sprintf(", %d malformed lines", malformed)
	}
	monitoring.Logf("%s", logMsg)
}
