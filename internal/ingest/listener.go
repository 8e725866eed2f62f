// Package ingest receives newline-delimited JSON detection samples over
// UDP and routes them to the per-stream pipelines.
package ingest

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/trafficvitals/tvsi/internal/engine"
	"github.com/trafficvitals/tvsi/internal/monitoring"
)

// Router receives decoded detections. Satisfied by engine.Manager.
type Router interface {
	Ingest(s engine.DetectionSample)
}

// UDPListenerConfig contains configuration options for the UDP listener.
type UDPListenerConfig struct {
	Address     string
	RcvBuf      int
	LogInterval time.Duration
	Stats       *PacketStats
	Router      Router
}

// UDPListener receives detection datagrams and feeds the router. One
// datagram carries one or more newline-delimited JSON objects; a line
// that fails to decode is counted and skipped without affecting the
// rest of the datagram.
type UDPListener struct {
	address     string
	rcvBuf      int
	logInterval time.Duration
	stats       *PacketStats
	router      Router

	mu   sync.Mutex
	conn *net.UDPConn
}

// NewUDPListener creates a new UDP listener with the provided
// configuration.
func NewUDPListener(config UDPListenerConfig) *UDPListener {
	stats := config.Stats
	if stats == nil {
		stats = NewPacketStats()
	}

	logInterval := config.LogInterval
	if logInterval == 0 {
		logInterval = time.Minute
	}

	return &UDPListener{
		address:     config.Address,
		rcvBuf:      config.RcvBuf,
		logInterval: logInterval,
		stats:       stats,
		router:      config.Router,
	}
}

// Start begins listening for UDP packets and processing them. It blocks
// until ctx is cancelled or the socket fails.
func (l *UDPListener) Start(ctx context.Context) error {
	addr, err := net.ResolveUDPAddr("udp", l.address)
	if err != nil {
		return fmt.Errorf("failed to resolve UDP address: %w", err)
	}

	conn, err := net.ListenUDP("udp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on UDP address: %w", err)
	}
	l.mu.Lock()
	l.conn = conn
	l.mu.Unlock()
	defer conn.Close()

	if l.rcvBuf > 0 {
		if err := conn.SetReadBuffer(l.rcvBuf); err != nil {
			monitoring.Warnf("failed to set UDP receive buffer size to %d: %v", l.rcvBuf, err)
		}
	}

	monitoring.Logf("UDP listener started on %s", conn.LocalAddr())

	go l.startStatsLogging(ctx)

	buffer := make([]byte, 65536)

	for {
		select {
		case <-ctx.Done():
			monitoring.Logf("UDP listener stopping")
			return ctx.Err()
		default:
			// Read deadline so context cancellation is noticed promptly.
			conn.SetReadDeadline(time.Now().Add(100 * time.Millisecond))

			n, addr, err := conn.ReadFromUDP(buffer)
			if err != nil {
				if netErr, ok := err.(net.Error); ok && netErr.Timeout() {
					continue
				}
				if ctx.Err() != nil {
					return ctx.Err()
				}
				monitoring.Warnf("UDP read error: %v", err)
				continue
			}

			if err := l.handlePacket(buffer[:n]); err != nil {
				monitoring.Warnf("error handling packet from %v: %v", addr, err)
			}
		}
	}
}

// handlePacket decodes one datagram and routes its detections.
func (l *UDPListener) handlePacket(packet []byte) error {
	l.stats.AddPacket(len(packet))

	decoded := 0
	for _, line := range bytes.Split(packet, []byte{'\n'}) {
		line = bytes.TrimSpace(line)
		if len(line) == 0 {
			continue
		}

		var s engine.DetectionSample
		if err := json.Unmarshal(line, &s); err != nil {
			l.stats.AddMalformed()
			continue
		}
		if s.StreamID == "" {
			l.stats.AddMalformed()
			continue
		}

		l.router.Ingest(s)
		decoded++
	}

	l.stats.AddDetections(decoded)
	return nil
}

// startStatsLogging periodically logs listener statistics.
func (l *UDPListener) startStatsLogging(ctx context.Context) {
	ticker := time.NewTicker(l.logInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			l.stats.LogStats()
		}
	}
}

// LocalAddr returns the bound socket address, or nil before Start has
// opened the socket.
func (l *UDPListener) LocalAddr() net.Addr {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.conn == nil {
		return nil
	}
	return l.conn.LocalAddr()
}

// Close closes the UDP socket.
func (l *UDPListener) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.conn != nil {
		return l.conn.Close()
	}
	return nil
}
