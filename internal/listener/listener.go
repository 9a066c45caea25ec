// Package listener provides the UDP receive loop for SNMPv1 traps. It owns
// the socket, validates and decodes each datagram synchronously, and hands
// typed packets to consumers over a bounded queue without ever blocking
// packet intake.
package listener

import (
	"context"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/geekxflood/common/config"
	"github.com/geekxflood/common/logging"
	"github.com/geekxflood/triton/internal/metrics"
	"github.com/geekxflood/triton/internal/snmp"
)

// Inbound is one decoded trap datagram crossing the hand-off queue.
// Ownership transfers fully to whichever worker pops it.
type Inbound struct {
	Packet     *snmp.Packet
	Source     *net.UDPAddr
	Size       int
	ReceivedAt time.Time
}

// Stats tracks receive-loop counters.
type Stats struct {
	PacketsReceived  uint64            `json:"packets_received"`
	PacketsQueued    uint64            `json:"packets_queued"`
	PacketsDropped   uint64            `json:"packets_dropped"`
	ParseErrors      uint64            `json:"parse_errors"`
	ValidationErrors uint64            `json:"validation_errors"`
	ReadErrors       uint64            `json:"read_errors"`
	QueueLength      int               `json:"queue_length"`
	QueueCapacity    int               `json:"queue_capacity"`
	LastPacketTime   time.Time         `json:"last_packet_time"`
	ByCommunity      map[string]uint64 `json:"by_community"`
	ByGenericTrap    map[string]uint64 `json:"by_generic_trap"`
}

func newStats() *Stats {
	return &Stats{
		ByCommunity:   make(map[string]uint64),
		ByGenericTrap: make(map[string]uint64),
	}
}

// Listener receives SNMPv1 trap datagrams and feeds the hand-off queue.
type Listener struct {
	config    config.Provider
	logger    logging.Logger
	validator *PacketValidator
	metrics   *metrics.Metrics
	conn      *net.UDPConn
	queue     chan *Inbound
	stats     *Stats
	wg        sync.WaitGroup
	mu        sync.RWMutex
	running   bool
}

// NewListener creates a listener from configuration. The queue size bounds
// how many decoded packets may be in flight between the receive loop and
// the workers.
func NewListener(cfg config.Provider, logger logging.Logger) (*Listener, error) {
	if cfg == nil {
		return nil, fmt.Errorf("configuration provider cannot be nil")
	}
	if logger == nil {
		logger = logging.GetLogger()
	}

	queueSize, err := cfg.GetInt("server.queue_size", 256)
	if err != nil {
		return nil, fmt.Errorf("failed to get queue_size configuration: %w", err)
	}

	validator, err := NewPacketValidator(cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create packet validator: %w", err)
	}

	return &Listener{
		config:    cfg,
		logger:    logger,
		validator: validator,
		queue:     make(chan *Inbound, queueSize),
		stats:     newStats(),
	}, nil
}

// SetMetrics attaches Prometheus counters for the receive loop. Must be
// called before Start.
func (l *Listener) SetMetrics(m *metrics.Metrics) {
	l.metrics = m
}

// Packets returns the hand-off queue. Items are delivered in enqueue order;
// concurrent consumers race to dequeue, so processing order across workers
// is not arrival order.
func (l *Listener) Packets() <-chan *Inbound {
	return l.queue
}

// Start binds the UDP socket and launches the receive loop.
func (l *Listener) Start(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.running {
		return fmt.Errorf("listener is already running")
	}

	host, err := l.config.GetString("server.host", "127.0.0.1")
	if err != nil {
		return fmt.Errorf("failed to get server host: %w", err)
	}

	port, err := l.config.GetInt("server.port", 1062)
	if err != nil {
		return fmt.Errorf("failed to get server port: %w", err)
	}

	addr, err := net.ResolveUDPAddr("udp", fmt.Sprintf("%s:%d", host, port))
	if err != nil {
		return fmt.Errorf("failed to resolve UDP address: %w", err)
	}

	conn, err := net.ListenUDP("udp", addr)
	if err != nil {
		return fmt.Errorf("failed to bind to UDP socket: %w", err)
	}

	if err := l.validator.Start(ctx); err != nil {
		conn.Close()
		return fmt.Errorf("failed to start packet validator: %w", err)
	}

	l.conn = conn
	l.running = true

	l.wg.Add(1)
	go l.receive(ctx)

	l.logger.Info("SNMP trap listener started", "addr", conn.LocalAddr().String())
	return nil
}

// Stop closes the socket, drains the receive loop and closes the hand-off
// queue so consumers can finish.
func (l *Listener) Stop() error {
	l.mu.Lock()
	if !l.running {
		l.mu.Unlock()
		return nil
	}
	l.running = false
	if l.conn != nil {
		l.conn.Close()
	}
	// Release the lock before waiting: the receive loop takes it to record
	// read errors on its way out.
	l.mu.Unlock()

	l.wg.Wait()
	close(l.queue)

	return l.validator.Stop()
}

// IsRunning reports whether the receive loop is active.
func (l *Listener) IsRunning() bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.running
}

// receive is the receive loop: one blocking read per datagram, synchronous
// decode, non-blocking queue push. Neither read errors nor malformed
// datagrams terminate the loop.
func (l *Listener) receive(ctx context.Context) {
	defer l.wg.Done()

	readTimeout, err := l.config.GetDuration("server.read_timeout", 30*time.Second)
	if err != nil {
		readTimeout = 30 * time.Second
	}

	bufferSize, err := l.config.GetInt("server.buffer_size", 4096)
	if err != nil || bufferSize <= 0 {
		bufferSize = 4096
	}

	buffer := make([]byte, bufferSize)

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		l.conn.SetReadDeadline(time.Now().Add(readTimeout))

		n, addr, err := l.conn.ReadFromUDP(buffer)
		if err != nil {
			if netErr, ok := err.(net.Error); ok && netErr.Timeout() {
				continue
			}
			if !l.IsRunning() {
				return
			}
			l.mu.Lock()
			l.stats.ReadErrors++
			l.mu.Unlock()
			l.logger.Warn("socket read error", "error", err.Error())
			continue
		}

		l.handleDatagram(buffer[:n], addr)
	}
}

// handleDatagram decodes and validates one datagram, then pushes the typed
// packet onto the queue if there is room.
func (l *Listener) handleDatagram(data []byte, addr *net.UDPAddr) {
	l.mu.Lock()
	l.stats.PacketsReceived++
	l.stats.LastPacketTime = time.Now()
	l.mu.Unlock()
	if l.metrics != nil {
		l.metrics.Traps.TrapsReceived.Inc()
	}

	if err := l.validator.ValidateDatagram(data, addr.IP); err != nil {
		l.mu.Lock()
		l.stats.ValidationErrors++
		l.mu.Unlock()
		l.logger.Debug("datagram rejected", "source", addr.IP.String(), "error", err.Error())
		return
	}

	packet, err := snmp.ParsePacket(data)
	if err != nil {
		l.mu.Lock()
		l.stats.ParseErrors++
		l.mu.Unlock()
		if l.metrics != nil {
			l.metrics.Traps.ParseErrors.Inc()
		}
		l.logger.Debug("trap parse error", "source", addr.IP.String(), "error", err.Error())
		return
	}

	if err := l.validator.ValidatePacket(packet); err != nil {
		l.mu.Lock()
		l.stats.ValidationErrors++
		l.mu.Unlock()
		l.logger.Debug("trap rejected", "source", addr.IP.String(), "error", err.Error())
		return
	}

	inbound := &Inbound{
		Packet:     packet,
		Source:     addr,
		Size:       len(data),
		ReceivedAt: time.Now(),
	}

	select {
	case l.queue <- inbound:
		l.mu.Lock()
		l.stats.PacketsQueued++
		l.stats.ByCommunity[packet.Community]++
		if packet.PDU.Trap != nil {
			l.stats.ByGenericTrap[packet.PDU.Trap.Generic.String()]++
		}
		l.mu.Unlock()
		if l.metrics != nil {
			l.metrics.Traps.QueueLength.Set(float64(len(l.queue)))
		}
	default:
		// Queue full: drop rather than block the receive loop.
		l.mu.Lock()
		l.stats.PacketsDropped++
		l.mu.Unlock()
		if l.metrics != nil {
			l.metrics.Traps.TrapsDropped.Inc()
		}
		l.logger.Warn("hand-off queue full, dropping trap", "source", addr.IP.String())
	}
}

// GetStats returns a snapshot of listener statistics.
func (l *Listener) GetStats() *Stats {
	l.mu.RLock()
	defer l.mu.RUnlock()

	snapshot := *l.stats
	snapshot.QueueLength = len(l.queue)
	snapshot.QueueCapacity = cap(l.queue)
	snapshot.ByCommunity = make(map[string]uint64, len(l.stats.ByCommunity))
	for k, v := range l.stats.ByCommunity {
		snapshot.ByCommunity[k] = v
	}
	snapshot.ByGenericTrap = make(map[string]uint64, len(l.stats.ByGenericTrap))
	for k, v := range l.stats.ByGenericTrap {
		snapshot.ByGenericTrap[k] = v
	}
	return &snapshot
}
