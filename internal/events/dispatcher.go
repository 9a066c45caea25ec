// Package events provides the worker pool that drains the trap hand-off
// queue and the single-writer dispatch state the workers feed.
package events

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/geekxflood/common/config"
	"github.com/geekxflood/common/logging"
	"github.com/geekxflood/triton/internal/alerts"
	"github.com/geekxflood/triton/internal/listener"
	"github.com/geekxflood/triton/internal/metrics"
	"github.com/geekxflood/triton/internal/storage"
	"github.com/prometheus/common/model"
)

// TrapHandler is invoked by the state owner for every successfully handled
// trap packet.
type TrapHandler func(*listener.Inbound, int64)

// AlertSink receives the Prometheus-model alert built for a handled trap.
type AlertSink func(*model.Alert)

// DispatcherConfig holds configuration for the dispatch worker pool.
type DispatcherConfig struct {
	Workers int `json:"workers"`
}

// DefaultDispatcherConfig returns the default dispatcher configuration.
func DefaultDispatcherConfig() *DispatcherConfig {
	return &DispatcherConfig{
		Workers: 2,
	}
}

// State is the shared dispatch state. It is mutated only by the state-owner
// goroutine; the mutex exists solely so GetStats can snapshot it.
type State struct {
	PacketCount   uint64            `json:"packet_count"`
	FailedCount   uint64            `json:"failed_count"`
	ByGenericTrap map[string]uint64 `json:"by_generic_trap"`
	LastHandledAt time.Time         `json:"last_handled_at"`
}

// outcome is what a worker forwards to the state owner after it finishes
// one packet.
type outcome struct {
	inbound  *listener.Inbound
	eventID  int64
	duration time.Duration
	err      error
}

// Dispatcher drains the listener queue with a fixed worker pool. Workers do
// the per-packet work (storage, metrics, alert conversion) and forward the
// result to a single state-owner goroutine; only that goroutine mutates the
// packet counter and invokes handlers. Workers never contend for the state,
// so an already-dequeued packet can never be discarded because the state
// was busy.
type Dispatcher struct {
	config    *DispatcherConfig
	logger    logging.Logger
	store     *storage.Storage
	metrics   *metrics.Metrics
	converter *alerts.Converter

	source    <-chan *listener.Inbound
	outcomes  chan *outcome
	handlers  []TrapHandler
	alertSink AlertSink

	state   *State
	mu      sync.RWMutex
	workers sync.WaitGroup
	owner   sync.WaitGroup
	started bool
}

// NewDispatcher creates a dispatcher reading from source. Store and metrics
// may be nil; the corresponding steps are skipped.
func NewDispatcher(cfg config.Provider, logger logging.Logger, source <-chan *listener.Inbound, store *storage.Storage, m *metrics.Metrics) (*Dispatcher, error) {
	if cfg == nil {
		return nil, fmt.Errorf("configuration provider cannot be nil")
	}
	if source == nil {
		return nil, fmt.Errorf("packet source cannot be nil")
	}
	if logger == nil {
		logger = logging.GetLogger()
	}

	dc := DefaultDispatcherConfig()
	if workers, err := cfg.GetInt("dispatch.workers", dc.Workers); err == nil && workers > 0 {
		dc.Workers = workers
	}

	return &Dispatcher{
		config:    dc,
		logger:    logger,
		store:     store,
		metrics:   m,
		converter: alerts.NewConverter(),
		source:    source,
		outcomes:  make(chan *outcome, dc.Workers),
		state: &State{
			ByGenericTrap: make(map[string]uint64),
		},
	}, nil
}

// OnTrap registers a handler invoked for every successfully handled trap.
// Handlers must be registered before Start.
func (d *Dispatcher) OnTrap(h TrapHandler) {
	d.handlers = append(d.handlers, h)
}

// SetAlertSink routes converted alerts to a notification backend. Must be
// set before Start.
func (d *Dispatcher) SetAlertSink(sink AlertSink) {
	d.alertSink = sink
}

// Start launches the worker pool and the state owner.
func (d *Dispatcher) Start(ctx context.Context) error {
	if d.started {
		return fmt.Errorf("dispatcher is already running")
	}
	d.started = true

	for i := 0; i < d.config.Workers; i++ {
		d.workers.Add(1)
		go d.worker()
	}

	d.owner.Add(1)
	go d.stateOwner()

	// Close the outcome channel once every worker has drained out, so the
	// state owner can finish.
	go func() {
		d.workers.Wait()
		close(d.outcomes)
	}()

	d.logger.Info("trap dispatcher started", "workers", d.config.Workers)
	return nil
}

// Wait blocks until the source is closed and all in-flight packets have
// been accounted for by the state owner.
func (d *Dispatcher) Wait() {
	d.owner.Wait()
}

// worker block-pops packets from the hand-off queue and performs the
// per-packet work. Workers exit only when the source channel closes, so
// every packet that made it onto the queue is processed and accounted for.
func (d *Dispatcher) worker() {
	defer d.workers.Done()

	for inbound := range d.source {
		start := time.Now()
		eventID, err := d.process(inbound)
		d.outcomes <- &outcome{
			inbound:  inbound,
			eventID:  eventID,
			duration: time.Since(start),
			err:      err,
		}
	}
}

// process stores the trap and records metrics for one packet.
func (d *Dispatcher) process(inbound *listener.Inbound) (int64, error) {
	trap := inbound.Packet.PDU.Trap
	if trap == nil {
		return 0, fmt.Errorf("packet carries no trap PDU")
	}

	if d.metrics != nil {
		d.metrics.Traps.PacketSize.Observe(float64(inbound.Size))
		d.metrics.Traps.TrapsBySource.WithLabelValues(inbound.Source.IP.String()).Inc()
		d.metrics.Traps.TrapsByGeneric.WithLabelValues(trap.Generic.String()).Inc()
	}

	var eventID int64
	if d.store != nil {
		event, err := storage.EventFromTrap(trap, inbound.Packet.Community, inbound.Source.IP.String(), inbound.ReceivedAt)
		if err != nil {
			return 0, err
		}
		eventID, err = d.store.StoreTrap(event)
		if err != nil {
			if d.metrics != nil {
				d.metrics.Storage.StorageErrors.Inc()
			}
			return 0, err
		}
		if d.metrics != nil {
			d.metrics.Storage.EventsStored.Inc()
		}

		if d.alertSink != nil {
			if alert, err := d.converter.ConvertEvent(event); err == nil {
				d.alertSink(alert)
			}
		}
	}

	return eventID, nil
}

// stateOwner is the only goroutine that mutates dispatch state. It applies
// each worker outcome in arrival order and fans successfully handled traps
// out to the registered handlers.
func (d *Dispatcher) stateOwner() {
	defer d.owner.Done()

	for out := range d.outcomes {
		if d.metrics != nil {
			d.metrics.Traps.ProcessingTime.Observe(out.duration.Seconds())
		}

		if out.err != nil {
			d.mu.Lock()
			d.state.FailedCount++
			d.mu.Unlock()
			if d.metrics != nil {
				d.metrics.Traps.TrapsFailed.Inc()
			}
			d.logger.Warn("trap handling failed",
				"source", out.inbound.Source.IP.String(),
				"error", out.err.Error())
			continue
		}

		trap := out.inbound.Packet.PDU.Trap

		d.mu.Lock()
		d.state.PacketCount++
		d.state.ByGenericTrap[trap.Generic.String()]++
		d.state.LastHandledAt = time.Now()
		d.mu.Unlock()

		if d.metrics != nil {
			d.metrics.Traps.TrapsHandled.Inc()
		}

		d.logger.Info("trap handled",
			"source", out.inbound.Source.IP.String(),
			"community", out.inbound.Packet.Community,
			"generic", trap.Generic.String(),
			"enterprise", trap.EnterpriseOID.String(),
			"variables", len(trap.Variables))

		for _, h := range d.handlers {
			h(out.inbound, out.eventID)
		}
	}
}

// GetStats returns a snapshot of dispatch state.
func (d *Dispatcher) GetStats() *State {
	d.mu.RLock()
	defer d.mu.RUnlock()

	snapshot := *d.state
	snapshot.ByGenericTrap = make(map[string]uint64, len(d.state.ByGenericTrap))
	for k, v := range d.state.ByGenericTrap {
		snapshot.ByGenericTrap[k] = v
	}
	return &snapshot
}
