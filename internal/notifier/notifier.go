// Package notifier forwards trap alerts to an Alertmanager-compatible
// endpoint. Deliveries are queued and sent by a small worker pool with
// exponential-backoff retries.
package notifier

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"sync"
	"time"

	"github.com/geekxflood/common/config"
	"github.com/geekxflood/common/logging"
	"github.com/prometheus/common/model"
)

// NotifierConfig defines the configuration for alert forwarding.
type NotifierConfig struct {
	Enabled           bool          `json:"enabled"`
	URL               string        `json:"url"`
	Timeout           time.Duration `json:"timeout"`
	QueueSize         int           `json:"queue_size"`
	MaxConcurrent     int           `json:"max_concurrent"`
	RetryAttempts     int           `json:"retry_attempts"`
	RetryDelay        time.Duration `json:"retry_delay"`
	MaxRetryDelay     time.Duration `json:"max_retry_delay"`
	BackoffMultiplier float64       `json:"backoff_multiplier"`
	Jitter            bool          `json:"jitter"`
}

// DefaultNotifierConfig returns the default notifier configuration.
// Forwarding is off until a URL is configured.
func DefaultNotifierConfig() *NotifierConfig {
	return &NotifierConfig{
		Enabled:           false,
		URL:               "http://localhost:9093/api/v2/alerts",
		Timeout:           10 * time.Second,
		QueueSize:         128,
		MaxConcurrent:     2,
		RetryAttempts:     3,
		RetryDelay:        time.Second,
		MaxRetryDelay:     30 * time.Second,
		BackoffMultiplier: 2.0,
		Jitter:            true,
	}
}

// NotifierStats tracks delivery statistics.
type NotifierStats struct {
	AlertsQueued     uint64        `json:"alerts_queued"`
	AlertsDelivered  uint64        `json:"alerts_delivered"`
	AlertsFailed     uint64        `json:"alerts_failed"`
	AlertsDropped    uint64        `json:"alerts_dropped"`
	RetriesAttempted uint64        `json:"retries_attempted"`
	QueueLength      int           `json:"queue_length"`
	QueueCapacity    int           `json:"queue_capacity"`
	LastDeliveryTime time.Time     `json:"last_delivery_time"`
	TotalDelivery    time.Duration `json:"total_delivery_time"`
}

// Notifier posts alerts to the configured endpoint.
type Notifier struct {
	config *NotifierConfig
	logger logging.Logger
	client *http.Client
	queue  chan *model.Alert
	stats  *NotifierStats
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	mu      sync.RWMutex
	stopped bool
}

// NewNotifier creates a notifier from configuration.
func NewNotifier(cfg config.Provider, logger logging.Logger) (*Notifier, error) {
	if cfg == nil {
		return nil, fmt.Errorf("configuration provider cannot be nil")
	}
	if logger == nil {
		logger = logging.GetLogger()
	}

	nc := DefaultNotifierConfig()

	if enabled, err := cfg.GetBool("notifier.enabled", nc.Enabled); err == nil {
		nc.Enabled = enabled
	}
	if url, err := cfg.GetString("notifier.url", nc.URL); err == nil {
		nc.URL = url
	}
	if timeout, err := cfg.GetDuration("notifier.timeout", nc.Timeout); err == nil {
		nc.Timeout = timeout
	}
	if size, err := cfg.GetInt("notifier.queue_size", nc.QueueSize); err == nil && size > 0 {
		nc.QueueSize = size
	}
	if workers, err := cfg.GetInt("notifier.max_concurrent", nc.MaxConcurrent); err == nil && workers > 0 {
		nc.MaxConcurrent = workers
	}
	if attempts, err := cfg.GetInt("notifier.retry_attempts", nc.RetryAttempts); err == nil && attempts > 0 {
		nc.RetryAttempts = attempts
	}
	if delay, err := cfg.GetDuration("notifier.retry_delay", nc.RetryDelay); err == nil {
		nc.RetryDelay = delay
	}
	if maxDelay, err := cfg.GetDuration("notifier.max_retry_delay", nc.MaxRetryDelay); err == nil {
		nc.MaxRetryDelay = maxDelay
	}
	if mult, err := cfg.GetFloat("notifier.backoff_multiplier", nc.BackoffMultiplier); err == nil && mult >= 1 {
		nc.BackoffMultiplier = mult
	}
	if jitter, err := cfg.GetBool("notifier.jitter", nc.Jitter); err == nil {
		nc.Jitter = jitter
	}

	return &Notifier{
		config: nc,
		logger: logger,
		client: &http.Client{Timeout: nc.Timeout},
		queue:  make(chan *model.Alert, nc.QueueSize),
		stats: &NotifierStats{
			QueueCapacity: nc.QueueSize,
		},
	}, nil
}

// Enabled reports whether forwarding is configured on.
func (n *Notifier) Enabled() bool {
	return n.config.Enabled
}

// Start launches the delivery workers.
func (n *Notifier) Start(ctx context.Context) error {
	if !n.config.Enabled {
		return nil
	}

	ctx, n.cancel = context.WithCancel(ctx)
	for i := 0; i < n.config.MaxConcurrent; i++ {
		n.wg.Add(1)
		go n.worker(ctx)
	}

	n.logger.Info("alert notifier started",
		"url", n.config.URL, "workers", n.config.MaxConcurrent)
	return nil
}

// Stop drains the queue and waits for in-flight deliveries. Enqueue calls
// arriving after Stop are dropped, never sent on the closed queue.
func (n *Notifier) Stop() error {
	n.mu.Lock()
	if n.stopped {
		n.mu.Unlock()
		return nil
	}
	n.stopped = true
	n.mu.Unlock()

	if n.cancel == nil {
		return nil
	}
	close(n.queue)
	n.wg.Wait()
	n.cancel()
	return nil
}

// Enqueue queues one alert for delivery. A full queue drops the alert
// rather than blocking the caller; drops are counted. The send happens
// under the lock so it cannot race the queue close in Stop.
func (n *Notifier) Enqueue(alert *model.Alert) {
	if !n.config.Enabled || alert == nil {
		return
	}

	n.mu.Lock()
	defer n.mu.Unlock()
	if n.stopped {
		return
	}

	select {
	case n.queue <- alert:
		n.stats.AlertsQueued++
	default:
		n.stats.AlertsDropped++
		n.logger.Warn("alert queue full, dropping alert",
			"alertname", string(alert.Labels["alertname"]))
	}
}

func (n *Notifier) worker(ctx context.Context) {
	defer n.wg.Done()

	for alert := range n.queue {
		start := time.Now()
		err := n.deliver(ctx, alert)

		n.mu.Lock()
		n.stats.TotalDelivery += time.Since(start)
		if err != nil {
			n.stats.AlertsFailed++
		} else {
			n.stats.AlertsDelivered++
			n.stats.LastDeliveryTime = time.Now()
		}
		n.mu.Unlock()

		if err != nil {
			n.logger.Warn("alert delivery failed",
				"alertname", string(alert.Labels["alertname"]),
				"error", err.Error())
		}
	}
}

// deliver posts one alert, retrying with exponential backoff.
func (n *Notifier) deliver(ctx context.Context, alert *model.Alert) error {
	payload, err := json.Marshal([]*model.Alert{alert})
	if err != nil {
		return fmt.Errorf("failed to encode alert: %w", err)
	}

	var lastErr error
	for attempt := 1; attempt <= n.config.RetryAttempts; attempt++ {
		if attempt > 1 {
			n.mu.Lock()
			n.stats.RetriesAttempted++
			n.mu.Unlock()

			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(n.backoffDelay(attempt - 1)):
			}
		}

		if lastErr = n.post(ctx, payload); lastErr == nil {
			return nil
		}
	}
	return fmt.Errorf("all %d delivery attempts failed: %w", n.config.RetryAttempts, lastErr)
}

func (n *Notifier) post(ctx context.Context, payload []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.config.URL, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer func() {
		io.Copy(io.Discard, resp.Body)
		resp.Body.Close()
	}()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("endpoint returned status %d", resp.StatusCode)
	}
	return nil
}

// backoffDelay computes the wait before retry number attempt, capped at the
// configured maximum, with optional jitter of up to 10%.
func (n *Notifier) backoffDelay(attempt int) time.Duration {
	delay := n.config.RetryDelay
	for i := 1; i < attempt; i++ {
		delay = time.Duration(float64(delay) * n.config.BackoffMultiplier)
		if delay >= n.config.MaxRetryDelay {
			delay = n.config.MaxRetryDelay
			break
		}
	}

	if n.config.Jitter {
		jitter := time.Duration(rand.Int63n(int64(delay)/10 + 1))
		delay += jitter
	}
	return delay
}

// GetStats returns a snapshot of delivery statistics.
func (n *Notifier) GetStats() *NotifierStats {
	n.mu.RLock()
	defer n.mu.RUnlock()

	snapshot := *n.stats
	snapshot.QueueLength = len(n.queue)
	return &snapshot
}
