// Package telemetry records per-invocation outcomes without ever getting in
// the way of the response: recording is non-blocking (outcomes are dropped
// when the buffer is full) and sink failures are logged and swallowed.
package telemetry

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"
)

// Outcome statuses.
const (
	StatusOK    = "ok"
	StatusError = "error"
)

// Outcome is the result of one dispatched webhook delivery.
type Outcome struct {
	DeliveryID string    `json:"delivery_id,omitempty"`
	Event      string    `json:"event"`
	Version    string    `json:"version"`
	Status     string    `json:"status"`
	DurationMS float64   `json:"duration_ms"`
	Error      string    `json:"error,omitempty"`
	ErrorKind  string    `json:"error_kind,omitempty"`
	At         time.Time `json:"at"`
}

// Sink receives recorded outcomes.
type Sink interface {
	Send(ctx context.Context, o Outcome) error
}

const (
	recorderBuffer  = 256
	sinkSendTimeout = 5 * time.Second
)

// Recorder drains outcomes to a sink on a background goroutine. Record never
// blocks the caller: when the buffer is full the outcome is dropped with a
// warning, mirroring how slow consumers are handled elsewhere in the SDK.
type Recorder struct {
	sink   Sink
	logger *slog.Logger

	mu     sync.RWMutex
	closed bool
	ch     chan Outcome
	done   chan struct{}
}

// NewRecorder starts a recorder draining to sink. Call Close to flush and
// stop it.
func NewRecorder(sink Sink, logger *slog.Logger) *Recorder {
	r := &Recorder{
		sink:   sink,
		logger: logger,
		ch:     make(chan Outcome, recorderBuffer),
		done:   make(chan struct{}),
	}
	go r.run()
	return r
}

// Record enqueues an outcome. Best effort: a full buffer or a closed
// recorder drops the outcome rather than block the request path.
func (r *Recorder) Record(o Outcome) {
	if o.At.IsZero() {
		o.At = time.Now().UTC()
	}

	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.closed {
		return
	}
	select {
	case r.ch <- o:
	default:
		r.logger.Warn("telemetry buffer full, outcome dropped",
			"event", o.Event, "version", o.Version, "status", o.Status)
	}
}

// Close stops the recorder after draining buffered outcomes.
func (r *Recorder) Close() {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	r.closed = true
	close(r.ch)
	r.mu.Unlock()

	<-r.done
}

func (r *Recorder) run() {
	defer close(r.done)
	for o := range r.ch {
		ctx, cancel := context.WithTimeout(context.Background(), sinkSendTimeout)
		if err := r.sink.Send(ctx, o); err != nil {
			// Telemetry failures must never affect the caller's response.
			r.logger.Warn("telemetry delivery failed",
				"event", o.Event, "version", o.Version, "error", err)
		}
		cancel()
	}
}

// LogSink writes outcomes to the structured log.
type LogSink struct {
	Logger *slog.Logger
}

func (s *LogSink) Send(_ context.Context, o Outcome) error {
	s.Logger.Info("invocation outcome",
		"delivery_id", o.DeliveryID,
		"event", o.Event,
		"version", o.Version,
		"status", o.Status,
		"duration_ms", o.DurationMS,
		"error", o.Error,
		"error_kind", o.ErrorKind,
	)
	return nil
}

// HTTPSink posts outcomes to the platform's invocation telemetry endpoint.
type HTTPSink struct {
	BaseURL     string
	ExtensionID string
	Client      *http.Client
}

func (s *HTTPSink) Send(ctx context.Context, o Outcome) error {
	payload := struct {
		ExtensionID string `json:"extension_id"`
		Outcome
	}{ExtensionID: s.ExtensionID, Outcome: o}

	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	url := s.BaseURL + "/api/v1/telemetry/invocations"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	client := s.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("telemetry post: unexpected status %d", resp.StatusCode)
	}
	return nil
}
