// Package health serves liveness and readiness probes.
//
// Registered checks run together in rounds: every interval all checks execute
// concurrently, each bounded by its own timeout. A check flips to unhealthy
// after failureThreshold consecutive failures and back after one success.
package health

import (
	"context"
	"net/http"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-faster/jx"
	"golang.org/x/sync/errgroup"
)

// CheckFunc returns nil when the checked component is healthy.
type CheckFunc func(ctx context.Context) error

// Kind selects the probe endpoint a check reports to.
type Kind uint8

const (
	Liveness Kind = iota
	Readiness
)

const failureThreshold = 3

type check struct {
	name    string
	kind    Kind
	timeout time.Duration
	fn      CheckFunc

	healthy atomic.Bool
	lastErr atomic.Pointer[error]

	// Only touched by the round runner.
	fails int
}

func (c *check) run(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	err := c.fn(ctx)
	c.lastErr.Store(&err)
	if err == nil {
		c.fails = 0
		c.healthy.Store(true)
		return
	}
	c.fails++
	if c.fails >= failureThreshold {
		c.healthy.Store(false)
	}
}

func (c *check) failure() string {
	if p := c.lastErr.Load(); p != nil && *p != nil {
		return (*p).Error()
	}
	return "check is unhealthy"
}

// Health tracks the checks of one service.
type Health struct {
	ready atomic.Bool

	mu     sync.Mutex
	checks []*check
	cancel context.CancelFunc
	done   chan struct{}
}

// New returns a Health that is not ready until SetReady(true).
func New() *Health {
	return &Health{}
}

// Add registers a check. Checks start healthy.
func (h *Health) Add(kind Kind, name string, timeout time.Duration, fn CheckFunc) {
	c := &check{name: name, kind: kind, timeout: timeout, fn: fn}
	c.healthy.Store(true)

	h.mu.Lock()
	defer h.mu.Unlock()
	h.checks = append(h.checks, c)
}

// AddLivenessCheck registers a check reported by /livez.
func (h *Health) AddLivenessCheck(name string, timeout time.Duration, fn CheckFunc) {
	h.Add(Liveness, name, timeout, fn)
}

// AddReadinessCheck registers a check reported by /readyz.
func (h *Health) AddReadinessCheck(name string, timeout time.Duration, fn CheckFunc) {
	h.Add(Readiness, name, timeout, fn)
}

func (h *Health) snapshot(kind Kind) []*check {
	h.mu.Lock()
	defer h.mu.Unlock()
	return slices.DeleteFunc(slices.Clone(h.checks), func(c *check) bool { return c.kind != kind })
}

// RunOnce executes every registered check concurrently and waits for all of
// them. It must not be called while Start is running.
func (h *Health) RunOnce(ctx context.Context) {
	h.mu.Lock()
	checks := slices.Clone(h.checks)
	h.mu.Unlock()

	g, ctx := errgroup.WithContext(ctx)
	for _, c := range checks {
		g.Go(func() error {
			c.run(ctx)
			return nil
		})
	}
	_ = g.Wait()
}

// Start runs a round immediately and then every interval until Stop or ctx
// cancellation.
func (h *Health) Start(ctx context.Context, interval time.Duration) {
	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})

	h.mu.Lock()
	h.cancel = cancel
	h.done = done
	h.mu.Unlock()

	go func() {
		defer close(done)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		h.RunOnce(ctx)
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				h.RunOnce(ctx)
			}
		}
	}()
}

// Stop ends the check loop and waits for the running round. Safe to call
// more than once.
func (h *Health) Stop() {
	h.mu.Lock()
	cancel, done := h.cancel, h.done
	h.cancel, h.done = nil, nil
	h.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
}

// SetReady marks the service as accepting traffic or draining.
func (h *Health) SetReady(ready bool) {
	h.ready.Store(ready)
}

// IsReady reports whether the service is marked ready and every readiness
// check passes.
func (h *Health) IsReady() bool {
	if !h.ready.Load() {
		return false
	}
	for _, c := range h.snapshot(Readiness) {
		if !c.healthy.Load() {
			return false
		}
	}
	return true
}

func failures(checks []*check) map[string]string {
	out := make(map[string]string)
	for _, c := range checks {
		if !c.healthy.Load() {
			out[c.name] = c.failure()
		}
	}
	return out
}

// LiveEndpoint serves /livez.
func (h *Health) LiveEndpoint(w http.ResponseWriter, _ *http.Request) {
	writeStatus(w, failures(h.snapshot(Liveness)))
}

// ReadyEndpoint serves /readyz.
func (h *Health) ReadyEndpoint(w http.ResponseWriter, _ *http.Request) {
	f := failures(h.snapshot(Readiness))
	if !h.ready.Load() {
		f["_readiness"] = "service is not ready"
	}
	writeStatus(w, f)
}

// writeStatus writes {"status":"ok"} or 503 with
// {"status":"unhealthy","checks":{name: error}}.
func writeStatus(w http.ResponseWriter, failures map[string]string) {
	var e jx.Encoder
	e.ObjStart()
	e.FieldStart("status")
	status := http.StatusOK
	if len(failures) == 0 {
		e.Str("ok")
	} else {
		status = http.StatusServiceUnavailable
		e.Str("unhealthy")
		e.FieldStart("checks")
		e.ObjStart()
		names := make([]string, 0, len(failures))
		for name := range failures {
			names = append(names, name)
		}
		slices.Sort(names)
		for _, name := range names {
			e.FieldStart(name)
			e.Str(failures[name])
		}
		e.ObjEnd()
	}
	e.ObjEnd()

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(e.Bytes())
}
