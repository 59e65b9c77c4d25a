package monitor

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/pgline/pgline"
)

// Status represents the health of one monitored profile.
type Status int

const (
	StatusUnknown Status = iota
	StatusHealthy
	StatusUnhealthy
)

func (s Status) String() string {
	switch s {
	case StatusHealthy:
		return "healthy"
	case StatusUnhealthy:
		return "unhealthy"
	default:
		return "unknown"
	}
}

// ProfileHealth holds the probe history for one profile.
type ProfileHealth struct {
	Status              Status    `json:"status"`
	LastCheck           time.Time `json:"last_check"`
	ConsecutiveFailures int       `json:"consecutive_failures"`
	LastError           string    `json:"last_error,omitempty"`
}

// Checker runs periodic IsWorking probes against each configured
// profile, reusing one client per profile so the probe exercises the
// full query path and reconnects lazily after failures.
type Checker struct {
	mu       sync.RWMutex
	cfg      *Config
	profiles map[string]*ProfileHealth
	clients  map[string]*pgline.Client
	metrics  *Collector

	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// NewChecker creates a checker for the given config.
func NewChecker(cfg *Config, m *Collector) *Checker {
	return &Checker{
		cfg:      cfg,
		profiles: make(map[string]*ProfileHealth),
		clients:  make(map[string]*pgline.Client),
		metrics:  m,
		stopCh:   make(chan struct{}),
	}
}

// Start begins periodic probing.
func (c *Checker) Start() {
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		c.run()
	}()
	slog.Info("probe loop started",
		"interval", c.cfg.Defaults.Interval,
		"profiles", len(c.cfg.Profiles))
}

// Stop stops probing and closes all probe clients. Safe to call
// multiple times.
func (c *Checker) Stop() {
	c.stopOnce.Do(func() {
		close(c.stopCh)
	})
	c.wg.Wait()

	c.mu.Lock()
	defer c.mu.Unlock()
	for _, cl := range c.clients {
		cl.Close()
	}
	c.clients = make(map[string]*pgline.Client)
	slog.Info("probe loop stopped")
}

// Reload swaps the configuration; removed profiles lose their state,
// clients and metric series.
func (c *Checker) Reload(cfg *Config) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for name := range c.cfg.Profiles {
		if _, keep := cfg.Profiles[name]; !keep {
			if cl, ok := c.clients[name]; ok {
				cl.Close()
				delete(c.clients, name)
			}
			delete(c.profiles, name)
			if c.metrics != nil {
				c.metrics.RemoveProfile(name)
			}
			slog.Info("removed profile", "profile", name)
		}
	}
	c.cfg = cfg
}

func (c *Checker) run() {
	// Run immediately on start
	c.checkAll()

	c.mu.RLock()
	interval := c.cfg.Defaults.Interval
	c.mu.RUnlock()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.checkAll()
		case <-c.stopCh:
			return
		}
	}
}

func (c *Checker) checkAll() {
	c.mu.RLock()
	profiles := make(map[string]ProfileConfig, len(c.cfg.Profiles))
	for name, p := range c.cfg.Profiles {
		profiles[name] = p
	}
	timeout := c.cfg.Defaults.ProbeTimeout
	c.mu.RUnlock()

	// Probe in parallel with a bounded worker pool.
	const maxWorkers = 10
	sem := make(chan struct{}, maxWorkers)
	var wg sync.WaitGroup

	for name, p := range profiles {
		name, p := name, p
		wg.Add(1)
		sem <- struct{}{}
		go func() {
			defer wg.Done()
			defer func() { <-sem }()
			start := time.Now()
			up := c.probe(name, p, timeout)
			elapsed := time.Since(start)
			if c.metrics != nil {
				c.metrics.ProbeCompleted(name, elapsed, up)
			}
			c.updateStatus(name, p, up)
		}()
	}
	wg.Wait()
}

// probe runs one IsWorking round trip for a profile.
func (c *Checker) probe(name string, p ProfileConfig, timeout time.Duration) bool {
	cl, err := c.clientFor(name, p)
	if err != nil {
		if c.metrics != nil {
			c.metrics.ProbeError(name, "bad_url")
		}
		c.setLastError(name, err.Error())
		return false
	}

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if cl.IsWorking(ctx) {
		c.setLastError(name, "")
		return true
	}

	if c.metrics != nil {
		c.metrics.ProbeError(name, "probe_failed")
	}
	c.setLastError(name, "probe query did not return the expected result")
	// Force a fresh connection on the next round.
	cl.Close()
	return false
}

func (c *Checker) clientFor(name string, p ProfileConfig) (*pgline.Client, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if cl, ok := c.clients[name]; ok {
		return cl, nil
	}
	cl, err := pgline.New(p.URL)
	if err != nil {
		return nil, err
	}
	c.clients[name] = cl
	return cl, nil
}

func (c *Checker) setLastError(name, errMsg string) {
	c.mu.Lock()
	ph := c.getOrCreate(name)
	if errMsg != "" {
		ph.LastError = errMsg
	}
	c.mu.Unlock()
}

func (c *Checker) updateStatus(name string, p ProfileConfig, up bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	ph := c.getOrCreate(name)
	ph.LastCheck = time.Now()

	if up {
		if ph.ConsecutiveFailures > 0 {
			slog.Info("profile recovered", "profile", name, "failures", ph.ConsecutiveFailures)
		}
		ph.Status = StatusHealthy
		ph.ConsecutiveFailures = 0
		ph.LastError = ""
		return
	}

	ph.ConsecutiveFailures++
	if ph.ConsecutiveFailures >= p.EffectiveFailureThreshold(c.cfg.Defaults) {
		if ph.Status != StatusUnhealthy {
			slog.Warn("profile marked unhealthy",
				"profile", name,
				"failures", ph.ConsecutiveFailures,
				"error", ph.LastError)
		}
		ph.Status = StatusUnhealthy
	}
}

func (c *Checker) getOrCreate(name string) *ProfileHealth {
	ph, ok := c.profiles[name]
	if !ok {
		ph = &ProfileHealth{Status: StatusUnknown}
		c.profiles[name] = ph
	}
	return ph
}

// GetStatus returns the health state for one profile.
func (c *Checker) GetStatus(name string) ProfileHealth {
	c.mu.RLock()
	defer c.mu.RUnlock()

	ph, ok := c.profiles[name]
	if !ok {
		return ProfileHealth{Status: StatusUnknown}
	}
	return *ph
}

// GetAllStatuses returns the health state of every known profile.
func (c *Checker) GetAllStatuses() map[string]ProfileHealth {
	c.mu.RLock()
	defer c.mu.RUnlock()

	result := make(map[string]ProfileHealth, len(c.profiles))
	for name, ph := range c.profiles {
		result[name] = *ph
	}
	return result
}

// OverallHealthy returns true when no profile is unhealthy.
func (c *Checker) OverallHealthy() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()

	for _, ph := range c.profiles {
		if ph.Status == StatusUnhealthy {
			return false
		}
	}
	return true
}
