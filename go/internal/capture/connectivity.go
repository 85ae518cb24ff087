package capture

import (
	"context"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
)

// Monitor probes the timing service health endpoint and reports
// online/offline transitions.
type Monitor struct {
	client   *http.Client
	url      string
	clock    clockwork.Clock
	interval time.Duration

	mu        sync.Mutex
	online    bool
	known     bool
	listeners []func(online bool)
}

func NewMonitor(client *http.Client, baseURL string, clock clockwork.Clock, interval time.Duration) *Monitor {
	if client == nil {
		client = &http.Client{Timeout: 3 * time.Second}
	}
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if interval <= 0 {
		interval = 5 * time.Second
	}
	return &Monitor{
		client:   client,
		url:      strings.TrimRight(baseURL, "/") + "/health",
		clock:    clock,
		interval: interval,
	}
}

// OnChange registers fn to run on every transition, including the first
// probe result.
func (m *Monitor) OnChange(fn func(online bool)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.listeners = append(m.listeners, fn)
}

func (m *Monitor) Online() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.online
}

// Probe checks the health endpoint once and updates state.
func (m *Monitor) Probe(ctx context.Context) bool {
	online := m.check(ctx)

	m.mu.Lock()
	changed := !m.known || m.online != online
	m.online = online
	m.known = true
	listeners := append([]func(bool){}, m.listeners...)
	m.mu.Unlock()

	if changed {
		log.Info().Bool("online", online).Str("url", m.url).Msg("timing service connectivity changed")
		for _, fn := range listeners {
			fn(online)
		}
	}
	return online
}

func (m *Monitor) check(ctx context.Context) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, m.url, nil)
	if err != nil {
		return false
	}
	resp, err := m.client.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	return resp.StatusCode >= 200 && resp.StatusCode < 300
}

// Run probes immediately and then on every interval until ctx is done.
func (m *Monitor) Run(ctx context.Context) {
	ticker := m.clock.NewTicker(m.interval)
	defer ticker.Stop()

	m.Probe(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.Chan():
			m.Probe(ctx)
		}
	}
}
