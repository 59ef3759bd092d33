// Package scanner listens passively for Tuya BLE advertisements and hands
// them to the bridge, which uses them to refresh signal strength and to
// announce devices it does not manage yet.
package scanner

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/cornelk/hashmap"
)

// DefaultMinInterval is the default throttle per address.
const DefaultMinInterval = 5 * time.Second

// Report is one advertisement as the radio saw it.
type Report struct {
	Address string
	Name    string
	RSSI    int

	// Tuya is set when the advertisement carries the Tuya service UUID.
	Tuya bool
}

// Adapter is a BLE radio. Scan blocks, calling fn from a single goroutine,
// until StopScan is called.
type Adapter interface {
	Enable() error
	Scan(fn func(Report)) error
	StopScan() error
}

// Advertisement is a throttled Tuya advertisement.
type Advertisement struct {
	Address string
	Name    string
	RSSI    int
	SeenAt  time.Time
}

// Seen describes a device heard since the scanner started.
type Seen struct {
	Address  string    `json:"address"`
	Name     string    `json:"name"`
	RSSI     int       `json:"rssi"`
	LastSeen time.Time `json:"last_seen"`

	reportedAt time.Time
}

// Logger is the logging interface used by the scanner.
type Logger interface {
	Debug(msg string, keysAndValues ...any)
	Info(msg string, keysAndValues ...any)
	Warn(msg string, keysAndValues ...any)
	Error(msg string, keysAndValues ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Config configures a Scanner.
type Config struct {
	Adapter Adapter

	// Handler receives every advertisement that passes the filter and
	// throttle. It runs on the scan goroutine and must not block.
	Handler func(ctx context.Context, adv Advertisement)

	// MinInterval defaults to DefaultMinInterval.
	MinInterval time.Duration

	Logger Logger
}

// Scanner filters Tuya advertisements and throttles repeats per address.
type Scanner struct {
	adapter     Adapter
	handler     func(context.Context, Advertisement)
	minInterval time.Duration
	logger      Logger
	now         func() time.Time

	seen *hashmap.Map[string, Seen]

	mu      sync.Mutex
	ctx     context.Context
	cancel  context.CancelFunc
	running bool
	done    chan struct{}
}

// New creates a scanner. Call Start to begin scanning.
func New(cfg Config) (*Scanner, error) {
	if cfg.Adapter == nil {
		return nil, ErrNoAdapter
	}
	if cfg.MinInterval <= 0 {
		cfg.MinInterval = DefaultMinInterval
	}
	if cfg.Logger == nil {
		cfg.Logger = noopLogger{}
	}
	if cfg.Handler == nil {
		cfg.Handler = func(context.Context, Advertisement) {}
	}
	return &Scanner{
		adapter:     cfg.Adapter,
		handler:     cfg.Handler,
		minInterval: cfg.MinInterval,
		logger:      cfg.Logger,
		now:         time.Now,
		seen:        hashmap.New[string, Seen](),
		ctx:         context.Background(),
	}, nil
}

// Start enables the radio and scans in the background until ctx is
// cancelled or Stop is called.
func (s *Scanner) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return ErrAlreadyRunning
	}

	if err := s.adapter.Enable(); err != nil {
		return fmt.Errorf("%w: %w", ErrEnableFailed, err)
	}

	s.ctx, s.cancel = context.WithCancel(ctx)
	s.running = true
	s.done = make(chan struct{})

	go s.scan(s.ctx, s.done)
	go func(ctx context.Context) {
		<-ctx.Done()
		s.stopScan()
	}(s.ctx)

	s.logger.Info("ble scanner started", "min_interval", s.minInterval)
	return nil
}

func (s *Scanner) scan(ctx context.Context, done chan struct{}) {
	defer close(done)
	err := s.adapter.Scan(func(r Report) { s.handleReport(ctx, r) })
	if err != nil && ctx.Err() == nil {
		s.logger.Error("ble scan stopped", "error", err)
	}
}

// Stop halts scanning and waits for the scan loop to return.
func (s *Scanner) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	cancel, done := s.cancel, s.done
	s.mu.Unlock()

	cancel()
	s.stopScan()
	<-done
	s.logger.Info("ble scanner stopped", "devices_seen", s.seen.Len())
}

func (s *Scanner) stopScan() {
	if err := s.adapter.StopScan(); err != nil {
		s.logger.Debug("stop scan", "error", err)
	}
}

// handleReport records a report and passes it on unless it is not a Tuya
// advertisement or the address reported within MinInterval.
func (s *Scanner) handleReport(ctx context.Context, r Report) {
	if !r.Tuya {
		return
	}

	now := s.now()
	address := strings.ToUpper(r.Address)
	prev, known := s.seen.Get(address)

	entry := Seen{
		Address:    address,
		Name:       r.Name,
		RSSI:       r.RSSI,
		LastSeen:   now,
		reportedAt: prev.reportedAt,
	}
	if entry.Name == "" {
		entry.Name = prev.Name
	}

	report := !known || now.Sub(prev.reportedAt) >= s.minInterval
	if report {
		entry.reportedAt = now
	}
	s.seen.Set(address, entry)

	if !known {
		s.logger.Debug("tuya device heard", "address", address, "name", entry.Name, "rssi", r.RSSI)
	}
	if report {
		s.handler(ctx, Advertisement{
			Address: address,
			Name:    entry.Name,
			RSSI:    r.RSSI,
			SeenAt:  now,
		})
	}
}

// Devices returns every Tuya device heard so far, ordered by address.
func (s *Scanner) Devices() []Seen {
	out := make([]Seen, 0, s.seen.Len())
	s.seen.Range(func(_ string, v Seen) bool {
		out = append(out, v)
		return true
	})
	sort.Slice(out, func(i, j int) bool { return out[i].Address < out[j].Address })
	return out
}
