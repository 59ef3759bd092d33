package scanner

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

// fakeAdapter delivers reports pushed by the test until StopScan.
type fakeAdapter struct {
	enableErr error
	reports   chan Report
	stop      chan struct{}
	stopOnce  sync.Once

	mu      sync.Mutex
	enabled bool
}

func newFakeAdapter() *fakeAdapter {
	return &fakeAdapter{reports: make(chan Report), stop: make(chan struct{})}
}

func (a *fakeAdapter) Enable() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.enabled = true
	return a.enableErr
}

func (a *fakeAdapter) Scan(fn func(Report)) error {
	for {
		select {
		case r := <-a.reports:
			fn(r)
		case <-a.stop:
			return nil
		}
	}
}

func (a *fakeAdapter) StopScan() error {
	a.stopOnce.Do(func() { close(a.stop) })
	return nil
}

type recorder struct {
	mu   sync.Mutex
	advs []Advertisement
}

func (r *recorder) handle(_ context.Context, adv Advertisement) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.advs = append(r.advs, adv)
}

func (r *recorder) get() []Advertisement {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Advertisement(nil), r.advs...)
}

func newTestScanner(t *testing.T, rec *recorder) (*Scanner, *time.Time) {
	t.Helper()
	s, err := New(Config{Adapter: newFakeAdapter(), Handler: rec.handle, MinInterval: 10 * time.Second})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	now := time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return now }
	return s, &now
}

func TestNew_RequiresAdapter(t *testing.T) {
	if _, err := New(Config{}); !errors.Is(err, ErrNoAdapter) {
		t.Errorf("New() error = %v, want ErrNoAdapter", err)
	}
	s, err := New(Config{Adapter: newFakeAdapter()})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if s.minInterval != DefaultMinInterval {
		t.Errorf("minInterval = %v, want %v", s.minInterval, DefaultMinInterval)
	}
}

func TestHandleReport_FiltersNonTuya(t *testing.T) {
	rec := &recorder{}
	s, _ := newTestScanner(t, rec)

	s.handleReport(context.Background(), Report{Address: "aa:bb:cc:dd:ee:ff", Name: "Phone", RSSI: -40})

	if len(rec.get()) != 0 || len(s.Devices()) != 0 {
		t.Error("non-Tuya advertisement was recorded")
	}
}

func TestHandleReport_Throttles(t *testing.T) {
	rec := &recorder{}
	s, now := newTestScanner(t, rec)
	ctx := context.Background()

	s.handleReport(ctx, Report{Address: "dc:23:4d:11:22:33", Name: "TY", RSSI: -60, Tuya: true})
	*now = now.Add(3 * time.Second)
	s.handleReport(ctx, Report{Address: "DC:23:4D:11:22:33", RSSI: -58, Tuya: true})

	advs := rec.get()
	if len(advs) != 1 {
		t.Fatalf("advertisements = %d, want 1 within the interval", len(advs))
	}
	if advs[0].Address != "DC:23:4D:11:22:33" || advs[0].Name != "TY" || advs[0].RSSI != -60 {
		t.Errorf("advertisement = %+v", advs[0])
	}

	// The seen table still follows every report.
	devices := s.Devices()
	if len(devices) != 1 || devices[0].RSSI != -58 || devices[0].Name != "TY" || !devices[0].LastSeen.Equal(*now) {
		t.Errorf("Devices() = %+v", devices)
	}

	*now = now.Add(10 * time.Second)
	s.handleReport(ctx, Report{Address: "DC:23:4D:11:22:33", RSSI: -55, Tuya: true})
	advs = rec.get()
	if len(advs) != 2 || advs[1].RSSI != -55 || advs[1].Name != "TY" {
		t.Errorf("advertisements = %+v, want a second report after the interval", advs)
	}
}

func TestHandleReport_AddressesThrottledIndependently(t *testing.T) {
	rec := &recorder{}
	s, _ := newTestScanner(t, rec)
	ctx := context.Background()

	s.handleReport(ctx, Report{Address: "BB:00:00:00:00:02", Tuya: true})
	s.handleReport(ctx, Report{Address: "AA:00:00:00:00:01", Tuya: true})

	if len(rec.get()) != 2 {
		t.Errorf("advertisements = %d, want 2", len(rec.get()))
	}
	devices := s.Devices()
	if len(devices) != 2 || devices[0].Address != "AA:00:00:00:00:01" {
		t.Errorf("Devices() = %+v, want sorted", devices)
	}
}

func TestScanner_StartStop(t *testing.T) {
	adapter := newFakeAdapter()
	received := make(chan Advertisement, 1)
	s, err := New(Config{
		Adapter: adapter,
		Handler: func(_ context.Context, adv Advertisement) { received <- adv },
	})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if err := s.Start(context.Background()); !errors.Is(err, ErrAlreadyRunning) {
		t.Errorf("second Start() error = %v, want ErrAlreadyRunning", err)
	}

	adapter.reports <- Report{Address: "DC:23:4D:11:22:33", RSSI: -70, Tuya: true}
	select {
	case adv := <-received:
		if adv.RSSI != -70 {
			t.Errorf("RSSI = %d, want -70", adv.RSSI)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("advertisement not delivered")
	}

	s.Stop()
	s.Stop()
}

func TestScanner_StopsOnContextCancel(t *testing.T) {
	adapter := newFakeAdapter()
	s, err := New(Config{Adapter: adapter})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	if err := s.Start(ctx); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	cancel()

	select {
	case <-adapter.stop:
	case <-time.After(2 * time.Second):
		t.Fatal("scan not stopped after cancel")
	}
	s.Stop()
}

func TestScanner_EnableError(t *testing.T) {
	adapter := newFakeAdapter()
	adapter.enableErr = errors.New("no hci0")
	s, _ := New(Config{Adapter: adapter})

	if err := s.Start(context.Background()); !errors.Is(err, ErrEnableFailed) {
		t.Errorf("Start() error = %v, want ErrEnableFailed", err)
	}
	s.Stop()
}
