package device

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

type recordingPrune struct {
	mu    sync.Mutex
	calls []time.Duration
	err   error
	done  chan struct{}
}

func (p *recordingPrune) prune(_ context.Context, olderThan time.Duration) (int64, error) {
	p.mu.Lock()
	p.calls = append(p.calls, olderThan)
	p.mu.Unlock()
	if p.done != nil {
		select {
		case p.done <- struct{}{}:
		default:
		}
	}
	return 3, p.err
}

func TestNewHistoryPruner_Validation(t *testing.T) {
	rec := &recordingPrune{}

	if _, err := NewHistoryPruner(nil, time.Hour, "@daily"); err == nil {
		t.Error("nil prune func should fail")
	}
	if _, err := NewHistoryPruner(rec.prune, 0, "@daily"); err == nil {
		t.Error("zero retention should fail")
	}
	if _, err := NewHistoryPruner(rec.prune, time.Hour, "every tuesday"); !errors.Is(err, ErrInvalidSchedule) {
		t.Errorf("bad schedule error = %v, want ErrInvalidSchedule", err)
	}
	for _, schedule := range []string{"@daily", "0 3 * * *", "@every 1h"} {
		if _, err := NewHistoryPruner(rec.prune, time.Hour, schedule); err != nil {
			t.Errorf("NewHistoryPruner(%q) error = %v", schedule, err)
		}
	}
}

func TestHistoryPruner_RunOnce(t *testing.T) {
	rec := &recordingPrune{}
	p, err := NewHistoryPruner(rec.prune, 30*24*time.Hour, "@daily")
	if err != nil {
		t.Fatalf("NewHistoryPruner() error = %v", err)
	}

	deleted, err := p.RunOnce(context.Background())
	if err != nil || deleted != 3 {
		t.Fatalf("RunOnce() = %d, %v", deleted, err)
	}
	if len(rec.calls) != 1 || rec.calls[0] != 30*24*time.Hour {
		t.Errorf("calls = %v", rec.calls)
	}

	rec.err = errors.New("locked")
	if _, err := p.RunOnce(context.Background()); err == nil {
		t.Error("RunOnce() should surface the prune error")
	}
}

func TestHistoryPruner_Schedule(t *testing.T) {
	rec := &recordingPrune{done: make(chan struct{}, 1)}
	p, err := NewHistoryPruner(rec.prune, time.Hour, "@every 1s")
	if err != nil {
		t.Fatalf("NewHistoryPruner() error = %v", err)
	}

	p.Start(context.Background())
	p.Start(context.Background())
	defer p.Stop()

	select {
	case <-rec.done:
	case <-time.After(3 * time.Second):
		t.Fatal("scheduled prune did not run")
	}

	p.Stop()
	p.Stop()
}
