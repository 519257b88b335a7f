package history

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

func TestMemory_Empty(t *testing.T) {
	m := NewMemory()
	if _, err := m.LastStateChange(context.Background(), "work"); !errors.Is(err, ErrNoStateChange) {
		t.Fatalf("expected ErrNoStateChange, got %v", err)
	}
}

func TestMemory_LatestPerKind(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	base := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)

	for _, c := range []Change{
		{Kind: "work", Name: "wf", State: "finished", OccurredAt: base.Add(2 * time.Minute)},
		{Kind: "work", Name: "wf", State: "running", OccurredAt: base},
		{Kind: "calculation", Name: "calc", State: "waiting", OccurredAt: base.Add(time.Hour)},
	} {
		if err := m.Record(ctx, c); err != nil {
			t.Fatalf("record: %v", err)
		}
	}

	got, err := m.LastStateChange(ctx, "work")
	if err != nil || !got.Equal(base.Add(2*time.Minute)) {
		t.Fatalf("work: got %v err=%v", got, err)
	}
	got, err = m.LastStateChange(ctx, "calculation")
	if err != nil || !got.Equal(base.Add(time.Hour)) {
		t.Fatalf("calculation: got %v err=%v", got, err)
	}

	changes := m.Changes("work")
	if len(changes) != 2 || changes[0].State != "running" || changes[1].State != "finished" {
		t.Fatalf("unexpected order: %+v", changes)
	}
}

func TestMemory_RecordValidation(t *testing.T) {
	m := NewMemory()
	if err := m.Record(context.Background(), Change{State: "running"}); err == nil {
		t.Fatal("expected error for change without kind")
	}
}

func TestMemory_RecordDefaultsTime(t *testing.T) {
	m := NewMemory()
	before := time.Now()
	if err := m.Record(context.Background(), Change{Kind: "work"}); err != nil {
		t.Fatal(err)
	}
	got, err := m.LastStateChange(context.Background(), "work")
	if err != nil {
		t.Fatal(err)
	}
	if got.Before(before) {
		t.Fatalf("expected time after %v, got %v", before, got)
	}
}

func TestMemory_Concurrent(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_ = m.Record(ctx, Change{Kind: "work", PID: i, OccurredAt: time.Unix(int64(i), 0)})
			_, _ = m.LastStateChange(ctx, "work")
		}(i)
	}
	wg.Wait()
	got, err := m.LastStateChange(ctx, "work")
	if err != nil || !got.Equal(time.Unix(19, 0)) {
		t.Fatalf("got %v err=%v", got, err)
	}
}
