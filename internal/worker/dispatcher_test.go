package worker

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"duumgate/internal/models"
	"duumgate/internal/vision"
)

type blockingExtractor struct {
	release chan struct{}
	running atomic.Int32
	peak    atomic.Int32
	calls   atomic.Int32
}

func (b *blockingExtractor) Extract(_ context.Context, images []vision.Image, mode string) models.ExtractionBatch {
	b.calls.Add(1)
	n := b.running.Add(1)
	for {
		p := b.peak.Load()
		if n <= p || b.peak.CompareAndSwap(p, n) {
			break
		}
	}
	<-b.release
	b.running.Add(-1)
	return models.ExtractionBatch{OK: true, ImageCount: len(images), Mode: mode, Verdict: models.VerdictUncertain, Items: []models.ExtractionItem{}}
}

func images(slots ...int) []vision.Image {
	out := make([]vision.Image, len(slots))
	for i, s := range slots {
		out[i] = vision.Image{Slot: s}
	}
	return out
}

func TestDispatcherBoundsConcurrency(t *testing.T) {
	ext := &blockingExtractor{release: make(chan struct{})}
	d := NewDispatcher(ext, 2, 8)
	defer d.Close()

	var wg sync.WaitGroup
	results := make([]models.ExtractionBatch, 5)
	for i := range results {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results[i] = d.Extract(context.Background(), images(i+1), "vision")
		}()
	}
	deadline := time.Now().Add(2 * time.Second)
	for ext.running.Load() < 2 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	close(ext.release)
	wg.Wait()

	if ext.peak.Load() > 2 {
		t.Fatalf("expected at most 2 concurrent extractions, saw %d", ext.peak.Load())
	}
	for i, res := range results {
		if !res.OK {
			t.Fatalf("job %d failed: %+v", i, res)
		}
	}
}

func TestDispatcherBusy(t *testing.T) {
	d := &Dispatcher{JobQueue: make(chan Job), quit: make(chan struct{})}
	batch := d.Extract(context.Background(), images(1, 2), "vision")
	if batch.OK || batch.Reason != "Extraction queue is full, retry later." || len(batch.Items) != 2 {
		t.Fatalf("unexpected batch %+v", batch)
	}
	if err := d.Submit(NewJob(context.Background(), nil, "vision")); !errors.Is(err, ErrDispatcherBusy) {
		t.Fatalf("expected ErrDispatcherBusy, got %v", err)
	}
}

func TestDispatcherCanceledCaller(t *testing.T) {
	ext := &blockingExtractor{release: make(chan struct{})}
	d := NewDispatcher(ext, 1, 4)
	defer func() {
		close(ext.release)
		d.Close()
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	batch := d.Extract(ctx, images(3), "vision")
	if batch.OK || batch.Items[0].Slot != 3 {
		t.Fatalf("unexpected batch %+v", batch)
	}
}

func TestDispatcherClosedRejects(t *testing.T) {
	d := NewDispatcher(&blockingExtractor{release: make(chan struct{})}, 1, 1)
	d.Close()
	if err := d.Submit(NewJob(context.Background(), nil, "vision")); !errors.Is(err, ErrDispatcherBusy) {
		t.Fatalf("closed dispatcher should reject, got %v", err)
	}
}
