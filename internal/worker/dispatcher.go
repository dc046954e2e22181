// Package worker bounds how many extraction calls run at once across requests.
package worker

import (
	"context"
	"errors"
	"log"
	"sync"

	"duumgate/internal/models"
	"duumgate/internal/vision"
)

// ErrDispatcherBusy means the extraction queue is full.
var ErrDispatcherBusy = errors.New("extraction queue is full")

const (
	reasonBusy = "Extraction queue is full, retry later."
	noteBusy   = "Extraction skipped: server busy."
)

// Extractor is the extraction call the dispatcher schedules.
type Extractor interface {
	Extract(ctx context.Context, images []vision.Image, mode string) models.ExtractionBatch
}

// Dispatcher queues extraction jobs for a fixed set of workers. It satisfies
// Extractor itself so it can sit in front of the real client.
type Dispatcher struct {
	next     Extractor
	JobQueue chan Job

	quit chan struct{}
	once sync.Once
	wg   sync.WaitGroup
}

func NewDispatcher(next Extractor, maxWorkers, queueSize int) *Dispatcher {
	if maxWorkers <= 0 {
		maxWorkers = 1
	}
	if queueSize < 0 {
		queueSize = 0
	}
	d := &Dispatcher{
		next:     next,
		JobQueue: make(chan Job, queueSize),
		quit:     make(chan struct{}),
	}
	for i := 0; i < maxWorkers; i++ {
		w := NewWorker(d.JobQueue, d.quit, next)
		d.wg.Add(1)
		go func() {
			defer d.wg.Done()
			w.Run()
		}()
	}
	return d
}

// Submit enqueues a job without waiting for room in the queue.
func (d *Dispatcher) Submit(job Job) error {
	select {
	case <-d.quit:
		return ErrDispatcherBusy
	default:
	}
	select {
	case d.JobQueue <- job:
		return nil
	default:
		return ErrDispatcherBusy
	}
}

// Extract runs one extraction on a worker. A full queue or a canceled
// request becomes a failed batch instead of an error.
func (d *Dispatcher) Extract(ctx context.Context, images []vision.Image, mode string) models.ExtractionBatch {
	job := NewJob(ctx, images, mode)
	if err := d.Submit(job); err != nil {
		log.Printf("worker: rejecting %d images: %v", len(images), err)
		return models.FailedBatch(job.slots(), mode, reasonBusy, noteBusy)
	}
	select {
	case res := <-job.result:
		return res
	case <-ctx.Done():
		return models.FailedBatch(job.slots(), mode, "Extraction canceled: "+ctx.Err().Error(), "Extraction API call failed.")
	}
}

// Close stops the workers after their current job.
func (d *Dispatcher) Close() {
	d.once.Do(func() { close(d.quit) })
	d.wg.Wait()
}
