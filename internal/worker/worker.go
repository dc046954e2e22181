package worker

import (
	"context"

	"duumgate/internal/models"
	"duumgate/internal/vision"
)

// Job is one extraction batch waiting for a worker.
type Job struct {
	Context context.Context
	Images  []vision.Image
	Mode    string
	result  chan models.ExtractionBatch
}

func NewJob(ctx context.Context, images []vision.Image, mode string) Job {
	return Job{
		Context: ctx,
		Images:  images,
		Mode:    mode,
		result:  make(chan models.ExtractionBatch, 1),
	}
}

func (j Job) slots() []int {
	out := make([]int, len(j.Images))
	for i, img := range j.Images {
		out[i] = img.Slot
	}
	return out
}

type Worker struct {
	jobs    <-chan Job
	quit    <-chan struct{}
	extract Extractor
}

func NewWorker(jobs <-chan Job, quit <-chan struct{}, extract Extractor) *Worker {
	return &Worker{jobs: jobs, quit: quit, extract: extract}
}

// Run serves jobs until quit is closed. Jobs whose caller already gave up
// are dropped without calling the provider.
func (w *Worker) Run() {
	for {
		select {
		case job := <-w.jobs:
			if job.Context.Err() != nil {
				continue
			}
			job.result <- w.extract.Extract(job.Context, job.Images, job.Mode)
		case <-w.quit:
			return
		}
	}
}
