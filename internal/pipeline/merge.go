// Package pipeline merges cached and freshly extracted results into one batch.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log"
	"slices"
	"sort"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"duumgate/internal/cache"
	"duumgate/internal/fingerprint"
	"duumgate/internal/models"
	"duumgate/internal/vision"
)

// VisionMode is the only mode value that requests a fresh extraction.
const VisionMode = "vision"

const (
	reasonDisabled     = "Vision disabled (cost control)."
	reasonNotRequested = "Vision available but not requested (set mode=vision)."
	noteDisabled       = "Vision disabled."
	noteNotRequested   = "Set mode=vision to analyze."
	noteFresh          = "Fresh analysis."
	noteNoResult       = "No result returned for this image."

	writeTimeout = 5 * time.Second
)

// Extractor runs one fresh extraction call.
type Extractor interface {
	Extract(ctx context.Context, images []vision.Image, mode string) models.ExtractionBatch
}

// Options configures an Engine.
type Options struct {
	VisionEnabled bool
	MaxBatchSize  int
	TTL           time.Duration
}

// Engine partitions a batch into cache hits and misses, extracts only the
// misses and writes fresh results back to the cache.
type Engine struct {
	store     cache.Store
	extractor Extractor
	opts      Options
	now       func() time.Time

	pending sync.WaitGroup
}

func NewEngine(store cache.Store, extractor Extractor, opts Options) *Engine {
	if opts.MaxBatchSize <= 0 {
		opts.MaxBatchSize = 10
	}
	if opts.TTL <= 0 {
		opts.TTL = 30 * 24 * time.Hour
	}
	return &Engine{
		store:     store,
		extractor: extractor,
		opts:      opts,
		now:       time.Now,
	}
}

// Flush waits for cache writes started by earlier Analyze calls.
func (e *Engine) Flush() {
	e.pending.Wait()
}

// Analyze produces one ExtractionBatch covering every image file, ordered by slot.
func (e *Engine) Analyze(ctx context.Context, files []models.UploadedFile, mode string) (models.ExtractionBatch, error) {
	images := make([]vision.Image, 0, len(files))
	for i := range files {
		if !files[i].IsImage() {
			continue
		}
		fp := files[i].Fingerprint
		if fp == "" {
			fp = fingerprint.Sum(files[i].Data)
		}
		images = append(images, vision.Image{
			Slot:        files[i].Slot,
			Fingerprint: fp,
			MimeType:    files[i].MimeType,
			Data:        files[i].Data,
		})
	}
	sort.SliceStable(images, func(a, b int) bool { return images[a].Slot < images[b].Slot })

	hits, err := e.lookup(ctx, images)
	if err != nil {
		return models.ExtractionBatch{}, err
	}

	items := make([]models.ExtractionItem, len(images))
	var uncached []int
	for i, img := range images {
		if hits[i] == nil {
			uncached = append(uncached, i)
			continue
		}
		item := hits[i].Item.Clone()
		item.Slot = img.Slot
		items[i] = item.WithNote(fmt.Sprintf("Cache hit (sha256 %s).", fingerprint.Short(img.Fingerprint)))
	}
	cachedCount := len(images) - len(uncached)

	if !e.opts.VisionEnabled || mode != VisionMode {
		reason, note := reasonDisabled, noteDisabled
		if e.opts.VisionEnabled {
			reason, note = reasonNotRequested, noteNotRequested
		}
		for _, i := range uncached {
			items[i] = models.PlaceholderItem(images[i].Slot, note)
		}
		batch := models.ExtractionBatch{
			OK:         len(images) > 0 && len(uncached) == 0,
			ImageCount: len(images),
			Mode:       mode,
			Verdict:    models.VerdictUncertain,
			Reason:     reason,
			Items:      items,
		}
		switch {
		case batch.OK:
			batch.Verdict, batch.Confidence = cachedVerdict(items)
			batch.Reason = fmt.Sprintf("All %d results served from cache.", cachedCount)
		case cachedCount > 0:
			batch.Reason = fmt.Sprintf("%s Served %d of %d from cache.", reason, cachedCount, len(images))
		}
		return batch, nil
	}

	if len(images) == 0 {
		return e.extractor.Extract(ctx, nil, mode), nil
	}
	if len(uncached) == 0 {
		verdict, confidence := cachedVerdict(items)
		return models.ExtractionBatch{
			OK:         true,
			ImageCount: len(images),
			Mode:       mode,
			Verdict:    verdict,
			Confidence: confidence,
			Reason:     fmt.Sprintf("All %d results served from cache.", cachedCount),
			Items:      items,
		}, nil
	}

	batch, writes := e.extractFresh(ctx, images, uncached, items, mode)
	batch.Reason = fmt.Sprintf("Served %d from cache, %d analyzed fresh. %s", cachedCount, len(uncached), batch.Reason)
	e.writeBack(ctx, writes)
	return batch, nil
}

// lookup fetches every fingerprint concurrently. Lookup failures count as misses.
func (e *Engine) lookup(ctx context.Context, images []vision.Image) ([]*models.CacheEntry, error) {
	hits := make([]*models.CacheEntry, len(images))
	if !e.store.Available() {
		return hits, nil
	}
	g, gctx := errgroup.WithContext(ctx)
	for i := range images {
		g.Go(func() error {
			entry, err := e.store.Get(gctx, images[i].Fingerprint)
			switch {
			case err == nil:
				hits[i] = entry
			case errors.Is(err, cache.ErrMiss):
			default:
				log.Printf("pipeline: cache lookup %s failed: %v", fingerprint.Short(images[i].Fingerprint), err)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return hits, nil
}

type pendingWrite struct {
	fingerprint string
	item        models.ExtractionItem
}

// extractFresh sends each distinct uncached image once, in chunks of at most
// MaxBatchSize, and fills items for every uncached index.
func (e *Engine) extractFresh(ctx context.Context, images []vision.Image, uncached []int, items []models.ExtractionItem, mode string) (models.ExtractionBatch, []pendingWrite) {
	// first slot seen for each fingerprint
	owner := make(map[string]int)
	var unique []vision.Image
	for _, i := range uncached {
		fp := images[i].Fingerprint
		if _, ok := owner[fp]; ok {
			continue
		}
		owner[fp] = images[i].Slot
		unique = append(unique, images[i])
	}

	type result struct {
		item models.ExtractionItem
		ok   bool
	}
	fresh := make(map[int]result, len(unique))
	merged := models.ExtractionBatch{
		OK:         true,
		ImageCount: len(images),
		Mode:       mode,
		Confidence: 1,
		Items:      items,
	}
	var reasons []string
	for start := 0; start < len(unique); start += e.opts.MaxBatchSize {
		end := min(start+e.opts.MaxBatchSize, len(unique))
		out := e.extractor.Extract(ctx, unique[start:end], mode)

		merged.OK = merged.OK && out.OK
		if start == 0 {
			merged.Verdict = out.Verdict
		} else if merged.Verdict != out.Verdict {
			merged.Verdict = models.VerdictUncertain
		}
		merged.Confidence = min(merged.Confidence, out.Confidence)
		if out.Reason != "" && !slices.Contains(reasons, out.Reason) {
			reasons = append(reasons, out.Reason)
		}
		for _, it := range out.Items {
			if _, dup := fresh[it.Slot]; dup {
				continue
			}
			fresh[it.Slot] = result{item: it, ok: out.OK}
		}
	}
	if merged.Verdict == "" {
		merged.Verdict = models.VerdictUncertain
	}
	merged.Reason = strings.Join(reasons, " ")

	var writes []pendingWrite
	written := make(map[string]bool)
	for _, i := range uncached {
		img := images[i]
		src := owner[img.Fingerprint]
		res, found := fresh[src]
		if !found {
			items[i] = models.PlaceholderItem(img.Slot, noteNoResult)
			continue
		}
		item := res.item.Clone()
		item.Slot = img.Slot
		item.Normalize()
		if res.ok {
			item = item.WithNote(noteFresh)
			if !written[img.Fingerprint] {
				written[img.Fingerprint] = true
				writes = append(writes, pendingWrite{fingerprint: img.Fingerprint, item: res.item})
			}
		}
		if src != img.Slot {
			item = item.WithNote(fmt.Sprintf("Same image as slot %d.", src))
		}
		items[i] = item
	}
	return merged, writes
}

// writeBack stores fresh results in the background. Every write is attempted
// independently and failures are only logged.
func (e *Engine) writeBack(ctx context.Context, writes []pendingWrite) {
	if len(writes) == 0 || !e.store.Available() {
		return
	}
	now := e.now()
	base := context.WithoutCancel(ctx)
	e.pending.Add(1)
	go func() {
		defer e.pending.Done()
		var wg sync.WaitGroup
		for _, w := range writes {
			wg.Add(1)
			go func() {
				defer wg.Done()
				wctx, cancel := context.WithTimeout(base, writeTimeout)
				defer cancel()
				entry := cache.NewEntry(w.fingerprint, w.item, now)
				if err := e.store.Put(wctx, w.fingerprint, entry, e.opts.TTL); err != nil {
					log.Printf("pipeline: cache write %s failed: %v", fingerprint.Short(w.fingerprint), err)
				}
			}()
		}
		wg.Wait()
	}()
}

// cachedVerdict summarizes a batch served entirely from cache.
func cachedVerdict(items []models.ExtractionItem) (models.Verdict, float64) {
	if len(items) == 0 {
		return models.VerdictUncertain, 0
	}
	verdict := models.VerdictWeaponScreenshot
	confidence := 1.0
	for _, it := range items {
		if it.ItemKind != models.KindWeapon {
			verdict = models.VerdictUncertain
		}
		confidence = min(confidence, it.Confidence)
	}
	return verdict, confidence
}
