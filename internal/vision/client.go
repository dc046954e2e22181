// Package vision extracts structured item data from screenshots through a
// vision-capable model.
package vision

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"duumgate/internal/fingerprint"
	"duumgate/internal/llm"
	"duumgate/internal/models"
)

// Image is one vision-eligible upload handed to the extractor.
type Image struct {
	Slot        int
	Fingerprint string
	MimeType    string
	Data        []byte
}

// Options tunes the extraction call.
type Options struct {
	// KeyEnv names the credential variable reported when no backend is set.
	KeyEnv          string
	Model           string
	MaxOutputTokens int
	ImageDetail     string
}

// Client runs extraction batches. Extract never returns an error: every
// failure is reported as an ExtractionBatch with ok=false.
type Client struct {
	backend llm.Backend
	opts    Options
	schema  map[string]any
	checker *jsonschema.Schema
}

// NewClient builds an extraction client. A nil backend means the provider
// credential is missing.
func NewClient(backend llm.Backend, opts Options) (*Client, error) {
	if opts.KeyEnv == "" {
		opts.KeyEnv = "OPENAI_API_KEY"
	}
	if opts.MaxOutputTokens <= 0 {
		opts.MaxOutputTokens = 450
	}
	schemaMap := IngestSchema()
	checker, err := compileSchema(schemaMap)
	if err != nil {
		return nil, err
	}
	return &Client{backend: backend, opts: opts, schema: schemaMap, checker: checker}, nil
}

// Extract analyzes images in one external call.
func (c *Client) Extract(ctx context.Context, images []Image, mode string) models.ExtractionBatch {
	slots := make([]int, len(images))
	for i, img := range images {
		slots[i] = img.Slot
	}

	if c.backend == nil {
		return models.FailedBatch(slots, mode,
			c.opts.KeyEnv+" is not set.",
			"Missing "+c.opts.KeyEnv+".")
	}
	if len(images) == 0 {
		return models.ExtractionBatch{
			OK:         false,
			ImageCount: 0,
			Mode:       mode,
			Verdict:    models.VerdictUncertain,
			Reason:     "No image/* files were provided.",
			Items:      []models.ExtractionItem{},
		}
	}

	urls := make([]string, len(images))
	for i, img := range images {
		urls[i] = fingerprint.DataURL(img.MimeType, img.Data)
	}
	text, err := c.backend.Complete(ctx, llm.Request{
		Prompt:          buildPrompt(mode, slots),
		ImageURLs:       urls,
		ImageDetail:     c.opts.ImageDetail,
		Model:           c.opts.Model,
		MaxOutputTokens: c.opts.MaxOutputTokens,
		Schema:          c.schema,
		SchemaName:      SchemaName,
	})
	if err != nil {
		var statusErr *llm.StatusError
		var envErr *llm.EnvelopeError
		switch {
		case errors.As(err, &statusErr):
			log.Printf("vision: %s call failed: status %d", c.backend.Name(), statusErr.Code)
			return models.FailedBatch(slots, mode, statusErr.Error(), "Extraction API call failed.")
		case errors.As(err, &envErr):
			log.Printf("vision: %s envelope unreadable: %v", c.backend.Name(), err)
			return models.FailedBatch(slots, mode,
				"Model returned non-JSON output unexpectedly.",
				"Non-JSON output from model.")
		default:
			log.Printf("vision: %s call failed: %v", c.backend.Name(), err)
			return models.FailedBatch(slots, mode,
				fmt.Sprintf("%s request failed: %s", c.backend.Name(), llm.Truncate(err.Error(), 500)),
				"Extraction API call failed.")
		}
	}

	batch, err := c.parse(text)
	if err != nil {
		log.Printf("vision: rejecting model output: %v", err)
		if errors.Is(err, errNotJSON) {
			return models.FailedBatch(slots, mode,
				"Model returned non-JSON output unexpectedly.",
				"Non-JSON output from model.")
		}
		return models.FailedBatch(slots, mode,
			"Model output did not match the extraction schema: "+llm.Truncate(err.Error(), 500),
			"Model output was non-conformant.")
	}
	alignSlots(batch.Items, slots)
	return batch
}

var errNotJSON = errors.New("output is not JSON")

// parse validates text against the strict schema before converting it.
func (c *Client) parse(text string) (models.ExtractionBatch, error) {
	var batch models.ExtractionBatch
	var doc any
	if err := json.Unmarshal([]byte(llm.StripCodeFence(text)), &doc); err != nil {
		return batch, fmt.Errorf("%w: %v", errNotJSON, err)
	}
	if err := c.checker.Validate(doc); err != nil {
		return batch, err
	}
	raw, err := json.Marshal(doc)
	if err != nil {
		return batch, err
	}
	if err := json.Unmarshal(raw, &batch); err != nil {
		return batch, err
	}
	for i := range batch.Items {
		batch.Items[i].Normalize()
	}
	batch.Confidence = clamp(batch.Confidence)
	return batch, nil
}

// alignSlots keeps items addressable by the requested slots. When the model
// answered one item per image but ignored the slot numbers, items are
// re-slotted by position.
func alignSlots(items []models.ExtractionItem, slots []int) {
	if len(items) != len(slots) {
		return
	}
	want := make(map[int]bool, len(slots))
	for _, s := range slots {
		want[s] = true
	}
	seen := make(map[int]bool, len(items))
	for _, it := range items {
		if !want[it.Slot] || seen[it.Slot] {
			for i := range items {
				items[i].Slot = slots[i]
			}
			return
		}
		seen[it.Slot] = true
	}
}

func clamp(v float64) float64 {
	if v < 0 || v != v {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
