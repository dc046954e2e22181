// Package proposal turns screenshots into Duum Core proposals and relays them.
package proposal

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strings"

	"duumgate/internal/llm"
	"duumgate/internal/models"
)

const (
	// MaxImages is the number of images used from one request.
	MaxImages = 3
	// MaxDataURLLength bounds a single base64 data URL.
	MaxDataURLLength = 4_500_000

	defaultSystemPrompt = "You are Duum OCR."
)

// InputError is a client mistake reported with its HTTP status.
type InputError struct {
	Status  int
	Message string
}

func (e *InputError) Error() string { return e.Message }

// UpstreamError is a model failure surfaced to the caller as a bad gateway.
type UpstreamError struct {
	Message string
	Detail  string
}

func (e *UpstreamError) Error() string { return e.Message }

// Poster stores proposals in Duum Core.
type Poster interface {
	PostProposal(ctx context.Context, p models.Proposal) (any, error)
}

// Result is a normalized proposal and the outcome of posting it. PostErr is
// set when Duum Core rejected or could not receive the proposal.
type Result struct {
	Proposal models.Proposal
	Duum     any
	PostErr  error
}

type Options struct {
	SystemPrompt    string
	Model           string
	MaxOutputTokens int
	// KeyEnv names the credential variable reported when no backend is set.
	KeyEnv string
}

type Service struct {
	backend llm.Backend
	poster  Poster
	opts    Options
}

// NewService builds the relay. A nil backend means the provider credential is missing.
func NewService(backend llm.Backend, poster Poster, opts Options) *Service {
	if opts.SystemPrompt == "" {
		opts.SystemPrompt = defaultSystemPrompt
	}
	if opts.MaxOutputTokens <= 0 {
		opts.MaxOutputTokens = 900
	}
	if opts.KeyEnv == "" {
		opts.KeyEnv = "OPENAI_API_KEY"
	}
	return &Service{backend: backend, poster: poster, opts: opts}
}

// ValidateImages keeps the first MaxImages entries and checks each is an
// image data URL of acceptable size.
func ValidateImages(images []string) ([]string, error) {
	if len(images) > MaxImages {
		images = images[:MaxImages]
	}
	if len(images) == 0 {
		return nil, &InputError{Status: http.StatusBadRequest, Message: "No images provided"}
	}
	for _, img := range images {
		if !strings.HasPrefix(img, "data:image/") {
			return nil, &InputError{Status: http.StatusBadRequest, Message: "Images must be data URLs (data:image/...)"}
		}
		if len(img) > MaxDataURLLength {
			return nil, &InputError{Status: http.StatusRequestEntityTooLarge, Message: "Image payload too large. Crop/compress and try again."}
		}
	}
	return images, nil
}

// Extract asks the model for a proposal and posts it to Duum Core. Input and
// model failures are returned as *InputError or *UpstreamError; a failed post
// is reported on the Result.
func (s *Service) Extract(ctx context.Context, images []string) (*Result, error) {
	images, err := ValidateImages(images)
	if err != nil {
		return nil, err
	}
	if s.backend == nil {
		return nil, &UpstreamError{Message: s.opts.KeyEnv + " is not set."}
	}

	text, err := s.backend.Complete(ctx, llm.Request{
		System:          s.opts.SystemPrompt + "\nReturn ONLY JSON.",
		Prompt:          buildPrompt(len(images)),
		ImageURLs:       images,
		ImageDetail:     "auto",
		Model:           s.opts.Model,
		MaxOutputTokens: s.opts.MaxOutputTokens,
	})
	if err != nil {
		var statusErr *llm.StatusError
		var envErr *llm.EnvelopeError
		switch {
		case errors.As(err, &statusErr):
			return nil, &UpstreamError{
				Message: fmt.Sprintf("%s error %d", statusErr.Provider, statusErr.Code),
				Detail:  llm.Truncate(statusErr.Body, 2000),
			}
		case errors.As(err, &envErr):
			return nil, &UpstreamError{
				Message: fmt.Sprintf("Bad %s JSON", s.backend.Name()),
				Detail:  llm.Truncate(envErr.Body, 1200),
			}
		default:
			return nil, &UpstreamError{
				Message: fmt.Sprintf("%s request failed", s.backend.Name()),
				Detail:  llm.Truncate(err.Error(), 2000),
			}
		}
	}

	var raw map[string]any
	if err := json.Unmarshal([]byte(llm.StripCodeFence(text)), &raw); err != nil || raw == nil {
		return nil, &UpstreamError{
			Message: "Model did not return valid JSON proposal",
			Detail:  llm.Truncate(text, 2000),
		}
	}
	res := &Result{Proposal: models.NormalizeProposal(raw, len(images))}

	res.Duum, res.PostErr = s.poster.PostProposal(ctx, res.Proposal)
	if res.PostErr != nil {
		log.Printf("proposal: post to Duum Core failed: %v", res.PostErr)
	}
	return res, nil
}

func buildPrompt(imageCount int) string {
	return fmt.Sprintf(`You are Duum OCR Extraction.
Convert Borderlands 4 screenshot(s) into a Duum Core proposal.

Return ONLY valid JSON (no markdown, no commentary), with EXACTLY this shape:
{
  "kind": "%s",
  "confidence": 0.0-1.0,
  "patch": { },
  "needs_review": [],
  "source": { "service": "%s", "images": %d }
}

Rules:
- If unsure about a field, omit it and add a needs_review entry like "equipped.weapons[0].name".
- Keep patch minimal (only what you're confident changed or can be read).
- Prefer nested structure like:
  patch.equipped.weapons[], patch.equipped.shield, patch.equipped.class_mod, patch.skills, etc.`,
		models.ProposalKind, models.ProposalService, imageCount)
}
