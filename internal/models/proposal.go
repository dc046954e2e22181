package models

// ProposalKind is the default kind stamped on OCR proposals.
const ProposalKind = "duum.ocr.proposal.v1"

// ProposalService identifies this gateway in proposal sources.
const ProposalService = "duum-app-portal"

// Proposal is the normalized document forwarded to Duum Core.
type Proposal struct {
	Kind        string         `json:"kind"`
	Confidence  float64        `json:"confidence"`
	Patch       map[string]any `json:"patch"`
	NeedsReview []any          `json:"needs_review"`
	Source      map[string]any `json:"source"`
}

// NormalizeProposal coerces a decoded model reply into a Proposal, filling any
// missing or mistyped required field.
func NormalizeProposal(raw map[string]any, imageCount int) Proposal {
	p := Proposal{Kind: ProposalKind, Confidence: 0.5}
	if kind, ok := raw["kind"].(string); ok && kind != "" {
		p.Kind = kind
	}
	if conf, ok := raw["confidence"].(float64); ok {
		p.Confidence = conf
	}
	if patch, ok := raw["patch"].(map[string]any); ok {
		p.Patch = patch
	} else {
		p.Patch = map[string]any{}
	}
	if review, ok := raw["needs_review"].([]any); ok {
		p.NeedsReview = review
	} else {
		p.NeedsReview = []any{}
	}
	if source, ok := raw["source"].(map[string]any); ok {
		p.Source = source
	} else {
		p.Source = map[string]any{"service": ProposalService, "images": imageCount}
	}
	return p
}
