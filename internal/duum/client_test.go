package duum

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"duumgate/internal/models"
)

func testProposal() models.Proposal {
	return models.NormalizeProposal(map[string]any{"confidence": 0.7}, 1)
}

func TestPostProposal(t *testing.T) {
	var gotToken string
	var got models.Proposal
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != ProposalsPath {
			t.Fatalf("unexpected path %s", r.URL.Path)
		}
		gotToken = r.Header.Get(TokenHeader)
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Fatalf("decode: %v", err)
		}
		_, _ = w.Write([]byte(`{"id":42}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL+"//", "secret", srv.Client())
	out, err := c.PostProposal(context.Background(), testProposal())
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	if gotToken != "secret" {
		t.Fatalf("unexpected token %q", gotToken)
	}
	if got.Kind != models.ProposalKind || got.Confidence != 0.7 {
		t.Fatalf("unexpected proposal %+v", got)
	}
	if out.(map[string]any)["id"].(float64) != 42 {
		t.Fatalf("unexpected reply %v", out)
	}
}

func TestPostProposalNonJSONReply(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("created"))
	}))
	defer srv.Close()

	out, err := NewClient(srv.URL, "t", srv.Client()).PostProposal(context.Background(), testProposal())
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	if out.(map[string]any)["raw"] != "created" {
		t.Fatalf("unexpected reply %v", out)
	}
}

func TestPostProposalFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		_, _ = w.Write([]byte(strings.Repeat("n", 700)))
	}))
	defer srv.Close()

	_, err := NewClient(srv.URL, "t", srv.Client()).PostProposal(context.Background(), testProposal())
	if err == nil || !strings.HasPrefix(err.Error(), "Duum proposal POST failed (403): ") {
		t.Fatalf("unexpected error %v", err)
	}
	if len(err.Error()) != len("Duum proposal POST failed (403): ")+500 {
		t.Fatalf("body should be truncated to 500 bytes")
	}
}

func TestPostProposalNotConfigured(t *testing.T) {
	_, err := NewClient("", "t", nil).PostProposal(context.Background(), testProposal())
	if !errors.Is(err, ErrNotConfigured) {
		t.Fatalf("expected ErrNotConfigured, got %v", err)
	}
	if err.Error() != "Missing DUUM_WP_BASE or DUUM_WP_TOKEN" {
		t.Fatalf("unexpected message %q", err.Error())
	}
}
