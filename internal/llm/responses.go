package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
)

const defaultResponsesBaseURL = "https://api.openai.com/v1"

// ResponsesBackend calls the OpenAI Responses API directly so strict
// json_schema output formats can be requested.
type ResponsesBackend struct {
	apiKey  string
	baseURL string
	model   string
	httpc   *http.Client
}

// NewResponsesBackend builds a Responses API backend. An empty baseURL uses
// the public OpenAI endpoint.
func NewResponsesBackend(apiKey, baseURL, model string, httpc *http.Client) *ResponsesBackend {
	if baseURL == "" {
		baseURL = defaultResponsesBaseURL
	}
	if httpc == nil {
		httpc = &http.Client{Timeout: 120 * time.Second}
	}
	return &ResponsesBackend{
		apiKey:  apiKey,
		baseURL: strings.TrimRight(baseURL, "/"),
		model:   model,
		httpc:   httpc,
	}
}

func (b *ResponsesBackend) Name() string { return "OpenAI" }

func (b *ResponsesBackend) Complete(ctx context.Context, req Request) (string, error) {
	content := make([]map[string]any, 0, len(req.ImageURLs)+1)
	content = append(content, map[string]any{"type": "input_text", "text": req.Prompt})
	for _, u := range req.ImageURLs {
		part := map[string]any{"type": "input_image", "image_url": u}
		if req.ImageDetail != "" {
			part["detail"] = req.ImageDetail
		}
		content = append(content, part)
	}

	input := make([]map[string]any, 0, 2)
	if req.System != "" {
		input = append(input, map[string]any{"role": "system", "content": req.System})
	}
	input = append(input, map[string]any{"role": "user", "content": content})

	modelName := req.Model
	if modelName == "" {
		modelName = b.model
	}
	payload := map[string]any{
		"model": modelName,
		"input": input,
	}
	if req.MaxOutputTokens > 0 {
		payload["max_output_tokens"] = req.MaxOutputTokens
	}
	if req.Schema != nil {
		payload["text"] = map[string]any{
			"format": map[string]any{
				"type":   "json_schema",
				"name":   req.SchemaName,
				"strict": true,
				"schema": req.Schema,
			},
		}
	}

	raw, status, err := b.post(ctx, payload, len(req.ImageURLs))
	if err != nil {
		return "", err
	}
	if status/100 != 2 {
		return "", &StatusError{Provider: b.Name(), Code: status, Body: string(raw)}
	}
	return extractResponsesText(raw)
}

func (b *ResponsesBackend) post(ctx context.Context, payload map[string]any, images int) ([]byte, int, error) {
	reqID := uuid.NewString()
	start := time.Now()

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, 0, fmt.Errorf("marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, b.baseURL+"/responses", bytes.NewReader(body))
	if err != nil {
		return nil, 0, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+b.apiKey)
	req.Header.Set("Content-Type", "application/json")

	log.Printf("llm: request %s model=%v images=%d bytes=%d", reqID, payload["model"], images, len(body))
	resp, err := b.httpc.Do(req)
	if err != nil {
		log.Printf("llm: request %s failed after %s: %v", reqID, time.Since(start), err)
		return nil, 0, fmt.Errorf("openai http error: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, resp.StatusCode, fmt.Errorf("read response: %w", err)
	}
	log.Printf("llm: request %s status=%d bytes=%d elapsed=%s", reqID, resp.StatusCode, len(raw), time.Since(start))
	return raw, resp.StatusCode, nil
}

// extractResponsesText prefers `output_text` and otherwise joins the text
// segments found in output[i].content[j].
func extractResponsesText(raw []byte) (string, error) {
	type content struct {
		Type string `json:"type"`
		Text string `json:"text"`
	}
	type output struct {
		Content []content `json:"content"`
	}
	var env struct {
		Output     []output `json:"output"`
		OutputText string   `json:"output_text"`
	}
	if err := json.Unmarshal(raw, &env); err != nil {
		return "", &EnvelopeError{Body: string(raw), Err: err}
	}
	if s := strings.TrimSpace(env.OutputText); s != "" {
		return s, nil
	}

	var sb strings.Builder
	for _, o := range env.Output {
		for _, c := range o.Content {
			if strings.TrimSpace(c.Text) == "" {
				continue
			}
			if c.Type == "output_text" || c.Type == "text" || c.Type == "" {
				if sb.Len() > 0 {
					sb.WriteByte('\n')
				}
				sb.WriteString(c.Text)
			}
		}
	}
	return sb.String(), nil
}
