package models

import "strings"

// UploadedFile is one item of an incoming batch. It lives only for the request.
type UploadedFile struct {
	Slot        int
	Name        string
	MimeType    string
	Data        []byte
	Fingerprint string
}

// IsImage reports whether the declared media type marks the file as vision-eligible.
func (f *UploadedFile) IsImage() bool {
	return strings.HasPrefix(strings.ToLower(f.MimeType), "image/")
}

// Summary describes the file in the items response.
func (f *UploadedFile) Summary() FileSummary {
	return FileSummary{
		Slot:      f.Slot,
		Name:      f.Name,
		Type:      f.MimeType,
		SizeBytes: len(f.Data),
		SHA256:    f.Fingerprint,
	}
}

// FileSummary is the per-file entry of the items response.
type FileSummary struct {
	Slot      int    `json:"slot"`
	Name      string `json:"name"`
	Type      string `json:"type"`
	SizeBytes int    `json:"size_bytes"`
	SHA256    string `json:"sha256"`
}

// IngestResponse is the body returned by the items endpoint.
type IngestResponse struct {
	OK               bool            `json:"ok"`
	ReceivedCount    int             `json:"received_count"`
	Files            []FileSummary   `json:"files"`
	VisionImageCount int             `json:"vision_image_count"`
	Analysis         ExtractionBatch `json:"analysis"`
}
