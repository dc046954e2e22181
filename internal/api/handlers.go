package api

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"duumgate/internal/fingerprint"
	"duumgate/internal/models"
	"duumgate/internal/proposal"
)

const ingestPrefix = "/api/ingest"

// Analyzer turns the uploaded files of one request into an extraction batch.
type Analyzer interface {
	Analyze(ctx context.Context, files []models.UploadedFile, mode string) (models.ExtractionBatch, error)
}

// ProposalExtractor builds a Duum Core proposal from image data URLs.
type ProposalExtractor interface {
	Extract(ctx context.Context, images []string) (*proposal.Result, error)
}

type Options struct {
	MaxFiles       int
	MaxUploadBytes int64
	AllowedOrigins []string
}

// Handler wires the ingest routes to the merge pipeline and the proposal relay.
type Handler struct {
	analyzer  Analyzer
	proposals ProposalExtractor
	opts      Options
}

// NewHandler constructs a Handler instance.
func NewHandler(analyzer Analyzer, proposals ProposalExtractor, opts Options) *Handler {
	if opts.MaxFiles <= 0 {
		opts.MaxFiles = 10
	}
	if opts.MaxUploadBytes <= 0 {
		opts.MaxUploadBytes = 40 << 20
	}
	return &Handler{analyzer: analyzer, proposals: proposals, opts: opts}
}

// RegisterRoutes attaches all HTTP routes to the router.
func (h *Handler) RegisterRoutes(router *gin.Engine) {
	router.HandleMethodNotAllowed = true
	router.Use(gin.CustomRecovery(recoverJSON), CORS(h.opts.AllowedOrigins))

	ingest := router.Group(ingestPrefix)
	ingest.POST("", h.ingestItems)
	ingest.POST("/items", h.ingestItems)
	ingest.POST("/extract", h.extractProposal)

	router.NoRoute(unknownRoute)
	router.NoMethod(methodNotAllowed)
}

func recoverJSON(c *gin.Context, recovered any) {
	log.Printf("api: panic serving %s: %v", c.Request.URL.Path, recovered)
	c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"ok": false, "error": fmt.Sprint(recovered)})
}

func unknownRoute(c *gin.Context) {
	path := c.Request.URL.Path
	if path != ingestPrefix && !strings.HasPrefix(path, ingestPrefix+"/") {
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
		return
	}
	sub := strings.TrimPrefix(strings.TrimPrefix(path, ingestPrefix), "/")
	route, _, _ := strings.Cut(sub, "/")
	c.JSON(http.StatusNotFound, gin.H{"error": "Unknown ingest route", "route": strings.ToLower(route)})
}

func methodNotAllowed(c *gin.Context) {
	if strings.HasSuffix(c.Request.URL.Path, "/extract") {
		c.JSON(http.StatusMethodNotAllowed, gin.H{"error": "Use POST"})
		return
	}
	c.JSON(http.StatusMethodNotAllowed, gin.H{"error": "Method Not Allowed"})
}

// ingestItems hashes each uploaded file, runs the merge pipeline on the image
// files and reports both. ok=false inside the analysis is still a 200.
func (h *Handler) ingestItems(c *gin.Context) {
	if !strings.Contains(c.GetHeader("Content-Type"), "multipart/form-data") {
		c.IndentedJSON(http.StatusBadRequest, gin.H{"ok": false, "error": "Expected multipart/form-data"})
		return
	}
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.opts.MaxUploadBytes)
	form, err := c.MultipartForm()
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			c.IndentedJSON(http.StatusRequestEntityTooLarge, gin.H{"ok": false, "error": "Upload too large"})
			return
		}
		c.IndentedJSON(http.StatusBadRequest, gin.H{"ok": false, "error": "invalid multipart form"})
		return
	}
	defer func() {
		if err := form.RemoveAll(); err != nil {
			log.Printf("api: remove multipart temp files failed: %v", err)
		}
	}()

	headers := form.File["files"]
	if len(headers) == 0 {
		c.IndentedJSON(http.StatusBadRequest, gin.H{"ok": false, "error": "No files received. Field name must be 'files'."})
		return
	}
	if len(headers) > h.opts.MaxFiles {
		headers = headers[:h.opts.MaxFiles]
	}

	files := make([]models.UploadedFile, 0, len(headers))
	summaries := make([]models.FileSummary, 0, len(headers))
	visionCount := 0
	for i, fh := range headers {
		f, err := fh.Open()
		if err != nil {
			c.IndentedJSON(http.StatusInternalServerError, gin.H{"ok": false, "error": err.Error()})
			return
		}
		data, sum, err := fingerprint.Read(f)
		_ = f.Close()
		if err != nil {
			c.IndentedJSON(http.StatusInternalServerError, gin.H{"ok": false, "error": err.Error()})
			return
		}
		name := fh.Filename
		if name == "" {
			name = "unnamed"
		}
		mime := fh.Header.Get("Content-Type")
		if mime == "" {
			mime = "application/octet-stream"
		}
		file := models.UploadedFile{
			Slot:        i + 1,
			Name:        name,
			MimeType:    mime,
			Data:        data,
			Fingerprint: sum,
		}
		if file.IsImage() {
			visionCount++
		}
		files = append(files, file)
		summaries = append(summaries, file.Summary())
	}

	mode := "default"
	if v := form.Value["mode"]; len(v) > 0 && v[0] != "" {
		mode = v[0]
	}

	analysis, err := h.analyzer.Analyze(c.Request.Context(), files, mode)
	if err != nil {
		c.IndentedJSON(http.StatusInternalServerError, gin.H{"ok": false, "error": err.Error()})
		return
	}
	c.IndentedJSON(http.StatusOK, models.IngestResponse{
		OK:               true,
		ReceivedCount:    len(files),
		Files:            summaries,
		VisionImageCount: visionCount,
		Analysis:         analysis,
	})
}

type extractRequest struct {
	Images any `json:"images"`
}

func (h *Handler) extractProposal(c *gin.Context) {
	var req extractRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Bad JSON"})
		return
	}
	var images []string
	if list, ok := req.Images.([]any); ok {
		images = make([]string, 0, len(list))
		for _, v := range list {
			s, _ := v.(string)
			images = append(images, s)
		}
	}

	res, err := h.proposals.Extract(c.Request.Context(), images)
	if err != nil {
		var inErr *proposal.InputError
		var upErr *proposal.UpstreamError
		switch {
		case errors.As(err, &inErr):
			c.JSON(inErr.Status, gin.H{"error": inErr.Message})
		case errors.As(err, &upErr):
			body := gin.H{"error": upErr.Message}
			if upErr.Detail != "" {
				body["detail"] = upErr.Detail
			}
			c.JSON(http.StatusBadGateway, body)
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"ok": false, "error": err.Error()})
		}
		return
	}
	if res.PostErr != nil {
		c.JSON(http.StatusBadGateway, gin.H{"ok": false, "error": res.PostErr.Error(), "proposal": res.Proposal})
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true, "proposal": res.Proposal, "duum": res.Duum})
}
