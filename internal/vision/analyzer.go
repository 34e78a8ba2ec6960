// Package vision analyzes image attachments through the assistant backend.
package vision

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"go.uber.org/zap"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/webp"

	"github.com/capitalize-ai/imbot-relay/internal/assistant"
	"github.com/capitalize-ai/imbot-relay/internal/model"
	"github.com/capitalize-ai/imbot-relay/pkg/logger"
	"github.com/capitalize-ai/imbot-relay/pkg/metrics"
)

// MaxFileBytes bounds the size of a downloaded attachment.
const MaxFileBytes = 20 << 20

// maxPixels bounds the decoded size of an attachment.
const maxPixels = 40 << 20

// ErrTooLarge is returned by download when the body exceeds the size limit.
var ErrTooLarge = errors.New("file exceeds size limit")

// Replies returned instead of an analysis.
const (
	MsgUnsupported      = "The file type is not recognized as a supported image for analysis."
	MsgFailed           = "Failed to analyze the image. Please try again."
	MsgStillProcessing  = "Still processing the image; please try again in a moment."
	MsgTooLarge         = "The file is too large to analyze (limit 20 MB)."
	msgInaccessible     = "Could not access the file link (HTTP %d)."
	msgDownloadFailed   = "Could not download the file."
	DefaultPrompt       = "Please analyze this image."
	DefaultInstructions = "Analyze the attached image and give a useful answer to the team."
)

// Options configures an Analyzer.
type Options struct {
	Instructions string
	Prompt       string
	Timeout      time.Duration
}

// Analyzer downloads an attachment, checks that it is an image and runs it
// through the assistant with an image-bearing message.
type Analyzer struct {
	backend    assistant.Backend
	runner     *assistant.Runner
	httpClient *http.Client
	opts       Options
	maxBytes   int64
	logger     *logger.Logger
}

// NewAnalyzer creates an analyzer. backend must be the same backend runner uses.
func NewAnalyzer(backend assistant.Backend, runner *assistant.Runner, httpClient *http.Client, opts Options, log *logger.Logger) *Analyzer {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	if opts.Instructions == "" {
		opts.Instructions = DefaultInstructions
	}
	if opts.Prompt == "" {
		opts.Prompt = DefaultPrompt
	}
	if log == nil {
		log = logger.NewNop()
	}
	return &Analyzer{
		backend:    backend,
		runner:     runner,
		httpClient: httpClient,
		opts:       opts,
		maxBytes:   MaxFileBytes,
		logger:     log,
	}
}

// AnalyzeFile returns a displayable analysis of the file at url. It never fails.
func (a *Analyzer) AnalyzeFile(ctx context.Context, url, displayName string) string {
	log := a.logger.WithContext(ctx).With(zap.String("file", displayName))

	data, contentType, status, err := a.download(ctx, url)
	if errors.Is(err, ErrTooLarge) {
		log.Info("attachment exceeds size limit", zap.Int64("limit", a.maxBytes))
		metrics.FileAnalysesTotal.WithLabelValues("too_large").Inc()
		return MsgTooLarge
	}
	if err != nil {
		log.Warn("attachment download failed", zap.Error(err))
		metrics.FileAnalysesTotal.WithLabelValues("inaccessible").Inc()
		return msgDownloadFailed
	}
	if status < 200 || status >= 300 {
		log.Warn("attachment inaccessible", zap.Int("status", status))
		metrics.FileAnalysesTotal.WithLabelValues("inaccessible").Inc()
		return fmt.Sprintf(msgInaccessible, status)
	}
	if !IsImage(data, contentType) {
		log.Info("attachment is not a supported image", zap.String("content_type", contentType))
		metrics.FileAnalysesTotal.WithLabelValues("unsupported").Inc()
		return MsgUnsupported
	}

	fileID, err := a.backend.UploadFile(ctx, uploadName(displayName, data), data)
	if err != nil {
		log.Error("attachment upload failed", zap.Error(err))
		metrics.FileAnalysesTotal.WithLabelValues("failure").Inc()
		return MsgFailed
	}

	text, err := a.runner.Run(ctx, assistant.Request{
		Message:      assistant.UserMessage{Text: a.opts.Prompt, ImageFileID: fileID},
		Instructions: a.opts.Instructions,
		Timeout:      a.opts.Timeout,
		Route:        model.RouteFile,
	})
	if err != nil {
		if assistant.AsDegraded(err).TimedOut() {
			metrics.FileAnalysesTotal.WithLabelValues("timeout").Inc()
			return MsgStillProcessing
		}
		metrics.FileAnalysesTotal.WithLabelValues("failure").Inc()
		return MsgFailed
	}

	metrics.FileAnalysesTotal.WithLabelValues("success").Inc()
	return text
}

// download performs one GET, following redirects. A body longer than the
// size limit yields ErrTooLarge rather than a truncated file.
func (a *Analyzer) download(ctx context.Context, url string) ([]byte, string, int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, "", 0, fmt.Errorf("failed to build request: %w", err)
	}
	resp, err := a.httpClient.Do(req)
	if err != nil {
		return nil, "", 0, fmt.Errorf("failed to fetch file: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return nil, "", resp.StatusCode, nil
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, a.maxBytes+1))
	if err != nil {
		return nil, "", resp.StatusCode, fmt.Errorf("failed to read file: %w", err)
	}
	if int64(len(data)) > a.maxBytes {
		return nil, "", resp.StatusCode, ErrTooLarge
	}
	return data, resp.Header.Get("Content-Type"), resp.StatusCode, nil
}

// IsImage reports whether the declared content type names an image and the
// bytes fully decode as one.
func IsImage(data []byte, contentType string) bool {
	if !strings.Contains(strings.ToLower(contentType), "image") {
		return false
	}
	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil || cfg.Width <= 0 || cfg.Height <= 0 || cfg.Width*cfg.Height > maxPixels {
		return false
	}
	_, _, err = image.Decode(bytes.NewReader(data))
	return err == nil
}

// uploadName keeps the display name and appends the sniffed extension when
// the name has none.
func uploadName(displayName string, data []byte) string {
	name := strings.TrimSpace(filepath.Base(displayName))
	if name == "" || name == "." || name == "/" {
		name = "attachment"
	}
	if filepath.Ext(name) != "" {
		return name
	}
	return name + mimetype.Detect(data).Extension()
}
