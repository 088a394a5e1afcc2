// Package background removes image backgrounds through an external service.
package background

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"

	"github.com/menta2k/headshot/pkg/types"
)

// Remover returns a copy of an encoded image with its background made transparent.
type Remover interface {
	RemoveBackground(ctx context.Context, data []byte, mimeType string) ([]byte, string, error)
}

const (
	DefaultTimeout  = 120 * time.Second
	maxResponseSize = 64 << 20
)

// RembgClient calls a rembg server (`rembg s`) over HTTP.
type RembgClient struct {
	BaseURL    string
	httpClient *http.Client
}

var _ Remover = (*RembgClient)(nil)

// NewRembgClient creates a client for the rembg server at baseURL
func NewRembgClient(baseURL string) *RembgClient {
	return &RembgClient{
		BaseURL: strings.TrimSuffix(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: DefaultTimeout,
		},
	}
}

// RemoveBackground posts the image to /api/remove and returns the cut-out.
// Any failure, including an empty or non-image reply, wraps ErrBackgroundRemoval.
func (c *RembgClient) RemoveBackground(ctx context.Context, data []byte, mimeType string) ([]byte, string, error) {
	if len(data) == 0 {
		return nil, "", fmt.Errorf("%w: no image data", types.ErrBackgroundRemoval)
	}

	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)

	part, err := writer.CreateFormFile("file", "image"+extensionFor(mimeType))
	if err != nil {
		return nil, "", fmt.Errorf("%w: failed to create form file: %v", types.ErrBackgroundRemoval, err)
	}
	if _, err := part.Write(data); err != nil {
		return nil, "", fmt.Errorf("%w: failed to write image data: %v", types.ErrBackgroundRemoval, err)
	}
	if err := writer.Close(); err != nil {
		return nil, "", fmt.Errorf("%w: failed to close writer: %v", types.ErrBackgroundRemoval, err)
	}

	url := c.BaseURL + "/api/remove"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, body)
	if err != nil {
		return nil, "", fmt.Errorf("%w: failed to create request: %v", types.ErrBackgroundRemoval, err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	log.Printf("Background removal: POST %s (%d bytes)", url, len(data))
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, "", fmt.Errorf("%w: failed to send request: %v", types.ErrBackgroundRemoval, err)
	}
	defer resp.Body.Close()

	out, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return nil, "", fmt.Errorf("%w: failed to read response: %v", types.ErrBackgroundRemoval, err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, "", fmt.Errorf("%w: server returned status %d: %s", types.ErrBackgroundRemoval, resp.StatusCode, truncate(out, 200))
	}
	if len(out) == 0 {
		return nil, "", fmt.Errorf("%w: empty response", types.ErrBackgroundRemoval)
	}

	mt := mimetype.Detect(out)
	if !strings.HasPrefix(mt.String(), "image/") {
		return nil, "", fmt.Errorf("%w: response is %s, not an image", types.ErrBackgroundRemoval, mt.String())
	}
	return out, mt.String(), nil
}

func extensionFor(mimeType string) string {
	if mimeType == "" {
		return ".png"
	}
	if mt := mimetype.Lookup(mimeType); mt != nil {
		return mt.Extension()
	}
	return ".png"
}

func truncate(b []byte, n int) string {
	if len(b) > n {
		return string(b[:n]) + "..."
	}
	return string(b)
}
