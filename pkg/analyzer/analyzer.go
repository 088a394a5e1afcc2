package analyzer

import (
	"bytes"
	"context"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"

	"github.com/chai2010/webp"
	_ "golang.org/x/image/webp"

	"github.com/menta2k/headshot/pkg/processing"
	"github.com/menta2k/headshot/pkg/types"
)

// ImageAnalyzer loads source photos and reports their basic properties
type ImageAnalyzer struct {
	config     Config
	httpClient *http.Client
}

// Config holds configuration for the image analyzer
type Config struct {
	DefaultQuality   int
	SupportedFormats []string
	MinImageSize     int
	MaxDownloadBytes int64

	// MaxPixels caps width*height, checked from the header before decoding.
	MaxPixels int64

	// BlockPrivateNetworks refuses URL downloads from loopback, private,
	// link-local and other non-public addresses.
	BlockPrivateNetworks bool
}

// ImageInfo contains basic image metadata
type ImageInfo struct {
	Width       int     `json:"width"`
	Height      int     `json:"height"`
	AspectRatio float64 `json:"aspect_ratio"`
	Area        int     `json:"area"`
}

// Dimensions returns the width and height as an ImageDimensions value.
func (i ImageInfo) Dimensions() types.ImageDimensions {
	return types.ImageDimensions{Width: i.Width, Height: i.Height}
}

// DefaultConfig returns the analyzer defaults
func DefaultConfig() Config {
	return Config{
		DefaultQuality:   85,
		SupportedFormats: []string{"jpg", "jpeg", "png", "gif", "webp"},
		MinImageSize:     64,
		MaxDownloadBytes: 32 << 20,
		MaxPixels:        40_000_000,
	}
}

// New creates a new ImageAnalyzer with default configuration
func New() *ImageAnalyzer {
	return NewWithConfig(DefaultConfig())
}

// NewWithConfig creates a new ImageAnalyzer with custom configuration
func NewWithConfig(config Config) *ImageAnalyzer {
	if config.MaxDownloadBytes <= 0 {
		config.MaxDownloadBytes = DefaultConfig().MaxDownloadBytes
	}
	if config.MaxPixels <= 0 {
		config.MaxPixels = DefaultConfig().MaxPixels
	}
	return &ImageAnalyzer{
		config:     config,
		httpClient: newHTTPClient(config.BlockPrivateNetworks),
	}
}

// ProbeDimensions reads only the image header to learn its size, using the
// default pixel limit. EXIF orientation is not applied.
func ProbeDimensions(data []byte) (types.ImageDimensions, string, error) {
	return New().Probe(data)
}

// Probe reads only the image header and rejects empty images and images
// above the configured pixel limit.
func (a *ImageAnalyzer) Probe(data []byte) (types.ImageDimensions, string, error) {
	cfg, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		wcfg, werr := webp.DecodeConfig(bytes.NewReader(data))
		if werr != nil {
			return types.ImageDimensions{}, "", fmt.Errorf("%w: %v", types.ErrImageLoad, err)
		}
		cfg, format = wcfg, "webp"
	}
	dims := types.ImageDimensions{Width: cfg.Width, Height: cfg.Height}
	if !dims.Valid() {
		return dims, format, fmt.Errorf("%w: empty image %dx%d", types.ErrImageLoad, dims.Width, dims.Height)
	}
	if px := int64(dims.Width) * int64(dims.Height); px > a.config.MaxPixels {
		return dims, format, fmt.Errorf("%w: image %dx%d exceeds %d pixels", types.ErrImageLoad, dims.Width, dims.Height, a.config.MaxPixels)
	}
	return dims, format, nil
}

// DecodeBytes decodes an in-memory image, applying its EXIF orientation.
func (a *ImageAnalyzer) DecodeBytes(data []byte) (image.Image, string, error) {
	if len(data) == 0 {
		return nil, "", fmt.Errorf("%w: empty input", types.ErrImageLoad)
	}
	if _, _, err := a.Probe(data); err != nil {
		return nil, "", err
	}

	img, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		// chai2010 handles WebP variants the x/image decoder rejects
		wimg, werr := webp.Decode(bytes.NewReader(data))
		if werr != nil {
			return nil, "", fmt.Errorf("%w: %v", types.ErrImageLoad, err)
		}
		img, format = wimg, "webp"
	}

	if !a.isFormatSupported(format) {
		return nil, format, fmt.Errorf("%w: unsupported image format: %s", types.ErrImageLoad, format)
	}
	if b := img.Bounds(); b.Dx() <= 0 || b.Dy() <= 0 {
		return nil, format, fmt.Errorf("%w: empty image", types.ErrImageLoad)
	}

	return ApplyOrientation(img, ReadOrientation(data)), format, nil
}

// LoadImage loads an image from file
func (a *ImageAnalyzer) LoadImage(path string) (image.Image, []byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: failed to read image file: %v", types.ErrImageLoad, err)
	}
	img, _, err := a.DecodeBytes(data)
	if err != nil {
		return nil, nil, fmt.Errorf("%s: %w", path, err)
	}
	return img, data, nil
}

// LoadImageFromReader loads an image from an io.Reader
func (a *ImageAnalyzer) LoadImageFromReader(reader io.Reader) (image.Image, []byte, error) {
	data, err := io.ReadAll(io.LimitReader(reader, a.config.MaxDownloadBytes+1))
	if err != nil {
		return nil, nil, fmt.Errorf("%w: failed to read image data: %v", types.ErrImageLoad, err)
	}
	if int64(len(data)) > a.config.MaxDownloadBytes {
		return nil, nil, fmt.Errorf("%w: image exceeds %d bytes", types.ErrImageLoad, a.config.MaxDownloadBytes)
	}
	img, _, err := a.DecodeBytes(data)
	if err != nil {
		return nil, nil, err
	}
	return img, data, nil
}

// LoadImageFromURL downloads and loads an image from a URL
func (a *ImageAnalyzer) LoadImageFromURL(ctx context.Context, imageURL string) (image.Image, []byte, error) {
	parsedURL, err := url.Parse(imageURL)
	if err != nil {
		return nil, nil, fmt.Errorf("invalid URL: %w", err)
	}
	if parsedURL.Scheme != "http" && parsedURL.Scheme != "https" {
		return nil, nil, fmt.Errorf("unsupported URL scheme: %s (only http and https are supported)", parsedURL.Scheme)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, imageURL, nil)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", "headshot/1.0")

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to download image: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, nil, fmt.Errorf("failed to download image: HTTP %d %s", resp.StatusCode, resp.Status)
	}

	contentType := resp.Header.Get("Content-Type")
	if contentType != "" && !strings.HasPrefix(contentType, "image/") && !strings.HasPrefix(contentType, "application/octet-stream") {
		return nil, nil, fmt.Errorf("URL does not point to an image (Content-Type: %s)", contentType)
	}

	return a.LoadImageFromReader(resp.Body)
}

// LoadImageSmart loads an image from either a file path or URL
func (a *ImageAnalyzer) LoadImageSmart(ctx context.Context, source string) (image.Image, []byte, error) {
	if strings.HasPrefix(source, "http://") || strings.HasPrefix(source, "https://") {
		return a.LoadImageFromURL(ctx, source)
	}
	return a.LoadImage(source)
}

// SaveImage saves an image to file, picking the format from the extension
func (a *ImageAnalyzer) SaveImage(img image.Image, path string) error {
	ext := processing.NormalizeFormat(path[strings.LastIndex(path, ".")+1:])
	data, _, err := processing.Encode(img, ext, a.config.DefaultQuality, false)
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to create output file: %w", err)
	}
	return nil
}

// GetImageInfo returns basic information about an image
func (a *ImageAnalyzer) GetImageInfo(img image.Image) ImageInfo {
	bounds := img.Bounds()
	width := bounds.Dx()
	height := bounds.Dy()

	return ImageInfo{
		Width:       width,
		Height:      height,
		AspectRatio: float64(width) / float64(height),
		Area:        width * height,
	}
}

func (a *ImageAnalyzer) isFormatSupported(format string) bool {
	for _, supported := range a.config.SupportedFormats {
		if strings.EqualFold(format, supported) {
			return true
		}
	}
	return false
}

// ValidateImage checks if an image meets minimum requirements
func (a *ImageAnalyzer) ValidateImage(img image.Image) error {
	bounds := img.Bounds()
	if bounds.Dx() < a.config.MinImageSize || bounds.Dy() < a.config.MinImageSize {
		return fmt.Errorf("%w: image too small: %dx%d (minimum: %d)",
			types.ErrImageLoad, bounds.Dx(), bounds.Dy(), a.config.MinImageSize)
	}
	return nil
}
