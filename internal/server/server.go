// Package server exposes the headshot pipeline over HTTP.
package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"strconv"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"golang.org/x/sync/semaphore"

	"github.com/menta2k/headshot"
	"github.com/menta2k/headshot/internal/config"
	"github.com/menta2k/headshot/pkg/analyzer"
	"github.com/menta2k/headshot/pkg/cropper"
	"github.com/menta2k/headshot/pkg/geometry"
	"github.com/menta2k/headshot/pkg/processing"
	"github.com/menta2k/headshot/pkg/types"
)

const requestIDHeader = "X-Request-ID"

// Server serves crop requests with a shared, stateless cropper.
type Server struct {
	cropper  *cropper.HeadshotCropper
	analyzer *analyzer.ImageAnalyzer
	cfg      *config.Config
	slots    *semaphore.Weighted
}

// New builds the fiber app for the given cropper and configuration.
func New(c *cropper.HeadshotCropper, cfg *config.Config) *fiber.App {
	s := &Server{
		cropper:  c,
		analyzer: newURLAnalyzer(cfg),
		cfg:      cfg,
		slots:    semaphore.NewWeighted(int64(max(cfg.Server.Concurrency, 1))),
	}

	app := fiber.New(fiber.Config{
		AppName:               "headshot " + headshot.Version,
		BodyLimit:             max(cfg.Server.BodyLimitMB, 1) << 20,
		DisableStartupMessage: true,
		ErrorHandler:          s.errorHandler,
	})
	app.Use(requestID)

	app.Get("/health", s.health)
	api := app.Group("/api/v1")
	api.Get("/presets", s.presets)
	api.Post("/headshot", s.headshot)
	api.Post("/detect", s.detect)

	return app
}

func requestID(c *fiber.Ctx) error {
	id := c.Get(requestIDHeader)
	if id == "" {
		id = uuid.NewString()
	}
	c.Locals(requestIDHeader, id)
	c.Set(requestIDHeader, id)
	return c.Next()
}

func requestIDOf(c *fiber.Ctx) string {
	id, _ := c.Locals(requestIDHeader).(string)
	return id
}

func (s *Server) health(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"status":  "ok",
		"version": headshot.Version,
	})
}

func (s *Server) presets(c *fiber.Ctx) error {
	out := make([]types.CompositionConfig, 0)
	for _, name := range geometry.PresetNames() {
		comp, err := s.cfg.CompositionFor(name)
		if err != nil {
			return err
		}
		out = append(out, comp)
	}
	return c.JSON(fiber.Map{"default": s.cfg.Composition.Preset, "presets": out})
}

// headshot answers with the encoded headshot and the crop box in headers.
func (s *Server) headshot(c *fiber.Ctx) error {
	res, err := s.run(c)
	if err != nil {
		return err
	}

	c.Set("X-Crop-Box", fmt.Sprintf("%d,%d,%d,%d", res.CropBox.X, res.CropBox.Y, res.CropBox.Width, res.CropBox.Height))
	c.Set("X-Headshot-Preset", res.Preset)
	c.Set(fiber.HeaderContentType, res.MimeType)
	return c.Send(res.Data)
}

// detect answers with the pipeline metadata only.
func (s *Server) detect(c *fiber.Ctx) error {
	res, err := s.run(c)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{
		"request_id": requestIDOf(c),
		"result":     res,
	})
}

func (s *Server) run(c *fiber.Ctx) (*cropper.Result, error) {
	data, err := s.readImage(c)
	if err != nil {
		return nil, err
	}
	opts, err := s.optionsFrom(c)
	if err != nil {
		return nil, err
	}

	ctx := c.UserContext()
	if err := s.slots.Acquire(ctx, 1); err != nil {
		return nil, fiber.NewError(fiber.StatusServiceUnavailable, "server busy")
	}
	defer s.slots.Release(1)

	start := time.Now()
	res, err := s.cropper.CropWithOptions(ctx, data, opts)
	if err != nil {
		log.Printf("[%s] crop failed after %s: %v", requestIDOf(c), time.Since(start), err)
		return nil, err
	}
	log.Printf("[%s] %s headshot %dx%d in %s", requestIDOf(c), res.Preset, res.OutputDimensions.Width, res.OutputDimensions.Height, time.Since(start))
	return res, nil
}

func newURLAnalyzer(cfg *config.Config) *analyzer.ImageAnalyzer {
	ac := analyzer.DefaultConfig()
	ac.MaxDownloadBytes = int64(max(cfg.Server.BodyLimitMB, 1)) << 20
	ac.BlockPrivateNetworks = !cfg.Server.AllowPrivateURLs
	return analyzer.NewWithConfig(ac)
}

// readImage takes the multipart "image" file, or fetches the "url" field.
func (s *Server) readImage(c *fiber.Ctx) ([]byte, error) {
	if fh, err := c.FormFile("image"); err == nil {
		f, err := fh.Open()
		if err != nil {
			return nil, fiber.NewError(fiber.StatusBadRequest, "cannot open upload")
		}
		defer f.Close()
		data, err := io.ReadAll(f)
		if err != nil {
			return nil, fiber.NewError(fiber.StatusBadRequest, "cannot read upload")
		}
		return checkImage(data)
	}

	if src := c.FormValue("url"); src != "" {
		ctx, cancel := context.WithTimeout(c.UserContext(), 30*time.Second)
		defer cancel()
		_, data, err := s.analyzer.LoadImageFromURL(ctx, src)
		if err != nil {
			if !errors.Is(err, types.ErrImageLoad) {
				err = fmt.Errorf("%w: %v", types.ErrImageLoad, err)
			}
			return nil, &types.StageError{Stage: types.StageLoad, Err: err}
		}
		return data, nil
	}

	return nil, fiber.NewError(fiber.StatusBadRequest, `multipart field "image" or "url" is required`)
}

func checkImage(data []byte) ([]byte, error) {
	if len(data) == 0 {
		return nil, fiber.NewError(fiber.StatusBadRequest, "empty upload")
	}
	if mt := mimetype.Detect(data); !strings.HasPrefix(mt.String(), "image/") {
		return nil, fiber.NewError(fiber.StatusUnsupportedMediaType, "upload is "+mt.String()+", not an image")
	}
	return data, nil
}

// optionsFrom applies per-request form fields on top of the cropper defaults.
func (s *Server) optionsFrom(c *fiber.Ctx) (cropper.Options, error) {
	opts := s.cropper.Options()

	if preset := c.FormValue("preset"); preset != "" {
		comp, err := s.cfg.CompositionFor(preset)
		if err != nil {
			return opts, fiber.NewError(fiber.StatusBadRequest, err.Error())
		}
		opts.Composition = comp
	}

	if format := c.FormValue("format"); format != "" {
		switch f := processing.NormalizeFormat(format); f {
		case "jpg", "png", "webp":
			opts.Format = f
		default:
			return opts, fiber.NewError(fiber.StatusBadRequest, "format must be jpg, png or webp")
		}
	}

	for field, dst := range map[string]*int{"width": &opts.OutputWidth, "height": &opts.OutputHeight, "quality": &opts.Quality} {
		v := c.FormValue(field)
		if v == "" {
			continue
		}
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return opts, fiber.NewError(fiber.StatusBadRequest, field+" must be a non-negative integer")
		}
		limit := processing.MaxCanvasSide
		if field == "quality" {
			limit = 100
		}
		if n > limit {
			return opts, fiber.NewError(fiber.StatusBadRequest, fmt.Sprintf("%s must be at most %d", field, limit))
		}
		*dst = n
	}

	for field, dst := range map[string]*bool{"background": &opts.RemoveBackground, "flatten": &opts.Flatten, "lossless": &opts.Lossless} {
		v := c.FormValue(field)
		if v == "" {
			continue
		}
		b, err := strconv.ParseBool(v)
		if err != nil {
			return opts, fiber.NewError(fiber.StatusBadRequest, field+" must be a boolean")
		}
		*dst = b
	}

	if backfill := c.FormValue("backfill"); backfill != "" {
		col, err := config.ParseColor(backfill)
		if err != nil {
			return opts, fiber.NewError(fiber.StatusBadRequest, err.Error())
		}
		opts.Backfill = &col
	}

	return opts, nil
}

// StatusFor maps a pipeline error onto an HTTP status code.
func StatusFor(err error) int {
	var fe *fiber.Error
	switch {
	case errors.As(err, &fe):
		return fe.Code
	case errors.Is(err, types.ErrInvalidConfiguration), errors.Is(err, types.ErrImageLoad):
		return fiber.StatusBadRequest
	case errors.Is(err, types.ErrNoFaceFound):
		return fiber.StatusUnprocessableEntity
	case errors.Is(err, types.ErrInvalidDetection), errors.Is(err, types.ErrBackgroundRemoval):
		return fiber.StatusBadGateway
	case types.StageOf(err) == types.StageDetect:
		return fiber.StatusBadGateway
	}
	return fiber.StatusInternalServerError
}

func (s *Server) errorHandler(c *fiber.Ctx, err error) error {
	body := fiber.Map{
		"error":      err.Error(),
		"request_id": requestIDOf(c),
	}
	if stage := types.StageOf(err); stage != "" {
		body["stage"] = stage
	}
	return c.Status(StatusFor(err)).JSON(body)
}
