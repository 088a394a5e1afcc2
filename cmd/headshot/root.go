package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/menta2k/headshot"
	"github.com/menta2k/headshot/internal/config"
	"github.com/menta2k/headshot/internal/logging"
	"github.com/menta2k/headshot/pkg/background"
	"github.com/menta2k/headshot/pkg/client"
	"github.com/menta2k/headshot/pkg/cropper"
	"github.com/menta2k/headshot/pkg/detection"
	"github.com/menta2k/headshot/pkg/llamacpp"
	"github.com/menta2k/headshot/pkg/ollama"
)

// cfg is loaded once per invocation by the root command
var cfg *config.Config

var (
	configPath string
	quiet      bool
	flags      config.Config
)

var rootCmd = &cobra.Command{
	Use:           "headshot",
	Short:         "Crop photos into framed headshots around the detected face",
	Version:       headshot.Version,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		loaded, err := config.Load(configPath)
		if err != nil {
			return err
		}
		applyFlags(cmd, loaded)
		if err := loaded.Validate(); err != nil {
			return fmt.Errorf("invalid configuration: %w", err)
		}
		cfg = loaded

		_, err = logging.Setup(logging.Options{
			File:       cfg.Log.File,
			MaxSizeMB:  cfg.Log.MaxSizeMB,
			MaxBackups: cfg.Log.MaxBackups,
			MaxAgeDays: cfg.Log.MaxAgeDays,
			Quiet:      quiet,
		})
		return err
	},
}

// Execute runs the CLI until completion or SIGINT/SIGTERM.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rootCmd.SetVersionTemplate(`{{printf "%s\n" .Version}}`)

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVarP(&configPath, "config", "c", config.GetConfigPath(), "config file (JSON); missing file means defaults")
	pf.BoolVarP(&quiet, "quiet", "q", false, "suppress log output on stderr")
	pf.StringVar(&flags.Log.File, "log-file", "", "write logs to a rotating file")

	pf.StringVarP(&flags.Composition.Preset, "preset", "p", "", "composition preset (see 'headshot presets')")
	pf.StringVar(&flags.Detector.Backend, "backend", "", "face detector: ollama, llamacpp, openai or pigo")
	pf.StringVar(&flags.Detector.URL, "url", "", "detector server URL")
	pf.StringVarP(&flags.Detector.Model, "model", "m", "", "vision model name")
	pf.StringVar(&flags.Detector.CascadePath, "cascade", "", "pigo cascade file (facefinder)")

	pf.BoolVar(&flags.Background.Enabled, "remove-background", false, "strip the background through rembg")
	pf.StringVar(&flags.Background.URL, "background-url", "", "rembg server URL")

	pf.StringVarP(&flags.Output.Format, "format", "f", "", "output format: jpg, png or webp")
	pf.IntVar(&flags.Output.Quality, "quality", 0, "JPEG/WebP quality (1-100)")
	pf.BoolVar(&flags.Output.Lossless, "lossless", false, "lossless WebP output")
	pf.IntVar(&flags.Output.Width, "width", 0, "output width in px (0 keeps crop size)")
	pf.IntVar(&flags.Output.Height, "height", 0, "output height in px (0 keeps crop size)")
	pf.BoolVar(&flags.Output.Flatten, "flatten", false, "paint the backfill colour under transparent areas")
	pf.StringVar(&flags.Output.Backfill, "backfill", "", "backfill colour, e.g. #ffffff")
	pf.StringVarP(&flags.Output.OutputDir, "out", "o", "", "output directory")
}

// applyFlags copies explicitly set flags over the loaded configuration.
func applyFlags(cmd *cobra.Command, c *config.Config) {
	set := cmd.Flags().Changed
	if set("log-file") {
		c.Log.File = flags.Log.File
	}
	if set("preset") {
		c.Composition.Preset = flags.Composition.Preset
	}
	if set("backend") {
		c.Detector.Backend = flags.Detector.Backend
	}
	if set("url") {
		c.Detector.URL = flags.Detector.URL
	}
	if set("model") {
		c.Detector.Model = flags.Detector.Model
	}
	if set("cascade") {
		c.Detector.CascadePath = flags.Detector.CascadePath
	}
	if set("remove-background") {
		c.Background.Enabled = flags.Background.Enabled
	}
	if set("background-url") {
		c.Background.URL = flags.Background.URL
	}
	if set("format") {
		c.Output.Format = flags.Output.Format
	}
	if set("quality") {
		c.Output.Quality = flags.Output.Quality
	}
	if set("lossless") {
		c.Output.Lossless = flags.Output.Lossless
	}
	if set("width") {
		c.Output.Width = flags.Output.Width
	}
	if set("height") {
		c.Output.Height = flags.Output.Height
	}
	if set("flatten") {
		c.Output.Flatten = flags.Output.Flatten
	}
	if set("backfill") {
		c.Output.Backfill = flags.Output.Backfill
	}
	if set("out") {
		c.Output.OutputDir = flags.Output.OutputDir
	}
}

// newVisionClient creates the model client for the configured backend.
func newVisionClient(c *config.Config) (client.VisionClient, error) {
	switch c.Detector.Backend {
	case config.BackendOllama:
		return ollama.NewClient(c.Detector.URL)
	case config.BackendLlamaCpp:
		return llamacpp.NewClient(c.Detector.URL)
	case config.BackendOpenAI:
		return llamacpp.NewClientWithKey(c.Detector.URL, c.Detector.APIKey)
	}
	return nil, fmt.Errorf("backend %s has no vision client", c.Detector.Backend)
}

func newDetector(c *config.Config) (detection.FaceDetector, error) {
	if c.Detector.Backend == config.BackendPigo {
		return detection.NewPigoDetectorFromFile(c.Detector.CascadePath)
	}
	vc, err := newVisionClient(c)
	if err != nil {
		return nil, fmt.Errorf("failed to create %s client: %w", c.Detector.Backend, err)
	}
	return detection.NewVisionDetector(vc, c.Detector.Model), nil
}

func cropperOptions(c *config.Config) (cropper.Options, error) {
	comp, err := c.CompositionFor("")
	if err != nil {
		return cropper.Options{}, err
	}
	backfill, err := config.ParseColor(c.Output.Backfill)
	if err != nil {
		return cropper.Options{}, err
	}
	return cropper.Options{
		Composition:      comp,
		OutputWidth:      c.Output.Width,
		OutputHeight:     c.Output.Height,
		Format:           c.Output.Format,
		Quality:          c.Output.Quality,
		Lossless:         c.Output.Lossless,
		Backfill:         &backfill,
		Flatten:          c.Output.Flatten,
		RemoveBackground: c.Background.Enabled,
	}, nil
}

func newCropper(c *config.Config) (*cropper.HeadshotCropper, error) {
	detector, err := newDetector(c)
	if err != nil {
		return nil, err
	}
	opts, err := cropperOptions(c)
	if err != nil {
		return nil, err
	}
	hc := cropper.New(detector, opts)
	if c.Background.URL != "" {
		hc.SetRemover(background.NewRembgClient(c.Background.URL))
	}
	return hc, nil
}
