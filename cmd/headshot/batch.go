package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"runtime"
	"sync"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/menta2k/headshot/internal/utils"
	"github.com/menta2k/headshot/pkg/cropper"
	"github.com/menta2k/headshot/pkg/processing"
)

var (
	batchJobs      int
	batchRecursive bool
)

var batchCmd = &cobra.Command{
	Use:   "batch <directory>",
	Short: "Crop every image in a directory",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runBatch(cmd.Context(), args[0])
	},
}

func init() {
	batchCmd.Flags().IntVarP(&batchJobs, "jobs", "j", runtime.NumCPU(), "images processed concurrently")
	batchCmd.Flags().BoolVarP(&batchRecursive, "recursive", "r", false, "descend into subdirectories")
	rootCmd.AddCommand(batchCmd)
}

type batchFailure struct {
	path string
	err  error
}

func runBatch(ctx context.Context, dir string) error {
	files, err := utils.ListImageFiles(dir, utils.ListOptions{
		Recursive:  batchRecursive,
		SkipDir:    cfg.Output.OutputDir,
		SkipSuffix: cfg.Output.Suffix,
	})
	if err != nil {
		return fmt.Errorf("failed to list %s: %w", dir, err)
	}
	if len(files) == 0 {
		fmt.Println("No images found.")
		return nil
	}

	hc, err := newCropper(cfg)
	if err != nil {
		return err
	}
	if err := utils.EnsureDir(cfg.Output.OutputDir); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}
	format := processing.NormalizeFormat(cfg.Output.Format)

	bar := progressbar.NewOptions(len(files),
		progressbar.OptionSetDescription("Cropping"),
		progressbar.OptionSetWriter(os.Stderr),
		progressbar.OptionShowCount(),
	)

	var mu sync.Mutex
	var failures []batchFailure
	var written int64

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(max(batchJobs, 1))

	outputs := utils.OutputPaths(files, dir, cfg.Output.OutputDir, cfg.Output.Suffix, format)

	for i, path := range files {
		out := outputs[i]
		g.Go(func() error {
			defer bar.Add(1)
			if ctx.Err() != nil {
				return ctx.Err()
			}

			data, err := os.ReadFile(path)
			if err == nil {
				var res *cropper.Result
				res, err = hc.Crop(ctx, data)
				if err == nil {
					err = utils.EnsureDir(filepath.Dir(out))
					if err == nil {
						err = os.WriteFile(out, res.Data, 0o644)
					}
					if err == nil {
						mu.Lock()
						written += int64(len(res.Data))
						mu.Unlock()
					}
				}
			}
			if err != nil {
				log.Printf("%s: %v", path, err)
				mu.Lock()
				failures = append(failures, batchFailure{path: path, err: err})
				mu.Unlock()
			}
			// One bad photo must not stop the batch
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return err
	}
	_ = bar.Finish()
	fmt.Fprintln(os.Stderr)

	fmt.Printf("%d of %d images cropped into %s (%s)\n", len(files)-len(failures), len(files), cfg.Output.OutputDir, utils.FormatFileSize(written))
	for _, f := range failures {
		fmt.Printf("  FAILED %s: %v\n", f.path, f.err)
	}
	if len(failures) > 0 {
		return fmt.Errorf("%d image(s) failed", len(failures))
	}
	return nil
}
