package main

import (
	"fmt"
	"log"
	"time"

	"github.com/spf13/cobra"

	"github.com/menta2k/headshot/internal/server"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the headshot API over HTTP",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		port, _ := cmd.Flags().GetInt("port")
		if cmd.Flags().Changed("port") {
			cfg.Server.Port = port
		}

		hc, err := newCropper(cfg)
		if err != nil {
			return err
		}
		app := server.New(hc, cfg)

		ctx := cmd.Context()
		go func() {
			<-ctx.Done()
			log.Printf("shutting down")
			if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
				log.Printf("shutdown: %v", err)
			}
		}()

		addr := fmt.Sprintf(":%d", cfg.Server.Port)
		log.Printf("listening on %s (detector %s, preset %s)", addr, cfg.Detector.Backend, cfg.Composition.Preset)
		return app.Listen(addr)
	},
}

func init() {
	serveCmd.Flags().Int("port", 0, "listen port (default from config)")
	rootCmd.AddCommand(serveCmd)
}
