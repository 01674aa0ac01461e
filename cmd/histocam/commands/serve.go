package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/bryanchriswhite/histocam/internal/api"
	"github.com/bryanchriswhite/histocam/internal/capture"
	"github.com/bryanchriswhite/histocam/internal/frame"
	"github.com/bryanchriswhite/histocam/internal/logger"
	"github.com/bryanchriswhite/histocam/internal/output"
	"github.com/bryanchriswhite/histocam/internal/pipeline"
	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the histocam server",
	Long: `Start the histocam HTTP server.

The server shows the live frame and its histogram chart as two MJPEG streams
on a control page with a start/stop button and a grayscale checkbox. Capture
can also be driven through the REST API.`,
	Example: `  # Start server on default port (8080)
  histocam serve

  # Capture from a second camera and start immediately
  histocam serve --device /dev/video2 --autostart

  # Try it without a camera
  histocam serve --backend testpattern --autostart

  # Start with debug logging
  histocam serve --log-level debug --log-pretty`,
	RunE: runServe,
}

var serveAutostart bool

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().BoolVar(&serveAutostart, "autostart", false, "start capturing immediately (also capture.autostart)")
}

func runServe(cmd *cobra.Command, args []string) error {
	configMgr, cfg, err := loadConfig()
	if err != nil {
		return err
	}

	initLogging(cfg.LogLevel, cfg.LogPretty)
	log := logger.WithComponent("serve")
	log.Info().
		Str("config", configMgr.GetConfigPath()).
		Str("backend", cfg.Source.Backend).
		Str("device", cfg.Source.Device).
		Msg("Configuration loaded")

	source, err := capture.New(cfg.Source)
	if err != nil {
		return err
	}

	display := output.NewDisplay(cfg.Output)
	if err := display.Start(); err != nil {
		return fmt.Errorf("failed to start outputs: %w", err)
	}
	defer display.Stop()

	sourceName := source.Name()
	display.SetLabeler(func(slot pipeline.Slot, img *frame.Buffer) string {
		mode := "colour"
		if img.Channels == 1 {
			mode = "gray"
		}
		return fmt.Sprintf("%s  %s  %s", sourceName, mode, time.Now().Format("15:04:05"))
	})

	scheduler := pipeline.NewScheduler(source, display, pipeline.OptionsFromConfig(cfg))
	defer scheduler.Stop()

	server := api.NewServer(scheduler, display, configMgr)

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Start(cfg.ServerPort)
	}()

	if serveAutostart || cfg.Capture.Autostart {
		if err := scheduler.Start(cmd.Context()); err != nil {
			// the server stays up so capture can be retried from the page
			log.Error().Err(err).Msg("Autostart failed")
		}
	}

	log.Info().Msgf("histocam is running: http://localhost:%d (Ctrl+C to stop)", cfg.ServerPort)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	select {
	case sig := <-sigChan:
		log.Info().Str("signal", sig.String()).Msg("Shutting down gracefully")
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
	}

	// Streams end once their outputs stop, so Shutdown does not wait on them
	scheduler.Stop()
	display.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		log.Warn().Err(err).Msg("HTTP shutdown did not complete")
	}
	return nil
}
