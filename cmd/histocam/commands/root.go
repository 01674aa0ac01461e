package commands

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/bryanchriswhite/histocam/internal/config"
	"github.com/bryanchriswhite/histocam/internal/logger"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	cfgFile string

	// CLI output goes to stdout, logs go here
	logOutput io.Writer = os.Stderr

	rootCmd = &cobra.Command{
		Use:   "histocam",
		Short: "histocam - live camera view with a per-channel histogram",
		Long: `histocam captures frames from a video device at a fixed rate and shows the
live frame next to a line chart of its per-channel intensity histogram.

Features:
  • Capture through gst-launch, in-process GStreamer or OpenCV
  • Blue/green/red histogram traces, or a single gray trace
  • Grayscale toggle that applies from the next frame
  • MJPEG viewports and a control page in the browser
  • REST API and websocket feed of per-frame histograms
  • Persistent configuration`,
		SilenceUsage: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			initLogging(viper.GetString("log_level"), viper.GetBool("log_pretty"))
		},
	}
)

func init() {
	cobra.OnInitialize(initConfig)

	// Global flags
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.config/histocam/config.yaml)")
	rootCmd.PersistentFlags().Int("port", 0, "server port (default is 8080)")
	rootCmd.PersistentFlags().String("log-level", "", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().Bool("log-pretty", false, "human readable log output")
	rootCmd.PersistentFlags().String("backend", "", "capture backend (see 'histocam backends')")
	rootCmd.PersistentFlags().String("device", "", "capture device, e.g. /dev/video0")

	// Bind flags to viper
	viper.BindPFlag("server_port", rootCmd.PersistentFlags().Lookup("port"))
	viper.BindPFlag("log_level", rootCmd.PersistentFlags().Lookup("log-level"))
	viper.BindPFlag("log_pretty", rootCmd.PersistentFlags().Lookup("log-pretty"))
	viper.BindPFlag("source.backend", rootCmd.PersistentFlags().Lookup("backend"))
	viper.BindPFlag("source.device", rootCmd.PersistentFlags().Lookup("device"))
}

func initLogging(level string, pretty bool) {
	logger.InitWithWriter(level, pretty, logOutput)
}

func initConfig() {
	// HISTOCAM_SERVER_PORT, HISTOCAM_SOURCE_DEVICE, ...
	viper.SetEnvPrefix("histocam")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()
}

// Execute runs the root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// GetConfigFile returns the config file path
func GetConfigFile() string {
	return cfgFile
}

// loadConfig opens the config file and applies flag and environment
// overrides to the returned copy. Overrides are not saved.
func loadConfig() (*config.Manager, *config.Config, error) {
	configMgr, err := config.NewManager(GetConfigFile())
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load config: %w", err)
	}

	cfg := configMgr.Get()
	applyOverrides(viper.GetViper(), cfg)

	if err := cfg.Validate(); err != nil {
		return nil, nil, err
	}
	return configMgr, cfg, nil
}

// applyOverrides copies every override set in v onto cfg
func applyOverrides(v *viper.Viper, cfg *config.Config) {
	if v.IsSet("server_port") {
		if port := v.GetInt("server_port"); port > 0 {
			cfg.ServerPort = port
		}
	}
	if v.IsSet("log_level") {
		if level := v.GetString("log_level"); level != "" {
			cfg.LogLevel = level
		}
	}
	if v.IsSet("log_pretty") {
		cfg.LogPretty = v.GetBool("log_pretty")
	}
	if v.IsSet("source.backend") {
		if backend := v.GetString("source.backend"); backend != "" {
			cfg.Source.Backend = backend
		}
	}
	if v.IsSet("source.device") {
		if device := v.GetString("source.device"); device != "" {
			cfg.Source.Device = device
		}
	}
}
