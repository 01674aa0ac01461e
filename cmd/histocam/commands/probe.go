package commands

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/bryanchriswhite/histocam/internal/capture"
	"github.com/bryanchriswhite/histocam/internal/frame"
	"github.com/bryanchriswhite/histocam/internal/pipeline"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

var probeCmd = &cobra.Command{
	Use:   "probe",
	Short: "Capture one frame and summarize its histogram",
	Long: `Open the configured capture source, read a single frame and print a
per-channel summary of its intensity histogram. Nothing is written to disk.

Useful to check that a device works before running the server.`,
	Example: `  # Probe the default device
  histocam probe

  # Probe a specific device in grayscale, as JSON
  histocam probe --device /dev/video2 --grayscale --format json`,
	RunE: runProbe,
}

var (
	probeFormat    string
	probeGrayscale bool
	probeTimeout   time.Duration
	probeBins      bool
)

func init() {
	rootCmd.AddCommand(probeCmd)

	probeCmd.Flags().StringVarP(&probeFormat, "format", "f", "table", "output format (table, json or yaml)")
	probeCmd.Flags().BoolVarP(&probeGrayscale, "grayscale", "g", false, "convert the frame to grayscale first")
	probeCmd.Flags().DurationVarP(&probeTimeout, "timeout", "t", 5*time.Second, "how long to wait for a frame")
	probeCmd.Flags().BoolVar(&probeBins, "bins", false, "include all 256 bin counts (json and yaml only)")
}

type channelReport struct {
	Channel int     `json:"channel" yaml:"channel"`
	Name    string  `json:"name" yaml:"name"`
	Pixels  int     `json:"pixels" yaml:"pixels"`
	Mode    int     `json:"mode" yaml:"mode"`
	Mean    float64 `json:"mean" yaml:"mean"`
	Min     int     `json:"min" yaml:"min"`
	Max     int     `json:"max" yaml:"max"`
	Bins    []int   `json:"bins,omitempty" yaml:"bins,omitempty,flow"`
}

type probeReport struct {
	Source    string          `json:"source" yaml:"source"`
	Width     int             `json:"width" yaml:"width"`
	Height    int             `json:"height" yaml:"height"`
	Grayscale bool            `json:"grayscale" yaml:"grayscale"`
	Channels  []channelReport `json:"channels" yaml:"channels"`
}

func runProbe(cmd *cobra.Command, args []string) error {
	_, cfg, err := loadConfig()
	if err != nil {
		return err
	}

	source, err := capture.New(cfg.Source)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), probeTimeout)
	defer cancel()

	buf, err := readOneFrame(ctx, source)
	if err != nil {
		return err
	}

	result := pipeline.Process(buf, probeGrayscale, cfg.Chart.Width, cfg.Chart.Height)
	report := buildReport(source.Name(), result, probeBins)

	return writeReport(os.Stdout, report, probeFormat)
}

// readOneFrame opens source and retries reads until a frame arrives or ctx ends
func readOneFrame(ctx context.Context, source capture.FrameSource) (*frame.Buffer, error) {
	if err := source.Open(ctx); err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", source.Name(), err)
	}
	defer source.Close()

	for {
		buf, err := source.Read()
		if err == nil && !buf.Empty() {
			if err := buf.Validate(); err != nil {
				return nil, fmt.Errorf("bad frame from %s: %w", source.Name(), err)
			}
			return buf, nil
		}
		if err != nil && !errors.Is(err, capture.ErrNoFrame) {
			return nil, fmt.Errorf("failed to read from %s: %w", source.Name(), err)
		}

		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("no frame from %s: %w", source.Name(), ctx.Err())
		case <-time.After(50 * time.Millisecond):
		}
	}
}

// channelName names channel i of a frame with n channels
func channelName(i, n int) string {
	if n == 1 {
		return "gray"
	}
	switch i {
	case frame.Blue:
		return "blue"
	case frame.Green:
		return "green"
	case frame.Red:
		return "red"
	default:
		return fmt.Sprintf("channel %d", i)
	}
}

func buildReport(source string, r *pipeline.Result, withBins bool) probeReport {
	report := probeReport{
		Source:    source,
		Width:     r.Frame.Width,
		Height:    r.Frame.Height,
		Grayscale: r.Grayscale,
	}

	for _, h := range r.Histograms {
		lo, hi := -1, -1
		for level, count := range h.Bins {
			if count == 0 {
				continue
			}
			if lo < 0 {
				lo = level
			}
			hi = level
		}

		cr := channelReport{
			Channel: h.Channel,
			Name:    channelName(h.Channel, len(r.Histograms)),
			Pixels:  h.Total(),
			Mode:    h.Mode(),
			Mean:    h.Mean(),
			Min:     lo,
			Max:     hi,
		}
		if withBins {
			cr.Bins = append([]int(nil), h.Bins[:]...)
		}
		report.Channels = append(report.Channels, cr)
	}
	return report
}

func writeReport(out io.Writer, report probeReport, format string) error {
	switch format {
	case "json":
		encoder := json.NewEncoder(out)
		encoder.SetIndent("", "  ")
		return encoder.Encode(report)
	case "yaml":
		encoder := yaml.NewEncoder(out)
		encoder.SetIndent(2)
		return encoder.Encode(report)
	case "table":
		return printReportTable(out, report)
	default:
		return fmt.Errorf("unsupported format: %s (use 'table', 'json' or 'yaml')", format)
	}
}

func printReportTable(out io.Writer, report probeReport) error {
	mode := "colour"
	if report.Grayscale {
		mode = "grayscale"
	}
	fmt.Fprintf(out, "Source: %s\n", report.Source)
	fmt.Fprintf(out, "Frame:  %dx%d %s\n\n", report.Width, report.Height, mode)

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	defer w.Flush()

	fmt.Fprintln(w, "CHANNEL\tPIXELS\tMIN\tMAX\tMODE\tMEAN")
	fmt.Fprintln(w, "-------\t------\t---\t---\t----\t----")
	for _, c := range report.Channels {
		fmt.Fprintf(w, "%s\t%d\t%d\t%d\t%d\t%.1f\n", c.Name, c.Pixels, c.Min, c.Max, c.Mode, c.Mean)
	}
	return nil
}
