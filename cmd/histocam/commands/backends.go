package commands

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/bryanchriswhite/histocam/internal/capture"
	"github.com/spf13/cobra"
)

var backendsCmd = &cobra.Command{
	Use:   "backends",
	Short: "List capture backends",
	Long: `List the capture backends compiled into this binary.

The gstreamer and opencv backends need cgo and are only present when built
with the 'gst' or 'gocv' build tag.`,
	Example: `  # List backends in table format (default)
  histocam backends

  # List backends in JSON format
  histocam backends --format json`,
	RunE: runBackends,
}

var backendsFormat string

var backendDescriptions = map[string]string{
	"gst-launch":  "gst-launch-1.0 subprocess (v4l2src), raw BGR over a pipe",
	"gstreamer":   "in-process GStreamer pipeline with an appsink",
	"opencv":      "OpenCV VideoCapture",
	"testpattern": "synthetic colour bars, no device needed",
}

type backendInfo struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Selected    bool   `json:"selected"`
}

func init() {
	rootCmd.AddCommand(backendsCmd)

	backendsCmd.Flags().StringVarP(&backendsFormat, "format", "f", "table", "output format (table or json)")
}

func runBackends(cmd *cobra.Command, args []string) error {
	_, cfg, err := loadConfig()
	if err != nil {
		return err
	}

	backends := listBackends(cfg.Source.Backend)

	switch backendsFormat {
	case "json":
		encoder := json.NewEncoder(os.Stdout)
		encoder.SetIndent("", "  ")
		return encoder.Encode(backends)
	case "table":
		return printBackendsTable(os.Stdout, backends)
	default:
		return fmt.Errorf("unsupported format: %s (use 'table' or 'json')", backendsFormat)
	}
}

func listBackends(selected string) []backendInfo {
	names := capture.Backends()
	backends := make([]backendInfo, 0, len(names))
	for _, name := range names {
		backends = append(backends, backendInfo{
			Name:        name,
			Description: backendDescriptions[name],
			Selected:    name == selected,
		})
	}
	return backends
}

func printBackendsTable(out io.Writer, backends []backendInfo) error {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	defer w.Flush()

	fmt.Fprintln(w, "NAME\tSELECTED\tDESCRIPTION")
	fmt.Fprintln(w, "----\t--------\t-----------")

	for _, b := range backends {
		selected := "No"
		if b.Selected {
			selected = "Yes"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\n", b.Name, selected, b.Description)
	}

	return nil
}
