package cmd

import (
	"fmt"

	"github.com/agent-forge/agent-forge/internal/config"
	"github.com/agent-forge/agent-forge/internal/tui"
	"github.com/spf13/cobra"
)

var monitorURL string

var monitorCmd = &cobra.Command{
	Use:   "monitor",
	Short: "Launch the terminal event-stream dashboard",
	Long:  `Opens a live terminal dashboard that dials a running orchestrator's /monitor websocket endpoint and renders the bus event stream as it arrives.`,
	RunE:  runMonitor,
}

func init() {
	monitorCmd.Flags().StringVar(&monitorURL, "url", "",
		"monitor websocket URL (default: derived from config.monitor.addr)")
}

func runMonitor(cmd *cobra.Command, args []string) error {
	url := monitorURL
	if url == "" {
		cfg, err := config.Load(cfgFile)
		if err != nil {
			return fmt.Errorf("loading config: %w", err)
		}
		url = "ws://" + cfg.Monitor.Addr + "/monitor"
	}

	app := tui.NewApp(url)
	return app.Run()
}
