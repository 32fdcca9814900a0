package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/agent-forge/agent-forge/internal/config"
	"github.com/agent-forge/agent-forge/models"
	"github.com/spf13/cobra"
)

var agentsAddr string

var agentsCmd = &cobra.Command{
	Use:   "agents",
	Short: "Inspect and control the agent registry of a running orchestrator",
	Long:  `Queries a running orchestrator's HTTP control surface to list registered agents, or to enable/disable one.`,
}

var agentsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List registered agents and their runtime state",
	RunE:  runAgentsList,
}

var agentsEnableCmd = &cobra.Command{
	Use:   "enable <agent-id>",
	Short: "Re-enable a disabled agent",
	Args:  cobra.ExactArgs(1),
	RunE:  runAgentsSetEnabled(true),
}

var agentsDisableCmd = &cobra.Command{
	Use:   "disable <agent-id>",
	Short: "Disable an agent (in-flight work drains, no new work is claimed)",
	Args:  cobra.ExactArgs(1),
	RunE:  runAgentsSetEnabled(false),
}

func init() {
	agentsCmd.PersistentFlags().StringVar(&agentsAddr, "addr", "",
		"orchestrator control API address (default: derived from config.monitor.addr)")
	agentsCmd.AddCommand(agentsListCmd, agentsEnableCmd, agentsDisableCmd)
}

func controlPlaneBaseURL() (string, error) {
	if agentsAddr != "" {
		return "http://" + strings.TrimPrefix(agentsAddr, "http://"), nil
	}
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return "", fmt.Errorf("loading config: %w", err)
	}
	return "http://" + cfg.Monitor.Addr, nil
}

func runAgentsList(cmd *cobra.Command, args []string) error {
	base, err := controlPlaneBaseURL()
	if err != nil {
		return err
	}

	client := &http.Client{Timeout: 5 * time.Second}
	resp, err := client.Get(base + "/agents")
	if err != nil {
		return fmt.Errorf("contacting orchestrator at %s: %w", base, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("orchestrator returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var agents []models.Agent
	if err := json.NewDecoder(resp.Body).Decode(&agents); err != nil {
		return fmt.Errorf("decoding agent list: %w", err)
	}

	fmt.Printf("%-24s %-12s %-10s %-10s %s\n", "ID", "ROLE", "LIFECYCLE", "STATE", "NOTES")
	for _, a := range agents {
		note := ""
		switch {
		case a.RuntimeState == models.StateError:
			note = a.ErrorReason
		case a.RuntimeState == models.StateWorking:
			note = "task=" + a.WorkingTaskID
		case !a.Enabled:
			note = "disabled"
		}
		fmt.Printf("%-24s %-12s %-10s %-10s %s\n", a.ID, a.Role, a.Lifecycle, a.RuntimeState, note)
	}
	return nil
}

func runAgentsSetEnabled(enabled bool) func(cmd *cobra.Command, args []string) error {
	return func(cmd *cobra.Command, args []string) error {
		base, err := controlPlaneBaseURL()
		if err != nil {
			return err
		}
		id := args[0]

		action := "disable"
		if enabled {
			action = "enable"
		}

		client := &http.Client{Timeout: 5 * time.Second}
		resp, err := client.Post(base+"/agents/"+id+"/"+action, "application/json", nil)
		if err != nil {
			return fmt.Errorf("contacting orchestrator at %s: %w", base, err)
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
			return fmt.Errorf("orchestrator returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
		}

		fmt.Printf("%s: %sd\n", id, action)
		return nil
	}
}
