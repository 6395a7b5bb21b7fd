package cmd

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"mcphub/internal/config"
	"mcphub/internal/hub"
	"mcphub/internal/status"
)

// statusEndpoint is the base URL of a running hub's HTTP API.
var statusEndpoint string

// statusCmd queries a running hub over its HTTP API.
var statusCmd = &cobra.Command{
	Use:   "status [server-id]",
	Short: "Show the status of a running hub or one of its servers",
	Long: `Queries a running hub over its HTTP API. Without arguments it prints
the system overview; with a server id it prints that server's record.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runStatus,
}

// apiEnvelope mirrors the hub API's response envelope.
type apiEnvelope struct {
	Success bool            `json:"success"`
	Message string          `json:"message,omitempty"`
	Data    json.RawMessage `json:"data,omitempty"`
}

func runStatus(cmd *cobra.Command, args []string) error {
	client := &http.Client{Timeout: 10 * time.Second}

	if len(args) == 1 {
		return printServerStatus(cmd, client, args[0])
	}
	return printSystemStatus(cmd, client)
}

func fetchData(client *http.Client, url string) (json.RawMessage, error) {
	resp, err := client.Get(url)
	if err != nil {
		return nil, fmt.Errorf("could not reach hub at %s: %w", statusEndpoint, err)
	}
	defer resp.Body.Close()

	var envelope apiEnvelope
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		return nil, fmt.Errorf("invalid response from hub: %w", err)
	}
	if !envelope.Success {
		return nil, fmt.Errorf("hub error: %s", envelope.Message)
	}
	return envelope.Data, nil
}

func printSystemStatus(cmd *cobra.Command, client *http.Client) error {
	data, err := fetchData(client, statusEndpoint+"/api/status")
	if err != nil {
		return err
	}

	var overview status.Overview
	if err := json.Unmarshal(data, &overview); err != nil {
		return fmt.Errorf("invalid overview payload: %w", err)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Servers: %d total, %d healthy, %d unhealthy\n",
		overview.TotalServers, overview.Healthy, overview.Unhealthy)
	for _, rec := range overview.Servers {
		line := fmt.Sprintf("  %-20s %-15s port %d", rec.Config.ID, rec.Status, rec.Config.Port)
		if rec.ErrorMessage != "" {
			line += "  (" + rec.ErrorMessage + ")"
		}
		fmt.Fprintln(out, line)
	}
	return nil
}

func printServerStatus(cmd *cobra.Command, client *http.Client, id string) error {
	data, err := fetchData(client, statusEndpoint+"/api/servers/"+id)
	if err != nil {
		return err
	}

	var rec hub.ServerRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return fmt.Errorf("invalid server payload: %w", err)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Server:  %s\n", rec.Config.ID)
	fmt.Fprintf(out, "Type:    %s\n", rec.Config.Type)
	fmt.Fprintf(out, "Status:  %s\n", rec.Status)
	fmt.Fprintf(out, "Port:    %d\n", rec.Config.Port)
	if rec.PID != 0 {
		fmt.Fprintf(out, "PID:     %d\n", rec.PID)
	}
	if !rec.StartTime.IsZero() {
		fmt.Fprintf(out, "Started: %s\n", rec.StartTime.Format(time.RFC3339))
	}
	if rec.ErrorMessage != "" {
		fmt.Fprintf(out, "Error:   %s\n", rec.ErrorMessage)
	}
	if rec.Metrics != nil {
		fmt.Fprintf(out, "CPU:     %.1f%%\n", rec.Metrics.CPUPercent)
		fmt.Fprintf(out, "Latency: %.1fms\n", rec.Metrics.ResponseTimeMs)
	}
	return nil
}

func init() {
	rootCmd.AddCommand(statusCmd)

	statusCmd.Flags().StringVar(&statusEndpoint, "endpoint",
		"http://"+config.DefaultListenAddress, "Base URL of the hub's HTTP API")
}
