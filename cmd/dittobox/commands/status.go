package commands

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/marmos91/dittobox/internal/cli/output"
	"github.com/marmos91/dittobox/internal/cli/timeutil"
	"github.com/marmos91/dittobox/pkg/api"
	"github.com/marmos91/dittobox/pkg/server"
)

var (
	statusOutput  string
	statusAPIHost string
	statusAPIPort int
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show server status",
	Long: `Display the pipeline status of a running DittoBox server.

This command calls the stats endpoint of the HTTP API and shows queue
depths, pool sizes and task counters. The API must be enabled.

Examples:
  # Check status (uses default settings)
  dittobox status

  # Check status with custom API port
  dittobox status --api-port 9080

  # Output as JSON
  dittobox status --output json`,
	RunE: runStatus,
}

func init() {
	statusCmd.Flags().StringVar(&statusAPIHost, "api-host", "localhost", "API server host")
	statusCmd.Flags().IntVar(&statusAPIPort, "api-port", api.DefaultPort, "API server port")
	statusCmd.Flags().StringVarP(&statusOutput, "output", "o", "table", "Output format (table|json|yaml)")
}

type statsResponse struct {
	Status string       `json:"status"`
	Data   server.Stats `json:"data"`
	Error  string       `json:"error,omitempty"`
}

type healthResponse struct {
	Status string `json:"status"`
	Data   struct {
		StartedAt string `json:"started_at"`
		UptimeSec int64  `json:"uptime_sec"`
	} `json:"data"`
}

// statusReport is what the status command prints.
type statusReport struct {
	Healthy   bool         `json:"healthy" yaml:"healthy"`
	StartedAt string       `json:"started_at,omitempty" yaml:"started_at,omitempty"`
	Uptime    string       `json:"uptime,omitempty" yaml:"uptime,omitempty"`
	Pipeline  server.Stats `json:"pipeline" yaml:"pipeline"`
}

func (r statusReport) Headers() []string {
	return []string{"Metric", "Value"}
}

func (r statusReport) Rows() [][]string {
	queue := func(q server.QueueStats) string {
		v := fmt.Sprintf("%d/%d", q.Depth, q.Capacity)
		if q.Closed {
			v += " (closed)"
		}
		return v
	}
	s := r.Pipeline
	rows := [][]string{{"Healthy", strconv.FormatBool(r.Healthy)}}
	if r.StartedAt != "" {
		rows = append(rows,
			[]string{"Started", timeutil.FormatTime(r.StartedAt)},
			[]string{"Uptime", r.Uptime})
	}
	return append(rows,
		[]string{"Accepting", strconv.FormatBool(s.Accepting)},
		[]string{"Connection queue", queue(s.ConnectionQueue)},
		[]string{"Task queue", queue(s.TaskQueue)},
		[]string{"Session handlers", fmt.Sprintf("%d busy of %d", s.BusyHandlers, s.SessionHandlers)},
		[]string{"Storage workers", fmt.Sprintf("%d busy of %d", s.BusyWorkers, s.StorageWorkers)},
		[]string{"Active connections", strconv.Itoa(int(s.ActiveConnections))},
		[]string{"Tasks completed", strconv.FormatUint(s.TasksCompleted, 10)},
		[]string{"Tasks failed", strconv.FormatUint(s.TasksFailed, 10)},
	)
}

func getJSON(client *http.Client, url string, v any) (int, error) {
	resp, err := client.Get(url)
	if err != nil {
		return 0, fmt.Errorf("server not reachable at %s: %w", url, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		return resp.StatusCode, fmt.Errorf("invalid response from %s: %w", url, err)
	}
	return resp.StatusCode, nil
}

func runStatus(cmd *cobra.Command, args []string) error {
	format, err := output.ParseFormat(statusOutput)
	if err != nil {
		return err
	}

	base := fmt.Sprintf("http://%s:%d", statusAPIHost, statusAPIPort)
	client := &http.Client{Timeout: 2 * time.Second}

	var stats statsResponse
	code, err := getJSON(client, base+"/api/v1/stats", &stats)
	if err != nil {
		return err
	}
	if code != http.StatusOK {
		return fmt.Errorf("stats request failed: HTTP %d %s", code, stats.Error)
	}

	report := statusReport{Pipeline: stats.Data}

	var health healthResponse
	if _, err := getJSON(client, base+"/health", &health); err == nil {
		report.Healthy = health.Status == "healthy"
		report.StartedAt = health.Data.StartedAt
		report.Uptime = timeutil.FormatUptime(time.Duration(health.Data.UptimeSec) * time.Second)
	}

	return output.NewPrinter(cmd.OutOrStdout(), format, false).Print(report)
}
