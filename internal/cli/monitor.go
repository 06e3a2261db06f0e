package cli

import (
	"context"
	"fmt"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/ppiankov/rollcall/internal/model"
	"github.com/ppiankov/rollcall/internal/pipeline"
)

var (
	healthJSON bool
	healthAI   bool
	alertsAll  bool
	alertsJSON bool
)

var pipelineBreakerCmd = &cobra.Command{
	Use:   "breaker",
	Short: "Inspect or reset the AI circuit breaker",
}

var pipelineBreakerStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the last recorded circuit breaker state",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		a, err := newApp(ctx)
		if err != nil {
			return err
		}
		defer a.Close()

		state, err := a.persistedBreakerState(ctx)
		if err != nil {
			return err
		}
		fmt.Println(state)
		return nil
	},
}

var pipelineBreakerResetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Record a breaker reset and acknowledge its alerts",
	Long: `Reset records a circuit_breaker_closed event and acknowledges open circuit
breaker alerts. A running 'pipeline run --watch' process holds its own breaker;
send it SIGHUP to reset that one.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		a, err := newApp(ctx)
		if err != nil {
			return err
		}
		defer a.Close()

		acked, err := a.resetBreaker(ctx)
		if err != nil {
			return err
		}
		fmt.Printf("✓ Circuit breaker reset (%d alerts acknowledged)\n", acked)
		return nil
	},
}

var pipelineHealthCmd = &cobra.Command{
	Use:   "health",
	Short: "Run the pipeline health checks and raise alerts",
	Long: `Health evaluates failure rate, end-to-end latency, queue depth,
disambiguation backlog, circuit breaker state and inactivity. Breached
thresholds raise alerts unless an unacknowledged alert of the same type exists.`,
	Args: cobra.NoArgs,
	RunE: runHealth,
}

var pipelineAlertsCmd = &cobra.Command{
	Use:   "alerts",
	Short: "List pipeline alerts",
	Args:  cobra.NoArgs,
	RunE:  runAlerts,
}

var pipelineAlertsAckCmd = &cobra.Command{
	Use:   "ack <alert-id>",
	Short: "Acknowledge an alert",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := strconv.ParseUint(args[0], 10, 64)
		if err != nil {
			return fmt.Errorf("invalid alert id %q: %w", args[0], err)
		}

		ctx := cmd.Context()
		a, err := newApp(ctx)
		if err != nil {
			return err
		}
		defer a.Close()

		if err := a.store.AcknowledgeAlert(ctx, uint(id)); err != nil {
			return err
		}
		fmt.Printf("✓ Alert %d acknowledged\n", id)
		return nil
	},
}

func init() {
	pipelineCmd.AddCommand(pipelineBreakerCmd)
	pipelineBreakerCmd.AddCommand(pipelineBreakerStatusCmd)
	pipelineBreakerCmd.AddCommand(pipelineBreakerResetCmd)
	pipelineCmd.AddCommand(pipelineHealthCmd)
	pipelineCmd.AddCommand(pipelineAlertsCmd)
	pipelineAlertsCmd.AddCommand(pipelineAlertsAckCmd)

	pipelineHealthCmd.Flags().BoolVar(&healthJSON, "json", false, "print JSON")
	pipelineHealthCmd.Flags().BoolVar(&healthAI, "check-ai", false, "also check that the AI service answers")
	pipelineAlertsCmd.Flags().BoolVar(&alertsAll, "all", false, "include acknowledged alerts")
	pipelineAlertsCmd.Flags().BoolVar(&alertsJSON, "json", false, "print JSON")
}

// persistedBreakerState derives the breaker state from the newest breaker event
func (a *app) persistedBreakerState(ctx context.Context) (string, error) {
	opened, hasOpened, err := a.store.LastEventTime(ctx, model.EventCircuitBreakerOpened)
	if err != nil {
		return "", err
	}
	closed, hasClosed, err := a.store.LastEventTime(ctx, model.EventCircuitBreakerClosed)
	if err != nil {
		return "", err
	}
	if hasOpened && (!hasClosed || opened.After(closed)) {
		return pipeline.StateOpen.String(), nil
	}
	return pipeline.StateClosed.String(), nil
}

func (a *app) resetBreaker(ctx context.Context) (int, error) {
	// Reset records the closed event itself when it moves an open breaker
	if a.runner.Breaker().State() == pipeline.StateClosed {
		a.runner.Tracker().EmitSystem(ctx, model.PipelineEvent{EventType: model.EventCircuitBreakerClosed})
	}
	a.runner.Breaker().Reset()

	alerts, err := a.store.Alerts(ctx, false)
	if err != nil {
		return 0, err
	}
	acked := 0
	for _, al := range alerts {
		if al.AlertType != model.AlertCircuitBreakerOpen {
			continue
		}
		if err := a.store.AcknowledgeAlert(ctx, al.ID); err != nil {
			return acked, err
		}
		acked++
	}
	return acked, nil
}

func runHealth(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	report, err := a.health.Check(ctx)
	if err != nil {
		return err
	}
	if healthAI {
		if err := a.checkAI(ctx); err != nil {
			return err
		}
	}
	if healthJSON {
		return printJSON(report)
	}

	printHeader(os.Stdout, "Pipeline Health")
	tw := newTable()
	_, _ = fmt.Fprintln(tw, "  CHECK\tSTATUS\tVALUE\tTHRESHOLD")
	for _, c := range report.Checks {
		status := "ok"
		if !c.Healthy {
			status = "ALERT"
		}
		_, _ = fmt.Fprintf(tw, "  %s\t%s\t%.2f\t%.2f\n", c.Name, status, c.Value, c.Threshold)
	}
	_ = tw.Flush()

	if len(report.Raised) > 0 {
		fmt.Println("\nRaised:")
		for _, al := range report.Raised {
			fmt.Printf("  [%s] %s: %s\n", al.Severity, al.AlertType, al.Message)
		}
	}
	if !report.Healthy() {
		return fmt.Errorf("pipeline unhealthy")
	}
	return nil
}

func (a *app) checkAI(ctx context.Context) error {
	if a.ai == nil {
		fmt.Fprintln(os.Stderr, "AI service disabled (ai.provider is empty)")
		return nil
	}
	if err := a.ai.IsAvailable(ctx); err != nil {
		return err
	}
	fmt.Fprintf(os.Stderr, "✓ AI service reachable (model %s)\n", a.ai.Model())
	return nil
}

func runAlerts(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	alerts, err := a.store.Alerts(ctx, alertsAll)
	if err != nil {
		return err
	}
	if alertsJSON {
		return printJSON(alerts)
	}
	if len(alerts) == 0 {
		fmt.Println("No alerts")
		return nil
	}

	tw := newTable()
	_, _ = fmt.Fprintln(tw, "ID\tSEVERITY\tTYPE\tCREATED\tACKED\tMESSAGE")
	for _, al := range alerts {
		_, _ = fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%t\t%s\n",
			al.ID, al.Severity, al.AlertType, formatTime(al.CreatedAt), al.Acknowledged, al.Message)
	}
	return tw.Flush()
}
