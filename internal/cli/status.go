package cli

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/ppiankov/rollcall/internal/model"
	"github.com/ppiankov/rollcall/internal/pipeline"
)

var (
	statusJSON   bool
	statusWindow time.Duration
	statusLimit  int

	eventsJSON bool

	retryStage   string
	cancelReason string
	rejectDraft  bool
)

// statusReport is the machine-readable form of pipeline status
type statusReport struct {
	GeneratedAt time.Time          `json:"generated_at"`
	Breaker     string             `json:"breaker"`
	Stages      []model.StageStats `json:"stages"`
	Counters    []model.Counter    `json:"counters"`
	Active      []model.Artifact   `json:"active"`
	Failed      []model.Artifact   `json:"failed"`
}

var pipelineStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show stage statistics and queued artifacts",
	Args:  cobra.NoArgs,
	RunE:  runStatus,
}

var pipelineEventsCmd = &cobra.Command{
	Use:   "events <artifact-id>",
	Short: "Show the event ledger of one artifact",
	Args:  cobra.ExactArgs(1),
	RunE:  runEvents,
}

var pipelineRetryCmd = &cobra.Command{
	Use:   "retry <artifact-id>",
	Short: "Re-run an artifact from a stage",
	Long: `Retry resets an artifact to the status preceding the given stage so the next
run repeats it. Without --stage the artifact's current stage is retried.

Stages: transcription, claims_extraction, entity_resolution, draft_generation, confirmation`,
	Args: cobra.ExactArgs(1),
	RunE: runRetry,
}

var pipelineCancelCmd = &cobra.Command{
	Use:   "cancel <artifact-id>",
	Short: "Stop processing an artifact",
	Args:  cobra.ExactArgs(1),
	RunE:  runCancel,
}

var pipelineConfirmCmd = &cobra.Command{
	Use:   "confirm <artifact-id>",
	Short: "Confirm or reject the drafts of an artifact awaiting confirmation",
	Args:  cobra.ExactArgs(1),
	RunE:  runConfirm,
}

func init() {
	pipelineCmd.AddCommand(pipelineStatusCmd)
	pipelineCmd.AddCommand(pipelineEventsCmd)
	pipelineCmd.AddCommand(pipelineRetryCmd)
	pipelineCmd.AddCommand(pipelineCancelCmd)
	pipelineCmd.AddCommand(pipelineConfirmCmd)

	pipelineStatusCmd.Flags().BoolVar(&statusJSON, "json", false, "print JSON")
	pipelineStatusCmd.Flags().DurationVar(&statusWindow, "window", 24*time.Hour, "stage statistics window")
	pipelineStatusCmd.Flags().IntVar(&statusLimit, "limit", 20, "max artifacts listed per section")

	pipelineEventsCmd.Flags().BoolVar(&eventsJSON, "json", false, "print JSON")

	pipelineRetryCmd.Flags().StringVar(&retryStage, "stage", "", "stage to retry (default: current stage)")
	pipelineCancelCmd.Flags().StringVar(&cancelReason, "reason", "", "cancellation reason")
	pipelineConfirmCmd.Flags().BoolVar(&rejectDraft, "reject", false, "reject instead of confirm")
}

func runStatus(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	now := time.Now()
	events, err := a.store.EventsSince(ctx, now.Add(-statusWindow))
	if err != nil {
		return err
	}
	counters, err := a.store.Counters(ctx)
	if err != nil {
		return err
	}
	active, err := a.store.ListArtifacts(ctx, model.ActiveStatuses(), statusLimit)
	if err != nil {
		return err
	}
	failed, err := a.store.ListArtifacts(ctx, []model.ArtifactStatus{model.StatusFailed}, statusLimit)
	if err != nil {
		return err
	}
	breaker, err := a.persistedBreakerState(ctx)
	if err != nil {
		return err
	}

	report := statusReport{
		GeneratedAt: now.UTC(),
		Breaker:     breaker,
		Stages:      pipeline.ComputeStageStats(events),
		Counters:    counters,
		Active:      active,
		Failed:      failed,
	}
	if statusJSON {
		return printJSON(report)
	}

	printHeader(os.Stdout, "Pipeline Status")
	fmt.Printf("  Circuit breaker: %s\n\n", report.Breaker)

	fmt.Printf("Stages (last %s):\n", statusWindow)
	tw := newTable()
	_, _ = fmt.Fprintln(tw, "  STAGE\tSTARTED\tCOMPLETED\tFAILED\tAVG MS\tFAILURE RATE")
	for _, s := range report.Stages {
		_, _ = fmt.Fprintf(tw, "  %s\t%d\t%d\t%d\t%.0f\t%.1f%%\n", s.Stage, s.Started, s.Completed, s.Failed, s.AvgLatencyMs, s.FailureRate*100)
	}
	_ = tw.Flush()

	if len(report.Counters) > 0 {
		fmt.Println("\nHourly counters:")
		tw = newTable()
		for _, c := range report.Counters {
			_, _ = fmt.Fprintf(tw, "  %s\t%d\t%s\n", c.Name, c.Value, c.TimeWindow)
		}
		_ = tw.Flush()
	}

	printArtifacts("Active", report.Active)
	printArtifacts("Failed", report.Failed)
	return nil
}

func printArtifacts(title string, list []model.Artifact) {
	fmt.Printf("\n%s artifacts (%d):\n", title, len(list))
	if len(list) == 0 {
		return
	}
	tw := newTable()
	_, _ = fmt.Fprintln(tw, "  ID\tSTATUS\tSTAGE\tRETRY\tNEXT ATTEMPT\tLAST ERROR")
	for _, art := range list {
		next := "-"
		if art.NextAttemptAt != nil {
			next = formatTime(*art.NextAttemptAt)
		}
		_, _ = fmt.Fprintf(tw, "  %s\t%s\t%s\t%d\t%s\t%s\n",
			art.ID, art.Status, art.PipelineStage, art.RetryAttempt, next, orDash(art.LastError))
	}
	_ = tw.Flush()
}

func runEvents(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	art, err := a.store.GetArtifact(ctx, args[0])
	if err != nil {
		return err
	}
	events, err := a.store.EventsForArtifact(ctx, art.ID)
	if err != nil {
		return err
	}
	if eventsJSON {
		return printJSON(events)
	}

	fmt.Printf("%s  %s / %s\n\n", art.ID, art.Status, art.PipelineStage)
	tw := newTable()
	_, _ = fmt.Fprintln(tw, "TIME\tEVENT\tSTAGE\tSTATUS\tDETAIL")
	for _, ev := range events {
		_, _ = fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n",
			formatTime(ev.Timestamp), ev.EventType, orDash(string(ev.PipelineStage)), statusChange(ev), eventDetail(ev))
	}
	return tw.Flush()
}

func statusChange(ev model.PipelineEvent) string {
	switch {
	case ev.PreviousStatus != "" && ev.NewStatus != "":
		return string(ev.PreviousStatus) + " -> " + string(ev.NewStatus)
	case ev.NewStatus != "":
		return string(ev.NewStatus)
	default:
		return "-"
	}
}

func eventDetail(ev model.PipelineEvent) string {
	var parts []string
	if ev.DurationMs != nil {
		parts = append(parts, fmt.Sprintf("%dms", *ev.DurationMs))
	}
	m := ev.Metadata
	if m.ClaimCount != nil {
		parts = append(parts, fmt.Sprintf("claims=%d", *m.ClaimCount))
	}
	if m.EntityCount != nil {
		parts = append(parts, fmt.Sprintf("entities=%d", *m.EntityCount))
	}
	if m.DisambiguationCount != nil {
		parts = append(parts, fmt.Sprintf("disambiguation=%d", *m.DisambiguationCount))
	}
	if m.RetryAttempt != nil {
		parts = append(parts, fmt.Sprintf("attempt=%d", *m.RetryAttempt))
	}
	if m.AIModel != "" {
		parts = append(parts, "model="+m.AIModel)
	}
	if ev.ErrorMessage != "" {
		parts = append(parts, fmt.Sprintf("error=%q", ev.ErrorMessage))
	}
	return orDash(strings.Join(parts, " "))
}

func runRetry(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	art, err := a.runner.Tracker().Retry(ctx, args[0], model.PipelineStage(retryStage))
	if err != nil {
		return err
	}
	fmt.Printf("✓ %s reset to %s (%s)\n", art.ID, art.Status, art.PipelineStage)
	return nil
}

func runCancel(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	art, err := a.runner.Tracker().Cancel(ctx, args[0], cancelReason)
	if err != nil {
		return err
	}
	fmt.Printf("✓ %s cancelled at %s\n", art.ID, art.PipelineStage)
	return nil
}

func runConfirm(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	art, err := a.runner.Confirm(ctx, args[0], !rejectDraft)
	if err != nil {
		return err
	}
	verdict := "confirmed"
	if rejectDraft {
		verdict = "rejected"
	}
	fmt.Printf("✓ %s drafts %s, artifact %s\n", art.ID, verdict, art.Status)
	return nil
}
