package cli

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"net/http"
	"os"
	"os/signal"
	"slices"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/ppiankov/rollcall/internal/model"
	"github.com/ppiankov/rollcall/internal/worker"
)

var (
	ingestSender     string
	ingestOrgs       []string
	ingestMedia      string
	ingestTranscript string
	ingestChannel    string
	ingestRun        bool

	runFile     string
	runWatch    bool
	runInterval time.Duration
	runLimit    int
	runListen   string
	runTimeout  time.Duration
)

// pipelineCmd groups the voice note pipeline commands
var pipelineCmd = &cobra.Command{
	Use:   "pipeline",
	Short: "Ingest, advance and inspect voice notes",
	Long: `Voice notes move through the pipeline one stage at a time:

  received -> transcribing -> claims_extracted -> entities_resolved
           -> drafts_generated -> awaiting_confirmation -> completed

Every transition is recorded in the event ledger. Transient failures are
retried with exponential backoff; an open circuit breaker pauses AI stages
without spending retry attempts.`,
}

var pipelineIngestCmd = &cobra.Command{
	Use:   "ingest",
	Short: "Register a new voice note",
	Long: `Ingest stores a voice note in received status.

Example:
  rollcall pipeline ingest --sender coach-1 --org org-1 --media note.m4a
  rollcall pipeline ingest --sender coach-1 --org org-1 --transcript "Jake had a great game" --run`,
	Args: cobra.NoArgs,
	RunE: runIngest,
}

var pipelineRunCmd = &cobra.Command{
	Use:   "run [artifact-id...]",
	Short: "Advance artifacts through the pipeline",
	Long: `Run advances the given artifacts, the artifacts listed in --file, or every
artifact whose next attempt is due.

With --watch the due queue is polled until interrupted. SIGHUP resets the
circuit breaker of the running process.

Example:
  rollcall pipeline run 7c0e...
  rollcall pipeline run --file ids.txt
  rollcall pipeline run --watch --interval 10s --listen :9464`,
	RunE: runPipeline,
}

func init() {
	rootCmd.AddCommand(pipelineCmd)
	pipelineCmd.AddCommand(pipelineIngestCmd)
	pipelineCmd.AddCommand(pipelineRunCmd)

	pipelineIngestCmd.Flags().StringVar(&ingestSender, "sender", "", "coach user ID that sent the note")
	pipelineIngestCmd.Flags().StringSliceVar(&ingestOrgs, "org", nil, "candidate organization ID, most likely first (repeatable)")
	pipelineIngestCmd.Flags().StringVar(&ingestMedia, "media", "", "audio file path or URL")
	pipelineIngestCmd.Flags().StringVar(&ingestTranscript, "transcript", "", "transcript text (skips transcription)")
	pipelineIngestCmd.Flags().StringVar(&ingestChannel, "channel", "cli", "source channel")
	pipelineIngestCmd.Flags().BoolVar(&ingestRun, "run", false, "advance the note immediately")
	_ = pipelineIngestCmd.MarkFlagRequired("sender")

	pipelineRunCmd.Flags().StringVar(&runFile, "file", "", "file with one artifact ID per line")
	pipelineRunCmd.Flags().BoolVar(&runWatch, "watch", false, "keep polling for due artifacts")
	pipelineRunCmd.Flags().DurationVar(&runInterval, "interval", 15*time.Second, "poll interval in watch mode")
	pipelineRunCmd.Flags().IntVar(&runLimit, "limit", 100, "max due artifacts per pass")
	pipelineRunCmd.Flags().StringVar(&runListen, "listen", "", "serve Prometheus metrics on this address in watch mode")
	pipelineRunCmd.Flags().DurationVar(&runTimeout, "timeout", 10*time.Minute, "timeout for a single pass")
}

func runIngest(cmd *cobra.Command, args []string) error {
	if ingestMedia == "" && ingestTranscript == "" {
		return errors.New("one of --media or --transcript is required")
	}

	ctx := cmd.Context()
	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	art := model.Artifact{
		SourceChannel: ingestChannel,
		SenderUserID:  ingestSender,
		MediaRef:      ingestMedia,
		Transcript:    ingestTranscript,
	}
	for i, org := range ingestOrgs {
		// listed order is the confidence order
		art.OrgContextCandidates = append(art.OrgContextCandidates, model.OrgContext{
			OrganizationID: org,
			Confidence:     1 / float64(i+1),
		})
	}

	art, err = a.runner.Tracker().Ingest(ctx, art)
	if err != nil {
		return err
	}
	fmt.Println(art.ID)

	if !ingestRun {
		return nil
	}
	out, err := a.runner.Run(ctx, art.ID)
	if err != nil {
		return err
	}
	fmt.Fprintf(os.Stderr, "✓ %s: %s\n", art.ID, out)
	return nil
}

func runPipeline(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	if !runWatch {
		results, err := a.runOnce(ctx, args)
		if err != nil {
			return err
		}
		return printRunResults(results)
	}

	g, ctx := errgroup.WithContext(ctx)
	if runListen != "" {
		srv := &http.Server{Addr: runListen, Handler: a.metrics.Handler(), ReadHeaderTimeout: 5 * time.Second}
		g.Go(func() error { return serveUntilDone(ctx, srv) })
		a.logger.Info("Serving metrics", "listen", runListen)
	}
	g.Go(func() error { return a.watch(ctx) })
	return g.Wait()
}

// runOnce advances explicit IDs, a file of IDs, or the due queue
func (a *app) runOnce(ctx context.Context, ids []string) ([]*worker.AdvanceResult, error) {
	ctx, cancel := context.WithTimeout(ctx, runTimeout)
	defer cancel()

	switch {
	case len(ids) > 0:
		return a.batch.ProcessArtifacts(ctx, ids), nil
	case runFile != "":
		return a.batch.ProcessFile(ctx, runFile)
	default:
		return a.batch.ProcessDue(ctx, a.store, time.Now(), runLimit)
	}
}

func (a *app) watch(ctx context.Context) error {
	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	defer signal.Stop(hup)

	ticker := time.NewTicker(runInterval)
	defer ticker.Stop()

	a.logger.Info("Watching for due artifacts", "interval", runInterval, "workers", a.cfg.Pipeline.Workers)
	for {
		results, err := a.runOnce(ctx, nil)
		if err != nil && ctx.Err() == nil {
			a.logger.Error("Pipeline pass failed", "error", err)
		}
		if len(results) > 0 {
			a.logger.Info("Pipeline pass", "artifacts", len(results), "outcomes", worker.Tally(results))
		}
		if _, err := a.health.Check(ctx); err != nil && ctx.Err() == nil {
			a.logger.Warn("Health check failed", "error", err)
		}

		select {
		case <-ctx.Done():
			a.logger.Info("Watch stopped")
			return nil
		case <-hup:
			acked, err := a.resetBreaker(ctx)
			if err != nil {
				a.logger.Warn("Circuit breaker reset failed", "error", err)
				break
			}
			a.logger.Info("Circuit breaker reset by signal", "alerts_acknowledged", acked)
		case <-ticker.C:
		}
	}
}

func printRunResults(results []*worker.AdvanceResult) error {
	failed := 0
	for _, r := range results {
		if r.Error != nil {
			failed++
			fmt.Fprintf(os.Stderr, "✗ %s: %v\n", r.ArtifactID, r.Error)
			continue
		}
		fmt.Fprintf(os.Stderr, "✓ %s: %s\n", r.ArtifactID, r.Outcome)
	}

	fmt.Fprintln(os.Stderr)
	fmt.Fprintf(os.Stderr, "  Total:     %d artifacts\n", len(results))
	tally := worker.Tally(results)
	for _, outcome := range slices.Sorted(maps.Keys(tally)) {
		fmt.Fprintf(os.Stderr, "  %-10s %d\n", outcome+":", tally[outcome])
	}
	if failed > 0 {
		return fmt.Errorf("%d artifacts could not be advanced", failed)
	}
	return nil
}

// serveUntilDone runs srv until ctx is cancelled, then shuts it down
func serveUntilDone(ctx context.Context, srv *http.Server) error {
	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}
