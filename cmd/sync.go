package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/kozaktomas/face-registry/internal/config"
	"github.com/kozaktomas/face-registry/internal/database"
	"github.com/kozaktomas/face-registry/internal/offline"
	"github.com/kozaktomas/face-registry/internal/reconcile"
	"github.com/kozaktomas/face-registry/internal/registry"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
)

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Commit queued registrations",
	Long: `Commit every registration waiting in the local queue, oldest first.

Each entry is retried SYNC_MAX_ATTEMPTS times. The run stops at the first
entry that still fails so later entries keep their order; entries that can
never be committed are moved to the rejected list ("queue rejected").

Examples:
  face-registry sync
  face-registry sync --server http://registry:8085`,
	Args: cobra.NoArgs,
	RunE: runSync,
}

func init() {
	rootCmd.AddCommand(syncCmd)

	syncCmd.Flags().String("server", "", "Registry server URL (overrides REGISTRY_SERVER_URL)")
	syncCmd.Flags().Bool("json", false, "Output as JSON")
}

// SyncOutput is the JSON output of the sync command.
type SyncOutput struct {
	Committed []string `json:"committed"`
	Rejected  []string `json:"rejected"`
	Remaining int      `json:"remaining"`
	Error     string   `json:"error,omitempty"`
}

func runSync(cmd *cobra.Command, args []string) error {
	cfg := config.Load()
	jsonOutput := mustGetBool(cmd, "json")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	queue, err := offline.Open(cfg.Queue.Path)
	if err != nil {
		return err
	}
	defer queue.Close()

	pending, err := queue.Len(ctx)
	if err != nil {
		return err
	}
	if pending == 0 {
		if jsonOutput {
			return outputJSON(SyncOutput{Committed: []string{}, Rejected: []string{}})
		}
		fmt.Println("Nothing to sync")
		return nil
	}

	var committer registry.Committer
	if url := serverURL(mustGetString(cmd, "server"), cfg); url != "" {
		committer = newRemote(url)
	} else {
		local, err := openLocal(ctx, cfg, false)
		if err != nil {
			return err
		}
		defer local.Close()
		committer = local.committer()
	}

	var bar *progressbar.ProgressBar
	if !jsonOutput {
		bar = progressbar.NewOptions(pending,
			progressbar.OptionSetDescription("Syncing registrations"),
			progressbar.OptionShowCount(),
			progressbar.OptionShowIts(),
			progressbar.OptionSetItsString("entries"),
			progressbar.OptionShowElapsedTimeOnFinish(),
			progressbar.OptionFullWidth(),
		)
	}

	reconciler := reconcile.New(queue, committer, cfg.Sync)
	report, runErr := reconciler.RunWithProgress(ctx, func(done, total int, _ offline.PendingRegistration) {
		if bar != nil {
			bar.ChangeMax(total)
			bar.Set(done)
		}
	})
	if bar != nil {
		bar.Finish()
		fmt.Println()
	}

	out := SyncOutput{
		Committed: make([]string, 0, len(report.Committed)),
		Rejected:  make([]string, 0, len(report.Rejected)),
		Remaining: report.Remaining,
	}
	for _, rec := range report.Committed {
		out.Committed = append(out.Committed, rec.Name)
	}
	for _, p := range report.Rejected {
		out.Rejected = append(out.Rejected, fmt.Sprintf("%s: %s", p.Name, p.RejectedReason))
	}
	if runErr != nil {
		out.Error = runErr.Error()
	}

	if jsonOutput {
		if err := outputJSON(out); err != nil {
			return err
		}
	} else {
		fmt.Printf("Committed: %d\n", len(out.Committed))
		for _, name := range out.Committed {
			fmt.Printf("  + %s\n", name)
		}
		if len(out.Rejected) > 0 {
			fmt.Printf("Rejected:  %d\n", len(out.Rejected))
			for _, r := range out.Rejected {
				fmt.Printf("  - %s\n", r)
			}
		}
		fmt.Printf("Remaining: %d\n", out.Remaining)
	}

	if errors.Is(runErr, database.ErrRetryExhausted) || errors.Is(runErr, reconcile.ErrEntryFailed) {
		return fmt.Errorf("sync stopped, %d entries left in the queue: %w", report.Remaining, runErr)
	}
	return runErr
}
