package cmd

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/kozaktomas/face-registry/internal/config"
	"github.com/kozaktomas/face-registry/internal/offline"
	"github.com/spf13/cobra"
)

var queueCmd = &cobra.Command{
	Use:   "queue",
	Short: "Inspect registrations waiting for sync",
}

var queueListCmd = &cobra.Command{
	Use:   "list",
	Short: "List registrations waiting for sync",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runQueueList(cmd, false)
	},
}

var queueRejectedCmd = &cobra.Command{
	Use:   "rejected",
	Short: "List queued registrations that could not be committed",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runQueueList(cmd, true)
	},
}

func init() {
	rootCmd.AddCommand(queueCmd)
	queueCmd.AddCommand(queueListCmd)
	queueCmd.AddCommand(queueRejectedCmd)

	queueCmd.PersistentFlags().Bool("json", false, "Output as JSON")
}

func runQueueList(cmd *cobra.Command, rejected bool) error {
	cfg := config.Load()
	jsonOutput := mustGetBool(cmd, "json")

	queue, err := offline.Open(cfg.Queue.Path)
	if err != nil {
		return err
	}
	defer queue.Close()

	ctx := context.Background()
	var entries []offline.PendingRegistration
	if rejected {
		entries, err = queue.Rejected(ctx)
	} else {
		entries, err = queue.Pending(ctx)
	}
	if err != nil {
		return err
	}

	if jsonOutput {
		for i := range entries {
			entries[i].Image = nil
			entries[i].Embedding = nil
		}
		return outputJSON(entries)
	}
	if len(entries) == 0 {
		fmt.Println("Queue is empty")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	if rejected {
		fmt.Fprintln(w, "ID\tNAME\tENQUEUED\tREASON")
		fmt.Fprintln(w, "--\t----\t--------\t------")
		for _, e := range entries {
			fmt.Fprintf(w, "%d\t%s\t%s\t%s\n", e.ID, e.Name, e.EnqueuedAt.Local().Format(time.DateTime), e.RejectedReason)
		}
	} else {
		fmt.Fprintln(w, "ID\tNAME\tENQUEUED\tATTEMPTS\tLAST ERROR")
		fmt.Fprintln(w, "--\t----\t--------\t--------\t----------")
		for _, e := range entries {
			fmt.Fprintf(w, "%d\t%s\t%s\t%d\t%s\n", e.ID, e.Name, e.EnqueuedAt.Local().Format(time.DateTime), e.AttemptCount, e.LastError)
		}
	}
	return w.Flush()
}
