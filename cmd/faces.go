package cmd

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/kozaktomas/face-registry/internal/config"
	"github.com/spf13/cobra"
)

var facesCmd = &cobra.Command{
	Use:   "faces",
	Short: "Manage registered people",
}

var facesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List registered people",
	Args:  cobra.NoArgs,
	RunE:  runFacesList,
}

var facesDeleteCmd = &cobra.Command{
	Use:   "delete <id>",
	Short: "Delete a registered person",
	Args:  cobra.ExactArgs(1),
	RunE:  runFacesDelete,
}

func init() {
	rootCmd.AddCommand(facesCmd)
	facesCmd.AddCommand(facesListCmd)
	facesCmd.AddCommand(facesDeleteCmd)

	facesListCmd.Flags().Bool("json", false, "Output as JSON")
}

// FaceOutput is one row of "faces list --json".
type FaceOutput struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	RegisteredAt time.Time `json:"registered_at"`
	Dim          int       `json:"dim"`
}

func runFacesList(cmd *cobra.Command, args []string) error {
	cfg := config.Load()
	ctx := context.Background()

	local, err := openLocal(ctx, cfg, true)
	if err != nil {
		return err
	}
	defer local.Close()

	records, err := local.store.List(ctx)
	if err != nil {
		return err
	}

	if mustGetBool(cmd, "json") {
		out := make([]FaceOutput, len(records))
		for i, rec := range records {
			out[i] = FaceOutput{ID: rec.ID, Name: rec.Name, RegisteredAt: rec.RegisteredAt, Dim: rec.Dim()}
		}
		return outputJSON(out)
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tNAME\tREGISTERED")
	fmt.Fprintln(w, "--\t----\t----------")
	for _, rec := range records {
		fmt.Fprintf(w, "%s\t%s\t%s\n", rec.ID, rec.Name, rec.RegisteredAt.Local().Format(time.DateTime))
	}
	if err := w.Flush(); err != nil {
		return err
	}
	fmt.Printf("\nTotal: %d\n", len(records))
	return nil
}

func runFacesDelete(cmd *cobra.Command, args []string) error {
	cfg := config.Load()
	ctx := context.Background()

	local, err := openLocal(ctx, cfg, true)
	if err != nil {
		return err
	}
	defer local.Close()

	if err := local.store.Delete(ctx, args[0]); err != nil {
		return fmt.Errorf("deleting %s: %w", args[0], err)
	}
	fmt.Printf("Deleted %s\n", args[0])
	return nil
}
