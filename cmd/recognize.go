package cmd

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/kozaktomas/face-registry/internal/client"
	"github.com/kozaktomas/face-registry/internal/config"
	"github.com/kozaktomas/face-registry/internal/database"
	"github.com/kozaktomas/face-registry/internal/recognition"
	"github.com/spf13/cobra"
)

var recognizeCmd = &cobra.Command{
	Use:   "recognize <image>",
	Short: "Identify the faces in a photo",
	Long: `Detect every face in <image> and match it against the registered people.

Without --server the match runs against the local index, which is loaded
from the store or, when the store is down, from the index snapshot.

Examples:
  face-registry recognize group.jpg
  face-registry recognize group.jpg --threshold 0.7 --json
  face-registry recognize group.jpg --server http://registry:8085`,
	Args: cobra.ExactArgs(1),
	RunE: runRecognize,
}

func init() {
	rootCmd.AddCommand(recognizeCmd)

	recognizeCmd.Flags().Float64("threshold", 0, "Minimum cosine similarity for a match (default MATCH_THRESHOLD)")
	recognizeCmd.Flags().String("server", "", "Registry server URL (overrides REGISTRY_SERVER_URL)")
	recognizeCmd.Flags().Bool("json", false, "Output as JSON")
}

func recognizeLocal(ctx context.Context, cfg *config.Config, image []byte) ([]client.FaceResult, error) {
	local, err := openLocal(ctx, cfg, false)
	if err != nil {
		return nil, err
	}
	defer local.Close()

	opts := []recognition.Option{recognition.WithDetector(local.embedder)}
	if local.store != nil {
		opts = append(opts, recognition.WithRecognitionLog(local.store))
	} else if local.index.Len() == 0 {
		fmt.Fprintf(os.Stderr, "Warning: identity store unavailable and no index snapshot: %v\n", local.storeErr)
	}

	results, err := recognition.NewService(local.index, cfg.Match.Threshold, opts...).RecognizeImage(ctx, image)
	if err != nil {
		return nil, err
	}
	out := make([]client.FaceResult, len(results))
	for i, res := range results {
		out[i] = client.FaceResult{Score: res.Score, Accepted: res.Accepted, BoundingBox: res.BoundingBox}
		if res.Identity != nil {
			name := res.Identity.Name
			out[i].Name = &name
			out[i].ID = res.Identity.ID
		}
	}
	return out, nil
}

func runRecognize(cmd *cobra.Command, args []string) error {
	cfg := config.Load()
	if threshold := mustGetFloat64(cmd, "threshold"); threshold != 0 {
		cfg.Match.Threshold = threshold
	}
	jsonOutput := mustGetBool(cmd, "json")

	image, err := os.ReadFile(args[0]) //nolint:gosec // path is from the command line
	if err != nil {
		return fmt.Errorf("reading image: %w", err)
	}

	ctx := context.Background()
	var faces []client.FaceResult
	if url := serverURL(mustGetString(cmd, "server"), cfg); url != "" {
		resp, rerr := newRemote(url).Recognize(ctx, client.RecognizeRequest{Image: image})
		faces, err = resp.Faces, rerr
	} else {
		faces, err = recognizeLocal(ctx, cfg, image)
	}
	if err != nil {
		return fmt.Errorf("recognition failed: %w", err)
	}

	if jsonOutput {
		return outputJSON(client.RecognizeResponse{Faces: faces})
	}
	if len(faces) == 0 {
		fmt.Println("No faces found")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "#\tNAME\tSCORE\tBOX (x, y, w, h)")
	fmt.Fprintln(w, "-\t----\t-----\t----------------")
	for i, f := range faces {
		name := database.UnknownName
		if f.Name != nil {
			name = *f.Name
		}
		b := f.BoundingBox
		fmt.Fprintf(w, "%d\t%s\t%.3f\t%.2f, %.2f, %.2f, %.2f\n", i+1, name, f.Score, b.X, b.Y, b.Width, b.Height)
	}
	return w.Flush()
}
