package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/kozaktomas/face-registry/internal/config"
	"github.com/kozaktomas/face-registry/internal/offline"
	"github.com/kozaktomas/face-registry/internal/registry"
	"github.com/spf13/cobra"
)

var registerCmd = &cobra.Command{
	Use:   "register <name> [image]",
	Short: "Register a person from a photo or an embedding",
	Long: `Register a person under <name>.

The face comes from an image file, or from a JSON array of floats given with
--embedding-file. Registering an existing name replaces that person's face.

When the store (or, with --server, the registry server) cannot be reached,
the registration is kept in the local queue and committed by "sync".

Examples:
  # Register into the local store
  face-registry register "Jane Doe" jane.jpg

  # Register through a remote server
  face-registry register "Jane Doe" jane.jpg --server http://registry:8085

  # Register a precomputed embedding
  face-registry register "Jane Doe" --embedding-file jane.json`,
	Args: cobra.RangeArgs(1, 2),
	RunE: runRegister,
}

func init() {
	rootCmd.AddCommand(registerCmd)

	registerCmd.Flags().String("embedding-file", "", "JSON file with the face embedding")
	registerCmd.Flags().String("server", "", "Registry server URL (overrides REGISTRY_SERVER_URL)")
	registerCmd.Flags().Bool("json", false, "Output as JSON")
}

// RegisterOutput is the JSON output of the register command.
type RegisterOutput struct {
	Status  string `json:"status"`
	ID      string `json:"id,omitempty"`
	Name    string `json:"name"`
	QueueID uint64 `json:"queue_id,omitempty"`
	Message string `json:"message"`
}

func readRegistrationInput(args []string, embeddingFile string) (registry.Request, error) {
	req := registry.Request{Name: args[0]}
	switch {
	case embeddingFile != "" && len(args) == 2:
		return req, errors.New("give either an image or --embedding-file, not both")
	case embeddingFile != "":
		data, err := os.ReadFile(embeddingFile) //nolint:gosec // path is from the command line
		if err != nil {
			return req, fmt.Errorf("reading embedding file: %w", err)
		}
		if err := json.Unmarshal(data, &req.Embedding); err != nil {
			return req, fmt.Errorf("parsing embedding file: %w", err)
		}
	case len(args) == 2:
		data, err := os.ReadFile(args[1]) //nolint:gosec // path is from the command line
		if err != nil {
			return req, fmt.Errorf("reading image: %w", err)
		}
		req.Image = data
	default:
		return req, errors.New("an image or --embedding-file is required")
	}
	return req, nil
}

// newClientRegistrar builds the registrar used by CLI commands: remote
// when a server URL is known, local otherwise. The returned close function
// releases the store and the queue.
func newClientRegistrar(ctx context.Context, cfg *config.Config, server string) (*registry.Registrar, func(), error) {
	queue, err := offline.Open(cfg.Queue.Path)
	if err != nil {
		return nil, nil, err
	}

	if url := serverURL(server, cfg); url != "" {
		r := registry.NewRegistrar(newRemote(url),
			registry.WithQueue(queue),
			registry.WithDim(cfg.Embedding.Dim),
		)
		return r, func() { queue.Close() }, nil
	}

	local, err := openLocal(ctx, cfg, false)
	if err != nil {
		queue.Close()
		return nil, nil, err
	}
	opts := []registry.RegistrarOption{
		registry.WithQueue(queue),
		registry.WithDim(cfg.Embedding.Dim),
	}
	if local.store != nil {
		// Offline, the photo is queued as is and embedded during sync.
		opts = append(opts, registry.WithEmbedder(local.embedder))
	} else {
		fmt.Printf("Warning: identity store unavailable: %v\n", local.storeErr)
	}
	r := registry.NewRegistrar(local.committer(), opts...)
	return r, func() {
		local.Close()
		queue.Close()
	}, nil
}

func runRegister(cmd *cobra.Command, args []string) error {
	cfg := config.Load()
	jsonOutput := mustGetBool(cmd, "json")

	req, err := readRegistrationInput(args, mustGetString(cmd, "embedding-file"))
	if err != nil {
		return err
	}

	ctx := context.Background()
	registrar, closeFn, err := newClientRegistrar(ctx, cfg, mustGetString(cmd, "server"))
	if err != nil {
		return err
	}
	defer closeFn()

	out, err := registrar.Register(ctx, req)
	if err != nil {
		return fmt.Errorf("registration failed: %w", err)
	}

	result := RegisterOutput{Status: string(out.Status), Message: out.Message()}
	if out.Status == registry.StatusQueued {
		result.Name = out.Pending.Name
		result.QueueID = out.Pending.ID
	} else {
		result.ID = out.Record.ID
		result.Name = out.Record.Name
	}

	if jsonOutput {
		return outputJSON(result)
	}
	if out.Status == registry.StatusQueued {
		fmt.Printf("%s: %s (queue entry %d)\n", result.Name, result.Message, result.QueueID)
		return nil
	}
	fmt.Printf("%s (id %s)\n", result.Message, result.ID)
	return nil
}
