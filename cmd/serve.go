package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/kozaktomas/face-registry/internal/ai"
	"github.com/kozaktomas/face-registry/internal/assistant"
	"github.com/kozaktomas/face-registry/internal/config"
	"github.com/kozaktomas/face-registry/internal/notify"
	"github.com/kozaktomas/face-registry/internal/offline"
	"github.com/kozaktomas/face-registry/internal/recognition"
	"github.com/kozaktomas/face-registry/internal/reconcile"
	"github.com/kozaktomas/face-registry/internal/registry"
	"github.com/kozaktomas/face-registry/internal/web"
	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the registry server",
	Long: `Start the Face Registry HTTP API.

The server keeps every registered identity in memory for matching, queues
registrations locally while the store is unreachable and syncs them on the
SYNC_SCHEDULE. Registration, recognition and query events are streamed
over SSE and, when MQTT_BROKER is set, published to MQTT.`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().Int("port", 0, "Port to listen on (overrides WEB_PORT)")
	serveCmd.Flags().String("host", "", "Host to bind to (overrides WEB_HOST)")
}

// newListeners builds the broadcaster and, when configured, the MQTT
// publisher.
func newListeners(cfg *config.Config) (*notify.Broadcaster, *notify.MQTTPublisher) {
	broadcaster := notify.NewBroadcaster()
	if cfg.MQTT.Broker == "" {
		return broadcaster, nil
	}
	publisher, err := notify.NewMQTTPublisher(cfg.MQTT, slog.Default())
	if err != nil {
		fmt.Printf("Warning: MQTT events disabled: %v\n", err)
		return broadcaster, nil
	}
	fmt.Printf("Publishing registry events to %s (%s/...)\n", cfg.MQTT.Broker, cfg.MQTT.Topic)
	return broadcaster, publisher
}

// newAssistant answers registry questions, with an LLM fallback when one is
// configured.
func newAssistant(ctx context.Context, cfg *config.Config, source assistant.Source, opts ...assistant.Option) *assistant.Assistant {
	provider, err := ai.NewProvider(ctx, cfg)
	switch {
	case err == nil:
		slog.Info("query fallback enabled", "provider", provider.Name())
		opts = append(opts, assistant.WithProvider(provider))
	case !errors.Is(err, ai.ErrNoProvider):
		slog.Warn("query fallback disabled", "error", err)
	}
	return assistant.New(source, opts...)
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg := config.Load()
	if port := mustGetInt(cmd, "port"); port > 0 {
		cfg.Web.Port = port
	}
	if host := mustGetString(cmd, "host"); host != "" {
		cfg.Web.Host = host
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	fmt.Printf("Connecting to identity store...\n")
	local, err := openLocal(ctx, cfg, false)
	if err != nil {
		return err
	}
	defer local.Close()
	if errors.Is(local.storeErr, errDatabaseURL) {
		return local.storeErr
	}
	if rb := local.keepServing(); rb != nil {
		fmt.Printf("Warning: identity store unavailable, serving from the index snapshot: %v\n", local.storeErr)
		go rb.watch(ctx)
	}
	fmt.Printf("Match index ready with %d identities (%s)\n", local.index.Len(), cfg.Match.Strategy)

	queue, err := offline.Open(cfg.Queue.Path)
	if err != nil {
		return err
	}
	defer queue.Close()

	broadcaster, publisher := newListeners(cfg)
	listeners := notify.Multi{broadcaster}
	if publisher != nil {
		defer publisher.Close()
		listeners = append(listeners, publisher)
	}

	committer := local.committer()
	registrar := registry.NewRegistrar(committer,
		registry.WithQueue(queue),
		registry.WithEmbedder(local.embedder),
		registry.WithListener(listeners),
		registry.WithDim(cfg.Embedding.Dim),
	)

	reconciler := reconcile.New(queue, committer, cfg.Sync, reconcile.WithListener(listeners))
	scheduler, err := reconcile.NewScheduler(reconciler, cfg.Sync.Schedule, slog.Default())
	if err != nil {
		return err
	}
	if err := scheduler.Start(ctx); err != nil {
		return err
	}
	defer scheduler.Stop()

	if publisher != nil {
		if err := publisher.OnSyncRequest(func() { scheduler.RunNow(ctx) }); err != nil {
			fmt.Printf("Warning: MQTT sync requests disabled: %v\n", err)
		}
	}

	service := recognition.NewService(local.index, cfg.Match.Threshold,
		recognition.WithDetector(local.embedder),
		recognition.WithRecognitionLog(local.store),
		recognition.WithListener(listeners),
	)

	server := web.NewServer(cfg, web.Deps{
		Store:       local.store,
		Registrar:   registrar,
		Committer:   committer,
		Recognition: service,
		Queue:       queue,
		Scheduler:   scheduler,
		Broadcaster: broadcaster,
		Assistant:   newAssistant(ctx, cfg, local.store, assistant.WithListener(listeners)),
	})

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-sigChan
		fmt.Println("\nShutting down...")

		shutdownCtx, shutdownCancel := context.WithTimeout(context.WithoutCancel(ctx), 30*time.Second)
		defer shutdownCancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			fmt.Printf("Error during shutdown: %v\n", err)
		}
	}()

	fmt.Printf("Starting Face Registry on http://%s:%d\n", cfg.Web.Host, cfg.Web.Port)
	fmt.Println("Press Ctrl+C to stop")

	if err := server.Start(); err != nil {
		return fmt.Errorf("starting server: %w", err)
	}
	return nil
}
