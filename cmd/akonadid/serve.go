package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/cuemby/akonadid/pkg/bus"
	"github.com/cuemby/akonadid/pkg/config"
	"github.com/cuemby/akonadid/pkg/janitor"
	"github.com/cuemby/akonadid/pkg/log"
	"github.com/cuemby/akonadid/pkg/metrics"
	"github.com/cuemby/akonadid/pkg/notify"
	"github.com/cuemby/akonadid/pkg/payload"
	"github.com/cuemby/akonadid/pkg/protocol"
	"github.com/cuemby/akonadid/pkg/retrieval"
	"github.com/cuemby/akonadid/pkg/search"
	"github.com/cuemby/akonadid/pkg/storage"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the akonadid server",
	Long: `Start the storage server: opens the database, binds the service bus
and the client socket, and runs the retrieval, search and janitor
subsystems until interrupted.`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().String("metrics-addr", "127.0.0.1:9092", "Address for the Prometheus metrics endpoint")
	serveCmd.Flags().Duration("janitor-interval", 30*time.Minute, "Interval between background consistency sweeps")
}

func runServe(cmd *cobra.Command, args []string) error {
	dataDir, _ := cmd.Flags().GetString("data-dir")
	metricsAddr, _ := cmd.Flags().GetString("metrics-addr")
	janitorInterval, _ := cmd.Flags().GetDuration("janitor-interval")

	logger := log.WithComponent("serve")

	layout := config.NewDataLayout(dataDir)
	if err := layout.EnsureDirs(); err != nil {
		return fmt.Errorf("prepare data directory: %w", err)
	}

	serverCfg, err := config.LoadServerConfig(layout.ServerRCPath())
	if err != nil {
		return fmt.Errorf("load server config: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	store, err := storage.Open(ctx, layout.DatabasePath())
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer store.Close()

	payloadStore, err := payload.NewStore(layout.FileDBDataDir())
	if err != nil {
		return fmt.Errorf("open payload store: %w", err)
	}

	registry, err := bus.NewRegistry(layout.AkonadiDir())
	if err != nil {
		return fmt.Errorf("open bus registry: %w", err)
	}

	busServer, err := bus.Serve(registry)
	if err != nil {
		return fmt.Errorf("start bus server: %w", err)
	}

	notifyBus := notify.NewBus()
	notifyBus.Start()

	retrievalMgr := retrieval.NewManager(registry.ResourceDialer())
	go retrievalMgr.Run(ctx)

	searchMgr := search.NewManager(store, notifyBus)
	registerSearchEngines(ctx, registry, searchMgr, serverCfg.SearchManagers, logger)
	go searchMgr.Run(ctx)

	j := janitor.New(store, payloadStore, janitorInterval, nil)
	j.Start()

	socketPath := layout.SocketPath()
	os.Remove(socketPath)
	listener, err := protocol.Listen("unix", socketPath)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", socketPath, err)
	}

	protoServer := protocol.Serve(listener, protocol.Deps{
		Store:     store,
		Bus:       notifyBus,
		Retrieval: retrievalMgr,
		Search:    searchMgr,
		Payload:   payloadStore,
	})

	if err := config.WriteConnectionConfig(layout.ConnectionRCPath(), &config.ConnectionConfig{
		Method:   "UnixPath",
		UnixPath: socketPath,
	}); err != nil {
		return fmt.Errorf("write connection config: %w", err)
	}
	defer config.RemoveConnectionConfig(layout.ConnectionRCPath())

	errCh := make(chan error, 1)
	go func() {
		http.Handle("/metrics", metrics.Handler())
		if err := http.ListenAndServe(metricsAddr, nil); err != nil {
			errCh <- fmt.Errorf("metrics server error: %w", err)
		}
	}()

	logger.Info().
		Str("socket", socketPath).
		Str("metrics_addr", metricsAddr).
		Msg("akonadid is running")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	select {
	case <-sigCh:
		logger.Info().Msg("received shutdown signal")
	case err := <-errCh:
		logger.Error().Err(err).Msg("shutting down after background error")
	}

	protoServer.Stop()
	j.Stop()
	searchMgr.Stop()
	cancel()

	stopCtx, stopCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer stopCancel()
	busServer.Stop(stopCtx)

	notifyBus.Stop()

	logger.Info().Msg("shutdown complete")
	return nil
}

// registerSearchEngines wires one Engine per name listed in
// akonadiserverrc's Search/Manager setting: the two in-process plugins
// by name, anything else as an agent process reached over the bus.
func registerSearchEngines(ctx context.Context, registry *bus.Registry, mgr *search.Manager, names []string, logger zerolog.Logger) {
	for _, name := range names {
		switch name {
		case "Xesam":
			mgr.Register(search.NewXesamEngine(mgr.Events(), nil))
		case "Nepomuk":
			mgr.Register(search.NewNepomukEngine(mgr.Events(), nil))
		default:
			conn, err := registry.Dial(ctx, name)
			if err != nil {
				logger.Warn().Err(err).Str("agent", name).Msg("search agent unreachable, registering invalid engine")
			}
			mgr.Register(search.NewAgentEngine(name, conn, mgr.Events()))
		}
	}
}
