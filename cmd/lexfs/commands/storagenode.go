package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/lexfs/lexfs/internal/logger"
	"github.com/lexfs/lexfs/internal/metrics"
	"github.com/lexfs/lexfs/internal/storage"
	"github.com/lexfs/lexfs/internal/storage/control"
	"github.com/lexfs/lexfs/internal/storage/lock"
	"github.com/lexfs/lexfs/internal/storage/server"
	"github.com/lexfs/lexfs/internal/wire"
	"github.com/lexfs/lexfs/pkg/adapter"
)

var storagenodeCmd = &cobra.Command{
	Use:   "storagenode",
	Short: "Run a storage node",
	Long: `Run a storage node: the client-facing command loop serving document
operations, plus the control channel that registers with the name node and
answers its heartbeats. The channel re-dials with backoff whenever it drops,
re-announcing the local files so the routing table recovers.

Examples:
  # Start with the default config location
  lexfs storagenode

  # Point at a remote name node
  LEXFS_STORAGENODE_NAMENODE_ADDR=nn.example.com:5001 lexfs storagenode`,
	RunE: runStorageNode,
}

func runStorageNode(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	log, err := newLogger(cfg)
	if err != nil {
		return err
	}

	store, err := storage.NewStore(cfg.StorageNode.DataDir)
	if err != nil {
		return fmt.Errorf("failed to open data dir: %w", err)
	}

	log.Info("storage node starting",
		"config", getConfigSource(),
		"data_dir", cfg.StorageNode.DataDir,
		"client_port", cfg.StorageNode.ClientPort,
		"namenode", cfg.StorageNode.NameNodeAddr)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	reg := metrics.NewRegistry()

	relay := &control.Relay{}
	handler := &server.Handler{
		Store:       store,
		Locks:       lock.NewTable(),
		Notifier:    relay,
		Log:         log,
		Metrics:     metrics.NewStorageNodeMetrics(reg),
		StreamDelay: cfg.StorageNode.StreamDelay,
	}

	clientSrv := adapter.NewServer(adapter.Config{
		Port:            cfg.StorageNode.ClientPort,
		MaxConnections:  cfg.StorageNode.MaxConnections,
		ShutdownTimeout: cfg.ShutdownTimeout,
	}, "client", log)
	clientSrv.Metrics = metrics.NewConnectionMetrics(reg, "storage_client")

	// Registration is recomputed per dial so a reconnect re-announces the
	// files that exist right now.
	registration := func() control.Registration {
		files, err := store.List()
		if err != nil {
			log.Error("listing files for registration failed", logger.Err(err))
		}
		return control.Registration{
			IP:          cfg.StorageNode.AdvertiseIP,
			ControlPort: cfg.StorageNode.ClientPort,
			ClientPort:  cfg.StorageNode.ClientPort,
			Files:       files,
		}
	}
	go control.RunWithRetry(ctx, cfg.StorageNode.NameNodeAddr, registration,
		cfg.StorageNode.RetryBackoff, log, relay.Attach)

	if cfg.Metrics.Enabled {
		addr := fmt.Sprintf("%s:%d", cfg.Metrics.BindAddress, cfg.Metrics.Port)
		go func() {
			if err := metrics.ListenAndServe(ctx, addr, reg, log); err != nil {
				log.Error("metrics endpoint failed", logger.Err(err))
			}
		}()
	}

	serverDone := make(chan error, 1)
	go func() {
		serverDone <- clientSrv.Serve(ctx, &server.Factory{
			Handler: handler,
			Timeout: wire.ClientTimeout,
		}, nil)
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	log.Info("storage node running")

	select {
	case <-sigChan:
		signal.Stop(sigChan)
		log.Info("shutdown signal received")
		cancel()
		if err := <-serverDone; err != nil {
			log.Error("storage node stopped with error", logger.Err(err))
			return err
		}
	case err := <-serverDone:
		cancel()
		if err != nil {
			log.Error("storage node stopped with error", logger.Err(err))
			return err
		}
	}

	log.Info("storage node stopped")
	return nil
}
