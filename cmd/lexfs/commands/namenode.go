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
	"github.com/lexfs/lexfs/internal/namenode/server"
	"github.com/lexfs/lexfs/internal/wire"
	"github.com/lexfs/lexfs/pkg/adapter"
)

var namenodeCmd = &cobra.Command{
	Use:   "namenode",
	Short: "Run the name node",
	Long: `Run the name node: the client-session listener, the storage-node
control listener, and the liveness monitor that expels silent storage nodes.

Examples:
  # Start with the default config location
  lexfs namenode

  # Start with a custom config file
  lexfs namenode --config /etc/lexfs/config.yaml

  # Override settings via environment
  LEXFS_LOGGING_LEVEL=DEBUG lexfs namenode`,
	RunE: runNameNode,
}

func runNameNode(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	log, err := newLogger(cfg)
	if err != nil {
		return err
	}

	log.Info("name node starting",
		"config", getConfigSource(),
		"client_port", cfg.NameNode.ClientPort,
		"control_port", cfg.NameNode.ControlPort)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	reg := metrics.NewRegistry()

	core := server.NewCore(log)
	core.Metrics = metrics.NewNameNodeMetrics(reg)
	core.ACLCachePath = cfg.NameNode.ACLCachePath
	if err := core.LoadACL(); err != nil {
		log.Warn("acl cache replay failed", logger.Err(err))
	}

	clientSrv := adapter.NewServer(adapter.Config{
		BindAddress:     cfg.NameNode.BindAddress,
		Port:            cfg.NameNode.ClientPort,
		MaxConnections:  cfg.NameNode.MaxConnections,
		ShutdownTimeout: cfg.ShutdownTimeout,
	}, "client", log)
	clientSrv.Metrics = metrics.NewConnectionMetrics(reg, "namenode_client")

	controlSrv := adapter.NewServer(adapter.Config{
		BindAddress:     cfg.NameNode.BindAddress,
		Port:            cfg.NameNode.ControlPort,
		ShutdownTimeout: cfg.ShutdownTimeout,
	}, "storage-control", log)
	controlSrv.Metrics = metrics.NewConnectionMetrics(reg, "namenode_control")

	go server.Monitor(ctx, core, cfg.NameNode.HeartbeatInterval, cfg.NameNode.HeartbeatGrace)

	if cfg.Metrics.Enabled {
		addr := fmt.Sprintf("%s:%d", cfg.Metrics.BindAddress, cfg.Metrics.Port)
		go func() {
			if err := metrics.ListenAndServe(ctx, addr, reg, log); err != nil {
				log.Error("metrics endpoint failed", logger.Err(err))
			}
		}()
	}

	serverDone := make(chan error, 2)
	go func() {
		serverDone <- clientSrv.Serve(ctx, &server.ClientFactory{
			Core:    core,
			Timeout: wire.ClientTimeout,
		}, nil)
	}()
	go func() {
		serverDone <- controlSrv.Serve(ctx, &server.StorageFactory{
			Core:    core,
			Timeout: cfg.NameNode.HeartbeatInterval,
		}, nil)
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	log.Info("name node running")

	var firstErr error
	received := 0
	select {
	case <-sigChan:
		signal.Stop(sigChan)
		log.Info("shutdown signal received")
		cancel()
	case firstErr = <-serverDone:
		received++
		cancel()
	}

	// Wait for both listeners to finish their graceful shutdown.
	for ; received < cap(serverDone); received++ {
		if err := <-serverDone; firstErr == nil {
			firstErr = err
		}
	}

	if firstErr != nil {
		log.Error("name node stopped with error", logger.Err(firstErr))
		return firstErr
	}
	log.Info("name node stopped")
	return nil
}
