package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/yeheng/conflux/pkg/log"
	"github.com/yeheng/conflux/pkg/metrics"
	"github.com/yeheng/conflux/pkg/node"
	"github.com/yeheng/conflux/pkg/validate"
)

var (
	Version = "dev"
	Commit  = "unknown"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:     "conflux-node",
	Short:   "Conflux - Raft-replicated configuration center",
	Version: Version,
}

func init() {
	rootCmd.SetVersionTemplate(fmt.Sprintf("conflux-node version %s (%s)\n", Version, Commit))
	rootCmd.PersistentFlags().String("log-level", "info", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().Bool("log-json", false, "Output logs in JSON format")
	cobra.OnInitialize(initLogging)

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(initCmd)

	serveCmd.Flags().String("config", "", "Path to node configuration file (required)")
	serveCmd.Flags().String("metrics-addr", "127.0.0.1:9090", "Address for the /metrics HTTP endpoint")
	serveCmd.MarkFlagRequired("config")

	initCmd.Flags().String("config", "", "Path to node configuration file (required)")
	initCmd.MarkFlagRequired("config")
}

func initLogging() {
	level, _ := rootCmd.PersistentFlags().GetString("log-level")
	jsonOutput, _ := rootCmd.PersistentFlags().GetBool("log-json")
	log.Init(log.Config{
		Level:      log.Level(level),
		JSONOutput: jsonOutput,
	})
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start a Conflux node from a configuration file",
	Long: `Start a Conflux node: opens storage, joins (or resumes) the Raft
cluster named in the configuration file, and serves the control plane
and the /metrics endpoint until the process receives an interrupt or
termination signal, then shuts the node down.

A brand-new cluster is not started by serve alone — run "conflux-node
init" once, against the first node, before starting the rest.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		configPath, _ := cmd.Flags().GetString("config")
		metricsAddr, _ := cmd.Flags().GetString("metrics-addr")

		cfg, err := node.LoadConfig(configPath)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}

		n, err := node.New(cfg)
		if err != nil {
			return fmt.Errorf("construct node: %w", err)
		}
		if err := n.Start(); err != nil {
			return fmt.Errorf("start node: %w", err)
		}

		mux := http.NewServeMux()
		mux.Handle("/metrics", metrics.Handler())
		go func() {
			if err := http.ListenAndServe(metricsAddr, mux); err != nil {
				logger := log.WithComponent("cmd")
				logger.Error().Err(err).Msg("metrics server stopped")
			}
		}()
		fmt.Printf("conflux-node %d serving; raft=%s control=%s metrics=http://%s/metrics\n",
			cfg.NodeID, cfg.Address, cfg.Network.ControlPlaneAddress, metricsAddr)

		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
		<-sigCh

		fmt.Println("shutting down...")
		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := n.Shutdown(ctx); err != nil {
			return fmt.Errorf("shutdown: %w", err)
		}
		return nil
	},
}

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Bootstrap a single-voter Conflux cluster on this node",
	Long: `Bootstrap a new Conflux cluster with this node as its only voter.
Run this exactly once, against the node that should become the first
leader; additional members then join via the control-plane
AddLearner/ChangeMembership sequence, not by running init themselves.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		configPath, _ := cmd.Flags().GetString("config")

		cfg, err := node.LoadConfig(configPath)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}

		n, err := node.New(cfg)
		if err != nil {
			return fmt.Errorf("construct node: %w", err)
		}
		if err := n.Start(); err != nil {
			return fmt.Errorf("start node: %w", err)
		}
		defer n.Shutdown(context.Background())

		err = n.Initialize([]validate.Member{{NodeID: cfg.NodeID, Address: cfg.Address}})
		if err != nil {
			return fmt.Errorf("bootstrap: %w", err)
		}
		fmt.Printf("cluster bootstrapped with node %d as the initial voter\n", cfg.NodeID)
		return nil
	},
}
