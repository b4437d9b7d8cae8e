package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/geanlabs/beacon/config"
	"github.com/geanlabs/beacon/node"
	"github.com/geanlabs/beacon/params"
	"github.com/geanlabs/beacon/types"
)

func main() {
	var (
		genesisTime    uint64
		validatorCount uint64
		validatorIndex int64
		listenAddr     string
		bootnodes      string
		bootnodesFile  string
		dataDir        string
		specFile       string
		preset         string
		logLevel       string
	)

	flag.Uint64Var(&genesisTime, "genesis-time", uint64(time.Now().Unix()), "Genesis time (unix timestamp)")
	flag.Uint64Var(&validatorCount, "validator-count", 16, "Number of genesis validators")
	flag.Int64Var(&validatorIndex, "validator-index", -1, "Validator index (-1 for non-validator)")
	flag.StringVar(&listenAddr, "listen", "/ip4/0.0.0.0/tcp/9000", "Listen address")
	flag.StringVar(&bootnodes, "bootnodes", "", "Comma-separated bootnode multiaddrs")
	flag.StringVar(&bootnodesFile, "bootnodes-file", "", "YAML file of bootnode multiaddrs")
	flag.StringVar(&dataDir, "datadir", "", "Database directory (empty for in-memory)")
	flag.StringVar(&specFile, "spec", "", "YAML spec constants overriding the preset")
	flag.StringVar(&preset, "preset", "minimal", "Constant preset (mainnet, minimal)")
	flag.StringVar(&logLevel, "log-level", "info", "Log level (debug, info, warn, error)")
	flag.Parse()

	var level slog.Level
	switch strings.ToLower(logLevel) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: level}))

	spec := params.Minimal()
	if preset == "mainnet" {
		spec = params.Mainnet()
	}
	if specFile != "" {
		loaded, err := params.LoadConfig(specFile, spec)
		if err != nil {
			fmt.Fprintf(os.Stderr, "bad spec config: %v\n", err)
			os.Exit(node.ExitConfigError)
		}
		spec = loaded
	}

	var bootnodeList []string
	if bootnodes != "" {
		bootnodeList = strings.Split(bootnodes, ",")
	}
	if bootnodesFile != "" {
		fromFile, err := config.LoadBootnodes(bootnodesFile)
		if err != nil {
			fmt.Fprintf(os.Stderr, "bad bootnodes file: %v\n", err)
			os.Exit(node.ExitConfigError)
		}
		bootnodeList = append(bootnodeList, fromFile...)
	}

	eth1Hash := types.Root{}
	for i := range eth1Hash {
		eth1Hash[i] = 0x42
	}

	cfg := &node.Config{
		Spec:           spec,
		GenesisTime:    genesisTime,
		Eth1BlockHash:  eth1Hash,
		ValidatorCount: validatorCount,
		DataDir:        dataDir,
		ListenAddrs:    []string{listenAddr},
		Bootnodes:      bootnodeList,
		Logger:         logger,
	}
	if validatorIndex >= 0 {
		idx := uint64(validatorIndex)
		cfg.ValidatorIndex = &idx
	}

	n, err := node.New(context.Background(), cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create node: %v\n", err)
		os.Exit(node.ExitConfigError)
	}
	n.Start()

	logger.Info("beacon client running",
		"slot", n.CurrentSlot(),
		"peers", n.PeerCount(),
	)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	logger.Info("shutting down...")
	os.Exit(n.Stop())
}
