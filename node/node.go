// Package node wires the subsystems into a running beacon client: storage,
// the block pipeline, the attestation pool, fork choice, networking, the
// slot clock and optional validator duties.
package node

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/geanlabs/beacon/bls"
	"github.com/geanlabs/beacon/chain"
	"github.com/geanlabs/beacon/clock"
	"github.com/geanlabs/beacon/consensus"
	"github.com/geanlabs/beacon/p2p"
	"github.com/geanlabs/beacon/params"
	"github.com/geanlabs/beacon/storage"
	"github.com/geanlabs/beacon/storage/memory"
	"github.com/geanlabs/beacon/storage/pebbledb"
	"github.com/geanlabs/beacon/types"
	"github.com/geanlabs/beacon/validator"
)

// Exit codes of the pipeline driver.
const (
	ExitOK              = 0
	ExitTransitionError = 2
	ExitStorageError    = 3
	ExitConfigError     = 4
)

// Config assembles a node.
type Config struct {
	Spec           *params.SpecConfig
	GenesisTime    uint64
	Eth1BlockHash  types.Root
	ValidatorCount uint64
	ValidatorIndex *uint64
	DataDir        string // empty for in-memory storage
	ListenAddrs    []string
	Bootnodes      []string
	Logger         *slog.Logger
}

// Node is the composed client.
type Node struct {
	cfg      *Config
	spec     *consensus.Spec
	db       storage.Store
	store    *chain.Storage
	pipeline *chain.Pipeline
	pool     *chain.AttestationPool
	clk      *clock.SlotClock
	net      *p2p.Service
	producer *validator.Producer
	logger   *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New builds a node from config.
func New(ctx context.Context, cfg *Config) (*Node, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	spec := consensus.NewSpec(cfg.Spec)

	var db storage.Store
	var err error
	if cfg.DataDir == "" {
		db = memory.New()
	} else {
		db, err = pebbledb.Open(cfg.DataDir)
		if err != nil {
			return nil, fmt.Errorf("open storage: %w", err)
		}
	}

	genesisState, err := spec.InteropGenesisState(cfg.GenesisTime, cfg.Eth1BlockHash, cfg.ValidatorCount)
	if err != nil {
		return nil, fmt.Errorf("build genesis: %w", err)
	}
	genesisBlock, err := spec.GenesisBlock(genesisState)
	if err != nil {
		return nil, fmt.Errorf("build genesis block: %w", err)
	}

	ctx, cancel := context.WithCancel(ctx)
	node := &Node{
		cfg:    cfg,
		spec:   spec,
		db:     db,
		pool:   chain.NewAttestationPool(),
		clk:    clock.New(cfg.GenesisTime, cfg.Spec.SecondsPerSlot),
		logger: logger,
		ctx:    ctx,
		cancel: cancel,
	}

	host, err := p2p.NewHost(ctx, p2p.HostConfig{ListenAddrs: cfg.ListenAddrs})
	if err != nil {
		cancel()
		return nil, fmt.Errorf("create host: %w", err)
	}

	chainStore := chain.NewStorage(db)
	node.store = chainStore
	reqresp := p2p.NewReqResp(host, &blockSource{node: node}, &blockSink{node: node}, logger)

	pipeline, err := chain.NewPipeline(chain.Config{
		Spec:    spec,
		Store:   chainStore,
		Clock:   node.clk,
		Pool:    node.pool,
		Fetcher: reqresp,
		Logger:  logger,
	}, genesisBlock, genesisState)
	if err != nil {
		cancel()
		host.Close()
		return nil, fmt.Errorf("create pipeline: %w", err)
	}
	node.pipeline = pipeline
	reqresp.RegisterProtocols()

	bootnodes, err := p2p.ParseBootnodes(cfg.Bootnodes)
	if err != nil {
		cancel()
		host.Close()
		return nil, fmt.Errorf("parse bootnodes: %w", err)
	}
	netSvc, err := p2p.NewService(ctx, p2p.ServiceConfig{
		Host: host,
		Handlers: &p2p.MessageHandlers{
			OnBlock:       pipeline.SubmitBlock,
			OnAttestation: pipeline.SubmitAttestation,
		},
		Bootnodes: bootnodes,
		Logger:    logger,
	})
	if err != nil {
		cancel()
		host.Close()
		return nil, fmt.Errorf("create networking service: %w", err)
	}
	node.net = netSvc

	if cfg.ValidatorIndex != nil {
		signer := &bls.InsecureSigner{Seed: *cfg.ValidatorIndex}
		node.producer = validator.NewProducer(
			spec, pipeline, node.pool, nil, signer,
			types.ValidatorIndex(*cfg.ValidatorIndex), logger,
		)
	}
	return node, nil
}

// Start launches the pipeline, networking and the slot ticker.
func (n *Node) Start() {
	n.pipeline.Start(n.ctx)
	n.net.Start()
	n.wg.Add(1)
	go n.slotTicker()
	n.logger.Info("beacon node started",
		"genesis_time", n.cfg.GenesisTime,
		"validators", n.cfg.ValidatorCount,
	)
}

// Stop shuts the node down and returns its exit code.
func (n *Node) Stop() int {
	n.cancel()
	n.wg.Wait()
	n.net.Stop()
	n.pipeline.Stop()
	code := ExitOK
	if err := n.pipeline.Err(); err != nil {
		switch {
		case errors.Is(err, storage.ErrCorrupted):
			code = ExitStorageError
		case errors.Is(err, consensus.ErrInvariantViolation):
			code = ExitTransitionError
		default:
			code = ExitTransitionError
		}
	}
	if err := n.db.Close(); err != nil && code == ExitOK {
		code = ExitStorageError
	}
	n.logger.Info("beacon node stopped", "exit_code", code)
	return code
}

// CurrentSlot returns the wall-clock slot.
func (n *Node) CurrentSlot() types.Slot { return n.clk.CurrentSlot() }

// PeerCount returns connected peer count.
func (n *Node) PeerCount() int { return n.net.PeerCount() }

// slotTicker drives the pipeline clock and validator duties.
func (n *Node) slotTicker() {
	defer n.wg.Done()
	ticker := time.NewTicker(time.Duration(n.cfg.Spec.SecondsPerSlot) * time.Second / 2)
	defer ticker.Stop()

	var lastDutySlot types.Slot
	for {
		select {
		case <-n.ctx.Done():
			return
		case <-ticker.C:
			if n.clk.IsBeforeGenesis() {
				continue
			}
			n.pipeline.Tick()
			slot := n.clk.CurrentSlot()
			if n.producer == nil || slot == lastDutySlot {
				continue
			}
			lastDutySlot = slot
			n.runDuties(slot)
		}
	}
}

// runDuties proposes and attests for the current slot when assigned.
func (n *Node) runDuties(slot types.Slot) {
	if ok, err := n.producer.IsProposer(slot); err == nil && ok {
		block, err := n.producer.ProposeBlock(slot)
		if err != nil {
			n.logger.Info("block proposal failed", "slot", slot, "error", err)
		} else {
			n.pipeline.SubmitBlock(block)
			if err := n.net.PublishBlock(n.ctx, block); err != nil {
				n.logger.Info("block publish failed", "slot", slot, "error", err)
			}
		}
	}

	att, err := n.producer.ProduceAttestation(slot)
	if err != nil {
		n.logger.Info("attestation production failed", "slot", slot, "error", err)
		return
	}
	if att == nil {
		return
	}
	n.pipeline.SubmitAttestation(att)
	if err := n.net.PublishAttestation(n.ctx, att); err != nil {
		n.logger.Info("attestation publish failed", "slot", slot, "error", err)
	}
}

// blockSource adapts the pipeline for the req/resp server side.
type blockSource struct {
	node *Node
}

func (s *blockSource) Block(root types.Root) (*types.BeaconBlock, bool, error) {
	return s.node.store.Block(root)
}

func (s *blockSource) Status() p2p.Status {
	head, state, err := s.node.pipeline.HeadState()
	if err != nil {
		return p2p.Status{}
	}
	return p2p.Status{
		Finalized: state.FinalizedCheckpoint,
		Head:      types.Checkpoint{Epoch: s.node.spec.CurrentEpoch(state), Root: head},
	}
}

// blockSink feeds fetched blocks back into the pipeline.
type blockSink struct {
	node *Node
}

func (s *blockSink) SubmitBlock(block *types.BeaconBlock) {
	s.node.pipeline.SubmitBlock(block)
}
