package p2p

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	pubsub "github.com/libp2p/go-libp2p-pubsub"
	"github.com/libp2p/go-libp2p/core/host"
	"github.com/libp2p/go-libp2p/core/peer"

	"github.com/geanlabs/beacon/types"
)

// MaxGossipSize bounds a decompressed gossip payload.
const MaxGossipSize = 10 * 1024 * 1024

// MessageHandlers receive decoded gossip payloads. Handlers run on the
// service's reader goroutines; they enqueue into the pipeline and return.
type MessageHandlers struct {
	OnBlock       func(block *types.BeaconBlock)
	OnAttestation func(att *types.Attestation)
}

// Service manages gossip for blocks and attestations.
type Service struct {
	host     host.Host
	pubsub   *pubsub.PubSub
	handlers *MessageHandlers
	logger   *slog.Logger

	blockTopic *pubsub.Topic
	blockSub   *pubsub.Subscription
	attTopic   *pubsub.Topic
	attSub     *pubsub.Subscription

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// ServiceConfig configures the gossip service.
type ServiceConfig struct {
	Host      host.Host
	Handlers  *MessageHandlers
	Bootnodes []peer.AddrInfo
	Logger    *slog.Logger
}

// NewService joins the topics and connects to bootnodes.
func NewService(ctx context.Context, cfg ServiceConfig) (*Service, error) {
	ctx, cancel := context.WithCancel(ctx)

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	ps, err := pubsub.NewGossipSub(ctx, cfg.Host)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("create gossipsub: %w", err)
	}

	blockTopic, err := ps.Join(TopicBlocks)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("join block topic: %w", err)
	}
	attTopic, err := ps.Join(TopicAttestations)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("join attestation topic: %w", err)
	}
	blockSub, err := blockTopic.Subscribe()
	if err != nil {
		cancel()
		return nil, fmt.Errorf("subscribe block topic: %w", err)
	}
	attSub, err := attTopic.Subscribe()
	if err != nil {
		cancel()
		return nil, fmt.Errorf("subscribe attestation topic: %w", err)
	}

	svc := &Service{
		host:       cfg.Host,
		pubsub:     ps,
		handlers:   cfg.Handlers,
		logger:     logger,
		blockTopic: blockTopic,
		blockSub:   blockSub,
		attTopic:   attTopic,
		attSub:     attSub,
		ctx:        ctx,
		cancel:     cancel,
	}

	for _, pi := range cfg.Bootnodes {
		if err := cfg.Host.Connect(ctx, pi); err != nil {
			logger.Warn("failed to connect to bootnode", "peer", pi.ID, "error", err)
		} else {
			logger.Info("connected to bootnode", "peer", pi.ID)
		}
	}
	return svc, nil
}

// Start begins processing incoming messages.
func (s *Service) Start() {
	s.wg.Add(2)
	go s.processBlocks()
	go s.processAttestations()
	s.logger.Info("p2p service started",
		"peer_id", s.host.ID(),
		"addrs", s.host.Addrs(),
	)
}

// Stop shuts down the gossip service and the underlying host.
func (s *Service) Stop() {
	s.cancel()
	s.blockSub.Cancel()
	s.attSub.Cancel()
	s.wg.Wait()
	s.host.Close()
	s.logger.Info("p2p service stopped")
}

// PublishBlock broadcasts a block.
func (s *Service) PublishBlock(ctx context.Context, block *types.BeaconBlock) error {
	data, err := block.MarshalSSZ()
	if err != nil {
		return fmt.Errorf("marshal block: %w", err)
	}
	return s.blockTopic.Publish(ctx, CompressMessage(data))
}

// PublishAttestation broadcasts an attestation.
func (s *Service) PublishAttestation(ctx context.Context, att *types.Attestation) error {
	data, err := att.MarshalSSZ()
	if err != nil {
		return fmt.Errorf("marshal attestation: %w", err)
	}
	return s.attTopic.Publish(ctx, CompressMessage(data))
}

// PeerCount returns the number of connected peers.
func (s *Service) PeerCount() int {
	return len(s.host.Network().Peers())
}

func (s *Service) processBlocks() {
	defer s.wg.Done()
	for {
		msg, err := s.blockSub.Next(s.ctx)
		if err != nil {
			if s.ctx.Err() != nil {
				return
			}
			s.logger.Error("block subscription error", "error", err)
			continue
		}
		if msg.ReceivedFrom == s.host.ID() {
			continue
		}
		data, err := DecompressMessage(msg.Data, MaxGossipSize)
		if err != nil {
			continue
		}
		var block types.BeaconBlock
		if err := block.UnmarshalSSZ(data); err != nil {
			continue
		}
		if s.handlers != nil && s.handlers.OnBlock != nil {
			s.handlers.OnBlock(&block)
		}
	}
}

func (s *Service) processAttestations() {
	defer s.wg.Done()
	for {
		msg, err := s.attSub.Next(s.ctx)
		if err != nil {
			if s.ctx.Err() != nil {
				return
			}
			s.logger.Error("attestation subscription error", "error", err)
			continue
		}
		if msg.ReceivedFrom == s.host.ID() {
			continue
		}
		data, err := DecompressMessage(msg.Data, MaxGossipSize)
		if err != nil {
			continue
		}
		var att types.Attestation
		if err := att.UnmarshalSSZ(data); err != nil {
			continue
		}
		if s.handlers != nil && s.handlers.OnAttestation != nil {
			s.handlers.OnAttestation(&att)
		}
	}
}
