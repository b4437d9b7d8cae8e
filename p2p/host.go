package p2p

import (
	"context"
	"errors"
	"fmt"

	"github.com/libp2p/go-libp2p"
	"github.com/libp2p/go-libp2p/core/host"
	"github.com/libp2p/go-libp2p/core/peer"
	ma "github.com/multiformats/go-multiaddr"
)

var ErrMessageTooLarge = errors.New("p2p: message exceeds size bound")

// HostConfig configures the libp2p host.
type HostConfig struct {
	ListenAddrs []string
}

// NewHost creates the libp2p host the gossip and req/resp layers share.
func NewHost(_ context.Context, cfg HostConfig) (host.Host, error) {
	opts := []libp2p.Option{}
	if len(cfg.ListenAddrs) > 0 {
		opts = append(opts, libp2p.ListenAddrStrings(cfg.ListenAddrs...))
	}
	h, err := libp2p.New(opts...)
	if err != nil {
		return nil, fmt.Errorf("create host: %w", err)
	}
	return h, nil
}

// ParseBootnodes converts multiaddr strings into dialable peer infos.
func ParseBootnodes(addrs []string) ([]peer.AddrInfo, error) {
	var out []peer.AddrInfo
	for _, s := range addrs {
		addr, err := ma.NewMultiaddr(s)
		if err != nil {
			return nil, fmt.Errorf("parse bootnode %q: %w", s, err)
		}
		info, err := peer.AddrInfoFromP2pAddr(addr)
		if err != nil {
			return nil, fmt.Errorf("bootnode %q: %w", s, err)
		}
		out = append(out, *info)
	}
	return out, nil
}
