package p2p

import (
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/libp2p/go-libp2p/core/host"
	"github.com/libp2p/go-libp2p/core/network"
	"github.com/libp2p/go-libp2p/core/peer"
	"github.com/libp2p/go-libp2p/core/protocol"

	"github.com/geanlabs/beacon/types"
)

const (
	readTimeout  = 10 * time.Second
	writeTimeout = 10 * time.Second
	maxMsgSize   = 10 * 1024 * 1024
)

// Response codes.
const (
	respSuccess     byte = 0x00
	respInvalidReq  byte = 0x01
	respServerError byte = 0x02
)

// BlockSource serves blocks and status for the req/resp protocols.
type BlockSource interface {
	Block(root types.Root) (*types.BeaconBlock, bool, error)
	Status() Status
}

// BlockSink receives blocks fetched from peers.
type BlockSink interface {
	SubmitBlock(block *types.BeaconBlock)
}

// ReqResp registers the request/response protocols and doubles as the
// pipeline's parent fetcher.
type ReqResp struct {
	host   host.Host
	source BlockSource
	sink   BlockSink
	logger *slog.Logger
}

// NewReqResp creates the handler set.
func NewReqResp(h host.Host, source BlockSource, sink BlockSink, logger *slog.Logger) *ReqResp {
	if logger == nil {
		logger = slog.Default()
	}
	return &ReqResp{host: h, source: source, sink: sink, logger: logger}
}

// RegisterProtocols installs the stream handlers.
func (r *ReqResp) RegisterProtocols() {
	r.host.SetStreamHandler(protocol.ID(StatusProtocolV1), r.handleStatusStream)
	r.host.SetStreamHandler(protocol.ID(BlocksByRootProtocolV1), r.handleBlocksByRootStream)
}

// FetchBlock asks connected peers for a block by root and feeds the first
// hit into the sink. Implements the pipeline's ParentFetcher.
func (r *ReqResp) FetchBlock(ctx context.Context, root types.Root) {
	peers := r.host.Network().Peers()
	go func() {
		for _, pid := range peers {
			if ctx.Err() != nil {
				return
			}
			blocks, err := r.requestBlocksByRoot(ctx, pid, []types.Root{root})
			if err != nil {
				r.logger.Debug("blocks_by_root request failed", "peer", pid, "error", err)
				continue
			}
			for _, block := range blocks {
				r.sink.SubmitBlock(block)
			}
			if len(blocks) > 0 {
				return
			}
		}
	}()
}

// requestBlocksByRoot performs one blocks-by-root exchange.
func (r *ReqResp) requestBlocksByRoot(ctx context.Context, pid peer.ID, roots []types.Root) ([]*types.BeaconBlock, error) {
	stream, err := r.host.NewStream(ctx, pid, protocol.ID(BlocksByRootProtocolV1))
	if err != nil {
		return nil, fmt.Errorf("open stream: %w", err)
	}
	defer stream.Close()

	req := BlocksByRootRequest{Roots: roots}
	data, err := req.MarshalSSZ()
	if err != nil {
		return nil, err
	}
	_ = stream.SetWriteDeadline(time.Now().Add(writeTimeout))
	if err := writeMessage(stream, data); err != nil {
		return nil, fmt.Errorf("write request: %w", err)
	}
	_ = stream.CloseWrite()

	_ = stream.SetReadDeadline(time.Now().Add(readTimeout))
	var blocks []*types.BeaconBlock
	for {
		code := make([]byte, 1)
		if _, err := io.ReadFull(stream, code); err != nil {
			break // end of responses
		}
		payload, err := readMessage(stream)
		if err != nil {
			return nil, fmt.Errorf("read response: %w", err)
		}
		if code[0] != respSuccess {
			return nil, fmt.Errorf("peer error code %d", code[0])
		}
		var block types.BeaconBlock
		if err := block.UnmarshalSSZ(payload); err != nil {
			return nil, fmt.Errorf("decode block: %w", err)
		}
		blocks = append(blocks, &block)
	}
	return blocks, nil
}

func (r *ReqResp) handleStatusStream(stream network.Stream) {
	defer stream.Close()
	_ = stream.SetReadDeadline(time.Now().Add(readTimeout))

	data, err := readMessage(stream)
	if err != nil {
		writeErrorResponse(stream, respInvalidReq)
		return
	}
	var peerStatus Status
	if err := peerStatus.UnmarshalSSZ(data); err != nil {
		writeErrorResponse(stream, respInvalidReq)
		return
	}

	ours := r.source.Status()
	respData, err := ours.MarshalSSZ()
	if err != nil {
		writeErrorResponse(stream, respServerError)
		return
	}
	_ = stream.SetWriteDeadline(time.Now().Add(writeTimeout))
	if err := writeSuccessResponse(stream, respData); err != nil {
		r.logger.Debug("status response failed", "error", err)
	}
}

func (r *ReqResp) handleBlocksByRootStream(stream network.Stream) {
	defer stream.Close()
	_ = stream.SetReadDeadline(time.Now().Add(readTimeout))

	data, err := readMessage(stream)
	if err != nil {
		writeErrorResponse(stream, respInvalidReq)
		return
	}
	var req BlocksByRootRequest
	if err := req.UnmarshalSSZ(data); err != nil {
		writeErrorResponse(stream, respInvalidReq)
		return
	}

	_ = stream.SetWriteDeadline(time.Now().Add(writeTimeout))
	served := 0
	for _, root := range req.Roots {
		if served >= MaxRequestBlocks {
			break
		}
		block, ok, err := r.source.Block(root)
		if err != nil {
			writeErrorResponse(stream, respServerError)
			return
		}
		if !ok {
			continue
		}
		payload, err := block.MarshalSSZ()
		if err != nil {
			writeErrorResponse(stream, respServerError)
			return
		}
		if err := writeSuccessResponse(stream, payload); err != nil {
			return
		}
		served++
	}
}

// Wire framing: a varint-free length prefix over the snappy-compressed
// payload.
func writeMessage(w io.Writer, data []byte) error {
	compressed := CompressMessage(data)
	var length [4]byte
	binary.LittleEndian.PutUint32(length[:], uint32(len(compressed)))
	if _, err := w.Write(length[:]); err != nil {
		return err
	}
	_, err := w.Write(compressed)
	return err
}

func readMessage(r io.Reader) ([]byte, error) {
	var length [4]byte
	if _, err := io.ReadFull(r, length[:]); err != nil {
		return nil, err
	}
	size := binary.LittleEndian.Uint32(length[:])
	if size > maxMsgSize {
		return nil, ErrMessageTooLarge
	}
	compressed := make([]byte, size)
	if _, err := io.ReadFull(r, compressed); err != nil {
		return nil, err
	}
	return DecompressMessage(compressed, maxMsgSize)
}

func writeSuccessResponse(w io.Writer, data []byte) error {
	if _, err := w.Write([]byte{respSuccess}); err != nil {
		return err
	}
	return writeMessage(w, data)
}

func writeErrorResponse(w io.Writer, code byte) {
	_, _ = w.Write([]byte{code})
	_, _ = w.Write(make([]byte, 4))
}
