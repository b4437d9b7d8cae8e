package p2p

// Gossip topic names.
const (
	TopicBlocks       = "/beacon/blocks/ssz_snappy"
	TopicAttestations = "/beacon/attestations/ssz_snappy"
)

// Request/response protocol IDs.
const (
	StatusProtocolV1       = "/beacon/req/status/1/ssz_snappy"
	BlocksByRootProtocolV1 = "/beacon/req/blocks_by_root/1/ssz_snappy"
)

// MaxRequestBlocks bounds one blocks-by-root response.
const MaxRequestBlocks = 1024
