package p2p

import (
	"crypto/ecdsa"
	"fmt"
	"net"
	"os"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/p2p/enode"
	"github.com/ethereum/go-ethereum/p2p/enr"
)

// LocalNodeManager maintains the node's ENR identity record so peers can
// discover and address it consistently across restarts.
type LocalNodeManager struct {
	db      *enode.DB
	local   *enode.LocalNode
	privKey *ecdsa.PrivateKey
}

// NewLocalNodeManager loads (or generates) the node key and builds the
// local ENR with the given endpoint.
func NewLocalNodeManager(dbPath, nodeKeyPath string, ip net.IP, udpPort, tcpPort int) (*LocalNodeManager, error) {
	privKey, err := loadOrGenerateNodeKey(nodeKeyPath)
	if err != nil {
		return nil, fmt.Errorf("load node key: %w", err)
	}

	db, err := enode.OpenDB(dbPath)
	if err != nil {
		return nil, fmt.Errorf("open node db: %w", err)
	}

	local := enode.NewLocalNode(db, privKey)
	local.Set(enr.IP(ip))
	local.Set(enr.UDP(udpPort))
	if tcpPort != 0 {
		local.Set(enr.TCP(tcpPort))
	}

	return &LocalNodeManager{db: db, local: local, privKey: privKey}, nil
}

// Node returns the current signed record.
func (m *LocalNodeManager) Node() *enode.Node {
	return m.local.Node()
}

// ENR returns the record in its textual enr: form.
func (m *LocalNodeManager) ENR() string {
	return m.local.Node().String()
}

// Close releases the node database.
func (m *LocalNodeManager) Close() {
	m.db.Close()
}

// loadOrGenerateNodeKey reads a hex-encoded secp256k1 key from path,
// generating and persisting one on first start. An empty path yields an
// ephemeral key.
func loadOrGenerateNodeKey(path string) (*ecdsa.PrivateKey, error) {
	if path == "" {
		return crypto.GenerateKey()
	}
	if _, err := os.Stat(path); err == nil {
		return crypto.LoadECDSA(path)
	}
	key, err := crypto.GenerateKey()
	if err != nil {
		return nil, err
	}
	if err := crypto.SaveECDSA(path, key); err != nil {
		return nil, err
	}
	return key, nil
}
