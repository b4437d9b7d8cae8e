package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// bootnodeEntry is the named-field form of a bootnode list entry.
type bootnodeEntry struct {
	Multiaddr string `yaml:"multiaddr"`
}

// LoadBootnodes reads a nodes.yaml file. Both formats are accepted:
//   - named: [{multiaddr: "/ip4/..."}]
//   - plain string list of multiaddrs
func LoadBootnodes(path string) ([]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read nodes: %w", err)
	}

	var entries []bootnodeEntry
	if err := yaml.Unmarshal(data, &entries); err == nil && len(entries) > 0 && entries[0].Multiaddr != "" {
		out := make([]string, 0, len(entries))
		for _, e := range entries {
			if e.Multiaddr != "" {
				out = append(out, e.Multiaddr)
			}
		}
		return out, nil
	}

	var strs []string
	if err := yaml.Unmarshal(data, &strs); err != nil {
		return nil, fmt.Errorf("parse nodes: %w", err)
	}
	return strs, nil
}
