package relay

import (
	"fmt"
	"strings"
)

// BackendDescriptor describes a generic routing backend (e.g. an MCP server)
// and the capabilities it declares. Descriptors are owned by a registry; the
// routing layer only reads point-in-time snapshots of them.
type BackendDescriptor struct {
	// Unique backend name. E.g., "search-tools"
	Name string `yaml:"name" json:"name"`

	// Backend category tag. E.g., "search", "database", "filesystem"
	Type string `yaml:"type" json:"type"`

	// Endpoint of the backend. E.g., "http://localhost:9200/mcp"
	Endpoint string `yaml:"endpoint" json:"endpoint"`

	// Capabilities declared by the backend. E.g., {"web_search", "news_search"}
	Capabilities []string `yaml:"capabilities" json:"capabilities"`
}

// HasCapability reports whether the backend declares the exact capability.
func (b *BackendDescriptor) HasCapability(name string) bool {
	for _, capability := range b.Capabilities {
		if capability == name {
			return true
		}
	}
	return false
}

// Validate checks that the descriptor is usable as a routing candidate.
func (b *BackendDescriptor) Validate() error {
	if strings.TrimSpace(b.Name) == "" {
		return fmt.Errorf("backend descriptor requires a name")
	}
	return nil
}
