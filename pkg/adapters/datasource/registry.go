package datasource

import (
	"sort"
	"sync"

	"go.uber.org/zap"
)

// ProtocolInfo describes a registered protocol.
type ProtocolInfo struct {
	Type        string `json:"type"`         // "clickhouse"
	DisplayName string `json:"display_name"` // "ClickHouse (ODBC)"
	Description string `json:"description"`
}

// ProtocolFactory builds a protocol on top of a gateway.
type ProtocolFactory func(gw Gateway, logger *zap.Logger) Protocol

// ProtocolRegistration contains info + factory for a protocol.
type ProtocolRegistration struct {
	Info    ProtocolInfo
	Factory ProtocolFactory
}

var (
	registryMu sync.RWMutex
	registry   = make(map[string]ProtocolRegistration)
)

// Register is called by each protocol package's init() function.
// Thread-safe for concurrent init() calls.
func Register(reg ProtocolRegistration) {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry[reg.Info.Type] = reg
}

// RegisteredProtocols returns info for all registered protocols, sorted by type.
func RegisteredProtocols() []ProtocolInfo {
	registryMu.RLock()
	defer registryMu.RUnlock()

	result := make([]ProtocolInfo, 0, len(registry))
	for _, reg := range registry {
		result = append(result, reg.Info)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Type < result[j].Type })
	return result
}

// GetFactory returns the factory for a protocol type.
// Returns nil if type is not registered.
func GetFactory(protocolType string) ProtocolFactory {
	registryMu.RLock()
	defer registryMu.RUnlock()

	if reg, ok := registry[protocolType]; ok {
		return reg.Factory
	}
	return nil
}

// IsRegistered checks if a protocol type is available.
func IsRegistered(protocolType string) bool {
	registryMu.RLock()
	defer registryMu.RUnlock()
	_, ok := registry[protocolType]
	return ok
}
