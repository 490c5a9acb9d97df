package datasource

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-dbconn/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-dbconn/pkg/logging"
	"github.com/ekaya-inc/ekaya-dbconn/pkg/retry"
)

const (
	DefaultConnectionTTLMinutes        = 5
	DefaultCleanupInterval             = 1 * time.Minute
	DefaultMaxConnectionsPerDatasource = 10
	DefaultCloseTimeout                = 10 * time.Second
)

var (
	errIdleExpired   = errors.New("idle connection expired")
	errSlotRemoved   = errors.New("connection slot removed")
	errManagerClosed = errors.New("connection manager closed")
)

// ConnectionManagerConfig holds configuration for the connection manager
type ConnectionManagerConfig struct {
	TTLMinutes                  int
	MaxConnectionsPerDatasource int
	// Retry governs connection establishment. Nil uses retry.DefaultConfig().
	Retry *retry.Config
}

// SlotKey identifies one pooled connection.
type SlotKey struct {
	Datasource string
	Slot       int
}

func (k SlotKey) String() string {
	return fmt.Sprintf("%s:%d", k.Datasource, k.Slot)
}

// ConnectionManager drives Protocol callbacks for a set of pooled connections.
// Every call against one slot is serialized by the slot's mutex, which is the
// precondition the protocol relies on.
type ConnectionManager struct {
	mu                          sync.RWMutex
	connections                 map[SlotKey]*ManagedConnection
	protocol                    Protocol
	ttl                         time.Duration
	maxConnectionsPerDatasource int
	retryConfig                 *retry.Config
	stopped                     bool
	stopChan                    chan struct{}
	logger                      *zap.Logger
}

// ManagedConnection is one slot: the protocol state plus the config it was
// built from.
type ManagedConnection struct {
	state    *ConnState
	config   map[string]any
	lastUsed time.Time
	mu       sync.Mutex // serializes protocol calls on state
}

// NewConnectionManager creates a connection manager for the given protocol.
// Starts a background cleanup goroutine that runs until Close() is called.
func NewConnectionManager(cfg ConnectionManagerConfig, protocol Protocol, logger *zap.Logger) *ConnectionManager {
	if cfg.TTLMinutes <= 0 {
		cfg.TTLMinutes = DefaultConnectionTTLMinutes
	}
	if cfg.MaxConnectionsPerDatasource <= 0 {
		cfg.MaxConnectionsPerDatasource = DefaultMaxConnectionsPerDatasource
	}
	if cfg.Retry == nil {
		cfg.Retry = retry.DefaultConfig()
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	manager := &ConnectionManager{
		connections:                 make(map[SlotKey]*ManagedConnection),
		protocol:                    protocol,
		ttl:                         time.Duration(cfg.TTLMinutes) * time.Minute,
		maxConnectionsPerDatasource: cfg.MaxConnectionsPerDatasource,
		retryConfig:                 cfg.Retry,
		stopChan:                    make(chan struct{}),
		logger:                      logger,
	}

	go manager.cleanupExpiredConnections()
	return manager
}

// NewConnectionManagerForType looks up a registered protocol and builds a
// manager around it.
func NewConnectionManagerForType(cfg ConnectionManagerConfig, protocolType string, gw Gateway, logger *zap.Logger) (*ConnectionManager, error) {
	factory := GetFactory(protocolType)
	if factory == nil {
		return nil, fmt.Errorf("unsupported protocol type: %s (not compiled in)", protocolType)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return NewConnectionManager(cfg, factory(gw, logger), logger), nil
}

// countConnectionsForDatasource counts slots for a datasource.
// Caller must hold m.mu lock.
func (m *ConnectionManager) countConnectionsForDatasource(datasource string) int {
	count := 0
	for key := range m.connections {
		if key.Datasource == datasource {
			count++
		}
	}
	return count
}

// Execute runs a statement on the slot, connecting it first if needed.
// A connection-fatal failure discards the slot; the next call reconnects.
func (m *ConnectionManager) Execute(
	ctx context.Context,
	key SlotKey,
	config map[string]any,
	query Query,
	params []Param,
	opts QueryOptions,
) (*Result, error) {
	managed, err := m.acquire(ctx, key, config)
	if err != nil {
		return nil, err
	}

	checkout := m.protocol.Checkout(ctx, managed.state)
	if !checkout.IsOK() {
		m.discardLocked(ctx, key, managed, checkout.Err)
		managed.mu.Unlock()
		m.forget(key, managed)
		_, err := checkout.Unwrap()
		return nil, err
	}
	managed.state = checkout.State

	out := m.protocol.Execute(ctx, query, params, opts, managed.state)
	if out.IsDisconnect() {
		m.logger.Warn("connection lost during query, discarding",
			zap.String("key", key.String()),
			zap.String("query", query.Name),
			zap.String("error", logging.SanitizeError(out.Err)),
		)
		m.discardLocked(ctx, key, managed, out.Err)
		managed.mu.Unlock()
		m.forget(key, managed)
		return out.Unwrap()
	}

	checkin := m.protocol.Checkin(ctx, out.State)
	managed.state = checkin.State
	managed.lastUsed = time.Now()
	managed.mu.Unlock()

	return out.Unwrap()
}

// acquire returns the slot's managed connection with its mutex held.
// Reused connections are health-checked with Ping; unhealthy ones are
// replaced.
func (m *ConnectionManager) acquire(ctx context.Context, key SlotKey, config map[string]any) (*ManagedConnection, error) {
	for {
		m.mu.RLock()
		if m.stopped {
			m.mu.RUnlock()
			return nil, apperrors.ErrPoolClosed
		}
		managed, exists := m.connections[key]
		m.mu.RUnlock()

		if !exists {
			created, existing, err := m.createConnection(ctx, key, config)
			if err != nil {
				return nil, err
			}
			if created != nil {
				return created, nil
			}
			managed = existing
		}

		managed.mu.Lock()
		if managed.state.IsIdle() {
			ping := m.protocol.Ping(ctx, managed.state)
			if ping.IsOK() {
				managed.state = ping.State
				return managed, nil
			}

			m.logger.Warn("connection unhealthy, recreating",
				zap.String("key", key.String()),
				zap.String("error", logging.SanitizeError(ping.Err)),
			)
			m.discardLocked(ctx, key, managed, ping.Err)
		}
		managed.mu.Unlock()
		m.forget(key, managed)
	}
}

// createConnection connects a new slot with retry logic.
// Caller must NOT hold any locks (this method acquires write lock).
// A new connection is returned with its mutex held. If another goroutine
// created the slot first, that entry is returned unlocked as existing so the
// caller can wait for it without holding the manager lock.
func (m *ConnectionManager) createConnection(ctx context.Context, key SlotKey, config map[string]any) (created, existing *ManagedConnection, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.stopped {
		return nil, nil, apperrors.ErrPoolClosed
	}

	// Double-check after acquiring write lock (another goroutine may have created it)
	if managed, exists := m.connections[key]; exists && managed != nil {
		return nil, managed, nil
	}

	count := m.countConnectionsForDatasource(key.Datasource)
	if count >= m.maxConnectionsPerDatasource {
		m.logger.Warn("datasource reached max connections limit",
			zap.String("datasource", key.Datasource),
			zap.Int("current", count),
			zap.Int("max", m.maxConnectionsPerDatasource),
		)
		return nil, nil, fmt.Errorf("datasource %s has reached maximum connections limit (%d): %w",
			key.Datasource, m.maxConnectionsPerDatasource, apperrors.ErrConnectionLimitReached)
	}

	var state *ConnState
	err = retry.DoIfRetryable(ctx, m.retryConfig, func() error {
		out := m.protocol.Connect(ctx, config)
		if !out.IsOK() {
			return out.Err
		}
		state = out.Value
		return nil
	})
	if err != nil {
		m.logger.Error("failed to connect after retries",
			zap.String("key", key.String()),
			zap.String("error", logging.SanitizeError(err)),
		)
		return nil, nil, fmt.Errorf("failed to connect %s: %w", key, err)
	}

	managed := &ManagedConnection{
		state:    state,
		config:   config,
		lastUsed: time.Now(),
	}
	managed.mu.Lock()
	m.connections[key] = managed

	m.logger.Info("created new connection",
		zap.String("key", key.String()),
		zap.String("handle", state.Handle.String()),
		zap.Int("datasourceTotalConnections", count+1),
	)

	return managed, nil, nil
}

// discardLocked disconnects the slot's state. Caller must hold managed.mu.
func (m *ConnectionManager) discardLocked(ctx context.Context, key SlotKey, managed *ManagedConnection, reason error) {
	if managed.state == nil || managed.state.Status == StatusTerminated {
		return
	}
	out := m.protocol.Disconnect(ctx, reason, managed.state)
	if !out.IsOK() {
		m.logger.Warn("disconnect failed",
			zap.String("key", key.String()),
			zap.String("error", logging.SanitizeError(out.Err)),
		)
	}
	// The slot is gone from the pool's perspective whatever the gateway said.
	managed.state.Terminate()
}

// forget removes the slot from the map if it still holds managed.
// Caller must NOT hold m.mu lock.
func (m *ConnectionManager) forget(key SlotKey, managed *ManagedConnection) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if current, exists := m.connections[key]; exists && current == managed {
		delete(m.connections, key)
		m.logger.Debug("removed connection",
			zap.String("key", key.String()),
		)
	}
}

// Ping health-checks an existing slot. A failed ping discards the slot.
func (m *ConnectionManager) Ping(ctx context.Context, key SlotKey) error {
	managed, err := m.lookup(key)
	if err != nil {
		return err
	}

	managed.mu.Lock()
	out := m.protocol.Ping(ctx, managed.state)
	if out.IsOK() {
		managed.state = out.State
		managed.mu.Unlock()
		return nil
	}
	m.discardLocked(ctx, key, managed, out.Err)
	managed.mu.Unlock()
	m.forget(key, managed)

	_, err = out.Unwrap()
	return err
}

// Reconnect replaces the slot's connection using config. If the old
// connection cannot be released the slot is dropped and no new connection is
// opened.
func (m *ConnectionManager) Reconnect(ctx context.Context, key SlotKey, config map[string]any) error {
	managed, err := m.lookup(key)
	if err != nil {
		return err
	}

	managed.mu.Lock()
	out := m.protocol.Reconnect(ctx, config, managed.state)
	if out.IsOK() {
		managed.state = out.Value
		managed.config = config
		managed.lastUsed = time.Now()
		managed.mu.Unlock()

		m.logger.Info("reconnected",
			zap.String("key", key.String()),
			zap.String("handle", out.Value.Handle.String()),
		)
		return nil
	}
	managed.state.Terminate()
	managed.mu.Unlock()
	m.forget(key, managed)

	m.logger.Warn("reconnect failed, slot dropped",
		zap.String("key", key.String()),
		zap.String("error", logging.SanitizeError(out.Err)),
	)
	_, err = out.Unwrap()
	return fmt.Errorf("reconnect %s: %w", key, err)
}

// Notify forwards an out-of-band message to the slot's protocol state.
func (m *ConnectionManager) Notify(ctx context.Context, key SlotKey, msg any) error {
	managed, err := m.lookup(key)
	if err != nil {
		return err
	}

	managed.mu.Lock()
	defer managed.mu.Unlock()

	out := m.protocol.HandleInfo(ctx, msg, managed.state)
	if out.State != nil {
		managed.state = out.State
	}
	_, err = out.Unwrap()
	return err
}

// Remove disconnects the slot and drops it from the manager.
func (m *ConnectionManager) Remove(ctx context.Context, key SlotKey) error {
	managed, err := m.lookup(key)
	if err != nil {
		return err
	}

	managed.mu.Lock()
	var disconnectErr error
	if managed.state != nil && managed.state.Status != StatusTerminated {
		out := m.protocol.Disconnect(ctx, errSlotRemoved, managed.state)
		_, disconnectErr = out.Unwrap()
		managed.state.Terminate()
	}
	managed.mu.Unlock()
	m.forget(key, managed)

	return disconnectErr
}

func (m *ConnectionManager) lookup(key SlotKey) (*ManagedConnection, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.stopped {
		return nil, apperrors.ErrPoolClosed
	}
	managed, exists := m.connections[key]
	if !exists || managed == nil {
		return nil, fmt.Errorf("connection %s: %w", key, apperrors.ErrNotFound)
	}
	return managed, nil
}

// cleanupExpiredConnections runs periodically to remove expired connections.
// Runs in a background goroutine until stopChan is closed.
func (m *ConnectionManager) cleanupExpiredConnections() {
	ticker := time.NewTicker(DefaultCleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			m.performCleanup(context.Background())
		case <-m.stopChan:
			return
		}
	}
}

// performCleanup disconnects slots that haven't been used within TTL.
// Busy slots are skipped. Lock ordering: manager lock → connection lock.
func (m *ConnectionManager) performCleanup(ctx context.Context) {
	m.mu.Lock()
	if m.stopped {
		m.mu.Unlock()
		return
	}

	now := time.Now()
	expired := make(map[SlotKey]*ManagedConnection)

	for key, managed := range m.connections {
		if managed == nil || !managed.mu.TryLock() {
			continue
		}
		idleTime := now.Sub(managed.lastUsed)
		if idleTime > m.ttl {
			expired[key] = managed // stays locked until disconnected below
			delete(m.connections, key)
			m.logger.Debug("marking connection for cleanup",
				zap.String("key", key.String()),
				zap.Duration("idleTime", idleTime),
				zap.Duration("ttl", m.ttl),
			)
			continue
		}
		managed.mu.Unlock()
	}
	remaining := len(m.connections)
	m.mu.Unlock()

	for key, managed := range expired {
		m.discardLocked(ctx, key, managed, errIdleExpired)
		managed.mu.Unlock()
	}

	if len(expired) > 0 {
		m.logger.Info("cleaned up expired connections",
			zap.Int("count", len(expired)),
			zap.Int("remaining", remaining),
		)
	}
}

// Close disconnects every slot and stops the cleanup goroutine.
// This method is idempotent and safe to call multiple times.
func (m *ConnectionManager) Close() error {
	m.mu.Lock()
	if m.stopped {
		m.mu.Unlock()
		return nil
	}
	m.stopped = true
	close(m.stopChan)
	connections := m.connections
	m.connections = make(map[SlotKey]*ManagedConnection)
	m.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), DefaultCloseTimeout)
	defer cancel()

	for key, managed := range connections {
		if managed == nil {
			continue
		}
		managed.mu.Lock()
		m.discardLocked(ctx, key, managed, errManagerClosed)
		managed.mu.Unlock()
	}

	m.logger.Info("connection manager closed",
		zap.Int("disconnected", len(connections)),
	)
	return nil
}

// GetStats returns statistics about the connection manager.
// Safe to call concurrently; busy slots report zero idle time.
func (m *ConnectionManager) GetStats() ConnectionStats {
	m.mu.RLock()
	defer m.mu.RUnlock()

	now := time.Now()
	stats := ConnectionStats{
		TotalConnections:            len(m.connections),
		MaxConnectionsPerDatasource: m.maxConnectionsPerDatasource,
		TTLMinutes:                  int(m.ttl.Minutes()),
		ConnectionsByDatasource:     make(map[string]int),
		OldestIdleSeconds:           0,
	}

	for key, managed := range m.connections {
		stats.ConnectionsByDatasource[key.Datasource]++

		if managed != nil && managed.mu.TryLock() {
			idleSeconds := int(now.Sub(managed.lastUsed).Seconds())
			managed.mu.Unlock()
			if idleSeconds > stats.OldestIdleSeconds {
				stats.OldestIdleSeconds = idleSeconds
			}
		}
	}

	return stats
}

// ConnectionStats contains statistics about the connection manager state.
type ConnectionStats struct {
	TotalConnections            int            `json:"total_connections"`
	MaxConnectionsPerDatasource int            `json:"max_connections_per_datasource"`
	TTLMinutes                  int            `json:"ttl_minutes"`
	ConnectionsByDatasource     map[string]int `json:"connections_by_datasource"`
	OldestIdleSeconds           int            `json:"oldest_idle_seconds"`
}
