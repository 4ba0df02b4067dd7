package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"

	"github.com/annel0/autotile/internal/logging"
)

// NATSInvalidator реализует CacheInvalidator используя NATS Pub/Sub.
// Одно сообщение несёт все ключи пакета перерисовки.
// Собственные сообщения узла и повторы по ID отбрасываются.
type NATSInvalidator struct {
	conn    *nats.Conn
	config  *InvalidatorConfig
	subject string
	nodeID  string

	mu           sync.Mutex
	subscription *nats.Subscription
	handler      InvalidationHandler

	stopCh    chan struct{}
	stopOnce  sync.Once
	wg        sync.WaitGroup
	seen      map[string]time.Time
	seenMutex sync.Mutex

	publishedCount int64
	receivedCount  int64
	errorsCount    int64
}

// InvalidatorConfig содержит конфигурацию для NATS invalidator.
type InvalidatorConfig struct {
	NATSURL string `yaml:"nats_url"`
	Subject string `yaml:"subject"`

	MaxReconnects int           `yaml:"max_reconnects"`
	ReconnectWait time.Duration `yaml:"reconnect_wait"`

	// Окно, в течение которого повтор сообщения с тем же ID игнорируется
	DedupeWindow time.Duration `yaml:"dedupe_window"`
}

// InvalidationMessage представляет сообщение об инвалидации кеша.
type InvalidationMessage struct {
	ID        string    `json:"id"`
	Keys      []string  `json:"keys"`
	Timestamp time.Time `json:"timestamp"`
	NodeID    string    `json:"node_id"`
	Reason    string    `json:"reason,omitempty"`
}

func (c *InvalidatorConfig) applyDefaults() {
	if c.Subject == "" {
		c.Subject = "autotile.cache.invalidation"
	}
	if c.MaxReconnects == 0 {
		c.MaxReconnects = 10
	}
	if c.ReconnectWait == 0 {
		c.ReconnectWait = 2 * time.Second
	}
	if c.DedupeWindow == 0 {
		c.DedupeWindow = 5 * time.Second
	}
}

// NewNATSInvalidator подключается к NATS.
// nodeID отличает собственные сообщения от сообщений других узлов.
func NewNATSInvalidator(config *InvalidatorConfig, nodeID string) (*NATSInvalidator, error) {
	config.applyDefaults()

	opts := []nats.Option{
		nats.Name("autotile-" + nodeID),
		nats.MaxReconnects(config.MaxReconnects),
		nats.ReconnectWait(config.ReconnectWait),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			logging.Warn("NATS disconnected: %v", err)
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logging.Info("NATS reconnected to %s", nc.ConnectedUrl())
		}),
		nats.ClosedHandler(func(nc *nats.Conn) {
			logging.Info("NATS connection closed")
		}),
	}

	conn, err := nats.Connect(config.NATSURL, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	n := newInvalidator(conn, config, nodeID)
	n.startDedupeCleanup()

	logging.Info("📡 NATS invalidator initialized: %s (subject: %s)", config.NATSURL, config.Subject)
	return n, nil
}

func newInvalidator(conn *nats.Conn, config *InvalidatorConfig, nodeID string) *NATSInvalidator {
	config.applyDefaults()
	return &NATSInvalidator{
		conn:    conn,
		config:  config,
		subject: config.Subject,
		nodeID:  nodeID,
		stopCh:  make(chan struct{}),
		seen:    make(map[string]time.Time),
	}
}

// PublishInvalidation отправляет одно уведомление на все ключи.
func (n *NATSInvalidator) PublishInvalidation(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	data, err := json.Marshal(&InvalidationMessage{
		ID:        uuid.NewString(),
		Keys:      keys,
		Timestamp: time.Now().UTC(),
		NodeID:    n.nodeID,
		Reason:    "redraw",
	})
	if err != nil {
		atomic.AddInt64(&n.errorsCount, 1)
		return fmt.Errorf("failed to marshal invalidation message: %w", err)
	}

	if err := n.conn.Publish(n.subject, data); err != nil {
		atomic.AddInt64(&n.errorsCount, 1)
		return fmt.Errorf("failed to publish invalidation: %w", err)
	}

	atomic.AddInt64(&n.publishedCount, 1)
	logging.Debug("Published invalidation for %d keys", len(keys))
	return nil
}

// SubscribeInvalidations подписывается на уведомления об инвалидации.
func (n *NATSInvalidator) SubscribeInvalidations(ctx context.Context, handler InvalidationHandler) error {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.subscription != nil {
		return fmt.Errorf("already subscribed to invalidations")
	}
	n.handler = handler

	sub, err := n.conn.Subscribe(n.subject, func(msg *nats.Msg) {
		n.handleMessage(msg.Data)
	})
	if err != nil {
		return fmt.Errorf("failed to subscribe to invalidations: %w", err)
	}
	n.subscription = sub

	n.wg.Add(1)
	go func() {
		defer n.wg.Done()
		select {
		case <-ctx.Done():
		case <-n.stopCh:
		}
		n.unsubscribe()
	}()

	logging.Info("Subscribed to cache invalidations on subject: %s", n.subject)
	return nil
}

// Close закрывает соединение с NATS.
func (n *NATSInvalidator) Close() error {
	n.stopOnce.Do(func() { close(n.stopCh) })
	n.wg.Wait()
	n.unsubscribe()

	if n.conn != nil {
		n.conn.Close()
	}
	logging.Info("NATS invalidator closed")
	return nil
}

// GetMetrics возвращает метрики invalidator.
func (n *NATSInvalidator) GetMetrics() map[string]interface{} {
	m := map[string]interface{}{
		"published_count": atomic.LoadInt64(&n.publishedCount),
		"received_count":  atomic.LoadInt64(&n.receivedCount),
		"errors_count":    atomic.LoadInt64(&n.errorsCount),
	}
	if n.conn != nil {
		m["connected"] = n.conn.IsConnected()
		m["status"] = n.conn.Status().String()
	}
	return m
}

// handleMessage разбирает сообщение и вызывает обработчик для каждого ключа.
// Возвращает число обработанных ключей.
func (n *NATSInvalidator) handleMessage(data []byte) int {
	atomic.AddInt64(&n.receivedCount, 1)

	var msg InvalidationMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		atomic.AddInt64(&n.errorsCount, 1)
		logging.Error("Failed to unmarshal invalidation message: %v", err)
		return 0
	}

	if msg.NodeID == n.nodeID {
		return 0
	}
	if msg.ID != "" && n.markSeen(msg.ID) {
		logging.Debug("Ignoring duplicate invalidation %s", msg.ID)
		return 0
	}

	n.mu.Lock()
	handler := n.handler
	n.mu.Unlock()
	if handler == nil {
		return 0
	}

	handled := 0
	for _, key := range msg.Keys {
		if err := handler(key); err != nil {
			atomic.AddInt64(&n.errorsCount, 1)
			logging.Error("Invalidation handler failed for key %s: %v", key, err)
			continue
		}
		handled++
	}
	return handled
}

// markSeen запоминает ID и сообщает, встречался ли он в окне дедупликации.
func (n *NATSInvalidator) markSeen(id string) bool {
	n.seenMutex.Lock()
	defer n.seenMutex.Unlock()

	if last, ok := n.seen[id]; ok && time.Since(last) < n.config.DedupeWindow {
		return true
	}
	n.seen[id] = time.Now()
	return false
}

func (n *NATSInvalidator) unsubscribe() {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.subscription == nil {
		return
	}
	if err := n.subscription.Unsubscribe(); err != nil {
		logging.Error("Failed to unsubscribe from invalidations: %v", err)
	}
	n.subscription = nil
}

// startDedupeCleanup запускает периодическую очистку дедупликации.
func (n *NATSInvalidator) startDedupeCleanup() {
	n.wg.Add(1)
	go func() {
		defer n.wg.Done()

		ticker := time.NewTicker(n.config.DedupeWindow)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				n.cleanupDedupe()
			case <-n.stopCh:
				return
			}
		}
	}()
}

// cleanupDedupe удаляет старые записи из дедупликации.
func (n *NATSInvalidator) cleanupDedupe() {
	n.seenMutex.Lock()
	defer n.seenMutex.Unlock()

	now := time.Now()
	for id, ts := range n.seen {
		if now.Sub(ts) > n.config.DedupeWindow {
			delete(n.seen, id)
		}
	}
}
