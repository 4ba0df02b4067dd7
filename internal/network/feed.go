package network

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/xtaci/kcp-go/v5"

	"github.com/annel0/autotile/internal/logging"
	"github.com/annel0/autotile/internal/world"
)

// FeedConfig параметры ленты перерисовки
type FeedConfig struct {
	Addr         string
	FlushEvery   time.Duration // Период отправки накопленных клеток
	BatchSize    int           // Максимум клеток в одном кадре
	QueueSize    int           // Очередь кадров на сессию
	HelloTimeout time.Duration // Ожидание кадра Subscribe
}

func (c *FeedConfig) applyDefaults() {
	if c.FlushEvery <= 0 {
		c.FlushEvery = 50 * time.Millisecond
	}
	if c.BatchSize <= 0 {
		c.BatchSize = 256
	}
	if c.QueueSize <= 0 {
		c.QueueSize = 64
	}
	if c.HelloTimeout <= 0 {
		c.HelloTimeout = 5 * time.Second
	}
}

// TokenValidator проверяет токен из кадра Subscribe
type TokenValidator func(token string) error

// configureSession настраивает KCP под поток небольших кадров
func configureSession(conn *kcp.UDPSession) {
	conn.SetStreamMode(true)
	conn.SetWriteDelay(false)
	conn.SetNoDelay(1, 20, 2, 1)
	conn.SetWindowSize(512, 512)
	conn.SetMtu(1400)
}

type feedSession struct {
	id      string
	conn    *kcp.UDPSession
	mapName atomic.Value // string
	out     chan []byte
	done    chan struct{}
	once    sync.Once
}

func (fs *feedSession) subscribed() string {
	name, _ := fs.mapName.Load().(string)
	return name
}

func (fs *feedSession) close() {
	fs.once.Do(func() {
		close(fs.done)
		fs.conn.Close()
	})
}

// FeedServer рассылает пакеты перерисовки подписанным KCP клиентам.
// Реализует world.RedrawListener.
type FeedServer struct {
	cfg       FeedConfig
	listener  *kcp.Listener
	log       *logging.Logger
	validator TokenValidator

	mu       sync.RWMutex
	sessions map[string]*feedSession

	pendingMu sync.Mutex
	pending   map[string][]world.CellUpdate
	flushNow  chan struct{}

	seq uint64

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewFeedServer создаёт сервер ленты
func NewFeedServer(cfg FeedConfig) *FeedServer {
	cfg.applyDefaults()
	ctx, cancel := context.WithCancel(context.Background())
	return &FeedServer{
		cfg:      cfg,
		log:      logging.GetFeedLogger(),
		sessions: make(map[string]*feedSession),
		pending:  make(map[string][]world.CellUpdate),
		flushNow: make(chan struct{}, 1),
		ctx:      ctx,
		cancel:   cancel,
	}
}

// SetTokenValidator включает проверку токена при подписке
func (s *FeedServer) SetTokenValidator(v TokenValidator) {
	s.validator = v
}

// Start начинает принимать KCP сессии
func (s *FeedServer) Start() error {
	listener, err := kcp.ListenWithOptions(s.cfg.Addr, nil, 10, 3)
	if err != nil {
		return fmt.Errorf("failed to listen KCP on %s: %w", s.cfg.Addr, err)
	}
	s.listener = listener

	s.wg.Add(2)
	go s.acceptLoop()
	go s.flushLoop()

	s.log.Info("📡 Лента перерисовки слушает kcp://%s", listener.Addr())
	return nil
}

// Addr возвращает фактический адрес сервера
func (s *FeedServer) Addr() string {
	if s.listener == nil {
		return s.cfg.Addr
	}
	return s.listener.Addr().String()
}

// Stop закрывает все сессии
func (s *FeedServer) Stop() {
	s.cancel()
	if s.listener != nil {
		s.listener.Close()
	}

	s.mu.Lock()
	for id, fs := range s.sessions {
		fs.close()
		delete(s.sessions, id)
	}
	s.mu.Unlock()
	feedSessions.Set(0)

	s.wg.Wait()
	s.log.Info("✅ Лента перерисовки остановлена")
}

// SessionCount число подписанных клиентов
func (s *FeedServer) SessionCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := 0
	for _, fs := range s.sessions {
		if fs.subscribed() != "" {
			n++
		}
	}
	return n
}

// OnRedraw накапливает клетки до следующей отправки
func (s *FeedServer) OnRedraw(ctx context.Context, mapName string, updates []world.CellUpdate) {
	if len(updates) == 0 {
		return
	}
	s.pendingMu.Lock()
	s.pending[mapName] = append(s.pending[mapName], updates...)
	full := len(s.pending[mapName]) >= s.cfg.BatchSize
	s.pendingMu.Unlock()

	if full {
		select {
		case s.flushNow <- struct{}{}:
		default:
		}
	}
}

// Flush отправляет накопленные клетки и возвращает число кадров
func (s *FeedServer) Flush() int {
	s.pendingMu.Lock()
	pending := s.pending
	s.pending = make(map[string][]world.CellUpdate)
	s.pendingMu.Unlock()

	frames := 0
	for mapName, cells := range pending {
		for start := 0; start < len(cells); start += s.cfg.BatchSize {
			end := start + s.cfg.BatchSize
			if end > len(cells) {
				end = len(cells)
			}
			batch := RedrawBatch{
				Map:   mapName,
				Seq:   atomic.AddUint64(&s.seq, 1),
				Cells: cells[start:end],
			}
			frame, err := EncodeFrame(batch)
			if err != nil {
				s.log.Error("Ошибка кодирования кадра карты %s: %v", mapName, err)
				continue
			}
			s.broadcast(mapName, frame)
			frames++
		}
	}
	return frames
}

func (s *FeedServer) broadcast(mapName string, frame []byte) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, fs := range s.sessions {
		if fs.subscribed() != mapName {
			continue
		}
		select {
		case fs.out <- frame:
		default:
			feedDroppedTotal.Inc()
			s.log.Warn("⚠️ Очередь сессии %s переполнена, кадр отброшен", fs.id)
		}
	}
}

func (s *FeedServer) acceptLoop() {
	defer s.wg.Done()
	for {
		conn, err := s.listener.AcceptKCP()
		if err != nil {
			select {
			case <-s.ctx.Done():
				return
			default:
			}
			s.log.Error("Ошибка приёма KCP сессии: %v", err)
			continue
		}
		configureSession(conn)

		fs := &feedSession{
			id:   uuid.NewString(),
			conn: conn,
			out:  make(chan []byte, s.cfg.QueueSize),
			done: make(chan struct{}),
		}
		s.mu.Lock()
		s.sessions[fs.id] = fs
		s.mu.Unlock()

		s.wg.Add(2)
		go s.readLoop(fs)
		go s.writeLoop(fs)
	}
}

func (s *FeedServer) removeSession(fs *feedSession) {
	fs.close()
	s.mu.Lock()
	if _, ok := s.sessions[fs.id]; ok {
		delete(s.sessions, fs.id)
		if fs.subscribed() != "" {
			feedSessions.Dec()
		}
	}
	s.mu.Unlock()
}

// readLoop принимает кадры Subscribe; повторный кадр меняет карту
func (s *FeedServer) readLoop(fs *feedSession) {
	defer s.wg.Done()
	defer s.removeSession(fs)

	fs.conn.SetReadDeadline(time.Now().Add(s.cfg.HelloTimeout))
	for {
		var sub Subscribe
		if err := ReadFrame(fs.conn, &sub); err != nil {
			s.log.Debug("Сессия %s закрыта: %v", fs.id, err)
			return
		}
		if sub.Map == "" {
			s.log.Warn("Сессия %s: пустое имя карты", fs.id)
			return
		}
		if s.validator != nil {
			if err := s.validator(sub.Token); err != nil {
				s.log.Warn("🔒 Сессия %s: токен отклонён: %v", fs.id, err)
				return
			}
		}

		if fs.subscribed() == "" {
			feedSessions.Inc()
		}
		fs.mapName.Store(sub.Map)
		fs.conn.SetReadDeadline(time.Time{})

		// Подтверждение подписки: пустой пакет с Seq 0
		ack, err := EncodeFrame(RedrawBatch{Map: sub.Map})
		if err == nil {
			select {
			case fs.out <- ack:
			case <-fs.done:
				return
			}
		}
		s.log.Info("🔗 Сессия %s подписана на карту %s", fs.id, sub.Map)
	}
}

func (s *FeedServer) writeLoop(fs *feedSession) {
	defer s.wg.Done()
	for {
		select {
		case frame := <-fs.out:
			n, err := fs.conn.Write(frame)
			if err != nil {
				s.log.Debug("Ошибка записи в сессию %s: %v", fs.id, err)
				s.removeSession(fs)
				return
			}
			feedFramesTotal.Inc()
			feedBytesTotal.Add(float64(n))
		case <-fs.done:
			return
		case <-s.ctx.Done():
			return
		}
	}
}

func (s *FeedServer) flushLoop() {
	defer s.wg.Done()
	ticker := time.NewTicker(s.cfg.FlushEvery)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.Flush()
		case <-s.flushNow:
			s.Flush()
		case <-s.ctx.Done():
			s.Flush()
			return
		}
	}
}

// FeedClient подписчик ленты перерисовки
type FeedClient struct {
	conn    *kcp.UDPSession
	mapName string
}

// DialFeed подключается, подписывается на карту и ждёт подтверждения
func DialFeed(ctx context.Context, addr, mapName, token string) (*FeedClient, error) {
	conn, err := kcp.DialWithOptions(addr, nil, 10, 3)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s: %w", addr, err)
	}
	configureSession(conn)

	c := &FeedClient{conn: conn, mapName: mapName}
	if _, err := WriteFrame(conn, Subscribe{Map: mapName, Token: token}); err != nil {
		conn.Close()
		return nil, fmt.Errorf("subscribe: %w", err)
	}

	ack, err := c.Next(ctx)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("subscribe ack: %w", err)
	}
	if ack.Map != mapName || ack.Seq != 0 {
		conn.Close()
		return nil, fmt.Errorf("unexpected subscribe ack: map=%s seq=%d", ack.Map, ack.Seq)
	}
	return c, nil
}

// Next ждёт следующий пакет перерисовки до отмены ctx
func (c *FeedClient) Next(ctx context.Context) (RedrawBatch, error) {
	deadline, _ := ctx.Deadline()
	c.conn.SetReadDeadline(deadline)

	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-ctx.Done():
			c.conn.SetReadDeadline(time.Now())
		case <-stop:
		}
	}()

	var batch RedrawBatch
	if err := ReadFrame(c.conn, &batch); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return RedrawBatch{}, ctxErr
		}
		return RedrawBatch{}, err
	}
	return batch, nil
}

// Close закрывает соединение
func (c *FeedClient) Close() error {
	return c.conn.Close()
}
