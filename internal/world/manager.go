package world

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/annel0/autotile/internal/autotile"
	"github.com/annel0/autotile/internal/eventbus"
	"github.com/annel0/autotile/internal/logging"
	"github.com/annel0/autotile/internal/vec"
)

// ErrInvalidMapName имя карты пустое или содержит ':'
var ErrInvalidMapName = errors.New("world: invalid map name")

// ChunkStore хранилище чанков карты
type ChunkStore interface {
	SaveChunk(mapName string, c *Chunk) error
	LoadMap(mapName string) ([]*Chunk, error)
}

// Options параметры Manager
type Options struct {
	Registry    *autotile.Registry
	Store       ChunkStore        // nil: карты живут только в памяти
	Bus         eventbus.EventBus // nil: события не публикуются
	Source      string            // Источник событий, обычно NodeID
	EventBuffer int
}

// Manager управляет именованными картами, их сохранением и публикацией событий
type Manager struct {
	registry *autotile.Registry
	store    ChunkStore
	bus      eventbus.EventBus
	source   string
	tracer   trace.Tracer
	log      *logging.Logger

	mu        sync.Mutex
	maps      map[string]*TileMap
	listeners []RedrawListener

	events   chan Event
	saveMu   sync.Mutex
	lastSave time.Time

	ctx        context.Context
	cancelFunc context.CancelFunc
	wg         sync.WaitGroup
}

// NewManager создаёт менеджер карт
func NewManager(opts Options) *Manager {
	if opts.Registry == nil {
		opts.Registry = autotile.NewRegistry()
	}
	if opts.Source == "" {
		opts.Source = "world"
	}
	if opts.EventBuffer <= 0 {
		opts.EventBuffer = 1024
	}
	ctx, cancel := context.WithCancel(context.Background())

	return &Manager{
		registry:   opts.Registry,
		store:      opts.Store,
		bus:        opts.Bus,
		source:     opts.Source,
		tracer:     otel.Tracer("autotile/world"),
		log:        logging.GetWorldLogger(),
		maps:       make(map[string]*TileMap),
		events:     make(chan Event, opts.EventBuffer),
		lastSave:   time.Now(),
		ctx:        ctx,
		cancelFunc: cancel,
	}
}

// Registry возвращает общий реестр определений
func (m *Manager) Registry() *autotile.Registry {
	return m.registry
}

// AddListener подписывает слушателя на все текущие и будущие карты
func (m *Manager) AddListener(l RedrawListener) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.listeners = append(m.listeners, l)
	for _, tm := range m.maps {
		tm.AddListener(l)
	}
}

func validMapName(name string) bool {
	return name != "" && !strings.ContainsAny(name, ":/ ")
}

// Map возвращает карту по имени, при первом обращении загружая её из хранилища
func (m *Manager) Map(ctx context.Context, name string) (*TileMap, error) {
	if !validMapName(name) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidMapName, name)
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if tm, ok := m.maps[name]; ok {
		return tm, nil
	}

	tm := NewTileMap(name, m.registry)
	if m.store != nil {
		_, span := m.tracer.Start(ctx, "world.LoadMap", trace.WithAttributes(attribute.String("map", name)))
		chunks, err := m.store.LoadMap(name)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			span.End()
			return nil, fmt.Errorf("load map %s: %w", name, err)
		}
		for _, c := range chunks {
			tm.PutChunk(c)
		}
		span.SetAttributes(attribute.Int("chunks", len(chunks)))
		span.End()
		m.log.Info("🗺️ Карта %s загружена: %d чанков", name, len(chunks))
	}
	for _, l := range m.listeners {
		tm.AddListener(l)
	}
	m.maps[name] = tm
	return tm, nil
}

// Maps возвращает имена загруженных карт
func (m *Manager) Maps() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	names := make([]string, 0, len(m.maps))
	for name := range m.maps {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// SetTile изменяет клетку карты и публикует событие
func (m *Manager) SetTile(ctx context.Context, name string, pos vec.Vec3, id autotile.TileID) ([]CellUpdate, error) {
	ctx, span := m.tracer.Start(ctx, "world.SetTile", trace.WithAttributes(
		attribute.String("map", name),
		attribute.String("pos", pos.String()),
		attribute.Int("tile", int(id)),
	))
	defer span.End()

	tm, err := m.Map(ctx, name)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	prev, updates, err := tm.ReplaceTile(ctx, pos, id)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	span.SetAttributes(attribute.Int("redraws", len(updates)))
	if len(updates) == 0 {
		return updates, nil
	}

	evType := EventTypeTileSet
	if id == autotile.NoTile {
		evType = EventTypeTileRemoved
	}
	m.enqueue(TileEvent{
		EventType: evType,
		Map:       name,
		Position:  pos,
		Tile:      id,
		Previous:  prev,
		Index:     updates[0].Index,
	})
	m.enqueue(RedrawEvent{Map: name, Updates: updates})
	return updates, nil
}

// RemoveTile очищает клетку карты
func (m *Manager) RemoveTile(ctx context.Context, name string, pos vec.Vec3) ([]CellUpdate, error) {
	return m.SetTile(ctx, name, pos, autotile.NoTile)
}

// Resolve разрешает клетку карты
func (m *Manager) Resolve(ctx context.Context, name string, pos vec.Vec3) (CellUpdate, autotile.TileData, bool, error) {
	tm, err := m.Map(ctx, name)
	if err != nil {
		return CellUpdate{}, autotile.TileData{}, false, err
	}
	data, ok := tm.ResolveCell(pos)
	return tm.Cell(pos), data, ok, nil
}

// Region возвращает индексы спрайтов области карты
func (m *Manager) Region(ctx context.Context, name string, r Rect, layer int) ([][]int, error) {
	_, span := m.tracer.Start(ctx, "world.Region", trace.WithAttributes(
		attribute.String("map", name),
		attribute.Int("width", r.Width()),
		attribute.Int("height", r.Height()),
	))
	defer span.End()

	tm, err := m.Map(ctx, name)
	if err != nil {
		return nil, err
	}
	return tm.ResolveRegion(r, layer)
}

// Save сохраняет изменённые чанки карты и возвращает их число
func (m *Manager) Save(ctx context.Context, name string) (int, error) {
	m.mu.Lock()
	tm, ok := m.maps[name]
	m.mu.Unlock()
	if !ok || m.store == nil {
		return 0, nil
	}

	_, span := m.tracer.Start(ctx, "world.Save", trace.WithAttributes(attribute.String("map", name)))
	defer span.End()

	m.saveMu.Lock()
	defer m.saveMu.Unlock()

	saved := 0
	for _, c := range tm.Chunks() {
		if !c.HasChanges() {
			continue
		}
		if err := m.store.SaveChunk(name, c); err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return saved, fmt.Errorf("save chunk %v layer %d: %w", c.Coords, c.Layer, err)
		}
		saved++
	}
	m.lastSave = time.Now()
	span.SetAttributes(attribute.Int("chunks", saved))
	if saved > 0 {
		m.log.Info("💾 Карта %s сохранена: %d чанков", name, saved)
		m.enqueue(SaveEvent{Map: name, Chunks: saved})
	}
	return saved, nil
}

// SaveAll сохраняет все загруженные карты
func (m *Manager) SaveAll(ctx context.Context) error {
	var errs []error
	for _, name := range m.Maps() {
		if _, err := m.Save(ctx, name); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Stats возвращает сводку по всем картам
func (m *Manager) Stats() []MapStats {
	m.mu.Lock()
	maps := make([]*TileMap, 0, len(m.maps))
	for _, tm := range m.maps {
		maps = append(maps, tm)
	}
	m.mu.Unlock()

	out := make([]MapStats, 0, len(maps))
	for _, tm := range maps {
		out = append(out, tm.Stats())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Run запускает публикацию событий и автосохранение.
// saveEvery <= 0 отключает автосохранение.
func (m *Manager) Run(parentCtx context.Context, saveEvery time.Duration) {
	if parentCtx != nil {
		m.ctx, m.cancelFunc = context.WithCancel(parentCtx)
	}

	m.wg.Add(1)
	go m.processEvents()

	if saveEvery > 0 {
		m.wg.Add(1)
		go m.autoSaveLoop(saveEvery)
	}
}

// Stop останавливает фоновые задачи и сохраняет все карты
func (m *Manager) Stop(ctx context.Context) error {
	m.cancelFunc()
	m.wg.Wait()
	return m.SaveAll(ctx)
}

func (m *Manager) enqueue(ev Event) {
	select {
	case m.events <- ev:
	default:
		m.log.Warn("⚠️ Очередь событий переполнена, событие %s отброшено", ev.GetType())
	}
}

func (m *Manager) processEvents() {
	defer m.wg.Done()
	for {
		select {
		case ev := <-m.events:
			m.publish(ev)
		case <-m.ctx.Done():
			// Дописываем то, что уже в очереди
			for {
				select {
				case ev := <-m.events:
					m.publish(ev)
				default:
					return
				}
			}
		}
	}
}

func (m *Manager) publish(ev Event) {
	if m.bus == nil {
		return
	}

	var (
		payload  eventbus.TileEvent
		priority = eventbus.PriorityNormal
	)
	switch e := ev.(type) {
	case TileEvent:
		payload = eventbus.TileEvent{
			Map: e.Map, X: e.Position.X, Y: e.Position.Y, Layer: e.Position.Z,
			Tile: uint16(e.Tile), Previous: uint16(e.Previous), Index: e.Index,
		}
	case RedrawEvent:
		if len(e.Updates) == 0 {
			return
		}
		first := e.Updates[0]
		payload = eventbus.TileEvent{
			Map: e.Map, X: first.Pos.X, Y: first.Pos.Y, Layer: first.Pos.Z,
			Tile: uint16(first.Tile), Index: first.Index, Redraws: len(e.Updates),
		}
		priority = eventbus.PriorityLow
	case SaveEvent:
		payload = eventbus.TileEvent{Map: e.Map, Redraws: e.Chunks}
		priority = eventbus.PriorityHigh
	default:
		return
	}
	payload.Timestamp = time.Now().UTC()

	data, err := eventbus.EncodeTileEvent(payload)
	if err != nil {
		m.log.Error("Ошибка кодирования события %s: %v", ev.GetType(), err)
		return
	}
	env := eventbus.NewEnvelope(m.source, ev.GetType().String(), priority, data)
	env.Metadata["map"] = payload.Map
	// m.ctx может быть уже отменён при дописывании очереди
	if err := m.bus.Publish(context.Background(), env); err != nil {
		m.log.Warn("Не удалось опубликовать %s: %v", env.EventType, err)
	}
}

func (m *Manager) autoSaveLoop(every time.Duration) {
	defer m.wg.Done()
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := m.SaveAll(m.ctx); err != nil {
				m.log.Error("Ошибка автосохранения: %v", err)
			}
		case <-m.ctx.Done():
			return
		}
	}
}
