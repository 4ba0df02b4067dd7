// tilegen заполняет карту ландшафтом из шума Перлина и сохраняет её в хранилище сервера.
//
// Профилирование:
//
//	tilegen -size 512 -profile cpu
//	go tool pprof -http=":8000" ./tilegen cpu.pprof
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/pkg/profile"

	"github.com/annel0/autotile/internal/autotile"
	"github.com/annel0/autotile/internal/config"
	"github.com/annel0/autotile/internal/logging"
	"github.com/annel0/autotile/internal/storage"
	"github.com/annel0/autotile/internal/tileset"
	"github.com/annel0/autotile/internal/vec"
	"github.com/annel0/autotile/internal/world"
)

func main() {
	defaults := config.Default().Generator
	var (
		configPath = flag.String("config", "", "YAML конфигурация сервера (секции storage и generator)")
		seed       = flag.Int64("seed", defaults.Seed, "сид шума")
		width      = flag.Int("width", defaults.Width, "ширина области")
		height     = flag.Int("height", defaults.Height, "высота области")
		scale      = flag.Float64("scale", defaults.NoiseScale, "масштаб шума")
		mapName    = flag.String("map", "overworld", "имя карты")
		dataPath   = flag.String("data", "", "каталог хранилища (по умолчанию из конфигурации)")
		layer      = flag.Int("layer", 0, "слой")
		preview    = flag.String("preview", "terrain", "предпросмотр: terrain, index или none")
		mode       = flag.String("profile", "", "профиль: cpu или mem")
	)
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("❌ Ошибка загрузки конфигурации: %v", err)
	}
	if *dataPath == "" {
		*dataPath = cfg.Storage.DataPath
	}

	switch *mode {
	case "cpu":
		defer profile.Start(profile.CPUProfile, profile.ProfilePath("."), profile.NoShutdownHook).Stop()
	case "mem":
		defer profile.Start(profile.MemProfileAllocs, profile.ProfilePath("."), profile.NoShutdownHook).Stop()
	case "":
	default:
		log.Fatalf("❌ Неизвестный профиль %q", *mode)
	}

	if err := run(*mapName, *dataPath, *seed, *width, *height, *scale, *layer, *preview); err != nil {
		logging.Error("❌ %v", err)
		os.Exit(1)
	}
}

func run(mapName, dataPath string, seed int64, width, height int, scale float64, layer int, preview string) error {
	ctx := context.Background()

	registry := autotile.NewRegistry()
	if _, err := tileset.Sync(ctx, tileset.NewMemoryRepository(tileset.DefaultDefinitions()...), registry); err != nil {
		return err
	}

	store, err := storage.NewMapStorage(dataPath)
	if err != nil {
		return err
	}
	defer store.Close()

	manager := world.NewManager(world.Options{Registry: registry, Store: store, Source: "tilegen"})
	tm, err := manager.Map(ctx, mapName)
	if err != nil {
		return err
	}

	gen := world.NewGenerator(seed, scale, world.Palette{
		Water: tileset.TerrainWater,
		Sand:  tileset.TerrainSand,
		Grass: tileset.TerrainGrass,
		Rock:  tileset.TerrainRock,
	})
	rect := world.NewRect(0, 0, width-1, height-1)

	start := time.Now()
	written, err := gen.Fill(ctx, tm, rect, layer)
	if err != nil {
		return err
	}
	drained := len(tm.DrainRedraws())
	logging.Info("🌍 Сгенерировано %d клеток карты %s за %s (перерисовок: %d)", written, mapName, time.Since(start), drained)

	saved, err := manager.Save(ctx, mapName)
	if err != nil {
		return err
	}
	logging.Info("💾 Сохранено чанков: %d в %s", saved, dataPath)

	switch preview {
	case "terrain":
		printTerrain(tm, rect, layer)
	case "index":
		rows, err := tm.ResolveRegion(rect, layer)
		if err != nil {
			return err
		}
		printIndices(rows)
	}
	return nil
}

var terrainGlyphs = map[autotile.TileID]byte{
	tileset.TerrainWater: '~',
	tileset.TerrainSand:  '.',
	tileset.TerrainGrass: '"',
	tileset.TerrainRock:  '^',
}

// printTerrain печатает карту сверху вниз, север наверху
func printTerrain(tm *world.TileMap, r world.Rect, layer int) {
	var sb strings.Builder
	for y := r.MaxY; y >= r.MinY; y-- {
		for x := r.MinX; x <= r.MaxX; x++ {
			glyph, ok := terrainGlyphs[tm.Occupant(vec.Vec3{X: x, Y: y, Z: layer})]
			if !ok {
				glyph = ' '
			}
			sb.WriteByte(glyph)
		}
		sb.WriteByte('\n')
	}
	fmt.Print(sb.String())
}

func printIndices(rows [][]int) {
	var sb strings.Builder
	for _, row := range rows {
		for _, idx := range row {
			if idx < 0 {
				sb.WriteString(" --")
				continue
			}
			fmt.Fprintf(&sb, " %02d", idx)
		}
		sb.WriteByte('\n')
	}
	fmt.Print(sb.String())
}
