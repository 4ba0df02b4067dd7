package api

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/annel0/autotile/internal/autotile"
	"github.com/annel0/autotile/internal/cache"
	"github.com/annel0/autotile/internal/vec"
	"github.com/annel0/autotile/internal/world"
)

// SetCellRequest тело PUT запроса клетки
type SetCellRequest struct {
	Tile *autotile.TileID `json:"tile" binding:"required"`
}

// CellResponse разрешённая клетка
type CellResponse struct {
	Cell     world.CellUpdate   `json:"cell"`
	Data     *autotile.TileData `json:"data,omitempty"`
	Resolved bool               `json:"resolved"`
	Cached   bool               `json:"cached"`
}

// EditResponse результат изменения клетки
type EditResponse struct {
	Updates []world.CellUpdate `json:"updates"`
	Redraws int                `json:"redraws"`
}

// RegionResponse индексы спрайтов области, строки с севера на юг
type RegionResponse struct {
	Rect  world.Rect `json:"rect"`
	Layer int        `json:"layer"`
	Rows  [][]int    `json:"rows"`
}

func cellPosition(c *gin.Context) (vec.Vec3, bool) {
	x, errX := strconv.Atoi(c.Param("x"))
	y, errY := strconv.Atoi(c.Param("y"))
	layer, errL := strconv.Atoi(c.Param("layer"))
	if errX != nil || errY != nil || errL != nil {
		respondError(c, http.StatusBadRequest, "Неверные координаты клетки")
		return vec.Vec3{}, false
	}
	return vec.Vec3{X: x, Y: y, Z: layer}, true
}

func queryInt(c *gin.Context, name string, def int, required bool) (int, bool) {
	raw, ok := c.GetQuery(name)
	if !ok {
		if required {
			respondError(c, http.StatusBadRequest, "Отсутствует параметр "+name)
			return 0, false
		}
		return def, true
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		respondError(c, http.StatusBadRequest, "Неверный параметр "+name)
		return 0, false
	}
	return v, true
}

// handleListMaps возвращает статистику загруженных карт
func (rs *RestServer) handleListMaps(c *gin.Context) {
	stats := rs.manager.Stats()
	respondOK(c, "Карты получены", gin.H{"maps": stats, "total": len(stats)})
}

// handleGetCell разрешает клетку через кеш
func (rs *RestServer) handleGetCell(c *gin.Context) {
	pos, ok := cellPosition(c)
	if !ok {
		return
	}
	mapName := c.Param("map")

	resolve := func(ctx context.Context) (cache.CachedCell, error) {
		cell, data, resolved, err := rs.manager.Resolve(ctx, mapName, pos)
		if err != nil {
			return cache.CachedCell{}, err
		}
		return cache.CachedCell{Cell: cell, Data: data, Resolved: resolved}, nil
	}

	var (
		cached cache.CachedCell
		hit    bool
		err    error
	)
	if rs.cells != nil {
		cached, hit, err = rs.cells.Lookup(c.Request.Context(), mapName, pos, resolve)
	} else {
		cached, err = resolve(c.Request.Context())
	}
	if err != nil {
		respondError(c, statusFor(err), err.Error())
		return
	}

	resp := CellResponse{Cell: cached.Cell, Resolved: cached.Resolved, Cached: hit}
	if cached.Resolved {
		data := cached.Data
		resp.Data = &data
	}
	respondOK(c, "Клетка получена", resp)
}

// handleSetCell ставит тайл и возвращает перерисованные клетки
func (rs *RestServer) handleSetCell(c *gin.Context) {
	pos, ok := cellPosition(c)
	if !ok {
		return
	}
	var req SetCellRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, "Неверный формат запроса: "+err.Error())
		return
	}

	updates, err := rs.manager.SetTile(c.Request.Context(), c.Param("map"), pos, *req.Tile)
	if err != nil {
		respondError(c, statusFor(err), err.Error())
		return
	}
	respondOK(c, "Тайл установлен", EditResponse{Updates: nonNil(updates), Redraws: len(updates)})
}

// handleRemoveCell очищает клетку
func (rs *RestServer) handleRemoveCell(c *gin.Context) {
	pos, ok := cellPosition(c)
	if !ok {
		return
	}
	updates, err := rs.manager.RemoveTile(c.Request.Context(), c.Param("map"), pos)
	if err != nil {
		respondError(c, statusFor(err), err.Error())
		return
	}
	respondOK(c, "Тайл удалён", EditResponse{Updates: nonNil(updates), Redraws: len(updates)})
}

// handleRegion возвращает индексы спрайтов прямоугольника
func (rs *RestServer) handleRegion(c *gin.Context) {
	x0, ok := queryInt(c, "x0", 0, true)
	if !ok {
		return
	}
	y0, ok := queryInt(c, "y0", 0, true)
	if !ok {
		return
	}
	x1, ok := queryInt(c, "x1", 0, true)
	if !ok {
		return
	}
	y1, ok := queryInt(c, "y1", 0, true)
	if !ok {
		return
	}
	layer, ok := queryInt(c, "layer", 0, false)
	if !ok {
		return
	}

	rect := world.NewRect(x0, y0, x1, y1)
	rows, err := rs.manager.Region(c.Request.Context(), c.Param("map"), rect, layer)
	if err != nil {
		respondError(c, statusFor(err), err.Error())
		return
	}
	respondOK(c, "Область получена", RegionResponse{Rect: rect, Layer: layer, Rows: rows})
}

// handleSaveMap сохраняет изменённые чанки карты
func (rs *RestServer) handleSaveMap(c *gin.Context) {
	mapName := c.Param("map")
	saved, err := rs.manager.Save(c.Request.Context(), mapName)
	if err != nil {
		rs.log.Error("Ошибка сохранения карты %s: %v", mapName, err)
		respondError(c, statusFor(err), err.Error())
		return
	}
	respondOK(c, "Карта сохранена", gin.H{"map": mapName, "chunks": saved})
}

func nonNil(updates []world.CellUpdate) []world.CellUpdate {
	if updates == nil {
		return []world.CellUpdate{}
	}
	return updates
}
