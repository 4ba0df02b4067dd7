package api

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/annel0/autotile/internal/autotile"
	"github.com/annel0/autotile/internal/tileset"
)

func tileIDParam(c *gin.Context) (autotile.TileID, bool) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 16)
	if err != nil || id == 0 {
		respondError(c, http.StatusBadRequest, "Неверный ID тайла")
		return 0, false
	}
	return autotile.TileID(id), true
}

// handleListTilesets возвращает все определения тайлов
func (rs *RestServer) handleListTilesets(c *gin.Context) {
	defs, err := rs.tilesets.List(c.Request.Context())
	if err != nil {
		respondError(c, statusFor(err), err.Error())
		return
	}
	respondOK(c, "Определения получены", gin.H{"tilesets": defs, "total": len(defs)})
}

// handleGetTileset возвращает одно определение
func (rs *RestServer) handleGetTileset(c *gin.Context) {
	id, ok := tileIDParam(c)
	if !ok {
		return
	}
	def, err := rs.tilesets.Get(c.Request.Context(), id)
	if err != nil {
		respondError(c, statusFor(err), err.Error())
		return
	}
	respondOK(c, "Определение получено", def)
}

// handleSaveTileset создаёт или заменяет определение и регистрирует его
func (rs *RestServer) handleSaveTileset(c *gin.Context) {
	// Отсутствующие поля берут значения по умолчанию
	def := tileset.NewDefinition(autotile.NoTile)
	if err := c.ShouldBindJSON(&def); err != nil {
		respondError(c, http.StatusBadRequest, "Неверный формат запроса: "+err.Error())
		return
	}
	if def.ID == autotile.NoTile {
		respondError(c, http.StatusBadRequest, "ID тайла должен быть больше 0")
		return
	}

	a, err := def.Build()
	if err != nil {
		respondError(c, statusFor(err), err.Error())
		return
	}
	if err := rs.tilesets.Save(c.Request.Context(), def); err != nil {
		respondError(c, statusFor(err), err.Error())
		return
	}
	if err := rs.manager.Registry().Register(a); err != nil {
		respondError(c, http.StatusBadRequest, err.Error())
		return
	}

	rs.log.Info("🧩 Определение тайла %d (%s) сохранено пользователем %s", def.ID, def.Name, c.GetString("username"))
	respondOK(c, "Определение сохранено", def)
}

// handleDeleteTileset удаляет определение. Клетки с этим ID остаются и
// разрешаются как незарегистрированные.
func (rs *RestServer) handleDeleteTileset(c *gin.Context) {
	id, ok := tileIDParam(c)
	if !ok {
		return
	}
	if err := rs.tilesets.Delete(c.Request.Context(), id); err != nil {
		respondError(c, statusFor(err), err.Error())
		return
	}
	rs.manager.Registry().Remove(id)

	rs.log.Info("🗑️ Определение тайла %d удалено пользователем %s", id, c.GetString("username"))
	respondOK(c, "Определение удалено", gin.H{"id": id})
}
