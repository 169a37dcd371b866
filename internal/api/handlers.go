package api

import (
	"net/http"

	"github.com/aiwuxian/project-extraction/internal/models"
	"github.com/aiwuxian/project-extraction/internal/services"
	"github.com/aiwuxian/project-extraction/internal/storage"
	"github.com/gin-gonic/gin"
)

type Handler struct {
	raidService     *services.RaidService
	raidTimeService *services.RaidTimeService
	locationService *services.LocationService
	storage         *storage.Storage
}

func NewHandler(raidService *services.RaidService, raidTimeService *services.RaidTimeService,
	locationService *services.LocationService, st *storage.Storage) *Handler {
	return &Handler{
		raidService:     raidService,
		raidTimeService: raidTimeService,
		locationService: locationService,
		storage:         st,
	}
}

// sessionID 从请求头取会话ID
func sessionID(c *gin.Context) string {
	return c.GetHeader("Session-Id")
}

// StartLocalRaid 开始本地战局
func (h *Handler) StartLocalRaid(c *gin.Context) {
	sid := sessionID(c)
	if sid == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "缺少会话ID"})
		return
	}

	var req models.StartRaidRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "参数错误"})
		return
	}

	if req.Side != models.SidePrimary && req.Side != models.SideScavenger {
		c.JSON(http.StatusBadRequest, gin.H{"error": "未知阵营: " + req.Side})
		return
	}

	resp, err := h.raidService.StartRaid(sid, &req)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, resp)
}

// EndLocalRaid 结束本地战局
func (h *Handler) EndLocalRaid(c *gin.Context) {
	sid := sessionID(c)
	if sid == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "缺少会话ID"})
		return
	}

	var req models.EndRaidRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "参数错误"})
		return
	}

	if err := h.raidService.EndRaid(sid, &req); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// GetRaidAdjustments 查询下一场战局的时间压缩调整
func (h *Handler) GetRaidAdjustments(c *gin.Context) {
	sid := sessionID(c)
	if sid == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "缺少会话ID"})
		return
	}

	location := c.Query("location")
	side := c.DefaultQuery("side", models.SidePrimary)

	tmpl, ok := h.locationService.Get(location)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "地点不存在: " + location})
		return
	}

	adj := h.raidTimeService.GetRaidAdjustments(sid, tmpl, side)
	c.JSON(http.StatusOK, adj)
}

// GetProfile 查询玩家档案
func (h *Handler) GetProfile(c *gin.Context) {
	sid := c.Param("sessionId")

	profile, err := h.storage.GetProfile(sid)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "档案不存在"})
		return
	}

	c.JSON(http.StatusOK, profile)
}
