// Package handler exposes the playlist service over HTTP: JSON endpoints
// wrapped in the common response envelope, the rendered HTML screen, the
// health check and the cache statistics.
package handler

import (
	"bytes"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/listen-stream/playlist-screen/internal/cache"
	"github.com/listen-stream/playlist-screen/internal/screen"
	"github.com/listen-stream/playlist-screen/internal/service"
	apperrors "github.com/listen-stream/playlist-screen/pkg/errors"
	"github.com/listen-stream/playlist-screen/pkg/logger"
)

// Handler 处理器
type Handler struct {
	svc    *service.PlaylistService
	cache  *cache.Layer
	health *HealthChecker
	log    logger.Logger
}

// NewHandler 创建处理器
func NewHandler(svc *service.PlaylistService, layer *cache.Layer, health *HealthChecker, log logger.Logger) *Handler {
	return &Handler{
		svc:    svc,
		cache:  layer,
		health: health,
		log:    log.WithFields(logger.String("component", "handler")),
	}
}

// Register 注册所有路由，metrics 为 nil 时不暴露 /metrics
func (h *Handler) Register(r *gin.Engine, metricsPath string, metrics http.Handler) {
	r.GET("/", h.Index)
	r.GET("/health", h.health.Check)
	r.GET("/cache/stats", h.CacheStats)
	if metrics != nil && metricsPath != "" {
		r.GET(metricsPath, gin.WrapH(metrics))
	}

	r.GET("/screens/:artist_id", h.ScreenPage)

	api := r.Group("/api")
	{
		api.GET("/artists", h.ListArtists)
		api.GET("/artists/:artist_id", h.GetArtist)
		api.GET("/artists/:artist_id/albums", h.ListAlbums)
		api.GET("/playlists/:artist_id", h.GetPlaylist)
		api.GET("/playlists/:artist_id/tracks/:number", h.GetTrack)
		api.GET("/screens/:artist_id", h.GetScreen)
	}

	r.NoRoute(NotFound)
}

// Index 跳转到默认艺人的页面
func (h *Handler) Index(c *gin.Context) {
	id := h.svc.DefaultArtistID()
	if id == "" {
		Fail(c, apperrors.ErrArtistNotFound.WithMessage("Catalog is empty"))
		return
	}
	c.Redirect(http.StatusFound, "/screens/"+id)
}

// CacheStats 缓存统计
func (h *Handler) CacheStats(c *gin.Context) {
	Success(c, h.cache.Stats())
}

// ListArtists 艺人列表
func (h *Handler) ListArtists(c *gin.Context) {
	Success(c, h.svc.Artists(c.Request.Context()))
}

// GetArtist 艺人详情
func (h *Handler) GetArtist(c *gin.Context) {
	artist, err := h.svc.Artist(c.Request.Context(), c.Param("artist_id"))
	if err != nil {
		Fail(c, err)
		return
	}
	Success(c, artist)
}

// ListAlbums 艺人专辑
func (h *Handler) ListAlbums(c *gin.Context) {
	albums, err := h.svc.Albums(c.Request.Context(), c.Param("artist_id"))
	if err != nil {
		Fail(c, err)
		return
	}
	Success(c, albums)
}

// GetPlaylist 艺人歌单
func (h *Handler) GetPlaylist(c *gin.Context) {
	pl, err := h.svc.Playlist(c.Request.Context(), c.Param("artist_id"))
	if err != nil {
		Fail(c, err)
		return
	}
	Success(c, pl)
}

// GetTrack 歌单中的单曲，number 从 1 开始
func (h *Handler) GetTrack(c *gin.Context) {
	number, err := strconv.Atoi(c.Param("number"))
	if err != nil {
		BadRequest(c, "Track number must be an integer")
		return
	}

	track, err := h.svc.Track(c.Request.Context(), c.Param("artist_id"), number)
	if err != nil {
		Fail(c, err)
		return
	}
	Success(c, track)
}

// GetScreen 页面模型 JSON
func (h *Handler) GetScreen(c *gin.Context) {
	sc, err := h.svc.Screen(c.Request.Context(), c.Param("artist_id"))
	if err != nil {
		Fail(c, err)
		return
	}
	Success(c, sc)
}

// ScreenPage 渲染 HTML 页面
func (h *Handler) ScreenPage(c *gin.Context) {
	sc, err := h.svc.Screen(c.Request.Context(), c.Param("artist_id"))
	if err != nil {
		status := apperrors.GetHTTPStatus(err)
		if status >= http.StatusInternalServerError {
			_ = c.Error(err)
		}
		c.String(status, apperrors.GetMessage(err))
		return
	}

	// 先渲染到缓冲区，模板出错时不会输出半个页面
	var buf bytes.Buffer
	if err := screen.Render(&buf, sc); err != nil {
		h.log.WithContext(c.Request.Context()).Error("Failed to render screen",
			logger.String("artist_id", sc.ArtistID),
			logger.Error(err),
		)
		_ = c.Error(err)
		c.String(http.StatusInternalServerError, "Internal server error")
		return
	}
	c.Data(http.StatusOK, "text/html; charset=utf-8", buf.Bytes())
}
