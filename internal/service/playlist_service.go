// Package service glues the catalog, the mapping functions, the screen
// composer and the tiered cache together behind one concurrency-safe API.
package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/samber/lo"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/listen-stream/playlist-screen/internal/cache"
	"github.com/listen-stream/playlist-screen/internal/catalog"
	"github.com/listen-stream/playlist-screen/internal/playlist"
	"github.com/listen-stream/playlist-screen/internal/screen"
	apperrors "github.com/listen-stream/playlist-screen/pkg/errors"
	"github.com/listen-stream/playlist-screen/pkg/logger"
)

const cacheKindPlaylist = "playlist"

// PlaylistService 歌单服务
type PlaylistService struct {
	catalog *catalog.Catalog
	cache   *cache.Layer
	ttl     time.Duration
	tracer  trace.Tracer
	log     logger.Logger
}

// Option configures the service.
type Option func(*PlaylistService)

// WithTracer sets the tracer used for operation spans.
func WithTracer(t trace.Tracer) Option {
	return func(s *PlaylistService) {
		if t != nil {
			s.tracer = t
		}
	}
}

// WithCacheTTL overrides the L2 TTL of cached playlists.
func WithCacheTTL(ttl time.Duration) Option {
	return func(s *PlaylistService) { s.ttl = ttl }
}

// NewPlaylistService 创建歌单服务
func NewPlaylistService(c *catalog.Catalog, layer *cache.Layer, log logger.Logger, opts ...Option) *PlaylistService {
	s := &PlaylistService{
		catalog: c,
		cache:   layer,
		tracer:  noop.NewTracerProvider().Tracer("service"),
		log:     log.WithFields(logger.String("component", "playlist_service")),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *PlaylistService) start(ctx context.Context, op, artistID string) (context.Context, trace.Span) {
	ctx, span := s.tracer.Start(ctx, "PlaylistService."+op)
	if artistID != "" {
		span.SetAttributes(attribute.String("artist.id", artistID))
	}
	return ctx, span
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

// DefaultArtistID 默认艺人
func (s *PlaylistService) DefaultArtistID() string {
	return s.catalog.DefaultArtistID()
}

// CatalogSize 艺人数量
func (s *PlaylistService) CatalogSize() int {
	return s.catalog.Len()
}

// Artists 艺人列表
func (s *PlaylistService) Artists(ctx context.Context) []catalog.Artist {
	_, span := s.start(ctx, "Artists", "")
	defer span.End()

	artists := s.catalog.Artists()
	span.SetAttributes(attribute.Int("artist.count", len(artists)))
	return artists
}

// Artist 艺人详情
func (s *PlaylistService) Artist(ctx context.Context, artistID string) (a catalog.Artist, err error) {
	_, span := s.start(ctx, "Artist", artistID)
	defer func() { endSpan(span, err) }()

	return s.catalog.Artist(artistID)
}

// Albums 艺人专辑
func (s *PlaylistService) Albums(ctx context.Context, artistID string) (albums []catalog.Album, err error) {
	_, span := s.start(ctx, "Albums", artistID)
	defer func() { endSpan(span, err) }()

	return s.catalog.Albums(artistID)
}

// Playlist 艺人的 "Best of" 歌单，结果以 JSON 缓存
// 先查目录：目录中不存在的艺人即使缓存里有旧数据也返回 ARTIST_NOT_FOUND
func (s *PlaylistService) Playlist(ctx context.Context, artistID string) (pl playlist.Playlist, err error) {
	ctx, span := s.start(ctx, "Playlist", artistID)
	defer func() { endSpan(span, err) }()

	artist, err := s.catalog.Artist(artistID)
	if err != nil {
		return playlist.Playlist{}, err
	}
	songs, err := s.catalog.Songs(artistID)
	if err != nil {
		return playlist.Playlist{}, err
	}

	key := cache.Key(cacheKindPlaylist, artistID)
	data, err := s.cache.GetWithFallback(ctx, key, func(ctx context.Context) ([]byte, error) {
		built, err := s.buildPlaylist(artistID)
		if err != nil {
			return nil, err
		}
		s.log.WithContext(ctx).Debug("Playlist built",
			logger.String("artist_id", artistID),
			logger.Int("tracks", len(built.Tracks)),
		)
		return json.Marshal(built)
	}, s.ttl)
	if err != nil {
		return playlist.Playlist{}, err
	}

	if err := json.Unmarshal(data, &pl); err != nil {
		// 缓存内容损坏，删除后直接重建
		s.log.WithContext(ctx).Warn("Corrupt cached playlist", logger.String("key", key), logger.Error(err))
		_ = s.cache.Delete(ctx, key)
		return s.rebuild(ctx, key, artist, songs), nil
	}
	if !matchesCatalog(pl, artist, songs) {
		// 缓存来自另一版本的目录
		s.log.WithContext(ctx).Warn("Cached playlist out of date with catalog",
			logger.String("key", key),
			logger.Int("cached_tracks", len(pl.Tracks)),
			logger.Int("catalog_tracks", len(songs)),
		)
		return s.rebuild(ctx, key, artist, songs), nil
	}
	if pl.Tracks == nil {
		pl.Tracks = []playlist.TrackInfo{}
	}
	return pl, nil
}

// matchesCatalog 比较头部字段和曲目数量
func matchesCatalog(pl playlist.Playlist, artist catalog.Artist, songs []catalog.Song) bool {
	want := playlist.ArtistToPlaylist(artist, nil)
	return pl.Title == want.Title &&
		pl.Subtitle == want.Subtitle &&
		pl.CoverURL == want.CoverURL &&
		len(pl.Tracks) == len(songs)
}

// rebuild 从目录重新生成歌单并覆盖所有缓存层级
func (s *PlaylistService) rebuild(ctx context.Context, key string, artist catalog.Artist, songs []catalog.Song) playlist.Playlist {
	pl := playlist.ArtistToPlaylist(artist, songs)
	if data, err := json.Marshal(pl); err == nil {
		if err := s.cache.Set(ctx, key, data, s.ttl); err != nil {
			s.log.WithContext(ctx).Warn("Failed to refresh cached playlist", logger.String("key", key), logger.Error(err))
		}
	}
	return pl
}

func (s *PlaylistService) buildPlaylist(artistID string) (playlist.Playlist, error) {
	artist, err := s.catalog.Artist(artistID)
	if err != nil {
		return playlist.Playlist{}, err
	}
	songs, err := s.catalog.Songs(artistID)
	if err != nil {
		return playlist.Playlist{}, err
	}
	return playlist.ArtistToPlaylist(artist, songs), nil
}

// Track 返回第 number 首曲目（从 1 开始）
func (s *PlaylistService) Track(ctx context.Context, artistID string, number int) (t playlist.TrackInfo, err error) {
	ctx, span := s.start(ctx, "Track", artistID)
	span.SetAttributes(attribute.Int("track.number", number))
	defer func() { endSpan(span, err) }()

	pl, err := s.Playlist(ctx, artistID)
	if err != nil {
		return playlist.TrackInfo{}, err
	}

	if number < 1 || number > len(pl.Tracks) {
		return playlist.TrackInfo{}, apperrors.ErrTrackNotFound.WithDetails(map[string]interface{}{
			"artist_id": artistID,
			"number":    number,
			"tracks":    len(pl.Tracks),
		})
	}
	return pl.Tracks[number-1], nil
}

// Screen 组装完整页面模型
func (s *PlaylistService) Screen(ctx context.Context, artistID string) (sc screen.Screen, err error) {
	ctx, span := s.start(ctx, "Screen", artistID)
	defer func() { endSpan(span, err) }()

	artist, err := s.catalog.Artist(artistID)
	if err != nil {
		return screen.Screen{}, err
	}
	songs, err := s.catalog.Songs(artistID)
	if err != nil {
		return screen.Screen{}, err
	}
	pl, err := s.Playlist(ctx, artistID)
	if err != nil {
		return screen.Screen{}, err
	}

	return screen.Build(artist, songs, pl), nil
}

// WarmUp 预先计算并缓存所有艺人的歌单
func (s *PlaylistService) WarmUp(ctx context.Context) (err error) {
	ctx, span := s.start(ctx, "WarmUp", "")
	defer func() { endSpan(span, err) }()

	artists := s.catalog.Artists()
	entries := make([]cache.WarmUpEntry, 0, len(artists))
	for _, a := range artists {
		pl, err := s.buildPlaylist(a.ID)
		if err != nil {
			return fmt.Errorf("build playlist %s: %w", a.ID, err)
		}
		entries = append(entries, cache.WarmUpEntry{Key: cache.Key(cacheKindPlaylist, a.ID), Data: pl})
	}

	span.SetAttributes(attribute.StringSlice("artist.ids", lo.Map(artists, func(a catalog.Artist, _ int) string {
		return a.ID
	})))
	return s.cache.WarmUp(ctx, entries, s.ttl)
}
