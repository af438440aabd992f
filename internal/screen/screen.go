// Package screen composes the playlist screen view model: the header, the
// numbered track rows, the mini-player and the bottom navigation.
package screen

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/samber/lo"

	"github.com/listen-stream/playlist-screen/internal/catalog"
	"github.com/listen-stream/playlist-screen/internal/playlist"
)

// Header 顶部信息区
type Header struct {
	Title            string `json:"title"`
	Subtitle         string `json:"subtitle"`
	CoverURL         string `json:"cover_url"`
	AvatarURL        string `json:"avatar_url"`
	ArtistName       string `json:"artist_name"`
	Verified         bool   `json:"verified"`
	MonthlyListeners string `json:"monthly_listeners"`
	Summary          string `json:"summary"`
}

// Row 曲目行，序号从 1 开始
type Row struct {
	Number int                `json:"number"`
	Track  playlist.TrackInfo `json:"track"`
}

// MiniPlayer 底部迷你播放条
type MiniPlayer struct {
	Track   *playlist.TrackInfo `json:"track"`
	Playing bool                `json:"playing"`
}

// NavItem 底部导航项
type NavItem struct {
	Key      string `json:"key"`
	Label    string `json:"label"`
	Icon     string `json:"icon"`
	Selected bool   `json:"selected"`
}

// Theme 配色
type Theme struct {
	BgTop         string `json:"bg_top"`
	BgBottom      string `json:"bg_bottom"`
	TextPrimary   string `json:"text_primary"`
	TextSecondary string `json:"text_secondary"`
	Divider       string `json:"divider"`
	Accent        string `json:"accent"`
}

// Layout sizes in dp/px.
type Layout struct {
	MiniPlayerHeight     int `json:"mini_player_height"`
	BottomBarHeight      int `json:"bottom_bar_height"`
	ContentBottomPadding int `json:"content_bottom_padding"`
}

// Screen 完整页面模型
type Screen struct {
	ArtistID   string      `json:"artist_id"`
	Header     Header      `json:"header"`
	Rows       []Row       `json:"rows"`
	MiniPlayer *MiniPlayer `json:"mini_player"`
	Nav        []NavItem   `json:"nav"`
	Theme      Theme       `json:"theme"`
	Layout     Layout      `json:"layout"`
}

const (
	miniPlayerHeight = 56
	bottomBarHeight  = 80
	contentGap       = 16
)

// DefaultTheme returns the dark palette of the screen.
func DefaultTheme() Theme {
	return Theme{
		BgTop:         "#181818",
		BgBottom:      "#0E0E0E",
		TextPrimary:   "#FFFFFF",
		TextSecondary: "#B3B3B3",
		Divider:       "#2A2A2A",
		Accent:        "#1DB954",
	}
}

// DefaultLayout returns the fixed bar heights and the padding that keeps the
// last row visible above both bars.
func DefaultLayout() Layout {
	return Layout{
		MiniPlayerHeight:     miniPlayerHeight,
		BottomBarHeight:      bottomBarHeight,
		ContentBottomPadding: miniPlayerHeight + bottomBarHeight + contentGap,
	}
}

// DefaultNav returns the bottom navigation with Home selected.
func DefaultNav() []NavItem {
	return []NavItem{
		{Key: "home", Label: "Home", Icon: "home", Selected: true},
		{Key: "search", Label: "Search", Icon: "search"},
		{Key: "library", Label: "Your Library", Icon: "library_music"},
	}
}

// Build composes the screen for one artist. songs and pl must describe the
// same tracks in the same order; songs only contribute durations.
func Build(artist catalog.Artist, songs []catalog.Song, pl playlist.Playlist) Screen {
	rows := lo.Map(pl.Tracks, func(t playlist.TrackInfo, i int) Row {
		return Row{Number: i + 1, Track: t}
	})

	var mini *MiniPlayer
	if len(pl.Tracks) > 0 {
		first := pl.Tracks[0]
		mini = &MiniPlayer{Track: &first}
	}

	return Screen{
		ArtistID: artist.ID,
		Header: Header{
			Title:            pl.Title,
			Subtitle:         pl.Subtitle,
			CoverURL:         pl.CoverURL,
			AvatarURL:        artist.AvatarURL,
			ArtistName:       artist.Name,
			Verified:         artist.Verified,
			MonthlyListeners: artist.MonthlyListeners,
			Summary:          Summary(songs),
		},
		Rows:       rows,
		MiniPlayer: mini,
		Nav:        DefaultNav(),
		Theme:      DefaultTheme(),
		Layout:     DefaultLayout(),
	}
}

// Summary returns "<n> songs • <total>", e.g. "7 songs • 22m 43s".
func Summary(songs []catalog.Song) string {
	var total time.Duration
	for _, s := range songs {
		if d, err := ParseDuration(s.Duration); err == nil && total <= math.MaxInt64-d {
			total += d
		}
	}

	count := fmt.Sprintf("%d songs", len(songs))
	if len(songs) == 1 {
		count = "1 song"
	}
	return count + " • " + FormatTotal(total)
}

// FormatTotal renders "Xh Ym" from one hour up and "Ym Zs" below.
func FormatTotal(d time.Duration) string {
	d = d.Truncate(time.Second)
	if d >= time.Hour {
		return fmt.Sprintf("%dh %dm", int(d.Hours()), int(d.Minutes())%60)
	}
	return fmt.Sprintf("%dm %ds", int(d.Minutes()), int(d.Seconds())%60)
}

// maxTrackDuration bounds a single label; longer values are rejected.
const maxTrackDuration = 100 * time.Hour

// ParseDuration parses "m:ss" or "h:mm:ss" labels. Fields are plain digits,
// so signs are rejected, and the result may not exceed 100 hours.
func ParseDuration(label string) (time.Duration, error) {
	parts := strings.Split(strings.TrimSpace(label), ":")
	if len(parts) < 2 || len(parts) > 3 {
		return 0, fmt.Errorf("invalid duration %q", label)
	}

	var total time.Duration
	for i, p := range parts {
		if p == "" || len(p) > 6 || strings.TrimLeft(p, "0123456789") != "" {
			return 0, fmt.Errorf("invalid duration %q", label)
		}
		n, err := strconv.Atoi(p)
		if err != nil {
			return 0, fmt.Errorf("invalid duration %q", label)
		}
		// 秒和分钟字段不超过 59
		if i > 0 && (n > 59 || len(p) != 2) {
			return 0, fmt.Errorf("invalid duration %q", label)
		}
		total = total*60 + time.Duration(n)
	}
	total *= time.Second
	if total > maxTrackDuration {
		return 0, fmt.Errorf("duration %q exceeds %s", label, maxTrackDuration)
	}
	return total, nil
}
