// Package playlist maps catalog records to the display models of the playlist screen.
// The functions are pure and share no state.
package playlist

import (
	"strings"

	"github.com/samber/lo"

	"github.com/listen-stream/playlist-screen/internal/catalog"
)

// TrackInfo 列表中的一行曲目
type TrackInfo struct {
	Title    string `json:"title"`
	Artist   string `json:"artist"`
	CoverURL string `json:"cover_url"`
}

// Playlist 歌单展示模型
type Playlist struct {
	Title    string      `json:"title"`
	Subtitle string      `json:"subtitle"`
	CoverURL string      `json:"cover_url"`
	Tracks   []TrackInfo `json:"tracks"`
}

// SongToTrackInfo 歌曲 -> 曲目行，多位艺人以 ", " 连接
func SongToTrackInfo(song catalog.Song) TrackInfo {
	return TrackInfo{
		Title:    song.Title,
		Artist:   strings.Join(song.Artists, ", "),
		CoverURL: song.CoverURL,
	}
}

// ArtistToPlaylist 艺人 + 歌曲 -> "Best of" 歌单，曲目保持输入顺序
func ArtistToPlaylist(artist catalog.Artist, songs []catalog.Song) Playlist {
	tracks := lo.Map(songs, func(s catalog.Song, _ int) TrackInfo {
		return SongToTrackInfo(s)
	})
	if tracks == nil {
		tracks = []TrackInfo{}
	}

	return Playlist{
		Title:    "Best of " + artist.Name,
		Subtitle: "Pop bangers & viral hits from " + FirstName(artist.Name) + ".",
		CoverURL: artist.HeaderImageURL,
		Tracks:   tracks,
	}
}

// FirstName returns the text before the first space, or the whole name when
// there is none. The name is not trimmed, so a leading space yields "".
func FirstName(name string) string {
	first, _, _ := strings.Cut(name, " ")
	return first
}
