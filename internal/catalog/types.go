package catalog

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Artist 艺人
type Artist struct {
	ID               string `json:"id"`
	Name             string `json:"name"`
	AvatarURL        string `json:"avatar_url"`
	HeaderImageURL   string `json:"header_image_url"`
	MonthlyListeners string `json:"monthly_listeners"` // 已格式化，如 "88.4M"
	Verified         bool   `json:"verified"`
}

// Song 歌曲
type Song struct {
	ID       string   `json:"id"`
	Title    string   `json:"title"`
	Artists  []string `json:"artists"` // 署名顺序
	Album    string   `json:"album"`
	CoverURL string   `json:"cover_url"`
	Duration string   `json:"duration"` // "m:ss" 或 "h:mm:ss"
	Explicit bool     `json:"explicit"`
}

// Album 专辑
type Album struct {
	ID       string    `json:"id"`
	Title    string    `json:"title"`
	CoverURL string    `json:"cover_url"`
	Year     int       `json:"year"`
	Type     AlbumType `json:"type"`
}

// AlbumType 专辑类型
type AlbumType string

const (
	AlbumTypeAlbum       AlbumType = "ALBUM"
	AlbumTypeSingle      AlbumType = "SINGLE"
	AlbumTypeEP          AlbumType = "EP"
	AlbumTypeCompilation AlbumType = "COMPILATION"
)

// Valid reports whether t is one of the known album types.
func (t AlbumType) Valid() bool {
	switch t {
	case AlbumTypeAlbum, AlbumTypeSingle, AlbumTypeEP, AlbumTypeCompilation:
		return true
	}
	return false
}

// ParseAlbumType parses a case-insensitive album type name.
func ParseAlbumType(s string) (AlbumType, error) {
	t := AlbumType(strings.ToUpper(strings.TrimSpace(s)))
	if !t.Valid() {
		return "", fmt.Errorf("unknown album type %q", s)
	}
	return t, nil
}

// UnmarshalJSON rejects unknown album types.
func (t *AlbumType) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	parsed, err := ParseAlbumType(s)
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}
