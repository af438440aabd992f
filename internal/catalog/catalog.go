// Package catalog holds the immutable artist, song and album records the
// screen is built from. A Catalog is constructed once from a Fixture and is
// safe for concurrent reads.
package catalog

import (
	"fmt"

	"github.com/samber/lo"

	apperrors "github.com/listen-stream/playlist-screen/pkg/errors"
)

// ArtistEntry is one artist together with their songs and albums.
type ArtistEntry struct {
	Artist Artist
	Songs  []Song
	Albums []Album
}

// Fixture is the raw input of a catalog, in display order.
type Fixture struct {
	Artists []ArtistEntry
}

// Catalog 目录，构建后只读
type Catalog struct {
	order   []string
	entries map[string]ArtistEntry
}

// New validates the fixture and builds a catalog from it.
func New(fixture Fixture) (*Catalog, error) {
	c := &Catalog{
		order:   make([]string, 0, len(fixture.Artists)),
		entries: make(map[string]ArtistEntry, len(fixture.Artists)),
	}

	for i, entry := range fixture.Artists {
		id := entry.Artist.ID
		if id == "" {
			return nil, invalid("artists[%d]: empty artist id", i)
		}
		if _, dup := c.entries[id]; dup {
			return nil, invalid("artists[%d]: duplicate artist id %q", i, id)
		}

		seen := make(map[string]struct{}, len(entry.Songs))
		for j, s := range entry.Songs {
			if s.ID == "" {
				return nil, invalid("artist %q songs[%d]: empty song id", id, j)
			}
			if _, dup := seen[s.ID]; dup {
				return nil, invalid("artist %q songs[%d]: duplicate song id %q", id, j, s.ID)
			}
			seen[s.ID] = struct{}{}
		}

		for j, a := range entry.Albums {
			if !a.Type.Valid() {
				return nil, invalid("artist %q albums[%d]: invalid album type %q", id, j, a.Type)
			}
		}

		c.order = append(c.order, id)
		c.entries[id] = ArtistEntry{
			Artist: entry.Artist,
			Songs:  cloneSongs(entry.Songs),
			Albums: append([]Album(nil), entry.Albums...),
		}
	}

	return c, nil
}

func invalid(format string, args ...interface{}) error {
	return apperrors.ErrInvalidCatalog.WithMessage(format, args...)
}

// Len returns the number of artists.
func (c *Catalog) Len() int {
	return len(c.order)
}

// DefaultArtistID returns the first artist of the fixture, or "" for an empty catalog.
func (c *Catalog) DefaultArtistID() string {
	if len(c.order) == 0 {
		return ""
	}
	return c.order[0]
}

// Artists returns every artist in fixture order.
func (c *Catalog) Artists() []Artist {
	return lo.Map(c.order, func(id string, _ int) Artist {
		return c.entries[id].Artist
	})
}

// Artist returns one artist.
func (c *Catalog) Artist(id string) (Artist, error) {
	entry, ok := c.entries[id]
	if !ok {
		return Artist{}, notFound(id)
	}
	return entry.Artist, nil
}

// Songs returns the artist's songs in fixture order.
func (c *Catalog) Songs(artistID string) ([]Song, error) {
	entry, ok := c.entries[artistID]
	if !ok {
		return nil, notFound(artistID)
	}
	return cloneSongs(entry.Songs), nil
}

// Albums returns the artist's albums in fixture order.
func (c *Catalog) Albums(artistID string) ([]Album, error) {
	entry, ok := c.entries[artistID]
	if !ok {
		return nil, notFound(artistID)
	}
	return append([]Album{}, entry.Albums...), nil
}

func notFound(id string) error {
	return apperrors.ErrArtistNotFound.WithDetails(map[string]string{"artist_id": id})
}

// cloneSongs deep-copies songs so callers cannot reach the artists slices.
func cloneSongs(songs []Song) []Song {
	out := make([]Song, len(songs))
	for i, s := range songs {
		s.Artists = append([]string(nil), s.Artists...)
		out[i] = s
	}
	return out
}

// String is used in startup logs.
func (c *Catalog) String() string {
	return fmt.Sprintf("catalog(%d artists)", len(c.order))
}
