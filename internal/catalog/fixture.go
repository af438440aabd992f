package catalog

import (
	"github.com/samber/lo"

	"github.com/listen-stream/playlist-screen/pkg/config"
	apperrors "github.com/listen-stream/playlist-screen/pkg/errors"
)

// FromConfig converts the catalog section of the config file into a Fixture.
// An empty section yields the built-in sample.
func FromConfig(cfg config.CatalogConfig) (Fixture, error) {
	if len(cfg.Artists) == 0 {
		return Sample(), nil
	}

	entries := make([]ArtistEntry, 0, len(cfg.Artists))
	for _, a := range cfg.Artists {
		albums := make([]Album, 0, len(a.Albums))
		for _, al := range a.Albums {
			t, err := ParseAlbumType(al.Type)
			if err != nil {
				return Fixture{}, apperrors.ErrInvalidCatalog.WithMessage("artist %q album %q: %v", a.ID, al.ID, err)
			}
			albums = append(albums, Album{
				ID:       al.ID,
				Title:    al.Title,
				CoverURL: al.CoverURL,
				Year:     al.Year,
				Type:     t,
			})
		}

		entries = append(entries, ArtistEntry{
			Artist: Artist{
				ID:               a.ID,
				Name:             a.Name,
				AvatarURL:        a.AvatarURL,
				HeaderImageURL:   a.HeaderImageURL,
				MonthlyListeners: a.MonthlyListeners,
				Verified:         a.Verified,
			},
			Songs: lo.Map(a.Songs, func(s config.SongFixture, _ int) Song {
				return Song{
					ID:       s.ID,
					Title:    s.Title,
					Artists:  s.Artists,
					Album:    s.Album,
					CoverURL: s.CoverURL,
					Duration: s.Duration,
					Explicit: s.Explicit,
				}
			}),
			Albums: albums,
		})
	}

	return Fixture{Artists: entries}, nil
}
