package catalog

const (
	duaAvatar = "https://picsum.photos/seed/dua-avatar/200"
	duaCover  = "https://picsum.photos/seed/dua-cover/900/600"
)

// SampleArtistID is the ID of the artist served when no catalog is configured.
const SampleArtistID = "dua-lipa"

// Sample returns the built-in fixture: one artist with seven tracks.
func Sample() Fixture {
	song := func(id, title, album, duration string) Song {
		return Song{
			ID:       id,
			Title:    title,
			Artists:  []string{"Dua Lipa"},
			Album:    album,
			CoverURL: "https://picsum.photos/seed/" + id + "/300",
			Duration: duration,
		}
	}

	return Fixture{Artists: []ArtistEntry{{
		Artist: Artist{
			ID:               SampleArtistID,
			Name:             "Dua Lipa",
			AvatarURL:        duaAvatar,
			HeaderImageURL:   duaCover,
			MonthlyListeners: "88.4M",
			Verified:         true,
		},
		Songs: []Song{
			song("training-season", "Training Season", "Radical Optimism", "3:29"),
			song("houdini", "Houdini", "Radical Optimism", "3:05"),
			song("illusion", "Illusion", "Radical Optimism", "3:08"),
			song("dance-the-night", "Dance The Night", "Dance The Night", "2:56"),
			song("levitating", "Levitating", "Future Nostalgia", "3:23"),
			song("new-rules", "New Rules", "Dua Lipa", "3:29"),
			song("physical", "Physical", "Future Nostalgia", "3:13"),
		},
		Albums: []Album{
			{ID: "radical-optimism", Title: "Radical Optimism", CoverURL: "https://picsum.photos/seed/radical-optimism/300", Year: 2024, Type: AlbumTypeAlbum},
			{ID: "future-nostalgia", Title: "Future Nostalgia", CoverURL: "https://picsum.photos/seed/future-nostalgia/300", Year: 2020, Type: AlbumTypeAlbum},
			{ID: "dua-lipa", Title: "Dua Lipa", CoverURL: "https://picsum.photos/seed/dua-lipa-album/300", Year: 2017, Type: AlbumTypeAlbum},
			{ID: "dance-the-night", Title: "Dance The Night", CoverURL: "https://picsum.photos/seed/dance-the-night/300", Year: 2023, Type: AlbumTypeSingle},
		},
	}}}
}
