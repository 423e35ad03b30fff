package models

import (
	"strings"
	"time"
)

// Image is one rendition of a cover or avatar.
type Image struct {
	URL    string `json:"url"`
	Width  int    `json:"width,omitempty"`
	Height int    `json:"height,omitempty"`
}

// Artist is the subset of artist metadata shown with an album.
type Artist struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Track is a single entry of an album's track listing.
type Track struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	TrackNumber int    `json:"track_number"`
	DurationMs  int    `json:"duration_ms"`
}

// Album is a saved album as returned by the provider.
//
// Albums are immutable once fetched and replaced wholesale on each sync.
type Album struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Images      []Image   `json:"images"`
	Artists     []Artist  `json:"artists"`
	TotalTracks int       `json:"total_tracks"`
	ReleaseDate string    `json:"release_date,omitempty"`
	Tracks      []Track   `json:"tracks,omitempty"`
	URI         string    `json:"uri,omitempty"`
	AddedAt     time.Time `json:"added_at,omitzero"`
}

// PrimaryImage returns the largest cover image, or nil when the album has none.
//
// Providers list images widest first, but the widths are compared anyway since some omit them.
func (a Album) PrimaryImage() *Image {
	if len(a.Images) == 0 {
		return nil
	}
	best := 0
	for i, img := range a.Images {
		if img.Width > a.Images[best].Width {
			best = i
		}
	}
	return &a.Images[best]
}

// ArtistNames joins the artist names with ", ".
func (a Album) ArtistNames() string {
	names := make([]string, 0, len(a.Artists))
	for _, artist := range a.Artists {
		names = append(names, artist.Name)
	}
	return strings.Join(names, ", ")
}

// Year returns the leading year of ReleaseDate, which may be YYYY, YYYY-MM or YYYY-MM-DD.
func (a Album) Year() string {
	if len(a.ReleaseDate) >= 4 {
		return a.ReleaseDate[:4]
	}
	return a.ReleaseDate
}

// DedupeAlbums drops repeated IDs, keeping the first occurrence and the original order.
func DedupeAlbums(albums []Album) []Album {
	seen := make(map[string]struct{}, len(albums))
	out := make([]Album, 0, len(albums))
	for _, a := range albums {
		if _, ok := seen[a.ID]; ok {
			continue
		}
		seen[a.ID] = struct{}{}
		out = append(out, a)
	}
	return out
}

// Profile is the signed-in user's public profile.
type Profile struct {
	ID          string  `json:"id"`
	DisplayName string  `json:"display_name"`
	Email       string  `json:"email,omitempty"`
	Country     string  `json:"country,omitempty"`
	Product     string  `json:"product,omitempty"`
	Images      []Image `json:"images,omitempty"`
}

// Handle returns the display name, falling back to the ID.
func (p *Profile) Handle() string {
	if p == nil {
		return ""
	}
	if p.DisplayName != "" {
		return p.DisplayName
	}
	return p.ID
}

// Library is a fetched album collection plus the profile it belongs to.
type Library struct {
	Albums    []Album   `json:"albums"`
	User      *Profile  `json:"user,omitempty"`
	FetchedAt time.Time `json:"fetched_at,omitzero"`
	Stale     bool      `json:"stale,omitempty"`
	Warning   string    `json:"warning,omitempty"`
}
