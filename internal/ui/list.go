package ui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/list"
	"github.com/desertthunder/albumwall/internal/models"
)

var _ list.Item = albumItem{}

// albumItem wraps [models.Album] to implement [list.Item].
type albumItem struct {
	album models.Album
}

func (i albumItem) FilterValue() string { return i.album.Name + " " + i.album.ArtistNames() }
func (i albumItem) Title() string       { return i.album.Name }
func (i albumItem) Description() string {
	parts := []string{i.album.ArtistNames()}
	if y := i.album.Year(); y != "" {
		parts = append(parts, y)
	}
	if i.album.TotalTracks > 0 {
		parts = append(parts, fmt.Sprintf("%d tracks", i.album.TotalTracks))
	}
	return strings.Join(parts, " • ")
}

func albumItems(albums []models.Album) []list.Item {
	items := make([]list.Item, len(albums))
	for i, a := range albums {
		items[i] = albumItem{album: a}
	}
	return items
}
