// package formatter exports an album library to JSON, CSV, Markdown and plain text
package formatter

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/desertthunder/albumwall/internal/models"
	"github.com/desertthunder/albumwall/internal/shared"
)

// Format names an export format.
type Format string

const (
	FormatJSON     Format = "json"
	FormatCSV      Format = "csv"
	FormatMarkdown Format = "md"
	FormatText     Format = "txt"
)

// Formats lists every supported format.
var Formats = []Format{FormatJSON, FormatCSV, FormatMarkdown, FormatText}

// ParseFormat accepts a format name, also allowing "markdown" and "text".
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "json":
		return FormatJSON, nil
	case "csv":
		return FormatCSV, nil
	case "md", "markdown":
		return FormatMarkdown, nil
	case "txt", "text":
		return FormatText, nil
	default:
		return "", fmt.Errorf("%w: unknown format %q (json, csv, md, txt)", shared.ErrInvalidArgument, s)
	}
}

// Extension returns the file extension for f, without the dot.
func (f Format) Extension() string {
	return string(f)
}

// Export renders lib in format f.
func Export(lib *models.Library, f Format) ([]byte, error) {
	switch f {
	case FormatJSON:
		return ExportToJSON(lib)
	case FormatCSV:
		return ExportToCSV(lib)
	case FormatMarkdown:
		return ExportToMarkdown(lib, "")
	case FormatText:
		return ExportToText(lib)
	default:
		return nil, fmt.Errorf("%w: unknown format %q", shared.ErrInvalidArgument, f)
	}
}

// ExportToJSON writes the library as indented JSON.
func ExportToJSON(lib *models.Library) ([]byte, error) {
	data, err := json.MarshalIndent(lib, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal library: %w", err)
	}
	return append(data, '\n'), nil
}

// ExportToCSV converts the library to CSV with columns: ID, Name, Artists, Year, Tracks, Added, Cover
func ExportToCSV(lib *models.Library) ([]byte, error) {
	var buf bytes.Buffer
	writer := csv.NewWriter(&buf)

	headers := []string{"ID", "Name", "Artists", "Year", "Tracks", "Added", "Cover"}
	if err := writer.Write(headers); err != nil {
		return nil, fmt.Errorf("failed to write CSV headers: %w", err)
	}

	for _, album := range lib.Albums {
		cover := ""
		if img := album.PrimaryImage(); img != nil {
			cover = img.URL
		}
		added := ""
		if !album.AddedAt.IsZero() {
			added = album.AddedAt.Format("2006-01-02")
		}
		record := []string{
			album.ID,
			album.Name,
			album.ArtistNames(),
			album.Year(),
			strconv.Itoa(album.TotalTracks),
			added,
			cover,
		}
		if err := writer.Write(record); err != nil {
			return nil, fmt.Errorf("failed to write CSV record: %w", err)
		}
	}

	writer.Flush()
	if err := writer.Error(); err != nil {
		return nil, fmt.Errorf("CSV writer error: %w", err)
	}
	return buf.Bytes(), nil
}

// ExportToMarkdown converts the library to Markdown, embedding collageFilename when given.
func ExportToMarkdown(lib *models.Library, collageFilename string) ([]byte, error) {
	var buf bytes.Buffer

	title := "Saved albums"
	if lib.User != nil && lib.User.DisplayName != "" {
		title = lib.User.DisplayName + "'s saved albums"
	}
	fmt.Fprintf(&buf, "# %s\n\n", title)

	if collageFilename != "" {
		fmt.Fprintf(&buf, "![Collage](%s)\n\n", collageFilename)
	}

	fmt.Fprintf(&buf, "**Albums**: %d\n", len(lib.Albums))
	if !lib.FetchedAt.IsZero() {
		fmt.Fprintf(&buf, "**Fetched**: %s\n", lib.FetchedAt.Format("2006-01-02 15:04"))
	}
	buf.WriteString("\n## Albums\n\n")

	for i, album := range lib.Albums {
		year := ""
		if y := album.Year(); y != "" {
			year = " (" + y + ")"
		}
		fmt.Fprintf(&buf, "%d. **%s** - %s%s\n", i+1, escapeMarkdown(album.Name), escapeMarkdown(album.ArtistNames()), year)
	}
	return buf.Bytes(), nil
}

// ExportToText converts the library to one line per album.
func ExportToText(lib *models.Library) ([]byte, error) {
	var buf bytes.Buffer
	fmt.Fprintf(&buf, "Albums: %d\n\n", len(lib.Albums))
	for i, album := range lib.Albums {
		fmt.Fprintf(&buf, "%d. %s - %s\n", i+1, album.ArtistNames(), album.Name)
	}
	return buf.Bytes(), nil
}

func escapeMarkdown(s string) string {
	return strings.NewReplacer("*", `\*`, "_", `\_`, "[", `\[`, "]", `\]`).Replace(s)
}

// WriteExport writes lib in format f to path.
//
// Defaults to albums.<ext> in the working directory.
func WriteExport(lib *models.Library, f Format, path string) (string, error) {
	if path == "" {
		path = "albums." + f.Extension()
	}

	data, err := Export(lib, f)
	if err != nil {
		return "", err
	}

	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return "", fmt.Errorf("failed to create directory: %w", err)
		}
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return "", fmt.Errorf("failed to write %s: %w", path, err)
	}
	return path, nil
}

// WriteManifest writes v as indented JSON to path.
func WriteManifest(v any, path string) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal manifest: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write manifest: %w", err)
	}
	return nil
}
