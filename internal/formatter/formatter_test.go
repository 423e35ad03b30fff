package formatter

import (
	"encoding/csv"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/desertthunder/albumwall/internal/models"
	"github.com/desertthunder/albumwall/internal/shared"
)

func testLibrary() *models.Library {
	return &models.Library{
		Albums: []models.Album{
			{
				ID:          "a1",
				Name:        "Kid A",
				Artists:     []models.Artist{{ID: "r1", Name: "Radiohead"}},
				TotalTracks: 10,
				ReleaseDate: "2000-10-02",
				Images:      []models.Image{{URL: "https://img.test/a1.jpg", Width: 640, Height: 640}},
				AddedAt:     time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC),
			},
			{
				ID:          "a2",
				Name:        "Songs, with [brackets]",
				Artists:     []models.Artist{{Name: "Artist One"}, {Name: "Artist Two"}},
				TotalTracks: 3,
				ReleaseDate: "1999",
			},
		},
		User:      &models.Profile{ID: "u1", DisplayName: "Tester"},
		FetchedAt: time.Date(2024, 6, 1, 12, 30, 0, 0, time.UTC),
	}
}

func TestParseFormat(t *testing.T) {
	tests := map[string]Format{
		"":         FormatJSON,
		"json":     FormatJSON,
		"CSV":      FormatCSV,
		"markdown": FormatMarkdown,
		"md":       FormatMarkdown,
		"text":     FormatText,
		"txt":      FormatText,
	}
	for in, want := range tests {
		t.Run(in, func(t *testing.T) {
			got, err := ParseFormat(in)
			if err != nil || got != want {
				t.Errorf("expected %s, got %s (%v)", want, got, err)
			}
		})
	}

	t.Run("unknown", func(t *testing.T) {
		if _, err := ParseFormat("xml"); !errors.Is(err, shared.ErrInvalidArgument) {
			t.Errorf("expected ErrInvalidArgument, got %v", err)
		}
	})
}

func TestExporters(t *testing.T) {
	lib := testLibrary()

	t.Run("ExportToCSV", func(t *testing.T) {
		data, err := ExportToCSV(lib)
		if err != nil {
			t.Fatalf("ExportToCSV failed: %v", err)
		}

		records, err := csv.NewReader(strings.NewReader(string(data))).ReadAll()
		if err != nil {
			t.Fatalf("invalid CSV: %v", err)
		}
		if len(records) != 3 {
			t.Fatalf("expected header and 2 rows, got %d", len(records))
		}
		if strings.Join(records[0], ",") != "ID,Name,Artists,Year,Tracks,Added,Cover" {
			t.Errorf("unexpected headers %v", records[0])
		}
		want := []string{"a1", "Kid A", "Radiohead", "2000", "10", "2024-05-01", "https://img.test/a1.jpg"}
		if strings.Join(records[1], "|") != strings.Join(want, "|") {
			t.Errorf("expected %v, got %v", want, records[1])
		}
		if records[2][2] != "Artist One, Artist Two" || records[2][5] != "" || records[2][6] != "" {
			t.Errorf("unexpected second row %v", records[2])
		}
	})

	t.Run("ExportToMarkdown", func(t *testing.T) {
		data, err := ExportToMarkdown(lib, "albumwall-grid-2@2x.png")
		if err != nil {
			t.Fatalf("ExportToMarkdown failed: %v", err)
		}
		output := string(data)

		for _, want := range []string{
			"# Tester's saved albums",
			"![Collage](albumwall-grid-2@2x.png)",
			"**Albums**: 2",
			"1. **Kid A** - Radiohead (2000)",
			`2. **Songs, with \[brackets\]** - Artist One, Artist Two (1999)`,
		} {
			if !strings.Contains(output, want) {
				t.Errorf("Markdown missing %q, got:\n%s", want, output)
			}
		}
	})

	t.Run("ExportToMarkdown without profile", func(t *testing.T) {
		data, err := ExportToMarkdown(&models.Library{}, "")
		if err != nil {
			t.Fatal(err)
		}
		if !strings.HasPrefix(string(data), "# Saved albums") {
			t.Errorf("unexpected title in %q", data)
		}
		if strings.Contains(string(data), "![Collage]") {
			t.Error("expected no collage link")
		}
	})

	t.Run("ExportToText", func(t *testing.T) {
		data, err := ExportToText(lib)
		if err != nil {
			t.Fatalf("ExportToText failed: %v", err)
		}
		output := string(data)
		if !strings.Contains(output, "Albums: 2") || !strings.Contains(output, "1. Radiohead - Kid A") {
			t.Errorf("unexpected text export:\n%s", output)
		}
	})

	t.Run("ExportToJSON", func(t *testing.T) {
		data, err := ExportToJSON(lib)
		if err != nil {
			t.Fatal(err)
		}
		var decoded models.Library
		if err := json.Unmarshal(data, &decoded); err != nil {
			t.Fatalf("invalid JSON: %v", err)
		}
		if len(decoded.Albums) != 2 || decoded.Albums[0].ID != "a1" {
			t.Errorf("unexpected decoded library %+v", decoded)
		}
	})

	t.Run("Export rejects unknown format", func(t *testing.T) {
		if _, err := Export(lib, Format("xml")); !errors.Is(err, shared.ErrInvalidArgument) {
			t.Errorf("expected ErrInvalidArgument, got %v", err)
		}
	})
}

func TestWriteExport(t *testing.T) {
	lib := testLibrary()
	dir := t.TempDir()

	for _, f := range Formats {
		t.Run(string(f), func(t *testing.T) {
			path := filepath.Join(dir, "nested", "albums."+f.Extension())
			got, err := WriteExport(lib, f, path)
			if err != nil {
				t.Fatalf("WriteExport failed: %v", err)
			}
			if got != path {
				t.Errorf("expected %s, got %s", path, got)
			}
			info, err := os.Stat(path)
			if err != nil || info.Size() == 0 {
				t.Errorf("expected non-empty file, got %v", err)
			}
		})
	}

	t.Run("WriteManifest", func(t *testing.T) {
		path := filepath.Join(dir, "manifest.json")
		if err := WriteManifest(map[string]int{"files": 4}, path); err != nil {
			t.Fatal(err)
		}
		data, _ := os.ReadFile(path)
		if !strings.Contains(string(data), `"files": 4`) {
			t.Errorf("unexpected manifest %s", data)
		}
	})
}
