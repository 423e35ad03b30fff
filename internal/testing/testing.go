// package testing contains shared testing utilities
package testing

import (
	"errors"
	"net/http"
	"os"
	"strconv"
	"testing"

	"github.com/desertthunder/albumwall/internal/models"
)

// Albums builds n albums with ids a0..a(n-1) and one cover each.
func Albums(n int) []models.Album {
	albums := make([]models.Album, n)
	for i := range albums {
		id := "a" + strconv.Itoa(i)
		albums[i] = models.Album{
			ID:          id,
			Name:        "Album " + strconv.Itoa(i),
			Artists:     []models.Artist{{ID: "r" + strconv.Itoa(i), Name: "Artist " + strconv.Itoa(i)}},
			Images:      []models.Image{{URL: "https://img.test/" + id + ".jpg", Width: 640, Height: 640}},
			TotalTracks: 10,
			ReleaseDate: "2001-01-01",
		}
	}
	return albums
}

// FWriter always returns an error on Write
type FWriter struct{}

func (f *FWriter) Write(p []byte) (n int, err error) {
	return 0, errors.New("write failed")
}

// MockRoundTripper allows custom HTTP responses for testing
type MockRoundTripper struct {
	response *http.Response
	err      error
}

func NewMockRoundTripper(r *http.Response, e error) *MockRoundTripper {
	return &MockRoundTripper{response: r, err: e}
}

func (m *MockRoundTripper) RoundTrip(*http.Request) (*http.Response, error) {
	return m.response, m.err
}

// FCloser simulates a failure when reading response body
type FCloser struct{}

func (f *FCloser) Read(p []byte) (n int, err error) {
	return 0, errors.New("read failed")
}

func (f *FCloser) Close() error {
	return nil
}

func MustGetwd(t *testing.T) string {
	t.Helper()
	wd, err := os.Getwd()
	if err != nil {
		t.Fatalf("Failed to get working directory: %v", err)
	}
	return wd
}

func MustChdir(t *testing.T, dir string) {
	t.Helper()
	if err := os.Chdir(dir); err != nil {
		t.Fatalf("Failed to change directory to %s: %v", dir, err)
	}
}

func AssertFileExists(t *testing.T, path string) {
	t.Helper()
	if _, err := os.Stat(path); os.IsNotExist(err) {
		t.Errorf("File does not exist: %s", path)
	}
}

func AssertDirExists(t *testing.T, path string) {
	t.Helper()
	info, err := os.Stat(path)
	if os.IsNotExist(err) {
		t.Errorf("Directory does not exist: %s", path)
		return
	}
	if !info.IsDir() {
		t.Errorf("Path is not a directory: %s", path)
	}
}

func MustReadFile(t *testing.T, path string) string {
	t.Helper()
	content, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("Failed to read file %s: %v", path, err)
	}
	return string(content)
}
