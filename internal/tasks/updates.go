package tasks

import (
	"fmt"
)

// ProgressUpdate represents a progress event during a long-running operation.
//
// Used to send real-time updates to the CLI or UI layer for display.
type ProgressUpdate struct {
	Phase   Phase  // Operation phase
	Step    int    // Current step number within phase
	Total   int    // Total steps in this phase
	Message string // Human-readable message for display
	Data    any    // Optional phase-specific data for advanced UIs
}

// Operation phase enumeration
type Phase int

const (
	Refresh Phase = iota
	FetchLibrary
	LoadImages
	Render
	Export
)

func (p Phase) String() string {
	switch p {
	case Refresh:
		return "refresh"
	case FetchLibrary:
		return "fetch_library"
	case LoadImages:
		return "load_images"
	case Render:
		return "render"
	case Export:
		return "export"
	default:
		return ""
	}
}

// sendProgress sends a progress update through the channel without blocking.
func sendProgress(progress chan<- ProgressUpdate, update ProgressUpdate) {
	if progress == nil {
		return
	}
	select {
	case progress <- update:
	default:
	}
}

func refreshUpdate(step, total int) ProgressUpdate {
	return ProgressUpdate{
		Phase:   Refresh,
		Step:    step,
		Total:   total,
		Message: "Refreshing access token...",
	}
}

// fetchLibraryUpdate reports the album fetch; a negative count means it is still running.
func fetchLibraryUpdate(step, total, albums int) ProgressUpdate {
	if albums < 0 {
		return ProgressUpdate{
			Phase:   FetchLibrary,
			Step:    step,
			Total:   total,
			Message: "Fetching saved albums from Spotify...",
		}
	}
	return ProgressUpdate{
		Phase:   FetchLibrary,
		Step:    step,
		Total:   total,
		Message: fmt.Sprintf("Fetched %d albums", albums),
		Data:    albums,
	}
}

func loadImagesUpdate(done, total int) ProgressUpdate {
	return ProgressUpdate{
		Phase:   LoadImages,
		Step:    done,
		Total:   total,
		Message: fmt.Sprintf("Loading covers (%d/%d)...", done, total),
	}
}

func renderingUpdate(step, total int, kind string) ProgressUpdate {
	return ProgressUpdate{
		Phase:   Render,
		Step:    step,
		Total:   total,
		Message: fmt.Sprintf("[%d/%d] Rendering %s collage...", step, total, kind),
	}
}

func exportingUpdate(step, total int, name string) ProgressUpdate {
	return ProgressUpdate{
		Phase:   Export,
		Step:    step,
		Total:   total,
		Message: fmt.Sprintf("[%d/%d] Exporting: %s...", step, total, name),
	}
}

func exportCompletedUpdate(step, total int, name string, filesCount int) ProgressUpdate {
	return ProgressUpdate{
		Phase:   Export,
		Step:    step,
		Total:   total,
		Message: fmt.Sprintf("[%d/%d] ✓ %s (%d files)", step, total, name, filesCount),
	}
}

func exportFailedUpdate(step, total int, name string, err error) ProgressUpdate {
	return ProgressUpdate{
		Phase:   Export,
		Step:    step,
		Total:   total,
		Message: fmt.Sprintf("[%d/%d] ✗ %s: %v", step, total, name, err),
	}
}
