// Package ui implements an interactive terminal interface using bubbletea's Elm architecture.
//
// The TUI shows the saved-album library kept current by a [tasks.Syncer]:
//  1. [LibraryView] : Browse and filter albums; r resyncs now
//  2. [CollageView] : Monitor cover loading while a grid (c) or CD (d) collage renders
//  3. [ResultView] : Show the files written, or why rendering failed
//
// The (view) [Model] implements bubbletea/Elm's standard Init/Update/View pattern, receiving messages via the Msg union type.
// Sync snapshots and export progress both arrive over channels and are read one message at a time.
//
// Keyboard navigation uses vim-style bindings (j/k, esc, q) with contextual help displayed via charmbracelet/bubbles/help.
package ui
