package ui

import (
	tea "github.com/charmbracelet/bubbletea"
	"github.com/desertthunder/albumwall/internal/tasks"
)

// MsgKind enumerates all message types in the application.
type MsgKind int

// Msg represents all possible messages in the TUI (Elm-style message union).
type Msg struct {
	kind MsgKind
	data any
}

var (
	_ tea.Msg = Msg{}
)

const (
	MsgSyncUpdate MsgKind = iota
	MsgProgressUpdate
	MsgCollageComplete
)

// syncUpdateMsg is the constructor for [MsgSyncUpdate]
func syncUpdateMsg(state tasks.SyncState) Msg {
	return Msg{kind: MsgSyncUpdate, data: state}
}

// progressUpdateMsg is the constructor for [MsgProgressUpdate]
func progressUpdateMsg(update tasks.ProgressUpdate) Msg {
	return Msg{kind: MsgProgressUpdate, data: update}
}

type collageResult struct {
	result *tasks.BulkExportResult
	err    error
}

// collageCompleteMsg is the constructor for [MsgCollageComplete]
func collageCompleteMsg(result *tasks.BulkExportResult, err error) Msg {
	return Msg{kind: MsgCollageComplete, data: collageResult{result: result, err: err}}
}
