package ui

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/list"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/desertthunder/albumwall/internal/collage"
	"github.com/desertthunder/albumwall/internal/models"
	"github.com/desertthunder/albumwall/internal/shared"
	"github.com/desertthunder/albumwall/internal/tasks"
)

// ViewState represents the current view in the TUI.
type ViewState int

const (
	LibraryView ViewState = iota
	CollageView
	ResultView
)

// Options configures the collages rendered from the TUI.
type Options struct {
	OutputDir string
	Scale     int
	Grid      collage.GridOptions
	CD        collage.CDOptions
	// Watermark draws the signed-in user's handle on each collage.
	Watermark bool
	Loader    collage.ImageLoader
}

// Model represents the TUI application state.
type Model struct {
	ctx          context.Context
	view         ViewState
	syncer       *tasks.Syncer
	opts         Options
	width        int
	height       int
	albumList    list.Model
	state        tasks.SyncState
	kind         models.CollageKind
	progressChan chan tasks.ProgressUpdate
	doneChan     chan collageResult
	progress     tasks.ProgressUpdate
	result       *tasks.BulkExportResult
	err          error
	help         help.Model
	keys         keyMap
}

// NewModel creates a TUI model that follows syncer's snapshots. The caller runs the syncer.
func NewModel(ctx context.Context, syncer *tasks.Syncer, opts Options) *Model {
	if opts.Scale < 1 {
		opts.Scale = 1
	}

	albums := list.New(nil, list.NewDefaultDelegate(), 0, 0)
	albums.Title = "Saved Albums"

	return &Model{
		ctx:       ctx,
		view:      LibraryView,
		syncer:    syncer,
		opts:      opts,
		albumList: albums,
		state:     syncer.State(),
		help:      help.New(),
		keys:      newKeyMap(),
	}
}

// Init starts listening for sync snapshots.
func (m *Model) Init() tea.Cmd {
	return m.waitForSync()
}

// Update handles incoming messages and updates the model state.
func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.albumList.SetSize(msg.Width-4, msg.Height-8)
		return m, nil

	case tea.KeyMsg:
		switch m.view {
		case LibraryView:
			return m.handleLibraryKeys(msg)
		case CollageView:
			if key.Matches(msg, m.keys.quit) {
				return m, tea.Quit
			}
			return m, nil
		case ResultView:
			return m.handleResultKeys(msg)
		}

	case Msg:
		switch msg.kind {
		case MsgSyncUpdate:
			m.state = msg.data.(tasks.SyncState)
			m.albumList.Title = fmt.Sprintf("Saved Albums (%d)", len(m.state.Albums))
			cmd := m.albumList.SetItems(albumItems(m.state.Albums))
			return m, tea.Batch(cmd, m.waitForSync())

		case MsgProgressUpdate:
			m.progress = msg.data.(tasks.ProgressUpdate)
			return m, m.waitForProgress()

		case MsgCollageComplete:
			res := msg.data.(collageResult)
			m.result = res.result
			m.err = res.err
			m.progressChan = nil
			m.doneChan = nil
			m.view = ResultView
			return m, nil
		}
	}

	if m.view == LibraryView {
		var cmd tea.Cmd
		m.albumList, cmd = m.albumList.Update(msg)
		return m, cmd
	}
	return m, nil
}

// View renders the UI based on the current view state.
func (m *Model) View() string {
	switch m.view {
	case LibraryView:
		return m.renderLibrary()
	case CollageView:
		return m.renderCollage()
	case ResultView:
		return m.renderResult()
	default:
		return ""
	}
}

func (m *Model) handleLibraryKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if m.albumList.FilterState() == list.Filtering {
		var cmd tea.Cmd
		m.albumList, cmd = m.albumList.Update(msg)
		return m, cmd
	}

	switch {
	case key.Matches(msg, m.keys.quit):
		return m, tea.Quit
	case key.Matches(msg, m.keys.refresh):
		m.syncer.Trigger()
		return m, nil
	case key.Matches(msg, m.keys.grid):
		return m.startCollage(models.CollageGrid)
	case key.Matches(msg, m.keys.cd):
		return m.startCollage(models.CollageCD)
	}

	var cmd tea.Cmd
	m.albumList, cmd = m.albumList.Update(msg)
	return m, cmd
}

func (m *Model) handleResultKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.quit):
		return m, tea.Quit
	case key.Matches(msg, m.keys.back), msg.String() == "enter":
		m.view = LibraryView
		m.result = nil
		m.err = nil
		m.progress = tasks.ProgressUpdate{}
	}
	return m, nil
}

func (m *Model) waitForSync() tea.Cmd {
	updates := m.syncer.Updates()
	ctx := m.ctx
	return func() tea.Msg {
		select {
		case st := <-updates:
			return syncUpdateMsg(st)
		case <-ctx.Done():
			return nil
		}
	}
}

// startCollage renders the current albums in the background and switches to the progress view.
func (m *Model) startCollage(kind models.CollageKind) (tea.Model, tea.Cmd) {
	if len(m.state.Albums) == 0 {
		return m, nil
	}

	m.kind = kind
	m.view = CollageView
	m.progress = tasks.ProgressUpdate{}
	m.progressChan = make(chan tasks.ProgressUpdate, 64)
	m.doneChan = make(chan collageResult, 1)

	lib := &models.Library{Albums: m.state.Albums, User: m.state.User}
	opts := tasks.BulkExportOpts{
		Collages:  []tasks.CollageJob{{Kind: kind, Scales: []int{m.opts.Scale}}},
		OutputDir: m.opts.OutputDir,
		Loader:    m.opts.Loader,
		Grid:      m.opts.Grid,
		CD:        m.opts.CD,
	}
	if m.opts.Watermark {
		opts.Grid.Watermark = m.state.User.Handle()
		opts.CD.Watermark = m.state.User.Handle()
	}

	progress, done, ctx := m.progressChan, m.doneChan, m.ctx
	go func() {
		result, err := tasks.BulkExport(ctx, progress, lib, opts)
		done <- collageResult{result: result, err: err}
		close(progress)
	}()

	return m, m.waitForProgress()
}

func (m *Model) waitForProgress() tea.Cmd {
	progress, done := m.progressChan, m.doneChan
	return func() tea.Msg {
		if progress == nil {
			return collageCompleteMsg(nil, errors.New("no collage in progress"))
		}

		update, ok := <-progress
		if !ok {
			res := <-done
			return collageCompleteMsg(res.result, res.err)
		}
		return progressUpdateMsg(update)
	}
}

func (m *Model) renderStatus() string {
	st := m.state
	switch {
	case st.Loading && len(st.Albums) == 0:
		return styles.help.Render("Syncing library...")
	case errors.Is(st.Err, shared.ErrUnauthenticated) && !st.Authenticated:
		return styles.err.Render("Not signed in. Run `albumwall login` and restart.")
	case st.Err != nil:
		return styles.err.Render(fmt.Sprintf("Error: %v", st.Err))
	case st.Warning != "":
		return styles.warn.Render(st.Warning)
	case st.Loading:
		return styles.help.Render("Refreshing...")
	case !st.SyncedAt.IsZero():
		return styles.help.Render("Synced " + st.SyncedAt.Format("15:04:05"))
	default:
		return ""
	}
}

func (m *Model) renderLibrary() string {
	helpKeys := []key.Binding{m.keys.refresh, m.keys.grid, m.keys.cd, m.keys.quit}
	helpView := m.help.ShortHelpView(helpKeys)
	return fmt.Sprintf("%s\n%s\n\n%s", m.renderStatus(), m.albumList.View(), helpView)
}

func (m *Model) renderCollage() string {
	title := styles.title.Render(fmt.Sprintf("Rendering %s collage", m.kind))

	var phase string
	switch m.progress.Phase {
	case tasks.LoadImages:
		phase = fmt.Sprintf("Loading covers (%d/%d)", m.progress.Step, m.progress.Total)
	case tasks.Render:
		phase = "Drawing..."
	case tasks.Export:
		phase = "Writing file..."
	default:
		phase = "Preparing..."
	}

	helpView := m.help.ShortHelpView([]key.Binding{m.keys.quit})
	return fmt.Sprintf("%s\n\n%s\n%s\n\n%s", title, phase, m.progress.Message, helpView)
}

func (m *Model) renderResult() string {
	helpKeys := []key.Binding{m.keys.back, m.keys.quit}
	helpView := m.help.ShortHelpView(helpKeys)

	if m.err != nil {
		return fmt.Sprintf("%s\n\n%s", styles.err.Render(fmt.Sprintf("Collage failed: %v", m.err)), helpView)
	}
	if m.result == nil {
		return fmt.Sprintf("%s\n\n%s", styles.err.Render("No result available"), helpView)
	}

	var b strings.Builder
	for _, res := range m.result.Results {
		if !res.Success {
			b.WriteString(styles.err.Render(fmt.Sprintf("✗ %s: %s", res.Name, res.Error)))
			b.WriteString("\n")
			continue
		}
		b.WriteString(styles.ok.Render("✓ " + res.Name))
		b.WriteString("\n")
		for _, f := range res.Files {
			b.WriteString("  " + f + "\n")
		}
	}
	return fmt.Sprintf("%s\n%s\n%s", styles.title.Render("Collage"), b.String(), helpView)
}
