package tasks

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/albumwall/internal/models"
	"github.com/desertthunder/albumwall/internal/services"
	"github.com/desertthunder/albumwall/internal/shared"
	"golang.org/x/sync/errgroup"
)

// DefaultSyncInterval is how often [Syncer.Run] resyncs when no interval is configured.
const DefaultSyncInterval = 5 * time.Minute

// SyncState is a snapshot of what the view layer shows.
//
// Albums is replaced wholesale by each successful cycle and must not be modified by readers.
type SyncState struct {
	Albums        []models.Album
	User          *models.Profile
	Loading       bool
	Authenticated bool
	Err           error
	Warning       string
	Cycle         uint64
	SyncedAt      time.Time
}

// SyncerOpts configures a [Syncer].
type SyncerOpts struct {
	Refresher services.Refresher
	Library   services.LibraryFetcher
	// Interval between cycles in [Syncer.Run]. Defaults to [DefaultSyncInterval].
	Interval time.Duration
	Logger   *log.Logger
	Now      func() time.Time
}

// Syncer keeps the album library in sync for a client: refresh, fetch, replace.
//
// Each cycle gets an increasing id and its own context. Starting a cycle cancels the one before
// it, and only the latest cycle may write state, so a slow stale cycle can never overwrite a
// newer result.
type Syncer struct {
	refresher services.Refresher
	library   services.LibraryFetcher
	interval  time.Duration
	logger    *log.Logger
	now       func() time.Time

	mu      sync.Mutex
	state   SyncState
	token   models.AccessToken
	cycle   uint64
	cancel  context.CancelFunc
	updates chan SyncState
	trigger chan struct{}
}

// NewSyncer creates a syncer in the unauthenticated, empty state.
func NewSyncer(opts SyncerOpts) (*Syncer, error) {
	if opts.Refresher == nil || opts.Library == nil {
		return nil, fmt.Errorf("%w: refresher and library fetcher are required", shared.ErrMissingArgument)
	}
	if opts.Interval <= 0 {
		opts.Interval = DefaultSyncInterval
	}
	if opts.Logger == nil {
		opts.Logger = shared.NewLogger(nil)
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	return &Syncer{
		refresher: opts.Refresher,
		library:   opts.Library,
		interval:  opts.Interval,
		logger:    shared.WithLogger(opts.Logger, "component", "sync"),
		now:       opts.Now,
		updates:   make(chan SyncState, 1),
		trigger:   make(chan struct{}, 1),
	}, nil
}

// State returns the current snapshot.
func (s *Syncer) State() SyncState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Updates delivers snapshots as they change. Only the latest undelivered snapshot is kept.
func (s *Syncer) Updates() <-chan SyncState {
	return s.updates
}

// Trigger asks a running [Syncer.Run] loop to start a cycle now.
func (s *Syncer) Trigger() {
	select {
	case s.trigger <- struct{}{}:
	default:
	}
}

// Reset cancels any cycle in flight and forgets the library and access token, e.g. after logout.
func (s *Syncer) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cycle++
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
	s.token = models.AccessToken{}
	s.state = SyncState{Cycle: s.cycle}
	s.publishLocked()
}

// Run syncs immediately, then every interval and on [Syncer.Trigger], until ctx is cancelled.
// Cancelling ctx aborts the cycle in flight and discards its result.
func (s *Syncer) Run(ctx context.Context) error {
	var wg sync.WaitGroup
	start := func() {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := s.SyncOnce(ctx); err != nil && !errors.Is(err, shared.ErrAborted) {
				s.logger.Warn("sync cycle failed", "error", err)
			}
		}()
	}

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	start()
	for {
		select {
		case <-ctx.Done():
			wg.Wait()
			return nil
		case <-ticker.C:
			start()
		case <-s.trigger:
			start()
		}
	}
}

// SyncOnce runs one cycle: refresh, then fetch albums and profile concurrently, then replace state.
//
// An unauthenticated refresh stops the cycle before any fetch. A failed fetch keeps previously
// loaded albums and sets a warning; with nothing loaded yet it reports the error.
func (s *Syncer) SyncOnce(ctx context.Context) error {
	ctx, id := s.begin(ctx)
	defer s.finish(id)

	access, err := s.accessToken(ctx, false)
	if err != nil {
		if ctx.Err() != nil {
			return fmt.Errorf("%w: %w", shared.ErrAborted, ctx.Err())
		}
		s.fail(id, err)
		return err
	}

	var (
		albums  []models.Album
		profile *models.Profile
	)
	tokens := services.TokenSourceFunc(func(ctx context.Context, force bool) (string, error) {
		return s.accessToken(ctx, force)
	})

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		albums, err = s.library.FetchAllAlbums(gctx, tokens)
		return err
	})
	g.Go(func() error {
		profile = s.library.FetchUserProfile(gctx, access)
		return nil
	})
	err = g.Wait()

	if ctx.Err() != nil {
		return fmt.Errorf("%w: %w", shared.ErrAborted, ctx.Err())
	}
	if err != nil {
		s.fail(id, err)
		return err
	}

	s.commit(id, func(st *SyncState) {
		st.Albums = albums
		if profile != nil {
			st.User = profile
		}
		st.Authenticated = true
		st.Err = nil
		st.Warning = ""
		st.SyncedAt = s.now()
	})
	s.logger.Info("library synced", "cycle", id, "albums", len(albums))
	return nil
}

// begin starts a new cycle, cancelling the previous one.
func (s *Syncer) begin(parent context.Context) (context.Context, uint64) {
	ctx, cancel := context.WithCancel(parent)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		s.cancel()
	}
	s.cycle++
	s.cancel = cancel
	s.state.Loading = true
	s.state.Cycle = s.cycle
	s.publishLocked()
	return ctx, s.cycle
}

// finish releases the cycle's context and clears Loading if the cycle is still current.
func (s *Syncer) finish(id uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if id != s.cycle {
		return
	}
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
	if s.state.Loading {
		s.state.Loading = false
		s.publishLocked()
	}
}

// fail records a failed cycle. A lost session signs the user out; a provider failure keeps what was loaded.
func (s *Syncer) fail(id uint64, err error) {
	var pe *shared.ProviderError
	sessionEnded := errors.Is(err, shared.ErrUnauthenticated) && !errors.As(err, &pe)

	s.commit(id, func(st *SyncState) {
		switch {
		case sessionEnded:
			s.token = models.AccessToken{}
			st.Authenticated = false
			st.Err = err
			st.Warning = ""
		case len(st.Albums) > 0:
			st.Warning = "Showing previously loaded albums: " + err.Error()
		default:
			st.Authenticated = false
			st.Err = err
		}
	})
	s.logger.Warn("sync failed", "cycle", id, "error", err)
}

// commit applies fn to the state when id is the latest cycle. It reports whether it did.
func (s *Syncer) commit(id uint64, fn func(*SyncState)) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if id != s.cycle {
		s.logger.Debug("discarding result of superseded cycle", "cycle", id, "latest", s.cycle)
		return false
	}
	fn(&s.state)
	s.state.Loading = false
	s.publishLocked()
	return true
}

// accessToken returns the cached token while it is valid, otherwise asks the refresher.
func (s *Syncer) accessToken(ctx context.Context, force bool) (string, error) {
	s.mu.Lock()
	cached := s.token
	s.mu.Unlock()
	if !force && cached.Valid(s.now()) {
		return cached.Value, nil
	}

	tok, err := s.refresher.Refresh(ctx)
	if err != nil {
		return "", err
	}

	s.mu.Lock()
	s.token = tok
	s.mu.Unlock()
	return tok.Value, nil
}

// publishLocked replaces any undelivered snapshot with the current one. s.mu must be held.
func (s *Syncer) publishLocked() {
	snapshot := s.state
	for {
		select {
		case s.updates <- snapshot:
			return
		default:
			select {
			case <-s.updates:
			default:
			}
		}
	}
}

// LoadLibrary runs a single sync cycle and returns its result, for callers that do not keep a [Syncer].
func LoadLibrary(ctx context.Context, prog chan<- ProgressUpdate, refresher services.Refresher, library services.LibraryFetcher, logger *log.Logger) (*models.Library, error) {
	s, err := NewSyncer(SyncerOpts{Refresher: refresher, Library: library, Logger: logger})
	if err != nil {
		return nil, err
	}

	sendProgress(prog, refreshUpdate(1, 2))
	if _, err := s.accessToken(ctx, false); err != nil {
		return nil, err
	}

	sendProgress(prog, fetchLibraryUpdate(2, 2, -1))
	if err := s.SyncOnce(ctx); err != nil {
		return nil, err
	}

	st := s.State()
	sendProgress(prog, fetchLibraryUpdate(2, 2, len(st.Albums)))
	lib := &models.Library{Albums: st.Albums, User: st.User, FetchedAt: st.SyncedAt}
	if lib.Albums == nil {
		lib.Albums = []models.Album{}
	}
	return lib, nil
}
