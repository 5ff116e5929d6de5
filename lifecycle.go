package shellcache

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/always-cache/shellcache/cache"

	"golang.org/x/sync/errgroup"
)

var (
	ErrInstallFailed = errors.New("Install failed")
	ErrInvalidState  = errors.New("Invalid lifecycle state")
)

// State is the lifecycle state of a worker.
type State int32

const (
	StateNew State = iota
	StateInstalling
	StateInstalled
	StateActivating
	StateActive
	// The install failed, or the worker was replaced by a newer one.
	StateRedundant
)

var stateNames = map[State]string{
	StateNew:        "new",
	StateInstalling: "installing",
	StateInstalled:  "installed",
	StateActivating: "activating",
	StateActive:     "active",
	StateRedundant:  "redundant",
}

func (s State) String() string {
	if name, ok := stateNames[s]; ok {
		return name
	}
	return "unknown"
}

func (w *Worker) State() State {
	return State(w.state.Load())
}

func (w *Worker) setState(s State) {
	old := w.State()
	w.state.Store(int32(s))
	w.log.Debug().Str("from", old.String()).Str("to", s.String()).Msg("Worker state changed")
}

// Install pre-populates the static namespace with the app shell.
// Either every shell path is fetched successfully and stored, or nothing is
// written and the worker becomes redundant.
func (w *Worker) Install(ctx context.Context) error {
	w.lifecycle.Lock()
	defer w.lifecycle.Unlock()

	if state := w.State(); state != StateNew {
		return fmt.Errorf("%w: cannot install a worker that is %s", ErrInvalidState, state)
	}
	w.setState(StateInstalling)

	entries, err := w.fetchShell(ctx)
	if err == nil {
		err = w.cache.OpenNamespace(w.namespaces.Static)
	}
	if err == nil {
		err = w.cache.PutAll(w.namespaces.Static, entries)
	}
	if err != nil {
		w.setState(StateRedundant)
		w.log.Error().Err(err).Msg("Could not install app shell")
		return fmt.Errorf("%w: %w", ErrInstallFailed, err)
	}

	w.log.Info().Str("namespace", w.namespaces.Static).Msgf("Installed %d app shell entries", len(entries))
	// skip waiting: an installed worker may activate right away
	w.setState(StateInstalled)
	return nil
}

// fetchShell fetches all shell paths concurrently and returns their entries.
// The first failure cancels the remaining fetches.
func (w *Worker) fetchShell(ctx context.Context) ([]cache.CacheEntry, error) {
	entries := make([]cache.CacheEntry, len(w.shell))
	g, ctx := errgroup.WithContext(ctx)
	for i, path := range w.shell {
		g.Go(func() error {
			var err error
			entries[i], err = w.fetchShellEntry(ctx, path)
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return entries, nil
}

func (w *Worker) fetchShellEntry(ctx context.Context, path string) (cache.CacheEntry, error) {
	u, err := w.keyer.URLForPath(path)
	if err != nil {
		return cache.CacheEntry{}, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return cache.CacheEntry{}, err
	}
	snap, err := w.fetch(req)
	if err != nil {
		return cache.CacheEntry{}, fmt.Errorf("%s: %w", path, err)
	}
	if !snap.Storable() {
		return cache.CacheEntry{}, fmt.Errorf("%s: status %d", path, snap.StatusCode)
	}
	b, err := snap.Bytes()
	if err != nil {
		return cache.CacheEntry{}, err
	}
	w.log.Trace().Str("key", w.keyer.GetKey(req)).Msg("Fetched app shell entry")
	return cache.CacheEntry{Key: w.keyer.GetKey(req), Bytes: b}, nil
}

// Activate deletes every namespace of an older version of the application,
// then marks the worker active. Namespaces of other applications are left alone.
// Activating an active worker runs the cleanup again.
func (w *Worker) Activate(ctx context.Context) error {
	w.lifecycle.Lock()
	defer w.lifecycle.Unlock()

	previous := w.State()
	switch previous {
	case StateInstalled:
		w.setState(StateActivating)
	case StateActive:
	default:
		return fmt.Errorf("%w: cannot activate a worker that is %s", ErrInvalidState, previous)
	}

	if err := w.deleteStaleNamespaces(ctx); err != nil {
		w.setState(previous)
		return err
	}

	if previous != StateActive {
		w.setState(StateActive)
	}
	return nil
}

func (w *Worker) deleteStaleNamespaces(ctx context.Context) error {
	names, err := w.cache.Namespaces()
	if err != nil {
		return fmt.Errorf("Could not list namespaces: %w", err)
	}
	for _, name := range names {
		if !w.namespaces.Owns(name) || w.namespaces.IsCurrent(name) {
			continue
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if _, err := w.cache.DeleteNamespace(name); err != nil {
			return fmt.Errorf("Could not delete namespace %s: %w", name, err)
		}
		w.log.Info().Str("namespace", name).Msg("Deleted stale namespace")
	}
	return nil
}

// retire marks a replaced worker redundant. Requests it still receives pass straight to the network.
// It returns once cache writes in progress have finished; later writes are dropped.
func (w *Worker) retire() {
	w.lifecycle.Lock()
	defer w.lifecycle.Unlock()
	w.writes.Lock()
	defer w.writes.Unlock()
	w.setState(StateRedundant)
}
