package shellcache

import (
	"context"
	"net/http"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"
)

// Controller routes requests to the active worker.
// Without an active worker requests go straight to the network.
type Controller struct {
	active    atomic.Pointer[Worker]
	transport http.RoundTripper
	log       zerolog.Logger

	deploy sync.Mutex
	// every worker that was ever in control, for Wait
	deployed []*Worker
}

func NewController(transport http.RoundTripper, logger *zerolog.Logger) *Controller {
	if transport == nil {
		transport = http.DefaultTransport
	}
	c := &Controller{transport: transport}
	if logger == nil {
		c.log = zerolog.New(zerolog.NewConsoleWriter())
	} else {
		c.log = *logger
	}
	return c
}

// Deploy installs and activates the worker, then lets it take control of all
// clients at once. The previous worker becomes redundant.
// If the install or activation fails, the previous worker stays in control.
func (c *Controller) Deploy(ctx context.Context, w *Worker) error {
	c.deploy.Lock()
	defer c.deploy.Unlock()

	if w.State() == StateNew {
		if err := w.Install(ctx); err != nil {
			return err
		}
	}
	if err := w.Activate(ctx); err != nil {
		return err
	}

	previous := c.active.Swap(w)
	if previous == w {
		return nil
	}
	c.deployed = append(c.deployed, w)
	c.log.Info().Str("version", w.namespaces.Version).Msg("Worker claimed clients")
	if previous == nil {
		return nil
	}
	previous.retire()
	// the previous worker kept writing until it retired
	if err := w.Activate(ctx); err != nil {
		c.log.Warn().Err(err).Msg("Could not delete namespaces written by the previous worker")
	}
	return nil
}

// Active returns the worker in control, or nil.
func (c *Controller) Active() *Worker {
	return c.active.Load()
}

// RoundTrip implements the http.RoundTripper interface.
func (c *Controller) RoundTrip(r *http.Request) (*http.Response, error) {
	if w := c.active.Load(); w != nil {
		return w.RoundTrip(r)
	}
	return c.transport.RoundTrip(r)
}

// Wait blocks until the background revalidations of all deployed workers have finished.
func (c *Controller) Wait() {
	c.deploy.Lock()
	workers := append([]*Worker(nil), c.deployed...)
	c.deploy.Unlock()
	for _, w := range workers {
		w.Wait()
	}
}
