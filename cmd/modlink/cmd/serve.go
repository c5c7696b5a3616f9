package cmd

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/spf13/cobra"

	"github.com/GoCodeAlone/modlink"
	"github.com/GoCodeAlone/modlink/descriptor"
	"github.com/GoCodeAlone/modlink/discovery"
	"github.com/GoCodeAlone/modlink/inspect"
)

// NewServeCommand creates the serve command
func NewServeCommand(opts *globalOptions) *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the inspection API over the descriptor corpus",
		Long: `Run a host with the inspection server and a corpus watcher. The server
answers on http_addr (or --addr) until interrupted; descriptor changes on disk
are picked up without a restart.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.loadConfig()
			if err != nil {
				return err
			}
			if addr != "" {
				cfg.HTTPAddr = addr
			}
			logger := NewLogger(cfg, cmd.ErrOrStderr())

			corpus := discovery.NewDirCorpus(cfg.CorpusDir, discovery.WithCorpusLogger(logger))
			host := modlink.NewHost(cfg, logger)
			if err := host.RegisterModule(newCorpusWatcher(corpus)); err != nil {
				return err
			}
			if err := host.RegisterModule(inspect.NewModule(cfg.HTTPAddr, corpus)); err != nil {
				return err
			}
			return host.RunContext(cmd.Context())
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "", "Listen address (overrides http_addr)")
	return cmd
}

// watchedCorpus is the part of *discovery.DirCorpus the watcher needs.
type watchedCorpus interface {
	Dir() string
	Read(ctx context.Context) ([]*descriptor.Descriptor, error)
	Watch(ctx context.Context, onChange func([]*descriptor.Descriptor, error)) error
}

// corpusWatcher is a host module that reports descriptor corpus changes to
// the host's observers and exposes the module count as a cell.
//
// The count describes the corpus, not the session, so a scope enter must not
// leave it at zero: the watcher registers a reseed entry with the coordinator
// after the cell, and that entry restores the last known count in the same
// reset pass.
type corpusWatcher struct {
	corpus watchedCorpus
	app    modlink.Application
	count  *modlink.Cell[int]
	known  atomic.Int64
	reseed modlink.Registration
	cancel context.CancelFunc
	done   chan struct{}
	mu     sync.Mutex
}

// corpusReseed restores the count cell after the coordinator reset it.
type corpusReseed struct{ w *corpusWatcher }

func (r corpusReseed) ID() string { return "CorpusModules.reseed" }

func (r corpusReseed) Reset() { r.w.count.Set(int(r.w.known.Load())) }

func (w *corpusWatcher) setCount(n int) {
	w.known.Store(int64(n))
	w.count.Set(n)
}

func newCorpusWatcher(corpus watchedCorpus) *corpusWatcher {
	return &corpusWatcher{corpus: corpus}
}

func (w *corpusWatcher) Name() string { return "modlink.corpus" }

func (w *corpusWatcher) Init(app modlink.Application) error {
	count, err := modlink.DeclareCell(app.Exchange(), "CorpusModules", 0,
		modlink.OwnedBy(w.Name()),
		modlink.WithPurpose("number of modules described in the watched corpus"))
	if err != nil {
		return err
	}
	w.app, w.count = app, count
	return nil
}

func (w *corpusWatcher) Start(ctx context.Context) error {
	ds, err := w.corpus.Read(ctx)
	if err != nil {
		return err
	}
	w.setCount(len(ds))

	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	w.mu.Lock()
	w.cancel, w.done = cancel, done
	w.reseed = w.app.Coordinator().RegisterCell(corpusReseed{w})
	w.mu.Unlock()

	go func() {
		defer close(done)
		if err := w.corpus.Watch(ctx, w.onChange); err != nil {
			w.app.Logger().Error("Corpus watch stopped", "dir", w.corpus.Dir(), "error", err)
		}
	}()
	return nil
}

func (w *corpusWatcher) onChange(ds []*descriptor.Descriptor, err error) {
	data := map[string]any{"dir": w.corpus.Dir()}
	if err != nil {
		w.app.Logger().Warn("Corpus changed but could not be read", "dir", w.corpus.Dir(), "error", err)
		data["error"] = err.Error()
	} else {
		modules := make([]string, 0, len(ds))
		for _, d := range ds {
			modules = append(modules, d.ModuleID)
		}
		w.setCount(len(ds))
		data["modules"] = modules
		w.app.Logger().Info("Corpus changed", "dir", w.corpus.Dir(), "modules", len(ds))
	}
	event := modlink.NewCloudEvent(modlink.EventTypeCorpusChanged, "modlink.corpus", data, nil)
	if err := w.app.NotifyObservers(context.Background(), event); err != nil {
		w.app.Logger().Debug("Failed to notify observers", "event", event.Type(), "error", err)
	}
}

func (w *corpusWatcher) Stop(ctx context.Context) error {
	w.mu.Lock()
	cancel, done := w.cancel, w.done
	w.cancel, w.done = nil, nil
	if cancel != nil {
		w.app.Coordinator().UnregisterCell(w.reseed)
	}
	w.mu.Unlock()
	if cancel == nil {
		return nil
	}
	cancel()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("corpus watcher did not stop: %w", ctx.Err())
	}
}
