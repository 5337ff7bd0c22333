// Package daemon owns the launcher state. All commands and all results of
// background work are applied by a single goroutine, so clients observe
// each command's effect atomically and in arrival order.
package daemon

import (
	"context"
	"sync"

	"github.com/bryanchriswhite/hopper/internal/candidate"
	"github.com/bryanchriswhite/hopper/internal/desktop"
	herrors "github.com/bryanchriswhite/hopper/internal/errors"
	"github.com/bryanchriswhite/hopper/internal/logger"
	"github.com/bryanchriswhite/hopper/internal/notify"
)

const queueSize = 64

// Rebuilder refreshes the candidate list for a mode
type Rebuilder interface {
	Rebuild(ctx context.Context, mode candidate.Mode) ([]candidate.Candidate, error)
}

// Scanner re-reads the desktop entry index
type Scanner interface {
	Scan(ctx context.Context) ([]desktop.Entry, error)
}

// Focuser focuses a window by id
type Focuser interface {
	Focus(ctx context.Context, id string) error
}

// Recorder counts launches
type Recorder interface {
	Record(id string) error
}

// Deps are the collaborators the daemon drives. Recorder and Notifier may be nil.
type Deps struct {
	Store      Rebuilder
	Index      Scanner
	Windows    Focuser
	Launcher   desktop.Launcher
	History    Recorder
	Notifier   notify.Notifier
	Backend    string
	MaxResults int
}

// Reply is the answer to one submitted command
type Reply struct {
	Snapshot Snapshot
	Err      error
}

type envelope struct {
	event Event
	reply chan Reply
}

// Daemon is the actor that serializes all state changes
type Daemon struct {
	deps   Deps
	events chan envelope
	done   chan struct{}

	// owned by the Run goroutine
	state   State
	pending map[uint64][]chan Reply
	workCtx context.Context

	snapMu   sync.RWMutex
	snapshot Snapshot

	subMu       sync.Mutex
	subscribers map[chan Snapshot]struct{}
	closed      bool
}

// New creates a daemon in the Hidden state
func New(deps Deps) *Daemon {
	if deps.Notifier == nil {
		deps.Notifier = notify.NewSilent()
	}
	d := &Daemon{
		deps:        deps,
		events:      make(chan envelope, queueSize),
		done:        make(chan struct{}),
		state:       NewState(deps.MaxResults),
		pending:     make(map[uint64][]chan Reply),
		subscribers: make(map[chan Snapshot]struct{}),
	}
	d.snapshot = d.publishable()
	return d
}

// Submit queues a command and waits for its reply. show and toggle reply
// once the candidate list has loaded; a failed backend still yields an
// empty, successful reply.
func (d *Daemon) Submit(ctx context.Context, cmd Event) (Snapshot, error) {
	reply := make(chan Reply, 1)
	select {
	case d.events <- envelope{event: cmd, reply: reply}:
	case <-d.done:
		return d.Snapshot(), errStopped()
	case <-ctx.Done():
		return d.Snapshot(), ctx.Err()
	}

	select {
	case r := <-reply:
		return r.Snapshot, r.Err
	case <-d.done:
		// quit replies before done is closed, so prefer a delivered reply
		select {
		case r := <-reply:
			return r.Snapshot, r.Err
		default:
			return d.Snapshot(), errStopped()
		}
	case <-ctx.Done():
		return d.Snapshot(), ctx.Err()
	}
}

// Snapshot returns the most recently published state
func (d *Daemon) Snapshot() Snapshot {
	d.snapMu.RLock()
	defer d.snapMu.RUnlock()
	return d.snapshot
}

// Done is closed once Run has returned
func (d *Daemon) Done() <-chan struct{} {
	return d.done
}

// Subscribe returns a channel that always holds the latest snapshot.
// Slow readers skip intermediate states rather than blocking the daemon.
func (d *Daemon) Subscribe() (<-chan Snapshot, func()) {
	ch := make(chan Snapshot, 1)
	ch <- d.Snapshot()

	d.subMu.Lock()
	if d.closed {
		close(ch)
	} else {
		d.subscribers[ch] = struct{}{}
	}
	d.subMu.Unlock()

	return ch, func() { d.unsubscribe(ch) }
}

func (d *Daemon) unsubscribe(ch chan Snapshot) {
	d.subMu.Lock()
	defer d.subMu.Unlock()
	if _, ok := d.subscribers[ch]; ok {
		delete(d.subscribers, ch)
		close(ch)
	}
}

// Run processes events until quit is received or ctx is cancelled.
// In-flight backend calls are abandoned on exit.
func (d *Daemon) Run(ctx context.Context) error {
	log := logger.WithComponent("daemon")

	workCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	d.workCtx = workCtx

	defer close(d.done)
	defer d.closeSubscribers()

	log.Info().Str("backend", d.deps.Backend).Msg("Daemon ready")

	for {
		select {
		case env := <-d.events:
			if stop := d.handle(env); stop {
				log.Info().Msg("Quit requested, shutting down")
				return nil
			}
		case <-ctx.Done():
			d.releaseAll()
			return ctx.Err()
		}
	}
}

func (d *Daemon) handle(env envelope) bool {
	log := logger.WithComponent("daemon")
	log.Debug().Str("event", eventName(env.event)).Msg("Handling event")

	out := Reduce(d.state, env.event)
	d.state = out.State
	err := out.Err
	stop := false

	effects := out.Effects
	for len(effects) > 0 {
		eff := effects[0]
		effects = effects[1:]

		switch e := eff.(type) {
		case RebuildEffect:
			d.startRebuild(e)

		case LaunchEffect:
			launchErr := d.deps.Launcher.Launch(e.Entry)
			if launchErr != nil {
				log.Error().Err(launchErr).Str("entry", e.Entry.ID).Msg("Launch failed")
			} else {
				log.Info().Str("entry", e.Entry.ID).Msg("Launched application")
			}
			next := Reduce(d.state, launchFinished{Entry: e.Entry, Err: launchErr})
			d.state = next.State
			if next.Err != nil {
				err = next.Err
			}
			effects = append(effects, next.Effects...)

		case FocusEffect:
			d.startFocus(e)

		case RescanEffect:
			d.startRescan()

		case RecordEffect:
			d.startRecord(e)

		case NotifyEffect:
			go func(n notify.Notifier, title, msg string) {
				if nErr := n.Notify(title, msg); nErr != nil {
					logger.WithComponent("daemon").Debug().Err(nErr).Msg("Notification not delivered")
				}
			}(d.deps.Notifier, e.Title, e.Message)

		case QuitEffect:
			stop = true
		}
	}

	snap := d.publish()

	if env.reply != nil {
		if out.Pending && !stop {
			d.pending[d.state.Generation] = append(d.pending[d.state.Generation], env.reply)
		} else {
			env.reply <- Reply{Snapshot: snap, Err: err}
		}
	}

	if stop {
		d.releaseAll()
		return true
	}
	d.releaseSettled(snap)
	return false
}

// releaseSettled answers deferred replies whose rebuild landed or was superseded
func (d *Daemon) releaseSettled(snap Snapshot) {
	for gen, replies := range d.pending {
		if gen == d.state.Generation && d.state.Loading {
			continue
		}
		for _, r := range replies {
			r <- Reply{Snapshot: snap}
		}
		delete(d.pending, gen)
	}
}

func (d *Daemon) releaseAll() {
	snap := d.Snapshot()
	for gen, replies := range d.pending {
		for _, r := range replies {
			r <- Reply{Snapshot: snap}
		}
		delete(d.pending, gen)
	}
}

// post feeds the result of background work back into the actor
func (d *Daemon) post(ctx context.Context, ev Event) {
	select {
	case d.events <- envelope{event: ev}:
	case <-ctx.Done():
	}
}

func (d *Daemon) startRebuild(e RebuildEffect) {
	ctx := d.workCtx
	go func() {
		cands, err := d.deps.Store.Rebuild(ctx, e.Mode)
		if err != nil {
			logger.WithComponent("daemon").Warn().Err(err).Str("mode", e.Mode.String()).Msg("Candidate rebuild degraded")
		}
		d.post(ctx, candidatesLoaded{Generation: e.Generation, Mode: e.Mode, Candidates: cands, Err: err})
	}()
}

func (d *Daemon) startFocus(e FocusEffect) {
	ctx := d.workCtx
	go func() {
		err := d.deps.Windows.Focus(ctx, e.Window.ID)
		log := logger.WithComponent("daemon")
		if err != nil {
			log.Error().Err(err).Str("window", e.Window.ID).Msg("Focus failed")
		} else {
			log.Info().Str("window", e.Window.ID).Str("title", e.Window.Title).Msg("Focused window")
		}
		d.post(ctx, focusFinished{Window: e.Window, Err: err})
	}()
}

func (d *Daemon) startRescan() {
	ctx := d.workCtx
	go func() {
		entries, err := d.deps.Index.Scan(ctx)
		log := logger.WithComponent("daemon")
		if err != nil {
			log.Warn().Err(err).Msg("Desktop entry rescan failed")
		} else {
			log.Info().Int("entries", len(entries)).Msg("Desktop entries rescanned")
		}
		d.post(ctx, indexRescanned{Entries: len(entries), Err: err})
	}()
}

// startRecord persists a launch count on a worker goroutine
func (d *Daemon) startRecord(e RecordEffect) {
	if d.deps.History == nil {
		return
	}
	go func(h Recorder) {
		if err := h.Record(e.ID); err != nil {
			logger.WithComponent("daemon").Warn().Err(err).Str("entry", e.ID).Msg("Failed to record launch")
		}
	}(d.deps.History)
}

// RequestRescan queues a rescan without waiting, for use by the file watcher
func (d *Daemon) RequestRescan() {
	select {
	case d.events <- envelope{event: Rescan{}}:
	case <-d.done:
	default:
		logger.WithComponent("daemon").Debug().Msg("Event queue full, dropping rescan request")
	}
}

func (d *Daemon) publishable() Snapshot {
	snap := d.state.Snapshot()
	snap.Backend = d.deps.Backend
	return snap
}

// publish stores the snapshot and offers it to every subscriber, replacing
// any value the subscriber has not read yet
func (d *Daemon) publish() Snapshot {
	snap := d.publishable()

	d.snapMu.Lock()
	d.snapshot = snap
	d.snapMu.Unlock()

	d.subMu.Lock()
	defer d.subMu.Unlock()
	for ch := range d.subscribers {
		select {
		case <-ch:
		default:
		}
		select {
		case ch <- snap:
		default:
		}
	}
	return snap
}

func (d *Daemon) closeSubscribers() {
	d.subMu.Lock()
	defer d.subMu.Unlock()
	d.closed = true
	for ch := range d.subscribers {
		delete(d.subscribers, ch)
		close(ch)
	}
}

func errStopped() error {
	return herrors.New(herrors.ErrCodeTransportUnreachable, "daemon is shutting down")
}

func eventName(ev Event) string {
	switch e := ev.(type) {
	case Toggle:
		return "toggle"
	case Show:
		return "show:" + e.Mode.String()
	case Hide:
		return "hide"
	case Query:
		return "query"
	case Select:
		return "select"
	case Activate:
		return "activate"
	case Quit:
		return "quit"
	case Rescan:
		return "rescan"
	case Status:
		return "status"
	case candidatesLoaded:
		return "candidates-loaded"
	case launchFinished:
		return "launch-finished"
	case focusFinished:
		return "focus-finished"
	case indexRescanned:
		return "index-rescanned"
	}
	return "unknown"
}
