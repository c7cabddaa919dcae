// Package scan keeps a document's sponsor badges in step with the registry as
// the page, the registry and the enabled flag change.
package scan

import (
	"context"
	"errors"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	"sponsorcheck/internal/registry"
)

var ErrStopped = errors.New("scan: loop stopped")

type eventKind int

const (
	eventHydrate eventKind = iota
	eventRegistry
	eventEnabled
	eventMutate
	eventInspect
)

type event struct {
	kind    eventKind
	enabled bool
	reg     *registry.Registry
	mutate  func(doc *goquery.Document)
	inspect func(doc *goquery.Document, st State)
	done    chan struct{}
}

type Option func(*Loop)

func WithLogger(log *zap.Logger) Option {
	return func(l *Loop) { l.log = log }
}

// WithPassHook registers fn to be called on the loop goroutine after every
// scan pass.
func WithPassHook(fn func(Report)) Option {
	return func(l *Loop) { l.onPass = fn }
}

// Loop owns one document. All reads and writes of the document and of State
// happen on the goroutine running Run, one event at a time.
type Loop struct {
	host    string
	doc     *goquery.Document
	scanner *Scanner
	state   State
	events  chan event
	stopped chan struct{}
	log     *zap.Logger
	onPass  func(Report)
}

func NewLoop(doc *goquery.Document, host string, scanner *Scanner, opts ...Option) *Loop {
	l := &Loop{
		host:    host,
		doc:     doc,
		scanner: scanner,
		state:   NewState(),
		events:  make(chan event, 64),
		stopped: make(chan struct{}),
		log:     zap.L(),
	}
	for _, opt := range opts {
		opt(l)
	}
	l.log = l.log.With(zap.String("host", host))
	return l
}

// Run processes events until ctx is done. A pass in progress always
// completes before the next event is read.
func (l *Loop) Run(ctx context.Context) error {
	defer close(l.stopped)
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev := <-l.events:
			l.dispatch(ev)
		}
	}
}

func (l *Loop) dispatch(ev event) {
	if ev.kind != eventMutate {
		l.perform(l.handle(ev))
		close(ev.done)
		return
	}

	// Fold queued mutations into one pass that runs after the last of them.
	pending := []event{ev}
	ev.mutate(l.doc)
	for {
		select {
		case next := <-l.events:
			if next.kind == eventMutate {
				next.mutate(l.doc)
				pending = append(pending, next)
				continue
			}
			l.finishMutations(pending)
			l.dispatch(next)
			return
		default:
			l.finishMutations(pending)
			return
		}
	}
}

func (l *Loop) finishMutations(pending []event) {
	l.perform(l.state.Mutated())
	for _, ev := range pending {
		close(ev.done)
	}
}

func (l *Loop) handle(ev event) Action {
	switch ev.kind {
	case eventHydrate:
		a := l.state.Hydrated(ev.enabled, ev.reg)
		l.log.Debug("scan loop hydrated",
			zap.Bool("enabled", l.state.Enabled),
			zap.Bool("data_loaded", l.state.DataLoaded),
		)
		return a
	case eventRegistry:
		return l.state.RegistryChanged(ev.reg)
	case eventEnabled:
		return l.state.EnabledChanged(ev.enabled)
	case eventInspect:
		ev.inspect(l.doc, l.state)
	}
	return ActionNone
}

func (l *Loop) perform(a Action) {
	switch a {
	case ActionScan:
		rep := l.scanner.Scan(l.doc, l.host, l.state.Registry)
		if !rep.Known {
			return
		}
		l.log.Debug("scan pass",
			zap.String("site", rep.Site),
			zap.Int("elements", len(rep.Outcomes)),
			zap.Int("sponsors", rep.Sponsors()),
			zap.Int("changed", rep.Changed()),
		)
		if l.onPass != nil {
			l.onPass(rep)
		}
	case ActionClear:
		n := l.scanner.Clear(l.doc)
		l.log.Debug("cleared badges", zap.Int("nodes", n))
	}
}

func (l *Loop) post(ctx context.Context, ev event) error {
	ev.done = make(chan struct{})
	select {
	case l.events <- ev:
	case <-l.stopped:
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case <-ev.done:
		return nil
	case <-l.stopped:
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Hydrate delivers the stored enabled flag and registry snapshot. A registry
// that was never loaded leaves the loop waiting for RegistryChanged.
func (l *Loop) Hydrate(ctx context.Context, enabled bool, reg *registry.Registry) error {
	return l.post(ctx, event{kind: eventHydrate, enabled: enabled, reg: reg})
}

func (l *Loop) RegistryChanged(ctx context.Context, reg *registry.Registry) error {
	return l.post(ctx, event{kind: eventRegistry, reg: reg})
}

func (l *Loop) SetEnabled(ctx context.Context, enabled bool) error {
	return l.post(ctx, event{kind: eventEnabled, enabled: enabled})
}

// Mutate runs fn against the document on the loop goroutine and then
// re-evaluates the page, like a DOM mutation observer firing.
func (l *Loop) Mutate(ctx context.Context, fn func(doc *goquery.Document)) error {
	if fn == nil {
		fn = func(*goquery.Document) {}
	}
	return l.post(ctx, event{kind: eventMutate, mutate: fn})
}

// Inspect gives fn read access to the document and state on the loop goroutine.
func (l *Loop) Inspect(ctx context.Context, fn func(doc *goquery.Document, st State)) error {
	return l.post(ctx, event{kind: eventInspect, inspect: fn})
}

// HTML renders the current document.
func (l *Loop) HTML(ctx context.Context) (string, error) {
	var (
		out    string
		renErr error
	)
	err := l.Inspect(ctx, func(doc *goquery.Document, _ State) {
		out, renErr = doc.Html()
	})
	if err != nil {
		return "", err
	}
	return out, renErr
}

// State returns a copy of the loop's state.
func (l *Loop) State(ctx context.Context) (State, error) {
	var st State
	err := l.Inspect(ctx, func(_ *goquery.Document, s State) { st = s })
	return st, err
}
