package session

import (
	"context"
	"errors"
	"livon-client/internal/app/connection"
	"livon-client/internal/app/reconnect"
	"livon-client/internal/app/registry"
	"livon-client/internal/core/contracts"
	"livon-client/internal/core/domain"
	"livon-client/internal/core/services"
	"livon-client/pkg/logging"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

type Options struct {
	RoomID         string
	UserID         string
	Endpoint       string
	OptimisticEcho bool
	TypingQuiet    time.Duration
	TypingExpiry   time.Duration
	Reconnect      reconnect.Options
	// LoopBuffer bounds pending mutations before producers block.
	LoopBuffer int
}

// Deps are the collaborators a Session consumes. History and Uploader may be nil.
type Deps struct {
	Dialer   contracts.Dialer
	Tokens   contracts.TokenSource
	History  contracts.HistoryFetcher
	Uploader contracts.Uploader
	Notifier contracts.Notifier
}

// Session binds one user to one room for the lifetime of a connection
// lifecycle. All store mutation runs on the session loop.
type Session struct {
	log      *slog.Logger
	opts     Options
	notifier contracts.Notifier
	history  contracts.HistoryFetcher

	manager     *connection.Manager
	registry    *registry.Registry
	controller  *reconnect.Controller
	store       *services.Store
	typing      *services.TypingSet
	dispatcher  *services.Dispatcher
	sequencer   *services.Sequencer
	coordinator *services.Coordinator

	actions  chan func()
	quit     chan struct{}
	loopDone chan struct{}

	ctx       context.Context
	cancel    context.CancelFunc
	joined    atomic.Bool
	closed    atomic.Bool
	closeOnce sync.Once
}

func New(log *slog.Logger, opts Options, deps Deps) (*Session, error) {
	if opts.RoomID == "" {
		return nil, errors.New("session - new - room id is required")
	}
	if deps.Dialer == nil || deps.Tokens == nil || deps.Notifier == nil {
		return nil, errors.New("session - new - dialer, tokens and notifier are required")
	}
	if opts.LoopBuffer <= 0 {
		opts.LoopBuffer = 256
	}
	log = logging.OrDiscard(log).With(logging.Room(opts.RoomID), "user", opts.UserID)
	ctx, cancel := context.WithCancel(context.Background())

	s := &Session{
		log:      log,
		opts:     opts,
		notifier: deps.Notifier,
		history:  deps.History,
		actions:  make(chan func(), opts.LoopBuffer),
		quit:     make(chan struct{}),
		loopDone: make(chan struct{}),
		ctx:      ctx,
		cancel:   cancel,
	}
	s.store = services.NewStore(opts.RoomID)
	s.typing = services.NewTypingSet(opts.TypingExpiry, s.enqueue)
	s.dispatcher = services.NewDispatcher(log, opts.UserID, s.store, s.typing, deps.Notifier, s.enqueue)
	s.manager = connection.NewManager(log, opts.Endpoint, deps.Dialer, deps.Tokens)
	s.registry = registry.NewRegistry(log, s.dispatcher)
	s.controller = reconnect.NewController(log, s.manager, s.registry, deps.Tokens, opts.RoomID, opts.Reconnect)
	s.sequencer = services.NewSequencer(log, opts.UserID, s.manager, s.store, deps.Notifier, s.enqueue, services.SequencerOptions{
		OptimisticEcho: opts.OptimisticEcho,
		TypingQuiet:    opts.TypingQuiet,
	})
	if deps.Uploader != nil {
		s.coordinator = services.NewCoordinator(log, opts.RoomID, deps.Uploader, s.sequencer)
	}

	s.manager.Watch(s.onState)
	s.controller.OnAuthFailed(func(err error) {
		s.enqueue(func() {
			s.notify(domain.Event{Kind: domain.EventAuthFailed, Code: domain.CodeAuthRejected, Err: err.Error()})
		})
	})
	s.controller.OnGiveUp(func(err error) {
		s.enqueue(func() {
			s.notify(domain.Event{Kind: domain.EventErrorReported, Code: domain.CodeTransportLost, Err: err.Error()})
		})
	})

	go s.run()
	return s, nil
}

// Start seeds the backlog and opens the connection. Only a rejected
// credential is returned; a lost transport is retried in the background.
func (s *Session) Start(ctx context.Context) error {
	if s.closed.Load() {
		return domain.ErrSessionClosed
	}
	s.seedHistory(ctx)
	if err := s.manager.Connect(ctx); err != nil {
		if errors.Is(err, domain.ErrAuthRejected) {
			return err
		}
		s.log.WarnContext(ctx, "session - start - initial connect failed, retrying", logging.Err(err))
	}
	return nil
}

func (s *Session) seedHistory(ctx context.Context) {
	if s.history == nil {
		return
	}
	msgs, err := s.history.FetchHistory(ctx, s.opts.RoomID)
	if err != nil {
		s.log.WarnContext(ctx, "session - start - fetch history failed", logging.Err(err))
		s.enqueue(func() {
			s.notify(domain.Event{Kind: domain.EventErrorReported, Err: err.Error()})
		})
		return
	}
	done := make(chan struct{})
	s.enqueue(func() {
		defer close(done)
		if n := s.store.Seed(msgs); n > 0 {
			s.notify(domain.Event{Kind: domain.EventMessagesChanged})
		}
	})
	select {
	case <-done:
	case <-s.quit:
	}
	s.log.InfoContext(ctx, "session - start - history seeded", "count", len(msgs))
}

func (s *Session) onState(evt domain.StateEvent) {
	s.enqueue(func() {
		e := domain.Event{Kind: domain.EventStateChanged, State: evt.New, Previous: evt.Old}
		if evt.Cause != nil {
			e.Err = evt.Cause.Error()
			e.Code, _ = domain.CodeOf(evt.Cause)
		}
		s.notify(e)
		if evt.New == domain.StateConnected && s.joined.CompareAndSwap(false, true) {
			if err := s.sequencer.Join(s.ctx); err != nil {
				s.joined.Store(false)
			}
		}
	})
}

// SendText publishes a text message.
func (s *Session) SendText(ctx context.Context, content string) (domain.Message, error) {
	if s.closed.Load() {
		return domain.Message{}, domain.ErrSessionClosed
	}
	return s.sequencer.SendText(ctx, content)
}

// SendAttachment uploads file then sends it with caption.
func (s *Session) SendAttachment(ctx context.Context, file domain.File, caption string) (domain.Message, error) {
	if s.closed.Load() {
		return domain.Message{}, domain.ErrSessionClosed
	}
	if s.coordinator == nil {
		return domain.Message{}, domain.WrapError(domain.CodeUploadFailed, "session - attachments are not configured", nil)
	}
	ctx, stop := context.WithCancel(ctx)
	defer stop()
	cancelOnClose := context.AfterFunc(s.ctx, stop)
	defer cancelOnClose()
	return s.coordinator.SendAttachment(ctx, file, caption)
}

func (s *Session) StartTyping() error {
	if s.closed.Load() {
		return domain.ErrSessionClosed
	}
	return s.sequencer.StartTyping()
}

func (s *Session) StopTyping() error {
	if s.closed.Load() {
		return domain.ErrSessionClosed
	}
	return s.sequencer.StopTyping()
}

func (s *Session) State() domain.ConnectionState { return s.manager.State() }

func (s *Session) Messages() []domain.Message { return s.store.Messages() }

func (s *Session) Presence() []string { return s.store.Presence() }

func (s *Session) Typing() []string { return s.typing.Users() }

// Subscriptions lists the destinations currently subscribed.
func (s *Session) Subscriptions() []string { return s.registry.Active() }

// Close leaves the room, releases subscriptions and closes the transport.
// It is idempotent.
func (s *Session) Close(ctx context.Context) error {
	var err error
	s.closeOnce.Do(func() {
		s.closed.Store(true)
		s.controller.Stop()
		if lerr := s.sequencer.Leave(ctx); lerr != nil {
			s.log.WarnContext(ctx, "session - close - leave failed", logging.Err(lerr))
		}
		s.sequencer.Close()
		s.typing.Close()
		if uerr := s.registry.UnsubscribeAll(); uerr != nil {
			s.log.WarnContext(ctx, "session - close - unsubscribe failed", logging.Err(uerr))
		}
		err = s.manager.Disconnect()
		// deliver the final transitions to the loop, then let the loop
		// publish them before it stops
		s.manager.Close()
		s.barrier()
		s.cancel()
		close(s.quit)
		<-s.loopDone
		s.log.InfoContext(ctx, "session - close - success")
	})
	return err
}

func (s *Session) enqueue(fn func()) {
	select {
	case <-s.quit:
		return
	default:
	}
	select {
	case s.actions <- fn:
	case <-s.quit:
	}
}

// barrier returns once every action enqueued before it has run.
func (s *Session) barrier() {
	done := make(chan struct{})
	s.enqueue(func() { close(done) })
	select {
	case <-done:
	case <-s.loopDone:
	}
}

func (s *Session) run() {
	defer close(s.loopDone)
	for {
		select {
		case fn := <-s.actions:
			fn()
		case <-s.quit:
			return
		}
	}
}

func (s *Session) notify(evt domain.Event) {
	evt.RoomID = s.opts.RoomID
	if evt.At.IsZero() {
		evt.At = time.Now()
	}
	s.notifier.Notify(s.ctx, evt)
}
