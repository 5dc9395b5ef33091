package llm

import (
	"context"
	"errors"
	"io"
	"sync"

	"github.com/KamdynS/promptline/observability"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Event is one step of a completion stream: a partial completion, or a stop
// when Completion is nil.
type Event struct {
	Completion *PartialCompletion `json:"completion,omitempty"`
	// Message is the coalesced message after this event was applied. It is
	// set on completion events delivered by a ChatCompletionStream.
	Message *ChatMessage `json:"-"`
}

// CompletionEvent wraps a partial completion.
func CompletionEvent(p PartialCompletion) Event { return Event{Completion: &p} }

// StopEvent signals the end of a completion.
func StopEvent() Event { return Event{} }

func (e Event) IsStop() bool { return e.Completion == nil }

// EventSource provides a pull-based API over provider event streams.
// Implementations return io.EOF when the upstream ends.
type EventSource interface {
	Recv(ctx context.Context) (Event, error)
	Close() error
}

// SourceFactory opens the upstream. It runs once, on first subscription.
type SourceFactory func(ctx context.Context) (EventSource, error)

var (
	// ErrStreamClosed indicates Recv was called after Close or a terminal event.
	ErrStreamClosed = errors.New("stream closed")
	// ErrAlreadySubscribed is returned when a stream is consumed twice.
	ErrAlreadySubscribed = errors.New("llm: completion stream already subscribed")
)

// State is the lifecycle state of a ChatCompletionStream.
type State int

const (
	StateWaiting State = iota
	StateStreaming
	StateCanceled
	StateCompleted
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateWaiting:
		return "waiting"
	case StateStreaming:
		return "streaming"
	case StateCanceled:
		return "canceled"
	case StateCompleted:
		return "completed"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Terminal reports whether no further transitions can happen.
func (s State) Terminal() bool {
	return s == StateCanceled || s == StateCompleted || s == StateFailed
}

// StreamOption configures a ChatCompletionStream.
type StreamOption func(*ChatCompletionStream)

// WithStreamLogger sets the logger for state transitions.
func WithStreamLogger(l zerolog.Logger) StreamOption {
	return func(s *ChatCompletionStream) { s.log = l }
}

// WithStreamHooks reports state transitions to h.
func WithStreamHooks(h *observability.Hooks) StreamOption {
	return func(s *ChatCompletionStream) { s.hooks = h }
}

// OnMessage registers fn to receive every published message, in order, on
// the consumption goroutine.
func OnMessage(fn func(ChatMessage)) StreamOption {
	return func(s *ChatCompletionStream) { s.onMessage = append(s.onMessage, fn) }
}

// ChatCompletionStream turns an upstream of partial completions into a state
// machine and a coalesced, growing chat message. A single goroutine consumes
// the upstream; all other access is through snapshots.
type ChatCompletionStream struct {
	id        string
	factory   SourceFactory
	log       zerolog.Logger
	hooks     *observability.Hooks
	onMessage []func(ChatMessage)

	mu         sync.Mutex
	state      State
	err        error
	message    *ChatMessage
	stopReason StopReason
	started    bool
	cancel     context.CancelFunc
	watchers   []chan ChatMessage
	done       chan struct{}
}

// NewChatCompletionStream creates a stream in the waiting state. factory is
// not called until the stream is consumed.
func NewChatCompletionStream(factory SourceFactory, opts ...StreamOption) *ChatCompletionStream {
	s := &ChatCompletionStream{
		id:      uuid.NewString(),
		factory: factory,
		log:     zerolog.Nop(),
		done:    make(chan struct{}),
	}
	for _, o := range opts {
		o(s)
	}
	s.log = s.log.With().Str("component", "completion_stream").Str("stream_id", s.id).Logger()
	return s
}

// NewStreamFromCompletion wraps a one-shot completion as a stream of one
// completion event.
func NewStreamFromCompletion(fn func(ctx context.Context) (*ChatCompletion, error), opts ...StreamOption) *ChatCompletionStream {
	return NewChatCompletionStream(func(ctx context.Context) (EventSource, error) {
		c, err := fn(ctx)
		if err != nil {
			return nil, err
		}
		return NewSliceSource(CompletionEvent(PartialFromCompletion(c))), nil
	}, opts...)
}

// NewStreamFromEvents replays a fixed sequence of events.
func NewStreamFromEvents(events []Event, opts ...StreamOption) *ChatCompletionStream {
	return NewChatCompletionStream(func(context.Context) (EventSource, error) {
		return NewSliceSource(events...), nil
	}, opts...)
}

// ID identifies the stream in logs.
func (s *ChatCompletionStream) ID() string { return s.id }

// State returns the current state.
func (s *ChatCompletionStream) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Err returns the failure or cancellation cause once terminal.
func (s *ChatCompletionStream) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Message returns the latest coalesced message, if any.
func (s *ChatCompletionStream) Message() (ChatMessage, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.message == nil {
		return ChatMessage{}, false
	}
	return *s.message, true
}

// StopReason returns the last stop reason reported upstream.
func (s *ChatCompletionStream) StopReason() StopReason {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stopReason
}

// Done is closed when the stream reaches a terminal state.
func (s *ChatCompletionStream) Done() <-chan struct{} { return s.done }

// Events subscribes to the raw event sequence and starts consumption. The
// channel carries events up to and including the first stop and is closed
// when the stream terminates. Cancelling ctx cancels the upstream. Only one
// subscription is allowed.
func (s *ChatCompletionStream) Events(ctx context.Context) (<-chan Event, error) {
	out := make(chan Event)
	if err := s.start(ctx, out); err != nil {
		return nil, err
	}
	return out, nil
}

// Start begins consumption without an event subscriber, for callers that
// only watch messages. It counts as the single subscription.
func (s *ChatCompletionStream) Start(ctx context.Context) error {
	return s.start(ctx, nil)
}

func (s *ChatCompletionStream) start(ctx context.Context, out chan Event) error {
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return ErrAlreadySubscribed
	}
	s.started = true
	if s.state != StateWaiting {
		s.mu.Unlock()
		if out != nil {
			close(out)
		}
		return ErrStreamClosed
	}
	loopCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.state = StateStreaming
	s.mu.Unlock()

	s.report(loopCtx, StateStreaming, nil)
	go s.run(loopCtx, out)
	return nil
}

// Messages returns a channel of message snapshots. Any number of watchers
// may subscribe; each sees the latest message and is closed on termination.
// A slow watcher skips intermediate snapshots rather than blocking the
// stream. Watching does not start consumption.
func (s *ChatCompletionStream) Messages() <-chan ChatMessage {
	ch := make(chan ChatMessage, 1)
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.message != nil {
		ch <- *s.message
	}
	if s.state.Terminal() {
		close(ch)
		return ch
	}
	s.watchers = append(s.watchers, ch)
	return ch
}

// Cancel stops the stream. A waiting stream is canceled immediately; a
// streaming one cancels its upstream and finishes asynchronously.
func (s *ChatCompletionStream) Cancel() {
	s.mu.Lock()
	if s.state == StateWaiting {
		s.terminateLocked(StateCanceled, context.Canceled)
		s.mu.Unlock()
		s.report(context.Background(), StateCanceled, context.Canceled)
		return
	}
	cancel := s.cancel
	s.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

// Wait blocks until the stream terminates and returns the final message.
// It returns the failure for failed streams and the cause for canceled ones.
func (s *ChatCompletionStream) Wait(ctx context.Context) (ChatMessage, error) {
	select {
	case <-s.done:
	case <-ctx.Done():
		return ChatMessage{}, ctx.Err()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return ChatMessage{}, s.err
	}
	if s.message == nil {
		return ChatMessage{}, nil
	}
	return *s.message, nil
}

// Collect starts the stream and waits for the final completion.
func (s *ChatCompletionStream) Collect(ctx context.Context) (*ChatCompletion, error) {
	if err := s.Start(ctx); err != nil {
		return nil, err
	}
	msg, err := s.Wait(ctx)
	if err != nil {
		return nil, err
	}
	return &ChatCompletion{Message: msg, StopReason: s.StopReason()}, nil
}

func (s *ChatCompletionStream) run(ctx context.Context, out chan Event) {
	defer s.cancel()
	if out != nil {
		defer close(out)
	}

	src, err := s.factory(ctx)
	if err != nil {
		s.fail(ctx, err)
		return
	}
	// The upstream is closed before the stream turns terminal, so anything
	// its Close does happens before Wait returns.
	closed := false
	closeSource := func() {
		if closed {
			return
		}
		closed = true
		if err := src.Close(); err != nil {
			s.log.Debug().Err(err).Msg("closing upstream failed")
		}
	}
	defer closeSource()

	var acc *PartialMessage
	for {
		ev, err := src.Recv(ctx)
		if errors.Is(err, io.EOF) {
			closeSource()
			s.finish(ctx, StateCompleted, nil)
			s.send(ctx, out, StopEvent())
			return
		}
		if err != nil {
			closeSource()
			s.fail(ctx, err)
			return
		}
		if ev.IsStop() {
			closeSource()
			s.finish(ctx, StateCompleted, nil)
			s.send(ctx, out, ev)
			return
		}

		merged := Coalesce(acc, ev.Completion.Message)
		msg := merged.Message()
		if msg.ID == "" {
			msg.ID = uuid.NewString()
		}
		next := PartialFromMessage(msg)
		acc = &next
		s.publish(msg, ev.Completion.StopReason)

		ev.Message = &msg
		if !s.send(ctx, out, ev) {
			closeSource()
			s.finish(ctx, StateCanceled, ctx.Err())
			return
		}
	}
}

func (s *ChatCompletionStream) fail(ctx context.Context, err error) {
	if ctx.Err() != nil {
		s.finish(ctx, StateCanceled, ctx.Err())
		return
	}
	s.finish(ctx, StateFailed, err)
}

func (s *ChatCompletionStream) send(ctx context.Context, out chan Event, ev Event) bool {
	if out == nil {
		return true
	}
	select {
	case out <- ev:
		return true
	case <-ctx.Done():
		return false
	}
}

func (s *ChatCompletionStream) publish(msg ChatMessage, reason StopReason) {
	s.mu.Lock()
	s.message = &msg
	if reason != StopReasonNone {
		s.stopReason = reason
	}
	for _, w := range s.watchers {
		select {
		case w <- msg:
		default:
			select {
			case <-w:
			default:
			}
			w <- msg
		}
	}
	s.mu.Unlock()
	for _, fn := range s.onMessage {
		fn(msg)
	}
}

// finish moves the stream to a terminal state once.
func (s *ChatCompletionStream) finish(ctx context.Context, to State, err error) {
	s.mu.Lock()
	ok := s.terminateLocked(to, err)
	s.mu.Unlock()
	if ok {
		s.report(ctx, to, err)
	}
}

// terminateLocked records the terminal state and releases waiters. It
// reports false when the stream already ended. s.mu must be held.
func (s *ChatCompletionStream) terminateLocked(to State, err error) bool {
	if s.state.Terminal() {
		return false
	}
	s.state = to
	s.err = err
	for _, w := range s.watchers {
		close(w)
	}
	s.watchers = nil
	close(s.done)
	return true
}

func (s *ChatCompletionStream) report(ctx context.Context, st State, err error) {
	ev := s.log.Debug()
	if st == StateFailed {
		ev = s.log.Warn().Err(err)
	}
	ev.Str("state", st.String()).Msg("stream state changed")
	s.hooks.SafeStreamState(ctx, s.id, st.String(), err)
}

// SliceSource is an EventSource over a fixed list of events.
type SliceSource struct {
	mu     sync.Mutex
	events []Event
	closed bool
}

// NewSliceSource returns a source that yields events and then io.EOF.
func NewSliceSource(events ...Event) *SliceSource {
	return &SliceSource{events: events}
}

func (s *SliceSource) Recv(ctx context.Context) (Event, error) {
	if err := ctx.Err(); err != nil {
		return Event{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return Event{}, ErrStreamClosed
	}
	if len(s.events) == 0 {
		return Event{}, io.EOF
	}
	ev := s.events[0]
	s.events = s.events[1:]
	return ev, nil
}

func (s *SliceSource) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}
