package messaging

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/pustakalab/pustakabot/internal/models"
)

// DefaultInterBubbleDelay is the pause between consecutive bubbles of a
// multi-part reply, so they arrive in order and read naturally.
const DefaultInterBubbleDelay = 500 * time.Millisecond

// SenderQueueSize bounds the backlog of unhandled messages per sender.
// The guard's cooldown keeps legitimate senders far below this.
const SenderQueueSize = 16

// processor runs one inbound message through the dialogue engine.
type processor interface {
	ProcessMessage(ctx context.Context, from, text, userName string) (models.Reply, error)
}

// Dispatcher consumes inbound messages from a transport, runs them through
// the dialogue engine, and sends the replies back. Each sender gets its own
// queue and worker, so messages from one sender are handled one at a time in
// arrival order while different senders proceed concurrently.
type Dispatcher struct {
	service Service
	engine  processor
	delay   time.Duration

	mu      sync.Mutex
	senders map[string]chan models.Response
}

// DispatcherOption configures a Dispatcher.
type DispatcherOption func(*Dispatcher)

// WithInterBubbleDelay overrides the pause between reply bubbles.
func WithInterBubbleDelay(d time.Duration) DispatcherOption {
	return func(disp *Dispatcher) { disp.delay = d }
}

// NewDispatcher wires a transport to the dialogue engine.
func NewDispatcher(service Service, engine processor, opts ...DispatcherOption) *Dispatcher {
	d := &Dispatcher{
		service: service,
		engine:  engine,
		delay:   DefaultInterBubbleDelay,
		senders: make(map[string]chan models.Response),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Start consumes the transport's response channel until the context is
// canceled or the channel closes.
func (d *Dispatcher) Start(ctx context.Context) {
	go func() {
		slog.Info("Dispatcher started")
		for {
			select {
			case <-ctx.Done():
				slog.Info("Dispatcher stopping due to context cancellation")
				return
			case resp, ok := <-d.service.Responses():
				if !ok {
					slog.Info("Dispatcher stopping, response channel closed")
					return
				}
				d.dispatch(ctx, resp)
			}
		}
	}()
}

// SendDirect sends a one-off message outside any conversation, used for
// session timeout notices.
func (d *Dispatcher) SendDirect(ctx context.Context, to, message string) error {
	return d.service.SendMessage(ctx, to, message)
}

// dispatch routes the message to its sender's queue, starting a worker on
// first contact from that sender.
func (d *Dispatcher) dispatch(ctx context.Context, resp models.Response) {
	d.mu.Lock()
	queue, ok := d.senders[resp.From]
	if !ok {
		queue = make(chan models.Response, SenderQueueSize)
		d.senders[resp.From] = queue
		go d.drain(ctx, queue)
	}
	d.mu.Unlock()

	select {
	case queue <- resp:
	default:
		slog.Warn("Dispatcher dropping message, sender queue full", "from", resp.From)
	}
}

// drain handles one sender's messages sequentially.
func (d *Dispatcher) drain(ctx context.Context, queue <-chan models.Response) {
	for {
		select {
		case <-ctx.Done():
			return
		case resp := <-queue:
			d.handle(ctx, resp)
		}
	}
}

// handle processes one inbound message and sends the reply.
func (d *Dispatcher) handle(ctx context.Context, resp models.Response) {
	reply, err := d.engine.ProcessMessage(ctx, resp.From, resp.Body, resp.UserName)
	if err != nil {
		slog.Error("Dispatcher engine processing failed", "error", err, "from", resp.From)
		return
	}
	if reply.IsSilent() {
		slog.Debug("Dispatcher silent verdict, nothing sent", "from", resp.From)
		return
	}

	for i, bubble := range reply.Bubbles() {
		if i > 0 {
			select {
			case <-ctx.Done():
				return
			case <-time.After(d.delay):
			}
		}
		// One bubble failing should not stop the rest of the reply.
		if err := d.service.SendMessage(ctx, resp.From, bubble); err != nil {
			slog.Error("Dispatcher failed to send reply bubble", "error", err, "from", resp.From, "bubble", i)
		}
	}
}
