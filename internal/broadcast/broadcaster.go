package broadcast

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/pscheid92/marketpulse/internal/domain"
)

const (
	commandTimeout          = 5 * time.Second
	stopTimeout             = 10 * time.Second
	commandChannelSize      = 256
	DefaultDeliveryInterval = 5 * time.Second
	DefaultMaxViewers       = 1000
)

// ErrStopped is returned by Register after Stop.
var ErrStopped = errors.New("broadcaster stopped")

type broadcasterCmd interface{ isBroadcasterCmd() }

type baseBroadcasterCmd struct{}

func (baseBroadcasterCmd) isBroadcasterCmd() {}

type registerCmd struct {
	baseBroadcasterCmd
	connection   Conn
	errorChannel chan error
}

type unregisterCmd struct {
	baseBroadcasterCmd
	connection   Conn
	replyChannel chan *subscription
}

type viewerCountCmd struct {
	baseBroadcasterCmd
	replyChannel chan int
}

type stopCmd struct {
	baseBroadcasterCmd
}

// Options tunes a Broadcaster. Zero values fall back to defaults.
type Options struct {
	MaxViewers       int
	DeliveryInterval time.Duration
}

// Broadcaster is the viewer registry. All registry state is owned by one goroutine.
type Broadcaster struct {
	cmdCh            chan broadcasterCmd
	clock            clockwork.Clock
	source           SnapshotSource
	recorder         recorder
	viewers          map[Conn]*subscription
	done             chan struct{}
	stopTimeout      time.Duration
	maxViewers       int
	deliveryInterval time.Duration
}

// NewBroadcaster starts the registry actor. rec may be nil.
func NewBroadcaster(source SnapshotSource, clock clockwork.Clock, rec recorder, opts Options) *Broadcaster {
	b := newBroadcaster(source, clock, rec, opts)
	go b.run()
	return b
}

func newBroadcaster(source SnapshotSource, clock clockwork.Clock, rec recorder, opts Options) *Broadcaster {
	if opts.MaxViewers <= 0 {
		opts.MaxViewers = DefaultMaxViewers
	}
	if opts.DeliveryInterval <= 0 {
		opts.DeliveryInterval = DefaultDeliveryInterval
	}
	if rec == nil {
		rec = noopRecorder{}
	}

	return &Broadcaster{
		cmdCh:            make(chan broadcasterCmd, commandChannelSize),
		clock:            clock,
		source:           source,
		recorder:         rec,
		viewers:          make(map[Conn]*subscription),
		done:             make(chan struct{}),
		stopTimeout:      stopTimeout,
		maxViewers:       opts.MaxViewers,
		deliveryInterval: opts.DeliveryInterval,
	}
}

// Register opens a subscription for conn. The first snapshot is sent immediately.
// Returns domain.ErrTooManyViewers when the registry is full; conn is left open.
func (b *Broadcaster) Register(conn Conn) error {
	errCh := make(chan error, 1)
	if !b.send(registerCmd{connection: conn, errorChannel: errCh}) {
		return ErrStopped
	}

	timer := b.clock.NewTimer(commandTimeout)
	defer timer.Stop()

	select {
	case err := <-errCh:
		return err
	case <-timer.Chan():
		return fmt.Errorf("register command timed out after %v", commandTimeout)
	}
}

// Unregister cancels the subscription for conn and closes it.
// When it returns, the viewer's delivery loop has exited. Unknown conns are ignored.
func (b *Broadcaster) Unregister(conn Conn) {
	replyCh := make(chan *subscription, 1)
	if !b.send(unregisterCmd{connection: conn, replyChannel: replyCh}) {
		return
	}

	timer := b.clock.NewTimer(commandTimeout)
	defer timer.Stop()

	select {
	case sub := <-replyCh:
		if sub != nil {
			sub.stop()
		}
	case <-timer.Chan():
		slog.Warn("Unregister timed out", "timeout", commandTimeout)
		_ = conn.Close()
		go b.awaitUnregister(replyCh)
	}
}

// awaitUnregister stops the subscription once the actor gets to a timed-out unregister.
func (b *Broadcaster) awaitUnregister(replyCh <-chan *subscription) {
	select {
	case sub := <-replyCh:
		if sub != nil {
			sub.stop()
		}
	case <-b.done:
		select {
		case sub := <-replyCh:
			if sub != nil {
				sub.stop()
			}
		default:
		}
	}
}

// ViewerCount returns the number of live subscriptions, or -1 if the actor does not answer.
func (b *Broadcaster) ViewerCount() int {
	replyCh := make(chan int, 1)
	if !b.send(viewerCountCmd{replyChannel: replyCh}) {
		return 0
	}

	timer := b.clock.NewTimer(commandTimeout)
	defer timer.Stop()

	select {
	case count := <-replyCh:
		return count
	case <-timer.Chan():
		slog.Warn("ViewerCount timed out", "timeout", commandTimeout)
		return -1
	}
}

// Stop closes every viewer with a normal-closure frame and waits for the actor to exit.
func (b *Broadcaster) Stop() {
	if !b.send(stopCmd{}) {
		return
	}

	timeout := b.clock.NewTimer(b.stopTimeout)
	defer timeout.Stop()

	select {
	case <-b.done:
		slog.Info("Broadcaster stopped gracefully")
	case <-timeout.Chan():
		slog.Warn("Broadcaster stop timeout exceeded", "timeout", b.stopTimeout)
	}
}

func (b *Broadcaster) send(cmd broadcasterCmd) bool {
	select {
	case <-b.done:
		return false
	default:
	}

	select {
	case b.cmdCh <- cmd:
		return true
	case <-b.done:
		return false
	}
}

func (b *Broadcaster) run() {
	defer close(b.done)
	defer func() {
		if r := recover(); r != nil {
			slog.Error("Broadcaster panic recovered", "panic", r)
			b.recorder.Panicked()
			b.closeAllViewers("broadcaster failure")
		}
	}()

	depthTicker := b.clock.NewTicker(time.Second)
	defer depthTicker.Stop()

	for {
		select {
		case <-depthTicker.Chan():
			depth := len(b.cmdCh)
			b.recorder.QueueDepth(depth)
			if depth > commandChannelSize*8/10 {
				slog.Warn("Command channel near capacity", "depth", depth, "capacity", cap(b.cmdCh))
			}

		case cmd := <-b.cmdCh:
			switch c := cmd.(type) {
			case registerCmd:
				b.handleRegister(c)
			case unregisterCmd:
				b.handleUnregister(c)
			case viewerCountCmd:
				c.replyChannel <- len(b.viewers)
			case stopCmd:
				b.handleStop()
				return
			default:
				slog.Warn("Broadcaster received unknown command type", "command_type", fmt.Sprintf("%T", cmd))
			}
		}
	}
}

func (b *Broadcaster) handleRegister(c registerCmd) {
	if _, exists := b.viewers[c.connection]; exists {
		c.errorChannel <- nil
		return
	}

	if len(b.viewers) >= b.maxViewers {
		slog.Warn("Rejecting viewer: max viewers reached", "max_viewers", b.maxViewers)
		b.recorder.ViewerRejected("max_viewers")
		c.errorChannel <- fmt.Errorf("%w: limit is %d", domain.ErrTooManyViewers, b.maxViewers)
		return
	}

	sub := newSubscription(c.connection, b.source, b.clock, b.recorder, b.deliveryInterval)
	b.viewers[c.connection] = sub
	b.recorder.ViewerConnected()

	slog.Debug("Viewer registered", "viewer_id", sub.id.String(), "total_viewers", len(b.viewers))
	c.errorChannel <- nil
}

func (b *Broadcaster) handleUnregister(c unregisterCmd) {
	sub, exists := b.viewers[c.connection]
	if !exists {
		c.replyChannel <- nil
		return
	}

	delete(b.viewers, c.connection)
	b.recorder.ViewerDisconnected()

	slog.Debug("Viewer unregistered", "viewer_id", sub.id.String(), "remaining_viewers", len(b.viewers))
	c.replyChannel <- sub
}

func (b *Broadcaster) handleStop() {
	total := len(b.viewers)
	slog.Info("Broadcaster shutting down", "viewers", total)

	b.closeAllViewers("server shutting down")

	slog.Info("Broadcaster shutdown complete", "disconnected_viewers", total)
}

func (b *Broadcaster) closeAllViewers(reason string) {
	for conn, sub := range b.viewers {
		sub.stopGraceful(reason)
		delete(b.viewers, conn)
		b.recorder.ViewerDisconnected()
	}
}
