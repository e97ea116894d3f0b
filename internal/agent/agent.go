package agent

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/goevery/contentsync/internal/content"
	"github.com/goevery/contentsync/internal/ierr"
	"github.com/goevery/contentsync/internal/protocol"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const writeWait = 10 * time.Second

const (
	ReasonConnectionLost = "connection lost, attempting to reconnect"
	ReasonConnectFailed  = "failed to connect to server, retrying"
	ReasonStopped        = "stopped"
)

var (
	ErrNotConnected     = errors.New("not connected to relay")
	ErrRetriesExhausted = errors.New("reconnect attempts exhausted")
	ErrAlreadyRunning   = errors.New("agent is already running")
)

type ConnectionState int

const (
	StateDisconnected ConnectionState = iota
	StateConnecting
	StateConnected
)

func (s ConnectionState) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	default:
		return "disconnected"
	}
}

// Snapshot is the agent's local view, handed to observers on every change.
// Version is the relay version of the last sync received. Local edits do
// not move it, the relay assigns the next version once it accepts them.
type Snapshot struct {
	State   ConnectionState
	Reason  string
	Content content.Content
	Version uint64
}

// Agent keeps one connection to the relay, mirrors the relay's content
// locally and submits local edits.
type Agent struct {
	id       string
	logger   *zap.Logger
	resolver Resolver
	dialer   *websocket.Dialer
	backoff  Backoff
	onChange func(Snapshot)

	running  atomic.Bool
	writeMu  sync.Mutex
	notifyMu sync.Mutex

	mu       sync.Mutex
	conn     *websocket.Conn
	snapshot Snapshot
}

func NewAgent(
	logger *zap.Logger,
	resolver Resolver,
	backoff Backoff,
	onChange func(Snapshot),
) *Agent {
	id := uuid.NewString()

	return &Agent{
		id:       id,
		logger:   logger.With(zap.String("agentId", id)),
		resolver: resolver,
		dialer:   websocket.DefaultDialer,
		backoff:  backoff,
		onChange: onChange,
		snapshot: Snapshot{
			State:   StateDisconnected,
			Content: content.Empty(),
		},
	}
}

func (a *Agent) Id() string {
	return a.id
}

func (a *Agent) Snapshot() Snapshot {
	a.mu.Lock()
	defer a.mu.Unlock()

	return a.snapshot
}

func (a *Agent) Content() content.Content {
	return a.Snapshot().Content
}

func (a *Agent) State() ConnectionState {
	return a.Snapshot().State
}

// Run connects and keeps reconnecting until ctx is done or the backoff
// gives up. It is the only place that dials, so at most one connection
// attempt is in flight.
func (a *Agent) Run(ctx context.Context) error {
	if !a.running.CompareAndSwap(false, true) {
		return ErrAlreadyRunning
	}
	defer a.running.Store(false)

	failures := 0

	for {
		// the previous reason stays visible until a connection opens
		a.update(func(s *Snapshot) {
			s.State = StateConnecting
		})

		conn, err := a.connect(ctx)
		if err != nil {
			if ctx.Err() != nil {
				a.setState(StateDisconnected, ReasonStopped)
				return ctx.Err()
			}

			a.logger.Warn("failed to connect to relay", zap.Error(err))
			a.setState(StateDisconnected, ReasonConnectFailed)
		} else {
			failures = 0

			a.attach(conn)
			err = a.readLoop(ctx, conn)
			a.detach(conn)

			if ctx.Err() != nil {
				a.setState(StateDisconnected, ReasonStopped)
				return ctx.Err()
			}

			a.logger.Info("connection to relay lost", zap.Error(err))
			a.setState(StateDisconnected, ReasonConnectionLost)
		}

		failures++
		if a.backoff.Exhausted(failures) {
			return ErrRetriesExhausted
		}

		delay := a.backoff.Next(failures)
		a.logger.Debug("scheduling reconnect",
			zap.Int("attempt", failures),
			zap.Duration("delay", delay))

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			a.setState(StateDisconnected, ReasonStopped)
			return ctx.Err()
		case <-timer.C:
		}
	}
}

// Submit sends an edit to the relay and applies it locally. Edits made while
// not connected are dropped and ErrNotConnected is returned.
func (a *Agent) Submit(kind content.Kind, payload string) error {
	c := content.Content{Kind: kind, Payload: payload}
	if err := kind.Validate(); err != nil {
		return err
	}

	a.mu.Lock()
	conn := a.conn
	connected := a.snapshot.State == StateConnected
	a.mu.Unlock()

	if !connected || conn == nil {
		a.logger.Debug("dropping edit while disconnected", zap.String("kind", string(kind)))
		return ErrNotConnected
	}

	a.writeMu.Lock()
	conn.SetWriteDeadline(time.Now().Add(writeWait))
	err := conn.WriteJSON(protocol.NewUpdate(c))
	a.writeMu.Unlock()

	if err != nil {
		// closing makes the read loop notice and reconnect
		conn.Close()
		return ierr.New(ierr.ErrorCodeUnavailable, err)
	}

	a.update(func(s *Snapshot) {
		s.Content = c
	})

	return nil
}

func (a *Agent) connect(ctx context.Context) (*websocket.Conn, error) {
	relayURL, err := a.resolver.Resolve(ctx)
	if err != nil {
		return nil, err
	}

	conn, _, err := a.dialer.DialContext(ctx, relayURL, nil)
	if err != nil {
		return nil, ierr.New(ierr.ErrorCodeUnavailable, err)
	}

	a.logger.Info("connected to relay", zap.String("url", relayURL))

	return conn, nil
}

func (a *Agent) readLoop(ctx context.Context, conn *websocket.Conn) error {
	stop := context.AfterFunc(ctx, func() {
		conn.Close()
	})
	defer stop()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return err
		}

		c, version, err := protocol.DecodeSync(data)
		if err != nil {
			a.logger.Warn("discarding malformed message", zap.Error(err))
			continue
		}

		a.update(func(s *Snapshot) {
			s.Content = c
			s.Version = version
		})
	}
}

func (a *Agent) attach(conn *websocket.Conn) {
	a.update(func(s *Snapshot) {
		a.conn = conn
		s.State = StateConnected
		s.Reason = ""
	})
}

func (a *Agent) detach(conn *websocket.Conn) {
	conn.Close()

	a.mu.Lock()
	if a.conn == conn {
		a.conn = nil
	}
	a.mu.Unlock()
}

func (a *Agent) setState(state ConnectionState, reason string) {
	a.update(func(s *Snapshot) {
		s.State = state
		s.Reason = reason
	})
}

// update applies fn and notifies the observer. notifyMu keeps observer
// calls serial and in the order the changes were made, so onChange must not
// call Submit.
func (a *Agent) update(fn func(s *Snapshot)) {
	a.notifyMu.Lock()
	defer a.notifyMu.Unlock()

	a.mu.Lock()
	fn(&a.snapshot)
	snapshot := a.snapshot
	a.mu.Unlock()

	if a.onChange != nil {
		a.onChange(snapshot)
	}
}
