package relay

import (
	"context"
	"errors"
	"time"

	"github.com/goevery/contentsync/internal/content"
	"github.com/goevery/contentsync/internal/ierr"
	"github.com/goevery/contentsync/internal/protocol"
	"go.uber.org/zap"
)

var ErrStopped = errors.New("relay stopped")

type State struct {
	Snapshot content.Snapshot `json:"snapshot"`
	Clients  int              `json:"clients"`
}

type Broadcaster interface {
	Join(ctx context.Context, connection *Connection) error
	Leave(ctx context.Context, connectionId string) error
	Update(ctx context.Context, originId string, c content.Content) (content.Snapshot, error)
	State(ctx context.Context) (State, error)
}

// Relay owns the shared content and the connection set. Both are only
// touched from the Run goroutine; every public method is a command executed
// there, so the last command processed wins.
type Relay struct {
	logger *zap.Logger
	now    func() time.Time

	commands chan func()
	stopped  chan struct{}

	current     content.Snapshot
	connections map[string]*Connection
}

func New(logger *zap.Logger) *Relay {
	return &Relay{
		logger:   logger,
		now:      time.Now,
		commands: make(chan func()),
		stopped:  make(chan struct{}),
		current: content.Snapshot{
			Content:    content.Empty(),
			UpdateTime: time.Now(),
		},
		connections: make(map[string]*Connection),
	}
}

// Run processes commands until ctx is done. On exit every connection's Send
// channel is closed.
func (r *Relay) Run(ctx context.Context) {
	r.logger.Info("relay started")

	for {
		select {
		case command := <-r.commands:
			command()
		case <-ctx.Done():
			for connectionId := range r.connections {
				r.dropLocked(connectionId)
			}
			close(r.stopped)

			r.logger.Info("relay stopped")

			return
		}
	}
}

func (r *Relay) Join(ctx context.Context, connection *Connection) error {
	var err error

	doErr := r.do(ctx, func() {
		if _, ok := r.connections[connection.Id]; ok {
			err = ierr.New(ierr.ErrorCodeFailedPrecondition, errors.New("connection already joined"))
			return
		}

		select {
		case connection.Send <- protocol.NewSync(r.current):
		default:
			err = ierr.New(ierr.ErrorCodeResourceExhausted, errors.New("connection send channel is full"))
			return
		}

		r.connections[connection.Id] = connection

		r.logger.Info("connection joined",
			zap.String("connectionId", connection.Id),
			zap.Int("clients", len(r.connections)))
	})
	if doErr != nil {
		return doErr
	}

	return err
}

func (r *Relay) Leave(ctx context.Context, connectionId string) error {
	return r.do(ctx, func() {
		if _, ok := r.connections[connectionId]; !ok {
			return
		}

		r.dropLocked(connectionId)

		r.logger.Info("connection left",
			zap.String("connectionId", connectionId),
			zap.Int("clients", len(r.connections)))
	})
}

// Update replaces the shared content and forwards it to every connection
// except originId. An empty originId reaches everyone.
func (r *Relay) Update(ctx context.Context, originId string, c content.Content) (content.Snapshot, error) {
	if err := c.Kind.Validate(); err != nil {
		return content.Snapshot{}, err
	}

	var snapshot content.Snapshot

	err := r.do(ctx, func() {
		r.current = content.Snapshot{
			Content:    c,
			Version:    r.current.Version + 1,
			UpdateTime: r.now(),
		}
		snapshot = r.current

		r.broadcastLocked(originId, protocol.NewSync(r.current))
	})

	return snapshot, err
}

func (r *Relay) State(ctx context.Context) (State, error) {
	var state State

	err := r.do(ctx, func() {
		state = State{
			Snapshot: r.current,
			Clients:  len(r.connections),
		}
	})

	return state, err
}

func (r *Relay) do(ctx context.Context, fn func()) error {
	done := make(chan struct{})

	select {
	case r.commands <- func() {
		fn()
		close(done)
	}:
	case <-r.stopped:
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}

	<-done

	return nil
}

func (r *Relay) broadcastLocked(originId string, message protocol.SyncMessage) {
	var staleConnectionIds []string
	delivered := 0

	for connectionId, connection := range r.connections {
		if connectionId == originId {
			continue
		}

		select {
		case connection.Send <- message:
			delivered++
		default:
			r.logger.Warn("connection send channel is full, closing connection",
				zap.String("connectionId", connectionId))

			staleConnectionIds = append(staleConnectionIds, connectionId)
		}
	}

	for _, connectionId := range staleConnectionIds {
		r.dropLocked(connectionId)
	}

	r.logger.Debug("content broadcast",
		zap.String("originId", originId),
		zap.String("kind", string(message.Content.Kind)),
		zap.Uint64("version", message.Version),
		zap.Int("delivered", delivered))
}

// IMPORTANT: It must be called only from the Run goroutine.
func (r *Relay) dropLocked(connectionId string) {
	connection, ok := r.connections[connectionId]
	if !ok {
		return
	}

	delete(r.connections, connectionId)
	close(connection.Send)
}
