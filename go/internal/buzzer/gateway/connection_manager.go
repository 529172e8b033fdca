package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/buzzer/go/internal/buzzer"
)

// Contest is the part of the arbiter the gateway drives.
type Contest interface {
	CurrentState() buzzer.State
	Players() []buzzer.Player
	Reset() buzzer.Event
	SubmitBuzz(player buzzer.PlayerID) (bool, error)
}

// ConnectionManager fans contest state out to connected observers.
//
// The registry and the latest known state are owned by the Start loop.
// Registration, deregistration and publication share one FIFO queue, so an
// observer sees its snapshot followed by exactly the events queued after it.
// A join that happens after SubmitBuzz returned always sees the lock.
type ConnectionManager struct {
	contest  Contest
	players  []buzzer.Player
	policy   ResetPolicy
	upgrader websocket.Upgrader
	config   ConnectionConfig

	queue chan outbound
	done  chan struct{}

	// loop-owned
	connections map[*Connection]bool
	latest      buzzer.State

	activeConnections atomic.Int64
	totalConnections  atomic.Int64
	prunedConnections atomic.Int64
	messagesSent      atomic.Int64
}

// Connection represents one observer
type Connection struct {
	ID      uuid.UUID
	Conn    *websocket.Conn
	Send    chan []byte
	Manager *ConnectionManager

	ConnectedAt time.Time
	RemoteAddr  string

	ctx    context.Context
	cancel context.CancelFunc
}

// ConnectionConfig holds configuration for WebSocket connections
type ConnectionConfig struct {
	WriteTimeout        time.Duration
	ReadTimeout         time.Duration
	PingInterval        time.Duration
	MaxMessageSize      int64
	ReadBufferSize      int
	WriteBufferSize     int
	SendBufferSize      int
	BroadcastBufferSize int
	// AllowSimulatedPress lets observers send {"type":"buzz"} messages.
	AllowSimulatedPress bool
	CheckOrigin         func(r *http.Request) bool
}

// ConnectionStats is served on /ws/stats.
type ConnectionStats struct {
	ActiveConnections int64 `json:"active_connections"`
	TotalConnections  int64 `json:"total_connections"`
	PrunedConnections int64 `json:"pruned_connections"`
	MessagesSent      int64 `json:"messages_sent"`
}

type queueOp int

const (
	opBroadcast queueOp = iota
	opRegister
	opUnregister
)

// outbound is one entry of the manager queue. For opBroadcast exactly one
// of event or msg is set, and a nil conn means every observer.
type outbound struct {
	op    queueOp
	conn  *Connection
	event *buzzer.Event
	msg   *Message
}

// DefaultConnectionConfig returns default WebSocket configuration
func DefaultConnectionConfig() ConnectionConfig {
	return ConnectionConfig{
		WriteTimeout:        10 * time.Second,
		ReadTimeout:         60 * time.Second,
		PingInterval:        30 * time.Second,
		MaxMessageSize:      1024,
		ReadBufferSize:      1024,
		WriteBufferSize:     1024,
		SendBufferSize:      64,
		BroadcastBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			return true
		},
	}
}

// NewConnectionManager creates a manager seeded with the contest's current state.
func NewConnectionManager(contest Contest, policy ResetPolicy, config ConnectionConfig) *ConnectionManager {
	if config.SendBufferSize <= 0 {
		config.SendBufferSize = DefaultConnectionConfig().SendBufferSize
	}
	if config.BroadcastBufferSize <= 0 {
		config.BroadcastBufferSize = DefaultConnectionConfig().BroadcastBufferSize
	}

	return &ConnectionManager{
		contest: contest,
		players: contest.Players(),
		policy:  policy,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  config.ReadBufferSize,
			WriteBufferSize: config.WriteBufferSize,
			CheckOrigin:     config.CheckOrigin,
		},
		config:      config,
		queue:       make(chan outbound, config.BroadcastBufferSize),
		done:        make(chan struct{}),
		connections: make(map[*Connection]bool),
		latest:      contest.CurrentState(),
	}
}

// Start runs the manager loop until ctx is cancelled. On return every
// remaining observer's queue is closed so its writer can say goodbye.
func (cm *ConnectionManager) Start(ctx context.Context) {
	log.Info().Msg("connection manager started")
	defer close(cm.done)

	for {
		select {
		case <-ctx.Done():
			cm.closeAll()
			log.Info().Msg("connection manager shutting down")
			return
		case out := <-cm.queue:
			switch out.op {
			case opRegister:
				cm.handleRegister(out.conn)
			case opUnregister:
				cm.handleUnregister(out.conn)
			default:
				cm.handleBroadcast(out)
			}
		}
	}
}

// NewConnection builds an observer with its own send queue. conn may be nil
// for in-process observers.
func (cm *ConnectionManager) NewConnection(conn *websocket.Conn, remoteAddr string) *Connection {
	ctx, cancel := context.WithCancel(context.Background())
	return &Connection{
		ID:          uuid.New(),
		Conn:        conn,
		Send:        make(chan []byte, cm.config.SendBufferSize),
		Manager:     cm,
		ConnectedAt: time.Now(),
		RemoteAddr:  remoteAddr,
		ctx:         ctx,
		cancel:      cancel,
	}
}

// UpgradeConnection upgrades an HTTP connection to WebSocket and registers it.
func (cm *ConnectionManager) UpgradeConnection(w http.ResponseWriter, r *http.Request) (*Connection, error) {
	conn, err := cm.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to upgrade connection: %w", err)
	}

	connection := cm.NewConnection(conn, r.RemoteAddr)
	cm.Register(connection)

	go connection.writePump()
	go connection.readPump()

	log.Info().
		Str("connection_id", connection.ID.String()).
		Str("remote_addr", connection.RemoteAddr).
		Msg("WebSocket connection established")

	return connection, nil
}

// Register adds conn to the registry and queues the current snapshot to it.
func (cm *ConnectionManager) Register(conn *Connection) {
	select {
	case <-cm.done:
		close(conn.Send)
		return
	default:
	}

	select {
	case cm.queue <- outbound{op: opRegister, conn: conn}:
	case <-cm.done:
		close(conn.Send)
	}
}

// Unregister removes conn and closes its send queue. Safe to call more than once.
func (cm *ConnectionManager) Unregister(conn *Connection) {
	select {
	case cm.queue <- outbound{op: opUnregister, conn: conn}:
	case <-cm.done:
	}
}

// Publish queues an arbiter transition for every observer. It is the
// arbiter's listener hook and only enqueues.
func (cm *ConnectionManager) Publish(evt buzzer.Event) {
	select {
	case cm.queue <- outbound{event: &evt}:
	case <-cm.done:
	}
}

// Broadcast queues a ready-made message for every observer.
func (cm *ConnectionManager) Broadcast(msg *Message) {
	select {
	case cm.queue <- outbound{msg: msg}:
	case <-cm.done:
	}
}

// SendTo queues msg for a single observer, behind anything already queued.
func (cm *ConnectionManager) SendTo(conn *Connection, msg *Message) {
	select {
	case cm.queue <- outbound{msg: msg, conn: conn}:
	default:
		log.Warn().
			Str("connection_id", conn.ID.String()).
			Str("type", string(msg.Type)).
			Msg("manager queue full, dropping direct message")
	}
}

// RequestReset re-arms the contest if the reset policy allows it. The reset
// event reaches every observer, the requester included. A denied requester
// gets an error message of its own.
func (cm *ConnectionManager) RequestReset(ctx context.Context, conn *Connection, token string) (buzzer.Event, error) {
	if err := ctx.Err(); err != nil {
		return buzzer.Event{}, err
	}

	if err := cm.policy.Authorize(token); err != nil {
		logEvt := log.Warn().Err(err)
		if conn != nil {
			logEvt = logEvt.Str("connection_id", conn.ID.String())
			cm.sendError(conn, ErrorCodeUnauthorized, "reset requires a valid admin token")
		}
		logEvt.Msg("reset request denied")
		return buzzer.Event{}, err
	}

	evt := cm.contest.Reset()
	return evt, nil
}

// SubmitBuzz forwards an observer-originated press to the contest.
func (cm *ConnectionManager) SubmitBuzz(conn *Connection, player buzzer.PlayerID) (bool, error) {
	won, err := cm.contest.SubmitBuzz(player)
	if err != nil && conn != nil {
		code := ErrorCodeBadRequest
		if errors.Is(err, buzzer.ErrInvalidPlayerID) {
			code = ErrorCodeInvalidPlayer
		}
		cm.sendError(conn, code, err.Error())
	}
	return won, err
}

// GetConnectionStats returns statistics about active connections
func (cm *ConnectionManager) GetConnectionStats() ConnectionStats {
	return ConnectionStats{
		ActiveConnections: cm.activeConnections.Load(),
		TotalConnections:  cm.totalConnections.Load(),
		PrunedConnections: cm.prunedConnections.Load(),
		MessagesSent:      cm.messagesSent.Load(),
	}
}

func (cm *ConnectionManager) handleRegister(conn *Connection) {
	if cm.connections[conn] {
		return
	}
	cm.connections[conn] = true
	cm.activeConnections.Add(1)
	cm.totalConnections.Add(1)

	msg, err := newMessage(MessageTypeSnapshot, time.Now(), SnapshotPayload{
		State:   cm.latest,
		Players: cm.players,
	})
	if err != nil {
		log.Error().Err(err).Msg("failed to build snapshot")
		return
	}
	cm.deliver(conn, msg.encode())

	log.Debug().
		Str("connection_id", conn.ID.String()).
		Uint64("version", cm.latest.Version).
		Int("total_connections", len(cm.connections)).
		Msg("connection registered")
}

func (cm *ConnectionManager) handleUnregister(conn *Connection) {
	if !cm.connections[conn] {
		return
	}
	cm.remove(conn)

	log.Info().
		Str("connection_id", conn.ID.String()).
		Dur("connected_for", time.Since(conn.ConnectedAt)).
		Msg("connection unregistered")
}

func (cm *ConnectionManager) handleBroadcast(out outbound) {
	msg := out.msg
	if out.event != nil {
		if out.event.State.Version > cm.latest.Version {
			cm.latest = out.event.State
		}
		var err error
		msg, err = messageFromEvent(*out.event, cm.players)
		if err != nil {
			log.Error().Err(err).Msg("failed to build event message")
			return
		}
	}

	data := msg.encode()
	if data == nil {
		return
	}

	if out.conn != nil {
		if cm.connections[out.conn] {
			cm.deliver(out.conn, data)
		}
		return
	}

	for conn := range cm.connections {
		cm.deliver(conn, data)
	}

	log.Debug().
		Str("type", string(msg.Type)).
		Int("connections", len(cm.connections)).
		Msg("message broadcasted")
}

// deliver never blocks. An observer that cannot keep up is pruned.
func (cm *ConnectionManager) deliver(conn *Connection, data []byte) {
	select {
	case conn.Send <- data:
		cm.messagesSent.Add(1)
	default:
		log.Warn().
			Str("connection_id", conn.ID.String()).
			Str("remote_addr", conn.RemoteAddr).
			Msg("connection send buffer full, pruning observer")
		cm.prunedConnections.Add(1)
		cm.remove(conn)
	}
}

func (cm *ConnectionManager) remove(conn *Connection) {
	delete(cm.connections, conn)
	cm.activeConnections.Add(-1)
	close(conn.Send)
}

func (cm *ConnectionManager) closeAll() {
	for conn := range cm.connections {
		cm.remove(conn)
	}
}

func (cm *ConnectionManager) sendError(conn *Connection, code, message string) {
	msg, err := newMessage(MessageTypeError, time.Now(), ErrorPayload{Code: code, Message: message})
	if err != nil {
		log.Error().Err(err).Msg("failed to build error message")
		return
	}
	cm.SendTo(conn, msg)
}

func (m *Message) encode() []byte {
	data, err := json.Marshal(m)
	if err != nil {
		log.Error().Err(err).Str("type", string(m.Type)).Msg("failed to marshal message")
		return nil
	}
	return data
}
