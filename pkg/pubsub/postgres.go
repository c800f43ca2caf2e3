package pubsub

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/skillforge/engine/ent"
	"github.com/skillforge/engine/ent/runevent"
)

// pollInterval bounds the polling fallback's worst-case latency (spec
// §4.11: "NOTIFY/LISTEN with a polling fallback (≤ 200 ms latency)").
const pollInterval = 150 * time.Millisecond

// listenCmd serializes a LISTEN/UNLISTEN statement through the receive
// loop, the sole goroutine allowed to touch the dedicated pgx connection —
// grounded on pkg/events/listener.go's cmdCh discipline.
type listenCmd struct {
	sql    string
	result chan error
}

type pgSubscription struct {
	channel string
	handler Handler

	mu          sync.Mutex
	lastEventID int
}

// Postgres is the NOTIFY/LISTEN-backed Bus, with a table-polling fallback
// used only while the dedicated LISTEN connection is down. The fallback
// reads ent's run_events table, which the Checkpointer populates alongside
// every Publish call — a Postgres-specific coupling the Redis backend does
// not need.
type Postgres struct {
	publishDB *sql.DB
	entClient *ent.Client
	dsn       string

	connMu sync.Mutex
	conn   *pgx.Conn
	alive  bool

	subsMu sync.RWMutex
	subs   map[string][]*pgSubscription

	cmdCh   chan listenCmd
	closeCh chan struct{}
	once    sync.Once
	done    chan struct{}
}

// NewPostgres builds a Postgres bus. publishDB is used for NOTIFY (a cheap,
// pooled connection suffices); dsn opens the dedicated LISTEN connection;
// entClient backs the polling fallback's run_events reads.
func NewPostgres(dsn string, entClient *ent.Client, publishDB *sql.DB) *Postgres {
	return &Postgres{
		publishDB: publishDB,
		entClient: entClient,
		dsn:       dsn,
		subs:      make(map[string][]*pgSubscription),
		cmdCh:     make(chan listenCmd, 16),
		closeCh:   make(chan struct{}),
	}
}

// Start establishes the dedicated LISTEN connection and begins the receive
// loop. Must be called once before Subscribe.
func (p *Postgres) Start(ctx context.Context) error {
	conn, err := pgx.Connect(ctx, p.dsn)
	if err != nil {
		return fmt.Errorf("pubsub: connect for LISTEN: %w", err)
	}
	p.connMu.Lock()
	p.conn = conn
	p.alive = true
	p.connMu.Unlock()

	p.done = make(chan struct{})
	go func() {
		defer close(p.done)
		p.receiveLoop(ctx)
	}()
	return nil
}

func (p *Postgres) Publish(ctx context.Context, channel string, payload []byte) error {
	_, err := p.publishDB.ExecContext(ctx, "SELECT pg_notify($1, $2)", channel, string(payload))
	if err != nil {
		return fmt.Errorf("pubsub: notify %s: %w", channel, err)
	}
	return nil
}

func (p *Postgres) Subscribe(ctx context.Context, channel string, handler Handler, stop <-chan struct{}) error {
	sub := &pgSubscription{channel: channel, handler: handler}

	p.subsMu.Lock()
	p.subs[channel] = append(p.subs[channel], sub)
	first := len(p.subs[channel]) == 1
	p.subsMu.Unlock()

	if first {
		if err := p.sendCmd(ctx, "LISTEN "+pgx.Identifier{channel}.Sanitize()); err != nil {
			p.removeSub(channel, sub)
			return err
		}
	}

	go p.pollFallback(sub, stop)
	go func() {
		<-stop
		p.removeSub(channel, sub)
	}()
	return nil
}

func (p *Postgres) Close() error {
	p.once.Do(func() { close(p.closeCh) })
	if p.done != nil {
		<-p.done
	}
	p.connMu.Lock()
	defer p.connMu.Unlock()
	if p.conn != nil {
		err := p.conn.Close(context.Background())
		p.conn = nil
		return err
	}
	return nil
}

func (p *Postgres) removeSub(channel string, target *pgSubscription) {
	p.subsMu.Lock()
	defer p.subsMu.Unlock()
	list := p.subs[channel]
	for i, s := range list {
		if s == target {
			p.subs[channel] = append(list[:i], list[i+1:]...)
			break
		}
	}
	if len(p.subs[channel]) == 0 {
		delete(p.subs, channel)
	}
}

func (p *Postgres) sendCmd(ctx context.Context, sql string) error {
	if p.done == nil {
		return fmt.Errorf("pubsub: LISTEN connection not established")
	}
	cmd := listenCmd{sql: sql, result: make(chan error, 1)}
	select {
	case p.cmdCh <- cmd:
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case err := <-cmd.result:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// receiveLoop is the sole goroutine using the dedicated pgx connection —
// it interleaves LISTEN/UNLISTEN command execution with notification
// receipt, grounded on pkg/events/listener.go's receiveLoop.
func (p *Postgres) receiveLoop(ctx context.Context) {
	for {
		select {
		case <-p.closeCh:
			return
		case <-ctx.Done():
			return
		default:
		}

		p.drainCmds(ctx)

		p.connMu.Lock()
		conn := p.conn
		p.connMu.Unlock()
		if conn == nil {
			p.reconnect(ctx)
			continue
		}

		waitCtx, cancel := context.WithTimeout(ctx, 100*time.Millisecond)
		notification, err := conn.WaitForNotification(waitCtx)
		cancel()
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			if waitCtx.Err() != nil {
				continue
			}
			slog.Warn("pubsub: NOTIFY receive error, reconnecting", "error", err)
			p.reconnect(ctx)
			continue
		}

		p.subsMu.RLock()
		targets := append([]*pgSubscription(nil), p.subs[notification.Channel]...)
		p.subsMu.RUnlock()
		for _, sub := range targets {
			sub.handler([]byte(notification.Payload))
		}
	}
}

func (p *Postgres) drainCmds(ctx context.Context) {
	for {
		select {
		case cmd := <-p.cmdCh:
			p.connMu.Lock()
			conn := p.conn
			p.connMu.Unlock()
			if conn == nil {
				cmd.result <- fmt.Errorf("pubsub: LISTEN connection not established")
				continue
			}
			_, err := conn.Exec(ctx, cmd.sql)
			cmd.result <- err
		default:
			return
		}
	}
}

func (p *Postgres) reconnect(ctx context.Context) {
	p.connMu.Lock()
	if p.conn != nil {
		_ = p.conn.Close(ctx)
		p.conn = nil
	}
	p.alive = false
	p.connMu.Unlock()

	backoff := time.Second
	for {
		select {
		case <-ctx.Done():
			return
		case <-p.closeCh:
			return
		case <-time.After(backoff):
		}

		conn, err := pgx.Connect(ctx, p.dsn)
		if err != nil {
			backoff = min(backoff*2, 30*time.Second)
			continue
		}

		p.subsMu.RLock()
		for channel := range p.subs {
			if _, err := conn.Exec(ctx, "LISTEN "+pgx.Identifier{channel}.Sanitize()); err != nil {
				slog.Error("pubsub: re-LISTEN failed", "channel", channel, "error", err)
			}
		}
		p.subsMu.RUnlock()

		p.connMu.Lock()
		p.conn = conn
		p.alive = true
		p.connMu.Unlock()
		slog.Info("pubsub: LISTEN connection reestablished")
		return
	}
}

func (p *Postgres) isAlive() bool {
	p.connMu.Lock()
	defer p.connMu.Unlock()
	return p.alive
}

// pollFallback delivers events for sub's channel directly from the
// run_events table while the LISTEN connection is down, catching up on
// anything a dropped NOTIFY connection would otherwise lose.
func (p *Postgres) pollFallback(sub *pgSubscription, stop <-chan struct{}) {
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-p.closeCh:
			return
		case <-ticker.C:
			if p.isAlive() {
				continue
			}
			p.deliverBacklog(sub)
		}
	}
}

func (p *Postgres) deliverBacklog(sub *pgSubscription) {
	sub.mu.Lock()
	since := sub.lastEventID
	sub.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	rows, err := p.entClient.RunEvent.Query().
		Where(runevent.ChannelEQ(sub.channel), runevent.IDGT(since)).
		Order(ent.Asc(runevent.FieldID)).
		All(ctx)
	if err != nil {
		slog.Warn("pubsub: poll fallback query failed", "channel", sub.channel, "error", err)
		return
	}

	for _, row := range rows {
		env := Envelope{
			ThreadID:     row.ThreadID,
			CheckpointID: row.CheckpointID,
			Ts:           row.Ts.Format(time.RFC3339Nano),
			Metadata:     row.Metadata,
		}
		payload, err := json.Marshal(env)
		if err != nil {
			continue
		}
		sub.handler(payload)
		sub.mu.Lock()
		sub.lastEventID = row.ID
		sub.mu.Unlock()
	}
}
