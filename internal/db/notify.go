package db

import (
	"context"
	"database/sql"
	"sync"
	"time"

	"github.com/lib/pq"
	"go.uber.org/zap"
)

// Notifier wraps the LISTEN/NOTIFY mechanism in PostgreSQL.  Every replica
// publishes a notification when it saves a session, and every replica fans
// notifications out to its local subscribers, so an event stream opened on
// one instance sees saves made on another.  Without a database the notifier
// delivers locally only.
type Notifier struct {
	db      *sql.DB
	dsn     string
	channel string
	log     *zap.Logger

	mu   sync.Mutex
	subs map[string]map[chan string]struct{}
}

// NewNotifier constructs a Notifier.  db and dsn may be empty for a
// single-process deployment.
func NewNotifier(db *sql.DB, dsn, channel string, log *zap.Logger) *Notifier {
	if channel == "" {
		channel = "session_saved"
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Notifier{
		db:      db,
		dsn:     dsn,
		channel: channel,
		log:     log,
		subs:    make(map[string]map[chan string]struct{}),
	}
}

// Notify publishes that sessionID was saved.
func (n *Notifier) Notify(ctx context.Context, sessionID string) error {
	if n.db == nil {
		n.dispatch(sessionID)
		return nil
	}
	_, err := n.db.ExecContext(ctx, `SELECT pg_notify($1, $2)`, n.channel, sessionID)
	return err
}

// Subscribe returns a channel receiving the session id each time sessionID is
// saved, and a function that ends the subscription.
func (n *Notifier) Subscribe(sessionID string) (<-chan string, func()) {
	ch := make(chan string, 4)
	n.mu.Lock()
	if n.subs[sessionID] == nil {
		n.subs[sessionID] = make(map[chan string]struct{})
	}
	n.subs[sessionID][ch] = struct{}{}
	n.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			n.mu.Lock()
			delete(n.subs[sessionID], ch)
			if len(n.subs[sessionID]) == 0 {
				delete(n.subs, sessionID)
			}
			n.mu.Unlock()
			close(ch)
		})
	}
}

// dispatch delivers without blocking; a slow subscriber misses events rather
// than stalling the listener.
func (n *Notifier) dispatch(sessionID string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	for ch := range n.subs[sessionID] {
		select {
		case ch <- sessionID:
		default:
		}
	}
}

// Run listens on the notification channel until ctx is cancelled.  It
// returns immediately when no DSN is configured.
func (n *Notifier) Run(ctx context.Context) error {
	if n.dsn == "" {
		<-ctx.Done()
		return nil
	}
	listener := pq.NewListener(n.dsn, 10*time.Second, time.Minute,
		func(ev pq.ListenerEventType, err error) {
			if err != nil {
				n.log.Warn("notification listener event", zap.Int("event", int(ev)), zap.Error(err))
			}
		})
	defer listener.Close()

	if err := listener.Listen(n.channel); err != nil {
		return err
	}
	n.log.Info("listening for session notifications", zap.String("channel", n.channel))

	for {
		select {
		case <-ctx.Done():
			return nil
		case nt := <-listener.Notify:
			// nil after a reconnect; nothing to deliver
			if nt == nil {
				continue
			}
			n.dispatch(nt.Extra)
		case <-time.After(90 * time.Second):
			go func() {
				if err := listener.Ping(); err != nil {
					n.log.Warn("notification listener ping", zap.Error(err))
				}
			}()
		}
	}
}
