package hermes

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
)

// QueueGroup is shared by every scribe instance so a run request is taken by one of them.
const QueueGroup = "scribe"

// Options configures the bus connection. Zero fields take the defaults below.
type Options struct {
	URL           string
	Token         string
	Name          string
	MaxReconnects int
	ReconnectWait time.Duration
	Logger        *slog.Logger
}

func (o Options) withDefaults() Options {
	if o.Name == "" {
		o.Name = "scribe"
	}
	if o.MaxReconnects == 0 {
		o.MaxReconnects = 60
	}
	if o.ReconnectWait <= 0 {
		o.ReconnectWait = 2 * time.Second
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	return o
}

// natsOptions keeps reconnecting in the background, so a bus that is down at
// startup or restarts mid-run only delays events.
func (o Options) natsOptions() []nats.Option {
	logger := o.Logger
	opts := []nats.Option{
		nats.Name(o.Name),
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(o.MaxReconnects),
		nats.ReconnectWait(o.ReconnectWait),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logger.Warn("nats disconnected", "error", err)
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logger.Info("nats reconnected", "url", nc.ConnectedUrlRedacted())
		}),
		nats.ErrorHandler(func(_ *nats.Conn, sub *nats.Subscription, err error) {
			subject := ""
			if sub != nil {
				subject = sub.Subject
			}
			logger.Error("nats async error", "subject", subject, "error", err)
		}),
	}
	if o.Token != "" {
		opts = append(opts, nats.Token(o.Token))
	}
	return opts
}

// Client publishes run events as JSON and delivers run requests.
type Client struct {
	conn   *nats.Conn
	logger *slog.Logger

	mu   sync.Mutex
	subs []*nats.Subscription
}

// Connect dials the bus described by opts.
func Connect(ctx context.Context, opts Options) (*Client, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	opts = opts.withDefaults()

	nc, err := nats.Connect(opts.URL, opts.natsOptions()...)
	if err != nil {
		return nil, fmt.Errorf("nats connect %s: %w", opts.URL, err)
	}
	return &Client{conn: nc, logger: opts.Logger}, nil
}

func (c *Client) Publish(subject string, data any) error {
	payload, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("marshal %s payload: %w", subject, err)
	}
	if err := c.conn.Publish(subject, payload); err != nil {
		return fmt.Errorf("publish %s: %w", subject, err)
	}
	return nil
}

// Subscribe delivers every message on subject to handler.
func (c *Client) Subscribe(subject string, handler func(subject string, data []byte)) error {
	return c.subscribe(subject, "", handler)
}

// QueueSubscribe delivers each message on subject to one member of QueueGroup.
func (c *Client) QueueSubscribe(subject string, handler func(subject string, data []byte)) error {
	return c.subscribe(subject, QueueGroup, handler)
}

func (c *Client) subscribe(subject, queue string, handler func(subject string, data []byte)) error {
	sub, err := c.conn.QueueSubscribe(subject, queue, func(msg *nats.Msg) {
		handler(msg.Subject, msg.Data)
	})
	if err != nil {
		return fmt.Errorf("subscribe %s: %w", subject, err)
	}
	c.mu.Lock()
	c.subs = append(c.subs, sub)
	c.mu.Unlock()
	c.logger.Info("subscribed", "subject", subject, "queue", queue)
	return nil
}

// Connected reports whether the connection is currently up.
func (c *Client) Connected() bool {
	return c.conn.IsConnected()
}

// Flush waits until buffered messages have reached the server.
func (c *Client) Flush() error {
	return c.conn.Flush()
}

func (c *Client) Close() {
	c.mu.Lock()
	subs := c.subs
	c.subs = nil
	c.mu.Unlock()
	for _, sub := range subs {
		_ = sub.Unsubscribe()
	}
	c.conn.Close()
}
