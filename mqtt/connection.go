package mqtt

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"sync"
	"time"

	"github.com/codeGROOVE-dev/retry"
	"github.com/eclipse/paho.golang/autopaho"
	"github.com/eclipse/paho.golang/paho"

	"github.com/ilievs/panelagent/core"
)

const (
	outgoingSize   = 64
	publishTimeout = 5 * time.Second
	maxRetries     = 3
	initialBackoff = 500 * time.Millisecond
	maxBackoff     = 5 * time.Second
)

var ErrNotStarted = errors.New("connection not started")

type ConnectionConfig struct {
	URL         string
	ClientID    string
	Username    string
	Password    string
	TopicPrefix string
	// KeepAlive in seconds.
	KeepAlive uint16
}

type update struct {
	item  string
	value string
}

// Connection talks to the server through an external MQTT broker. Item updates
// are published from a background goroutine so UpdateState never blocks.
type Connection struct {
	cfg    ConnectionConfig
	logger *slog.Logger
	states *itemStates

	outgoing chan update
	publish  func(ctx context.Context, p *paho.Publish) error

	mu     sync.Mutex
	cm     *autopaho.ConnectionManager
	cancel context.CancelFunc
	done   chan struct{}
}

func NewConnection(cfg ConnectionConfig, logger *slog.Logger) *Connection {
	return &Connection{
		cfg:      cfg,
		logger:   logger.With("connection", cfg.URL),
		states:   newItemStates(),
		outgoing: make(chan update, outgoingSize),
	}
}

// Start connects in the background. The connection manager keeps reconnecting
// until Close is called.
func (c *Connection) Start(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cm != nil {
		return nil
	}

	u, err := url.Parse(c.cfg.URL)
	if err != nil {
		return fmt.Errorf("invalid server url %q: %w", c.cfg.URL, err)
	}

	cliCfg := autopaho.ClientConfig{
		ServerUrls:                    []*url.URL{u},
		ConnectUsername:               c.cfg.Username,
		ConnectPassword:               []byte(c.cfg.Password),
		KeepAlive:                     c.cfg.KeepAlive,
		CleanStartOnInitialConnection: false,
		SessionExpiryInterval:         60,
		OnConnectionUp:                c.onConnectionUp,
		OnConnectError: func(err error) {
			c.logger.Warn("error whilst attempting connection", "error", err)
		},
		ClientConfig: paho.ClientConfig{
			ClientID: c.cfg.ClientID,
			OnPublishReceived: []func(paho.PublishReceived) (bool, error){
				c.onPublishReceived,
			},
			OnClientError: func(err error) {
				c.logger.Warn("client error", "error", err)
			},
			OnServerDisconnect: func(d *paho.Disconnect) {
				if d.Properties != nil {
					c.logger.Warn("server requested disconnect", "reason", d.Properties.ReasonString)
				} else {
					c.logger.Warn("server requested disconnect", "code", d.ReasonCode)
				}
			},
		},
	}

	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	cm, err := autopaho.NewConnection(runCtx, cliCfg)
	if err != nil {
		cancel()
		return fmt.Errorf("failed to create connection: %w", err)
	}

	c.cm = cm
	c.cancel = cancel
	c.publish = func(ctx context.Context, p *paho.Publish) error {
		_, err := cm.Publish(ctx, p)
		return err
	}
	c.done = make(chan struct{})
	go c.runPublisher(runCtx, c.done)
	return nil
}

// AwaitConnection blocks until the first connection is up or ctx is done.
func (c *Connection) AwaitConnection(ctx context.Context) error {
	c.mu.Lock()
	cm := c.cm
	c.mu.Unlock()
	if cm == nil {
		return ErrNotStarted
	}
	return cm.AwaitConnection(ctx)
}

func (c *Connection) Close(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cm == nil {
		return nil
	}

	err := c.cm.Disconnect(ctx)
	c.cancel()
	<-c.done
	c.cm, c.cancel, c.done = nil, nil, nil
	return err
}

func (c *Connection) onConnectionUp(cm *autopaho.ConnectionManager, connAck *paho.Connack) {
	c.logger.Info("mqtt connection up")
	if _, err := cm.Subscribe(context.Background(), &paho.Subscribe{
		Subscriptions: []paho.SubscribeOptions{
			{Topic: stateFilter(c.cfg.TopicPrefix), QoS: 1},
		},
	}); err != nil {
		c.logger.Error("failed to subscribe to item states", "error", err)
		return
	}
	c.logger.Debug("subscribed to item states", "filter", stateFilter(c.cfg.TopicPrefix))
}

func (c *Connection) onPublishReceived(pr paho.PublishReceived) (bool, error) {
	item, ok := ItemFromTopic(c.cfg.TopicPrefix, pr.Packet.Topic, stateSuffix)
	if !ok {
		return false, nil
	}
	c.states.update(item, string(pr.Packet.Payload))
	return true, nil
}

func (c *Connection) runPublisher(ctx context.Context, done chan struct{}) {
	defer close(done)
	for {
		select {
		case <-ctx.Done():
			return
		case u := <-c.outgoing:
			c.send(ctx, u)
		}
	}
}

func (c *Connection) send(ctx context.Context, u update) {
	p := &paho.Publish{
		QoS:     1,
		Topic:   CommandTopic(c.cfg.TopicPrefix, u.item),
		Payload: []byte(u.value),
	}
	err := retry.Do(func() error {
		pubCtx, cancel := context.WithTimeout(ctx, publishTimeout)
		defer cancel()
		return c.publish(pubCtx, p)
	}, retry.Attempts(maxRetries), retry.Delay(initialBackoff), retry.MaxDelay(maxBackoff))
	if err != nil {
		if ctx.Err() == nil {
			c.logger.Error("failed to publish item update", "item", u.item, "error", err)
		}
		return
	}
	c.logger.Debug("published item update", "item", u.item, "value", u.value)
}

func (c *Connection) UpdateState(item string, value string) {
	if item == "" {
		return
	}
	select {
	case c.outgoing <- update{item: item, value: value}:
	default:
		c.logger.Warn("outgoing queue full, dropping item update", "item", item)
	}
}

func (c *Connection) SubscribeItems(listener core.StateListener, items ...string) {
	c.states.subscribe(listener, items...)
}

func (c *Connection) GetState(item string) string {
	return c.states.get(item)
}
