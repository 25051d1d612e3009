package mqtt

import (
	"fmt"
	"log/slog"

	mochi "github.com/mochi-mqtt/server/v2"
	"github.com/mochi-mqtt/server/v2/hooks/auth"
	"github.com/mochi-mqtt/server/v2/listeners"
)

type User struct {
	Username string
	Password string
}

type BrokerOptions struct {
	// Address of the TCP listener. Empty serves the inline client only.
	Address     string
	TopicPrefix string
	// Users allowed to connect. No users means anyone may connect.
	Users []User
}

// Broker is the embedded MQTT broker used when the agent acts as its own server
// endpoint.
type Broker struct {
	server *mochi.Server
	opts   BrokerOptions
	logger *slog.Logger
}

func NewBroker(opts BrokerOptions, logger *slog.Logger) *Broker {
	return &Broker{
		server: mochi.New(&mochi.Options{
			InlineClient: true,
			Logger:       logger.With("component", "broker"),
		}),
		opts:   opts,
		logger: logger.With("component", "broker"),
	}
}

func (b *Broker) Server() *mochi.Server {
	return b.server
}

func (b *Broker) Start() error {
	if err := b.addAuthHook(); err != nil {
		return fmt.Errorf("failed to add auth hook: %w", err)
	}

	err := b.server.AddHook(new(PresenceHook), &PresenceOptions{
		Server:      b.server,
		TopicPrefix: b.opts.TopicPrefix,
	})
	if err != nil {
		return fmt.Errorf("failed to add presence hook: %w", err)
	}

	if b.opts.Address != "" {
		tcp := listeners.NewTCP(listeners.Config{ID: "t1", Address: b.opts.Address})
		if err := b.server.AddListener(tcp); err != nil {
			return fmt.Errorf("failed to listen on %s: %w", b.opts.Address, err)
		}
	}

	go func() {
		if err := b.server.Serve(); err != nil {
			b.logger.Error("broker stopped", "error", err)
		}
	}()
	return nil
}

func (b *Broker) addAuthHook() error {
	if len(b.opts.Users) == 0 {
		b.logger.Warn("no broker users configured, allowing all connections")
		return b.server.AddHook(new(auth.AllowHook), nil)
	}

	ledger := &auth.Ledger{}
	userFilters := auth.Filters{
		auth.RString(b.opts.TopicPrefix + "/#"): auth.ReadWrite,
	}
	for _, u := range b.opts.Users {
		ledger.Auth = append(ledger.Auth, auth.AuthRule{
			Username: auth.RString(u.Username),
			Password: auth.RString(u.Password),
			Allow:    true,
		})
		ledger.ACL = append(ledger.ACL, auth.ACLRule{
			Username: auth.RString(u.Username),
			Filters:  userFilters,
		})
	}
	// local superuser allow all
	ledger.ACL = append(ledger.ACL, auth.ACLRule{Remote: "127.0.0.1:*"})
	ledger.ACL = append(ledger.ACL, auth.ACLRule{
		Filters: auth.Filters{"#": auth.Deny},
	})

	return b.server.AddHook(new(auth.Hook), &auth.Options{Ledger: ledger})
}

func (b *Broker) Close() error {
	return b.server.Close()
}
