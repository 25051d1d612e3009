// Command homeserver simulates the home automation server for local testing. It
// echoes every item update sent by the agent back as the item state and can
// periodically issue a command on the command item.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"sync/atomic"
	"time"

	"github.com/eclipse/paho.golang/autopaho"
	"github.com/eclipse/paho.golang/paho"
	"github.com/spf13/cobra"

	"github.com/ilievs/panelagent/mqtt"
	"github.com/ilievs/panelagent/system"
)

var (
	brokerFlag      string
	prefixFlag      string
	usernameFlag    string
	passwordFlag    string
	commandItemFlag string
	commandFlag     string
	intervalFlag    time.Duration
)

var rootCmd = &cobra.Command{
	Use:          "homeserver",
	Short:        "Simulate the home automation server",
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := system.SignalContext(cmd.Context())
		defer stop()
		return run(ctx, slog.New(slog.NewTextHandler(os.Stderr, nil)))
	},
}

func init() {
	rootCmd.Flags().StringVar(&brokerFlag, "broker", "mqtt://localhost:1883", "broker url")
	rootCmd.Flags().StringVar(&prefixFlag, "prefix", "panel", "topic prefix")
	rootCmd.Flags().StringVar(&usernameFlag, "username", "", "broker username")
	rootCmd.Flags().StringVar(&passwordFlag, "password", "", "broker password")
	rootCmd.Flags().StringVar(&commandItemFlag, "command-item", "", "item to send commands on")
	rootCmd.Flags().StringVar(&commandFlag, "command", "UPDATE_ITEMS", "command to send")
	rootCmd.Flags().DurationVar(&intervalFlag, "interval", 30*time.Second, "command interval")
}

func run(ctx context.Context, logger *slog.Logger) error {
	u, err := url.Parse(brokerFlag)
	if err != nil {
		return err
	}

	var current atomic.Pointer[autopaho.ConnectionManager]
	publish := func(ctx context.Context, p *paho.Publish) error {
		cm := current.Load()
		if cm == nil {
			return errNotConnected
		}
		_, err := cm.Publish(ctx, p)
		return err
	}
	echo := stateEcho(ctx, prefixFlag, publish, logger)

	cliCfg := autopaho.ClientConfig{
		ServerUrls:            []*url.URL{u},
		ConnectUsername:       usernameFlag,
		ConnectPassword:       []byte(passwordFlag),
		KeepAlive:             20,
		SessionExpiryInterval: 60,
		OnConnectionUp: func(cm *autopaho.ConnectionManager, connAck *paho.Connack) {
			logger.Info("mqtt connection up")
			current.Store(cm)
			if _, err := cm.Subscribe(context.Background(), &paho.Subscribe{
				Subscriptions: []paho.SubscribeOptions{
					{Topic: mqtt.CommandTopic(prefixFlag, "+"), QoS: 1},
				},
			}); err != nil {
				logger.Error("failed to subscribe", "error", err)
			}
		},
		OnConnectError: func(err error) {
			logger.Warn("error whilst attempting connection", "error", err)
		},
		ClientConfig: paho.ClientConfig{
			ClientID:          "homeserver",
			OnPublishReceived: []func(paho.PublishReceived) (bool, error){echo},
			OnClientError:     func(err error) { logger.Warn("client error", "error", err) },
		},
	}

	cm, err := autopaho.NewConnection(ctx, cliCfg)
	if err != nil {
		return err
	}
	if err := cm.AwaitConnection(ctx); err != nil {
		return err
	}

	if commandItemFlag != "" {
		go sendCommands(ctx, cm, logger)
	}

	<-ctx.Done()
	<-cm.Done()
	return nil
}

var errNotConnected = errors.New("not connected")

// stateEcho returns a publish handler that mirrors every item command back as the
// item's retained state. The publish runs on its own goroutine: a QoS 1 publish
// waits for its PUBACK, which the paho receive loop blocked in this handler could
// never deliver.
func stateEcho(ctx context.Context, prefix string, publish func(context.Context, *paho.Publish) error, logger *slog.Logger) func(paho.PublishReceived) (bool, error) {
	return func(pr paho.PublishReceived) (bool, error) {
		item, ok := mqtt.ItemFromTopic(prefix, pr.Packet.Topic, "command")
		if !ok {
			return false, nil
		}
		logger.Info("item updated", "item", item, "value", string(pr.Packet.Payload))
		p := &paho.Publish{
			QoS:     1,
			Retain:  true,
			Topic:   mqtt.StateTopic(prefix, item),
			Payload: pr.Packet.Payload,
		}
		go func() {
			if err := publish(ctx, p); err != nil && ctx.Err() == nil {
				logger.Warn("failed to echo item state", "item", item, "error", err)
			}
		}()
		return true, nil
	}
}

// sendCommands publishes the command non-retained so it is executed once.
func sendCommands(ctx context.Context, cm *autopaho.ConnectionManager, logger *slog.Logger) {
	ticker := time.NewTicker(intervalFlag)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			_, err := cm.Publish(ctx, &paho.Publish{
				QoS:     1,
				Topic:   mqtt.StateTopic(prefixFlag, commandItemFlag),
				Payload: []byte(commandFlag),
			})
			if err != nil {
				if ctx.Err() == nil {
					logger.Warn("failed to send command", "error", err)
				}
				continue
			}
			logger.Info("sent command", "item", commandItemFlag, "command", commandFlag)
		}
	}
}

func main() {
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
