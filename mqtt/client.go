package mqtt

import (
	"log/slog"

	mochi "github.com/mochi-mqtt/server/v2"
	"github.com/mochi-mqtt/server/v2/packets"

	"github.com/ilievs/panelagent/core"
)

const inlineSubscriptionID = 1

// InlineConnection talks to the server through the inline client of the embedded
// broker.
type InlineConnection struct {
	server *mochi.Server
	prefix string
	logger *slog.Logger
	states *itemStates
}

func NewInlineConnection(server *mochi.Server, prefix string, logger *slog.Logger) *InlineConnection {
	return &InlineConnection{
		server: server,
		prefix: prefix,
		logger: logger.With("connection", "inline"),
		states: newItemStates(),
	}
}

// Start subscribes to the state topics of all items.
func (c *InlineConnection) Start() error {
	return c.server.Subscribe(stateFilter(c.prefix), inlineSubscriptionID, c.onState)
}

func (c *InlineConnection) Close() error {
	return c.server.Unsubscribe(stateFilter(c.prefix), inlineSubscriptionID)
}

func (c *InlineConnection) onState(cl *mochi.Client, sub packets.Subscription, pk packets.Packet) {
	item, ok := ItemFromTopic(c.prefix, pk.TopicName, stateSuffix)
	if !ok {
		return
	}
	c.states.update(item, string(pk.Payload))
}

func (c *InlineConnection) UpdateState(item string, value string) {
	if item == "" {
		return
	}
	if err := c.server.Publish(CommandTopic(c.prefix, item), []byte(value), false, 0); err != nil {
		c.logger.Warn("failed to publish item update", "item", item, "error", err)
	}
}

func (c *InlineConnection) SubscribeItems(listener core.StateListener, items ...string) {
	c.states.subscribe(listener, items...)
}

func (c *InlineConnection) GetState(item string) string {
	return c.states.get(item)
}
