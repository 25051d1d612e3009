package mqtt

import (
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	mochi "github.com/mochi-mqtt/server/v2"
	"github.com/mochi-mqtt/server/v2/packets"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	waitFor = 2 * time.Second
	tick    = 5 * time.Millisecond
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func startBroker(t *testing.T) *Broker {
	t.Helper()
	b := NewBroker(BrokerOptions{TopicPrefix: "panel"}, discardLogger())
	require.NoError(t, b.Start())
	t.Cleanup(func() { _ = b.Close() })
	return b
}

type topicCollector struct {
	mu       sync.Mutex
	messages map[string]string
}

func collect(t *testing.T, server *mochi.Server, filter string, id int) *topicCollector {
	t.Helper()
	c := &topicCollector{messages: make(map[string]string)}
	err := server.Subscribe(filter, id, func(cl *mochi.Client, sub packets.Subscription, pk packets.Packet) {
		c.mu.Lock()
		defer c.mu.Unlock()
		c.messages[pk.TopicName] = string(pk.Payload)
	})
	require.NoError(t, err)
	return c
}

func (c *topicCollector) get(topic string) string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.messages[topic]
}

func TestInlineConnectionReceivesStates(t *testing.T) {
	b := startBroker(t)
	conn := NewInlineConnection(b.Server(), "panel", discardLogger())
	require.NoError(t, conn.Start())
	defer conn.Close()

	l := newRecordingListener()
	conn.SubscribeItems(l, "Battery_Level")

	require.Eventually(t, func() bool {
		_ = b.Server().Publish(StateTopic("panel", "Battery_Level"), []byte("45"), true, 0)
		v, _ := l.get("Battery_Level")
		return v == "45"
	}, waitFor, tick)
	assert.Equal(t, "45", conn.GetState("Battery_Level"))
}

func TestInlineConnectionPublishesCommands(t *testing.T) {
	b := startBroker(t)
	commands := collect(t, b.Server(), commandFilter("panel"), 10)

	conn := NewInlineConnection(b.Server(), "panel", discardLogger())
	require.Eventually(t, func() bool {
		conn.UpdateState("Battery_Charging", "CLOSED")
		return commands.get(CommandTopic("panel", "Battery_Charging")) == "CLOSED"
	}, waitFor, tick)

	conn.UpdateState("", "ignored")
	assert.Equal(t, "", commands.get(CommandTopic("panel", "")))
}

func TestPresenceHookPublishes(t *testing.T) {
	b := startBroker(t)
	presence := collect(t, b.Server(), "panel/+/connected", 11)

	hook := new(PresenceHook)
	require.NoError(t, hook.Init(&PresenceOptions{Server: b.Server(), TopicPrefix: "panel"}))

	cl := &mochi.Client{ID: "tablet1"}
	require.Eventually(t, func() bool {
		hook.OnSessionEstablished(cl, packets.Packet{})
		return presence.get(PresenceTopic("panel", "tablet1")) == PresenceOnline
	}, waitFor, tick)

	hook.OnDisconnect(cl, nil, false)
	require.Eventually(t, func() bool {
		return presence.get(PresenceTopic("panel", "tablet1")) == PresenceOffline
	}, waitFor, tick)
}

func TestPresenceHookConfig(t *testing.T) {
	hook := new(PresenceHook)
	assert.Equal(t, "PresenceHook", hook.ID())
	assert.True(t, hook.Provides(mochi.OnSessionEstablished))
	assert.True(t, hook.Provides(mochi.OnDisconnect))
	assert.False(t, hook.Provides(mochi.OnPublish))
	assert.ErrorIs(t, hook.Init("bad"), mochi.ErrInvalidConfigType)
	assert.NoError(t, hook.Init(nil))
}

func TestBrokerWithUsers(t *testing.T) {
	b := NewBroker(BrokerOptions{
		TopicPrefix: "panel",
		Users:       []User{{Username: "tablet", Password: "secret"}},
	}, discardLogger())
	require.NoError(t, b.Start())
	defer b.Close()

	conn := NewInlineConnection(b.Server(), "panel", discardLogger())
	require.NoError(t, conn.Start())
	l := newRecordingListener()
	conn.SubscribeItems(l, "Motion")
	require.Eventually(t, func() bool {
		_ = b.Server().Publish(StateTopic("panel", "Motion"), []byte("OPEN"), false, 0)
		v, _ := l.get("Motion")
		return v == "OPEN"
	}, waitFor, tick)
}
