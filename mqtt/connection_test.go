package mqtt

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/eclipse/paho.golang/paho"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type publishRecorder struct {
	mu        sync.Mutex
	published []*paho.Publish
	failures  int
}

func (r *publishRecorder) publish(ctx context.Context, p *paho.Publish) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failures > 0 {
		r.failures--
		return errors.New("connection down")
	}
	r.published = append(r.published, p)
	return nil
}

func (r *publishRecorder) topics() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	var topics []string
	for _, p := range r.published {
		topics = append(topics, p.Topic+"="+string(p.Payload))
	}
	return topics
}

func newTestConnection() *Connection {
	return NewConnection(ConnectionConfig{
		URL:         "mqtt://localhost:1883",
		ClientID:    "panel",
		TopicPrefix: "panel",
	}, discardLogger())
}

func runPublisher(t *testing.T, c *Connection, r *publishRecorder) {
	t.Helper()
	c.publish = r.publish
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go c.runPublisher(ctx, done)
	t.Cleanup(func() {
		cancel()
		<-done
	})
}

func TestConnectionReceivesStates(t *testing.T) {
	c := newTestConnection()
	l := newRecordingListener()
	c.SubscribeItems(l, "Battery_Low")

	handled, err := c.onPublishReceived(paho.PublishReceived{Packet: &paho.Publish{
		Topic:   "panel/Battery_Low/state",
		Payload: []byte("OPEN"),
	}})
	require.NoError(t, err)
	assert.True(t, handled)

	handled, _ = c.onPublishReceived(paho.PublishReceived{Packet: &paho.Publish{
		Topic:   "elsewhere/Battery_Low/state",
		Payload: []byte("CLOSED"),
	}})
	assert.False(t, handled)

	v, _ := l.get("Battery_Low")
	assert.Equal(t, "OPEN", v)
	assert.Equal(t, "OPEN", c.GetState("Battery_Low"))
}

func TestConnectionPublishesUpdatesInOrder(t *testing.T) {
	c := newTestConnection()
	r := &publishRecorder{}
	runPublisher(t, c, r)

	c.UpdateState("Battery_Level", "45")
	c.UpdateState("", "ignored")
	c.UpdateState("Battery_Charging", "CLOSED")

	require.Eventually(t, func() bool { return len(r.topics()) == 2 }, waitFor, tick)
	assert.Equal(t, []string{
		"panel/Battery_Level/command=45",
		"panel/Battery_Charging/command=CLOSED",
	}, r.topics())
}

func TestConnectionRetriesPublish(t *testing.T) {
	c := newTestConnection()
	r := &publishRecorder{failures: 1}
	runPublisher(t, c, r)

	c.UpdateState("Motion", "OPEN")
	require.Eventually(t, func() bool { return len(r.topics()) == 1 }, waitFor, tick)
}

func TestConnectionDropsWhenQueueFull(t *testing.T) {
	c := newTestConnection()
	for range outgoingSize + 5 {
		c.UpdateState("Motion", "OPEN")
	}
	assert.Len(t, c.outgoing, outgoingSize)
}

func TestConnectionNotStarted(t *testing.T) {
	c := newTestConnection()
	assert.ErrorIs(t, c.AwaitConnection(context.Background()), ErrNotStarted)
	assert.NoError(t, c.Close(context.Background()))
}
