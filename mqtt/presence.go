package mqtt

import (
	"bytes"

	mochi "github.com/mochi-mqtt/server/v2"
	"github.com/mochi-mqtt/server/v2/packets"
)

const (
	PresenceOnline  = "ON"
	PresenceOffline = "OFF"
)

type PresenceOptions struct {
	Server      *mochi.Server
	TopicPrefix string
}

// PresenceHook publishes a retained ON/OFF message on the presence topic of every
// client that connects to or leaves the embedded broker.
type PresenceHook struct {
	mochi.HookBase
	server *mochi.Server
	prefix string
}

// ID returns the ID of the hook.
func (h *PresenceHook) ID() string {
	return "PresenceHook"
}

func (h *PresenceHook) Provides(b byte) bool {
	return bytes.Contains([]byte{
		mochi.OnSessionEstablished,
		mochi.OnDisconnect,
	}, []byte{b})
}

func (h *PresenceHook) Init(config any) error {
	if _, ok := config.(*PresenceOptions); !ok && config != nil {
		return mochi.ErrInvalidConfigType
	}

	if config == nil {
		config = new(PresenceOptions)
	}

	opt := config.(*PresenceOptions)
	h.server = opt.Server
	h.prefix = opt.TopicPrefix

	return nil
}

func (h *PresenceHook) OnSessionEstablished(cl *mochi.Client, pk packets.Packet) {
	h.publish(cl.ID, PresenceOnline)
}

func (h *PresenceHook) OnDisconnect(cl *mochi.Client, err error, expire bool) {
	h.publish(cl.ID, PresenceOffline)
}

func (h *PresenceHook) publish(clientID string, state string) {
	if h.server == nil || clientID == "" {
		return
	}
	if err := h.server.Publish(PresenceTopic(h.prefix, clientID), []byte(state), true, 0); err != nil {
		if h.Log != nil {
			h.Log.Warn("failed to publish presence", "client", clientID, "error", err)
		}
		return
	}
	if h.Log != nil {
		h.Log.Info("client presence changed", "client", clientID, "state", state)
	}
}
