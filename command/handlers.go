package command

import (
	"context"
	"strings"
)

const UpdateItemsCommand = "UPDATE_ITEMS"

// Poller is anything that can force its monitors to resend their values.
type Poller interface {
	PollNow()
}

// UpdateItemsHandler makes every polling monitor resend all of its values.
type UpdateItemsHandler struct {
	Monitors Poller
}

func (h UpdateItemsHandler) Handle(ctx context.Context, cmd string) (bool, error) {
	if !strings.EqualFold(cmd, UpdateItemsCommand) {
		return false, nil
	}
	h.Monitors.PollNow()
	return true, nil
}
