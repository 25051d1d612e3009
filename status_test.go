package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ilievs/panelagent/command"
	"github.com/ilievs/panelagent/core"
)

func TestRenderStatus(t *testing.T) {
	out := renderStatus([]core.StatusEntry{
		{Name: "Battery", Text: "enabled\nLevel: 45% (Panel_Battery_Level: 45)"},
		{Name: "Motion Detection", Text: "disabled"},
	}, []command.Entry{
		{Command: "REBOOT", Time: time.Now(), Status: "failed", Details: "not permitted", ShowDetails: true},
		{Command: "UPDATE_ITEMS", Time: time.Now(), Status: "executed", Details: "hidden"},
	})

	assert.Contains(t, out, "Battery")
	assert.Contains(t, out, "Level: 45% (Panel_Battery_Level: 45)")
	assert.Contains(t, out, "disabled")
	assert.Contains(t, out, "REBOOT")
	assert.Contains(t, out, "not permitted")
	assert.NotContains(t, out, "hidden")
}

func TestRenderStatusWithoutCommands(t *testing.T) {
	out := renderStatus(nil, nil)
	assert.Contains(t, out, "no commands received")
}

func TestShowStatusFetchesAgent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/status":
			_ = json.NewEncoder(w).Encode([]core.StatusEntry{{Name: "Temperature", Text: "enabled\nTemperature: 21.5 °C (Panel_Temperature: 21.5)"}})
		case "/commands":
			_ = json.NewEncoder(w).Encode([]command.Entry{})
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	var out bytes.Buffer
	require.NoError(t, showStatus(context.Background(), &out, strings.TrimPrefix(srv.URL, "http://")))
	assert.Contains(t, out.String(), "Temperature: 21.5 °C")
}

func TestShowStatusUnreachable(t *testing.T) {
	var out bytes.Buffer
	err := showStatus(context.Background(), &out, "127.0.0.1:1")
	assert.Error(t, err)
}
