package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/ilievs/panelagent/command"
	"github.com/ilievs/panelagent/core"
)

const statusRequestTimeout = 5 * time.Second

var (
	headerStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("6"))
	facetStyle   = lipgloss.NewStyle().Bold(true)
	detailStyle  = lipgloss.NewStyle().PaddingLeft(2)
	mutedStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	enabledStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("2"))
)

var commandColors = map[string]lipgloss.Color{
	command.StatusPending.String():   lipgloss.Color(command.StatusPending.Color()),
	command.StatusExecuted.String():  lipgloss.Color(command.StatusExecuted.Color()),
	command.StatusFailed.String():    lipgloss.Color(command.StatusFailed.Color()),
	command.StatusUnhandled.String(): lipgloss.Color(command.StatusUnhandled.Color()),
}

func showStatus(ctx context.Context, out io.Writer, address string) error {
	base := "http://" + address

	var entries []core.StatusEntry
	if err := getJSON(ctx, base+"/status", &entries); err != nil {
		return err
	}
	var commands []command.Entry
	if err := getJSON(ctx, base+"/commands", &commands); err != nil {
		return err
	}

	fmt.Fprintln(out, renderStatus(entries, commands))
	return nil
}

func getJSON(ctx context.Context, url string, v any) error {
	ctx, cancel := context.WithTimeout(ctx, statusRequestTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("agent not reachable: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("GET %s: %s", url, resp.Status)
	}
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		return fmt.Errorf("failed to decode %s: %w", url, err)
	}
	return nil
}

func renderStatus(entries []core.StatusEntry, commands []command.Entry) string {
	var b strings.Builder

	b.WriteString(headerStyle.Render("Status"))
	b.WriteString("\n")
	for _, e := range entries {
		lines := strings.Split(e.Text, "\n")
		marker := lines[0]
		if marker == "enabled" {
			marker = enabledStyle.Render(marker)
		} else {
			marker = mutedStyle.Render(marker)
		}
		b.WriteString(facetStyle.Render(e.Name) + ": " + marker + "\n")
		for _, line := range lines[1:] {
			b.WriteString(detailStyle.Render(line) + "\n")
		}
	}

	b.WriteString("\n")
	b.WriteString(headerStyle.Render("Commands"))
	b.WriteString("\n")
	if len(commands) == 0 {
		b.WriteString(mutedStyle.Render("no commands received"))
		return b.String()
	}
	for _, c := range commands {
		status := lipgloss.NewStyle().Foreground(commandColors[c.Status]).Render(c.Status)
		b.WriteString(fmt.Sprintf("%s %s %s\n", mutedStyle.Render(c.Time.Format(time.DateTime)), c.Command, status))
		if c.ShowDetails && c.Details != "" {
			b.WriteString(detailStyle.Render(c.Details) + "\n")
		}
	}
	return strings.TrimRight(b.String(), "\n")
}
