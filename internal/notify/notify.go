// Package notify announces new episodes found by background refreshes.
package notify

import (
	"context"
	"fmt"
	"io"
	"os/exec"
	"strings"

	"github.com/matthewjhunter/podhub"
	"github.com/matthewjhunter/podhub/internal/config"
)

type Notifier struct {
	enabled bool
	command []string
	out     io.Writer
}

// NewNotifier creates a notifier from the notify config section. Messages
// go to out when no command is configured.
func NewNotifier(cfg config.NotifyConfig, out io.Writer) *Notifier {
	return &Notifier{
		enabled: cfg.Enabled,
		command: cfg.Command,
		out:     out,
	}
}

// NotifyNewEpisodes sends one message per show that gained episodes.
func (n *Notifier) NotifyNewEpisodes(ctx context.Context, r *podhub.RefreshAllResult) error {
	if !n.enabled || r == nil || r.Added == 0 {
		return nil
	}

	for _, res := range r.Results {
		if res.Added == 0 || res.Error != "" {
			continue
		}
		if err := n.send(ctx, Message(res)); err != nil {
			return fmt.Errorf("failed to send notification: %w", err)
		}
	}
	return nil
}

// Message renders the notification text for one refreshed show.
func Message(res podhub.RefreshResult) string {
	noun := "episodes"
	if res.Added == 1 {
		noun = "episode"
	}
	return fmt.Sprintf("🎧 %d new %s of %s (show %d)", res.Added, noun, truncate(res.Title, 80), res.ShowID)
}

// send runs the configured command with the message as its last argument.
func (n *Notifier) send(ctx context.Context, message string) error {
	if len(n.command) == 0 {
		_, err := fmt.Fprintln(n.out, message)
		return err
	}

	args := append(append([]string{}, n.command[1:]...), message)
	cmd := exec.CommandContext(ctx, n.command[0], args...)
	if out, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("%s: %w: %s", n.command[0], err, strings.TrimSpace(string(out)))
	}
	return nil
}

// truncate truncates a string to maxLen runes
func truncate(s string, maxLen int) string {
	s = strings.TrimSpace(s)
	r := []rune(s)
	if len(r) <= maxLen {
		return s
	}
	return string(r[:maxLen]) + "..."
}
