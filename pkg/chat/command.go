// Package chat is the Slack side of the bot: it parses and verifies slash
// commands, renders launch reports as Block Kit messages, and delivers them.
package chat

import (
	"bytes"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strings"

	"github.com/slack-go/slack"
)

// Slash command names.
const (
	CommandVehicle   = "/vehicle"
	CommandDashboard = "/dashboard"
	CommandStatus    = "/status"
	CommandHelp      = "/help"
)

// maxBodyBytes bounds slash command payloads, which are a few hundred bytes.
const maxBodyBytes = 64 << 10

var launchDatePattern = regexp.MustCompile(`\b(\d{4}-\d{2}-\d{2})\b`)

// Command is a parsed slash command.
type Command struct {
	Name        string
	Text        string
	UserID      string
	UserName    string
	ChannelID   string
	TeamID      string
	ResponseURL string
	TriggerID   string
}

// FromSlash converts a slack-go slash command.
func FromSlash(s slack.SlashCommand) Command {
	return Command{
		Name:        strings.ToLower(strings.TrimSpace(s.Command)),
		Text:        strings.TrimSpace(s.Text),
		UserID:      s.UserID,
		UserName:    s.UserName,
		ChannelID:   s.ChannelID,
		TeamID:      s.TeamID,
		ResponseURL: s.ResponseURL,
		TriggerID:   s.TriggerID,
	}
}

// ExtractLaunchDate returns the first YYYY-MM-DD shaped token in text. The
// token is not validated as a calendar date.
func ExtractLaunchDate(text string) (string, bool) {
	m := launchDatePattern.FindStringSubmatch(text)
	if m == nil {
		return "", false
	}
	return m[1], true
}

// ParseSlashCommand verifies the Slack request signature and parses the
// form body. An empty signingSecret skips verification.
func ParseSlashCommand(r *http.Request, signingSecret string) (Command, error) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		return Command{}, fmt.Errorf("reading request body: %w", err)
	}

	if signingSecret != "" {
		verifier, err := slack.NewSecretsVerifier(r.Header, signingSecret)
		if err != nil {
			return Command{}, fmt.Errorf("%w: %v", ErrBadSignature, err)
		}
		if _, err := verifier.Write(body); err != nil {
			return Command{}, fmt.Errorf("%w: %v", ErrBadSignature, err)
		}
		if err := verifier.Ensure(); err != nil {
			return Command{}, fmt.Errorf("%w: %v", ErrBadSignature, err)
		}
	}

	r.Body = io.NopCloser(bytes.NewReader(body))
	s, err := slack.SlashCommandParse(r)
	if err != nil {
		return Command{}, fmt.Errorf("parsing slash command: %w", err)
	}
	if s.Command == "" || s.UserID == "" {
		return Command{}, fmt.Errorf("parsing slash command: command and user_id are required")
	}
	return FromSlash(s), nil
}
