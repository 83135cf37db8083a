package chat

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/slack-go/slack"
)

// Notifier delivers messages to Slack.
type Notifier struct {
	api        *slack.Client
	httpClient *http.Client
}

// NewNotifier creates a notifier for the bot token. Extra options are passed
// to slack.New.
func NewNotifier(botToken string, opts ...slack.Option) *Notifier {
	httpClient := &http.Client{Timeout: 10 * time.Second}
	opts = append([]slack.Option{slack.OptionHTTPClient(httpClient)}, opts...)
	return &Notifier{
		api:        slack.New(botToken, opts...),
		httpClient: httpClient,
	}
}

// Respond posts msg to a slash command's response_url.
func (n *Notifier) Respond(ctx context.Context, responseURL string, msg slack.Msg) error {
	if responseURL == "" {
		return fmt.Errorf("response url is empty")
	}
	blocks := msg.Blocks
	err := slack.PostWebhookCustomHTTPContext(ctx, responseURL, n.httpClient, &slack.WebhookMessage{
		Text:         msg.Text,
		Blocks:       &blocks,
		ResponseType: msg.ResponseType,
	})
	if err != nil {
		return fmt.Errorf("responding to slash command: %w", err)
	}
	return nil
}

// Post sends msg to a channel and returns the message timestamp.
func (n *Notifier) Post(ctx context.Context, channelID string, msg slack.Msg) (string, error) {
	_, ts, err := n.api.PostMessageContext(ctx, channelID,
		slack.MsgOptionText(msg.Text, false),
		slack.MsgOptionBlocks(msg.Blocks.BlockSet...),
	)
	if err != nil {
		return "", fmt.Errorf("posting to %s: %w", channelID, err)
	}
	return ts, nil
}

// Ping verifies the bot token with auth.test.
func (n *Notifier) Ping(ctx context.Context) error {
	if _, err := n.api.AuthTestContext(ctx); err != nil {
		return fmt.Errorf("slack auth test: %w", err)
	}
	return nil
}
