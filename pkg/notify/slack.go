package notify

import (
	"context"
	"fmt"

	"github.com/slack-go/slack"

	"github.com/ShriramNarkhede/Email-OneBox/pkg/email"
	"github.com/ShriramNarkhede/Email-OneBox/pkg/logging"
)

const slackPreviewLimit = 200

// SlackNotifier posts interested-lead alerts to a Slack incoming webhook
// using Block Kit formatting.
type SlackNotifier struct {
	webhookURL string
}

// NewSlackNotifier builds a notifier for the given incoming-webhook URL.
func NewSlackNotifier(webhookURL string) *SlackNotifier {
	return &SlackNotifier{webhookURL: webhookURL}
}

// Notify posts one alert. The body is bounded and stripped of control
// characters before it reaches the channel.
func (s *SlackNotifier) Notify(ctx context.Context, msg *email.Message) error {
	header := slack.NewHeaderBlock(
		slack.NewTextBlockObject(slack.PlainTextType, "New Interested Lead", false, false))

	fields := []*slack.TextBlockObject{
		slack.NewTextBlockObject(slack.MarkdownType, fmt.Sprintf("*From:*\n%s", msg.From), false, false),
		slack.NewTextBlockObject(slack.MarkdownType, fmt.Sprintf("*Subject:*\n%s", msg.Subject), false, false),
		slack.NewTextBlockObject(slack.MarkdownType, fmt.Sprintf("*Account:*\n%s", msg.Account), false, false),
		slack.NewTextBlockObject(slack.MarkdownType, fmt.Sprintf("*Date:*\n%s", msg.Date.Format("2006-01-02 15:04")), false, false),
	}
	details := slack.NewSectionBlock(nil, fields, nil)

	preview := slack.NewSectionBlock(
		slack.NewTextBlockObject(slack.MarkdownType,
			fmt.Sprintf("*Preview:*\n%s", logging.BoundAndClean(msg.Body, slackPreviewLimit)),
			false, false),
		nil, nil)

	payload := &slack.WebhookMessage{
		Blocks: &slack.Blocks{
			BlockSet: []slack.Block{header, details, preview},
		},
	}
	if err := slack.PostWebhookContext(ctx, s.webhookURL, payload); err != nil {
		return fmt.Errorf("posting slack notification for %s: %w", msg.ID, err)
	}
	return nil
}
