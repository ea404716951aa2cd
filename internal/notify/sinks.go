package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"go.uber.org/multierr"
	"sigs.k8s.io/controller-runtime/pkg/log"

	checkpointv1 "github.com/devsisters/checkpoint/api/v1"
)

// Notifier delivers rendered cron policy output to the policy's sinks.
type Notifier struct {
	Client *http.Client
}

// NewNotifier returns a notifier using the default HTTP client.
func NewNotifier() *Notifier {
	return &Notifier{Client: http.DefaultClient}
}

// Notify renders and delivers the output to every configured sink. Sinks are
// independent: one failing does not stop the others.
func (n *Notifier) Notify(ctx context.Context, policy *checkpointv1.CronPolicy, output map[string]any) error {
	l := log.FromContext(ctx).WithValues("cronpolicy", policy.Name)

	var errs error
	if wh := policy.Spec.Notifications.Webhook; wh != nil {
		body, err := Render(wh.Template, policy.Name, output)
		if err != nil {
			l.Error(err, "failed to render webhook template")
			errs = multierr.Append(errs, err)
		} else if err := n.post(ctx, wh.URL, []byte(body)); err != nil {
			l.Error(err, "failed to notify webhook")
			errs = multierr.Append(errs, err)
		}
	}
	if slack := policy.Spec.Notifications.Slack; slack != nil {
		text, err := Render(slack.Template, policy.Name, output)
		if err != nil {
			l.Error(err, "failed to render slack template")
			errs = multierr.Append(errs, err)
		} else {
			body, err := json.Marshal(map[string]string{"text": text})
			if err != nil {
				errs = multierr.Append(errs, err)
			} else if err := n.post(ctx, slack.WebhookURL, body); err != nil {
				l.Error(err, "failed to notify slack")
				errs = multierr.Append(errs, err)
			}
		}
	}
	return errs
}

func (n *Notifier) post(ctx context.Context, url string, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to build notification request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.Client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send notification: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("notification endpoint returned status %d", resp.StatusCode)
	}
	return nil
}
