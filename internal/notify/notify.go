// Package notify posts job-lifecycle notifications to Slack. It is a no-op
// when no bot token is configured (ported idiom: a disabled notifier that
// logs at debug level rather than failing the caller).
package notify

import (
	"context"
	"fmt"
	"log/slog"

	goslack "github.com/slack-go/slack"
)

// Notifier sends job-lifecycle messages to a single configured channel.
type Notifier struct {
	client  *goslack.Client
	channel string
	logger  *slog.Logger
}

// New creates a Notifier. If botToken is empty the notifier is a no-op.
func New(botToken, channel string, logger *slog.Logger) *Notifier {
	var client *goslack.Client
	if botToken != "" {
		client = goslack.New(botToken)
	}
	return &Notifier{client: client, channel: channel, logger: logger}
}

// IsEnabled reports whether the notifier has a usable Slack client.
func (n *Notifier) IsEnabled() bool {
	return n != nil && n.client != nil && n.channel != ""
}

func (n *Notifier) post(ctx context.Context, text string) {
	if !n.IsEnabled() {
		if n != nil {
			n.logger.Debug("slack notifier disabled, skipping job notification", "text", text)
		}
		return
	}
	if _, _, err := n.client.PostMessageContext(ctx, n.channel, goslack.MsgOptionText(text, false)); err != nil {
		n.logger.Warn("posting job notification to slack", "error", err)
	}
}

// NotifyJobQueuedForLock reports that a job is waiting on a scope lock.
func (n *Notifier) NotifyJobQueuedForLock(ctx context.Context, tenantID, instanceID, jobID string) {
	n.post(ctx, fmt.Sprintf(":hourglass: job %s (%s/%s) queued for scope lock", jobID, tenantID, instanceID))
}

// NotifyJobPromoted reports that a job was promoted from queued to running.
func (n *Notifier) NotifyJobPromoted(ctx context.Context, tenantID, instanceID, jobID string) {
	n.post(ctx, fmt.Sprintf(":arrow_forward: job %s (%s/%s) promoted to running", jobID, tenantID, instanceID))
}

// NotifyJobPaused reports that a running job paused.
func (n *Notifier) NotifyJobPaused(ctx context.Context, tenantID, instanceID, jobID, reasonCode string) {
	n.post(ctx, fmt.Sprintf(":pause_button: job %s (%s/%s) paused: %s", jobID, tenantID, instanceID, reasonCode))
}

// NotifyJobFailed reports that a job reached a failed terminal state.
func (n *Notifier) NotifyJobFailed(ctx context.Context, tenantID, instanceID, jobID, reasonCode string) {
	n.post(ctx, fmt.Sprintf(":x: job %s (%s/%s) failed: %s", jobID, tenantID, instanceID, reasonCode))
}

// NotifyEvidenceExported reports a successful evidence export.
func (n *Notifier) NotifyEvidenceExported(ctx context.Context, tenantID, instanceID, jobID, evidenceID string) {
	n.post(ctx, fmt.Sprintf(":page_facing_up: evidence %s exported for job %s (%s/%s)", evidenceID, jobID, tenantID, instanceID))
}

// NotifyEvidenceVerificationFailed reports a failed evidence verification.
func (n *Notifier) NotifyEvidenceVerificationFailed(ctx context.Context, tenantID, instanceID, evidenceID, reasonCode string) {
	n.post(ctx, fmt.Sprintf(":rotating_light: evidence %s (%s/%s) failed verification: %s", evidenceID, tenantID, instanceID, reasonCode))
}
