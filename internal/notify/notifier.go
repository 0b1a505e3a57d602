// Package notify delivers loud environment alerts over webhook, email and log file.
package notify

import (
	"fmt"
	"sync"

	"github.com/oszuidwest/zwfm-soundmeter/internal/audio"
	"github.com/oszuidwest/zwfm-soundmeter/internal/config"
	"github.com/oszuidwest/zwfm-soundmeter/internal/util"
)

// LoudNotifier manages notifications for loud detection events.
// Each channel fires at most once per alert period.
type LoudNotifier struct {
	cfg *config.Config

	// mu protects the notification state fields below
	mu sync.Mutex

	webhookSent bool
	emailSent   bool
	logSent     bool

	graphClient *GraphClient

	pending sync.WaitGroup
}

// NewLoudNotifier returns a LoudNotifier configured with the given config.
func NewLoudNotifier(cfg *config.Config) *LoudNotifier {
	return &LoudNotifier{cfg: cfg}
}

// InvalidateGraphClient clears the cached Graph client.
// Call this when Graph configuration changes.
func (n *LoudNotifier) InvalidateGraphClient() {
	n.mu.Lock()
	n.graphClient = nil
	n.mu.Unlock()
}

// getOrCreateGraphClient returns the cached Graph client, creating it if needed.
func (n *LoudNotifier) getOrCreateGraphClient(cfg *GraphConfig) (*GraphClient, error) {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.graphClient != nil {
		return n.graphClient, nil
	}

	client, err := NewGraphClient(cfg)
	if err != nil {
		return nil, err
	}
	n.graphClient = client
	return client, nil
}

// HandleEvent processes a loud event and triggers notifications.
func (n *LoudNotifier) HandleEvent(event audio.LoudEvent) {
	if event.JustEntered {
		n.handleLoudStart(event.Score)
	}
	if event.JustRecovered {
		n.handleLoudEnd(event.TotalDurationMs, event.Score)
	}
}

// Wait blocks until all notifications in flight have finished.
func (n *LoudNotifier) Wait() {
	n.pending.Wait()
}

// handleLoudStart triggers notifications when an alert is first confirmed.
func (n *LoudNotifier) handleLoudStart(score float64) {
	cfg := n.cfg.Snapshot()

	n.trySend(&n.webhookSent, cfg.HasWebhook(), channelWebhook, func() error {
		return SendLoudWebhook(cfg.WebhookURL, cfg.StationName, score, cfg.LoudThreshold)
	})
	n.trySend(&n.emailSent, cfg.HasGraph(), channelEmail, func() error {
		subject, body := loudEmail(cfg.StationName, score, cfg.LoudThreshold)
		return n.sendEmail(buildGraphConfig(&cfg), subject, body)
	})
	n.trySend(&n.logSent, cfg.HasLogPath(), channelLog, func() error {
		return LogLoudStart(cfg.LogPath, score, cfg.LoudThreshold)
	})
}

// trySend starts sender in the background if the condition is met and the
// channel has not fired yet this period.
func (n *LoudNotifier) trySend(sent *bool, condition bool, channel string, sender func() error) {
	n.mu.Lock()
	shouldSend := !*sent && condition
	if shouldSend {
		*sent = true
	}
	n.mu.Unlock()
	if shouldSend {
		n.dispatch(channel, EventLoudDetected, sender)
	}
}

// dispatch sends in the background; Wait joins it.
func (n *LoudNotifier) dispatch(channel, event string, sender func() error) {
	n.pending.Go(func() {
		_ = util.LogNotifyResult(sender, channel, "event", event)
	})
}

// handleLoudEnd sends recovery notifications on the channels that announced the alert.
func (n *LoudNotifier) handleLoudEnd(totalDurationMs int64, score float64) {
	cfg := n.cfg.Snapshot()

	n.mu.Lock()
	sendWebhook, sendEmail, sendLog := n.webhookSent, n.emailSent, n.logSent
	n.webhookSent, n.emailSent, n.logSent = false, false, false
	n.mu.Unlock()

	if sendWebhook {
		n.dispatch(channelWebhook, EventLoudRecovered, func() error {
			return SendRecoveryWebhook(cfg.WebhookURL, cfg.StationName, totalDurationMs, score, cfg.LoudThreshold)
		})
	}
	if sendEmail {
		n.dispatch(channelEmail, EventLoudRecovered, func() error {
			subject, body := recoveryEmail(cfg.StationName, totalDurationMs, score, cfg.LoudThreshold)
			return n.sendEmail(buildGraphConfig(&cfg), subject, body)
		})
	}
	if sendLog {
		n.dispatch(channelLog, EventLoudRecovered, func() error {
			return LogLoudEnd(cfg.LogPath, totalDurationMs, score, cfg.LoudThreshold)
		})
	}
}

// Reset clears the notification state.
func (n *LoudNotifier) Reset() {
	n.mu.Lock()
	n.webhookSent = false
	n.emailSent = false
	n.logSent = false
	n.mu.Unlock()
}

// BuildGraphConfig creates a GraphConfig from the config snapshot.
//
//nolint:gocritic // hugeParam: copy is acceptable for infrequent notification events
func BuildGraphConfig(cfg config.Snapshot) *GraphConfig {
	return buildGraphConfig(&cfg)
}

func buildGraphConfig(cfg *config.Snapshot) *GraphConfig {
	return &GraphConfig{
		TenantID:     cfg.GraphTenantID,
		ClientID:     cfg.GraphClientID,
		ClientSecret: cfg.GraphClientSecret,
		FromAddress:  cfg.GraphFromAddress,
		Recipients:   cfg.GraphRecipients,
	}
}

// sendEmail sends an alert email with the cached Graph client.
func (n *LoudNotifier) sendEmail(cfg *GraphConfig, subject, body string) error {
	if !IsConfigured(cfg) {
		return nil
	}

	client, err := n.getOrCreateGraphClient(cfg)
	if err != nil {
		return util.WrapError("create Graph client", err)
	}

	recipients := ParseRecipients(cfg.Recipients)
	if len(recipients) == 0 {
		return fmt.Errorf("no valid recipients")
	}

	if err := client.SendMail(recipients, subject, body); err != nil {
		return util.WrapError("send email via Graph", err)
	}
	return nil
}
