package notify

import (
	"fmt"

	"github.com/oszuidwest/zwfm-soundmeter/internal/types"
	"github.com/oszuidwest/zwfm-soundmeter/internal/util"
)

// GraphConfig is the configuration for email notifications.
type GraphConfig = types.GraphConfig

// loudEmail returns the subject and body of a loud alert email.
func loudEmail(stationName string, score, threshold float64) (subject, body string) {
	subject = "[ALERT] Loud Environment - " + stationName
	body = fmt.Sprintf(
		"A loud environment was detected by the sound meter.\n\n"+
			"Score:     %.1f dB\n"+
			"Threshold: %.1f dB\n"+
			"Time:      %s\n\n"+
			"The alert stays active until the level drops below the threshold.",
		score, threshold, util.HumanTime(),
	)
	return subject, body
}

// recoveryEmail returns the subject and body of a recovery email.
func recoveryEmail(stationName string, durationMs int64, score, threshold float64) (subject, body string) {
	subject = "[OK] Sound Level Normal - " + stationName
	body = fmt.Sprintf(
		"The sound level is back below the threshold.\n\n"+
			"Score:       %.1f dB\n"+
			"Loud period: %s\n"+
			"Threshold:   %.1f dB\n"+
			"Time:        %s",
		score, util.FormatDuration(durationMs), threshold, util.HumanTime(),
	)
	return subject, body
}

// SendTestEmail sends a test email to verify email configuration.
func SendTestEmail(cfg *GraphConfig, stationName string) error {
	if err := ValidateConfig(cfg); err != nil {
		return fmt.Errorf("configuration error: %w", err)
	}

	client, err := NewGraphClient(cfg)
	if err != nil {
		return fmt.Errorf("create Graph client: %w", err)
	}
	return sendTestEmailWithClient(client, cfg, stationName)
}

func sendTestEmailWithClient(client *GraphClient, cfg *GraphConfig, stationName string) error {
	if err := client.ValidateAuth(); err != nil {
		return fmt.Errorf("authentication failed: %w", err)
	}

	subject := "[TEST] " + stationName
	body := fmt.Sprintf(
		"Test email from the %s.\n\n"+
			"Time: %s\n\n"+
			"Microsoft Graph configuration is working correctly.",
		AppName, util.HumanTime(),
	)

	if err := client.SendMail(ParseRecipients(cfg.Recipients), subject, body); err != nil {
		return fmt.Errorf("send email: %w", err)
	}
	return nil
}
