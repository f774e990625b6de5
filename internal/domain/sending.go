package domain

import "time"

// ESPType identifies the email service provider on either side of a message:
// the sender used to transmit it, or the webhook that reported on it.
type ESPType string

const (
	ESPSparkPost ESPType = "sparkpost"
	ESPSES       ESPType = "ses"
	ESPMailgun   ESPType = "mailgun"
	ESPSendGrid  ESPType = "sendgrid"
	ESPSMTP      ESPType = "smtp"
)

// SendResult is returned by a sender after handing a message to the ESP.
type SendResult struct {
	ProviderMessageID string    `json:"provider_message_id"`
	ESPType           ESPType   `json:"esp_type"`
	Accepted          int       `json:"accepted"`
	SentAt            time.Time `json:"sent_at"`
}
