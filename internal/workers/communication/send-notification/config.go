// internal/workers/communication/send-notification/config.go
package sendnotification

import "time"

type Config struct {
	DefaultChannel string
	EmailEnabled   bool
	SMSEnabled     bool
	FromEmail      string
	AWSRegion      string
	WebhookURL     string
	Timeout        time.Duration
}

func LoadConfig() *Config {
	return &Config{
		DefaultChannel: ChannelChat,
		AWSRegion:      "us-east-1",
		Timeout:        30 * time.Second,
	}
}
