// internal/workers/cicd/jenkins-job/config.go
package jenkinsjob

import "time"

type Config struct {
	URL          string
	Username     string
	APIToken     string
	PollInterval time.Duration
	QueueTimeout time.Duration
	BuildTimeout time.Duration
	MaxRetries   int
	RetryBackoff time.Duration
	Timeout      time.Duration
}

func LoadConfig() *Config {
	return &Config{
		PollInterval: 5 * time.Second,
		QueueTimeout: 30 * time.Second,
		BuildTimeout: 5 * time.Minute,
		MaxRetries:   3,
		RetryBackoff: 500 * time.Millisecond,
		Timeout:      10 * time.Minute,
	}
}
