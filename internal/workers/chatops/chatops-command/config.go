package chatopscommand

import "time"

type Config struct {
	// Timeout bounds how long a job waits for the workflow to finish.
	Timeout       time.Duration
	WaitForResult bool
}

func LoadConfig() *Config {
	return &Config{
		Timeout:       5 * time.Minute,
		WaitForResult: true,
	}
}
