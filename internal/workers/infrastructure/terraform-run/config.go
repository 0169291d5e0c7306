// internal/workers/infrastructure/terraform-run/config.go
package terraformrun

import "time"

type Config struct {
	Binary     string
	WorkingDir string
	Timeout    time.Duration
}

func LoadConfig() *Config {
	return &Config{
		Binary:  "terraform",
		Timeout: 15 * time.Minute,
	}
}
