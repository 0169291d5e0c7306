// internal/workers/infrastructure/ansible-playbook/config.go
package ansibleplaybook

import "time"

type Config struct {
	Binary       string
	PlaybookDir  string
	InventoryDir string
	Timeout      time.Duration
}

func LoadConfig() *Config {
	return &Config{
		Binary:  "ansible-playbook",
		Timeout: 20 * time.Minute,
	}
}
