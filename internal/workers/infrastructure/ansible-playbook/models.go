// internal/workers/infrastructure/ansible-playbook/models.go
package ansibleplaybook

type Input struct {
	Playbook  string            `json:"playbook"`
	Inventory string            `json:"inventory,omitempty"`
	ExtraVars map[string]string `json:"extra_vars,omitempty"`
	Limit     string            `json:"limit,omitempty"`
	Tags      string            `json:"tags,omitempty"`
	Check     bool              `json:"check,omitempty"`
}

// HostStats is one PLAY RECAP line.
type HostStats struct {
	Ok          int `json:"ok"`
	Changed     int `json:"changed"`
	Unreachable int `json:"unreachable"`
	Failed      int `json:"failed"`
	Skipped     int `json:"skipped"`
	Rescued     int `json:"rescued"`
	Ignored     int `json:"ignored"`
}

type Output struct {
	Playbook    string               `json:"playbook"`
	Hosts       map[string]HostStats `json:"hosts"`
	HostCount   int                  `json:"host_count"`
	Ok          int                  `json:"ok"`
	Changed     int                  `json:"changed"`
	Unreachable int                  `json:"unreachable"`
	Failed      int                  `json:"failed"`
	Check       bool                 `json:"check"`
	ExitCode    int                  `json:"exit_code"`
}
