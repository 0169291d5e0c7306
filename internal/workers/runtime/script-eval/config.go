// internal/workers/runtime/script-eval/config.go
package scripteval

import "time"

type Config struct {
	Timeout time.Duration
	// Builtins are the expr builtin functions scripts may call. Everything
	// else, including IO, is unavailable.
	Builtins []string
}

func LoadConfig() *Config {
	return &Config{
		Timeout: 5 * time.Second,
		Builtins: []string{
			"int", "float", "string", "len", "abs", "max", "min",
			"ceil", "floor", "round", "lower", "upper", "trim",
			"split", "join", "hasPrefix", "hasSuffix", "now", "duration",
		},
	}
}
