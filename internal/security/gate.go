// Package security holds the authorization gate applied to chat commands
// before they reach the engine.
package security

import (
	"strings"

	"infra-chatops/internal/common/config"
	apperrors "infra-chatops/internal/common/errors"
)

// Gate decides whether a user may run a command. An empty authorized list
// admits everyone. Restricted intents need an admin; approval-required
// intents are refused with an approval message for every user, admins
// included.
type Gate struct {
	authorized map[string]bool
	admins     map[string]bool
	restricted map[string]bool
	approval   map[string]bool
}

func NewGate(cfg config.SecurityConfig) *Gate {
	return &Gate{
		authorized: set(cfg.AuthorizedUsers),
		admins:     set(cfg.AdminUsers),
		restricted: set(cfg.RestrictedCommands),
		approval:   set(cfg.ApprovalRequired),
	}
}

func set(values []string) map[string]bool {
	out := make(map[string]bool, len(values))
	for _, v := range values {
		if v = strings.ToLower(strings.TrimSpace(v)); v != "" {
			out[v] = true
		}
	}
	return out
}

// AuthorizeUser runs before the text is interpreted.
func (g *Gate) AuthorizeUser(userID string) error {
	if len(g.authorized) == 0 || g.authorized[strings.ToLower(userID)] {
		return nil
	}
	return apperrors.NewAccessDeniedError(userID, "user is not in the authorized users list")
}

// AuthorizeIntent runs once the intent is known.
func (g *Gate) AuthorizeIntent(userID, intent string) error {
	intent = strings.ToLower(intent)
	if g.restricted[intent] && !g.admins[strings.ToLower(userID)] {
		return apperrors.NewAccessDeniedError(userID, "command '"+intent+"' is restricted to admins").
			WithMetadata("intent", intent)
	}
	if g.approval[intent] {
		return apperrors.NewApprovalRequiredError(intent).WithMetadata("userId", userID)
	}
	return nil
}

func (g *Gate) IsAdmin(userID string) bool { return g.admins[strings.ToLower(userID)] }
