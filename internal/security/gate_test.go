package security

import (
	"testing"

	"infra-chatops/internal/common/config"
	apperrors "infra-chatops/internal/common/errors"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGate(t *testing.T) {
	g := NewGate(config.SecurityConfig{
		AuthorizedUsers:    []string{"U123", "u456", "admin1"},
		AdminUsers:         []string{"admin1"},
		RestrictedCommands: []string{"destroy", "Provision"},
		ApprovalRequired:   []string{"rollback"},
	})

	tests := []struct {
		name     string
		user     string
		intent   string
		wantCode apperrors.ErrorCode
	}{
		{"authorized user, open command", "u123", "deploy", ""},
		{"unknown user", "u999", "status", apperrors.ErrCodeAccessDenied},
		{"restricted command, regular user", "u456", "destroy", apperrors.ErrCodeAccessDenied},
		{"restricted command, admin", "admin1", "provision", ""},
		{"approval required, admin", "admin1", "rollback", apperrors.ErrCodeApprovalRequired},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := g.AuthorizeUser(tt.user)
			if err == nil {
				err = g.AuthorizeIntent(tt.user, tt.intent)
			}
			if tt.wantCode == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			stdErr := apperrors.AsStandardError(err)
			assert.Equal(t, tt.wantCode, stdErr.Code)
		})
	}

	assert.True(t, g.IsAdmin("ADMIN1"))
	assert.False(t, g.IsAdmin("u123"))
}

func TestGate_EmptyAllowListAdmitsEveryone(t *testing.T) {
	g := NewGate(config.SecurityConfig{})
	assert.NoError(t, g.AuthorizeUser("anyone"))
	assert.NoError(t, g.AuthorizeIntent("anyone", "destroy"))
}
