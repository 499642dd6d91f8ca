package authz

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPolicy(t *testing.T) {
	e, err := NewEnforcer()
	require.NoError(t, err)

	cases := []struct {
		role, path, method string
		want               bool
	}{
		{"CLIENT", "/api/applications", "GET", true},
		{"CLIENT", "/api/applications/42", "GET", true},
		{"CLIENT", "/api/applications/:id/messages", "POST", true},
		{"CLIENT", "/api/applications/:id/messages/read", "PATCH", true},
		{"CLIENT", "/api/applications/:id/messages", "DELETE", false},
		{"CLIENT", "/api/applications/:id/status", "PATCH", false},
		{"MANAGER", "/api/applications/:id/status", "PATCH", true},
		{"MANAGER", "/api/applications/7/status", "PATCH", true},
		{"MANAGER", "/api/dashboard", "GET", true},
		{"ADMIN", "/api/applications/:id/status", "PATCH", true},
		{"ADMIN", "/api/applications/:id/messages", "GET", true},
		{"GUEST", "/api/applications", "GET", false},
		{"MANAGER", "/api/applications/:id/status", "GETPATCH", false},
	}
	for _, tc := range cases {
		ok, err := e.Enforce(tc.role, tc.path, tc.method)
		require.NoError(t, err)
		assert.Equal(t, tc.want, ok, "%s %s %s", tc.role, tc.method, tc.path)
	}
}
