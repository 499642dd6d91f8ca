// Package authz holds the role-based route policy enforced by casbin.
package authz

import (
	"fmt"

	"github.com/casbin/casbin/v2"
	casbinmodel "github.com/casbin/casbin/v2/model"

	"github.com/iliyamo/medconcierge/internal/model"
)

const modelText = `
[request_definition]
r = sub, obj, act

[policy_definition]
p = sub, obj, act

[role_definition]
g = _, _

[policy_effect]
e = some(where (p.eft == allow))

[matchers]
m = g(r.sub, p.sub) && keyMatch2(r.obj, p.obj) && regexMatch(r.act, p.act)
`

// Staff roles inherit every CLIENT permission; ADMIN inherits MANAGER.
var grouping = [][]string{
	{string(model.RoleManager), string(model.RoleClient)},
	{string(model.RoleAdmin), string(model.RoleManager)},
}

// Routes that only need an authenticated session are not listed; the JWT
// middleware already guards them. Row-level ownership is checked by the
// services.
var policies = [][]string{
	{string(model.RoleClient), "/api/auth/me", "^GET$"},
	{string(model.RoleClient), "/api/auth/logout", "^POST$"},
	{string(model.RoleClient), "/api/dashboard", "^GET$"},
	{string(model.RoleClient), "/api/applications", "^GET$"},
	{string(model.RoleClient), "/api/applications/:id", "^GET$"},
	{string(model.RoleClient), "/api/applications/:id/messages", "^(GET|POST)$"},
	{string(model.RoleClient), "/api/applications/:id/messages/read", "^PATCH$"},
	{string(model.RoleManager), "/api/applications/:id/status", "^PATCH$"},
}

// NewEnforcer builds an in-memory enforcer with the built-in policy.
func NewEnforcer() (*casbin.Enforcer, error) {
	m, err := casbinmodel.NewModelFromString(modelText)
	if err != nil {
		return nil, fmt.Errorf("authz model: %w", err)
	}
	e, err := casbin.NewEnforcer(m)
	if err != nil {
		return nil, fmt.Errorf("authz enforcer: %w", err)
	}
	if _, err := e.AddGroupingPolicies(grouping); err != nil {
		return nil, fmt.Errorf("authz roles: %w", err)
	}
	if _, err := e.AddPolicies(policies); err != nil {
		return nil, fmt.Errorf("authz policies: %w", err)
	}
	return e, nil
}
