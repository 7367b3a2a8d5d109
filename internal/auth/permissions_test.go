package auth

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParsePermissionsList(t *testing.T) {
	perms, err := parsePermissions([]interface{}{"read:tools", "execute:mcp"})
	require.NoError(t, err)
	assert.Equal(t, []string{"read:tools", "execute:mcp"}, perms)
}

func TestParsePermissionsScopesMap(t *testing.T) {
	raw := map[string]interface{}{
		"scopes":    []interface{}{"read", "write"},
		"resources": []interface{}{"tools", "resources"},
	}
	perms, err := parsePermissions(raw)
	require.NoError(t, err)
	assert.Equal(t, []string{"read:tools", "read:resources", "write:tools", "write:resources"}, perms)
}

func TestParsePermissionsJSONString(t *testing.T) {
	perms, err := parsePermissions(`["read:tools","execute:mcp"]`)
	require.NoError(t, err)
	assert.Equal(t, []string{"read:tools", "execute:mcp"}, perms)

	perms, err = parsePermissions(`{"scopes":["read"],"resources":["tools"]}`)
	require.NoError(t, err)
	assert.Equal(t, []string{"read:tools"}, perms)
}

func TestParsePermissionsNilDefaults(t *testing.T) {
	perms, err := parsePermissions(nil)
	require.NoError(t, err)
	assert.Equal(t, DefaultPermissions(), perms)
}

func TestParsePermissionsInvalid(t *testing.T) {
	_, err := parsePermissions(42)
	assert.Error(t, err)

	_, err = parsePermissions([]interface{}{"ok", 7})
	assert.Error(t, err)

	_, err = parsePermissions("not json")
	assert.Error(t, err)

	_, err = parsePermissions(map[string]interface{}{"scopes": "read"})
	assert.Error(t, err)
}

func TestExpandScopeResourcesEmpty(t *testing.T) {
	assert.Empty(t, expandScopeResources(nil, nil))
	assert.Empty(t, expandScopeResources([]string{"read"}, nil))
	assert.Empty(t, expandScopeResources(nil, []string{"tools"}))
}
