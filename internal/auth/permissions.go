package auth

import (
	"encoding/json"
	"fmt"
)

// DefaultPermissions are granted when the auth service returns no
// permission information for a valid token.
func DefaultPermissions() []string {
	return []string{"read:tools", "read:resources", "execute:mcp"}
}

// parsePermissions normalizes the permission payload returned by the auth
// service. Three shapes are accepted: a plain list of permission strings, an
// object with "scopes" and "resources" arrays that are cross-multiplied into
// scope:resource pairs, and a JSON string encoding either of the above.
func parsePermissions(raw interface{}) ([]string, error) {
	switch v := raw.(type) {
	case nil:
		return DefaultPermissions(), nil
	case []interface{}:
		perms := make([]string, 0, len(v))
		for _, item := range v {
			s, ok := item.(string)
			if !ok {
				return nil, fmt.Errorf("permission list contains non-string element %T", item)
			}
			perms = append(perms, s)
		}
		return perms, nil
	case map[string]interface{}:
		scopes, err := stringSlice(v["scopes"])
		if err != nil {
			return nil, fmt.Errorf("invalid scopes: %w", err)
		}
		resources, err := stringSlice(v["resources"])
		if err != nil {
			return nil, fmt.Errorf("invalid resources: %w", err)
		}
		return expandScopeResources(scopes, resources), nil
	case string:
		var decoded interface{}
		if err := json.Unmarshal([]byte(v), &decoded); err != nil {
			return nil, fmt.Errorf("permission string is not valid JSON: %w", err)
		}
		if _, isString := decoded.(string); isString {
			return nil, fmt.Errorf("permission string decodes to another string")
		}
		return parsePermissions(decoded)
	default:
		return nil, fmt.Errorf("unsupported permission payload type %T", raw)
	}
}

// expandScopeResources cross-multiplies scopes and resources into
// scope:resource permission strings. Empty inputs yield an empty list.
func expandScopeResources(scopes, resources []string) []string {
	perms := make([]string, 0, len(scopes)*len(resources))
	for _, scope := range scopes {
		for _, resource := range resources {
			perms = append(perms, scope+":"+resource)
		}
	}
	return perms
}

func stringSlice(raw interface{}) ([]string, error) {
	if raw == nil {
		return nil, nil
	}
	list, ok := raw.([]interface{})
	if !ok {
		return nil, fmt.Errorf("expected array, got %T", raw)
	}
	out := make([]string, 0, len(list))
	for _, item := range list {
		s, ok := item.(string)
		if !ok {
			return nil, fmt.Errorf("expected string element, got %T", item)
		}
		out = append(out, s)
	}
	return out, nil
}
