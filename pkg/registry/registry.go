// pkg/registry/registry.go
package registry

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"os"
)

//go:embed tools.json
var defaultTools []byte

func LoadRegistry(path string) (*ToolRegistry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Parse(data)
}

func Parse(data []byte) (*ToolRegistry, error) {
	var reg ToolRegistry
	if err := json.Unmarshal(data, &reg); err != nil {
		return nil, err
	}
	if err := reg.Check(); err != nil {
		return nil, err
	}
	return &reg, nil
}

// Default returns the registry bundled with the binary.
func Default() *ToolRegistry {
	reg, err := Parse(defaultTools)
	if err != nil {
		panic(fmt.Sprintf("bundled tool registry is invalid: %v", err))
	}
	return reg
}

func (r *ToolRegistry) Find(name string) (*Tool, bool) {
	for i := range r.Tools {
		if r.Tools[i].Name == name {
			return &r.Tools[i], true
		}
	}
	return nil, false
}

// Check reports the first structural problem in the registry.
func (r *ToolRegistry) Check() error {
	if r.Server.Name == "" {
		return fmt.Errorf("server name is required")
	}
	if len(r.Tools) == 0 {
		return fmt.Errorf("registry declares no tools")
	}

	seen := make(map[string]bool, len(r.Tools))
	for i, t := range r.Tools {
		if t.Name == "" {
			return fmt.Errorf("tool %d has no name", i)
		}
		if seen[t.Name] {
			return fmt.Errorf("duplicate tool name %q", t.Name)
		}
		seen[t.Name] = true

		if t.Description == "" {
			return fmt.Errorf("tool %q has no description", t.Name)
		}
		if t.InputSchema == nil || t.InputSchema["type"] != "object" {
			return fmt.Errorf("tool %q input schema must be an object schema", t.Name)
		}
	}
	return nil
}
