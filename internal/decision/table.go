// internal/decision/table.go
package decision

import (
	"embed"
	"encoding/json"
	"fmt"
	"os"
)

const (
	HitPolicyFirst = "first"

	defaultTableFile = "tables/unpaid-leave-assistance-2025.json"
)

//go:embed tables/*.json
var tables embed.FS

// Table is a first-hit decision table. Rule conditions and derived fields are CEL
// expressions over the variable `input`.
type Table struct {
	Name        string            `json:"name"`
	Version     string            `json:"version"`
	HitPolicy   string            `json:"hitPolicy"`
	InputSchema json.RawMessage   `json:"inputSchema"`
	Derived     map[string]string `json:"derived,omitempty"`
	Rules       []Rule            `json:"rules"`
}

type Rule struct {
	ID          string                 `json:"id"`
	Description string                 `json:"description,omitempty"`
	When        string                 `json:"when"`
	Output      map[string]interface{} `json:"output"`
}

// Load parses a table and checks its structure. Expressions are compiled later by NewEngine.
func Load(raw []byte) (*Table, error) {
	return load("inline", raw)
}

func LoadFile(path string) (*Table, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, &LoadError{Source: path, Err: err}
	}
	return load(path, raw)
}

// Default returns the bundled unpaid leave assistance table.
func Default() (*Table, error) {
	raw, err := tables.ReadFile(defaultTableFile)
	if err != nil {
		return nil, &LoadError{Source: defaultTableFile, Err: err}
	}
	return load(defaultTableFile, raw)
}

// DefaultRaw returns the bundled table as stored.
func DefaultRaw() []byte {
	raw, _ := tables.ReadFile(defaultTableFile)
	return raw
}

func load(source string, raw []byte) (*Table, error) {
	var t Table
	if err := json.Unmarshal(raw, &t); err != nil {
		return nil, &LoadError{Source: source, Err: fmt.Errorf("parse json: %w", err)}
	}
	if err := t.check(); err != nil {
		return nil, &LoadError{Source: source, Err: err}
	}
	return &t, nil
}

func (t *Table) check() error {
	if t.HitPolicy == "" {
		t.HitPolicy = HitPolicyFirst
	}
	if t.HitPolicy != HitPolicyFirst {
		return fmt.Errorf("unsupported hit policy %q", t.HitPolicy)
	}
	if len(t.Rules) == 0 {
		return fmt.Errorf("table has no rules")
	}

	seen := make(map[string]bool, len(t.Rules))
	for i, r := range t.Rules {
		if r.ID == "" {
			return fmt.Errorf("rule %d has no id", i)
		}
		if seen[r.ID] {
			return fmt.Errorf("duplicate rule id %q", r.ID)
		}
		seen[r.ID] = true
		if r.When == "" {
			return fmt.Errorf("rule %q has no condition", r.ID)
		}
		if r.Output == nil {
			return fmt.Errorf("rule %q has no output", r.ID)
		}
	}

	for name := range t.Derived {
		if name == "output" || name == "input" {
			return fmt.Errorf("derived field %q shadows a result field", name)
		}
	}
	return nil
}
