// pkg/plan/file.go
package plan

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/David-Botos/snowplan/pkg/model"
)

// Write persists a plan as the durable artifact apply consumes.
func Write(path string, p *model.Plan) error {
	raw, err := json.MarshalIndent(p, "", "  ")
	if err != nil {
		return fmt.Errorf("encode plan: %w", err)
	}

	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create plan directory %s: %w", dir, err)
		}
	}
	if err := os.WriteFile(path, raw, 0o644); err != nil {
		return fmt.Errorf("write plan %s: %w", path, err)
	}
	return nil
}

// Read loads a previously persisted plan. Apply always goes through
// here rather than reusing an in-memory plan, keeping plan and apply as
// two independent phases.
func Read(path string) (*model.Plan, error) {
	raw, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, model.NewFault(model.KindConfiguration,
			fmt.Errorf("no plan file at %s, generate a plan first", path))
	}
	if err != nil {
		return nil, fmt.Errorf("read plan %s: %w", path, err)
	}

	var p model.Plan
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, fmt.Errorf("parse plan %s: %w", path, err)
	}
	return &p, nil
}
