// pkg/plan/engine.go
package plan

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/David-Botos/snowplan/pkg/config"
	"github.com/David-Botos/snowplan/pkg/ddl"
	"github.com/David-Botos/snowplan/pkg/model"
	"github.com/David-Botos/snowplan/pkg/state"
)

// PlanValidator stamps validation verdicts onto plan items. The state
// snapshot is passed alongside because deletion checks trace lineage
// against pre-deletion state.
type PlanValidator interface {
	Validate(ctx context.Context, p *model.Plan, objects map[string]model.ObjectRecord) error
}

// Engine assembles a reconciliation plan from the definitions tree and
// the state snapshot, validates it, and persists it for apply.
type Engine struct {
	store     *state.Store
	validator PlanValidator
	policies  model.PolicyTable
	logger    *zap.Logger
	sqlRoot   string
	planPath  string
}

// NewEngine creates a plan engine. A nil validator skips the live
// validation pass, leaving verdicts empty.
func NewEngine(store *state.Store, validator PlanValidator, policies model.PolicyTable, cfg *config.Config) *Engine {
	return &Engine{
		store:     store,
		validator: validator,
		policies:  policies,
		logger:    zap.L().Named("plan-engine"),
		sqlRoot:   cfg.SQLPath,
		planPath:  cfg.PlanPath,
	}
}

// Generate classifies every desired definition against the state
// snapshot, validates the result, and writes the plan file. The plan is
// written even when items carry error or warning verdicts; the operator
// decides whether to apply it.
func (e *Engine) Generate(ctx context.Context) (*model.Plan, error) {
	if err := e.store.Load(); err != nil {
		return nil, err
	}
	objects := e.store.Objects()

	desired, err := e.loadDesired()
	if err != nil {
		return nil, err
	}

	p := model.NewPlan()
	seen := make(map[string]bool, len(desired))

	for _, d := range desired {
		key := d.Key()
		seen[key] = true

		record, tracked := objects[key]
		if !tracked {
			p.NewObjects = append(p.NewObjects, model.NewObject{DesiredObject: d})
			continue
		}
		if record.Hash == d.Hash {
			continue
		}

		modified := model.ModifiedObject{DesiredObject: d, CurrentDDL: record.DDL}
		if e.policies.PreferAlter(d.ObjectType) {
			e.attachDiff(&modified)
		}
		p.ModifiedObjects = append(p.ModifiedObjects, modified)
	}

	for _, key := range sortedMissing(objects, seen) {
		p.DeletedObjects = append(p.DeletedObjects, model.DeletedObject{ObjectRecord: objects[key]})
	}

	if e.validator != nil {
		if err := e.validator.Validate(ctx, p, objects); err != nil {
			return nil, err
		}
	} else {
		e.logger.Debug("No validator configured, verdicts left empty")
	}

	if err := Write(e.planPath, p); err != nil {
		return nil, err
	}

	adds, mods, drops := p.Counts()
	e.logger.Info("Plan written",
		zap.String("path", e.planPath),
		zap.Int("add", adds),
		zap.Int("modify", mods),
		zap.Int("drop", drops))
	return p, nil
}

// loadDesired walks the definitions root collecting every .sql file in
// lexical order.
func (e *Engine) loadDesired() ([]model.DesiredObject, error) {
	var desired []model.DesiredObject

	err := filepath.WalkDir(e.sqlRoot, func(path string, entry fs.DirEntry, err error) error {
		if err != nil {
			if os.IsNotExist(err) && path == e.sqlRoot {
				return fs.SkipAll
			}
			return err
		}
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".sql") {
			return nil
		}

		d, err := e.desiredFromPath(path)
		if err != nil {
			return err
		}
		desired = append(desired, d)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return desired, nil
}

// desiredFromPath derives an object's identity from its location under
// the definitions root:
//
//	{account}/databases/{database}/schemas/{schema}/{type}/{name}.sql
//
// A path that does not match this shape is a configuration fault that
// aborts the run, never a silent skip.
func (e *Engine) desiredFromPath(path string) (model.DesiredObject, error) {
	rel, err := filepath.Rel(e.sqlRoot, path)
	if err != nil {
		return model.DesiredObject{}, model.NewFault(model.KindConfiguration, err).WithObject(path)
	}

	parts := strings.Split(filepath.ToSlash(rel), "/")
	if len(parts) != 7 || parts[1] != "databases" || parts[3] != "schemas" {
		return model.DesiredObject{}, model.NewFault(model.KindConfiguration,
			fmt.Errorf("definition path %s does not match {account}/databases/{database}/schemas/{schema}/{type}/{name}.sql", rel))
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return model.DesiredObject{}, fmt.Errorf("read definition %s: %w", path, err)
	}

	database := strings.ToLower(parts[2])
	schema := strings.ToLower(parts[4])
	objectType := strings.ToLower(parts[5])
	name := strings.ToLower(strings.TrimSuffix(parts[6], ".sql"))
	text := string(raw)

	return model.DesiredObject{
		Database:   database,
		Schema:     schema,
		ObjectType: objectType,
		Name:       name,
		FQN:        fmt.Sprintf("%s.%s.%s", database, schema, name),
		FilePath:   path,
		DDL:        text,
		Hash:       ddl.HashDDL(text),
	}, nil
}

// attachDiff runs the structural differ for alter-preferring types. A
// parse failure degrades the item to replacement, never aborts the plan.
func (e *Engine) attachDiff(modified *model.ModifiedObject) {
	current, err := ddl.ParseColumns(modified.CurrentDDL)
	var target map[string]string
	if err == nil {
		target, err = ddl.ParseColumns(modified.DDL)
	}
	if err != nil {
		modified.AlterReason = fmt.Sprintf("Failed to diff: %v", err)
		e.logger.Debug("Structural diff failed",
			zap.String("fqn", modified.FQN),
			zap.Error(err))
		return
	}

	diff := ddl.DiffColumns(current, target)
	modified.AlterSQL = ddl.GenerateAlter(modified.FQN, diff)

	switch {
	case len(diff.Dropped) > 0:
		modified.AlterReason = "Drop column detected"
	case len(diff.Modified) > 0:
		modified.AlterReason = "Column type change detected"
	default:
		modified.AlterPossible = true
	}
}

func sortedMissing(objects map[string]model.ObjectRecord, seen map[string]bool) []string {
	var missing []string
	for key := range objects {
		if !seen[key] {
			missing = append(missing, key)
		}
	}
	sort.Strings(missing)
	return missing
}
