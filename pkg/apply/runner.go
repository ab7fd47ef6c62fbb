// pkg/apply/runner.go
package apply

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/David-Botos/snowplan/pkg/config"
	"github.com/David-Botos/snowplan/pkg/ddl"
	"github.com/David-Botos/snowplan/pkg/model"
	"github.com/David-Botos/snowplan/pkg/plan"
)

// Strategy selects how modified objects are brought in line.
type Strategy string

const (
	// StrategyAlterFirst executes synthesized alterations when feasible
	// and falls back to full replacement otherwise.
	StrategyAlterFirst Strategy = "alter-first"
	// StrategyReplace always executes the full replacement definition.
	StrategyReplace Strategy = "replace"
)

// Executor is the slice of the connector apply needs.
type Executor interface {
	ExecTransaction(ctx context.Context, statements []string) error
}

// Options tune one apply run.
type Options struct {
	Strategy         Strategy
	DryRun           bool
	ApproveDangerous bool
}

// Runner executes a persisted plan. It always reloads the plan file
// rather than accepting an in-memory plan, keeping plan and apply as
// two independent phases.
type Runner struct {
	executor Executor
	rewriter ddl.Rewriter
	policies model.PolicyTable
	logger   *zap.Logger
	planPath string
	opts     Options
}

// NewRunner creates an apply runner for the active environment.
func NewRunner(executor Executor, rewriter ddl.Rewriter, policies model.PolicyTable, cfg *config.Config, opts Options) *Runner {
	if opts.Strategy == "" {
		opts.Strategy = StrategyAlterFirst
	}
	return &Runner{
		executor: executor,
		rewriter: rewriter,
		policies: policies,
		logger:   zap.L().Named("apply-runner"),
		planPath: cfg.PlanPath,
		opts:     opts,
	}
}

// Run applies every item in the persisted plan: creations, then the
// full modified list, then drops. A failed batch is rolled back and
// reported; it never stops the remaining objects.
func (r *Runner) Run(ctx context.Context) (*Summary, error) {
	p, err := plan.Read(r.planPath)
	if err != nil {
		return nil, err
	}

	summary := NewSummary()
	summary.DryRun = r.opts.DryRun

	if p.Empty() {
		r.logger.Info("Plan is empty, nothing to apply")
		summary.Complete()
		return summary, nil
	}

	r.logger.Info("Applying plan",
		zap.String("path", r.planPath),
		zap.String("strategy", string(r.opts.Strategy)),
		zap.Bool("dry_run", r.opts.DryRun))

	for i := range p.NewObjects {
		if err := ctx.Err(); err != nil {
			return summary, err
		}
		r.applyNew(ctx, &p.NewObjects[i], summary)
	}
	for i := range p.ModifiedObjects {
		if err := ctx.Err(); err != nil {
			return summary, err
		}
		r.applyModified(ctx, &p.ModifiedObjects[i], summary)
	}
	for i := range p.DeletedObjects {
		if err := ctx.Err(); err != nil {
			return summary, err
		}
		r.applyDeleted(ctx, &p.DeletedObjects[i], summary)
	}

	summary.Complete()
	r.logger.Info("Apply finished",
		zap.Int("applied", summary.Applied()),
		zap.Int("skipped", summary.Skipped),
		zap.Int("failed", summary.Failed),
		zap.Duration("duration", summary.TotalDuration))
	return summary, nil
}

func (r *Runner) applyNew(ctx context.Context, obj *model.NewObject, summary *Summary) {
	fqn := r.rewriter.FQN(obj.Database, obj.FQN)
	statements := []string{r.rewriter.DDL(obj.Database, obj.DDL)}
	r.execute(ctx, OpCreate, obj.ObjectType, fqn, statements, summary)
}

func (r *Runner) applyModified(ctx context.Context, obj *model.ModifiedObject, summary *Summary) {
	alterPossible, alterSQL := r.currentAlterState(obj)
	fqn := r.rewriter.FQN(obj.Database, obj.FQN)

	if r.opts.Strategy == StrategyAlterFirst && alterPossible {
		statements := r.executableAlters(obj.Database, alterSQL)
		if len(statements) == 0 {
			r.logger.Info("No executable alterations, definitions already structurally aligned",
				zap.String("fqn", fqn))
			return
		}
		r.execute(ctx, OpAlter, obj.ObjectType, fqn, statements, summary)
		return
	}

	if r.skipDangerous(obj.ObjectType, fqn, summary) {
		return
	}
	statements := []string{r.rewriter.DDL(obj.Database, obj.DDL)}
	r.execute(ctx, OpReplace, obj.ObjectType, fqn, statements, summary)
}

func (r *Runner) applyDeleted(ctx context.Context, obj *model.DeletedObject, summary *Summary) {
	fqn := r.rewriter.FQN(obj.Database, obj.FQN)
	if r.skipDangerous(obj.Type, fqn, summary) {
		return
	}
	statement := fmt.Sprintf("DROP %s %s", strings.ToUpper(obj.Type), fqn)
	r.execute(ctx, OpDrop, obj.Type, fqn, []string{statement}, summary)
}

// currentAlterState recomputes the structural diff when the plan still
// carries the prior definition, so apply acts on the definitions as
// persisted rather than trusting plan-time metadata.
func (r *Runner) currentAlterState(obj *model.ModifiedObject) (bool, []string) {
	if !r.policies.PreferAlter(obj.ObjectType) {
		return false, nil
	}
	if obj.CurrentDDL == "" {
		return obj.AlterPossible, obj.AlterSQL
	}

	current, err := ddl.ParseColumns(obj.CurrentDDL)
	var target map[string]string
	if err == nil {
		target, err = ddl.ParseColumns(obj.DDL)
	}
	if err != nil {
		r.logger.Debug("Diff recompute failed, falling back to replacement",
			zap.String("fqn", obj.FQN),
			zap.Error(err))
		return false, nil
	}

	diff := ddl.DiffColumns(current, target)
	possible := len(diff.Dropped) == 0 && len(diff.Modified) == 0
	return possible, ddl.GenerateAlter(obj.FQN, diff)
}

// executableAlters rewrites alter statements for the environment and
// drops comment entries, which exist for the operator, not the server.
func (r *Runner) executableAlters(database string, statements []string) []string {
	out := make([]string, 0, len(statements))
	for _, statement := range statements {
		if strings.HasPrefix(strings.TrimSpace(statement), "--") {
			continue
		}
		out = append(out, r.rewriter.DDL(database, statement))
	}
	return out
}

// skipDangerous withholds replacement or drop of types whose loss
// destroys contained state unless the operator approved it explicitly.
func (r *Runner) skipDangerous(objectType, fqn string, summary *Summary) bool {
	if !r.policies.Dangerous(objectType) || r.opts.ApproveDangerous {
		return false
	}
	r.logger.Warn("Skipping without explicit approval",
		zap.String("object_type", objectType),
		zap.String("fqn", fqn))
	summary.AddSkipped()
	return true
}

func (r *Runner) execute(ctx context.Context, op Operation, objectType, fqn string, statements []string, summary *Summary) {
	logger := r.logger.With(
		zap.String("batch_id", uuid.New().String()),
		zap.String("operation", string(op)),
		zap.String("fqn", fqn))

	if r.opts.DryRun {
		for _, statement := range statements {
			logger.Info("Dry run", zap.String("statement", statement))
		}
		summary.Add(op)
		return
	}

	if err := r.executor.ExecTransaction(ctx, statements); err != nil {
		logger.Error("Statement batch rolled back", zap.Error(err))
		summary.AddFailure(op, objectType, fqn, err)
		return
	}
	logger.Info("Applied", zap.Int("statements", len(statements)))
	summary.Add(op)
}
