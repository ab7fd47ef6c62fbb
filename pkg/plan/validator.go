// pkg/plan/validator.go
package plan

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"go.uber.org/zap"

	"github.com/David-Botos/snowplan/pkg/connector"
	"github.com/David-Botos/snowplan/pkg/ddl"
	"github.com/David-Botos/snowplan/pkg/lineage"
	"github.com/David-Botos/snowplan/pkg/model"
)

// missingObjectCode is the Snowflake error for a statement referencing
// an object that does not exist.
const missingObjectCode = "002003"

// explainSuccessMarker appears in every EXPLAIN USING JSON result; its
// absence means the statement was not actually planned.
const explainSuccessMarker = "GlobalStats"

var quotedIdentifierRe = regexp.MustCompile(`'([^']+)'`)

// ValidationClient is the slice of the connector the validator needs.
type ValidationClient interface {
	UseSchema(ctx context.Context, database, schema string) error
	ExplainJSON(ctx context.Context, statement string) (string, error)
}

// Validator dry-runs plan items against the live system and stamps a
// verdict on each. Verdicts never abort the run; the plan is persisted
// with whatever errors and warnings it carries.
type Validator struct {
	client   ValidationClient
	rewriter ddl.Rewriter
	logger   *zap.Logger
}

// NewValidator creates a validator for the active environment.
func NewValidator(client ValidationClient, rewriter ddl.Rewriter) *Validator {
	return &Validator{
		client:   client,
		rewriter: rewriter,
		logger:   zap.L().Named("plan-validator"),
	}
}

// Validate stamps every item in place. It returns early only when the
// context is cancelled.
func (v *Validator) Validate(ctx context.Context, p *model.Plan, objects map[string]model.ObjectRecord) error {
	for i := range p.NewObjects {
		if err := ctx.Err(); err != nil {
			return err
		}
		v.validateNew(ctx, &p.NewObjects[i], p.NewObjects)
	}

	for i := range p.ModifiedObjects {
		if err := ctx.Err(); err != nil {
			return err
		}
		v.validateModified(ctx, &p.ModifiedObjects[i])
	}

	tracer := lineage.NewTracer(objects)
	for i := range p.DeletedObjects {
		v.validateDeleted(&p.DeletedObjects[i], tracer)
	}
	return nil
}

func (v *Validator) validateNew(ctx context.Context, obj *model.NewObject, peers []model.NewObject) {
	result, err := v.explain(ctx, obj.Database, obj.Schema, obj.DDL)
	if err == nil {
		if strings.Contains(result, explainSuccessMarker) {
			obj.Validation = model.ValidationOK
			return
		}
		obj.Validation = model.ValidationError
		obj.Message = fmt.Sprintf("explain returned no plan: %.200s", result)
		return
	}

	if connector.ErrorCode(err) == missingObjectCode {
		if dep, ok := peerDependency(err.Error(), obj, peers); ok {
			obj.Validation = model.ValidationOK
			obj.Message = fmt.Sprintf("Dependent on %s", dep)
			v.logger.Debug("Forward reference within plan",
				zap.String("fqn", obj.FQN),
				zap.String("depends_on", dep))
			return
		}
	}

	obj.Validation = model.ValidationError
	obj.Message = err.Error()
}

func (v *Validator) validateModified(ctx context.Context, obj *model.ModifiedObject) {
	result, err := v.explain(ctx, obj.Database, obj.Schema, obj.DDL)
	if err != nil {
		obj.Validation = model.ValidationError
		obj.Message = err.Error()
		return
	}
	if !strings.Contains(result, explainSuccessMarker) {
		obj.Validation = model.ValidationError
		obj.Message = fmt.Sprintf("explain returned no plan: %.200s", result)
		return
	}

	if obj.AlterPossible {
		obj.Validation = model.ValidationOKAlter
		return
	}
	obj.Validation = model.ValidationWarningRefresh
	obj.Message = refreshMessage(obj.AlterReason)
}

// validateDeleted checks the pre-deletion state for objects that still
// reference the target. A root the tracer cannot find (procedure
// records keep signatures in their fqn, so the clean key never matches)
// counts as having no dependents.
func (v *Validator) validateDeleted(obj *model.DeletedObject, tracer *lineage.Tracer) {
	nodes, err := tracer.Trace(obj.Type, obj.FQN)
	if err != nil || len(nodes) == 0 {
		obj.Validation = model.ValidationOK
		return
	}

	obj.Validation = model.ValidationWarningReference
	obj.Message = lineage.Keys(nodes)
	v.logger.Warn("Deletion target still referenced",
		zap.String("fqn", obj.FQN),
		zap.Strings("dependents", obj.Message))
}

// explain rewrites the statement for the active environment, points the
// session at the object's schema, and dry-runs the statement.
func (v *Validator) explain(ctx context.Context, database, schema, statement string) (string, error) {
	rewritten := v.rewriter.DDL(database, statement)
	target := v.rewriter.Database(database)

	if err := v.client.UseSchema(ctx, target, schema); err != nil {
		return "", err
	}
	return v.client.ExplainJSON(ctx, rewritten)
}

// peerDependency resolves a missing-object failure against the other
// New items in the same plan. The quoted identifier in the error text
// names the missing object; a peer whose name or fqn matches turns the
// failure into an in-plan forward reference.
func peerDependency(message string, self *model.NewObject, peers []model.NewObject) (string, bool) {
	match := quotedIdentifierRe.FindStringSubmatch(message)
	if match == nil {
		return "", false
	}
	missing := strings.ToLower(match[1])

	for i := range peers {
		peer := &peers[i]
		if peer == self {
			continue
		}
		if strings.ToLower(peer.Name) == missing || strings.ToLower(peer.FQN) == missing {
			return peer.FQN, true
		}
	}
	return "", false
}

func refreshMessage(reason string) string {
	if reason == "" {
		return "refresh required"
	}
	return "refresh required: " + reason
}
