// pkg/apply/runner_test.go
package apply

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"testing"

	"github.com/David-Botos/snowplan/pkg/config"
	"github.com/David-Botos/snowplan/pkg/ddl"
	"github.com/David-Botos/snowplan/pkg/model"
	"github.com/David-Botos/snowplan/pkg/plan"
)

type fakeExecutor struct {
	batches [][]string
	failOn  string
}

func (f *fakeExecutor) ExecTransaction(_ context.Context, statements []string) error {
	f.batches = append(f.batches, statements)
	if f.failOn == "" {
		return nil
	}
	for _, statement := range statements {
		if strings.Contains(statement, f.failOn) {
			return model.NewFault(model.KindTransaction,
				fmt.Errorf("simulated execution failure")).WithStatement(statement)
		}
	}
	return nil
}

func (f *fakeExecutor) allStatements() []string {
	var out []string
	for _, batch := range f.batches {
		out = append(out, batch...)
	}
	return out
}

func writePlan(t *testing.T, p *model.Plan) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "plan.json")
	if err := plan.Write(path, p); err != nil {
		t.Fatalf("writing plan: %v", err)
	}
	return path
}

func newTestRunner(executor Executor, planPath string, opts Options) *Runner {
	cfg := &config.Config{PlanPath: planPath}
	return NewRunner(executor, ddl.NewRewriter("prod", ""), model.DefaultPolicies(), cfg, opts)
}

func modifiedTable(fqn, currentDDL, desiredDDL string) model.ModifiedObject {
	parts := strings.Split(fqn, ".")
	return model.ModifiedObject{
		DesiredObject: model.DesiredObject{
			Database: parts[0], Schema: parts[1], ObjectType: "table",
			Name: parts[2], FQN: fqn, DDL: desiredDDL,
		},
		CurrentDDL: currentDDL,
	}
}

func TestRunAppliesFullModifiedList(t *testing.T) {
	p := model.NewPlan()
	p.ModifiedObjects = append(p.ModifiedObjects,
		modifiedTable("db.sales.orders",
			"create table orders (id int);",
			"create table orders (id int, name varchar);"),
		modifiedTable("db.sales.customers",
			"create table customers (id int);",
			"create table customers (id int, email varchar);"),
	)

	executor := &fakeExecutor{}
	summary, err := newTestRunner(executor, writePlan(t, p), Options{}).Run(context.Background())
	if err != nil {
		t.Fatalf("Run() returned error: %v", err)
	}

	if summary.Altered != 2 {
		t.Fatalf("altered = %d, want every modified object processed", summary.Altered)
	}
	if len(executor.batches) != 2 {
		t.Fatalf("batches = %d, want 2", len(executor.batches))
	}
	statements := executor.allStatements()
	wantStatements := []string{
		"ALTER TABLE db.sales.orders ADD COLUMN name varchar;",
		"ALTER TABLE db.sales.customers ADD COLUMN email varchar;",
	}
	for _, want := range wantStatements {
		if !containsString(statements, want) {
			t.Errorf("executed statements missing %q: %v", want, statements)
		}
	}
}

func TestRunRecomputesDiffFromPersistedDefinitions(t *testing.T) {
	// Plan-time metadata says replacement, but the persisted definitions
	// only differ by an added column.
	obj := modifiedTable("db.sales.orders",
		"create table orders (id int);",
		"create table orders (id int, name varchar);")
	obj.AlterPossible = false
	obj.AlterReason = "stale"

	p := model.NewPlan()
	p.ModifiedObjects = append(p.ModifiedObjects, obj)

	executor := &fakeExecutor{}
	summary, err := newTestRunner(executor, writePlan(t, p), Options{}).Run(context.Background())
	if err != nil {
		t.Fatalf("Run() returned error: %v", err)
	}

	if summary.Altered != 1 || summary.Replaced != 0 {
		t.Fatalf("altered=%d replaced=%d, want the recomputed diff to win", summary.Altered, summary.Replaced)
	}
	if want := "ALTER TABLE db.sales.orders ADD COLUMN name varchar;"; !containsString(executor.allStatements(), want) {
		t.Errorf("executed statements = %v, want %q", executor.allStatements(), want)
	}
}

func TestRunReplacesWhenAlterNotPossible(t *testing.T) {
	desired := "create table orders (name varchar);"
	p := model.NewPlan()
	p.ModifiedObjects = append(p.ModifiedObjects,
		modifiedTable("db.sales.orders", "create table orders (id int, name varchar);", desired))

	executor := &fakeExecutor{}
	summary, err := newTestRunner(executor, writePlan(t, p), Options{}).Run(context.Background())
	if err != nil {
		t.Fatalf("Run() returned error: %v", err)
	}

	if summary.Replaced != 1 || summary.Altered != 0 {
		t.Fatalf("replaced=%d altered=%d, want full replacement for a dropped column",
			summary.Replaced, summary.Altered)
	}
	if len(executor.batches) != 1 || executor.batches[0][0] != desired {
		t.Errorf("batch = %v, want the full replacement definition", executor.batches)
	}
}

func TestRunReplaceStrategySkipsAlters(t *testing.T) {
	desired := "create table orders (id int, name varchar);"
	p := model.NewPlan()
	p.ModifiedObjects = append(p.ModifiedObjects,
		modifiedTable("db.sales.orders", "create table orders (id int);", desired))

	executor := &fakeExecutor{}
	summary, err := newTestRunner(executor, writePlan(t, p), Options{Strategy: StrategyReplace}).
		Run(context.Background())
	if err != nil {
		t.Fatalf("Run() returned error: %v", err)
	}

	if summary.Replaced != 1 || summary.Altered != 0 {
		t.Fatalf("replaced=%d altered=%d, want replacement under the replace strategy",
			summary.Replaced, summary.Altered)
	}
	if executor.batches[0][0] != desired {
		t.Errorf("batch = %v, want the full definition", executor.batches[0])
	}
}

func TestRunNewAndDeletedObjects(t *testing.T) {
	createDDL := "create or replace view v_orders as select id from orders;"
	p := model.NewPlan()
	p.NewObjects = append(p.NewObjects, model.NewObject{
		DesiredObject: model.DesiredObject{
			Database: "db", Schema: "sales", ObjectType: "view",
			Name: "v_orders", FQN: "db.sales.v_orders", DDL: createDDL,
		},
	})
	p.DeletedObjects = append(p.DeletedObjects, model.DeletedObject{
		ObjectRecord: model.ObjectRecord{
			Name: "v_old", Database: "db", Schema: "sales",
			FQN: "db.sales.v_old", Type: "view",
		},
	})

	executor := &fakeExecutor{}
	summary, err := newTestRunner(executor, writePlan(t, p), Options{}).Run(context.Background())
	if err != nil {
		t.Fatalf("Run() returned error: %v", err)
	}

	if summary.Created != 1 || summary.Dropped != 1 {
		t.Fatalf("created=%d dropped=%d, want 1 and 1", summary.Created, summary.Dropped)
	}
	statements := executor.allStatements()
	if !containsString(statements, createDDL) {
		t.Errorf("missing create statement: %v", statements)
	}
	if !containsString(statements, "DROP VIEW db.sales.v_old") {
		t.Errorf("missing drop statement: %v", statements)
	}
}

func TestRunTransactionFailureContinues(t *testing.T) {
	p := model.NewPlan()
	for _, name := range []string{"a", "b", "c"} {
		p.NewObjects = append(p.NewObjects, model.NewObject{
			DesiredObject: model.DesiredObject{
				Database: "db", Schema: "s", ObjectType: "view", Name: name,
				FQN: "db.s." + name,
				DDL: fmt.Sprintf("create view %s as select 1;", name),
			},
		})
	}

	executor := &fakeExecutor{failOn: "create view b"}
	summary, err := newTestRunner(executor, writePlan(t, p), Options{}).Run(context.Background())
	if err != nil {
		t.Fatalf("Run() must continue past a rolled-back batch: %v", err)
	}

	if len(executor.batches) != 3 {
		t.Fatalf("batches = %d, want all objects attempted", len(executor.batches))
	}
	if summary.Created != 2 || summary.Failed != 1 {
		t.Fatalf("created=%d failed=%d, want 2 and 1", summary.Created, summary.Failed)
	}
	if len(summary.Failures) != 1 || summary.Failures[0].FQN != "db.s.b" {
		t.Errorf("failures = %+v, want the failing object recorded", summary.Failures)
	}
	if !model.IsKind(summary.Failures[0].Err, model.KindTransaction) {
		t.Errorf("failure kind = %v, want transaction fault", summary.Failures[0].Err)
	}
}

func TestRunDangerousDropRequiresApproval(t *testing.T) {
	p := model.NewPlan()
	p.DeletedObjects = append(p.DeletedObjects, model.DeletedObject{
		ObjectRecord: model.ObjectRecord{
			Name: "old_db", Database: "old_db", Schema: "",
			FQN: "old_db", Type: "database",
		},
	})
	planPath := writePlan(t, p)

	withheld := &fakeExecutor{}
	summary, err := newTestRunner(withheld, planPath, Options{}).Run(context.Background())
	if err != nil {
		t.Fatalf("Run() returned error: %v", err)
	}
	if len(withheld.batches) != 0 {
		t.Fatalf("batches = %v, want nothing executed without approval", withheld.batches)
	}
	if summary.Skipped != 1 || summary.Dropped != 0 {
		t.Fatalf("skipped=%d dropped=%d, want 1 and 0", summary.Skipped, summary.Dropped)
	}

	approved := &fakeExecutor{}
	summary, err = newTestRunner(approved, planPath, Options{ApproveDangerous: true}).Run(context.Background())
	if err != nil {
		t.Fatalf("Run() returned error: %v", err)
	}
	if summary.Dropped != 1 {
		t.Fatalf("dropped = %d, want the approved drop to run", summary.Dropped)
	}
	if !containsString(approved.allStatements(), "DROP DATABASE old_db") {
		t.Errorf("statements = %v, want DROP DATABASE old_db", approved.allStatements())
	}
}

func TestRunDryRunExecutesNothing(t *testing.T) {
	p := model.NewPlan()
	p.NewObjects = append(p.NewObjects, model.NewObject{
		DesiredObject: model.DesiredObject{
			Database: "db", Schema: "s", ObjectType: "table", Name: "t",
			FQN: "db.s.t", DDL: "create table t (id int);",
		},
	})

	executor := &fakeExecutor{}
	summary, err := newTestRunner(executor, writePlan(t, p), Options{DryRun: true}).Run(context.Background())
	if err != nil {
		t.Fatalf("Run() returned error: %v", err)
	}

	if len(executor.batches) != 0 {
		t.Fatalf("batches = %v, want none in dry run", executor.batches)
	}
	if !summary.DryRun || summary.Created != 1 {
		t.Errorf("summary dry_run=%v created=%d, want planned counts with no execution",
			summary.DryRun, summary.Created)
	}
	if !strings.Contains(summary.Render(), "DRY RUN") {
		t.Errorf("summary render = %q, want dry run marker", summary.Render())
	}
}

func TestRunRewritesForEnvironment(t *testing.T) {
	p := model.NewPlan()
	p.NewObjects = append(p.NewObjects, model.NewObject{
		DesiredObject: model.DesiredObject{
			Database: "analytics", Schema: "sales", ObjectType: "view", Name: "v_orders",
			FQN: "analytics.sales.v_orders",
			DDL: "create or replace view analytics.sales.v_orders as select id from analytics.sales.orders;",
		},
	})
	p.DeletedObjects = append(p.DeletedObjects, model.DeletedObject{
		ObjectRecord: model.ObjectRecord{
			Name: "v_old", Database: "analytics", Schema: "sales",
			FQN: "analytics.sales.v_old", Type: "view",
		},
	})

	executor := &fakeExecutor{}
	cfg := &config.Config{PlanPath: writePlan(t, p)}
	runner := NewRunner(executor, ddl.NewRewriter("dev", "dev_"), model.DefaultPolicies(), cfg, Options{})

	if _, err := runner.Run(context.Background()); err != nil {
		t.Fatalf("Run() returned error: %v", err)
	}

	statements := executor.allStatements()
	if len(statements) != 2 {
		t.Fatalf("statements = %v, want 2", statements)
	}
	if !strings.Contains(statements[0], "dev_analytics.sales.v_orders") ||
		!strings.Contains(statements[0], "dev_analytics.sales.orders") {
		t.Errorf("create not rewritten: %q", statements[0])
	}
	if statements[1] != "DROP VIEW dev_analytics.sales.v_old" {
		t.Errorf("drop = %q, want DROP VIEW dev_analytics.sales.v_old", statements[1])
	}
}

func TestRunSkipsCommentStatements(t *testing.T) {
	// No prior definition in the plan, so the persisted alter metadata
	// is used as-is; the comment entry must still never execute.
	obj := model.ModifiedObject{
		DesiredObject: model.DesiredObject{
			Database: "db", Schema: "s", ObjectType: "table", Name: "t",
			FQN: "db.s.t", DDL: "create table t (id number);",
		},
		AlterPossible: true,
		AlterSQL: []string{
			"-- Column id type change from int to number",
			"ALTER TABLE db.s.t ALTER COLUMN id SET DATA TYPE number;",
		},
	}
	p := model.NewPlan()
	p.ModifiedObjects = append(p.ModifiedObjects, obj)

	executor := &fakeExecutor{}
	if _, err := newTestRunner(executor, writePlan(t, p), Options{}).Run(context.Background()); err != nil {
		t.Fatalf("Run() returned error: %v", err)
	}

	statements := executor.allStatements()
	if len(statements) != 1 {
		t.Fatalf("statements = %v, want only the executable alter", statements)
	}
	if strings.HasPrefix(statements[0], "--") {
		t.Errorf("comment statement executed: %q", statements[0])
	}
}

func containsString(haystack []string, want string) bool {
	for _, s := range haystack {
		if s == want {
			return true
		}
	}
	return false
}
