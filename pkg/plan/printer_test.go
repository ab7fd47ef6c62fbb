// pkg/plan/printer_test.go
package plan

import (
	"strings"
	"testing"

	"github.com/David-Botos/snowplan/pkg/model"
)

func samplePlan() *model.Plan {
	p := model.NewPlan()
	p.NewObjects = append(p.NewObjects, model.NewObject{
		DesiredObject: model.DesiredObject{FQN: "db.sales.customers", ObjectType: "table"},
		Validation:    model.ValidationOK,
	})
	p.ModifiedObjects = append(p.ModifiedObjects, model.ModifiedObject{
		DesiredObject: model.DesiredObject{
			FQN: "db.sales.orders", ObjectType: "table",
			FilePath: "ddl_management/acct/databases/db/schemas/sales/table/orders.sql",
			DDL:      "create table orders (id int, name varchar);\n",
		},
		CurrentDDL:    "create table orders (id int);\n",
		AlterPossible: true,
		AlterSQL:      []string{"ALTER TABLE db.sales.orders ADD COLUMN name varchar;"},
		Validation:    model.ValidationOKAlter,
	})
	p.DeletedObjects = append(p.DeletedObjects, model.DeletedObject{
		ObjectRecord: model.ObjectRecord{FQN: "db.sales.v_old", Type: "view"},
		Validation:   model.ValidationWarningReference,
		Message:      []string{"view-db.sales.v_older", "view-db.sales.v_oldest"},
	})
	return p
}

func TestRenderPlanSections(t *testing.T) {
	out := Render(samplePlan(), false)

	for _, fragment := range []string{
		"---------------------- PLAN ----------------------",
		"Add:",
		"• db.sales.customers [OK]",
		"Modify:",
		"• db.sales.orders [OK: ALTER]",
		"Drop:",
		"• db.sales.v_old [WARNING object reference found:]",
		"view-db.sales.v_older",
		"view-db.sales.v_oldest",
		"Plan: 1 to add, 1 to modify, 1 to drop.",
	} {
		if !strings.Contains(out, fragment) {
			t.Errorf("rendered plan missing %q:\n%s", fragment, out)
		}
	}

	if strings.Contains(out, "ALTER TABLE db.sales.orders ADD COLUMN") {
		t.Error("alter statements should only render in verbose mode")
	}
}

func TestRenderVerboseIncludesAlterAndDiff(t *testing.T) {
	out := Render(samplePlan(), true)

	for _, fragment := range []string{
		"ALTER TABLE db.sales.orders ADD COLUMN name varchar;",
		"-create table orders (id int);",
		"+create table orders (id int, name varchar);",
		"@@",
	} {
		if !strings.Contains(out, fragment) {
			t.Errorf("verbose plan missing %q:\n%s", fragment, out)
		}
	}
}

func TestRenderEmptyPlan(t *testing.T) {
	out := Render(model.NewPlan(), false)

	if !strings.Contains(out, "No changes.") {
		t.Errorf("empty plan output = %q", out)
	}
	if strings.Contains(out, "Add:") || strings.Contains(out, "Plan: 0 to add") {
		t.Errorf("empty plan should not render sections:\n%s", out)
	}
}
