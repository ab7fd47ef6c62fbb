package ddl

import (
	"reflect"
	"testing"
)

func TestGenerateAlterAddColumn(t *testing.T) {
	diff := DiffColumns(
		map[string]string{"id": "int"},
		map[string]string{"id": "int", "name": "varchar"},
	)
	got := GenerateAlter("db.sales.orders", diff)
	want := []string{"ALTER TABLE db.sales.orders ADD COLUMN name varchar;"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("statements = %v, want %v", got, want)
	}
}

func TestGenerateAlterStatementOrder(t *testing.T) {
	diff := ColumnDiff{
		Added:    map[string]string{"b": "int", "a": "varchar"},
		Dropped:  map[string]string{"old": "varchar"},
		Modified: map[string]TypeChange{"amount": {From: "number(10,2)", To: "number(12,2)"}},
	}
	got := GenerateAlter("db.s.t", diff)
	want := []string{
		"ALTER TABLE db.s.t ADD COLUMN a varchar;",
		"ALTER TABLE db.s.t ADD COLUMN b int;",
		"ALTER TABLE db.s.t DROP COLUMN old;",
		"-- Column amount type change from number(10,2) to number(12,2)",
		"ALTER TABLE db.s.t ALTER COLUMN amount SET DATA TYPE number(12,2);",
	}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("statements = %v, want %v", got, want)
	}
	if len(got) != diff.Count() {
		t.Fatalf("len = %d, count = %d", len(got), diff.Count())
	}
}

func TestGenerateAlterEmptyDiff(t *testing.T) {
	if got := GenerateAlter("db.s.t", ColumnDiff{}); len(got) != 0 {
		t.Fatalf("expected no statements, got %v", got)
	}
}
