// pkg/state/collector_test.go
package state

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/David-Botos/snowplan/pkg/config"
	"github.com/David-Botos/snowplan/pkg/connector"
	"github.com/David-Botos/snowplan/pkg/ddl"
)

type fakeSource struct {
	mu       sync.Mutex
	listings map[string][]connector.ObjectListing
	listErrs map[string]error
	ddls     map[string]string
	fetchErr map[string]error
	scopes   []string
}

func (f *fakeSource) ListObjects(_ context.Context, objectType, scope string) ([]connector.ObjectListing, error) {
	f.mu.Lock()
	f.scopes = append(f.scopes, objectType+" in "+scope)
	f.mu.Unlock()

	if err, ok := f.listErrs[objectType]; ok {
		return nil, err
	}
	return f.listings[objectType], nil
}

func (f *fakeSource) FetchDDL(_ context.Context, objectType, fqn string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err, ok := f.fetchErr[fqn]; ok {
		return "", err
	}
	definition, ok := f.ddls[fqn]
	if !ok {
		return "", fmt.Errorf("no definition for %s %s", objectType, fqn)
	}
	return definition, nil
}

func testConfig(types, databases []string) *config.Config {
	return &config.Config{
		ObjectTypes: types,
		Databases:   databases,
		Threads:     3,
	}
}

func TestRefreshExportsObjectsAndState(t *testing.T) {
	root := t.TempDir()
	statePath := filepath.Join(root, "data", "state.json")

	source := &fakeSource{
		listings: map[string][]connector.ObjectListing{
			"table": {
				{Database: "ANALYTICS", Schema: "SALES", Name: "ORDERS"},
				{Database: "ANALYTICS", Schema: "SALES", Name: "CUSTOMERS"},
			},
			"view": {
				{Database: "ANALYTICS", Schema: "SALES", Name: "V_ORDERS"},
			},
		},
		ddls: map[string]string{
			"ANALYTICS.SALES.ORDERS":    "create or replace TABLE ORDERS (ID NUMBER(38,0));",
			"ANALYTICS.SALES.CUSTOMERS": "create or replace TABLE CUSTOMERS (ID NUMBER(38,0));",
			"ANALYTICS.SALES.V_ORDERS":  "create or replace view V_ORDERS as select id from orders;",
		},
	}

	store := NewStore(statePath)
	layout := Layout{Root: filepath.Join(root, "ddl_management"), Account: "myacct"}

	summary, err := NewCollector(source, store, layout, testConfig([]string{"table", "view"}, []string{"analytics"})).
		Refresh(context.Background())
	if err != nil {
		t.Fatalf("Refresh() returned error: %v", err)
	}

	if summary.Exported != 3 || summary.Failed != 0 {
		t.Fatalf("summary exported=%d failed=%d, want 3 and 0", summary.Exported, summary.Failed)
	}
	if summary.CountsByType["table"] != 2 || summary.CountsByType["view"] != 1 {
		t.Errorf("counts by type = %v, want 2 tables and 1 view", summary.CountsByType)
	}

	path := filepath.Join(root, "ddl_management", "myacct", "databases", "analytics",
		"schemas", "sales", "table", "orders.sql")
	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("expected definition file at %s: %v", path, err)
	}
	if string(raw) != source.ddls["ANALYTICS.SALES.ORDERS"] {
		t.Errorf("definition file content = %q", raw)
	}

	record, ok := store.Objects()["table-analytics.sales.orders"]
	if !ok {
		t.Fatalf("store missing table-analytics.sales.orders, keys: %v", keysOf(store))
	}
	if record.FQN != "analytics.sales.orders" {
		t.Errorf("record fqn = %q, want lowercased", record.FQN)
	}
	if record.Database != "analytics" || record.Schema != "sales" || record.Name != "orders" {
		t.Errorf("record identity not normalized: %+v", record)
	}
	if record.Hash != ddl.HashDDL(record.DDL) {
		t.Error("record hash does not match its definition")
	}
	if record.LastSeen == "" {
		t.Error("record last_seen is empty")
	}
	if record.FilePath != path {
		t.Errorf("record file_path = %q, want %q", record.FilePath, path)
	}

	if _, err := os.Stat(statePath); err != nil {
		t.Fatalf("state snapshot not written: %v", err)
	}

	wantScopes := []string{"table in database analytics", "view in database analytics"}
	if len(source.scopes) != len(wantScopes) {
		t.Fatalf("listing scopes = %v, want %v", source.scopes, wantScopes)
	}
	for i, scope := range wantScopes {
		if source.scopes[i] != scope {
			t.Errorf("scope[%d] = %q, want %q", i, source.scopes[i], scope)
		}
	}
}

func TestRefreshProcedureIdentity(t *testing.T) {
	root := t.TempDir()

	source := &fakeSource{
		listings: map[string][]connector.ObjectListing{
			"procedure": {
				{
					Database:  "ANALYTICS",
					Schema:    "SALES",
					Name:      "LOAD_ORDERS(VARCHAR, NUMBER) ",
					CleanName: "LOAD_ORDERS",
				},
			},
		},
		ddls: map[string]string{
			"ANALYTICS.SALES.LOAD_ORDERS(VARCHAR, NUMBER)": "create or replace procedure LOAD_ORDERS(src VARCHAR, batch NUMBER)\nreturns varchar\nlanguage sql\nas 'begin return src; end';",
		},
	}

	store := NewStore(filepath.Join(root, "state.json"))
	layout := Layout{Root: filepath.Join(root, "ddl_management"), Account: "myacct"}

	summary, err := NewCollector(source, store, layout, testConfig([]string{"procedure"}, []string{"analytics"})).
		Refresh(context.Background())
	if err != nil {
		t.Fatalf("Refresh() returned error: %v", err)
	}
	if summary.Exported != 1 {
		t.Fatalf("exported = %d, want 1", summary.Exported)
	}

	// The state key drops the signature, the record keeps it.
	record, ok := store.Objects()["procedure-analytics.sales.load_orders"]
	if !ok {
		t.Fatalf("store missing clean procedure key, keys: %v", keysOf(store))
	}
	if record.FQN != "analytics.sales.load_orders(varchar, number)" {
		t.Errorf("record fqn = %q, want the signature preserved", record.FQN)
	}

	path := filepath.Join(root, "ddl_management", "myacct", "databases", "analytics",
		"schemas", "sales", "procedure", "load_orders.sql")
	if _, err := os.Stat(path); err != nil {
		t.Errorf("expected file named for the clean name: %v", err)
	}
}

func TestRefreshSynthesizesStages(t *testing.T) {
	root := t.TempDir()

	// No ddls entry: a get_ddl call for the stage would fail the job.
	source := &fakeSource{
		listings: map[string][]connector.ObjectListing{
			"stage": {
				{
					Database: "ANALYTICS", Schema: "RAW", Name: "LANDING",
					URL:                nullString("s3://bucket/landing/"),
					StorageIntegration: nullString("S3_INT"),
					DirectoryEnabled:   nullString("Y"),
				},
			},
		},
	}

	store := NewStore(filepath.Join(root, "state.json"))
	layout := Layout{Root: filepath.Join(root, "ddl_management"), Account: "myacct"}

	summary, err := NewCollector(source, store, layout, testConfig([]string{"stage"}, nil)).
		Refresh(context.Background())
	if err != nil {
		t.Fatalf("Refresh() returned error: %v", err)
	}
	if summary.Exported != 1 || summary.Failed != 0 {
		t.Fatalf("summary exported=%d failed=%d, want 1 and 0", summary.Exported, summary.Failed)
	}

	record, ok := store.Objects()["stage-analytics.raw.landing"]
	if !ok {
		t.Fatalf("store missing stage key, keys: %v", keysOf(store))
	}
	for _, fragment := range []string{
		"CREATE OR REPLACE STAGE ANALYTICS.RAW.LANDING",
		"URL='s3://bucket/landing/'",
		"STORAGE_INTEGRATION=S3_INT",
		"DIRECTORY=(ENABLE=TRUE)",
	} {
		if !strings.Contains(record.DDL, fragment) {
			t.Errorf("stage definition missing %q:\n%s", fragment, record.DDL)
		}
	}
}

func TestRefreshIsolatesFetchFailures(t *testing.T) {
	root := t.TempDir()
	statePath := filepath.Join(root, "state.json")

	source := &fakeSource{
		listings: map[string][]connector.ObjectListing{
			"table": {
				{Database: "DB", Schema: "S", Name: "GOOD"},
				{Database: "DB", Schema: "S", Name: "BAD"},
			},
		},
		ddls: map[string]string{
			"DB.S.GOOD": "create table good (id int);",
		},
		fetchErr: map[string]error{
			"DB.S.BAD": fmt.Errorf("insufficient privileges"),
		},
	}

	store := NewStore(statePath)
	layout := Layout{Root: filepath.Join(root, "ddl_management"), Account: "acct"}

	summary, err := NewCollector(source, store, layout, testConfig([]string{"table"}, nil)).
		Refresh(context.Background())
	if err != nil {
		t.Fatalf("Refresh() returned error: %v", err)
	}

	if summary.Exported != 1 || summary.Failed != 1 {
		t.Fatalf("summary exported=%d failed=%d, want 1 and 1", summary.Exported, summary.Failed)
	}
	if _, ok := store.Objects()["table-db.s.good"]; !ok {
		t.Error("successful object missing from store")
	}
	if _, ok := store.Objects()["table-db.s.bad"]; ok {
		t.Error("failed object should not reach the store")
	}
	if _, err := os.Stat(statePath); err != nil {
		t.Errorf("snapshot should still be saved after isolated failures: %v", err)
	}
}

func TestRefreshListingFailureAbortsWithoutSaving(t *testing.T) {
	root := t.TempDir()
	statePath := filepath.Join(root, "state.json")

	source := &fakeSource{
		listErrs: map[string]error{"table": fmt.Errorf("network unreachable")},
	}

	store := NewStore(statePath)
	layout := Layout{Root: filepath.Join(root, "ddl_management"), Account: "acct"}

	_, err := NewCollector(source, store, layout, testConfig([]string{"table"}, nil)).
		Refresh(context.Background())
	if err == nil {
		t.Fatal("Refresh() should fail when a listing fails")
	}
	if _, statErr := os.Stat(statePath); !os.IsNotExist(statErr) {
		t.Error("snapshot must not be written after a failed listing")
	}
}

func TestRefreshAccountScopeWhenNoDatabases(t *testing.T) {
	source := &fakeSource{}
	store := NewStore(filepath.Join(t.TempDir(), "state.json"))
	layout := Layout{Root: t.TempDir(), Account: "acct"}

	if _, err := NewCollector(source, store, layout, testConfig([]string{"table"}, nil)).
		Refresh(context.Background()); err != nil {
		t.Fatalf("Refresh() returned error: %v", err)
	}

	if len(source.scopes) != 1 || source.scopes[0] != "table in account" {
		t.Errorf("listing scopes = %v, want [table in account]", source.scopes)
	}
}

func keysOf(store *Store) []string {
	keys := make([]string, 0, store.Len())
	for k := range store.Objects() {
		keys = append(keys, k)
	}
	return keys
}
