package migrations

import (
	"strings"
	"testing"
)

func TestLoad_Ordered(t *testing.T) {
	for _, dir := range []string{DirPostgres, DirClickhouse} {
		ms, err := Load(dir)
		if err != nil {
			t.Fatalf("Load(%s) failed: %v", dir, err)
		}
		if len(ms) == 0 {
			t.Fatalf("Load(%s) returned no migrations", dir)
		}
		for i := 1; i < len(ms); i++ {
			if ms[i-1].Version >= ms[i].Version {
				t.Errorf("%s migrations out of order: %s before %s", dir, ms[i-1].Version, ms[i].Version)
			}
		}
	}
}

func TestLoad_PostgresSchema(t *testing.T) {
	ms, err := Load(DirPostgres)
	if err != nil {
		t.Fatal(err)
	}
	var all strings.Builder
	for _, m := range ms {
		all.WriteString(m.SQL)
	}
	for _, table := range []string{"trading_signals", "verification_tasks"} {
		if !strings.Contains(all.String(), table) {
			t.Errorf("postgres migrations do not create %s", table)
		}
	}
}

func TestSplitStatements(t *testing.T) {
	sql := `
-- first table
CREATE TABLE a (x String) ENGINE = Memory;

CREATE TABLE b (y String) ENGINE = Memory;
`
	stmts, err := SplitStatements(sql)
	if err != nil {
		t.Fatalf("SplitStatements failed: %v", err)
	}
	if len(stmts) != 2 {
		t.Fatalf("got %d statements, want 2: %q", len(stmts), stmts)
	}
	if !strings.HasPrefix(stmts[0], "CREATE TABLE a") {
		t.Errorf("first statement = %q", stmts[0])
	}
}

func TestSplitStatements_RejectsSemicolonInString(t *testing.T) {
	_, err := SplitStatements(`INSERT INTO a VALUES ('x;y');`)
	if err == nil {
		t.Error("expected error for semicolon inside string literal")
	}
}

func TestSplitStatements_EscapedQuote(t *testing.T) {
	stmts, err := SplitStatements(`SELECT 'it''s';`)
	if err != nil {
		t.Fatalf("SplitStatements failed: %v", err)
	}
	if len(stmts) != 1 {
		t.Errorf("got %d statements, want 1", len(stmts))
	}
}

func TestDatabaseFromDSN(t *testing.T) {
	db, err := databaseFromDSN("clickhouse://default:@localhost:9000/signals")
	if err != nil || db != "signals" {
		t.Errorf("databaseFromDSN = %q, %v; want signals", db, err)
	}
	if _, err := databaseFromDSN("clickhouse://localhost:9000"); err == nil {
		t.Error("expected error for dsn without database")
	}
}
