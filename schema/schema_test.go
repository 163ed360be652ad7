package schema_test

import (
	"errors"
	"path/filepath"
	"testing"

	. "gopkg.in/check.v1"

	"github.com/canonical/sqlfrag"
	"github.com/canonical/sqlfrag/engine/sqlite"
	"github.com/canonical/sqlfrag/schema"
	"github.com/canonical/sqlfrag/value"
)

// Hook up gocheck into the "go test" runner.
func TestSchema(t *testing.T) { TestingT(t) }

type SchemaSuite struct {
	db  *sqlfrag.DB
	dir string
}

var _ = Suite(&SchemaSuite{})

func (s *SchemaSuite) SetUpTest(c *C) {
	db, err := sqlfrag.Open(sqlite.New(), ":memory:")
	c.Assert(err, IsNil)
	s.db = db
	s.dir = c.MkDir()

	statements := []string{
		`CREATE TABLE person (
			id integer PRIMARY KEY,
			name text NOT NULL,
			age integer DEFAULT 18
		)`,
		`CREATE TABLE address (
			id integer,
			person_id integer,
			person_name text,
			owner integer REFERENCES person,
			FOREIGN KEY (person_id, person_name) REFERENCES person (id, name) ON DELETE CASCADE
		)`,
		`CREATE VIEW adult AS SELECT * FROM person WHERE age >= 18`,
	}
	for _, stmt := range statements {
		c.Assert(s.db.Exec(stmt), IsNil)
	}
}

func (s *SchemaSuite) TearDownTest(c *C) {
	c.Assert(s.db.Close(), IsNil)
}

func (s *SchemaSuite) attach(c *C, name string, stmts ...string) string {
	dir, err := filepath.EvalSymlinks(s.dir)
	c.Assert(err, IsNil)
	file := filepath.Join(dir, name+".db")
	c.Assert(s.db.Exec("ATTACH DATABASE ? AS "+name, file), IsNil)
	for _, stmt := range stmts {
		c.Assert(s.db.Exec(stmt), IsNil)
	}
	return file
}

func (s *SchemaSuite) TestDatabases(c *C) {
	file := s.attach(c, "extra")

	dbs, err := schema.New(s.db).Databases()
	c.Assert(err, IsNil)
	var attached []schema.Database
	for _, db := range dbs {
		// The temporary database is listed once it has been created.
		if db.Name != "temp" {
			attached = append(attached, db)
		}
	}
	c.Assert(attached, DeepEquals, []schema.Database{
		{Name: "main", File: ""},
		{Name: "extra", File: file},
	})
}

func (s *SchemaSuite) TestTables(c *C) {
	tables, err := schema.New(s.db).Tables()
	c.Assert(err, IsNil)

	got := map[string]string{}
	for _, t := range tables {
		c.Check(t.Schema, Equals, "main")
		got[t.Name] = t.Type
	}
	c.Assert(got, DeepEquals, map[string]string{
		"person":  "table",
		"address": "table",
		"adult":   "view",
	})
}

func (s *SchemaSuite) TestShadowedTable(c *C) {
	s.attach(c, "one", "CREATE TABLE one.t (a integer)")
	s.attach(c, "two", "CREATE TABLE two.t (b text, c integer)")

	r := schema.New(s.db)
	tables, err := r.Tables()
	c.Assert(err, IsNil)
	n := 0
	for _, t := range tables {
		if t.Name == "t" {
			n++
		}
	}
	c.Assert(n, Equals, 1)

	t, err := r.Table("t")
	c.Assert(err, IsNil)
	c.Assert(t.Schema, Equals, "one")
	cols, err := t.Columns()
	c.Assert(err, IsNil)
	c.Assert(cols, HasLen, 1)
	c.Assert(cols[0].Name, Equals, "a")
}

func (s *SchemaSuite) TestTemporaryTableShadowsMain(c *C) {
	c.Assert(s.db.Exec("CREATE TABLE t (main_col)"), IsNil)
	c.Assert(s.db.Exec("CREATE TEMP TABLE t (temp_col)"), IsNil)
	s.attach(c, "one", "CREATE TABLE one.t (one_col)")

	cur, err := s.db.Prepare("SELECT * FROM t")
	c.Assert(err, IsNil)
	defer cur.Close()
	c.Assert(cur.Columns(), DeepEquals, []string{"temp_col"})

	r := schema.New(s.db)
	t, err := r.Table("t")
	c.Assert(err, IsNil)
	c.Assert(t.Schema, Equals, "temp")
	cols, err := t.Columns()
	c.Assert(err, IsNil)
	c.Assert(cols, HasLen, 1)
	c.Assert(cols[0].Name, Equals, "temp_col")

	// Tables of main still come before those of attached databases.
	t, err = r.Table("person")
	c.Assert(err, IsNil)
	c.Assert(t.Schema, Equals, "main")
}

func (s *SchemaSuite) TestColumns(c *C) {
	t, err := schema.New(s.db).Table("person")
	c.Assert(err, IsNil)

	cols, err := t.Columns()
	c.Assert(err, IsNil)
	c.Assert(cols, DeepEquals, []schema.Column{
		{Name: "id", Type: "INTEGER", Nullable: true, PrimaryKey: true, Default: value.NullValue()},
		{Name: "name", Type: "TEXT", Nullable: false, PrimaryKey: false, Default: value.NullValue()},
		{Name: "age", Type: "INTEGER", Nullable: true, PrimaryKey: false, Default: value.Str("18")},
	})
}

func (s *SchemaSuite) TestForeignKeys(c *C) {
	t, err := schema.New(s.db).Table("address")
	c.Assert(err, IsNil)

	fks, err := t.ForeignKeys()
	c.Assert(err, IsNil)
	c.Assert(fks, HasLen, 2)

	byWidth := map[int]schema.ForeignKey{}
	for _, fk := range fks {
		byWidth[len(fk.Columns)] = fk
	}
	c.Assert(byWidth[1], DeepEquals, schema.ForeignKey{
		Table:    "person",
		Columns:  map[string]string{"owner": ""},
		OnUpdate: "NO ACTION",
		OnDelete: "NO ACTION",
	})
	c.Assert(byWidth[2], DeepEquals, schema.ForeignKey{
		Table:    "person",
		Columns:  map[string]string{"person_id": "id", "person_name": "name"},
		OnUpdate: "NO ACTION",
		OnDelete: "CASCADE",
	})

	t, err = schema.New(s.db).Table("person")
	c.Assert(err, IsNil)
	fks, err = t.ForeignKeys()
	c.Assert(err, IsNil)
	c.Assert(fks, HasLen, 0)
}

func (s *SchemaSuite) TestMemoized(c *C) {
	r := schema.New(s.db)
	tables, err := r.Tables()
	c.Assert(err, IsNil)
	t, err := r.Table("person")
	c.Assert(err, IsNil)
	cols, err := t.Columns()
	c.Assert(err, IsNil)

	c.Assert(s.db.Exec("CREATE TABLE later (x)"), IsNil)
	c.Assert(s.db.Exec("ALTER TABLE person ADD COLUMN email text"), IsNil)

	// The reflector keeps what it has read.
	again, err := r.Tables()
	c.Assert(err, IsNil)
	c.Assert(again, DeepEquals, tables)
	_, err = r.Table("later")
	c.Assert(errors.Is(err, schema.ErrNotFound), Equals, true)
	colsAgain, err := t.Columns()
	c.Assert(err, IsNil)
	c.Assert(colsAgain, HasLen, len(cols))

	// A new reflector sees the changes.
	fresh := schema.New(s.db)
	_, err = fresh.Table("later")
	c.Assert(err, IsNil)
	t, err = fresh.Table("person")
	c.Assert(err, IsNil)
	cols, err = t.Columns()
	c.Assert(err, IsNil)
	c.Assert(cols, HasLen, 4)
}

func (s *SchemaSuite) TestTableNotFound(c *C) {
	_, err := schema.New(s.db).Table("missing")
	c.Assert(err, ErrorMatches, `table "missing": not found`)
	c.Assert(errors.Is(err, schema.ErrNotFound), Equals, true)
}
