package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	. "gopkg.in/check.v1"
	"gopkg.in/yaml.v3"
)

// Hook up gocheck into the "go test" runner.
func TestCmd(t *testing.T) { TestingT(t) }

type MainSuite struct {
	dsn string
}

var _ = Suite(&MainSuite{})

func (s *MainSuite) SetUpTest(c *C) {
	s.dsn = filepath.Join(c.MkDir(), "test.db")
	for _, stmt := range []string{
		"CREATE TABLE team (id integer PRIMARY KEY, name text NOT NULL)",
		"CREATE TABLE person (id integer, name text, team_id integer REFERENCES team (id), age integer DEFAULT 30)",
		"INSERT INTO team VALUES (1, 'engineering'), (2, 'sales')",
		"INSERT INTO person VALUES (1, 'Fred', 1, 40), (2, 'Mary', 2, 25), (3, 'Jim', 1, NULL)",
	} {
		opts := options{DSN: s.dsn}
		opts.PositionalArgs.Query = stmt
		c.Assert(run(opts, &bytes.Buffer{}), IsNil)
	}
}

func (s *MainSuite) TestVersion(c *C) {
	out := &bytes.Buffer{}
	c.Assert(run(options{DSN: s.dsn}, out), IsNil)
	c.Assert(out.String(), Matches, `sqlite 3\.\d+\.\d+\n`)
}

func (s *MainSuite) TestQuery(c *C) {
	tests := []struct {
		summary string
		query   string
		args    []string
		params  map[string]string
		output  string
	}{{
		summary: "no arguments",
		query:   "SELECT id, name, age FROM person ORDER BY id",
		output:  "id\tname\tage\n1\tFred\t40\n2\tMary\t25\n3\tJim\tNULL\n",
	}, {
		summary: "positional arguments",
		query:   "SELECT name FROM person WHERE team_id = ? AND age > ?",
		args:    []string{"1", "30"},
		output:  "name\nFred\n",
	}, {
		summary: "named arguments",
		query:   "SELECT p.name, t.name AS team FROM person AS p, team AS t WHERE p.team_id = t.id AND t.name = :team ORDER BY p.id",
		params:  map[string]string{"team": "engineering"},
		output:  "name\tteam\nFred\tengineering\nJim\tengineering\n",
	}, {
		summary: "no rows",
		query:   "SELECT name FROM person WHERE age > 100",
		output:  "",
	}}

	for i, t := range tests {
		opts := options{DSN: s.dsn, Params: t.params}
		opts.PositionalArgs.Query = t.query
		opts.PositionalArgs.Args = t.args
		out := &bytes.Buffer{}
		err := run(opts, out)
		c.Assert(err, IsNil, Commentf("test %d: %s", i, t.summary))
		c.Check(out.String(), Equals, t.output, Commentf("test %d: %s", i, t.summary))
	}
}

func (s *MainSuite) TestQueryError(c *C) {
	opts := options{DSN: s.dsn}
	opts.PositionalArgs.Query = "SELECT * FROM nowhere"
	err := run(opts, &bytes.Buffer{})
	c.Assert(err, ErrorMatches, `(?s).*no such table: nowhere.*`)
}

func (s *MainSuite) TestSchema(c *C) {
	out := &bytes.Buffer{}
	c.Assert(run(options{DSN: s.dsn, Schema: true}, out), IsNil)

	var doc schemaDoc
	c.Assert(yaml.Unmarshal(out.Bytes(), &doc), IsNil)
	c.Assert(doc.Databases, Not(HasLen), 0)
	c.Assert(doc.Databases[0].Name, Equals, "main")

	tables := map[string]tableDoc{}
	for _, t := range doc.Tables {
		tables[t.Name] = t
	}
	c.Assert(tables, HasLen, 2)
	c.Assert(tables["team"].Columns, DeepEquals, []columnDoc{
		{Name: "id", Type: "INTEGER", Nullable: true, PrimaryKey: true},
		{Name: "name", Type: "TEXT", Nullable: false},
	})
	person := tables["person"]
	c.Assert(person.Columns, HasLen, 4)
	c.Assert(person.Columns[3], DeepEquals, columnDoc{Name: "age", Type: "INTEGER", Nullable: true, Default: "30"})
	c.Assert(person.ForeignKeys, DeepEquals, []foreignKeyDoc{{
		Table:    "team",
		Columns:  map[string]string{"team_id": "id"},
		OnUpdate: "NO ACTION",
		OnDelete: "NO ACTION",
	}})
}

func (s *MainSuite) TestConfigFile(c *C) {
	conf := filepath.Join(c.MkDir(), "sqlfrag.yml")
	data := "engine: sql\ndriver: sqlite3\ndsn: " + s.dsn + "\n"
	c.Assert(os.WriteFile(conf, []byte(data), 0o600), IsNil)

	opts := options{ConfigFile: conf}
	opts.PositionalArgs.Query = "SELECT name FROM team ORDER BY id"
	out := &bytes.Buffer{}
	c.Assert(run(opts, out), IsNil)
	c.Assert(out.String(), Equals, "name\nengineering\nsales\n")

	// Flags override the file.
	opts = options{ConfigFile: conf, Driver: "sqlite"}
	opts.PositionalArgs.Query = "SELECT count(*) AS n FROM person"
	out = &bytes.Buffer{}
	c.Assert(run(opts, out), IsNil)
	c.Assert(out.String(), Equals, "n\n3\n")
}

func (s *MainSuite) TestBadConfig(c *C) {
	err := run(options{ConfigFile: filepath.Join(c.MkDir(), "missing.yml")}, &bytes.Buffer{})
	c.Assert(err, ErrorMatches, `can't read config .*missing\.yml: .*`)

	err = run(options{Engine: "sql"}, &bytes.Buffer{})
	c.Assert(err, ErrorMatches, `engine "sql" requires a driver`)
}
