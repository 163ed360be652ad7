package main

import (
	"fmt"
	"io"
	"log"
	"os"
	"strings"

	"github.com/fatih/color"
	"github.com/go-pkgz/lgr"
	"github.com/hashicorp/go-multierror"
	"github.com/jessevdk/go-flags"
	"gopkg.in/yaml.v3"

	_ "github.com/go-sql-driver/mysql"
	_ "github.com/jackc/pgx/v5/stdlib"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
	_ "modernc.org/sqlite"

	"github.com/canonical/sqlfrag"
	"github.com/canonical/sqlfrag/schema"
	"github.com/canonical/sqlfrag/value"
)

type options struct {
	PositionalArgs struct {
		Query string   `positional-arg-name:"query" description:"statement to run"`
		Args  []string `positional-arg-name:"args" description:"positional statement arguments"`
	} `positional-args:"yes" positional-optional:"yes"`

	ConfigFile string            `short:"f" long:"config" env:"SQLFRAG_CONFIG" description:"yaml config file"`
	Engine     string            `short:"e" long:"engine" env:"SQLFRAG_ENGINE" description:"engine" choice:"sqlite" choice:"sql"`
	Driver     string            `short:"d" long:"driver" env:"SQLFRAG_DRIVER" description:"database/sql driver for the sql engine"`
	DSN        string            `long:"dsn" env:"SQLFRAG_DSN" description:"database name or data source"`
	Params     map[string]string `short:"p" long:"param" description:"named statement argument, name:value"`

	Schema  bool `long:"schema" description:"print the reflected schema as yaml"`
	Version bool `long:"version" description:"show version"`
	Dbg     bool `long:"dbg" description:"debug mode"`
}

var revision = "latest"

func main() {
	fmt.Printf("sqlfrag %s\n", revision)

	var opts options
	p := flags.NewParser(&opts, flags.PrintErrors|flags.PassDoubleDash|flags.HelpFlag)
	if _, err := p.Parse(); err != nil {
		os.Exit(1)
	}
	if opts.Version {
		os.Exit(0) // already printed
	}
	setupLog(opts.Dbg)

	if err := run(opts, os.Stdout); err != nil {
		if opts.Dbg {
			log.Panicf("[ERROR] %v", err)
		}
		fmt.Printf("failed, %v\n", err)
		os.Exit(1)
	}
}

func run(opts options, out io.Writer) (err error) {
	cfg, err := sqlfrag.LoadConfig(opts.ConfigFile)
	if err != nil {
		return err
	}
	if opts.Engine != "" {
		cfg.Engine = opts.Engine
	}
	if opts.Driver != "" {
		cfg.Driver = opts.Driver
	}
	if opts.DSN != "" {
		cfg.DSN = opts.DSN
	}
	log.Printf("[DEBUG] config: engine=%s, driver=%s, dsn=%s", cfg.Engine, cfg.Driver, cfg.DSN)

	db, err := sqlfrag.OpenConfig(cfg, sqlfrag.WithLogger(lgr.Std))
	if err != nil {
		return err
	}
	defer func() {
		if cerr := db.Close(); cerr != nil {
			err = multierror.Append(err, cerr).ErrorOrNil()
		}
	}()

	errs := new(multierror.Error)
	switch {
	case opts.PositionalArgs.Query != "":
		if err := runQuery(db, opts, out); err != nil {
			errs = multierror.Append(errs, err)
		}
	case !opts.Schema:
		fmt.Fprintf(out, "%s %s\n", cfg.Engine, db.Version())
	}
	if opts.Schema {
		if err := dumpSchema(db, out); err != nil {
			errs = multierror.Append(errs, err)
		}
	}
	return errs.ErrorOrNil()
}

// runQuery runs the query and prints its rows tab separated, headed by the
// column names.
func runQuery(db *sqlfrag.DB, opts options, out io.Writer) (err error) {
	cur, err := db.Prepare(opts.PositionalArgs.Query)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := cur.Close(); err == nil {
			err = cerr
		}
	}()

	args := make([]any, 0, len(opts.PositionalArgs.Args)+1)
	for _, a := range opts.PositionalArgs.Args {
		args = append(args, a)
	}
	if len(opts.Params) > 0 {
		args = append(args, opts.Params)
	}

	rows := cur.Rows(args...)
	header := false
	for rows.Next() {
		if !header {
			fmt.Fprintln(out, strings.Join(cur.Columns(), "\t"))
			header = true
		}
		vals := rows.Values()
		cells := make([]string, len(vals))
		for i, v := range vals {
			cells[i] = cell(v)
		}
		fmt.Fprintln(out, strings.Join(cells, "\t"))
	}
	return rows.Err()
}

func cell(v value.Value) string {
	if s, ok := v.Str(); ok {
		return s
	}
	return v.String()
}

type columnDoc struct {
	Name       string `yaml:"name"`
	Type       string `yaml:"type,omitempty"`
	Nullable   bool   `yaml:"nullable"`
	PrimaryKey bool   `yaml:"primary_key,omitempty"`
	Default    string `yaml:"default,omitempty"`
}

type foreignKeyDoc struct {
	Table    string            `yaml:"table"`
	Columns  map[string]string `yaml:"columns"`
	OnUpdate string            `yaml:"on_update"`
	OnDelete string            `yaml:"on_delete"`
}

type tableDoc struct {
	Schema      string          `yaml:"schema"`
	Name        string          `yaml:"name"`
	Type        string          `yaml:"type"`
	Columns     []columnDoc     `yaml:"columns"`
	ForeignKeys []foreignKeyDoc `yaml:"foreign_keys,omitempty"`
}

type schemaDoc struct {
	Databases []schema.Database `yaml:"databases"`
	Tables    []tableDoc        `yaml:"tables"`
}

// dumpSchema prints the databases and tables visible on db as yaml.
func dumpSchema(db *sqlfrag.DB, out io.Writer) error {
	r := schema.New(db)
	dbs, err := r.Databases()
	if err != nil {
		return err
	}
	tables, err := r.Tables()
	if err != nil {
		return err
	}

	doc := schemaDoc{Databases: dbs}
	for _, t := range tables {
		td := tableDoc{Schema: t.Schema, Name: t.Name, Type: t.Type}
		cols, err := t.Columns()
		if err != nil {
			return err
		}
		for _, c := range cols {
			cd := columnDoc{Name: c.Name, Type: c.Type, Nullable: c.Nullable, PrimaryKey: c.PrimaryKey}
			if !c.Default.IsNull() {
				cd.Default = cell(c.Default)
			}
			td.Columns = append(td.Columns, cd)
		}
		fks, err := t.ForeignKeys()
		if err != nil {
			return err
		}
		for _, fk := range fks {
			td.ForeignKeys = append(td.ForeignKeys, foreignKeyDoc(fk))
		}
		doc.Tables = append(doc.Tables, td)
	}

	enc := yaml.NewEncoder(out)
	enc.SetIndent(2)
	if err := enc.Encode(doc); err != nil {
		return fmt.Errorf("can't encode schema: %w", err)
	}
	return enc.Close()
}

func setupLog(dbg bool) {
	logOpts := []lgr.Option{lgr.Out(io.Discard), lgr.Err(io.Discard)} // default to discard
	if dbg {
		logOpts = []lgr.Option{lgr.Debug, lgr.Msec, lgr.LevelBraces, lgr.StackTraceOnError}
	}

	colorizer := lgr.Mapper{
		ErrorFunc:  func(s string) string { return color.New(color.FgHiRed).Sprint(s) },
		WarnFunc:   func(s string) string { return color.New(color.FgRed).Sprint(s) },
		InfoFunc:   func(s string) string { return color.New(color.FgYellow).Sprint(s) },
		DebugFunc:  func(s string) string { return color.New(color.FgWhite).Sprint(s) },
		CallerFunc: func(s string) string { return color.New(color.FgBlue).Sprint(s) },
		TimeFunc:   func(s string) string { return color.New(color.FgCyan).Sprint(s) },
	}
	logOpts = append(logOpts, lgr.Map(colorizer))

	lgr.SetupStdLogger(logOpts...)
	lgr.Setup(logOpts...)
}
