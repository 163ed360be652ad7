/*
Sqlfrag is a client-side layer for embedded SQL engines that composes statements from mergeable fragments and runs them through a row-at-a-time cursor.

Statements are not built by string concatenation.
They are described as trees of fragments (see package fragment) which are flattened into one list per clause and rendered as SQL text.
The text is prepared into a [Cursor] which binds Go values as parameters and decodes result columns into the closed set of values of package value.

# Basics

A database is opened through an engine.
The engines shipped with this module are engine/sqlite, which calls SQLite directly, and engine/sqldb, which drives any database/sql driver:

	db, err := sqlfrag.Open(sqlite.New(), ":memory:")
	...
	defer db.Close()

Fragments are composed and prepared:

	q := fragment.Compose(
		fragment.Select("id", "name"),
		fragment.From("person"),
		fragment.Where("age > ?"),
	)
	cur, err := db.PrepareFragment(q) // SELECT id,name FROM person WHERE age > ?
	...
	defer cur.Close()

Rows are read by binding the cursor and iterating:

	rows := cur.Rows(18)
	for rows.Next() {
		row := rows.Named() // map[string]value.Value
		...
	}
	err = rows.Err()

# Binding

Argument i of [Cursor.Bind], [Cursor.Rows] and [Cursor.Exec] is bound to parameter i+1.
nil is bound as NULL, floats as REAL, integers and booleans as INTEGER, strings as TEXT and byte slices as BLOB.
Slices and maps are composite arguments: slice elements and integer map keys bind by position, string map keys bind to the named parameter of the same name with or without its prefix:

	cur, err := db.Prepare("SELECT * FROM person WHERE name = :name")
	...
	rows := cur.Rows(map[string]any{"name": "Fred"})

Map keys that name no parameter of the statement are ignored.

# Cursor states

A cursor is Ready after it has been bound or reset.
[Cursor.Step] moves it to HasRow while rows are available; when the result is exhausted Step resets the cursor to Ready and reports false.
If a step fails the cursor is Failed and can only be closed.
A closed cursor is Finalized.

# Releasing statements

Every cursor owns a prepared statement which must be released.
[Cursor.Close] releases it immediately.
Cursors marked with [Cursor.AutoRelease], or prepared on a DB opened with [WithAutoRelease], release their statement some time after they are garbage collected, on the next call made to their DB.
[DB.Close] releases every statement still held.
*/
package sqlfrag
