package engine

import "strconv"

// Status is a result code. The values are those of the SQLite primary
// result codes so that engines built on SQLite can pass them through.
type Status int

const (
	StatusOK         Status = 0
	StatusError      Status = 1
	StatusInternal   Status = 2
	StatusPerm       Status = 3
	StatusAbort      Status = 4
	StatusBusy       Status = 5
	StatusLocked     Status = 6
	StatusNoMem      Status = 7
	StatusReadOnly   Status = 8
	StatusInterrupt  Status = 9
	StatusIOErr      Status = 10
	StatusCorrupt    Status = 11
	StatusNotFound   Status = 12
	StatusFull       Status = 13
	StatusCantOpen   Status = 14
	StatusProtocol   Status = 15
	StatusEmpty      Status = 16
	StatusSchema     Status = 17
	StatusTooBig     Status = 18
	StatusConstraint Status = 19
	StatusMismatch   Status = 20
	StatusMisuse     Status = 21
	StatusNoLFS      Status = 22
	StatusAuth       Status = 23
	StatusFormat     Status = 24
	StatusRange      Status = 25
	StatusNotADB     Status = 26
	StatusRow        Status = 100
	StatusDone       Status = 101
)

var statusText = map[Status]string{
	StatusOK:         "not an error",
	StatusError:      "SQL logic error",
	StatusInternal:   "internal logic error",
	StatusPerm:       "access permission denied",
	StatusAbort:      "query aborted",
	StatusBusy:       "database is locked",
	StatusLocked:     "database table is locked",
	StatusNoMem:      "out of memory",
	StatusReadOnly:   "attempt to write a readonly database",
	StatusInterrupt:  "interrupted",
	StatusIOErr:      "disk I/O error",
	StatusCorrupt:    "database disk image is malformed",
	StatusNotFound:   "unknown operation",
	StatusFull:       "database or disk is full",
	StatusCantOpen:   "unable to open database file",
	StatusProtocol:   "locking protocol",
	StatusEmpty:      "empty statement",
	StatusSchema:     "database schema has changed",
	StatusTooBig:     "string or blob too big",
	StatusConstraint: "constraint failed",
	StatusMismatch:   "datatype mismatch",
	StatusMisuse:     "bad parameter or other API misuse",
	StatusNoLFS:      "large file support is disabled",
	StatusAuth:       "authorization denied",
	StatusFormat:     "auxiliary database format error",
	StatusRange:      "column index out of range",
	StatusNotADB:     "file is not a database",
	StatusRow:        "another row available",
	StatusDone:       "no more rows available",
}

// Text returns a generic description of the status. Engines with their own
// message tables should be preferred through Engine.ErrStr.
func (s Status) Text() string {
	// Extended result codes carry the primary code in the low byte.
	if t, ok := statusText[s&0xff]; ok {
		return t
	}
	return "unknown error"
}

func (s Status) String() string {
	return s.Text() + " (" + strconv.Itoa(int(s)) + ")"
}

// StorageClass is the storage class of a result column value.
type StorageClass int

const (
	ClassInteger StorageClass = 1
	ClassFloat   StorageClass = 2
	ClassText    StorageClass = 3
	ClassBlob    StorageClass = 4
	ClassNull    StorageClass = 5
)

func (c StorageClass) String() string {
	switch c {
	case ClassInteger:
		return "INTEGER"
	case ClassFloat:
		return "FLOAT"
	case ClassText:
		return "TEXT"
	case ClassBlob:
		return "BLOB"
	case ClassNull:
		return "NULL"
	}
	return "StorageClass(" + strconv.Itoa(int(c)) + ")"
}
