package fragment

// Merged is a flattened fragment tree: one ordered list of fragments per
// clause name.
type Merged struct {
	names   []string
	clauses map[string][]Fragment
}

// Flatten merges f into a single clause map. Raw fragments append their
// tokens under their operator tag. Named clause map entries append their
// items under their name and anonymous entries are merged recursively into
// the same result, so the outcome does not depend on how deeply the
// fragments are nested. Text and Pair fragments contribute nothing at the
// top level.
func Flatten(f Fragment) *Merged {
	m := &Merged{clauses: map[string][]Fragment{}}
	m.merge(f)
	return m
}

func (m *Merged) merge(f Fragment) {
	switch f := f.(type) {
	case Raw:
		m.add(f.Op, f.Tokens)
	case Map:
		for _, e := range f {
			if e.Name == "" {
				for _, item := range e.Items {
					m.merge(item)
				}
				continue
			}
			m.add(e.Name, e.Items)
		}
	}
}

func (m *Merged) add(name string, items []Fragment) {
	if _, ok := m.clauses[name]; !ok {
		m.names = append(m.names, name)
		m.clauses[name] = []Fragment{}
	}
	m.clauses[name] = append(m.clauses[name], items...)
}

// Names returns the clause names in the order they were first seen.
func (m *Merged) Names() []string {
	return append([]string(nil), m.names...)
}

// Has reports whether the clause is present, even if it holds no items.
func (m *Merged) Has(name string) bool {
	_, ok := m.clauses[name]
	return ok
}

// Clause returns the items of the named clause in encounter order.
func (m *Merged) Clause(name string) []Fragment {
	return m.clauses[name]
}
