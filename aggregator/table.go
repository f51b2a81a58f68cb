package aggregator

import (
	"fmt"
	"sort"

	"github.com/puzpuzpuz/xsync/v3"
)

// Table maps function names to aggregators. Safe for concurrent use.
type Table struct {
	entries *xsync.MapOf[string, Aggregator]
}

// NewTable creates a table holding the given aggregators.
func NewTable(aggregators ...Aggregator) (*Table, error) {
	t := &Table{entries: xsync.NewMapOf[string, Aggregator]()}
	for _, a := range aggregators {
		if err := t.Register(a); err != nil {
			return nil, err
		}
	}
	return t, nil
}

// Register adds an aggregator under its name.
func (t *Table) Register(a Aggregator) error {
	if a == nil {
		return fmt.Errorf("aggregator is required")
	}
	name := a.Name()
	if name == "" {
		return fmt.Errorf("aggregator name is required")
	}

	if _, loaded := t.entries.LoadOrStore(name, a); loaded {
		return fmt.Errorf("%w: %s", ErrDuplicateFunction, name)
	}
	return nil
}

// Get resolves an aggregator by name.
func (t *Table) Get(name string) (Aggregator, error) {
	a, ok := t.entries.Load(name)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownFunction, name)
	}
	return a, nil
}

// Names returns the registered function names in lexical order.
func (t *Table) Names() []string {
	names := make([]string, 0, t.entries.Size())
	t.entries.Range(func(name string, _ Aggregator) bool {
		names = append(names, name)
		return true
	})
	sort.Strings(names)
	return names
}

// Len returns the number of registered aggregators.
func (t *Table) Len() int {
	return t.entries.Size()
}
