package aggregator

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type namedAggregator struct {
	name  string
	calls int
}

func (n *namedAggregator) Name() string { return n.name }

func (n *namedAggregator) Aggregate(ctx context.Context, env Env, values []string) error {
	n.calls++
	return nil
}

func TestTableRegisterAndGet(t *testing.T) {
	table, err := NewTable(&namedAggregator{name: "wordcount"}, &namedAggregator{name: "avg"})
	require.NoError(t, err)

	a, err := table.Get("wordcount")
	require.NoError(t, err)
	assert.Equal(t, "wordcount", a.Name())

	assert.Equal(t, 2, table.Len())
	assert.Equal(t, []string{"avg", "wordcount"}, table.Names())
}

func TestTableUnknownFunction(t *testing.T) {
	table, err := NewTable()
	require.NoError(t, err)

	_, err = table.Get("missing")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUnknownFunction)
	assert.Empty(t, table.Names())
}

func TestTableRejectsDuplicates(t *testing.T) {
	table, err := NewTable(&namedAggregator{name: "wordcount"})
	require.NoError(t, err)

	err = table.Register(&namedAggregator{name: "wordcount"})
	assert.ErrorIs(t, err, ErrDuplicateFunction)
	assert.Equal(t, 1, table.Len())

	_, err = NewTable(&namedAggregator{name: "x"}, &namedAggregator{name: "x"})
	assert.ErrorIs(t, err, ErrDuplicateFunction)
}

func TestTableRejectsInvalid(t *testing.T) {
	table, err := NewTable()
	require.NoError(t, err)

	assert.Error(t, table.Register(nil))
	assert.Error(t, table.Register(&namedAggregator{}))
}
