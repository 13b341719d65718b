package oracle

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNoOpAlwaysReportsAbsent(t *testing.T) {
	var o Oracle = NoOp{}
	ctx := context.Background()

	_, ok := o.Hover(ctx, "a.go", 1, 1)
	assert.False(t, ok)

	_, ok = o.Definition(ctx, "a.go", 1, 1)
	assert.False(t, ok)

	assert.False(t, o.Available(ctx))
	assert.NoError(t, o.Close())
}

type fakeOracle struct {
	alive bool
	hover string
}

func (f *fakeOracle) Hover(ctx context.Context, file string, line, char int) (string, bool) {
	return f.hover, true
}
func (f *fakeOracle) Definition(ctx context.Context, file string, line, char int) (Location, bool) {
	return Location{FilePath: file, Line: line, Char: char}, true
}
func (f *fakeOracle) Available(ctx context.Context) bool { return f.alive }
func (f *fakeOracle) Close() error                       { f.alive = false; return nil }

func TestManagedStartsLazily(t *testing.T) {
	calls := 0
	m := NewManaged(func() (Oracle, error) {
		calls++
		return &fakeOracle{alive: true, hover: "int"}, nil
	})

	assert.Equal(t, 0, calls)
	typ, ok := m.Hover(context.Background(), "a.go", 1, 1)
	assert.True(t, ok)
	assert.Equal(t, "int", typ)
	assert.Equal(t, 1, calls)
}

func TestManagedRestartsOnCrash(t *testing.T) {
	instances := []*fakeOracle{
		{alive: true},
		{alive: true},
	}
	idx := 0
	m := NewManaged(func() (Oracle, error) {
		o := instances[idx]
		idx++
		return o, nil
	})

	m.Hover(context.Background(), "a.go", 1, 1)
	instances[0].alive = false // simulate crash

	m.Hover(context.Background(), "a.go", 1, 1)
	assert.Equal(t, 2, idx)
}

func TestManagedFallsBackToNoOpOnFactoryError(t *testing.T) {
	m := NewManaged(func() (Oracle, error) {
		return nil, errors.New("boom")
	})

	_, ok := m.Hover(context.Background(), "a.go", 1, 1)
	assert.False(t, ok)
}
