package filter

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/imattdu/orbit-apm/model"
)

func TestEmptyChainPasses(t *testing.T) {
	c := NewChain[*model.Transaction]("transaction", nil)
	tx := &model.Transaction{Name: "GET /"}
	out, ok := c.Apply(context.Background(), tx)
	assert.True(t, ok)
	assert.Same(t, tx, out)
}

func TestTransformAndDrop(t *testing.T) {
	c := NewChain[*model.Transaction]("transaction", nil)
	c.Add(func(_ context.Context, tx *model.Transaction) *model.Transaction {
		cp := *tx
		cp.Name = "renamed"
		return &cp
	})
	var seen string
	c.Add(func(_ context.Context, tx *model.Transaction) *model.Transaction {
		seen = tx.Name
		if tx.Type == "healthcheck" {
			return nil
		}
		return tx
	})
	c.Add(nil)
	require.Equal(t, 2, c.Len())

	out, ok := c.Apply(context.Background(), &model.Transaction{Name: "GET /", Type: "request"})
	require.True(t, ok)
	assert.Equal(t, "renamed", out.Name)
	assert.Equal(t, "renamed", seen)

	out, ok = c.Apply(context.Background(), &model.Transaction{Type: "healthcheck"})
	assert.False(t, ok)
	assert.Nil(t, out)
}

func TestPanicFailsOpen(t *testing.T) {
	c := NewChain[*model.Span]("span", nil)
	c.Add(func(context.Context, *model.Span) *model.Span { panic("boom") })
	called := false
	c.Add(func(_ context.Context, s *model.Span) *model.Span {
		called = true
		return s
	})

	span := &model.Span{Name: "SELECT"}
	out, ok := c.Apply(context.Background(), span)
	assert.True(t, ok)
	assert.True(t, called)
	assert.Same(t, span, out)
}

func TestSetRoutesByKind(t *testing.T) {
	s := NewSet(nil)
	s.Transaction.Add(func(context.Context, *model.Transaction) *model.Transaction { return nil })

	out, ok := s.Apply(context.Background(), &model.Transaction{Name: "dropped"})
	assert.False(t, ok)
	assert.Nil(t, out)

	span := &model.Span{Name: "kept"}
	out, ok = s.Apply(context.Background(), span)
	assert.True(t, ok)
	assert.Same(t, span, out)

	var nilSet *Set
	out, ok = nilSet.Apply(context.Background(), span)
	assert.True(t, ok)
	assert.Same(t, span, out)
}
