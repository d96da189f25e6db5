package model

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Aman-CERP/reqfind/internal/docstore"
)

func TestHostRules_UpdateStampsAndMerges(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	m := f.models.HostRules
	m.now = fixedClock(100)

	rule, err := m.Update(ctx, &HostRule{ID: "local", From: "api.example.com", To: "localhost:8080", Enabled: true})
	require.NoError(t, err)
	assert.Equal(t, int64(100), rule.Updated)
	assert.NotEmpty(t, rule.Rev)

	// Given: a write without a revision that only changes the comment
	m.now = fixedClock(200)
	rule, err = m.Update(ctx, &HostRule{ID: "local", Comment: "dev box"})
	require.NoError(t, err)

	// Then: the stored rule is kept and the comment applied
	assert.Equal(t, "api.example.com", rule.From)
	assert.Equal(t, "localhost:8080", rule.To)
	assert.True(t, rule.Enabled)
	assert.Equal(t, "dev box", rule.Comment)
	assert.Equal(t, int64(200), rule.Updated)

	_, err = m.Update(ctx, &HostRule{From: "x"})
	assert.Error(t, err, "a rule needs an id")
}

func TestHostRules_BulkListRemoveClear(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	m := f.models.HostRules

	saved, errs := m.UpdateBulk(ctx, []*HostRule{
		{ID: "a", From: "a.com", To: "b.com"},
		{From: "c.com", To: "d.com"},
		nil,
	})
	assert.NoError(t, errs[0])
	assert.NoError(t, errs[1])
	assert.Error(t, errs[2])
	assert.NotEmpty(t, saved[1].ID, "a rule without an id gets one")

	rules, err := m.List(ctx)
	require.NoError(t, err)
	assert.Len(t, rules, 2)

	// remove without a revision takes the current one
	require.NoError(t, m.Remove(ctx, "a", ""))
	assert.True(t, docstore.NotFound(m.Remove(ctx, "a", "")))

	n, err := m.Clear(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	rules, err = m.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, rules)
}

func TestHostRules_RemoveStaleRev(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	m := f.models.HostRules
	first, err := m.Update(ctx, &HostRule{ID: "a", From: "a.com"})
	require.NoError(t, err)
	_, err = m.Update(ctx, &HostRule{ID: "a", Rev: first.Rev, From: "b.com"})
	require.NoError(t, err)

	assert.True(t, docstore.Conflict(m.Remove(ctx, "a", first.Rev)))
}
