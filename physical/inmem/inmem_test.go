package inmem

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stephnangue/vortex/auth/token"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var base = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func TestStore_CreateAndGet(t *testing.T) {
	ctx := context.Background()
	s := New(nil)

	rec, err := s.Create(ctx, "alice", "agentA", base, base.Add(time.Hour))
	require.NoError(t, err)
	assert.Len(t, rec.ID, 36)
	assert.True(t, rec.Enabled)
	assert.Equal(t, "alice", rec.Subject)
	assert.Equal(t, "agentA", rec.BindingContext)

	got, err := s.Get(ctx, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, rec, got)

	// callers get copies
	got.Enabled = false
	again, err := s.Get(ctx, rec.ID)
	require.NoError(t, err)
	assert.True(t, again.Enabled)
}

func TestStore_GetUnknown(t *testing.T) {
	_, err := New(nil).Get(context.Background(), "missing")
	assert.ErrorIs(t, err, token.ErrNotFound)
}

func TestStore_DisableIsIdempotent(t *testing.T) {
	ctx := context.Background()
	s := New(nil)

	rec, err := s.Create(ctx, "alice", "agentA", base, base.Add(time.Hour))
	require.NoError(t, err)

	first, err := s.Disable(ctx, rec.ID)
	require.NoError(t, err)
	assert.False(t, first.Enabled)

	second, err := s.Disable(ctx, rec.ID)
	require.NoError(t, err)
	assert.False(t, second.Enabled)

	_, err = s.Disable(ctx, "missing")
	assert.ErrorIs(t, err, token.ErrNotFound)
}

func TestStore_CanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	s := New(nil)
	_, err := s.Create(ctx, "alice", "agentA", base, base.Add(time.Hour))
	assert.ErrorIs(t, err, token.ErrStoreUnavailable)
	assert.ErrorIs(t, err, context.Canceled)

	_, err = s.Get(ctx, "x")
	assert.ErrorIs(t, err, token.ErrStoreUnavailable)
	assert.Zero(t, s.Len())
}

func TestStore_FindBySubject(t *testing.T) {
	ctx := context.Background()
	s := New(nil)

	for i := 0; i < 5; i++ {
		_, err := s.Create(ctx, "alice", fmt.Sprintf("agent-%d", i), base.Add(time.Duration(i)*time.Minute), base.Add(time.Hour))
		require.NoError(t, err)
	}
	_, err := s.Create(ctx, "bob", "agent", base, base.Add(time.Hour))
	require.NoError(t, err)

	page, err := s.FindBySubject(ctx, "alice", token.Pagination{Page: 0, Size: 2, Sort: "issued_at", Descending: true})
	require.NoError(t, err)
	assert.EqualValues(t, 5, page.Total)
	require.Len(t, page.Records, 2)
	assert.Equal(t, "agent-4", page.Records[0].BindingContext)
	assert.Equal(t, "agent-3", page.Records[1].BindingContext)

	page, err = s.FindBySubject(ctx, "alice", token.Pagination{Page: 2, Size: 2, Sort: "binding_context"})
	require.NoError(t, err)
	require.Len(t, page.Records, 1)
	assert.Equal(t, "agent-4", page.Records[0].BindingContext)

	page, err = s.FindBySubject(ctx, "alice", token.Pagination{Page: 9, Size: 2})
	require.NoError(t, err)
	assert.Empty(t, page.Records)

	page, err = s.FindBySubject(ctx, "nobody", token.DefaultPagination())
	require.NoError(t, err)
	assert.Zero(t, page.Total)

	_, err = s.FindBySubject(ctx, "alice", token.Pagination{Sort: "password"})
	assert.ErrorIs(t, err, token.ErrInvalidSort)
}

func TestStore_FindBySubjectIsolatesPrefixes(t *testing.T) {
	ctx := context.Background()
	s := New(nil)

	for _, subject := range []string{"al", "alice", "al\x00ice", "al/ice"} {
		_, err := s.Create(ctx, subject, "agent", base, base.Add(time.Hour))
		require.NoError(t, err)
	}
	assert.Equal(t, 4, s.Len())

	page, err := s.FindBySubject(ctx, "al", token.DefaultPagination())
	require.NoError(t, err)
	assert.EqualValues(t, 1, page.Total)
	require.Len(t, page.Records, 1)
	assert.Equal(t, "al", page.Records[0].Subject)

	page, err = s.FindBySubject(ctx, "alice", token.DefaultPagination())
	require.NoError(t, err)
	assert.EqualValues(t, 1, page.Total)
}

func TestStore_DisableVisibleToAllReaders(t *testing.T) {
	ctx := context.Background()
	s := New(nil)

	rec, err := s.Create(ctx, "alice", "agentA", base, base.Add(time.Hour))
	require.NoError(t, err)

	var wg sync.WaitGroup
	start := make(chan struct{})
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			for j := 0; j < 100; j++ {
				_, err := s.Get(ctx, rec.ID)
				assert.NoError(t, err)
			}
		}()
	}
	close(start)

	_, err = s.Disable(ctx, rec.ID)
	require.NoError(t, err)

	// once Disable has returned no reader may see the record enabled
	got, err := s.Get(ctx, rec.ID)
	require.NoError(t, err)
	assert.False(t, got.Enabled)
	wg.Wait()
}

func TestNewInmem_RejectsOptions(t *testing.T) {
	_, err := NewInmem(context.Background(), map[string]string{"type": "inmem"}, nil)
	require.NoError(t, err)

	_, err = NewInmem(context.Background(), map[string]string{"path": "/tmp"}, nil)
	assert.Error(t, err)
}
