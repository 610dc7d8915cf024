package memstore_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/freezegate/freezegate/internal/store"
	"github.com/freezegate/freezegate/internal/store/memstore"
)

func TestReadMissing_ReturnsNotFoundError(t *testing.T) {
	s := memstore.New()
	_, err := s.Read(context.Background(), "policy")
	require.Error(t, err)
	assert.True(t, store.IsNotFound(err))
}

func TestCreate_ThenRead(t *testing.T) {
	ctx := context.Background()
	s := memstore.New()

	require.NoError(t, s.Create(ctx, "policy", map[string]string{"freezeEnabled": "true"}))

	data, err := s.Read(ctx, "policy")
	require.NoError(t, err)
	assert.Equal(t, "true", data["freezeEnabled"])
}

func TestCreate_DuplicateFails(t *testing.T) {
	ctx := context.Background()
	s := memstore.New()
	require.NoError(t, s.Create(ctx, "policy", map[string]string{}))

	err := s.Create(ctx, "policy", map[string]string{})
	require.Error(t, err)
	var exists *store.AlreadyExistsError
	assert.ErrorAs(t, err, &exists)
}

func TestPatch_MergesAndCreatesIfAbsent(t *testing.T) {
	ctx := context.Background()
	s := memstore.New()

	require.NoError(t, s.Patch(ctx, "policy", map[string]string{"a": "1"}))
	require.NoError(t, s.Patch(ctx, "policy", map[string]string{"b": "2"}))

	data, err := s.Read(ctx, "policy")
	require.NoError(t, err)
	assert.Equal(t, "1", data["a"])
	assert.Equal(t, "2", data["b"])
}

func TestRead_ReturnsDefensiveCopy(t *testing.T) {
	ctx := context.Background()
	s := memstore.New()
	require.NoError(t, s.Create(ctx, "policy", map[string]string{"a": "1"}))

	data, err := s.Read(ctx, "policy")
	require.NoError(t, err)
	data["a"] = "mutated"

	fresh, err := s.Read(ctx, "policy")
	require.NoError(t, err)
	assert.Equal(t, "1", fresh["a"])
}

func TestWatch_ReceivesPatchAndDeleteEvents(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	s := memstore.New()

	ch, err := s.Watch(ctx, "policy")
	require.NoError(t, err)

	require.NoError(t, s.Patch(ctx, "policy", map[string]string{"a": "1"}))
	select {
	case ev := <-ch:
		assert.Equal(t, store.EventAdded, ev.Type)
		assert.Equal(t, "1", ev.Data["a"])
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for added event")
	}

	require.NoError(t, s.Patch(ctx, "policy", map[string]string{"a": "2"}))
	select {
	case ev := <-ch:
		assert.Equal(t, store.EventModified, ev.Type)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for modified event")
	}

	s.Delete("policy")
	select {
	case ev := <-ch:
		assert.Equal(t, store.EventDeleted, ev.Type)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for deleted event")
	}
}

func TestWatch_ClosesChannelOnContextCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	s := memstore.New()

	ch, err := s.Watch(ctx, "policy")
	require.NoError(t, err)

	cancel()

	select {
	case _, ok := <-ch:
		assert.False(t, ok)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for channel close")
	}
}
