package exemption_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/freezegate/freezegate/internal/exemption"
	"github.com/freezegate/freezegate/internal/store/memstore"
)

func TestStoreBackend_SaveThenLoad(t *testing.T) {
	ctx := context.Background()
	backend := exemption.NewStoreBackend(memstore.New())

	e := exemption.New("id-1", "payments", "", 30, "reason", "approver", time.Now().UTC())
	require.NoError(t, backend.Save(ctx, map[string]exemption.Exemption{e.ID: e}))

	loaded, err := backend.Load(ctx)
	require.NoError(t, err)
	require.Contains(t, loaded, "id-1")
	assert.Equal(t, "payments", loaded["id-1"].Namespace)
}

func TestStoreBackend_Load_AbsentRecordYieldsEmptySet(t *testing.T) {
	backend := exemption.NewStoreBackend(memstore.New())
	loaded, err := backend.Load(context.Background())
	require.NoError(t, err)
	assert.Empty(t, loaded)
}

func TestEncodeDecode_RoundTrip(t *testing.T) {
	set := map[string]exemption.Exemption{
		"id-1": exemption.New("id-1", "payments", "", 30, "reason", "approver", time.Now().UTC()),
	}
	body, err := exemption.Encode(set)
	require.NoError(t, err)

	decoded, err := exemption.Decode(body)
	require.NoError(t, err)
	assert.Equal(t, set["id-1"].Namespace, decoded["id-1"].Namespace)
}

func TestDecode_EmptyBodyYieldsEmptyNonNilMap(t *testing.T) {
	decoded, err := exemption.Decode("")
	require.NoError(t, err)
	assert.NotNil(t, decoded)
	assert.Len(t, decoded, 0)
}
