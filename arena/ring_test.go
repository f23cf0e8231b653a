package arena_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/strata-mem/strata"
	"github.com/strata-mem/strata/arena"
	"github.com/strata-mem/strata/storage"
)

func TestRingWrapAround(t *testing.T) {
	store := storage.NewDynamic(128)
	view := storage.MakeStorageView(store)
	m := arena.NewRing(store, nil)

	p1, err := m.Allocate(64, 1)
	require.NoError(t, err)
	require.Equal(t, 16, view.OffsetOf(p1))
	require.Equal(t, 80, m.FreeMemoryOffset())

	p2, err := m.Allocate(32, 1)
	require.NoError(t, err)
	require.Equal(t, 96, view.OffsetOf(p2))
	require.False(t, m.IsWrappedAround())

	// freeing the oldest block advances the bottom of the ring
	m.Deallocate(p1, 64)
	require.False(t, m.IsWrappedAround())

	// no room above p2, so the next allocation wraps into p1's old space
	p3, err := m.Allocate(64, 1)
	require.NoError(t, err)
	require.Equal(t, 16, view.OffsetOf(p3))
	require.True(t, m.IsWrappedAround())

	m.Deallocate(p2, 32)
	require.False(t, m.IsWrappedAround())

	m.Deallocate(p3, 64)
	require.Equal(t, 0, m.FreeMemoryOffset())
	require.Equal(t, 128, m.FreeMemory())
}

func TestRingFifoReclaim(t *testing.T) {
	store := storage.NewDynamic(256)
	m := arena.NewRing(store, nil)

	var blocks [][]byte
	for i := 0; i < 4; i++ {
		p, err := m.Allocate(32, 1)
		require.NoError(t, err)
		blocks = append(blocks, p)
	}

	// free in allocation order; the bottom advances but the contiguous free
	// region at the top does not grow
	m.Deallocate(blocks[0], 32)
	m.Deallocate(blocks[1], 32)
	require.Equal(t, 192, m.FreeMemoryOffset())
	require.Equal(t, 64, m.FreeMemoryContiguous())

	m.Deallocate(blocks[2], 32)
	m.Deallocate(blocks[3], 32)
	require.Equal(t, 0, m.FreeMemoryOffset())
	require.Equal(t, 256, m.FreeMemoryContiguous())
}

func TestRingExhaustion(t *testing.T) {
	store := storage.NewDynamic(64)
	m := arena.NewRing(store, nil)

	p, err := m.Allocate(48, 1)
	require.NoError(t, err)

	// no room at the top and the space below the bottom is empty
	_, err = m.Allocate(1, 1)
	require.ErrorIs(t, err, strata.OutOfMemoryError)

	m.Deallocate(p, 48)

	p, err = m.Allocate(48, 1)
	require.NoError(t, err)
	m.Deallocate(p, 48)
}

func TestRingWrappedExhaustion(t *testing.T) {
	store := storage.NewDynamic(128)
	m := arena.NewRing(store, nil)

	p1, err := m.Allocate(32, 1)
	require.NoError(t, err)
	p2, err := m.Allocate(64, 1)
	require.NoError(t, err)

	m.Deallocate(p1, 32)

	// wraps into p1's old space
	p3, err := m.Allocate(16, 1)
	require.NoError(t, err)
	require.True(t, m.IsWrappedAround())

	// a wrapped ring cannot wrap a second time
	_, err = m.Allocate(64, 1)
	require.ErrorIs(t, err, strata.OutOfMemoryError)

	m.Deallocate(p2, 64)
	m.Deallocate(p3, 16)
}

func TestRingValidate(t *testing.T) {
	store := storage.NewDynamic(128)
	m := arena.NewRing(store, nil)

	require.NoError(t, m.Validate())

	p1, err := m.Allocate(16, 1)
	require.NoError(t, err)
	p2, err := m.Allocate(16, 1)
	require.NoError(t, err)
	require.NoError(t, m.Validate())

	m.Deallocate(p1, 16)
	m.Deallocate(p2, 16)
	require.NoError(t, m.Validate())
}
