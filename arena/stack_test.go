package arena_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/strata-mem/strata"
	"github.com/strata-mem/strata/arena"
	"github.com/strata-mem/strata/storage"
)

func TestStackLifoReclaim(t *testing.T) {
	store := storage.NewDynamic(128)
	view := storage.MakeStorageView(store)
	m := arena.NewStack(store, nil)

	require.Equal(t, 0, m.FreeMemoryOffset())

	p1, err := m.Allocate(16, 1)
	require.NoError(t, err)
	require.Equal(t, 8, view.OffsetOf(p1))
	require.Equal(t, 24, m.FreeMemoryOffset())

	p2, err := m.Allocate(16, 1)
	require.NoError(t, err)
	require.Equal(t, 32, view.OffsetOf(p2))
	require.Equal(t, 48, m.FreeMemoryOffset())

	m.Deallocate(p2, 16)
	require.Equal(t, 24, m.FreeMemoryOffset())

	m.Deallocate(p1, 16)
	require.Equal(t, 0, m.FreeMemoryOffset())

	// the reclaimed space is immediately reusable
	p3, err := m.Allocate(16, 1)
	require.NoError(t, err)
	require.Equal(t, 8, view.OffsetOf(p3))
	m.Deallocate(p3, 16)
}

func TestStackOutOfOrderFree(t *testing.T) {
	store := storage.NewDynamic(128)
	m := arena.NewStack(store, nil)

	p1, err := m.Allocate(16, 1)
	require.NoError(t, err)
	p2, err := m.Allocate(16, 1)
	require.NoError(t, err)
	p3, err := m.Allocate(16, 1)
	require.NoError(t, err)

	// freeing below the top marks the block but reclaims nothing yet
	m.Deallocate(p1, 16)
	require.Equal(t, 72, m.FreeMemoryOffset())
	m.Deallocate(p2, 16)
	require.Equal(t, 72, m.FreeMemoryOffset())

	// freeing the top block retracts over every marked block below it
	m.Deallocate(p3, 16)
	require.Equal(t, 0, m.FreeMemoryOffset())
	require.Equal(t, 128, m.FreeMemory())
}

func TestStackAlignment(t *testing.T) {
	store := storage.NewDynamic(256)
	view := storage.MakeStorageView(store)
	m := arena.NewStack(store, nil)

	p1, err := m.Allocate(4, 1)
	require.NoError(t, err)
	require.Equal(t, 8, view.OffsetOf(p1))

	p2, err := m.Allocate(8, 64)
	require.NoError(t, err)
	require.Equal(t, 64, view.OffsetOf(p2))

	m.Deallocate(p2, 8)
	m.Deallocate(p1, 4)
	require.Equal(t, 0, m.FreeMemoryOffset())
}

func TestStackOutOfMemory(t *testing.T) {
	store := storage.NewDynamic(64)
	m := arena.NewStack(store, nil)

	// the header overhead makes a buffer-sized request fail
	_, err := m.Allocate(64, 1)
	require.ErrorIs(t, err, strata.OutOfMemoryError)

	p, err := m.Allocate(56, 1)
	require.NoError(t, err)
	_, err = m.Allocate(1, 1)
	require.ErrorIs(t, err, strata.OutOfMemoryError)

	m.Deallocate(p, 56)
}

func TestStackStatistics(t *testing.T) {
	store := storage.NewDynamic(128)
	m := arena.NewStack(store, nil)

	p1, err := m.Allocate(16, 1)
	require.NoError(t, err)
	p2, err := m.Allocate(16, 1)
	require.NoError(t, err)

	var stats strata.Statistics
	stats.Clear()
	m.AddStatistics(&stats)
	require.Equal(t, 2, stats.AllocationCount)
	require.Equal(t, 128, stats.BlockBytes)

	m.Deallocate(p2, 16)
	m.Deallocate(p1, 16)

	stats.Clear()
	m.AddStatistics(&stats)
	require.Equal(t, 0, stats.AllocationCount)
}
