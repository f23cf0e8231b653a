package strata_test

import (
	"testing"

	"github.com/launchdarkly/go-jsonstream/v3/jwriter"
	"github.com/stretchr/testify/require"

	"github.com/strata-mem/strata"
)

func TestStatisticsPrintJson(t *testing.T) {
	stats := strata.Statistics{
		BlockCount:      1,
		AllocationCount: 3,
		BlockBytes:      256,
		AllocationBytes: 96,
	}

	writer := jwriter.NewWriter()
	obj := writer.Object()
	stats.PrintJson(obj)
	obj.End()
	require.NoError(t, writer.Error())

	str := string(writer.Bytes())
	require.Contains(t, str, "\"BlockCount\":1")
	require.Contains(t, str, "\"AllocationCount\":3")
	require.Contains(t, str, "\"BlockBytes\":256")
	require.Contains(t, str, "\"AllocationBytes\":96")
}

func TestStatisticsAccumulate(t *testing.T) {
	var total strata.Statistics
	total.Clear()
	total.AddStatistics(&strata.Statistics{BlockCount: 1, AllocationCount: 2, BlockBytes: 64, AllocationBytes: 32})
	total.AddStatistics(&strata.Statistics{BlockCount: 1, AllocationCount: 1, BlockBytes: 64, AllocationBytes: 8})

	require.Equal(t, 2, total.BlockCount)
	require.Equal(t, 3, total.AllocationCount)
	require.Equal(t, 128, total.BlockBytes)
	require.Equal(t, 40, total.AllocationBytes)
}
