package ingestion

import (
	"testing"
	"time"

	"github.com/poiesic/annotit/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func TestPartition_CoversRangeExactly(t *testing.T) {
	start, end := day(1999, 1, 1), day(2021, 1, 1)

	intervals, err := Partition(start, end, 30)
	require.NoError(t, err)
	require.Len(t, intervals, 268)

	assert.Equal(t, start, intervals[0].Start)
	assert.Equal(t, end, intervals[len(intervals)-1].End)
	for i := 1; i < len(intervals); i++ {
		assert.Equal(t, intervals[i-1].End, intervals[i].Start, "gap or overlap at %d", i)
	}
	for _, iv := range intervals[:len(intervals)-1] {
		assert.Equal(t, 30*24*time.Hour, iv.End.Sub(iv.Start))
	}

	last := intervals[len(intervals)-1]
	assert.Equal(t, day(2020, 12, 6), last.Start)
	assert.Equal(t, 26*24*time.Hour, last.End.Sub(last.Start))
}

func TestPartition_EveryInstantInExactlyOneInterval(t *testing.T) {
	start, end := day(2010, 1, 1), day(2010, 3, 15)
	intervals, err := Partition(start, end, 7)
	require.NoError(t, err)

	for ts := start; ts.Before(end); ts = ts.Add(11 * time.Hour) {
		hits := 0
		for _, iv := range intervals {
			if iv.Contains(ts) {
				hits++
			}
		}
		assert.Equal(t, 1, hits, "instant %s", ts)
	}
	for _, iv := range intervals {
		assert.False(t, iv.Contains(end))
	}
}

func TestPartition_SingleShortInterval(t *testing.T) {
	intervals, err := Partition(day(2020, 1, 1), day(2020, 1, 3), 30)
	require.NoError(t, err)
	assert.Equal(t, []core.DateInterval{{Start: day(2020, 1, 1), End: day(2020, 1, 3)}}, intervals)
}

func TestPartition_CalendarDaysAcrossMonths(t *testing.T) {
	intervals, err := Partition(day(2021, 1, 31), day(2021, 3, 31), 1)
	require.NoError(t, err)
	assert.Len(t, intervals, 59)
	assert.Equal(t, day(2021, 2, 1), intervals[0].End)
}

func TestPartition_InvalidArguments(t *testing.T) {
	_, err := Partition(day(2020, 1, 1), day(2021, 1, 1), 0)
	assert.ErrorIs(t, err, core.ErrConfiguration)

	_, err = Partition(day(2020, 1, 1), day(2021, 1, 1), -5)
	assert.ErrorIs(t, err, core.ErrConfiguration)

	_, err = Partition(day(2021, 1, 1), day(2021, 1, 1), 30)
	assert.ErrorIs(t, err, core.ErrConfiguration)

	_, err = Partition(day(2021, 1, 1), day(2020, 1, 1), 30)
	assert.ErrorIs(t, err, core.ErrConfiguration)
}
