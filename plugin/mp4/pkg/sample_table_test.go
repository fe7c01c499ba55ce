package mp4

import "testing"

func TestSyncSampleSearch(t *testing.T) {
	f := uniform(10, 1000)
	f.stss = []uint32{1, 5, 9}
	table := buildTable(t, f, 1000, ParseOptions{})
	cases := []struct {
		timeUs         int64
		earlier, later int
		at             int
	}{
		{0, 0, 0, 0},
		{3500000, 0, 4, 3},
		{4000000, 4, 4, 4},
		{8500000, 8, -1, 8},
		{-1, -1, 0, 0},
		{20000000, 8, -1, 9},
	}
	for _, c := range cases {
		if got := table.IndexOfEarlierOrEqualSyncSample(c.timeUs); got != c.earlier {
			t.Errorf("earlier(%d) = %d, want %d", c.timeUs, got, c.earlier)
		}
		if got := table.IndexOfLaterOrEqualSyncSample(c.timeUs); got != c.later {
			t.Errorf("later(%d) = %d, want %d", c.timeUs, got, c.later)
		}
		if got := table.SampleIndexAt(c.timeUs); got != c.at {
			t.Errorf("at(%d) = %d, want %d", c.timeUs, got, c.at)
		}
	}
	if table.SyncSampleCount() != 3 {
		t.Errorf("sync samples %d", table.SyncSampleCount())
	}
	if table.Samples[9].Flags&FlagLastSample == 0 || table.Samples[8].Flags&FlagLastSample != 0 {
		t.Error("last sample flag misplaced")
	}
}
