package crawler

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPathSelections(t *testing.T) {
	t.Parallel()

	p := Path{State: "21", District: "1", Tehsil: "1", RI: "2"}
	require.Equal(t, "1,1,2,", p.Selections())
	require.Equal(t, "1,1,2,38,", p.Selections("38"))
	require.Equal(t, "1,1,2,38,4,", p.Selections("38", "4"))
}

func TestSheetFromGISCode(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		code string
		want string
	}{
		{name: "regular code", code: "21010203801", want: "01"},
		{name: "exactly two", code: "07", want: "07"},
		{name: "too short", code: "7", want: "00"},
		{name: "empty", code: "", want: "00"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.want, SheetFromGISCode(tt.code))
		})
	}
}

func TestCrawlStateMarkProcessed(t *testing.T) {
	t.Parallel()

	var st CrawlState
	require.False(t, st.IsProcessed("38", "1"))

	st.MarkProcessed("38", "1", 0)
	st.MarkProcessed("38", "2", 412)

	require.True(t, st.IsProcessed("38", "1"))
	require.True(t, st.IsProcessed("38", "2"))
	require.False(t, st.IsProcessed("39", "1"))
	require.Equal(t, 412, st.ProcessedSheets["38"]["2"])
	require.Equal(t, "38", *st.LastVillage)
	require.Equal(t, "2", *st.LastSheet)
}

func TestCrawlStateCloneIsDeep(t *testing.T) {
	t.Parallel()

	st := NewCrawlState()
	st.MarkProcessed("38", "1", 7)

	cp := st.Clone()
	cp.MarkProcessed("38", "2", 9)
	*cp.LastVillage = "mutated"

	require.False(t, st.IsProcessed("38", "2"))
	require.Equal(t, "38", *st.LastVillage)
}

func TestPlotsPutMergeClone(t *testing.T) {
	t.Parallel()

	p := Plots{}
	p.Put(PlotRecord{PlotNo: 3, GISCode: "abc01"})
	other := Plots{}
	other.Put(PlotRecord{PlotNo: 9, GISCode: "abc02"})
	p.Merge(other)

	require.Len(t, p, 2)
	require.Equal(t, "01", p["3"].SheetNumber())

	cp := p.Clone()
	delete(cp, "3")
	require.Contains(t, p, "3")
}
