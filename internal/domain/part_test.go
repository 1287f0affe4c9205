package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func boolPtr(b bool) *bool { return &b }

func TestPartMerge_KeepsKnownFields(t *testing.T) {
	p := Part{Text: "Bremsbeläge", Category: CategoryBrake, PositionNeeded: true}
	got := p.Merge(PartUpdate{Position: "front"})
	require.Equal(t, "Bremsbeläge", got.Text)
	require.Equal(t, "front", got.Position)
	require.True(t, got.PositionNeeded)
}

func TestPartMerge_CategoryForcesPositionNeeded(t *testing.T) {
	cases := []struct {
		name     string
		category string
		hint     *bool
		current  bool
		want     bool
	}{
		{name: "ignition ignores hint", category: CategoryIgnition, hint: boolPtr(true), want: false},
		{name: "engine ignores current", category: CategoryEngine, current: true, want: false},
		{name: "brake needs position", category: CategoryBrake, hint: boolPtr(false), want: true},
		{name: "unknown category follows hint", category: "filter_component", hint: boolPtr(true), want: true},
		{name: "unknown category keeps current", category: "filter_component", current: true, want: true},
		{name: "nothing known", want: false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := Part{Category: tc.category, PositionNeeded: tc.current}.Merge(PartUpdate{PositionNeeded: tc.hint})
			require.Equal(t, tc.want, got.PositionNeeded)
		})
	}
}

func TestPartMerge_NewCategoryDropsPositionRequirement(t *testing.T) {
	p := Part{Text: "Zündspule", PositionNeeded: true}
	got := p.Merge(PartUpdate{Category: "Ignition_Component"})
	require.Equal(t, CategoryIgnition, got.Category)
	require.False(t, got.PositionNeeded)
	require.True(t, got.IsComplete())
}

func TestPartMerge_IgnoresUnknownOEMStatus(t *testing.T) {
	got := Part{OEMStatus: OEMPending}.Merge(PartUpdate{OEMStatus: "maybe"})
	require.Equal(t, OEMPending, got.OEMStatus)
}

func TestPartIsComplete(t *testing.T) {
	require.False(t, Part{}.IsComplete())
	require.True(t, Part{NormalizedName: "brake pads"}.IsComplete())
	require.False(t, Part{Text: "Bremsbeläge", PositionNeeded: true}.IsComplete())
	require.True(t, Part{Text: "Bremsbeläge", PositionNeeded: true, Position: "front"}.IsComplete())
}

func TestNewOrder(t *testing.T) {
	o := NewOrder("o-1", "4917012345", fixedTime())
	require.Equal(t, StatusChooseLanguage, o.Status)
	require.Equal(t, "o-1", o.ID)
	require.Equal(t, o.CreatedAt, o.UpdatedAt)
	require.Zero(t, o.Version)
}

func TestOrderStatus_Collecting(t *testing.T) {
	require.True(t, StatusCollectPart.Collecting())
	require.False(t, StatusOEMLookup.Collecting())
	require.False(t, OrderStatus("archived").Valid())
}

func fixedTime() time.Time {
	return time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
}
