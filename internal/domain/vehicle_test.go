package domain

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestVehicleMerge_KeepsKnownFields(t *testing.T) {
	v := Vehicle{Make: "BMW", Year: 2004}
	got := v.Merge(Vehicle{Model: "316ti"})
	require.Equal(t, Vehicle{Make: "BMW", Model: "316ti", Year: 2004}, got)
}

func TestVehicleMerge_EmptyIncomingNeverErases(t *testing.T) {
	v := Vehicle{VIN: "WBAAL31090FA12345", HSN: "0005", TSN: "ABC", Make: "BMW", Model: "316ti", Year: 2004, Engine: "N42"}
	require.Equal(t, v, v.Merge(Vehicle{}))
	require.Equal(t, v, v.Merge(Vehicle{Make: "  "}))
}

func TestVehicleMerge_LastWriteWinsPerField(t *testing.T) {
	v := Vehicle{}.Merge(Vehicle{Make: "VW"}).Merge(Vehicle{Make: "Audi"})
	require.Equal(t, "Audi", v.Make)
}

func TestVehicleMerge_OrderIndependentForDisjointFields(t *testing.T) {
	updates := []Vehicle{{Make: "BMW"}, {Model: "316ti"}, {Year: 2004}, {Engine: "N42"}}

	forward := Vehicle{}
	for _, u := range updates {
		forward = forward.Merge(u)
	}
	backward := Vehicle{}
	for i := len(updates) - 1; i >= 0; i-- {
		backward = backward.Merge(updates[i])
	}
	require.Equal(t, forward, backward)
}

func TestVehicleMerge_Idempotent(t *testing.T) {
	in := Vehicle{Make: "BMW", Year: 2004}
	once := Vehicle{Model: "316ti"}.Merge(in)
	require.Equal(t, once, once.Merge(in))
}

func TestVehicleIsComplete(t *testing.T) {
	cases := []struct {
		name string
		v    Vehicle
		want bool
	}{
		{name: "empty", v: Vehicle{}, want: false},
		{name: "vin", v: Vehicle{VIN: "WBAAL31090FA12345"}, want: true},
		{name: "hsn and tsn", v: Vehicle{HSN: "0005", TSN: "ABC"}, want: true},
		{name: "hsn only", v: Vehicle{HSN: "0005"}, want: false},
		{name: "make model year", v: Vehicle{Make: "BMW", Model: "316ti", Year: 2004}, want: true},
		{name: "make model", v: Vehicle{Make: "BMW", Model: "316ti"}, want: false},
		{name: "engine only", v: Vehicle{Engine: "N42"}, want: false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			require.Equal(t, tc.want, tc.v.IsComplete())
		})
	}
}

func TestVehicleIsComplete_MonotonicUnderMerge(t *testing.T) {
	complete := []Vehicle{
		{VIN: "WBAAL31090FA12345"},
		{HSN: "0005", TSN: "ABC"},
		{Make: "BMW", Model: "316ti", Year: 2004},
	}
	additions := []Vehicle{{}, {Engine: "N42"}, {Make: "Audi"}, {Year: 1999}, {HSN: "0603"}, {VIN: "WAUZZZ8K9BA000001"}}
	for _, c := range complete {
		for _, a := range additions {
			require.True(t, c.Merge(a).IsComplete(), "%+v merged with %+v", c, a)
		}
	}
}

func TestVehicleWithout(t *testing.T) {
	v := Vehicle{VIN: "WBAAL31090FA12345", Make: "BMW", Year: 2004}
	got := v.Without(VehicleFieldVIN, VehicleFieldYear, "color")
	require.Equal(t, Vehicle{Make: "BMW"}, got)
	require.False(t, got.IsComplete())
}

func TestIsVehicleField(t *testing.T) {
	require.True(t, IsVehicleField(VehicleFieldTSN))
	require.False(t, IsVehicleField("color"))
}
