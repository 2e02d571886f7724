package geo

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"

	"symptom-triage/pkg"
)

func TestDistance(t *testing.T) {
	bangalore := pkg.LatLng{Lat: 12.9716, Lng: 77.5946}
	assert.InDelta(t, 0, Distance(bangalore, bangalore), 1e-6)

	// one degree of latitude is roughly 111.19km
	north := pkg.LatLng{Lat: 13.9716, Lng: 77.5946}
	assert.InDelta(t, 111195, Distance(bangalore, north), 50)
	assert.InDelta(t, Distance(bangalore, north), Distance(north, bangalore), 1e-6)
}

func TestFormatDistance(t *testing.T) {
	tests := []struct {
		meters float64
		want   string
	}{
		{0, "0m"},
		{849.6, "850m"},
		{1000, "1.0km"},
		{1234, "1.2km"},
		{15560, "15.6km"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, FormatDistance(tt.meters))
	}
}

func TestParseDistance(t *testing.T) {
	assert.Equal(t, 850.0, ParseDistance("850m"))
	assert.Equal(t, 1200.0, ParseDistance("1.2km"))
	assert.True(t, ParseDistance("1.2km") > ParseDistance("500m"))
	assert.True(t, math.IsInf(ParseDistance("unknown"), 1))
}

func TestParsePoint(t *testing.T) {
	p, ok := ParsePoint("POINT(77.5946 12.9716)")
	assert.True(t, ok)
	assert.Equal(t, pkg.LatLng{Lat: 12.9716, Lng: 77.5946}, p)

	_, ok = ParsePoint("LINESTRING(0 0, 1 1)")
	assert.False(t, ok)

	assert.Equal(t, "POINT(77.5946 12.9716)", FormatPoint(p))
}
