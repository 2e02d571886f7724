// Package geo holds the great-circle math and distance formatting shared by
// the hospital locator and the places client.
package geo

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"

	"symptom-triage/pkg"
)

const earthRadiusMeters = 6371e3

// Distance returns the haversine distance between a and b in meters.
func Distance(a, b pkg.LatLng) float64 {
	lat1 := toRadians(a.Lat)
	lat2 := toRadians(b.Lat)
	deltaLat := toRadians(b.Lat - a.Lat)
	deltaLng := toRadians(b.Lng - a.Lng)

	h := math.Sin(deltaLat/2)*math.Sin(deltaLat/2) +
		math.Cos(lat1)*math.Cos(lat2)*
			math.Sin(deltaLng/2)*math.Sin(deltaLng/2)

	c := 2 * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))
	return earthRadiusMeters * c
}

func toRadians(degrees float64) float64 {
	return degrees * (math.Pi / 180)
}

// FormatDistance renders meters as "850m" below one kilometer and "1.2km"
// above.
func FormatDistance(meters float64) string {
	if meters < 1000 {
		return fmt.Sprintf("%dm", int(math.Round(meters)))
	}
	return fmt.Sprintf("%.1fkm", meters/1000)
}

var numericPart = regexp.MustCompile(`[^0-9.]`)

// ParseDistance converts a FormatDistance string back to meters.  Strings
// without a number sort last.
func ParseDistance(s string) float64 {
	s = strings.ToLower(strings.TrimSpace(s))
	n, err := strconv.ParseFloat(numericPart.ReplaceAllString(s, ""), 64)
	if err != nil {
		return math.Inf(1)
	}
	if strings.HasSuffix(s, "km") {
		return n * 1000
	}
	return n
}

var pointPattern = regexp.MustCompile(`(?i)^\s*POINT\s*\(\s*(-?[0-9.]+)\s+(-?[0-9.]+)\s*\)\s*$`)

// ParsePoint reads a WKT "POINT(lng lat)" string.
func ParsePoint(s string) (pkg.LatLng, bool) {
	m := pointPattern.FindStringSubmatch(s)
	if m == nil {
		return pkg.LatLng{}, false
	}
	lng, err1 := strconv.ParseFloat(m[1], 64)
	lat, err2 := strconv.ParseFloat(m[2], 64)
	if err1 != nil || err2 != nil {
		return pkg.LatLng{}, false
	}
	return pkg.LatLng{Lat: lat, Lng: lng}, true
}

// FormatPoint renders a coordinate as WKT.
func FormatPoint(p pkg.LatLng) string {
	return fmt.Sprintf("POINT(%g %g)", p.Lng, p.Lat)
}
