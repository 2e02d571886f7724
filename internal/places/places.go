// Package places looks up hospitals and place names from public map
// services: Geoapify first, OpenStreetMap Nominatim as the fallback.
package places

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"symptom-triage/internal/geo"
	"symptom-triage/pkg"
)

const (
	DefaultGeoapifyURL  = "https://api.geoapify.com"
	DefaultNominatimURL = "https://nominatim.openstreetmap.org"
	DefaultRadius       = 10000
	UnknownLocation     = "Unknown location"

	resultLimit     = 20
	metersPerDegree = 111000
)

// Options configures a Client.  An empty APIKey skips Geoapify entirely.
type Options struct {
	GeoapifyURL  string
	NominatimURL string
	APIKey       string
	UserAgent    string
	Timeout      time.Duration
	RadiusMeters float64
}

// Client talks to Geoapify and Nominatim.
type Client struct {
	opts Options
	http *http.Client
	log  *zap.Logger
}

// New returns a Client, filling unset options with the public endpoints.
func New(opts Options, log *zap.Logger) *Client {
	if opts.GeoapifyURL == "" {
		opts.GeoapifyURL = DefaultGeoapifyURL
	}
	if opts.NominatimURL == "" {
		opts.NominatimURL = DefaultNominatimURL
	}
	if opts.UserAgent == "" {
		opts.UserAgent = "symptom-triage/1.0"
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 10 * time.Second
	}
	if opts.RadiusMeters <= 0 {
		opts.RadiusMeters = DefaultRadius
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Client{
		opts: opts,
		http: &http.Client{Timeout: opts.Timeout},
		log:  log.Named("places"),
	}
}

func (c *Client) getJSON(ctx context.Context, endpoint string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.opts.UserAgent)

	resp, err := c.http.Do(req)
	if err != nil {
		// The query string carries the Geoapify key; keep it out of errors.
		var ue *url.Error
		if errors.As(err, &ue) {
			return fmt.Errorf("%s %s%s: %w", ue.Op, req.URL.Host, req.URL.Path, ue.Err)
		}
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 256))
		return fmt.Errorf("%s: status %d: %s", req.URL.Host, resp.StatusCode, strings.TrimSpace(string(b)))
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

var excludedNames = []string{
	"pharmacy", "chemist", "drug store",
	"nursing home", "care home", "assisted living",
}

// isHospital drops pharmacies, care homes and clinics that the category
// search returns alongside real hospitals.
func isHospital(name, category string) bool {
	name = strings.ToLower(name)
	category = strings.ToLower(category)
	for _, ex := range excludedNames {
		if strings.Contains(name, ex) {
			return false
		}
	}
	if strings.Contains(category, "pharmacy") || strings.Contains(category, "nursing") {
		return false
	}
	if strings.Contains(name, "clinic") && !strings.Contains(name, "hospital") {
		return false
	}
	if strings.Contains(name, "medical center") && !strings.Contains(name, "hospital") {
		return false
	}
	return true
}

type geoapifyResponse struct {
	Features []struct {
		Geometry struct {
			Coordinates []float64 `json:"coordinates"`
		} `json:"geometry"`
		Properties struct {
			PlaceID      string   `json:"place_id"`
			Name         string   `json:"name"`
			Formatted    string   `json:"formatted"`
			Categories   []string `json:"categories"`
			Phone        string   `json:"phone"`
			OpeningHours string   `json:"opening_hours"`
			Rating       float64  `json:"rating"`
			HouseNumber  string   `json:"housenumber"`
			Street       string   `json:"street"`
			District     string   `json:"district"`
			City         string   `json:"city"`
			Town         string   `json:"town"`
			Village      string   `json:"village"`
			County       string   `json:"county"`
			State        string   `json:"state"`
			Postcode     string   `json:"postcode"`
			Contact      struct {
				Phone string `json:"phone"`
			} `json:"contact"`
		} `json:"properties"`
	} `json:"features"`
}

type nominatimPlace struct {
	PlaceID     int64  `json:"place_id"`
	Lat         string `json:"lat"`
	Lon         string `json:"lon"`
	DisplayName string `json:"display_name"`
	Class       string `json:"class"`
	Type        string `json:"type"`
	Address     struct {
		HouseNumber string `json:"house_number"`
		Road        string `json:"road"`
		Suburb      string `json:"suburb"`
		City        string `json:"city"`
		Town        string `json:"town"`
		Village     string `json:"village"`
		County      string `json:"county"`
		State       string `json:"state"`
		Postcode    string `json:"postcode"`
	} `json:"address"`
}

func joinNonEmpty(parts ...string) string {
	out := parts[:0]
	for _, p := range parts {
		if p != "" {
			out = append(out, p)
		}
	}
	return strings.Join(out, ", ")
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}

// SearchHospitals returns hospitals around loc within the configured radius.
// Geoapify is queried first; Nominatim only when Geoapify yields nothing.
// An error is returned only when every source failed.
func (c *Client) SearchHospitals(ctx context.Context, loc pkg.LatLng, specialty string) ([]pkg.Hospital, error) {
	var errs []error
	if c.opts.APIKey != "" {
		out, err := c.searchGeoapify(ctx, loc)
		if err == nil && len(out) > 0 {
			return out, nil
		}
		if err != nil {
			c.log.Warn("geoapify search failed, trying nominatim", zap.Error(err))
			errs = append(errs, err)
		}
	}
	out, err := c.searchNominatim(ctx, loc, specialty)
	if err != nil {
		c.log.Warn("nominatim search failed", zap.Error(err))
		errs = append(errs, err)
		return nil, errors.Join(errs...)
	}
	return out, nil
}

func (c *Client) searchGeoapify(ctx context.Context, loc pkg.LatLng) ([]pkg.Hospital, error) {
	q := url.Values{}
	q.Set("categories", "healthcare.hospital")
	q.Set("filter", fmt.Sprintf("circle:%g,%g,%d", loc.Lng, loc.Lat, int(c.opts.RadiusMeters)))
	q.Set("limit", strconv.Itoa(resultLimit))
	q.Set("apiKey", c.opts.APIKey)

	var data geoapifyResponse
	if err := c.getJSON(ctx, c.opts.GeoapifyURL+"/v2/places?"+q.Encode(), &data); err != nil {
		return nil, err
	}

	var out []pkg.Hospital
	for _, f := range data.Features {
		p := f.Properties
		if len(f.Geometry.Coordinates) < 2 || !isHospital(p.Name, strings.Join(p.Categories, " ")) {
			continue
		}
		point := pkg.LatLng{Lat: f.Geometry.Coordinates[1], Lng: f.Geometry.Coordinates[0]}
		d := geo.Distance(loc, point)
		if d > c.opts.RadiusMeters {
			continue
		}
		address := p.Formatted
		if address == "" {
			address = joinNonEmpty(p.HouseNumber, p.Street, p.District, p.City, p.State, p.Postcode)
		}
		out = append(out, pkg.Hospital{
			ID:           "geoapify_" + p.PlaceID,
			Name:         firstNonEmpty(p.Name, "Hospital"),
			Address:      firstNonEmpty(address, "Address not available"),
			Phone:        firstNonEmpty(p.Phone, p.Contact.Phone, "Phone not available"),
			Rating:       p.Rating,
			OpeningHours: firstNonEmpty(p.OpeningHours, "Hours not available"),
			Location:     &point,
			Distance:     geo.FormatDistance(d),
			Source:       pkg.SourcePlaces,
		})
	}
	return out, nil
}

// viewbox returns the Nominatim "left,top,right,bottom" box around loc.
func viewbox(loc pkg.LatLng, radius float64) string {
	dLat := radius / metersPerDegree
	dLng := radius / (metersPerDegree * math.Cos(loc.Lat*math.Pi/180))
	return fmt.Sprintf("%g,%g,%g,%g", loc.Lng-dLng, loc.Lat+dLat, loc.Lng+dLng, loc.Lat-dLat)
}

func (c *Client) searchNominatim(ctx context.Context, loc pkg.LatLng, specialty string) ([]pkg.Hospital, error) {
	text := "hospital"
	if specialty != "" {
		text = "hospital " + specialty
	}
	q := url.Values{}
	q.Set("q", text)
	q.Set("format", "json")
	q.Set("limit", strconv.Itoa(resultLimit))
	q.Set("addressdetails", "1")
	q.Set("viewbox", viewbox(loc, c.opts.RadiusMeters))
	q.Set("bounded", "1")

	var data []nominatimPlace
	if err := c.getJSON(ctx, c.opts.NominatimURL+"/search?"+q.Encode(), &data); err != nil {
		return nil, err
	}

	var out []pkg.Hospital
	for _, p := range data {
		if p.Type != "hospital" && p.Class != "amenity" {
			continue
		}
		if p.Type == "pharmacy" || p.Type == "nursing_home" || !isHospital(p.DisplayName, "") {
			continue
		}
		lat, err1 := strconv.ParseFloat(p.Lat, 64)
		lng, err2 := strconv.ParseFloat(p.Lon, 64)
		if err1 != nil || err2 != nil {
			continue
		}
		point := pkg.LatLng{Lat: lat, Lng: lng}
		d := geo.Distance(loc, point)
		if d > c.opts.RadiusMeters {
			continue
		}
		a := p.Address
		address := joinNonEmpty(a.HouseNumber, a.Road, a.Suburb, firstNonEmpty(a.City, a.Town, a.Village), a.State, a.Postcode)
		name := strings.TrimSpace(strings.SplitN(p.DisplayName, ",", 2)[0])
		out = append(out, pkg.Hospital{
			ID:           "nominatim_" + strconv.FormatInt(p.PlaceID, 10),
			Name:         firstNonEmpty(name, "Hospital"),
			Address:      firstNonEmpty(address, p.DisplayName, "Address not available"),
			Phone:        "Phone not available",
			OpeningHours: "Hours not available",
			Location:     &point,
			Distance:     geo.FormatDistance(d),
			Source:       pkg.SourcePlaces,
		})
	}
	return out, nil
}

// Geocode resolves a free-text address.  It returns nil when no source knows
// the address.
func (c *Client) Geocode(ctx context.Context, address string) (*pkg.LatLng, error) {
	if c.opts.APIKey != "" {
		q := url.Values{"text": {address}, "apiKey": {c.opts.APIKey}}
		var data geoapifyResponse
		err := c.getJSON(ctx, c.opts.GeoapifyURL+"/v1/geocode/search?"+q.Encode(), &data)
		switch {
		case err != nil:
			c.log.Warn("geoapify geocoding failed, trying nominatim", zap.Error(err))
		case len(data.Features) > 0 && len(data.Features[0].Geometry.Coordinates) >= 2:
			co := data.Features[0].Geometry.Coordinates
			return &pkg.LatLng{Lat: co[1], Lng: co[0]}, nil
		}
	}

	q := url.Values{"q": {address}, "format": {"json"}, "limit": {"1"}}
	var data []nominatimPlace
	if err := c.getJSON(ctx, c.opts.NominatimURL+"/search?"+q.Encode(), &data); err != nil {
		return nil, err
	}
	if len(data) == 0 {
		return nil, nil
	}
	lat, err1 := strconv.ParseFloat(data[0].Lat, 64)
	lng, err2 := strconv.ParseFloat(data[0].Lon, 64)
	if err1 != nil || err2 != nil {
		return nil, nil
	}
	return &pkg.LatLng{Lat: lat, Lng: lng}, nil
}

// ReverseGeocode names the city, town, village or county at loc.  Failures
// yield UnknownLocation.
func (c *Client) ReverseGeocode(ctx context.Context, loc pkg.LatLng) string {
	lat, lng := strconv.FormatFloat(loc.Lat, 'f', -1, 64), strconv.FormatFloat(loc.Lng, 'f', -1, 64)
	if c.opts.APIKey != "" {
		q := url.Values{"lat": {lat}, "lon": {lng}, "apiKey": {c.opts.APIKey}}
		var data geoapifyResponse
		err := c.getJSON(ctx, c.opts.GeoapifyURL+"/v1/geocode/reverse?"+q.Encode(), &data)
		if err == nil && len(data.Features) > 0 {
			p := data.Features[0].Properties
			return firstNonEmpty(p.City, p.Town, p.Village, p.County, UnknownLocation)
		}
		if err != nil {
			c.log.Warn("geoapify reverse geocoding failed, trying nominatim", zap.Error(err))
		}
	}

	q := url.Values{"lat": {lat}, "lon": {lng}, "format": {"json"}}
	var data nominatimPlace
	if err := c.getJSON(ctx, c.opts.NominatimURL+"/reverse?"+q.Encode(), &data); err != nil {
		c.log.Warn("reverse geocoding failed", zap.Error(err))
		return UnknownLocation
	}
	a := data.Address
	return firstNonEmpty(a.City, a.Town, a.Village, a.County, UnknownLocation)
}
