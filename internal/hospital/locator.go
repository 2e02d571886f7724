// Package hospital finds hospitals near a patient, combining the curated
// database with a public places service.
package hospital

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/xeipuuv/gojsonschema"
	"go.uber.org/zap"

	"symptom-triage/internal/geo"
	"symptom-triage/internal/metrics"
	"symptom-triage/pkg"
)

const (
	DefaultRadius = 25000

	primaryLimit    = 50
	supplementBelow = 5
	maxResults      = 20

	defaultRating = 4.0
	defaultHours  = "Hours not available"
)

// ErrInvalidHospital is returned by AddHospital for payloads failing schema
// validation.
var ErrInvalidHospital = errors.New("invalid hospital")

//go:embed hospital.schema.json
var hospitalSchema []byte

// Store is the curated hospital table.
type Store interface {
	ListHospitals(ctx context.Context, specialty string, limit int) ([]pkg.HospitalRecord, error)
	InsertHospital(ctx context.Context, h pkg.NewHospital) (*pkg.HospitalRecord, error)
}

// Places is a public map search used to fill thin result lists.
type Places interface {
	SearchHospitals(ctx context.Context, loc pkg.LatLng, specialty string) ([]pkg.Hospital, error)
}

// Locator merges both sources.  Either may be nil.
type Locator struct {
	store  Store
	places Places
	schema *gojsonschema.Schema
	log    *zap.Logger
}

// NewLocator compiles the hospital schema and returns a Locator.
func NewLocator(store Store, places Places, log *zap.Logger) (*Locator, error) {
	schema, err := gojsonschema.NewSchema(gojsonschema.NewBytesLoader(hospitalSchema))
	if err != nil {
		return nil, fmt.Errorf("load hospital schema: %w", err)
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Locator{store: store, places: places, schema: schema, log: log.Named("hospital")}, nil
}

// Search returns up to twenty hospitals within radiusMeters of loc, nearest
// first.  Source failures only shrink the result; Search never fails.
func (l *Locator) Search(ctx context.Context, loc pkg.LatLng, specialty string, radiusMeters float64) []pkg.Hospital {
	if radiusMeters <= 0 {
		radiusMeters = DefaultRadius
	}
	log := l.log.With(zap.String("specialty", specialty), zap.Float64("radius", radiusMeters))

	out := l.fromStore(ctx, loc, specialty, radiusMeters, log)
	fromDB := len(out)

	if len(out) < supplementBelow && l.places != nil {
		extra, err := l.places.SearchHospitals(ctx, loc, specialty)
		if err != nil {
			log.Warn("places search failed", zap.Error(err))
		}
		seen := make(map[string]struct{}, len(out))
		for _, h := range out {
			seen[dedupeKey(h)] = struct{}{}
		}
		for _, h := range extra {
			k := dedupeKey(h)
			if _, dup := seen[k]; dup {
				continue
			}
			seen[k] = struct{}{}
			h.Source = pkg.SourcePlaces
			out = append(out, h)
		}
	}

	sort.SliceStable(out, func(i, j int) bool {
		return geo.ParseDistance(out[i].Distance) < geo.ParseDistance(out[j].Distance)
	})
	if len(out) > maxResults {
		out = out[:maxResults]
	}

	for _, h := range out {
		metrics.HospitalResults.WithLabelValues(string(h.Source)).Inc()
	}
	log.Debug("hospital search", zap.Int("database", fromDB), zap.Int("returned", len(out)))
	if out == nil {
		out = []pkg.Hospital{}
	}
	return out
}

func (l *Locator) fromStore(ctx context.Context, loc pkg.LatLng, specialty string, radius float64, log *zap.Logger) []pkg.Hospital {
	if l.store == nil {
		return nil
	}
	rows, err := l.store.ListHospitals(ctx, specialty, primaryLimit)
	if err != nil {
		log.Warn("hospital store query failed", zap.Error(err))
		return nil
	}
	var out []pkg.Hospital
	for _, r := range rows {
		point, ok := recordPoint(r)
		if !ok {
			continue
		}
		d := geo.Distance(loc, point)
		if d > radius {
			continue
		}
		out = append(out, pkg.Hospital{
			ID:           fmt.Sprintf("db_%d", r.ID),
			Name:         r.Name,
			Address:      r.Address,
			Phone:        r.Phone,
			Rating:       r.Rating,
			OpeningHours: r.OpeningHours,
			Specialty:    r.Specialty,
			Location:     &point,
			Distance:     geo.FormatDistance(d),
			Source:       pkg.SourceDatabase,
		})
	}
	return out
}

func recordPoint(r pkg.HospitalRecord) (pkg.LatLng, bool) {
	if r.Latitude != nil && r.Longitude != nil {
		return pkg.LatLng{Lat: *r.Latitude, Lng: *r.Longitude}, true
	}
	return geo.ParsePoint(r.Point)
}

func dedupeKey(h pkg.Hospital) string {
	return strings.ToLower(strings.TrimSpace(h.Name)) + "|" + strings.ToLower(strings.TrimSpace(h.Address))
}

// AddHospital validates h and stores it.  Missing rating and opening hours
// get defaults.
func (l *Locator) AddHospital(ctx context.Context, h pkg.NewHospital) (*pkg.HospitalRecord, error) {
	if l.store == nil {
		return nil, errors.New("no hospital store configured")
	}
	res, err := l.schema.Validate(gojsonschema.NewGoLoader(h))
	if err != nil {
		return nil, fmt.Errorf("validate hospital: %w", err)
	}
	if !res.Valid() {
		msgs := make([]string, len(res.Errors()))
		for i, e := range res.Errors() {
			msgs[i] = e.String()
		}
		return nil, fmt.Errorf("%w: %s", ErrInvalidHospital, strings.Join(msgs, "; "))
	}
	if h.Rating == 0 {
		h.Rating = defaultRating
	}
	if strings.TrimSpace(h.OpeningHours) == "" {
		h.OpeningHours = defaultHours
	}
	rec, err := l.store.InsertHospital(ctx, h)
	if err != nil {
		return nil, err
	}
	l.log.Info("hospital added", zap.Int64("id", rec.ID), zap.String("name", rec.Name))
	return rec, nil
}
