package hospital

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"symptom-triage/internal/geo"
	"symptom-triage/pkg"
)

var here = pkg.LatLng{Lat: 12.9716, Lng: 77.5946}

type fakeStore struct {
	rows      []pkg.HospitalRecord
	err       error
	specialty string
	inserted  []pkg.NewHospital
}

func (f *fakeStore) ListHospitals(_ context.Context, specialty string, limit int) ([]pkg.HospitalRecord, error) {
	f.specialty = specialty
	if len(f.rows) > limit {
		return f.rows[:limit], f.err
	}
	return f.rows, f.err
}

func (f *fakeStore) InsertHospital(_ context.Context, h pkg.NewHospital) (*pkg.HospitalRecord, error) {
	f.inserted = append(f.inserted, h)
	return &pkg.HospitalRecord{ID: int64(len(f.inserted)), Name: h.Name, Rating: h.Rating, OpeningHours: h.OpeningHours}, nil
}

type fakePlaces struct {
	out   []pkg.Hospital
	err   error
	calls int
}

func (f *fakePlaces) SearchHospitals(context.Context, pkg.LatLng, string) ([]pkg.Hospital, error) {
	f.calls++
	return f.out, f.err
}

func ptr(v float64) *float64 { return &v }

func record(id int64, name string, lat, lng float64) pkg.HospitalRecord {
	return pkg.HospitalRecord{ID: id, Name: name, Address: name + " Road", Latitude: ptr(lat), Longitude: ptr(lng)}
}

func newLocator(t *testing.T, store Store, places Places) *Locator {
	t.Helper()
	l, err := NewLocator(store, places, zaptest.NewLogger(t))
	require.NoError(t, err)
	return l
}

func TestSearchSupplementsThinResults(t *testing.T) {
	store := &fakeStore{rows: []pkg.HospitalRecord{
		record(1, "Near", 12.9750, 77.6000),
		{ID: 2, Name: "Wkt", Address: "Wkt Road", Point: "POINT(77.62 12.99)"},
		{ID: 3, Name: "NoCoords", Address: "Nowhere"},
		record(4, "Far", 14.0, 79.0),
	}}
	places := &fakePlaces{out: []pkg.Hospital{
		{Name: "near", Address: "NEAR ROAD", Distance: "100m"},
		{Name: "Places One", Address: "x", Distance: "1.5km"},
		{Name: "Places Two", Address: "y", Distance: "950m"},
		{Name: "Places Two", Address: "Y", Distance: "960m"},
	}}
	got := newLocator(t, store, places).Search(context.Background(), here, "Cardiology", 0)

	assert.Equal(t, "Cardiology", store.specialty)
	assert.Equal(t, 1, places.calls)
	names := make([]string, len(got))
	for i, h := range got {
		names[i] = h.Name
	}
	assert.Equal(t, []string{"Near", "Places Two", "Places One", "Wkt"}, names)
	assert.Equal(t, pkg.SourceDatabase, got[0].Source)
	assert.Equal(t, pkg.SourcePlaces, got[1].Source)
	assert.Equal(t, "db_1", got[0].ID)
}

func TestSearchSkipsPlacesWhenStoreHasEnough(t *testing.T) {
	store := &fakeStore{}
	for i := 0; i < 30; i++ {
		store.rows = append(store.rows, record(int64(i), fmt.Sprintf("H%d", i), 12.97+float64(i)*0.001, 77.59))
	}
	places := &fakePlaces{}
	got := newLocator(t, store, places).Search(context.Background(), here, "", 25000)

	assert.Zero(t, places.calls)
	require.Len(t, got, 20)
	for i := 1; i < len(got); i++ {
		assert.LessOrEqual(t, geo.ParseDistance(got[i-1].Distance), geo.ParseDistance(got[i].Distance))
	}
}

func TestSearchDegradesOnFailures(t *testing.T) {
	places := &fakePlaces{out: []pkg.Hospital{{Name: "P", Address: "a", Distance: "2.0km"}}}
	got := newLocator(t, &fakeStore{err: errors.New("db down")}, places).Search(context.Background(), here, "", 0)
	require.Len(t, got, 1)
	assert.Equal(t, "P", got[0].Name)

	got = newLocator(t, &fakeStore{err: errors.New("db down")}, &fakePlaces{err: errors.New("offline")}).
		Search(context.Background(), here, "", 0)
	assert.NotNil(t, got)
	assert.Empty(t, got)

	got = newLocator(t, nil, nil).Search(context.Background(), here, "", 0)
	assert.Empty(t, got)
}

func TestAddHospitalDefaults(t *testing.T) {
	store := &fakeStore{}
	rec, err := newLocator(t, store, nil).AddHospital(context.Background(), pkg.NewHospital{
		Name:      "Sunrise Hospital",
		Address:   "1 Main St",
		Specialty: []string{"Cardiology"},
		Latitude:  12.9,
		Longitude: 77.5,
	})
	require.NoError(t, err)
	assert.Equal(t, int64(1), rec.ID)
	require.Len(t, store.inserted, 1)
	assert.Equal(t, 4.0, store.inserted[0].Rating)
	assert.Equal(t, "Hours not available", store.inserted[0].OpeningHours)
}

func TestAddHospitalRejectsInvalid(t *testing.T) {
	store := &fakeStore{}
	l := newLocator(t, store, nil)

	_, err := l.AddHospital(context.Background(), pkg.NewHospital{Address: "1 Main St", Latitude: 12.9, Longitude: 77.5})
	assert.ErrorIs(t, err, ErrInvalidHospital)

	_, err = l.AddHospital(context.Background(), pkg.NewHospital{Name: "X", Address: "Y", Latitude: 120, Longitude: 77.5})
	assert.ErrorIs(t, err, ErrInvalidHospital)

	_, err = l.AddHospital(context.Background(), pkg.NewHospital{Name: "X", Address: "Y", Rating: 7})
	assert.ErrorIs(t, err, ErrInvalidHospital)
	assert.Empty(t, store.inserted)
}
