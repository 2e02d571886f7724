package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"symptom-triage/internal/geo"
	"symptom-triage/pkg"
)

// ErrSessionOwner is returned when a save targets a session id that belongs
// to a different user.
var ErrSessionOwner = errors.New("session belongs to another user")

// Repository wraps database operations for hospitals and sessions.
type Repository struct {
	DB *sql.DB
}

// NewRepository constructs a new Repository from an existing sql.DB.
// The caller is responsible for managing the DB connection lifecycle.
func NewRepository(db *sql.DB) *Repository { return &Repository{DB: db} }

const hospitalColumns = `id, name, address, COALESCE(phone, ''), COALESCE(rating, 0), specialty,
       COALESCE(opening_hours, ''), latitude, longitude, COALESCE(location, '')`

// ListHospitals returns up to limit hospitals.  A non-empty specialty keeps
// only rows whose specialty array contains it.
func (r *Repository) ListHospitals(ctx context.Context, specialty string, limit int) ([]pkg.HospitalRecord, error) {
	var (
		rows *sql.Rows
		err  error
	)
	if specialty != "" {
		rows, err = r.DB.QueryContext(ctx,
			`SELECT `+hospitalColumns+`
         FROM hospitals
         WHERE specialty @> $1
         LIMIT $2`,
			pq.Array([]string{specialty}), limit)
	} else {
		rows, err = r.DB.QueryContext(ctx,
			`SELECT `+hospitalColumns+`
         FROM hospitals
         LIMIT $1`,
			limit)
	}
	if err != nil {
		return nil, fmt.Errorf("query hospitals: %w", err)
	}
	defer rows.Close()

	var out []pkg.HospitalRecord
	for rows.Next() {
		var (
			h        pkg.HospitalRecord
			lat, lng sql.NullFloat64
		)
		if err := rows.Scan(&h.ID, &h.Name, &h.Address, &h.Phone, &h.Rating,
			pq.Array(&h.Specialty), &h.OpeningHours, &lat, &lng, &h.Point); err != nil {
			return nil, err
		}
		if lat.Valid && lng.Valid {
			h.Latitude = &lat.Float64
			h.Longitude = &lng.Float64
		}
		out = append(out, h)
	}
	return out, rows.Err()
}

// InsertHospital stores a hospital and returns it with its generated id.
func (r *Repository) InsertHospital(ctx context.Context, h pkg.NewHospital) (*pkg.HospitalRecord, error) {
	point := geo.FormatPoint(pkg.LatLng{Lat: h.Latitude, Lng: h.Longitude})
	rec := &pkg.HospitalRecord{
		Name:         h.Name,
		Address:      h.Address,
		Phone:        h.Phone,
		Rating:       h.Rating,
		Specialty:    h.Specialty,
		OpeningHours: h.OpeningHours,
		Latitude:     &h.Latitude,
		Longitude:    &h.Longitude,
		Point:        point,
	}
	err := r.DB.QueryRowContext(ctx,
		`INSERT INTO hospitals (name, address, phone, specialty, opening_hours, rating, latitude, longitude, location)
         VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
         RETURNING id`,
		h.Name, h.Address, h.Phone, pq.Array(h.Specialty), h.OpeningHours, h.Rating,
		h.Latitude, h.Longitude, point,
	).Scan(&rec.ID)
	if err != nil {
		return nil, fmt.Errorf("insert hospital: %w", err)
	}
	return rec, nil
}

const sessionColumns = `id, user_id, stage, messages, created_at, updated_at`

func scanSession(row *sql.Row) (*pkg.Session, error) {
	var (
		s   pkg.Session
		raw []byte
	)
	if err := row.Scan(&s.ID, &s.UserID, &s.Stage, &raw, &s.CreatedAt, &s.UpdatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	if err := json.Unmarshal(raw, &s.Messages); err != nil {
		return nil, fmt.Errorf("decode messages of session %s: %w", s.ID, err)
	}
	return &s, nil
}

// GetSession returns the session with id, or nil when none exists.
func (r *Repository) GetSession(ctx context.Context, id string) (*pkg.Session, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, nil
	}
	return scanSession(r.DB.QueryRowContext(ctx,
		`SELECT `+sessionColumns+`
         FROM sessions
         WHERE id = $1`, id))
}

// LatestSession returns the most recently updated session of userID, or nil.
func (r *Repository) LatestSession(ctx context.Context, userID string) (*pkg.Session, error) {
	return scanSession(r.DB.QueryRowContext(ctx,
		`SELECT `+sessionColumns+`
         FROM sessions
         WHERE user_id = $1
         ORDER BY updated_at DESC
         LIMIT 1`, userID))
}

// SaveSession inserts or replaces a session.  A row owned by another user is
// left untouched and ErrSessionOwner is returned.
func (r *Repository) SaveSession(ctx context.Context, s *pkg.Session) error {
	raw, err := json.Marshal(s.Messages)
	if err != nil {
		return err
	}
	res, err := r.DB.ExecContext(ctx,
		`INSERT INTO sessions (id, user_id, stage, messages, created_at, updated_at)
         VALUES ($1, $2, $3, $4, $5, $6)
         ON CONFLICT (id) DO UPDATE
         SET stage = EXCLUDED.stage, messages = EXCLUDED.messages, updated_at = EXCLUDED.updated_at
         WHERE sessions.user_id = EXCLUDED.user_id`,
		s.ID, s.UserID, s.Stage, raw, s.CreatedAt, s.UpdatedAt)
	if err != nil {
		return fmt.Errorf("save session %s: %w", s.ID, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("save session %s: %w", s.ID, ErrSessionOwner)
	}
	return nil
}
