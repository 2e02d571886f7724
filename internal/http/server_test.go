package http

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"symptom-triage/internal/auth"
	"symptom-triage/internal/core"
	"symptom-triage/internal/db"
	"symptom-triage/internal/hospital"
	"symptom-triage/internal/llm"
	"symptom-triage/pkg"
)

type cannedGenerator struct {
	mu      sync.Mutex
	replies []string
}

func (g *cannedGenerator) Generate(context.Context, string, llm.GenerationConfig) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if len(g.replies) == 0 {
		return "", errors.New("no reply")
	}
	r := g.replies[0]
	g.replies = g.replies[1:]
	return r, nil
}

type stubHospitals struct {
	specialty string
	added     []pkg.NewHospital
}

func (s *stubHospitals) Search(_ context.Context, _ pkg.LatLng, specialty string, _ float64) []pkg.Hospital {
	s.specialty = specialty
	return []pkg.Hospital{{Name: "General", Distance: "900m", Source: pkg.SourceDatabase}}
}

func (s *stubHospitals) AddHospital(_ context.Context, h pkg.NewHospital) (*pkg.HospitalRecord, error) {
	if h.Name == "" {
		return nil, hospital.ErrInvalidHospital
	}
	s.added = append(s.added, h)
	return &pkg.HospitalRecord{ID: 9, Name: h.Name}, nil
}

type stubGeocoder struct{}

func (stubGeocoder) Geocode(_ context.Context, q string) (*pkg.LatLng, error) {
	if q == "nowhere" {
		return nil, nil
	}
	return &pkg.LatLng{Lat: 1, Lng: 2}, nil
}

func (stubGeocoder) ReverseGeocode(context.Context, pkg.LatLng) string { return "Pune" }

type fixture struct {
	srv      *httptest.Server
	chat     *core.ChatService
	hosp     *stubHospitals
	pool     *llm.Pool
	notifier *db.Notifier
}

func newFixture(t *testing.T, gen llm.Generator, opts ...Options) *fixture {
	t.Helper()
	log := zaptest.NewLogger(t)
	notifier := db.NewNotifier(nil, "", "", log)
	gw := core.NewGateway(gen, log)
	chat := core.NewChatService(nil, gw, core.NewSummarizer(gw, nil), core.DefaultFlowConfig(), log,
		core.WithSaveDebounce(0),
		core.WithSavedHook(func(id string) { _ = notifier.Notify(context.Background(), id) }),
	)
	pool, err := llm.NewPool(context.Background(), llm.NewMemoryStore(), []string{"a", "b"}, log)
	require.NoError(t, err)
	hosp := &stubHospitals{}

	opts = append([]Options{
		WithLogger(log),
		WithHospitals(hosp),
		WithGeocoder(stubGeocoder{}),
		WithKeyPool(pool),
		WithEvents(notifier),
		WithCORS("https://app.example"),
	}, opts...)
	srv := httptest.NewServer(New(chat, opts...))
	t.Cleanup(srv.Close)
	return &fixture{srv: srv, chat: chat, hosp: hosp, pool: pool, notifier: notifier}
}

func (f *fixture) do(t *testing.T, method, path, body string, out any) *http.Response {
	t.Helper()
	req, err := http.NewRequest(method, f.srv.URL+path, strings.NewReader(body))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	if out != nil {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp
}

func TestHealthAndTest(t *testing.T) {
	f := newFixture(t, &cannedGenerator{}, WithSupabase(true))

	var health map[string]string
	resp := f.do(t, http.MethodGet, "/api/health", "", &health)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "ok", health["status"])
	assert.Equal(t, "configured", health["supabase"])
	assert.NotEmpty(t, health["timestamp"])

	var test map[string]string
	f.do(t, http.MethodGet, "/api/test", "", &test)
	assert.Equal(t, "Medical AI Assistant API is working!", test["message"])
}

func TestConversationOverHTTP(t *testing.T) {
	gen := &cannedGenerator{replies: []string{
		"ENOUGH_INFO",
		"**SUMMARY OF CASE:** Fever.\n**RECOMMENDED SPECIALTY:** General Medicine",
	}}
	f := newFixture(t, gen)

	var sess pkg.Session
	resp := f.do(t, http.MethodPost, "/api/sessions", "", &sess)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	require.Len(t, sess.Messages, 1)
	assert.Equal(t, auth.AnonymousUser, sess.UserID)

	var out pkg.MessagesResponse
	resp = f.do(t, http.MethodPost, "/api/sessions/"+sess.ID+"/messages", `{"text":"high fever"}`, &out)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Len(t, out.Messages, 2)
	assert.NotEmpty(t, out.Messages[1].Options)

	for range core.StaticCatalog() {
		resp = f.do(t, http.MethodPost, "/api/sessions/"+sess.ID+"/answers", `{"option":"1"}`, &out)
		require.Equal(t, http.StatusOK, resp.StatusCode)
	}
	last := out.Messages[len(out.Messages)-1]
	assert.True(t, last.ShowHospitals)

	resp = f.do(t, http.MethodPost, "/api/sessions/"+sess.ID+"/messages", `{"text":"more"}`, nil)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	var hosp pkg.HospitalsResponse
	resp = f.do(t, http.MethodGet, "/api/sessions/"+sess.ID+"/hospitals?lat=18.5&lng=73.8", "", &hosp)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Len(t, hosp.Hospitals, 1)
	assert.Equal(t, "General Medicine", f.hosp.specialty)

	var loaded pkg.Session
	f.do(t, http.MethodGet, "/api/sessions/"+sess.ID, "", &loaded)
	assert.Equal(t, string(core.StageSummary), loaded.Stage)
}

func TestSessionErrors(t *testing.T) {
	f := newFixture(t, &cannedGenerator{})

	var body map[string]string
	resp := f.do(t, http.MethodGet, "/api/sessions/unknown", "", &body)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.NotEmpty(t, body["error"])

	var sess pkg.Session
	f.do(t, http.MethodPost, "/api/sessions", "", &sess)

	resp = f.do(t, http.MethodPost, "/api/sessions/"+sess.ID+"/answers", `{"option":"1"}`, nil)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	resp = f.do(t, http.MethodPost, "/api/sessions/"+sess.ID+"/messages", `{"text":"  "}`, nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	resp = f.do(t, http.MethodPost, "/api/sessions/"+sess.ID+"/messages", `not json`, nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	resp = f.do(t, http.MethodGet, "/api/sessions/"+sess.ID+"/hospitals?lat=abc&lng=1", "", nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestLatestSessionIsStable(t *testing.T) {
	f := newFixture(t, &cannedGenerator{})
	var a, b pkg.Session
	f.do(t, http.MethodGet, "/api/sessions/latest", "", &a)
	f.do(t, http.MethodGet, "/api/sessions/latest", "", &b)
	assert.Equal(t, a.ID, b.ID)
}

func TestFlash(t *testing.T) {
	f := newFixture(t, &cannedGenerator{replies: []string{"**URGENCY LEVEL:** High\n**RECOMMENDED SPECIALTY:** Emergency"}})
	var summary pkg.Summary
	resp := f.do(t, http.MethodPost, "/api/flash", `{"text":"collapsed at work"}`, &summary)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Len(t, summary.Sections, 2)
	assert.Equal(t, []string{"emergency"}, summary.Specialties)
}

type failingGenerator struct{ err error }

func (g failingGenerator) Generate(context.Context, string, llm.GenerationConfig) (string, error) {
	return "", g.err
}

func TestServerErrorsHideInternalDetail(t *testing.T) {
	f := newFixture(t, failingGenerator{err: errors.New(`Post "https://example/v1?key=AIzaSECRET": EOF`)})
	var body map[string]string
	resp := f.do(t, http.MethodPost, "/api/flash", `{"text":"collapsed at work"}`, &body)
	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
	assert.Equal(t, "Internal Server Error", body["error"])
}

func TestHospitalEndpoints(t *testing.T) {
	f := newFixture(t, &cannedGenerator{})

	var rec pkg.HospitalRecord
	resp := f.do(t, http.MethodPost, "/api/hospitals", `{"name":"Ruby Hall","address":"Pune","latitude":18.5,"longitude":73.8}`, &rec)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	assert.Equal(t, int64(9), rec.ID)

	resp = f.do(t, http.MethodPost, "/api/hospitals", `{"address":"Pune"}`, nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	var found pkg.HospitalsResponse
	resp = f.do(t, http.MethodGet, "/api/hospitals/search?lat=18.5&lng=73.8&specialty=Cardiology", "", &found)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "Cardiology", found.Specialty)
	assert.Equal(t, "Cardiology", f.hosp.specialty)
}

func TestGeocodeEndpoints(t *testing.T) {
	f := newFixture(t, &cannedGenerator{})

	var loc pkg.LatLng
	resp := f.do(t, http.MethodGet, "/api/geocode?q=FC+Road", "", &loc)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, pkg.LatLng{Lat: 1, Lng: 2}, loc)

	resp = f.do(t, http.MethodGet, "/api/geocode?q=nowhere", "", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	resp = f.do(t, http.MethodGet, "/api/geocode", "", nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	var name map[string]string
	f.do(t, http.MethodGet, "/api/reverse-geocode?lat=18.5&lng=73.8", "", &name)
	assert.Equal(t, "Pune", name["name"])
}

func (f *fixture) doAs(t *testing.T, token, method, path, body string, out any) *http.Response {
	t.Helper()
	req, err := http.NewRequest(method, f.srv.URL+path, strings.NewReader(body))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	if out != nil {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp
}

func signed(t *testing.T, v *auth.Verifier, subject string) string {
	t.Helper()
	token, err := v.Sign(subject, jwt.RegisteredClaims{ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour))})
	require.NoError(t, err)
	return token
}

func TestKeyEndpointsNeverRevealKeys(t *testing.T) {
	v := auth.NewVerifier("secret")
	f := newFixture(t, &cannedGenerator{}, WithAuth(v), WithAdmins("ops-admin"))
	admin := signed(t, v, "ops-admin")

	var status pkg.KeysStatus
	f.doAs(t, admin, http.MethodGet, "/api/keys", "", &status)
	assert.Equal(t, pkg.KeysStatus{Count: 2, Index: 0}, status)

	resp := f.doAs(t, admin, http.MethodPut, "/api/keys", `{"keys":["x","y","z"]}`, &status)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, 3, status.Count)
	size, _ := f.pool.Status()
	assert.Equal(t, 3, size)
}

func TestSetKeysRequiresAdmin(t *testing.T) {
	v := auth.NewVerifier("secret")
	f := newFixture(t, &cannedGenerator{}, WithAuth(v), WithAdmins("ops-admin"))

	resp := f.doAs(t, signed(t, v, "patient-1"), http.MethodPut, "/api/keys", `{"keys":["mine"]}`, nil)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	size, _ := f.pool.Status()
	assert.Equal(t, 2, size)

	var status pkg.KeysStatus
	resp = f.doAs(t, signed(t, v, "patient-1"), http.MethodGet, "/api/keys", "", &status)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, 2, status.Count)
}

func TestSetKeysForbiddenWithoutAuth(t *testing.T) {
	f := newFixture(t, &cannedGenerator{}, WithAdmins(auth.AnonymousUser))

	resp := f.do(t, http.MethodPut, "/api/keys", `{"keys":["mine"]}`, nil)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	size, _ := f.pool.Status()
	assert.Equal(t, 2, size)
}

func TestAuthRequiredWhenSecretConfigured(t *testing.T) {
	v := auth.NewVerifier("secret")
	f := newFixture(t, &cannedGenerator{}, WithAuth(v))

	resp := f.do(t, http.MethodPost, "/api/sessions", "", nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp = f.do(t, http.MethodGet, "/api/health", "", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	token, err := v.Sign("patient-1", jwt.RegisteredClaims{ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour))})
	require.NoError(t, err)
	req, _ := http.NewRequest(http.MethodPost, f.srv.URL+"/api/sessions", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	r, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer r.Body.Close()
	var sess pkg.Session
	require.NoError(t, json.NewDecoder(r.Body).Decode(&sess))
	assert.Equal(t, "patient-1", sess.UserID)
}

func TestCORSPreflight(t *testing.T) {
	f := newFixture(t, &cannedGenerator{})
	req, _ := http.NewRequest(http.MethodOptions, f.srv.URL+"/api/sessions", nil)
	req.Header.Set("Origin", "https://app.example")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	assert.Equal(t, "https://app.example", resp.Header.Get("Access-Control-Allow-Origin"))
}

func TestSessionEventsStreamSaves(t *testing.T) {
	f := newFixture(t, &cannedGenerator{})
	var sess pkg.Session
	f.do(t, http.MethodPost, "/api/sessions", "", &sess)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	req, _ := http.NewRequestWithContext(ctx, http.MethodGet, f.srv.URL+"/api/sessions/"+sess.ID+"/events", nil)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	f.do(t, http.MethodPost, "/api/sessions/"+sess.ID+"/messages", `{"text":"sore throat"}`, nil)

	reader := bufio.NewReader(resp.Body)
	line, err := reader.ReadString('\n')
	require.NoError(t, err)
	assert.Equal(t, "event: saved\n", line)
	line, err = reader.ReadString('\n')
	require.NoError(t, err)
	assert.Contains(t, line, "sore throat")
}

func TestSPAFallback(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "index.html"), []byte("<html>triage</html>"), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "app.js"), []byte("console.log(1)"), 0o600))
	f := newFixture(t, &cannedGenerator{}, WithStaticDir(dir))

	for path, want := range map[string]string{
		"/":         "<html>triage</html>",
		"/chat/123": "<html>triage</html>",
		"/app.js":   "console.log(1)",
	} {
		resp, err := http.Get(f.srv.URL + path)
		require.NoError(t, err)
		b, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		require.NoError(t, err)
		assert.Equal(t, want, string(b), path)
	}
}
