package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"example.com/rosters/internal/catalog"
	"example.com/rosters/internal/domain"
)

func newTestMux(t *testing.T) *http.ServeMux {
	t.Helper()
	service := domain.NewService(catalog.NewDefault())
	mux := http.NewServeMux()
	NewHandler(service).RegisterRoutes(mux)
	return mux
}

func do(t *testing.T, mux http.Handler, method, target string) *httptest.ResponseRecorder {
	t.Helper()
	rr := httptest.NewRecorder()
	mux.ServeHTTP(rr, httptest.NewRequest(method, target, nil))
	return rr
}

func decodeActivities(t *testing.T, mux http.Handler) map[string]ActivityView {
	t.Helper()
	rr := do(t, mux, http.MethodGet, "/activities")
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", rr.Code)
	}
	var out map[string]ActivityView
	if err := json.Unmarshal(rr.Body.Bytes(), &out); err != nil {
		t.Fatalf("failed to decode activities: %v", err)
	}
	return out
}

func detail(t *testing.T, rr *httptest.ResponseRecorder) string {
	t.Helper()
	var body map[string]string
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("failed to decode error body: %v", err)
	}
	return body["detail"]
}

func TestRootRedirectsToStaticIndex(t *testing.T) {
	mux := newTestMux(t)

	rr := do(t, mux, http.MethodGet, "/")
	if rr.Code != http.StatusTemporaryRedirect {
		t.Fatalf("expected 307 got %d", rr.Code)
	}
	if loc := rr.Header().Get("Location"); loc != "/static/index.html" {
		t.Fatalf("unexpected redirect location %q", loc)
	}

	page := do(t, mux, http.MethodGet, "/static/")
	if page.Code != http.StatusOK {
		t.Fatalf("expected 200 for static index got %d", page.Code)
	}
	if !strings.Contains(page.Body.String(), "Extracurricular Activities") {
		t.Fatalf("static index missing heading")
	}
}

func TestGetActivities(t *testing.T) {
	activities := decodeActivities(t, newTestMux(t))

	chess, ok := activities["Chess Club"]
	if !ok {
		t.Fatalf("expected Chess Club in listing")
	}
	if _, ok := activities["Programming Class"]; !ok {
		t.Fatalf("expected Programming Class in listing")
	}
	if chess.MaxParticipants != 12 || len(chess.Participants) != 2 {
		t.Fatalf("unexpected chess club data: %+v", chess)
	}
	for name, a := range activities {
		if len(a.Participants) > a.MaxParticipants {
			t.Fatalf("%s exceeds capacity", name)
		}
	}
}

func TestGetActivitiesKeepsCatalogOrder(t *testing.T) {
	rr := do(t, newTestMux(t), http.MethodGet, "/activities")

	dec := json.NewDecoder(bytes.NewReader(rr.Body.Bytes()))
	if _, err := dec.Token(); err != nil {
		t.Fatalf("read opening brace: %v", err)
	}
	var names []string
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			t.Fatalf("read key: %v", err)
		}
		names = append(names, tok.(string))
		var skip json.RawMessage
		if err := dec.Decode(&skip); err != nil {
			t.Fatalf("read value: %v", err)
		}
	}

	want := catalog.DefaultActivities()
	if len(names) != len(want) {
		t.Fatalf("expected %d activities got %d", len(want), len(names))
	}
	for i := range want {
		if names[i] != want[i].Name.String() {
			t.Fatalf("position %d: expected %s got %s", i, want[i].Name, names[i])
		}
	}
}

func TestGetSingleActivity(t *testing.T) {
	mux := newTestMux(t)

	rr := do(t, mux, http.MethodGet, "/activities/Debate%20Team")
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", rr.Code)
	}
	var view ActivityDetailView
	if err := json.Unmarshal(rr.Body.Bytes(), &view); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if view.Name != "Debate Team" || view.SpotsLeft != 14 {
		t.Fatalf("unexpected view %+v", view)
	}

	missing := do(t, mux, http.MethodGet, "/activities/Knitting%20Circle")
	if missing.Code != http.StatusNotFound {
		t.Fatalf("expected 404 got %d", missing.Code)
	}
}

func TestSignupSuccess(t *testing.T) {
	mux := newTestMux(t)

	rr := do(t, mux, http.MethodPost, "/activities/Chess%20Club/signup?email=test@mergington.edu")
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d: %s", rr.Code, rr.Body.String())
	}
	var resp MessageResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Message != "Signed up test@mergington.edu for Chess Club" {
		t.Fatalf("unexpected message %q", resp.Message)
	}

	chess := decodeActivities(t, mux)["Chess Club"]
	if chess.Participants[len(chess.Participants)-1] != "test@mergington.edu" {
		t.Fatalf("participant not added: %v", chess.Participants)
	}
}

func TestSignupUnknownActivity(t *testing.T) {
	rr := do(t, newTestMux(t), http.MethodPost, "/activities/Nonexistent%20Club/signup?email=test@mergington.edu")
	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected 404 got %d", rr.Code)
	}
	if got := detail(t, rr); got != "Activity not found" {
		t.Fatalf("unexpected detail %q", got)
	}
}

func TestSignupDuplicate(t *testing.T) {
	rr := do(t, newTestMux(t), http.MethodPost, "/activities/Chess%20Club/signup?email=michael@mergington.edu")
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", rr.Code)
	}
	if got := detail(t, rr); got != "Student is already signed up" {
		t.Fatalf("unexpected detail %q", got)
	}
}

func TestSignupActivityFull(t *testing.T) {
	mux := newTestMux(t)

	for i := 0; i < 13; i++ {
		rr := do(t, mux, http.MethodPost, fmt.Sprintf("/activities/Basketball%%20Team/signup?email=player%d@mergington.edu", i))
		if rr.Code != http.StatusOK {
			t.Fatalf("signup %d: expected 200 got %d", i, rr.Code)
		}
	}

	if n := len(decodeActivities(t, mux)["Basketball Team"].Participants); n != 15 {
		t.Fatalf("expected 15 participants got %d", n)
	}

	rr := do(t, mux, http.MethodPost, "/activities/Basketball%20Team/signup?email=overflow@mergington.edu")
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", rr.Code)
	}
	if got := detail(t, rr); got != "Activity is full" {
		t.Fatalf("unexpected detail %q", got)
	}
}

func TestSignupRequiresEmail(t *testing.T) {
	rr := do(t, newTestMux(t), http.MethodPost, "/activities/Chess%20Club/signup")
	if rr.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422 got %d", rr.Code)
	}
}

func TestUnregisterSuccess(t *testing.T) {
	mux := newTestMux(t)

	rr := do(t, mux, http.MethodDelete, "/activities/Chess%20Club/unregister?email=michael@mergington.edu")
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", rr.Code)
	}
	var resp MessageResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Message != "Unregistered michael@mergington.edu from Chess Club" {
		t.Fatalf("unexpected message %q", resp.Message)
	}

	for _, p := range decodeActivities(t, mux)["Chess Club"].Participants {
		if p == "michael@mergington.edu" {
			t.Fatalf("participant still listed")
		}
	}
}

func TestWithdrawAlias(t *testing.T) {
	rr := do(t, newTestMux(t), http.MethodPost, "/activities/Gym%20Class/withdraw?email=john@mergington.edu")
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", rr.Code)
	}
}

func TestUnregisterUnknownActivity(t *testing.T) {
	rr := do(t, newTestMux(t), http.MethodDelete, "/activities/Nonexistent%20Club/unregister?email=test@mergington.edu")
	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected 404 got %d", rr.Code)
	}
	if got := detail(t, rr); got != "Activity not found" {
		t.Fatalf("unexpected detail %q", got)
	}
}

func TestUnregisterNonParticipant(t *testing.T) {
	rr := do(t, newTestMux(t), http.MethodDelete, "/activities/Chess%20Club/unregister?email=notregistered@mergington.edu")
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", rr.Code)
	}
	if got := detail(t, rr); got != "Student is not signed up for this activity" {
		t.Fatalf("unexpected detail %q", got)
	}
}

func TestEmailWithDotsRoundTrip(t *testing.T) {
	mux := newTestMux(t)
	const email = "test.user.name@mergington.edu"

	if rr := do(t, mux, http.MethodPost, "/activities/Programming%20Class/signup?email="+email); rr.Code != http.StatusOK {
		t.Fatalf("signup: expected 200 got %d", rr.Code)
	}
	found := false
	for _, p := range decodeActivities(t, mux)["Programming Class"].Participants {
		found = found || p == email
	}
	if !found {
		t.Fatalf("expected %s in roster", email)
	}
	if rr := do(t, mux, http.MethodDelete, "/activities/Programming%20Class/unregister?email="+email); rr.Code != http.StatusOK {
		t.Fatalf("unregister: expected 200 got %d", rr.Code)
	}
}

func TestWrongMethodNotAllowed(t *testing.T) {
	rr := do(t, newTestMux(t), http.MethodGet, "/activities/Chess%20Club/signup?email=a@x.edu")
	if rr.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405 got %d", rr.Code)
	}
}

type failingStore struct{}

func (failingStore) List(context.Context) ([]domain.Activity, error) {
	return nil, errors.New("connection refused")
}

func (failingStore) Get(context.Context, domain.ActivityName) (*domain.Activity, error) {
	return nil, errors.New("connection refused")
}

func (failingStore) Mutate(context.Context, domain.ActivityName, domain.MutateFunc) (*domain.Activity, error) {
	return nil, errors.New("connection refused")
}

func TestStoreFailureMapsToServerError(t *testing.T) {
	mux := http.NewServeMux()
	NewHandler(domain.NewService(failingStore{})).RegisterRoutes(mux)

	if rr := do(t, mux, http.MethodGet, "/activities"); rr.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500 got %d", rr.Code)
	}
	if rr := do(t, mux, http.MethodPost, "/activities/Chess%20Club/signup?email=a@x.edu"); rr.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500 got %d", rr.Code)
	}
}

func TestRequestLoggerSetsRequestID(t *testing.T) {
	var buf bytes.Buffer
	handler := RequestLogger(log.New(&buf, "", 0))(newTestMux(t))

	rr := do(t, handler, http.MethodGet, "/healthz")
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", rr.Code)
	}
	id := rr.Header().Get("X-Request-ID")
	if id == "" {
		t.Fatalf("missing X-Request-ID")
	}
	if !strings.Contains(buf.String(), id+" GET /healthz 200") {
		t.Fatalf("unexpected log line %q", buf.String())
	}
}

func TestCORSPreflight(t *testing.T) {
	handler := CORS("http://localhost:5173")(newTestMux(t))

	rr := do(t, handler, http.MethodOptions, "/activities/Chess%20Club/signup")
	if rr.Code != http.StatusNoContent {
		t.Fatalf("expected 204 got %d", rr.Code)
	}
	if got := rr.Header().Get("Access-Control-Allow-Origin"); got != "http://localhost:5173" {
		t.Fatalf("unexpected origin header %q", got)
	}
}
