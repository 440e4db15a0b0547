package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"

	"letterforge/internal/app"
	"letterforge/internal/usertoken"
	"letterforge/pkg/ai"
	"letterforge/pkg/domain"
	"letterforge/pkg/store"
)

const testSecret = "server-test-secret"

type okBackend struct{}

func (okBackend) Run(context.Context, ai.GenerationContext) (ai.Result, error) {
	return ai.Result{HTMLContent: "<p>ok</p>", TextContent: "ok"}, nil
}

type fixture struct {
	server *Server
	store  *store.MemoryStore
	app    *app.App
	queued []string
}

func newFixture(t *testing.T, callbackToken string) *fixture {
	t.Helper()
	f := &fixture{store: store.NewMemoryStore()}
	a, err := app.New(app.Config{
		Store:   f.store,
		Builtin: okBackend{},
		Enqueuer: app.EnqueueFunc(func(_ context.Context, id string) error {
			f.queued = append(f.queued, id)
			return nil
		}),
	})
	if err != nil {
		t.Fatalf("app.New: %v", err)
	}
	f.app = a

	verifier, err := usertoken.NewVerifier(usertoken.Config{Secret: testSecret})
	if err != nil {
		t.Fatalf("NewVerifier: %v", err)
	}
	srv, err := New(Config{App: a, TokenVerifier: verifier, CallbackToken: callbackToken})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	f.server = srv
	return f
}

func userToken(t *testing.T, userID string) string {
	t.Helper()
	now := time.Now().UTC()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   userID,
		Issuer:    "letterforge-auth",
		Audience:  jwt.ClaimStrings{"letterforge-api"},
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(time.Hour)),
	})
	signed, err := token.SignedString([]byte(testSecret))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return signed
}

func (f *fixture) do(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	f.server.Router().ServeHTTP(rec, req)
	return rec
}

func (f *fixture) seedGeneratingNewsletter(t *testing.T) {
	t.Helper()
	if err := f.store.SaveProject(domain.Project{
		ID: "p1", OwnerID: "u1", Name: "Weekly", AuthorName: "Ana",
		Kind: domain.KindPersonal, Backend: domain.BackendBuiltin,
	}); err != nil {
		t.Fatalf("save project: %v", err)
	}
	if err := f.store.SaveNewsletter(domain.Newsletter{
		ID: "n1", ProjectID: "p1", OwnerID: "u1", Title: "Edition 1",
		LinksRaw: "https://a.com", Status: domain.StatusGenerating,
	}); err != nil {
		t.Fatalf("save newsletter: %v", err)
	}
}

func TestAuthRequired(t *testing.T) {
	f := newFixture(t, "")
	rec := f.do(t, http.MethodGet, "/projects", "", nil)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
}

func TestHealthEndpointIsPublic(t *testing.T) {
	f := newFixture(t, "")
	rec := f.do(t, http.MethodGet, "/healthz", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
}

func TestProjectLifecycle(t *testing.T) {
	f := newFixture(t, "")
	token := userToken(t, "u1")

	rec := f.do(t, http.MethodPost, "/projects", token, app.ProjectInput{
		Name:       "Tech Weekly",
		AuthorName: "Ana",
		Kind:       domain.KindPersonal,
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create status = %d, body %s", rec.Code, rec.Body)
	}
	var project domain.Project
	if err := json.Unmarshal(rec.Body.Bytes(), &project); err != nil {
		t.Fatalf("decode project: %v", err)
	}
	if project.Backend != domain.BackendBuiltin {
		t.Fatalf("backend = %q, want builtin default", project.Backend)
	}

	rec = f.do(t, http.MethodGet, "/projects/"+project.ID, token, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("get status = %d", rec.Code)
	}

	rec = f.do(t, http.MethodGet, "/projects/"+project.ID, userToken(t, "intruder"), nil)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("foreign get status = %d, want 403", rec.Code)
	}

	rec = f.do(t, http.MethodDelete, "/projects/"+project.ID, token, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("delete status = %d", rec.Code)
	}
	rec = f.do(t, http.MethodGet, "/projects/"+project.ID, token, nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("get after delete status = %d, want 404", rec.Code)
	}
}

func TestGenerateEndpoint(t *testing.T) {
	f := newFixture(t, "")
	f.seedGeneratingNewsletter(t)
	// Reset to draft so the generate call owns the transition.
	n, _, _ := f.store.GetNewsletter("n1")
	n.Status = domain.StatusDraft
	if err := f.store.SaveNewsletter(n); err != nil {
		t.Fatalf("save newsletter: %v", err)
	}
	token := userToken(t, "u1")

	rec := f.do(t, http.MethodPost, "/newsletters/n1/generate", token, nil)
	if rec.Code != http.StatusAccepted {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body)
	}
	var got domain.Newsletter
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.Status != domain.StatusGenerating {
		t.Fatalf("status = %q, want generating", got.Status)
	}
	if len(f.queued) != 1 || f.queued[0] != "n1" {
		t.Fatalf("queued = %v, want [n1]", f.queued)
	}

	// A second generate while in flight conflicts.
	rec = f.do(t, http.MethodPost, "/newsletters/n1/generate", token, nil)
	if rec.Code != http.StatusConflict {
		t.Fatalf("second generate status = %d, want 409", rec.Code)
	}
}

func TestCancelEndpoint(t *testing.T) {
	f := newFixture(t, "")
	f.seedGeneratingNewsletter(t)
	token := userToken(t, "u1")

	rec := f.do(t, http.MethodPost, "/newsletters/n1/cancel", token, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body)
	}
	var got domain.Newsletter
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.Status != domain.StatusDraft {
		t.Fatalf("status = %q, want draft", got.Status)
	}

	rec = f.do(t, http.MethodPost, "/newsletters/n1/cancel", token, nil)
	if rec.Code != http.StatusConflict {
		t.Fatalf("second cancel status = %d, want 409", rec.Code)
	}
}

func TestCallbackContract(t *testing.T) {
	f := newFixture(t, "")
	f.seedGeneratingNewsletter(t)

	// Missing newsletter_id.
	rec := f.do(t, http.MethodPost, "/callbacks/newsletter", "", map[string]string{})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("missing id status = %d, want 400", rec.Code)
	}

	// Unknown newsletter.
	rec = f.do(t, http.MethodPost, "/callbacks/newsletter", "", map[string]string{"newsletter_id": "ghost"})
	if rec.Code != http.StatusNotFound {
		t.Fatalf("unknown id status = %d, want 404", rec.Code)
	}

	// Missing one content field.
	rec = f.do(t, http.MethodPost, "/callbacks/newsletter", "", map[string]string{
		"newsletter_id": "n1",
		"html_content":  "<p>half</p>",
	})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("half content status = %d, want 400", rec.Code)
	}

	// Full result applies.
	rec = f.do(t, http.MethodPost, "/callbacks/newsletter", "", map[string]string{
		"newsletter_id": "n1",
		"html_content":  "<p>done</p>",
		"text_content":  "done",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("apply status = %d, body %s", rec.Code, rec.Body)
	}
	n, _, _ := f.store.GetNewsletter("n1")
	if n.Status != domain.StatusFinal {
		t.Fatalf("status = %q, want final", n.Status)
	}

	// A late duplicate gets the no-write acknowledgement.
	rec = f.do(t, http.MethodPost, "/callbacks/newsletter", "", map[string]string{
		"newsletter_id": "n1",
		"html_content":  "<p>late</p>",
		"text_content":  "late",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("late callback status = %d, want 200", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "no longer generating") {
		t.Fatalf("late callback body = %s, want no-longer-generating ack", rec.Body)
	}
	n, _, _ = f.store.GetNewsletter("n1")
	if n.HTMLContent != "<p>done</p>" {
		t.Fatalf("html = %q, late callback must not overwrite", n.HTMLContent)
	}
}

func TestCallbackTokenGate(t *testing.T) {
	f := newFixture(t, "shared-token")
	f.seedGeneratingNewsletter(t)

	body := map[string]string{"newsletter_id": "n1", "error": "boom"}
	rec := f.do(t, http.MethodPost, "/callbacks/newsletter", "", body)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("without token status = %d, want 401", rec.Code)
	}

	data, _ := json.Marshal(body)
	req := httptest.NewRequest(http.MethodPost, "/callbacks/newsletter", bytes.NewReader(data))
	req.Header.Set("X-Callback-Token", "shared-token")
	rec2 := httptest.NewRecorder()
	f.server.Router().ServeHTTP(rec2, req)
	if rec2.Code != http.StatusOK {
		t.Fatalf("with token status = %d, body %s", rec2.Code, rec2.Body)
	}
	n, _, _ := f.store.GetNewsletter("n1")
	if n.Status != domain.StatusError || !strings.HasPrefix(n.ErrorMessage, "webhook error: ") {
		t.Fatalf("record = %+v, want prefixed webhook error", n)
	}
}

func TestImportEndpoint(t *testing.T) {
	f := newFixture(t, "")
	f.seedGeneratingNewsletter(t)
	if err := f.store.SaveSpreadsheet(domain.Spreadsheet{ID: "s1", ProjectID: "p1", Name: "Data"}); err != nil {
		t.Fatalf("save spreadsheet: %v", err)
	}
	token := userToken(t, "u1")

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("file", "data.csv")
	if err != nil {
		t.Fatalf("create form file: %v", err)
	}
	fmt.Fprint(part, "Name,Active\nAna,sim\nBruno,não\n")
	mw.Close()

	req := httptest.NewRequest(http.MethodPost, "/spreadsheets/s1/import", &buf)
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	rec := httptest.NewRecorder()
	f.server.Router().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body)
	}
	var data app.SheetData
	if err := json.Unmarshal(rec.Body.Bytes(), &data); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(data.Columns) != 2 || data.Columns[1].Type != domain.ColumnBoolean {
		t.Fatalf("columns = %+v, want boolean second column", data.Columns)
	}
	if len(data.Rows) != 2 {
		t.Fatalf("rows = %d, want 2", len(data.Rows))
	}
}

func TestUpdateNewsletterWhileGenerating(t *testing.T) {
	f := newFixture(t, "")
	f.seedGeneratingNewsletter(t)
	token := userToken(t, "u1")

	rec := f.do(t, http.MethodPatch, "/newsletters/n1", token, app.NewsletterInput{Title: "New"})
	if rec.Code != http.StatusConflict {
		t.Fatalf("status = %d, want 409", rec.Code)
	}
}
