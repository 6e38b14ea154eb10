package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"labreader/internal/analysis"
	"labreader/internal/config"
	"labreader/internal/intake"
	"labreader/internal/models"
	"labreader/internal/ocr"
	"labreader/internal/pipeline"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type processorFunc func(ctx context.Context, up pipeline.Upload) (*models.Report, error)

func (f processorFunc) Process(ctx context.Context, up pipeline.Upload) (*models.Report, error) {
	return f(ctx, up)
}

type staticRuns []*models.PipelineRun

func (s staticRuns) ListRuns(_ context.Context, limit int) ([]*models.PipelineRun, error) {
	if limit > 0 && limit < len(s) {
		return s[:limit], nil
	}
	return s, nil
}

func testConfig() *config.Config {
	enabled := true
	return &config.Config{
		BasicConfig: config.BasicConfig{
			MaxUploadBytes: 1 << 20,
			AllowedOrigins: []string{"https://labs.example.com"},
			AdminAPIKey:    "admin-secret",
			CSRFProtection: &enabled,
		},
		Firebase: config.FirebaseConfig{
			APIKey:    "fb-key",
			ProjectID: "labreader-test",
			AppID:     "1:123:web:abc",
		},
	}
}

func newTestServer(t *testing.T, cfg *config.Config, processor Processor) *gin.Engine {
	t.Helper()
	handler, err := NewHandler(cfg, processor, staticRuns{
		{ID: "run-1", Provider: "heuristic", Status: models.RunSuccess},
		{ID: "run-2", Provider: "heuristic", Status: models.RunFailed, ErrorKind: pipeline.KindOCRTimeout},
	}, nil, zerolog.Nop())
	if err != nil {
		t.Fatalf("new handler: %v", err)
	}
	router := gin.New()
	handler.RegisterRoutes(router)
	return router
}

type uploadRequest struct {
	content     []byte
	contentType string
	fieldName   string
	csrf        string
	accept      string
}

func doUpload(t *testing.T, router *gin.Engine, r uploadRequest) *httptest.ResponseRecorder {
	t.Helper()
	if r.fieldName == "" {
		r.fieldName = "image"
	}
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	if r.csrf != "" {
		if err := mw.WriteField("csrf_token", r.csrf); err != nil {
			t.Fatalf("write field: %v", err)
		}
	}
	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", fmt.Sprintf(`form-data; name=%q; filename="report.png"`, r.fieldName))
	header.Set("Content-Type", r.contentType)
	part, err := mw.CreatePart(header)
	if err != nil {
		t.Fatalf("create part: %v", err)
	}
	part.Write(r.content)
	mw.Close()

	req := httptest.NewRequest(http.MethodPost, "/upload", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	if r.csrf != "" {
		req.AddCookie(&http.Cookie{Name: "csrf_token", Value: r.csrf})
	}
	if r.accept != "" {
		req.Header.Set("Accept", r.accept)
	}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func assertStatus(t *testing.T, rec *httptest.ResponseRecorder, want int) {
	t.Helper()
	if rec.Code != want {
		t.Fatalf("expected status %d, got %d: %s", want, rec.Code, rec.Body.String())
	}
}

func decodeJSON(t *testing.T, data []byte, v any) {
	t.Helper()
	if err := json.Unmarshal(data, v); err != nil {
		t.Fatalf("decode json: %v (%s)", err, data)
	}
}

func TestPagesRender(t *testing.T) {
	router := newTestServer(t, testConfig(), nil)
	for _, path := range []string{"/", "/send", "/sign", "/login", "/cnct"} {
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		assertStatus(t, rec, http.StatusOK)
		if !strings.Contains(rec.Header().Get("Content-Type"), "text/html") {
			t.Fatalf("%s: expected html, got %q", path, rec.Header().Get("Content-Type"))
		}
	}

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	if !strings.Contains(rec.Body.String(), `name="image"`) {
		t.Fatal("landing page should contain the upload field")
	}
	var csrf string
	for _, ck := range rec.Result().Cookies() {
		if ck.Name == "csrf_token" {
			csrf = ck.Value
		}
	}
	if csrf == "" || !strings.Contains(rec.Body.String(), csrf) {
		t.Fatal("expected csrf cookie and matching hidden field")
	}
}

func TestUploadSuccessHTMLAndJSON(t *testing.T) {
	var got pipeline.Upload
	processor := processorFunc(func(_ context.Context, up pipeline.Upload) (*models.Report, error) {
		got = up
		return &models.Report{
			Analysis:           "Hemoglobin: 9.3 (Low) <b>",
			ExtractedText:      "Hemoglobin 9.3",
			AnalysisSuccessful: true,
		}, nil
	})
	router := newTestServer(t, testConfig(), processor)

	rec := doUpload(t, router, uploadRequest{content: []byte("png"), contentType: "image/png", csrf: "tok"})
	assertStatus(t, rec, http.StatusOK)
	if got.MimeType != "image/png" || got.FileName != "report.png" || got.Size != 3 {
		t.Fatalf("unexpected upload passed to pipeline: %+v", got)
	}
	body := rec.Body.String()
	if !strings.Contains(body, "Hemoglobin: 9.3 (Low) &lt;b&gt;") || !strings.Contains(body, "Hemoglobin 9.3") {
		t.Fatalf("unexpected report page:\n%s", body)
	}

	rec = doUpload(t, router, uploadRequest{content: []byte("png"), contentType: "image/png", csrf: "tok", accept: "application/json"})
	assertStatus(t, rec, http.StatusOK)
	var report struct {
		Analysis      string `json:"analysis"`
		ExtractedText string `json:"extractedText"`
	}
	decodeJSON(t, rec.Body.Bytes(), &report)
	if report.ExtractedText != "Hemoglobin 9.3" {
		t.Fatalf("unexpected json report %+v", report)
	}
}

func TestUploadErrorsAreMapped(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantMsg    string
	}{
		{"unsupported", fmt.Errorf("%w: %q", intake.ErrUnsupportedMediaType, "application/pdf"), http.StatusBadRequest, "Unsupported file type"},
		{"too large", intake.ErrPayloadTooLarge, http.StatusBadRequest, "File too large"},
		{"no text", ocr.ErrNoTextExtracted, http.StatusBadRequest, "No text found in the image"},
		{"timeout", &ocr.Error{Op: "invoke", Err: ocr.ErrTimeout, Details: "tesseract stderr secret"}, http.StatusInternalServerError, "Reading the report took too long"},
		{"execution", &ocr.Error{Op: "invoke", Err: ocr.ErrExecutionFailed, Details: "tesseract stderr secret"}, http.StatusInternalServerError, "Text extraction failed"},
		{"malformed", ocr.ErrMalformedOutput, http.StatusInternalServerError, "Text extraction failed"},
		{"unexpected", errors.New("disk secret exploded"), http.StatusInternalServerError, "Something went wrong"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			router := newTestServer(t, testConfig(), processorFunc(func(context.Context, pipeline.Upload) (*models.Report, error) {
				return nil, tt.err
			}))
			rec := doUpload(t, router, uploadRequest{content: []byte("x"), contentType: "image/png", csrf: "tok", accept: "application/json"})
			assertStatus(t, rec, tt.wantStatus)
			var body struct {
				Message string `json:"message"`
				Details string `json:"details"`
			}
			decodeJSON(t, rec.Body.Bytes(), &body)
			if body.Message != tt.wantMsg || body.Details == "" {
				t.Fatalf("unexpected body %+v", body)
			}
			if strings.Contains(rec.Body.String(), "secret") {
				t.Fatalf("raw error leaked to client: %s", rec.Body.String())
			}
		})
	}
}

func TestUploadPanicRendersErrorView(t *testing.T) {
	router := newTestServer(t, testConfig(), processorFunc(func(context.Context, pipeline.Upload) (*models.Report, error) {
		panic("secret failure")
	}))
	rec := doUpload(t, router, uploadRequest{content: []byte("x"), contentType: "image/png", csrf: "tok"})
	assertStatus(t, rec, http.StatusInternalServerError)
	if !strings.Contains(rec.Body.String(), "Something went wrong") || strings.Contains(rec.Body.String(), "secret") {
		t.Fatalf("unexpected error page:\n%s", rec.Body.String())
	}
}

func TestUploadRequestValidation(t *testing.T) {
	called := false
	router := newTestServer(t, testConfig(), processorFunc(func(context.Context, pipeline.Upload) (*models.Report, error) {
		called = true
		return &models.Report{}, nil
	}))

	rec := doUpload(t, router, uploadRequest{content: []byte("x"), contentType: "image/png", fieldName: "file", csrf: "tok"})
	assertStatus(t, rec, http.StatusBadRequest)

	rec = doUpload(t, router, uploadRequest{content: []byte("x"), contentType: "image/png"})
	assertStatus(t, rec, http.StatusForbidden)

	rec = doUpload(t, router, uploadRequest{content: bytes.Repeat([]byte("a"), 3<<20), contentType: "image/png", csrf: "tok"})
	assertStatus(t, rec, http.StatusBadRequest)
	if !strings.Contains(rec.Body.String(), "File too large") {
		t.Fatalf("expected size error page:\n%s", rec.Body.String())
	}

	req := httptest.NewRequest(http.MethodPost, "/upload", strings.NewReader("not multipart"))
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assertStatus(t, rec, http.StatusBadRequest)

	if called {
		t.Fatal("pipeline should not run for rejected requests")
	}
}

func TestUploadEndToEnd(t *testing.T) {
	root := t.TempDir()
	uploadDir := filepath.Join(root, "uploads")
	artifactDir := filepath.Join(root, "artifacts")
	inv := invokerFunc(func(_ context.Context, imagePath, artifactPath string) error {
		data, err := os.ReadFile(imagePath)
		if err != nil {
			return err
		}
		return ocr.WriteArtifact(artifactPath, strings.Split(string(data), "\n"))
	})
	p := pipeline.New(pipeline.Options{
		Intake:      intake.New(uploadDir, 1<<20),
		Invoker:     inv,
		Provider:    analysis.NewHeuristic(),
		ArtifactDir: artifactDir,
		Log:         zerolog.Nop(),
	})
	router := newTestServer(t, testConfig(), p)

	rec := doUpload(t, router, uploadRequest{
		content:     []byte("COMPLETE BLOOD COUNT\nHemoglobin 9.3 g/dL"),
		contentType: "image/jpeg",
		csrf:        "tok",
		accept:      "application/json",
	})
	assertStatus(t, rec, http.StatusOK)
	var report models.Report
	decodeJSON(t, rec.Body.Bytes(), &report)
	if !report.AnalysisSuccessful || !strings.Contains(report.Analysis, "iron-rich foods") {
		t.Fatalf("unexpected report %+v", report)
	}

	rec = doUpload(t, router, uploadRequest{content: []byte("%PDF"), contentType: "application/pdf", csrf: "tok"})
	assertStatus(t, rec, http.StatusBadRequest)

	for _, dir := range []string{uploadDir, artifactDir} {
		entries, _ := os.ReadDir(dir)
		if len(entries) != 0 {
			t.Fatalf("expected %s to be empty after requests, found %d", dir, len(entries))
		}
	}
}

type invokerFunc func(ctx context.Context, imagePath, artifactPath string) error

func (f invokerFunc) Invoke(ctx context.Context, imagePath, artifactPath string) error {
	return f(ctx, imagePath, artifactPath)
}

func TestFirebaseConfig(t *testing.T) {
	router := newTestServer(t, testConfig(), nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/firebase-config", nil))
	assertStatus(t, rec, http.StatusOK)
	var body map[string]string
	decodeJSON(t, rec.Body.Bytes(), &body)
	if body["apiKey"] != "fb-key" || body["projectId"] != "labreader-test" {
		t.Fatalf("unexpected firebase config %v", body)
	}

	cfg := testConfig()
	cfg.Firebase = config.FirebaseConfig{}
	router = newTestServer(t, cfg, nil)
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/firebase-config", nil))
	assertStatus(t, rec, http.StatusNotFound)
}

func TestRunsRequireAPIKey(t *testing.T) {
	router := newTestServer(t, testConfig(), nil)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/runs", nil))
	assertStatus(t, rec, http.StatusUnauthorized)

	req := httptest.NewRequest(http.MethodGet, "/api/runs?limit=1", nil)
	req.Header.Set("x-api-key", "admin-secret")
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assertStatus(t, rec, http.StatusOK)
	var body struct {
		Runs []models.PipelineRun `json:"runs"`
	}
	decodeJSON(t, rec.Body.Bytes(), &body)
	if len(body.Runs) != 1 || body.Runs[0].ID != "run-1" {
		t.Fatalf("unexpected runs %+v", body.Runs)
	}

	req = httptest.NewRequest(http.MethodGet, "/api/runs?limit=abc", nil)
	req.Header.Set("x-api-key", "admin-secret")
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assertStatus(t, rec, http.StatusBadRequest)
}

func TestHealthzAndNotFound(t *testing.T) {
	router := newTestServer(t, testConfig(), nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assertStatus(t, rec, http.StatusOK)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/nope", nil))
	assertStatus(t, rec, http.StatusNotFound)
}
