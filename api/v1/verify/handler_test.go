package verify

import (
	"bytes"
	"encoding/json"
	"image/color"
	"image/png"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"go_certhub/internal/issue"
	"go_certhub/internal/model"
	"go_certhub/internal/qr"
	"go_certhub/internal/render"
	"go_certhub/internal/storage"
	"go_certhub/internal/verification"

	"github.com/disintegration/imaging"
	"github.com/gin-gonic/gin"
	"github.com/glebarez/sqlite"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func testLogger() *logrus.Entry {
	l := logrus.New()
	l.SetLevel(logrus.PanicLevel)
	return logrus.NewEntry(l)
}

type env struct {
	db     *gorm.DB
	store  storage.Store
	router *gin.Engine
	cert   *model.Certificate
}

func newEnv(t *testing.T) *env {
	t.Helper()
	gin.SetMode(gin.TestMode)

	dsn := filepath.Join(t.TempDir(), "test.db") + "?_pragma=busy_timeout(10000)"
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("Failed to open test database: %v", err)
	}
	err = db.AutoMigrate(
		&model.User{}, &model.Company{}, &model.Activity{},
		&model.CertificateTemplate{}, &model.Certificate{},
		&model.Validation{}, &model.CertificateDocument{},
	)
	if err != nil {
		t.Fatalf("Failed to migrate: %v", err)
	}

	dir := t.TempDir()
	store, err := storage.NewDisk(filepath.Join(dir, "public"), filepath.Join(dir, "private"))
	if err != nil {
		t.Fatalf("NewDisk() failed: %v", err)
	}

	fonts := render.NewFontResolver("", testLogger())
	compositor := render.NewCompositor(store, fonts, testLogger())
	encoder := qr.NewEncoder(store, testLogger())
	issueSvc := issue.NewService(db, store, encoder, compositor, nil, nil, nil, nil,
		"https://certs.example.com", 3, testLogger())
	verificationSvc := verification.NewService(db, nil, "https://certs.example.com", testLogger())

	handler := NewHandler(db, verificationSvc, issueSvc, store, nil)
	r := gin.New()
	public := r.Group("/api/public")
	public.GET("/verificar/:code", handler.Lookup)
	public.POST("/verificar/:code", handler.Validate)
	public.GET("/certificados/:uniqueCode/descargar", handler.DownloadPDF)
	public.GET("/certificados/:uniqueCode/imagen", handler.Image)

	e := &env{db: db, store: store, router: r}
	e.seed(t)
	return e
}

func (e *env) seed(t *testing.T) {
	t.Helper()

	company := model.Company{Name: "Acme Corp"}
	if err := e.db.Create(&company).Error; err != nil {
		t.Fatal(err)
	}
	activity := model.Activity{CompanyID: company.ID, Name: "Go Workshop"}
	if err := e.db.Create(&activity).Error; err != nil {
		t.Fatal(err)
	}
	recipient := model.User{Username: "jane", PasswordHash: "x", FullName: "Jane Doe", Email: "jane@example.com"}
	if err := e.db.Create(&recipient).Error; err != nil {
		t.Fatal(err)
	}

	bg := imaging.New(800, 600, color.NRGBA{255, 255, 255, 255})
	var buf bytes.Buffer
	if err := png.Encode(&buf, bg); err != nil {
		t.Fatal(err)
	}
	if err := e.store.Put(storage.Private, "templates/bg.png", buf.Bytes()); err != nil {
		t.Fatal(err)
	}
	tpl := model.CertificateTemplate{
		Name:         "Default",
		FilePath:     "templates/bg.png",
		NamePosition: []byte(`{"x":400,"y":300,"fontSize":36}`),
	}
	if err := e.db.Create(&tpl).Error; err != nil {
		t.Fatal(err)
	}

	code := "CERT001-abcdef123456"
	cert := model.Certificate{
		UniqueCode:       "uc-1",
		VerificationCode: &code,
		ActivityID:       activity.ID,
		TemplateID:       tpl.ID,
		RecipientID:      recipient.ID,
		ParticipantName:  "Jane Doe",
		IssueDate:        time.Date(2026, 3, 15, 0, 0, 0, 0, time.UTC),
		Status:           model.CertificateStatusIssued,
	}
	if err := e.db.Create(&cert).Error; err != nil {
		t.Fatal(err)
	}
	e.cert = &cert
}

func (e *env) do(method, path string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	req := httptest.NewRequest(method, path, nil)
	e.router.ServeHTTP(w, req)
	return w
}

func TestLookupKnownCode(t *testing.T) {
	e := newEnv(t)

	w := e.do(http.MethodGet, "/api/public/verificar/CERT001-abcdef123456")
	if w.Code != http.StatusOK {
		t.Fatalf("Status = %d, body %s", w.Code, w.Body.String())
	}

	var body struct {
		Success     bool                         `json:"success"`
		Certificate verification.CertificateView `json:"certificate"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("Invalid JSON: %v", err)
	}
	if !body.Success {
		t.Error("Expected success=true")
	}
	if body.Certificate.ParticipantName != "Jane Doe" {
		t.Errorf("ParticipantName = %q", body.Certificate.ParticipantName)
	}
	if body.Certificate.Estado != "issued" {
		t.Errorf("estado mirror = %q", body.Certificate.Estado)
	}
	if body.Certificate.TemplateName != "Default" {
		t.Errorf("TemplateName = %q", body.Certificate.TemplateName)
	}

	// Lookup is read-only
	var reloaded model.Certificate
	e.db.First(&reloaded, e.cert.ID)
	if reloaded.VerificationCount != 0 {
		t.Errorf("Lookup must not bump the counter, got %d", reloaded.VerificationCount)
	}
}

func TestLookupUnknownCodeShape(t *testing.T) {
	e := newEnv(t)

	w := e.do(http.MethodGet, "/api/public/verificar/CERT999-000000000000")
	if w.Code != http.StatusNotFound {
		t.Fatalf("Status = %d", w.Code)
	}

	var body map[string]interface{}
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("Invalid JSON: %v", err)
	}
	if success, ok := body["success"].(bool); !ok || success {
		t.Errorf("Expected success=false, body %v", body)
	}
	if _, ok := body["message"].(string); !ok {
		t.Errorf("Expected a message field, body %v", body)
	}
}

func TestValidateBumpsCounter(t *testing.T) {
	e := newEnv(t)

	w := e.do(http.MethodPost, "/api/public/verificar/CERT001-abcdef123456")
	if w.Code != http.StatusOK {
		t.Fatalf("Status = %d, body %s", w.Code, w.Body.String())
	}

	var reloaded model.Certificate
	e.db.First(&reloaded, e.cert.ID)
	if reloaded.VerificationCount != 1 {
		t.Errorf("VerificationCount = %d, want 1", reloaded.VerificationCount)
	}

	var audits int64
	e.db.Model(&model.Validation{}).Where("certificate_id = ?", e.cert.ID).Count(&audits)
	if audits != 1 {
		t.Errorf("Audit rows = %d, want 1", audits)
	}
}

func TestDownloadPDF(t *testing.T) {
	e := newEnv(t)

	w := e.do(http.MethodGet, "/api/public/certificados/uc-1/descargar")
	if w.Code != http.StatusOK {
		t.Fatalf("Status = %d, body %s", w.Code, w.Body.String())
	}
	if got := w.Header().Get("Content-Disposition"); got != `attachment; filename="certificado-uc-1.pdf"` {
		t.Errorf("Content-Disposition = %q", got)
	}
	if !bytes.HasPrefix(w.Body.Bytes(), []byte("%PDF-")) {
		t.Error("Body is not a PDF")
	}
}

func TestDownloadUnknownCertificate(t *testing.T) {
	e := newEnv(t)

	w := e.do(http.MethodGet, "/api/public/certificados/nope/descargar")
	if w.Code != http.StatusNotFound {
		t.Fatalf("Status = %d", w.Code)
	}
}

func TestImageRepairsOnRead(t *testing.T) {
	e := newEnv(t)

	// No final image on disk yet; the endpoint must compose one
	w := e.do(http.MethodGet, "/api/public/certificados/uc-1/imagen")
	if w.Code != http.StatusOK {
		t.Fatalf("Status = %d, body %s", w.Code, w.Body.String())
	}
	if _, err := png.Decode(bytes.NewReader(w.Body.Bytes())); err != nil {
		t.Errorf("Response is not a PNG: %v", err)
	}
}
