package issue

import (
	"bytes"
	"context"
	"image/color"
	"image/png"
	"path/filepath"
	"regexp"
	"strings"
	"testing"

	"go_certhub/internal/model"
	"go_certhub/internal/qr"
	"go_certhub/internal/render"
	"go_certhub/internal/storage"

	"github.com/disintegration/imaging"
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

func testDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := filepath.Join(t.TempDir(), "test.db") + "?_pragma=busy_timeout(10000)"
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("Failed to open test database: %v", err)
	}
	err = db.AutoMigrate(
		&model.User{},
		&model.Company{},
		&model.Activity{},
		&model.CertificateTemplate{},
		&model.Certificate{},
		&model.Validation{},
		&model.CertificateDocument{},
	)
	if err != nil {
		t.Fatalf("Failed to migrate test database: %v", err)
	}
	return db
}

func testStore(t *testing.T) storage.Store {
	t.Helper()
	dir := t.TempDir()
	d, err := storage.NewDisk(filepath.Join(dir, "public"), filepath.Join(dir, "private"))
	if err != nil {
		t.Fatalf("NewDisk() failed: %v", err)
	}
	return d
}

type capturingMailer struct {
	to       string
	filename string
	pdfLen   int
	calls    int
}

func (m *capturingMailer) SendCertificate(to, participantName, verifyURL string, pdf []byte, filename string) error {
	m.calls++
	m.to = to
	m.filename = filename
	m.pdfLen = len(pdf)
	return nil
}

type fixture struct {
	db      *gorm.DB
	store   storage.Store
	service *Service
	mailer  *capturingMailer
	events  *[]string

	activity  model.Activity
	template  model.CertificateTemplate
	recipient model.User
}

func newFixture(t *testing.T, maxAttempts int) *fixture {
	t.Helper()
	db := testDB(t)
	store := testStore(t)

	fonts := render.NewFontResolver("", testLogger())
	compositor := render.NewCompositor(store, fonts, testLogger())
	encoder := qr.NewEncoder(store, testLogger())
	mailer := &capturingMailer{}

	events := &[]string{}
	publish := func(eventType string, payload interface{}) error {
		*events = append(*events, eventType)
		return nil
	}

	svc := NewService(db, store, encoder, compositor, mailer, nil, nil, publish,
		"https://certs.example.com", maxAttempts, testLogger())

	f := &fixture{db: db, store: store, service: svc, mailer: mailer, events: events}

	company := model.Company{Name: "Acme Corp"}
	if err := db.Create(&company).Error; err != nil {
		t.Fatalf("Failed to seed company: %v", err)
	}
	f.activity = model.Activity{CompanyID: company.ID, Name: "Go Workshop"}
	if err := db.Create(&f.activity).Error; err != nil {
		t.Fatalf("Failed to seed activity: %v", err)
	}
	f.recipient = model.User{Username: "jane", PasswordHash: "x", FullName: "Jane Doe", Email: "jane@example.com"}
	if err := db.Create(&f.recipient).Error; err != nil {
		t.Fatalf("Failed to seed recipient: %v", err)
	}

	bg := imaging.New(800, 600, color.NRGBA{255, 255, 255, 255})
	var buf bytes.Buffer
	if err := png.Encode(&buf, bg); err != nil {
		t.Fatalf("Failed to encode background: %v", err)
	}
	if err := store.Put(storage.Private, "templates/bg.png", buf.Bytes()); err != nil {
		t.Fatalf("Failed to store background: %v", err)
	}
	f.template = model.CertificateTemplate{
		Name:         "Default",
		FilePath:     "templates/bg.png",
		NamePosition: []byte(`{"x":400,"y":300,"fontSize":36,"color":"#000"}`),
		QRPosition:   []byte(`{"x":600,"y":420,"width":120,"height":120}`),
	}
	if err := db.Create(&f.template).Error; err != nil {
		t.Fatalf("Failed to seed template: %v", err)
	}
	return f
}

func (f *fixture) issueOne(t *testing.T, sendEmail bool) *model.Certificate {
	t.Helper()
	certs, err := f.service.IssueBatch(f.activity.ID, f.template.ID,
		[]BatchRecipient{{UserID: f.recipient.ID}}, sendEmail)
	if err != nil {
		t.Fatalf("IssueBatch() failed: %v", err)
	}
	return &certs[0]
}

func TestIssueBatchCreatesPending(t *testing.T) {
	f := newFixture(t, 3)

	certs, err := f.service.IssueBatch(f.activity.ID, f.template.ID, []BatchRecipient{
		{UserID: f.recipient.ID},
		{UserID: f.recipient.ID, Name: "Custom Name"},
	}, false)
	if err != nil {
		t.Fatalf("IssueBatch() failed: %v", err)
	}
	if len(certs) != 2 {
		t.Fatalf("Expected 2 certificates, got %d", len(certs))
	}

	if certs[0].Status != model.CertificateStatusPending {
		t.Errorf("Status = %q, want pending", certs[0].Status)
	}
	if certs[0].ParticipantName != "Jane Doe" {
		t.Errorf("Snapshot name = %q, want recipient full name", certs[0].ParticipantName)
	}
	if certs[1].ParticipantName != "Custom Name" {
		t.Errorf("Explicit name not honored: %q", certs[1].ParticipantName)
	}
	if certs[0].UniqueCode == "" || certs[0].UniqueCode == certs[1].UniqueCode {
		t.Error("Unique codes must be distinct and non-empty")
	}
}

func TestIssueBatchRejectsEmptyAndUnknown(t *testing.T) {
	f := newFixture(t, 3)

	if _, err := f.service.IssueBatch(f.activity.ID, f.template.ID, nil, false); err == nil {
		t.Error("Empty batch must be rejected")
	}
	if _, err := f.service.IssueBatch(9999, f.template.ID, []BatchRecipient{{UserID: f.recipient.ID}}, false); err == nil {
		t.Error("Unknown activity must be rejected")
	}
}

func TestClaimForRender(t *testing.T) {
	f := newFixture(t, 1)
	cert := f.issueOne(t, false)

	if err := f.service.ClaimForRender(cert.ID); err != nil {
		t.Fatalf("First claim failed: %v", err)
	}
	// Attempts are now at the cap, so a second claim must lose
	if err := f.service.ClaimForRender(cert.ID); err == nil {
		t.Error("Second claim should fail once attempts are exhausted")
	}
}

func TestProcessIssuesCertificate(t *testing.T) {
	f := newFixture(t, 3)
	cert := f.issueOne(t, true)

	if err := f.service.ClaimForRender(cert.ID); err != nil {
		t.Fatalf("Claim failed: %v", err)
	}
	if err := f.service.Process(context.Background(), cert); err != nil {
		t.Fatalf("Process() failed: %v", err)
	}

	var reloaded model.Certificate
	if err := f.db.First(&reloaded, cert.ID).Error; err != nil {
		t.Fatalf("Failed to reload: %v", err)
	}
	if reloaded.Status != model.CertificateStatusIssued {
		t.Fatalf("Status = %q, want issued (last_error=%v)", reloaded.Status, reloaded.LastError)
	}

	codePattern := regexp.MustCompile(`^CERT\d{3}-[0-9a-f]{12}$`)
	if reloaded.VerificationCode == nil || !codePattern.MatchString(*reloaded.VerificationCode) {
		t.Errorf("Verification code = %v", reloaded.VerificationCode)
	}
	if reloaded.VerificationToken == nil || len(*reloaded.VerificationToken) != 64 {
		t.Error("Verification token missing or wrong length")
	}
	if !f.store.Exists(storage.Public, reloaded.QRImagePath) {
		t.Error("QR image not stored")
	}
	if !f.store.Exists(storage.Public, reloaded.FinalImagePath) {
		t.Error("Final image not stored")
	}

	var doc model.CertificateDocument
	if err := f.db.Where("certificate_id = ?", cert.ID).First(&doc).Error; err != nil {
		t.Fatalf("Document row missing: %v", err)
	}
	data, err := f.store.Get(storage.Private, doc.FilePath)
	if err != nil {
		t.Fatalf("Stored PDF not readable: %v", err)
	}
	if !bytes.HasPrefix(data, []byte("%PDF-")) {
		t.Error("Stored document is not a PDF")
	}

	if len(*f.events) != 1 || (*f.events)[0] != "issued" {
		t.Errorf("Events = %v, want [issued]", *f.events)
	}
	if f.mailer.calls != 1 || f.mailer.to != "jane@example.com" {
		t.Errorf("Mailer calls=%d to=%q", f.mailer.calls, f.mailer.to)
	}
	wantFilename := "certificado-" + reloaded.UniqueCode + ".pdf"
	if f.mailer.filename != wantFilename {
		t.Errorf("Attachment filename = %q, want %q", f.mailer.filename, wantFilename)
	}
}

func TestProcessTemplateWithoutDesign(t *testing.T) {
	f := newFixture(t, 3)

	empty := model.CertificateTemplate{Name: "Empty"}
	if err := f.db.Create(&empty).Error; err != nil {
		t.Fatalf("Failed to seed empty template: %v", err)
	}
	certs, err := f.service.IssueBatch(f.activity.ID, empty.ID, []BatchRecipient{{UserID: f.recipient.ID}}, false)
	if err != nil {
		t.Fatalf("IssueBatch() failed: %v", err)
	}
	cert := &certs[0]

	if err := f.service.ClaimForRender(cert.ID); err != nil {
		t.Fatalf("Claim failed: %v", err)
	}
	if err := f.service.Process(context.Background(), cert); err == nil {
		t.Fatal("Expected Process() to fail")
	}

	var reloaded model.Certificate
	f.db.First(&reloaded, cert.ID)
	// A design will never appear by retrying, so this fails immediately
	if reloaded.Status != model.CertificateStatusFailed {
		t.Errorf("Status = %q, want failed", reloaded.Status)
	}
	if reloaded.LastError == nil || !strings.Contains(*reloaded.LastError, "no design") {
		t.Errorf("LastError = %v", reloaded.LastError)
	}
}

func TestProcessTransientFailureStaysPending(t *testing.T) {
	f := newFixture(t, 3)

	// Background recorded but never written to storage: read fails, retryable
	broken := model.CertificateTemplate{Name: "Broken", FilePath: "templates/gone.png"}
	if err := f.db.Create(&broken).Error; err != nil {
		t.Fatalf("Failed to seed template: %v", err)
	}
	certs, _ := f.service.IssueBatch(f.activity.ID, broken.ID, []BatchRecipient{{UserID: f.recipient.ID}}, false)
	cert := &certs[0]

	if err := f.service.ClaimForRender(cert.ID); err != nil {
		t.Fatalf("Claim failed: %v", err)
	}
	if err := f.service.Process(context.Background(), cert); err == nil {
		t.Fatal("Expected Process() to fail")
	}

	var reloaded model.Certificate
	f.db.First(&reloaded, cert.ID)
	if reloaded.Status != model.CertificateStatusPending {
		t.Errorf("Status = %q, want pending for retry", reloaded.Status)
	}
	if reloaded.RenderAttempts != 1 {
		t.Errorf("RenderAttempts = %d, want 1", reloaded.RenderAttempts)
	}
}

func TestProcessExhaustedAttemptsFail(t *testing.T) {
	f := newFixture(t, 1)

	broken := model.CertificateTemplate{Name: "Broken", FilePath: "templates/gone.png"}
	if err := f.db.Create(&broken).Error; err != nil {
		t.Fatalf("Failed to seed template: %v", err)
	}
	certs, _ := f.service.IssueBatch(f.activity.ID, broken.ID, []BatchRecipient{{UserID: f.recipient.ID}}, false)
	cert := &certs[0]

	if err := f.service.ClaimForRender(cert.ID); err != nil {
		t.Fatalf("Claim failed: %v", err)
	}
	f.service.Process(context.Background(), cert)

	var reloaded model.Certificate
	f.db.First(&reloaded, cert.ID)
	if reloaded.Status != model.CertificateStatusFailed {
		t.Errorf("Status = %q, want failed after last attempt", reloaded.Status)
	}
}

func TestTransition(t *testing.T) {
	f := newFixture(t, 3)
	cert := f.issueOne(t, false)

	if _, err := f.service.Transition(context.Background(), cert.ID, model.CertificateStatusRevoked); err == nil {
		t.Error("pending -> revoked must be rejected")
	}

	f.db.Model(&model.Certificate{}).Where("id = ?", cert.ID).Update("status", model.CertificateStatusIssued)

	updated, err := f.service.Transition(context.Background(), cert.ID, model.CertificateStatusRevoked)
	if err != nil {
		t.Fatalf("issued -> revoked failed: %v", err)
	}
	if updated.Status != model.CertificateStatusRevoked {
		t.Errorf("Status = %q", updated.Status)
	}
	if len(*f.events) == 0 || (*f.events)[len(*f.events)-1] != model.CertificateStatusRevoked {
		t.Errorf("Transition event not published: %v", *f.events)
	}
}

func TestRetryFailed(t *testing.T) {
	f := newFixture(t, 3)
	cert := f.issueOne(t, false)

	if err := f.service.RetryFailed(cert.ID); err == nil {
		t.Error("RetryFailed must reject non-failed certificates")
	}

	f.db.Model(&model.Certificate{}).Where("id = ?", cert.ID).Updates(map[string]interface{}{
		"status":          model.CertificateStatusFailed,
		"render_attempts": 3,
	})
	if err := f.service.RetryFailed(cert.ID); err != nil {
		t.Fatalf("RetryFailed() failed: %v", err)
	}

	var reloaded model.Certificate
	f.db.First(&reloaded, cert.ID)
	if reloaded.Status != model.CertificateStatusPending || reloaded.RenderAttempts != 0 {
		t.Errorf("After retry: status=%q attempts=%d", reloaded.Status, reloaded.RenderAttempts)
	}
}

func TestCertificatePDFRegenerates(t *testing.T) {
	f := newFixture(t, 3)
	cert := f.issueOne(t, false)

	// Issued in the database but with no document and no artifacts on disk,
	// as after a wiped storage volume
	f.db.Model(&model.Certificate{}).Where("id = ?", cert.ID).Update("status", model.CertificateStatusIssued)
	cert.Status = model.CertificateStatusIssued

	data, err := f.service.CertificatePDF(context.Background(), cert)
	if err != nil {
		t.Fatalf("CertificatePDF() failed: %v", err)
	}
	if !bytes.HasPrefix(data, []byte("%PDF-")) {
		t.Error("Regenerated document is not a PDF")
	}

	var doc model.CertificateDocument
	if err := f.db.Where("certificate_id = ?", cert.ID).First(&doc).Error; err != nil {
		t.Fatalf("Regeneration must persist a document row: %v", err)
	}

	// Second call serves the stored copy
	again, err := f.service.CertificatePDF(context.Background(), cert)
	if err != nil {
		t.Fatalf("Second CertificatePDF() failed: %v", err)
	}
	if !bytes.Equal(data, again) {
		t.Error("Expected the stored document to be served unchanged")
	}
}

func TestEnsureFinalImageRepairs(t *testing.T) {
	f := newFixture(t, 3)
	cert := f.issueOne(t, false)

	path, err := f.service.EnsureFinalImage(cert)
	if err != nil {
		t.Fatalf("EnsureFinalImage() failed: %v", err)
	}
	if !f.store.Exists(storage.Public, path) {
		t.Error("Repaired final image not on disk")
	}

	// Remove the file; the next call must recompose rather than 404
	if err := f.store.Delete(storage.Public, path); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	repaired, err := f.service.EnsureFinalImage(cert)
	if err != nil {
		t.Fatalf("Second EnsureFinalImage() failed: %v", err)
	}
	if !f.store.Exists(storage.Public, repaired) {
		t.Error("Recomposed final image not on disk")
	}
}

func TestVerifyURL(t *testing.T) {
	f := newFixture(t, 3)
	got := f.service.VerifyURL("CERT001-abcdef123456")
	want := "https://certs.example.com/verificar/CERT001-abcdef123456"
	if got != want {
		t.Errorf("VerifyURL = %q, want %q", got, want)
	}
}
