package model

import "testing"

func TestCanTransition(t *testing.T) {
	cases := []struct {
		from, to string
		want     bool
	}{
		{CertificateStatusPending, CertificateStatusIssued, true},
		{CertificateStatusPending, CertificateStatusFailed, true},
		{CertificateStatusPending, CertificateStatusRevoked, false},
		{CertificateStatusIssued, CertificateStatusRevoked, true},
		{CertificateStatusIssued, CertificateStatusExpired, true},
		{CertificateStatusIssued, CertificateStatusCancelled, true},
		{CertificateStatusIssued, CertificateStatusPending, false},
		{CertificateStatusActive, CertificateStatusRevoked, true},
		{CertificateStatusFailed, CertificateStatusIssued, false},
		{CertificateStatusRevoked, CertificateStatusIssued, false},
		{CertificateStatusCancelled, CertificateStatusPending, false},
	}

	for _, c := range cases {
		if got := CanTransition(c.from, c.to); got != c.want {
			t.Errorf("CanTransition(%s, %s) = %v, want %v", c.from, c.to, got, c.want)
		}
	}
}

func TestTemplateHasDesign(t *testing.T) {
	tpl := &CertificateTemplate{}
	if tpl.HasDesign() {
		t.Error("Template without background or remote design should not have a design")
	}

	tpl.FilePath = "templates/bg.png"
	if !tpl.HasDesign() {
		t.Error("Template with background should have a design")
	}

	tpl.FilePath = ""
	tpl.RemoteDesignID = "design-123"
	if !tpl.HasDesign() {
		t.Error("Template with remote design id should have a design")
	}
}

func TestTemplatePositionDecoding(t *testing.T) {
	tpl := &CertificateTemplate{
		NamePosition: []byte(`{"x":400,"y":300,"fontFamily":"Roboto","fontSize":42,"color":"#222222","rotation":0}`),
	}

	pos, err := tpl.NamePos()
	if err != nil {
		t.Fatalf("NamePos() failed: %v", err)
	}
	if pos == nil {
		t.Fatal("Expected name position, got nil")
	}
	if pos.X != 400 || pos.Y != 300 {
		t.Errorf("Expected anchor (400,300), got (%d,%d)", pos.X, pos.Y)
	}
	if pos.FontSize != 42 {
		t.Errorf("Expected font size 42, got %v", pos.FontSize)
	}

	// Cleared optional elements decode as nil
	qr, err := tpl.QRPos()
	if err != nil {
		t.Fatalf("QRPos() failed: %v", err)
	}
	if qr != nil {
		t.Error("Expected nil QR position for unset element")
	}

	tpl.DatePosition = []byte(`null`)
	date, err := tpl.DatePos()
	if err != nil {
		t.Fatalf("DatePos() failed: %v", err)
	}
	if date != nil {
		t.Error("Expected nil date position for JSON null")
	}
}
