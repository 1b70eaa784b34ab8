package model

import (
	"encoding/json"
	"fmt"

	"gorm.io/datatypes"
)

// ElementPosition describes where and how an overlay element is drawn on the
// template background. Coordinates are always canonical absolute pixels on
// the authored canvas; center-relative input is resolved at write time.
type ElementPosition struct {
	X          int     `json:"x"`
	Y          int     `json:"y"`
	FontFamily string  `json:"fontFamily,omitempty"`
	FontSize   float64 `json:"fontSize,omitempty"`
	FontWeight string  `json:"fontWeight,omitempty"`
	Color      string  `json:"color,omitempty"`
	Rotation   float64 `json:"rotation,omitempty"`
	Width      int     `json:"width,omitempty"`
	Height     int     `json:"height,omitempty"`
}

// TemplateStyles holds global template metadata, including the canvas size
// the element positions were authored against.
type TemplateStyles struct {
	EditorCanvasWidth  int      `json:"editorCanvasWidth"`
	EditorCanvasHeight int      `json:"editorCanvasHeight"`
	BackgroundOffsetX  int      `json:"backgroundOffsetX,omitempty"`
	BackgroundOffsetY  int      `json:"backgroundOffsetY,omitempty"`
	Components         []string `json:"components,omitempty"`
}

// CertificateTemplate represents a reusable certificate design
type CertificateTemplate struct {
	BaseModel
	Name           string         `gorm:"type:varchar(255);not null" json:"name"`
	FilePath       string         `gorm:"type:varchar(512)" json:"filePath"` // background image, private storage
	RemoteDesignID string         `gorm:"column:remote_design_id;type:varchar(128)" json:"remoteDesignId"`
	NamePosition   datatypes.JSON `gorm:"column:name_position;type:json" json:"namePosition"`
	DatePosition   datatypes.JSON `gorm:"column:date_position;type:json" json:"datePosition"`
	QRPosition     datatypes.JSON `gorm:"column:qr_position;type:json" json:"qrPosition"`
	TemplateStyles datatypes.JSON `gorm:"column:template_styles;type:json" json:"templateStyles"`
}

// TableName specifies the table name for CertificateTemplate
func (CertificateTemplate) TableName() string {
	return "certificate_templates"
}

// HasDesign reports whether the template can be rendered at all, either
// locally (background image) or through the remote design provider.
func (t *CertificateTemplate) HasDesign() bool {
	return t.FilePath != "" || t.RemoteDesignID != ""
}

func decodePosition(raw datatypes.JSON) (*ElementPosition, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return nil, nil
	}
	var pos ElementPosition
	if err := json.Unmarshal(raw, &pos); err != nil {
		return nil, fmt.Errorf("failed to decode element position: %w", err)
	}
	return &pos, nil
}

// NamePos decodes the mandatory name element position. Nil means the
// template was saved without one, which is a configuration error.
func (t *CertificateTemplate) NamePos() (*ElementPosition, error) {
	return decodePosition(t.NamePosition)
}

// DatePos decodes the optional date element position
func (t *CertificateTemplate) DatePos() (*ElementPosition, error) {
	return decodePosition(t.DatePosition)
}

// QRPos decodes the optional QR element position
func (t *CertificateTemplate) QRPos() (*ElementPosition, error) {
	return decodePosition(t.QRPosition)
}

// Styles decodes template_styles, returning zero-value styles when unset
func (t *CertificateTemplate) Styles() (TemplateStyles, error) {
	var styles TemplateStyles
	if len(t.TemplateStyles) == 0 || string(t.TemplateStyles) == "null" {
		return styles, nil
	}
	if err := json.Unmarshal(t.TemplateStyles, &styles); err != nil {
		return styles, fmt.Errorf("failed to decode template styles: %w", err)
	}
	return styles, nil
}
