package model

// Document kinds
const (
	DocumentKindPDF       = "pdf"
	DocumentKindRemotePDF = "remote_pdf"
)

// CertificateDocument represents a stored derived file for a certificate,
// such as a PDF produced by the remote design provider.
type CertificateDocument struct {
	BaseModel
	CertificateID int    `gorm:"not null;index" json:"certificateId"`
	Kind          string `gorm:"type:varchar(32);not null" json:"kind"`
	FilePath      string `gorm:"column:file_path;type:varchar(512);not null" json:"filePath"`
	SizeBytes     int64  `gorm:"column:size_bytes;not null;default:0" json:"sizeBytes"`
}

// TableName specifies the table name for CertificateDocument
func (CertificateDocument) TableName() string {
	return "certificate_documents"
}
