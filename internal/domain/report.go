package domain

import "time"

type ReportType string

const (
	ReportExecutive  ReportType = "executive"
	ReportTechnical  ReportType = "technical"
	ReportCompliance ReportType = "compliance"
)

func (t ReportType) IsValid() bool {
	return t == ReportExecutive || t == ReportTechnical || t == ReportCompliance
}

// Report is a rendered PDF for one completed scan. Content is served
// separately and never embedded in listings.
type Report struct {
	ID          string     `json:"id"`
	ScanID      string     `json:"scanId"`
	Name        string     `json:"name"`
	Type        ReportType `json:"type"`
	GeneratedAt time.Time  `json:"generatedAt"`
	SizeBytes   int64      `json:"sizeBytes"`
	Size        string     `json:"size"`
	Status      string     `json:"status"`
	Content     []byte     `json:"-"`
}
