package labreport

import (
	"time"

	"github.com/google/uuid"

	"github.com/labdesk/labdesk/internal/platform/jsondoc"
)

// Report sources.
const (
	SourceUpload = "upload"
	SourceRemote = "remote"
)

// Report statuses.
const (
	StatusProcessed = "processed"
	StatusFailed    = "failed"
)

// Report is one history entry: a fetched report document together with
// where it came from.
type Report struct {
	ID             uuid.UUID     `json:"id"`
	ReportNumber   int           `json:"report_number"`
	Source         string        `json:"source"`
	Status         string        `json:"status"`
	PatientName    string        `json:"patient_name,omitempty"`
	FileName       string        `json:"file_name,omitempty"`
	BlobID         string        `json:"blob_id,omitempty"`
	PageCount      int           `json:"page_count,omitempty"`
	ParameterCount int           `json:"parameter_count"`
	Error          string        `json:"error,omitempty"`
	Document       jsondoc.Value `json:"document"`
	CreatedBy      string        `json:"created_by,omitempty"`
	CreatedAt      time.Time     `json:"created_at"`
}

// Stats are the dashboard counters over the whole history.
type Stats struct {
	TotalReports       int `json:"total_reports"`
	ProcessedReports   int `json:"processed_reports"`
	ParametersAnalyzed int `json:"parameters_analyzed"`
}

// CountParameters returns the number of result rows in a report document.
func CountParameters(doc jsondoc.Value) int {
	results := doc.Field("test").Field("results")
	if !results.IsArray() {
		return 0
	}
	return results.Len()
}
