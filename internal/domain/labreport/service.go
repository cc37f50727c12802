package labreport

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/labdesk/labdesk/internal/platform/blobstore"
	"github.com/labdesk/labdesk/internal/platform/jsondoc"
	"github.com/labdesk/labdesk/internal/platform/labsource"
	"github.com/labdesk/labdesk/internal/platform/livefeed"
	"github.com/labdesk/labdesk/internal/platform/metrics"
	"github.com/labdesk/labdesk/internal/platform/tableview"
)

var (
	// ErrInvalidDocument is returned when posted report JSON does not parse.
	ErrInvalidDocument = errors.New("report document is not valid JSON")
	// ErrFetchFailed wraps any failure of the report source other than a
	// dropped concurrent call.
	ErrFetchFailed = errors.New("report fetch failed")
	// ErrNoFile is returned for history entries without a stored upload.
	ErrNoFile = errors.New("lab report has no stored file")
)

// ValidationError reports bad caller input.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string { return e.Message }

// ReportSource fetches report documents by number.
type ReportSource interface {
	Fetch(ctx context.Context, number int) (jsondoc.Value, error)
}

// FileResolver maps an uploaded file name to a report number.
type FileResolver interface {
	Resolve(fileName string) (int, error)
}

// UploadInput is one report upload.
type UploadInput struct {
	PatientName string    `form:"patient_name" validate:"required"`
	FileName    string    `form:"file" validate:"required,pdfname"`
	Content     io.Reader `form:"-"`
	CreatedBy   string    `form:"-"`
}

// Result is a recorded history entry and its rendered table.
type Result struct {
	Report *Report          `json:"report"`
	Table  *tableview.Table `json:"table"`
}

// ServiceOption configures a Service.
type ServiceOption func(*Service)

// WithMetrics records fetch and upload outcomes.
func WithMetrics(m *metrics.Metrics) ServiceOption {
	return func(s *Service) { s.metrics = m }
}

// WithEvents publishes an event for every recorded history entry.
func WithEvents(pub livefeed.Publisher) ServiceOption {
	return func(s *Service) { s.events = pub }
}

// WithPDFValidation toggles the structural PDF check on uploads.
func WithPDFValidation(enabled bool) ServiceOption {
	return func(s *Service) { s.validatePDF = enabled }
}

type Service struct {
	repo        ReportRepository
	renderer    *Renderer
	source      ReportSource
	resolver    FileResolver
	blobs       blobstore.BlobStore
	metrics     *metrics.Metrics
	events      livefeed.Publisher
	validatePDF bool
}

func NewService(repo ReportRepository, renderer *Renderer, source ReportSource, resolver FileResolver, blobs blobstore.BlobStore, opts ...ServiceOption) *Service {
	s := &Service{
		repo:        repo,
		renderer:    renderer,
		source:      source,
		resolver:    resolver,
		blobs:       blobs,
		validatePDF: true,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Renderer returns the renderer used for every table the service builds.
func (s *Service) Renderer() *Renderer { return s.renderer }

// RenderDocument parses raw report JSON, keeping key order, and renders it.
// Only a JSON syntax error fails; any shape of valid JSON renders.
func (s *Service) RenderDocument(raw []byte, title string) (*tableview.Table, error) {
	doc, err := jsondoc.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidDocument, err)
	}
	return s.renderer.Render(doc, title), nil
}

// ProcessUpload validates an uploaded PDF, stores it, fetches the report the
// file name maps to, records the outcome in history and renders it.
//
// A failed fetch is still recorded, as a failed entry, and the wrapped
// ErrFetchFailed is returned along with it. A fetch dropped because another
// one is in flight records nothing.
func (s *Service) ProcessUpload(ctx context.Context, in UploadInput) (*Result, error) {
	in.PatientName = strings.TrimSpace(in.PatientName)
	if err := validate.Struct(in); err != nil {
		return nil, &ValidationError{Message: validationMessage(err)}
	}
	if in.Content == nil {
		return nil, &ValidationError{Message: "file is required"}
	}

	data, err := io.ReadAll(io.LimitReader(in.Content, blobstore.MaxFileSize+1))
	if err != nil {
		return nil, fmt.Errorf("read upload: %w", err)
	}
	if int64(len(data)) > blobstore.MaxFileSize {
		return nil, blobstore.ErrFileTooLarge
	}

	pages := 0
	if s.validatePDF {
		if pages, err = pdfPageCount(data); err != nil {
			return nil, err
		}
	}

	number, err := s.resolver.Resolve(in.FileName)
	if err != nil {
		return nil, err
	}

	doc, fetchErr := s.fetch(ctx, number)
	if errors.Is(fetchErr, labsource.ErrFetchInProgress) {
		return nil, fetchErr
	}

	meta, err := s.blobs.Upload(ctx, blobstore.BlobMetadata{
		FileName:    in.FileName,
		ContentType: "application/pdf",
		CreatedBy:   in.CreatedBy,
	}, bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("store upload: %w", err)
	}

	rep := &Report{
		ReportNumber: number,
		Source:       SourceUpload,
		PatientName:  in.PatientName,
		FileName:     in.FileName,
		BlobID:       meta.ID,
		PageCount:    pages,
		CreatedBy:    in.CreatedBy,
	}
	res, err := s.record(ctx, rep, doc, fetchErr)
	s.metrics.ObserveUpload(rep.Status)
	return res, err
}

// FetchRemote fetches report number directly, records and renders it.
func (s *Service) FetchRemote(ctx context.Context, number int, createdBy string) (*Result, error) {
	if number <= 0 {
		return nil, &ValidationError{Message: "report number must be a positive integer"}
	}
	doc, fetchErr := s.fetch(ctx, number)
	if errors.Is(fetchErr, labsource.ErrFetchInProgress) {
		return nil, fetchErr
	}
	return s.record(ctx, &Report{
		ReportNumber: number,
		Source:       SourceRemote,
		CreatedBy:    createdBy,
	}, doc, fetchErr)
}

func (s *Service) fetch(ctx context.Context, number int) (jsondoc.Value, error) {
	start := time.Now()
	doc, err := s.source.Fetch(ctx, number)
	switch {
	case err == nil:
		s.metrics.ObserveFetch(metrics.FetchOK, time.Since(start))
	case errors.Is(err, labsource.ErrFetchInProgress):
		s.metrics.ObserveFetch(metrics.FetchDropped, 0)
		zerolog.Ctx(ctx).Warn().Int("report_number", number).Msg("report fetch dropped, another fetch is in flight")
	default:
		s.metrics.ObserveFetch(metrics.FetchError, time.Since(start))
		zerolog.Ctx(ctx).Error().Err(err).Int("report_number", number).Msg("report fetch failed")
	}
	return doc, err
}

func (s *Service) record(ctx context.Context, rep *Report, doc jsondoc.Value, fetchErr error) (*Result, error) {
	if fetchErr != nil {
		rep.Status = StatusFailed
		rep.Error = fetchErr.Error()
	} else {
		rep.Status = StatusProcessed
		rep.Document = doc
		rep.ParameterCount = CountParameters(doc)
	}
	if err := s.repo.Create(ctx, rep); err != nil {
		return nil, fmt.Errorf("record lab report: %w", err)
	}
	s.announce(ctx, rep)
	if fetchErr != nil {
		return &Result{Report: rep}, fmt.Errorf("%w: %w", ErrFetchFailed, fetchErr)
	}
	return &Result{Report: rep, Table: s.renderer.Render(doc, "")}, nil
}

// reportEvent is the feed payload: the history entry without its document.
type reportEvent struct {
	ReportNumber   int       `json:"report_number"`
	Source         string    `json:"source"`
	Status         string    `json:"status"`
	PatientName    string    `json:"patient_name,omitempty"`
	FileName       string    `json:"file_name,omitempty"`
	ParameterCount int       `json:"parameter_count"`
	CreatedAt      time.Time `json:"created_at"`
}

// announce is best effort; a feed failure never fails the request.
func (s *Service) announce(ctx context.Context, rep *Report) {
	if s.events == nil {
		return
	}
	data, err := json.Marshal(reportEvent{
		ReportNumber:   rep.ReportNumber,
		Source:         rep.Source,
		Status:         rep.Status,
		PatientName:    rep.PatientName,
		FileName:       rep.FileName,
		ParameterCount: rep.ParameterCount,
		CreatedAt:      rep.CreatedAt,
	})
	if err == nil {
		err = s.events.Publish(ctx, livefeed.Event{
			Type:     livefeed.EventReportRecorded,
			Topic:    livefeed.TopicReports,
			ReportID: rep.ID.String(),
			Data:     data,
		})
	}
	if err != nil {
		zerolog.Ctx(ctx).Warn().Err(err).Str("report_id", rep.ID.String()).Msg("publish report event")
	}
}

func (s *Service) GetEntry(ctx context.Context, id uuid.UUID) (*Report, error) {
	return s.repo.GetByID(ctx, id)
}

func (s *Service) ListEntries(ctx context.Context, limit, offset int) ([]*Report, int, error) {
	return s.repo.List(ctx, limit, offset)
}

// RenderEntry renders a stored report. Failed entries have no document and
// render as a table without sections.
func (s *Service) RenderEntry(ctx context.Context, id uuid.UUID, title string) (*tableview.Table, error) {
	rep, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	return s.renderer.Render(rep.Document, title), nil
}

// OpenFile returns the stored upload of a history entry. The caller closes
// the reader.
func (s *Service) OpenFile(ctx context.Context, id uuid.UUID) (io.ReadCloser, *blobstore.BlobMetadata, error) {
	rep, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	if rep.BlobID == "" {
		return nil, nil, ErrNoFile
	}
	return s.blobs.Download(ctx, rep.BlobID)
}

func (s *Service) Stats(ctx context.Context) (*Stats, error) {
	return s.repo.Stats(ctx)
}
