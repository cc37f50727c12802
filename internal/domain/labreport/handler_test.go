package labreport

import (
	"bytes"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/labdesk/labdesk/internal/platform/auth"
	"github.com/labdesk/labdesk/internal/platform/labsource"
)

func newTestHandler(t *testing.T) (*Handler, *echo.Echo, *serviceFixture) {
	f := newServiceFixture(t)
	return NewHandler(f.svc), echo.New(), f
}

func expectHTTPError(t *testing.T, err error, code int) {
	t.Helper()
	if err == nil {
		t.Fatalf("expected HTTP %d error, got nil", code)
	}
	httpErr, ok := err.(*echo.HTTPError)
	if !ok {
		t.Fatalf("expected echo.HTTPError, got %T: %v", err, err)
	}
	if httpErr.Code != code {
		t.Errorf("expected %d, got %d (%v)", code, httpErr.Code, httpErr.Message)
	}
}

func multipartUpload(t *testing.T, patientName, fileName string, content []byte) *http.Request {
	t.Helper()
	var body bytes.Buffer
	w := multipart.NewWriter(&body)
	if patientName != "" {
		if err := w.WriteField("patient_name", patientName); err != nil {
			t.Fatalf("write field: %v", err)
		}
	}
	if fileName != "" {
		part, err := w.CreateFormFile("file", fileName)
		if err != nil {
			t.Fatalf("create form file: %v", err)
		}
		part.Write(content)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("close multipart writer: %v", err)
	}
	req := httptest.NewRequest(http.MethodPost, "/", &body)
	req.Header.Set(echo.HeaderContentType, w.FormDataContentType())
	return req
}

func TestHandler_RenderDocument_Formats(t *testing.T) {
	h, e, _ := newTestHandler(t)
	body := `{"patient": {"city": "X", "name": "Y"}, "test": {"name": "CBC", "results": []}}`

	tests := []struct {
		format      string
		contentType string
		contains    string
	}{
		{"", "application/json", `"title": "Lab Report"`},
		{"json", "application/json", `"No results available"`},
		{"html", "text/html", "<h2"},
		{"text", "text/plain", "Lab Report"},
		{"pdf", "application/pdf", "%PDF-"},
	}
	for _, tt := range tests {
		t.Run("format="+tt.format, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/?title=Lab+Report&format="+tt.format, strings.NewReader(body))
			rec := httptest.NewRecorder()
			c := e.NewContext(req, rec)

			if err := h.RenderDocument(c); err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if rec.Code != http.StatusOK {
				t.Errorf("expected 200, got %d", rec.Code)
			}
			if ct := rec.Header().Get(echo.HeaderContentType); !strings.HasPrefix(ct, tt.contentType) {
				t.Errorf("expected content type %s, got %s", tt.contentType, ct)
			}
			if !strings.Contains(rec.Body.String(), tt.contains) {
				t.Errorf("expected body to contain %q", tt.contains)
			}
			if rec.Header().Get("ETag") == "" {
				t.Error("expected ETag header")
			}
		})
	}
}

func TestHandler_RenderDocument_ETag(t *testing.T) {
	h, e, _ := newTestHandler(t)
	body := `{"patient": {"name": "Y"}}`

	req := httptest.NewRequest(http.MethodPost, "/?format=html", strings.NewReader(body))
	rec := httptest.NewRecorder()
	if err := h.RenderDocument(e.NewContext(req, rec)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	etag := rec.Header().Get("ETag")

	req = httptest.NewRequest(http.MethodPost, "/?format=html", strings.NewReader(body))
	req.Header.Set("If-None-Match", `"other", `+etag)
	rec = httptest.NewRecorder()
	if err := h.RenderDocument(e.NewContext(req, rec)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusNotModified {
		t.Errorf("expected 304, got %d", rec.Code)
	}
	if rec.Body.Len() != 0 {
		t.Error("expected empty body on 304")
	}

	req = httptest.NewRequest(http.MethodPost, "/?format=text", strings.NewReader(body))
	req.Header.Set("If-None-Match", etag)
	rec = httptest.NewRecorder()
	if err := h.RenderDocument(e.NewContext(req, rec)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Errorf("a different format must not match, got %d", rec.Code)
	}
}

func TestHandler_RenderDocument_BadRequest(t *testing.T) {
	h, e, _ := newTestHandler(t)

	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"patient":`))
	expectHTTPError(t, h.RenderDocument(e.NewContext(req, httptest.NewRecorder())), http.StatusBadRequest)

	req = httptest.NewRequest(http.MethodPost, "/?format=xml", strings.NewReader(`{}`))
	expectHTTPError(t, h.RenderDocument(e.NewContext(req, httptest.NewRecorder())), http.StatusBadRequest)
}

func TestHandler_Upload(t *testing.T) {
	h, e, _ := newTestHandler(t)
	req := multipartUpload(t, "Asha Rao", "medical1.pdf", samplePDF(t))
	req = req.WithContext(auth.WithIdentity(req.Context(), "tech-9", []string{auth.RoleTechnician}))
	rec := httptest.NewRecorder()

	if err := h.Upload(e.NewContext(req, rec)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d", rec.Code)
	}

	var res struct {
		Report Report `json:"report"`
		Table  struct {
			Title    string `json:"title"`
			Sections []struct {
				Title string `json:"title"`
			} `json:"sections"`
		} `json:"table"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &res); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if res.Report.Status != StatusProcessed {
		t.Errorf("expected processed, got %s", res.Report.Status)
	}
	if res.Report.CreatedBy != "tech-9" {
		t.Errorf("expected created_by tech-9, got %q", res.Report.CreatedBy)
	}
	if len(res.Table.Sections) != 2 || res.Table.Sections[1].Title != "CBC" {
		t.Errorf("unexpected sections %+v", res.Table.Sections)
	}
	if keys := res.Report.Document.Fields().Keys(); len(keys) != 2 || keys[0] != "patient" {
		t.Errorf("expected document keys in original order, got %v", keys)
	}
}

func TestHandler_Upload_Errors(t *testing.T) {
	tests := []struct {
		name     string
		patient  string
		fileName string
		content  []byte
		setup    func(*serviceFixture)
		code     int
	}{
		{"missing patient", "", "medical1.pdf", nil, nil, http.StatusBadRequest},
		{"missing file", "Asha", "", nil, nil, http.StatusBadRequest},
		{"wrong extension", "Asha", "medical1.txt", []byte("x"), nil, http.StatusBadRequest},
		{"not a pdf", "Asha", "medical1.pdf", []byte("plain text"), nil, http.StatusUnsupportedMediaType},
		{"unknown file", "Asha", "scan.pdf", nil, nil, http.StatusUnprocessableEntity},
		{"fetch busy", "Asha", "medical1.pdf", nil, func(f *serviceFixture) { f.source.err = labsource.ErrFetchInProgress }, http.StatusConflict},
		{"upstream down", "Asha", "medical1.pdf", nil, func(f *serviceFixture) { f.source.err = labsource.ErrUpstream }, http.StatusBadGateway},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h, e, f := newTestHandler(t)
			if tt.setup != nil {
				tt.setup(f)
			}
			content := tt.content
			if content == nil {
				content = samplePDF(t)
			}
			req := multipartUpload(t, tt.patient, tt.fileName, content)
			expectHTTPError(t, h.Upload(e.NewContext(req, httptest.NewRecorder())), tt.code)
		})
	}
}

func TestHandler_FetchRemote(t *testing.T) {
	h, e, _ := newTestHandler(t)

	req := httptest.NewRequest(http.MethodPost, "/", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.SetParamNames("number")
	c.SetParamValues("2")
	if err := h.FetchRemote(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusCreated {
		t.Errorf("expected 201, got %d", rec.Code)
	}

	c = e.NewContext(httptest.NewRequest(http.MethodPost, "/", nil), httptest.NewRecorder())
	c.SetParamNames("number")
	c.SetParamValues("two")
	expectHTTPError(t, h.FetchRemote(c), http.StatusBadRequest)
}

func TestHandler_ListAndStats(t *testing.T) {
	h, e, f := newTestHandler(t)
	for _, n := range []int{1, 2, 3} {
		if _, err := f.svc.FetchRemote(t.Context(), n, ""); err != nil {
			t.Fatalf("seed: %v", err)
		}
	}

	rec := httptest.NewRecorder()
	if err := h.ListReports(e.NewContext(httptest.NewRequest(http.MethodGet, "/?limit=2", nil), rec)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var page struct {
		Data    []Report `json:"data"`
		Total   int      `json:"total"`
		HasMore bool     `json:"has_more"`
		Links   struct {
			Next string `json:"next"`
		} `json:"links"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &page); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if page.Total != 3 || len(page.Data) != 2 || !page.HasMore {
		t.Errorf("unexpected page: total=%d len=%d has_more=%v", page.Total, len(page.Data), page.HasMore)
	}
	if page.Links.Next != "/?limit=2&offset=2" {
		t.Errorf("unexpected next link %q", page.Links.Next)
	}

	rec = httptest.NewRecorder()
	if err := h.GetStats(e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), rec)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var stats Stats
	if err := json.Unmarshal(rec.Body.Bytes(), &stats); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if stats != (Stats{TotalReports: 3, ProcessedReports: 3, ParametersAnalyzed: 3}) {
		t.Errorf("unexpected stats %+v", stats)
	}
}

func TestHandler_ListReports_Empty(t *testing.T) {
	h, e, _ := newTestHandler(t)
	rec := httptest.NewRecorder()
	if err := h.ListReports(e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), rec)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(rec.Body.String(), `"data":[]`) {
		t.Errorf("expected empty data array, got %s", rec.Body.String())
	}
}

func TestHandler_GetAndRenderReport(t *testing.T) {
	h, e, f := newTestHandler(t)
	res, err := f.svc.FetchRemote(t.Context(), 1, "")
	if err != nil {
		t.Fatalf("seed: %v", err)
	}

	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), httptest.NewRecorder())
	c.SetParamNames("id")
	c.SetParamValues(res.Report.ID.String())
	if err := h.GetReport(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	rec := httptest.NewRecorder()
	c = e.NewContext(httptest.NewRequest(http.MethodGet, "/?format=html&title=Blood+Work", nil), rec)
	c.SetParamNames("id")
	c.SetParamValues(res.Report.ID.String())
	if err := h.RenderReport(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(rec.Body.String(), "Blood Work") || !strings.Contains(rec.Body.String(), "13 g/dl (Normal)") {
		t.Errorf("unexpected html: %s", rec.Body.String())
	}
}

func TestHandler_GetReport_Errors(t *testing.T) {
	h, e, _ := newTestHandler(t)

	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), httptest.NewRecorder())
	c.SetParamNames("id")
	c.SetParamValues("not-a-uuid")
	expectHTTPError(t, h.GetReport(c), http.StatusBadRequest)

	c = e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), httptest.NewRecorder())
	c.SetParamNames("id")
	c.SetParamValues(uuid.New().String())
	expectHTTPError(t, h.GetReport(c), http.StatusNotFound)

	c = e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), httptest.NewRecorder())
	c.SetParamNames("id")
	c.SetParamValues(uuid.New().String())
	expectHTTPError(t, h.RenderReport(c), http.StatusNotFound)
}

func TestHandler_DownloadFile(t *testing.T) {
	h, e, f := newTestHandler(t)
	pdf := samplePDF(t)
	in := uploadInput(t, "medical2.pdf")
	in.Content = bytes.NewReader(pdf)
	res, err := f.svc.ProcessUpload(t.Context(), in)
	if err != nil {
		t.Fatalf("seed: %v", err)
	}

	rec := httptest.NewRecorder()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), rec)
	c.SetParamNames("id")
	c.SetParamValues(res.Report.ID.String())
	if err := h.DownloadFile(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !bytes.Equal(rec.Body.Bytes(), pdf) {
		t.Error("downloaded bytes differ from upload")
	}
	if cd := rec.Header().Get(echo.HeaderContentDisposition); cd != `attachment; filename="medical2.pdf"` {
		t.Errorf("unexpected content disposition %q", cd)
	}

	remote, err := f.svc.FetchRemote(t.Context(), 3, "")
	if err != nil {
		t.Fatalf("seed: %v", err)
	}
	c = e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), httptest.NewRecorder())
	c.SetParamNames("id")
	c.SetParamValues(remote.Report.ID.String())
	expectHTTPError(t, h.DownloadFile(c), http.StatusNotFound)
}

func TestHandler_RegisterRoutes_RequiresRole(t *testing.T) {
	h, e, _ := newTestHandler(t)
	viewer := func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			ctx := auth.WithIdentity(c.Request().Context(), "v", []string{auth.RoleViewer})
			c.SetRequest(c.Request().WithContext(ctx))
			return next(c)
		}
	}
	h.RegisterRoutes(e.Group("/api/v1", viewer))

	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/lab-reports/remote/1", nil))
	if rec.Code != http.StatusForbidden {
		t.Errorf("expected 403 for viewer, got %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/lab-reports/stats", nil))
	if rec.Code != http.StatusOK {
		t.Errorf("expected 200 for read route, got %d", rec.Code)
	}
}
