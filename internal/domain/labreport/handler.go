package labreport

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/spaolacci/murmur3"

	"github.com/labdesk/labdesk/internal/platform/auth"
	"github.com/labdesk/labdesk/internal/platform/blobstore"
	"github.com/labdesk/labdesk/internal/platform/labsource"
	"github.com/labdesk/labdesk/internal/platform/tableview"
	"github.com/labdesk/labdesk/pkg/pagination"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	g := api.Group("/lab-reports")

	g.GET("", h.ListReports)
	g.GET("/stats", h.GetStats)
	g.GET("/:id", h.GetReport)
	g.GET("/:id/render", h.RenderReport)
	g.GET("/:id/file", h.DownloadFile)
	g.POST("/render", h.RenderDocument)

	write := g.Group("", auth.RequireRole(auth.RoleTechnician))
	write.POST("/upload", h.Upload)
	write.POST("/remote/:number", h.FetchRemote)
}

// RenderDocument renders the posted report JSON without recording it.
func (h *Handler) RenderDocument(c echo.Context) error {
	format, err := tableview.ParseFormat(c.QueryParam("format"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	raw, err := io.ReadAll(c.Request().Body)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "read body: "+err.Error())
	}
	t, err := h.svc.RenderDocument(raw, c.QueryParam("title"))
	if err != nil {
		return httpError(err)
	}
	return h.writeTable(c, t, format)
}

func (h *Handler) Upload(c echo.Context) error {
	in := UploadInput{
		PatientName: c.FormValue("patient_name"),
		CreatedBy:   auth.UserIDFromContext(c.Request().Context()),
	}
	fh, err := c.FormFile("file")
	if err != nil && !errors.Is(err, http.ErrMissingFile) {
		return echo.NewHTTPError(http.StatusBadRequest, "read upload: "+err.Error())
	}
	if fh != nil {
		f, err := fh.Open()
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "open upload: "+err.Error())
		}
		defer f.Close()
		in.FileName = fh.Filename
		in.Content = f
	}

	res, err := h.svc.ProcessUpload(c.Request().Context(), in)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusCreated, res)
}

func (h *Handler) FetchRemote(c echo.Context) error {
	number, err := strconv.Atoi(c.Param("number"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid report number")
	}
	res, err := h.svc.FetchRemote(c.Request().Context(), number, auth.UserIDFromContext(c.Request().Context()))
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusCreated, res)
}

func (h *Handler) ListReports(c echo.Context) error {
	pg := pagination.FromContext(c)
	items, total, err := h.svc.ListEntries(c.Request().Context(), pg.Limit, pg.Offset)
	if err != nil {
		return httpError(err)
	}
	if items == nil {
		items = []*Report{}
	}
	resp := pagination.NewResponse(items, total, pg.Limit, pg.Offset)
	resp.Links = pg.Links(c.Request().URL.Path, total)
	return c.JSON(http.StatusOK, resp)
}

func (h *Handler) GetStats(c echo.Context) error {
	stats, err := h.svc.Stats(c.Request().Context())
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, stats)
}

func (h *Handler) GetReport(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	rep, err := h.svc.GetEntry(c.Request().Context(), id)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, rep)
}

func (h *Handler) RenderReport(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	format, err := tableview.ParseFormat(c.QueryParam("format"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	t, err := h.svc.RenderEntry(c.Request().Context(), id, c.QueryParam("title"))
	if err != nil {
		return httpError(err)
	}
	return h.writeTable(c, t, format)
}

func (h *Handler) DownloadFile(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	rc, meta, err := h.svc.OpenFile(c.Request().Context(), id)
	if err != nil {
		return httpError(err)
	}
	defer rc.Close()

	c.Response().Header().Set(echo.HeaderContentDisposition, fmt.Sprintf("attachment; filename=%q", meta.FileName))
	return c.Stream(http.StatusOK, meta.ContentType, rc)
}

// writeTable encodes t in the requested format and serves it with an ETag
// derived from the encoded bytes.
func (h *Handler) writeTable(c echo.Context, t *tableview.Table, format tableview.Format) error {
	var buf bytes.Buffer
	if err := tableview.Write(&buf, t, format); err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "render: "+err.Error())
	}

	etag := contentETag(buf.Bytes())
	c.Response().Header().Set("ETag", etag)
	if etagMatches(c.Request().Header.Get("If-None-Match"), etag) {
		return c.NoContent(http.StatusNotModified)
	}
	h.svc.metrics.ObserveRender(string(format))
	return c.Blob(http.StatusOK, format.ContentType(), buf.Bytes())
}

func contentETag(b []byte) string {
	h1, h2 := murmur3.Sum128(b)
	return fmt.Sprintf(`"%016x%016x"`, h1, h2)
}

func etagMatches(header, etag string) bool {
	for _, candidate := range strings.Split(header, ",") {
		candidate = strings.TrimPrefix(strings.TrimSpace(candidate), "W/")
		if candidate == "*" || candidate == etag {
			return true
		}
	}
	return false
}

// httpError maps service errors to HTTP status codes.
func httpError(err error) error {
	var ve *ValidationError
	switch {
	case errors.As(err, &ve):
		return echo.NewHTTPError(http.StatusBadRequest, ve.Message)
	case errors.Is(err, ErrInvalidDocument):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	case errors.Is(err, ErrNotFound), errors.Is(err, ErrNoFile), errors.Is(err, blobstore.ErrBlobNotFound):
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	case errors.Is(err, labsource.ErrFetchInProgress):
		return echo.NewHTTPError(http.StatusConflict, err.Error())
	case errors.Is(err, blobstore.ErrFileTooLarge):
		return echo.NewHTTPError(http.StatusRequestEntityTooLarge, err.Error())
	case errors.Is(err, ErrInvalidPDF):
		return echo.NewHTTPError(http.StatusUnsupportedMediaType, err.Error())
	case errors.Is(err, labsource.ErrUnknownFile):
		return echo.NewHTTPError(http.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, ErrFetchFailed):
		return echo.NewHTTPError(http.StatusBadGateway, err.Error())
	default:
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
}
