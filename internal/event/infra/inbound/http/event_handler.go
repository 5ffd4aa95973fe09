// en internal/event/infra/inbound/http/event_handler.go
package http

import (
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/davicafu/doorbell/internal/event/application"
	"github.com/davicafu/doorbell/internal/event/domain"
	"github.com/davicafu/doorbell/pkg/utils"
	sharedQuery "github.com/davicafu/doorbell/shared/platform/query"
)

// margen para la sobrecarga de base64 y de las cabeceras multipart
const bodyOverhead = 64 << 10

// EventHandler encapsula los endpoints HTTP de ingesta y consulta.
type EventHandler struct {
	ingest *application.IngestService
	query  *application.QueryService
	log    *zap.Logger
}

// NewEventHandler crea un nuevo EventHandler.
func NewEventHandler(ingest *application.IngestService, query *application.QueryService, log *zap.Logger) *EventHandler {
	return &EventHandler{ingest: ingest, query: query, log: log}
}

type createEventRequest struct {
	Kind        string `json:"kind"`
	SourceLabel string `json:"sourceLabel"`
	ContentType string `json:"contentType"`
	Filename    string `json:"filename"`
	Data        []byte `json:"data"` // base64 en el JSON
}

func (r createEventRequest) toDraft() domain.Draft {
	d := domain.Draft{Kind: domain.Kind(r.Kind), SourceLabel: r.SourceLabel}
	if d.Kind == domain.KindImage || len(r.Data) > 0 || r.ContentType != "" {
		d.Payload = &domain.Payload{
			ContentType: r.ContentType,
			Filename:    r.Filename,
			Data:        r.Data,
		}
	}
	return d
}

// --- Handlers ---

// CreateEvent endpoint POST /events (JSON con base64 o multipart/form-data)
func (h *EventHandler) CreateEvent(c *gin.Context) {
	limit := h.ingest.MaxPayloadBytes()
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, limit+limit/3+bodyOverhead)

	req, err := decodeCreateRequest(c)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			utils.SendBadRequest(c, fmt.Sprintf("request body exceeds %d bytes", tooLarge.Limit))
			return
		}
		utils.SendBadRequest(c, err.Error())
		return
	}

	evt, err := h.ingest.Ingest(c.Request.Context(), req.toDraft())
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, evt.Meta())
}

// ListEvents endpoint GET /events?limit=&before=&kind=
func (h *EventHandler) ListEvents(c *gin.Context) {
	page, err := parsePage(c)
	if err != nil {
		utils.SendBadRequest(c, err.Error())
		return
	}

	listing, err := h.query.ListRecent(c.Request.Context(), page)
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, listing)
}

// GetEvent endpoint GET /events/:id. Devuelve JSON salvo que Accept pida la imagen.
func (h *EventHandler) GetEvent(c *gin.Context) {
	evt, err := h.query.GetFull(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.respondError(c, err)
		return
	}

	if wantsRaw(c.GetHeader("Accept")) && hasData(evt) {
		c.Data(http.StatusOK, evt.Payload.ContentType, evt.Payload.Data)
		return
	}
	c.JSON(http.StatusOK, evt)
}

// GetEventPayload endpoint GET /events/:id/payload, siempre bytes crudos.
func (h *EventHandler) GetEventPayload(c *gin.Context) {
	evt, err := h.query.GetFull(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	if !hasData(evt) {
		utils.SendNotFound(c, "event has no payload")
		return
	}

	if evt.Payload.Filename != "" {
		c.Header("Content-Disposition", mime.FormatMediaType("inline", map[string]string{"filename": evt.Payload.Filename}))
	}
	c.Data(http.StatusOK, evt.Payload.ContentType, evt.Payload.Data)
}

// --- Helpers ---

func (h *EventHandler) respondError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, domain.ErrInvalidInput):
		utils.SendBadRequest(c, err.Error())
	case errors.Is(err, domain.ErrEventNotFound):
		utils.SendNotFound(c, "event not found")
	default:
		h.log.Error("Request failed", zap.String("path", c.FullPath()), zap.Error(err))
		utils.SendInternalServerError(c, domain.ErrStoreFailure.Error())
	}
}

func decodeCreateRequest(c *gin.Context) (createEventRequest, error) {
	var req createEventRequest

	mediaType, _, _ := mime.ParseMediaType(c.GetHeader("Content-Type"))
	if mediaType != "multipart/form-data" {
		if err := c.ShouldBindJSON(&req); err != nil {
			return req, err
		}
		return req, nil
	}

	req.Kind = c.PostForm("kind")
	req.SourceLabel = c.PostForm("sourceLabel")
	req.ContentType = c.PostForm("contentType")

	fh, err := c.FormFile("payload")
	switch {
	case errors.Is(err, http.ErrMissingFile):
		return req, nil
	case err != nil:
		return req, err
	}

	f, err := fh.Open()
	if err != nil {
		return req, err
	}
	defer f.Close()

	if req.Data, err = io.ReadAll(f); err != nil {
		return req, err
	}
	req.Filename = fh.Filename
	if req.ContentType == "" {
		req.ContentType = fh.Header.Get("Content-Type")
	}
	return req, nil
}

func parsePage(c *gin.Context) (sharedQuery.CursorPagination, error) {
	var page sharedQuery.CursorPagination

	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			return page, fmt.Errorf("invalid limit %q", raw)
		}
		page.Limit = n
	}

	// before acepta un id de evento o una marca RFC3339
	if before := c.Query("before"); before != "" {
		if ts, err := time.Parse(time.RFC3339Nano, before); err == nil {
			page.BeforeTime = ts.UTC()
		} else {
			page.BeforeID = before
		}
	}

	page.Kind = c.Query("kind")
	return page, nil
}

// wantsRaw decide la negociación de contenido: bytes crudos sólo si Accept da
// a una imagen u octet-stream una calidad (q) mayor que a JSON. Empate => JSON.
func wantsRaw(accept string) bool {
	var rawQ, jsonQ float64
	for _, part := range strings.Split(accept, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		mt, params, err := mime.ParseMediaType(part)
		if err != nil {
			continue
		}
		q := 1.0
		if v, ok := params["q"]; ok {
			if q, err = strconv.ParseFloat(v, 64); err != nil || q < 0 || q > 1 {
				continue
			}
		}
		switch {
		case mt == "application/json":
			jsonQ = max(jsonQ, q)
		case strings.HasPrefix(mt, "image/"), mt == "application/octet-stream":
			rawQ = max(rawQ, q)
		}
	}
	return rawQ > 0 && rawQ > jsonQ
}

func hasData(evt *domain.Event) bool {
	return evt.Payload != nil && len(evt.Payload.Data) > 0
}
