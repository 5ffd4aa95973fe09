package http

import (
	"encoding/base64"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/davicafu/doorbell/internal/event/application"
	"github.com/davicafu/doorbell/internal/event/domain"
	"github.com/davicafu/doorbell/pkg/utils"
	sharedQuery "github.com/davicafu/doorbell/shared/platform/query"
)

// LegacyHandler mantiene las rutas que usan los dispositivos y visores antiguos.
type LegacyHandler struct {
	ingest *application.IngestService
	query  *application.QueryService
	log    *zap.Logger
}

func NewLegacyHandler(ingest *application.IngestService, query *application.QueryService, log *zap.Logger) *LegacyHandler {
	return &LegacyHandler{ingest: ingest, query: query, log: log}
}

type uploadRequest struct {
	Filename    string `json:"filename"`
	Data        string `json:"data"` // base64 o data URL
	ContentType string `json:"contentType"`
	SourceLabel string `json:"sourceLabel"`
}

// legacyImage reproduce la forma de documento que esperan los visores antiguos.
type legacyImage struct {
	ID          string    `json:"_id"`
	Filename    string    `json:"filename"`
	ContentType string    `json:"contentType"`
	Data        string    `json:"data,omitempty"`
	UploadedAt  time.Time `json:"uploadedAt"`
}

// Ping endpoint POST /ping (pulsación del timbre)
func (h *LegacyHandler) Ping(c *gin.Context) {
	draft := domain.Draft{Kind: domain.KindButtonPress, SourceLabel: c.Query("source")}
	if _, err := h.ingest.Ingest(c.Request.Context(), draft); err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

// Upload endpoint POST /upload
func (h *LegacyHandler) Upload(c *gin.Context) {
	limit := h.ingest.MaxPayloadBytes()
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, limit+limit/3+bodyOverhead)

	var req uploadRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.SendBadRequest(c, err.Error())
		return
	}
	if req.Filename == "" || req.Data == "" {
		utils.SendBadRequest(c, "Missing fields")
		return
	}

	data, declared, err := decodeDataURL(req.Data)
	if err != nil {
		utils.SendBadRequest(c, "data is not valid base64")
		return
	}

	contentType := req.ContentType
	if contentType == "" {
		contentType = declared
	}
	if contentType == "" {
		contentType = http.DetectContentType(data)
	}

	evt, err := h.ingest.Ingest(c.Request.Context(), domain.Draft{
		Kind:        domain.KindImage,
		SourceLabel: req.SourceLabel,
		Payload:     &domain.Payload{ContentType: contentType, Filename: req.Filename, Data: data},
	})
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true, "id": evt.ID})
}

// ListImages endpoint GET /images (sólo metadatos, más recientes primero)
func (h *LegacyHandler) ListImages(c *gin.Context) {
	listing, err := h.query.ListRecent(c.Request.Context(), sharedQuery.CursorPagination{
		Limit: sharedQuery.MaxLimit,
		Kind:  string(domain.KindImage),
	})
	if err != nil {
		h.respondError(c, err)
		return
	}

	out := make([]legacyImage, 0, len(listing.Events))
	for _, m := range listing.Events {
		out = append(out, legacyImage{ID: m.ID, Filename: m.Filename, ContentType: m.ContentType, UploadedAt: m.CreatedAt})
	}
	c.JSON(http.StatusOK, out)
}

// GetImage endpoint GET /images/id/:id (imagen completa en base64)
func (h *LegacyHandler) GetImage(c *gin.Context) {
	evt, err := h.query.GetFull(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	if evt.Kind != domain.KindImage || evt.Payload == nil {
		utils.SendNotFound(c, "Not found")
		return
	}

	c.JSON(http.StatusOK, legacyImage{
		ID:          evt.ID,
		Filename:    evt.Payload.Filename,
		ContentType: evt.Payload.ContentType,
		Data:        base64.StdEncoding.EncodeToString(evt.Payload.Data),
		UploadedAt:  evt.CreatedAt,
	})
}

func (h *LegacyHandler) respondError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, domain.ErrInvalidInput):
		utils.SendBadRequest(c, err.Error())
	case errors.Is(err, domain.ErrEventNotFound):
		utils.SendNotFound(c, "Not found")
	default:
		h.log.Error("Legacy request failed", zap.String("path", c.FullPath()), zap.Error(err))
		utils.SendInternalServerError(c, domain.ErrStoreFailure.Error())
	}
}

// decodeDataURL acepta "data:image/png;base64,...." o base64 plano.
// Devuelve también el tipo declarado en la data URL, si lo hay.
func decodeDataURL(s string) ([]byte, string, error) {
	var declared string
	if rest, ok := strings.CutPrefix(s, "data:"); ok {
		meta, payload, found := strings.Cut(rest, ",")
		if !found {
			return nil, "", errors.New("malformed data url")
		}
		declared = strings.TrimSuffix(meta, ";base64")
		s = payload
	}

	data, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		// algunos clientes envían base64 sin relleno
		data, err = base64.RawStdEncoding.DecodeString(strings.TrimRight(s, "="))
	}
	return data, declared, err
}
