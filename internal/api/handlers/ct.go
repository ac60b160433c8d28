package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/adamscao/ctapi/internal/api/middleware"
	"github.com/adamscao/ctapi/internal/artifact"
	"github.com/adamscao/ctapi/internal/models"
	"github.com/adamscao/ctapi/internal/query"
)

const (
	msgInvalidParams  = "Invalid query parameters"
	msgNoCertificates = "No certificates found"
	msgNotFound       = "Certificate not found"
	msgNoIssuers      = "No issuers found"
	msgTooMany        = "Too many results, use count or narrow the query"
	msgQueryFailed    = "Query failed"
	msgDecodeFailed   = "Failed to decode certificate"
)

// Auditor records certificate downloads
type Auditor interface {
	Create(ctx context.Context, log *models.AuditLog) error
}

// CTHandler serves the certificate transparency record queries
type CTHandler struct {
	dispatcher *query.Dispatcher
	auditor    Auditor
	logger     *slog.Logger
}

// NewCTHandler creates a new CT query handler. auditor may be nil.
func NewCTHandler(dispatcher *query.Dispatcher, auditor Auditor, logger *slog.Logger) *CTHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &CTHandler{
		dispatcher: dispatcher,
		auditor:    auditor,
		logger:     logger,
	}
}

// ByOrganization handles GET /ct/org
func (h *CTHandler) ByOrganization(c *gin.Context) {
	var req query.OrganizationRequest
	if !bindQuery(c, &req) {
		return
	}
	res, err := h.dispatcher.ByOrganization(c.Request.Context(), req)
	h.respond(c, res, err, msgNoCertificates)
}

// ByZone handles GET /ct/zone
func (h *CTHandler) ByZone(c *gin.Context) {
	var req query.ZoneRequest
	if !bindQuery(c, &req) {
		return
	}
	res, err := h.dispatcher.ByZone(c.Request.Context(), req)
	h.respond(c, res, err, msgNoCertificates)
}

// ByCommonName handles GET /ct/common_name
func (h *CTHandler) ByCommonName(c *gin.Context) {
	var req query.CommonNameRequest
	if !bindQuery(c, &req) {
		return
	}
	res, err := h.dispatcher.ByCommonName(c.Request.Context(), req)
	h.respond(c, res, err, msgNoCertificates)
}

// ByIP handles GET /ct/ip
func (h *CTHandler) ByIP(c *gin.Context) {
	var req query.IPRequest
	if !bindQuery(c, &req) {
		return
	}
	res, err := h.dispatcher.ByIP(c.Request.Context(), req)
	h.respond(c, res, err, msgNoCertificates)
}

// ByFingerprint handles GET /ct/fingerprint/:fingerprint
func (h *CTHandler) ByFingerprint(c *gin.Context) {
	var req query.FingerprintRequest
	if !bindURI(c, &req) || !bindQuery(c, &req) {
		return
	}
	res, err := h.dispatcher.ByFingerprint(c.Request.Context(), req)
	h.respond(c, res, err, msgNoCertificates)
}

// Issuers handles GET /ct/issuers
func (h *CTHandler) Issuers(c *gin.Context) {
	res, err := h.dispatcher.Issuers(c.Request.Context())
	h.respond(c, res, err, msgNoIssuers)
}

// ByIssuer handles GET /ct/issuers/:issuer
func (h *CTHandler) ByIssuer(c *gin.Context) {
	var req query.IssuerRequest
	if !bindURI(c, &req) || !bindQuery(c, &req) {
		return
	}
	res, err := h.dispatcher.ByIssuer(c.Request.Context(), req)
	h.respond(c, res, err, msgNoCertificates)
}

// ByID handles GET /ct/id/:id
func (h *CTHandler) ByID(c *gin.Context) {
	res, err := h.dispatcher.ByID(c.Request.Context(), c.Param("id"))
	h.respond(c, res, err, msgNotFound)
}

// Download handles GET /ct/download/:id and returns the DER certificate as
// an attachment.
func (h *CTHandler) Download(c *gin.Context) {
	id := c.Param("id")

	a, err := h.dispatcher.Download(c.Request.Context(), id)
	if err != nil {
		h.fail(c, err, msgNotFound)
		return
	}

	h.audit(c, id)

	c.Header("Content-Disposition", a.ContentDisposition())
	c.Data(http.StatusOK, a.ContentType, a.Body)
}

// Corporate handles GET /ct/corp_certs
func (h *CTHandler) Corporate(c *gin.Context) {
	var req query.CorporateRequest
	if !bindQuery(c, &req) {
		return
	}
	res, err := h.dispatcher.Corporate(c.Request.Context(), req)
	h.respond(c, res, err, msgNoCertificates)
}

// BySignatureAlgorithm handles GET /ct/signature_algorithm. It answers
// {"count"} only when count is set; otherwise it lists the records and
// responds 404 when none match.
func (h *CTHandler) BySignatureAlgorithm(c *gin.Context) {
	var req query.SignatureAlgorithmRequest
	if !bindQuery(c, &req) {
		return
	}
	res, err := h.dispatcher.BySignatureAlgorithm(c.Request.Context(), req)
	h.respond(c, res, err, msgNoCertificates)
}

// CorporateCount handles GET /ct/corp_count
func (h *CTHandler) CorporateCount(c *gin.Context) {
	res, err := h.dispatcher.CorporateCount(c.Request.Context())
	h.respond(c, res, err, msgNoCertificates)
}

// TotalCount handles GET /ct/total_count
func (h *CTHandler) TotalCount(c *gin.Context) {
	res, err := h.dispatcher.TotalCount(c.Request.Context())
	h.respond(c, res, err, msgNoCertificates)
}

func bindQuery(c *gin.Context, req any) bool {
	if err := c.ShouldBindQuery(req); err != nil {
		RespondError(c, http.StatusBadRequest, msgInvalidParams)
		return false
	}
	return true
}

func bindURI(c *gin.Context, req any) bool {
	if err := c.ShouldBindUri(req); err != nil {
		RespondError(c, http.StatusBadRequest, msgInvalidParams)
		return false
	}
	return true
}

func (h *CTHandler) respond(c *gin.Context, res *query.Result, err error, notFound string) {
	if err != nil {
		h.fail(c, err, notFound)
		return
	}

	switch {
	case res.Counted:
		RespondSuccess(c, CountResponse{Count: res.Count})
	case res.Record != nil:
		RespondSuccess(c, res.Record)
	case res.Issuers != nil:
		RespondSuccess(c, res.Issuers)
	default:
		RespondSuccess(c, res.Records)
	}
}

// fail maps dispatcher errors onto status codes. Store and decode causes
// are logged by the dispatcher and never reach the client.
func (h *CTHandler) fail(c *gin.Context, err error, notFound string) {
	var inputErr *query.InputError
	switch {
	case errors.As(err, &inputErr):
		RespondError(c, http.StatusBadRequest, inputErr.Message)
	case errors.Is(err, query.ErrNotFound):
		RespondError(c, http.StatusNotFound, notFound)
	case errors.Is(err, query.ErrTooManyResults):
		RespondError(c, http.StatusUnprocessableEntity, msgTooMany)
	case errors.Is(err, artifact.ErrDecode):
		RespondError(c, http.StatusInternalServerError, msgDecodeFailed)
	default:
		RespondError(c, http.StatusInternalServerError, msgQueryFailed)
	}
}

func (h *CTHandler) audit(c *gin.Context, id string) {
	if h.auditor == nil {
		return
	}
	details, _ := json.Marshal(map[string]string{"id": id})
	err := h.auditor.Create(c.Request.Context(), &models.AuditLog{
		Action:    models.ActionCertDownload,
		KeyName:   middleware.KeyName(c),
		ClientIP:  c.ClientIP(),
		UserAgent: c.GetHeader("User-Agent"),
		Success:   true,
		Details:   string(details),
	})
	if err != nil {
		h.logger.Warn("failed to audit certificate download", "id", id, "error", err)
	}
}
