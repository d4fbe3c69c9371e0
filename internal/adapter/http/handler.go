package http

import (
	"errors"
	"mime/multipart"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/simaogato/bucketbook-backend/internal/domain"
	"github.com/simaogato/bucketbook-backend/internal/statement/ofx"
	"github.com/simaogato/bucketbook-backend/internal/usecase/importer"
	"github.com/simaogato/bucketbook-backend/internal/usecase/registry"
)

// maxUploadSize leaves room for the multipart framing around a statement
const maxUploadSize = ofx.MaxSize + 1<<20

// StatementHandler accepts statement uploads
type StatementHandler struct {
	registry *registry.Service
	importer *importer.Service
	logger   *zap.Logger
}

func NewStatementHandler(reg *registry.Service, imp *importer.Service, logger *zap.Logger) *StatementHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &StatementHandler{registry: reg, importer: imp, logger: logger}
}

// RegisterRoutes registers the statement routes on r
func (h *StatementHandler) RegisterRoutes(r *gin.RouterGroup) {
	r.POST("/statements", h.Upload)
}

// uploadForm is the multipart body of an upload. Both fields are optional
// here; the importer reports what is missing.
type uploadForm struct {
	RealAccountID string                `form:"real_account_id"`
	SourceURI     string                `form:"source_uri"`
	Statement     *multipart.FileHeader `form:"statement"`
}

// Upload imports an OFX statement
// POST /api/v1/statements
func (h *StatementHandler) Upload(c *gin.Context) {
	ctx := c.Request.Context()
	account := accountID(c)

	if _, err := h.registry.GetAccount(ctx, account); err != nil {
		h.fail(c, err)
		return
	}

	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxUploadSize)
	var form uploadForm
	if err := c.ShouldBind(&form); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "statement is too large"})
			return
		}
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request: " + err.Error()})
		return
	}

	req := importer.Request{
		AccountID:    account,
		RealBucketID: form.RealAccountID,
		SourceURI:    form.SourceURI,
	}
	if form.Statement != nil {
		file, err := form.Statement.Open()
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request: " + err.Error()})
			return
		}
		defer file.Close()
		req.Statement = file
	}

	result, err := h.importer.Import(ctx, req)
	if err != nil {
		h.fail(c, err)
		return
	}

	c.JSON(statusFor(result), gin.H{
		"success":         result.Success,
		"status":          result.Status,
		"entries_created": result.EntriesCreated,
		"errors":          nonNil(result.Errors),
	})
}

// statusFor maps an import outcome to a response code. A partial import
// still created entries, so it is not an error response.
func statusFor(result *importer.Result) int {
	switch result.Status {
	case importer.StatusImported:
		return http.StatusCreated
	case importer.StatusPartial:
		return http.StatusOK
	default:
		return http.StatusUnprocessableEntity
	}
}

func (h *StatementHandler) fail(c *gin.Context, err error) {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, domain.ErrValidation), errors.Is(err, domain.ErrConfiguration):
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
	default:
		h.logger.Error("statement upload failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}

func nonNil(lines []string) []string {
	if lines == nil {
		return []string{}
	}
	return lines
}
