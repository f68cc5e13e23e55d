package api

import (
	"net/http"
	"strconv"

	"github.com/SherClockHolmes/webpush-go"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"brewery-production-backend/internal/apperr"
	"brewery-production-backend/internal/catalog"
	"brewery-production-backend/internal/logging"
	"brewery-production-backend/internal/store"
)

// Handler holds shared dependencies for API handlers.
type Handler struct {
	store        store.Store
	packageTypes *catalog.PackageTypes
	webpush      *webpush.Options
	logger       *logrus.Logger
}

// NewHandler creates a new API handler.
func NewHandler(s store.Store, packageTypes *catalog.PackageTypes, webpushOptions *webpush.Options, logger *logrus.Logger) *Handler {
	if logger == nil {
		logger = logging.Discard()
	}
	if packageTypes == nil {
		packageTypes = catalog.NewPackageTypes(nil)
	}
	return &Handler{
		store:        s,
		packageTypes: packageTypes,
		webpush:      webpushOptions,
		logger:       logger,
	}
}

// writeError renders err as {code, message, params}. Unstructured errors are
// logged and reported as INTERNAL.
func (h *Handler) writeError(c *gin.Context, funcName string, err error) {
	appErr, ok := apperr.As(err)
	if !ok {
		appErr = apperr.Internal(err).(*apperr.Error)
	}
	if appErr.HTTPStatus >= http.StatusInternalServerError {
		logging.LogError(h.logger, "api", funcName, c.FullPath(), appErr.Params, err)
		_ = c.Error(err)
	}
	c.AbortWithStatusJSON(appErr.HTTPStatus, appErr)
}

// bind decodes the JSON body into dst and reports binding failures as
// VALIDATION_FAILED.
func (h *Handler) bind(c *gin.Context, dst any) bool {
	if err := c.ShouldBindJSON(dst); err != nil {
		h.writeError(c, "bind", apperr.Validation("invalid request: %v", err))
		return false
	}
	return true
}

// bindOptional is bind for endpoints whose body may be omitted.
func (h *Handler) bindOptional(c *gin.Context, dst any) bool {
	if c.Request.Body == nil || c.Request.ContentLength == 0 {
		return true
	}
	return h.bind(c, dst)
}

// idParam parses a positive integer path parameter.
func (h *Handler) idParam(c *gin.Context, name string) (int64, bool) {
	id, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil || id <= 0 {
		h.writeError(c, "idParam", apperr.Validation("invalid %s %q", name, c.Param(name)))
		return 0, false
	}
	return id, true
}
