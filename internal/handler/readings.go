package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/matricare/sync-client/internal/service"
	"github.com/matricare/sync-client/pkg/model"
	"go.uber.org/zap"
)

// ReadingHandler ingests device-captured readings into the local buffer
type ReadingHandler struct {
	service *service.PatientService
	logger  *zap.Logger
}

// NewReadingHandler creates a new ReadingHandler
func NewReadingHandler(service *service.PatientService, logger *zap.Logger) *ReadingHandler {
	return &ReadingHandler{
		service: service,
		logger:  logger,
	}
}

// PostReading buffers one device-captured reading. The reading is stored
// unsynced regardless of connectivity; a background sync is kicked when the
// client is online.
func (h *ReadingHandler) PostReading(c *gin.Context) {
	var reading model.Reading
	if err := c.ShouldBindJSON(&reading); err != nil {
		h.logger.Warn("invalid reading payload", zap.Error(err))
		c.JSON(http.StatusBadRequest, errorResponse{
			Code:    "VALIDATION_ERROR",
			Message: "Invalid reading payload",
		})
		return
	}

	id, err := h.service.IngestDeviceReading(c.Request.Context(), reading)
	if err != nil {
		c.JSON(http.StatusBadRequest, errorResponse{
			Code:    "VALIDATION_ERROR",
			Message: err.Error(),
		})
		return
	}

	c.JSON(http.StatusCreated, gin.H{"id": id})
}
