package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/matricare/sync-client/internal/service"
	"github.com/matricare/sync-client/internal/store"
	"go.uber.org/zap"
)

// PatientHandler serves the cached patient views consumed by the display
// surfaces
type PatientHandler struct {
	service  *service.PatientService
	readings *store.ReadingStore
	status   *store.StatusStore
	logger   *zap.Logger
}

// NewPatientHandler creates a new PatientHandler
func NewPatientHandler(service *service.PatientService, readings *store.ReadingStore, status *store.StatusStore, logger *zap.Logger) *PatientHandler {
	return &PatientHandler{
		service:  service,
		readings: readings,
		status:   status,
		logger:   logger,
	}
}

// GetPatients returns the patient list, refreshed from the backend when
// reachable and served from cache otherwise
func (h *PatientHandler) GetPatients(c *gin.Context) {
	patients, fromCache := h.service.ListPatients(c.Request.Context())

	c.JSON(http.StatusOK, gin.H{
		"patients":  patients,
		"fromCache": fromCache,
	})
}

// GetPatient returns one patient's merged record
func (h *PatientHandler) GetPatient(c *gin.Context) {
	id := c.Param("id")

	patient, fromCache, err := h.service.GetPatient(c.Request.Context(), id)
	if err != nil {
		h.logger.Warn("patient lookup failed", zap.Error(err), zap.String("patient_id", id))
		c.JSON(http.StatusNotFound, errorResponse{
			Code:    "PATIENT_NOT_FOUND",
			Message: err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"patient":   patient,
		"fromCache": fromCache,
	})
}

// GetPatientReadings returns a patient's readings, optionally limited to the
// last N days via ?days=N, newest first
func (h *PatientHandler) GetPatientReadings(c *gin.Context) {
	id := c.Param("id")

	daysParam := c.Query("days")
	if daysParam == "" {
		c.JSON(http.StatusOK, gin.H{"readings": h.readings.Readings(id)})
		return
	}

	days, err := strconv.Atoi(daysParam)
	if err != nil {
		c.JSON(http.StatusBadRequest, errorResponse{
			Code:    "VALIDATION_ERROR",
			Message: "days must be an integer",
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{"readings": h.readings.ReadingsWithin(id, days)})
}

// SelectPatient records the patient the client is focused on
func (h *PatientHandler) SelectPatient(c *gin.Context) {
	id := c.Param("id")
	h.status.SelectPatient(id)

	c.JSON(http.StatusOK, gin.H{"selectedPatientId": id})
}
