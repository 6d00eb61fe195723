package httpapi

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/Skufu/vitalwatch/internal/alert"
	"github.com/Skufu/vitalwatch/internal/anomaly"
	"github.com/Skufu/vitalwatch/internal/assistant"
	"github.com/Skufu/vitalwatch/internal/backend"
	"github.com/Skufu/vitalwatch/internal/dashboard"
	"github.com/Skufu/vitalwatch/internal/realtime"
	"github.com/Skufu/vitalwatch/internal/store"
)

type medicationRequest struct {
	Name      string `json:"name" binding:"required"`
	Dosage    string `json:"dosage"`
	Frequency string `json:"frequency"`
}

type appointmentRequest struct {
	Type  string `json:"type" binding:"required"`
	Date  string `json:"date" binding:"required"`
	Notes string `json:"notes"`
}

type chatRequest struct {
	Message        string `json:"message" binding:"required"`
	PatientProfile any    `json:"patientProfile"`
}

type predictRequest struct {
	Anomalies []anomaly.Anomaly `json:"anomalies"`
}

// Dashboard

func (h *handler) getDashboard(c *gin.Context) {
	c.JSON(http.StatusOK, h.Dashboard.Snapshot())
}

func (h *handler) refreshDashboard(c *gin.Context) {
	snap, err := h.Dashboard.Refresh(c.Request.Context())
	switch {
	case err == nil:
		c.JSON(http.StatusOK, snap)
	case errors.Is(err, dashboard.ErrClosed):
		abort(c, http.StatusServiceUnavailable, "shutting_down", "dashboard is shutting down")
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		abort(c, http.StatusGatewayTimeout, "refresh_timeout", "refresh did not complete")
	default:
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error(), "code": "refresh_failed", "snapshot": snap})
	}
}

func (h *handler) getECG(c *gin.Context) {
	c.JSON(http.StatusOK, h.Dashboard.Snapshot().ECG)
}

func (h *handler) getEEG(c *gin.Context) {
	c.JSON(http.StatusOK, h.Dashboard.Snapshot().EEG)
}

func (h *handler) getAnomalies(c *gin.Context) {
	c.JSON(http.StatusOK, h.Dashboard.Snapshot().Anomalies)
}

func (h *handler) getAnomalyHistory(c *gin.Context) {
	limit := 20
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 || n > 500 {
			abort(c, http.StatusBadRequest, "invalid_limit", "limit must be between 1 and 500")
			return
		}
		limit = n
	}
	c.JSON(http.StatusOK, h.Store.AnomalyHistory(c.Request.Context(), limit))
}

func (h *handler) getRecommendations(c *gin.Context) {
	c.JSON(http.StatusOK, h.Dashboard.Snapshot().Recommendations)
}

// Built-in sample feed

func (h *handler) syntheticECG(c *gin.Context) {
	if h.Synthetic == nil {
		abort(c, http.StatusNotFound, "feed_disabled", "synthetic feed is disabled")
		return
	}
	c.JSON(http.StatusOK, h.Synthetic.ECG())
}

func (h *handler) syntheticEEG(c *gin.Context) {
	if h.Synthetic == nil {
		abort(c, http.StatusNotFound, "feed_disabled", "synthetic feed is disabled")
		return
	}
	c.JSON(http.StatusOK, h.Synthetic.EEG())
}

// Profile, medications, appointments

func (h *handler) getProfile(c *gin.Context) {
	c.JSON(http.StatusOK, h.Store.Profile(c.Request.Context()))
}

func (h *handler) updateProfile(c *gin.Context) {
	var p store.Profile
	if err := c.ShouldBindJSON(&p); err != nil {
		abort(c, http.StatusBadRequest, "invalid_payload", "invalid payload")
		return
	}
	c.JSON(http.StatusOK, h.Store.UpdateProfile(c.Request.Context(), p))
}

func (h *handler) listMedications(c *gin.Context) {
	c.JSON(http.StatusOK, h.Store.Medications(c.Request.Context()))
}

func (h *handler) addMedication(c *gin.Context) {
	var req medicationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abort(c, http.StatusBadRequest, "invalid_payload", "name is required")
		return
	}
	m := h.Store.AddMedication(c.Request.Context(), store.Medication{
		Name:      req.Name,
		Dosage:    req.Dosage,
		Frequency: req.Frequency,
	})
	c.JSON(http.StatusCreated, m)
}

func (h *handler) updateMedication(c *gin.Context) {
	var m store.Medication
	if err := c.ShouldBindJSON(&m); err != nil {
		abort(c, http.StatusBadRequest, "invalid_payload", "invalid payload")
		return
	}
	out, err := h.Store.UpdateMedication(c.Request.Context(), c.Param("id"), m)
	if errors.Is(err, store.ErrNotFound) {
		abort(c, http.StatusNotFound, "not_found", "medication not found")
		return
	}
	c.JSON(http.StatusOK, out)
}

func (h *handler) deleteMedication(c *gin.Context) {
	h.Store.DeleteMedication(c.Request.Context(), c.Param("id"))
	c.Status(http.StatusNoContent)
}

func (h *handler) listAppointments(c *gin.Context) {
	c.JSON(http.StatusOK, h.Store.Appointments(c.Request.Context()))
}

func (h *handler) addAppointment(c *gin.Context) {
	var req appointmentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abort(c, http.StatusBadRequest, "invalid_payload", "type and date are required")
		return
	}
	if !validDate(req.Date) {
		abort(c, http.StatusBadRequest, "invalid_date", "date must be YYYY-MM-DD")
		return
	}
	a := h.Store.AddAppointment(c.Request.Context(), store.Appointment{
		Type:  req.Type,
		Date:  req.Date,
		Notes: req.Notes,
	})
	c.JSON(http.StatusCreated, a)
}

func (h *handler) updateAppointment(c *gin.Context) {
	var a store.Appointment
	if err := c.ShouldBindJSON(&a); err != nil {
		abort(c, http.StatusBadRequest, "invalid_payload", "invalid payload")
		return
	}
	if a.Date != "" && !validDate(a.Date) {
		abort(c, http.StatusBadRequest, "invalid_date", "date must be YYYY-MM-DD")
		return
	}
	out, err := h.Store.UpdateAppointment(c.Request.Context(), c.Param("id"), a)
	if errors.Is(err, store.ErrNotFound) {
		abort(c, http.StatusNotFound, "not_found", "appointment not found")
		return
	}
	c.JSON(http.StatusOK, out)
}

func (h *handler) deleteAppointment(c *gin.Context) {
	h.Store.DeleteAppointment(c.Request.Context(), c.Param("id"))
	c.Status(http.StatusNoContent)
}

func validDate(s string) bool {
	_, err := time.Parse("2006-01-02", s)
	return err == nil
}

// Assistant

func (h *handler) chat(c *gin.Context) {
	var req chatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abort(c, http.StatusBadRequest, "invalid_payload", "No message provided")
		return
	}

	profile := req.PatientProfile
	if profile == nil {
		profile = h.Store.Profile(c.Request.Context())
	}

	reply, err := h.Assistant.Chat(c.Request.Context(), req.Message, profile)
	if err != nil {
		abort(c, http.StatusBadRequest, "invalid_payload", err.Error())
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success":  true,
		"response": reply.Response,
		"source":   reply.Source,
		"cached":   reply.Cached,
	})
}

func (h *handler) analyzeHealth(c *gin.Context) {
	var req assistant.HealthRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abort(c, http.StatusBadRequest, "invalid_payload", "No data provided")
		return
	}
	c.JSON(http.StatusOK, h.Assistant.AnalyzeHealth(c.Request.Context(), req))
}

func (h *handler) scanDocuments(c *gin.Context) {
	if h.Scanner == nil {
		abort(c, http.StatusServiceUnavailable, "scanner_unavailable", "document scanning requires BACKEND_URL")
		return
	}

	form, err := c.MultipartForm()
	if err != nil || len(form.File["documents"]) == 0 {
		abort(c, http.StatusBadRequest, "invalid_payload", "No documents provided")
		return
	}

	docs := make([]backend.Document, 0, len(form.File["documents"]))
	for _, fh := range form.File["documents"] {
		f, err := fh.Open()
		if err != nil {
			abort(c, http.StatusBadRequest, "invalid_payload", fmt.Sprintf("read %s: %v", fh.Filename, err))
			return
		}
		defer f.Close()
		docs = append(docs, backend.Document{Name: fh.Filename, Content: f})
	}

	resp, err := h.Scanner.ScanDocuments(c.Request.Context(), docs)
	if err != nil {
		h.log.Warn("document scan failed", zap.Error(err))
		abort(c, http.StatusBadGateway, "scan_failed", "document scanning failed")
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success":  resp.Success,
		"results":  resp.Results,
		"combined": backend.Combine(resp.Results),
	})
}

func (h *handler) predict(c *gin.Context) {
	var req predictRequest
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		abort(c, http.StatusBadRequest, "invalid_payload", "invalid payload")
		return
	}

	anomalies := req.Anomalies
	if len(anomalies) == 0 {
		anomalies = h.Dashboard.Snapshot().Anomalies
	}

	ctx := c.Request.Context()
	p, err := h.Assistant.Predict(ctx, anomalies, h.Store.Profile(ctx))
	switch {
	case errors.Is(err, assistant.ErrNoGenerator):
		abort(c, http.StatusServiceUnavailable, "generator_unavailable", "predictions require GEMINI_API_KEY")
	case err != nil:
		h.log.Warn("prediction failed", zap.Error(err))
		abort(c, http.StatusBadGateway, "prediction_failed", "could not generate predictions")
	default:
		c.JSON(http.StatusOK, p)
	}
}

func (h *handler) latestPrediction(c *gin.Context) {
	t := c.Param("type")
	if !assistant.ValidPredictionType(t) {
		abort(c, http.StatusBadRequest, "invalid_type", "type must be short_term, long_term or risk_analysis")
		return
	}
	p := h.Assistant.LatestPrediction(c.Request.Context(), t)
	if p == nil {
		abort(c, http.StatusNotFound, "not_found", "no prediction stored")
		return
	}
	c.JSON(http.StatusOK, p)
}

// Emergency

func (h *handler) sos(c *gin.Context) {
	if h.Alerts == nil {
		abort(c, http.StatusServiceUnavailable, "alerts_unavailable", "emergency alerts are not configured")
		return
	}

	a, err := h.Alerts.Trigger()
	if errors.Is(err, alert.ErrNoDestination) {
		abort(c, http.StatusServiceUnavailable, "alerts_unavailable", "no emergency contact configured")
		return
	}
	if err != nil {
		abort(c, http.StatusInternalServerError, "alert_failed", err.Error())
		return
	}

	if h.Notifier != nil {
		h.Notifier.Send(realtime.TypeAlert, a)
	}
	c.JSON(http.StatusAccepted, gin.H{
		"success": true,
		"message": "SOS alert sent successfully",
		"alert":   a,
	})
}
