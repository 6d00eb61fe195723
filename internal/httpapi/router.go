package httpapi

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/Skufu/vitalwatch/internal/alert"
	"github.com/Skufu/vitalwatch/internal/assistant"
	"github.com/Skufu/vitalwatch/internal/backend"
	"github.com/Skufu/vitalwatch/internal/dashboard"
	"github.com/Skufu/vitalwatch/internal/logger"
	"github.com/Skufu/vitalwatch/internal/metrics"
	"github.com/Skufu/vitalwatch/internal/store"
	"github.com/Skufu/vitalwatch/internal/vitals"
)

const (
	maxJSONBody   = 1 << 20  // 1MB
	maxUploadBody = 20 << 20 // 20MB across all documents
)

type HealthChecker interface {
	Ping(ctx context.Context) error
}

type Dashboard interface {
	Snapshot() dashboard.Snapshot
	Refresh(ctx context.Context) (dashboard.Snapshot, error)
}

type Scanner interface {
	ScanDocuments(ctx context.Context, docs []backend.Document) (*backend.ScanResponse, error)
}

type Alerter interface {
	Trigger() (alert.Alert, error)
}

type Notifier interface {
	Send(msgType string, payload any)
}

// Deps are the collaborators behind the HTTP surface. DB, Scanner, Alerts,
// Notifier and WebSocket may be nil; the matching endpoints then report the
// feature as unavailable.
type Deps struct {
	DB        HealthChecker
	Dashboard Dashboard
	Store     *store.Service
	Assistant *assistant.Assistant
	Scanner   Scanner
	Alerts    Alerter
	Notifier  Notifier
	Synthetic *vitals.Synthetic
	WebSocket http.HandlerFunc
	Log       *zap.Logger

	CORSOrigin   string
	StaticRoot   string
	SOSPerMinute int
	ChatPerSec   int
}

type handler struct {
	Deps
	log *zap.Logger
}

func NewRouter(d Deps) *gin.Engine {
	h := &handler{Deps: d, log: logger.Module(d.Log, "http")}

	router := gin.New()
	router.Use(
		gin.Logger(),
		gin.Recovery(),
		metrics.Middleware(),
		cors.New(cors.Config{
			AllowOrigins: corsOrigins(d.CORSOrigin),
			AllowMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
			AllowHeaders: []string{"Origin", "Content-Type", "Authorization"},
			MaxAge:       12 * time.Hour,
		}),
	)

	if d.StaticRoot != "" && fileExists(filepath.Join(d.StaticRoot, "index.html")) {
		router.Static("/static", d.StaticRoot)
		router.StaticFile("/", filepath.Join(d.StaticRoot, "index.html"))
	}

	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	router.GET("/readyz", h.readyz)
	router.GET("/metrics", gin.WrapH(metrics.Handler()))
	if d.WebSocket != nil {
		router.GET("/ws", gin.WrapF(d.WebSocket))
	}

	uploads := router.Group("/api", limitBodySize(maxUploadBody))
	uploads.POST("/scan-documents", h.scanDocuments)

	api := router.Group("/api", limitBodySize(maxJSONBody))

	api.GET("/dashboard", h.getDashboard)
	api.POST("/dashboard/refresh", h.refreshDashboard)
	api.GET("/vitals/ecg", h.getECG)
	api.GET("/vitals/eeg", h.getEEG)
	api.GET("/anomalies", h.getAnomalies)
	api.GET("/anomalies/history", h.getAnomalyHistory)
	api.GET("/recommendations", h.getRecommendations)

	api.GET("/ecg", h.syntheticECG)
	api.GET("/eeg", h.syntheticEEG)

	api.GET("/profile", h.getProfile)
	api.PUT("/profile", h.updateProfile)
	api.GET("/medications", h.listMedications)
	api.POST("/medications", h.addMedication)
	api.PUT("/medications/:id", h.updateMedication)
	api.DELETE("/medications/:id", h.deleteMedication)
	api.GET("/appointments", h.listAppointments)
	api.POST("/appointments", h.addAppointment)
	api.PUT("/appointments/:id", h.updateAppointment)
	api.DELETE("/appointments/:id", h.deleteAppointment)

	generative := newIPRateLimiter(d.ChatPerSec, d.ChatPerSec*2).middleware()
	api.POST("/chat", generative, h.chat)
	api.POST("/analyze-health", h.analyzeHealth)
	api.POST("/predictions", generative, h.predict)
	api.GET("/predictions/latest/:type", h.latestPrediction)

	api.POST("/sos", rateLimit(perMinute(d.SOSPerMinute)), h.sos)

	return router
}

func (h *handler) readyz(c *gin.Context) {
	if h.DB == nil {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "db": "disabled"})
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	if err := h.DB.Ping(ctx); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status": "degraded",
			"db":     fmt.Sprintf("unhealthy: %v", err),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "ok", "db": "ok"})
}

func corsOrigins(origin string) []string {
	if origin == "" {
		return []string{"*"}
	}
	return []string{origin}
}

// DetectStaticRoot looks for index.html in the working directory and its two
// parents.
func DetectStaticRoot() string {
	startDir, err := os.Getwd()
	if err != nil {
		return ""
	}

	candidates := []string{
		startDir,
		filepath.Dir(startDir),
		filepath.Dir(filepath.Dir(startDir)),
	}
	for _, dir := range candidates {
		if fileExists(filepath.Join(dir, "index.html")) {
			return dir
		}
	}
	return ""
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	return !info.IsDir()
}
