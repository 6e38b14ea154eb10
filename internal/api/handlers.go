package api

import (
	"context"
	"errors"
	"html/template"
	"mime/multipart"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"labreader/internal/config"
	"labreader/internal/intake"
	"labreader/internal/middleware"
	"labreader/internal/models"
	"labreader/internal/pipeline"
	"labreader/internal/web"
)

const (
	// multipart overhead allowed on top of the image limit
	formOverheadBytes = 1 << 20
	rateLimitPrefix   = "labreader:ratelimit:upload:"
)

// Processor runs one upload through the pipeline.
type Processor interface {
	Process(ctx context.Context, up pipeline.Upload) (*models.Report, error)
}

type RunLister interface {
	ListRuns(ctx context.Context, limit int) ([]*models.PipelineRun, error)
}

// Handler wires HTTP routes to the report pipeline.
type Handler struct {
	cfg       *config.Config
	pipeline  Processor
	runs      RunLister
	counter   middleware.Counter
	log       zerolog.Logger
	templates *template.Template
}

// NewHandler constructs a Handler instance. runs and counter may be nil.
func NewHandler(cfg *config.Config, processor Processor, runs RunLister, counter middleware.Counter, log zerolog.Logger) (*Handler, error) {
	tmpl, err := web.Templates()
	if err != nil {
		return nil, err
	}
	return &Handler{
		cfg:       cfg,
		pipeline:  processor,
		runs:      runs,
		counter:   counter,
		log:       log,
		templates: tmpl,
	}, nil
}

func (h *Handler) RegisterRoutes(router *gin.Engine) {
	router.SetHTMLTemplate(h.templates)
	router.Use(
		middleware.RequestLogger(h.log),
		gin.CustomRecovery(h.recovered),
		middleware.SecurityHeaders(),
		middleware.CORS(h.cfg.BasicConfig.AllowedOrigins),
	)
	router.StaticFS("/static", http.FS(web.Static()))
	router.NoRoute(func(c *gin.Context) {
		h.renderError(c, userError{http.StatusNotFound, "Page not found", ""})
	})

	pages := router.Group("/", middleware.IssueCSRFCookie())
	pages.GET("/", h.page("index.html", "Home"))
	pages.GET("/send", h.page("send.html", "Upload"))
	pages.GET("/sign", h.page("signup.html", "Sign up"))
	pages.GET("/login", h.page("login.html", "Log in"))
	pages.GET("/cnct", h.page("contact.html", "Contact"))

	upload := []gin.HandlerFunc{
		middleware.RateLimit(h.counter, h.cfg.BasicConfig.RateLimit, rateLimitPrefix, h.deny),
		h.parseUploadForm,
	}
	if h.cfg.BasicConfig.CSRFEnabled() {
		upload = append(upload, middleware.CSRF(h.deny))
	}
	router.POST("/upload", append(upload, h.upload)...)

	router.GET("/healthz", func(c *gin.Context) {
		c.String(http.StatusOK, "ok")
	})

	api := router.Group("/api")
	api.GET("/firebase-config", h.firebaseConfig)
	api.GET("/runs", middleware.WithAPIKey(h.cfg.BasicConfig.AdminAPIKey), h.listRuns)
}

func (h *Handler) page(name, title string) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.HTML(http.StatusOK, name, gin.H{
			"Title":       title,
			"CSRFToken":   middleware.CSRFToken(c),
			"MaxUploadMB": h.cfg.BasicConfig.MaxUploadBytes >> 20,
		})
	}
}

// parseUploadForm bounds the body and parses the multipart form before the csrf check reads it.
func (h *Handler) parseUploadForm(c *gin.Context) {
	limit := h.cfg.BasicConfig.MaxUploadBytes + formOverheadBytes
	if c.Request.ContentLength > limit {
		h.renderError(c, classify(intake.ErrPayloadTooLarge, h.cfg.BasicConfig.MaxUploadBytes))
		c.Abort()
		return
	}
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, limit)
	if err := c.Request.ParseMultipartForm(h.cfg.BasicConfig.MaxUploadBytes); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			h.renderError(c, classify(intake.ErrPayloadTooLarge, h.cfg.BasicConfig.MaxUploadBytes))
		} else {
			h.renderError(c, userError{http.StatusBadRequest, "No file uploaded", "Choose an image of your lab report and try again."})
		}
		c.Abort()
		return
	}
	c.Next()
}

func (h *Handler) upload(c *gin.Context) {
	fileHeader, err := c.FormFile("image")
	if err != nil {
		h.renderError(c, userError{http.StatusBadRequest, "No file uploaded", "Choose an image of your lab report and try again."})
		return
	}
	file, err := fileHeader.Open()
	if err != nil {
		middleware.Logger(c).Error().Err(err).Msg("open uploaded file failed")
		h.renderError(c, internalError)
		return
	}
	defer file.Close()

	report, err := h.pipeline.Process(c.Request.Context(), uploadFrom(fileHeader, file))
	if err != nil {
		ue := classify(err, h.cfg.BasicConfig.MaxUploadBytes)
		ev := middleware.Logger(c).Warn()
		if ue.status >= http.StatusInternalServerError {
			ev = middleware.Logger(c).Error()
		}
		ev.Err(err).Str("kind", pipeline.Kind(err)).Msg("upload processing failed")
		h.renderError(c, ue)
		return
	}

	if wantsJSON(c) {
		c.JSON(http.StatusOK, report)
		return
	}
	c.HTML(http.StatusOK, "report.html", gin.H{
		"Title":              "Report",
		"Analysis":           report.Analysis,
		"ExtractedText":      report.ExtractedText,
		"AnalysisSuccessful": report.AnalysisSuccessful,
	})
}

func uploadFrom(fh *multipart.FileHeader, body multipart.File) pipeline.Upload {
	return pipeline.Upload{
		Body:     body,
		FileName: fh.Filename,
		MimeType: fh.Header.Get("Content-Type"),
		Size:     fh.Size,
	}
}

func (h *Handler) firebaseConfig(c *gin.Context) {
	fb := h.cfg.Firebase
	if fb.APIKey == "" || fb.ProjectID == "" {
		c.JSON(http.StatusNotFound, gin.H{"error": "firebase is not configured"})
		return
	}
	c.JSON(http.StatusOK, fb)
}

func (h *Handler) listRuns(c *gin.Context) {
	if h.runs == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "run history is disabled"})
		return
	}
	limit := 0
	if v := c.Query("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid limit"})
			return
		}
		limit = n
	}
	runs, err := h.runs.ListRuns(c.Request.Context(), limit)
	if err != nil {
		middleware.Logger(c).Error().Err(err).Msg("list runs failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "list runs failed"})
		return
	}
	if runs == nil {
		runs = []*models.PipelineRun{}
	}
	c.JSON(http.StatusOK, gin.H{"runs": runs})
}

func (h *Handler) recovered(c *gin.Context, err any) {
	middleware.Logger(c).Error().Interface("panic", err).Str("path", c.Request.URL.Path).Msg("recovered from panic")
	h.renderError(c, internalError)
	c.Abort()
}

func (h *Handler) deny(c *gin.Context, status int, message string) {
	h.renderError(c, userError{status: status, message: message})
}

func (h *Handler) renderError(c *gin.Context, ue userError) {
	if wantsJSON(c) {
		c.JSON(ue.status, gin.H{"message": ue.message, "details": ue.details})
		return
	}
	c.HTML(ue.status, "error.html", gin.H{
		"Title":   "Error",
		"Message": ue.message,
		"Details": ue.details,
	})
}

func wantsJSON(c *gin.Context) bool {
	return c.NegotiateFormat(gin.MIMEHTML, gin.MIMEJSON) == gin.MIMEJSON
}
