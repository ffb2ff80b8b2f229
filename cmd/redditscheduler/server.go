package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net"
	"net/http"
	"os"
	"strconv"
	"time"

	"redditscheduler/internal/constants"
	"redditscheduler/internal/database"
	apperrors "redditscheduler/internal/errors"
	"redditscheduler/internal/httputil"
	"redditscheduler/internal/middleware"
	"redditscheduler/internal/models"
	"redditscheduler/internal/security"
	"redditscheduler/internal/service"
	"redditscheduler/internal/timeutil"
	"redditscheduler/internal/tracing"
	"redditscheduler/internal/validation"
	"redditscheduler/pkg/media"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"
)

const (
	imageFormField  = "image_file"
	multipartMemory = 8 << 20
)

// PostAPI is the enqueue/list/delete contract the HTTP layer drives
type PostAPI interface {
	Enqueue(ctx context.Context, req models.EnqueueRequest) (int64, error)
	ListForDisplay(ctx context.Context, zone *time.Location) ([]models.DisplayPost, error)
	Delete(ctx context.Context, id int64) error
	GetFlairs(ctx context.Context, subreddit string) ([]models.Flair, error)
	Zone() *time.Location
}

// HealthChecker reports store reachability and totals
type HealthChecker interface {
	Ping(ctx context.Context) error
	CountPosts(ctx context.Context) (database.PostCounts, error)
}

// SchedulerStatus reports the scan loop state
type SchedulerStatus interface {
	IsRunning() bool
	IsScanning() bool
}

type Server struct {
	router         *mux.Router
	logger         *logrus.Logger
	cfg            *models.Config
	posts          PostAPI
	health         HealthChecker
	images         media.Handler
	scheduler      SchedulerStatus
	maxUploadBytes int64
	server         *http.Server
}

// NewServer wires the HTTP routes. scheduler may be nil when the scan loop is disabled.
func NewServer(cfg *models.Config, posts PostAPI, health HealthChecker, images media.Handler, scheduler SchedulerStatus, logger *logrus.Logger) *Server {
	maxMB := cfg.Uploads.MaxSizeMB
	if maxMB <= 0 {
		maxMB = constants.DefaultMaxUploadSizeMB
	}

	s := &Server{
		router:         mux.NewRouter(),
		logger:         logger,
		cfg:            cfg,
		posts:          posts,
		health:         health,
		images:         images,
		scheduler:      scheduler,
		maxUploadBytes: int64(maxMB) * constants.BytesPerMegabyte,
	}

	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.router.Use(
		middleware.RecoveryMiddleware(s.logger),
		middleware.ObservabilityMiddleware(s.logger),
		middleware.BasicAuthMiddleware(s.cfg.Server.BasicAuthUser, s.cfg.Server.BasicAuthHash, s.logger),
	)

	s.router.HandleFunc("/health", s.handleHealth()).Methods(http.MethodGet)
	s.router.HandleFunc("/metrics", s.handleMetrics()).Methods(http.MethodGet)

	api := s.router.PathPrefix("/api").Subrouter()
	api.HandleFunc("/posts", s.handleCreatePost()).Methods(http.MethodPost)
	api.HandleFunc("/posts", s.handleListPosts()).Methods(http.MethodGet)
	api.HandleFunc("/posts/{id}", s.handleDeletePost()).Methods(http.MethodDelete)
	api.HandleFunc("/posts/{id}/delete", s.handleDeletePost()).Methods(http.MethodPost)
	api.HandleFunc("/flairs/{subreddit}", s.handleFlairs()).Methods(http.MethodGet)

	s.router.HandleFunc("/uploads/{name}", s.handleUpload()).Methods(http.MethodGet, http.MethodHead)
}

// Start serves until Shutdown. Request contexts derive from ctx without its
// cancellation.
func (s *Server) Start(ctx context.Context) error {
	port := s.cfg.Server.Port
	if port == "" {
		port = constants.DefaultServerPort
	}

	readTimeout := time.Duration(constants.DefaultServerReadTimeoutSec) * time.Second
	if s.cfg.Server.ReadTimeoutSec > 0 {
		readTimeout = time.Duration(s.cfg.Server.ReadTimeoutSec) * time.Second
	}

	s.server = &http.Server{
		Addr:         fmt.Sprintf(":%s", port),
		Handler:      s.router,
		ReadTimeout:  readTimeout,
		WriteTimeout: time.Duration(constants.DefaultServerWriteTimeoutSec) * time.Second,
		IdleTimeout:  time.Duration(constants.DefaultServerIdleTimeoutSec) * time.Second,
		BaseContext: func(net.Listener) context.Context {
			return context.WithoutCancel(ctx)
		},
	}

	s.logger.Infof("Starting server on port %s", port)
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := httputil.WriteAppError(w, err, tracing.GetRequestID(r.Context()))
	entry := service.LogWithContext(r.Context(), s.logger).WithFields(logrus.Fields{
		service.LogFieldURL:        r.URL.Path,
		service.LogFieldStatusCode: status,
		service.LogFieldErrorCode:  apperrors.GetCode(err),
	}).WithError(err)
	if status >= http.StatusInternalServerError {
		entry.Error("Request failed")
	} else {
		entry.Debug("Request rejected")
	}
}

func (s *Server) handleHealth() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()

		if err := s.health.Ping(ctx); err != nil {
			s.logger.WithError(err).Error("Health check failed")
			httputil.WriteJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unhealthy"})
			return
		}

		counts, err := s.health.CountPosts(ctx)
		if err != nil {
			s.logger.WithError(err).Error("Health check failed to count posts")
			httputil.WriteJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unhealthy"})
			return
		}
		postsPendingGauge(counts)

		body := map[string]interface{}{
			"status": "healthy",
			"posts":  counts,
			"scheduler": map[string]bool{
				"running":  s.scheduler != nil && s.scheduler.IsRunning(),
				"scanning": s.scheduler != nil && s.scheduler.IsScanning(),
			},
		}
		httputil.WriteJSON(w, http.StatusOK, body)
	}
}

func (s *Server) handleCreatePost() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := validation.ValidateHTTPRequestSize(r, s.maxUploadBytes); err != nil {
			s.writeError(w, r, err)
			return
		}
		r.Body = http.MaxBytesReader(w, r.Body, s.maxUploadBytes)

		req, stored, err := s.decodeEnqueue(r)
		if err != nil {
			s.writeError(w, r, err)
			return
		}

		id, err := s.posts.Enqueue(r.Context(), req)
		if err != nil {
			if stored != "" {
				s.discardUpload(stored)
			}
			s.writeError(w, r, err)
			return
		}

		httputil.WriteJSON(w, http.StatusCreated, map[string]int64{"id": id})
	}
}

// decodeEnqueue reads a JSON or form body. A multipart image_file part is
// saved and becomes the post content; its stored name is returned.
func (s *Server) decodeEnqueue(r *http.Request) (models.EnqueueRequest, string, error) {
	var req models.EnqueueRequest

	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	switch mediaType {
	case "multipart/form-data":
		if err := r.ParseMultipartForm(multipartMemory); err != nil {
			return req, "", invalidBody(err)
		}
	case "application/x-www-form-urlencoded":
		if err := r.ParseForm(); err != nil {
			return req, "", invalidBody(err)
		}
	default:
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			return req, "", invalidBody(err)
		}
		return req, "", nil
	}

	req = models.EnqueueRequest{
		Subreddit:       r.FormValue("subreddit"),
		Title:           r.FormValue("title"),
		PostType:        r.FormValue("post_type"),
		PostTime:        r.FormValue("post_time"),
		FlairID:         r.FormValue("flair_id"),
		FlairText:       r.FormValue("flair_text"),
		DestinationType: r.FormValue("destination_type"),
		Content:         r.FormValue("content"),
	}

	// The file only becomes the content of image posts; an empty type
	// defaults to image when a file is attached.
	if r.MultipartForm == nil || (req.PostType != "" && req.PostType != models.PostKindImage.String()) {
		return req, "", nil
	}
	file, header, err := r.FormFile(imageFormField)
	if errors.Is(err, http.ErrMissingFile) {
		return req, "", nil
	}
	if err != nil {
		return req, "", invalidBody(err)
	}
	defer file.Close()

	stored, err := s.images.SaveUpload(header.Filename, file)
	if err != nil {
		return req, "", apperrors.NewValidationError(imageFormField, err.Error())
	}
	req.Content = stored
	if req.PostType == "" {
		req.PostType = models.PostKindImage.String()
	}
	return req, stored, nil
}

func (s *Server) discardUpload(stored string) {
	path, err := security.ResolveWithinBase(s.images.UploadDir(), stored)
	if err != nil {
		return
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		s.logger.WithError(err).WithField(service.LogFieldFileName, stored).Warn("Failed to remove rejected upload")
	}
}

func invalidBody(err error) error {
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		return apperrors.Wrap(err, apperrors.ErrCodeInvalidInput, "request body too large").
			WithUserMessage(fmt.Sprintf("upload exceeds the %d MB limit", tooLarge.Limit/constants.BytesPerMegabyte))
	}
	if errors.Is(err, io.EOF) {
		return apperrors.New(apperrors.ErrCodeInvalidInput, "empty request body").
			WithUserMessage("Request body is required")
	}
	return apperrors.Wrap(err, apperrors.ErrCodeInvalidInput, "malformed request body").
		WithUserMessage("Malformed request body")
}

func (s *Server) handleListPosts() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		zone := s.posts.Zone()
		if tz := r.URL.Query().Get("tz"); tz != "" {
			loc, err := timeutil.LoadZone(tz)
			if err != nil {
				s.writeError(w, r, apperrors.NewValidationError("tz", err.Error()))
				return
			}
			zone = loc
		}

		posts, err := s.posts.ListForDisplay(r.Context(), zone)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		if posts == nil {
			posts = []models.DisplayPost{}
		}

		httputil.WriteJSON(w, http.StatusOK, map[string]interface{}{
			"timezone": zone.String(),
			"posts":    posts,
		})
	}
}

func (s *Server) handleDeletePost() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
		if err != nil {
			s.writeError(w, r, apperrors.NewValidationError("id", "post id must be an integer"))
			return
		}

		if err := s.posts.Delete(r.Context(), id); err != nil {
			s.writeError(w, r, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func (s *Server) handleFlairs() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		flairs, err := s.posts.GetFlairs(r.Context(), mux.Vars(r)["subreddit"])
		if err != nil {
			requestID := tracing.GetRequestID(r.Context())
			body := apperrors.ToHTTPResponse(err, requestID)
			if _, ok := apperrors.As(err); !ok {
				body.Error.Message = err.Error()
			}
			service.LogWithContext(r.Context(), s.logger).WithError(err).Debug("Flair lookup failed")
			httputil.WriteJSON(w, http.StatusBadRequest, body)
			return
		}
		if flairs == nil {
			flairs = []models.Flair{}
		}
		httputil.WriteJSON(w, http.StatusOK, map[string][]models.Flair{"flairs": flairs})
	}
}

func (s *Server) handleUpload() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		path, err := security.ResolveWithinBase(s.images.UploadDir(), mux.Vars(r)["name"])
		if err != nil {
			httputil.WriteError(w, http.StatusNotFound, "file not found")
			return
		}
		info, err := os.Stat(path)
		if err != nil || info.IsDir() {
			httputil.WriteError(w, http.StatusNotFound, "file not found")
			return
		}
		w.Header().Set("X-Content-Type-Options", "nosniff")
		http.ServeFile(w, r, path)
	}
}
