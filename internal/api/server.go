package api

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"regexp"
	"strings"
	"time"

	"contentflow/internal/config"
	"contentflow/internal/models"
	"contentflow/internal/search"
	"contentflow/internal/util"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

const (
	userHeader                = "X-User-ID"
	defaultPollInterval       = 500 * time.Millisecond
	maxUploadBytes      int64 = 32 << 20
)

type DocumentStore interface {
	ListByUser(ctx context.Context, userID string, limit int) ([]models.Document, error)
	GetByUUID(ctx context.Context, userID, id string) (models.Document, error)
	Delete(ctx context.Context, id int64) error
}

// ChunkCounter reports how many committed chunks a document has.
type ChunkCounter interface {
	CountByDocument(ctx context.Context, documentID int64) (int, error)
}

type Searcher interface {
	Search(ctx context.Context, userID string, req search.Request) ([]search.Result, error)
	RelatedContext(ctx context.Context, userID, query, collectionID string) ([]search.Result, error)
}

// ObjectStore holds uploaded documents. Put returns an s3:// reference.
type ObjectStore interface {
	Put(ctx context.Context, userID, filename string, data []byte, contentType string) (string, error)
	Delete(ctx context.Context, ref string) error
}

type Pinger interface {
	Ping(ctx context.Context) error
}

// Deps are the server's collaborators. Chunks, Objects and DB may be nil.
type Deps struct {
	Workflows Workflows
	Documents DocumentStore
	Chunks    ChunkCounter
	Search    Searcher
	Objects   ObjectStore
	DB        Pinger
	Logger    *slog.Logger
}

type Server struct {
	cfg  config.Config
	deps Deps
	log  *slog.Logger

	pollInterval time.Duration
	newID        func() string
}

func NewServer(cfg config.Config, deps Deps) *Server {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		cfg:          cfg,
		deps:         deps,
		log:          logger,
		pollInterval: defaultPollInterval,
		newID:        newUUID,
	}
}

func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   s.cfg.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", userHeader},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Get("/healthz", s.handleHealth)

	r.Route("/v1", func(v1 chi.Router) {
		v1.Use(requireUser)

		// Progress streams stay open for the whole run and skip the timeout.
		v1.Post("/documents/batch", s.handleBatch)
		v1.Post("/imports/workspace", s.handleWorkspaceImport)

		v1.Group(func(bounded chi.Router) {
			bounded.Use(middleware.Timeout(60 * time.Second))
			bounded.Post("/documents", s.handleIngest)
			bounded.Post("/documents/upload", s.handleUpload)
			bounded.Get("/documents", s.handleListDocuments)
			bounded.Get("/documents/{uuid}", s.handleGetDocument)
			bounded.Delete("/documents/{uuid}", s.handleDeleteDocument)
			bounded.Get("/runs/{workflowID}", s.handleRunStatus)
			bounded.Post("/search", s.handleSearch)
			bounded.Post("/context", s.handleContext)
		})
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		s.writeErr(w, http.StatusNotFound, fmt.Errorf("no route for %s", r.URL.Path))
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		s.writeErr(w, http.StatusMethodNotAllowed, fmt.Errorf("%s not allowed on %s", r.Method, r.URL.Path))
	})
	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if s.deps.DB != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := s.deps.DB.Ping(ctx); err != nil {
			s.writeErr(w, http.StatusServiceUnavailable, err)
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

type userKey struct{}

// requireUser takes the caller identity from X-User-ID. Authentication happens
// in front of this service.
func requireUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user := strings.TrimSpace(r.Header.Get(userHeader))
		if user == "" {
			writeJSON(w, http.StatusUnauthorized, map[string]any{"error": toAPIError(http.StatusUnauthorized, nil)})
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), userKey{}, user)))
	})
}

func userFrom(ctx context.Context) string {
	u, _ := ctx.Value(userKey{}).(string)
	return u
}

var plainID = regexp.MustCompile(`^[A-Za-z0-9_.]{1,64}$`)

// sanitizeID keeps simple user ids readable and hashes anything else, so a
// user id never contains the "-" separating workflow id parts.
func sanitizeID(s string) string {
	if plainID.MatchString(s) {
		return s
	}
	return "u" + util.SHA256Hex([]byte(s))[:24]
}

// workflowID scopes workflow ids to a user so run lookups can be checked
// against the caller.
func workflowID(kind, userID, id string) string {
	return kind + "-" + sanitizeID(userID) + "-" + id
}

func ownsWorkflow(userID, id string) bool {
	for _, kind := range []string{"ingest", "batch", "import"} {
		if strings.HasPrefix(id, kind+"-"+sanitizeID(userID)+"-") {
			return true
		}
	}
	return false
}
