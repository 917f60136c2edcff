package http

import (
	"net/http"
	"time"

	"firebridge/internal/config"
	"firebridge/internal/handlers"
	"firebridge/internal/httpjson"
	"firebridge/internal/logger"
	"firebridge/internal/middleware"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/sirupsen/logrus"
)

type RouterDeps struct {
	Cfg      config.Config
	Log      logrus.FieldLogger
	Verifier middleware.TokenVerifier
	Objects  handlers.ObjectBackend

	// History and Claims may be nil: uploads are then not recorded and the admin
	// claims route is not mounted.
	History handlers.UploadHistory
	Claims  handlers.ClaimsSetter
}

func NewRouter(d RouterDeps) http.Handler {
	log := logger.Component(d.Log, "http")
	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	r.Use(chimw.Recoverer)
	r.Use(middleware.RequestLogger(log))
	r.Use(middleware.CORS(d.Cfg.AllowedOrigins, log))

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		httpjson.Write(w, http.StatusOK, map[string]any{"ok": true, "ts": time.Now().UTC().Format(time.RFC3339)})
	})

	objects := handlers.NewObjects(d.Objects, d.History, d.Log)
	uploads := handlers.NewUploads(d.Objects, d.History, d.Log)

	// Protected routes
	r.Group(func(pr chi.Router) {
		pr.Use(middleware.WithAuth(d.Verifier, log))

		pr.Get("/v1/me", func(w http.ResponseWriter, r *http.Request) {
			au, _ := middleware.GetAuthUser(r.Context())
			httpjson.Write(w, http.StatusOK, map[string]any{
				"uid":    au.UID,
				"email":  au.Email,
				"admin":  middleware.IsAdmin(au.Claims),
				"claims": au.Claims,
			})
		})

		pr.Put("/v1/objects/*", objects.Put)
		pr.Get("/v1/objects/*", objects.Get)
		pr.Delete("/v1/objects/*", objects.Delete)

		pr.Post("/v1/uploads/signed-url", uploads.CreateSignedUploadURL)
		pr.Post("/v1/uploads/signed-urls", uploads.CreateSignedUploadURLs)
		pr.Get("/v1/uploads", uploads.ListUploads)

		if d.Claims != nil {
			pr.Post("/v1/admin/claims", handlers.NewClaims(d.Claims, d.Log).Set)
		}
	})

	return r
}
