package http

import (
	"context"
	"log/slog"
	"time"

	"github.com/calder-labs/webbase/internal/config"
	"github.com/calder-labs/webbase/internal/http/handlers"
	"github.com/calder-labs/webbase/internal/http/middlewares"
	"github.com/calder-labs/webbase/internal/observability"
	"github.com/calder-labs/webbase/internal/ratelimit"
	"github.com/calder-labs/webbase/internal/repo/postgres"
	"github.com/calder-labs/webbase/internal/session"
	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
)

type RouterDeps struct {
	Cfg          config.Config
	Log          *slog.Logger
	Pool         *pgxpool.Pool
	Sessions     *session.Manager
	Prom         *observability.Prom
	PromRegistry *prometheus.Registry
	LoginLimiter *ratelimit.Limiter
}

func NewRouter(deps RouterDeps) *gin.Engine {
	if deps.Cfg.Env != "dev" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()

	r.Use(gin.Recovery())
	r.Use(middlewares.RequestID())
	r.Use(otelgin.Middleware("webbase"))
	r.Use(middlewares.RequestLogger(deps.Log))
	r.Use(middlewares.SecurityHeaders())
	r.Use(middlewares.CORSMiddleware(deps.Cfg.AllowedOrigins))

	if deps.Prom != nil {
		r.Use(deps.Prom.Middleware())
	}

	if deps.Cfg.TemplatesGlob != "" {
		r.LoadHTMLGlob(deps.Cfg.TemplatesGlob)
	}

	// wire up repositories
	usersRepo := postgres.NewUsersRepo(deps.Pool, deps.Prom)
	categoriesRepo := postgres.NewCategoriesRepo(deps.Pool, deps.Prom)
	itemsRepo := postgres.NewItemsRepo(deps.Pool, deps.Prom)

	// wire up handlers
	authHandler := handlers.NewAuthHandler(usersRepo, deps.Sessions, deps.Cfg, deps.Prom)
	usersHandler := handlers.NewUsersHandler(usersRepo, deps.Cfg)
	categoriesHandler := handlers.NewCategoriesHandler(categoriesRepo, itemsRepo, deps.Cfg)
	itemsHandler := handlers.NewItemsHandler(itemsRepo, deps.Cfg)
	webHandler := handlers.NewWebHandler(usersRepo, categoriesRepo, deps.Cfg)

	authmw := middlewares.NewAuthMiddleware(
		deps.Sessions,
		usersRepo,
		deps.Cfg.SessionCookieName,
		deps.Cfg.CookieSecure(),
	)

	// health + metrics
	ping := func(ctx context.Context) error {
		if deps.Pool == nil {
			return nil
		}

		pctx, cancel := context.WithTimeout(ctx, 1*time.Second)
		defer cancel()

		return deps.Pool.Ping(pctx)
	}

	health := handlers.NewHealthHandler(ping)
	r.GET("/healthz", health.Healthz)
	r.GET("/readyz", health.Readyz)

	if deps.PromRegistry != nil {
		r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(deps.PromRegistry, promhttp.HandlerOpts{})))
	}

	// login endpoints sit outside the auth groups and share the rate limit
	login := r.Group("/")
	if deps.LoginLimiter != nil {
		login.Use(middlewares.LoginRateLimiter(deps.LoginLimiter))
	}
	login.POST("/login", authHandler.LoginForm)
	login.POST("/api/login", middlewares.RequireJSON(), authHandler.LoginJSON)

	// logout also sits outside the auth groups: a client whose session is
	// already gone still gets a clean no-op instead of a 401.
	r.POST("/logout", authHandler.Logout(handlers.LogoutHTMLResponse))
	r.POST("/api/logout", authHandler.Logout(handlers.LogoutAPIResponse))

	// HTML surface
	public := r.Group("/", authmw.OptionalAuth())
	public.GET("/landing", webHandler.Landing)
	public.GET("/login", webHandler.LoginPage)

	site := r.Group("/", authmw.RequireAuth(middlewares.SurfaceHTML), middlewares.VerifyCSRF(middlewares.SurfaceHTML))
	site.GET("/", webHandler.Index)
	site.GET("/profile", webHandler.Profile)
	site.POST("/profile", webHandler.ProfileUpdate)

	// JSON API
	api := r.Group("/api",
		middlewares.MaxBodyBytes(1<<20),
		middlewares.RequireJSON(),
		authmw.RequireAuth(middlewares.SurfaceAPI),
		middlewares.VerifyCSRF(middlewares.SurfaceAPI),
	)

	api.GET("/hello", func(ctx *gin.Context) {
		id, _ := middlewares.IdentityFromContext(ctx)
		ctx.JSON(200, gin.H{"message": "Hello, " + id.Username + "!"})
	})

	api.GET("/users/me", usersHandler.Me)
	api.PUT("/users/me", usersHandler.UpdateEmail)
	api.PUT("/users/me/password", usersHandler.ChangePassword)
	api.POST("/users", usersHandler.Create)

	api.GET("/categories", categoriesHandler.List)
	api.POST("/categories", categoriesHandler.Create)
	api.GET("/categories/:id/items", categoriesHandler.ListItems)
	api.DELETE("/categories/:id", categoriesHandler.Delete)

	api.GET("/items", itemsHandler.List)
	api.GET("/items/:id", itemsHandler.Get)
	api.POST("/items", itemsHandler.Create)
	api.DELETE("/items/:id", itemsHandler.Delete)

	return r
}
