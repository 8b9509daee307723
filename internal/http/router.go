// Package httpapi wires the HTTP transport (Gin) to application services,
// middleware, and route handlers. It centralizes cross-cutting concerns such
// as tracing, correlation IDs, caller identity, logging/redaction, panic
// recovery, compression, metrics, CORS, security headers, idempotency, and
// rate limiting.
//
// Design goals:
//   - Put observability first (OTel + Prometheus)
//   - Identity is resolved before anything that keys on the user
//   - All dependencies injected; the recommendation cache is optional
package httpapi

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"gorm.io/gorm"

	"github.com/tbourn/go-mealmate-backend/docs"
	"github.com/tbourn/go-mealmate-backend/internal/config"
	"github.com/tbourn/go-mealmate-backend/internal/domain"
	"github.com/tbourn/go-mealmate-backend/internal/http/handlers"
	"github.com/tbourn/go-mealmate-backend/internal/http/middleware"
	"github.com/tbourn/go-mealmate-backend/internal/repo"
	"github.com/tbourn/go-mealmate-backend/internal/services"
)

// postRepoShim adapts the repository free functions to services.PostRepo.
type postRepoShim struct{}

func (postRepoShim) CreatePost(ctx context.Context, db *gorm.DB, p *domain.MeetupPost) error {
	return repo.CreatePost(ctx, db, p)
}

func (postRepoShim) GetPost(ctx context.Context, db *gorm.DB, id string) (*domain.MeetupPost, error) {
	return repo.GetPost(ctx, db, id)
}

func (postRepoShim) AddParticipant(ctx context.Context, db *gorm.DB, postID, userID string) error {
	return repo.AddParticipant(ctx, db, postID, userID)
}

func (postRepoShim) ListParticipants(ctx context.Context, db *gorm.DB, postID string) ([]domain.Participant, error) {
	return repo.ListParticipants(ctx, db, postID)
}

func (postRepoShim) CountOpenPosts(ctx context.Context, db *gorm.DB) (int64, error) {
	return repo.CountOpenPosts(ctx, db)
}

func (postRepoShim) ListOpenPostsPage(ctx context.Context, db *gorm.DB, offset, limit int) ([]domain.MeetupPost, error) {
	return repo.ListOpenPostsPage(ctx, db, offset, limit)
}

func (postRepoShim) FilterOpenPosts(ctx context.Context, db *gorm.DB, f repo.PostFilter, limit int) ([]domain.MeetupPost, error) {
	return repo.FilterOpenPosts(ctx, db, f, limit)
}

// RegisterRoutes attaches all middleware and HTTP endpoints to the given Gin
// engine and mounts the public API under cfg.APIBasePath. cache may be nil,
// in which case recommendations are always recomputed.
//
// Middleware order matters:
//  1. OpenTelemetry: trace everything
//  2. RequestID: generate/propagate correlation id
//  3. Auth: resolve the caller before logging and rate limiting
//  4. RedactingLogger: request-scoped logger with PII scrubbing
//  5. Recovery: capture panics after logger
//  6. Body size limiter, gzip
//  7. Metrics
//  8. Idempotency validator (before rate limiter to allow bypass on replay)
//  9. Rate limiter (per user/IP plus tighter meetup action tiers, bypass on replay)
//  10. CORS and Security headers (no-store on per-user routes)
func RegisterRoutes(r *gin.Engine, db *gorm.DB, cfg config.Config, cache services.RankCache) {
	r.HandleMethodNotAllowed = true

	r.Use(otelgin.Middleware(cfg.OTEL.ServiceName))
	r.Use(middleware.RequestID())
	r.Use(middleware.Auth(middleware.AuthOptions{
		Secret:      []byte(cfg.Auth.JWTSecret),
		AllowHeader: cfg.Auth.AllowUserHeader,
		Required:    cfg.Auth.Required,
		Public:      []string{"/health", "/metrics", "/swagger/"},
	}))
	r.Use(middleware.RedactingLogger(middleware.RedactOptions{
		MaskHeaders: []string{"X-API-Key"},
		QuietRoutes: []string{"/health", "/metrics"},
	}))
	r.Use(middleware.Recovery())
	r.Use(limitBody(1 << 20))
	r.Use(gzip.Gzip(gzip.DefaultCompression, gzip.WithExcludedPaths([]string{"/metrics"})))

	r.Use(middleware.Metrics())
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	r.Use(middleware.IdempotencyValidator(
		middleware.IdempotencyOptions{MaxLen: 200, Routes: middleware.JoinRequestRoutes()},
		idempotencyLookup(db),
	))

	rl := middleware.NewRateLimiter(middleware.RateLimitOptions{
		Default: middleware.RateBudget{RPS: cfg.Rate.RPS, Burst: cfg.Rate.Burst},
		Tiers: middleware.MeetupActionTiers(middleware.RateBudget{
			RPS:   cfg.Rate.ActionRPS,
			Burst: cfg.Rate.ActionBurst,
		}),
		Key: middleware.KeyByUserOrIP(),
	})
	r.Use(rl.Handler())

	r.Use(corsMiddleware(cfg.CORS.AllowedOrigins)...)
	r.Use(middleware.SecurityHeaders(middleware.SecurityOptions{
		EnableHSTS:    cfg.Security.EnableHSTS,
		HSTSMaxAge:    cfg.Security.HSTSMaxAge,
		EnablePolicy:  true,
		PrivateRoutes: middleware.PrivateMeetupRoutes(),
	}))

	r.NoRoute(func(c *gin.Context) {
		handlers.Fail(c, http.StatusNotFound, handlers.ErrCodeNotFound, "route not found")
	})
	r.NoMethod(func(c *gin.Context) {
		handlers.Fail(c, http.StatusMethodNotAllowed, handlers.ErrCodeMethodNotAllowed, "method not allowed")
	})

	r.GET("/health", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "ok"}) })

	if cfg.SwaggerEnabled {
		docs.SwaggerInfo.BasePath = cfg.APIBasePath
		r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	admission := services.NewAdmissionService(db)
	admission.MaxRetries = cfg.Admission.MaxRetries
	admission.StatusRetries = cfg.Admission.StatusRetries
	admission.RetryBase = cfg.Admission.RetryBase

	h := handlers.New(
		services.NewPostService(db, postRepoShim{}),
		admission,
		services.NewProfileService(db, cache),
		services.NewRecommendationService(db, cache, cfg.Recommend.Limit, cfg.Recommend.CacheTTL),
		services.NewInterestService(db),
	)
	if cfg.IdempotencyTTL > 0 {
		h.IdempotencyTTL = cfg.IdempotencyTTL
	}

	api := groupWithPrefix(r, cfg.APIBasePath)
	{
		// Profile and matching
		api.PUT("/profile", h.PutProfile)
		api.GET("/profile", h.GetProfile)
		api.GET("/recommendations", h.ListRecommendations)
		api.POST("/interests", h.RecordInterest)
		api.GET("/matches", h.ListMatches)

		// Meetup posts
		api.POST("/posts", h.CreatePost)
		api.GET("/posts", h.ListPosts)
		api.GET("/posts/:id", h.GetPost)
		api.GET("/posts/:id/participants", h.ListParticipants)
		api.POST("/posts/:id/requests", h.SubmitJoinRequest)
		api.GET("/search/posts", h.SearchPosts)

		// Join requests
		api.GET("/requests/received", h.ListReceivedRequests)
		api.GET("/requests/sent", h.ListSentRequests)
		api.POST("/requests/:id/accept", h.AcceptJoinRequest)
		api.POST("/requests/:id/reject", h.RejectJoinRequest)
		api.DELETE("/requests/:id", h.CancelJoinRequest)
	}
}

// idempotencyLookup resolves a live key to the join request it created.
// Lookup errors count as a miss so the request is processed normally.
func idempotencyLookup(db *gorm.DB) middleware.IdempotencyLookup {
	return func(ctx context.Context, userID, postID, key string, now time.Time) (string, error) {
		rec, err := repo.GetIdempotency(ctx, db, userID, postID, key, now.UTC())
		if err != nil || rec == nil {
			return "", nil
		}
		return rec.RequestID, nil
	}
}

// corsMiddleware allows every origin when none are configured, and echoes
// allowlisted origins otherwise.
func corsMiddleware(origins []string) []gin.HandlerFunc {
	base := cors.Config{
		AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization", "X-User-ID", middleware.HeaderIdempotencyKey},
		ExposeHeaders:    []string{"X-Request-ID", "Content-Length", "ETag", "Retry-After", "Idempotency-Replayed"},
		AllowCredentials: false,
		MaxAge:           12 * time.Hour,
	}

	if len(origins) == 0 {
		base.AllowAllOrigins = true
		return []gin.HandlerFunc{
			// ACAO: * even without an Origin header, for health checks.
			func(c *gin.Context) {
				c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
				c.Next()
			},
			cors.New(base),
		}
	}

	allowed := make(map[string]struct{}, len(origins))
	for _, o := range origins {
		allowed[o] = struct{}{}
	}
	base.AllowOrigins = origins
	return []gin.HandlerFunc{
		func(c *gin.Context) {
			if origin := c.GetHeader("Origin"); origin != "" {
				if _, ok := allowed[origin]; ok {
					h := c.Writer.Header()
					h.Set("Access-Control-Allow-Origin", origin)
					h.Add("Vary", "Origin")
				}
			}
			c.Next()
		},
		cors.New(base),
	}
}

// limitBody caps the request body size for all endpoints to maxBytes using
// http.MaxBytesReader. Requests exceeding the cap fail on read.
func limitBody(maxBytes int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBytes)
		c.Next()
	}
}

// groupWithPrefix mounts a group at prefix, treating "/" (or empty) as root.
func groupWithPrefix(r *gin.Engine, prefix string) *gin.RouterGroup {
	if prefix == "" || prefix == "/" {
		return r.Group("")
	}
	return r.Group(prefix)
}
