package handler

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/bfc-vpn/mfa-core/internal/config"
	"github.com/bfc-vpn/mfa-core/internal/middleware"
)

func NewRouter(
	cfg *config.Config,
	healthHandler *HealthHandler,
	mfaHandler *MFAHandler,
) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()

	// Global middleware (order matters!)
	r.Use(middleware.RequestID())
	r.Use(middleware.Logger())
	r.Use(middleware.Recovery())
	r.Use(middleware.SecurityHeaders(cfg.Server.HTTPS))
	r.Use(middleware.Metrics())
	r.Use(middleware.CORS(cfg.CORS))

	// Health endpoints (no auth required)
	r.GET("/health", healthHandler.Shallow)
	r.GET("/health/ready", healthHandler.Ready)

	// Prometheus metrics endpoint (restrict to internal IPs in production)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// API v1 routes. Every MFA endpoint is service-to-service only:
	// the auth service calls in with a signed token and vouches for
	// the user id in the path.
	v1 := r.Group("/api/v1")
	{
		userMFA := v1.Group("/mfa/:user_id")
		userMFA.Use(middleware.InternalOnly(cfg.Security.InternalServiceSecret))
		{
			userMFA.POST("/enroll", mfaHandler.Enroll)
			userMFA.POST("/confirm", mfaHandler.Confirm)
			userMFA.POST("/verify", mfaHandler.Verify)
			userMFA.GET("/status", mfaHandler.Status)
			userMFA.DELETE("", mfaHandler.Disable)

			userMFA.POST("/backup-codes/regenerate", mfaHandler.RegenerateBackupCodes)
			userMFA.GET("/backup-codes", mfaHandler.BackupCodeStatus)
		}
	}

	return r
}
