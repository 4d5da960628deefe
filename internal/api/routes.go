package api

import (
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/irfndi/celebrum-arb-monitor/internal/api/handlers"
)

// RouterConfig holds everything the read API needs
type RouterConfig struct {
	ServiceName    string
	AllowedOrigins []string
	Opportunities  *handlers.OpportunityHandler
	Health         *handlers.HealthHandler
	Logger         *logrus.Logger
}

// NewRouter builds the gin engine with middleware and routes
func NewRouter(config RouterConfig) *gin.Engine {
	if config.Logger == nil {
		config.Logger = logrus.New()
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(otelgin.Middleware(config.ServiceName))
	router.Use(RequestID())
	router.Use(RequestLogger(config.Logger))
	router.Use(CORS(config.AllowedOrigins))

	SetupRoutes(router, config.Opportunities, config.Health)
	return router
}

// SetupRoutes registers the read-only endpoints
func SetupRoutes(router *gin.Engine, opportunities *handlers.OpportunityHandler, health *handlers.HealthHandler) {
	router.GET("/health", health.HealthCheck)

	v1 := router.Group("/api/v1")
	{
		opps := v1.Group("/opportunities")
		{
			opps.GET("", opportunities.GetOpportunities)
			opps.GET("/exchange-pairs", opportunities.GetExchangePairCounts)
			opps.GET("/:base/:counter/:first/:second", opportunities.GetOpportunity)
		}
	}
}
