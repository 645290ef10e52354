package router

import (
	"net/http"

	"github.com/cuongbtq/zimage-orchestrator/internal/api/handler"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// SetupRouter configures and returns the Gin router with all routes
func SetupRouter(deps *handler.Dependencies) *gin.Engine {
	r := gin.New()

	r.Use(gin.Recovery())
	r.Use(LoggerMiddleware(deps.Logger))
	r.Use(MetricsMiddleware())
	r.Use(CORSMiddleware())

	r.GET("/health", healthHandler(deps))
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	batchHandler := handler.NewBatchHandler(deps)

	v1 := r.Group("/api/v1")
	{
		batches := v1.Group("/batches")
		{
			// POST /api/v1/batches - Submit a batch of generation jobs
			batches.POST("", batchHandler.CreateBatch)

			// GET /api/v1/batches - List batches with filtering and pagination
			batches.GET("", batchHandler.ListBatches)

			// GET /api/v1/batches/:batch_id - Get batch details and results
			batches.GET("/:batch_id", batchHandler.GetBatch)
		}
	}

	return r
}

func healthHandler(deps *handler.Dependencies) gin.HandlerFunc {
	return func(c *gin.Context) {
		if deps.HealthCheck != nil {
			if err := deps.HealthCheck(c.Request.Context()); err != nil {
				c.JSON(http.StatusServiceUnavailable, gin.H{
					"status":  "unhealthy",
					"service": deps.ServiceName,
					"error":   err.Error(),
				})
				return
			}
		}

		c.JSON(http.StatusOK, gin.H{
			"status":  "healthy",
			"service": deps.ServiceName,
		})
	}
}
