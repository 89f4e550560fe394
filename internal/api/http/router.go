package http

import (
	"github.com/gin-gonic/gin"

	"github.com/EternisAI/silo-c2/internal/agents"
	"github.com/EternisAI/silo-c2/internal/api/http/handler"
	"github.com/EternisAI/silo-c2/internal/api/http/middleware"
	"github.com/EternisAI/silo-c2/internal/results"
)

// Services may hold nil entries when storage is not configured; the affected
// endpoints then answer with a configuration error.
type Services struct {
	Agents  *agents.Service
	Results *results.Service
	// MaxResultBodySize caps /results bodies; zero selects the handler default.
	MaxResultBodySize int64
}

func SetupRoute(engine *gin.Engine, srvs *Services) {
	engine.Use(middleware.Recovery())
	engine.Use(middleware.RequestLogger())

	healthHandler := handler.NewHealthHandler()
	engine.GET("/health", healthHandler.Check)

	checkinHandler := handler.NewCheckinHandler(srvs.Agents)
	engine.POST("/checkin", checkinHandler.Checkin)

	resultsHandler := handler.NewResultsHandler(srvs.Results, srvs.MaxResultBodySize)
	engine.POST("/results", resultsHandler.StoreResult)
}
