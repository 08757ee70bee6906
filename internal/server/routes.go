package server

import (
	"github.com/gofiber/fiber/v2"

	"contentscore/internal/core/batch"
	"contentscore/internal/core/job"
	"contentscore/internal/health"
	"contentscore/internal/platform/redis"
)

type Dependencies struct {
	Job   *job.JobService
	Batch *batch.Service
	Redis *redis.Service
}

func RegisterRoutes(app *fiber.App, d Dependencies) *health.HealthHandler {
	healthHandler := health.NewHealthHandler()
	if d.Redis != nil {
		healthHandler.Register("redis", d.Redis.HealthCheck)
	}
	app.Get("/v1/health", health.HealthLimiter(), healthHandler.HandleHealth)

	api := app.Group("/v1")

	runs := batch.NewHandler(d.Batch, d.Job)
	api.Get("/score", runs.HandleScore)
	api.Post("/runs", runs.HandleCreateRun)
	api.Get("/runs/:runId", runs.HandleGetRun)

	return healthHandler
}
