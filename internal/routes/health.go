package routes

import (
	"context"
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// RegisterHealthRoutes adds the liveness probe and the Prometheus scrape endpoint.
func RegisterHealthRoutes(app *fiber.App, d Deps) {
	app.Get("/healthz", func(c *fiber.Ctx) error {
		dbStatus := "ok"
		redisStatus := "ok"
		if d.DB == nil {
			dbStatus = "memory"
		}
		if d.Cache == nil {
			redisStatus = "disabled"
		}

		ctx, cancel := context.WithTimeout(c.UserContext(), 2*time.Second)
		defer cancel()
		if d.DB != nil {
			if err := d.DB.Ping(ctx); err != nil {
				dbStatus = err.Error()
			}
		}
		if d.Cache != nil {
			if err := d.Cache.Ping(ctx).Err(); err != nil {
				redisStatus = err.Error()
			}
		}
		status := http.StatusOK
		if !healthy(dbStatus) || !healthy(redisStatus) {
			status = http.StatusServiceUnavailable
		}
		return c.Status(status).JSON(fiber.Map{
			"status":    fiber.Map{"postgres": dbStatus, "redis": redisStatus},
			"timestamp": time.Now().UTC().Format(time.RFC3339Nano),
		})
	})

	app.Get("/metrics", adaptor.HTTPHandler(promhttp.HandlerFor(d.Registry, promhttp.HandlerOpts{})))
}

func healthy(status string) bool {
	switch status {
	case "ok", "memory", "disabled":
		return true
	}
	return false
}
