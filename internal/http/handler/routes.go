package handler

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"shareapi/internal/database"
	"shareapi/internal/service"
)

// RegisterRoutes attaches HTTP routes to the provided Fiber app.
// gatherer may be nil, in which case /metrics is not served.
func RegisterRoutes(app *fiber.App, db database.Pinger, svc service.ShareService, gatherer prometheus.Gatherer, log logrus.FieldLogger) {
	log = log.WithField("component", "gateway")

	app.Get("/health", HealthCheck(db))
	app.Get("/healthz", LivenessProbe())
	if gatherer != nil {
		app.Get("/metrics", adaptor.HTTPHandler(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))
	}

	app.Post("/upload", UploadFile(svc, log))
	app.Get("/file/:id/info", GetFileInfo(svc, log))
	app.Delete("/file/:id", DeleteFile(svc, log))
	app.Get("/download/:id", DownloadFile(svc, log))
	app.Get("/stats", GetStats(svc, log))
	app.Get("/files", ListFiles(svc, log))
}
