package routers

import (
	"time"

	controllers "tracker/controllers/tracking"
	"tracker/middleware"
	"tracker/routers/trackingRoutes"
	"tracker/services"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"
)

// AppOptions holds what NewApp wires into the router.
type AppOptions struct {
	Content        *services.ContentTrackingService
	Assessment     *services.AssessmentTrackingService
	RequestTimeout time.Duration
	AccessLog      bool
}

// NewApp builds the fiber application with the standard middleware chain and
// every tracking route.
func NewApp(opts AppOptions) *fiber.App {
	app := fiber.New(fiber.Config{
		AppName:      "tracker",
		ErrorHandler: middleware.FiberErrorHandler,
	})

	app.Use(recover.New())
	app.Use(requestid.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowMethods: "GET,POST,PATCH,DELETE",
		AllowHeaders: "Content-Type,tenantid,X-Request-ID",
	}))

	// Enable the built-in logger middleware to log all requests
	if opts.AccessLog {
		app.Use(logger.New(logger.Config{
			Format: "[${time}] ${locals:requestid} ${ip} ${method} ${path} ${status} ${latency}\n",
		}))
	}
	app.Use(middleware.RequestTimeout(opts.RequestTimeout))

	trackingRoutes.SetupHealthRoutes(app)
	trackingRoutes.SetupTrackingRoutes(app,
		controllers.NewContentController(opts.Content),
		controllers.NewAssessmentController(opts.Assessment),
	)
	return app
}
