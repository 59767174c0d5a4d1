package trackingRoutes

import (
	controllers "tracker/controllers/tracking"
	"tracker/middleware"
	validators "tracker/validators/tracking"

	"github.com/gofiber/fiber/v2"
)

// SetupTrackingRoutes sets up the content and assessment tracking routes.
// Every route requires the tenantid header.
func SetupTrackingRoutes(app *fiber.App, content *controllers.ContentController, assessment *controllers.AssessmentController) {
	trackingGroup := app.Group("/v1/tracking", middleware.TenantMiddleware)

	contentGroup := trackingGroup.Group("/content")
	contentGroup.Post("/create", validators.CreateContentTracking(), content.Create)
	contentGroup.Get("/read/:id", validators.TrackingID(), content.Get)
	contentGroup.Patch("/update/:id", validators.TrackingID(), validators.UpdateContentTracking(), content.Update)
	contentGroup.Delete("/delete/:id", validators.TrackingID(), content.Delete)
	contentGroup.Post("/search", validators.Search(), content.Search)

	// Progress
	contentGroup.Post("/status/search", validators.ContentStatus(), content.ContentStatus)
	contentGroup.Post("/course/status", validators.CourseStatus(), content.CourseStatus)
	contentGroup.Post("/unit/status", validators.UnitStatus(), content.UnitStatus)
	contentGroup.Get("/course/in-progress/:userId", validators.UserID(), content.CourseInProgress)

	assessmentGroup := trackingGroup.Group("/assessment")
	assessmentGroup.Post("/create", validators.CreateAssessmentTracking(), assessment.Create)
	assessmentGroup.Get("/read/:id", validators.TrackingID(), assessment.Get)
	assessmentGroup.Delete("/delete/:id", validators.TrackingID(), assessment.Delete)
	assessmentGroup.Post("/search", validators.Search(), assessment.Search)
	assessmentGroup.Post("/status/search", validators.AssessmentStatus(), assessment.Status)
}

// SetupHealthRoutes exposes liveness for load balancers.
func SetupHealthRoutes(app *fiber.App) {
	app.Get("/health", func(c *fiber.Ctx) error {
		return middleware.JsonResponse(c, fiber.StatusOK, true, "OK", nil)
	})
}
