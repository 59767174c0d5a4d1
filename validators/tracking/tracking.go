package trackingValidator

import (
	"strings"

	"tracker/middleware"
	"tracker/services"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/utils"
)

// bodyValidator parses the JSON body into a fresh T, runs its validate tags
// and stores it under localsKey.
func bodyValidator[T any](localsKey string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		reqData := new(T)
		if err := c.BodyParser(reqData); err != nil {
			return middleware.JsonResponse(c, fiber.StatusBadRequest, false, "Invalid request body!", nil)
		}

		if errors := validateStruct(reqData); len(errors) > 0 {
			return middleware.ValidationErrorResponse(c, errors)
		}

		c.Locals(localsKey, reqData)
		return c.Next()
	}
}

// TrackingID validates the :id route parameter. Route values alias the
// request buffer, so the stored id is a copy.
func TrackingID() fiber.Handler {
	return func(c *fiber.Ctx) error {
		id := strings.TrimSpace(utils.CopyString(c.Params("id")))
		if id == "" {
			return middleware.JsonResponse(c, fiber.StatusBadRequest, false, "Tracking ID is required!", nil)
		}
		if !isUUID(id) {
			return middleware.JsonResponse(c, fiber.StatusBadRequest, false, "Invalid Tracking ID!", nil)
		}
		c.Locals("trackingId", id)
		return c.Next()
	}
}

// UserID validates the :userId route parameter.
func UserID() fiber.Handler {
	return func(c *fiber.Ctx) error {
		userID := strings.TrimSpace(utils.CopyString(c.Params("userId")))
		if !isUUID(userID) {
			return middleware.ValidationErrorResponse(c, map[string]string{"userId": "userId must be a valid UUID!"})
		}
		c.Locals("userId", userID)
		return c.Next()
	}
}

func CreateContentTracking() fiber.Handler {
	return bodyValidator[services.CreateContentRequest]("validatedContentTracking")
}

// UpdateContentTracking requires at least one classification field.
func UpdateContentTracking() fiber.Handler {
	return func(c *fiber.Ctx) error {
		reqData := new(services.UpdateContentRequest)
		if err := c.BodyParser(reqData); err != nil {
			return middleware.JsonResponse(c, fiber.StatusBadRequest, false, "Invalid request body!", nil)
		}

		errors := make(map[string]string)
		if reqData.ContentType == nil && reqData.ContentMime == nil {
			errors["body"] = "contentType or contentMime is required!"
		}
		if reqData.ContentType != nil && strings.TrimSpace(*reqData.ContentType) == "" {
			errors["contentType"] = "contentType must not be blank!"
		}
		if reqData.ContentMime != nil && strings.TrimSpace(*reqData.ContentMime) == "" {
			errors["contentMime"] = "contentMime must not be blank!"
		}
		if len(errors) > 0 {
			return middleware.ValidationErrorResponse(c, errors)
		}

		c.Locals("validatedContentUpdate", reqData)
		return c.Next()
	}
}

// Search only checks that the body is a JSON object; key and value checks
// belong to the query engine.
func Search() fiber.Handler {
	return func(c *fiber.Ctx) error {
		reqData := new(services.SearchRequest)
		if len(c.Body()) > 0 {
			if err := c.BodyParser(reqData); err != nil {
				return middleware.JsonResponse(c, fiber.StatusBadRequest, false, "Invalid request body!", nil)
			}
		}
		c.Locals("validatedSearch", reqData)
		return c.Next()
	}
}

func ContentStatus() fiber.Handler {
	return bodyValidator[services.ContentStatusRequest]("validatedContentStatus")
}

func CourseStatus() fiber.Handler {
	return bodyValidator[services.CourseStatusRequest]("validatedCourseStatus")
}

func UnitStatus() fiber.Handler {
	return bodyValidator[services.UnitStatusRequest]("validatedUnitStatus")
}

func CreateAssessmentTracking() fiber.Handler {
	return bodyValidator[services.CreateAssessmentRequest]("validatedAssessmentTracking")
}

func AssessmentStatus() fiber.Handler {
	return bodyValidator[services.AssessmentStatusRequest]("validatedAssessmentStatus")
}
