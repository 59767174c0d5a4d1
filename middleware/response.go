package middleware

import (
	"errors"
	"log"

	"tracker/apperrors"

	"github.com/gofiber/fiber/v2"
)

func JsonResponse(c *fiber.Ctx, statusCode int, status bool, message string, data interface{}) error {
	return c.Status(statusCode).JSON(fiber.Map{
		"status":  status,
		"message": message,
		"data":    data,
	})
}

func ValidationErrorResponse(c *fiber.Ctx, errors map[string]string) error {
	return JsonResponse(c, fiber.StatusUnprocessableEntity, false, "Validation failed!", errors)
}

// StatusFor maps an error category to its HTTP status.
func StatusFor(category apperrors.Category) int {
	switch category {
	case apperrors.CategoryValidation:
		return fiber.StatusBadRequest
	case apperrors.CategoryNotFound:
		return fiber.StatusNotFound
	case apperrors.CategoryConflict:
		return fiber.StatusConflict
	case apperrors.CategoryExternal:
		return fiber.StatusBadGateway
	default:
		return fiber.StatusInternalServerError
	}
}

// ErrorResponse renders err using its category. Internal errors are logged
// with their cause and answered with a generic message.
func ErrorResponse(c *fiber.Ctx, err error) error {
	ae := apperrors.Classify(err)
	status := StatusFor(ae.Category)

	if ae.Category == apperrors.CategoryInternal {
		log.Printf("[http] %s %s failed: %v", c.Method(), c.Path(), err)
		return JsonResponse(c, status, false, "Something went wrong!", fiber.Map{"code": ae.Code})
	}

	data := fiber.Map{"code": ae.Code}
	for k, v := range ae.Details {
		data[k] = v
	}
	return JsonResponse(c, status, false, ae.Message, data)
}

// FiberErrorHandler answers errors that escape handlers, including fiber's
// own routing errors, in the standard envelope.
func FiberErrorHandler(c *fiber.Ctx, err error) error {
	var fe *fiber.Error
	if errors.As(err, &fe) {
		return JsonResponse(c, fe.Code, false, fe.Message, nil)
	}
	return ErrorResponse(c, err)
}
