package controllers

import (
	"tracker/middleware"
	"tracker/services"

	"github.com/gofiber/fiber/v2"
)

// AssessmentController serves the assessment tracking routes.
type AssessmentController struct {
	Service *services.AssessmentTrackingService
}

func NewAssessmentController(svc *services.AssessmentTrackingService) *AssessmentController {
	return &AssessmentController{Service: svc}
}

func (h *AssessmentController) Create(c *fiber.Ctx) error {
	reqData, ok := c.Locals("validatedAssessmentTracking").(*services.CreateAssessmentRequest)
	if !ok {
		return middleware.JsonResponse(c, fiber.StatusBadRequest, false, "Invalid request data!", nil)
	}

	rec, err := h.Service.Create(c.UserContext(), *reqData, middleware.TenantID(c))
	if err != nil {
		return middleware.ErrorResponse(c, err)
	}
	return middleware.JsonResponse(c, fiber.StatusCreated, true, "Assessment tracking created successfully!", rec)
}

func (h *AssessmentController) Get(c *fiber.Ctx) error {
	id, _ := c.Locals("trackingId").(string)

	rec, err := h.Service.Get(c.UserContext(), id, middleware.TenantID(c))
	if err != nil {
		return middleware.ErrorResponse(c, err)
	}
	return middleware.JsonResponse(c, fiber.StatusOK, true, "Assessment tracking fetched successfully!", rec)
}

func (h *AssessmentController) Search(c *fiber.Ctx) error {
	reqData, ok := c.Locals("validatedSearch").(*services.SearchRequest)
	if !ok {
		return middleware.JsonResponse(c, fiber.StatusBadRequest, false, "Invalid request data!", nil)
	}

	recs, err := h.Service.Search(c.UserContext(), *reqData, middleware.TenantID(c))
	if err != nil {
		return middleware.ErrorResponse(c, err)
	}
	return middleware.JsonResponse(c, fiber.StatusOK, true, "Assessment tracking fetched successfully!", fiber.Map{
		"count": len(recs),
		"data":  recs,
	})
}

func (h *AssessmentController) Delete(c *fiber.Ctx) error {
	id, _ := c.Locals("trackingId").(string)

	if err := h.Service.Delete(c.UserContext(), id, middleware.TenantID(c)); err != nil {
		return middleware.ErrorResponse(c, err)
	}
	return middleware.JsonResponse(c, fiber.StatusOK, true, "Assessment tracking deleted successfully!", fiber.Map{
		"assessmentTrackingId": id,
	})
}

func (h *AssessmentController) Status(c *fiber.Ctx) error {
	reqData, ok := c.Locals("validatedAssessmentStatus").(*services.AssessmentStatusRequest)
	if !ok {
		return middleware.JsonResponse(c, fiber.StatusBadRequest, false, "Invalid request data!", nil)
	}

	out, err := h.Service.SearchAssessmentStatus(c.UserContext(), *reqData, middleware.TenantID(c))
	if err != nil {
		return middleware.ErrorResponse(c, err)
	}
	return middleware.JsonResponse(c, fiber.StatusOK, true, "Assessment status fetched successfully!", out)
}
