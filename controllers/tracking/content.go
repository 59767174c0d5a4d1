package controllers

import (
	"tracker/middleware"
	"tracker/services"

	"github.com/gofiber/fiber/v2"
)

// ContentController serves the content tracking routes.
type ContentController struct {
	Service *services.ContentTrackingService
}

func NewContentController(svc *services.ContentTrackingService) *ContentController {
	return &ContentController{Service: svc}
}

func (h *ContentController) Create(c *fiber.Ctx) error {
	reqData, ok := c.Locals("validatedContentTracking").(*services.CreateContentRequest)
	if !ok {
		return middleware.JsonResponse(c, fiber.StatusBadRequest, false, "Invalid request data!", nil)
	}

	result, err := h.Service.Create(c.UserContext(), *reqData, middleware.TenantID(c))
	if err != nil {
		return middleware.ErrorResponse(c, err)
	}

	status, message := fiber.StatusOK, "Content tracking updated successfully!"
	if result.Created {
		status, message = fiber.StatusCreated, "Content tracking created successfully!"
	}
	return middleware.JsonResponse(c, status, true, message, result)
}

func (h *ContentController) Get(c *fiber.Ctx) error {
	id, _ := c.Locals("trackingId").(string)

	rec, err := h.Service.Get(c.UserContext(), id, middleware.TenantID(c))
	if err != nil {
		return middleware.ErrorResponse(c, err)
	}
	return middleware.JsonResponse(c, fiber.StatusOK, true, "Content tracking fetched successfully!", rec)
}

func (h *ContentController) Update(c *fiber.Ctx) error {
	id, _ := c.Locals("trackingId").(string)
	reqData, ok := c.Locals("validatedContentUpdate").(*services.UpdateContentRequest)
	if !ok {
		return middleware.JsonResponse(c, fiber.StatusBadRequest, false, "Invalid request data!", nil)
	}

	rec, err := h.Service.Update(c.UserContext(), id, *reqData, middleware.TenantID(c))
	if err != nil {
		return middleware.ErrorResponse(c, err)
	}
	return middleware.JsonResponse(c, fiber.StatusOK, true, "Content tracking updated successfully!", rec)
}

func (h *ContentController) Delete(c *fiber.Ctx) error {
	id, _ := c.Locals("trackingId").(string)

	if err := h.Service.Delete(c.UserContext(), id, middleware.TenantID(c)); err != nil {
		return middleware.ErrorResponse(c, err)
	}
	return middleware.JsonResponse(c, fiber.StatusOK, true, "Content tracking deleted successfully!", fiber.Map{
		"contentTrackingId": id,
	})
}

func (h *ContentController) Search(c *fiber.Ctx) error {
	reqData, ok := c.Locals("validatedSearch").(*services.SearchRequest)
	if !ok {
		return middleware.JsonResponse(c, fiber.StatusBadRequest, false, "Invalid request data!", nil)
	}

	recs, err := h.Service.Search(c.UserContext(), *reqData, middleware.TenantID(c))
	if err != nil {
		return middleware.ErrorResponse(c, err)
	}
	return middleware.JsonResponse(c, fiber.StatusOK, true, "Content tracking fetched successfully!", fiber.Map{
		"count": len(recs),
		"data":  recs,
	})
}

func (h *ContentController) ContentStatus(c *fiber.Ctx) error {
	reqData, ok := c.Locals("validatedContentStatus").(*services.ContentStatusRequest)
	if !ok {
		return middleware.JsonResponse(c, fiber.StatusBadRequest, false, "Invalid request data!", nil)
	}

	out, err := h.Service.SearchContentStatus(c.UserContext(), *reqData, middleware.TenantID(c))
	if err != nil {
		return middleware.ErrorResponse(c, err)
	}
	return middleware.JsonResponse(c, fiber.StatusOK, true, "Content status fetched successfully!", out)
}

func (h *ContentController) CourseStatus(c *fiber.Ctx) error {
	reqData, ok := c.Locals("validatedCourseStatus").(*services.CourseStatusRequest)
	if !ok {
		return middleware.JsonResponse(c, fiber.StatusBadRequest, false, "Invalid request data!", nil)
	}

	out, err := h.Service.CourseStatus(c.UserContext(), reqData.UserIDs, reqData.CourseIDs, middleware.TenantID(c))
	if err != nil {
		return middleware.ErrorResponse(c, err)
	}
	return middleware.JsonResponse(c, fiber.StatusOK, true, "Course status fetched successfully!", out)
}

func (h *ContentController) UnitStatus(c *fiber.Ctx) error {
	reqData, ok := c.Locals("validatedUnitStatus").(*services.UnitStatusRequest)
	if !ok {
		return middleware.JsonResponse(c, fiber.StatusBadRequest, false, "Invalid request data!", nil)
	}

	out, err := h.Service.UnitStatus(c.UserContext(), reqData.UserIDs, reqData.CourseID, reqData.UnitIDs, middleware.TenantID(c))
	if err != nil {
		return middleware.ErrorResponse(c, err)
	}
	return middleware.JsonResponse(c, fiber.StatusOK, true, "Unit status fetched successfully!", out)
}

func (h *ContentController) CourseInProgress(c *fiber.Ctx) error {
	userID, _ := c.Locals("userId").(string)

	recs, err := h.Service.CourseInProgress(c.UserContext(), userID, middleware.TenantID(c))
	if err != nil {
		return middleware.ErrorResponse(c, err)
	}
	return middleware.JsonResponse(c, fiber.StatusOK, true, "In-progress content fetched successfully!", recs)
}
