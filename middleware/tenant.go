package middleware

import (
	"context"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/utils"
	"github.com/google/uuid"
)

// TenantHeader carries the caller's tenant on every tracking request.
const TenantHeader = "tenantid"

// TenantMiddleware requires a UUID tenant header and stores a copy of it in
// c.Locals("tenantId"). The copy outlives the request, so async work may keep it.
func TenantMiddleware(c *fiber.Ctx) error {
	tenantID := strings.TrimSpace(utils.CopyString(c.Get(TenantHeader)))
	if tenantID == "" {
		return JsonResponse(c, fiber.StatusBadRequest, false, "tenantid header is required!", nil)
	}
	if _, err := uuid.Parse(tenantID); err != nil {
		return JsonResponse(c, fiber.StatusBadRequest, false, "tenantid header must be a valid UUID!", nil)
	}

	c.Locals("tenantId", tenantID)
	return c.Next()
}

// TenantID returns the tenant stored by TenantMiddleware.
func TenantID(c *fiber.Ctx) string {
	tenantID, _ := c.Locals("tenantId").(string)
	return tenantID
}

// RequestTimeout bounds the user context of every request by d. Services
// receive it through c.UserContext().
func RequestTimeout(d time.Duration) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if d <= 0 {
			return c.Next()
		}
		ctx, cancel := context.WithTimeout(c.UserContext(), d)
		defer cancel()

		c.SetUserContext(ctx)
		return c.Next()
	}
}
