package handler

import (
	"errors"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/kursadbilgin/order-relay/internal/domain"
	"github.com/kursadbilgin/order-relay/internal/tenant"
)

const (
	headerTenantID       = "X-Tenant-ID"
	headerTenantTimezone = "X-Tenant-Timezone"
)

// requestTenant resolves the caller's tenant from headers. Every tenant-scoped
// route requires X-Tenant-ID; the timezone header is optional and defaults to
// UTC, which only matters for routes doing date math.
func requestTenant(c *fiber.Ctx) (tenant.Tenant, error) {
	id := strings.TrimSpace(c.Get(headerTenantID))
	if id == "" {
		return tenant.Tenant{}, fiber.NewError(fiber.StatusBadRequest, "X-Tenant-ID header is required")
	}

	tn, err := tenant.New(id, strings.TrimSpace(c.Get(headerTenantTimezone)))
	if err != nil {
		return tenant.Tenant{}, fiber.NewError(fiber.StatusBadRequest, err.Error())
	}
	return tn, nil
}

func toHTTPError(err error) error {
	switch {
	case errors.Is(err, domain.ErrValidation):
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	case errors.Is(err, domain.ErrNotFound):
		return fiber.NewError(fiber.StatusNotFound, err.Error())
	case errors.Is(err, domain.ErrConflict):
		return fiber.NewError(fiber.StatusConflict, err.Error())
	case errors.Is(err, domain.ErrConfiguration):
		return fiber.NewError(fiber.StatusUnprocessableEntity, err.Error())
	default:
		return err
	}
}
