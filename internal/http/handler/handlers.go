package handler

import (
	"context"
	"database/sql"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/swagger"

	"credserver/docs"
	"credserver/internal/service"
)

const healthTimeout = 2 * time.Second

// Root godoc
// @Summary     Service banner
// @Tags        meta
// @Produce     json
// @Success     200 {object} map[string]string
// @Router      / [get]
func Root() fiber.Handler {
	return func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok", "message": "Qwen Credential Server is running!"})
	}
}

// LivenessProbe godoc
// @Summary     Liveness probe
// @Tags        meta
// @Success     200
// @Router      /healthz [get]
func LivenessProbe() fiber.Handler {
	return func(c *fiber.Ctx) error {
		return c.SendStatus(fiber.StatusOK)
	}
}

// HealthCheck godoc
// @Summary     Readiness probe
// @Description Checks that the credential store answers and, when configured, the audit database pings.
// @Tags        meta
// @Produce     json
// @Success     200 {object} map[string]string
// @Failure     503 {object} errorPayload
// @Router      /health [get]
func HealthCheck(db *sql.DB, creds service.CredentialService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		ctx, cancel := context.WithTimeout(c.UserContext(), healthTimeout)
		defer cancel()

		if creds != nil {
			if err := creds.Ready(ctx); err != nil {
				return writeError(c, fiber.StatusServiceUnavailable, "SERVICE_UNAVAILABLE", "dependency unavailable")
			}
		}
		if db != nil {
			if err := db.PingContext(ctx); err != nil {
				return writeError(c, fiber.StatusServiceUnavailable, "SERVICE_UNAVAILABLE", "dependency unavailable")
			}
		}
		return c.Status(fiber.StatusOK).JSON(fiber.Map{"status": "healthy"})
	}
}

// GetCredentials godoc
// @Summary     Current OAuth credential document
// @Tags        credentials
// @Produce     json
// @Security    ApiKeyAuth
// @Success     200 {object} model.Credentials
// @Failure     401 {object} errorPayload
// @Failure     404 {object} errorPayload
// @Failure     500 {object} errorPayload
// @Router      /oauth_creds.json [get]
func GetCredentials(creds service.CredentialService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		doc, err := creds.Get(c.UserContext())
		if err != nil {
			if errors.Is(err, service.ErrCredentialsNotReady) {
				return writeError(c, fiber.StatusNotFound, "CREDENTIALS_NOT_READY", "credentials file not generated by worker yet")
			}
			return writeError(c, fiber.StatusInternalServerError, "INTERNAL_ERROR", "internal server error")
		}
		c.Set(fiber.HeaderCacheControl, "no-store")
		return c.JSON(doc)
	}
}

// GetStatus godoc
// @Summary     Credential expiry status
// @Description Expiry metadata only, tokens are never included. A document whose expiry is unknown reports expired.
// @Tags        credentials
// @Produce     json
// @Security    ApiKeyAuth
// @Success     200 {object} service.CredentialStatus
// @Failure     401 {object} errorPayload
// @Failure     404 {object} errorPayload
// @Router      /status [get]
func GetStatus(creds service.CredentialService, now func() time.Time) fiber.Handler {
	return func(c *fiber.Ctx) error {
		st, err := creds.Status(c.UserContext(), now())
		if err != nil {
			if errors.Is(err, service.ErrCredentialsNotReady) {
				return writeError(c, fiber.StatusNotFound, "CREDENTIALS_NOT_READY", "credentials file not generated by worker yet")
			}
			return writeError(c, fiber.StatusInternalServerError, "INTERNAL_ERROR", "internal server error")
		}
		return c.JSON(st)
	}
}

// TriggerRefresh godoc
// @Summary     Refresh the access token now
// @Tags        credentials
// @Produce     json
// @Security    ApiKeyAuth
// @Success     200 {object} model.RefreshEvent
// @Failure     409 {object} errorPayload
// @Failure     502 {object} errorPayload
// @Router      /refresh [post]
func TriggerRefresh(refresher service.RefreshService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		ev, err := refresher.RefreshOnce(c.UserContext())
		switch {
		case err == nil:
			return c.JSON(ev)
		case errors.Is(err, service.ErrNoCredentials):
			return writeError(c, fiber.StatusConflict, "NO_CREDENTIALS", "no credentials to refresh")
		case errors.Is(err, service.ErrRefreshFailed):
			return writeError(c, fiber.StatusBadGateway, "REFRESH_FAILED", "upstream token refresh failed")
		default:
			return writeError(c, fiber.StatusInternalServerError, "INTERNAL_ERROR", "internal server error")
		}
	}
}

// ListRefreshes godoc
// @Summary     Refresh history
// @Tags        audit
// @Produce     json
// @Security    ApiKeyAuth
// @Param       limit  query int false "page size" default(10)
// @Param       offset query int false "items to skip" default(0)
// @Success     200 {object} service.RefreshEventListResult
// @Failure     400 {object} errorPayload
// @Failure     503 {object} errorPayload
// @Router      /refreshes [get]
func ListRefreshes(audit service.AuditService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		limit, err := strconv.Atoi(c.Query("limit", "10"))
		if err != nil {
			return writeError(c, fiber.StatusBadRequest, "INVALID_LIMIT", "invalid limit")
		}
		offset, err := strconv.Atoi(c.Query("offset", "0"))
		if err != nil {
			return writeError(c, fiber.StatusBadRequest, "INVALID_OFFSET", "invalid offset")
		}

		res, err := audit.List(c.UserContext(), limit, offset)
		if err != nil {
			if errors.Is(err, service.ErrAuditDisabled) {
				return writeError(c, fiber.StatusServiceUnavailable, "AUDIT_DISABLED", "refresh audit log is not configured")
			}
			return writeError(c, fiber.StatusInternalServerError, "INTERNAL_ERROR", "internal server error")
		}
		return c.JSON(res)
	}
}

// SwaggerUI serves the API docs with host and scheme taken from the request.
func SwaggerUI() fiber.Handler {
	return func(c *fiber.Ctx) error {
		scheme := c.Protocol()
		if proto := c.Get(fiber.HeaderXForwardedProto); proto != "" {
			scheme = strings.TrimSpace(strings.Split(proto, ",")[0])
		}

		docs.SwaggerInfo.Host = c.Hostname()
		docs.SwaggerInfo.Schemes = []string{scheme}

		return swagger.HandlerDefault(c)
	}
}
