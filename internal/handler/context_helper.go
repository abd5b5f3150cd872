package handler

import (
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/taxfiling-tracker/internal/middleware"
	"github.com/noah-isme/taxfiling-tracker/internal/models"
	"github.com/noah-isme/taxfiling-tracker/internal/service"
	appErrors "github.com/noah-isme/taxfiling-tracker/pkg/errors"
)

func claimsFromContext(c *gin.Context) *models.JWTClaims {
	value, exists := c.Get(middleware.ContextUserKey)
	if !exists {
		return nil
	}
	claims, ok := value.(*models.JWTClaims)
	if !ok {
		return nil
	}
	return claims
}

func viewerFromContext(c *gin.Context) (service.Viewer, bool) {
	claims := claimsFromContext(c)
	if claims == nil || claims.UserID == "" {
		return service.Viewer{}, false
	}
	return service.Viewer{UserID: claims.UserID, Admin: claims.IsAdmin()}, true
}

func parseIntQuery(c *gin.Context, key string, fallback int) int {
	raw := strings.TrimSpace(c.Query(key))
	if raw == "" {
		return fallback
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return value
}

func listFilterFromQuery(c *gin.Context) models.ListFilter {
	return models.ListFilter{
		Status:        c.Query("status"),
		Search:        c.Query("search"),
		Page:          parseIntQuery(c, "page", 1),
		PageSize:      parseIntQuery(c, "pageSize", 0),
		SortDirection: c.Query("sort"),
	}
}

// parseDate accepts a calendar date or a full RFC 3339 timestamp.
func parseDate(raw *string) (*time.Time, error) {
	if raw == nil || strings.TrimSpace(*raw) == "" {
		return nil, nil
	}
	value := strings.TrimSpace(*raw)
	if parsed, err := time.Parse("2006-01-02", value); err == nil {
		return &parsed, nil
	}
	parsed, err := time.Parse(time.RFC3339, value)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "paymentDate must be YYYY-MM-DD")
	}
	return &parsed, nil
}
