package httpserver

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pscheid92/marketpulse/internal/domain"
	apperrors "github.com/pscheid92/marketpulse/internal/platform/errors"
)

type alertRequest struct {
	Symbol      string  `json:"symbol"`
	TargetPrice float64 `json:"targetPrice"`
	Condition   string  `json:"condition"`
}

func (s *Server) registerAlertRoutes(api *echo.Group) {
	api.GET("/price-alerts", s.handleListAlerts)
	api.POST("/price-alerts", s.handleCreateAlert)
	api.DELETE("/price-alerts/:id", s.handleDeleteAlert)
}

func (s *Server) handleListAlerts(c echo.Context) error {
	alerts, err := s.alerts.List(c.Request().Context(), domain.DefaultUserID)
	if err != nil {
		return apperrors.InternalError("failed to fetch price alerts", err)
	}
	return writeJSON(c, http.StatusOK, alerts)
}

func (s *Server) handleCreateAlert(c echo.Context) error {
	var req alertRequest
	if err := c.Bind(&req); err != nil {
		return apperrors.ValidationError("invalid request body")
	}

	alert, err := s.alerts.Create(c.Request().Context(), domain.NewPriceAlert{
		UserID:      domain.DefaultUserID,
		Symbol:      req.Symbol,
		TargetPrice: req.TargetPrice,
		Condition:   domain.AlertCondition(req.Condition),
	})
	if errors.Is(err, domain.ErrInvalidAlert) {
		return apperrors.ValidationError(err.Error())
	}
	if err != nil {
		return apperrors.InternalError("failed to create price alert", err)
	}
	return writeJSON(c, http.StatusCreated, alert)
}

func (s *Server) handleDeleteAlert(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}

	err = s.alerts.Delete(c.Request().Context(), id)
	if errors.Is(err, domain.ErrAlertNotFound) {
		return apperrors.NotFoundError("price alert not found")
	}
	if err != nil {
		return apperrors.InternalError("failed to delete price alert", err)
	}
	return c.NoContent(http.StatusNoContent)
}
