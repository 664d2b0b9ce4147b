package httpserver

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/pscheid92/marketpulse/internal/domain"
	"github.com/pscheid92/marketpulse/internal/market"
	apperrors "github.com/pscheid92/marketpulse/internal/platform/errors"
)

func (s *Server) registerMarketRoutes(api *echo.Group) {
	api.GET("/market-data", s.handleMarketData)
	api.GET("/market-data/gainers", s.handleGainers)
	api.GET("/market-data/losers", s.handleLosers)
	api.GET("/market-data/high-volume", s.handleHighVolume)
	api.GET("/market-data/:symbol", s.handleQuote)
}

func (s *Server) handleMarketData(c echo.Context) error {
	return writeJSON(c, http.StatusOK, s.market.Get(parseSymbols(c.QueryParam("symbols"))))
}

func (s *Server) handleGainers(c echo.Context) error {
	limit, err := parseLimit(c)
	if err != nil {
		return err
	}
	if limit == 0 {
		return writeJSON(c, http.StatusOK, []domain.Quote{})
	}
	return writeJSON(c, http.StatusOK, s.market.TopByChangePercent(limit, false))
}

func (s *Server) handleLosers(c echo.Context) error {
	limit, err := parseLimit(c)
	if err != nil {
		return err
	}
	if limit == 0 {
		return writeJSON(c, http.StatusOK, []domain.Quote{})
	}
	return writeJSON(c, http.StatusOK, s.market.TopByChangePercent(limit, true))
}

func (s *Server) handleHighVolume(c echo.Context) error {
	limit, err := parseLimit(c)
	if err != nil {
		return err
	}
	if limit == 0 {
		return writeJSON(c, http.StatusOK, []domain.Quote{})
	}
	return writeJSON(c, http.StatusOK, s.market.TopByVolume(limit))
}

func (s *Server) handleQuote(c echo.Context) error {
	symbol := c.Param("symbol")
	q, ok := s.market.GetBySymbol(symbol)
	if !ok {
		return apperrors.NotFoundError(domain.ErrQuoteNotFound.Error()).WithField("symbol", symbol)
	}
	return writeJSON(c, http.StatusOK, q)
}

// parseSymbols splits a comma-separated list. Blank entries are dropped; nil means all.
func parseSymbols(raw string) []string {
	if raw == "" {
		return nil
	}
	var symbols []string
	for _, s := range strings.Split(raw, ",") {
		if s = strings.TrimSpace(s); s != "" {
			symbols = append(symbols, s)
		}
	}
	return symbols
}

// parseLimit reads the optional limit. Zero asks for an empty ranking.
func parseLimit(c echo.Context) (int, error) {
	raw := c.QueryParam("limit")
	if raw == "" {
		return market.DefaultLimit, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, apperrors.ValidationError("limit must be a non-negative integer").WithField("limit", raw)
	}
	return n, nil
}

func writeJSON(c echo.Context, status int, body any) error {
	if err := c.JSON(status, body); err != nil {
		return fmt.Errorf("failed to write JSON response: %w", err)
	}
	return nil
}
