package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/japaniel/lingomorph/pkg/adapt"
	"github.com/japaniel/lingomorph/pkg/anki"
	"github.com/japaniel/lingomorph/pkg/config"
	"github.com/japaniel/lingomorph/pkg/db"
	"github.com/japaniel/lingomorph/pkg/llm"
)

// APIError is the body of every failed request.
type APIError struct {
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
}

type ErrorEnvelope struct {
	Error APIError `json:"error"`
}

func respondError(c *gin.Context, status int, code string, err error) {
	msg := "unknown error"
	if err != nil {
		msg = err.Error()
	}
	c.JSON(status, ErrorEnvelope{Error: APIError{Message: msg, Code: code}})
}

// respondErr maps domain errors onto HTTP statuses.
func respondErr(c *gin.Context, err error) {
	var (
		rpcErr      *anki.RPCError
		providerErr *llm.ProviderError
	)
	switch {
	case errors.Is(err, db.ErrNotFound):
		respondError(c, http.StatusNotFound, "not_found", err)
	case errors.Is(err, adapt.ErrEmptyText):
		respondError(c, http.StatusBadRequest, "bad_request", err)
	case errors.Is(err, config.ErrConfig):
		respondError(c, http.StatusServiceUnavailable, "config", err)
	case errors.Is(err, adapt.ErrAnalysis):
		respondError(c, http.StatusBadGateway, "analysis", err)
	case errors.As(err, &rpcErr), errors.Is(err, anki.ErrProtocol):
		respondError(c, http.StatusBadGateway, "anki", err)
	case errors.As(err, &providerErr):
		respondError(c, http.StatusBadGateway, "provider", err)
	default:
		respondError(c, http.StatusInternalServerError, "internal", err)
	}
}

func respondOK(c *gin.Context, payload any) {
	c.JSON(http.StatusOK, payload)
}
