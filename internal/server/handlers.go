package server

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	apperrors "github.com/pscheid92/ordertrack/internal/errors"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // Customer apps connect from arbitrary origins
	},
}

// requireToken guards the collaborator API with a shared bearer token.
func (s *Server) requireToken(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		header := c.Request().Header.Get("Authorization")
		token, ok := strings.CutPrefix(header, "Bearer ")
		if !ok {
			return apperrors.ForbiddenError("missing bearer token")
		}
		if subtle.ConstantTimeCompare([]byte(token), []byte(s.config.APIToken)) != 1 {
			return apperrors.ForbiddenError("invalid API token")
		}
		return next(c)
	}
}
