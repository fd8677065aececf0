package main

import (
	"errors"
	"syscall"

	"github.com/labstack/echo/v4"
)

const (
	// Utilizes a non-standard nginx code
	statusClosedConnection int = 499
)

func filterError(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		resp := c.Response()
		// Process the request
		err := next(c)
		// The below is executed after the request and subsequent middleware
		if err != nil {
			// Check for a broken pipe, modify response status, and create an error
			if errors.Is(err, syscall.EPIPE) {
				logger(c.Request().Context(), err)
				resp.Status = statusClosedConnection
				return nil
			}
		}
		return err
	}
}

// bearerContext decodes the presenter's bearer token, when there is one, and
// stores it on the context. Requests without a token pass through.
func bearerContext(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		// Obtains raw http request
		r := c.Request()

		authHeader := r.Header.Get("Authorization")
		if authHeader == "" {
			return next(c)
		}

		// Convert auth header to token and store on request object
		token, err := parseToken(authHeader)
		if err != nil {
			logger(r.Context(), err)
			return next(c)
		}

		// Set token on context struct
		c.Set("user", token)

		return next(c)
	}
}
