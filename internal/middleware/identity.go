package middleware

import (
	"context"
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/nfrund/classroom/internal/domain"
)

// HeaderUserID names the user a connection acts for.
const HeaderUserID = "X-User-ID"

// MemberContextKey is the echo context key holding the caller's domain.Member.
const MemberContextKey = "member"

// MemberLookup resolves a user id to a directory entry.
type MemberLookup interface {
	Member(ctx context.Context, userID string) (domain.Member, error)
}

// Identify binds the request to a directory member named by the X-User-ID
// header or the userId query parameter. Anonymous requests pass through
// unbound. Unknown users are rejected with 403.
func Identify(members MemberLookup) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			userID := c.Request().Header.Get(HeaderUserID)
			if userID == "" {
				userID = c.QueryParam("userId")
			}
			if userID == "" {
				return next(c)
			}

			member, err := members.Member(c.Request().Context(), userID)
			if err != nil {
				if errors.Is(err, domain.ErrNotFound) {
					return echo.NewHTTPError(http.StatusForbidden, "unknown user")
				}
				return err
			}

			c.Set(MemberContextKey, member)
			return next(c)
		}
	}
}

// MemberFrom returns the member bound by Identify, if any.
func MemberFrom(c echo.Context) (domain.Member, bool) {
	m, ok := c.Get(MemberContextKey).(domain.Member)
	return m, ok
}
