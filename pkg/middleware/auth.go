package middleware

import (
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"

	"github.com/joselopes-lab/brokerdesk/pkg/models"
)

// BrokerIDKey is the echo context key carrying the authenticated
// broker's id.
const BrokerIDKey = "broker_id"

// BrokerAuth validates the Bearer token issued by the platform's auth
// service and injects the broker id claim. User management itself lives
// outside this service; only the signing secret is shared.
func BrokerAuth(jwtSecret string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			header := c.Request().Header.Get(echo.HeaderAuthorization)
			tokenStr, ok := strings.CutPrefix(header, "Bearer ")
			if !ok || tokenStr == "" {
				return unauthorized(c, "Missing bearer token.")
			}

			token, err := jwt.Parse(tokenStr, func(t *jwt.Token) (any, error) {
				if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
					return nil, jwt.ErrSignatureInvalid
				}
				return []byte(jwtSecret), nil
			})
			if err != nil || !token.Valid {
				return unauthorized(c, "Invalid or expired token.")
			}

			claims, ok := token.Claims.(jwt.MapClaims)
			if !ok {
				return unauthorized(c, "Invalid token claims.")
			}
			brokerID, _ := claims[BrokerIDKey].(string)
			if brokerID == "" {
				return unauthorized(c, "Token carries no broker id.")
			}

			c.Set(BrokerIDKey, brokerID)
			return next(c)
		}
	}
}

// BrokerID extracts the authenticated broker id from the context.
func BrokerID(c echo.Context) string {
	id, _ := c.Get(BrokerIDKey).(string)
	return id
}

func unauthorized(c echo.Context, msg string) error {
	return c.JSON(http.StatusUnauthorized, models.ErrorResponse{
		Error:   "unauthorized",
		Message: msg,
	})
}
