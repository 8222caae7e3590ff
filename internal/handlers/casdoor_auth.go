package handlers

import (
	"net/http"
	"strings"

	"github.com/casdoor/casdoor-go-sdk/casdoorsdk"
	"github.com/gin-gonic/gin"

	"github.com/escolar/roster-service/internal/config"
)

// CasdoorAuthMiddleware guards the admin surface with Casdoor JWTs.
type CasdoorAuthMiddleware struct {
	client *casdoorsdk.Client
	config config.CasdoorConfig
}

func NewCasdoorAuthMiddleware(cfg config.CasdoorConfig) *CasdoorAuthMiddleware {
	client := casdoorsdk.NewClient(
		cfg.Endpoint,
		cfg.ClientID,
		cfg.ClientSecret,
		cfg.Cert,
		cfg.Application,
		cfg.Organization,
	)

	return &CasdoorAuthMiddleware{
		client: client,
		config: cfg,
	}
}

// AuthMiddleware validates the bearer token and stores the admin identity
// in the gin context.
func (cam *CasdoorAuthMiddleware) AuthMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			c.JSON(http.StatusUnauthorized, ErrorResponse{
				Error:   "unauthorized",
				Message: "authorization header missing",
			})
			c.Abort()
			return
		}

		tokenParts := strings.Split(authHeader, " ")
		if len(tokenParts) != 2 || strings.ToLower(tokenParts[0]) != "bearer" {
			c.JSON(http.StatusUnauthorized, ErrorResponse{
				Error:   "unauthorized",
				Message: "invalid authorization header format",
			})
			c.Abort()
			return
		}

		claims, err := cam.client.ParseJwtToken(tokenParts[1])
		if err != nil {
			c.JSON(http.StatusUnauthorized, ErrorResponse{
				Error:   "unauthorized",
				Message: "invalid token",
			})
			c.Abort()
			return
		}

		c.Set("admin_id", claims.Id)
		c.Set("admin_name", claims.User.DisplayName)
		c.Set("admin_type", claims.User.Type)

		c.Next()
	}
}

// RequireAdminMiddleware rejects authenticated users without the admin type.
func (cam *CasdoorAuthMiddleware) RequireAdminMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		adminType, exists := c.Get("admin_type")
		if !exists {
			c.JSON(http.StatusForbidden, ErrorResponse{
				Error:   "forbidden",
				Message: "role not found in context",
			})
			c.Abort()
			return
		}

		switch strings.ToLower(adminType.(string)) {
		case "admin", "administrator":
			c.Next()
		default:
			c.JSON(http.StatusForbidden, ErrorResponse{
				Error:   "forbidden",
				Message: "admin role required",
			})
			c.Abort()
		}
	}
}
