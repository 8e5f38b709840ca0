package apihandlers

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"jozvesaz/internal/auth"
	"jozvesaz/internal/models"
	"jozvesaz/internal/store"
)

const currentUserKey = "current_user"

// RequireUser resolves the authenticated user from the httpOnly access
// cookie and stores it in the request context. Every failure mode (missing
// cookie, bad signature, wrong token type, unknown subject) aborts with the
// same generic unauthorized response.
func RequireUser(users store.UserStore, issuer *auth.TokenIssuer, cookieName string) gin.HandlerFunc {
	return func(c *gin.Context) {
		token, err := c.Cookie(cookieName)
		if err != nil || token == "" {
			Unauthorized(c, "Not authenticated")
			c.Abort()
			return
		}

		subject, err := issuer.ParseAccessToken(token)
		if err != nil {
			Unauthorized(c, "Invalid credentials")
			c.Abort()
			return
		}

		userID, err := uuid.Parse(subject)
		if err != nil {
			Unauthorized(c, "Invalid credentials")
			c.Abort()
			return
		}

		user, err := users.GetUserByID(c.Request.Context(), userID)
		if err != nil {
			Unauthorized(c, "Invalid credentials")
			c.Abort()
			return
		}

		c.Set(currentUserKey, user)
		c.Next()
	}
}

// CurrentUser returns the user resolved by RequireUser. ok is false when
// the middleware did not run on this route.
func CurrentUser(c *gin.Context) (*models.User, bool) {
	v, exists := c.Get(currentUserKey)
	if !exists {
		return nil, false
	}
	user, ok := v.(*models.User)
	return user, ok
}
