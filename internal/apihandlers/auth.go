package apihandlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"jozvesaz/internal/auth"
	"jozvesaz/internal/models"
	"jozvesaz/internal/store"
)

// UserPublic is the user representation returned by auth endpoints.
type UserPublic struct {
	ID       uuid.UUID `json:"id"`
	Email    string    `json:"email"`
	FullName *string   `json:"full_name,omitempty"`
}

func publicUser(u *models.User) UserPublic {
	return UserPublic{ID: u.ID, Email: u.Email, FullName: u.FullName}
}

type registerRequest struct {
	Email    string  `json:"email" binding:"required,email"`
	Password string  `json:"password" binding:"required"`
	FullName *string `json:"full_name"`
}

type loginRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

// setAuthCookies issues the access/refresh cookie pair for userID. Both
// are httpOnly with SameSite=Lax on path /.
func (h *APIHandler) setAuthCookies(c *gin.Context, userID uuid.UUID) error {
	issuer := h.App.TokenIssuer

	accessToken, err := issuer.AccessToken(userID.String())
	if err != nil {
		return err
	}
	refreshToken, err := issuer.RefreshToken(userID.String())
	if err != nil {
		return err
	}

	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(h.App.Config.Auth.AccessCookieName, accessToken,
		int(issuer.AccessTTL().Seconds()), "/", "", false, true)
	c.SetCookie(h.App.Config.Auth.RefreshCookieName, refreshToken,
		int(issuer.RefreshTTL().Seconds()), "/", "", false, true)
	return nil
}

// RegisterHandler creates a new user account and issues auth cookies.
func (h *APIHandler) RegisterHandler(c *gin.Context) {
	var req registerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, "Invalid request body: "+err.Error())
		return
	}

	hashed, err := auth.HashPassword(req.Password)
	if err != nil {
		Internal(c, "Unable to register user")
		return
	}

	user := &models.User{
		Email:          req.Email,
		FullName:       req.FullName,
		HashedPassword: hashed,
	}
	if err := h.App.UserStore.CreateUser(c.Request.Context(), user); err != nil {
		if errors.Is(err, store.ErrEmailTaken) {
			BadRequest(c, "Email already registered")
			return
		}
		log.WithError(err).Error("user registration failed")
		Internal(c, "Unable to register user")
		return
	}

	if err := h.setAuthCookies(c, user.ID); err != nil {
		log.WithError(err).Error("failed to issue auth cookies")
		Internal(c, "Unable to register user")
		return
	}
	c.JSON(http.StatusCreated, publicUser(user))
}

// LoginHandler authenticates a user by email and password. Unknown email
// and wrong password are indistinguishable to the client.
func (h *APIHandler) LoginHandler(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, "Invalid request body: "+err.Error())
		return
	}

	user, err := h.App.UserStore.GetUserByEmail(c.Request.Context(), req.Email)
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			log.WithError(err).Error("login lookup failed")
		}
		Unauthorized(c, "Invalid email or password")
		return
	}
	if !auth.VerifyPassword(req.Password, user.HashedPassword) {
		Unauthorized(c, "Invalid email or password")
		return
	}

	if err := h.setAuthCookies(c, user.ID); err != nil {
		log.WithError(err).Error("failed to issue auth cookies")
		Internal(c, "Unable to log in")
		return
	}
	c.JSON(http.StatusOK, publicUser(user))
}

// MeHandler returns the authenticated user.
func (h *APIHandler) MeHandler(c *gin.Context) {
	user, ok := CurrentUser(c)
	if !ok {
		Unauthorized(c, "Not authenticated")
		return
	}
	c.JSON(http.StatusOK, publicUser(user))
}
