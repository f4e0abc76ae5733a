package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	iauth "github.com/randevubu/randevubu-server/internal/auth"
	"github.com/randevubu/randevubu-server/internal/models"
	"github.com/randevubu/randevubu-server/internal/services"
	"github.com/randevubu/randevubu-server/pkg/errors"
	"github.com/randevubu/randevubu-server/pkg/response"
)

// AuthHandler registers users, issues access tokens and serves the caller's profile.
type AuthHandler struct {
	users  *services.UserService
	tokens *iauth.TokenIssuer
}

type registerRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=8"`
	Name     string `json:"name" validate:"max=120"`
	Phone    string `json:"phone" validate:"max=32"`
	Locale   string `json:"locale" validate:"omitempty,max=10"`
}

type loginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

type updateProfileRequest struct {
	Name   *string `json:"name" validate:"omitempty,max=120"`
	Phone  *string `json:"phone" validate:"omitempty,max=32"`
	Locale *string `json:"locale" validate:"omitempty,max=10"`
}

type sessionResponse struct {
	User  *models.User       `json:"user"`
	Token iauth.IssuedToken `json:"token"`
}

func NewAuthHandler(users *services.UserService, tokens *iauth.TokenIssuer) *AuthHandler {
	return &AuthHandler{users: users, tokens: tokens}
}

// POST /api/auth/register
func (h *AuthHandler) Register(c *gin.Context) {
	var body registerRequest
	if !bindAndValidate(c, &body) {
		return
	}

	user, err := h.users.Create(requestContext(c), services.CreateUserInput{
		Email:    body.Email,
		Password: body.Password,
		Name:     body.Name,
		Phone:    body.Phone,
		Locale:   body.Locale,
	})
	if err != nil {
		response.Error(c, err)
		return
	}
	h.respondWithToken(c, http.StatusCreated, user)
}

// POST /api/auth/login
func (h *AuthHandler) Login(c *gin.Context) {
	var body loginRequest
	if !bindAndValidate(c, &body) {
		return
	}

	user, err := h.users.Authenticate(requestContext(c), body.Email, body.Password)
	if err != nil {
		response.Error(c, err)
		return
	}
	h.respondWithToken(c, http.StatusOK, user)
}

// GET /api/auth/me
func (h *AuthHandler) Me(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}
	user, err := h.users.Get(requestContext(c), userID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, user)
}

// PATCH /api/auth/me
func (h *AuthHandler) UpdateMe(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}
	var body updateProfileRequest
	if !bindAndValidate(c, &body) {
		return
	}

	user, err := h.users.Update(requestContext(c), userID, services.UpdateUserInput{
		Name:   body.Name,
		Phone:  body.Phone,
		Locale: body.Locale,
	})
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, user)
}

func (h *AuthHandler) respondWithToken(c *gin.Context, status int, user *models.User) {
	token, err := h.tokens.Issue(user.ID, user.Email)
	if err != nil {
		response.Error(c, errors.Wrap(err, "failed to issue access token"))
		return
	}
	response.Success(c, status, sessionResponse{User: user, Token: token})
}
