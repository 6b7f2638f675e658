package auth

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"golang.org/x/crypto/bcrypt"

	"suivipro/internal/domain"
	jwtsvc "suivipro/internal/pkg/jwt"
	"suivipro/internal/pkg/response"
	"suivipro/internal/pkg/validator"
	"suivipro/internal/repository"
)

type LoginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

type LoginResponse struct {
	Token string       `json:"token"`
	User  *domain.User `json:"user"`
}

type Handler struct {
	users *repository.UserRepository
	jwt   *jwtsvc.Service
}

func NewHandler(users *repository.UserRepository, jwt *jwtsvc.Service) *Handler {
	return &Handler{users: users, jwt: jwt}
}

// Login exchanges credentials for a bearer token.
// @Summary		Login
// @Tags		Auth
// @Param		body	body	LoginRequest	true	"Credentials"
// @Success		200	{object}	LoginResponse
// @Failure		401	{object}	map[string]interface{} "Bad credentials"
// @Router		/auth/login [POST]
func (h *Handler) Login(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, "VALIDATION", "Invalid request body")
		return
	}
	if errs := validator.Validate(req); errs != nil {
		response.ErrorWithDetails(c, http.StatusBadRequest, "VALIDATION", "Invalid request body", errs)
		return
	}

	user, err := h.users.GetByEmail(c.Request.Context(), req.Email)
	if err != nil {
		response.Error(c, http.StatusUnauthorized, "BAD_CREDENTIALS", "Invalid email or password")
		return
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.Password)); err != nil {
		response.Error(c, http.StatusUnauthorized, "BAD_CREDENTIALS", "Invalid email or password")
		return
	}

	token, err := h.jwt.GenerateToken(user.ID, string(user.Role))
	if err != nil {
		response.Error(c, http.StatusInternalServerError, "TOKEN_FAILED", "Failed to issue token")
		return
	}

	response.Success(c, http.StatusOK, LoginResponse{Token: token, User: user})
}

// RegisterRoutes mounts the public auth endpoints.
func RegisterRoutes(public *gin.RouterGroup, handler *Handler) {
	public.POST("/auth/login", handler.Login)
}
