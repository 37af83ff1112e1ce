package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/ethanmsmith/whisperbox/internal/services"
	"github.com/ethanmsmith/whisperbox/pkg/response"
)

// RegisterHandler exposes the signup endpoints.
type RegisterHandler struct {
	accounts *services.AccountService
}

// NewRegisterHandler constructs the signup handler.
func NewRegisterHandler(accounts *services.AccountService) (*RegisterHandler, error) {
	if accounts == nil {
		return nil, errors.New("register handler: account service is required")
	}
	return &RegisterHandler{accounts: accounts}, nil
}

// registerRequest accepts both the historical field names (username is
// the email address, dob the date of birth) and their spelled-out forms.
type registerRequest struct {
	Name        string `json:"name" form:"name"`
	Username    string `json:"username" form:"username"`
	Email       string `json:"email" form:"email"`
	DOB         string `json:"dob" form:"dob"`
	DateOfBirth string `json:"dateOfBirth" form:"dateOfBirth"`
	Password    string `json:"password" form:"password"`
}

func (r registerRequest) email() string {
	if r.Username != "" {
		return r.Username
	}
	return r.Email
}

func (r registerRequest) dateOfBirth() string {
	if r.DOB != "" {
		return r.DOB
	}
	return r.DateOfBirth
}

type registeredUser struct {
	ID    string `json:"userId"`
	Name  string `json:"name"`
	Email string `json:"email"`
}

// Register handles POST /register. A successful signup leaves the account
// unverified and reports PENDING until the emailed link is followed.
func (h *RegisterHandler) Register(c *gin.Context) {
	req, ok := bindAndValidate[registerRequest](c, "Empty input fields!")
	if !ok {
		return
	}

	user, err := h.accounts.Register(c.Request.Context(), services.RegisterInput{
		Name:        req.Name,
		Email:       req.email(),
		DateOfBirth: req.dateOfBirth(),
		Password:    req.Password,
	})
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Pending(c, "Verification email sent!", registeredUser{
		ID:    user.ID,
		Name:  user.Name,
		Email: user.Email,
	})
}

type checkEmailRequest struct {
	Email string `json:"email" form:"email" validate:"required"`
}

// CheckEmail handles POST /checkEmail. Validity is true when an account
// with the address already exists, so the signup form can flag
// duplicates before submission.
func (h *RegisterHandler) CheckEmail(c *gin.Context) {
	req, ok := bindAndValidate[checkEmailRequest](c, "Empty input fields!")
	if !ok {
		return
	}

	registered, err := h.accounts.EmailRegistered(c.Request.Context(), req.Email)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusOK, "", gin.H{"validity": registered})
}
