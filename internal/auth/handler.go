package auth

import (
	"encoding/json"
	"errors"
	"net/http"
	"regexp"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/go-playground/validator/v10"

	"blog-platform/internal/session"
	"blog-platform/internal/user"
	"blog-platform/internal/web"
)

var loginRegex = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)

const maxJSONBodyBytes = 1 << 20

type Handler struct {
	service    *Service
	validate   *validator.Validate
	refreshTTL time.Duration
}

func NewHandler(service *Service, refreshTTL time.Duration) *Handler {
	validate := validator.New()
	_ = validate.RegisterValidation("login_chars", func(fl validator.FieldLevel) bool {
		return loginRegex.MatchString(fl.Field().String())
	})

	return &Handler{service: service, validate: validate, refreshTTL: refreshTTL}
}

type loginRequest struct {
	LoginOrEmail string `json:"loginOrEmail" validate:"required,min=3,max=100"`
	Password     string `json:"password" validate:"required,min=6,max=72"`
}

type registrationRequest struct {
	Login    string `json:"login" validate:"required,min=3,max=10,login_chars"`
	Password string `json:"password" validate:"required,min=6,max=20"`
	Email    string `json:"email" validate:"required,email"`
}

type confirmationRequest struct {
	Code string `json:"code" validate:"required"`
}

type emailRequest struct {
	Email string `json:"email" validate:"required,email"`
}

type newPasswordRequest struct {
	NewPassword  string `json:"newPassword" validate:"required,min=6,max=20"`
	RecoveryCode string `json:"recoveryCode" validate:"required"`
}

type accessTokenResponse struct {
	AccessToken string `json:"accessToken"`
}

type meResponse struct {
	Email  string `json:"email"`
	Login  string `json:"login"`
	UserID string `json:"userId"`
}

// Login handles POST /auth/login. The access token goes in the body; the
// refresh token only ever travels in the HttpOnly cookie.
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var body loginRequest
	if !h.decode(w, r, &body) {
		return
	}

	pair, err := h.service.Login(r.Context(), body.LoginOrEmail, body.Password, web.ClientIP(r), r.UserAgent())
	if err != nil {
		if errors.Is(err, ErrInvalidCredentials) {
			web.Error(w, http.StatusUnauthorized, "invalid credentials")
			return
		}
		sentry.CaptureException(err)
		web.Error(w, http.StatusInternalServerError, "failed to login")
		return
	}

	web.SetRefreshCookie(w, pair.RefreshToken, h.refreshTTL)
	web.JSON(w, http.StatusOK, accessTokenResponse{AccessToken: pair.AccessToken})
}

// RefreshToken handles POST /auth/refresh-token: cookie in, rotated cookie out.
func (h *Handler) RefreshToken(w http.ResponseWriter, r *http.Request) {
	refreshToken, ok := web.ReadRefreshToken(r)
	if !ok {
		web.Error(w, http.StatusUnauthorized, "missing refresh token")
		return
	}

	pair, err := h.service.Refresh(r.Context(), refreshToken)
	if err != nil {
		if errors.Is(err, session.ErrInvalidRefreshToken) {
			web.Error(w, http.StatusUnauthorized, "invalid refresh token")
			return
		}
		sentry.CaptureException(err)
		web.Error(w, http.StatusInternalServerError, "failed to refresh token")
		return
	}

	web.SetRefreshCookie(w, pair.RefreshToken, h.refreshTTL)
	web.JSON(w, http.StatusOK, accessTokenResponse{AccessToken: pair.AccessToken})
}

// Logout handles POST /auth/logout.
func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	refreshToken, ok := web.ReadRefreshToken(r)
	if !ok {
		web.Error(w, http.StatusUnauthorized, "missing refresh token")
		return
	}

	if err := h.service.Logout(r.Context(), refreshToken); err != nil {
		if errors.Is(err, session.ErrInvalidRefreshToken) {
			web.Error(w, http.StatusUnauthorized, "invalid refresh token")
			return
		}
		sentry.CaptureException(err)
		web.Error(w, http.StatusInternalServerError, "failed to logout")
		return
	}

	web.ClearRefreshCookie(w)
	w.WriteHeader(http.StatusNoContent)
}

// Me handles GET /auth/me behind the Bearer middleware.
func (h *Handler) Me(w http.ResponseWriter, r *http.Request) {
	claims, ok := ClaimsFromContext(r.Context())
	if !ok {
		web.Error(w, http.StatusUnauthorized, "missing authorization token")
		return
	}

	u, err := h.service.Me(r.Context(), claims.UserID)
	if err != nil {
		if errors.Is(err, user.ErrNotFound) {
			web.Error(w, http.StatusUnauthorized, "unknown user")
			return
		}
		sentry.CaptureException(err)
		web.Error(w, http.StatusInternalServerError, "failed to load user")
		return
	}

	web.JSON(w, http.StatusOK, meResponse{Email: u.Email, Login: u.Login, UserID: u.ID})
}

// Register handles POST /auth/registration.
func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	var body registrationRequest
	if !h.decode(w, r, &body) {
		return
	}

	err := h.service.Register(r.Context(), body.Login, body.Email, body.Password)
	if err != nil {
		switch {
		case errors.Is(err, user.ErrLoginTaken):
			web.Error(w, http.StatusBadRequest, "login already taken")
		case errors.Is(err, user.ErrEmailTaken):
			web.Error(w, http.StatusBadRequest, "email already taken")
		default:
			sentry.CaptureException(err)
			web.Error(w, http.StatusInternalServerError, "failed to register")
		}
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// ConfirmRegistration handles POST /auth/registration-confirmation.
func (h *Handler) ConfirmRegistration(w http.ResponseWriter, r *http.Request) {
	var body confirmationRequest
	if !h.decode(w, r, &body) {
		return
	}

	if err := h.service.ConfirmEmail(r.Context(), body.Code); err != nil {
		if errors.Is(err, ErrInvalidCode) {
			web.Error(w, http.StatusBadRequest, "invalid or expired code")
			return
		}
		sentry.CaptureException(err)
		web.Error(w, http.StatusInternalServerError, "failed to confirm registration")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// ResendConfirmation handles POST /auth/registration-email-resending.
func (h *Handler) ResendConfirmation(w http.ResponseWriter, r *http.Request) {
	var body emailRequest
	if !h.decode(w, r, &body) {
		return
	}

	if err := h.service.ResendConfirmation(r.Context(), body.Email); err != nil {
		if errors.Is(err, ErrInvalidCode) {
			web.Error(w, http.StatusBadRequest, "email is unknown or already confirmed")
			return
		}
		sentry.CaptureException(err)
		web.Error(w, http.StatusInternalServerError, "failed to resend confirmation")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// PasswordRecovery handles POST /auth/password-recovery. Always 204 for a
// well-formed email, known or not.
func (h *Handler) PasswordRecovery(w http.ResponseWriter, r *http.Request) {
	var body emailRequest
	if !h.decode(w, r, &body) {
		return
	}

	if err := h.service.RequestPasswordRecovery(r.Context(), body.Email); err != nil {
		sentry.CaptureException(err)
		web.Error(w, http.StatusInternalServerError, "failed to start password recovery")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// NewPassword handles POST /auth/new-password.
func (h *Handler) NewPassword(w http.ResponseWriter, r *http.Request) {
	var body newPasswordRequest
	if !h.decode(w, r, &body) {
		return
	}

	if err := h.service.SetNewPassword(r.Context(), body.RecoveryCode, body.NewPassword); err != nil {
		if errors.Is(err, ErrInvalidCode) {
			web.Error(w, http.StatusBadRequest, "invalid or expired recovery code")
			return
		}
		sentry.CaptureException(err)
		web.Error(w, http.StatusInternalServerError, "failed to set new password")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxJSONBodyBytes)

	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(dst); err != nil {
		web.Error(w, http.StatusBadRequest, "invalid json body")
		return false
	}

	if err := h.validate.Struct(dst); err != nil {
		web.Error(w, http.StatusBadRequest, "request validation failed")
		return false
	}

	return true
}
