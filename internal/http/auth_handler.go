package http

import (
	"context"
	"net/http"
	"time"

	"github.com/fjod/tranex/internal/auth"
	"github.com/fjod/tranex/internal/preferences"
)

// AuthService is the session-scoped auth flow the handler drives.
type AuthService interface {
	SignUp(ctx context.Context, sessionID, email, password, fullName string) auth.Result
	SignIn(ctx context.Context, sessionID, email, password string) auth.Result
	SignOut(ctx context.Context, sessionID string) auth.Result
	ResetPassword(ctx context.Context, email string) auth.Result
	UpdatePassword(ctx context.Context, sessionID, password string) auth.Result
	CurrentUser(ctx context.Context, sessionID string) auth.Result
	CurrentSession(ctx context.Context, sessionID string) auth.Result
}

type AuthHandler struct {
	service AuthService
	prefs   *preferences.Service
	timeout time.Duration
}

// NewAuthHandler accepts a nil service, in which case every endpoint answers
// 503 because no identity provider is configured.
func NewAuthHandler(service AuthService, prefs *preferences.Service, timeout time.Duration) *AuthHandler {
	return &AuthHandler{service: service, prefs: prefs, timeout: timeout}
}

type SignUpRequestDTO struct {
	Email           string `json:"email"`
	Password        string `json:"password"`
	ConfirmPassword string `json:"confirm_password,omitempty"`
	FullName        string `json:"full_name,omitempty"`
}

type SignInRequestDTO struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type ResetPasswordRequestDTO struct {
	Email string `json:"email"`
}

type UpdatePasswordRequestDTO struct {
	Password        string `json:"password"`
	ConfirmPassword string `json:"confirm_password,omitempty"`
}

type ValidationErrorResponse struct {
	ErrorResponse
	Fields []auth.FieldError `json:"fields"`
}

func (h *AuthHandler) SignUp(w http.ResponseWriter, r *http.Request) {
	var req SignUpRequestDTO
	ctx, cancel, ok := h.begin(w, r, &req)
	if !ok {
		return
	}
	defer cancel()

	v := h.validator(ctx)
	if errs := v.SignUp(req.Email, req.Password, req.ConfirmPassword, ""); len(errs) > 0 {
		respondValidation(w, errs)
		return
	}

	res := h.service.SignUp(ctx, getSessionID(ctx), req.Email, req.Password, req.FullName)
	respondResult(w, http.StatusCreated, http.StatusBadRequest, res)
}

func (h *AuthHandler) SignIn(w http.ResponseWriter, r *http.Request) {
	var req SignInRequestDTO
	ctx, cancel, ok := h.begin(w, r, &req)
	if !ok {
		return
	}
	defer cancel()

	if errs := h.validator(ctx).SignIn(req.Email, req.Password); len(errs) > 0 {
		respondValidation(w, errs)
		return
	}

	res := h.service.SignIn(ctx, getSessionID(ctx), req.Email, req.Password)
	respondResult(w, http.StatusOK, http.StatusUnauthorized, res)
}

func (h *AuthHandler) SignOut(w http.ResponseWriter, r *http.Request) {
	ctx, cancel, ok := h.begin(w, r, nil)
	if !ok {
		return
	}
	defer cancel()

	respondResult(w, http.StatusOK, http.StatusBadGateway, h.service.SignOut(ctx, getSessionID(ctx)))
}

func (h *AuthHandler) ResetPassword(w http.ResponseWriter, r *http.Request) {
	var req ResetPasswordRequestDTO
	ctx, cancel, ok := h.begin(w, r, &req)
	if !ok {
		return
	}
	defer cancel()

	if fe, valid := h.validator(ctx).Field(auth.FieldEmail, req.Email); !valid {
		respondValidation(w, []auth.FieldError{fe})
		return
	}

	respondResult(w, http.StatusOK, http.StatusBadRequest, h.service.ResetPassword(ctx, req.Email))
}

func (h *AuthHandler) UpdatePassword(w http.ResponseWriter, r *http.Request) {
	var req UpdatePasswordRequestDTO
	ctx, cancel, ok := h.begin(w, r, &req)
	if !ok {
		return
	}
	defer cancel()

	v := h.validator(ctx)
	var errs []auth.FieldError
	if fe, valid := v.Field(auth.FieldPassword, req.Password); !valid {
		errs = append(errs, fe)
	}
	if req.ConfirmPassword != "" {
		if fe, valid := v.Confirm(req.Password, req.ConfirmPassword); !valid {
			errs = append(errs, fe)
		}
	}
	if len(errs) > 0 {
		respondValidation(w, errs)
		return
	}

	res := h.service.UpdatePassword(ctx, getSessionID(ctx), req.Password)
	respondResult(w, http.StatusOK, http.StatusUnauthorized, res)
}

func (h *AuthHandler) CurrentUser(w http.ResponseWriter, r *http.Request) {
	ctx, cancel, ok := h.begin(w, r, nil)
	if !ok {
		return
	}
	defer cancel()

	respondResult(w, http.StatusOK, http.StatusUnauthorized, h.service.CurrentUser(ctx, getSessionID(ctx)))
}

func (h *AuthHandler) CurrentSession(w http.ResponseWriter, r *http.Request) {
	ctx, cancel, ok := h.begin(w, r, nil)
	if !ok {
		return
	}
	defer cancel()

	respondResult(w, http.StatusOK, http.StatusUnauthorized, h.service.CurrentSession(ctx, getSessionID(ctx)))
}

// begin applies the request timeout, checks the provider is configured and
// decodes the body into req when one is expected.
func (h *AuthHandler) begin(w http.ResponseWriter, r *http.Request, req any) (context.Context, context.CancelFunc, bool) {
	if h.service == nil {
		respondError(w, http.StatusServiceUnavailable, "auth_not_configured", "authentication is not configured")
		return nil, nil, false
	}
	if getSessionID(r.Context()) == "" {
		respondError(w, http.StatusUnauthorized, "no_session", "missing session")
		return nil, nil, false
	}
	if req != nil {
		if err := decodeJSON(w, r, req); err != nil {
			respondError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
			return nil, nil, false
		}
	}
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	return ctx, cancel, true
}

// validator localizes messages in the session's chosen language.
func (h *AuthHandler) validator(ctx context.Context) auth.Validator {
	lang := string(preferences.LanguageEnglish)
	if h.prefs != nil {
		lang = string(h.prefs.Get(ctx, getSessionID(ctx), false).Language)
	}
	return auth.NewValidator(lang)
}

func respondValidation(w http.ResponseWriter, errs []auth.FieldError) {
	respondJSON(w, http.StatusUnprocessableEntity, ValidationErrorResponse{
		ErrorResponse: ErrorResponse{Error: errs[0].Message, Code: "validation_failed"},
		Fields:        errs,
	})
}

func respondResult(w http.ResponseWriter, okStatus, failStatus int, res auth.Result) {
	if res.Success {
		respondJSON(w, okStatus, res)
		return
	}
	if res.Error == auth.ErrUnavailable.Error() {
		failStatus = http.StatusServiceUnavailable
	}
	respondJSON(w, failStatus, res)
}
