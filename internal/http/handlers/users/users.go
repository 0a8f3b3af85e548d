// Package users serves /api/v1/users.
package users

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"accounts/internal/assets"
	"accounts/internal/domain/models"
	"accounts/internal/http/cookies"
	"accounts/internal/http/middleware/auth"
	"accounts/internal/http/middleware/logger"
	"accounts/internal/lib/api/request"
	"accounts/internal/lib/api/response"
	"accounts/internal/lib/logger/sl"
	authsvc "accounts/internal/services/auth"
	"accounts/internal/services/profile"
)

type Auth interface {
	Register(ctx context.Context, in authsvc.RegisterInput) (*models.User, error)
	Login(ctx context.Context, username, email, password string) (*models.User, models.TokenPair, error)
	Logout(ctx context.Context, userID string) error
	Refresh(ctx context.Context, refreshToken string) (models.TokenPair, error)
	ChangePassword(ctx context.Context, userID, oldPassword, newPassword string) error
}

type Profile interface {
	UpdateAccount(ctx context.Context, userID, fullName, email string) (*models.User, error)
	UpdateAvatar(ctx context.Context, userID string, f *assets.File) (*models.User, error)
	UpdateCoverImage(ctx context.Context, userID string, f *assets.File) (*models.User, error)
}

type Handler struct {
	log            *slog.Logger
	auth           Auth
	profile        Profile
	cookies        cookies.Config
	maxUploadBytes int64
}

func New(
	log *slog.Logger,
	auth Auth,
	profile Profile,
	cookieCfg cookies.Config,
	maxUploadBytes int64,
) *Handler {
	return &Handler{
		log:            log,
		auth:           auth,
		profile:        profile,
		cookies:        cookieCfg,
		maxUploadBytes: maxUploadBytes,
	}
}

type userResponse struct {
	response.OK
	User *models.User `json:"user"`
}

type tokensResponse struct {
	response.OK
	User         *models.User `json:"user,omitempty"`
	AccessToken  string       `json:"accessToken"`
	RefreshToken string       `json:"refreshToken"`
}

type loginRequest struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

type refreshRequest struct {
	RefreshToken string `json:"refreshToken"`
}

type changePasswordRequest struct {
	OldPassword string `json:"oldPassword"`
	NewPassword string `json:"newPassword"`
}

type updateAccountRequest struct {
	FullName string `json:"fullname"`
	Email    string `json:"email"`
}

func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.users.Register"
	log := h.logger(r, op)

	if err := request.ParseMultipart(w, r, h.maxUploadBytes); err != nil {
		h.writeRequestError(w, err)
		return
	}

	avatar, avatarFile, err := request.FormFile(r, "avatar", assets.KindAvatar)
	if err != nil {
		h.writeRequestError(w, err)
		return
	}
	if avatarFile != nil {
		defer avatarFile.Close()
	}

	cover, coverFile, err := request.FormFile(r, "coverImage", assets.KindCoverImage)
	if err != nil {
		h.writeRequestError(w, err)
		return
	}
	if coverFile != nil {
		defer coverFile.Close()
	}

	user, err := h.auth.Register(r.Context(), authsvc.RegisterInput{
		FullName:   r.FormValue("fullname"),
		Email:      r.FormValue("email"),
		Username:   r.FormValue("username"),
		Password:   r.FormValue("password"),
		Avatar:     avatar,
		CoverImage: cover,
	})
	if err != nil {
		writeServiceError(w, log, err)
		return
	}

	response.WriteJSON(w, http.StatusCreated, userResponse{
		OK:   response.NewOK(http.StatusCreated, "user registered successfully"),
		User: user,
	})
}

func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.users.Login"
	log := h.logger(r, op)

	var req loginRequest
	if err := request.DecodeJSON(w, r, &req); err != nil {
		h.writeRequestError(w, err)
		return
	}

	user, pair, err := h.auth.Login(r.Context(), req.Username, req.Email, req.Password)
	if err != nil {
		writeServiceError(w, log, err)
		return
	}

	h.cookies.SetTokens(w, pair)
	response.WriteJSON(w, http.StatusOK, tokensResponse{
		OK:           response.NewOK(http.StatusOK, "user logged in successfully"),
		User:         user,
		AccessToken:  pair.AccessToken,
		RefreshToken: pair.RefreshToken,
	})
}

func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.users.Logout"
	log := h.logger(r, op)

	user, ok := auth.UserFromContext(r.Context())
	if !ok {
		response.WriteError(w, http.StatusUnauthorized, "unauthorized request")
		return
	}

	if err := h.auth.Logout(r.Context(), user.ID); err != nil {
		writeServiceError(w, log, err)
		return
	}

	h.cookies.Clear(w)
	response.WriteJSON(w, http.StatusOK, response.NewOK(http.StatusOK, "user logged out"))
}

// RefreshToken reads the refresh token from its cookie, falling back to the
// JSON body.
func (h *Handler) RefreshToken(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.users.RefreshToken"
	log := h.logger(r, op)

	presented := cookies.Value(r, cookies.RefreshToken)
	if presented == "" {
		var req refreshRequest
		if err := request.DecodeJSON(w, r, &req); err != nil && !errors.Is(err, request.ErrEmptyBody) {
			h.writeRequestError(w, err)
			return
		}
		presented = req.RefreshToken
	}

	pair, err := h.auth.Refresh(r.Context(), presented)
	if err != nil {
		writeServiceError(w, log, err)
		return
	}

	h.cookies.SetTokens(w, pair)
	response.WriteJSON(w, http.StatusOK, tokensResponse{
		OK:           response.NewOK(http.StatusOK, "access token refreshed"),
		AccessToken:  pair.AccessToken,
		RefreshToken: pair.RefreshToken,
	})
}

func (h *Handler) ChangePassword(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.users.ChangePassword"
	log := h.logger(r, op)

	user, ok := auth.UserFromContext(r.Context())
	if !ok {
		response.WriteError(w, http.StatusUnauthorized, "unauthorized request")
		return
	}

	var req changePasswordRequest
	if err := request.DecodeJSON(w, r, &req); err != nil {
		h.writeRequestError(w, err)
		return
	}

	if err := h.auth.ChangePassword(r.Context(), user.ID, req.OldPassword, req.NewPassword); err != nil {
		writeServiceError(w, log, err)
		return
	}

	response.WriteJSON(w, http.StatusOK, response.NewOK(http.StatusOK, "password changed successfully"))
}

func (h *Handler) CurrentUser(w http.ResponseWriter, r *http.Request) {
	user, ok := auth.UserFromContext(r.Context())
	if !ok {
		response.WriteError(w, http.StatusUnauthorized, "unauthorized request")
		return
	}

	response.WriteJSON(w, http.StatusOK, userResponse{
		OK:   response.NewOK(http.StatusOK, "current user fetched successfully"),
		User: user,
	})
}

func (h *Handler) UpdateAccount(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.users.UpdateAccount"
	log := h.logger(r, op)

	user, ok := auth.UserFromContext(r.Context())
	if !ok {
		response.WriteError(w, http.StatusUnauthorized, "unauthorized request")
		return
	}

	var req updateAccountRequest
	if err := request.DecodeJSON(w, r, &req); err != nil {
		h.writeRequestError(w, err)
		return
	}

	updated, err := h.profile.UpdateAccount(r.Context(), user.ID, req.FullName, req.Email)
	if err != nil {
		writeServiceError(w, log, err)
		return
	}

	response.WriteJSON(w, http.StatusOK, userResponse{
		OK:   response.NewOK(http.StatusOK, "account details updated successfully"),
		User: updated,
	})
}

func (h *Handler) UpdateAvatar(w http.ResponseWriter, r *http.Request) {
	h.updateImage(w, r, "handlers.users.UpdateAvatar", "avatar", assets.KindAvatar, h.profile.UpdateAvatar)
}

func (h *Handler) UpdateCoverImage(w http.ResponseWriter, r *http.Request) {
	h.updateImage(w, r, "handlers.users.UpdateCoverImage", "coverImage", assets.KindCoverImage, h.profile.UpdateCoverImage)
}

func (h *Handler) updateImage(
	w http.ResponseWriter,
	r *http.Request,
	op string,
	field string,
	kind assets.Kind,
	update func(ctx context.Context, userID string, f *assets.File) (*models.User, error),
) {
	log := h.logger(r, op)

	user, ok := auth.UserFromContext(r.Context())
	if !ok {
		response.WriteError(w, http.StatusUnauthorized, "unauthorized request")
		return
	}

	if err := request.ParseMultipart(w, r, h.maxUploadBytes); err != nil {
		h.writeRequestError(w, err)
		return
	}

	f, closer, err := request.FormFile(r, field, kind)
	if err != nil {
		h.writeRequestError(w, err)
		return
	}
	if closer != nil {
		defer closer.Close()
	}

	updated, err := update(r.Context(), user.ID, f)
	if err != nil {
		writeServiceError(w, log, err)
		return
	}

	response.WriteJSON(w, http.StatusOK, userResponse{
		OK:   response.NewOK(http.StatusOK, field+" updated successfully"),
		User: updated,
	})
}

func (h *Handler) logger(r *http.Request, op string) *slog.Logger {
	return logger.FromContext(r.Context(), h.log).With(slog.String("op", op))
}

func (h *Handler) writeRequestError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, request.ErrTooLarge):
		response.WriteError(w, http.StatusRequestEntityTooLarge, err.Error())
	case errors.Is(err, request.ErrEmptyBody):
		response.WriteError(w, http.StatusBadRequest, err.Error())
	default:
		response.WriteError(w, http.StatusBadRequest, request.ErrInvalidBody.Error())
	}
}

// writeServiceError maps service errors to status codes. Anything unknown
// is logged and reported as a 500 without detail.
func writeServiceError(w http.ResponseWriter, log *slog.Logger, err error) {
	for _, m := range errorStatuses {
		if errors.Is(err, m.err) {
			response.WriteError(w, m.code, m.err.Error())
			return
		}
	}

	log.Error("request failed", sl.Err(err))
	response.InternalError(w)
}

var errorStatuses = []struct {
	err  error
	code int
}{
	{authsvc.ErrFieldsRequired, http.StatusBadRequest},
	{authsvc.ErrAvatarRequired, http.StatusBadRequest},
	{authsvc.ErrLoginRequired, http.StatusBadRequest},
	{authsvc.ErrPasswordRequired, http.StatusBadRequest},
	{authsvc.ErrPasswordTooLong, http.StatusBadRequest},
	{authsvc.ErrInvalidOldPassword, http.StatusBadRequest},
	{authsvc.ErrUserAlreadyExists, http.StatusConflict},
	{authsvc.ErrUserNotFound, http.StatusNotFound},
	{authsvc.ErrInvalidCredentials, http.StatusUnauthorized},
	{authsvc.ErrRefreshTokenRequired, http.StatusUnauthorized},
	{authsvc.ErrInvalidRefreshToken, http.StatusNotFound},
	{profile.ErrFieldsRequired, http.StatusBadRequest},
	{profile.ErrAvatarMissing, http.StatusBadRequest},
	{profile.ErrCoverImageMissing, http.StatusBadRequest},
	{profile.ErrEmailTaken, http.StatusConflict},
	{profile.ErrUserNotFound, http.StatusNotFound},
}
