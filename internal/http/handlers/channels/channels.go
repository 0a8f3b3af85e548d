// Package channels serves /api/v1/channels.
package channels

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"accounts/internal/domain/models"
	"accounts/internal/http/middleware/auth"
	"accounts/internal/http/middleware/logger"
	"accounts/internal/lib/api/response"
	"accounts/internal/lib/logger/sl"
	"accounts/internal/services/channel"
)

type Channels interface {
	Channel(ctx context.Context, viewerID, username string) (*models.Channel, error)
	Subscribe(ctx context.Context, subscriberID, username string) error
	Unsubscribe(ctx context.Context, subscriberID, username string) error
}

type Handler struct {
	log      *slog.Logger
	channels Channels
}

func New(log *slog.Logger, channels Channels) *Handler {
	return &Handler{log: log, channels: channels}
}

type channelResponse struct {
	response.OK
	Channel *models.Channel `json:"channel"`
}

func (h *Handler) Channel(w http.ResponseWriter, r *http.Request) {
	log := h.logger(r, "handlers.channels.Channel")

	user, ok := auth.UserFromContext(r.Context())
	if !ok {
		response.WriteError(w, http.StatusUnauthorized, "unauthorized request")
		return
	}

	ch, err := h.channels.Channel(r.Context(), user.ID, r.PathValue("username"))
	if err != nil {
		writeError(w, log, err)
		return
	}

	response.WriteJSON(w, http.StatusOK, channelResponse{
		OK:      response.NewOK(http.StatusOK, "channel fetched successfully"),
		Channel: ch,
	})
}

func (h *Handler) Subscribe(w http.ResponseWriter, r *http.Request) {
	log := h.logger(r, "handlers.channels.Subscribe")

	user, ok := auth.UserFromContext(r.Context())
	if !ok {
		response.WriteError(w, http.StatusUnauthorized, "unauthorized request")
		return
	}

	if err := h.channels.Subscribe(r.Context(), user.ID, r.PathValue("username")); err != nil {
		writeError(w, log, err)
		return
	}

	response.WriteJSON(w, http.StatusCreated, response.NewOK(http.StatusCreated, "subscribed successfully"))
}

func (h *Handler) Unsubscribe(w http.ResponseWriter, r *http.Request) {
	log := h.logger(r, "handlers.channels.Unsubscribe")

	user, ok := auth.UserFromContext(r.Context())
	if !ok {
		response.WriteError(w, http.StatusUnauthorized, "unauthorized request")
		return
	}

	if err := h.channels.Unsubscribe(r.Context(), user.ID, r.PathValue("username")); err != nil {
		writeError(w, log, err)
		return
	}

	response.WriteJSON(w, http.StatusOK, response.NewOK(http.StatusOK, "unsubscribed successfully"))
}

func (h *Handler) logger(r *http.Request, op string) *slog.Logger {
	return logger.FromContext(r.Context(), h.log).With(slog.String("op", op))
}

func writeError(w http.ResponseWriter, log *slog.Logger, err error) {
	switch {
	case errors.Is(err, channel.ErrChannelNotFound):
		response.WriteError(w, http.StatusNotFound, channel.ErrChannelNotFound.Error())
	case errors.Is(err, channel.ErrNotSubscribed):
		response.WriteError(w, http.StatusNotFound, channel.ErrNotSubscribed.Error())
	case errors.Is(err, channel.ErrSelfSubscription):
		response.WriteError(w, http.StatusBadRequest, channel.ErrSelfSubscription.Error())
	case errors.Is(err, channel.ErrAlreadySubscribed):
		response.WriteError(w, http.StatusConflict, channel.ErrAlreadySubscribed.Error())
	default:
		log.Error("request failed", sl.Err(err))
		response.InternalError(w)
	}
}
