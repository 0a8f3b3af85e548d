// Package channel implements the public channel view and subscriptions
// between users.
package channel

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"accounts/internal/domain/models"
	"accounts/internal/lib/logger/sl"
	"accounts/internal/storage"
)

var (
	ErrChannelNotFound   = errors.New("channel does not exist")
	ErrSelfSubscription  = errors.New("cannot subscribe to own channel")
	ErrAlreadySubscribed = errors.New("already subscribed")
	ErrNotSubscribed     = errors.New("not subscribed")
)

type UserProvider interface {
	UserByUsername(ctx context.Context, username string) (*models.User, error)
}

type SubscriptionStore interface {
	SaveSubscription(ctx context.Context, subscriberID, channelID string) error
	DeleteSubscription(ctx context.Context, subscriberID, channelID string) error
	ChannelStats(ctx context.Context, channelID, viewerID string) (subscribers, subscribedTo int64, isSubscribed bool, err error)
}

type Service struct {
	logger        *slog.Logger
	userProvider  UserProvider
	subscriptions SubscriptionStore
}

func New(logger *slog.Logger, userProvider UserProvider, subscriptions SubscriptionStore) *Service {
	return &Service{
		logger:        logger,
		userProvider:  userProvider,
		subscriptions: subscriptions,
	}
}

// Channel returns the channel of username as seen by viewerID.
func (s *Service) Channel(ctx context.Context, viewerID, username string) (*models.Channel, error) {
	const op = "channel.Channel"
	log := s.logger.With(slog.String("op", op), slog.String("channel", username))

	owner, err := s.owner(ctx, username)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	subscribers, subscribedTo, isSubscribed, err := s.subscriptions.ChannelStats(ctx, owner.ID, viewerID)
	if err != nil {
		log.Error("failed to get channel stats", sl.Err(err))
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return &models.Channel{
		ID:                owner.ID,
		Username:          owner.Username,
		FullName:          owner.FullName,
		Avatar:            owner.Avatar,
		CoverImage:        owner.CoverImage,
		SubscribersCount:  subscribers,
		SubscribedToCount: subscribedTo,
		IsSubscribed:      isSubscribed,
	}, nil
}

func (s *Service) Subscribe(ctx context.Context, subscriberID, username string) error {
	const op = "channel.Subscribe"
	log := s.logger.With(
		slog.String("op", op),
		slog.String("subscriberID", subscriberID),
		slog.String("channel", username),
	)

	owner, err := s.owner(ctx, username)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	if owner.ID == subscriberID {
		return fmt.Errorf("%s: %w", op, ErrSelfSubscription)
	}

	if err := s.subscriptions.SaveSubscription(ctx, subscriberID, owner.ID); err != nil {
		switch {
		case errors.Is(err, storage.ErrSubscriptionExists):
			return fmt.Errorf("%s: %w", op, ErrAlreadySubscribed)
		case errors.Is(err, storage.ErrUserNotFound):
			return fmt.Errorf("%s: %w", op, ErrChannelNotFound)
		}
		log.Error("failed to save subscription", sl.Err(err))
		return fmt.Errorf("%s: %w", op, err)
	}

	log.Info("subscribed")

	return nil
}

func (s *Service) Unsubscribe(ctx context.Context, subscriberID, username string) error {
	const op = "channel.Unsubscribe"
	log := s.logger.With(
		slog.String("op", op),
		slog.String("subscriberID", subscriberID),
		slog.String("channel", username),
	)

	owner, err := s.owner(ctx, username)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	if err := s.subscriptions.DeleteSubscription(ctx, subscriberID, owner.ID); err != nil {
		if errors.Is(err, storage.ErrSubscriptionNotFound) {
			return fmt.Errorf("%s: %w", op, ErrNotSubscribed)
		}
		log.Error("failed to delete subscription", sl.Err(err))
		return fmt.Errorf("%s: %w", op, err)
	}

	log.Info("unsubscribed")

	return nil
}

func (s *Service) owner(ctx context.Context, username string) (*models.User, error) {
	username = strings.ToLower(strings.TrimSpace(username))
	if username == "" {
		return nil, ErrChannelNotFound
	}

	owner, err := s.userProvider.UserByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, storage.ErrUserNotFound) {
			return nil, ErrChannelNotFound
		}
		return nil, err
	}

	return owner, nil
}
