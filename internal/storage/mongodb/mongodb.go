package mongodb

import (
	"context"
	"errors"
	"fmt"
	"time"

	"accounts/internal/domain/models"
	"accounts/internal/storage"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

type Storage struct {
	client        *mongo.Client
	database      *mongo.Database
	users         *mongo.Collection
	subscriptions *mongo.Collection
}

type userDoc struct {
	ID           bson.ObjectID `bson:"_id"`
	Username     string        `bson:"username"`
	Email        string        `bson:"email"`
	FullName     string        `bson:"fullname"`
	PassHash     []byte        `bson:"password,omitempty"`
	Avatar       string        `bson:"avatar"`
	CoverImage   string        `bson:"cover_image,omitempty"`
	RefreshToken string        `bson:"refresh_token,omitempty"`
	CreatedAt    time.Time     `bson:"created_at"`
	UpdatedAt    time.Time     `bson:"updated_at"`
}

type subscriptionDoc struct {
	Subscriber bson.ObjectID `bson:"subscriber"`
	Channel    bson.ObjectID `bson:"channel"`
	CreatedAt  time.Time     `bson:"created_at"`
	UpdatedAt  time.Time     `bson:"updated_at"`
}

// profileProjection strips credentials from user lookups that are handed
// to request handlers.
var profileProjection = bson.D{
	{Key: "password", Value: 0},
	{Key: "refresh_token", Value: 0},
}

// New creates a new MongoDB storage instance and sets up indexes.
func New(ctx context.Context, uri, database string) (*Storage, error) {
	const op = "storage.mongodb.New"

	client, err := mongo.Connect(options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("%s: connect: %w", op, err)
	}

	if err := client.Ping(ctx, nil); err != nil {
		return nil, fmt.Errorf("%s: ping: %w", op, err)
	}

	db := client.Database(database)
	s := &Storage{
		client:        client,
		database:      db,
		users:         db.Collection("users"),
		subscriptions: db.Collection("subscriptions"),
	}

	if err := s.ensureIndexes(ctx); err != nil {
		return nil, fmt.Errorf("%s: indexes: %w", op, err)
	}

	return s, nil
}

func (s *Storage) ensureIndexes(ctx context.Context) error {
	// users.username unique
	_, err := s.users.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "username", Value: 1}},
		Options: options.Index().SetUnique(true),
	})
	if err != nil {
		return fmt.Errorf("users.username index: %w", err)
	}

	// users.email unique
	_, err = s.users.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "email", Value: 1}},
		Options: options.Index().SetUnique(true),
	})
	if err != nil {
		return fmt.Errorf("users.email index: %w", err)
	}

	// subscriptions (subscriber, channel) unique
	_, err = s.subscriptions.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "subscriber", Value: 1}, {Key: "channel", Value: 1}},
		Options: options.Index().SetUnique(true),
	})
	if err != nil {
		return fmt.Errorf("subscriptions.subscriber_channel index: %w", err)
	}

	// subscriptions.channel for subscriber counts
	_, err = s.subscriptions.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "channel", Value: 1}},
	})
	if err != nil {
		return fmt.Errorf("subscriptions.channel index: %w", err)
	}

	return nil
}

// Ping checks the connection to the primary.
func (s *Storage) Ping(ctx context.Context) error {
	return s.client.Ping(ctx, nil)
}

// Close disconnects from MongoDB.
func (s *Storage) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}

// SaveUser inserts a new user and returns it without credentials.
func (s *Storage) SaveUser(ctx context.Context, u models.NewUser) (*models.User, error) {
	const op = "storage.mongodb.SaveUser"

	now := time.Now().UTC()
	doc := userDoc{
		ID:         bson.NewObjectID(),
		Username:   u.Username,
		Email:      u.Email,
		FullName:   u.FullName,
		PassHash:   u.PassHash,
		Avatar:     u.Avatar,
		CoverImage: u.CoverImage,
		CreatedAt:  now,
		UpdatedAt:  now,
	}

	_, err := s.users.InsertOne(ctx, doc)
	if err != nil {
		if isDuplicateKeyError(err) {
			return nil, fmt.Errorf("%s: %w", op, storage.ErrUserAlreadyExists)
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	doc.PassHash = nil

	return doc.toModel(), nil
}

// User retrieves a user by ID, including password hash and refresh token.
func (s *Storage) User(ctx context.Context, userID string) (*models.User, error) {
	const op = "storage.mongodb.User"

	user, err := s.findUser(ctx, byID(userID))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return user, nil
}

// UserProfile retrieves a user by ID without credentials.
func (s *Storage) UserProfile(ctx context.Context, userID string) (*models.User, error) {
	const op = "storage.mongodb.UserProfile"

	user, err := s.findUser(ctx, byID(userID), options.FindOne().SetProjection(profileProjection))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return user, nil
}

// UserByUsername retrieves a user by username without credentials.
func (s *Storage) UserByUsername(ctx context.Context, username string) (*models.User, error) {
	const op = "storage.mongodb.UserByUsername"

	user, err := s.findUser(ctx,
		bson.D{{Key: "username", Value: username}},
		options.FindOne().SetProjection(profileProjection),
	)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return user, nil
}

// UserByLogin retrieves a user whose username or email matches. Empty
// arguments are ignored.
func (s *Storage) UserByLogin(ctx context.Context, username, email string) (*models.User, error) {
	const op = "storage.mongodb.UserByLogin"

	filter := loginFilter(username, email)
	if filter == nil {
		return nil, fmt.Errorf("%s: %w", op, storage.ErrUserNotFound)
	}

	user, err := s.findUser(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return user, nil
}

// UserExists reports whether a user with the username or email exists.
func (s *Storage) UserExists(ctx context.Context, username, email string) (bool, error) {
	const op = "storage.mongodb.UserExists"

	filter := loginFilter(username, email)
	if filter == nil {
		return false, nil
	}

	n, err := s.users.CountDocuments(ctx, filter, options.Count().SetLimit(1))
	if err != nil {
		return false, fmt.Errorf("%s: %w", op, err)
	}

	return n > 0, nil
}

// SetRefreshToken overwrites the stored refresh token. An empty token
// removes the field.
func (s *Storage) SetRefreshToken(ctx context.Context, userID, token string) error {
	const op = "storage.mongodb.SetRefreshToken"

	id, err := bson.ObjectIDFromHex(userID)
	if err != nil {
		return fmt.Errorf("%s: %w", op, storage.ErrUserNotFound)
	}

	update := bson.D{
		{Key: "$set", Value: bson.D{
			{Key: "refresh_token", Value: token},
			{Key: "updated_at", Value: time.Now().UTC()},
		}},
	}
	if token == "" {
		update = bson.D{
			{Key: "$unset", Value: bson.D{{Key: "refresh_token", Value: ""}}},
			{Key: "$set", Value: bson.D{{Key: "updated_at", Value: time.Now().UTC()}}},
		}
	}

	res, err := s.users.UpdateOne(ctx, bson.D{{Key: "_id", Value: id}}, update)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	if res.MatchedCount == 0 {
		return fmt.Errorf("%s: %w", op, storage.ErrUserNotFound)
	}

	return nil
}

// SwapRefreshToken replaces the stored refresh token only if it still
// equals expected.
func (s *Storage) SwapRefreshToken(ctx context.Context, userID, expected, token string) error {
	const op = "storage.mongodb.SwapRefreshToken"

	id, err := bson.ObjectIDFromHex(userID)
	if err != nil {
		return fmt.Errorf("%s: %w", op, storage.ErrUserNotFound)
	}

	res, err := s.users.UpdateOne(ctx,
		bson.D{
			{Key: "_id", Value: id},
			{Key: "refresh_token", Value: expected},
		},
		bson.D{
			{Key: "$set", Value: bson.D{
				{Key: "refresh_token", Value: token},
				{Key: "updated_at", Value: time.Now().UTC()},
			}},
		},
	)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	if res.MatchedCount == 0 {
		return fmt.Errorf("%s: %w", op, storage.ErrTokenMismatch)
	}

	return nil
}

// UpdatePassword stores a new password hash.
func (s *Storage) UpdatePassword(ctx context.Context, userID string, passHash []byte) error {
	const op = "storage.mongodb.UpdatePassword"

	_, err := s.updateUser(ctx, userID, bson.D{{Key: "password", Value: passHash}})
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	return nil
}

// UpdateAccount sets full name and email and returns the updated user
// without credentials.
func (s *Storage) UpdateAccount(ctx context.Context, userID, fullName, email string) (*models.User, error) {
	const op = "storage.mongodb.UpdateAccount"

	user, err := s.updateUser(ctx, userID, bson.D{
		{Key: "fullname", Value: fullName},
		{Key: "email", Value: email},
	})
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return user, nil
}

// UpdateAvatar sets the avatar URL.
func (s *Storage) UpdateAvatar(ctx context.Context, userID, url string) (*models.User, error) {
	const op = "storage.mongodb.UpdateAvatar"

	user, err := s.updateUser(ctx, userID, bson.D{{Key: "avatar", Value: url}})
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return user, nil
}

// UpdateCoverImage sets the cover image URL.
func (s *Storage) UpdateCoverImage(ctx context.Context, userID, url string) (*models.User, error) {
	const op = "storage.mongodb.UpdateCoverImage"

	user, err := s.updateUser(ctx, userID, bson.D{{Key: "cover_image", Value: url}})
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return user, nil
}

// SaveSubscription records that subscriber follows channel.
func (s *Storage) SaveSubscription(ctx context.Context, subscriberID, channelID string) error {
	const op = "storage.mongodb.SaveSubscription"

	sub, ch, err := subscriptionIDs(subscriberID, channelID)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	now := time.Now().UTC()
	_, err = s.subscriptions.InsertOne(ctx, subscriptionDoc{
		Subscriber: sub,
		Channel:    ch,
		CreatedAt:  now,
		UpdatedAt:  now,
	})
	if err != nil {
		if isDuplicateKeyError(err) {
			return fmt.Errorf("%s: %w", op, storage.ErrSubscriptionExists)
		}
		return fmt.Errorf("%s: %w", op, err)
	}

	return nil
}

// DeleteSubscription removes the subscriber -> channel edge.
func (s *Storage) DeleteSubscription(ctx context.Context, subscriberID, channelID string) error {
	const op = "storage.mongodb.DeleteSubscription"

	sub, ch, err := subscriptionIDs(subscriberID, channelID)
	if err != nil {
		return fmt.Errorf("%s: %w", op, storage.ErrSubscriptionNotFound)
	}

	res, err := s.subscriptions.DeleteOne(ctx, bson.D{
		{Key: "subscriber", Value: sub},
		{Key: "channel", Value: ch},
	})
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	if res.DeletedCount == 0 {
		return fmt.Errorf("%s: %w", op, storage.ErrSubscriptionNotFound)
	}

	return nil
}

// ChannelStats returns the number of subscribers of channelID, the number
// of channels channelID subscribes to, and whether viewerID subscribes to it.
func (s *Storage) ChannelStats(ctx context.Context, channelID, viewerID string) (subscribers, subscribedTo int64, isSubscribed bool, err error) {
	const op = "storage.mongodb.ChannelStats"

	ch, err := bson.ObjectIDFromHex(channelID)
	if err != nil {
		return 0, 0, false, fmt.Errorf("%s: %w", op, storage.ErrUserNotFound)
	}

	subscribers, err = s.subscriptions.CountDocuments(ctx, bson.D{{Key: "channel", Value: ch}})
	if err != nil {
		return 0, 0, false, fmt.Errorf("%s: subscribers: %w", op, err)
	}

	subscribedTo, err = s.subscriptions.CountDocuments(ctx, bson.D{{Key: "subscriber", Value: ch}})
	if err != nil {
		return 0, 0, false, fmt.Errorf("%s: subscribed to: %w", op, err)
	}

	if viewer, verr := bson.ObjectIDFromHex(viewerID); verr == nil {
		n, err := s.subscriptions.CountDocuments(ctx,
			bson.D{{Key: "subscriber", Value: viewer}, {Key: "channel", Value: ch}},
			options.Count().SetLimit(1),
		)
		if err != nil {
			return 0, 0, false, fmt.Errorf("%s: is subscribed: %w", op, err)
		}
		isSubscribed = n > 0
	}

	return subscribers, subscribedTo, isSubscribed, nil
}

func (s *Storage) findUser(
	ctx context.Context,
	filter bson.D,
	opts ...options.Lister[options.FindOneOptions],
) (*models.User, error) {
	if filter == nil {
		return nil, storage.ErrUserNotFound
	}

	var doc userDoc
	err := s.users.FindOne(ctx, filter, opts...).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, storage.ErrUserNotFound
		}
		return nil, err
	}

	return doc.toModel(), nil
}

// updateUser applies $set fields to one user and returns the result
// without credentials.
func (s *Storage) updateUser(ctx context.Context, userID string, fields bson.D) (*models.User, error) {
	id, err := bson.ObjectIDFromHex(userID)
	if err != nil {
		return nil, storage.ErrUserNotFound
	}

	fields = append(fields, bson.E{Key: "updated_at", Value: time.Now().UTC()})
	opts := options.FindOneAndUpdate().
		SetReturnDocument(options.After).
		SetProjection(profileProjection)

	var doc userDoc
	err = s.users.FindOneAndUpdate(ctx,
		bson.D{{Key: "_id", Value: id}},
		bson.D{{Key: "$set", Value: fields}},
		opts,
	).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, storage.ErrUserNotFound
		}
		if isDuplicateKeyError(err) {
			return nil, storage.ErrUserAlreadyExists
		}
		return nil, err
	}

	return doc.toModel(), nil
}

func (d userDoc) toModel() *models.User {
	return &models.User{
		ID:           d.ID.Hex(),
		Username:     d.Username,
		Email:        d.Email,
		FullName:     d.FullName,
		Avatar:       d.Avatar,
		CoverImage:   d.CoverImage,
		PassHash:     d.PassHash,
		RefreshToken: d.RefreshToken,
		CreatedAt:    d.CreatedAt,
		UpdatedAt:    d.UpdatedAt,
	}
}

func byID(userID string) bson.D {
	id, err := bson.ObjectIDFromHex(userID)
	if err != nil {
		return nil
	}
	return bson.D{{Key: "_id", Value: id}}
}

func loginFilter(username, email string) bson.D {
	var or bson.A
	if username != "" {
		or = append(or, bson.D{{Key: "username", Value: username}})
	}
	if email != "" {
		or = append(or, bson.D{{Key: "email", Value: email}})
	}
	if len(or) == 0 {
		return nil
	}
	return bson.D{{Key: "$or", Value: or}}
}

func subscriptionIDs(subscriberID, channelID string) (bson.ObjectID, bson.ObjectID, error) {
	sub, err := bson.ObjectIDFromHex(subscriberID)
	if err != nil {
		return bson.NilObjectID, bson.NilObjectID, storage.ErrUserNotFound
	}
	ch, err := bson.ObjectIDFromHex(channelID)
	if err != nil {
		return bson.NilObjectID, bson.NilObjectID, storage.ErrUserNotFound
	}
	return sub, ch, nil
}

// isDuplicateKeyError checks if the error is a MongoDB duplicate key error (code 11000).
func isDuplicateKeyError(err error) bool {
	var we mongo.WriteException
	if errors.As(err, &we) {
		for _, e := range we.WriteErrors {
			if e.Code == 11000 {
				return true
			}
		}
	}

	var ce mongo.CommandError
	if errors.As(err, &ce) && ce.Code == 11000 {
		return true
	}

	return false
}
