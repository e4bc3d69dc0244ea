package mongodb

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"shopauth/internal/domain/models"
	"shopauth/internal/storage"
)

const (
	duplicateKeyCode = 11000

	userNameIndex     = "users_user_name_key"
	emailIndex        = "users_email_key"
	refreshTokenIndex = "users_refresh_token_idx"
)

type Storage struct {
	client   *mongo.Client
	users    *mongo.Collection
	counters *mongo.Collection
}

type userDoc struct {
	ID                 int64      `bson:"_id"`
	UserName           string     `bson:"user_name"`
	Email              string     `bson:"email"`
	PassHash           []byte     `bson:"pass_hash"`
	RefreshToken       *string    `bson:"refresh_token"`
	RefreshTokenExpiry *time.Time `bson:"refresh_token_expiry"`
	LastLoginTime      *time.Time `bson:"last_login_time"`
	CreatedAt          time.Time  `bson:"created_at"`
	UpdatedAt          time.Time  `bson:"updated_at"`
}

type counterDoc struct {
	ID    string `bson:"_id"`
	Value int64  `bson:"value"`
}

// New connects to MongoDB and makes sure the users indexes exist.
func New(ctx context.Context, uri, database string) (*Storage, error) {
	const op = "storage.mongodb.New"

	client, err := mongo.Connect(options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("%s: connect: %w", op, err)
	}

	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("%s: ping: %w", op, err)
	}

	db := client.Database(database)
	s := &Storage{
		client:   client,
		users:    db.Collection("users"),
		counters: db.Collection("counters"),
	}

	if err := s.EnsureIndexes(ctx); err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return s, nil
}

// EnsureIndexes creates the unique user_name and email indexes and the
// refresh_token lookup index. It is idempotent.
func (s *Storage) EnsureIndexes(ctx context.Context) error {
	const op = "storage.mongodb.EnsureIndexes"

	_, err := s.users.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "user_name", Value: 1}},
			Options: options.Index().SetUnique(true).SetName(userNameIndex),
		},
		{
			Keys:    bson.D{{Key: "email", Value: 1}},
			Options: options.Index().SetUnique(true).SetName(emailIndex),
		},
		{
			// Not unique: cleared sessions all store null.
			Keys:    bson.D{{Key: "refresh_token", Value: 1}},
			Options: options.Index().SetName(refreshTokenIndex),
		},
	})
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	return nil
}

// Close disconnects from MongoDB.
func (s *Storage) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}

// nextID atomically increments and returns the next ID for a given collection.
func (s *Storage) nextID(ctx context.Context, collectionName string) (int64, error) {
	filter := bson.D{{Key: "_id", Value: collectionName}}
	update := bson.D{{Key: "$inc", Value: bson.D{{Key: "value", Value: int64(1)}}}}
	opts := options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After)

	var counter counterDoc
	if err := s.counters.FindOneAndUpdate(ctx, filter, update, opts).Decode(&counter); err != nil {
		return 0, err
	}

	return counter.Value, nil
}

// SaveUser inserts a new user and returns its id.
func (s *Storage) SaveUser(ctx context.Context, user *models.User) (int64, error) {
	const op = "storage.mongodb.SaveUser"

	id, err := s.nextID(ctx, "users")
	if err != nil {
		return 0, fmt.Errorf("%s: nextID: %w", op, err)
	}

	doc := toDoc(user)
	doc.ID = id

	if _, err := s.users.InsertOne(ctx, doc); err != nil {
		if derr := duplicateKey(err); derr != nil {
			return 0, fmt.Errorf("%s: %w", op, derr)
		}
		return 0, fmt.Errorf("%s: %w", op, err)
	}

	return id, nil
}

// UpdateUser rewrites the mutable fields of user with a single $set, so the
// refresh token and its expiry always change together.
func (s *Storage) UpdateUser(ctx context.Context, user *models.User) error {
	const op = "storage.mongodb.UpdateUser"

	doc := toDoc(user)
	update := bson.D{{Key: "$set", Value: bson.D{
		{Key: "user_name", Value: doc.UserName},
		{Key: "email", Value: doc.Email},
		{Key: "pass_hash", Value: doc.PassHash},
		{Key: "refresh_token", Value: doc.RefreshToken},
		{Key: "refresh_token_expiry", Value: doc.RefreshTokenExpiry},
		{Key: "last_login_time", Value: doc.LastLoginTime},
		{Key: "updated_at", Value: doc.UpdatedAt},
	}}}

	res, err := s.users.UpdateOne(ctx, bson.D{{Key: "_id", Value: user.ID}}, update)
	if err != nil {
		if derr := duplicateKey(err); derr != nil {
			return fmt.Errorf("%s: %w", op, derr)
		}
		return fmt.Errorf("%s: %w", op, err)
	}
	if res.MatchedCount == 0 {
		return fmt.Errorf("%s: %w", op, storage.ErrUserNotFound)
	}

	return nil
}

func (s *Storage) UserByName(ctx context.Context, userName string) (*models.User, error) {
	const op = "storage.mongodb.UserByName"

	return s.findOne(ctx, op, bson.D{{Key: "user_name", Value: userName}})
}

func (s *Storage) UserByID(ctx context.Context, userID int64) (*models.User, error) {
	const op = "storage.mongodb.UserByID"

	return s.findOne(ctx, op, bson.D{{Key: "_id", Value: userID}})
}

func (s *Storage) UserByRefreshToken(ctx context.Context, refreshToken string) (*models.User, error) {
	const op = "storage.mongodb.UserByRefreshToken"

	return s.findOne(ctx, op, bson.D{{Key: "refresh_token", Value: refreshToken}})
}

func (s *Storage) UserNameExists(ctx context.Context, userName string) (bool, error) {
	const op = "storage.mongodb.UserNameExists"

	return s.exists(ctx, op, bson.D{{Key: "user_name", Value: userName}})
}

func (s *Storage) EmailExists(ctx context.Context, email string) (bool, error) {
	const op = "storage.mongodb.EmailExists"

	return s.exists(ctx, op, bson.D{{Key: "email", Value: email}})
}

func (s *Storage) findOne(ctx context.Context, op string, filter bson.D) (*models.User, error) {
	var doc userDoc
	if err := s.users.FindOne(ctx, filter).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, fmt.Errorf("%s: %w", op, storage.ErrUserNotFound)
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return fromDoc(doc), nil
}

func (s *Storage) exists(ctx context.Context, op string, filter bson.D) (bool, error) {
	n, err := s.users.CountDocuments(ctx, filter, options.Count().SetLimit(1))
	if err != nil {
		return false, fmt.Errorf("%s: %w", op, err)
	}

	return n > 0, nil
}

func toDoc(user *models.User) userDoc {
	return userDoc{
		ID:                 user.ID,
		UserName:           user.UserName,
		Email:              user.Email,
		PassHash:           user.PassHash,
		RefreshToken:       user.RefreshToken,
		RefreshTokenExpiry: utc(user.RefreshTokenExpiry),
		LastLoginTime:      utc(user.LastLoginTime),
		CreatedAt:          user.CreatedAt.UTC(),
		UpdatedAt:          user.UpdatedAt.UTC(),
	}
}

func fromDoc(doc userDoc) *models.User {
	user := &models.User{
		ID:            doc.ID,
		UserName:      doc.UserName,
		Email:         doc.Email,
		PassHash:      doc.PassHash,
		LastLoginTime: doc.LastLoginTime,
		CreatedAt:     doc.CreatedAt,
		UpdatedAt:     doc.UpdatedAt,
	}
	if doc.RefreshToken != nil && doc.RefreshTokenExpiry != nil {
		user.SetSession(*doc.RefreshToken, *doc.RefreshTokenExpiry)
	}

	return user
}

func utc(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	u := t.UTC()

	return &u
}

// duplicateKey maps a duplicate key write error (code 11000) to the storage
// error for the index that rejected it.
func duplicateKey(err error) error {
	var we mongo.WriteException
	if !errors.As(err, &we) {
		return nil
	}

	for _, e := range we.WriteErrors {
		if e.Code != duplicateKeyCode {
			continue
		}
		if strings.Contains(e.Message, emailIndex) {
			return storage.ErrEmailExists
		}
		return storage.ErrUserNameExists
	}

	return nil
}
