// Package mongo provides the MongoDB-backed store implementation.
package mongo

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/mukkaai/authd/store"
)

const (
	connectTimeout = 5 * time.Second
	socketTimeout  = 45 * time.Second

	usersCollection  = "users"
	tokensCollection = "refresh_tokens"
	resetCollection  = "password_reset_tokens"
)

// Conn holds the client and the per-entity store implementations.
type Conn struct {
	client *mongo.Client
	db     *mongo.Database

	users   *UserStore
	refresh *RefreshTokenStore
	reset   *ResetTokenStore
}

// Connect dials MongoDB, verifies the connection with a ping, and prepares
// indexes. The connect timeout is deliberately short so a startup fallback
// to file storage happens quickly.
func Connect(ctx context.Context, uri, dbName string) (*Conn, error) {
	opts := options.Client().
		ApplyURI(uri).
		SetConnectTimeout(connectTimeout).
		SetSocketTimeout(socketTimeout)

	client, err := mongo.Connect(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("connecting to mongodb: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()
	if err := client.Ping(pingCtx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("pinging mongodb: %w", err)
	}

	db := client.Database(dbName)
	c := &Conn{
		client:  client,
		db:      db,
		users:   &UserStore{db.Collection(usersCollection)},
		refresh: &RefreshTokenStore{db.Collection(tokensCollection)},
		reset:   &ResetTokenStore{db.Collection(resetCollection)},
	}
	if err := c.ensureIndexes(ctx); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, err
	}
	return c, nil
}

func (c *Conn) ensureIndexes(ctx context.Context) error {
	idxCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	_, err := c.db.Collection(usersCollection).Indexes().CreateOne(idxCtx, mongo.IndexModel{
		Keys:    bson.D{{Key: "username", Value: 1}},
		Options: options.Index().SetUnique(true),
	})
	if err != nil {
		return fmt.Errorf("creating username index: %w", err)
	}

	_, err = c.db.Collection(tokensCollection).Indexes().CreateMany(idxCtx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "username", Value: 1}}},
		{Keys: bson.D{{Key: "expiresAt", Value: 1}}},
	})
	if err != nil {
		return fmt.Errorf("creating refresh token indexes: %w", err)
	}

	_, err = c.db.Collection(resetCollection).Indexes().CreateMany(idxCtx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "token", Value: 1}}},
		{Keys: bson.D{{Key: "username", Value: 1}}},
		{Keys: bson.D{{Key: "expiresAt", Value: 1}}},
	})
	if err != nil {
		return fmt.Errorf("creating reset token indexes: %w", err)
	}
	return nil
}

// Close disconnects the client.
func (c *Conn) Close(ctx context.Context) error {
	return c.client.Disconnect(ctx)
}

// Ping verifies the connection is still alive.
func (c *Conn) Ping(ctx context.Context) error {
	pingCtx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()
	return c.client.Ping(pingCtx, nil)
}

func (c *Conn) Users() *UserStore                 { return c.users }
func (c *Conn) RefreshTokens() *RefreshTokenStore { return c.refresh }
func (c *Conn) ResetTokens() *ResetTokenStore     { return c.reset }

// UserStore implements store.UserStore.
type UserStore struct{ coll *mongo.Collection }

var _ store.UserStore = (*UserStore)(nil)

func (s *UserStore) FindByUsername(ctx context.Context, username string) (*store.User, error) {
	return s.findOne(ctx, bson.M{"username": strings.ToLower(username)})
}

func (s *UserStore) FindByEmail(ctx context.Context, email string) (*store.User, error) {
	return s.findOne(ctx, bson.M{"email": strings.ToLower(email)})
}

func (s *UserStore) findOne(ctx context.Context, filter bson.M) (*store.User, error) {
	var user store.User
	err := s.coll.FindOne(ctx, filter).Decode(&user)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, store.ErrNotFound
		}
		return nil, fmt.Errorf("finding user: %w", err)
	}
	return &user, nil
}

func (s *UserStore) Create(ctx context.Context, user *store.User) error {
	u := *user
	u.Username = strings.ToLower(user.Username)
	_, err := s.coll.InsertOne(ctx, &u)
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return store.ErrDuplicateUser
		}
		return fmt.Errorf("creating user: %w", err)
	}
	return nil
}

func (s *UserStore) Update(ctx context.Context, user *store.User) error {
	username := strings.ToLower(user.Username)
	update := bson.M{"$set": bson.M{
		"passwordHash": user.PasswordHash,
		"role":         user.Role,
		"email":        user.Email,
		"displayName":  user.DisplayName,
		"preferences":  user.Preferences,
		"updatedAt":    user.UpdatedAt,
	}}
	result, err := s.coll.UpdateOne(ctx, bson.M{"username": username}, update)
	if err != nil {
		return fmt.Errorf("updating user: %w", err)
	}
	if result.MatchedCount == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *UserStore) Delete(ctx context.Context, username string) (bool, error) {
	result, err := s.coll.DeleteOne(ctx, bson.M{"username": strings.ToLower(username)})
	if err != nil {
		return false, fmt.Errorf("deleting user: %w", err)
	}
	return result.DeletedCount > 0, nil
}

func (s *UserStore) List(ctx context.Context) ([]*store.User, error) {
	opts := options.Find().SetSort(bson.D{{Key: "createdAt", Value: -1}})
	cursor, err := s.coll.Find(ctx, bson.M{}, opts)
	if err != nil {
		return nil, fmt.Errorf("listing users: %w", err)
	}
	defer cursor.Close(ctx)

	var users []*store.User
	if err := cursor.All(ctx, &users); err != nil {
		return nil, fmt.Errorf("decoding users: %w", err)
	}
	return users, nil
}

// RefreshTokenStore implements store.RefreshTokenStore.
type RefreshTokenStore struct{ coll *mongo.Collection }

var _ store.RefreshTokenStore = (*RefreshTokenStore)(nil)

func (s *RefreshTokenStore) Create(ctx context.Context, token *store.RefreshToken) error {
	if _, err := s.coll.InsertOne(ctx, token); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return store.ErrDuplicateToken
		}
		return fmt.Errorf("creating refresh token: %w", err)
	}
	return nil
}

func (s *RefreshTokenStore) FindValid(ctx context.Context, id string) (*store.RefreshToken, error) {
	filter := bson.M{
		"_id":       id,
		"isRevoked": false,
		"expiresAt": bson.M{"$gt": time.Now()},
	}
	var token store.RefreshToken
	err := s.coll.FindOne(ctx, filter).Decode(&token)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, store.ErrNotFound
		}
		return nil, fmt.Errorf("finding refresh token: %w", err)
	}
	return &token, nil
}

func (s *RefreshTokenStore) Revoke(ctx context.Context, id string) (bool, error) {
	result, err := s.coll.UpdateOne(ctx,
		bson.M{"_id": id},
		bson.M{"$set": bson.M{"isRevoked": true}},
	)
	if err != nil {
		return false, fmt.Errorf("revoking refresh token: %w", err)
	}
	return result.MatchedCount > 0, nil
}

func (s *RefreshTokenStore) RevokeAllForUser(ctx context.Context, username string) (int64, error) {
	result, err := s.coll.UpdateMany(ctx,
		bson.M{"username": strings.ToLower(username), "isRevoked": false},
		bson.M{"$set": bson.M{"isRevoked": true}},
	)
	if err != nil {
		return 0, fmt.Errorf("revoking refresh tokens: %w", err)
	}
	return result.ModifiedCount, nil
}

func (s *RefreshTokenStore) RemoveExpired(ctx context.Context, now time.Time) (int64, error) {
	result, err := s.coll.DeleteMany(ctx, bson.M{"expiresAt": bson.M{"$lt": now}})
	if err != nil {
		return 0, fmt.Errorf("removing expired refresh tokens: %w", err)
	}
	return result.DeletedCount, nil
}

// ResetTokenStore implements store.ResetTokenStore.
type ResetTokenStore struct{ coll *mongo.Collection }

var _ store.ResetTokenStore = (*ResetTokenStore)(nil)

func (s *ResetTokenStore) Create(ctx context.Context, token *store.PasswordResetToken) error {
	if _, err := s.coll.InsertOne(ctx, token); err != nil {
		return fmt.Errorf("creating reset token: %w", err)
	}
	return nil
}

func (s *ResetTokenStore) Consume(ctx context.Context, tokenStr string) (string, error) {
	filter := bson.M{
		"token":     tokenStr,
		"isUsed":    false,
		"expiresAt": bson.M{"$gt": time.Now()},
	}
	var token store.PasswordResetToken
	err := s.coll.FindOneAndUpdate(ctx, filter,
		bson.M{"$set": bson.M{"isUsed": true}},
	).Decode(&token)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return "", store.ErrNotFound
		}
		return "", fmt.Errorf("consuming reset token: %w", err)
	}
	return token.Username, nil
}

func (s *ResetTokenStore) InvalidateAllForUser(ctx context.Context, username string) (int64, error) {
	result, err := s.coll.UpdateMany(ctx,
		bson.M{"username": strings.ToLower(username), "isUsed": false},
		bson.M{"$set": bson.M{"isUsed": true}},
	)
	if err != nil {
		return 0, fmt.Errorf("invalidating reset tokens: %w", err)
	}
	return result.ModifiedCount, nil
}

func (s *ResetTokenStore) RemoveExpired(ctx context.Context, now time.Time) (int64, error) {
	filter := bson.M{"$or": bson.A{
		bson.M{"expiresAt": bson.M{"$lt": now}},
		bson.M{"isUsed": true, "createdAt": bson.M{"$lt": now.Add(-store.UsedResetTokenRetention)}},
	}}
	result, err := s.coll.DeleteMany(ctx, filter)
	if err != nil {
		return 0, fmt.Errorf("removing expired reset tokens: %w", err)
	}
	return result.DeletedCount, nil
}
