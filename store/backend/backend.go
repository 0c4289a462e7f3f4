// Package backend selects the active storage implementation at startup.
//
// The choice is made exactly once: if MongoDB is configured but cannot be
// reached within the connect timeout, the service falls back to the JSON
// file backend for the remainder of the process lifetime. There is no
// automatic upgrade back to the database without a restart.
package backend

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/mukkaai/authd/config"
	"github.com/mukkaai/authd/store"
	"github.com/mukkaai/authd/store/file"
	"github.com/mukkaai/authd/store/mongo"
)

// Kind identifies the active storage backend.
type Kind string

const (
	KindMongoDB Kind = "mongodb"
	KindFile    Kind = "file"
)

// Stores is the resolved store bundle handed to the session coordinator.
// Handlers never see the concrete implementation.
type Stores struct {
	Users         store.UserStore
	RefreshTokens store.RefreshTokenStore
	ResetTokens   store.ResetTokenStore
	Kind          Kind

	conn *mongo.Conn
}

// Close releases backend resources.
func (s *Stores) Close(ctx context.Context) error {
	if s.conn != nil {
		return s.conn.Close(ctx)
	}
	return nil
}

// Ping reports backend health. The file backend is always healthy once
// opened.
func (s *Stores) Ping(ctx context.Context) error {
	if s.conn != nil {
		return s.conn.Ping(ctx)
	}
	return nil
}

// Open resolves the storage backend per configuration. When UseMongoDB is
// set and the database is unreachable, it logs the failure and falls back
// to the file backend rather than refusing to start.
func Open(ctx context.Context, cfg config.Config, logger *slog.Logger) (*Stores, error) {
	if cfg.UseMongoDB {
		conn, err := mongo.Connect(ctx, cfg.MongoURI, cfg.MongoDatabase)
		if err == nil {
			logger.Info("using MongoDB for data storage", "database", cfg.MongoDatabase)
			return &Stores{
				Users:         conn.Users(),
				RefreshTokens: conn.RefreshTokens(),
				ResetTokens:   conn.ResetTokens(),
				Kind:          KindMongoDB,
				conn:          conn,
			}, nil
		}
		logger.Error("failed to connect to MongoDB", "error", err)
		logger.Info("falling back to JSON file storage")
	}

	fs, err := file.Open(cfg.UsersFilePath)
	if err != nil {
		return nil, fmt.Errorf("opening file store: %w", err)
	}
	logger.Info("using JSON file for data storage", "path", cfg.UsersFilePath)
	return &Stores{
		Users:         fs.Users(),
		RefreshTokens: fs.RefreshTokens(),
		ResetTokens:   fs.ResetTokens(),
		Kind:          KindFile,
	}, nil
}
