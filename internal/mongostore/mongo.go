package mongostore

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const (
	reportsCollection = "reports"
	usersCollection   = "users"
)

// Connect opens a client, pings it and ensures the indexes the stores rely on.
func Connect(ctx context.Context, uri, dbName string) (*mongo.Client, *mongo.Database, error) {
	if strings.TrimSpace(uri) == "" {
		return nil, nil, errors.New("mongo: uri is required")
	}
	if strings.TrimSpace(dbName) == "" {
		dbName = "pothole"
	}

	start := time.Now()
	dctx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()

	client, err := mongo.Connect(dctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, nil, fmt.Errorf("mongo connect: %w", err)
	}
	if err := client.Ping(dctx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, nil, fmt.Errorf("mongo ping: %w", err)
	}

	db := client.Database(dbName)
	if err := ensureIndexes(ctx, db); err != nil {
		log.Warn().Err(err).Msg("mongo: index creation warnings")
	}

	log.Info().Str("uri", redactURI(uri)).Str("db", dbName).
		Dur("elapsed", time.Since(start).Round(time.Millisecond)).Msg("mongo connected")
	return client, db, nil
}

func ensureIndexes(ctx context.Context, db *mongo.Database) error {
	ictx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	var errs []error
	_, err := db.Collection(reportsCollection).Indexes().CreateMany(ictx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "created_at", Value: -1}}},
		{Keys: bson.D{{Key: "authority", Value: 1}, {Key: "created_at", Value: -1}}},
		{Keys: bson.D{{Key: "reporter_id", Value: 1}, {Key: "created_at", Value: -1}}},
	})
	if err != nil {
		errs = append(errs, fmt.Errorf("reports: %w", err))
	}

	_, err = db.Collection(usersCollection).Indexes().CreateOne(ictx, mongo.IndexModel{
		Keys:    bson.D{{Key: "email", Value: 1}},
		Options: options.Index().SetUnique(true),
	})
	if err != nil {
		errs = append(errs, fmt.Errorf("users: %w", err))
	}
	return errors.Join(errs...)
}

func redactURI(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.User == nil {
		return raw
	}
	u.User = url.UserPassword("****", "****")
	return u.String()
}
