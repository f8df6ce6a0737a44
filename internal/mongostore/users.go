package mongostore

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/potholewatch/backend/internal/repo"
)

type userDoc struct {
	ID            primitive.ObjectID `bson:"_id,omitempty"`
	Name          string             `bson:"name"`
	Email         string             `bson:"email"`
	PasswordHash  string             `bson:"password_hash"`
	Role          string             `bson:"role"`
	HomeAuthority string             `bson:"home_authority,omitempty"`
	CreatedAt     time.Time          `bson:"created_at"`
}

// Users stores accounts in MongoDB. Email uniqueness relies on the index
// created by Connect.
type Users struct {
	col *mongo.Collection
}

// NewUsers binds the store to db.
func NewUsers(db *mongo.Database) *Users {
	return &Users{col: db.Collection(usersCollection)}
}

func (s *Users) InsertUser(ctx context.Context, in repo.NewUser) (repo.User, error) {
	doc := userDoc{
		ID:            primitive.NewObjectID(),
		Name:          strings.TrimSpace(in.Name),
		Email:         strings.ToLower(strings.TrimSpace(in.Email)),
		PasswordHash:  in.PasswordHash,
		Role:          in.Role,
		HomeAuthority: in.HomeAuthority,
		CreatedAt:     time.Now().UTC(),
	}
	if _, err := s.col.InsertOne(ctx, doc); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return repo.User{}, repo.ErrDuplicate
		}
		return repo.User{}, err
	}
	return userFromDoc(doc), nil
}

func (s *Users) GetUserByEmail(ctx context.Context, email string) (repo.User, error) {
	return s.findOne(ctx, bson.M{"email": strings.ToLower(strings.TrimSpace(email))})
}

func (s *Users) GetUserByID(ctx context.Context, id string) (repo.User, error) {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return repo.User{}, repo.ErrNotFound
	}
	return s.findOne(ctx, bson.M{"_id": oid})
}

// ListUsers returns accounts, newest first.
func (s *Users) ListUsers(ctx context.Context) ([]repo.User, error) {
	cur, err := s.col.Find(ctx, bson.M{}, options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}}))
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	var users []repo.User
	for cur.Next(ctx) {
		var doc userDoc
		if err := cur.Decode(&doc); err != nil {
			return nil, err
		}
		users = append(users, userFromDoc(doc))
	}
	return users, cur.Err()
}

func (s *Users) findOne(ctx context.Context, filter bson.M) (repo.User, error) {
	var doc userDoc
	err := s.col.FindOne(ctx, filter).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return repo.User{}, repo.ErrNotFound
	}
	if err != nil {
		return repo.User{}, err
	}
	return userFromDoc(doc), nil
}

func userFromDoc(doc userDoc) repo.User {
	role := doc.Role
	if role == "" {
		role = "user"
	}
	return repo.User{
		ID:            doc.ID.Hex(),
		Name:          doc.Name,
		Email:         doc.Email,
		PasswordHash:  doc.PasswordHash,
		Role:          role,
		HomeAuthority: doc.HomeAuthority,
		CreatedAt:     doc.CreatedAt.UTC(),
	}
}
