package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/princinho/adminportal/models"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

const AccountsCollection = "admins"

// MongoAccountRepository stores one document per account, with the refresh
// token registry embedded. Every write is a single-document update.
type MongoAccountRepository struct {
	col *mongo.Collection
}

func NewMongoAccountRepository(col *mongo.Collection) *MongoAccountRepository {
	return &MongoAccountRepository{col: col}
}

// EnsureIndexes creates the unique email index.
func (r *MongoAccountRepository) EnsureIndexes(ctx context.Context) error {
	_, err := r.col.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "email", Value: 1}},
		Options: options.Index().SetUnique(true).SetName("uniq_email"),
	})
	if err != nil {
		return fmt.Errorf("create email index: %w", err)
	}
	return nil
}

func isDuplicateKey(err error) bool {
	var we mongo.WriteException
	if errors.As(err, &we) {
		for _, e := range we.WriteErrors {
			if e.Code == 11000 || e.Code == 11001 {
				return true
			}
		}
	}
	if mongo.IsDuplicateKeyError(err) {
		return true
	}
	return strings.Contains(err.Error(), "E11000 duplicate key error")
}

func (r *MongoAccountRepository) findOne(ctx context.Context, filter bson.M) (*models.Account, error) {
	var acc models.Account
	if err := r.col.FindOne(ctx, filter).Decode(&acc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("find account: %w", err)
	}
	return &acc, nil
}

func (r *MongoAccountRepository) FindByEmail(ctx context.Context, email string) (*models.Account, error) {
	acc, err := r.findOne(ctx, bson.M{"email": email})
	if errors.Is(err, ErrNotFound) {
		return nil, nil
	}
	return acc, err
}

func (r *MongoAccountRepository) FindByID(ctx context.Context, id string) (*models.Account, error) {
	oid, err := bson.ObjectIDFromHex(id)
	if err != nil {
		return nil, ErrNotFound
	}
	return r.findOne(ctx, bson.M{"_id": oid})
}

func (r *MongoAccountRepository) List(ctx context.Context) ([]models.Account, error) {
	opts := options.Find().
		SetSort(bson.D{{Key: "createdAt", Value: 1}}).
		SetProjection(bson.M{"passwordHash": 0, "refreshTokens": 0})
	cursor, err := r.col.Find(ctx, bson.M{}, opts)
	if err != nil {
		return nil, fmt.Errorf("list accounts: %w", err)
	}
	defer cursor.Close(ctx)

	accounts := make([]models.Account, 0)
	if err := cursor.All(ctx, &accounts); err != nil {
		return nil, fmt.Errorf("decode accounts: %w", err)
	}
	return accounts, nil
}

func (r *MongoAccountRepository) Create(ctx context.Context, acc *models.Account) error {
	if acc.ID.IsZero() {
		acc.ID = bson.NewObjectID()
	}
	if acc.RefreshTokens == nil {
		acc.RefreshTokens = []models.RefreshToken{}
	}
	if _, err := r.col.InsertOne(ctx, acc); err != nil {
		if isDuplicateKey(err) {
			return ErrDuplicateIdentity
		}
		return fmt.Errorf("insert account: %w", err)
	}
	return nil
}

func (r *MongoAccountRepository) Update(ctx context.Context, id string, patch AccountPatch, now time.Time) (*models.Account, error) {
	oid, err := bson.ObjectIDFromHex(id)
	if err != nil {
		return nil, ErrNotFound
	}
	set := bson.M{"updatedAt": now}
	if patch.Name != nil {
		set["name"] = *patch.Name
	}
	if patch.Role != nil {
		set["role"] = *patch.Role
	}
	if patch.Permissions != nil {
		set["permissions"] = *patch.Permissions
	}
	if patch.IsActive != nil {
		set["isActive"] = *patch.IsActive
	}

	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)
	var acc models.Account
	err = r.col.FindOneAndUpdate(ctx, bson.M{"_id": oid}, bson.M{"$set": set}, opts).Decode(&acc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("update account: %w", err)
	}
	return &acc, nil
}

func (r *MongoAccountRepository) updateByHex(ctx context.Context, id string, update interface{}) (*mongo.UpdateResult, error) {
	oid, err := bson.ObjectIDFromHex(id)
	if err != nil {
		return nil, ErrNotFound
	}
	res, err := r.col.UpdateByID(ctx, oid, update)
	if err != nil {
		return nil, err
	}
	if res.MatchedCount == 0 {
		return nil, ErrNotFound
	}
	return res, nil
}

func (r *MongoAccountRepository) SetPasswordHash(ctx context.Context, id, hash string, now time.Time) error {
	_, err := r.updateByHex(ctx, id, bson.M{
		"$set": bson.M{
			"passwordHash": hash,
			"updatedAt":    now,
		},
	})
	return err
}

func (r *MongoAccountRepository) RecordLoginSuccess(ctx context.Context, id string, now time.Time) error {
	_, err := r.updateByHex(ctx, id, bson.M{
		"$set":   bson.M{"failedAttemptCount": 0, "lastLoginAt": now},
		"$unset": bson.M{"lockedUntil": ""},
	})
	return err
}

func (r *MongoAccountRepository) RecordLoginFailure(ctx context.Context, id string, now time.Time, lockThreshold int, lockFor time.Duration) (int, error) {
	oid, err := bson.ObjectIDFromHex(id)
	if err != nil {
		return 0, ErrNotFound
	}
	// Pipeline update so the increment and the lock decision see the same
	// count. An expired lock starts a fresh count.
	lockExpired := bson.M{"$and": bson.A{
		bson.M{"$eq": bson.A{bson.M{"$type": "$lockedUntil"}, "date"}},
		bson.M{"$lte": bson.A{"$lockedUntil", now}},
	}}
	pipeline := mongo.Pipeline{
		{{Key: "$set", Value: bson.M{
			"failedAttemptCount": bson.M{"$cond": bson.A{
				lockExpired,
				1,
				bson.M{"$add": bson.A{bson.M{"$ifNull": bson.A{"$failedAttemptCount", 0}}, 1}},
			}},
			"lockedUntil": bson.M{"$cond": bson.A{lockExpired, "$$REMOVE", "$lockedUntil"}},
		}}},
	}
	if lockThreshold > 0 {
		pipeline = append(pipeline, bson.D{{Key: "$set", Value: bson.M{
			"lockedUntil": bson.M{"$cond": bson.A{
				bson.M{"$gte": bson.A{"$failedAttemptCount", lockThreshold}},
				now.Add(lockFor),
				"$lockedUntil",
			}},
		}}})
	}

	opts := options.FindOneAndUpdate().
		SetReturnDocument(options.After).
		SetProjection(bson.M{"failedAttemptCount": 1})
	var out struct {
		FailedAttemptCount int `bson:"failedAttemptCount"`
	}
	if err := r.col.FindOneAndUpdate(ctx, bson.M{"_id": oid}, pipeline, opts).Decode(&out); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return 0, ErrNotFound
		}
		return 0, fmt.Errorf("record login failure: %w", err)
	}
	return out.FailedAttemptCount, nil
}

func (r *MongoAccountRepository) AddRefreshToken(ctx context.Context, id string, entry models.RefreshToken, capacity int, now time.Time) error {
	live := bson.M{"$filter": bson.M{
		"input": bson.M{"$ifNull": bson.A{"$refreshTokens", bson.A{}}},
		"as":    "t",
		"cond":  bson.M{"$gt": bson.A{"$$t.expiresAt", now}},
	}}
	var tokens interface{} = bson.M{"$concatArrays": bson.A{
		live,
		bson.A{bson.M{"$literal": entry}},
	}}
	if capacity > 0 {
		tokens = bson.M{"$slice": bson.A{tokens, -capacity}}
	}
	pipeline := mongo.Pipeline{
		{{Key: "$set", Value: bson.M{"refreshTokens": tokens}}},
	}
	if _, err := r.updateByHex(ctx, id, pipeline); err != nil {
		if errors.Is(err, ErrNotFound) {
			return err
		}
		return fmt.Errorf("add refresh token: %w", err)
	}
	return nil
}

func (r *MongoAccountRepository) HasRefreshToken(ctx context.Context, id, tokenHash string, now time.Time) (bool, error) {
	oid, err := bson.ObjectIDFromHex(id)
	if err != nil {
		return false, nil
	}
	n, err := r.col.CountDocuments(ctx, bson.M{
		"_id": oid,
		"refreshTokens": bson.M{"$elemMatch": bson.M{
			"tokenHash": tokenHash,
			"expiresAt": bson.M{"$gt": now},
		}},
	}, options.Count().SetLimit(1))
	if err != nil {
		return false, fmt.Errorf("lookup refresh token: %w", err)
	}
	return n > 0, nil
}

func (r *MongoAccountRepository) RemoveRefreshToken(ctx context.Context, id, tokenHash string) (bool, error) {
	oid, err := bson.ObjectIDFromHex(id)
	if err != nil {
		return false, nil
	}
	res, err := r.col.UpdateOne(ctx,
		bson.M{"_id": oid, "refreshTokens.tokenHash": tokenHash},
		bson.M{"$pull": bson.M{"refreshTokens": bson.M{"tokenHash": tokenHash}}},
	)
	if err != nil {
		return false, fmt.Errorf("revoke refresh token: %w", err)
	}
	return res.ModifiedCount > 0, nil
}

func (r *MongoAccountRepository) RemoveAllRefreshTokens(ctx context.Context, id string) error {
	_, err := r.updateByHex(ctx, id, bson.M{"$set": bson.M{"refreshTokens": bson.A{}}})
	if err != nil && !errors.Is(err, ErrNotFound) {
		return fmt.Errorf("revoke all refresh tokens: %w", err)
	}
	return err
}

func (r *MongoAccountRepository) PruneExpiredRefreshTokens(ctx context.Context, now time.Time) (int64, error) {
	res, err := r.col.UpdateMany(ctx,
		bson.M{"refreshTokens.expiresAt": bson.M{"$lte": now}},
		bson.M{"$pull": bson.M{"refreshTokens": bson.M{"expiresAt": bson.M{"$lte": now}}}},
	)
	if err != nil {
		return 0, fmt.Errorf("prune refresh tokens: %w", err)
	}
	return res.ModifiedCount, nil
}
