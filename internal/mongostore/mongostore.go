// Package mongostore is the MongoDB ledger store. The document layout
// mirrors the hosted-document-database deployment this service replaced: one
// user document per account plus three per-stream record collections, with
// the record append and the balance increment applied inside one session
// transaction.
package mongostore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"khata/internal/core"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const (
	usersCollection  = "users"
	cashCollection   = "cashTransactions"
	onlineCollection = "onlineTransactions"
	dueCollection    = "dueTransactions"
)

type MongoStore struct {
	client *mongo.Client
	db     *mongo.Database
}

type accountDoc struct {
	UserID          string `bson:"_id"`
	InitialOnline   int64  `bson:"initialOnlineCents"`
	InitialCash     int64  `bson:"initialCashCents"`
	CurrentOnline   int64  `bson:"currentOnlineCents"`
	CurrentCash     int64  `bson:"currentCashCents"`
	TodayIncome     int64  `bson:"todayIncomeCents"`
	TodayExpense    int64  `bson:"todayExpenseCents"`
	SetupDone       bool   `bson:"initialSetupDone"`
	LastUpdatedDate string `bson:"lastUpdatedDate"`
}

type recordDoc struct {
	ID              primitive.ObjectID `bson:"_id,omitempty"`
	UserID          string             `bson:"userId"`
	Kind            string             `bson:"type"`
	AmountCents     int64              `bson:"amountCents"`
	Description     string             `bson:"description,omitempty"`
	CustomerName    string             `bson:"customerName,omitempty"`
	IsDue           bool               `bson:"isDue,omitempty"`
	IsCollected     bool               `bson:"isCollected,omitempty"`
	IsDueCollection bool               `bson:"isDueCollection,omitempty"`
	CreatedAt       time.Time          `bson:"timestamp"`
	Date            string             `bson:"date"`
}

func NewMongoStore(ctx context.Context, uri, dbName string) (*MongoStore, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("connect mongodb: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("ping mongodb: %w", err)
	}
	return &MongoStore{client: client, db: client.Database(dbName)}, nil
}

func (s *MongoStore) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}

func (s *MongoStore) GetAccount(ctx context.Context, userID string) (core.Account, error) {
	var doc accountDoc
	err := s.db.Collection(usersCollection).FindOne(ctx, bson.M{"_id": userID}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return core.Account{}, core.ErrAccountNotFound
	}
	if err != nil {
		return core.Account{}, fmt.Errorf("get account: %w", err)
	}
	return core.Account{
		UserID:          doc.UserID,
		InitialOnline:   core.Money{Cents: doc.InitialOnline},
		InitialCash:     core.Money{Cents: doc.InitialCash},
		CurrentOnline:   core.Money{Cents: doc.CurrentOnline},
		CurrentCash:     core.Money{Cents: doc.CurrentCash},
		TodayIncome:     core.Money{Cents: doc.TodayIncome},
		TodayExpense:    core.Money{Cents: doc.TodayExpense},
		SetupDone:       doc.SetupDone,
		LastUpdatedDate: doc.LastUpdatedDate,
	}, nil
}

// CreateAccount upserts with $setOnInsert so a concurrent double-create
// leaves one intact zeroed document.
func (s *MongoStore) CreateAccount(ctx context.Context, account core.Account) error {
	update := bson.M{"$setOnInsert": accountDoc{
		UserID:          account.UserID,
		LastUpdatedDate: account.LastUpdatedDate,
	}}
	_, err := s.db.Collection(usersCollection).UpdateOne(
		ctx, bson.M{"_id": account.UserID}, update, options.Update().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("create account: %w", err)
	}
	return nil
}

func (s *MongoStore) SaveSetup(ctx context.Context, userID string, initialOnline, initialCash core.Money, today string) error {
	update := bson.M{"$set": bson.M{
		"initialOnlineCents": initialOnline.Cents,
		"initialCashCents":   initialCash.Cents,
		"currentOnlineCents": initialOnline.Cents,
		"currentCashCents":   initialCash.Cents,
		"todayIncomeCents":   int64(0),
		"todayExpenseCents":  int64(0),
		"initialSetupDone":   true,
		"lastUpdatedDate":    today,
	}}
	res, err := s.db.Collection(usersCollection).UpdateOne(ctx, bson.M{"_id": userID}, update)
	if err != nil {
		return fmt.Errorf("save setup: %w", err)
	}
	if res.MatchedCount == 0 {
		return core.ErrAccountNotFound
	}
	return nil
}

func (s *MongoStore) ResetRollups(ctx context.Context, userID, today string) error {
	update := bson.M{"$set": bson.M{
		"todayIncomeCents":  int64(0),
		"todayExpenseCents": int64(0),
		"lastUpdatedDate":   today,
	}}
	res, err := s.db.Collection(usersCollection).UpdateOne(ctx, bson.M{"_id": userID}, update)
	if err != nil {
		return fmt.Errorf("reset rollups: %w", err)
	}
	if res.MatchedCount == 0 {
		return core.ErrAccountNotFound
	}
	return nil
}

// CommitRecord runs the balance increment and the record insert inside one
// session transaction, the driver's native multi-document atomic unit.
func (s *MongoStore) CommitRecord(ctx context.Context, userID string, rec core.Record, eff core.Effect) (string, error) {
	session, err := s.client.StartSession()
	if err != nil {
		return "", fmt.Errorf("start session: %w", err)
	}
	defer session.EndSession(ctx)

	result, err := session.WithTransaction(ctx, func(sc mongo.SessionContext) (interface{}, error) {
		inc := bson.M{"$inc": bson.M{
			"currentOnlineCents": eff.OnlineDelta,
			"currentCashCents":   eff.CashDelta,
			"todayIncomeCents":   eff.IncomeDelta,
			"todayExpenseCents":  eff.ExpenseDelta,
		}}
		res, err := s.db.Collection(usersCollection).UpdateOne(sc, bson.M{"_id": userID}, inc)
		if err != nil {
			return nil, fmt.Errorf("apply balance delta: %w", err)
		}
		if res.MatchedCount == 0 {
			return nil, core.ErrAccountNotFound
		}

		ins, err := s.db.Collection(collectionFor(eff.Stream)).InsertOne(sc, recordDoc{
			UserID:          userID,
			Kind:            string(rec.Kind),
			AmountCents:     rec.Amount.Cents,
			Description:     rec.Description,
			CustomerName:    rec.CustomerName,
			IsDue:           rec.IsDue,
			IsCollected:     rec.IsCollected,
			IsDueCollection: rec.IsDueCollection,
			CreatedAt:       rec.CreatedAt.UTC(),
			Date:            rec.Date,
		})
		if err != nil {
			return nil, fmt.Errorf("append record: %w", err)
		}
		return ins.InsertedID, nil
	})
	if err != nil {
		return "", fmt.Errorf("commit: %w", err)
	}

	oid, ok := result.(primitive.ObjectID)
	if !ok {
		return "", fmt.Errorf("unexpected inserted id %T", result)
	}
	return oid.Hex(), nil
}

func (s *MongoStore) ListRecords(ctx context.Context, userID string, stream core.Stream, limit int) ([]core.Record, error) {
	opts := options.Find().SetSort(bson.D{{Key: "timestamp", Value: -1}, {Key: "_id", Value: -1}})
	if limit > 0 {
		opts.SetLimit(int64(limit))
	}
	cursor, err := s.db.Collection(collectionFor(stream)).Find(ctx, bson.M{"userId": userID}, opts)
	if err != nil {
		return nil, fmt.Errorf("list records: %w", err)
	}
	defer cursor.Close(ctx)

	var recs []core.Record
	for cursor.Next(ctx) {
		var doc recordDoc
		if err := cursor.Decode(&doc); err != nil {
			return nil, fmt.Errorf("decode record: %w", err)
		}
		recs = append(recs, core.Record{
			ID:              doc.ID.Hex(),
			Kind:            core.Kind(doc.Kind),
			Amount:          core.Money{Cents: doc.AmountCents},
			Description:     doc.Description,
			CustomerName:    doc.CustomerName,
			IsDue:           doc.IsDue,
			IsCollected:     doc.IsCollected,
			IsDueCollection: doc.IsDueCollection,
			CreatedAt:       doc.CreatedAt,
			Date:            doc.Date,
		})
	}
	if err := cursor.Err(); err != nil {
		return nil, fmt.Errorf("list records: %w", err)
	}
	return recs, nil
}

func collectionFor(stream core.Stream) string {
	switch stream {
	case core.StreamOnline:
		return onlineCollection
	case core.StreamDue:
		return dueCollection
	default:
		return cashCollection
	}
}
