package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"greendrake/chat/internal/db"
	"greendrake/chat/internal/models"
	"greendrake/chat/internal/utils"
)

// MongoStore implements Store on the marketplace MongoDB database.
type MongoStore struct {
	threads  *mongo.Collection
	messages *mongo.Collection
}

// NewMongoStore creates a Store backed by database.
func NewMongoStore(database *mongo.Database) *MongoStore {
	return &MongoStore{
		threads:  database.Collection(threadsCollection),
		messages: database.Collection(messagesCollection),
	}
}

// EnsureIndexes creates the indexes the chat queries rely on. Safe to call on every start.
func EnsureIndexes(ctx context.Context, database *mongo.Database) error {
	threadIndexes := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "listing_id", Value: 1}, {Key: "buyer_id", Value: 1}, {Key: "seller_id", Value: 1}},
			Options: options.Index().SetUnique(true).SetName("listing_buyer_seller"),
		},
		{
			Keys:    bson.D{{Key: "buyer_id", Value: 1}, {Key: "last_message_at", Value: -1}},
			Options: options.Index().SetName("buyer_last_message"),
		},
		{
			Keys:    bson.D{{Key: "seller_id", Value: 1}, {Key: "last_message_at", Value: -1}},
			Options: options.Index().SetName("seller_last_message"),
		},
	}
	if _, err := database.Collection(threadsCollection).Indexes().CreateMany(ctx, threadIndexes); err != nil {
		return fmt.Errorf("failed to create thread indexes: %w", err)
	}

	messageIndexes := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "thread_id", Value: 1}, {Key: "created_at", Value: -1}, {Key: "_id", Value: -1}},
			Options: options.Index().SetName("thread_created"),
		},
		{
			Keys:    bson.D{{Key: "thread_id", Value: 1}, {Key: "sender_id", Value: 1}, {Key: "status", Value: 1}},
			Options: options.Index().SetName("thread_sender_status"),
		},
	}
	if _, err := database.Collection(messagesCollection).Indexes().CreateMany(ctx, messageIndexes); err != nil {
		return fmt.Errorf("failed to create message indexes: %w", err)
	}
	return nil
}

// FindOrCreateThread upserts on the unique triple. Two concurrent first calls can both
// miss and race to insert; the loser gets a duplicate key error and its retry finds the
// winner's document.
func (s *MongoStore) FindOrCreateThread(ctx context.Context, listingID, buyerID, sellerID utils.SixID) (*models.Thread, bool, error) {
	filter := bson.M{"listing_id": listingID, "buyer_id": buyerID, "seller_id": sellerID}
	opts := options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After)

	var thread models.Thread
	var newID utils.SixID
	operation := func() error {
		now := models.Now()
		newID = utils.NewSixID()
		update := bson.M{"$setOnInsert": bson.M{
			"_id":                  newID,
			"last_message_at":      now,
			"last_message_snippet": "",
			"buyer_unread":         0,
			"seller_unread":        0,
			"created_at":           now,
		}}
		return s.threads.FindOneAndUpdate(ctx, filter, update, opts).Decode(&thread)
	}

	if err := db.Try(ctx, operation); err != nil {
		return nil, false, fmt.Errorf("failed to find or create thread for listing %s: %w", listingID, err)
	}
	return &thread, thread.ID == newID, nil
}

func (s *MongoStore) FindThreadByID(ctx context.Context, threadID utils.SixID) (*models.Thread, error) {
	var thread models.Thread
	err := s.threads.FindOne(ctx, bson.M{"_id": threadID}).Decode(&thread)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("error finding thread %s: %w", threadID, err)
	}
	return &thread, nil
}

func participantFilter(userID utils.SixID, role models.ThreadRole) bson.M {
	switch role {
	case models.RoleBuyer:
		return bson.M{"buyer_id": userID}
	case models.RoleSeller:
		return bson.M{"seller_id": userID}
	default:
		return bson.M{"$or": bson.A{bson.M{"buyer_id": userID}, bson.M{"seller_id": userID}}}
	}
}

func (s *MongoStore) FindThreadsForUser(ctx context.Context, userID utils.SixID, role models.ThreadRole, skip, limit int) ([]models.Thread, int64, error) {
	filter := participantFilter(userID, role)

	total, err := s.threads.CountDocuments(ctx, filter)
	if err != nil {
		return nil, 0, fmt.Errorf("error counting threads for user %s: %w", userID, err)
	}

	opts := options.Find().
		SetSort(bson.D{{Key: "last_message_at", Value: -1}, {Key: "_id", Value: -1}}).
		SetSkip(int64(skip)).
		SetLimit(int64(limit))
	cursor, err := s.threads.Find(ctx, filter, opts)
	if err != nil {
		return nil, 0, fmt.Errorf("error finding threads for user %s: %w", userID, err)
	}
	defer cursor.Close(ctx)

	threads := []models.Thread{}
	if err := cursor.All(ctx, &threads); err != nil {
		return nil, 0, fmt.Errorf("error decoding threads for user %s: %w", userID, err)
	}
	return threads, total, nil
}

// RecordMessage uses a pipeline update so the counter, timestamp and snippet change in
// one atomic document write. The snippet is user text, hence $literal.
func (s *MongoStore) RecordMessage(ctx context.Context, threadID utils.SixID, recipient models.ThreadRole, at time.Time, snippet string) error {
	counter := unreadField(recipient)
	isNewest := bson.M{"$lte": bson.A{"$last_message_at", at}}
	update := mongo.Pipeline{{{Key: "$set", Value: bson.D{
		{Key: counter, Value: bson.M{"$add": bson.A{bson.M{"$ifNull": bson.A{"$" + counter, 0}}, 1}}},
		{Key: "last_message_snippet", Value: bson.M{"$cond": bson.A{isNewest, bson.M{"$literal": snippet}, "$last_message_snippet"}}},
		{Key: "last_message_at", Value: bson.M{"$max": bson.A{"$last_message_at", at}}},
	}}}}

	res, err := s.threads.UpdateOne(ctx, bson.M{"_id": threadID}, update)
	if err != nil {
		return fmt.Errorf("error recording message on thread %s: %w", threadID, err)
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *MongoStore) ResetUnread(ctx context.Context, threadID utils.SixID, role models.ThreadRole) error {
	res, err := s.threads.UpdateOne(ctx, bson.M{"_id": threadID}, bson.M{"$set": bson.M{unreadField(role): 0}})
	if err != nil {
		return fmt.Errorf("error resetting unread on thread %s: %w", threadID, err)
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *MongoStore) SumUnread(ctx context.Context, userID utils.SixID) (int64, error) {
	pipeline := mongo.Pipeline{
		{{Key: "$match", Value: participantFilter(userID, models.RoleBoth)}},
		{{Key: "$group", Value: bson.M{
			"_id": nil,
			"total": bson.M{"$sum": bson.M{"$cond": bson.A{
				bson.M{"$eq": bson.A{"$buyer_id", userID}},
				"$buyer_unread",
				"$seller_unread",
			}}},
		}}},
	}

	cursor, err := s.threads.Aggregate(ctx, pipeline)
	if err != nil {
		return 0, fmt.Errorf("error aggregating unread for user %s: %w", userID, err)
	}
	defer cursor.Close(ctx)

	var rows []struct {
		Total int64 `bson:"total"`
	}
	if err := cursor.All(ctx, &rows); err != nil {
		return 0, fmt.Errorf("error decoding unread for user %s: %w", userID, err)
	}
	if len(rows) == 0 {
		return 0, nil
	}
	return rows[0].Total, nil
}

// InsertMessage stores msg, generating a new id on collision.
func (s *MongoStore) InsertMessage(ctx context.Context, msg *models.Message) error {
	operation := func() error {
		msg.GenID()
		_, err := s.messages.InsertOne(ctx, msg)
		return err
	}
	if err := db.Try(ctx, operation); err != nil {
		return fmt.Errorf("failed to insert message into thread %s: %w", msg.ThreadID, err)
	}
	return nil
}

func (s *MongoStore) FindMessageByID(ctx context.Context, messageID utils.SixID) (*models.Message, error) {
	var msg models.Message
	err := s.messages.FindOne(ctx, bson.M{"_id": messageID}).Decode(&msg)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("error finding message %s: %w", messageID, err)
	}
	return &msg, nil
}

func (s *MongoStore) FindMessagesBefore(ctx context.Context, threadID, viewerID utils.SixID, before *Cursor, limit int) ([]models.Message, error) {
	filter := bson.M{
		"thread_id":   threadID,
		"deleted_for": bson.M{"$ne": viewerID},
	}
	if before != nil {
		if before.ID.IsZero() {
			filter["created_at"] = bson.M{"$lt": before.At}
		} else {
			filter["$or"] = bson.A{
				bson.M{"created_at": bson.M{"$lt": before.At}},
				bson.M{"created_at": before.At, "_id": bson.M{"$lt": before.ID}},
			}
		}
	}

	opts := options.Find().
		SetSort(bson.D{{Key: "created_at", Value: -1}, {Key: "_id", Value: -1}}).
		SetLimit(int64(limit))
	cursor, err := s.messages.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("error finding messages in thread %s: %w", threadID, err)
	}
	defer cursor.Close(ctx)

	messages := []models.Message{}
	if err := cursor.All(ctx, &messages); err != nil {
		return nil, fmt.Errorf("error decoding messages in thread %s: %w", threadID, err)
	}
	return messages, nil
}

func (s *MongoStore) MarkMessages(ctx context.Context, threadID, senderID utils.SixID, status models.MessageStatus) (int64, error) {
	filter := bson.M{
		"thread_id": threadID,
		"sender_id": senderID,
		"status":    bson.M{"$in": status.Below()},
	}
	res, err := s.messages.UpdateMany(ctx, filter, bson.M{"$set": bson.M{"status": status}})
	if err != nil {
		return 0, fmt.Errorf("error marking messages %s in thread %s: %w", status, threadID, err)
	}
	return res.ModifiedCount, nil
}

func (s *MongoStore) AddDeletedFor(ctx context.Context, messageID, userID utils.SixID) error {
	res, err := s.messages.UpdateOne(ctx, bson.M{"_id": messageID}, bson.M{"$addToSet": bson.M{"deleted_for": userID}})
	if err != nil {
		return fmt.Errorf("error deleting message %s for user %s: %w", messageID, userID, err)
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}
