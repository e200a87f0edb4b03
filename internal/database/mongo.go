package database

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"mentorhub/entity"
	"mentorhub/internal/config"
)

const (
	collectionUsers    = "users"
	collectionInvites  = "invite_codes"
	collectionMessages = "messages"
)

type MongoDB struct {
	clientOptions *options.ClientOptions
	database      string
}

func NewMongoClient(conf *config.Config) *MongoDB {
	if !conf.Mongo.Enabled {
		return nil
	}
	connectionUri := fmt.Sprintf("mongodb://%s:%s", conf.Mongo.Host, conf.Mongo.Port)
	clientOptions := options.Client().ApplyURI(connectionUri)
	if conf.Mongo.User != "" {
		clientOptions.SetAuth(options.Credential{
			Username:   conf.Mongo.User,
			Password:   conf.Mongo.Password,
			AuthSource: conf.Mongo.Database,
		})
	}
	return &MongoDB{
		clientOptions: clientOptions,
		database:      conf.Mongo.Database,
	}
}

func (m *MongoDB) connect(ctx context.Context) (*mongo.Client, error) {
	connection, err := mongo.Connect(ctx, m.clientOptions)
	if err != nil {
		return nil, unavailable("mongodb connect", err)
	}
	return connection, nil
}

func (m *MongoDB) disconnect(ctx context.Context, connection *mongo.Client) {
	_ = connection.Disconnect(ctx)
}

func unavailable(op string, err error) error {
	return fmt.Errorf("%s: %w: %v", op, entity.ErrUnavailable, err)
}

func (m *MongoDB) CreateInviteCode(ctx context.Context, code *entity.InviteCode) error {
	connection, err := m.connect(ctx)
	if err != nil {
		return err
	}
	defer m.disconnect(ctx, connection)

	collection := connection.Database(m.database).Collection(collectionInvites)
	_, err = collection.InsertOne(ctx, code)
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return fmt.Errorf("create invite code: %w", entity.ErrConflict)
		}
		return unavailable("create invite code", err)
	}
	return nil
}

func (m *MongoDB) GetInviteCode(ctx context.Context, code string) (*entity.InviteCode, error) {
	connection, err := m.connect(ctx)
	if err != nil {
		return nil, err
	}
	defer m.disconnect(ctx, connection)

	collection := connection.Database(m.database).Collection(collectionInvites)
	var invite entity.InviteCode
	err = collection.FindOne(ctx, bson.D{{Key: "code", Value: code}}).Decode(&invite)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, entity.ErrInviteNotFound
		}
		return nil, unavailable("get invite code", err)
	}
	return &invite, nil
}

// ConsumeInviteCode atomically increments used_count and checks it against
// max_uses in a single FindOneAndUpdate, so two concurrent consumptions of
// a code with one remaining use can never both succeed.
func (m *MongoDB) ConsumeInviteCode(ctx context.Context, code string) (*entity.InviteCode, error) {
	connection, err := m.connect(ctx)
	if err != nil {
		return nil, err
	}
	defer m.disconnect(ctx, connection)

	now := time.Now().UTC()
	filter := bson.D{
		{Key: "code", Value: code},
		{Key: "active", Value: true},
		{Key: "$expr", Value: bson.D{{Key: "$lt", Value: bson.A{"$used_count", "$max_uses"}}}},
		{Key: "$or", Value: bson.A{
			bson.D{{Key: "expires_at", Value: nil}},
			bson.D{{Key: "expires_at", Value: bson.D{{Key: "$exists", Value: false}}}},
			bson.D{{Key: "expires_at", Value: bson.D{{Key: "$gt", Value: now}}}},
		}},
	}
	update := bson.D{{Key: "$inc", Value: bson.D{{Key: "used_count", Value: 1}}}}
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)

	collection := connection.Database(m.database).Collection(collectionInvites)
	var invite entity.InviteCode
	err = collection.FindOneAndUpdate(ctx, filter, update, opts).Decode(&invite)
	if err == nil {
		return &invite, nil
	}
	if !errors.Is(err, mongo.ErrNoDocuments) {
		return nil, unavailable("consume invite code", err)
	}

	// The conditional update matched nothing; read the code back to report
	// why. The consumption itself stays atomic, this is diagnosis only.
	var existing entity.InviteCode
	err = collection.FindOne(ctx, bson.D{{"code", code}}).Decode(&existing)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, entity.ErrInviteNotFound
		}
		return nil, unavailable("consume invite code", err)
	}
	return nil, classifyInvite(&existing, now)
}

func classifyInvite(invite *entity.InviteCode, now time.Time) error {
	switch {
	case !invite.Active:
		return entity.ErrInviteInactive
	case invite.Expired(now):
		return entity.ErrInviteExpired
	case invite.UsedCount >= invite.MaxUses:
		return entity.ErrInviteExhausted
	default:
		// The code became usable between update and read; the caller lost
		// the race but may be told so honestly.
		return entity.ErrConflict
	}
}

func (m *MongoDB) DeactivateInviteCode(ctx context.Context, code string) error {
	connection, err := m.connect(ctx)
	if err != nil {
		return err
	}
	defer m.disconnect(ctx, connection)

	collection := connection.Database(m.database).Collection(collectionInvites)
	update := bson.D{{"$set", bson.D{{"active", false}}}}
	result, err := collection.UpdateOne(ctx, bson.D{{"code", code}}, update)
	if err != nil {
		return unavailable("deactivate invite code", err)
	}
	if result.MatchedCount == 0 {
		return entity.ErrInviteNotFound
	}
	return nil
}

func (m *MongoDB) CreateUser(ctx context.Context, user *entity.User) error {
	connection, err := m.connect(ctx)
	if err != nil {
		return err
	}
	defer m.disconnect(ctx, connection)

	collection := connection.Database(m.database).Collection(collectionUsers)
	_, err = collection.InsertOne(ctx, user)
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return fmt.Errorf("create user: %w", entity.ErrConflict)
		}
		return unavailable("create user", err)
	}
	return nil
}

func (m *MongoDB) GetUser(ctx context.Context, id string) (*entity.User, error) {
	return m.findUser(ctx, bson.D{{"id", id}})
}

func (m *MongoDB) GetUserByEmail(ctx context.Context, email string) (*entity.User, error) {
	return m.findUser(ctx, bson.D{{"email", email}})
}

func (m *MongoDB) findUser(ctx context.Context, filter bson.D) (*entity.User, error) {
	connection, err := m.connect(ctx)
	if err != nil {
		return nil, err
	}
	defer m.disconnect(ctx, connection)

	collection := connection.Database(m.database).Collection(collectionUsers)
	var user entity.User
	err = collection.FindOne(ctx, filter).Decode(&user)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, entity.ErrNotFound
		}
		return nil, unavailable("get user", err)
	}
	return &user, nil
}

func (m *MongoDB) SetTopicProgress(ctx context.Context, userID, topic string, ratio float64) error {
	connection, err := m.connect(ctx)
	if err != nil {
		return err
	}
	defer m.disconnect(ctx, connection)

	collection := connection.Database(m.database).Collection(collectionUsers)
	update := bson.D{{"$set", bson.D{{"progress." + topic, ratio}}}}
	result, err := collection.UpdateOne(ctx, bson.D{{"id", userID}}, update)
	if err != nil {
		return unavailable("set topic progress", err)
	}
	if result.MatchedCount == 0 {
		return entity.ErrNotFound
	}
	return nil
}

// AdminsWithTelegram lists administrators reachable by the messaging bridge.
func (m *MongoDB) AdminsWithTelegram(ctx context.Context) ([]*entity.User, error) {
	connection, err := m.connect(ctx)
	if err != nil {
		return nil, err
	}
	defer m.disconnect(ctx, connection)

	collection := connection.Database(m.database).Collection(collectionUsers)
	filter := bson.D{{"role", entity.RoleAdmin}, {"telegram_id", bson.D{{"$gt", 0}}}}
	cursor, err := collection.Find(ctx, filter)
	if err != nil {
		return nil, unavailable("list admins", err)
	}
	defer cursor.Close(ctx)

	var users []*entity.User
	if err = cursor.All(ctx, &users); err != nil {
		return nil, unavailable("list admins", err)
	}
	return users, nil
}

func (m *MongoDB) SaveMessage(ctx context.Context, msg *entity.Message) error {
	connection, err := m.connect(ctx)
	if err != nil {
		return err
	}
	defer m.disconnect(ctx, connection)

	collection := connection.Database(m.database).Collection(collectionMessages)
	_, err = collection.InsertOne(ctx, msg)
	if err != nil {
		return unavailable("save message", err)
	}
	return nil
}

// SetMessageReply stores the reply and marks the message read in one update.
func (m *MongoDB) SetMessageReply(ctx context.Context, messageID, reply string, at time.Time) (*entity.Message, error) {
	update := bson.D{{"$set", bson.D{
		{"reply", reply},
		{"replied_at", at},
		{"read", true},
	}}}
	return m.updateMessage(ctx, messageID, update)
}

func (m *MongoDB) SetMessageRead(ctx context.Context, messageID string) (*entity.Message, error) {
	update := bson.D{{"$set", bson.D{{"read", true}}}}
	return m.updateMessage(ctx, messageID, update)
}

func (m *MongoDB) updateMessage(ctx context.Context, messageID string, update bson.D) (*entity.Message, error) {
	connection, err := m.connect(ctx)
	if err != nil {
		return nil, err
	}
	defer m.disconnect(ctx, connection)

	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)
	collection := connection.Database(m.database).Collection(collectionMessages)
	var msg entity.Message
	err = collection.FindOneAndUpdate(ctx, bson.D{{"id", messageID}}, update, opts).Decode(&msg)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, entity.ErrNotFound
		}
		return nil, unavailable("update message", err)
	}
	return &msg, nil
}

// AdminMessages returns messages newest-first. A non-empty sinceID limits
// the result to messages created after it, for incremental polling.
func (m *MongoDB) AdminMessages(ctx context.Context, sinceID string) ([]*entity.Message, error) {
	filter := bson.D{}
	if sinceID != "" {
		filter = bson.D{{"id", bson.D{{"$gt", sinceID}}}}
	}
	return m.findMessages(ctx, filter, bson.D{{"id", -1}})
}

// UserMessages returns one user's messages in creation order, the pull
// query a reconnecting client reconciles with.
func (m *MongoDB) UserMessages(ctx context.Context, userID string) ([]*entity.Message, error) {
	return m.findMessages(ctx, bson.D{{"user_id", userID}}, bson.D{{"id", 1}})
}

func (m *MongoDB) findMessages(ctx context.Context, filter, sort bson.D) ([]*entity.Message, error) {
	connection, err := m.connect(ctx)
	if err != nil {
		return nil, err
	}
	defer m.disconnect(ctx, connection)

	collection := connection.Database(m.database).Collection(collectionMessages)
	cursor, err := collection.Find(ctx, filter, options.Find().SetSort(sort))
	if err != nil {
		return nil, unavailable("find messages", err)
	}
	defer cursor.Close(ctx)

	var messages []*entity.Message
	if err = cursor.All(ctx, &messages); err != nil {
		return nil, unavailable("find messages", err)
	}
	return messages, nil
}
