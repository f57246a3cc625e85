package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"

	"github.com/yourusername/task-manager/internal/config"
	"github.com/yourusername/task-manager/internal/models"
)

const (
	usersCollection = "users"
	tasksCollection = "tasks"

	mongoAttemptTimeout = 10 * time.Second
)

type userDocument struct {
	ID       primitive.ObjectID `bson:"_id,omitempty"`
	Username string             `bson:"username"`
	Email    string             `bson:"email"`
	Password string             `bson:"password"`
}

func (d *userDocument) toModel() *models.User {
	return &models.User{
		ID:           d.ID.Hex(),
		Username:     d.Username,
		Email:        d.Email,
		PasswordHash: d.Password,
	}
}

type taskDocument struct {
	ID          primitive.ObjectID `bson:"_id,omitempty"`
	Title       string             `bson:"title"`
	Description string             `bson:"description"`
	DueDate     time.Time          `bson:"dueDate"`
	Status      string             `bson:"status"`
	User        primitive.ObjectID `bson:"user"`
	CreatedAt   time.Time          `bson:"createdAt"`
	UpdatedAt   time.Time          `bson:"updatedAt"`
}

func (d *taskDocument) toModel() *models.Task {
	return &models.Task{
		ID:          d.ID.Hex(),
		Title:       d.Title,
		Description: d.Description,
		DueDate:     d.DueDate.UTC(),
		Status:      models.Status(d.Status),
		OwnerID:     d.User.Hex(),
		CreatedAt:   d.CreatedAt.UTC(),
		UpdatedAt:   d.UpdatedAt.UTC(),
	}
}

var _ Store = (*MongoStore)(nil)

// MongoStore は MongoDB をバックエンドとするストアです。
type MongoStore struct {
	client  *mongo.Client
	users   *mongo.Collection
	tasks   *mongo.Collection
	timeout time.Duration
	now     func() time.Time
}

// NewMongoStore は接続済みクライアントから MongoStore を作成します。
func NewMongoStore(client *mongo.Client, database string, timeout time.Duration) *MongoStore {
	db := client.Database(database)
	return &MongoStore{
		client:  client,
		users:   db.Collection(usersCollection),
		tasks:   db.Collection(tasksCollection),
		timeout: timeout,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// OpenMongo は接続に成功するまでリトライし、インデックスを作成した MongoStore を返します。
func OpenMongo(ctx context.Context, cfg *config.Config, logger logrus.FieldLogger) (*MongoStore, error) {
	var client *mongo.Client
	err := ConnectWithRetry(ctx, "mongodb", cfg.ConnectRetryInterval, logger, func(ctx context.Context) error {
		attemptCtx, cancel := context.WithTimeout(ctx, mongoAttemptTimeout)
		defer cancel()

		c, err := mongo.Connect(attemptCtx, options.Client().ApplyURI(cfg.MongoURI))
		if err != nil {
			return err
		}
		if err := c.Ping(attemptCtx, readpref.Primary()); err != nil {
			_ = c.Disconnect(context.Background())
			return err
		}
		client = c
		return nil
	})
	if err != nil {
		return nil, err
	}

	store := NewMongoStore(client, cfg.MongoDatabase, cfg.RequestTimeout)
	if err := store.EnsureIndexes(ctx); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, err
	}
	return store, nil
}

// EnsureIndexes はユーザー名とメールアドレスの一意インデックスを作成します。
func (s *MongoStore) EnsureIndexes(ctx context.Context) error {
	ctx, cancel := withTimeout(ctx, s.timeout)
	defer cancel()

	_, err := s.users.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "username", Value: 1}}, Options: options.Index().SetUnique(true)},
		{Keys: bson.D{{Key: "email", Value: 1}}, Options: options.Index().SetUnique(true)},
	})
	if err != nil {
		return fmt.Errorf("create user indexes: %w", err)
	}
	return nil
}

// Close はクライアントを切断します。
func (s *MongoStore) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}

// CreateUser はユーザーを保存し、採番したIDを user.ID に設定します。
func (s *MongoStore) CreateUser(ctx context.Context, user *models.User) error {
	if user == nil {
		return errors.New("user is nil")
	}
	ctx, cancel := withTimeout(ctx, s.timeout)
	defer cancel()

	doc := userDocument{
		ID:       primitive.NewObjectID(),
		Username: user.Username,
		Email:    user.Email,
		Password: user.PasswordHash,
	}
	if _, err := s.users.InsertOne(ctx, doc); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return ErrDuplicate
		}
		return fmt.Errorf("insert user: %w", err)
	}
	user.ID = doc.ID.Hex()
	return nil
}

// FindUserByID はIDでユーザーを取得します。
func (s *MongoStore) FindUserByID(ctx context.Context, id string) (*models.User, error) {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return nil, ErrNotFound
	}
	return s.findUser(ctx, bson.M{"_id": oid})
}

// FindUserByUsername はユーザー名でユーザーを取得します。
func (s *MongoStore) FindUserByUsername(ctx context.Context, username string) (*models.User, error) {
	return s.findUser(ctx, bson.M{"username": username})
}

func (s *MongoStore) findUser(ctx context.Context, filter bson.M) (*models.User, error) {
	ctx, cancel := withTimeout(ctx, s.timeout)
	defer cancel()

	var doc userDocument
	if err := s.users.FindOne(ctx, filter).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("find user: %w", err)
	}
	return doc.toModel(), nil
}

// UserExists はユーザー名またはメールアドレスが使用済みかを返します。
func (s *MongoStore) UserExists(ctx context.Context, username, email string) (bool, error) {
	ctx, cancel := withTimeout(ctx, s.timeout)
	defer cancel()

	n, err := s.users.CountDocuments(ctx, userExistsFilter(username, email), options.Count().SetLimit(1))
	if err != nil {
		return false, fmt.Errorf("count users: %w", err)
	}
	return n > 0, nil
}

// CreateTask はタスクを保存し、ID と作成・更新日時を設定します。
func (s *MongoStore) CreateTask(ctx context.Context, task *models.Task) error {
	if task == nil {
		return errors.New("task is nil")
	}
	owner, err := primitive.ObjectIDFromHex(task.OwnerID)
	if err != nil {
		return fmt.Errorf("invalid owner id %q: %w", task.OwnerID, err)
	}
	ctx, cancel := withTimeout(ctx, s.timeout)
	defer cancel()

	now := s.now()
	doc := taskDocument{
		ID:          primitive.NewObjectID(),
		Title:       task.Title,
		Description: task.Description,
		DueDate:     task.DueDate.UTC(),
		Status:      string(task.Status),
		User:        owner,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if _, err := s.tasks.InsertOne(ctx, doc); err != nil {
		return fmt.Errorf("insert task: %w", err)
	}
	*task = *doc.toModel()
	return nil
}

// FindTaskByID はIDでタスクを取得します。
func (s *MongoStore) FindTaskByID(ctx context.Context, id string) (*models.Task, error) {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return nil, ErrNotFound
	}
	ctx, cancel := withTimeout(ctx, s.timeout)
	defer cancel()

	var doc taskDocument
	if err := s.tasks.FindOne(ctx, bson.M{"_id": oid}).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("find task: %w", err)
	}
	return doc.toModel(), nil
}

// ListTasks は条件に一致するタスクを返します。所有者による絞り込みは行いません。
func (s *MongoStore) ListTasks(ctx context.Context, filter models.TaskFilter) ([]*models.Task, error) {
	ctx, cancel := withTimeout(ctx, s.timeout)
	defer cancel()

	opts := options.Find()
	if sort := taskSortDocument(filter.SortByDue); sort != nil {
		opts.SetSort(sort)
	}
	cursor, err := s.tasks.Find(ctx, taskFilterDocument(filter), opts)
	if err != nil {
		return nil, fmt.Errorf("find tasks: %w", err)
	}
	var docs []taskDocument
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("decode tasks: %w", err)
	}

	tasks := make([]*models.Task, 0, len(docs))
	for i := range docs {
		tasks = append(tasks, docs[i].toModel())
	}
	return tasks, nil
}

// UpdateTask は $set でパッチのフィールドだけを書き換えます。
func (s *MongoStore) UpdateTask(ctx context.Context, id string, patch models.TaskPatch) (*models.Task, error) {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return nil, ErrNotFound
	}
	ctx, cancel := withTimeout(ctx, s.timeout)
	defer cancel()

	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)
	var doc taskDocument
	err = s.tasks.FindOneAndUpdate(ctx, bson.M{"_id": oid}, taskUpdateDocument(patch, s.now()), opts).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("update task: %w", err)
	}
	return doc.toModel(), nil
}

// DeleteTask はIDでタスクを削除します。
func (s *MongoStore) DeleteTask(ctx context.Context, id string) error {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return ErrNotFound
	}
	ctx, cancel := withTimeout(ctx, s.timeout)
	defer cancel()

	res, err := s.tasks.DeleteOne(ctx, bson.M{"_id": oid})
	if err != nil {
		return fmt.Errorf("delete task: %w", err)
	}
	if res.DeletedCount == 0 {
		return ErrNotFound
	}
	return nil
}

func userExistsFilter(username, email string) bson.M {
	return bson.M{"$or": bson.A{
		bson.M{"username": username},
		bson.M{"email": email},
	}}
}

func taskFilterDocument(filter models.TaskFilter) bson.M {
	doc := bson.M{}
	if filter.Status != nil {
		doc["status"] = string(*filter.Status)
	}
	return doc
}

func taskSortDocument(order models.SortOrder) bson.D {
	switch order {
	case models.SortAsc:
		return bson.D{{Key: "dueDate", Value: 1}}
	case models.SortDesc:
		return bson.D{{Key: "dueDate", Value: -1}}
	default:
		return nil
	}
}

// user と createdAt は更新対象に含めない
func taskUpdateDocument(patch models.TaskPatch, now time.Time) bson.M {
	set := bson.M{"updatedAt": now}
	if patch.Title != nil {
		set["title"] = *patch.Title
	}
	if patch.Description != nil {
		set["description"] = *patch.Description
	}
	if patch.DueDate != nil {
		set["dueDate"] = patch.DueDate.UTC()
	}
	if patch.Status != nil {
		set["status"] = string(*patch.Status)
	}
	return bson.M{"$set": set}
}
