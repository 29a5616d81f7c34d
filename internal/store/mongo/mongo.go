// Package mongo maps each users/{uid}/{collection} path onto its own MongoDB
// collection ("users.{uid}.expenses" and so on). Snapshots are pushed on local
// writes and on change-stream events when the deployment supports them.
package mongo

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"expensewise/internal/auth"
	"expensewise/internal/core"
	"expensewise/internal/live"
	"expensewise/internal/store"
)

const (
	accountsCollection = "accounts"
	profileDocID       = "data"
)

type Store struct {
	client *mongo.Client
	db     *mongo.Database
	expHub *live.Hub[[]core.Expense]
	catHub *live.Hub[[]core.Category]
	now    func() time.Time

	mu       sync.Mutex
	watchers map[uint64]context.CancelFunc
	nextW    uint64
}

var (
	_ store.Store         = (*Store)(nil)
	_ store.ExportTracker = (*Store)(nil)
)

// Open connects, pings and ensures the account indexes exist.
func Open(ctx context.Context, uri, dbName string) (*Store, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("connect to MongoDB: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("ping MongoDB: %w", err)
	}

	s := &Store{
		client: client,
		db:     client.Database(dbName),
		expHub: live.NewHub[[]core.Expense](),
		catHub: live.NewHub[[]core.Category](),
		now:    time.Now,

		watchers: make(map[uint64]context.CancelFunc),
	}
	_, err = s.db.Collection(accountsCollection).Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "email", Value: 1}},
		Options: options.Index().SetUnique(true),
	})
	if err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("create account index: %w", err)
	}
	return s, nil
}

// CollectionName turns users/{uid}/{c} into the dotted collection name.
func CollectionName(uid string, c store.Collection) string {
	return strings.ReplaceAll(store.Path(uid, c), "/", ".")
}

func (s *Store) coll(uid string, c store.Collection) *mongo.Collection {
	return s.db.Collection(CollectionName(uid, c))
}

func (s *Store) Ping(ctx context.Context) error {
	return s.client.Ping(ctx, nil)
}

func (s *Store) Close() error {
	s.mu.Lock()
	for _, cancel := range s.watchers {
		cancel()
	}
	s.watchers = make(map[uint64]context.CancelFunc)
	s.mu.Unlock()

	s.expHub.Close()
	s.catHub.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.client.Disconnect(ctx)
}

func (s *Store) AddExpense(ctx context.Context, uid string, e core.NewExpense) (string, error) {
	if err := store.CheckUID(uid); err != nil {
		return "", err
	}
	if err := e.Validate(); err != nil {
		return "", err
	}
	doc := expenseDoc{
		ID:          primitive.NewObjectID(),
		AmountCents: e.Amount.Cents,
		Category:    e.Category,
		Date:        e.Date.UTC(),
		UserID:      uid,
		CreatedAt:   s.now().UTC(),
	}
	if _, err := s.coll(uid, store.Expenses).InsertOne(ctx, doc); err != nil {
		return "", fmt.Errorf("insert expense: %w", err)
	}
	s.publishExpenses(ctx, uid)
	return doc.ID.Hex(), nil
}

func (s *Store) DeleteExpense(ctx context.Context, uid, id string) error {
	if err := store.CheckUID(uid); err != nil {
		return err
	}
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return nil
	}
	res, err := s.coll(uid, store.Expenses).DeleteOne(ctx, bson.M{"_id": oid})
	if err != nil {
		return fmt.Errorf("delete expense: %w", err)
	}
	if res.DeletedCount > 0 {
		s.publishExpenses(ctx, uid)
	}
	return nil
}

func (s *Store) GetExpense(ctx context.Context, uid, id string) (core.Expense, error) {
	if err := store.CheckUID(uid); err != nil {
		return core.Expense{}, err
	}
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return core.Expense{}, store.ErrNotFound
	}
	var doc expenseDoc
	err = s.coll(uid, store.Expenses).FindOne(ctx, bson.M{"_id": oid}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return core.Expense{}, store.ErrNotFound
	}
	if err != nil {
		return core.Expense{}, fmt.Errorf("get expense: %w", err)
	}
	return doc.toCore(), nil
}

func (s *Store) ListExpenses(ctx context.Context, uid string, r core.DateRange) ([]core.Expense, error) {
	if err := store.CheckUID(uid); err != nil {
		return nil, err
	}
	filter := bson.M{"date": bson.M{"$gte": r.Start.UTC(), "$lte": r.End.UTC()}}
	opts := options.Find().SetSort(bson.D{{Key: "date", Value: -1}, {Key: "createdAt", Value: -1}})
	cur, err := s.coll(uid, store.Expenses).Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("find expenses: %w", err)
	}
	defer cur.Close(ctx)

	out := make([]core.Expense, 0)
	for cur.Next(ctx) {
		var doc expenseDoc
		if err := cur.Decode(&doc); err != nil {
			return nil, fmt.Errorf("decode expense: %w", err)
		}
		out = append(out, doc.toCore())
	}
	return out, cur.Err()
}

func (s *Store) AddCategory(ctx context.Context, uid, name string) (bool, error) {
	if err := store.CheckUID(uid); err != nil {
		return false, err
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return false, core.ErrEmptyCategory
	}
	c := s.coll(uid, store.Categories)
	n, err := c.CountDocuments(ctx, bson.M{"name": name})
	if err != nil {
		return false, fmt.Errorf("check category: %w", err)
	}
	if n > 0 {
		return false, nil
	}
	if _, err := c.InsertOne(ctx, categoryDoc{ID: primitive.NewObjectID(), Name: name, CreatedAt: s.now().UTC()}); err != nil {
		return false, fmt.Errorf("insert category: %w", err)
	}
	s.publishCategories(ctx, uid)
	return true, nil
}

func (s *Store) ListCategories(ctx context.Context, uid string) ([]core.Category, error) {
	if err := store.CheckUID(uid); err != nil {
		return nil, err
	}
	opts := options.Find().SetSort(bson.D{{Key: "createdAt", Value: 1}, {Key: "_id", Value: 1}})
	cur, err := s.coll(uid, store.Categories).Find(ctx, bson.M{}, opts)
	if err != nil {
		return nil, fmt.Errorf("find categories: %w", err)
	}
	defer cur.Close(ctx)

	out := make([]core.Category, 0)
	for cur.Next(ctx) {
		var doc categoryDoc
		if err := cur.Decode(&doc); err != nil {
			return nil, fmt.Errorf("decode category: %w", err)
		}
		out = append(out, doc.toCore())
	}
	return out, cur.Err()
}

func (s *Store) GetUserProfile(ctx context.Context, uid string) (*core.UserProfile, error) {
	if err := store.CheckUID(uid); err != nil {
		return nil, err
	}
	var doc profileDoc
	err := s.coll(uid, store.Profile).FindOne(ctx, bson.M{"_id": profileDocID}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get profile: %w", err)
	}
	return &core.UserProfile{FullName: doc.FullName, Role: core.Role(doc.Role), PhoneNumber: doc.PhoneNumber}, nil
}

// SaveUserProfile $sets only the supplied fields, creating the document if needed.
func (s *Store) SaveUserProfile(ctx context.Context, uid string, u core.ProfileUpdate) error {
	if err := store.CheckUID(uid); err != nil {
		return err
	}
	if u.IsEmpty() {
		return core.ErrEmptyProfile
	}
	set := bson.M{}
	if u.FullName != nil {
		set["fullName"] = *u.FullName
	}
	if u.Role != nil {
		set["role"] = string(*u.Role)
	}
	if u.PhoneNumber != nil {
		set["phoneNumber"] = *u.PhoneNumber
	}
	_, err := s.coll(uid, store.Profile).UpdateOne(ctx,
		bson.M{"_id": profileDocID},
		bson.M{"$set": set},
		options.Update().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("save profile: %w", err)
	}
	return nil
}

func (s *Store) CreateUser(ctx context.Context, u auth.User) error {
	_, err := s.db.Collection(accountsCollection).InsertOne(ctx, accountDoc{
		ID:           u.ID,
		Email:        u.Email,
		PasswordHash: u.PasswordHash,
		CreatedAt:    u.CreatedAt.UTC(),
	})
	if mongo.IsDuplicateKeyError(err) {
		return auth.ErrEmailTaken
	}
	if err != nil {
		return fmt.Errorf("insert account: %w", err)
	}
	return nil
}

func (s *Store) UserByEmail(ctx context.Context, email string) (auth.User, error) {
	return s.findAccount(ctx, bson.M{"email": email})
}

func (s *Store) UserByID(ctx context.Context, id string) (auth.User, error) {
	return s.findAccount(ctx, bson.M{"_id": id})
}

func (s *Store) ListUserIDs(ctx context.Context) ([]string, error) {
	opts := options.Find().SetProjection(bson.M{"_id": 1}).SetSort(bson.D{{Key: "_id", Value: 1}})
	cur, err := s.db.Collection(accountsCollection).Find(ctx, bson.M{}, opts)
	if err != nil {
		return nil, fmt.Errorf("list accounts: %w", err)
	}
	defer cur.Close(ctx)

	var ids []string
	for cur.Next(ctx) {
		var doc accountDoc
		if err := cur.Decode(&doc); err != nil {
			return nil, fmt.Errorf("decode account: %w", err)
		}
		ids = append(ids, doc.ID)
	}
	return ids, cur.Err()
}

func (s *Store) findAccount(ctx context.Context, filter bson.M) (auth.User, error) {
	var doc accountDoc
	err := s.db.Collection(accountsCollection).FindOne(ctx, filter).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return auth.User{}, auth.ErrUserNotFound
	}
	if err != nil {
		return auth.User{}, fmt.Errorf("get account: %w", err)
	}
	return doc.toAuth(), nil
}

// PendingExports walks every account's expense collection for documents without
// exportedAt, oldest first, until limit is reached.
func (s *Store) PendingExports(ctx context.Context, limit int) ([]core.Expense, error) {
	if limit <= 0 {
		limit = 100
	}
	ids, err := s.ListUserIDs(ctx)
	if err != nil {
		return nil, err
	}
	var out []core.Expense
	for _, uid := range ids {
		remaining := int64(limit - len(out))
		if remaining <= 0 {
			break
		}
		opts := options.Find().SetSort(bson.D{{Key: "createdAt", Value: 1}}).SetLimit(remaining)
		cur, err := s.coll(uid, store.Expenses).Find(ctx, bson.M{"exportedAt": bson.M{"$exists": false}}, opts)
		if err != nil {
			return nil, fmt.Errorf("find pending exports: %w", err)
		}
		var docs []expenseDoc
		if err := cur.All(ctx, &docs); err != nil {
			return nil, fmt.Errorf("decode pending exports: %w", err)
		}
		for _, d := range docs {
			out = append(out, d.toCore())
		}
	}
	return out, nil
}

func (s *Store) MarkExported(ctx context.Context, uid, id string) error {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return store.ErrNotFound
	}
	_, err = s.coll(uid, store.Expenses).UpdateOne(ctx,
		bson.M{"_id": oid},
		bson.M{"$set": bson.M{"exportedAt": s.now().UTC()}})
	if err != nil {
		return fmt.Errorf("mark expense exported: %w", err)
	}
	return nil
}
