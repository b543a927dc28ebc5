package mongo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/charmbracelet/log"
	"github.com/chirino/student-memory-service/internal/config"
	"github.com/chirino/student-memory-service/internal/dataencryption"
	"github.com/chirino/student-memory-service/internal/model"
	registrymigrate "github.com/chirino/student-memory-service/internal/registry/migrate"
	registrystore "github.com/chirino/student-memory-service/internal/registry/store"
	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

const (
	studentsCollection = "students"
	factsCollection    = "student_memory"
)

// ForceImport is a no-op variable that can be referenced to ensure this package's init() runs.
var ForceImport = 0

func init() {
	registrystore.Register(registrystore.Plugin{
		Name:   "mongo",
		Loader: load,
	})

	registrymigrate.Register(registrymigrate.Plugin{Order: 100, Migrator: &mongoMigrator{}})
}

func load(ctx context.Context) (registrystore.FactStore, error) {
	cfg := config.FromContext(ctx)
	if cfg == nil || cfg.DBURL == "" {
		return nil, fmt.Errorf("mongo store: STUDENT_MEMORY_DB_URL is required")
	}
	opts := options.Client().ApplyURI(cfg.DBURL)
	if cfg.DBMaxOpenConns > 0 {
		opts.SetMaxPoolSize(uint64(cfg.DBMaxOpenConns))
	}
	if cfg.DBMaxIdleConns > 0 {
		opts.SetMinPoolSize(uint64(cfg.DBMaxIdleConns))
	}
	client, err := mongo.Connect(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to MongoDB: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("failed to ping MongoDB: %w", err)
	}
	ring, err := dataencryption.FromConfig(cfg)
	if err != nil {
		_ = client.Disconnect(context.Background())
		return nil, err
	}
	return New(client, databaseName(cfg), ring), nil
}

func databaseName(cfg *config.Config) string {
	if cfg.MongoDatabase != "" {
		return cfg.MongoDatabase
	}
	return "student_memory"
}

type mongoMigrator struct{}

func (m *mongoMigrator) Name() string { return "mongo-schema" }
func (m *mongoMigrator) Migrate(ctx context.Context) error {
	cfg := config.FromContext(ctx)
	if cfg == nil || !cfg.DatastoreMigrateAtStart || cfg.DatastoreType != "mongo" {
		return nil
	}

	log.Info("Running migration", "name", m.Name())
	client, err := mongo.Connect(options.Client().ApplyURI(cfg.DBURL))
	if err != nil {
		return fmt.Errorf("mongo migration: failed to connect: %w", err)
	}
	defer client.Disconnect(ctx)

	if err := EnsureIndexes(ctx, client.Database(databaseName(cfg))); err != nil {
		return err
	}
	log.Info("Mongo index migration complete")
	return nil
}

// EnsureIndexes creates the indexes the store queries rely on.
func EnsureIndexes(ctx context.Context, db *mongo.Database) error {
	_, err := db.Collection(factsCollection).Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "student_id", Value: 1}, {Key: "is_active", Value: 1}, {Key: "created_at", Value: -1}, {Key: "_id", Value: 1}}},
		{Keys: bson.D{{Key: "is_active", Value: 1}, {Key: "student_id", Value: 1}}},
	})
	if err != nil {
		return fmt.Errorf("mongo migration: failed to create indexes on %s: %w", factsCollection, err)
	}
	return nil
}

type studentDoc struct {
	ID          string    `bson:"_id"`
	DisplayName string    `bson:"display_name"`
	FirstName   string    `bson:"first_name"`
	AgeGroup    string    `bson:"age_group"`
	StudyLevel  string    `bson:"study_level"`
	CreatedAt   time.Time `bson:"created_at"`
	UpdatedAt   time.Time `bson:"updated_at"`
}

type factDoc struct {
	ID         string    `bson:"_id"`
	StudentID  string    `bson:"student_id"`
	FactType   string    `bson:"fact_type"`
	FactText   []byte    `bson:"fact_text"`
	Source     string    `bson:"source"`
	Confidence *float64  `bson:"confidence,omitempty"`
	IsActive   bool      `bson:"is_active"`
	CreatedAt  time.Time `bson:"created_at"`
	UpdatedAt  time.Time `bson:"updated_at"`
}

// MongoStore implements FactStore using MongoDB.
type MongoStore struct {
	client *mongo.Client
	db     *mongo.Database
	ring   *dataencryption.KeyRing
}

// New wraps a connected client.
func New(client *mongo.Client, database string, ring *dataencryption.KeyRing) *MongoStore {
	return &MongoStore{client: client, db: client.Database(database), ring: ring}
}

func (s *MongoStore) students() *mongo.Collection { return s.db.Collection(studentsCollection) }
func (s *MongoStore) facts() *mongo.Collection    { return s.db.Collection(factsCollection) }

// BSON dates keep millisecond precision.
func now() time.Time {
	return time.Now().UTC().Truncate(time.Millisecond)
}

func wrap(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) || mongo.IsTimeout(err) || mongo.IsNetworkError(err) {
		return &registrystore.TransientError{Op: op, Err: err}
	}
	return fmt.Errorf("%s: %w", op, err)
}

func (s *MongoStore) GetStudentProfile(ctx context.Context, studentID string) (*model.StudentProfile, error) {
	var doc studentDoc
	err := s.students().FindOne(ctx, bson.M{"_id": studentID}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, &registrystore.NotFoundError{Resource: "student", ID: studentID}
	}
	if err != nil {
		return nil, wrap("get student", err)
	}
	return &model.StudentProfile{
		StudentID:   doc.ID,
		DisplayName: doc.DisplayName,
		FirstName:   doc.FirstName,
		AgeGroup:    doc.AgeGroup,
		StudyLevel:  doc.StudyLevel,
		CreatedAt:   doc.CreatedAt.UTC(),
		UpdatedAt:   doc.UpdatedAt.UTC(),
	}, nil
}

func (s *MongoStore) UpsertStudent(ctx context.Context, profile model.StudentProfile) (*model.StudentProfile, error) {
	if profile.StudentID == "" {
		return nil, &registrystore.ValidationError{Field: "studentId", Message: "is required"}
	}
	ts := now()
	update := bson.M{
		"$set": bson.M{
			"display_name": profile.DisplayName,
			"first_name":   profile.FirstName,
			"age_group":    profile.AgeGroup,
			"study_level":  profile.StudyLevel,
			"updated_at":   ts,
		},
		"$setOnInsert": bson.M{"created_at": ts},
	}
	_, err := s.students().UpdateOne(ctx, bson.M{"_id": profile.StudentID}, update, options.UpdateOne().SetUpsert(true))
	if err != nil {
		return nil, wrap("upsert student", err)
	}
	return s.GetStudentProfile(ctx, profile.StudentID)
}

func (s *MongoStore) requireStudent(ctx context.Context, op, studentID string) error {
	n, err := s.students().CountDocuments(ctx, bson.M{"_id": studentID})
	if err != nil {
		return wrap(op, err)
	}
	if n == 0 {
		return &registrystore.NotFoundError{Resource: "student", ID: studentID}
	}
	return nil
}

var newestFirst = bson.D{{Key: "created_at", Value: -1}, {Key: "_id", Value: 1}}

func (s *MongoStore) ListActiveFacts(ctx context.Context, studentID string) ([]model.MemoryFact, error) {
	return s.ListFacts(ctx, studentID, false)
}

func (s *MongoStore) ListFacts(ctx context.Context, studentID string, includeInactive bool) ([]model.MemoryFact, error) {
	if err := s.requireStudent(ctx, "list facts", studentID); err != nil {
		return nil, err
	}
	filter := bson.M{"student_id": studentID}
	if !includeInactive {
		filter["is_active"] = true
	}
	cursor, err := s.facts().Find(ctx, filter, options.Find().SetSort(newestFirst))
	if err != nil {
		return nil, wrap("list facts", err)
	}
	var docs []factDoc
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, wrap("list facts", err)
	}
	facts := make([]model.MemoryFact, 0, len(docs))
	for _, d := range docs {
		id, err := uuid.Parse(d.ID)
		if err != nil {
			return nil, fmt.Errorf("list facts: document %s: %w", d.ID, err)
		}
		text, err := s.ring.OpenStored(d.FactText)
		if err != nil {
			return nil, fmt.Errorf("list facts: document %s: %w", d.ID, err)
		}
		facts = append(facts, model.MemoryFact{
			ID:         id,
			StudentID:  d.StudentID,
			FactType:   model.FactType(d.FactType),
			FactText:   string(text),
			Source:     model.FactSource(d.Source),
			Confidence: d.Confidence,
			IsActive:   d.IsActive,
			CreatedAt:  d.CreatedAt.UTC(),
			UpdatedAt:  d.UpdatedAt.UTC(),
		})
	}
	return facts, nil
}

func (s *MongoStore) RecordFact(ctx context.Context, req model.RecordFactRequest) (*model.MemoryFact, error) {
	if err := registrystore.ValidateRecordFact(&req); err != nil {
		return nil, err
	}
	if err := s.requireStudent(ctx, "record fact", req.StudentID); err != nil {
		return nil, err
	}
	sealed, err := s.ring.Seal([]byte(req.FactText))
	if err != nil {
		return nil, fmt.Errorf("record fact: %w", err)
	}
	id := uuid.New()
	ts := now()
	doc := factDoc{
		ID:         id.String(),
		StudentID:  req.StudentID,
		FactType:   string(req.FactType),
		FactText:   sealed,
		Source:     string(req.Source),
		Confidence: req.Confidence,
		IsActive:   true,
		CreatedAt:  ts,
		UpdatedAt:  ts,
	}
	if _, err := s.facts().InsertOne(ctx, doc); err != nil {
		return nil, wrap("record fact", err)
	}
	return &model.MemoryFact{
		ID:         id,
		StudentID:  req.StudentID,
		FactType:   req.FactType,
		FactText:   req.FactText,
		Source:     req.Source,
		Confidence: req.Confidence,
		IsActive:   true,
		CreatedAt:  ts,
		UpdatedAt:  ts,
	}, nil
}

func (s *MongoStore) DeactivateFact(ctx context.Context, factID uuid.UUID) error {
	res, err := s.facts().UpdateOne(ctx,
		bson.M{"_id": factID.String()},
		bson.M{"$set": bson.M{"is_active": false, "updated_at": now()}},
	)
	if err != nil {
		return wrap("deactivate fact", err)
	}
	if res.MatchedCount == 0 {
		return &registrystore.NotFoundError{Resource: "fact", ID: factID.String()}
	}
	return nil
}

func (s *MongoStore) DeactivateOverflowFacts(ctx context.Context, maxActive, limit int) (int64, error) {
	if maxActive <= 0 || limit <= 0 {
		return 0, nil
	}
	pipeline := mongo.Pipeline{
		{{Key: "$match", Value: bson.M{"is_active": true}}},
		{{Key: "$group", Value: bson.M{"_id": "$student_id", "n": bson.M{"$sum": 1}}}},
		{{Key: "$match", Value: bson.M{"n": bson.M{"$gt": maxActive}}}},
		{{Key: "$sort", Value: bson.D{{Key: "_id", Value: 1}}}},
	}
	cursor, err := s.facts().Aggregate(ctx, pipeline)
	if err != nil {
		return 0, wrap("deactivate overflow facts", err)
	}
	var overflowing []struct {
		StudentID string `bson:"_id"`
	}
	if err := cursor.All(ctx, &overflowing); err != nil {
		return 0, wrap("deactivate overflow facts", err)
	}

	var total int64
	for _, st := range overflowing {
		remaining := int64(limit) - total
		if remaining <= 0 {
			break
		}
		findOpts := options.Find().
			SetSort(newestFirst).
			SetSkip(int64(maxActive)).
			SetLimit(remaining).
			SetProjection(bson.M{"_id": 1})
		cur, err := s.facts().Find(ctx, bson.M{"student_id": st.StudentID, "is_active": true}, findOpts)
		if err != nil {
			return total, wrap("deactivate overflow facts", err)
		}
		var ids []struct {
			ID string `bson:"_id"`
		}
		if err := cur.All(ctx, &ids); err != nil {
			return total, wrap("deactivate overflow facts", err)
		}
		if len(ids) == 0 {
			continue
		}
		in := make([]string, len(ids))
		for i, d := range ids {
			in[i] = d.ID
		}
		res, err := s.facts().UpdateMany(ctx,
			bson.M{"_id": bson.M{"$in": in}, "is_active": true},
			bson.M{"$set": bson.M{"is_active": false, "updated_at": now()}},
		)
		if err != nil {
			return total, wrap("deactivate overflow facts", err)
		}
		total += res.ModifiedCount
	}
	return total, nil
}

func (s *MongoStore) Ping(ctx context.Context) error {
	return wrap("ping", s.client.Ping(ctx, nil))
}

func (s *MongoStore) Close() error {
	return s.client.Disconnect(context.Background())
}

var _ registrystore.FactStore = (*MongoStore)(nil)
