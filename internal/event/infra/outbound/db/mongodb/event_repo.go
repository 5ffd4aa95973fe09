// en internal/event/infra/outbound/db/mongodb/event_repo.go
package mongodb

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"

	"github.com/davicafu/doorbell/internal/event/domain"
	sharedQuery "github.com/davicafu/doorbell/shared/platform/query"
)

// EventRepoMongoDB implementa EventStore para MongoDB: un documento por evento.
// Un InsertOne de un único documento es atómico, así que no hace falta sesión.
type EventRepoMongoDB struct {
	client     *mongo.Client
	dbName     string
	eventsColl *mongo.Collection
	ids        *domain.IdentityGenerator
}

var _ domain.EventStore = (*EventRepoMongoDB)(nil)

// NewEventRepoMongoDB es el constructor del repositorio; crea el índice de listado.
func NewEventRepoMongoDB(ctx context.Context, client *mongo.Client, dbName string, ids *domain.IdentityGenerator) (*EventRepoMongoDB, error) {
	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		return nil, fmt.Errorf("could not ping mongoDB: %w", err)
	}

	coll := client.Database(dbName).Collection("events")
	_, err := coll.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "createdAt", Value: -1}, {Key: "_id", Value: -1}},
		Options: options.Index().SetName("createdAt_desc_id_desc"),
	})
	if err != nil {
		return nil, fmt.Errorf("could not create events index: %w", err)
	}

	return &EventRepoMongoDB{
		client:     client,
		dbName:     dbName,
		eventsColl: coll,
		ids:        ids,
	}, nil
}

// --- Structs de BSON para el mapeo ---
// Se definen localmente para no "contaminar" el dominio con tags de BSON.

type mongoEvent struct {
	ID          string        `bson:"_id"`
	Kind        domain.Kind   `bson:"kind"`
	SourceLabel string        `bson:"sourceLabel,omitempty"`
	Payload     *mongoPayload `bson:"payload,omitempty"`
	CreatedAt   time.Time     `bson:"createdAt"`
}

type mongoPayload struct {
	ContentType string `bson:"contentType"`
	Filename    string `bson:"filename,omitempty"`
	Data        []byte `bson:"data,omitempty"`
	Size        int64  `bson:"size"`
	BlobKey     string `bson:"blobKey,omitempty"`
}

// --- Escritura ---

func (r *EventRepoMongoDB) Commit(ctx context.Context, d domain.Draft) (*domain.Event, error) {
	if err := d.Validate(0); err != nil {
		return nil, err
	}

	id, ts, err := r.ids.Next()
	if err != nil {
		return nil, err
	}
	evt := d.Seal(id, ts)

	if _, err := r.eventsColl.InsertOne(ctx, toMongoEvent(evt)); err != nil {
		return nil, fmt.Errorf("insert event %s: %w", id, err)
	}
	return evt, nil
}

// DeleteAll vacía la colección (purga administrativa).
func (r *EventRepoMongoDB) DeleteAll(ctx context.Context) (int64, error) {
	res, err := r.eventsColl.DeleteMany(ctx, bson.D{})
	if err != nil {
		return 0, err
	}
	return res.DeletedCount, nil
}

// --- Lectura ---

func (r *EventRepoMongoDB) Get(ctx context.Context, id string) (*domain.Event, error) {
	var me mongoEvent
	err := r.eventsColl.FindOne(ctx, bson.M{"_id": id}).Decode(&me)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, domain.ErrEventNotFound
		}
		return nil, err
	}
	return fromMongoEvent(&me), nil
}

func (r *EventRepoMongoDB) List(ctx context.Context, page sharedQuery.CursorPagination) ([]domain.EventMeta, error) {
	page = page.Normalize()

	filter := bson.D{}
	if page.Kind != "" {
		filter = append(filter, bson.E{Key: "kind", Value: page.Kind})
	}
	if !page.BeforeTime.IsZero() {
		filter = append(filter, bson.E{Key: "createdAt", Value: bson.M{"$lt": page.BeforeTime}})
	}
	if page.BeforeID != "" {
		cursor, err := r.cursorTime(ctx, page.BeforeID)
		if err != nil {
			return nil, err
		}
		// Estrictamente anterior en el orden (createdAt desc, _id desc)
		filter = append(filter, bson.E{Key: "$or", Value: bson.A{
			bson.M{"createdAt": bson.M{"$lt": cursor}},
			bson.M{"createdAt": cursor, "_id": bson.M{"$lt": page.BeforeID}},
		}})
	}

	opts := options.Find().
		SetSort(bson.D{{Key: "createdAt", Value: -1}, {Key: "_id", Value: -1}}).
		SetLimit(int64(page.Limit)).
		SetProjection(bson.M{"payload.data": 0})

	cur, err := r.eventsColl.Find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	metas := make([]domain.EventMeta, 0, page.Limit)
	for cur.Next(ctx) {
		var me mongoEvent
		if err := cur.Decode(&me); err != nil {
			return nil, err
		}
		metas = append(metas, fromMongoEvent(&me).Meta())
	}
	return metas, cur.Err()
}

func (r *EventRepoMongoDB) cursorTime(ctx context.Context, id string) (time.Time, error) {
	var doc struct {
		CreatedAt time.Time `bson:"createdAt"`
	}
	opts := options.FindOne().SetProjection(bson.M{"createdAt": 1})
	if err := r.eventsColl.FindOne(ctx, bson.M{"_id": id}, opts).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return time.Time{}, domain.ErrEventNotFound
		}
		return time.Time{}, err
	}
	return doc.CreatedAt, nil
}

// --- Helpers de Mapeo y Conversión ---

func toMongoEvent(e *domain.Event) *mongoEvent {
	me := &mongoEvent{ID: e.ID, Kind: e.Kind, SourceLabel: e.SourceLabel, CreatedAt: e.CreatedAt}
	if p := e.Payload; p != nil {
		me.Payload = &mongoPayload{
			ContentType: p.ContentType, Filename: p.Filename, Data: p.Data, Size: p.Size, BlobKey: p.BlobKey,
		}
	}
	return me
}

func fromMongoEvent(me *mongoEvent) *domain.Event {
	e := &domain.Event{ID: me.ID, Kind: me.Kind, SourceLabel: me.SourceLabel, CreatedAt: me.CreatedAt.UTC()}
	if p := me.Payload; p != nil {
		e.Payload = &domain.Payload{
			ContentType: p.ContentType, Filename: p.Filename, Data: p.Data, Size: p.Size, BlobKey: p.BlobKey,
		}
	}
	return e
}
