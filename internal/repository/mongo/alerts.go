package mongo

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"torrentstream/seedwarden/internal/domain"
)

const (
	alertsCollection = "stall_alerts"
	defaultListLimit = 50
	maxListLimit     = 500
)

type stallAlertDoc struct {
	ID         string  `bson:"_id"`
	TransferID string  `bson:"transferId"`
	Name       string  `bson:"name"`
	State      string  `bson:"state"`
	Progress   float64 `bson:"progress"`
	StallCount int     `bson:"stallCount"`
	RaisedAt   int64   `bson:"raisedAt"`
}

// AlertRepository keeps the history of persistent-stall alerts.
type AlertRepository struct {
	collection *mongo.Collection
}

func Connect(ctx context.Context, uri string, extra ...*options.ClientOptions) (*mongo.Client, error) {
	opts := append([]*options.ClientOptions{options.Client().ApplyURI(uri)}, extra...)
	client, err := mongo.Connect(ctx, opts...)
	if err != nil {
		return nil, err
	}
	return client, nil
}

func NewAlertRepository(client *mongo.Client, dbName string) *AlertRepository {
	return &AlertRepository{collection: client.Database(dbName).Collection(alertsCollection)}
}

func (r *AlertRepository) EnsureIndexes(ctx context.Context) error {
	if r == nil || r.collection == nil {
		return nil
	}
	models := []mongo.IndexModel{
		{Keys: bson.D{{Key: "raisedAt", Value: -1}}},
		{Keys: bson.D{{Key: "transferId", Value: 1}}},
	}
	_, err := r.collection.Indexes().CreateMany(ctx, models)
	return err
}

// Record stores an alert. Recording the same alert id twice overwrites it.
func (r *AlertRepository) Record(ctx context.Context, alert domain.StallAlert) error {
	doc := alertToDoc(alert)
	_, err := r.collection.UpdateOne(
		ctx,
		bson.M{"_id": doc.ID},
		bson.M{"$set": bson.M{
			"transferId": doc.TransferID,
			"name":       doc.Name,
			"state":      doc.State,
			"progress":   doc.Progress,
			"stallCount": doc.StallCount,
			"raisedAt":   doc.RaisedAt,
		}},
		options.Update().SetUpsert(true),
	)
	return err
}

// ListRecent returns the newest alerts first.
func (r *AlertRepository) ListRecent(ctx context.Context, limit int) ([]domain.StallAlert, error) {
	limit = clampLimit(limit)

	opts := options.Find().
		SetSort(bson.D{{Key: "raisedAt", Value: -1}}).
		SetLimit(int64(limit))

	cursor, err := r.collection.Find(ctx, bson.M{}, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var docs []stallAlertDoc
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, err
	}

	alerts := make([]domain.StallAlert, 0, len(docs))
	for _, doc := range docs {
		alerts = append(alerts, docToAlert(doc))
	}
	return alerts, nil
}

func clampLimit(limit int) int {
	if limit <= 0 {
		return defaultListLimit
	}
	if limit > maxListLimit {
		return maxListLimit
	}
	return limit
}

func alertToDoc(a domain.StallAlert) stallAlertDoc {
	return stallAlertDoc{
		ID:         a.ID,
		TransferID: string(a.TransferID),
		Name:       a.Name,
		State:      a.State,
		Progress:   a.Progress,
		StallCount: a.StallCount,
		RaisedAt:   a.RaisedAt.UnixMilli(),
	}
}

func docToAlert(doc stallAlertDoc) domain.StallAlert {
	return domain.StallAlert{
		ID:         doc.ID,
		TransferID: domain.TransferID(doc.TransferID),
		Name:       doc.Name,
		State:      doc.State,
		Progress:   doc.Progress,
		StallCount: doc.StallCount,
		RaisedAt:   time.UnixMilli(doc.RaisedAt).UTC(),
	}
}
