package mongostore

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/dmitrymomot/otpvault/pkg/otp"
	"github.com/dmitrymomot/otpvault/pkg/vault"
)

// entryDocument is the stored shape of a vault.Entry. The ID is kept as its
// string form so documents stay readable in the shell.
type entryDocument struct {
	ID          string    `bson:"_id"`
	Issuer      string    `bson:"issuer,omitempty"`
	AccountName string    `bson:"account_name,omitempty"`
	Secret      []byte    `bson:"secret"`
	Algorithm   string    `bson:"algorithm"`
	Digits      int       `bson:"digits"`
	Kind        string    `bson:"kind"`
	Counter     int64     `bson:"counter"`
	Period      int64     `bson:"period"`
	CreatedAt   time.Time `bson:"created_at"`
	UpdatedAt   time.Time `bson:"updated_at"`
}

func toDocument(e vault.Entry) entryDocument {
	d := e.Descriptor
	return entryDocument{
		ID:          e.ID.String(),
		Issuer:      d.Issuer,
		AccountName: d.AccountName,
		Secret:      d.Secret,
		Algorithm:   string(d.Algorithm),
		Digits:      d.Digits,
		Kind:        string(d.Kind),
		Counter:     int64(d.Counter),
		Period:      int64(d.Period),
		CreatedAt:   e.CreatedAt,
		UpdatedAt:   e.UpdatedAt,
	}
}

func (doc entryDocument) entry() (vault.Entry, error) {
	id, err := uuid.Parse(doc.ID)
	if err != nil {
		return vault.Entry{}, errors.Join(ErrMalformedDocument, err)
	}
	return vault.Entry{
		ID: id,
		Descriptor: otp.Descriptor{
			Issuer:      doc.Issuer,
			AccountName: doc.AccountName,
			Secret:      doc.Secret,
			Algorithm:   otp.Algorithm(doc.Algorithm),
			Digits:      doc.Digits,
			Kind:        otp.Kind(doc.Kind),
			Counter:     uint64(doc.Counter),
			Period:      uint(doc.Period),
		},
		CreatedAt: doc.CreatedAt,
		UpdatedAt: doc.UpdatedAt,
	}, nil
}

// Secrets is a vault.SecretStore on a MongoDB collection. UpdateAll needs
// a replica set, since it runs in a multi-document transaction.
type Secrets struct {
	client *mongo.Client
	coll   *mongo.Collection
}

// NewSecrets returns a SecretStore over cfg.Database and cfg.Collection.
func NewSecrets(client *mongo.Client, cfg Config) *Secrets {
	return &Secrets{
		client: client,
		coll:   client.Database(cfg.Database).Collection(cfg.Collection),
	}
}

// GetAll returns every entry ordered by creation time, then ID.
func (s *Secrets) GetAll(ctx context.Context) ([]vault.Entry, error) {
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: 1}, {Key: "_id", Value: 1}})
	cur, err := s.coll.Find(ctx, bson.D{}, opts)
	if err != nil {
		return nil, err
	}

	var docs []entryDocument
	if err := cur.All(ctx, &docs); err != nil {
		return nil, err
	}

	out := make([]vault.Entry, 0, len(docs))
	for _, doc := range docs {
		e, err := doc.entry()
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, nil
}

// Get returns one entry or vault.ErrEntryNotFound.
func (s *Secrets) Get(ctx context.Context, id uuid.UUID) (vault.Entry, error) {
	var doc entryDocument
	err := s.coll.FindOne(ctx, bson.D{{Key: "_id", Value: id.String()}}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return vault.Entry{}, vault.ErrEntryNotFound
	}
	if err != nil {
		return vault.Entry{}, err
	}
	return doc.entry()
}

// Put inserts or replaces an entry.
func (s *Secrets) Put(ctx context.Context, e vault.Entry) error {
	return s.replace(ctx, e)
}

// Delete removes an entry or returns vault.ErrEntryNotFound.
func (s *Secrets) Delete(ctx context.Context, id uuid.UUID) error {
	res, err := s.coll.DeleteOne(ctx, bson.D{{Key: "_id", Value: id.String()}})
	if err != nil {
		return err
	}
	if res.DeletedCount == 0 {
		return vault.ErrEntryNotFound
	}
	return nil
}

// UpdateAll replaces every entry inside one transaction.
func (s *Secrets) UpdateAll(ctx context.Context, entries []vault.Entry) error {
	sess, err := s.client.StartSession()
	if err != nil {
		return err
	}
	defer sess.EndSession(ctx)

	_, err = sess.WithTransaction(ctx, func(ctx context.Context) (any, error) {
		for _, e := range entries {
			if err := s.replace(ctx, e); err != nil {
				return nil, err
			}
		}
		return nil, nil
	})
	return err
}

func (s *Secrets) replace(ctx context.Context, e vault.Entry) error {
	doc := toDocument(e)
	_, err := s.coll.ReplaceOne(ctx, bson.D{{Key: "_id", Value: doc.ID}}, doc, options.Replace().SetUpsert(true))
	return err
}
