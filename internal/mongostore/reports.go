package mongostore

import (
	"context"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/potholewatch/backend/internal/jurisdiction"
	"github.com/potholewatch/backend/internal/report"
)

// reportDoc is the stored shape. Unknown fields from older documents are
// ignored on decode.
type reportDoc struct {
	ID                 primitive.ObjectID `bson:"_id,omitempty"`
	ReporterID         string             `bson:"reporter_id"`
	ReporterName       string             `bson:"reporter_name"`
	Lat                float64            `bson:"lat"`
	Lng                float64            `bson:"lng"`
	Address            string             `bson:"address"`
	Authority          string             `bson:"authority"`
	DefectCount        int                `bson:"defect_count"`
	Status             string             `bson:"status"`
	CreatedAt          time.Time          `bson:"created_at"`
	EvidenceImageRef   string             `bson:"image_url"`
	ResolutionImageRef *string            `bson:"resolved_image_url,omitempty"`
	ResolvedAt         *time.Time         `bson:"resolved_at,omitempty"`
}

// Reports implements report.Store on a MongoDB collection.
type Reports struct {
	col *mongo.Collection
}

// NewReports binds the store to db.
func NewReports(db *mongo.Database) *Reports {
	return &Reports{col: db.Collection(reportsCollection)}
}

func (s *Reports) Ping(ctx context.Context) error {
	return s.col.Database().Client().Ping(ctx, nil)
}

func (s *Reports) Insert(ctx context.Context, r *report.Report) (string, error) {
	doc := toDoc(r)
	doc.ID = primitive.NewObjectID()
	if _, err := s.col.InsertOne(ctx, doc); err != nil {
		return "", err
	}
	return doc.ID.Hex(), nil
}

func (s *Reports) FindMany(ctx context.Context, q report.Query) ([]report.Report, error) {
	filter := queryFilter(q)

	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}, {Key: "_id", Value: -1}})
	if q.Limit > 0 {
		opts.SetLimit(int64(q.Limit))
	}
	if q.Offset > 0 {
		opts.SetSkip(int64(q.Offset))
	}

	cur, err := s.col.Find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	out := []report.Report{}
	for cur.Next(ctx) {
		var doc reportDoc
		if err := cur.Decode(&doc); err != nil {
			return nil, err
		}
		out = append(out, fromDoc(doc))
	}
	return out, cur.Err()
}

func (s *Reports) FindOne(ctx context.Context, id string) (*report.Report, error) {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return nil, report.ErrNotFound
	}

	var doc reportDoc
	err = s.col.FindOne(ctx, bson.M{"_id": oid}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, report.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	r := fromDoc(doc)
	return &r, nil
}

// UpdateConditional matches on the expected status so only one concurrent
// resolve can modify the document.
func (s *Reports) UpdateConditional(ctx context.Context, id string, expected report.Status, patch report.Resolution) (bool, error) {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return false, nil
	}

	filter, update := resolveUpdate(oid, expected, patch)
	res, err := s.col.UpdateOne(ctx, filter, update)
	if err != nil {
		return false, err
	}
	return res.MatchedCount == 1, nil
}

func (s *Reports) Delete(ctx context.Context, id string) (bool, error) {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return false, nil
	}
	res, err := s.col.DeleteOne(ctx, bson.M{"_id": oid})
	if err != nil {
		return false, err
	}
	return res.DeletedCount == 1, nil
}

// resolveUpdate builds the conditional resolve. The status predicate in the
// filter is what makes a lost race match zero documents.
func resolveUpdate(oid primitive.ObjectID, expected report.Status, patch report.Resolution) (filter, update bson.M) {
	filter = bson.M{"_id": oid, "status": string(expected)}
	update = bson.M{"$set": bson.M{
		"status":             string(report.StatusResolved),
		"resolved_at":        patch.ResolvedAt.UTC(),
		"resolved_image_url": patch.ResolutionImageRef,
	}}
	return filter, update
}

func queryFilter(q report.Query) bson.M {
	filter := bson.M{}
	if q.Authority != nil {
		filter["authority"] = string(*q.Authority)
	}
	if q.ReporterID != "" {
		filter["reporter_id"] = q.ReporterID
	}
	if q.Status != nil {
		filter["status"] = string(*q.Status)
	}
	return filter
}

func toDoc(r *report.Report) reportDoc {
	return reportDoc{
		ReporterID:         r.ReporterID,
		ReporterName:       r.ReporterName,
		Lat:                r.Location.Lat,
		Lng:                r.Location.Lng,
		Address:            r.Address,
		Authority:          string(r.Authority),
		DefectCount:        r.DefectCount,
		Status:             string(r.Status),
		CreatedAt:          r.CreatedAt.UTC(),
		EvidenceImageRef:   r.EvidenceImageRef,
		ResolutionImageRef: r.ResolutionImageRef,
		ResolvedAt:         r.ResolvedAt,
	}
}

func fromDoc(doc reportDoc) report.Report {
	r := report.Report{
		ID:                 doc.ID.Hex(),
		ReporterID:         doc.ReporterID,
		ReporterName:       doc.ReporterName,
		Location:           report.Location{Lat: doc.Lat, Lng: doc.Lng},
		Address:            doc.Address,
		Authority:          jurisdiction.Authority(doc.Authority),
		DefectCount:        doc.DefectCount,
		Status:             report.Status(doc.Status),
		CreatedAt:          doc.CreatedAt.UTC(),
		EvidenceImageRef:   doc.EvidenceImageRef,
		ResolutionImageRef: doc.ResolutionImageRef,
	}
	if doc.ResolvedAt != nil {
		t := doc.ResolvedAt.UTC()
		r.ResolvedAt = &t
	}
	return r
}
