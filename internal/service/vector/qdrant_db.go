package vector

import (
	"context"
	"fmt"
	"sort"

	"github.com/qdrant/go-client/qdrant"
	"go.uber.org/zap"
)

// payloadContent is the payload key holding the document text.
const payloadContent = "content"

// QdrantDatabase implements VectorDatabase interface using Qdrant
type QdrantDatabase struct {
	client *qdrant.Client
	logger *zap.Logger
}

// NewQdrantDatabase creates a new Qdrant database connection
func NewQdrantDatabase(host string, port int, apiKey string, logger *zap.Logger) (*QdrantDatabase, error) {
	client, err := qdrant.NewClient(&qdrant.Config{
		Host:   host,
		Port:   port,
		APIKey: apiKey,
		UseTLS: false,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Qdrant client: %w", err)
	}

	return &QdrantDatabase{
		client: client,
		logger: logger,
	}, nil
}

// CreateCollection creates a new collection with the specified dimension and distance metric
func (q *QdrantDatabase) CreateCollection(ctx context.Context, collectionName string, vectorDim int, distance DistanceMetric) error {
	var qdrantDistance qdrant.Distance
	switch distance {
	case DistanceMetricDot:
		qdrantDistance = qdrant.Distance_Dot
	case DistanceMetricEuclidean:
		qdrantDistance = qdrant.Distance_Euclid
	default:
		qdrantDistance = qdrant.Distance_Cosine
	}

	err := q.client.CreateCollection(ctx, &qdrant.CreateCollection{
		CollectionName: collectionName,
		VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
			Size:     uint64(vectorDim),
			Distance: qdrantDistance,
		}),
	})
	if err != nil {
		return fmt.Errorf("failed to create collection: %w", err)
	}

	q.logger.Info("Created Qdrant collection", zap.String("collection", collectionName), zap.Int("dim", vectorDim))
	return nil
}

// DeleteCollection deletes a collection
func (q *QdrantDatabase) DeleteCollection(ctx context.Context, collectionName string) error {
	if err := q.client.DeleteCollection(ctx, collectionName); err != nil {
		return fmt.Errorf("failed to delete collection: %w", err)
	}
	return nil
}

// CollectionExists checks if a collection exists
func (q *QdrantDatabase) CollectionExists(ctx context.Context, collectionName string) (bool, error) {
	exists, err := q.client.CollectionExists(ctx, collectionName)
	if err != nil {
		return false, fmt.Errorf("failed to check collection existence: %w", err)
	}
	return exists, nil
}

// UpsertDocuments stores documents with their text and metadata flattened into the payload
func (q *QdrantDatabase) UpsertDocuments(ctx context.Context, collectionName string, docs []*Document) error {
	points := make([]*qdrant.PointStruct, 0, len(docs))
	for _, doc := range docs {
		if len(doc.Embedding) == 0 {
			q.logger.Warn("Skipping document without embedding", zap.String("id", doc.ID))
			continue
		}
		points = append(points, &qdrant.PointStruct{
			Id:      qdrant.NewIDUUID(doc.ID),
			Vectors: qdrant.NewVectors(doc.Embedding...),
			Payload: qdrant.NewValueMap(documentPayload(doc)),
		})
	}

	if len(points) == 0 {
		return nil
	}

	_, err := q.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: collectionName,
		Points:         points,
	})
	if err != nil {
		q.logger.Error("Upsert failed",
			zap.String("collection", collectionName),
			zap.Error(err))
		return fmt.Errorf("failed to upsert documents: %w", err)
	}

	q.logger.Debug("Upserted documents to Qdrant",
		zap.String("collection", collectionName),
		zap.Int("count", len(points)))
	return nil
}

// SearchSimilar finds similar documents using vector similarity search
func (q *QdrantDatabase) SearchSimilar(ctx context.Context, collectionName string, queryVector []float32, limit int, filter map[string]string) ([]*Document, []float32, error) {
	searchResult, err := q.client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: collectionName,
		Query:          qdrant.NewQuery(queryVector...),
		Limit:          qdrant.PtrOf(uint64(limit)),
		Filter:         buildFilter(filter),
		WithPayload:    qdrant.NewWithPayload(true),
	})
	if err != nil {
		return nil, nil, fmt.Errorf("failed to search: %w", err)
	}

	docs := make([]*Document, 0, len(searchResult))
	scores := make([]float32, 0, len(searchResult))
	for _, point := range searchResult {
		doc := payloadToDocument(point.GetId().GetUuid(), point.GetPayload())
		if doc == nil {
			continue
		}
		docs = append(docs, doc)
		scores = append(scores, point.GetScore())
	}
	return docs, scores, nil
}

// ExistingIDs fetches the ids without payloads or vectors and reports which exist
func (q *QdrantDatabase) ExistingIDs(ctx context.Context, collectionName string, ids []string) (map[string]bool, error) {
	found := make(map[string]bool, len(ids))
	if len(ids) == 0 {
		return found, nil
	}
	pointIDs := make([]*qdrant.PointId, 0, len(ids))
	for _, id := range ids {
		pointIDs = append(pointIDs, qdrant.NewIDUUID(id))
	}
	points, err := q.client.Get(ctx, &qdrant.GetPoints{
		CollectionName: collectionName,
		Ids:            pointIDs,
		WithPayload:    qdrant.NewWithPayload(false),
		WithVectors:    qdrant.NewWithVectors(false),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get points: %w", err)
	}
	for _, p := range points {
		found[p.GetId().GetUuid()] = true
	}
	return found, nil
}

// DeleteByFilter removes every point matching the filter
func (q *QdrantDatabase) DeleteByFilter(ctx context.Context, collectionName string, filter map[string]string) error {
	qFilter := buildFilter(filter)
	if qFilter == nil {
		return fmt.Errorf("refusing to delete with an empty filter")
	}
	_, err := q.client.Delete(ctx, &qdrant.DeletePoints{
		CollectionName: collectionName,
		Points: &qdrant.PointsSelector{
			PointsSelectorOneOf: &qdrant.PointsSelector_Filter{Filter: qFilter},
		},
	})
	if err != nil {
		return fmt.Errorf("failed to delete points: %w", err)
	}
	return nil
}

// Count returns the exact number of points matching the filter
func (q *QdrantDatabase) Count(ctx context.Context, collectionName string, filter map[string]string) (uint64, error) {
	n, err := q.client.Count(ctx, &qdrant.CountPoints{
		CollectionName: collectionName,
		Filter:         buildFilter(filter),
		Exact:          qdrant.PtrOf(true),
	})
	if err != nil {
		return 0, fmt.Errorf("failed to count points: %w", err)
	}
	return n, nil
}

// Close closes the database connection
func (q *QdrantDatabase) Close() error {
	if q.client != nil {
		return q.client.Close()
	}
	return nil
}

// Health checks the health of the vector database
func (q *QdrantDatabase) Health(ctx context.Context) error {
	if _, err := q.client.HealthCheck(ctx); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	return nil
}

func documentPayload(doc *Document) map[string]any {
	payload := make(map[string]any, len(doc.Metadata)+1)
	for k, v := range doc.Metadata {
		payload[k] = v
	}
	payload[payloadContent] = doc.Content
	return payload
}

// buildFilter turns exact-match pairs into a Must filter; keys are sorted so the
// request is stable.
func buildFilter(filter map[string]string) *qdrant.Filter {
	if len(filter) == 0 {
		return nil
	}
	keys := make([]string, 0, len(filter))
	for k := range filter {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	conditions := make([]*qdrant.Condition, 0, len(keys))
	for _, key := range keys {
		conditions = append(conditions, &qdrant.Condition{
			ConditionOneOf: &qdrant.Condition_Field{
				Field: &qdrant.FieldCondition{
					Key:   key,
					Match: &qdrant.Match{MatchValue: &qdrant.Match_Keyword{Keyword: filter[key]}},
				},
			},
		})
	}
	return &qdrant.Filter{Must: conditions}
}

func payloadToDocument(id string, payload map[string]*qdrant.Value) *Document {
	if payload == nil {
		return nil
	}
	doc := &Document{ID: id, Metadata: make(map[string]string, len(payload))}
	for key, value := range payload {
		if key == payloadContent {
			doc.Content = value.GetStringValue()
			continue
		}
		switch v := value.GetKind().(type) {
		case *qdrant.Value_StringValue:
			doc.Metadata[key] = v.StringValue
		case *qdrant.Value_IntegerValue:
			doc.Metadata[key] = fmt.Sprint(v.IntegerValue)
		case *qdrant.Value_BoolValue:
			doc.Metadata[key] = fmt.Sprint(v.BoolValue)
		case *qdrant.Value_DoubleValue:
			doc.Metadata[key] = fmt.Sprint(v.DoubleValue)
		}
	}
	return doc
}
