package chunkstore

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/qdrant/go-client/qdrant"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	grpccodes "google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/fyrsmithlabs/vectorstored/internal/config"
)

var qdrantTracer = otel.Tracer("vectorstored.chunkstore.qdrant")

const (
	qdrantScrollPage   = 256
	qdrantMaxMsgSize   = 50 * 1024 * 1024
	qdrantMaxRetries   = 3
	qdrantPayloadBody  = "content"
	qdrantPayloadChunk = "chunk_id"
)

// QdrantStore keeps every chunk in a single Qdrant collection over gRPC,
// namespaced by a vector_store_id payload field.
type QdrantStore struct {
	client     *qdrant.Client
	collection string
	dimension  int
	logger     *zap.Logger
	ready      atomic.Bool
}

// NewQdrantStore connects to Qdrant and performs a health check.
func NewQdrantStore(ctx context.Context, cfg config.QdrantConfig, dimension int, logger *zap.Logger) (*QdrantStore, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if !cfg.UseTLS {
		logger.Warn("qdrant gRPC using plaintext, TLS disabled", zap.String("host", cfg.Host))
	}

	client, err := qdrant.NewClient(&qdrant.Config{
		Host:   cfg.Host,
		Port:   cfg.Port,
		APIKey: cfg.APIKey.Value(),
		UseTLS: cfg.UseTLS,
		GrpcOptions: []grpc.DialOption{
			grpc.WithDefaultCallOptions(
				grpc.MaxCallRecvMsgSize(qdrantMaxMsgSize),
				grpc.MaxCallSendMsgSize(qdrantMaxMsgSize),
			),
		},
	})
	if err != nil {
		return nil, fmt.Errorf("connecting to qdrant: %w", err)
	}

	s := &QdrantStore{client: client, collection: cfg.Collection, dimension: dimension, logger: logger}

	hctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if _, err := client.HealthCheck(hctx); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("qdrant health check failed: %w", err)
	}
	return s, nil
}

// isTransient reports whether a gRPC failure is worth retrying.
func isTransient(err error) bool {
	st, ok := status.FromError(err)
	if !ok {
		return false
	}
	switch st.Code() {
	case grpccodes.Unavailable, grpccodes.DeadlineExceeded, grpccodes.Aborted, grpccodes.ResourceExhausted:
		return true
	default:
		return false
	}
}

// retry runs op with exponential backoff, giving up at once on
// non-transient errors.
func retry[T any](ctx context.Context, op func() (T, error)) (T, error) {
	return backoff.Retry(ctx, func() (T, error) {
		v, err := op()
		if err != nil && !isTransient(err) {
			return v, backoff.Permanent(err)
		}
		return v, err
	}, backoff.WithBackOff(backoff.NewExponentialBackOff()), backoff.WithMaxTries(qdrantMaxRetries))
}

// ensureCollection creates the collection and its payload indexes once.
func (s *QdrantStore) ensureCollection(ctx context.Context) error {
	if s.ready.Load() {
		return nil
	}
	exists, err := retry(ctx, func() (bool, error) { return s.client.CollectionExists(ctx, s.collection) })
	if err != nil {
		return err
	}
	if !exists {
		_, err = retry(ctx, func() (struct{}, error) {
			return struct{}{}, s.client.CreateCollection(ctx, &qdrant.CreateCollection{
				CollectionName: s.collection,
				VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
					Size:     uint64(s.dimension),
					Distance: qdrant.Distance_Euclid,
				}),
			})
		})
		if err != nil && status.Code(err) != grpccodes.AlreadyExists {
			return err
		}
		for _, field := range []string{metaVectorStoreID, metaFileID} {
			_, err := s.client.CreateFieldIndex(ctx, &qdrant.CreateFieldIndexCollection{
				CollectionName: s.collection,
				FieldName:      field,
				FieldType:      qdrant.FieldType_FieldTypeKeyword.Enum(),
			})
			if err != nil {
				s.logger.Warn("creating payload index", zap.String("field", field), zap.Error(err))
			}
		}
		s.logger.Info("created qdrant collection",
			zap.String("collection", s.collection), zap.Int("dimension", s.dimension))
	}
	s.ready.Store(true)
	return nil
}

func keyword(field, value string) *qdrant.Condition {
	return &qdrant.Condition{
		ConditionOneOf: &qdrant.Condition_Field{
			Field: &qdrant.FieldCondition{
				Key:   field,
				Match: &qdrant.Match{MatchValue: &qdrant.Match_Keyword{Keyword: value}},
			},
		},
	}
}

func stringValue(v string) *qdrant.Value {
	return &qdrant.Value{Kind: &qdrant.Value_StringValue{StringValue: v}}
}

func (s *QdrantStore) Put(ctx context.Context, chunk *Chunk) (string, error) {
	ctx, span := qdrantTracer.Start(ctx, "QdrantStore.Put")
	defer span.End()

	if err := prepare(chunk); err != nil {
		return "", err
	}
	if err := s.ensureCollection(ctx); err != nil {
		return "", persistErr(err, "preparing collection %s", s.collection)
	}
	span.SetAttributes(attribute.String("vector_store.id", chunk.VectorStoreID))

	point := &qdrant.PointStruct{
		Id:      qdrant.NewIDUUID(chunk.ID),
		Vectors: qdrant.NewVectors(chunk.Embedding...),
		Payload: map[string]*qdrant.Value{
			qdrantPayloadChunk: stringValue(chunk.ID),
			qdrantPayloadBody:  stringValue(chunk.Content),
			metaVectorStoreID:  stringValue(chunk.VectorStoreID),
			metaFileID:         stringValue(chunk.FileID),
			metaKind:           stringValue(string(chunk.Kind)),
			metaCreatedAt:      stringValue(chunk.CreatedAt.Format(time.RFC3339Nano)),
			metaSequence:       {Kind: &qdrant.Value_IntegerValue{IntegerValue: int64(chunk.Sequence)}},
		},
	}
	_, err := retry(ctx, func() (*qdrant.UpdateResult, error) {
		return s.client.Upsert(ctx, &qdrant.UpsertPoints{
			CollectionName: s.collection,
			Wait:           qdrant.PtrOf(true),
			Points:         []*qdrant.PointStruct{point},
		})
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return "", persistErr(err, "upserting chunk %s", chunk.ID)
	}
	return chunk.ID, nil
}

func (s *QdrantStore) Scan(ctx context.Context, vectorStoreID string) ([]Chunk, error) {
	return s.scroll(ctx, keyword(metaVectorStoreID, vectorStoreID))
}

func (s *QdrantStore) Find(ctx context.Context, vectorStoreID, fileID string) ([]Chunk, error) {
	return s.scroll(ctx, keyword(metaVectorStoreID, vectorStoreID), keyword(metaFileID, fileID))
}

func (s *QdrantStore) scroll(ctx context.Context, must ...*qdrant.Condition) ([]Chunk, error) {
	ctx, span := qdrantTracer.Start(ctx, "QdrantStore.Scroll")
	defer span.End()

	if err := s.ensureCollection(ctx); err != nil {
		return nil, persistErr(err, "preparing collection %s", s.collection)
	}

	var (
		chunks []Chunk
		offset *qdrant.PointId
	)
	for {
		req := &qdrant.ScrollPoints{
			CollectionName: s.collection,
			Filter:         &qdrant.Filter{Must: must},
			Limit:          qdrant.PtrOf(uint32(qdrantScrollPage)),
			Offset:         offset,
			WithPayload:    qdrant.NewWithPayload(true),
			WithVectors:    qdrant.NewWithVectors(true),
		}
		type page struct {
			points []*qdrant.RetrievedPoint
			next   *qdrant.PointId
		}
		p, err := retry(ctx, func() (page, error) {
			points, next, err := s.client.ScrollAndOffset(ctx, req)
			return page{points, next}, err
		})
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return nil, persistErr(err, "scrolling %s", s.collection)
		}
		for _, pt := range p.points {
			chunks = append(chunks, pointToChunk(pt))
		}
		if p.next == nil {
			break
		}
		offset = p.next
	}

	SortBySequence(chunks)
	span.SetAttributes(attribute.Int("chunks", len(chunks)))
	return chunks, nil
}

func pointToChunk(pt *qdrant.RetrievedPoint) Chunk {
	payload := pt.GetPayload()
	str := func(k string) string { return payload[k].GetStringValue() }
	created, _ := time.Parse(time.RFC3339Nano, str(metaCreatedAt))
	return Chunk{
		ID:            str(qdrantPayloadChunk),
		VectorStoreID: str(metaVectorStoreID),
		FileID:        str(metaFileID),
		Content:       str(qdrantPayloadBody),
		Embedding:     pt.GetVectors().GetVector().GetData(),
		Sequence:      int(payload[metaSequence].GetIntegerValue()),
		Kind:          Kind(str(metaKind)),
		CreatedAt:     created,
	}
}

func (s *QdrantStore) deleteWhere(ctx context.Context, selector *qdrant.PointsSelector) error {
	if err := s.ensureCollection(ctx); err != nil {
		return err
	}
	_, err := retry(ctx, func() (*qdrant.UpdateResult, error) {
		return s.client.Delete(ctx, &qdrant.DeletePoints{
			CollectionName: s.collection,
			Wait:           qdrant.PtrOf(true),
			Points:         selector,
		})
	})
	return err
}

func filterSelector(must ...*qdrant.Condition) *qdrant.PointsSelector {
	return &qdrant.PointsSelector{
		PointsSelectorOneOf: &qdrant.PointsSelector_Filter{Filter: &qdrant.Filter{Must: must}},
	}
}

func (s *QdrantStore) Delete(ctx context.Context, vectorStoreID, chunkID string) error {
	err := s.deleteWhere(ctx, filterSelector(
		keyword(metaVectorStoreID, vectorStoreID),
		keyword(qdrantPayloadChunk, chunkID),
	))
	return persistErr(err, "deleting chunk %s", chunkID)
}

func (s *QdrantStore) DeleteFile(ctx context.Context, vectorStoreID, fileID string) error {
	ctx, span := qdrantTracer.Start(ctx, "QdrantStore.DeleteFile")
	defer span.End()
	err := s.deleteWhere(ctx, filterSelector(
		keyword(metaVectorStoreID, vectorStoreID),
		keyword(metaFileID, fileID),
	))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return persistErr(err, "deleting chunks of file %s", fileID)
}

func (s *QdrantStore) DeleteVectorStore(ctx context.Context, vectorStoreID string) error {
	err := s.deleteWhere(ctx, filterSelector(keyword(metaVectorStoreID, vectorStoreID)))
	return persistErr(err, "deleting chunks of vector store %s", vectorStoreID)
}

func (s *QdrantStore) Close() error {
	return s.client.Close()
}

var _ Store = (*QdrantStore)(nil)
