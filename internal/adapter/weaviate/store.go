package weaviate

import (
	"context"
	"fmt"

	"github.com/go-openapi/strfmt"
	"github.com/google/uuid"
	"github.com/weaviate/weaviate-go-client/v5/weaviate"
	"github.com/weaviate/weaviate-go-client/v5/weaviate/filters"
	"github.com/weaviate/weaviate-go-client/v5/weaviate/graphql"
	"github.com/weaviate/weaviate/entities/models"

	"reviewrag/internal/vector"
)

const pageSize = 100

type property struct {
	name string
	// text properties are field-tokenized, so Equal still compares the whole value
	text bool
}

var filterProperties = map[string]property{
	vector.KeyProductID:   {name: "productId"},
	vector.KeyType:        {name: "type"},
	vector.KeyProductName: {name: "productName", text: true},
	vector.KeyCategory:    {name: "category", text: true},
}

type Store struct {
	client *weaviate.Client
}

func NewStore(client *weaviate.Client) *Store {
	return &Store{client: client}
}

func (s *Store) EnsureSchema(ctx context.Context) error {
	return vector.EnsureSchema(ctx, vector.NewWeaviateClientAdapter(s.client))
}

func (s *Store) Ready(ctx context.Context) (bool, error) {
	return vector.NewWeaviateClientAdapter(s.client).Ready(ctx)
}

// ObjectID maps a document id to its stable Weaviate object id, so a second
// upsert of the same document replaces the first.
func ObjectID(docID string) strfmt.UUID {
	return strfmt.UUID(uuid.NewSHA1(uuid.NameSpaceURL, []byte(docID)).String())
}

func (s *Store) Upsert(ctx context.Context, docs []vector.Document) error {
	if len(docs) == 0 {
		return nil
	}

	objects := make([]*models.Object, 0, len(docs))
	for _, d := range docs {
		if d.ID == "" {
			return fmt.Errorf("upsert: document id is empty")
		}
		objects = append(objects, &models.Object{
			Class: vector.ClassName,
			ID:    ObjectID(d.ID),
			Properties: map[string]interface{}{
				"docId":       d.ID,
				"productId":   d.Metadata.ProductID,
				"type":        d.Metadata.Type,
				"productName": d.Metadata.ProductName,
				"category":    d.Metadata.Category,
				"content":     d.Text,
			},
			Vector: d.Embedding,
		})
	}

	res, err := s.client.Batch().ObjectsBatcher().WithObjects(objects...).Do(ctx)
	if err != nil {
		return err
	}
	for _, r := range res {
		if r.Result != nil && r.Result.Errors != nil && len(r.Result.Errors.Error) > 0 {
			return fmt.Errorf("batch upsert %s: %s", r.ID, r.Result.Errors.Error[0].Message)
		}
	}
	return nil
}

func (s *Store) Query(ctx context.Context, embedding []float32, topK int, filter vector.Filter) ([]vector.Match, error) {
	if topK <= 0 {
		return []vector.Match{}, nil
	}

	where, err := whereFilter(filter)
	if err != nil {
		return nil, err
	}

	nearVector := s.client.GraphQL().NearVectorArgBuilder().WithVector(embedding)

	fields := append(recordFields(),
		graphql.Field{Name: "_additional", Fields: []graphql.Field{{Name: "distance"}}})

	get := s.client.GraphQL().Get().
		WithClassName(vector.ClassName).
		WithNearVector(nearVector).
		WithLimit(topK).
		WithFields(fields...)
	if where != nil {
		get = get.WithWhere(where)
	}

	res, err := get.Do(ctx)
	if err != nil {
		return nil, err
	}
	if len(res.Errors) > 0 {
		return nil, fmt.Errorf("graphql error: %v", res.Errors[0].Message)
	}

	matches := []vector.Match{}
	for _, props := range objectsOf(res) {
		m := vector.Match{Record: recordOf(props)}
		if additional, ok := props["_additional"].(map[string]interface{}); ok {
			if d, ok := additional["distance"].(float64); ok {
				m.Distance = d
			}
		}
		matches = append(matches, m)
	}

	vector.SortMatches(matches)
	if len(matches) > topK {
		matches = matches[:topK]
	}
	return matches, nil
}

func (s *Store) GetAll(ctx context.Context) ([]vector.Metadata, error) {
	recs, err := s.Get(ctx, nil)
	if err != nil {
		return nil, err
	}
	out := make([]vector.Metadata, 0, len(recs))
	for _, r := range recs {
		out = append(out, r.Metadata)
	}
	return out, nil
}

// Get pages through every object matching filter.
func (s *Store) Get(ctx context.Context, filter vector.Filter) ([]vector.Record, error) {
	where, err := whereFilter(filter)
	if err != nil {
		return nil, err
	}

	out := []vector.Record{}
	for offset := 0; ; offset += pageSize {
		get := s.client.GraphQL().Get().
			WithClassName(vector.ClassName).
			WithLimit(pageSize).
			WithOffset(offset).
			WithFields(recordFields()...)
		if where != nil {
			get = get.WithWhere(where)
		}

		res, err := get.Do(ctx)
		if err != nil {
			return nil, err
		}
		if len(res.Errors) > 0 {
			return nil, fmt.Errorf("graphql error: %v", res.Errors[0].Message)
		}

		page := objectsOf(res)
		for _, props := range page {
			out = append(out, recordOf(props))
		}
		if len(page) < pageSize {
			return out, nil
		}
	}
}

func (s *Store) DeleteExcept(ctx context.Context, productID string, keep []string) error {
	operands := []*filters.WhereBuilder{
		filters.Where().
			WithPath([]string{"productId"}).
			WithOperator(filters.Equal).
			WithValueString(productID),
	}
	for _, id := range keep {
		operands = append(operands, filters.Where().
			WithPath([]string{"docId"}).
			WithOperator(filters.NotEqual).
			WithValueString(id))
	}

	where := operands[0]
	if len(operands) > 1 {
		where = filters.Where().WithOperator(filters.And).WithOperands(operands)
	}

	_, err := s.client.Batch().ObjectsBatchDeleter().
		WithClassName(vector.ClassName).
		WithOutput("minimal").
		WithWhere(where).
		Do(ctx)
	return err
}

// CountDocuments aggregates the total object count.
func (s *Store) CountDocuments(ctx context.Context) (int, error) {
	res, err := s.client.GraphQL().Aggregate().
		WithClassName(vector.ClassName).
		WithFields(graphql.Field{Name: "meta", Fields: []graphql.Field{{Name: "count"}}}).
		Do(ctx)
	if err != nil {
		return 0, err
	}
	if len(res.Errors) > 0 {
		return 0, fmt.Errorf("graphql error: %v", res.Errors[0].Message)
	}

	if agg, ok := res.Data["Aggregate"].(map[string]interface{}); ok {
		if classes, ok := agg[vector.ClassName].([]interface{}); ok && len(classes) > 0 {
			if first, ok := classes[0].(map[string]interface{}); ok {
				if meta, ok := first["meta"].(map[string]interface{}); ok {
					if count, ok := meta["count"].(float64); ok {
						return int(count), nil
					}
				}
			}
		}
	}
	return 0, nil
}

func whereFilter(filter vector.Filter) (*filters.WhereBuilder, error) {
	if err := filter.Validate(); err != nil {
		return nil, err
	}
	if len(filter) == 0 {
		return nil, nil
	}

	var operands []*filters.WhereBuilder
	for _, k := range filter.Keys() {
		p := filterProperties[k]
		w := filters.Where().WithPath([]string{p.name}).WithOperator(filters.Equal)
		if p.text {
			w = w.WithValueText(filter[k])
		} else {
			w = w.WithValueString(filter[k])
		}
		operands = append(operands, w)
	}

	if len(operands) == 1 {
		return operands[0], nil
	}
	return filters.Where().WithOperator(filters.And).WithOperands(operands), nil
}

func recordFields() []graphql.Field {
	return []graphql.Field{
		{Name: "docId"},
		{Name: "productId"},
		{Name: "type"},
		{Name: "productName"},
		{Name: "category"},
		{Name: "content"},
	}
}

func objectsOf(res *models.GraphQLResponse) []map[string]interface{} {
	var out []map[string]interface{}
	data, ok := res.Data["Get"].(map[string]interface{})
	if !ok {
		return out
	}
	objects, ok := data[vector.ClassName].([]interface{})
	if !ok {
		return out
	}
	for _, o := range objects {
		if props, ok := o.(map[string]interface{}); ok {
			out = append(out, props)
		}
	}
	return out
}

func recordOf(props map[string]interface{}) vector.Record {
	str := func(key string) string {
		v, _ := props[key].(string)
		return v
	}
	return vector.Record{
		ID:   str("docId"),
		Text: str("content"),
		Metadata: vector.Metadata{
			ProductID:   str("productId"),
			Type:        str("type"),
			ProductName: str("productName"),
			Category:    str("category"),
		},
	}
}
