package vector

import (
	"context"

	"github.com/weaviate/weaviate/entities/models"
)

// ClassName is the single collection shared by all products.
const ClassName = "ProductDocument"

// SchemaClient defines the interface for Weaviate schema operations
type SchemaClient interface {
	ClassExists(ctx context.Context, className string) (bool, error)
	CreateClass(ctx context.Context, class *models.Class) error
	GetClass(ctx context.Context, className string) (*models.Class, error)
	AddProperty(ctx context.Context, className string, property *models.Property) error
}

func classProperties() []*models.Property {
	return []*models.Property{
		{
			Name:     "docId",
			DataType: []string{"string"}, // exact match for stale document pruning
		},
		{
			Name:     "productId",
			DataType: []string{"string"},
		},
		{
			Name:     "type",
			DataType: []string{"string"},
		},
		{
			Name:         "productName",
			DataType:     []string{"text"},
			Tokenization: models.PropertyTokenizationField, // filters match the whole value
		},
		{
			Name:         "category",
			DataType:     []string{"text"},
			Tokenization: models.PropertyTokenizationField, // filters match the whole value
		},
		{
			Name:     "content",
			DataType: []string{"text"},
		},
	}
}

// EnsureSchema creates the document class with cosine distance, or adds any
// properties missing from an existing class.
func EnsureSchema(ctx context.Context, client SchemaClient) error {
	exists, err := client.ClassExists(ctx, ClassName)
	if err != nil {
		return err
	}

	properties := classProperties()

	if !exists {
		class := &models.Class{
			Class:       ClassName,
			Description: "A product description or customer review",
			Vectorizer:  "none",
			VectorIndexConfig: map[string]interface{}{
				"distance": "cosine",
			},
			Properties: properties,
		}
		return client.CreateClass(ctx, class)
	}

	class, err := client.GetClass(ctx, ClassName)
	if err != nil {
		return err
	}

	existingProps := make(map[string]bool)
	for _, p := range class.Properties {
		existingProps[p.Name] = true
	}

	for _, p := range properties {
		if !existingProps[p.Name] {
			if err := client.AddProperty(ctx, ClassName, p); err != nil {
				return err
			}
		}
	}

	return nil
}
