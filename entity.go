package docket

// Entity is implemented by pointers to stored types.
// The identifier is serialized as the document's "id" field.
type Entity interface {
	GetID() string
	SetID(id string)
}

// Document is an embeddable base that satisfies Entity.
type Document struct {
	ID string `json:"id"`
}

// GetID returns the document identifier.
func (d *Document) GetID() string { return d.ID }

// SetID sets the document identifier.
func (d *Document) SetID(id string) { d.ID = id }

// EntityKey addresses a single document.
type EntityKey struct {
	ID           string
	PartitionKey string
}

// Key returns an EntityKey.
func Key(id, partitionKey string) EntityKey {
	return EntityKey{ID: id, PartitionKey: partitionKey}
}
