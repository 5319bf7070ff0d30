// Package data implements the runtime's versioned data model: DataInfo,
// DataVersion, DataInstanceId and AccessId. Kind-specific behavior (stream
// multi-writer semantics, collection recursive delete) is expressed as a tag
// plus small dispatch functions rather than a subclass hierarchy.
package data

// Kind tags the variety of logical value a DataInfo describes.
type Kind int

const (
	FileData Kind = iota
	ObjectData
	CollectionData
	DictCollectionData
	BindingObjectData
	StreamData
)

func (k Kind) String() string {
	switch k {
	case FileData:
		return "file"
	case ObjectData:
		return "object"
	case CollectionData:
		return "collection"
	case DictCollectionData:
		return "dict-collection"
	case BindingObjectData:
		return "binding-object"
	case StreamData:
		return "stream"
	default:
		return "unknown"
	}
}

// Payload carries kind-specific identity. Exactly one field is meaningful,
// selected by the owning DataInfo's Kind.
type Payload struct {
	// FileData: the location URI.
	Location string
	// ObjectData: the hashcode from the caller's address space.
	Hashcode string
	// CollectionData / DictCollectionData: ids of the child DataInfos, in
	// declaration order. For a dict-collection these are key/value pairs
	// flattened 2-at-a-time (k0, v0, k1, v1, ...).
	ChildIds []int64
	// BindingObjectData: the external binding's type name.
	BindingType string
	// StreamData: true once the producer has explicitly marked the stream
	// completed; no more writer edges attach after that point.
	StreamCompleted bool
}

// IsMultiWriter reports whether a Kind allows more than one concurrent
// active writer at a time (only streams do: every open writer stays an
// active producer until explicitly completed). The Task Analyser uses this
// to decide whether a W access replaces the single last writer or joins the
// set of active stream producers, and whether an R/C access consumes a
// version or attaches to every current producer instead.
func (k Kind) IsMultiWriter() bool {
	return k == StreamData
}

// isRecursivelyDeletable reports whether deleting a DataInfo of this Kind
// must also release its children (collections do; everything else is a
// leaf as far as the data model is concerned).
func (k Kind) isRecursivelyDeletable() bool {
	return k == CollectionData || k == DictCollectionData
}
