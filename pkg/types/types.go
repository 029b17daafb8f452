// Package types holds the plain data model shared across the server:
// collections, items, parts, and the small enumeration tables that back
// flags, tags, mime types, part types, resources, and relation types.
package types

// Collection is a hierarchical container owned by exactly one Resource.
type Collection struct {
	ID         int64
	ParentID   *int64 // nil for a root collection
	ResourceID int64
	Name       string
	RemoteID   string
	RemoteRev  string
	MimeTypes  []string
	CachePolicy CachePolicy

	Enabled bool
	Sync    bool
	Display bool
	Index   bool

	Virtual bool

	// Persistent search fields, only meaningful when Virtual is true.
	QueryString     string
	QueryAttributes string
	QueryCollections []int64
}

// CachePolicy controls how aggressively a collection's items are
// refreshed from, and evicted back to, its owning resource.
type CachePolicy struct {
	Inherit         bool
	CheckIntervalMin int
	CacheTimeoutMin  int
	SyncOnDemand     bool
	LocalParts       []string
}

// PimItem is a single PIM object: a mail, a contact, an event.
type PimItem struct {
	ID           int64
	CollectionID int64
	MimeType     string
	RemoteID     string
	Size         int64
	Flags        []string
	Tags         []int64
	Hidden       bool
}

// Part is a named payload fragment of a PimItem.
type Part struct {
	ID       int64
	ItemID   int64
	Type     string // "PLD:RFC822", "ATR:header", ...
	Data     []byte // nil when evicted or external
	External bool
	// Path is the filename (not a full path) under the external-payload
	// directory, set only when External is true.
	Path     string
	DataSize int64
}

// Flag, Tag, MimeType, PartType, Resource and RelationType are the small
// enumeration-like lookup tables: looked up by name, cached in memory.

type Flag struct {
	ID   int64
	Name string
}

type Tag struct {
	ID   int64
	Name string
}

type MimeType struct {
	ID   int64
	Name string
}

// DirectoryMimeType marks a Collection as a plain folder rather than an
// item container; SEARCH_STORE excludes it when it assigns a virtual
// collection every other known mime type.
const DirectoryMimeType = "inode/directory"

type PartType struct {
	ID   int64
	Name string // "Namespace:Name", e.g. "PLD:RFC822"
}

type Resource struct {
	ID   int64
	Name string
}

type RelationType struct {
	ID   int64
	Name string
}

// Relation is a directed typed link between two PimItems. The triple
// (LeftID, RightID, TypeID) is unique.
type Relation struct {
	LeftID   int64
	RightID  int64
	TypeID   int64
	RemoteID string
}

// ItemMeta bundles the lookup-table fields a notification needs to
// complete a lazily-recorded entry, avoiding a round trip when the
// caller already has them at hand.
type ItemMeta struct {
	CollectionID int64
	MimeType     string
	ResourceID   int64
}
