package protocol

import "context"

// handlerFunc implements one verb: parse remaining arguments off c's
// parser, execute against c's session, emit any untagged responses via
// c.emit, and return the error the dispatcher should turn into NO/BAD/
// BYE (nil means the tagged OK the dispatcher sends by default).
type handlerFunc func(ctx context.Context, c *Conn, tag string) error

var handlers = map[string]handlerFunc{
	"LOGIN":      handleLogin,
	"LOGOUT":     handleLogout,
	"CAPABILITY": handleCapability,
	"RESSELECT":  handleResSelect,
	"SELECT":     handleSelect,

	"APPEND":    handleAppend,
	"X-AKAPPEND": handleAppend,
	"FETCH":     handleFetch,
	"STORE":     handleStore,
	"MOVE":      handleMove,
	"REMOVE":    handleRemove,

	"COLLECTIONCREATE": handleCollectionCreate,
	"COLLECTIONMODIFY": handleCollectionModify,
	"COLLECTIONDELETE": handleCollectionDelete,
	"COLLECTIONMOVE":   handleCollectionMove,
	"COLLECTIONLIST":   handleCollectionList,

	"SEARCH":        handleSearch,
	"SEARCH_STORE":  handleSearchStore,
	"SEARCH_RESULT": handleSearchResult,

	"RELATIONSTORE":  handleRelationStore,
	"RELATIONREMOVE": handleRelationRemove,
	"RELATIONFETCH":  handleRelationFetch,

	"TAGAPPEND": handleTagAppend,
	"TAGSTORE":  handleTagStore,
	"TAGREMOVE": handleTagRemove,
	"TAGFETCH":  handleTagFetch,
}
