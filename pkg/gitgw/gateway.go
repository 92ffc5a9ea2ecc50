// Package gitgw is the thin contract over the host DVCS that the rest of
// this module talks to, as specified in §4.2. It never appears in the
// protocol itself; it exists so every other package can be tested without
// spawning a real git process.
package gitgw

// Gateway exposes the object-store and working-tree primitives the filter
// and the reference sweep need. All methods are synchronous; all failures
// are fatal to the caller except ReadConfig's "key not set" case, which is
// benign (§4.2, §7).
type Gateway interface {
	// StoreBytes forwards payload to the DVCS's hash-and-store-blob
	// operation and returns the content hash as lower-case text.
	StoreBytes(payload []byte) (hash string, err error)

	// FetchBytes returns the raw bytes of the blob stored under hash.
	FetchBytes(hash string) ([]byte, error)

	// ListTrackedPaths returns every path in the staging index.
	ListTrackedPaths() ([]string, error)

	// ShowStagedBlob returns the current staged contents of path (i.e. the
	// user blob manifest for a chunked file, post-clean).
	ShowStagedBlob(path string) ([]byte, error)

	// StagePaths asks the DVCS to add the given paths to the index.
	StagePaths(paths ...string) error

	// ReadConfig returns the local config value for key, or (nil, false) on
	// absence. Absence is not an error.
	ReadConfig(key string) (value []byte, ok bool)

	// WriteConfig sets the local config key to value.
	WriteConfig(key, value string) error

	// UnsetConfig removes the local config key. Removing an already-unset
	// key is not an error (§6 "remove": "ignoring unset-failures").
	UnsetConfig(key string) error

	// RepoRoot returns the absolute filesystem path of the repository root.
	RepoRoot() (string, error)
}
