package manifest

import "errors"

// ErrManifestConflict is returned by Save when the cached etag no
// longer matches the stored manifest; Save has already reloaded the
// latest state and the caller is expected to rebase and retry.
var ErrManifestConflict = errors.New("manifest: conflicting concurrent update")

var errNotLoaded = errors.New("manifest: Load must succeed before Save")
