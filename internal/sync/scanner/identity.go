package scanner

import (
	"crypto/sha256"
	"encoding/hex"
)

// TreeID derives the stable identifier of a local tree from its human name and
// storage root. When no stable root is available only the name is hashed.
func TreeID(name, root string) string {
	seed := name
	if root != "" {
		seed = name + "::" + root
	}
	sum := sha256.Sum256([]byte(seed))
	return hex.EncodeToString(sum[:])
}
