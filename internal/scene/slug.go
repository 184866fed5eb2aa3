package scene

import (
	"crypto/sha256"
	"encoding/hex"

	"golang.org/x/text/unicode/norm"
)

// Domain prefix for slug identity. Version suffix enables future
// algorithm migration.
const slugDomain = "bakeflow/object/v1"

// SlugLen is the fixed length of every object slug in hex characters.
const SlugLen = 16

// Slug computes the stable content-hash identifier for an object name.
//
// Names are NFC-normalized before hashing so that visually identical
// names produced by different editors collide onto the same slug. The
// digest is SHA-256 with domain separation (domain + 0x00 + name),
// truncated to SlugLen hex characters - collision-resistant at scene
// scale while staying short enough for file and table keys.
func Slug(name string) string {
	normalized := norm.NFC.String(name)
	h := sha256.New()
	h.Write([]byte(slugDomain))
	h.Write([]byte{0x00}) // null separator prevents domain/name boundary ambiguity
	h.Write([]byte(normalized))
	return hex.EncodeToString(h.Sum(nil))[:SlugLen]
}
