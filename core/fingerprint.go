package core

import (
	"encoding/hex"
	"fmt"
	"hash"

	"github.com/go-crypt/x/blake2b"
)

// Fingerprint identifies a build artifact. It changes whenever the catalog
// content, the embedding model configuration or the index parameters change.
type Fingerprint string

// Short returns an abbreviated form for logs.
func (f Fingerprint) Short() string {
	if len(f) > 12 {
		return string(f[:12])
	}
	return string(f)
}

// FingerprintInput lists everything an artifact depends on.
type FingerprintInput struct {
	CatalogHash   string
	Model         string
	QueryPrefix   string
	PassagePrefix string
	Params        IndexParams
}

// ComputeFingerprint hashes the inputs with BLAKE2b-256.
func ComputeFingerprint(in FingerprintInput) Fingerprint {
	h, _ := blake2b.New(32, nil)
	fmt.Fprintf(h, "catalog=%s\n", in.CatalogHash)
	fmt.Fprintf(h, "model=%s\n", in.Model)
	fmt.Fprintf(h, "query_prefix=%q\npassage_prefix=%q\n", in.QueryPrefix, in.PassagePrefix)
	fmt.Fprintf(h, "m=%d\nef_construction=%d\nef_search=%d\n", in.Params.M, in.Params.EfConstruction, in.Params.EfSearch)
	return Fingerprint(hex.EncodeToString(h.Sum(nil)))
}

// ContentHasher accumulates a BLAKE2b-256 digest over catalog records.
type ContentHasher struct {
	h hash.Hash
}

// NewContentHasher returns an empty hasher.
func NewContentHasher() *ContentHasher {
	h, _ := blake2b.New(32, nil)
	return &ContentHasher{h: h}
}

// Add feeds one record. Fields are length-prefixed so that boundaries are
// unambiguous.
func (c *ContentHasher) Add(id, description string) {
	fmt.Fprintf(c.h, "%d:%s%d:%s", len(id), id, len(description), description)
}

// Sum returns the hex digest.
func (c *ContentHasher) Sum() string {
	return hex.EncodeToString(c.h.Sum(nil))
}
