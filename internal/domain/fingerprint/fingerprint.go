// Package fingerprint derives deterministic record keys.
//
// Values are normalized with model.Value.Canonical before hashing, so the same
// source content always hashes the same regardless of field insertion order or
// cell formatting.
package fingerprint

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"

	"github.com/target/mmk-crawlsync/internal/domain/model"
)

// Separator joins normalized values before hashing.
const Separator = "||"

// Keys bundles every hash the sync engine needs for one record.
type Keys struct {
	// Fingerprint is the dedup key for the source's mode.
	Fingerprint string
	// NaturalKey hashes the identity fields; it equals Fingerprint in identity mode.
	NaturalKey string
	// ContentHash hashes the full payload.
	ContentHash string
}

// Compute returns the fingerprint of rec for mode.
func Compute(rec model.Record, mode model.FingerprintMode, identity []string) string {
	if mode == model.ModeContent {
		return ContentHash(rec)
	}
	return NaturalKey(rec, identity)
}

// Of computes all keys for rec under def.
func Of(rec model.Record, def *model.SourceDefinition) Keys {
	k := Keys{
		NaturalKey:  NaturalKey(rec, def.Identity),
		ContentHash: ContentHash(rec),
	}
	if def.Mode == model.ModeContent {
		k.Fingerprint = k.ContentHash
	} else {
		k.Fingerprint = k.NaturalKey
	}
	return k
}

// NaturalKey hashes the identity field values in declared order.
func NaturalKey(rec model.Record, identity []string) string {
	parts := make([]string, len(identity))
	for i, f := range identity {
		parts[i] = rec.Get(f).Canonical()
	}
	return hash(strings.Join(parts, Separator))
}

// ContentHash hashes every field as name=value in field-name order.
func ContentHash(rec model.Record) string {
	names := rec.FieldNames()
	parts := make([]string, len(names))
	for i, n := range names {
		parts[i] = n + "=" + rec.Fields[n].Canonical()
	}
	return hash(strings.Join(parts, Separator))
}

func hash(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])
}
