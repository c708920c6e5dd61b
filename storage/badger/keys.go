package badger

import (
	"bytes"
	"encoding/binary"

	"github.com/poiesic/catmat/core"
)

// Key layout:
//
//	art:<fp>:man                    manifest
//	art:<fp>:gen                    live chunk generation (u32 BE)
//	art:<fp>:emb:<gen u32><u32 BE>  embedding chunk
//	art:<fp>:gph:<gen u32><u32 BE>  graph chunk
//	ptr:cur / ptr:prev      current and previous fingerprints
//	log:last                most recent build record
const (
	artifactPrefix   = "art:"
	manifestSuffix   = ":man"
	generationSuffix = ":gen"
	embeddingSegment = ":emb:"
	graphSegment     = ":gph:"
	currentKey       = "ptr:cur"
	previousKey      = "ptr:prev"
	lastBuildKey     = "log:last"
)

// makeArtifactPrefix returns the prefix shared by every key of one artifact.
func makeArtifactPrefix(fp core.Fingerprint) []byte {
	return []byte(artifactPrefix + string(fp) + ":")
}

func makeManifestKey(fp core.Fingerprint) []byte {
	return []byte(artifactPrefix + string(fp) + manifestSuffix)
}

func makeGenerationKey(fp core.Fingerprint) []byte {
	return []byte(artifactPrefix + string(fp) + generationSuffix)
}

// makeEmbeddingPrefix returns the prefix of one generation's embedding chunks.
func makeEmbeddingPrefix(fp core.Fingerprint, gen uint32) []byte {
	return binary.BigEndian.AppendUint32([]byte(artifactPrefix+string(fp)+embeddingSegment), gen)
}

func makeGraphPrefix(fp core.Fingerprint, gen uint32) []byte {
	return binary.BigEndian.AppendUint32([]byte(artifactPrefix+string(fp)+graphSegment), gen)
}

// makeChunkKey appends a chunk number in BigEndian order so lexicographic
// iteration returns chunks in sequence.
func makeChunkKey(prefix []byte, chunk uint32) []byte {
	buf := make([]byte, len(prefix)+4)
	offset := copy(buf, prefix)
	binary.BigEndian.PutUint32(buf[offset:], chunk)
	return buf
}

// fingerprintFromKey extracts <fp> from any art:<fp>:... key.
func fingerprintFromKey(key []byte) (core.Fingerprint, bool) {
	rest, ok := bytes.CutPrefix(key, []byte(artifactPrefix))
	if !ok {
		return "", false
	}
	end := bytes.IndexByte(rest, ':')
	if end <= 0 {
		return "", false
	}
	return core.Fingerprint(rest[:end]), true
}
