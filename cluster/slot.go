package cluster

import "bytes"

// NumSlots is the fixed size of a Redis Cluster hash-slot space.
const NumSlots = 16384

// HashSlot computes the hash slot for key: CRC16-XMODEM of the
// hash-tag portion, modulo NumSlots (spec.md §4.6).
func HashSlot(key []byte) uint16 {
	tag := hashTag(key)
	return CRC16(tag) % NumSlots
}

// hashTag extracts the substring between the first '{' and the next
// '}' strictly after it, when that span is non-empty; otherwise the
// whole key is used (spec.md §4.6 / GLOSSARY "Hash tag").
func hashTag(key []byte) []byte {
	open := bytes.IndexByte(key, '{')
	if open < 0 {
		return key
	}
	closeRel := bytes.IndexByte(key[open+1:], '}')
	if closeRel < 0 {
		return key
	}
	if closeRel == 0 {
		// "{}" — empty span, use the whole key.
		return key
	}
	return key[open+1 : open+1+closeRel]
}
