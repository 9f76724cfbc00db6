package badger

import (
	"bytes"
	"encoding/binary"
)

// Key prefixes for different data types
const (
	manifestKey = "vecman"
	entryPrefix = "vecent"
)

// makeGenerationPrefix returns the prefix shared by every entry of a generation.
// Format: prefix:generation:
func makeGenerationPrefix(generation string) []byte {
	buf := make([]byte, 0, len(entryPrefix)+len(generation)+2)
	buf = append(buf, entryPrefix...)
	buf = append(buf, ':')
	buf = append(buf, generation...)
	return append(buf, ':')
}

// makeEntryKey generates the key of row within a generation.
// Format: prefix:generation:row
func makeEntryKey(generation string, row int) []byte {
	prefix := makeGenerationPrefix(generation)
	buf := make([]byte, len(prefix)+8)
	offset := copy(buf, prefix)
	// Write in BigEndian order so iteration returns rows in order
	binary.BigEndian.PutUint64(buf[offset:], uint64(row))
	return buf
}

// parseEntryKey extracts the generation and row from an entry key.
func parseEntryKey(key []byte) (string, int, bool) {
	rest, ok := bytes.CutPrefix(key, []byte(entryPrefix+":"))
	if !ok || len(rest) < 9 {
		return "", 0, false
	}
	generation := rest[:len(rest)-9]
	if rest[len(rest)-9] != ':' {
		return "", 0, false
	}
	row := binary.BigEndian.Uint64(rest[len(rest)-8:])
	return string(generation), int(row), true
}
