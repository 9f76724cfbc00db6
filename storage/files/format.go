package files

import (
	"fmt"

	"github.com/poiesic/medvec/storage"
)

func encodeVectors(m storage.Manifest, vectors [][]float32) []byte {
	buf := make([]byte, 0, len(vectorsMagic)+64+m.Rows*storage.VectorSize(m.Dim)+storage.ChecksumSize)
	buf = append(buf, vectorsMagic...)
	buf = append(buf, storage.MarshalManifest(m)...)
	for _, v := range vectors {
		buf = storage.MarshalVector(v, buf)
	}
	return storage.Seal(buf)
}

func decodeVectors(data []byte) (storage.Manifest, [][]float32, error) {
	m, body, err := openBlob(data, vectorsMagic)
	if err != nil {
		return m, nil, err
	}
	size, ok := storage.VectorTableSize(m.Rows, m.Dim)
	if !ok || len(body) != size {
		return m, nil, fmt.Errorf("%w: vector table is %d bytes, manifest says %dx%d",
			storage.ErrCorrupt, len(body), m.Rows, m.Dim)
	}

	vectors := make([][]float32, m.Rows)
	for i := range vectors {
		v, n, err := storage.UnmarshalVector(body, m.Dim)
		if err != nil {
			return m, nil, fmt.Errorf("%w: row %d: %w", storage.ErrCorrupt, i, err)
		}
		vectors[i] = v
		body = body[n:]
	}
	return m, vectors, nil
}

func encodeIDs(m storage.Manifest, ids []string) []byte {
	buf := make([]byte, 0, len(idsMagic)+64+len(ids)*12+storage.ChecksumSize)
	buf = append(buf, idsMagic...)
	buf = append(buf, storage.MarshalManifest(m)...)
	for _, id := range ids {
		buf = append(buf, storage.MarshalID(id)...)
	}
	return storage.Seal(buf)
}

func decodeIDs(data []byte) (storage.Manifest, []string, error) {
	m, body, err := openBlob(data, idsMagic)
	if err != nil {
		return m, nil, err
	}

	// Every encoded id takes at least its one-byte length prefix.
	if m.Rows > len(body) {
		return m, nil, fmt.Errorf("%w: %d bytes cannot hold %d ids", storage.ErrCorrupt, len(body), m.Rows)
	}

	ids := make([]string, m.Rows)
	for i := range ids {
		id, n, err := storage.UnmarshalID(body)
		if err != nil {
			return m, nil, fmt.Errorf("%w: id %d: %w", storage.ErrCorrupt, i, err)
		}
		ids[i] = id
		body = body[n:]
	}
	if len(body) != 0 {
		return m, nil, fmt.Errorf("%w: %d trailing bytes after %d ids", storage.ErrCorrupt, len(body), m.Rows)
	}
	return m, ids, nil
}

// openBlob verifies the checksum and magic, then decodes the manifest.
func openBlob(data []byte, magic string) (storage.Manifest, []byte, error) {
	payload, err := storage.Unseal(data)
	if err != nil {
		return storage.Manifest{}, nil, err
	}
	if len(payload) < len(magic) || string(payload[:len(magic)]) != magic {
		return storage.Manifest{}, nil, fmt.Errorf("%w: bad magic", storage.ErrCorrupt)
	}
	payload = payload[len(magic):]

	m, n, err := storage.UnmarshalManifest(payload)
	if err != nil {
		return m, nil, fmt.Errorf("%w: %w", storage.ErrCorrupt, err)
	}
	return m, payload[n:], nil
}
