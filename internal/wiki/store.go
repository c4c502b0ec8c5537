package wiki

import (
	"encoding/binary"
	"errors"
	"fmt"
	"strings"

	"github.com/sha1n/mcp-lore-server/internal/domain"
	bolt "go.etcd.io/bbolt"
)

const (
	// pagesBucket holds page records keyed by page ID, plus metadata keys
	// under the reserved meta: prefix.
	pagesBucket = "pages"

	// MetadataPrefix is the reserved key namespace for auxiliary state.
	MetadataPrefix = "meta:"

	// MetaSyncCursor is the metadata key holding the last revision fully
	// reflected in both the store and the search index.
	MetaSyncCursor = MetadataPrefix + "sync_cursor"

	// pageRecordVersion is the current on-disk record format version.
	pageRecordVersion = 1
)

// ErrInvalidMetadataKey indicates a metadata operation used a key outside
// the reserved namespace.
var ErrInvalidMetadataKey = errors.New("metadata key must use the meta: prefix")

// ErrReservedPageID indicates a page write used an ID inside the reserved
// metadata namespace, which would shadow metadata keys in the shared bucket.
var ErrReservedPageID = errors.New("page ID must not use the meta: prefix")

// DecodeError indicates a stored record could not be decoded: a format
// version mismatch or on-disk corruption. Never silently dropped.
type DecodeError struct {
	Key    string
	Reason string
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode page record %q: %s", e.Key, e.Reason)
}

// PageStore is the embedded, crash-tolerant store mapping page IDs to
// serialized Page records. One instance owns the underlying file; readers
// may run concurrently with a batch write.
type PageStore struct {
	db *bolt.DB
}

// OpenPageStore opens or creates the store file at path.
func OpenPageStore(path string) (*PageStore, error) {
	db, err := bolt.Open(path, 0600, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to open page store: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(pagesBucket))
		return err
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create pages bucket: %w", err)
	}

	return &PageStore{db: db}, nil
}

// Close releases the store file.
func (s *PageStore) Close() error {
	return s.db.Close()
}

// Put serializes the page and writes it under its ID, replacing any prior
// value for that key.
func (s *PageStore) Put(page domain.Page) error {
	if strings.HasPrefix(page.ID, MetadataPrefix) {
		return fmt.Errorf("%w: %q", ErrReservedPageID, page.ID)
	}
	data := encodePage(page)
	err := s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket([]byte(pagesBucket)).Put([]byte(page.ID), data)
	})
	if err != nil {
		return fmt.Errorf("failed to put page %q: %w", page.ID, err)
	}
	return nil
}

// PutBatch writes all pages in one transaction: on crash either the whole
// batch is visible or none of its unflushed portion is. Re-applying the same
// batch is a no-op in effect because every put replaces by ID.
func (s *PageStore) PutBatch(pages []domain.Page) error {
	err := s.db.Update(func(tx *bolt.Tx) error {
		bucket := tx.Bucket([]byte(pagesBucket))
		for _, page := range pages {
			if strings.HasPrefix(page.ID, MetadataPrefix) {
				return fmt.Errorf("%w: %q", ErrReservedPageID, page.ID)
			}
			if err := bucket.Put([]byte(page.ID), encodePage(page)); err != nil {
				return fmt.Errorf("page %q: %w", page.ID, err)
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to put page batch: %w", err)
	}
	return nil
}

// Get returns the most recently put page for the ID, or ok=false if the ID
// was never written.
func (s *PageStore) Get(id string) (page domain.Page, ok bool, err error) {
	err = s.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket([]byte(pagesBucket)).Get([]byte(id))
		if data == nil {
			return nil
		}
		decoded, decodeErr := decodePage(id, data)
		if decodeErr != nil {
			return decodeErr
		}
		page = decoded
		ok = true
		return nil
	})
	if err != nil {
		return domain.Page{}, false, err
	}
	return page, ok, nil
}

// SetMetadata writes free-form auxiliary state. Keys outside the reserved
// meta: namespace are rejected so metadata can never shadow a page record.
func (s *PageStore) SetMetadata(key string, value []byte) error {
	if !strings.HasPrefix(key, MetadataPrefix) {
		return fmt.Errorf("%w: %q", ErrInvalidMetadataKey, key)
	}
	err := s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket([]byte(pagesBucket)).Put([]byte(key), value)
	})
	if err != nil {
		return fmt.Errorf("failed to set metadata %q: %w", key, err)
	}
	return nil
}

// GetMetadata reads auxiliary state. Returns nil without error when the key
// was never written.
func (s *PageStore) GetMetadata(key string) ([]byte, error) {
	if !strings.HasPrefix(key, MetadataPrefix) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidMetadataKey, key)
	}
	var value []byte
	err := s.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket([]byte(pagesBucket)).Get([]byte(key))
		if data != nil {
			value = append([]byte(nil), data...)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get metadata %q: %w", key, err)
	}
	return value, nil
}

// encodePage serializes a page with a fixed, versioned binary layout:
// one version byte followed by uvarint-length-prefixed field bytes in a
// fixed field order.
func encodePage(page domain.Page) []byte {
	fields := [...]string{page.ID, page.Title, page.SourcePath, page.URL, page.Content}

	size := 1
	for _, f := range fields {
		size += binary.MaxVarintLen64 + len(f)
	}

	buf := make([]byte, 0, size)
	buf = append(buf, pageRecordVersion)
	var lenBuf [binary.MaxVarintLen64]byte
	for _, f := range fields {
		n := binary.PutUvarint(lenBuf[:], uint64(len(f)))
		buf = append(buf, lenBuf[:n]...)
		buf = append(buf, f...)
	}
	return buf
}

// decodePage reverses encodePage. Any structural mismatch is a DecodeError.
func decodePage(key string, data []byte) (domain.Page, error) {
	if len(data) == 0 {
		return domain.Page{}, &DecodeError{Key: key, Reason: "empty record"}
	}
	if data[0] != pageRecordVersion {
		return domain.Page{}, &DecodeError{Key: key, Reason: fmt.Sprintf("unsupported record version %d", data[0])}
	}

	rest := data[1:]
	var fields [5]string
	for i := range fields {
		length, n := binary.Uvarint(rest)
		if n <= 0 {
			return domain.Page{}, &DecodeError{Key: key, Reason: "truncated field length"}
		}
		rest = rest[n:]
		if uint64(len(rest)) < length {
			return domain.Page{}, &DecodeError{Key: key, Reason: "truncated field data"}
		}
		fields[i] = string(rest[:length])
		rest = rest[length:]
	}
	if len(rest) != 0 {
		return domain.Page{}, &DecodeError{Key: key, Reason: "trailing bytes after record"}
	}

	return domain.Page{
		ID:         fields[0],
		Title:      fields[1],
		SourcePath: fields[2],
		URL:        fields[3],
		Content:    fields[4],
	}, nil
}
