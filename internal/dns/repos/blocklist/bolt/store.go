// Package bolt persists blocklist rules in a bbolt database.
//
// Exact rules are keyed by canonical name, suffix rules by the byte-reversed
// anchor so related anchors sort together. Values hold the rule source and
// the time it was added.
package bolt

import (
	"encoding/binary"
	"errors"
	"fmt"
	"strings"
	"time"

	bbolt "go.etcd.io/bbolt"

	"github.com/haukened/rr-recursor/internal/dns/domain"
	"github.com/haukened/rr-recursor/internal/dns/repos/blocklist"
)

var (
	bucketExact  = []byte("exact")
	bucketSuffix = []byte("suffix")
	bucketMeta   = []byte("meta")

	keyVersion = []byte("version")
	keyUpdated = []byte("updated")
)

// ErrCorruptValue is returned when a stored rule value cannot be decoded.
var ErrCorruptValue = errors.New("corrupt blocklist value")

// openTimeout bounds how long Open waits for the file lock.
const openTimeout = 1 * time.Second

// boltStore implements blocklist.Store using bbolt.
type boltStore struct {
	db *bbolt.DB
}

// New opens (or creates) a Bolt database at path and ensures buckets exist.
func New(path string) (blocklist.Store, error) {
	db, err := bbolt.Open(path, 0o600, &bbolt.Options{Timeout: openTimeout})
	if err != nil {
		return nil, fmt.Errorf("open blocklist db %s: %w", path, err)
	}
	if err := db.Update(func(tx *bbolt.Tx) error {
		for _, name := range [][]byte{bucketExact, bucketSuffix, bucketMeta} {
			if _, err := tx.CreateBucketIfNotExists(name); err != nil {
				return err
			}
		}
		return nil
	}); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("init blocklist db %s: %w", path, err)
	}
	return &boltStore{db: db}, nil
}

func (s *boltStore) Close() error { return s.db.Close() }

// RebuildAll drops both rule buckets and writes rules plus metadata in a
// single transaction, so readers see either the old or the new snapshot.
func (s *boltStore) RebuildAll(rules []domain.BlockRule, version uint64, updatedUnix int64) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		exact, err := recreateBucket(tx, bucketExact)
		if err != nil {
			return err
		}
		suffix, err := recreateBucket(tx, bucketSuffix)
		if err != nil {
			return err
		}
		for _, r := range rules {
			if err := r.Validate(); err != nil {
				return fmt.Errorf("rule %q: %w", r.Name, err)
			}
			v := encodeValue(r)
			switch r.Kind {
			case domain.BlockRuleExact:
				err = exact.Put([]byte(r.Name), v)
			case domain.BlockRuleSuffix:
				err = suffix.Put([]byte(reverse(r.Name)), v)
			}
			if err != nil {
				return err
			}
		}
		meta := tx.Bucket(bucketMeta)
		if err := meta.Put(keyVersion, u64(version)); err != nil {
			return err
		}
		return meta.Put(keyUpdated, u64(uint64(updatedUnix)))
	})
}

// GetFirstMatch looks up name as an exact rule, then walks its suffix
// anchors from the full name up to the last label.
func (s *boltStore) GetFirstMatch(name string) (domain.BlockRule, bool, error) {
	var (
		rule  domain.BlockRule
		found bool
	)
	err := s.db.View(func(tx *bbolt.Tx) error {
		if v := tx.Bucket(bucketExact).Get([]byte(name)); v != nil {
			r, err := decodeValue(name, domain.BlockRuleExact, v)
			if err != nil {
				return err
			}
			rule, found = r, true
			return nil
		}
		b := tx.Bucket(bucketSuffix)
		for a := name; a != ""; {
			if v := b.Get([]byte(reverse(a))); v != nil {
				r, err := decodeValue(a, domain.BlockRuleSuffix, v)
				if err != nil {
					return err
				}
				rule, found = r, true
				return nil
			}
			i := strings.IndexByte(a, '.')
			if i < 0 {
				break
			}
			a = a[i+1:]
		}
		return nil
	})
	if err != nil {
		return domain.BlockRule{}, false, err
	}
	return rule, found, nil
}

func (s *boltStore) Stats() blocklist.StoreStats {
	st := blocklist.StoreStats{}
	_ = s.db.View(func(tx *bbolt.Tx) error {
		st.ExactCount = uint64(tx.Bucket(bucketExact).Stats().KeyN)
		st.SuffixCount = uint64(tx.Bucket(bucketSuffix).Stats().KeyN)
		meta := tx.Bucket(bucketMeta)
		if v := meta.Get(keyVersion); len(v) == 8 {
			st.Version = binary.BigEndian.Uint64(v)
		}
		if v := meta.Get(keyUpdated); len(v) == 8 {
			st.UpdatedUnix = int64(binary.BigEndian.Uint64(v))
		}
		return nil
	})
	return st
}

func recreateBucket(tx *bbolt.Tx, name []byte) (*bbolt.Bucket, error) {
	if err := tx.DeleteBucket(name); err != nil && !errors.Is(err, bbolt.ErrBucketNotFound) {
		return nil, err
	}
	return tx.CreateBucket(name)
}

// encodeValue lays out a rule as addedAt (unix seconds, 8 bytes) followed by
// the source string.
func encodeValue(r domain.BlockRule) []byte {
	v := make([]byte, 8, 8+len(r.Source))
	binary.BigEndian.PutUint64(v, uint64(r.AddedAt.Unix()))
	return append(v, r.Source...)
}

func decodeValue(name string, kind domain.BlockRuleKind, v []byte) (domain.BlockRule, error) {
	if len(v) < 8 {
		return domain.BlockRule{}, fmt.Errorf("%w: %d bytes for %q", ErrCorruptValue, len(v), name)
	}
	return domain.BlockRule{
		Name:    name,
		Kind:    kind,
		Source:  string(v[8:]),
		AddedAt: time.Unix(int64(binary.BigEndian.Uint64(v[:8])), 0),
	}, nil
}

func reverse(s string) string {
	b := []byte(s)
	for i, j := 0, len(b)-1; i < j; i, j = i+1, j-1 {
		b[i], b[j] = b[j], b[i]
	}
	return string(b)
}

func u64(v uint64) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, v)
	return b
}
