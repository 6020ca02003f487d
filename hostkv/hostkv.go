// Package hostkv is a fake implementation of the host key-value store this
// module is designed to be embedded in: a key maps to one series' label
// set and the chunk envelope bytes backing it (section 1, 6.4). It is
// backed by buntdb, an embedded indexed store, standing in for the real
// host in tests.
package hostkv

import (
	"strings"

	"github.com/tidwall/buntdb"

	"github.com/nvaistore-labs/tscore/internal/tserr"
	"github.com/nvaistore-labs/tscore/sample"
)

type Store struct {
	db     *buntdb.DB
	prefix string
}

// Open opens a buntdb-backed store at path (":memory:" for an ephemeral
// store, as the tests use).
func Open(path, keyPrefix string) (*Store, error) {
	db, err := buntdb.Open(path)
	if err != nil {
		return nil, tserr.Wrap(tserr.InvalidConfiguration, "opening host kv store", err)
	}
	return &Store{db: db, prefix: keyPrefix}, nil
}

func (s *Store) Close() error { return s.db.Close() }

func (s *Store) metaKey(seriesKey string) string { return s.prefix + "meta:" + seriesKey }
func (s *Store) dataKey(seriesKey string) string { return s.prefix + "data:" + seriesKey }

// PutMeta stores a series' label set.
func (s *Store) PutMeta(seriesKey string, labels []sample.Label) error {
	return s.db.Update(func(tx *buntdb.Tx) error {
		_, _, err := tx.Set(s.metaKey(seriesKey), encodeLabels(labels), nil)
		return err
	})
}

// GetMeta returns a series' label set, or ok=false if the key is unknown.
func (s *Store) GetMeta(seriesKey string) (labels []sample.Label, ok bool, err error) {
	err = s.db.View(func(tx *buntdb.Tx) error {
		v, gerr := tx.Get(s.metaKey(seriesKey))
		if gerr == buntdb.ErrNotFound {
			return nil
		}
		if gerr != nil {
			return gerr
		}
		labels = decodeLabels(v)
		ok = true
		return nil
	})
	return labels, ok, err
}

// PutData stores a series' serialized chunk envelope bytes.
func (s *Store) PutData(seriesKey string, data []byte) error {
	return s.db.Update(func(tx *buntdb.Tx) error {
		_, _, err := tx.Set(s.dataKey(seriesKey), string(data), nil)
		return err
	})
}

func (s *Store) GetData(seriesKey string) (data []byte, ok bool, err error) {
	err = s.db.View(func(tx *buntdb.Tx) error {
		v, gerr := tx.Get(s.dataKey(seriesKey))
		if gerr == buntdb.ErrNotFound {
			return nil
		}
		if gerr != nil {
			return gerr
		}
		data = []byte(v)
		ok = true
		return nil
	})
	return data, ok, err
}

// Keys returns every series key whose metadata key begins with prefix,
// in ascending order.
func (s *Store) Keys(prefix string) ([]string, error) {
	var out []string
	full := s.prefix + "meta:" + prefix
	err := s.db.View(func(tx *buntdb.Tx) error {
		return tx.AscendGreaterOrEqual("", full, func(key, value string) bool {
			if !strings.HasPrefix(key, full) {
				return false
			}
			out = append(out, strings.TrimPrefix(key, s.prefix+"meta:"))
			return true
		})
	})
	return out, err
}

func encodeLabels(labels []sample.Label) string {
	var b strings.Builder
	for i, l := range labels {
		if i > 0 {
			b.WriteByte('\x1f')
		}
		b.WriteString(l.Name)
		b.WriteByte('=')
		b.WriteString(l.Value)
	}
	return b.String()
}

func decodeLabels(v string) []sample.Label {
	if v == "" {
		return nil
	}
	parts := strings.Split(v, "\x1f")
	out := make([]sample.Label, len(parts))
	for i, p := range parts {
		name, value, _ := strings.Cut(p, "=")
		out[i] = sample.Label{Name: name, Value: value}
	}
	return out
}
