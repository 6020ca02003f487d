// Package id generates short, globally-unique identifiers for nodes and
// series handles, modeled on the teacher's cmn/cos uuid.go: a shortid
// generator seeded once at process start, with a letter prefix inserted
// when the raw id doesn't already start with one.
package id

import (
	"sync"

	"github.com/teris-io/shortid"
)

const abc = "-5nZJDft6LuzsjGNpPwY7rQa39vehq4i1cV2FROo8yHSlC0BUEdWbIxMmTgKXAk_"

var (
	once sync.Once
	sid  *shortid.Shortid
)

// Init seeds the generator. Safe to call multiple times; only the first
// call takes effect.
func Init(worker uint8, seed uint64) {
	once.Do(func() {
		sid = shortid.MustNew(worker, abc, seed)
	})
}

func ensureInit() {
	if sid == nil {
		Init(1, 1)
	}
}

// New returns a fresh short id, prefixing a letter when the generated id
// would otherwise start with a digit or separator.
func New() string {
	ensureInit()
	raw := sid.MustGenerate()
	if !isAlpha(raw[0]) {
		return "n" + raw
	}
	return raw
}

func isAlpha(c byte) bool {
	return (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}
