// Package codec implements the compression registry spec.md §4.2 calls for:
// a process-wide mapping from codec name to a compress/decompress pair,
// populated once at init and read-only thereafter.
package codec

import (
	"sync"

	"github.com/copperloop/zss/internal/zsserr"
)

// Params carries codec-specific settings from a writer's options (spec.md
// §6's "codec" / "codec_params" fields); they are not stored in the
// header. Level is
// the only setting any registered codec currently consults; zero means
// "use the codec's default".
type Params struct {
	Level int
}

// Codec is a registered compression algorithm, named verbatim in a ZSS
// header (§3.2's codec-name field).
type Codec struct {
	Name       string
	Compress   func(src []byte, params Params) ([]byte, error)
	Decompress func(src []byte) ([]byte, error)
}

var (
	mu       sync.RWMutex
	registry = map[string]*Codec{}
)

// Register adds c to the process-wide registry. Called only from package
// init functions; panics on a duplicate name since that indicates a build
// wiring bug, not a runtime condition callers should recover from.
func Register(c *Codec) {
	mu.Lock()
	defer mu.Unlock()
	if _, ok := registry[c.Name]; ok {
		panic("codec: duplicate registration for " + c.Name)
	}
	registry[c.Name] = c
}

// Lookup returns the codec registered under name, or a KindCodec error if
// no codec was registered under that name (spec.md §4.2: unrecognised
// codec names fail both at writer-create time and at open/validate time).
func Lookup(name string) (*Codec, error) {
	mu.RLock()
	defer mu.RUnlock()
	c, ok := registry[name]
	if !ok {
		return nil, zsserr.NewError(zsserr.KindCodec, "zss: unregistered codec %q", name)
	}
	return c, nil
}
