// Package codec encodes world manifests.
//
// A manifest records the name of the codec that wrote it. Loading looks the
// name up again, so manifests written by any built-in codec stay readable
// after the default changes.
package codec

import (
	"errors"
	"fmt"
	"sort"
)

// ErrUnknownCodec is returned by Lookup for names no built-in codec uses.
var ErrUnknownCodec = errors.New("codec: unknown codec")

// Codec encodes and decodes values.
// Implementations must be safe for concurrent use.
type Codec interface {
	Marshal(v any) ([]byte, error)
	Unmarshal(data []byte, v any) error
	// Name is recorded next to the encoded bytes.
	Name() string
}

var builtin = map[string]Codec{
	JSON{}.Name():   JSON{},
	GoJSON{}.Name(): GoJSON{},
}

// Lookup returns the built-in codec recorded under name.
func Lookup(name string) (Codec, error) {
	c, ok := builtin[name]
	if !ok {
		return nil, fmt.Errorf("%w %q", ErrUnknownCodec, name)
	}
	return c, nil
}

// Names returns the names of the built-in codecs, sorted.
func Names() []string {
	names := make([]string, 0, len(builtin))
	for n := range builtin {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
