package octree

import (
	"errors"
	"fmt"
	"log/slog"
)

// DefaultDecodeMaxDepth bounds the nesting accepted by Decode.
const DefaultDecodeMaxDepth = 64

// EncodeOptions configures Encode.
type EncodeOptions struct {
	// OnCoerce is called for every leaf whose material equals the sentinel.
	// Such leaves are written as air.
	OnCoerce func(level int, material uint8)
}

// Encode serializes the tree in pre-order: a leaf is its material byte, an
// internal node is the sentinel followed by its eight children in index order.
func Encode(root *Node, optFns ...func(o *EncodeOptions)) ([]byte, error) {
	return AppendEncode(nil, root, optFns...)
}

// AppendEncode is like Encode but appends to dst.
func AppendEncode(dst []byte, root *Node, optFns ...func(o *EncodeOptions)) ([]byte, error) {
	var opts EncodeOptions
	for _, fn := range optFns {
		fn(&opts)
	}
	if root == nil {
		return nil, fmt.Errorf("%w: nil root", ErrStructuralInvariant)
	}
	return encode(dst, root, &opts)
}

func encode(dst []byte, n *Node, opts *EncodeOptions) ([]byte, error) {
	switch n.Kind {
	case Leaf:
		m := n.Material
		if m == Sentinel {
			if opts.OnCoerce != nil {
				opts.OnCoerce(n.Level, m)
			}
			m = Air
		}
		return append(dst, m), nil
	case Internal:
		dst = append(dst, Sentinel)
		for i, c := range n.Children {
			if c == nil {
				return nil, fmt.Errorf("%w: internal node at level %d missing child %d", ErrStructuralInvariant, n.Level, i)
			}
			var err error
			if dst, err = encode(dst, c, opts); err != nil {
				return nil, err
			}
		}
		return dst, nil
	default:
		return nil, fmt.Errorf("%w: unknown %s at level %d", ErrStructuralInvariant, n.Kind, n.Level)
	}
}

// DecodeOptions configures Decode.
type DecodeOptions struct {
	// MaxDepth is the deepest level accepted. Defaults to DefaultDecodeMaxDepth.
	MaxDepth int
}

// Decode parses a pre-order stream produced by Encode. An empty stream decodes
// to an air root.
//
// When the tree is complete but bytes remain, Decode returns the tree together
// with a *TrailingDataError.
func Decode(data []byte, optFns ...func(o *DecodeOptions)) (*Node, error) {
	opts := DecodeOptions{MaxDepth: DefaultDecodeMaxDepth}
	for _, fn := range optFns {
		fn(&opts)
	}
	if len(data) == 0 {
		return AirRoot(), nil
	}

	d := decoder{data: data, maxDepth: opts.MaxDepth}
	root, err := d.node(0)
	if err != nil {
		return nil, err
	}
	if d.pos < len(data) {
		return root, &TrailingDataError{Consumed: d.pos, Trailing: len(data) - d.pos}
	}
	return root, nil
}

type decoder struct {
	data     []byte
	pos      int
	maxDepth int
}

func (d *decoder) node(level int) (*Node, error) {
	if d.pos >= len(d.data) {
		return nil, &TruncatedError{Offset: d.pos, Length: len(d.data)}
	}
	b := d.data[d.pos]
	d.pos++
	if b != Sentinel {
		return NewLeaf(level, b), nil
	}
	if level >= d.maxDepth {
		return nil, fmt.Errorf("%w: level %d exceeds %d", ErrTooDeep, level+1, d.maxDepth)
	}
	n := &Node{Kind: Internal, Level: level}
	for i := range n.Children {
		c, err := d.node(level + 1)
		if err != nil {
			return nil, err
		}
		n.Children[i] = c
	}
	return n, nil
}

// DecodeOrAir decodes data, substituting an air root for unreadable streams.
// Failures are logged; trailing bytes are logged and the tree is kept.
// replaced reports whether the air root was substituted.
func DecodeOrAir(data []byte, logger *slog.Logger, optFns ...func(o *DecodeOptions)) (root *Node, replaced bool) {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	root, err := Decode(data, optFns...)
	if err == nil {
		return root, false
	}
	var trailing *TrailingDataError
	if errors.As(err, &trailing) {
		logger.Warn("octree stream has trailing data",
			"consumed", trailing.Consumed,
			"trailing", trailing.Trailing,
		)
		return root, false
	}
	logger.Error("octree stream unreadable, substituting air",
		"bytes", len(data),
		"error", err,
	)
	return AirRoot(), true
}

// EncodeOrAir encodes root, substituting a single air leaf when the tree is
// malformed. Failures and coerced leaves are logged. replaced reports whether
// the air leaf was substituted.
func EncodeOrAir(root *Node, logger *slog.Logger) (data []byte, replaced bool) {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	data, err := Encode(root, func(o *EncodeOptions) {
		o.OnCoerce = func(level int, material uint8) {
			logger.Warn("leaf carries reserved material, writing air",
				"level", level,
				"material", material,
			)
		}
	})
	if err != nil {
		logger.Error("octree encode failed, writing air", "error", err)
		return []byte{Air}, true
	}
	return data, false
}
