// Package kv reads and writes Valve keyed-value trees: the binary container
// format used by shortcuts.vdf and the text format used by loginusers.vdf.
//
// Nodes are typed purely by structure. The package never interprets key
// names, which is what lets callers round-trip keys they do not understand.
package kv

import (
	"math"
	"strings"
)

// Kind is the type tag of a node as written in the binary format.
type Kind byte

const (
	KindObject  Kind = 0x00
	KindString  Kind = 0x01
	KindInt32   Kind = 0x02
	KindFloat32 Kind = 0x03
	KindPointer Kind = 0x04
	KindColor   Kind = 0x06
	KindUint64  Kind = 0x07
	KindInt64   Kind = 0x0A

	kindWideString Kind = 0x05
	kindEnd        Kind = 0x08
	kindEndAlt     Kind = 0x0B
)

// String returns a human-readable kind name used in error messages.
func (k Kind) String() string {
	switch k {
	case KindObject:
		return "object"
	case KindString:
		return "string"
	case KindInt32:
		return "int32"
	case KindFloat32:
		return "float32"
	case KindPointer:
		return "pointer"
	case KindColor:
		return "color"
	case KindUint64:
		return "uint64"
	case KindInt64:
		return "int64"
	default:
		return "unknown"
	}
}

// Node is one entry of a keyed-value tree. Numeric kinds keep their raw bits
// in Bits so that encoding reproduces them exactly.
type Node struct {
	Name     string
	Kind     Kind
	Str      string
	Bits     uint64
	Children []*Node
}

// Object returns an object node holding children in order.
func Object(name string, children ...*Node) *Node {
	if children == nil {
		children = []*Node{}
	}
	return &Node{Name: name, Kind: KindObject, Children: children}
}

// String returns a string leaf.
func String(name, value string) *Node {
	return &Node{Name: name, Kind: KindString, Str: value}
}

// Int32 returns a 32-bit integer leaf.
func Int32(name string, value int32) *Node {
	return &Node{Name: name, Kind: KindInt32, Bits: uint64(uint32(value))}
}

// Float32 returns a 32-bit float leaf.
func Float32(name string, value float32) *Node {
	return &Node{Name: name, Kind: KindFloat32, Bits: uint64(math.Float32bits(value))}
}

// Uint64 returns a 64-bit unsigned leaf.
func Uint64(name string, value uint64) *Node {
	return &Node{Name: name, Kind: KindUint64, Bits: value}
}

// Int64 returns a 64-bit signed leaf.
func Int64(name string, value int64) *Node {
	return &Node{Name: name, Kind: KindInt64, Bits: uint64(value)}
}

// Int32Value returns the value of an int32, pointer or color leaf.
func (n *Node) Int32Value() int32 {
	return int32(uint32(n.Bits))
}

// Float32Value returns the value of a float32 leaf.
func (n *Node) Float32Value() float32 {
	return math.Float32frombits(uint32(n.Bits))
}

// Int64Value returns the value of an int64 leaf.
func (n *Node) Int64Value() int64 {
	return int64(n.Bits)
}

// Child returns the first direct child named name, or nil.
func (n *Node) Child(name string) *Node {
	for _, c := range n.Children {
		if c.Name == name {
			return c
		}
	}
	return nil
}

// ChildFold is Child with case-insensitive matching.
func (n *Node) ChildFold(name string) *Node {
	for _, c := range n.Children {
		if strings.EqualFold(c.Name, name) {
			return c
		}
	}
	return nil
}

// Clone returns a deep copy of n.
func (n *Node) Clone() *Node {
	if n == nil {
		return nil
	}
	out := *n
	if n.Children != nil {
		out.Children = make([]*Node, len(n.Children))
		for i, c := range n.Children {
			out.Children[i] = c.Clone()
		}
	}
	return &out
}
