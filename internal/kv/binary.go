package kv

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"strings"

	"github.com/starford/cloudshelf/internal/apperr"
)

// maxDepth bounds object nesting while decoding.
const maxDepth = 128

// Unmarshal decodes a binary keyed-value document. When rootName is not
// empty the root object must carry exactly that name.
func Unmarshal(data []byte, rootName string) (*Node, error) {
	d := &decoder{data: data}

	kind, err := d.readKind()
	if err != nil {
		return nil, err
	}
	if kind != KindObject {
		return nil, d.errorf(d.pos-1, "root is %s, want object", kind)
	}
	name, err := d.readCString()
	if err != nil {
		return nil, err
	}
	if rootName != "" && name != rootName {
		return nil, apperr.NewFormatError("unexpected root %q, want %q", name, rootName)
	}
	children, err := d.readChildren(1)
	if err != nil {
		return nil, err
	}

	end, err := d.readKind()
	if err != nil {
		return nil, err
	}
	if end != kindEnd && end != kindEndAlt {
		return nil, d.errorf(d.pos-1, "expected end of document, got tag 0x%02x", byte(end))
	}
	if d.pos != len(d.data) {
		return nil, d.errorf(d.pos, "%d trailing bytes", len(d.data)-d.pos)
	}
	return &Node{Name: name, Kind: KindObject, Children: children}, nil
}

type decoder struct {
	data []byte
	pos  int
}

func (d *decoder) errorf(offset int, format string, args ...any) error {
	return &apperr.FormatError{Offset: int64(offset), Msg: fmt.Sprintf(format, args...)}
}

func (d *decoder) truncated() error {
	return d.errorf(d.pos, "unexpected end of data")
}

func (d *decoder) readKind() (Kind, error) {
	if d.pos >= len(d.data) {
		return 0, d.truncated()
	}
	k := Kind(d.data[d.pos])
	d.pos++
	return k, nil
}

func (d *decoder) readCString() (string, error) {
	i := bytes.IndexByte(d.data[d.pos:], 0)
	if i < 0 {
		d.pos = len(d.data)
		return "", d.truncated()
	}
	s := string(d.data[d.pos : d.pos+i])
	d.pos += i + 1
	return s, nil
}

func (d *decoder) readFixed(n int) ([]byte, error) {
	if len(d.data)-d.pos < n {
		d.pos = len(d.data)
		return nil, d.truncated()
	}
	b := d.data[d.pos : d.pos+n]
	d.pos += n
	return b, nil
}

func (d *decoder) readChildren(depth int) ([]*Node, error) {
	if depth > maxDepth {
		return nil, d.errorf(d.pos, "nesting deeper than %d", maxDepth)
	}
	children := []*Node{}
	for {
		tagAt := d.pos
		kind, err := d.readKind()
		if err != nil {
			return nil, err
		}
		if kind == kindEnd || kind == kindEndAlt {
			return children, nil
		}
		name, err := d.readCString()
		if err != nil {
			return nil, err
		}

		n := &Node{Name: name, Kind: kind}
		switch kind {
		case KindObject:
			if n.Children, err = d.readChildren(depth + 1); err != nil {
				return nil, err
			}
		case KindString:
			if n.Str, err = d.readCString(); err != nil {
				return nil, err
			}
		case KindInt32, KindFloat32, KindPointer, KindColor:
			b, err := d.readFixed(4)
			if err != nil {
				return nil, err
			}
			n.Bits = uint64(binary.LittleEndian.Uint32(b))
		case KindUint64, KindInt64:
			b, err := d.readFixed(8)
			if err != nil {
				return nil, err
			}
			n.Bits = binary.LittleEndian.Uint64(b)
		default:
			return nil, d.errorf(tagAt, "unknown type tag 0x%02x for key %q", byte(kind), name)
		}
		children = append(children, n)
	}
}

// Marshal encodes root as a binary keyed-value document.
func Marshal(root *Node) ([]byte, error) {
	if root == nil || root.Kind != KindObject {
		return nil, fmt.Errorf("kv: root must be an object")
	}
	var buf bytes.Buffer
	if err := writeNode(&buf, root); err != nil {
		return nil, err
	}
	buf.WriteByte(byte(kindEnd))
	return buf.Bytes(), nil
}

func writeNode(buf *bytes.Buffer, n *Node) error {
	buf.WriteByte(byte(n.Kind))
	if err := writeCString(buf, n.Name); err != nil {
		return err
	}

	var scratch [8]byte
	switch n.Kind {
	case KindObject:
		for _, c := range n.Children {
			if err := writeNode(buf, c); err != nil {
				return err
			}
		}
		buf.WriteByte(byte(kindEnd))
	case KindString:
		return writeCString(buf, n.Str)
	case KindInt32, KindFloat32, KindPointer, KindColor:
		binary.LittleEndian.PutUint32(scratch[:4], uint32(n.Bits))
		buf.Write(scratch[:4])
	case KindUint64, KindInt64:
		binary.LittleEndian.PutUint64(scratch[:], n.Bits)
		buf.Write(scratch[:])
	default:
		return fmt.Errorf("kv: cannot encode %q: unknown kind 0x%02x", n.Name, byte(n.Kind))
	}
	return nil
}

func writeCString(buf *bytes.Buffer, s string) error {
	if strings.IndexByte(s, 0) >= 0 {
		return fmt.Errorf("kv: string %q contains NUL", s)
	}
	buf.WriteString(s)
	buf.WriteByte(0)
	return nil
}
