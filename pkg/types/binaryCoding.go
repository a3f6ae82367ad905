package types

import (
	"fmt"
	"time"

	"google.golang.org/protobuf/encoding/protowire"
)

// Node rows are stored in protobuf wire format so that fields can be
// added later without invalidating existing rows. The encoding is done
// by hand with protowire; the field numbers below are the schema.
const (
	fieldID        = 1
	fieldParent    = 2
	fieldPriority  = 3
	fieldPath      = 4
	fieldDepth     = 5
	fieldName      = 6
	fieldPayload   = 7
	fieldSeq       = 8
	fieldCreatedAt = 9
)

// NodeToBytes encodes a node row for storage.
func NodeToBytes(n Node) []byte {
	b := make([]byte, 0, 64+len(n.Path)+len(n.Name)+len(n.Payload))

	b = protowire.AppendTag(b, fieldID, protowire.BytesType)
	b = protowire.AppendBytes(b, n.ID[:])

	if !n.Parent.IsZero() {
		b = protowire.AppendTag(b, fieldParent, protowire.BytesType)
		b = protowire.AppendBytes(b, n.Parent[:])
	}
	if n.Priority != 0 {
		b = protowire.AppendTag(b, fieldPriority, protowire.VarintType)
		b = protowire.AppendVarint(b, uint64(n.Priority))
	}
	if n.Path != "" {
		b = protowire.AppendTag(b, fieldPath, protowire.BytesType)
		b = protowire.AppendString(b, n.Path)
	}
	if n.Depth != 0 {
		b = protowire.AppendTag(b, fieldDepth, protowire.VarintType)
		b = protowire.AppendVarint(b, uint64(n.Depth))
	}
	if n.Name != "" {
		b = protowire.AppendTag(b, fieldName, protowire.BytesType)
		b = protowire.AppendString(b, n.Name)
	}
	if len(n.Payload) > 0 {
		b = protowire.AppendTag(b, fieldPayload, protowire.BytesType)
		b = protowire.AppendBytes(b, n.Payload)
	}
	if n.Seq != 0 {
		b = protowire.AppendTag(b, fieldSeq, protowire.VarintType)
		b = protowire.AppendVarint(b, n.Seq)
	}
	if !n.CreatedAt.IsZero() {
		b = protowire.AppendTag(b, fieldCreatedAt, protowire.VarintType)
		b = protowire.AppendVarint(b, uint64(n.CreatedAt.UnixNano()))
	}
	return b
}

// NodeFromBytes decodes a node row. Unknown fields are skipped.
func NodeFromBytes(raw []byte) (Node, error) {
	var n Node
	b := raw
	for len(b) > 0 {
		num, typ, tagLen := protowire.ConsumeTag(b)
		if tagLen < 0 {
			return Node{}, fmt.Errorf("decode node: bad tag: %w", protowire.ParseError(tagLen))
		}
		b = b[tagLen:]

		switch num {
		case fieldID, fieldParent:
			v, m := protowire.ConsumeBytes(b)
			if m < 0 {
				return Node{}, fmt.Errorf("decode node field %d: %w", num, protowire.ParseError(m))
			}
			var id NodeID
			if err := id.FromBytes(v); err != nil {
				return Node{}, fmt.Errorf("decode node field %d: %w", num, err)
			}
			if num == fieldID {
				n.ID = id
			} else {
				n.Parent = id
			}
			b = b[m:]
		case fieldPriority, fieldDepth, fieldSeq, fieldCreatedAt:
			v, m := protowire.ConsumeVarint(b)
			if m < 0 {
				return Node{}, fmt.Errorf("decode node field %d: %w", num, protowire.ParseError(m))
			}
			switch num {
			case fieldPriority:
				n.Priority = int(v)
			case fieldDepth:
				n.Depth = int(v)
			case fieldSeq:
				n.Seq = v
			case fieldCreatedAt:
				n.CreatedAt = time.Unix(0, int64(v)).UTC()
			}
			b = b[m:]
		case fieldPath, fieldName:
			v, m := protowire.ConsumeString(b)
			if m < 0 {
				return Node{}, fmt.Errorf("decode node field %d: %w", num, protowire.ParseError(m))
			}
			if num == fieldPath {
				n.Path = v
			} else {
				n.Name = v
			}
			b = b[m:]
		case fieldPayload:
			v, m := protowire.ConsumeBytes(b)
			if m < 0 {
				return Node{}, fmt.Errorf("decode node field %d: %w", num, protowire.ParseError(m))
			}
			n.Payload = append([]byte(nil), v...)
			b = b[m:]
		default:
			m := protowire.ConsumeFieldValue(num, typ, b)
			if m < 0 {
				return Node{}, fmt.Errorf("decode node: skip field %d: %w", num, protowire.ParseError(m))
			}
			b = b[m:]
		}
	}
	if n.ID.IsZero() {
		return Node{}, fmt.Errorf("decode node: missing id")
	}
	return n, nil
}
