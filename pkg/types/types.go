package types

import (
	"bytes"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// NodeID identifies a tree node. The zero value means "no node" and is
// used as the parent of root nodes.
type NodeID [16]byte

func NewNodeID() NodeID {
	return NodeID(uuid.New())
}

func (id NodeID) String() string {
	return uuid.UUID(id).String()
}

func (id NodeID) Bytes() []byte {
	b := make([]byte, 16)
	copy(b, id[:])
	return b
}

func (id NodeID) IsZero() bool {
	return id == NodeID{}
}

func (id *NodeID) FromBytes(b []byte) error {
	if len(b) != 16 {
		return fmt.Errorf("invalid byte length for NodeID: %d", len(b))
	}
	copy(id[:], b)
	return nil
}

// NodeIDFromString parses the canonical uuid form produced by String.
func NodeIDFromString(s string) (NodeID, error) {
	u, err := uuid.Parse(strings.TrimSpace(s))
	if err != nil {
		return NodeID{}, fmt.Errorf("parse node id %q: %w", s, err)
	}
	return NodeID(u), nil
}

// Node is one row of the tree. Parent and Priority are authoritative;
// Path and Depth are derived from them by the rebuild engine and are only
// guaranteed consistent after pending rebuild tasks have been drained.
type Node struct {
	ID       NodeID
	Parent   NodeID
	Priority int
	Path     string
	Depth    int
	Name     string
	Payload  []byte
	// Seq is a monotonic insertion counter used to break priority ties
	// deterministically during renumbering.
	Seq       uint64
	CreatedAt time.Time
}

func (n Node) IsRoot() bool {
	return n.Parent.IsZero()
}

func (n Node) Equal(other Node) bool {
	return n.ID == other.ID &&
		n.Parent == other.Parent &&
		n.Priority == other.Priority &&
		n.Path == other.Path &&
		n.Depth == other.Depth &&
		n.Name == other.Name &&
		bytes.Equal(n.Payload, other.Payload) &&
		n.Seq == other.Seq &&
		n.CreatedAt.Equal(other.CreatedAt)
}

// Position describes where a node is placed relative to a target node.
// Symbolic positions take the form "<where>-<rel>" with where in
// {first,last,left,right,sorted} and rel in {root,child,sibling}. A bare
// integer ("0", "3", ...) addresses an explicit index in the sibling
// list and is clamped to the list bounds.
type Position string

const (
	FirstRoot  Position = "first-root"
	LastRoot   Position = "last-root"
	SortedRoot Position = "sorted-root"

	FirstChild  Position = "first-child"
	LastChild   Position = "last-child"
	SortedChild Position = "sorted-child"

	FirstSibling  Position = "first-sibling"
	LeftSibling   Position = "left-sibling"
	RightSibling  Position = "right-sibling"
	LastSibling   Position = "last-sibling"
	SortedSibling Position = "sorted-sibling"
)

// At returns a Position addressing an explicit child index.
func At(index int) Position {
	return Position(strconv.Itoa(index))
}

// Index reports the explicit index form, if any.
func (p Position) Index() (int, bool) {
	i, err := strconv.Atoi(string(p))
	if err != nil {
		return 0, false
	}
	return i, true
}

// Parts splits a symbolic position into its where/rel components.
func (p Position) Parts() (where, rel string, err error) {
	s := string(p)
	i := strings.IndexByte(s, '-')
	if i < 0 {
		return "", "", fmt.Errorf("invalid position format: %q", p)
	}
	where, rel = s[:i], s[i+1:]
	switch where {
	case "first", "last", "left", "right", "sorted":
	default:
		return "", "", fmt.Errorf("unknown position type: %q", p)
	}
	switch rel {
	case "root", "child", "sibling":
	default:
		return "", "", fmt.Errorf("unknown position type: %q", p)
	}
	return where, rel, nil
}
