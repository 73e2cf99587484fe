package core

import (
	"encoding/binary"
	"encoding/json"
	"strconv"
	"strings"
)

// MaxScopeLevel bounds the nesting depth of any tag an operator will track.
const MaxScopeLevel = 64

// Tag identifies a (possibly nested) scope as an ordered path of indices.
// The zero value is the root scope. Tags are comparable and can be used as
// map keys directly; two tags are equal iff their paths are equal.
type Tag struct {
	enc string
}

// NewTag creates a tag from the given scope path
func NewTag(ids ...uint32) Tag {
	if len(ids) == 0 {
		return Tag{}
	}
	buf := make([]byte, 0, len(ids)*4)
	for _, id := range ids {
		buf = binary.BigEndian.AppendUint32(buf, id)
	}
	return Tag{enc: string(buf)}
}

// Len returns the nesting depth of the tag
func (t Tag) Len() int {
	return len(t.enc) / 4
}

// IsRoot reports whether t is the outermost scope
func (t Tag) IsRoot() bool {
	return t.enc == ""
}

// At returns the index at depth i. It panics if i is out of range.
func (t Tag) At(i int) uint32 {
	return binary.BigEndian.Uint32([]byte(t.enc[i*4 : i*4+4]))
}

// IDs returns a copy of the scope path
func (t Tag) IDs() []uint32 {
	ids := make([]uint32, t.Len())
	for i := range ids {
		ids[i] = t.At(i)
	}
	return ids
}

// Parent returns the enclosing scope. The parent of the root is the root.
func (t Tag) Parent() Tag {
	if t.IsRoot() {
		return t
	}
	return Tag{enc: t.enc[:len(t.enc)-4]}
}

// Child returns the scope nested in t with the given index
func (t Tag) Child(id uint32) Tag {
	return Tag{enc: string(binary.BigEndian.AppendUint32([]byte(t.enc), id))}
}

// IsParentOf reports whether other is nested (at any depth) inside t
func (t Tag) IsParentOf(other Tag) bool {
	return len(other.enc) > len(t.enc) && strings.HasPrefix(other.enc, t.enc)
}

// Equal reports whether both tags name the same scope
func (t Tag) Equal(other Tag) bool {
	return t.enc == other.enc
}

// String renders the tag as a bracketed index path, e.g. [1,0,3]
func (t Tag) String() string {
	var sb strings.Builder
	sb.WriteByte('[')
	for i := 0; i < t.Len(); i++ {
		if i > 0 {
			sb.WriteByte(',')
		}
		sb.WriteString(strconv.FormatUint(uint64(t.At(i)), 10))
	}
	sb.WriteByte(']')
	return sb.String()
}

// MarshalJSON encodes the tag as an array of indices
func (t Tag) MarshalJSON() ([]byte, error) {
	return json.Marshal(t.IDs())
}

// UnmarshalJSON decodes a tag from an array of indices
func (t *Tag) UnmarshalJSON(data []byte) error {
	var ids []uint32
	if err := json.Unmarshal(data, &ids); err != nil {
		return err
	}
	*t = NewTag(ids...)
	return nil
}
