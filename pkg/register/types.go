package register

import (
	"fmt"
	"strconv"
	"strings"
)

// Element kind of a register value
type Kind uint8

const (
	U8 Kind = iota + 1
	U16
	U32
	I8
	I16
	I32
	F32
	Char
)

var kindNames = map[Kind]string{
	U8:   "u8",
	U16:  "u16",
	U32:  "u32",
	I8:   "i8",
	I16:  "i16",
	I32:  "i32",
	F32:  "f32",
	Char: "char",
}

func (k Kind) String() string {
	name, ok := kindNames[k]
	if !ok {
		return fmt.Sprintf("kind(%d)", uint8(k))
	}
	return name
}

// Size in bytes of a single element
func (k Kind) Size() int {
	switch k {
	case U8, I8, Char:
		return 1
	case U16, I16:
		return 2
	case U32, I32, F32:
		return 4
	}
	return 0
}

// Declared type of a register.
// Count is 0 for scalars, the arity for arrays and the fixed width for
// strings.
type Type struct {
	Elem  Kind
	Count int
}

func Scalar(kind Kind) Type {
	return Type{Elem: kind}
}

func Array(kind Kind, arity int) Type {
	return Type{Elem: kind, Count: arity}
}

// NUL padded string of fixed width
func String(width int) Type {
	return Type{Elem: Char, Count: width}
}

func (t Type) IsArray() bool {
	return t.Elem != Char && t.Count > 0
}

func (t Type) IsString() bool {
	return t.Elem == Char
}

// Width in bytes of the encoded value
func (t Type) Width() int {
	if t.Count == 0 {
		return t.Elem.Size()
	}
	return t.Count * t.Elem.Size()
}

func (t Type) Valid() bool {
	if t.Elem.Size() == 0 || t.Count < 0 {
		return false
	}
	return !(t.Elem == Char && t.Count == 0)
}

func (t Type) String() string {
	if t.Count == 0 {
		return t.Elem.String()
	}
	return fmt.Sprintf("%v[%d]", t.Elem, t.Count)
}

// Parse a type string such as "u8", "f32[15]" or "char[24]"
func ParseType(s string) (Type, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	name, count := s, 0
	if open := strings.IndexByte(s, '['); open >= 0 {
		if !strings.HasSuffix(s, "]") {
			return Type{}, fmt.Errorf("invalid type %q", s)
		}
		n, err := strconv.Atoi(s[open+1 : len(s)-1])
		if err != nil || n <= 0 {
			return Type{}, fmt.Errorf("invalid arity in type %q", s)
		}
		name, count = s[:open], n
	}
	for kind, kindName := range kindNames {
		if kindName == name {
			t := Type{Elem: kind, Count: count}
			if !t.Valid() {
				return Type{}, fmt.Errorf("invalid type %q", s)
			}
			return t, nil
		}
	}
	// Aliases used in drive firmware tables
	switch name {
	case "float":
		return Type{Elem: F32, Count: count}, nil
	case "string":
		if count > 0 {
			return String(count), nil
		}
	}
	return Type{}, fmt.Errorf("invalid type %q", s)
}

// Access mode of a register
type Access uint8

const (
	ReadOnly  Access = 0x01
	WriteOnly Access = 0x02
	ReadWrite Access = ReadOnly | WriteOnly
)

func (a Access) Readable() bool {
	return a&ReadOnly != 0
}

func (a Access) Writable() bool {
	return a&WriteOnly != 0
}

func (a Access) String() string {
	switch a {
	case ReadOnly:
		return "RO"
	case WriteOnly:
		return "WO"
	case ReadWrite:
		return "RW"
	}
	return "??"
}

func ParseAccess(s string) (Access, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "RO", "CONST":
		return ReadOnly, nil
	case "WO":
		return WriteOnly, nil
	case "RW", "":
		return ReadWrite, nil
	}
	return 0, fmt.Errorf("invalid access %q", s)
}

// Descriptor of a single register
type Descriptor struct {
	Name   string
	ID     uint16
	Type   Type
	Access Access
}

func (d Descriptor) String() string {
	return fmt.Sprintf("%v (x%x) %v %v", d.Name, d.ID, d.Type, d.Access)
}
