// Package ir defines the target-independent SSA intermediate representation
// consumed by lowering. Functions are graphs of blocks with block parameters
// (no phi instructions); every instruction result is an immutable Value with
// a fixed Type. The lowering engine only reads this representation.
package ir

import (
	"fmt"
	"strconv"
	"strings"
)

// Type describes the machine-level type of a Value: a scalar width, a vector
// of lane-width x lane-count, or a dynamic vector whose effective lane count
// is a target-supplied runtime scale times the minimum lane count.
type Type struct {
	laneBits  uint16
	laneCount uint16
	float     bool
	dynamic   bool
}

// Scalar integer and float types.
var (
	I8   = Type{laneBits: 8, laneCount: 1}
	I16  = Type{laneBits: 16, laneCount: 1}
	I32  = Type{laneBits: 32, laneCount: 1}
	I64  = Type{laneBits: 64, laneCount: 1}
	I128 = Type{laneBits: 128, laneCount: 1}
	F32  = Type{laneBits: 32, laneCount: 1, float: true}
	F64  = Type{laneBits: 64, laneCount: 1, float: true}
)

// Common 128-bit vector types.
var (
	I8X16 = Vector(I8, 16)
	I16X8 = Vector(I16, 8)
	I32X4 = Vector(I32, 4)
	I64X2 = Vector(I64, 2)
	F32X4 = Vector(F32, 4)
	F64X2 = Vector(F64, 2)
)

// Invalid is the zero Type; no Value carries it.
var Invalid = Type{}

// Vector builds a vector type from a scalar lane type and lane count.
func Vector(lane Type, lanes int) Type {
	return Type{laneBits: lane.laneBits, laneCount: uint16(lanes), float: lane.float}
}

// DynamicVector builds a dynamic vector type with a minimum lane count.
// Its full width is the minimum width times a target scale constant.
func DynamicVector(lane Type, minLanes int) Type {
	t := Vector(lane, minLanes)
	t.dynamic = true
	return t
}

// Valid reports whether t is a usable type.
func (t Type) Valid() bool { return t.laneCount > 0 }

// Bits returns the total width in bits. For dynamic vectors this is the
// minimum width.
func (t Type) Bits() uint { return uint(t.laneBits) * uint(t.laneCount) }

// LaneBits returns the width of one lane in bits.
func (t Type) LaneBits() uint { return uint(t.laneBits) }

// LaneCount returns the number of lanes (minimum count for dynamic vectors).
func (t Type) LaneCount() int { return int(t.laneCount) }

// LaneType returns the scalar type of one lane.
func (t Type) LaneType() Type {
	return Type{laneBits: t.laneBits, laneCount: 1, float: t.float}
}

// IsVector reports whether t has more than one lane or is dynamic.
func (t Type) IsVector() bool { return t.laneCount > 1 || t.dynamic }

// IsDynamic reports whether t is a dynamic vector type.
func (t Type) IsDynamic() bool { return t.dynamic }

// IsInt reports whether t is a scalar integer type.
func (t Type) IsInt() bool { return !t.float && t.laneCount == 1 && !t.dynamic }

// IsFloat reports whether t is a scalar float type.
func (t Type) IsFloat() bool { return t.float && t.laneCount == 1 && !t.dynamic }

func (t Type) String() string {
	if !t.Valid() {
		return "invalid"
	}
	base := "i"
	if t.float {
		base = "f"
	}
	s := base + strconv.Itoa(int(t.laneBits))
	if t.laneCount > 1 {
		s += "x" + strconv.Itoa(int(t.laneCount))
	}
	if t.dynamic {
		s += "xN"
	}
	return s
}

// ParseType parses the textual form produced by String, e.g. "i64", "f32",
// "i32x4", "i16x8xN".
func ParseType(s string) (Type, error) {
	orig := s
	dynamic := strings.HasSuffix(s, "xN")
	if dynamic {
		s = strings.TrimSuffix(s, "xN")
	}
	if len(s) < 2 {
		return Invalid, fmt.Errorf("bad type %q", orig)
	}
	float := false
	switch s[0] {
	case 'i':
	case 'f':
		float = true
	default:
		return Invalid, fmt.Errorf("bad type %q", orig)
	}
	lanes := 1
	rest := s[1:]
	if i := strings.IndexByte(rest, 'x'); i >= 0 {
		n, err := strconv.Atoi(rest[i+1:])
		if err != nil {
			return Invalid, fmt.Errorf("bad type %q", orig)
		}
		lanes = n
		rest = rest[:i]
	}
	bits, err := strconv.Atoi(rest)
	if err != nil {
		return Invalid, fmt.Errorf("bad type %q", orig)
	}
	switch bits {
	case 8, 16, 32, 64, 128:
	default:
		return Invalid, fmt.Errorf("bad type %q", orig)
	}
	if lanes < 1 || lanes > 256 {
		return Invalid, fmt.Errorf("bad type %q", orig)
	}
	t := Type{laneBits: uint16(bits), laneCount: uint16(lanes), float: float, dynamic: dynamic}
	return t, nil
}
