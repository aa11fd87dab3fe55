// Package side decodes the orientation byte reported by the tracker cube.
// The cube is an octahedron: four faces on the top half (T*) and four on the
// bottom half (B*), each half split into front, left, back and right.
package side

import "fmt"

// Side is the face of the cube that currently points down, or None.
type Side string

const (
	None Side = "none"

	BottomFront Side = "BF"
	BottomLeft  Side = "BL"
	BottomBack  Side = "BB"
	BottomRight Side = "BR"
	TopFront    Side = "TF"
	TopLeft     Side = "TL"
	TopBack     Side = "TB"
	TopRight    Side = "TR"
)

// byByte maps the status byte to a face. Index 0 and anything past the end
// mean the cube is lifted or the value is not known.
var byByte = [...]Side{
	0x01: BottomFront,
	0x02: BottomLeft,
	0x03: BottomBack,
	0x04: BottomRight,
	0x05: TopFront,
	0x06: TopLeft,
	0x07: TopBack,
	0x08: TopRight,
}

// Decode maps a raw status byte to a Side. It never fails: any value outside
// 0x01-0x08 is None.
func Decode(b byte) Side {
	if int(b) >= len(byByte) || byByte[b] == "" {
		return None
	}
	return byByte[b]
}

// All returns every Side, faces first, None last.
func All() []Side {
	return []Side{
		BottomFront, BottomLeft, BottomBack, BottomRight,
		TopFront, TopLeft, TopBack, TopRight,
		None,
	}
}

// Valid reports whether s is one of the nine known sides.
func (s Side) Valid() bool {
	for _, k := range All() {
		if s == k {
			return true
		}
	}
	return false
}

// Parse validates a side name as written in the settings file.
func Parse(name string) (Side, error) {
	s := Side(name)
	if !s.Valid() {
		return None, fmt.Errorf("side: unknown side %q", name)
	}
	return s, nil
}

func (s Side) String() string { return string(s) }
