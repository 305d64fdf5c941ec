// Package bmff implements the slice of ISO Base Media File Format box
// encoding and decoding that the HLS preparation engine needs: reading
// box headers out of a faststart MP4's moov tree, and writing the
// fragmented-MP4 boxes (ftyp, moov-for-init, moof, mdat header) that the
// engine serves from memory.
package bmff

import "encoding/binary"

var be = binary.BigEndian

const uint32Max = 1<<32 - 1

// Type is a 4-byte box type tag.
type Type [4]byte

func (t Type) String() string { return string(t[:]) }

// Known box types used by the moov parser and the fMP4 writer.
var (
	TypeFtyp = Type{'f', 't', 'y', 'p'}
	TypeMoov = Type{'m', 'o', 'o', 'v'}
	TypeMvhd = Type{'m', 'v', 'h', 'd'}
	TypeTrak = Type{'t', 'r', 'a', 'k'}
	TypeTkhd = Type{'t', 'k', 'h', 'd'}
	TypeMdia = Type{'m', 'd', 'i', 'a'}
	TypeMdhd = Type{'m', 'd', 'h', 'd'}
	TypeHdlr = Type{'h', 'd', 'l', 'r'}
	TypeMinf = Type{'m', 'i', 'n', 'f'}
	TypeVmhd = Type{'v', 'm', 'h', 'd'}
	TypeSmhd = Type{'s', 'm', 'h', 'd'}
	TypeDinf = Type{'d', 'i', 'n', 'f'}
	TypeDref = Type{'d', 'r', 'e', 'f'}
	TypeStbl = Type{'s', 't', 'b', 'l'}
	TypeStsd = Type{'s', 't', 's', 'd'}
	TypeStts = Type{'s', 't', 't', 's'}
	TypeCtts = Type{'c', 't', 't', 's'}
	TypeStsc = Type{'s', 't', 's', 'c'}
	TypeStsz = Type{'s', 't', 's', 'z'}
	TypeStco = Type{'s', 't', 'c', 'o'}
	TypeCo64 = Type{'c', 'o', '6', '4'}
	TypeStss = Type{'s', 't', 's', 's'}
	TypeMvex = Type{'m', 'v', 'e', 'x'}
	TypeMehd = Type{'m', 'e', 'h', 'd'}
	TypeTrex = Type{'t', 'r', 'e', 'x'}
	TypeMoof = Type{'m', 'o', 'o', 'f'}
	TypeMfhd = Type{'m', 'f', 'h', 'd'}
	TypeTraf = Type{'t', 'r', 'a', 'f'}
	TypeTfhd = Type{'t', 'f', 'h', 'd'}
	TypeTfdt = Type{'t', 'f', 'd', 't'}
	TypeTrun = Type{'t', 'r', 'u', 'n'}
	TypeMdat = Type{'m', 'd', 'a', 't'}
	TypeAvc1 = Type{'a', 'v', 'c', '1'}
	TypeAvcC = Type{'a', 'v', 'c', 'C'}
	TypeMp4a = Type{'m', 'p', '4', 'a'}
	TypeEsds = Type{'e', 's', 'd', 's'}
	TypeUrl  = Type{'u', 'r', 'l', ' '}
)

// isFullBox reports whether t carries a version+flags header after its
// 8-byte (or 16-byte extended) size/type header.
func isFullBox(t Type) bool {
	switch t {
	case TypeMvhd, TypeTkhd, TypeMdhd, TypeHdlr, TypeVmhd, TypeSmhd, TypeDref,
		TypeStsd, TypeStts, TypeCtts, TypeStsc, TypeStsz, TypeStco, TypeCo64,
		TypeStss, TypeMehd, TypeTrex, TypeMfhd, TypeTfhd, TypeTfdt, TypeTrun,
		TypeEsds:
		return true
	}
	return false
}
