// Package hexfile reads and writes Intel HEX (I32HEX) images: the byte
// regions a linked binary occupies, encoded as checksummed ASCII records.
package hexfile

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"io"
	"sort"
	"strings"
)

// recordType is the type field of one Intel HEX line.
type recordType byte

const (
	recData         recordType = 0x00
	recEOF          recordType = 0x01
	recExtLinAddr   recordType = 0x04
	recStartLinAddr recordType = 0x05
)

// dataChunkSize bounds how many bytes one data record carries; 16 is the
// conventional default, chosen small enough that every line stays readable.
const dataChunkSize = 16

// Region is one contiguous run of bytes at a fixed load address.
type Region struct {
	Address uint32
	Data    []byte
}

// End returns the address one past the region's last byte.
func (r Region) End() uint32 { return r.Address + uint32(len(r.Data)) }

// HexError reports a malformed record or an unsupported record type.
type HexError struct {
	Reason string
}

func (e *HexError) Error() string { return "hexfile: " + e.Reason }

// OverlapError reports two regions whose byte ranges overlap.
type OverlapError struct {
	A, B Region
}

func (e *OverlapError) Error() string {
	return fmt.Sprintf("hexfile: region at 0x%08X overlaps region at 0x%08X", e.A.Address, e.B.Address)
}

// File is an in-memory Intel HEX image: a set of non-overlapping regions,
// kept sorted and merged wherever two regions are exactly adjacent, plus an
// optional start address.
type File struct {
	Regions []Region
	Start   *uint32
}

// New returns an empty File.
func New() *File { return &File{} }

// AddRegion adds data at address, merging it with any existing region it
// immediately abuts and reporting an OverlapError if it overlaps one it
// does not abut.
func (f *File) AddRegion(address uint32, data []byte) error {
	f.Regions = append(f.Regions, Region{Address: address, Data: append([]byte(nil), data...)})
	return f.normalize()
}

// SetStartAddress records the entry point to emit as a Start Linear Address
// record when the image is saved.
func (f *File) SetStartAddress(address uint32) {
	a := address
	f.Start = &a
}

// normalize sorts regions by address and repeatedly merges adjacent pairs
// until none remain, reporting an OverlapError the first time two regions
// are found to actually overlap rather than merely touch.
func (f *File) normalize() error {
	sort.Slice(f.Regions, func(i, j int) bool { return f.Regions[i].Address < f.Regions[j].Address })
	for {
		merged := false
		for i := 0; i < len(f.Regions)-1; i++ {
			r1, r2 := f.Regions[i], f.Regions[i+1]
			switch {
			case r1.End() == r2.Address:
				combined := Region{Address: r1.Address, Data: append(append([]byte(nil), r1.Data...), r2.Data...)}
				f.Regions = append(f.Regions[:i], append([]Region{combined}, f.Regions[i+2:]...)...)
				merged = true
			case r1.End() > r2.Address:
				return &OverlapError{A: r1, B: r2}
			}
			if merged {
				break
			}
		}
		if !merged {
			return nil
		}
	}
}

// Equal reports whether f and other describe the same regions and start
// address, used by round-trip tests.
func (f *File) Equal(other *File) bool {
	if other == nil || len(f.Regions) != len(other.Regions) {
		return false
	}
	for i := range f.Regions {
		if f.Regions[i].Address != other.Regions[i].Address {
			return false
		}
		if !bytes.Equal(f.Regions[i].Data, other.Regions[i].Data) {
			return false
		}
	}
	if (f.Start == nil) != (other.Start == nil) {
		return false
	}
	return f.Start == nil || *f.Start == *other.Start
}

// Save writes f as Intel HEX text: an Extended Linear Address record at the
// start of each region and at every 64KiB page boundary it crosses, data
// records chunked to
// dataChunkSize bytes, an optional Start Linear Address record, then the
// terminating End Of File record. Emitting 05 here (rather than only
// parsing it, as the format this repo's reader was modeled on does) is
// this writer's one addition over that original.
func (f *File) Save(w io.Writer) error {
	bw := bufio.NewWriter(w)
	for _, r := range f.Regions {
		if err := saveRegion(bw, r); err != nil {
			return err
		}
	}
	if f.Start != nil {
		buf := make([]byte, 4)
		binary.BigEndian.PutUint32(buf, *f.Start)
		if err := emitRecord(bw, 0, recStartLinAddr, buf); err != nil {
			return err
		}
	}
	if err := emitRecord(bw, 0, recEOF, nil); err != nil {
		return err
	}
	return bw.Flush()
}

func saveRegion(bw *bufio.Writer, r Region) error {
	ext := r.Address &^ 0xFFFF
	if err := emitExtLinAddr(bw, ext); err != nil {
		return err
	}
	addr := r.Address - ext
	data := r.Data
	off := 0
	for off < len(data) {
		if addr >= 0x10000 {
			ext += 0x10000
			addr -= 0x10000
			if err := emitExtLinAddr(bw, ext); err != nil {
				return err
			}
		}
		n := dataChunkSize
		if remaining := len(data) - off; remaining < n {
			n = remaining
		}
		if remaining16 := 0x10000 - int(addr); n > remaining16 {
			n = remaining16
		}
		if err := emitRecord(bw, uint16(addr), recData, data[off:off+n]); err != nil {
			return err
		}
		addr += uint32(n)
		off += n
	}
	return nil
}

func emitExtLinAddr(bw *bufio.Writer, ext uint32) error {
	buf := []byte{byte(ext >> 24), byte(ext >> 16)}
	return emitRecord(bw, 0, recExtLinAddr, buf)
}

// emitRecord writes one ":CCAAAATTDD...KK" line: byte count, address,
// record type, data, then a checksum that makes every byte in the line
// (including the checksum itself) sum to zero mod 256.
func emitRecord(bw *bufio.Writer, address uint16, typ recordType, data []byte) error {
	buf := make([]byte, 0, 5+len(data))
	buf = append(buf, byte(len(data)))
	buf = append(buf, byte(address>>8), byte(address))
	buf = append(buf, byte(typ))
	buf = append(buf, data...)

	var sum byte
	for _, b := range buf {
		sum += b
	}
	buf = append(buf, -sum)

	if _, err := fmt.Fprintf(bw, ":%s\n", strings.ToUpper(hex.EncodeToString(buf))); err != nil {
		return err
	}
	return nil
}

// Load parses Intel HEX text into a File, rejecting a bad checksum, a
// record after End Of File, a missing End Of File record, or any record
// type this package does not recognize.
func Load(r io.Reader) (*File, error) {
	f := New()
	sc := bufio.NewScanner(r)
	var ext uint32
	eof := false

	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		if eof {
			return nil, &HexError{Reason: "record found after end of file record"}
		}
		address, typ, data, err := parseLine(line)
		if err != nil {
			return nil, err
		}
		switch typ {
		case recData:
			if err := f.AddRegion(ext+uint32(address), data); err != nil {
				return nil, err
			}
		case recExtLinAddr:
			if len(data) != 2 {
				return nil, &HexError{Reason: "malformed extended linear address record"}
			}
			ext = uint32(binary.BigEndian.Uint16(data)) << 16
		case recStartLinAddr:
			if len(data) != 4 {
				return nil, &HexError{Reason: "malformed start linear address record"}
			}
			start := binary.BigEndian.Uint32(data)
			f.Start = &start
		case recEOF:
			if len(data) != 0 {
				return nil, &HexError{Reason: "end of file record carries data"}
			}
			eof = true
		default:
			return nil, &HexError{Reason: fmt.Sprintf("unsupported record type 0x%02X", typ)}
		}
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	if !eof {
		return nil, &HexError{Reason: "missing end of file record"}
	}
	return f, nil
}

func parseLine(line string) (address uint16, typ recordType, data []byte, err error) {
	if !strings.HasPrefix(line, ":") {
		return 0, 0, nil, &HexError{Reason: "record does not start with ':'"}
	}
	raw, err := hex.DecodeString(line[1:])
	if err != nil {
		return 0, 0, nil, &HexError{Reason: "malformed hex digits"}
	}
	if len(raw) < 5 {
		return 0, 0, nil, &HexError{Reason: "record shorter than the minimum header+checksum length"}
	}
	count := int(raw[0])
	if len(raw) != count+5 {
		return 0, 0, nil, &HexError{Reason: "byte count field does not match record length"}
	}
	var sum byte
	for _, b := range raw {
		sum += b
	}
	if sum != 0 {
		return 0, 0, nil, &HexError{Reason: "checksum does not sum to zero"}
	}
	address = binary.BigEndian.Uint16(raw[1:3])
	typ = recordType(raw[3])
	data = raw[4 : len(raw)-1]
	return address, typ, data, nil
}
