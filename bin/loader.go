package bin

import (
	"bytes"
	"debug/elf"
	"debug/pe"
	"os"

	"github.com/pkg/errors"

	"github.com/ropgo/ropgo/internal/rlog"
)

// Errors returned by Load.
var (
	// ErrParse is returned when a recognised container's header is
	// malformed.
	ErrParse = errors.New("unable to parse binary")
	// ErrUnsupported is returned when the container is recognised but not
	// one this loader knows how to extract executable sections from
	// (Mach-O, archive), or is Unknown under RawOff.
	ErrUnsupported = errors.New("unsupported format or architecture")
)

// RawMode controls how an unrecognised (or forced) container is handled.
type RawMode int

const (
	// RawAuto parses ELF/PE containers normally and falls back to a single
	// whole-buffer raw section only when the container is Unknown.
	RawAuto RawMode = iota
	// RawForce always treats the file as a single raw code blob.
	RawForce
	// RawOff disables the raw fallback; an Unknown container is a fatal
	// ErrUnsupported.
	RawOff
)

// Section is an executable region of a loaded binary.
type Section struct {
	// FileOffset is the offset within the file buffer where the section's
	// bytes begin.
	FileOffset uint64
	// SectionVAddr is the section's virtual address in the loaded image.
	SectionVAddr uint64
	// ProgramBase is the image base (PE) or zero (ELF, raw).
	ProgramBase uint64
	// Bitness is 32 or 64.
	Bitness int
	// Bytes is a slice into the owning Binary's file buffer.
	Bytes []byte
}

// Addr returns the runtime address of the byte at the given offset within
// the section.
func (s *Section) Addr(offset int) uint64 {
	return s.ProgramBase + s.SectionVAddr + uint64(offset)
}

// Binary is an immutable byte buffer loaded from a file, together with the
// executable sections discovered within it.
type Binary struct {
	bytes    []byte
	Sections []Section
}

// Bytes returns the full file buffer. All Section.Bytes slices borrow from
// this buffer; neither is ever copied.
func (b *Binary) Bytes() []byte { return b.bytes }

// Load reads path into memory and extracts its executable sections
// according to mode.
func Load(path string, mode RawMode, bitsOverride int) (*Binary, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	b := &Binary{bytes: data}

	if mode == RawForce {
		b.Sections = rawSections(data, bitsOverride)
		return b, nil
	}

	switch {
	case bytes.HasPrefix(data, []byte("\x7fELF")):
		sections, err := elfSections(data)
		if err != nil {
			return nil, errors.WithStack(err)
		}
		b.Sections = sections
		return b, nil
	case bytes.HasPrefix(data, []byte("MZ")):
		sections, err := peSections(data)
		if err != nil {
			return nil, errors.WithStack(err)
		}
		b.Sections = sections
		return b, nil
	case bytes.HasPrefix(data, []byte("\xFE\xED\xFA")), len(data) > 1 && bytes.HasPrefix(data[1:], []byte("\xFA\xED\xFE")):
		return nil, errors.WithStack(ErrUnsupported)
	case bytes.HasPrefix(data, []byte("!<arch>\n")):
		return nil, errors.WithStack(ErrUnsupported)
	default:
		if mode == RawOff {
			return nil, errors.WithStack(ErrUnsupported)
		}
		b.Sections = rawSections(data, bitsOverride)
		return b, nil
	}
}

// rawSections emits a single section covering the whole buffer with all
// offsets zero and the given (or default 64-bit) bitness.
func rawSections(data []byte, bitsOverride int) []Section {
	bitness := 64
	if bitsOverride == 32 || bitsOverride == 64 {
		bitness = bitsOverride
	}
	if len(data) == 0 {
		return nil
	}
	return []Section{{
		FileOffset:   0,
		SectionVAddr: 0,
		ProgramBase:  0,
		Bitness:      bitness,
		Bytes:        data,
	}}
}

// elfSections iterates program headers and keeps those with PF_X set.
// Recognised-but-empty containers (no executable program headers) yield
// zero sections rather than falling back to raw mode.
func elfSections(data []byte) ([]Section, error) {
	f, err := elf.NewFile(bytes.NewReader(data))
	if err != nil {
		return nil, errors.Wrap(ErrParse, err.Error())
	}
	defer f.Close()

	bitness := 32
	if f.Class == elf.ELFCLASS64 {
		bitness = 64
	}

	var sections []Section
	for _, prog := range f.Progs {
		if prog.Flags&elf.PF_X == 0 {
			continue
		}
		start := prog.Off
		end := start + prog.Filesz
		if end > uint64(len(data)) {
			rlog.Warn.Printf("PF_X segment at file offset %#x claims %d bytes, only %d available; truncating", start, prog.Filesz, uint64(len(data))-start)
			end = uint64(len(data))
		}
		if start > end {
			continue
		}
		sections = append(sections, Section{
			FileOffset:   start,
			SectionVAddr: prog.Vaddr,
			ProgramBase:  0,
			Bitness:      bitness,
			Bytes:        data[start:end],
		})
	}
	return sections, nil
}

// peSections iterates the section table and keeps those with
// IMAGE_SCN_MEM_EXECUTE set.
func peSections(data []byte) ([]Section, error) {
	f, err := pe.NewFile(bytes.NewReader(data))
	if err != nil {
		return nil, errors.Wrap(ErrParse, err.Error())
	}
	defer f.Close()

	var (
		imageBase uint64
		bitness   = 32
	)
	switch oh := f.OptionalHeader.(type) {
	case *pe.OptionalHeader32:
		imageBase = uint64(oh.ImageBase)
		bitness = 32
	case *pe.OptionalHeader64:
		imageBase = oh.ImageBase
		bitness = 64
	default:
		return nil, errors.Wrap(ErrParse, "missing PE optional header")
	}

	const imageSCNMemExecute = 0x20000000

	var sections []Section
	for _, sect := range f.Sections {
		if sect.Characteristics&imageSCNMemExecute == 0 {
			continue
		}
		start := uint64(sect.Offset)
		end := start + uint64(sect.Size)
		if end > uint64(len(data)) {
			rlog.Warn.Printf("executable section %q at file offset %#x claims %d bytes, only %d available; truncating", sect.Name, start, sect.Size, uint64(len(data))-start)
			end = uint64(len(data))
		}
		if start > end {
			continue
		}
		sections = append(sections, Section{
			FileOffset:   start,
			SectionVAddr: uint64(sect.VirtualAddress),
			ProgramBase:  imageBase,
			Bitness:      bitness,
			Bytes:        data[start:end],
		})
	}
	return sections, nil
}
