package amdgpu

import (
	"bytes"
	"encoding/binary"

	"github.com/pkg/errors"

	"github.com/lumen-gpu/lumen/internal/llvmir"
)

// HSACO container layout written here:
// [64 bytes: ELF64 header, EM_AMDGPU, e_flags = gfx machine]
// [note: "AMDGPU\0" + arch name + '\0']
// [payload: finalized module text]
// The image is a code object for the driver's purposes; it is never loaded
// onto a device by this tool.

const (
	elfMachineAMDGPU = 224 // EM_AMDGPU
	elfTypeRel       = 1   // ET_REL
	elfOSABIAMDHSA   = 64  // ELFOSABI_AMDGPU_HSA
)

// elf64Header mirrors the fixed-size ELF64 file header.
type elf64Header struct {
	Ident     [16]byte
	Type      uint16
	Machine   uint16
	Version   uint32
	Entry     uint64
	Phoff     uint64
	Shoff     uint64
	Flags     uint32
	Ehsize    uint16
	Phentsize uint16
	Phnum     uint16
	Shentsize uint16
	Shnum     uint16
	Shstrndx  uint16
}

// emitHsaco serializes an optimized IR module as an HSACO image.
func emitHsaco(m *llvmir.Module, arch string, flags uint32) ([]byte, error) {
	payload := []byte(m.String())

	hdr := elf64Header{
		Type:    elfTypeRel,
		Machine: elfMachineAMDGPU,
		Version: 1,
		Flags:   flags,
		Ehsize:  64,
	}
	copy(hdr.Ident[:], "\x7fELF")
	hdr.Ident[4] = 2 // ELFCLASS64
	hdr.Ident[5] = 1 // little-endian
	hdr.Ident[6] = 1 // EV_CURRENT
	hdr.Ident[7] = elfOSABIAMDHSA

	var buf bytes.Buffer
	if err := binary.Write(&buf, binary.LittleEndian, hdr); err != nil {
		return nil, errors.Wrap(err, "writing ELF header")
	}
	buf.WriteString("AMDGPU\x00")
	buf.WriteString(arch)
	buf.WriteByte(0)
	if err := binary.Write(&buf, binary.LittleEndian, uint64(len(payload))); err != nil {
		return nil, errors.Wrap(err, "writing payload length")
	}
	buf.Write(payload)
	return buf.Bytes(), nil
}
