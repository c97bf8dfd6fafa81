package objsym

import (
	"bytes"
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractBitcodeContributesNoSymbols(t *testing.T) {
	data := append([]byte{'B', 'C', 0xc0, 0xde}, make([]byte, 16)...)
	syms, err := Extract("a.bc", data)
	require.NoError(t, err)
	assert.Nil(t, syms)
}

func TestExtractUnrecognisedBytesContributeNoSymbols(t *testing.T) {
	syms, err := Extract("a.bin", []byte{0x00, 0x01, 0x02, 0x03})
	require.NoError(t, err)
	assert.Nil(t, syms)
}

func TestExtractCOFFExternalSymbol(t *testing.T) {
	data := buildCOFFObject(t, "main", imageSymClassExternal)
	syms, err := Extract("a.obj", data)
	require.NoError(t, err)
	require.Len(t, syms, 1)
	assert.Equal(t, "main", string(syms[0].Name))
	assert.Equal(t, Global, syms[0].Binding)
}

func TestExtractCOFFSkipsNonExternalSymbol(t *testing.T) {
	data := buildCOFFObject(t, "local_helper", 3) // IMAGE_SYM_CLASS_STATIC
	syms, err := Extract("a.obj", data)
	require.NoError(t, err)
	assert.Empty(t, syms)
}

func TestExtractCOFFWrongMachineContributesNoSymbols(t *testing.T) {
	data := buildCOFFObject(t, "main", imageSymClassExternal)
	// Flip the machine field (first two bytes) away from AMD64.
	data[0] = 0x4c
	data[1] = 0x01

	syms, err := Extract("a.obj", data)
	require.NoError(t, err)
	assert.Nil(t, syms)
}

// buildCOFFObject constructs a minimal COFF object: a 20-byte file header
// declaring one symbol, immediately followed by an 18-byte symbol record
// whose name fits inline.
func buildCOFFObject(t *testing.T, name string, storageClass uint8) []byte {
	t.Helper()

	hdr := rawFileHeader{
		Machine:              imageFileMachineAMD64,
		NumberOfSections:     0,
		TimeDateStamp:        0,
		PointerToSymbolTable: coffFileHeaderSize,
		NumberOfSymbols:      1,
		SizeOfOptionalHeader: 0,
		Characteristics:      0,
	}

	var buf bytes.Buffer
	require.NoError(t, binary.Write(&buf, binary.LittleEndian, hdr))

	var inlineName [8]byte
	copy(inlineName[:], name)
	sym := rawSymbol{
		Name:          inlineName,
		Value:         0,
		SectionNumber: 1,
		Type:          0,
		StorageClass:  storageClass,
		NumberOfAux:   0,
	}
	require.NoError(t, binary.Write(&buf, binary.LittleEndian, sym))

	return buf.Bytes()
}
