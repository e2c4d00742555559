package compress

import (
	"encoding/binary"
	"fmt"
)

// wordBytes requires a byte-aligned width (a multiple of 8 bits) and
// returns an error for any other width, such as 2- or 4-bit words.
func wordBytes(bits int) (int, error) {
	if bits%8 != 0 {
		return 0, fmt.Errorf("compress: bit width %d is not byte-aligned", bits)
	}
	return bits / 8, nil
}

func loadWord(buf []byte) uint64 {
	var padded [8]byte
	copy(padded[8-len(buf):], buf)
	return binary.BigEndian.Uint64(padded[:])
}

func storeWord(v uint64, n int) []byte {
	var full [8]byte
	binary.BigEndian.PutUint64(full[:], v)
	return append([]byte(nil), full[8-n:]...)
}

// CompressPayload applies e.Compress word-by-word across data, which
// must be a whole multiple of the extractor's input word size, and
// returns the packed bytestring.
func CompressPayload(e Extractor, data []byte) ([]byte, error) {
	cfg := e.Config()
	inBytes, err := wordBytes(cfg.BitsPerInputWord)
	if err != nil {
		return nil, err
	}
	outBytes, err := wordBytes(roundUpToByte(cfg.OutputBits()))
	if err != nil {
		return nil, err
	}
	if len(data)%inBytes != 0 {
		return nil, fmt.Errorf("compress: payload length %d is not a multiple of input word size %d", len(data), inBytes)
	}
	out := make([]byte, 0, len(data)/inBytes*outBytes)
	for off := 0; off < len(data); off += inBytes {
		word := loadWord(data[off : off+inBytes])
		out = append(out, storeWord(e.Compress(word), outBytes)...)
	}
	return out, nil
}

// DecompressPayload applies e.Decompress word-by-word across packed
// data and returns the reconstructed full-width bytestring, with every
// dropped channel's bits zero-filled (spec.md §4.6).
func DecompressPayload(e Extractor, packed []byte) ([]byte, error) {
	cfg := e.Config()
	inBytes, err := wordBytes(cfg.BitsPerInputWord)
	if err != nil {
		return nil, err
	}
	outBytes, err := wordBytes(roundUpToByte(cfg.OutputBits()))
	if err != nil {
		return nil, err
	}
	if len(packed)%outBytes != 0 {
		return nil, fmt.Errorf("compress: packed length %d is not a multiple of packed word size %d", len(packed), outBytes)
	}
	out := make([]byte, 0, len(packed)/outBytes*inBytes)
	for off := 0; off < len(packed); off += outBytes {
		word := loadWord(packed[off : off+outBytes])
		out = append(out, storeWord(e.Decompress(word), inBytes)...)
	}
	return out, nil
}

func roundUpToByte(bits int) int {
	return (bits + 7) / 8 * 8
}
