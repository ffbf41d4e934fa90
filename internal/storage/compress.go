package storage

import (
	"fmt"

	"github.com/klauspost/compress/zstd"
)

var (
	encoder *zstd.Encoder
	decoder *zstd.Decoder
)

func init() {
	var err error
	if encoder, err = zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault)); err != nil {
		panic(fmt.Sprintf("storage: creating zstd encoder: %v", err))
	}
	if decoder, err = zstd.NewReader(nil); err != nil {
		panic(fmt.Sprintf("storage: creating zstd decoder: %v", err))
	}
}

func compressPayload(raw []byte) []byte {
	if len(raw) == 0 {
		return nil
	}
	return encoder.EncodeAll(raw, make([]byte, 0, len(raw)/2))
}

func decompressPayload(blob []byte, rawSize int) ([]byte, error) {
	if len(blob) == 0 {
		return nil, nil
	}
	out, err := decoder.DecodeAll(blob, make([]byte, 0, rawSize))
	if err != nil {
		return nil, fmt.Errorf("decompressing replay: %w", err)
	}
	return out, nil
}
