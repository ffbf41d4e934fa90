package storage

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCompressPayload(t *testing.T) {
	require.NotNil(t, encoder)
	require.NotNil(t, decoder)

	raw := bytes.Repeat([]byte(`{"tick":1,"entities":[]}`), 200)
	blob := compressPayload(raw)
	assert.Less(t, len(blob), len(raw))

	out, err := decompressPayload(blob, len(raw))
	require.NoError(t, err)
	assert.Equal(t, raw, out)

	assert.Nil(t, compressPayload(nil))
	out, err = decompressPayload(nil, 0)
	require.NoError(t, err)
	assert.Nil(t, out)

	_, err = decompressPayload([]byte("not zstd"), 8)
	assert.Error(t, err)
}
