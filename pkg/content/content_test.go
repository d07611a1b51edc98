package content

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOffChainLayout(t *testing.T) {
	encoded := EncodeOffChain("https://example.org/course.json")
	assert.Equal(t, OffChainPrefix, encoded[0])
	assert.True(t, IsOffChain(encoded))

	uri, err := DecodeOffChain(encoded)
	require.NoError(t, err)
	assert.Equal(t, "https://example.org/course.json", uri)
}

func TestDecodeOffChain_Rejects(t *testing.T) {
	_, err := DecodeOffChain(nil)
	require.Error(t, err)

	_, err = DecodeOffChain([]byte{OnChainPrefix, 'x'})
	require.Error(t, err)

	_, err = DecodeOffChain([]byte{OffChainPrefix, 0xff, 0xfe})
	require.Error(t, err)
}
