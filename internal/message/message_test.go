package message

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mintledger/pkg/domain"
	dErrors "mintledger/pkg/domain-errors"
)

func TestEncodeDecode_AllKinds(t *testing.T) {
	holder := domain.Address{4}
	bodies := []Message{
		Configure{Content: []byte{0x01, 'u'}, Price: domain.Coins(5)},
		Promote{ContentRef: []byte("ref")},
		Withdraw{},
		Create{Collection: domain.Address{1}, Index: 7, Holder: holder, ContentRef: []byte("c")},
		Transfer{QueryID: 9, NewHolder: holder, ForwardAmount: domain.Nano(1)},
		Excess{QueryID: 3},
	}
	for _, body := range bodies {
		data, err := Encode(body)
		require.NoError(t, err, body.Kind())

		decoded, err := Decode(data)
		require.NoError(t, err, body.Kind())
		assert.Equal(t, body.Kind(), decoded.Kind())
	}
}

func TestDecode_PreservesCreateFields(t *testing.T) {
	in := Create{Collection: domain.Address{1}, Index: 42, Holder: domain.Address{2}, ContentRef: []byte("x")}
	data, err := Encode(in)
	require.NoError(t, err)

	out, err := Decode(data)
	require.NoError(t, err)
	create, ok := out.(Create)
	require.True(t, ok)
	assert.Equal(t, in, create)
}

func TestEncode_NilBodyIsPlainTransfer(t *testing.T) {
	data, err := Encode(nil)
	require.NoError(t, err)
	assert.Nil(t, data)

	body, err := Decode(nil)
	require.NoError(t, err)
	assert.Nil(t, body)
	assert.Equal(t, KindNone, KindOf(body))
}

func TestDecode_RejectsUnknownKind(t *testing.T) {
	_, err := Decode([]byte{0xa1, 0x01, 0x63, 'b', 'a', 'd'})
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput))
}

func TestBounceback(t *testing.T) {
	env := Envelope{From: domain.Address{1}, To: domain.Address{2}, Value: domain.Coins(3), Body: Promote{}, Bounce: true}
	back := env.Bounceback(domain.Coins(2))
	assert.Equal(t, env.To, back.From)
	assert.Equal(t, env.From, back.To)
	assert.True(t, back.Bounced)
	assert.False(t, back.Bounce)
	assert.Equal(t, KindPromote, back.Kind())
}

func TestQueue_RoundTripKeepsOrderAndRouting(t *testing.T) {
	init := &Init{Code: CodeItem, Data: []byte{0x0a}}
	queue := []Envelope{
		{From: domain.Address{1}, To: domain.Address{2}, Value: domain.Coins(1), Body: Promote{ContentRef: []byte("r")}, Bounce: true},
		{From: domain.Address{2}, To: domain.Address{3}, Value: domain.Nano(20), Body: Create{Index: 1}, Init: init},
		{From: domain.Address{2}, To: domain.Address{1}, Value: domain.Nano(5), Bounced: true},
	}
	data, err := EncodeQueue(queue)
	require.NoError(t, err)

	out, err := DecodeQueue(data)
	require.NoError(t, err)
	require.Len(t, out, len(queue))
	for i := range queue {
		assert.Equal(t, queue[i].From, out[i].From, i)
		assert.Equal(t, queue[i].To, out[i].To, i)
		assert.True(t, queue[i].Value.Equal(out[i].Value), i)
		assert.Equal(t, queue[i].Kind(), out[i].Kind(), i)
		assert.Equal(t, queue[i].Init, out[i].Init, i)
		assert.Equal(t, queue[i].Bounce, out[i].Bounce, i)
		assert.Equal(t, queue[i].Bounced, out[i].Bounced, i)
	}
}

func TestQueue_EmptyEncodesToNil(t *testing.T) {
	data, err := EncodeQueue(nil)
	require.NoError(t, err)
	assert.Nil(t, data)

	out, err := DecodeQueue(data)
	require.NoError(t, err)
	assert.Empty(t, out)
}
