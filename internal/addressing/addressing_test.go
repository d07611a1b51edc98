package addressing

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mintledger/internal/message"
	"mintledger/pkg/domain"
)

func TestForItem_Deterministic(t *testing.T) {
	collection := domain.Address{1, 2, 3}
	assert.Equal(t, ForItem(collection, 0), ForItem(collection, 0))
	assert.NotEqual(t, ForItem(collection, 0), ForItem(collection, 1))
	assert.NotEqual(t, ForItem(collection, 0), ForItem(domain.Address{9}, 0))
}

func TestForFactory_DependsOnOwnerOnly(t *testing.T) {
	a := domain.Address{1}
	b := domain.Address{2}
	assert.Equal(t, ForFactory(a), ForFactory(a))
	assert.NotEqual(t, ForFactory(a), ForFactory(b))
}

func TestCodeKindSeparatesDomains(t *testing.T) {
	data := make([]byte, domain.AddressLen)
	f := Of(message.Init{Code: message.CodeFactory, Data: data})
	i := Of(message.Init{Code: message.CodeItem, Data: data})
	assert.NotEqual(t, f, i)
}

func TestParseInit_RoundTrip(t *testing.T) {
	owner := domain.Address{5}
	got, err := ParseFactoryInit(FactoryInit(owner).Data)
	require.NoError(t, err)
	assert.Equal(t, owner, got)

	collection, index, err := ParseItemInit(ItemInit(owner, 1<<40).Data)
	require.NoError(t, err)
	assert.Equal(t, owner, collection)
	assert.Equal(t, uint64(1<<40), index)

	_, _, err = ParseItemInit([]byte{1, 2})
	require.Error(t, err)
}
