package factory

import (
	"mintledger/internal/addressing"
	"mintledger/internal/runtime"
	"mintledger/pkg/domain"
	dErrors "mintledger/pkg/domain-errors"
)

// GetFactoryData reads the collection configuration.
type GetFactoryData struct{}

func (GetFactoryData) Method() string { return "get_factory_data" }

// GetItemAddress derives the address of the item minted at Index.
type GetItemAddress struct {
	Index uint64
}

func (GetItemAddress) Method() string { return "get_item_address" }

// Data is the result of GetFactoryData.
type Data struct {
	NextIndex uint64         `json:"next_index"`
	Metadata  []byte         `json:"metadata"`
	Owner     domain.Address `json:"owner"`
	Price     domain.Amount  `json:"price"`
}

func (c *Contract) Query(self domain.Address, state []byte, q runtime.Query) (any, error) {
	st, err := decodeState(state)
	if err != nil {
		return nil, err
	}
	if !st.Initialized {
		return nil, errUninitialized
	}
	switch q := q.(type) {
	case GetFactoryData:
		return Data{
			NextIndex: st.MintCounter,
			Metadata:  st.Metadata,
			Owner:     st.Owner,
			Price:     st.Price,
		}, nil
	case GetItemAddress:
		return addressing.ForItem(self, q.Index), nil
	default:
		return nil, dErrors.New(dErrors.CodeBadRequest, "factory has no getter "+q.Method())
	}
}
