package handler

import (
	"time"

	"mintledger/internal/factory"
	"mintledger/internal/item"
	mintmodels "mintledger/internal/mint/models"
	"mintledger/internal/runtime/models"
	"mintledger/pkg/content"
	"mintledger/pkg/domain"
	audit "mintledger/pkg/platform/audit"
)

// ReceiptResponse is returned by every endpoint that submits a message.
// A delivered message that failed is still a 200 with success=false.
type ReceiptResponse struct {
	Target   domain.Address        `json:"target"`
	Success  bool                  `json:"success"`
	ExitCode string                `json:"exit_code,omitempty"`
	Reason   string                `json:"reason,omitempty"`
	Sender   domain.Address        `json:"sender"`
	Refunded domain.Amount         `json:"refunded"`
	Cost     domain.Amount         `json:"cost"`
	Trace    []*models.Transaction `json:"trace"`
}

// MintResponse is the HTTP response for POST /v1/factories/{address}/promote.
type MintResponse struct {
	ReceiptResponse
	Item  *domain.Address `json:"item,omitempty"`
	Index *uint64         `json:"index,omitempty"`
}

type FactoryResponse struct {
	Address    domain.Address `json:"address"`
	Owner      domain.Address `json:"owner"`
	Price      domain.Amount  `json:"price"`
	NextIndex  uint64         `json:"next_index"`
	Metadata   []byte         `json:"metadata,omitempty"`
	ContentURI string         `json:"content_uri,omitempty"`
	Balance    domain.Amount  `json:"balance"`
}

type ItemAddressResponse struct {
	Factory domain.Address `json:"factory"`
	Index   uint64         `json:"index"`
	Item    domain.Address `json:"item"`
}

type ItemResponse struct {
	Address     domain.Address `json:"address"`
	Initialized bool           `json:"initialized"`
	Collection  domain.Address `json:"collection"`
	Index       uint64         `json:"index"`
	Holder      domain.Address `json:"holder"`
	ContentRef  []byte         `json:"content_ref,omitempty"`
	ContentURI  string         `json:"content_uri,omitempty"`
}

type FundResponse struct {
	Address domain.Address `json:"address"`
	TxID    string         `json:"tx_id"`
	Amount  domain.Amount  `json:"amount"`
	Balance domain.Amount  `json:"balance"`
}

type AuditEventResponse struct {
	ID        string    `json:"id"`
	Category  string    `json:"category"`
	Action    string    `json:"action"`
	Timestamp time.Time `json:"timestamp"`
	ActorID   string    `json:"actor_id,omitempty"`
	Decision  string    `json:"decision,omitempty"`
	Reason    string    `json:"reason,omitempty"`
	TxID      string    `json:"tx_id,omitempty"`
	Value     string    `json:"value,omitempty"`
}

type AuditResponse struct {
	Subject string               `json:"subject"`
	Events  []AuditEventResponse `json:"events"`
}

func toReceiptResponse(target domain.Address, r *mintmodels.Receipt) ReceiptResponse {
	trace := []*models.Transaction(r.Trace)
	if trace == nil {
		trace = []*models.Transaction{}
	}
	return ReceiptResponse{
		Target:   target,
		Success:  r.Success,
		ExitCode: string(r.Code),
		Reason:   r.Reason,
		Sender:   r.Sender,
		Refunded: r.Refunded,
		Cost:     r.Cost,
		Trace:    trace,
	}
}

func toMintResponse(target domain.Address, m *mintmodels.Minted) *MintResponse {
	resp := &MintResponse{ReceiptResponse: toReceiptResponse(target, &m.Receipt)}
	if m.Success {
		addr, index := m.Item, m.Index
		resp.Item = &addr
		resp.Index = &index
	}
	return resp
}

func toFactoryResponse(addr domain.Address, data factory.Data, balance domain.Amount) *FactoryResponse {
	return &FactoryResponse{
		Address:    addr,
		Owner:      data.Owner,
		Price:      data.Price,
		NextIndex:  data.NextIndex,
		Metadata:   data.Metadata,
		ContentURI: offChainURI(data.Metadata),
		Balance:    balance,
	}
}

func toItemResponse(addr domain.Address, data item.Data) *ItemResponse {
	return &ItemResponse{
		Address:     addr,
		Initialized: data.Initialized,
		Collection:  data.Collection,
		Index:       data.Index,
		Holder:      data.Holder,
		ContentRef:  data.ContentRef,
		ContentURI:  offChainURI(data.ContentRef),
	}
}

func toAuditResponse(subject string, events []audit.Event) *AuditResponse {
	out := make([]AuditEventResponse, 0, len(events))
	for _, e := range events {
		out = append(out, AuditEventResponse{
			ID:        e.ID.String(),
			Category:  string(e.Category),
			Action:    e.Action,
			Timestamp: e.Timestamp,
			ActorID:   e.ActorID,
			Decision:  e.Decision,
			Reason:    e.Reason,
			TxID:      e.TxID,
			Value:     e.Value,
		})
	}
	return &AuditResponse{Subject: subject, Events: out}
}

// offChainURI decodes content that follows the off-chain layout; other
// content is left opaque.
func offChainURI(data []byte) string {
	if !content.IsOffChain(data) {
		return ""
	}
	uri, err := content.DecodeOffChain(data)
	if err != nil {
		return ""
	}
	return uri
}
