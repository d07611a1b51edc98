package handler

import (
	"strings"

	"mintledger/internal/mint/models"
	"mintledger/pkg/content"
	"mintledger/pkg/domain"
	dErrors "mintledger/pkg/domain-errors"
)

const maxContentBytes = 4096

// ConfigureRequest is the HTTP request body for POST /v1/factories.
// Content is either raw bytes (base64 in JSON) or an off-chain URI.
type ConfigureRequest struct {
	Owner      string `json:"owner,omitempty"`
	Value      string `json:"value"`
	Price      string `json:"price"`
	Content    []byte `json:"content,omitempty"`
	ContentURI string `json:"content_uri,omitempty"`

	owner domain.Address
	value domain.Amount
	price domain.Amount
}

// Validate validates and parses the request.
// Implements the Validatable interface for httputil.DecodeAndPrepare.
func (r *ConfigureRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeBadRequest, "request body is required")
	}
	var err error
	if r.Owner = strings.TrimSpace(r.Owner); r.Owner != "" {
		if r.owner, err = domain.ParseAddress(r.Owner); err != nil {
			return dErrors.Wrap(err, dErrors.CodeValidation, "owner is not a valid address")
		}
	}
	if r.value, err = parseAmount("value", r.Value); err != nil {
		return err
	}
	if r.price, err = parseAmount("price", r.Price); err != nil {
		return err
	}
	r.Content, err = resolveContent(r.Content, r.ContentURI)
	return err
}

// OwnerOr returns the requested owner, or fallback when none was given.
func (r *ConfigureRequest) OwnerOr(fallback domain.Address) domain.Address {
	if r.owner.IsZero() {
		return fallback
	}
	return r.owner
}

func (r *ConfigureRequest) ParsedValue() domain.Amount { return r.value }
func (r *ConfigureRequest) ParsedPrice() domain.Amount { return r.price }

// PromoteRequest is the HTTP request body for POST /v1/factories/{address}/promote.
type PromoteRequest struct {
	Value      string `json:"value"`
	ContentRef []byte `json:"content_ref,omitempty"`
	ContentURI string `json:"content_uri,omitempty"`

	value domain.Amount
}

func (r *PromoteRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeBadRequest, "request body is required")
	}
	var err error
	if r.value, err = parseAmount("value", r.Value); err != nil {
		return err
	}
	r.ContentRef, err = resolveContent(r.ContentRef, r.ContentURI)
	return err
}

func (r *PromoteRequest) ParsedValue() domain.Amount { return r.value }

// WithdrawRequest is the HTTP request body for POST /v1/factories/{address}/withdraw.
type WithdrawRequest struct {
	Value string `json:"value"`

	value domain.Amount
}

func (r *WithdrawRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeBadRequest, "request body is required")
	}
	var err error
	r.value, err = parseAmount("value", r.Value)
	return err
}

func (r *WithdrawRequest) ParsedValue() domain.Amount { return r.value }

// TransferRequest is the HTTP request body for POST /v1/items/{address}/transfer.
// Every field of a standard transfer is accepted.
type TransferRequest struct {
	Value               string `json:"value"`
	QueryID             uint64 `json:"query_id"`
	NewHolder           string `json:"new_holder"`
	ResponseDestination string `json:"response_destination,omitempty"`
	ForwardAmount       string `json:"forward_amount,omitempty"`
	CustomPayload       []byte `json:"custom_payload,omitempty"`
	ForwardPayload      []byte `json:"forward_payload,omitempty"`

	value    domain.Amount
	transfer models.TransferRequest
}

func (r *TransferRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeBadRequest, "request body is required")
	}
	var err error
	if r.value, err = parseAmount("value", r.Value); err != nil {
		return err
	}
	t := models.TransferRequest{
		QueryID:        r.QueryID,
		CustomPayload:  r.CustomPayload,
		ForwardPayload: r.ForwardPayload,
	}
	if t.NewHolder, err = domain.ParseAddress(strings.TrimSpace(r.NewHolder)); err != nil {
		return dErrors.Wrap(err, dErrors.CodeValidation, "new_holder is not a valid address")
	}
	if dest := strings.TrimSpace(r.ResponseDestination); dest != "" {
		if t.ResponseDestination, err = domain.ParseAddress(dest); err != nil {
			return dErrors.Wrap(err, dErrors.CodeValidation, "response_destination is not a valid address")
		}
	}
	if strings.TrimSpace(r.ForwardAmount) != "" {
		if t.ForwardAmount, err = parseAmount("forward_amount", r.ForwardAmount); err != nil {
			return err
		}
	}
	r.transfer = t
	return nil
}

func (r *TransferRequest) ParsedValue() domain.Amount { return r.value }
func (r *TransferRequest) Parsed() models.TransferRequest { return r.transfer }

// FundRequest is the HTTP request body for POST /v1/accounts/{address}/fund.
type FundRequest struct {
	Amount string `json:"amount"`

	amount domain.Amount
}

func (r *FundRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeBadRequest, "request body is required")
	}
	var err error
	if r.amount, err = parseAmount("amount", r.Amount); err != nil {
		return err
	}
	if r.amount.IsZero() {
		return dErrors.New(dErrors.CodeValidation, "amount must be positive")
	}
	return nil
}

func (r *FundRequest) ParsedAmount() domain.Amount { return r.amount }

func parseAmount(field, s string) (domain.Amount, error) {
	if strings.TrimSpace(s) == "" {
		return domain.Amount{}, dErrors.New(dErrors.CodeValidation, field+" is required")
	}
	a, err := domain.ParseAmount(s)
	if err != nil {
		return domain.Amount{}, dErrors.Wrap(err, dErrors.CodeValidation, field+" is not a valid amount")
	}
	return a, nil
}

func resolveContent(raw []byte, uri string) ([]byte, error) {
	uri = strings.TrimSpace(uri)
	if len(raw) > 0 && uri != "" {
		return nil, dErrors.New(dErrors.CodeValidation, "content and content_uri are mutually exclusive")
	}
	if uri != "" {
		raw = content.EncodeOffChain(uri)
	}
	if len(raw) > maxContentBytes {
		return nil, dErrors.New(dErrors.CodeValidation, "content must be at most 4096 bytes")
	}
	return raw, nil
}
