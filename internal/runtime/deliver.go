package runtime

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"mintledger/internal/addressing"
	"mintledger/internal/message"
	"mintledger/internal/runtime/models"
	"mintledger/pkg/domain"
	dErrors "mintledger/pkg/domain-errors"
	"mintledger/pkg/requestcontext"
)

// deliver runs one transaction and returns the queue that follows it: rest,
// then the messages the transaction sent. The returned error is reserved for
// store and invariant failures; contract failures are recorded on the
// transaction.
func (r *Runtime) deliver(ctx context.Context, env message.Envelope, rest []message.Envelope) (*models.Transaction, []message.Envelope, error) {
	ctx, span := r.tracer.Start(ctx, "runtime.deliver", trace.WithAttributes(
		attribute.String("ledger.from", env.From.String()),
		attribute.String("ledger.to", env.To.String()),
		attribute.String("ledger.kind", string(env.Kind())),
		attribute.Bool("ledger.bounced", env.Bounced),
	))
	defer span.End()

	acct, existed, err := r.load(ctx, env.To)
	if err != nil {
		return nil, nil, err
	}
	body, err := message.Encode(env.Body)
	if err != nil {
		return nil, nil, err
	}

	tx := &models.Transaction{
		Origin:        models.OriginInternal,
		Time:          requestcontext.Now(ctx),
		From:          env.From,
		To:            env.To,
		Kind:          env.Kind(),
		Body:          body,
		Value:         env.Value,
		BalanceBefore: acct.Balance,
		Bounced:       env.Bounced,
		Code:          acct.Code,
	}

	var sends []message.Envelope
	switch {
	case acct.HasCode():
		sends = r.execute(tx, acct, acct.Code, acct.State, env)
	case env.Init != nil:
		sends = r.deployAndExecute(tx, acct, env)
	case env.Body == nil || env.Bounced || env.Kind() == message.KindExcess:
		// Plain value to a wallet: credited without executing code.
		tx.Fee = domain.Amount{}
		tx.Success = true
		tx.BalanceAfter = acct.Balance.Add(env.Value)
		acct.Balance = tx.BalanceAfter
	default:
		sends = r.reject(tx, acct, env, domain.Amount{},
			dErrors.New(dErrors.CodeUninitialized, "no contract deployed at destination"))
	}

	// An account that never existed and gained nothing is not written.
	var accounts []*models.Account
	if existed || acct.HasCode() || !acct.Balance.IsZero() {
		accounts = append(accounts, acct)
	}
	queue := make([]message.Envelope, 0, len(rest)+len(sends))
	queue = append(append(queue, rest...), sends...)
	if err := r.commit(ctx, tx, accounts, domain.Amount{}, queue); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "commit failed")
		return nil, nil, err
	}

	span.SetAttributes(
		attribute.Bool("ledger.success", tx.Success),
		attribute.String("ledger.tx_id", tx.ID),
	)
	if tx.Success {
		r.logger.DebugContext(ctx, "transaction committed",
			"tx_id", tx.ID,
			"seq", tx.Seq,
			"to", env.To.Short(),
			"kind", tx.Kind,
			"value", tx.Value.String(),
			"fee", tx.Fee.String(),
		)
	} else {
		span.SetStatus(codes.Error, string(tx.ExitCode))
		r.logger.InfoContext(ctx, "transaction failed",
			"tx_id", tx.ID,
			"seq", tx.Seq,
			"from", env.From.Short(),
			"to", env.To.Short(),
			"kind", tx.Kind,
			"exit_code", tx.ExitCode,
			"reason", tx.Reason,
			"bounced", len(sends) > 0,
		)
	}
	return tx, queue, nil
}

// deployAndExecute instantiates the contract described by env.Init for this
// transaction only. It is persisted together with the first successful message.
func (r *Runtime) deployAndExecute(tx *models.Transaction, acct *models.Account, env message.Envelope) []message.Envelope {
	init := *env.Init
	if addressing.Of(init) != env.To {
		return r.reject(tx, acct, env, domain.Amount{},
			dErrors.New(dErrors.CodeInvalidInput, "deployment payload does not derive destination address"))
	}
	contract, ok := r.contracts[init.Code]
	if !ok {
		return r.reject(tx, acct, env, domain.Amount{},
			dErrors.New(dErrors.CodeInvalidInput, "unknown contract code "+string(init.Code)))
	}
	state, err := contract.Deploy(init)
	if err != nil {
		return r.reject(tx, acct, env, domain.Amount{}, err)
	}

	sends := r.execute(tx, acct, init.Code, state, env)
	if tx.Success {
		tx.Deployed = true
	}
	return sends
}

// execute runs contract code against the account and applies the outcome.
func (r *Runtime) execute(tx *models.Transaction, acct *models.Account, code message.CodeKind, state []byte, env message.Envelope) []message.Envelope {
	contract, ok := r.contracts[code]
	if !ok {
		return r.reject(tx, acct, env, domain.Amount{},
			dErrors.New(dErrors.CodeInternal, "unknown contract code "+string(code)))
	}

	credited := acct.Balance.Add(env.Value)
	available, err := credited.Sub(r.fee)
	if err != nil {
		return r.reject(tx, acct, env, r.fee,
			dErrors.New(dErrors.CodeInsufficientPayment, "balance does not cover processing fee"))
	}

	tc := &TxContext{
		self:    env.To,
		sender:  env.From,
		value:   env.Value,
		balance: available,
		fee:     r.fee,
		bounced: env.Bounced,
		state:   state,
	}
	if err := receive(contract, tc, env.Body); err != nil {
		return r.reject(tx, acct, env, r.fee, err)
	}

	acct.Balance = tc.balance
	acct.Code = code
	acct.State = tc.state

	tx.Success = true
	tx.Fee = r.fee
	tx.BalanceAfter = tc.balance
	tx.Code = code
	for _, out := range tc.sends {
		tx.Outbound = append(tx.Outbound, summarize(out))
	}
	return tc.sends
}

// reject leaves state untouched, keeps at most fee out of the inbound value,
// and bounces the remainder when the sender allowed it.
func (r *Runtime) reject(tx *models.Transaction, acct *models.Account, env message.Envelope, fee domain.Amount, cause error) []message.Envelope {
	fee = domain.Min(fee, env.Value)
	refund := env.Value.SubFloor(fee)

	tx.Success = false
	tx.ExitCode = dErrors.CodeOf(cause)
	tx.Reason = cause.Error()
	tx.Fee = fee
	tx.Deployed = false
	tx.Code = acct.Code

	if env.Bounce && !env.Bounced && !refund.IsZero() {
		back := env.Bounceback(refund)
		tx.BalanceAfter = acct.Balance
		tx.Outbound = []models.Outbound{summarize(back)}
		return []message.Envelope{back}
	}
	acct.Balance = acct.Balance.Add(refund)
	tx.BalanceAfter = acct.Balance
	return nil
}

// receive shields the runtime from contract panics.
func receive(c Contract, tc *TxContext, body message.Message) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = dErrors.New(dErrors.CodeInternal, fmt.Sprintf("contract panic: %v", rec))
		}
	}()
	return c.Receive(tc, body)
}
