package account

import (
	"context"

	"github.com/nondejus/ilp-plugin-ethereum/ilp"
)

// HandlePrepare admits or rejects an inbound PREPARE: the
// packet amount must not exceed MaxPacketAmount, and crediting it must
// not push receivableBalance past MaxBalance. On admission, dataHandler
// forwards the packet; a REJECT response rolls the credit back, a
// FULFILL keeps it.
func (a *Account) HandlePrepare(ctx context.Context, prepare ilp.Prepare, dataHandler ilp.DataHandler) (*ilp.Fulfill, *ilp.Reject, error) {
	if prepare.Amount > a.cfg.MaxPacketAmount {
		reject := ilp.ToReject(&ilp.AmountTooLargeError{Amount: prepare.Amount, MaxAmount: a.cfg.MaxPacketAmount})
		return nil, &reject, nil
	}

	newReceivable := a.ReceivableBalance() + prepare.Amount
	if newReceivable > a.cfg.MaxBalance {
		reject := ilp.ToReject(&ilp.InsufficientLiquidityError{Receivable: newReceivable, MaxBalance: a.cfg.MaxBalance})
		return nil, &reject, nil
	}

	a.addReceivable(ctx, int64(prepare.Amount))

	fulfill, reject, err := dataHandler(prepare)
	if err != nil {
		a.addReceivable(ctx, -int64(prepare.Amount))
		r := ilp.ToReject(err)
		return nil, &r, nil
	}
	if reject != nil {
		a.addReceivable(ctx, -int64(prepare.Amount))
		return nil, reject, nil
	}
	return fulfill, nil, nil
}

// HandleResponse processes the response to an outbound PREPARE we sent:
// a FULFILL credits payableBalance and triggers a fire-and-forget
// settlement; a T04 REJECT while we hold an outgoing claim retransmits
// it, since the peer may simply have missed the original transmission.
func (a *Account) HandleResponse(ctx context.Context, amount uint64, fulfill *ilp.Fulfill, reject *ilp.Reject) {
	if fulfill != nil {
		a.addPayable(ctx, int64(amount))
		go a.SettleOutstanding(context.Background())
		return
	}

	if reject != nil && reject.Code == ilp.CodeInsufficientLiquidity {
		if out := a.outgoing.State(); out != nil {
			a.fireAndForgetClaim(ClaimMessage{
				ChannelID:       out.ChannelID,
				ContractAddress: out.ContractAddress,
				Value:           out.Spent,
				Signature:       out.Signature,
			})
		}
	}
}
