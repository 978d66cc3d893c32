// Package ilp defines the minimal Interledger packet vocabulary the
// forwarding hooks and peer messaging adapter operate on. Packet
// parsing/serialization proper is an external collaborator; this package
// only carries the fields those layers need to make admission and
// response decisions.
package ilp

import (
	"errors"
	"time"
)

// PacketType distinguishes the three ILP packet kinds.
type PacketType uint8

const (
	TypePrepare PacketType = iota + 1
	TypeFulfill
	TypeReject
)

// Standard final-error codes relevant to the forwarding hooks.
const (
	CodeAmountTooLarge        = "F08"
	CodeInsufficientLiquidity = "T04"
)

// Prepare is an inbound or outbound ILP PREPARE packet.
type Prepare struct {
	Destination string
	Amount      uint64 // packet amount, in the account's packet-amount unit (gwei)
	Expiry      time.Time
	ExecutionCondition [32]byte
	Data        []byte
}

// Fulfill is the response to a successfully executed PREPARE.
type Fulfill struct {
	FulfillmentPreimage [32]byte
	Data                []byte
}

// Reject is the response to a PREPARE that could not be executed.
type Reject struct {
	Code    string
	Message string
	TriggeredBy string
	Data    []byte
}

// AmountTooLargeError reports that a PREPARE's amount exceeds the
// account's configured maxPacketAmount.
type AmountTooLargeError struct {
	Amount    uint64
	MaxAmount uint64
}

func (e *AmountTooLargeError) Error() string {
	return "ilp: amount too large"
}

// InsufficientLiquidityError reports that crediting a PREPARE's amount
// would push receivableBalance past the account's configured maxBalance.
type InsufficientLiquidityError struct {
	Receivable uint64
	MaxBalance uint64
}

func (e *InsufficientLiquidityError) Error() string {
	return "ilp: insufficient liquidity"
}

// ErrDestinationUnreachable is returned by a data handler that has no
// route for a PREPARE's destination.
var ErrDestinationUnreachable = errors.New("ilp: destination unreachable")

// ToReject converts any error into a final Reject packet, preserving the
// code of AmountTooLargeError/InsufficientLiquidityError and otherwise
// reporting a generic internal error (F00).
func ToReject(err error) Reject {
	var tooLarge *AmountTooLargeError
	if errors.As(err, &tooLarge) {
		return Reject{Code: CodeAmountTooLarge, Message: tooLarge.Error()}
	}

	var illiquid *InsufficientLiquidityError
	if errors.As(err, &illiquid) {
		return Reject{Code: CodeInsufficientLiquidity, Message: illiquid.Error()}
	}

	return Reject{Code: "F00", Message: err.Error()}
}

// DataHandler forwards a prepared packet upstream/downstream and returns
// the eventual response, which is either a Fulfill or a Reject.
type DataHandler func(prepare Prepare) (*Fulfill, *Reject, error)
