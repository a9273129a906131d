package paymentgate

import apperrors "github.com/Coffee-Network/coffee_ledger/internal/errors"

// NetworkMode selects which value backend the service runs against. It is
// set exactly once by Initialize and read-only afterwards.
type NetworkMode int8

const (
	// ModeLocal runs against the in-environment test-token process.
	ModeLocal NetworkMode = 0
	// ModeExternal runs against the real external ledger.
	ModeExternal NetworkMode = 1
)

func (m NetworkMode) String() string {
	switch m {
	case ModeLocal:
		return "local"
	case ModeExternal:
		return "external"
	default:
		return "unknown"
	}
}

// ParseMode validates a caller-supplied mode value.
func ParseMode(v int8) (NetworkMode, error) {
	switch NetworkMode(v) {
	case ModeLocal, ModeExternal:
		return NetworkMode(v), nil
	default:
		return 0, apperrors.InvalidArgument("network must be 0 (local) or 1 (external)")
	}
}
