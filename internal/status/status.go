package status

import "errors"

// Input errors. Rejected before any side effect happens.
var (
	ErrInvalidItem     = errors.New("inventory: unknown tier")
	ErrInvalidQuantity = errors.New("inventory: quantity must be positive")
	ErrInvalidPayload  = errors.New("credential: malformed payload")
)

// Conflict errors. The overall user flow is safe to retry from an earlier step.
var (
	ErrInsufficientInventory  = errors.New("inventory: insufficient remaining capacity")
	ErrReservationNotActive   = errors.New("reservation: not active")
	ErrReservationExpired     = errors.New("reservation: expired")
	ErrReservationNotFound    = errors.New("reservation: not found")
	ErrOrderNotFound          = errors.New("order: not found")
	ErrOrderNotCancellable    = errors.New("order: not cancellable in current state")
	ErrCredentialConsumed     = errors.New("credential: already consumed")
	ErrCredentialNotIssued    = errors.New("credential: not in issued state")
	ErrCredentialNotFound     = errors.New("credential: not found")
	ErrSlotNotOpen            = errors.New("share: slot not open")
	ErrSlotExpired            = errors.New("share: slot expired")
	ErrSlotConsumed           = errors.New("share: claimed credential already used")
	ErrBundleNotFound         = errors.New("share: bundle not found")
	ErrTransferNotPending     = errors.New("transfer: not pending")
	ErrTransferNotFound       = errors.New("transfer: not found")
	ErrAdmissionTokenInvalid  = errors.New("admission: token invalid, stale, or already consumed")
	ErrAdmissionTokenRequired = errors.New("admission: token required during surge")
	ErrNotOwner               = errors.New("ownership: caller does not own the credential")
)

// Integrity errors. Logged and flagged for operator review, never silently accepted.
var ErrSignatureInvalid = errors.New("credential: signature invalid")

// Upstream errors. Caller retries with backoff; success is never assumed.
var (
	ErrGatewayUnavailable = errors.New("gateway: unreachable")
	ErrGatewayTimeout     = errors.New("gateway: call timed out")
)

// IsConflict reports whether err belongs to the conflict class, which maps to
// HTTP 409 at the transport layer.
func IsConflict(err error) bool {
	for _, target := range []error{
		ErrInsufficientInventory, ErrReservationNotActive, ErrReservationExpired,
		ErrOrderNotCancellable, ErrCredentialConsumed, ErrCredentialNotIssued,
		ErrSlotNotOpen, ErrSlotExpired, ErrSlotConsumed, ErrTransferNotPending,
		ErrAdmissionTokenInvalid,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}
