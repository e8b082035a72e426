package domain

type CheckoutState string

const (
	CheckoutStarted   CheckoutState = "started"
	CheckoutValidated CheckoutState = "validated"
	CheckoutCommitted CheckoutState = "committed"
	CheckoutAborted   CheckoutState = "aborted"
)

// CheckoutResult is returned by a successful checkout. Replayed is set when
// the order was produced by an earlier call with the same request id.
type CheckoutResult struct {
	Order    Order
	Replayed bool
}
