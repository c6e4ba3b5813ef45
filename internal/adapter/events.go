package adapter

import "time"

// Event is the closed set of provider webhook notifications this service
// reacts to. The reconciler type-switches over the concrete types; anything
// the provider sends outside this set decodes to UnrecognizedEvent, which is
// an explicit no-op arm rather than a silent fallthrough.
type Event interface {
	// EventType returns the provider's wire name for the event kind.
	EventType() string
	isEvent()
}

// CheckoutSessionCompleted signals that a customer finished a provider-hosted
// checkout flow in subscription mode.
type CheckoutSessionCompleted struct {
	SessionID              string
	Metadata               map[string]string
	ProviderSubscriptionID string
	ProviderCustomerID     string
}

// SubscriptionUpdated covers both customer.subscription.created and
// customer.subscription.updated; the provider's payload is identical and the
// reconciliation is the same.
type SubscriptionUpdated struct {
	Kind                   string
	ProviderSubscriptionID string
	ProviderStatus         string
	PeriodStart            time.Time
	PeriodEnd              time.Time
	CancelAtPeriodEnd      bool
}

// SubscriptionDeleted signals a provider-side subscription deletion.
type SubscriptionDeleted struct {
	ProviderSubscriptionID string
	PeriodEnd              time.Time
}

// InvoicePaymentSucceeded signals a successful periodic charge.
type InvoicePaymentSucceeded struct {
	ProviderSubscriptionID string
	PeriodStart            time.Time
	PeriodEnd              time.Time
	NextPayment            *time.Time
}

// InvoicePaymentFailed signals a failed periodic charge.
type InvoicePaymentFailed struct {
	ProviderSubscriptionID string
	NextPayment            *time.Time
}

// UnrecognizedEvent carries any provider event kind this service does not
// handle. Processing it succeeds without side effects so new provider event
// types never break webhook delivery.
type UnrecognizedEvent struct {
	Kind string
}

func (e CheckoutSessionCompleted) EventType() string { return "checkout.session.completed" }
func (e SubscriptionUpdated) EventType() string      { return e.Kind }
func (e SubscriptionDeleted) EventType() string      { return "customer.subscription.deleted" }
func (e InvoicePaymentSucceeded) EventType() string  { return "invoice.payment_succeeded" }
func (e InvoicePaymentFailed) EventType() string     { return "invoice.payment_failed" }
func (e UnrecognizedEvent) EventType() string        { return e.Kind }

func (CheckoutSessionCompleted) isEvent() {}
func (SubscriptionUpdated) isEvent()      {}
func (SubscriptionDeleted) isEvent()      {}
func (InvoicePaymentSucceeded) isEvent()  {}
func (InvoicePaymentFailed) isEvent()     {}
func (UnrecognizedEvent) isEvent()        {}
