package sshkex

import (
	"context"

	"sshkex/message"
)

// OutcomeKind is the adjudication a server delegate reaches for one UserAuthRequest.
type OutcomeKind byte

const (
	// OutcomeSuccess authenticates the user outright.
	OutcomeSuccess OutcomeKind = iota
	// OutcomePartialSuccess accepts this method but still requires more (multi-factor).
	OutcomePartialSuccess
	// OutcomeFailure rejects this method.
	OutcomeFailure
)

// Outcome is what a ServerDelegate resolves a UserAuthRequest to. RemainingMethods
// is only meaningful when Kind is OutcomePartialSuccess.
type Outcome struct {
	Kind             OutcomeKind
	RemainingMethods AvailableMethods
}

// ClientAuthResult is what a ClientDelegate resolves a credential request to:
// either a request to send, or a nil Request meaning the delegate has no
// further method to try (terminal failure).
type ClientAuthResult struct {
	Request *message.UserAuthRequest
}

// ClientDelegate supplies credentials on demand. NextAuthentication is invoked
// each time the client machine needs a request to send — initially, and again
// after every UserAuthFailure. It must not block the caller: it returns
// immediately with a channel that is sent to (exactly once) and then closed
// when the delegate has decided, modeling the spec's "promise resolved later
// on the same event loop." The state machine does not filter or validate the
// returned request against availableMethods; it trusts the delegate.
type ClientDelegate interface {
	NextAuthentication(ctx context.Context, availableMethods AvailableMethods) <-chan ClientAuthResult
}

// ServerDelegate adjudicates inbound requests. RequestReceived is invoked once
// per UserAuthRequest, in arrival order, and may have many calls outstanding
// concurrently; it resolves each returned channel independently and in
// whatever order the adjudication actually completes. The state machine
// surfaces responses to its caller in resolution order, not arrival order.
type ServerDelegate interface {
	RequestReceived(ctx context.Context, req message.UserAuthRequest) <-chan Outcome
}
