// Package userauth implements the User Authentication State Machine for
// both roles: the client side drives an application-supplied ClientDelegate
// through successive credential attempts, and the server side forwards
// inbound requests to a ServerDelegate and translates its adjudications into
// the wire responses spec.md §4.2 names.
//
// Grounded on other_examples/yaronf-mint__state-machine.go's exhaustive
// per-state switch discipline and dennis-tra/pcp's channel-based async
// step resolution (PakeStep/promise pattern).
package userauth

import (
	"context"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"sshkex"
	"sshkex/message"
)

type clientTag byte

const (
	clientIdle clientTag = iota
	clientAwaitingNextRequest
	clientAwaitingResponse
	clientAuthenticated
	clientFailed
)

func (t clientTag) String() string {
	switch t {
	case clientIdle:
		return "Idle"
	case clientAwaitingNextRequest:
		return "AwaitingNextRequest"
	case clientAwaitingResponse:
		return "AwaitingResponse"
	case clientAuthenticated:
		return "Authenticated"
	case clientFailed:
		return "Failed"
	default:
		return "Unknown"
	}
}

// AllMethods is the AvailableMethods set passed to the delegate the first
// time it is consulted, before any UserAuthFailure has told us what the
// server actually accepts.
const AllMethods = sshkex.MethodBitPassword | sshkex.MethodBitPublicKey | sshkex.MethodBitHostBased

// ClientMachine drives the client side of user authentication. Not safe for
// concurrent use.
type ClientMachine struct {
	id       uuid.UUID
	log      logrus.FieldLogger
	delegate sshkex.ClientDelegate

	tag     clientTag
	pending *message.UserAuthRequest
}

// ClientOption configures a ClientMachine at construction time.
type ClientOption func(*ClientMachine)

// SetClientLogger overrides the default logger.
func SetClientLogger(log logrus.FieldLogger) ClientOption {
	return func(m *ClientMachine) { m.log = log }
}

// NewClientMachine creates a ClientMachine in the Idle state.
func NewClientMachine(delegate sshkex.ClientDelegate, opts ...ClientOption) *ClientMachine {
	m := &ClientMachine{
		id:       uuid.New(),
		log:      logrus.StandardLogger(),
		delegate: delegate,
		tag:      clientIdle,
	}

	for _, opt := range opts {
		opt(m)
	}

	m.log = m.log.WithField("connection_id", m.id)

	return m
}

// State returns the human-readable current state name.
func (m *ClientMachine) State() string { return m.tag.String() }

// ConnectionID identifies this machine's connection in logs.
func (m *ClientMachine) ConnectionID() uuid.UUID { return m.id }

// BeginAuthentication starts the authentication dance: Idle -> AwaitingNextRequest,
// then consults the delegate for the first credential to try. Panics with a
// *CallerError if called outside Idle.
func (m *ClientMachine) BeginAuthentication(ctx context.Context) <-chan sshkex.ClientAuthResult {
	if m.tag != clientIdle {
		panic(sshkex.NewCallerError("BeginAuthentication called outside Idle (state=" + m.tag.String() + ")"))
	}

	m.tag = clientAwaitingNextRequest
	m.log.WithField("state", m.tag.String()).Debug("consulting delegate for first credential")

	return m.delegate.NextAuthentication(ctx, AllMethods)
}

// SendUserAuthRequest records req as in flight: AwaitingNextRequest -> AwaitingResponse.
// Panics with a *CallerError if req carries a method this module cannot send
// (only password is exercised end to end) or if called outside AwaitingNextRequest.
func (m *ClientMachine) SendUserAuthRequest(req *message.UserAuthRequest) {
	if m.tag != clientAwaitingNextRequest {
		panic(sshkex.NewCallerError("SendUserAuthRequest called outside AwaitingNextRequest (state=" + m.tag.String() + ")"))
	}

	if req.Method.Kind != message.MethodPassword {
		panic(sshkex.NewCallerError("SendUserAuthRequest given an unsupported method: " + req.Method.Kind.WireName()))
	}

	m.pending = req
	m.tag = clientAwaitingResponse
	m.log.WithField("state", m.tag.String()).WithField("username", req.Username).Debug("sent user auth request")
}

// ReceiveUserAuthSuccess processes SSH_MSG_USERAUTH_SUCCESS. Legal only in
// AwaitingResponse (-> Authenticated); silently ignored in Authenticated
// (slop after success); a protocol violation everywhere else.
func (m *ClientMachine) ReceiveUserAuthSuccess() error {
	switch m.tag {
	case clientAwaitingResponse:
		m.pending = nil
		m.tag = clientAuthenticated
		m.log.Debug("authenticated")

		return nil
	case clientAuthenticated:
		return nil
	default:
		return sshkex.ErrCodeProtocolViolation.New("UserAuthSuccess received outside AwaitingResponse")
	}
}

// ReceiveUserAuthFailure processes SSH_MSG_USERAUTH_FAILURE. Legal only in
// AwaitingResponse, where it translates the authentications list and
// re-consults the delegate, transitioning back to AwaitingNextRequest.
// Silently ignored in Authenticated; a protocol violation elsewhere.
func (m *ClientMachine) ReceiveUserAuthFailure(ctx context.Context, msg *message.UserAuthFailure) (<-chan sshkex.ClientAuthResult, error) {
	switch m.tag {
	case clientAwaitingResponse:
		m.pending = nil
		available := sshkex.ParseAvailableMethods(msg.Authentications)
		m.tag = clientAwaitingNextRequest
		m.log.WithField("available_methods", available.String()).Debug("auth failed, re-consulting delegate")

		return m.delegate.NextAuthentication(ctx, available), nil
	case clientAuthenticated:
		return nil, nil
	default:
		return nil, sshkex.ErrCodeProtocolViolation.New("UserAuthFailure received outside AwaitingResponse")
	}
}

// NoFurtherMethods transitions to the terminal Failed state: called after the
// delegate resolved with no further request to try. Panics with a
// *CallerError if called outside AwaitingNextRequest.
func (m *ClientMachine) NoFurtherMethods() {
	if m.tag != clientAwaitingNextRequest {
		panic(sshkex.NewCallerError("NoFurtherMethods called outside AwaitingNextRequest (state=" + m.tag.String() + ")"))
	}

	m.tag = clientFailed
	m.log.Debug("no further authentication methods, giving up")
}

// ReceiveUserAuthRequest is always a protocol violation for the client role.
func (m *ClientMachine) ReceiveUserAuthRequest(message.UserAuthRequest) error {
	return sshkex.ErrCodeProtocolViolation.New("client role received UserAuthRequest")
}
