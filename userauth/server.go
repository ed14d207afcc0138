package userauth

import (
	"context"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"sshkex"
	"sshkex/message"
)

type serverTag byte

const (
	serverIdle serverTag = iota
	serverAuthenticating
	serverAuthenticated
)

func (t serverTag) String() string {
	switch t {
	case serverIdle:
		return "Idle"
	case serverAuthenticating:
		return "Authenticating"
	case serverAuthenticated:
		return "Authenticated"
	default:
		return "Unknown"
	}
}

// ServerResponse is the wire response a server delegate's Outcome translates
// to: exactly one of Success or Failure is set.
type ServerResponse struct {
	Success *message.UserAuthSuccess
	Failure *message.UserAuthFailure
}

// translateOutcome implements spec.md §4.2's outcome translation table.
func translateOutcome(outcome sshkex.Outcome, supported sshkex.AvailableMethods) ServerResponse {
	switch outcome.Kind {
	case sshkex.OutcomeSuccess:
		return ServerResponse{Success: &message.UserAuthSuccess{}}
	case sshkex.OutcomePartialSuccess:
		return ServerResponse{Failure: &message.UserAuthFailure{
			Authentications: outcome.RemainingMethods.Names(),
			PartialSuccess:  true,
		}}
	default:
		return ServerResponse{Failure: &message.UserAuthFailure{
			Authentications: supported.Names(),
			PartialSuccess:  false,
		}}
	}
}

// ServerMachine drives the server side of user authentication. Not safe for
// concurrent use; RequestReceived may have many adjudications in flight at
// once, each resolving independently on its own goroutine, but the Machine
// itself is only ever mutated from the caller's single event-loop thread.
type ServerMachine struct {
	id       uuid.UUID
	log      logrus.FieldLogger
	delegate sshkex.ServerDelegate

	supportedMethods sshkex.AvailableMethods

	tag     serverTag
	pending int
}

// ServerOption configures a ServerMachine at construction time.
type ServerOption func(*ServerMachine)

// SetServerLogger overrides the default logger.
func SetServerLogger(log logrus.FieldLogger) ServerOption {
	return func(m *ServerMachine) { m.log = log }
}

// NewServerMachine creates a ServerMachine in the Idle state. supportedMethods
// is advertised in UserAuthFailure.Authentications on outright failure.
func NewServerMachine(delegate sshkex.ServerDelegate, supportedMethods sshkex.AvailableMethods, opts ...ServerOption) *ServerMachine {
	m := &ServerMachine{
		id:               uuid.New(),
		log:              logrus.StandardLogger(),
		delegate:         delegate,
		supportedMethods: supportedMethods,
		tag:              serverIdle,
	}

	for _, opt := range opts {
		opt(m)
	}

	m.log = m.log.WithField("connection_id", m.id)

	return m
}

// State returns the human-readable current state name.
func (m *ServerMachine) State() string { return m.tag.String() }

// ConnectionID identifies this machine's connection in logs.
func (m *ServerMachine) ConnectionID() uuid.UUID { return m.id }

// ReceiveUserAuthRequest forwards req to the server delegate for adjudication
// and returns a channel that resolves to the translated wire response. Once
// Authenticated, further requests are silently ignored: it returns a nil channel.
func (m *ServerMachine) ReceiveUserAuthRequest(ctx context.Context, req message.UserAuthRequest) <-chan ServerResponse {
	if m.tag == serverAuthenticated {
		return nil
	}

	m.tag = serverAuthenticating
	m.pending++
	m.log.WithField("username", req.Username).WithField("pending", m.pending).Debug("received user auth request")

	outcomes := m.delegate.RequestReceived(ctx, req)
	responses := make(chan ServerResponse, 1)

	go func() {
		outcome, ok := <-outcomes
		if !ok {
			return
		}

		responses <- translateOutcome(outcome, m.supportedMethods)
		close(responses)
	}()

	return responses
}

// SendUserAuthSuccess records that SSH_MSG_USERAUTH_SUCCESS is being sent,
// transitioning to Authenticated. Panics with a *CallerError if called
// outside Authenticating.
func (m *ServerMachine) SendUserAuthSuccess() {
	if m.tag != serverAuthenticating {
		panic(sshkex.NewCallerError("SendUserAuthSuccess called outside Authenticating (state=" + m.tag.String() + ")"))
	}

	m.tag = serverAuthenticated
	m.pending = 0
	m.log.Debug("sent user auth success")
}

// SendUserAuthFailure records that a UserAuthFailure is being sent. Panics
// with a *CallerError if called outside Authenticating.
func (m *ServerMachine) SendUserAuthFailure(msg *message.UserAuthFailure) {
	if m.tag != serverAuthenticating {
		panic(sshkex.NewCallerError("SendUserAuthFailure called outside Authenticating (state=" + m.tag.String() + ")"))
	}

	if m.pending > 0 {
		m.pending--
	}

	m.log.WithField("partial_success", msg.PartialSuccess).Debug("sent user auth failure")
}

// ReceiveUserAuthSuccess is always a protocol violation for the server role.
func (m *ServerMachine) ReceiveUserAuthSuccess() error {
	return sshkex.ErrCodeProtocolViolation.New("server role received UserAuthSuccess")
}

// ReceiveUserAuthFailure is always a protocol violation for the server role.
func (m *ServerMachine) ReceiveUserAuthFailure(*message.UserAuthFailure) error {
	return sshkex.ErrCodeProtocolViolation.New("server role received UserAuthFailure")
}
