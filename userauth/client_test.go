package userauth

import (
	"context"
	"testing"

	"sshkex"
	"sshkex/message"
)

type fakeClientDelegate struct {
	calls   int
	respond func(calls int, available sshkex.AvailableMethods) sshkex.ClientAuthResult
}

func (d *fakeClientDelegate) NextAuthentication(_ context.Context, available sshkex.AvailableMethods) <-chan sshkex.ClientAuthResult {
	d.calls++
	ch := make(chan sshkex.ClientAuthResult, 1)
	ch <- d.respond(d.calls, available)
	close(ch)

	return ch
}

func passwordRequest(password string) *message.UserAuthRequest {
	return &message.UserAuthRequest{
		Username:    "foo",
		ServiceName: "ssh-connection",
		Method:      message.NewPasswordMethod(password),
	}
}

func TestClientHappyAuth(t *testing.T) {
	delegate := &fakeClientDelegate{respond: func(int, sshkex.AvailableMethods) sshkex.ClientAuthResult {
		return sshkex.ClientAuthResult{Request: passwordRequest("bar")}
	}}

	m := NewClientMachine(delegate)
	ctx := context.Background()

	result := <-m.BeginAuthentication(ctx)
	if result.Request == nil {
		t.Fatalf("expected a request")
	}

	m.SendUserAuthRequest(result.Request)

	if err := m.ReceiveUserAuthSuccess(); err != nil {
		t.Fatalf("ReceiveUserAuthSuccess: %v", err)
	}

	if m.State() != "Authenticated" {
		t.Fatalf("expected Authenticated, got %s", m.State())
	}
}

func TestClientSadThenHappy(t *testing.T) {
	delegate := &fakeClientDelegate{respond: func(int, sshkex.AvailableMethods) sshkex.ClientAuthResult {
		return sshkex.ClientAuthResult{Request: passwordRequest("bar")}
	}}

	m := NewClientMachine(delegate)
	ctx := context.Background()

	first := <-m.BeginAuthentication(ctx)
	m.SendUserAuthRequest(first.Request)

	retryCh, err := m.ReceiveUserAuthFailure(ctx, &message.UserAuthFailure{
		Authentications: []string{"password"},
		PartialSuccess:  false,
	})
	if err != nil {
		t.Fatalf("ReceiveUserAuthFailure: %v", err)
	}

	second := <-retryCh
	m.SendUserAuthRequest(second.Request)

	if err := m.ReceiveUserAuthSuccess(); err != nil {
		t.Fatalf("ReceiveUserAuthSuccess: %v", err)
	}

	if m.State() != "Authenticated" {
		t.Fatalf("expected Authenticated, got %s", m.State())
	}
}

func TestClientTerminalFailure(t *testing.T) {
	delegate := &fakeClientDelegate{respond: func(calls int, _ sshkex.AvailableMethods) sshkex.ClientAuthResult {
		if calls == 1 {
			return sshkex.ClientAuthResult{Request: passwordRequest("bar")}
		}

		return sshkex.ClientAuthResult{Request: nil}
	}}

	m := NewClientMachine(delegate)
	ctx := context.Background()

	first := <-m.BeginAuthentication(ctx)
	m.SendUserAuthRequest(first.Request)

	retryCh, err := m.ReceiveUserAuthFailure(ctx, &message.UserAuthFailure{
		Authentications: []string{"password"},
	})
	if err != nil {
		t.Fatalf("ReceiveUserAuthFailure: %v", err)
	}

	second := <-retryCh
	if second.Request != nil {
		t.Fatalf("expected delegate to decline")
	}

	m.NoFurtherMethods()

	if m.State() != "Failed" {
		t.Fatalf("expected Failed, got %s", m.State())
	}

	if err := m.ReceiveUserAuthSuccess(); err == nil {
		t.Fatalf("expected ProtocolViolation in Failed state")
	}
}

func TestClientIgnoredSlopAfterSuccess(t *testing.T) {
	delegate := &fakeClientDelegate{respond: func(int, sshkex.AvailableMethods) sshkex.ClientAuthResult {
		return sshkex.ClientAuthResult{Request: passwordRequest("bar")}
	}}

	m := NewClientMachine(delegate)
	ctx := context.Background()

	first := <-m.BeginAuthentication(ctx)
	m.SendUserAuthRequest(first.Request)

	if err := m.ReceiveUserAuthSuccess(); err != nil {
		t.Fatalf("ReceiveUserAuthSuccess: %v", err)
	}

	if err := m.ReceiveUserAuthSuccess(); err != nil {
		t.Fatalf("expected slop success to be ignored, got %v", err)
	}

	if _, err := m.ReceiveUserAuthFailure(ctx, &message.UserAuthFailure{}); err != nil {
		t.Fatalf("expected slop failure to be ignored, got %v", err)
	}

	if m.State() != "Authenticated" {
		t.Fatalf("expected state to remain Authenticated, got %s", m.State())
	}
}

// TestSendUserAuthRequestRejectsUnsupportedMethod covers spec.md §9's
// "unsupported methods" open question: publickey/hostbased are reserved
// payload slots that AvailableMethods can round-trip on the wire, but
// SendUserAuthRequest refuses to send a request carrying one.
func TestSendUserAuthRequestRejectsUnsupportedMethod(t *testing.T) {
	for _, kind := range []message.AuthMethodKind{message.MethodPublicKey, message.MethodHostBased} {
		delegate := &fakeClientDelegate{respond: func(int, sshkex.AvailableMethods) sshkex.ClientAuthResult {
			return sshkex.ClientAuthResult{Request: &message.UserAuthRequest{
				Username:    "foo",
				ServiceName: "ssh-connection",
				Method:      message.AuthMethod{Kind: kind},
			}}
		}}

		m := NewClientMachine(delegate)
		ctx := context.Background()

		result := <-m.BeginAuthentication(ctx)

		func() {
			defer func() {
				r := recover()
				if r == nil {
					t.Fatalf("expected panic sending a %s request", kind.WireName())
				}

				if _, ok := r.(*sshkex.CallerError); !ok {
					t.Fatalf("expected *sshkex.CallerError, got %T", r)
				}
			}()

			m.SendUserAuthRequest(result.Request)
		}()

		if m.State() != "AwaitingNextRequest" {
			t.Fatalf("expected state to remain AwaitingNextRequest after rejected send, got %s", m.State())
		}
	}
}

func TestClientReceiveUserAuthRequestIsProtocolViolation(t *testing.T) {
	m := NewClientMachine(&fakeClientDelegate{respond: func(int, sshkex.AvailableMethods) sshkex.ClientAuthResult {
		return sshkex.ClientAuthResult{}
	}})

	if err := m.ReceiveUserAuthRequest(message.UserAuthRequest{}); err == nil {
		t.Fatalf("expected protocol violation")
	}
}
