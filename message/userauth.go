package message

// AuthMethodKind names the wire method-name token carried by a UserAuthRequest.
type AuthMethodKind byte

const (
	// MethodNone marks a request that names no method (used only for probing;
	// never produced by this module's client delegate).
	MethodNone AuthMethodKind = iota

	// MethodPassword is the "password" method, the only one this module
	// exercises end to end.
	MethodPassword

	// MethodPublicKey is the "publickey" method. The slot exists so
	// AvailableMethods can represent it, but sending a request carrying it
	// is caller misuse — see the userauth package.
	MethodPublicKey

	// MethodHostBased is the "hostbased" method, reserved the same way.
	MethodHostBased
)

// WireName returns the SSH method-name token for m.
func (m AuthMethodKind) WireName() string {
	switch m {
	case MethodPassword:
		return "password"
	case MethodPublicKey:
		return "publickey"
	case MethodHostBased:
		return "hostbased"
	default:
		return ""
	}
}

// AuthMethod carries a method-specific credential. Only Password is ever
// populated by this module; PublicKey and HostBased exist only as Kind
// values and have no payload field, per spec.md §9's open question on
// unsupported methods.
type AuthMethod struct {
	Kind     AuthMethodKind
	Password string
}

// NewPasswordMethod builds the only AuthMethod this module's client delegate
// may construct.
func NewPasswordMethod(password string) AuthMethod {
	return AuthMethod{Kind: MethodPassword, Password: password}
}

// UserAuthRequest is SSH_MSG_USERAUTH_REQUEST (50), client to server.
type UserAuthRequest struct {
	Username    string
	ServiceName string
	Method      AuthMethod
}

// UserAuthFailure is SSH_MSG_USERAUTH_FAILURE (51), server to client.
type UserAuthFailure struct {
	Authentications []string
	PartialSuccess  bool
}

// UserAuthSuccess is SSH_MSG_USERAUTH_SUCCESS (52), server to client: no payload.
type UserAuthSuccess struct{}
