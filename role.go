package sshkex

import "crypto/ed25519"

// RoleKind distinguishes the client and server sides of a connection. The two
// sides run the same state machine shapes but diverge in which messages they
// emit first and, for the server, in carrying the host key used to sign the
// exchange hash.
type RoleKind byte

const (
	// RoleClient is the connection-initiating side.
	RoleClient RoleKind = iota

	// RoleServer is the listening side; it owns the host private key.
	RoleServer
)

func (k RoleKind) String() string {
	if k == RoleServer {
		return "server"
	}

	return "client"
}

// Role is immutable for the lifetime of a connection's state machines. The
// server variant carries the host private key used to sign the exchange hash;
// the client variant carries none.
type Role struct {
	hostKey ed25519.PrivateKey
	kind    RoleKind
}

// NewClientRole returns the client-side Role.
func NewClientRole() Role {
	return Role{kind: RoleClient}
}

// NewServerRole returns the server-side Role, carrying the host private key
// used to sign the exchange hash in KEX_ECDH_REPLY.
func NewServerRole(hostKey ed25519.PrivateKey) Role {
	return Role{kind: RoleServer, hostKey: hostKey}
}

// Kind reports whether this is the client or server side.
func (r Role) Kind() RoleKind { return r.kind }

// IsServer reports whether this Role is the server side.
func (r Role) IsServer() bool { return r.kind == RoleServer }

// HostKey returns the server's host private key. Calling this on a client
// Role is caller misuse.
func (r Role) HostKey() ed25519.PrivateKey {
	if r.kind != RoleServer {
		panic(newCallerError("HostKey called on a client Role"))
	}

	return r.hostKey
}
