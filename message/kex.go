// Package message holds the typed SSH messages the key exchange and user
// authentication state machines consume and produce. Wire serialization
// (bytes <-> these structs) is an external collaborator; these are plain
// data, matching RFC 4253/4252 field layouts.
package message

// Message type bytes, per RFC 4253/4252.
const (
	TypeKexInit         byte = 20
	TypeNewKeys         byte = 21
	TypeKexECDHInit     byte = 30
	TypeKexECDHReply    byte = 31
	TypeUserAuthRequest byte = 50
	TypeUserAuthFailure byte = 51
	TypeUserAuthSuccess byte = 52
)

// KexInit is SSH_MSG_KEXINIT (20): the algorithm-negotiation opener, sent by
// both sides independently at the start of key exchange.
type KexInit struct {
	Cookie                    [16]byte
	KexAlgorithms             []string
	ServerHostKeyAlgorithms   []string
	CiphersClientToServer     []string
	CiphersServerToClient     []string
	MACsClientToServer        []string
	MACsServerToClient        []string
	CompressionClientToServer []string
	CompressionServerToClient []string
	LanguagesClientToServer   []string
	LanguagesServerToClient   []string
	FirstKexPacketFollows     bool
	Reserved                  uint32
}

// EcdhInit is SSH_MSG_KEX_ECDH_INIT (30), client to server: the client's
// ephemeral Curve25519 public key.
type EcdhInit struct {
	ClientEphemeralPublic []byte
}

// EcdhReply is SSH_MSG_KEX_ECDH_REPLY (31), server to client.
type EcdhReply struct {
	ServerHostKey         []byte
	ServerEphemeralPublic []byte
	Signature             []byte
}

// NewKeys is SSH_MSG_NEWKEYS (21): no payload, signals installation of the
// negotiated keys in one direction.
type NewKeys struct{}
