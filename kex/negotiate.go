package kex

import (
	"sshkex"
	"sshkex/message"
)

// Supported algorithms, advertised verbatim per spec.md §4.1. This module
// negotiates exactly one key-exchange family; there is no fallback.
var (
	supportedKexAlgorithms = []string{
		"curve25519-sha256",
		"curve25519-sha256@libssh.org",
	}
	supportedHostKeyAlgorithms = []string{"ssh-ed25519"}
	supportedCiphers           = []string{"aes256-gcm@openssh.com"}
	supportedMACs              = []string{"hmac-sha2-256"}
	supportedCompressions      = []string{"none"}
)

// newKexInit builds the KexInit message this machine advertises.
func newKexInit(cookie [16]byte) *message.KexInit {
	return &message.KexInit{
		Cookie:                    cookie,
		KexAlgorithms:             supportedKexAlgorithms,
		ServerHostKeyAlgorithms:   supportedHostKeyAlgorithms,
		CiphersClientToServer:     supportedCiphers,
		CiphersServerToClient:     supportedCiphers,
		MACsClientToServer:        supportedMACs,
		MACsServerToClient:        supportedMACs,
		CompressionClientToServer: supportedCompressions,
		CompressionServerToClient: supportedCompressions,
		FirstKexPacketFollows:     false,
	}
}

// findCommonAlgorithm returns the first entry of preferred that also appears
// in available, scanning preferred in order. Grounded on
// other_examples/golang-crypto__common.go's findCommonAlgorithm.
func findCommonAlgorithm(preferred, available []string) (string, bool) {
	for _, want := range preferred {
		for _, have := range available {
			if want == have {
				return want, true
			}
		}
	}

	return "", false
}

// negotiated records the outcome of algorithm negotiation between the
// client's and server's KexInit messages.
type negotiated struct {
	kexAlgorithm     string
	hostKeyAlgorithm string
}

// negotiate applies RFC 4253 §7.1: if both sides' first KEX algorithm agree,
// take the fast path; otherwise scan the client's list in order for the
// first algorithm the server also supports, requiring a common host-key
// algorithm too.
func negotiate(client, server *message.KexInit) (negotiated, error) {
	var n negotiated

	if len(client.KexAlgorithms) > 0 && len(server.KexAlgorithms) > 0 &&
		client.KexAlgorithms[0] == server.KexAlgorithms[0] {
		n.kexAlgorithm = client.KexAlgorithms[0]
	} else {
		kexAlgo, ok := findCommonAlgorithm(client.KexAlgorithms, server.KexAlgorithms)
		if !ok {
			return n, sshkex.ErrCodeNegotiationFailure.New("no common key exchange algorithm")
		}

		n.kexAlgorithm = kexAlgo
	}

	hostKeyAlgo, ok := findCommonAlgorithm(client.ServerHostKeyAlgorithms, server.ServerHostKeyAlgorithms)
	if !ok {
		return n, sshkex.ErrCodeNegotiationFailure.New("no common host key algorithm")
	}

	n.hostKeyAlgorithm = hostKeyAlgo

	return n, nil
}

// expectingIncorrectGuess reports whether peer set FirstKexPacketFollows but
// guessed wrong: either its first KEX algorithm or its first host-key
// algorithm differs from ours.
func expectingIncorrectGuess(ours, peer *message.KexInit) bool {
	if !peer.FirstKexPacketFollows {
		return false
	}

	if firstOrEmpty(peer.KexAlgorithms) != firstOrEmpty(ours.KexAlgorithms) {
		return true
	}

	return firstOrEmpty(peer.ServerHostKeyAlgorithms) != firstOrEmpty(ours.ServerHostKeyAlgorithms)
}

func firstOrEmpty(s []string) string {
	if len(s) == 0 {
		return ""
	}

	return s[0]
}
