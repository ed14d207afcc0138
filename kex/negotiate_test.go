package kex

import (
	"testing"

	"sshkex/message"
)

// negotiateCase is one row of the negotiation table: two peers' advertised
// algorithm lists and the expected outcome.
type negotiateCase struct {
	name          string
	clientKex     []string
	serverKex     []string
	clientHostKey []string
	serverHostKey []string
	wantKexAlgo   string
	wantHostKey   string
	wantErr       bool
}

func (c negotiateCase) test(t *testing.T) {
	client := &message.KexInit{KexAlgorithms: c.clientKex, ServerHostKeyAlgorithms: c.clientHostKey}
	server := &message.KexInit{KexAlgorithms: c.serverKex, ServerHostKeyAlgorithms: c.serverHostKey}

	n, err := negotiate(client, server)

	if c.wantErr {
		if err == nil {
			t.Fatalf("expected a negotiation error, got none")
		}

		return
	}

	if err != nil {
		t.Fatalf("unexpected negotiation error: %v", err)
	}

	if n.kexAlgorithm != c.wantKexAlgo {
		t.Fatalf("kex algorithm: got %q want %q", n.kexAlgorithm, c.wantKexAlgo)
	}

	if n.hostKeyAlgorithm != c.wantHostKey {
		t.Fatalf("host key algorithm: got %q want %q", n.hostKeyAlgorithm, c.wantHostKey)
	}
}

func TestNegotiate(t *testing.T) {
	cases := []negotiateCase{
		{
			name:          "fast path: first algorithms already agree",
			clientKex:     []string{"curve25519-sha256", "curve25519-sha256@libssh.org"},
			serverKex:     []string{"curve25519-sha256", "curve25519-sha256@libssh.org"},
			clientHostKey: []string{"ssh-ed25519"},
			serverHostKey: []string{"ssh-ed25519"},
			wantKexAlgo:   "curve25519-sha256",
			wantHostKey:   "ssh-ed25519",
		},
		{
			name:          "client list scan: first algorithms disagree but overlap exists",
			clientKex:     []string{"curve25519-sha256@libssh.org", "curve25519-sha256"},
			serverKex:     []string{"curve25519-sha256", "curve25519-sha256@libssh.org"},
			clientHostKey: []string{"ssh-ed25519"},
			serverHostKey: []string{"ssh-ed25519"},
			wantKexAlgo:   "curve25519-sha256@libssh.org",
			wantHostKey:   "ssh-ed25519",
		},
		{
			name:          "no common kex algorithm",
			clientKex:     []string{"diffie-hellman-group14-sha256"},
			serverKex:     []string{"curve25519-sha256"},
			clientHostKey: []string{"ssh-ed25519"},
			serverHostKey: []string{"ssh-ed25519"},
			wantErr:       true,
		},
		{
			name:          "no common host key algorithm",
			clientKex:     []string{"curve25519-sha256"},
			serverKex:     []string{"curve25519-sha256"},
			clientHostKey: []string{"ssh-rsa"},
			serverHostKey: []string{"ssh-ed25519"},
			wantErr:       true,
		},
	}

	for _, c := range cases {
		t.Run(c.name, c.test)
	}
}

// guessCase is one row of the first-packet-follows guess table.
type guessCase struct {
	name               string
	follows            bool
	peerKex            []string
	peerHostKey        []string
	ourKex             []string
	ourHostKey         []string
	wantIncorrectGuess bool
}

func TestExpectingIncorrectGuess(t *testing.T) {
	base := []string{"curve25519-sha256", "curve25519-sha256@libssh.org"}
	baseHostKey := []string{"ssh-ed25519"}

	cases := []guessCase{
		{
			name:        "no guess flagged",
			follows:     false,
			peerKex:     []string{"curve25519-sha256@libssh.org"},
			peerHostKey: baseHostKey,
			ourKex:      base,
			ourHostKey:  baseHostKey,
		},
		{
			name:        "guess flagged and correct",
			follows:     true,
			peerKex:     base,
			peerHostKey: baseHostKey,
			ourKex:      base,
			ourHostKey:  baseHostKey,
		},
		{
			name:               "guess flagged, kex algorithm wrong",
			follows:            true,
			peerKex:            []string{"curve25519-sha256@libssh.org", "curve25519-sha256"},
			peerHostKey:        baseHostKey,
			ourKex:             base,
			ourHostKey:         baseHostKey,
			wantIncorrectGuess: true,
		},
		{
			name:               "guess flagged, host key algorithm wrong",
			follows:            true,
			peerKex:            base,
			peerHostKey:        []string{"ssh-rsa"},
			ourKex:             base,
			ourHostKey:         baseHostKey,
			wantIncorrectGuess: true,
		},
	}

	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			peer := &message.KexInit{FirstKexPacketFollows: c.follows, KexAlgorithms: c.peerKex, ServerHostKeyAlgorithms: c.peerHostKey}
			ours := &message.KexInit{KexAlgorithms: c.ourKex, ServerHostKeyAlgorithms: c.ourHostKey}

			got := expectingIncorrectGuess(ours, peer)
			if got != c.wantIncorrectGuess {
				t.Fatalf("expectingIncorrectGuess: got %v want %v", got, c.wantIncorrectGuess)
			}
		})
	}
}
