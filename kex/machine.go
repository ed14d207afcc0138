// Package kex implements the Key Exchange State Machine: the
// curve25519-sha256 / ssh-ed25519 / aes256-gcm@openssh.com handshake that
// negotiates algorithms, exchanges ephemeral Curve25519 keys, verifies the
// server's host key signature over the exchange hash, and derives the six
// RFC 4253 §7.2 key streams that seed a transport.Protector.
//
// Grounded on other_examples/yaronf-mint__state-machine.go's HandshakeState
// pattern (one state, switched on exhaustively by every transition) and on
// dennis-tra/pcp's PakeStep-style structured logging of each transition.
package kex

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/binary"
	"io"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"sshkex"
	"sshkex/internal/exchange"
	"sshkex/internal/transport"
	"sshkex/message"
)

// kexResult holds everything derived from a completed exchange: the
// RFC 4253 exchange hash H, the mpint-encoded shared secret K, and the
// session identifier (H of the first exchange on this connection; this
// module never re-keys, so sessionID is always H itself).
type kexResult struct {
	exchangeHash []byte
	sharedSecret []byte
	sessionID    []byte
}

// Machine drives one side of one key exchange. It is not safe for concurrent
// use: the embedder serializes calls the way it serializes reads and writes
// on the underlying connection.
type Machine struct {
	role sshkex.Role
	id   uuid.UUID
	log  logrus.FieldLogger
	rand io.Reader

	tag stateTag

	ourKexInit  *message.KexInit
	peerKexInit *message.KexInit
	negotiated  negotiated

	hasher    exchange.Hasher
	ephemeral *exchange.KeyPair

	result    *kexResult
	protector *transport.Protector
}

// Option configures a Machine at construction time.
type Option func(*Machine)

// SetLogger overrides the default logger. The machine adds a connection_id
// field to every entry it writes.
func SetLogger(log logrus.FieldLogger) Option {
	return func(m *Machine) { m.log = log }
}

// setRand overrides the source of randomness used for cookies and ephemeral
// keys, for deterministic tests.
func setRand(r io.Reader) Option {
	return func(m *Machine) { m.rand = r }
}

// NewMachine creates a Machine in the Idle state. clientVersion and
// serverVersion are the two SSH identification strings exchanged before key
// exchange begins; per spec.md §4.1 they pre-populate the exchange-bytes
// buffer in client-then-server order regardless of role.
func NewMachine(role sshkex.Role, clientVersion, serverVersion []byte, opts ...Option) *Machine {
	m := &Machine{
		role: role,
		id:   uuid.New(),
		log:  logrus.StandardLogger(),
		rand: rand.Reader,
		tag:  stateIdle,
	}

	for _, opt := range opts {
		opt(m)
	}

	m.log = m.log.WithField("connection_id", m.id)
	m.hasher.WriteString(clientVersion)
	m.hasher.WriteString(serverVersion)

	return m
}

// ConnectionID identifies this machine's connection in logs.
func (m *Machine) ConnectionID() uuid.UUID { return m.id }

// State returns the human-readable name of the current state, for logging
// and tests.
func (m *Machine) State() string { return m.tag.String() }

// SessionID returns the exchange hash that identifies this connection. It is
// available once the exchange hash has been computed, from KeysExchanged
// onward; nil before that.
func (m *Machine) SessionID() []byte {
	if m.result == nil {
		return nil
	}

	return m.result.sessionID
}

func (m *Machine) logStep(step string) {
	m.log.WithField("state", m.tag.String()).Debug(step)
}

// StartKeyExchange generates our KexInit and transitions Idle -> KexSent.
// Panics with a *CallerError if called outside Idle.
func (m *Machine) StartKeyExchange() *message.KexInit {
	if m.tag != stateIdle {
		panic(newCallerMisuse("StartKeyExchange called outside Idle", m.tag))
	}

	var cookie [16]byte
	if _, err := io.ReadFull(m.rand, cookie[:]); err != nil {
		panic(newCallerMisuse("failed to draw kex cookie randomness: "+err.Error(), m.tag))
	}

	m.ourKexInit = newKexInit(cookie)
	m.tag = stateKexSent
	m.logStep("sent kex init")

	return m.ourKexInit
}

// HandleKexInit processes the peer's KexInit. It is legal from Idle (the
// peer's KexInit raced ahead of our own StartKeyExchange call) and from
// KexSent (the ordinary case). ourKexInit is non-nil only in the race case,
// meaning the caller must also send it. ecdhInit is non-nil only for the
// client role, which proceeds to the ECDH step as soon as negotiation
// succeeds; the server instead waits for HandleEcdhInit.
func (m *Machine) HandleKexInit(peer *message.KexInit) (ourKexInit *message.KexInit, ecdhInit *message.EcdhInit, err error) {
	switch m.tag {
	case stateIdle:
		var cookie [16]byte
		if _, randErr := io.ReadFull(m.rand, cookie[:]); randErr != nil {
			panic(newCallerMisuse("failed to draw kex cookie randomness: "+randErr.Error(), m.tag))
		}

		m.ourKexInit = newKexInit(cookie)
		ourKexInit = m.ourKexInit
	case stateKexSent:
		// ourKexInit already staged by StartKeyExchange.
	default:
		return nil, nil, sshkex.ErrCodeUnexpectedMessage.New("KexInit received outside Idle or KexSent")
	}

	m.peerKexInit = peer

	clientKI, serverKI := m.ourKexInit, peer
	if m.role.IsServer() {
		clientKI, serverKI = peer, m.ourKexInit
	}

	n, negErr := negotiate(clientKI, serverKI)
	if negErr != nil {
		return ourKexInit, nil, negErr
	}

	m.negotiated = n
	m.hasher.WriteString(encodeKexInit(clientKI))
	m.hasher.WriteString(encodeKexInit(serverKI))

	if m.role.IsServer() && expectingIncorrectGuess(m.ourKexInit, peer) {
		m.tag = stateAwaitingKexInitWrongGuess
		m.logStep("discarding peer's guessed packet")

		return ourKexInit, nil, nil
	}

	m.tag = stateAwaitingKexInit
	m.logStep("negotiated algorithms")

	if m.role.IsServer() {
		return ourKexInit, nil, nil
	}

	kp, genErr := exchange.GenerateKeyPair(m.rand)
	if genErr != nil {
		return ourKexInit, nil, sshkex.ErrCodeCryptoFailure.New("generate ephemeral key pair", genErr)
	}

	m.ephemeral = &kp
	m.tag = stateKexInitSent
	m.logStep("sent ecdh init")

	return ourKexInit, &message.EcdhInit{ClientEphemeralPublic: kp.Public[:]}, nil
}

// HandleEcdhInit processes the client's ephemeral public key: server role
// only. In AwaitingKexInitWrongGuess it discards the guessed packet and
// returns a nil reply, staying ready for the real one. Otherwise it computes
// the shared secret, signs the exchange hash with the host key, and commits
// straight through to KeysExchanged, building the transport protector.
func (m *Machine) HandleEcdhInit(msg *message.EcdhInit) (*message.EcdhReply, error) {
	if !m.role.IsServer() {
		panic(newCallerMisuse("HandleEcdhInit called on a client-role Machine", m.tag))
	}

	switch m.tag {
	case stateAwaitingKexInitWrongGuess:
		m.tag = stateAwaitingKexInit
		m.logStep("discarded wrongly-guessed ecdh init")

		return nil, nil
	case stateAwaitingKexInit:
		// proceed
	default:
		return nil, sshkex.ErrCodeUnexpectedMessage.New("EcdhInit received outside AwaitingKexInit")
	}

	kp, err := exchange.GenerateKeyPair(m.rand)
	if err != nil {
		return nil, sshkex.ErrCodeCryptoFailure.New("generate ephemeral key pair", err)
	}

	m.ephemeral = &kp

	var clientPub [32]byte
	if len(msg.ClientEphemeralPublic) != 32 {
		return nil, sshkex.ErrCodeProtocolViolation.New("client ephemeral public value must be 32 bytes")
	}

	copy(clientPub[:], msg.ClientEphemeralPublic)

	secret, err := exchange.SharedSecret(kp.Private, clientPub)
	if err != nil {
		return nil, sshkex.ErrCodeCryptoFailure.New("compute shared secret", err)
	}

	hostKeyBlob := encodeEd25519PublicKeyBlob(m.role.HostKey().Public().(ed25519.PublicKey))

	m.hasher.WriteString(hostKeyBlob)
	m.hasher.WriteString(msg.ClientEphemeralPublic)
	m.hasher.WriteString(kp.Public[:])
	m.hasher.WriteMPInt(secret)

	H := m.hasher.Sum()
	sig := ed25519.Sign(m.role.HostKey(), H)

	m.result = &kexResult{
		exchangeHash: H,
		sharedSecret: exchange.EncodeMPInt(secret),
		sessionID:    H,
	}

	protector, err := buildProtector(m.role, m.result)
	if err != nil {
		return nil, err
	}

	m.protector = protector
	m.tag = stateKeysExchanged
	m.logStep("keys exchanged")

	return &message.EcdhReply{
		ServerHostKey:         hostKeyBlob,
		ServerEphemeralPublic: kp.Public[:],
		Signature:             encodeEd25519SignatureBlob(sig),
	}, nil
}

// HandleEcdhReply processes the server's reply: client role only. It
// verifies the host key signature over the exchange hash, derives the
// shared secret and transport keys, and commits to KeysExchanged.
func (m *Machine) HandleEcdhReply(msg *message.EcdhReply) (*message.NewKeys, error) {
	if m.role.IsServer() {
		panic(newCallerMisuse("HandleEcdhReply called on a server-role Machine", m.tag))
	}

	if m.tag != stateKexInitSent {
		return nil, sshkex.ErrCodeUnexpectedMessage.New("EcdhReply received outside KexInitSent")
	}

	var serverPub [32]byte
	if len(msg.ServerEphemeralPublic) != 32 {
		return nil, sshkex.ErrCodeProtocolViolation.New("server ephemeral public value must be 32 bytes")
	}

	copy(serverPub[:], msg.ServerEphemeralPublic)

	secret, err := exchange.SharedSecret(m.ephemeral.Private, serverPub)
	if err != nil {
		return nil, sshkex.ErrCodeCryptoFailure.New("compute shared secret", err)
	}

	m.hasher.WriteString(msg.ServerHostKey)
	m.hasher.WriteString(m.ephemeral.Public[:])
	m.hasher.WriteString(msg.ServerEphemeralPublic)
	m.hasher.WriteMPInt(secret)

	H := m.hasher.Sum()

	hostKey, err := parseEd25519PublicKeyBlob(msg.ServerHostKey)
	if err != nil {
		return nil, sshkex.ErrCodeProtocolViolation.New("malformed server host key blob", err)
	}

	sig, err := parseEd25519SignatureBlob(msg.Signature)
	if err != nil {
		return nil, sshkex.ErrCodeProtocolViolation.New("malformed server signature blob", err)
	}

	if !ed25519.Verify(hostKey, H, sig) {
		return nil, sshkex.ErrCodeCryptoFailure.New("server host key signature verification failed")
	}

	m.result = &kexResult{
		exchangeHash: H,
		sharedSecret: exchange.EncodeMPInt(secret),
		sessionID:    H,
	}

	protector, err := buildProtector(m.role, m.result)
	if err != nil {
		return nil, err
	}

	m.protector = protector
	m.tag = stateKeysExchanged
	m.logStep("keys exchanged")

	return &message.NewKeys{}, nil
}

// SendNewKeys confirms that this side is about to transmit NEWKEYS,
// installing the outbound half of the transport protector. Panics with a
// *CallerError if called outside KeysExchanged or NewKeysReceived.
func (m *Machine) SendNewKeys() (*transport.Protector, error) {
	switch m.tag {
	case stateKeysExchanged:
		m.tag = stateNewKeysSent
	case stateNewKeysReceived:
		m.tag = stateComplete
	default:
		panic(newCallerMisuse("SendNewKeys called outside KeysExchanged or NewKeysReceived", m.tag))
	}

	m.logStep("sent new keys")

	return m.protector, nil
}

// HandleNewKeys processes the peer's NEWKEYS, installing the inbound half of
// the transport protector.
func (m *Machine) HandleNewKeys() (*transport.Protector, error) {
	switch m.tag {
	case stateKeysExchanged:
		m.tag = stateNewKeysReceived
	case stateNewKeysSent:
		m.tag = stateComplete
	default:
		return nil, sshkex.ErrCodeUnexpectedMessage.New("NewKeys received outside KeysExchanged or NewKeysSent")
	}

	m.logStep("received new keys")

	return m.protector, nil
}

func newCallerMisuse(message string, tag stateTag) *sshkex.CallerError {
	return sshkex.NewCallerError(message + " (state=" + tag.String() + ")")
}

func encodeEd25519PublicKeyBlob(pub ed25519.PublicKey) []byte {
	buf := exchange.WriteString(nil, []byte("ssh-ed25519"))
	return exchange.WriteString(buf, pub)
}

func encodeEd25519SignatureBlob(sig []byte) []byte {
	buf := exchange.WriteString(nil, []byte("ssh-ed25519"))
	return exchange.WriteString(buf, sig)
}

func readSSHString(buf []byte) (field, rest []byte, err error) {
	if len(buf) < 4 {
		return nil, nil, sshkex.ErrCodeProtocolViolation.New("truncated ssh string")
	}

	n := binary.BigEndian.Uint32(buf[:4])
	buf = buf[4:]

	if uint64(len(buf)) < uint64(n) {
		return nil, nil, sshkex.ErrCodeProtocolViolation.New("truncated ssh string")
	}

	return buf[:n], buf[n:], nil
}

func parseEd25519PublicKeyBlob(blob []byte) (ed25519.PublicKey, error) {
	name, rest, err := readSSHString(blob)
	if err != nil {
		return nil, err
	}

	if string(name) != "ssh-ed25519" {
		return nil, sshkex.ErrCodeProtocolViolation.New("unsupported host key algorithm: " + string(name))
	}

	key, _, err := readSSHString(rest)
	if err != nil {
		return nil, err
	}

	if len(key) != ed25519.PublicKeySize {
		return nil, sshkex.ErrCodeProtocolViolation.New("malformed ed25519 public key")
	}

	return ed25519.PublicKey(key), nil
}

func parseEd25519SignatureBlob(blob []byte) ([]byte, error) {
	name, rest, err := readSSHString(blob)
	if err != nil {
		return nil, err
	}

	if string(name) != "ssh-ed25519" {
		return nil, sshkex.ErrCodeProtocolViolation.New("unsupported signature algorithm: " + string(name))
	}

	sig, _, err := readSSHString(rest)
	if err != nil {
		return nil, err
	}

	if len(sig) != ed25519.SignatureSize {
		return nil, sshkex.ErrCodeProtocolViolation.New("malformed ed25519 signature")
	}

	return sig, nil
}

// encodeKexInit renders a KexInit the same way both peers always will, for
// exchange-hash accumulation. This is not the wire codec (out of scope
// here); it only needs to be a canonical, order-preserving encoding that
// both ends of this library agree on.
func encodeKexInit(ki *message.KexInit) []byte {
	var buf []byte
	buf = append(buf, ki.Cookie[:]...)
	buf = exchange.WriteString(buf, []byte(joinNames(ki.KexAlgorithms)))
	buf = exchange.WriteString(buf, []byte(joinNames(ki.ServerHostKeyAlgorithms)))
	buf = exchange.WriteString(buf, []byte(joinNames(ki.CiphersClientToServer)))
	buf = exchange.WriteString(buf, []byte(joinNames(ki.CiphersServerToClient)))
	buf = exchange.WriteString(buf, []byte(joinNames(ki.MACsClientToServer)))
	buf = exchange.WriteString(buf, []byte(joinNames(ki.MACsServerToClient)))
	buf = exchange.WriteString(buf, []byte(joinNames(ki.CompressionClientToServer)))
	buf = exchange.WriteString(buf, []byte(joinNames(ki.CompressionServerToClient)))
	buf = exchange.WriteString(buf, []byte(joinNames(ki.LanguagesClientToServer)))
	buf = exchange.WriteString(buf, []byte(joinNames(ki.LanguagesServerToClient)))

	if ki.FirstKexPacketFollows {
		buf = append(buf, 1)
	} else {
		buf = append(buf, 0)
	}

	buf = append(buf, byte(ki.Reserved>>24), byte(ki.Reserved>>16), byte(ki.Reserved>>8), byte(ki.Reserved))

	return buf
}

func joinNames(names []string) string {
	out := ""
	for i, n := range names {
		if i > 0 {
			out += ","
		}

		out += n
	}

	return out
}

func buildProtector(role sshkex.Role, result *kexResult) (*transport.Protector, error) {
	ivCS := exchange.DeriveKey(exchange.LetterIVClientToServer, result.sharedSecret, result.exchangeHash, result.sessionID, transport.IVSize)
	ivSC := exchange.DeriveKey(exchange.LetterIVServerToClient, result.sharedSecret, result.exchangeHash, result.sessionID, transport.IVSize)
	encCS := exchange.DeriveKey(exchange.LetterEncClientToServer, result.sharedSecret, result.exchangeHash, result.sessionID, transport.KeySize)
	encSC := exchange.DeriveKey(exchange.LetterEncServerToClient, result.sharedSecret, result.exchangeHash, result.sessionID, transport.KeySize)
	// Integrity streams are derived for completeness with RFC 4253 §7.2 but
	// unused: aes256-gcm@openssh.com authenticates as an AEAD and carries no
	// separate MAC.
	_ = exchange.DeriveKey(exchange.LetterIntClientToServer, result.sharedSecret, result.exchangeHash, result.sessionID, transport.KeySize)
	_ = exchange.DeriveKey(exchange.LetterIntServerToClient, result.sharedSecret, result.exchangeHash, result.sessionID, transport.KeySize)

	outboundKey, outboundIV, inboundKey, inboundIV := encCS, ivCS, encSC, ivSC
	if role.IsServer() {
		outboundKey, outboundIV, inboundKey, inboundIV = encSC, ivSC, encCS, ivCS
	}

	protector, err := transport.New(outboundKey, outboundIV, inboundKey, inboundIV)
	if err != nil {
		return nil, sshkex.ErrCodeCryptoFailure.New("build transport protector", err)
	}

	return protector, nil
}
