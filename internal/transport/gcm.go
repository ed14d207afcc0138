// Package transport implements the Transport Protection Factory: given
// derived per-direction key material, it builds the aes256-gcm@openssh.com
// protector that the connection I/O pipeline installs on NEWKEYS.
//
// Grounded on dennis-tra/pcp's pkg/crypt/crypt.go (stdlib crypto/aes +
// crypto/cipher.NewGCM), adapted from its random-nonce-per-message scheme to
// OpenSSH's fixed-IV-plus-incrementing-invocation-counter scheme: the
// aes-gcm@openssh.com cipher never puts a nonce on the wire, so the 12-byte
// IV derived at key-exchange time is instead incremented in place after every
// sealed/opened packet, independently per direction.
package transport

import (
	"crypto/aes"
	"crypto/cipher"
	"errors"
)

const (
	// KeySize is the AES-256 key length in bytes.
	KeySize = 32
	// IVSize is the AES-GCM nonce length in bytes.
	IVSize = 12
)

var errIVSize = errors.New("transport: iv must be 12 bytes")

// direction holds one direction's live AEAD state: the cipher and the
// mutable fixed-IV-plus-counter nonce.
type direction struct {
	aead cipher.AEAD
	iv   [IVSize]byte
}

func newDirection(key, iv []byte) (*direction, error) {
	if len(iv) != IVSize {
		return nil, errIVSize
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}

	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}

	d := &direction{aead: aead}
	copy(d.iv[:], iv)

	return d, nil
}

// incrementInvocationCounter increments the low 8 bytes of the IV as a
// big-endian counter, per RFC 5647's invocation-counter field.
func (d *direction) incrementInvocationCounter() {
	for i := IVSize - 1; i >= IVSize-8; i-- {
		d.iv[i]++
		if d.iv[i] != 0 {
			return
		}
	}
}

func (d *direction) seal(plaintext, additionalData []byte) []byte {
	sealed := d.aead.Seal(nil, d.iv[:], plaintext, additionalData)
	d.incrementInvocationCounter()

	return sealed
}

func (d *direction) open(ciphertext, additionalData []byte) ([]byte, error) {
	plaintext, err := d.aead.Open(nil, d.iv[:], ciphertext, additionalData)
	if err != nil {
		return nil, err
	}

	d.incrementInvocationCounter()

	return plaintext, nil
}

// Protector encapsulates the per-direction AES-256-GCM key material that
// encrypts/authenticates framed SSH packets, once installed by the I/O layer.
// Each direction advances its own nonce independently.
type Protector struct {
	outbound *direction
	inbound  *direction
}

// New builds a Protector from the six derived keys/IVs (as RFC 4253 §7.2
// produces them), already split into this connection's outbound and inbound
// directions by the caller (which depends on Role).
func New(outboundKey, outboundIV, inboundKey, inboundIV []byte) (*Protector, error) {
	out, err := newDirection(outboundKey, outboundIV)
	if err != nil {
		return nil, err
	}

	in, err := newDirection(inboundKey, inboundIV)
	if err != nil {
		return nil, err
	}

	return &Protector{outbound: out, inbound: in}, nil
}

// SealOutbound authenticates and encrypts one outbound packet payload,
// advancing the outbound invocation counter.
func (p *Protector) SealOutbound(plaintext, additionalData []byte) []byte {
	return p.outbound.seal(plaintext, additionalData)
}

// OpenInbound authenticates and decrypts one inbound packet payload,
// advancing the inbound invocation counter.
func (p *Protector) OpenInbound(ciphertext, additionalData []byte) ([]byte, error) {
	return p.inbound.open(ciphertext, additionalData)
}
