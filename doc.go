// Package sshkex implements the key exchange and user authentication
// state machines of an SSH transport: the Curve25519/AES-256-GCM
// handshake that derives session keys and installs transport
// protection, and the password user authentication exchange that
// follows it.
//
// Wire serialization, the connection I/O pipeline, and channel
// multiplexing are external collaborators and are not implemented
// here; this package only consumes and produces typed messages.
package sshkex
