package sshkex

import (
	"strings"

	"sshkex/message"
)

// AvailableMethods is a bitset over the three SSH user authentication methods
// this module's data model knows about. Its wire form is the ordered,
// comma-separated name-list [password, publickey, hostbased] filtered to the
// members present, per RFC 4252.
type AvailableMethods byte

const (
	// MethodBitPassword marks "password" as available.
	MethodBitPassword AvailableMethods = 1 << iota
	// MethodBitPublicKey marks "publickey" as available.
	MethodBitPublicKey
	// MethodBitHostBased marks "hostbased" as available.
	MethodBitHostBased
)

// wireOrder fixes the order methods appear in on the wire: password first,
// then publickey, then hostbased, matching RFC 4252's conventional ordering.
var wireOrder = []struct {
	bit  AvailableMethods
	kind message.AuthMethodKind
}{
	{MethodBitPassword, message.MethodPassword},
	{MethodBitPublicKey, message.MethodPublicKey},
	{MethodBitHostBased, message.MethodHostBased},
}

// Has reports whether m is a member of the set.
func (a AvailableMethods) Has(m AvailableMethods) bool {
	return a&m != 0
}

// Names returns the wire name-list for the set, in RFC 4252's conventional
// order, filtered to members present.
func (a AvailableMethods) Names() []string {
	names := make([]string, 0, len(wireOrder))
	for _, w := range wireOrder {
		if a.Has(w.bit) {
			names = append(names, w.kind.WireName())
		}
	}

	return names
}

// String renders the set as it would appear in a UserAuthFailure authentications list.
func (a AvailableMethods) String() string {
	return strings.Join(a.Names(), ",")
}

// ParseAvailableMethods translates a wire name-list (as carried by
// UserAuthFailure.Authentications) into an AvailableMethods set. Unknown
// tokens are ignored, not promoted to errors, per spec.md §6.
func ParseAvailableMethods(names []string) AvailableMethods {
	var a AvailableMethods

	for _, name := range names {
		for _, w := range wireOrder {
			if w.kind.WireName() == name {
				a |= w.bit
			}
		}
	}

	return a
}
