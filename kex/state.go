package kex

// stateTag names the current node of the key exchange state machine, per
// spec.md §3.2. Machine keeps the fields of every stage in one struct;
// every method switches on tag first and rejects calls illegal for it.
type stateTag byte

const (
	stateIdle stateTag = iota
	stateKexSent
	stateAwaitingKexInitWrongGuess
	stateAwaitingKexInit

	// stateKexInitReceived corresponds to spec.md §3.2's KexInitReceived
	// ("server: processed client's ECDH-init, ready to send reply"). It is
	// never assigned to m.tag: HandleEcdhInit computes the reply and commits
	// straight through to stateKeysExchanged in one call (see the kex API
	// note in DESIGN.md), since the compute/confirm split that
	// variant models has no separate behavior once wire serialization is out
	// of scope. Kept as a named value so this enum still lists all ten
	// variants spec.md §3.2 names, not nine.
	stateKexInitReceived

	stateKexInitSent
	stateKeysExchanged
	stateNewKeysReceived
	stateNewKeysSent
	stateComplete
)

func (t stateTag) String() string {
	switch t {
	case stateIdle:
		return "Idle"
	case stateKexSent:
		return "KexSent"
	case stateAwaitingKexInitWrongGuess:
		return "AwaitingKexInitWrongGuess"
	case stateAwaitingKexInit:
		return "AwaitingKexInit"
	case stateKexInitReceived:
		return "KexInitReceived"
	case stateKexInitSent:
		return "KexInitSent"
	case stateKeysExchanged:
		return "KeysExchanged"
	case stateNewKeysReceived:
		return "NewKeysReceived"
	case stateNewKeysSent:
		return "NewKeysSent"
	case stateComplete:
		return "Complete"
	default:
		return "Unknown"
	}
}
