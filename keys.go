package cashbook

import "github.com/IndikaEK123456/Cash-Book-5/store"

// DefaultNamespace is the application namespace under which all session keys
// live unless the caller picks another one.
const DefaultNamespace = "cashbook"

// Well-known key names under one session.
const (
	colOutParty = "outparty"
	colMain     = "main"

	colMeta     = "meta"
	keyBalance  = "balance"
	keyRates    = "rates"
	keyHistory  = "history"
	keyPresence = "presence"
	keyDayEnd   = "dayend"
)

// keyring holds the validated well-known paths of one session:
// (namespace, sessionID, collection[, key]).
type keyring struct {
	outParty store.Path
	main     store.Path
	balance  store.Path
	rates    store.Path
	history  store.Path
	presence store.Path
	dayEnd   store.Path
}

func newKeyring(namespace, sessionID string) (keyring, error) {
	base, err := store.NewPath(namespace, sessionID)
	if err != nil {
		return keyring{}, err
	}
	meta := base.Child(colMeta)
	return keyring{
		outParty: base.Child(colOutParty),
		main:     base.Child(colMain),
		balance:  meta.Child(keyBalance),
		rates:    meta.Child(keyRates),
		history:  meta.Child(keyHistory),
		presence: meta.Child(keyPresence),
		dayEnd:   meta.Child(keyDayEnd),
	}, nil
}
