package cashbook

import "errors"

// ErrReadOnlySession is returned when a viewer session attempts a multi-step
// operation such as closing the day. Plain entry mutations on a viewer are
// silent no-ops instead.
var ErrReadOnlySession = errors.New("session is read-only")

// ErrDeclined is returned when the confirmation gate answers no to a
// day-end close.
var ErrDeclined = errors.New("day-end close declined")

// ErrArchivalPending is returned when an operation cannot proceed because a
// partially-applied day-end close needs to be resumed first.
var ErrArchivalPending = errors.New("day-end archival pending")

// ErrSyncIncomplete is returned when a day-end close or recovery is attempted
// before the archived history and the day-end marker finished their initial
// replay. History is rewritten whole on every close, so acting on a partial
// view could erase days archived by another device.
var ErrSyncIncomplete = errors.New("initial sync incomplete")
