// Package notify consumes the tenant-wide billing stream and the activity
// stream and folds them into a notification feed plus running usage totals.
//
// Both streams are best-effort: parse failures and transport errors are
// logged at debug and otherwise ignored. Nothing in this package ever
// touches conversation chat state.
package notify
