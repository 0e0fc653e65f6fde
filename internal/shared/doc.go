// Package shared contains the error taxonomy used across the module.
//
// # Error Types and Classification
//
// Sentinel errors describe the failure classes of the session layer:
//
//   - ErrArgument: a required argument or collaborator is missing or blank
//   - ErrNotInitialized: a session was used before it was opened
//   - ErrInvalidOperation: a usage contract was violated (read-only write,
//     commit without transaction, read-only to read-write promotion)
//   - ErrConnection: the relational engine could not be reached
//   - ErrTimeout: an operation timed out
//
// Driver errors (constraint violations and the like) are never re-classified;
// they pass through wrapped with %w.
//
// Use KindOf() to classify errors into categories:
//
//	switch shared.KindOf(err) {
//	case shared.KindInvalidOperation:
//	    // programming error: fail fast
//	case shared.KindConnection:
//	    // engine unavailable: caller decides about retry
//	}
//
// Or use predicate functions:
//
//	if shared.IsInvalidOperation(err) {
//	    ...
//	}
//
// # Release errors
//
// CloseInto joins the error of a release function (rollback, close) after the
// primary error so neither one is lost:
//
//	func run(f *dbfactory.Factory) (err error) {
//	    defer shared.CloseInto(&err, f.Dispose)
//	    ...
//	}
package shared
