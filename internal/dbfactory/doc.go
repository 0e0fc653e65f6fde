// Package dbfactory manages the lifecycle of a database session and hands out
// typed, mode-stamped persistence contexts.
//
// A Factory owns one connection and at most one transaction:
//
//	f, err := dbfactory.New(store, builders, dbfactory.WithLogger(log))
//	if err != nil {
//	    return err
//	}
//	defer f.DisposeInto(&err)
//
//	if err := f.OpenTransactional(ctx, sql.LevelReadCommitted); err != nil {
//	    return err
//	}
//	qc, err := dbfactory.ContextFor[*quiz.Context](f)
//	...
//	return f.Commit()
//
// Typed contexts are registered once per type with Register; the factory
// looks the constructor up by type instead of instantiating it reflectively.
//
// Modes:
//   - ReadOnly contexts never track query results and never enlist. Every save
//     entry point fails with ErrReadOnly before touching the store.
//   - ReadWrite contexts detect changes automatically and enlist in the
//     factory transaction unless the store is ephemeral.
//
// A context can be demoted to ReadOnly with SetMode but never promoted back.
//
// Dispose is the only release point. It rolls back an uncommitted
// transaction and then closes the connection; a second call is a no-op.
// Connections and transactions passed to Attach belong to the caller and are
// neither rolled back nor closed.
package dbfactory
