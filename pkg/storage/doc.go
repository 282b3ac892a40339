// Package storage persists acquisition records and owns the directory that
// downloaded audio is written to.
//
// Records are kept in one of two RecordStore implementations:
//   - PostgresStore writes to a table keyed by a unique url column
//   - BadgerStore keeps records in an embedded badgerhold database
//
// Both treat the url as the identity of a record, so inserting the same
// url twice is a no-op and IsNew reports false once a url is stored.
//
// Usage:
//
//	store, err := storage.NewPostgresStore(ctx, cfg.Storage.Postgres, log)
//	if err != nil {
//	    return err
//	}
//	defer store.Close()
//
//	if ok, _ := store.IsNew(ctx, url); ok {
//	    _, err = store.Insert(ctx, record)
//	}
package storage
