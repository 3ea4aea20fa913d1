// Package uploadjobs provides the durable FIFO behind the offline upload queue.
//
// # Overview
//
// Each row is the latest snapshot of one models.UploadJob keyed by its client
// id. Jobs are listed in insertion order; progress is recorded by replacing
// the snapshot as a whole. A SQLite-backed implementation (SQLiteRepository)
// persists data via a dbx.DBTX (*sql.DB or *sql.Tx).
//
// Typical Usage
//
//	repo := uploadjobs.NewSQLiteRepository(db)
//	_ = repo.Enqueue(ctx, job)
//	jobs, _ := repo.List(ctx)
//	_ = repo.Replace(ctx, jobs[0].Failed(err))
//	_ = repo.Delete(ctx, jobs[0].ClientID)
package uploadjobs
