// Package client contains the client-side building blocks that talk to the
// outside world and bootstrap local persistence.
//
// # Overview
//
// The package provides:
//  1. The backend contract (see API) and its REST implementation,
//     BackendClient, which sends every call through the authenticated
//     transport: request-upload, confirm, delete placeholder, health ping.
//  2. The storage provider contract (see Storage) and StorageClient, which
//     posts the signed multipart form directly to the provider and turns
//     its answer into a models.StorageResult.
//  3. Local persistence bootstrap (InitDatabase, RunMigrations): an SQLite
//     database with the embedded goose migrations applied.
//
// # Error Handling
//
// HTTP failures are mapped onto the sentinels in internal/common:
// ErrUnauthorized, ErrNetworkUnavailable, ErrRejected and
// ErrInvalidUploadResponse. Match them with errors.Is.
//
// All operations accept context.Context and honour cancellation; a cancelled
// call returns the context error rather than ErrNetworkUnavailable.
package client
