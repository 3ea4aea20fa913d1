// Package metadata keeps device-level values, such as the token-store salt,
// in the local database.
package metadata

import "context"

// KeyDeviceSalt holds the argon2 salt for the credential sealing key.
const KeyDeviceSalt = "device_salt"

type Repository interface {
	// SetIfAbsent stores value unless key already has one, and returns the
	// value that ends up stored.
	SetIfAbsent(ctx context.Context, key string, value []byte) ([]byte, error)
}
