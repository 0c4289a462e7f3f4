package store

import "errors"

// ErrNotFound is returned when a record does not exist. For token lookups it
// also covers revoked and expired records so callers cannot probe which case
// applies.
var ErrNotFound = errors.New("record not found")

// ErrDuplicateUser is returned by UserStore.Create when the username is
// already taken.
var ErrDuplicateUser = errors.New("username already exists")

// ErrDuplicateToken is returned by RefreshTokenStore.Create when a record
// with the same ID already exists. Only the migration path can hit this;
// normal issuance uses fresh random IDs.
var ErrDuplicateToken = errors.New("token id already exists")
