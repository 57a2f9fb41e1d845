// Package repository serializes all mutations of group records into
// read-modify-write cycles against the record store. The sentinel
// values below let handlers translate failures into HTTP responses
// with errors.Is instead of string matching.
package repository

import "errors"

// ErrNotFound is returned when the addressed group does not exist.
// Handlers translate this into a 404; callers must treat it as
// "session is gone or never existed" and stop retrying.
var ErrNotFound = errors.New("group not found")

// ErrMemberNotFound is returned when an operation addresses a member
// uuid that is not part of the group. Also a 404 at the HTTP layer.
var ErrMemberNotFound = errors.New("member not found")

// ErrUnauthorized is returned when a non-Owner invokes an Owner-only
// status transition. Raised before any store write so a rejected
// command never leaves a partial update behind. Handlers map it to 403.
var ErrUnauthorized = errors.New("unauthorized")

// ErrValidation is returned for malformed input, such as an explicit
// non-positive quantity or an unknown selection op. Handlers map it
// to 400.
var ErrValidation = errors.New("invalid payload")

// ErrConflict is returned when the optimistic-concurrency retry budget
// is exhausted because the record kept moving under us. Handlers map
// it to 409; clients may simply re-issue the command.
var ErrConflict = errors.New("conflict")
