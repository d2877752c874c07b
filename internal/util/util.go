// Package util provides common utilities shared across the codebase.
package util

import (
	"github.com/google/uuid"
	"github.com/lithammer/shortuuid/v4"
)

// GenUUID generates a new UUID string, used for batch and correlation
// identifiers in logs.
func GenUUID() string {
	return uuid.NewString()
}

// GenShortUUID generates a compact URL-safe unique identifier,
// used for schedule UIDs surfaced to merchants.
func GenShortUUID() string {
	return shortuuid.New()
}
