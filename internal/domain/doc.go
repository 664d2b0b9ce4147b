// Package domain defines the core domain types and interfaces.
//
// Concept-oriented files (quote.go, script.go, alert.go, errors.go) hold shared types
// and the store contracts used across adapters. No implementation code beyond small
// value helpers. Interfaces that only one consumer needs live with that consumer.
package domain
