// Package memory holds process-local implementations of the domain stores.
// Contents are lost on restart.
package memory
