// Package redis mirrors the live price table into Redis after every simulator tick
// and protects the mirror client with a circuit breaker.
package redis
