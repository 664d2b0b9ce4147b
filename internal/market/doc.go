// Package market holds the price table and the random-walk simulator that mutates it.
//
// PriceTable is safe for concurrent use: readers get deep copies under a read lock,
// and the simulator rewrites the whole table under one write lock per tick.
package market
