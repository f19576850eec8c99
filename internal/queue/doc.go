// Package queue holds synthesis jobs in submission order while they run
// concurrently. It releases each result only after every earlier one has been
// released and bounds the number of jobs in flight.
package queue
