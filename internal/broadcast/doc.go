// Package broadcast fans one message out to a recipient list, one send at a
// time, and accounts for every delivery.
//
// Run never aborts on a recipient error: each failure is recorded with its
// reason and the loop moves on. Cancelling the context stops the loop; the
// recipients that were never attempted are reported as failed ("canceled").
//
// Recent jobs are kept in a bounded in-memory status table (count + TTL) so
// operators can ask for the last result.
package broadcast
