// Package mailbox implements the Response Mailbox: a per-code buffer of
// responses posted by devices and consumed by controller reads.
//
// Reads are destructive. ReadRecent selects the newest responses within a
// window and deletes exactly those rows in the same write transaction, so
// no two reads ever observe the same response. Responses nobody reads are
// removed by PurgeOlderThan once they age past the retention window.
package mailbox
