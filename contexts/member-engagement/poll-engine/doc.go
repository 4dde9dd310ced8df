// Package pollengine implements member polls inside the member-engagement
// context.
//
// The module owns the poll lifecycle (create, edit, close, delete), ballot
// casting with replace-all semantics, option growth by members, tally reads
// and the deadline sweep that closes expired polls. Storage, the member
// directory and the event bus sit behind ports; the memory, postgres and
// sqlite adapters implement them.
package pollengine
