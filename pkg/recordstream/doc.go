// Package recordstream serves individually addressable records from
// self-describing containers read through a chunked.Reader.
//
// A container starts with a JSON header line listing the byte length of
// every record; the records follow back to back. Three variants are
// supported:
//
//   - JSONL: one JSON record per line ([JSONLClient]).
//   - QJB1: a magic line, a JSON header, a little-endian uint32 size table
//     and concatenated binary frames ([QJB1Client]).
//   - Position decode fields: JSONL records holding base64 uint16 arrays
//     ([PositionDecodeFieldClient]).
//
// A client reads its header once. If that fails the failure is logged and
// kept: every later call returns an error matching domain.ErrNotInitialized
// and no retry is attempted.
package recordstream
