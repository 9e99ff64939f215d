// Package wire implements the rtcshare frame format and its multipart
// fragmentation.
//
// A frame is one JSON header line followed by an optional raw binary
// payload:
//
//	{"type":"readFileResponse"}\n<payload bytes>
//
// Frames larger than a transport's maximum message size are split by
// Fragment into parts of the form
//
//	/multipart/<id>/<partIndex>/<numParts>/<raw slice>
//
// and put back together by a Reassembler, which accepts parts in any
// order and passes unmarked messages through untouched.
package wire
