// Package protocol implements the reconf wire codec.
//
// A message is a JSON object of the form
//
//	{"verb": "PATCH", "msg": "CONFIGURATION", "data": [...], "id": "brave-otter-jumps-3f9a"}
//
// Configuration changes travel as RFC 6902 patch sets computed by [Diff] and
// applied by [Apply]. Raw byte values use the {"type":"Buffer","data":[...]}
// convention and decode into [Buffer].
//
// Nothing in this package performs I/O.
package protocol
