// Package protocol implements the framed message channel between the native
// host and the browser extension.
//
// Every frame is a 4-byte unsigned length in host byte order followed by
// exactly that many bytes of a UTF-8 JSON object. The Reader decodes inbound
// frames into Inbound messages and the Writer serializes outbound Result and
// Status messages, one frame per Write call so concurrent writers never
// interleave.
//
// Framing violations (a stream ending inside a frame, an oversized frame, a
// body that is not a JSON object) are reported with services.ErrProtocol and
// are fatal for the host. A clean end of input is reported as io.EOF.
package protocol
