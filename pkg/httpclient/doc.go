// Package httpclient is the single point of HTTP contact with ethoscope
// devices. It exposes one operation, GetJSON, with a typed error split
// (NetworkError for transport failures, ScanException for bad payloads)
// and bounded exponential backoff retry.
//
// Retries are transparent: GetJSON's caller only ever sees the final
// outcome. The underlying net/http error type never escapes this package.
package httpclient
