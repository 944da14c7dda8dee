// Package heif2uhdr converts a single HEIF/AVIF still image into a raw P010
// buffer, a raw planar C420 buffer, or an UltraHDR gain-map JPEG.
//
// Decoding is delegated to libheif; everything downstream of the decoded
// planes (repacking, HDR rendering, gain-map generation, JPEG/R container
// assembly) is implemented in Go. The pipeline is single-threaded and
// processes exactly one image per invocation.
package heif2uhdr
