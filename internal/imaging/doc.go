// Package imaging decodes source images, blackens detected regions,
// downscales to a longest-edge bound and encodes the censored artifact.
//
// JPEG, PNG, GIF, WebP and BMP inputs are decoded. Output is always JPEG at a
// fixed quality so the same input produces byte-identical artifacts.
package imaging
