// Package detect finds sensitive regions in images.
//
// The Command detector runs an external program once per image. The program
// receives the path of a temporary copy of the image and prints a JSON array
// of detections on stdout, each with a label, a score and a box. Boxes are
// read as corner pairs (xyxy) or origin plus size (xywh) depending on
// configuration and are clamped to the image bounds by the caller.
//
// Filter narrows detections to the configured censored labels.
package detect
