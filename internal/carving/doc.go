// Package carving prepares unallocated space for file carving.
//
// SectorConcat copies the image's unallocated ranges, in ascending offset
// order, into one artifact (carve/unalloc.bin by default) until a size ceiling
// is reached, records the capture as a carve batch, and enqueues a single
// Carve task whose id is the batch id. The batch keeps a mapping from artifact
// offsets back to image offsets so carved files can be located in the image.
package carving
