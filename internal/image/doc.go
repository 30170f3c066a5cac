// Package image opens evidence and extracts its file system into the case.
//
// Two backends exist. A raw image is a byte-for-byte volume copy; without a
// file system decoder the whole volume is reported as unallocated space so
// carving still sees every byte. A directory image is a logical collection
// (an exported or mounted file system); every regular file becomes a file
// record and there is no unallocated space.
package image
