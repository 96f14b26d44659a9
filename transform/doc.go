// Package transform implements the optional stages a cache payload passes
// through on its way to storage: gzip compression on a worker pool, then
// authenticated encryption (XChaCha20-Poly1305).
//
// On write the order is compress-then-encrypt — ciphertext does not
// compress. On read the inverse stages run as decrypt-then-decompress.
// Both stages are independent: a cache may enable either, both, or neither.
//
// Compression round trips are correlated by generated request ids and
// bounded by a timeout; a timed-out or failed stage is reported to the
// caller, which falls back to the untransformed payload.
package transform
