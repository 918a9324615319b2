// Package storage persists debug artifacts: a local directory store, a
// Cloudinary uploader and a mirror that uploads local artifacts with retries
// and can drop the local copy once the upload succeeds.
package storage
