// Package content owns the site's editable content document.
//
// A [Document] is loaded and saved as a single unit through a [Store]. The
// store is bound to one [Backend] for its lifetime:
//   - [FileBackend]: the local seed file, read and overwritten in place
//   - [BlobBackend]: one object in remote blob storage, falling back to the
//     seed file for reads when the object is missing or unreadable
//
// Decoding is lenient. Missing fields take defaults, unknown fields are
// ignored, and list items without an ID get a fresh one. Saving is strict:
// the document must pass [Validate] first.
package content
