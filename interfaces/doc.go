// Package interfaces defines the core contracts of the certificate
// authentication backend, separating interface definitions from
// implementations.
//
// # Storage Interfaces
//
// KeyValueStore: Ephemeral TTL-bounded key-value storage shared with the
// signing authority, including the transactional replace-and-push that
// submits a digest onto the signing queue.
//
// # Error Taxonomy
//
// Error: Tagged error carrying an ErrorKind deciding the wire translation:
//
//   - ConsistencyError: the client sent something structurally wrong; the
//     message is returned verbatim with an error status
//   - ProcessError: a well-formed request that cannot proceed; the message
//     is returned with a fail status
//   - SystemError: an internal fault; logged loudly and replaced with a
//     generic message on the wire
//
// KindOf and ErrorMessage extract the kind and client-facing message from
// wrapped error chains; untagged errors count as SystemError.
package interfaces
