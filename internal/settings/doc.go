// Package settings provides the persistent, hierarchically namespaced
// configuration store shared by the host and every loaded module.
//
// # Layout
//
// Settings live in a single JSON document. Top-level keys are module
// namespaces, one per module identifier; reserved non-module top-level
// keys hold global settings. Within a namespace, values are addressed by
// dot-separated paths:
//
//	{
//	  "moderation": {
//	    "warn_threshold": 5
//	  }
//	}
//
// is addressed as "warn_threshold" through an accessor bound to the
// "moderation" namespace, so two modules can use identical local keys
// without collision.
//
// # Accessors
//
// Modules never touch the store directly. The registry creates an
// Accessor with the module's namespace baked in at load time and closes
// it at unload. The namespace is explicit at accessor creation, never
// inferred from the caller.
//
// # Typed defaults
//
// The first GetOrCreate for a path declares its type from the default's
// kind. A later Put with a different kind fails with ErrTypeMismatch
// unless coercion is requested via PutCoerce.
//
// # Persistence
//
// The store owns the in-memory document; FileBackend performs durable
// writes. Every save is a full atomic snapshot (temp file + rename), and
// rapid mutations are debounced into one write. A corrupt file at load
// is recovered as an empty document with a warning.
package settings
