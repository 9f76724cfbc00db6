// Package generate implements the write path: it pages article records out
// of a storage.RecordSource, formats each into canonical text, embeds the
// texts in batches, writes the aligned (ids, vectors) pair into the vector
// store and saves it.
//
// Two modes are supported. ModeRebuild replaces the whole store. ModeAppend
// loads the persisted store, skips records whose identifier is already
// present and upserts the rest. Either way the store is saved only after
// every record has been embedded, so a failed run leaves the previously
// persisted state untouched.
//
// Verifier re-embeds a stored record and reports which store rows match the
// fresh vector, which catches id/vector misalignment in a persisted store.
package generate
