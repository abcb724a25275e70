// Package series implements the keyed, debounced worker pool at the heart of
// seriesd.
//
// A Registry routes items to one Worker per series key, creating workers
// lazily through a caller-supplied factory. Each Worker runs its handler hooks
// strictly one at a time and finalizes the series once no item has arrived for
// its idle timeout, after which it removes itself from the registry so the key
// can be reused.
//
// The package knows nothing about files or DICOM: item type, key derivation,
// and the three handler hooks are all injected. Keep it that way; pipelines
// and item sources live in their own packages.
package series
