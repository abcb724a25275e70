// Package item turns files on disk into series items.
//
// A Decoder inspects one path and returns an Item carrying the metadata that
// series keys are rendered from. The DICOM decoder reads headers only; the
// directory decoder groups files by the folder they arrived in. KeyFormat
// renders the series key for an item and SafeName maps keys onto directory
// names.
package item
