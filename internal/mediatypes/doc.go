// Package mediatypes provides the extension and MIME tables shared across
// the refiner.
//
// It has no dependencies beyond the standard library so any package can
// import it without creating cycles.
//
// Extensions are handled lowercase and without the leading dot:
//
//	ext := mediatypes.Ext("2024/05/Photo.JPG") // "jpg"
//	mediatypes.GetClass(ext)                  // ClassLegacy
//	mediatypes.GetMimeType(ext)               // "image/jpeg"
//
// ClassLegacy marks original upload formats that the sweeper may remove
// once converted; ClassTarget marks the two conversion outputs.
package mediatypes
