// Package indexer brings files that reach the uploads tree outside the API
// into the catalog.
//
// Scan walks the tree with a small worker pool and registers every raster
// image or PDF that the catalog does not know. A file is skipped when:
//   - its path is already cataloged, as a primary file or a listed size
//   - another format of the same stem is cataloged (a preserved original or
//     a conversion output)
//   - it carries a -N or -WxH suffix and a sibling with the bare stem exists
//
// Watcher uses fsnotify to apply the same rules to files as they appear,
// debouncing writes per path, and passes newly registered images to the
// batch driver's upload hook. Hidden files and directories, which include
// the converter's staging files, are ignored.
package indexer
