// Package storage writes downloaded assets to disk.
//
// Each asset lands at {root}/{folder}/{name}{ext}. Writes go through a
// temporary file in the target directory followed by a rename, so a
// concurrent reader never sees a partial file. Folder and name are single
// path components; anything that could escape the root is rejected.
//
// Usage:
//
//	manager, err := storage.NewManager("dl", ".jpg")
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	path, err := manager.Save("gallery", "0001", body)
//	if err != nil {
//	    log.Printf("Failed to save asset: %v", err)
//	}
package storage
