// Filesystem layout and the atomic-swap primitive shared by the catalog and
// every archive shard.
//
// File handles are opened per operation rather than held for the lifetime
// of the engine (§3 Ownership) — fileUtil wraps an *os.Root sandboxed to the
// database directory so every path it hands out is confined there, the same
// pattern the source material uses to keep its own file handles scoped to
// one directory.
package strata

import (
	"fmt"
	"os"
)

// fileUtil resolves the on-disk filenames for one database directory and
// provides the safeOverwrite atomic-swap primitive.
type fileUtil struct {
	root *os.Root
	dir  string
}

func openFileUtil(dir string) (*fileUtil, error) {
	root, err := os.OpenRoot(dir)
	if err != nil {
		return nil, err
	}
	return &fileUtil{root: root, dir: dir}, nil
}

func (fu *fileUtil) Close() error {
	return fu.root.Close()
}

// CatalogName is the fixed filename of the catalog file within a database
// directory.
const CatalogName = "db.strdr"

// CatalogBackupName is the previous catalog, used for crash recovery.
const CatalogBackupName = CatalogName + ".old"

func (fu *fileUtil) catalogPath() string {
	return CatalogName
}

func (fu *fileUtil) catalogBackupPath() string {
	return CatalogBackupName
}

// archiveIndexPath returns the .strdridx filename for a shard identified by
// its catalog index and resolution.
func archiveIndexPath(index uint16, resolution uint8) string {
	return fmt.Sprintf("achv_i%d_r%d.strdridx", index, resolution)
}

// archiveDataPath returns the .strdrdata filename for a shard identified by
// its catalog index and resolution.
func archiveDataPath(index uint16, resolution uint8) string {
	return fmt.Sprintf("achv_i%d_r%d.strdrdata", index, resolution)
}

// safeOverwrite implements the only atomicity primitive this engine has
// (§5): remove old if present, copy new over old, remove new. This is not
// atomic across a power loss — a crash between the copy and the final
// remove leaves both files present. Nothing checks for a leftover .new
// file; the next write that uses the same .new name (catalog save, header
// persist, addKey) truncates and replaces it.
func (fu *fileUtil) safeOverwrite(old, new string) error {
	if _, err := fu.root.Stat(old); err == nil {
		if err := fu.root.Remove(old); err != nil {
			return err
		}
	} else if !os.IsNotExist(err) {
		return err
	}

	src, err := fu.root.Open(new)
	if err != nil {
		return err
	}
	defer src.Close()

	dst, err := fu.root.Create(old)
	if err != nil {
		return err
	}
	if _, err := dst.ReadFrom(src); err != nil {
		dst.Close()
		return err
	}
	if err := dst.Sync(); err != nil {
		dst.Close()
		return err
	}
	if err := dst.Close(); err != nil {
		return err
	}

	return fu.root.Remove(new)
}

func (fu *fileUtil) exists(name string) bool {
	_, err := fu.root.Stat(name)
	return err == nil
}
