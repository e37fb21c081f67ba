package writer

import (
	"os"
)

// replaceFile swaps the content of path for data through a ".part" sibling
// and a rename. The file mode is kept; the modification time is kept when
// preserveMtime is set.
func replaceFile(path string, data []byte, preserveMtime bool) error {
	info, err := os.Stat(path)
	if err != nil {
		return err
	}

	partPath := path + ".part"
	if err := writePart(partPath, data, info.Mode().Perm()); err != nil {
		os.Remove(partPath)
		return err
	}

	if preserveMtime {
		if err := os.Chtimes(partPath, info.ModTime(), info.ModTime()); err != nil {
			os.Remove(partPath)
			return err
		}
	}

	if err := os.Rename(partPath, path); err != nil {
		os.Remove(partPath)
		return err
	}
	return nil
}

func writePart(partPath string, data []byte, perm os.FileMode) error {
	f, err := os.OpenFile(partPath, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, perm)
	if err != nil {
		return err
	}

	_, err = f.Write(data)
	if syncErr := f.Sync(); syncErr != nil && err == nil {
		err = syncErr
	}
	if closeErr := f.Close(); closeErr != nil && err == nil {
		err = closeErr
	}
	return err
}
