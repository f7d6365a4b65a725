package export

import (
	"bufio"
	"errors"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/pancaim/cdm/pkg/cdmerrors"
	"github.com/pancaim/cdm/pkg/formats"
)

// RunDirLayout names run directories after the run start time.
const RunDirLayout = "20060102-150405"

const (
	dirPerm  = 0o750
	filePerm = 0o640
)

// maxRunDirAttempts bounds the numeric suffixes tried for one timestamp.
const maxRunDirAttempts = 100

// createRunDir creates a new directory under root named after now. When a
// run of the same second exists, -1, -2, ... is appended. An existing run
// directory is never reused.
func createRunDir(root string, now time.Time) (string, error) {
	base := filepath.Join(root, now.Format(RunDirLayout))
	for i := 0; i < maxRunDirAttempts; i++ {
		dir := base
		if i > 0 {
			dir = base + "-" + strconv.Itoa(i)
		}
		err := os.Mkdir(dir, dirPerm)
		if err == nil {
			return dir, nil
		}
		if !errors.Is(err, fs.ErrExist) {
			return "", cdmerrors.Wrap(err, cdmerrors.ErrorTypeFile, "failed to create run directory").
				WithDetail("dir", dir)
		}
	}
	return "", cdmerrors.New(cdmerrors.ErrorTypeFile, "no free run directory name").
		WithDetail("dir", base)
}

// checkRoot reports a config error unless root is an existing directory.
func checkRoot(root string) error {
	if root == "" {
		return cdmerrors.New(cdmerrors.ErrorTypeConfig, "export folder is required")
	}
	info, err := os.Stat(root)
	if err != nil {
		return cdmerrors.Wrap(err, cdmerrors.ErrorTypeConfig, "export folder not found").
			WithDetail("dir", root)
	}
	if !info.IsDir() {
		return cdmerrors.New(cdmerrors.ErrorTypeConfig, "export folder is not a directory").
			WithDetail("dir", root)
	}
	return nil
}

// artifactName returns the file name of the artifact of subject id.
func artifactName(id int64, enc formats.Encoder) string {
	return strconv.FormatInt(id, 10) + enc.Extension()
}

// writeArtifact encodes doc into a new file at path and returns its size.
// The file must not exist.
func writeArtifact(path string, enc formats.Encoder, doc *formats.Map) (int64, error) {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, filePerm)
	if err != nil {
		return 0, cdmerrors.Wrap(err, cdmerrors.ErrorTypeFile, "failed to create artifact").
			WithDetail("path", path)
	}

	cw := &countingWriter{w: f}
	bw := bufio.NewWriter(cw)
	if err := enc.Encode(bw, doc); err != nil {
		_ = f.Close()
		_ = os.Remove(path)
		return 0, cdmerrors.Wrap(err, cdmerrors.ErrorTypeSerialization, "failed to encode artifact").
			WithDetail("path", path)
	}
	if err := bw.Flush(); err != nil {
		_ = f.Close()
		return 0, cdmerrors.Wrap(err, cdmerrors.ErrorTypeFile, "failed to write artifact").
			WithDetail("path", path)
	}
	if err := f.Close(); err != nil {
		return 0, cdmerrors.Wrap(err, cdmerrors.ErrorTypeFile, "failed to close artifact").
			WithDetail("path", path)
	}
	return cw.n, nil
}

type countingWriter struct {
	w io.Writer
	n int64
}

func (c *countingWriter) Write(p []byte) (int, error) {
	n, err := c.w.Write(p)
	c.n += int64(n)
	return n, err
}
