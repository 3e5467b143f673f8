package adaptimg

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/cespare/xxhash/v2"
	"github.com/gofrs/flock"
)

// fileLock is an advisory lock guarding the generation of one cache file.
// Lock files live outside the cache tree and are removed on release.
type fileLock struct {
	fl *flock.Flock
}

func lockPath(dir, target string) string {
	return filepath.Join(dir, fmt.Sprintf("adaptimg-%016x.lock", xxhash.Sum64String(target)))
}

// tryLock attempts to lock target without blocking. A nil lock and a nil
// error mean somebody else holds it.
func tryLock(dir, target string) (*fileLock, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	fl := flock.New(lockPath(dir, target))
	ok, err := fl.TryLock()
	if err != nil {
		return nil, err
	}
	if !ok {
		fl.Close()
		return nil, nil
	}
	return &fileLock{fl: fl}, nil
}

func (l *fileLock) release() error {
	os.Remove(l.fl.Path())
	return l.fl.Unlock()
}
