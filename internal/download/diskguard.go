package download

import (
	"io/fs"
	"path/filepath"
	"syscall"

	"github.com/vidcrawl/vidcrawl/internal/apperrors"
)

// minFreeChunks is the number of configured chunks of free space the
// disk guard requires before a download starts, per §4.5
// "free_space ≥ configured_chunk * N".
const minFreeChunks = 4

// checkDiskGuard implements §4.5's disk guard: refuses to start a new
// download if free space is too low or the dataset has grown past
// max_size_gb.
func (d *Downloader) checkDiskGuard() error {
	free, err := freeSpace(d.store.MediaDir())
	if err != nil {
		return apperrors.Wrap(apperrors.KindDiskFull, "failed to stat free space", err)
	}
	if d.cfg.ChunkSize > 0 && free < d.cfg.ChunkSize*minFreeChunks {
		return apperrors.New(apperrors.KindDiskFull, "insufficient free space")
	}

	if d.cfg.MaxSizeGB > 0 {
		used, err := datasetSize(d.store.MediaDir())
		if err != nil {
			return apperrors.Wrap(apperrors.KindDiskFull, "failed to compute dataset size", err)
		}
		if used >= d.cfg.MaxSizeGB<<30 {
			return apperrors.New(apperrors.KindDiskFull, "dataset exceeds max_size_gb")
		}
	}
	return nil
}

func freeSpace(dir string) (int64, error) {
	var stat syscall.Statfs_t
	if err := syscall.Statfs(dir, &stat); err != nil {
		return 0, err
	}
	return int64(stat.Bavail) * int64(stat.Bsize), nil
}

func datasetSize(dir string) (int64, error) {
	var total int64
	err := filepath.Walk(dir, func(path string, info fs.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if !info.IsDir() {
			total += info.Size()
		}
		return nil
	})
	return total, err
}
