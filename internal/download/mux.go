package download

import (
	"bytes"
	"context"
	"os/exec"

	"github.com/vidcrawl/vidcrawl/internal/apperrors"
)

// stderrTailLimit bounds how much of a failed muxer's stderr gets
// attached to the resulting error, grounded on
// narwhalmedia-narwhal/internal/infrastructure/transcode/ffmpeg_transcoder.go's
// exec.CommandContext invocation pattern.
const stderrTailLimit = 4096

// Mux invokes the external muxer to combine a video and audio .part
// file into the final container, stream-copying both (§4.5, §6
// "muxer_path"). On failure the .part files are left in place for
// manual inspection and the error carries the tool name, exit code,
// and a tail of stderr (§7 MERGE_ERROR).
func Mux(ctx context.Context, muxerPath, videoPath, audioPath, outPath string) error {
	if muxerPath == "" {
		muxerPath = "ffmpeg"
	}

	args := []string{
		"-y",
		"-i", videoPath,
		"-i", audioPath,
		"-c", "copy",
		outPath,
	}

	cmd := exec.CommandContext(ctx, muxerPath, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	err := cmd.Run()
	if err == nil {
		return nil
	}

	exitCode := -1
	var exitErr *exec.ExitError
	if ok := errorsAsExitError(err, &exitErr); ok {
		exitCode = exitErr.ExitCode()
	}

	tail := stderr.Bytes()
	if len(tail) > stderrTailLimit {
		tail = tail[len(tail)-stderrTailLimit:]
	}

	return apperrors.MergeError(muxerPath, exitCode, string(tail))
}

func errorsAsExitError(err error, target **exec.ExitError) bool {
	if ee, ok := err.(*exec.ExitError); ok {
		*target = ee
		return true
	}
	return false
}
