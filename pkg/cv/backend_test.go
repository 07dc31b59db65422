//go:build opencv

package cv

import (
	"errors"
	"io"
	"movement-analysis/pkg/pose"
	"movement-analysis/pkg/video"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gocv.io/x/gocv"
)

// Run with: go test -tags opencv ./pkg/cv/...

func testBackend() *Backend {
	return &Backend{codec: "MJPG", cfg: ModelConfig{InputSize: 256}}
}

func solidFrame(size video.Size, value float64) *frame {
	return &frame{mat: gocv.NewMatWithSizeFromScalar(gocv.NewScalar(value, value, value, 0), size.Height, size.Width, gocv.MatTypeCV8UC3)}
}

func writeFrames(t *testing.T, b *Backend, path string, size video.Size, n int) {
	t.Helper()
	w, err := b.OpenWriter(path, size, 10)
	require.NoError(t, err)
	for i := 0; i < n; i++ {
		f := solidFrame(size, float64(40+i*20))
		require.NoError(t, w.Write(f))
		require.NoError(t, f.Close())
	}
	require.NoError(t, w.Close())
}

func readAll(t *testing.T, r video.Reader, each func(video.Frame)) int {
	t.Helper()
	n := 0
	for {
		f, err := r.Read()
		if errors.Is(err, io.EOF) {
			return n
		}
		require.NoError(t, err)
		if each != nil {
			each(f)
		}
		require.NoError(t, f.Close())
		n++
	}
}

func TestReaderReturnsEveryWrittenFrame(t *testing.T) {
	b := testBackend()
	path := filepath.Join(t.TempDir(), "clip.avi")
	writeFrames(t, b, path, video.Size{Width: 64, Height: 48}, 5)

	r, err := b.OpenReader(path)
	require.NoError(t, err)
	defer r.Close()

	assert.Equal(t, video.Size{Width: 64, Height: 48}, r.Info().Size)
	assert.InDelta(t, 10, r.Info().FPS, 0.01)
	assert.Equal(t, 5, readAll(t, r, nil))

	_, err = r.Read()
	assert.ErrorIs(t, err, io.EOF, "exhausted capture keeps reporting EOF")
}

func TestRotatedOutputKeepsFrameCountAndSwapsSize(t *testing.T) {
	b := testBackend()
	dir := t.TempDir()
	in := filepath.Join(dir, "clip.avi")
	out := filepath.Join(dir, "clip_annotated.avi")
	size := video.Size{Width: 64, Height: 48}
	writeFrames(t, b, in, size, 7)

	r, err := b.OpenReader(in)
	require.NoError(t, err)
	w, err := b.OpenWriter(out, size.Rotated(), 10)
	require.NoError(t, err)

	n := readAll(t, r, func(f video.Frame) {
		rotated, err := b.RotateClockwise(f)
		require.NoError(t, err)
		require.NoError(t, w.Write(rotated))
		require.NoError(t, rotated.Close())
	})
	require.NoError(t, r.Close())
	require.NoError(t, w.Close())
	assert.Equal(t, 7, n)

	r, err = b.OpenReader(out)
	require.NoError(t, err)
	defer r.Close()

	assert.Equal(t, video.Size{Width: 48, Height: 64}, r.Info().Size)
	assert.Equal(t, 7, readAll(t, r, func(f video.Frame) {
		mat := f.(*frame).mat
		assert.Equal(t, 48, mat.Cols())
		assert.Equal(t, 64, mat.Rows())
	}))
}

func TestRotateClockwiseDirection(t *testing.T) {
	// 4 columns, 2 rows, only the top-left pixel set.
	src := solidFrame(video.Size{Width: 4, Height: 2}, 0)
	defer src.Close()
	src.mat.SetUCharAt(0, 0, 255)

	rotated, err := testBackend().RotateClockwise(src)
	require.NoError(t, err)
	defer rotated.Close()

	mat := rotated.(*frame).mat
	require.Equal(t, 4, mat.Rows())
	require.Equal(t, 2, mat.Cols())
	// Top-left ends up top-right after a clockwise quarter turn.
	assert.EqualValues(t, 255, mat.GetUCharAt(0, 1*3))
	assert.EqualValues(t, 0, mat.GetUCharAt(0, 0))
	assert.EqualValues(t, 0, mat.GetUCharAt(3, 0))
}

func visiblePose() *pose.Pose {
	p := &pose.Pose{}
	for i := range p.Landmarks {
		p.Landmarks[i] = pose.Point{
			X:          0.2 + 0.6*float64(i%6)/5,
			Y:          0.1 + 0.8*float64(i/6)/5,
			Visibility: 0.9,
			Presence:   0.9,
		}
	}
	return p
}

func TestAnnotateDrawsVisibleLandmarks(t *testing.T) {
	b := testBackend()
	size := video.Size{Width: 64, Height: 48}

	f := solidFrame(size, 0)
	defer f.Close()
	require.NoError(t, b.Annotate(f, visiblePose()))
	sum := f.mat.Sum()
	assert.Greater(t, sum.Val1, 0.0, "connections are drawn in blue")
	assert.Greater(t, sum.Val2, 0.0, "joints are drawn in green")
	assert.Zero(t, sum.Val3)

	hidden := visiblePose()
	for i := range hidden.Landmarks {
		hidden.Landmarks[i].Visibility = 0.1
	}
	blank := solidFrame(size, 0)
	defer blank.Close()
	require.NoError(t, b.Annotate(blank, hidden))
	assert.Zero(t, blank.mat.Sum().Val1+blank.mat.Sum().Val2)
}

func TestEmptyFrameIsRejected(t *testing.T) {
	b := testBackend()
	empty := &frame{mat: gocv.NewMat()}
	defer empty.Close()

	assert.ErrorIs(t, b.Annotate(empty, visiblePose()), ErrEmptyFrame)

	_, err := b.RotateClockwise(empty)
	assert.ErrorIs(t, err, ErrEmptyFrame)

	s := &session{cfg: b.cfg, tracker: pose.NewTracker(0.5, 0.5)}
	_, err = s.Process(empty)
	assert.ErrorIs(t, err, ErrEmptyFrame)
}

func TestOpenReaderRejectsNonVideo(t *testing.T) {
	path := filepath.Join(t.TempDir(), "notes.txt")
	require.NoError(t, os.WriteFile(path, []byte("hello"), 0o644))

	_, err := testBackend().OpenReader(path)
	assert.Error(t, err)

	_, err = testBackend().OpenReader(filepath.Join(t.TempDir(), "missing.mp4"))
	assert.Error(t, err)
}

func TestForeignFrameIsRejected(t *testing.T) {
	type other struct{ video.Frame }
	_, err := testBackend().RotateClockwise(other{})
	assert.ErrorIs(t, err, ErrForeignFrame)
}
