package service

import (
	"context"
	"errors"
	"io"
	"movement-analysis/constant"
	"movement-analysis/dto"
	"movement-analysis/entities"
	"movement-analysis/pkg/metrics"
	"movement-analysis/pkg/pose"
	"movement-analysis/pkg/storage"
	"path/filepath"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

type stubAnalyzer struct {
	result  *Result
	err     error
	gotPath string
}

func (s *stubAnalyzer) Analyze(ctx context.Context, path string, opts ...AnalyzeOption) (*Result, error) {
	s.gotPath = path
	return s.result, s.err
}

type failingStore struct{}

func (failingStore) Save(string, io.Reader) (*storage.StoredFile, error) {
	return nil, errors.New("read-only file system")
}

func (failingStore) Path(name string) string { return name }

type stubRepo struct {
	created []*entities.Analysis
	err     error
}

func (r *stubRepo) GetDB() *gorm.DB { return nil }
func (r *stubRepo) Migrate(ctx context.Context) error { return nil }

func (r *stubRepo) Create(ctx context.Context, analysis *entities.Analysis) error {
	r.created = append(r.created, analysis)
	return r.err
}

type stubMirror struct {
	puts []string
	err  error
}

func (m *stubMirror) Put(ctx context.Context, localPath string) error {
	m.puts = append(m.puts, localPath)
	return m.err
}

type published struct {
	key     string
	payload any
}

type stubPublisher struct {
	sent []published
	err  error
}

func (p *stubPublisher) Publish(ctx context.Context, routingKey string, payload any) error {
	p.sent = append(p.sent, published{key: routingKey, payload: payload})
	return p.err
}

func (p *stubPublisher) Close() error { return nil }

func samplePose(x float64) *pose.Pose {
	p := &pose.Pose{}
	for i := range p.Landmarks {
		p.Landmarks[i] = pose.Point{X: x, Y: float64(i) / 100, Z: -0.3, Visibility: 0.75, Presence: 0.9}
	}
	return p
}

func newStore(t *testing.T) *storage.Local {
	t.Helper()
	store, err := storage.NewLocal(filepath.Join(t.TempDir(), "uploads"))
	require.NoError(t, err)
	return store
}

func TestKeypoints(t *testing.T) {
	out := Keypoints([]Sample{{FrameIndex: 0, Pose: samplePose(0.25)}, {FrameIndex: 30, Pose: samplePose(0.5)}})

	require.Len(t, out, 2)
	require.Len(t, out[0], pose.NumLandmarks)
	assert.Equal(t, dto.Keypoint{Name: "NOSE", X: 0.25, Y: 0, Visibility: 0.75}, out[0][0])
	assert.Equal(t, "LEFT_SHOULDER", out[0][11].Name)
	assert.Equal(t, "RIGHT_FOOT_INDEX", out[1][32].Name)
	assert.Equal(t, 0.5, out[1][32].X)
	assert.InDelta(t, 0.32, out[1][32].Y, 1e-9)

	empty := Keypoints(nil)
	assert.NotNil(t, empty)
	assert.Empty(t, empty)
}

func TestUploadSuccess(t *testing.T) {
	store := newStore(t)
	analyzer := &stubAnalyzer{result: &Result{
		Annotated:  "squat_annotated.mp4",
		Samples:    []Sample{{FrameIndex: 0, Pose: samplePose(0.5)}},
		FrameCount: 30,
	}}
	repo := &stubRepo{}
	mirror := &stubMirror{}
	publisher := &stubPublisher{}
	svc := NewService(store, analyzer, Dependencies{Repo: repo, Mirror: mirror, Publisher: publisher})

	resp, err := svc.Upload(context.Background(), "../../squat.mp4", strings.NewReader("video-bytes"))
	require.NoError(t, err)

	assert.Equal(t, constant.MessageAnalysisSucceeded, resp.Message)
	assert.True(t, strings.HasSuffix(resp.Filename, "_squat.mp4"), resp.Filename)
	assert.Equal(t, filepath.Join(store.Dir(), resp.Filename), analyzer.gotPath)
	assert.Equal(t, "squat_annotated.mp4", resp.Annotated)
	require.Len(t, resp.Keypoints, 1)
	assert.Len(t, resp.Keypoints[0], pose.NumLandmarks)

	require.Len(t, repo.created, 1)
	row := repo.created[0]
	assert.Equal(t, resp.Filename, row.Filename)
	assert.Equal(t, "squat.mp4", row.OriginalName)
	assert.Equal(t, constant.AnalysisStatusCompleted, row.Status)
	assert.Nil(t, row.FailureKind)
	assert.Equal(t, 30, row.FrameCount)
	assert.Equal(t, 1, row.SampleCount)
	assert.Equal(t, int64(len("video-bytes")), row.SizeBytes)

	assert.Equal(t, []string{store.Path(resp.Filename), store.Path("squat_annotated.mp4")}, mirror.puts)

	require.Len(t, publisher.sent, 1)
	assert.Equal(t, constant.RoutingKeyAnalysisCompleted, publisher.sent[0].key)
	msg := publisher.sent[0].payload.(dto.AnalysisMessage)
	assert.Equal(t, row.ID, msg.AnalysisId)
	assert.Equal(t, "squat_annotated.mp4", msg.Annotated)
	assert.Equal(t, 1, msg.SampleCount)
}

func TestUploadWithoutDetectionsHasEmptyKeypoints(t *testing.T) {
	svc := NewService(newStore(t), &stubAnalyzer{result: &Result{Annotated: "a.mp4", FrameCount: 12}}, Dependencies{})

	resp, err := svc.Upload(context.Background(), "wall.mp4", strings.NewReader("x"))
	require.NoError(t, err)
	assert.NotNil(t, resp.Keypoints)
	assert.Empty(t, resp.Keypoints)
}

func TestUploadAnalysisFailure(t *testing.T) {
	store := newStore(t)
	repo := &stubRepo{}
	mirror := &stubMirror{}
	publisher := &stubPublisher{}
	analysisErr := openFailure("x", errors.New("not a video"))
	svc := NewService(store, &stubAnalyzer{err: analysisErr}, Dependencies{Repo: repo, Mirror: mirror, Publisher: publisher})
	openFailures := testutil.ToFloat64(metrics.AnalysesTotal.WithLabelValues(metrics.ResultOpenFailure))

	resp, err := svc.Upload(context.Background(), "notes.txt", strings.NewReader("hello"))
	assert.Nil(t, resp)
	assert.ErrorIs(t, err, ErrOpenFailure)

	// The stored upload stays on disk.
	require.Len(t, repo.created, 1)
	assert.FileExists(t, store.Path(repo.created[0].Filename))

	row := repo.created[0]
	assert.Equal(t, constant.AnalysisStatusFailed, row.Status)
	require.NotNil(t, row.FailureKind)
	assert.Equal(t, "open_failure", *row.FailureKind)
	assert.Nil(t, row.Annotated)

	assert.Empty(t, mirror.puts)
	require.Len(t, publisher.sent, 1)
	assert.Equal(t, constant.RoutingKeyAnalysisFailed, publisher.sent[0].key)

	assert.Equal(t, openFailures+1, testutil.ToFloat64(metrics.AnalysesTotal.WithLabelValues(metrics.ResultOpenFailure)))
}

func TestResultLabel(t *testing.T) {
	assert.Equal(t, metrics.ResultOpenFailure, resultLabel(OpenFailure))
	assert.Equal(t, metrics.ResultAnalysisFailure, resultLabel(AnalysisFailure))
	assert.Equal(t, metrics.ResultAnalysisFailure, resultLabel(0))
}

func TestUploadSinkErrorsDoNotFailUpload(t *testing.T) {
	sinkErr := errors.New("unreachable")
	svc := NewService(newStore(t), &stubAnalyzer{result: &Result{Annotated: "a.mp4"}}, Dependencies{
		Repo:      &stubRepo{err: sinkErr},
		Mirror:    &stubMirror{err: sinkErr},
		Publisher: &stubPublisher{err: sinkErr},
	})

	resp, err := svc.Upload(context.Background(), "clip.mp4", strings.NewReader("x"))
	require.NoError(t, err)
	assert.Equal(t, constant.MessageAnalysisSucceeded, resp.Message)
}

func TestUploadStoreFailure(t *testing.T) {
	analyzer := &stubAnalyzer{}
	repo := &stubRepo{}
	svc := NewService(failingStore{}, analyzer, Dependencies{Repo: repo})

	resp, err := svc.Upload(context.Background(), "clip.mp4", strings.NewReader("x"))
	assert.Nil(t, resp)
	assert.ErrorIs(t, err, ErrStoreUpload)
	assert.Equal(t, FailureKind(0), KindOf(err))
	assert.Empty(t, analyzer.gotPath)
	assert.Empty(t, repo.created)
}
