package stage

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/cuongbtq/story-factory/internal/blob"
	"github.com/cuongbtq/story-factory/internal/domain"
	"github.com/cuongbtq/story-factory/internal/provider"
	"github.com/cuongbtq/story-factory/internal/render"
	"github.com/cuongbtq/story-factory/internal/retry"
	"github.com/cuongbtq/story-factory/internal/worker"
	"github.com/cuongbtq/story-factory/internal/worker/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fakeScript struct {
	failures int
	scenes   domain.Scenes

	mu    sync.Mutex
	calls int
}

func (f *fakeScript) GenerateScript(context.Context, string, string) (domain.Scenes, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.calls <= f.failures {
		return nil, errors.New("provider cold start")
	}
	return f.scenes.Clone(), nil
}

type fakeImages struct {
	failPrompt string
	mimeType   string
	prompts    []string
}

func (f *fakeImages) GenerateImage(_ context.Context, prompt string) (provider.Media, error) {
	f.prompts = append(f.prompts, prompt)
	if prompt == f.failPrompt {
		return provider.Media{}, errors.New("quota exceeded")
	}
	mimeType := f.mimeType
	if mimeType == "" {
		mimeType = "image/png"
	}
	return provider.Media{Data: []byte("png:" + prompt), MIMEType: mimeType}, nil
}

type fakeSpeech struct {
	mimeType string
	texts    []string
}

func (f *fakeSpeech) Synthesize(_ context.Context, text string) (provider.Media, error) {
	f.texts = append(f.texts, text)
	mimeType := f.mimeType
	if mimeType == "" {
		mimeType = "audio/wav"
	}
	return provider.Media{Data: []byte("wav:" + text), MIMEType: mimeType}, nil
}

type fakeRenderer struct {
	err   error
	skip  int // clips left out of the video
	clips []render.Clip
}

func (f *fakeRenderer) Render(_ context.Context, clips []render.Clip, workDir, output string) (int, error) {
	f.clips = clips
	// intermediate files land in workDir like the real renderer
	if err := os.WriteFile(filepath.Join(workDir, "concat.txt"), []byte("x"), 0o644); err != nil {
		return 0, err
	}
	if f.err != nil {
		return 0, f.err
	}
	return len(clips) - f.skip, os.WriteFile(output, []byte("mp4"), 0o644)
}

func newLocalStore(t *testing.T) *blob.Local {
	t.Helper()
	store, err := blob.NewLocal(blob.LocalConfig{
		Root:    t.TempDir(),
		BaseURL: "http://localhost:8080/assets",
		Secret:  "s3cret",
	}, testLogger())
	require.NoError(t, err)
	return store
}

func threeScenes() domain.Scenes {
	return domain.Scenes{
		{Narration: "The fox woke early.", ImagePrompt: "fox in a den at dawn"},
		{Narration: "It crossed the river.", ImagePrompt: "fox swimming"},
		{Narration: "It found the hen house.", ImagePrompt: "fox by a barn"},
	}
}

func TestScriptProcessor_EmptyTopic(t *testing.T) {
	gen := &fakeScript{scenes: threeScenes()}
	p := NewScriptProcessor(gen, retry.Fixed(3, time.Millisecond), testLogger())

	res := p.Process(context.Background(), &domain.Job{ID: "j1", Topic: "  ", Style: "x"})

	assert.Equal(t, domain.StatusScriptFailed, res.Status)
	assert.Contains(t, res.ErrorMessage, "Topic is missing")
	assert.Zero(t, gen.calls)
}

func TestScriptProcessor_RetryThenSuccess(t *testing.T) {
	gen := &fakeScript{failures: 2, scenes: threeScenes()}
	p := NewScriptProcessor(gen, retry.Fixed(3, time.Millisecond), testLogger())

	res := p.Process(context.Background(), &domain.Job{ID: "j1", Topic: "a fox", Style: "fable"})

	assert.Equal(t, domain.StatusAssetsPending, res.Status)
	assert.Equal(t, threeScenes(), res.Scenes)
	assert.Empty(t, res.ErrorMessage)
	assert.Equal(t, 3, gen.calls)
}

func TestScriptProcessor_Exhausted(t *testing.T) {
	tests := []struct {
		name    string
		gen     *fakeScript
		wantMsg string
	}{
		{"provider keeps failing", &fakeScript{failures: 10}, "Failed after 3 attempts: provider cold start"},
		{"response without scenes", &fakeScript{}, "Failed after 3 attempts: " + domain.ErrNoScenes.Error()},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := NewScriptProcessor(tt.gen, retry.Fixed(3, time.Millisecond), testLogger())

			res := p.Process(context.Background(), &domain.Job{ID: "j1", Topic: "topic"})

			assert.Equal(t, domain.StatusScriptFailed, res.Status)
			assert.Equal(t, tt.wantMsg, res.ErrorMessage)
			assert.Equal(t, 3, tt.gen.calls)
		})
	}
}

func TestAssetProcessor_ContainsSceneFailure(t *testing.T) {
	store := newLocalStore(t)
	images := &fakeImages{failPrompt: "fox swimming"}
	speech := &fakeSpeech{}
	p := NewAssetProcessor(images, speech, store, testLogger())

	res := p.Process(context.Background(), &domain.Job{ID: "job-7", Scenes: threeScenes()})

	require.Equal(t, domain.StatusCompilePending, res.Status)
	require.Len(t, res.Scenes, 3)

	assert.NotEmpty(t, res.Scenes[1].Error)
	assert.Contains(t, res.Scenes[1].Error, "quota exceeded")
	assert.Empty(t, res.Scenes[1].ImageURL)

	for _, i := range []int{0, 2} {
		scene := res.Scenes[i]
		assert.Empty(t, scene.Error)
		assert.NotEmpty(t, scene.ImageURL)
		assert.NotEmpty(t, scene.AudioURL)
		assert.True(t, scene.Renderable())
	}
	assert.Equal(t, "job-7/scene_1.png", res.Scenes[0].ImageKey)
	assert.Equal(t, "job-7/scene_3.wav", res.Scenes[2].AudioKey)
	assert.Equal(t, "http://localhost:8080/assets/job-7/scene_3.png", res.Scenes[2].ImageURL)

	// the failing scene does not stop later scenes
	assert.Len(t, images.prompts, 3)
	assert.Equal(t, []string{"The fox woke early.", "It found the hen house."}, speech.texts)
}

func TestAssetProcessor_UnknownMediaTypesKeepDistinctKeys(t *testing.T) {
	store := newLocalStore(t)
	p := NewAssetProcessor(
		&fakeImages{mimeType: "application/octet-stream"},
		&fakeSpeech{mimeType: "application/octet-stream"},
		store, testLogger())
	job := &domain.Job{ID: "job-octet", Scenes: domain.Scenes{{Narration: "hello", ImagePrompt: "a fox"}}}

	res := p.Process(context.Background(), job)

	require.Equal(t, domain.StatusCompilePending, res.Status)
	scene := res.Scenes[0]
	assert.Equal(t, "job-octet/scene_1.png", scene.ImageKey)
	assert.Equal(t, "job-octet/scene_1.wav", scene.AudioKey)

	var image, audio strings.Builder
	require.NoError(t, store.Download(context.Background(), scene.ImageKey, &image))
	require.NoError(t, store.Download(context.Background(), scene.AudioKey, &audio))
	assert.Equal(t, "png:a fox", image.String())
	assert.Equal(t, "wav:hello", audio.String())
}

func TestAssetProcessor_MissingFieldsAreNotErrors(t *testing.T) {
	p := NewAssetProcessor(&fakeImages{}, &fakeSpeech{}, newLocalStore(t), testLogger())

	res := p.Process(context.Background(), &domain.Job{ID: "job-8", Scenes: domain.Scenes{
		{Narration: "voice only"},
		{ImagePrompt: "picture only"},
	}})

	require.Equal(t, domain.StatusCompilePending, res.Status)
	assert.Empty(t, res.Scenes[0].ImageURL)
	assert.NotEmpty(t, res.Scenes[0].AudioURL)
	assert.NotEmpty(t, res.Scenes[1].ImageURL)
	assert.Empty(t, res.Scenes[1].AudioURL)
	for _, s := range res.Scenes {
		assert.Empty(t, s.Error)
		assert.False(t, s.Renderable())
	}
}

// uploadScenes stores assets for the renderable scenes and returns scenes
// pointing at them
func uploadScenes(t *testing.T, store *blob.Local, jobID string, renderable ...bool) domain.Scenes {
	t.Helper()
	p := NewAssetProcessor(&fakeImages{}, &fakeSpeech{}, store, testLogger())

	var scenes domain.Scenes
	for _, ok := range renderable {
		scene := domain.Scene{Narration: "n", ImagePrompt: "p"}
		if !ok {
			scene.ImagePrompt = ""
		}
		scenes = append(scenes, scene)
	}
	return p.Process(context.Background(), &domain.Job{ID: jobID, Scenes: scenes}).Scenes
}

func assertNoJobFiles(t *testing.T, dir, jobID string) {
	t.Helper()
	err := filepath.WalkDir(dir, func(path string, _ os.DirEntry, err error) error {
		require.NoError(t, err)
		if path != dir {
			assert.NotContains(t, path, jobID, "leftover temp file")
		}
		return nil
	})
	require.NoError(t, err)
}

func TestVideoProcessor_Success(t *testing.T) {
	store := newLocalStore(t)
	tmp := t.TempDir()
	jobID := "9f1c2d3e-job"
	scenes := uploadScenes(t, store, jobID, true, false, true)
	renderer := &fakeRenderer{}
	p := NewVideoProcessor(store, renderer, VideoConfig{TempDir: tmp}, testLogger())

	res := p.Process(context.Background(), &domain.Job{ID: jobID, Scenes: scenes})

	require.Equal(t, domain.StatusCompleted, res.Status, res.ErrorMessage)
	assert.True(t, strings.HasPrefix(res.FinalVideoURL, "http://localhost:8080/assets/"+jobID+"/final_video.mp4?"))
	assert.Contains(t, res.FinalVideoURL, "sig=")

	require.Len(t, renderer.clips, 2)
	assert.Equal(t, 3, renderer.clips[1].Scene)
	assert.Equal(t, "scene_1.png", filepath.Base(renderer.clips[0].ImagePath))
	assert.Equal(t, "scene_3.wav", filepath.Base(renderer.clips[1].AudioPath))

	var video strings.Builder
	require.NoError(t, store.Download(context.Background(), blob.FinalVideoKey(jobID), &video))
	assert.Equal(t, "mp4", video.String())

	assertNoJobFiles(t, tmp, jobID)
}

func TestVideoProcessor_Failures(t *testing.T) {
	tests := []struct {
		name      string
		scenes    func(store *blob.Local, jobID string) domain.Scenes
		renderErr error
		skipped   int
		minRatio  float64
		wantMsg   string
	}{
		{
			name: "no renderable clips",
			scenes: func(store *blob.Local, jobID string) domain.Scenes {
				return domain.Scenes{{Narration: "n", AudioURL: "a", Error: "image generation: quota"}, {ImageURL: "i"}}
			},
			wantMsg: "no renderable clips",
		},
		{
			name: "render fault",
			scenes: func(store *blob.Local, jobID string) domain.Scenes {
				return uploadScenes(t, store, jobID, true)
			},
			renderErr: errors.New("ffmpeg: exit status 1"),
			wantMsg:   "Render failed: ffmpeg: exit status 1",
		},
		{
			name: "missing asset",
			scenes: func(store *blob.Local, jobID string) domain.Scenes {
				return domain.Scenes{{ImageURL: "u", ImageKey: jobID + "/scene_1.png", AudioURL: "u", AudioKey: jobID + "/scene_1.wav"}}
			},
			wantMsg: "Download failed for scene 1 image",
		},
		{
			name: "below renderable ratio",
			scenes: func(store *blob.Local, jobID string) domain.Scenes {
				return uploadScenes(t, store, jobID, true, false, false)
			},
			minRatio: 0.5,
			wantMsg:  "only 1 of 3 scenes are renderable",
		},
		{
			name: "clips lost in render",
			scenes: func(store *blob.Local, jobID string) domain.Scenes {
				return uploadScenes(t, store, jobID, true, true, true, true)
			},
			skipped:  3,
			minRatio: 0.5,
			wantMsg:  "only 1 of 4 scenes are rendered",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := newLocalStore(t)
			tmp := t.TempDir()
			jobID := "job-" + strings.ReplaceAll(tt.name, " ", "-")
			p := NewVideoProcessor(store, &fakeRenderer{err: tt.renderErr, skip: tt.skipped}, VideoConfig{TempDir: tmp, MinRenderableRatio: tt.minRatio}, testLogger())

			res := p.Process(context.Background(), &domain.Job{ID: jobID, Scenes: tt.scenes(store, jobID)})

			assert.Equal(t, domain.StatusCompileFailed, res.Status)
			assert.Contains(t, res.ErrorMessage, tt.wantMsg)
			assert.Empty(t, res.FinalVideoURL)
			assertNoJobFiles(t, tmp, jobID)
		})
	}
}

func TestVideoProcessor_DerivesKeysFromURLs(t *testing.T) {
	store := newLocalStore(t)
	jobID := "legacy-job"
	scenes := uploadScenes(t, store, jobID, true)
	scenes[0].ImageKey, scenes[0].AudioKey = "", ""

	p := NewVideoProcessor(store, &fakeRenderer{}, VideoConfig{TempDir: t.TempDir()}, testLogger())
	res := p.Process(context.Background(), &domain.Job{ID: jobID, Scenes: scenes})

	assert.Equal(t, domain.StatusCompleted, res.Status, res.ErrorMessage)
}

func TestPipeline_ScenesRoundTrip(t *testing.T) {
	jobs := storage.NewMemory()
	blobs := newLocalStore(t)
	images := &fakeImages{}
	speech := &fakeSpeech{}
	ctx := context.Background()

	job := jobs.Create("a fox", "fable")

	processors := []worker.Processor{
		NewScriptProcessor(&fakeScript{scenes: threeScenes()}, retry.Fixed(3, time.Millisecond), testLogger()),
		NewAssetProcessor(images, speech, blobs, testLogger()),
		NewVideoProcessor(blobs, &fakeRenderer{}, VideoConfig{TempDir: t.TempDir()}, testLogger()),
	}
	for _, p := range processors {
		w := worker.NewWorker(&worker.Config{
			Logger:    testLogger(),
			Store:     jobs,
			Processor: p,
			WorkerID:  "test-" + string(p.Stage()),
		})
		busy, err := w.RunOnce(ctx)
		require.NoError(t, err)
		require.True(t, busy)
	}

	// the asset stage saw exactly what the script stage wrote
	var prompts, narrations []string
	for _, s := range threeScenes() {
		prompts = append(prompts, s.ImagePrompt)
		narrations = append(narrations, s.Narration)
	}
	assert.Equal(t, prompts, images.prompts)
	assert.Equal(t, narrations, speech.texts)

	got, err := jobs.GetJobByID(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusCompleted, got.Status)
	require.Len(t, got.Scenes, 3)
	for i, s := range got.Scenes {
		assert.Equal(t, threeScenes()[i].Narration, s.Narration)
		assert.Equal(t, threeScenes()[i].ImagePrompt, s.ImagePrompt)
	}
	require.NotNil(t, got.FinalVideoURL)
}
