package downloads

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/mediaforge/mediaforge/internal/fetch"
	"github.com/mediaforge/mediaforge/internal/probe"
	"github.com/mediaforge/mediaforge/internal/task"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockProber struct {
	info *probe.SourceInfo
	err  error
}

func (prober *mockProber) Probe(_ context.Context, _ string) (*probe.SourceInfo, error) {
	return prober.info, prober.err
}

type mockFetcher struct {
	taskID   uuid.UUID
	err      error
	lastKind fetch.MediaKind
}

func (fetcher *mockFetcher) Fetch(_ string, _ string, kind fetch.MediaKind, _ fetch.Options) (uuid.UUID, error) {
	fetcher.lastKind = kind
	return fetcher.taskID, fetcher.err
}

type testValidator struct {
	validate *validator.Validate
}

func (tv *testValidator) Validate(request any) error {
	return tv.validate.Struct(request)
}

func performJSONRequest(t *testing.T, controller *Controller, target string, body string) *httptest.ResponseRecorder {
	t.Helper()

	ec := echo.New()
	ec.Validator = &testValidator{validate: validator.New()}
	controller.SetRoutes(ec.Group("/api"))

	request := httptest.NewRequest(http.MethodPost, target, strings.NewReader(body))
	request.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)

	recorder := httptest.NewRecorder()
	ec.ServeHTTP(recorder, request)

	return recorder
}

func Test_DownloadsController_Analyze_ReturnsSourceMetadata(t *testing.T) {
	prober := &mockProber{info: &probe.SourceInfo{
		Title:    "some talk",
		Duration: time.Minute*10 + time.Second*30,
		Source:   "youtube",
		Formats: []probe.FormatDescriptor{
			{ID: "22", Quality: "720p", Resolution: "1280x720", Ext: "mp4", HasVideo: true, HasAudio: true},
		},
	}}
	controller := New(prober, &mockFetcher{})

	recorder := performJSONRequest(t, controller, "/api/analyze", `{"url": "https://example.com/watch?v=x"}`)
	require.Equal(t, http.StatusOK, recorder.Code)

	var dto SourceDto
	require.NoError(t, json.Unmarshal(recorder.Body.Bytes(), &dto))
	assert.Equal(t, "some talk", dto.Title)
	assert.Equal(t, 630, dto.Duration)
	require.Len(t, dto.Formats, 1)
	assert.Equal(t, "22", dto.Formats[0].ID)
	assert.Equal(t, "720p", dto.Formats[0].Quality)
}

func Test_DownloadsController_Analyze_RejectsMalformedURL(t *testing.T) {
	controller := New(&mockProber{}, &mockFetcher{})

	recorder := performJSONRequest(t, controller, "/api/analyze", `{"url": "not a url"}`)
	assert.Equal(t, http.StatusBadRequest, recorder.Code)

	recorder = performJSONRequest(t, controller, "/api/analyze", `{}`)
	assert.Equal(t, http.StatusBadRequest, recorder.Code)
}

func Test_DownloadsController_Analyze_UnreachableSourceSurfaces(t *testing.T) {
	prober := &mockProber{err: task.NewError(task.UnreachableSource, "no route to host")}
	controller := New(prober, &mockFetcher{})

	recorder := performJSONRequest(t, controller, "/api/analyze", `{"url": "https://example.com/watch?v=x"}`)
	assert.Equal(t, http.StatusBadRequest, recorder.Code)
	assert.Contains(t, recorder.Body.String(), "unreachable_source")
}

func Test_DownloadsController_Download_AcceptsAndReturnsTaskID(t *testing.T) {
	fetcher := &mockFetcher{taskID: uuid.New()}
	controller := New(&mockProber{}, fetcher)

	body := `{"url": "https://example.com/watch?v=x", "format_id": "22", "kind": "audio", "options": {"codec": "mp3", "bitrate": 192}}`
	recorder := performJSONRequest(t, controller, "/api/download", body)
	require.Equal(t, http.StatusAccepted, recorder.Code)

	var response map[string]string
	require.NoError(t, json.Unmarshal(recorder.Body.Bytes(), &response))
	assert.Equal(t, fetcher.taskID.String(), response["task_id"])
	assert.Equal(t, fetch.KindAudio, fetcher.lastKind)
}

func Test_DownloadsController_Download_ValidatesRequest(t *testing.T) {
	controller := New(&mockProber{}, &mockFetcher{taskID: uuid.New()})

	tests := []struct {
		Summary string
		Body    string
	}{
		{"missing format id", `{"url": "https://example.com/watch?v=x", "kind": "video"}`},
		{"unknown kind", `{"url": "https://example.com/watch?v=x", "format_id": "22", "kind": "subtitles"}`},
		{"missing url", `{"format_id": "22", "kind": "video"}`},
	}

	for _, test := range tests {
		t.Run(test.Summary, func(t *testing.T) {
			recorder := performJSONRequest(t, controller, "/api/download", test.Body)
			assert.Equal(t, http.StatusBadRequest, recorder.Code)
		})
	}
}
