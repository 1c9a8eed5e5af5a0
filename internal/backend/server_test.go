package backend

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/prajwalbangera/interview-voice/internal/domain"
)

func newTestRouter(t *testing.T) (*gin.Engine, *Store) {
	t.Helper()
	store, err := NewStore(filepath.Join(t.TempDir(), "interviews.json"))
	require.NoError(t, err)
	return SetupRouter("release", NewServer(store, "ws://localhost:7880")), store
}

func doJSON(t *testing.T, r *gin.Engine, method, path string, body any, org string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	if org != "" {
		req.Header.Set("Organization", org)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestLifecycleRequiresOrganizationHeader(t *testing.T) {
	r, _ := newTestRouter(t)

	w := doJSON(t, r, http.MethodPost, "/start_livekit_interview/", map[string]any{"ref_num": "R1"}, "")
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = doJSON(t, r, http.MethodGet, "/get_livekit_token/?ref_num=R1&participant_name=p&room_name=r", nil, "")
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestStartMarksInterviewInProgress(t *testing.T) {
	r, store := newTestRouter(t)

	w := doJSON(t, r, http.MethodPost, "/start_livekit_interview/", map[string]any{
		"ref_num":         "NORMALIZED_TEST_001",
		"custom_duration": 30,
	}, "test_org")
	require.Equal(t, http.StatusOK, w.Code)

	iv, ok := store.GetByRef("NORMALIZED_TEST_001")
	require.True(t, ok)
	assert.Equal(t, domain.InterviewInProgress, iv.Status)
	assert.Equal(t, 30, iv.Duration)
	require.NotNil(t, iv.LiveStatus)
	assert.Equal(t, 30*60, iv.LiveStatus.RemainingSeconds)
}

func TestStartUnknownRefCreatesInterview(t *testing.T) {
	r, store := newTestRouter(t)

	w := doJSON(t, r, http.MethodPost, "/start_livekit_interview/", map[string]any{
		"ref_num":         "BRAND_NEW",
		"custom_duration": 15,
	}, "test_org")
	require.Equal(t, http.StatusOK, w.Code)

	iv, ok := store.GetByRef("BRAND_NEW")
	require.True(t, ok)
	assert.Equal(t, domain.InterviewInProgress, iv.Status)
}

func TestStartUnknownRefDefaultsDuration(t *testing.T) {
	r, store := newTestRouter(t)

	w := doJSON(t, r, http.MethodPost, "/start_livekit_interview/", map[string]any{
		"ref_num": "NO_DURATION",
	}, "test_org")
	require.Equal(t, http.StatusOK, w.Code)

	iv, ok := store.GetByRef("NO_DURATION")
	require.True(t, ok)
	assert.Equal(t, 60, iv.Duration)
	require.NotNil(t, iv.LiveStatus)
	assert.Equal(t, 60*60, iv.LiveStatus.RemainingSeconds)
}

func TestTokenEndpointIssuesMockCredential(t *testing.T) {
	r, _ := newTestRouter(t)

	w := doJSON(t, r, http.MethodGet,
		"/get_livekit_token/?ref_num=NORMALIZED_TEST_001&participant_name=candidate_prajwal&room_name=interview_NORMALIZED_TEST_001",
		nil, "test_org")
	require.Equal(t, http.StatusOK, w.Code)

	var resp map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, true, resp["success"])
	assert.Contains(t, resp["token"], "mock-token-")
	assert.Equal(t, "ws://localhost:7880", resp["livekit_url"])
	assert.Equal(t, "interview_NORMALIZED_TEST_001", resp["room_name"])
	assert.Equal(t, "candidate_prajwal", resp["participant_name"])
}

func TestTokenEndpointRejectsMissingParams(t *testing.T) {
	r, _ := newTestRouter(t)
	w := doJSON(t, r, http.MethodGet, "/get_livekit_token/?ref_num=R1", nil, "test_org")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestStopCompletesInterview(t *testing.T) {
	r, store := newTestRouter(t)

	doJSON(t, r, http.MethodPost, "/start_livekit_interview/", map[string]any{"ref_num": "NORMALIZED_TEST_001"}, "test_org")
	w := doJSON(t, r, http.MethodPost, "/stop_livekit_interview/", map[string]any{"ref_num": "NORMALIZED_TEST_001"}, "test_org")
	require.Equal(t, http.StatusOK, w.Code)

	iv, ok := store.GetByRef("NORMALIZED_TEST_001")
	require.True(t, ok)
	assert.Equal(t, domain.InterviewCompleted, iv.Status)
	require.NotNil(t, iv.LiveStatus)
	assert.NotNil(t, iv.LiveStatus.EndedAt)
	assert.Equal(t, float64(100), iv.LiveStatus.ProgressPercent)
}

func TestStopUnknownRefIs404(t *testing.T) {
	r, _ := newTestRouter(t)
	w := doJSON(t, r, http.MethodPost, "/stop_livekit_interview/", map[string]any{"ref_num": "NOPE"}, "test_org")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestInterviewStatusComputesProgress(t *testing.T) {
	r, store := newTestRouter(t)

	doJSON(t, r, http.MethodPost, "/start_livekit_interview/", map[string]any{
		"ref_num":         "NORMALIZED_TEST_001",
		"custom_duration": 30,
	}, "test_org")

	iv, ok := store.GetByRef("NORMALIZED_TEST_001")
	require.True(t, ok)

	w := doJSON(t, r, http.MethodGet, "/interviews/"+iv.ID+"/status", nil, "")
	require.Equal(t, http.StatusOK, w.Code)

	var ls domain.LiveStatus
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &ls))
	assert.Equal(t, domain.InterviewInProgress, ls.Status)
	assert.LessOrEqual(t, ls.RemainingSeconds, 30*60)
	assert.GreaterOrEqual(t, ls.ProgressPercent, float64(0))
}

func TestMetricsAggregate(t *testing.T) {
	r, store := newTestRouter(t)

	doJSON(t, r, http.MethodPost, "/interviews", map[string]any{
		"ref_num": "R2", "candidate_name": "A", "position": "Engineer", "duration": 40,
	}, "")
	doJSON(t, r, http.MethodPost, "/start_livekit_interview/", map[string]any{"ref_num": "R2"}, "test_org")

	iv, ok := store.GetByRef("R2")
	require.True(t, ok)
	iv.Evaluation = &domain.Evaluation{OverallScore: 80, TechnicalScore: 82, CommunicationScore: 78, ProblemSolvingScore: 80}
	require.NoError(t, store.Upsert(iv))

	w := doJSON(t, r, http.MethodGet, "/interviews/metrics", nil, "")
	require.Equal(t, http.StatusOK, w.Code)

	var m domain.Metrics
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &m))
	assert.Equal(t, 2, m.TotalInterviews, "seeded interview plus created one")
	assert.Equal(t, 1, m.ActiveInterviews)
	require.NotNil(t, m.AverageScore)
	assert.Equal(t, float64(80), *m.AverageScore)

	require.Len(t, m.InterviewsByRole, 2)
	assert.Equal(t, "Engineer", m.InterviewsByRole[0].Role)
	assert.Equal(t, 1, m.InterviewsByRole[0].Count)
	require.NotNil(t, m.InterviewsByRole[0].AverageScore)
	assert.Equal(t, float64(80), *m.InterviewsByRole[0].AverageScore)
	assert.Equal(t, "Senior AI Engineer", m.InterviewsByRole[1].Role)
	assert.Nil(t, m.InterviewsByRole[1].AverageScore)
}

func TestTranscriptDownload(t *testing.T) {
	r, store := newTestRouter(t)

	iv, ok := store.GetByRef("NORMALIZED_TEST_001")
	require.True(t, ok)
	iv.TranscriptEntries = []domain.TranscriptEntry{
		{ID: "t1", Timestamp: time.Now().UTC(), Speaker: "interviewer", Text: "Tell me about yourself."},
		{ID: "t2", Timestamp: time.Now().UTC(), Speaker: "candidate", Text: "I build distributed systems."},
	}
	require.NoError(t, store.Upsert(iv))

	w := doJSON(t, r, http.MethodGet, "/interviews/"+iv.ID+"/transcript", nil, "")
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		InterviewID string                   `json:"interview_id"`
		Candidate   string                   `json:"candidate"`
		Entries     []domain.TranscriptEntry `json:"entries"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, iv.ID, resp.InterviewID)
	assert.Equal(t, iv.CandidateName, resp.Candidate)
	require.Len(t, resp.Entries, 2)
	assert.Equal(t, "interviewer", resp.Entries[0].Speaker)
}

func TestTranscriptEmptyAndMissing(t *testing.T) {
	r, store := newTestRouter(t)

	iv, ok := store.GetByRef("NORMALIZED_TEST_001")
	require.True(t, ok)

	w := doJSON(t, r, http.MethodGet, "/interviews/"+iv.ID+"/transcript", nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"entries":[]`)

	w = doJSON(t, r, http.MethodGet, "/interviews/nope/transcript", nil, "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestTemplatesListed(t *testing.T) {
	r, _ := newTestRouter(t)
	w := doJSON(t, r, http.MethodGet, "/templates", nil, "")
	require.Equal(t, http.StatusOK, w.Code)

	var ts []domain.Template
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &ts))
	require.Len(t, ts, 2)
	assert.Equal(t, "template-frontend", ts[0].ID)
}

func TestStorePersistsAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "interviews.json")

	store, err := NewStore(path)
	require.NoError(t, err)
	require.NoError(t, store.Upsert(domain.Interview{ID: "x1", RefNum: "R9", CandidateName: "B", Duration: 20}))

	reopened, err := NewStore(path)
	require.NoError(t, err)
	iv, ok := reopened.GetByRef("R9")
	require.True(t, ok)
	assert.Equal(t, "x1", iv.ID)
}
