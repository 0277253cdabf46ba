package server

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/woozymasta/rpf"
	"github.com/woozymasta/rpf/internal/inventory"
	"github.com/woozymasta/rpf/internal/session"
	"github.com/woozymasta/rpf/internal/testutil"
	"github.com/woozymasta/rpf/internal/vfs"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type fixture struct {
	srv  *httptest.Server
	svc  *vfs.Service
	path string
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	reg := session.NewRegistry(rpf.Options{}, nil)
	t.Cleanup(reg.CloseAll)

	svc, err := vfs.NewService(reg, &vfs.Resolver{TempDir: t.TempDir()}, 4, nil)
	require.NoError(t, err)

	srv := httptest.NewServer(New(svc, nil).Handler())
	t.Cleanup(srv.Close)

	return &fixture{srv: srv, svc: svc, path: testutil.Scenario(t, t.TempDir())}
}

// do sends a request and decodes the envelope, with Data decoded into data when non-nil.
func (f *fixture) do(t *testing.T, method string, target string, body []byte, data any) (int, Envelope) {
	t.Helper()

	req, err := http.NewRequest(method, f.srv.URL+target, bytes.NewReader(body))
	require.NoError(t, err)

	resp, err := f.srv.Client().Do(req)
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()

	var raw struct {
		Success bool            `json:"success"`
		Data    json.RawMessage `json:"data"`
		Error   string          `json:"error"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&raw))
	if data != nil && len(raw.Data) > 0 {
		require.NoError(t, json.Unmarshal(raw.Data, data))
	}

	return resp.StatusCode, Envelope{Success: raw.Success, Error: raw.Error}
}

func (f *fixture) open(t *testing.T) string {
	t.Helper()

	body, err := json.Marshal(OpenRequest{Path: f.path})
	require.NoError(t, err)

	var info SessionInfo
	status, env := f.do(t, http.MethodPost, "/sessions", body, &info)
	require.Equal(t, http.StatusCreated, status, env.Error)
	require.True(t, env.Success)
	require.NotEmpty(t, info.ID)
	return info.ID
}

func TestSessionLifecycle(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	id := f.open(t)

	var p Payload
	status, env := f.do(t, http.MethodGet, "/sessions/"+id+"/entries?path=sub.rpf%5Cx.txt", nil, &p)
	require.Equal(t, http.StatusOK, status, env.Error)
	require.Equal(t, []byte("nested-x"), p.Data)
	require.Equal(t, 8, p.Size)

	status, _ = f.do(t, http.MethodPut, "/sessions/"+id+"/entries?path=common/data/handling.meta", []byte("<new/>"), nil)
	require.Equal(t, http.StatusOK, status)

	status, _ = f.do(t, http.MethodGet, "/sessions/"+id+"/entries?path=common/data/handling.meta", nil, &p)
	require.Equal(t, http.StatusOK, status)
	require.Equal(t, "<new/>", string(p.Data))

	status, env = f.do(t, http.MethodPut, "/sessions/"+id+"/entries?path=common/missing.meta", []byte("x"), nil)
	require.Equal(t, http.StatusNotFound, status)
	require.False(t, env.Success)

	status, _ = f.do(t, http.MethodDelete, "/sessions/"+id, nil, nil)
	require.Equal(t, http.StatusOK, status)

	status, env = f.do(t, http.MethodDelete, "/sessions/"+id, nil, nil)
	require.Equal(t, http.StatusNotFound, status)
	require.Contains(t, env.Error, "archive not found")
}

func TestOpenErrors(t *testing.T) {
	t.Parallel()

	f := newFixture(t)

	status, env := f.do(t, http.MethodPost, "/sessions", []byte("{"), nil)
	require.Equal(t, http.StatusBadRequest, status)
	require.False(t, env.Success)

	status, _ = f.do(t, http.MethodPost, "/sessions", []byte(`{"path":""}`), nil)
	require.Equal(t, http.StatusBadRequest, status)

	status, _ = f.do(t, http.MethodPost, "/sessions", []byte(`{"path":"/nope/v.rpf"}`), nil)
	require.Equal(t, http.StatusNotFound, status)
}

func TestExtractErrors(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	id := f.open(t)

	status, env := f.do(t, http.MethodGet, "/sessions/"+id+"/entries", nil, nil)
	require.Equal(t, http.StatusBadRequest, status)
	require.Contains(t, env.Error, `"path"`)

	status, _ = f.do(t, http.MethodGet, "/sessions/"+id+"/entries?path=sub.rpf/missing.txt", nil, nil)
	require.Equal(t, http.StatusNotFound, status)

	status, _ = f.do(t, http.MethodGet, "/sessions/unknown/entries?path=a", nil, nil)
	require.Equal(t, http.StatusNotFound, status)
}

func TestExtractRaw(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	id := f.open(t)

	var p Payload
	status, env := f.do(t, http.MethodGet, "/sessions/"+id+"/raw?path=textures/car.ytd", nil, &p)
	require.Equal(t, http.StatusOK, status, env.Error)
	require.NotEmpty(t, p.Data)
	require.Equal(t, len(p.Data), p.Size)
}

func TestListFindAnalyze(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	id := f.open(t)

	var listing inventory.Listing
	status, env := f.do(t, http.MethodGet, "/sessions/"+id+"/list?path=sub.rpf", nil, &listing)
	require.Equal(t, http.StatusOK, status, env.Error)
	require.Equal(t, 1, listing.TotalFiles)
	require.Equal(t, 1, listing.TotalDirectories)

	var found FindResult
	status, _ = f.do(t, http.MethodGet, "/sessions/"+id+"/find?name=Y.TXT", nil, &found)
	require.Equal(t, http.StatusOK, status)
	require.Equal(t, []string{`sub.rpf\inner\deep.rpf\y.txt`}, found.Paths)

	status, _ = f.do(t, http.MethodGet, "/sessions/"+id+"/find?name=none.bin", nil, &found)
	require.Equal(t, http.StatusOK, status)
	require.Empty(t, found.Paths)

	var wg sync.WaitGroup
	stats := make([]inventory.Statistics, 4)
	for i := range stats {
		wg.Go(func() {
			resp, err := f.srv.Client().Get(f.srv.URL + "/sessions/" + id + "/analyze?recursive=true")
			if !assert.NoError(t, err) {
				return
			}
			defer func() { _ = resp.Body.Close() }()

			assert.Equal(t, http.StatusOK, resp.StatusCode)
			env := Envelope{Data: &stats[i]}
			assert.NoError(t, json.NewDecoder(resp.Body).Decode(&env))
		})
	}
	wg.Wait()

	for _, st := range stats {
		require.Equal(t, 2, st.NestedContainers)
		require.Equal(t, 1, st.ResourceFiles)
	}
}

func TestDefragStream(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	id := f.open(t)

	url := "ws" + strings.TrimPrefix(f.srv.URL, "http") + "/sessions/" + id + "/defrag"
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	_ = resp.Body.Close()
	defer func() { _ = conn.Close() }()

	var (
		types []string
		last  = -1
	)
	for {
		var msg Message
		if err := conn.ReadJSON(&msg); err != nil {
			require.True(t, websocket.IsCloseError(err, websocket.CloseNormalClosure), err)
			break
		}

		types = append(types, msg.Type)
		if msg.Type == MessageProgress {
			var p Progress
			require.NoError(t, json.Unmarshal(msg.Payload, &p))
			require.Greater(t, p.Percent, last)
			last = p.Percent
		}
	}

	require.Equal(t, MessagePlan, types[0])
	require.Equal(t, MessageDone, types[len(types)-1])
	require.Equal(t, 100, last)

	var p Payload
	status, env := f.do(t, http.MethodGet, "/sessions/"+id+"/entries?path=sub.rpf/inner/deep.rpf/y.txt", nil, &p)
	require.Equal(t, http.StatusOK, status, env.Error)
	require.Equal(t, "deep-y", string(p.Data))
}

func TestDefragUnknownSession(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	status, _ := f.do(t, http.MethodGet, "/sessions/unknown/defrag", nil, nil)
	require.Equal(t, http.StatusNotFound, status)
}

func TestStatusFor(t *testing.T) {
	t.Parallel()

	require.Equal(t, http.StatusOK, StatusFor(nil))
	require.Equal(t, http.StatusNotFound, StatusFor(vfs.ErrNotFound))
	require.Equal(t, http.StatusConflict, StatusFor(rpf.ErrReadOnly))
	require.Equal(t, http.StatusUnprocessableEntity, StatusFor(rpf.ErrInvalidHeader))
	require.Equal(t, http.StatusUnprocessableEntity, StatusFor(vfs.ErrDepthExceeded))
	require.Equal(t, http.StatusInternalServerError, StatusFor(http.ErrAbortHandler))
}
