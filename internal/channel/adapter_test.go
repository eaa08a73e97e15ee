package channel

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"

	"github.com/hpungsan/reel/internal/errors"
	"github.com/hpungsan/reel/internal/job"
)

func waitDone(t *testing.T, j *job.Job) job.Snapshot {
	t.Helper()
	select {
	case <-j.Done():
	case <-time.After(5 * time.Second):
		t.Fatalf("job %s did not settle; state %s", j.ID(), j.State())
	}
	return j.Snapshot()
}

func requireMediaURL(result string) error {
	if !strings.HasPrefix(result, "https://") {
		return fmt.Errorf("completion result %q is not a media URL", result)
	}
	return nil
}

func TestAdapter_ProgressThenCompletion(t *testing.T) {
	src := &ScriptedSource{Steps: []Step{
		Message(`{"value":3,"max":10}`),
		Message(`{"status":"completed","result":"https://x/video.mp4"}`),
	}}
	a := NewAdapter(src, nil)
	j := job.New("j1", job.SlotClip, "clip-1")

	require.NoError(t, a.Open(context.Background(), OpenRequest{Job: j, Endpoint: "ws://backend/gen_status"}))
	snap := waitDone(t, j)

	require.Equal(t, job.StateSucceeded, snap.State)
	require.Equal(t, "https://x/video.mp4", snap.Result)
	require.Equal(t, []string{"ws://backend/gen_status"}, src.Dials())
	require.Nil(t, a.Active(job.SlotClip))
}

func TestAdapter_ProgressIsRecorded(t *testing.T) {
	src := &ScriptedSource{Steps: []Step{
		Message(`{"value":3,"max":10}`),
	}}
	a := NewAdapter(src, nil)
	j := job.New("j1", job.SlotAvatar, "")
	require.NoError(t, a.Open(context.Background(), OpenRequest{Job: j}))

	require.Eventually(t, func() bool {
		p := j.Snapshot().Progress
		return p != nil && p.Completed == 3
	}, 2*time.Second, 5*time.Millisecond)
	require.Equal(t, "Step 3 of 10", j.Snapshot().Describe())
	require.Same(t, j, a.Active(job.SlotAvatar))

	a.Shutdown(job.ReasonNavigated)
	snap := j.Snapshot()
	require.Equal(t, job.StateFailed, snap.State)
	require.Equal(t, job.ErrCancelled, snap.ErrorCode)
}

func TestAdapter_ErrorEventFailsJob(t *testing.T) {
	src := &ScriptedSource{Steps: []Step{
		Message(`{"status":"failed","error":"model crashed"}`),
		Message(`{"status":"completed","result":"https://late"}`),
	}}
	a := NewAdapter(src, nil)
	j := job.New("j1", job.SlotClip, "")
	require.NoError(t, a.Open(context.Background(), OpenRequest{Job: j}))

	snap := waitDone(t, j)
	require.Equal(t, job.StateFailed, snap.State)
	require.Equal(t, errors.ErrGenerationFailed, snap.ErrorCode)
	require.Equal(t, "model crashed", snap.ErrorMessage)
}

func TestAdapter_ReadErrorIsConnectionError(t *testing.T) {
	src := &ScriptedSource{Steps: []Step{
		Message(`{"value":1,"max":4}`),
		Fail(fmt.Errorf("reset by peer")),
	}}
	a := NewAdapter(src, nil)
	j := job.New("j1", job.SlotClip, "")
	require.NoError(t, a.Open(context.Background(), OpenRequest{Job: j}))

	snap := waitDone(t, j)
	require.Equal(t, errors.ErrConnection, snap.ErrorCode)
	require.Equal(t, "connection error", snap.ErrorMessage)
}

func TestAdapter_CloseWithoutCompletion(t *testing.T) {
	src := &ScriptedSource{Steps: []Step{Message(`{"value":1,"max":4}`), Hangup()}}
	a := NewAdapter(src, nil)
	j := job.New("j1", job.SlotClip, "")
	require.NoError(t, a.Open(context.Background(), OpenRequest{Job: j}))

	snap := waitDone(t, j)
	require.Equal(t, job.StateFailed, snap.State)
	require.Equal(t, errors.ErrConnection, snap.ErrorCode)
	require.Equal(t, "connection closed before completion", snap.ErrorMessage)
}

func TestAdapter_DialFailure(t *testing.T) {
	src := &ScriptedSource{DialErr: fmt.Errorf("refused")}
	a := NewAdapter(src, nil)
	j := job.New("j1", job.SlotAvatar, "")

	err := a.Open(context.Background(), OpenRequest{Job: j})
	require.True(t, errors.Is(err, errors.ErrConnection))

	snap := j.Snapshot()
	require.Equal(t, job.StateFailed, snap.State)
	require.Equal(t, errors.ErrConnection, snap.ErrorCode)
	require.Nil(t, a.Active(job.SlotAvatar))
}

func TestAdapter_UnrecognizedIgnored(t *testing.T) {
	src := &ScriptedSource{Steps: []Step{
		Message(`garbage`),
		Message(`{"type":"executing","data":{"node":"4"}}`),
		Message(`{"result":"https://x/ok.mp4"}`),
	}}
	a := NewAdapter(src, nil)
	j := job.New("j1", job.SlotClip, "")
	require.NoError(t, a.Open(context.Background(), OpenRequest{Job: j}))

	snap := waitDone(t, j)
	require.Equal(t, job.StateSucceeded, snap.State)
	require.Equal(t, "https://x/ok.mp4", snap.Result)
}

func TestAdapter_ValidateRejectsResult(t *testing.T) {
	src := &ScriptedSource{Steps: []Step{Message(`{"status":"completed","result":"not-a-url"}`)}}
	a := NewAdapter(src, nil)
	j := job.New("j1", job.SlotClip, "clip-1")
	require.NoError(t, a.Open(context.Background(), OpenRequest{Job: j, Validate: requireMediaURL}))

	snap := waitDone(t, j)
	require.Equal(t, job.StateFailed, snap.State)
	require.Equal(t, errors.ErrGenerationFailed, snap.ErrorCode)
	require.Empty(t, snap.Result)
}

func TestAdapter_NewJobSupersedesSlot(t *testing.T) {
	// first job never completes on its own
	src := &ScriptedSource{Steps: []Step{Message(`{"value":1,"max":10}`)}}
	a := NewAdapter(src, nil)

	first := job.New("first", job.SlotClip, "clip-1")
	require.NoError(t, a.Open(context.Background(), OpenRequest{Job: first}))

	src.Steps = []Step{Message(`{"status":"completed","result":"https://x/second.mp4"}`)}
	second := job.New("second", job.SlotClip, "clip-1")
	require.NoError(t, a.Open(context.Background(), OpenRequest{Job: second}))

	firstSnap := waitDone(t, first)
	require.Equal(t, job.StateFailed, firstSnap.State)
	require.Equal(t, job.ErrCancelled, firstSnap.ErrorCode)
	require.Equal(t, job.ReasonSuperseded, firstSnap.ErrorMessage)

	secondSnap := waitDone(t, second)
	require.Equal(t, job.StateSucceeded, secondSnap.State)
}

func TestAdapter_SlotsAreIndependent(t *testing.T) {
	src := &ScriptedSource{Steps: []Step{Message(`{"value":1,"max":10}`)}}
	a := NewAdapter(src, nil)

	avatar := job.New("a", job.SlotAvatar, "")
	clipJob := job.New("c", job.SlotClip, "clip-1")
	require.NoError(t, a.Open(context.Background(), OpenRequest{Job: avatar}))
	require.NoError(t, a.Open(context.Background(), OpenRequest{Job: clipJob}))

	a.Close(job.SlotClip, job.ReasonClipDeleted)
	require.Equal(t, job.StateFailed, clipJob.State())
	require.Same(t, avatar, a.Active(job.SlotAvatar))

	a.Shutdown(job.ReasonNavigated)
	require.Equal(t, job.StateFailed, avatar.State())
}

func TestAdapter_StartedJobRejected(t *testing.T) {
	a := NewAdapter(&ScriptedSource{}, nil)
	j := job.New("j", job.SlotClip, "")
	require.NoError(t, j.Start())

	err := a.Open(context.Background(), OpenRequest{Job: j})
	require.True(t, errors.Is(err, errors.ErrInvalidRequest))
}

func TestAdapter_WebSocketServer(t *testing.T) {
	upgrader := websocket.Upgrader{}
	clientIDs := make(chan string, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		clientIDs <- r.URL.Query().Get("clientId")
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		for _, msg := range []string{
			`{"type":"progress","data":{"value":5,"max":10}}`,
			`{"status":"completed","progress":100,"url":"https://cdn/x.mp4"}`,
		} {
			if err := conn.WriteMessage(websocket.TextMessage, []byte(msg)); err != nil {
				return
			}
		}
		// hold the connection until the client closes it
		_, _, _ = conn.ReadMessage()
	}))
	defer srv.Close()

	a := NewAdapter(NewWebSocketSource(), nil)
	j := job.New("ws", job.SlotAvatar, "")
	require.NoError(t, a.Open(context.Background(), OpenRequest{Job: j, Endpoint: srv.URL + "/gen_status?clientId=abc"}))

	snap := waitDone(t, j)
	require.Equal(t, job.StateSucceeded, snap.State)
	require.Equal(t, "https://cdn/x.mp4", snap.Result)
	require.Equal(t, "abc", <-clientIDs)
}

func TestAdapter_WebSocketServerCloses(t *testing.T) {
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"value":1,"max":3}`))
		_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, "bye"))
		conn.Close()
	}))
	defer srv.Close()

	a := NewAdapter(NewWebSocketSource(), nil)
	j := job.New("ws", job.SlotClip, "")
	require.NoError(t, a.Open(context.Background(), OpenRequest{Job: j, Endpoint: srv.URL}))

	snap := waitDone(t, j)
	require.Equal(t, job.StateFailed, snap.State)
	require.Equal(t, errors.ErrConnection, snap.ErrorCode)
}
