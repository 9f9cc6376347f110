package a2a

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAwait_PollsUntilSettled(t *testing.T) {
	var polls atomic.Int32
	ts := httptest.NewServer(rpcHandler(t, func(req JSONRPCRequest) JSONRPCResponse {
		assert.Equal(t, MethodGetTask, req.Method)
		state := TaskStateWorking
		if polls.Add(1) >= 3 {
			state = TaskStateCompleted
		}
		result, _ := json.Marshal(Task{ID: "t-1", Status: TaskStatus{State: state}})
		return JSONRPCResponse{JSONRPC: JSONRPCVersion, ID: req.ID, Result: result}
	}))
	defer ts.Close()

	start := &Task{ID: "t-1", Status: TaskStatus{State: TaskStateSubmitted}}
	task, err := Await(context.Background(), NewHTTPClient(), ts.URL, start, time.Millisecond)
	require.NoError(t, err)
	assert.Equal(t, TaskStateCompleted, task.Status.State)
	assert.Equal(t, int32(3), polls.Load())
}

func TestAwait_AlreadySettled(t *testing.T) {
	task := &Task{ID: "t-1", Status: TaskStatus{State: TaskStateInputRequired}}
	got, err := Await(context.Background(), NewHTTPClient(), "http://unused.invalid", task, 0)
	require.NoError(t, err)
	assert.Same(t, task, got)
}

func TestAwait_ContextCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	task := &Task{ID: "t-1", Status: TaskStatus{State: TaskStateWorking}}
	_, err := Await(ctx, NewHTTPClient(), "http://unused.invalid", task, time.Hour)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestTaskText(t *testing.T) {
	task := &Task{Artifacts: []Artifact{{Parts: []Part{TextPart("a"), TextPart("b")}}}}
	assert.Equal(t, "ab", TaskText(task))

	task = &Task{Status: TaskStatus{Message: &Message{Parts: []Part{TextPart("from status")}}}}
	assert.Equal(t, "from status", TaskText(task))

	assert.Empty(t, TaskText(&Task{}))
}

func TestWithHeader(t *testing.T) {
	var auth, agent string
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth = r.Header.Get("Authorization")
		agent = r.Header.Get("User-Agent")
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(AgentCard{Name: "judge"})
	}))
	defer ts.Close()

	client := NewHTTPClient(WithHeader("Authorization", "Bearer secret"))
	card, err := client.DiscoverAgent(context.Background(), ts.URL)
	require.NoError(t, err)
	assert.Equal(t, "judge", card.Name)
	assert.Equal(t, "Bearer secret", auth)
	assert.Equal(t, "trident", agent)
}
