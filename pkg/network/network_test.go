package network

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeHandler struct {
	forwardResult  []byte
	forwardErr     error
	queryResult    []byte
	queryDelay     time.Duration
	learnerCalls   []AddLearnerBody
	membershipBody ChangeMembershipBody
	metrics        GetMetricsResponse
}

func (f *fakeHandler) HandleClientForward(ctx context.Context, body ClientForwardBody) (ClientForwardResponse, error) {
	if f.forwardErr != nil {
		return ClientForwardResponse{}, f.forwardErr
	}
	return ClientForwardResponse{Result: f.forwardResult}, nil
}

func (f *fakeHandler) HandleQuery(ctx context.Context, body QueryBody) (QueryResponse, error) {
	if f.queryDelay > 0 {
		time.Sleep(f.queryDelay)
	}
	return QueryResponse{Result: f.queryResult}, nil
}

func (f *fakeHandler) HandleAddLearner(ctx context.Context, body AddLearnerBody) error {
	f.learnerCalls = append(f.learnerCalls, body)
	return nil
}

func (f *fakeHandler) HandleChangeMembership(ctx context.Context, body ChangeMembershipBody) error {
	f.membershipBody = body
	return nil
}

func (f *fakeHandler) HandleGetMetrics(ctx context.Context) (GetMetricsResponse, error) {
	return f.metrics, nil
}

func startTestServer(t *testing.T, h Handler) (*Server, *Client) {
	t.Helper()
	srv, err := NewServer("127.0.0.1:0", h, zerolog.Nop())
	require.NoError(t, err)
	go func() {
		_ = srv.Serve()
	}()
	t.Cleanup(func() { _ = srv.Close() })
	return srv, NewClient(srv.Addr().String())
}

func TestClientForwardRoundTrip(t *testing.T) {
	h := &fakeHandler{forwardResult: []byte("ok")}
	_, client := startTestServer(t, h)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	resp, err := client.ClientForward(ctx, 1, []byte("payload"))
	require.NoError(t, err)
	assert.Equal(t, []byte("ok"), resp.Result)
}

func TestClientForwardPropagatesHandlerError(t *testing.T) {
	h := &fakeHandler{forwardErr: errors.New("not leader")}
	_, client := startTestServer(t, h)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	_, err := client.ClientForward(ctx, 1, []byte("payload"))
	assert.ErrorContains(t, err, "not leader")
}

func TestAddLearnerRoundTrip(t *testing.T) {
	h := &fakeHandler{}
	_, client := startTestServer(t, h)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	err := client.AddLearner(ctx, 1, 7, "127.0.0.1:9000")
	require.NoError(t, err)
	require.Len(t, h.learnerCalls, 1)
	assert.Equal(t, uint64(7), h.learnerCalls[0].NodeID)
	assert.Equal(t, "127.0.0.1:9000", h.learnerCalls[0].Address)
}

func TestChangeMembershipRoundTrip(t *testing.T) {
	h := &fakeHandler{}
	_, client := startTestServer(t, h)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	members := []Member{{NodeID: 1, Address: "a:8300"}, {NodeID: 2, Address: "b:8300"}}
	err := client.ChangeMembership(ctx, 1, members)
	require.NoError(t, err)
	assert.Equal(t, members, h.membershipBody.Members)
}

func TestGetMetricsRoundTrip(t *testing.T) {
	h := &fakeHandler{metrics: GetMetricsResponse{Term: 3, LastLogIndex: 42, LastApplied: 40, State: "Follower"}}
	_, client := startTestServer(t, h)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	resp, err := client.GetMetrics(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, uint64(42), resp.LastLogIndex)
	assert.Equal(t, "Follower", resp.State)
}

func TestQueryRoundTrip(t *testing.T) {
	h := &fakeHandler{queryResult: []byte("release")}
	_, client := startTestServer(t, h)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	resp, err := client.Query(ctx, 1, []byte("payload"))
	require.NoError(t, err)
	assert.Equal(t, []byte("release"), resp.Result)
}

// TestClientMultiplexesConcurrentCallsOnOneConnection asserts the
// control-plane link's defining property: many concurrent RPCs issued
// through the same Client share one TCP connection and still each get
// their own correctly-correlated response, even when the server
// finishes them out of order.
func TestClientMultiplexesConcurrentCallsOnOneConnection(t *testing.T) {
	h := &fakeHandler{queryDelay: 50 * time.Millisecond}
	_, client := startTestServer(t, h)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	const n = 8
	var wg sync.WaitGroup
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := client.Query(ctx, 1, []byte(fmt.Sprintf("payload-%d", i)))
			errs[i] = err
		}(i)
	}
	wg.Wait()
	for i, err := range errs {
		assert.NoError(t, err, "call %d", i)
	}

	client.mu.Lock()
	dialedOnce := client.conn != nil
	client.mu.Unlock()
	assert.True(t, dialedOnce, "client should still hold its single persistent connection")
}

func TestClientCloseFailsPendingCalls(t *testing.T) {
	h := &fakeHandler{queryDelay: time.Second}
	_, client := startTestServer(t, h)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	errCh := make(chan error, 1)
	go func() {
		_, err := client.Query(ctx, 1, []byte("payload"))
		errCh <- err
	}()

	time.Sleep(20 * time.Millisecond)
	require.NoError(t, client.Close())

	select {
	case err := <-errCh:
		assert.Error(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Close did not unblock the pending call")
	}
}
