package tools

import (
	"bytes"
	"context"
	stderrors "errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/modelgate/modelgate/internal/log"
	"github.com/modelgate/modelgate/pkg/errors"
)

// fakeConnection records the last invocation so tests can assert routing.
type fakeConnection struct {
	lastName    string
	lastArgs    map[string]any
	lastHeaders map[string]string
	result      string
	err         error
	delay       time.Duration
}

func (c *fakeConnection) Invoke(_ context.Context, name string, args map[string]any, headers map[string]string) (string, error) {
	c.lastName = name
	c.lastArgs = args
	c.lastHeaders = headers
	if c.delay > 0 {
		time.Sleep(c.delay)
	}
	return c.result, c.err
}

type fakeProvider struct {
	conns map[string]*fakeConnection
}

func (p *fakeProvider) Connection(serverID string) (Connection, bool) {
	conn, ok := p.conns[serverID]
	return conn, ok
}

func TestExecutor_Native(t *testing.T) {
	def := NewNativeDefinition("echo", "echoes its input", nil,
		func(_ context.Context, args map[string]any) (string, error) {
			msg, _ := args["message"].(string)
			return msg, nil
		})

	e := NewExecutor(nil, nil, nil)
	result, err := e.Execute(context.Background(), def, `{"message":"hello"}`)
	require.NoError(t, err)
	assert.Equal(t, "hello", result)
}

func TestExecutor_Native_HandlerError(t *testing.T) {
	def := NewNativeDefinition("boom", "always fails", nil,
		func(context.Context, map[string]any) (string, error) {
			return "", stderrors.New("handler blew up")
		})

	e := NewExecutor(nil, nil, nil)
	_, err := e.Execute(context.Background(), def, "{}")
	require.Error(t, err)

	var execErr *errors.ExecutionError
	require.ErrorAs(t, err, &execErr)
	assert.Equal(t, "boom", execErr.Tool)
}

func TestExecutor_Native_NilHandler(t *testing.T) {
	def := NewNativeDefinition("stub", "no handler wired", nil, nil)

	e := NewExecutor(nil, nil, nil)
	_, err := e.Execute(context.Background(), def, "{}")

	var execErr *errors.ExecutionError
	require.ErrorAs(t, err, &execErr)
}

func TestExecutor_ArgumentDecoding(t *testing.T) {
	tests := []struct {
		name      string
		arguments string
		wantArgs  map[string]any
		wantErr   bool
	}{
		{name: "empty payload", arguments: "", wantArgs: map[string]any{}},
		{name: "whitespace payload", arguments: "  \n", wantArgs: map[string]any{}},
		{name: "json null", arguments: "null", wantArgs: map[string]any{}},
		{name: "object", arguments: `{"q":"x"}`, wantArgs: map[string]any{"q": "x"}},
		{name: "not an object", arguments: `[1,2]`, wantErr: true},
		{name: "malformed", arguments: `{"q":`, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got map[string]any
			def := NewNativeDefinition("capture", "", nil,
				func(_ context.Context, args map[string]any) (string, error) {
					got = args
					return "", nil
				})

			e := NewExecutor(nil, nil, nil)
			_, err := e.Execute(context.Background(), def, tt.arguments)
			if tt.wantErr {
				var valErr *errors.ValidationError
				require.ErrorAs(t, err, &valErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantArgs, got)
		})
	}
}

func TestExecutor_MCP_RoutesToOwningServer(t *testing.T) {
	// Two servers expose a tool named "search"; the call must reach the
	// connection of the server named in the definition, with the tool name
	// unqualified and the server's headers attached.
	alpha := &fakeConnection{result: "alpha results"}
	beta := &fakeConnection{result: "beta results"}
	provider := &fakeProvider{conns: map[string]*fakeConnection{"alpha": alpha, "beta": beta}}

	r := NewRegistry(nil)
	require.NoError(t, r.RegisterFromServer(
		ServerInfo{ID: "alpha", Headers: map[string]string{"Authorization": "Bearer a"}},
		[]Listing{{Name: "search"}}))
	require.NoError(t, r.RegisterFromServer(
		ServerInfo{ID: "beta"},
		[]Listing{{Name: "search"}}))

	def, ok := r.FindByName("alpha.search")
	require.True(t, ok)

	e := NewExecutor(provider, nil, nil)
	result, err := e.Execute(context.Background(), def, `{"query":"go"}`)
	require.NoError(t, err)

	assert.Equal(t, "alpha results", result)
	assert.Equal(t, "search", alpha.lastName, "server receives the unqualified name")
	assert.Equal(t, map[string]any{"query": "go"}, alpha.lastArgs)
	assert.Equal(t, "Bearer a", alpha.lastHeaders["Authorization"])
	assert.Empty(t, beta.lastName, "the other server must not be invoked")
}

func TestExecutor_MCP_ConnectionNotFound(t *testing.T) {
	def := NewMCPDefinition(ServerInfo{ID: "gone"}, "search", "", nil)

	tests := []struct {
		name  string
		conns ConnectionProvider
	}{
		{name: "nil provider", conns: nil},
		{name: "unknown server", conns: &fakeProvider{conns: map[string]*fakeConnection{}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := NewExecutor(tt.conns, nil, nil)
			_, err := e.Execute(context.Background(), def, "{}")

			var nfErr *errors.NotFoundError
			require.ErrorAs(t, err, &nfErr)
			assert.Equal(t, "connection", nfErr.Resource)
			assert.Equal(t, "gone", nfErr.ID)
		})
	}
}

func TestExecutor_MCP_Timeout(t *testing.T) {
	conn := &fakeConnection{err: context.DeadlineExceeded, delay: 5 * time.Millisecond}
	provider := &fakeProvider{conns: map[string]*fakeConnection{"alpha": conn}}
	def := NewMCPDefinition(ServerInfo{ID: "alpha"}, "slow", "", nil)

	e := NewExecutor(provider, nil, nil)
	_, err := e.Execute(context.Background(), def, "{}")

	var toErr *errors.TimeoutError
	require.ErrorAs(t, err, &toErr)
	assert.GreaterOrEqual(t, toErr.Duration, 5*time.Millisecond, "the error reports the elapsed call time")
}

func TestExecutor_MCP_RemoteFault(t *testing.T) {
	conn := &fakeConnection{err: stderrors.New("server rejected the call")}
	provider := &fakeProvider{conns: map[string]*fakeConnection{"alpha": conn}}
	def := NewMCPDefinition(ServerInfo{ID: "alpha"}, "search", "", nil)

	e := NewExecutor(provider, nil, nil)
	_, err := e.Execute(context.Background(), def, "{}")

	var execErr *errors.ExecutionError
	require.ErrorAs(t, err, &execErr)
	assert.Equal(t, "alpha", execErr.Server)
	assert.Equal(t, "alpha.search", execErr.Tool)
}

func TestExecutor_LogsCallContext(t *testing.T) {
	var buf bytes.Buffer
	logger := log.New(&log.Config{Level: "debug", Format: log.FormatJSON, Output: &buf})

	def := NewNativeDefinition("echo", "", nil,
		func(context.Context, map[string]any) (string, error) { return "ok", nil })

	e := NewExecutor(nil, logger, nil)
	_, err := e.Execute(context.Background(), def, "{}")
	require.NoError(t, err)

	out := buf.String()
	assert.Contains(t, out, `"`+log.ToolKey+`":"echo"`)
	assert.Contains(t, out, `"`+log.CallIDKey+`":"`)
	assert.Contains(t, out, `"`+log.DurationKey+`":`)
}

func TestExecutor_NilDefinition(t *testing.T) {
	e := NewExecutor(nil, nil, nil)
	_, err := e.Execute(context.Background(), nil, "{}")

	var valErr *errors.ValidationError
	require.ErrorAs(t, err, &valErr)
}
