package telegram

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testToken = "123456:TEST"

type apiCall struct {
	Method string
	Params map[string]string
}

// markup decodes the JSON-encoded reply_markup param.
func (c apiCall) markup(t *testing.T) map[string]any {
	t.Helper()

	var markup map[string]any
	require.NoError(t, json.Unmarshal([]byte(c.Params["reply_markup"]), &markup))
	return markup
}

// fakeBotAPI records form-encoded calls and answers with per-method handlers.
type fakeBotAPI struct {
	t        *testing.T
	mu       sync.Mutex
	calls    []apiCall
	handlers map[string]func(params map[string]string) (int, string)
	server   *httptest.Server
}

func newFakeBotAPI(t *testing.T) *fakeBotAPI {
	t.Helper()

	api := &fakeBotAPI{t: t, handlers: map[string]func(map[string]string) (int, string){}}
	api.server = httptest.NewServer(http.HandlerFunc(api.serve))
	t.Cleanup(api.server.Close)

	return api
}

func (a *fakeBotAPI) serve(w http.ResponseWriter, r *http.Request) {
	prefix := "/bot" + testToken + "/"
	if !strings.HasPrefix(r.URL.Path, prefix) {
		w.WriteHeader(http.StatusNotFound)
		_, _ = io.WriteString(w, `{"ok":false,"error_code":404,"description":"Not Found"}`)
		return
	}
	method := strings.TrimPrefix(r.URL.Path, prefix)

	assert.NoError(a.t, r.ParseForm())
	params := make(map[string]string, len(r.PostForm))
	for key := range r.PostForm {
		params[key] = r.PostForm.Get(key)
	}

	a.mu.Lock()
	a.calls = append(a.calls, apiCall{Method: method, Params: params})
	handler := a.handlers[method]
	a.mu.Unlock()

	status, payload := http.StatusOK, defaultResult(method)
	if handler != nil {
		status, payload = handler(params)
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = io.WriteString(w, payload)
}

func defaultResult(method string) string {
	switch method {
	case "getMe":
		return `{"ok":true,"result":{"id":1,"is_bot":true,"first_name":"Intake","username":"intake_test_bot"}}`
	case "sendMessage":
		return `{"ok":true,"result":{"message_id":1,"date":0,"chat":{"id":1,"type":"private"}}}`
	default:
		return `{"ok":true,"result":true}`
	}
}

func (a *fakeBotAPI) handle(method string, fn func(params map[string]string) (int, string)) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.handlers[method] = fn
}

func (a *fakeBotAPI) callsTo(method string) []apiCall {
	a.mu.Lock()
	defer a.mu.Unlock()

	var out []apiCall
	for _, call := range a.calls {
		if call.Method == method {
			out = append(out, call)
		}
	}
	return out
}

func (a *fakeBotAPI) client() *Client {
	return a.clientWith(ClientOptions{})
}

func (a *fakeBotAPI) clientWith(opts ClientOptions) *Client {
	a.t.Helper()

	opts.BaseURL = a.server.URL
	opts.Token = testToken
	opts.HTTPClient = a.server.Client()

	client, err := NewClient(context.Background(), opts)
	require.NoError(a.t, err)
	return client
}
