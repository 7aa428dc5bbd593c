package server

import (
	"io"
	"strings"
	"testing"

	"github.com/gorilla/websocket"
)

func TestDebugWSHandshake(t *testing.T) {
	env := newTestEnv(t, nil)
	url := "ws" + strings.TrimPrefix(env.server.URL, "http") + "/v1/sessions/abc/ws"
	_, resp, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		if resp != nil {
			body, _ := io.ReadAll(resp.Body)
			resp.Body.Close()
			t.Fatalf("dial err=%v status=%s body=%q", err, resp.Status, body)
		}
		t.Fatalf("dial err=%v resp=nil", err)
	}
}
