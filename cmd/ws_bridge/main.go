// Command ws_bridge exposes a stdio Agent Client Protocol subprocess (for
// example "amcp acp") over a WebSocket. Inbound client frames are JSON-RPC
// requests forwarded straight to the subprocess's stdin unchanged; outbound
// session/update notifications are decoded through protocol.FromACPUpdate
// and re-encoded as the same event frame the amcpd server's own /ws
// endpoint sends, so a browser client speaks one WS event vocabulary
// regardless of whether it is talking to amcpd directly or to a bridged
// subprocess agent.
package main

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/exec"

	"github.com/amcp-dev/amcp/protocol"
	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

func main() {
	cmdArgs := os.Args[1:]
	if len(cmdArgs) == 0 {
		fmt.Fprintln(os.Stderr, "usage: ws_bridge <agent binary> [args...]")
		os.Exit(1)
	}

	http.HandleFunc("/ws", handleWS(cmdArgs))
	fmt.Println("ws_bridge listening on ws://localhost:8080/ws")
	log.Fatal(http.ListenAndServe(":8080", nil))
}

// notification is the subset of a JSON-RPC message this bridge cares
// about: only session/update notifications get translated, everything
// else (responses, other notifications) passes straight through as raw
// text so the bridge never needs to understand the whole ACP method set.
type notification struct {
	Method string          `json:"method"`
	Params json.RawMessage `json:"params"`
}

type sessionUpdateParams struct {
	SessionID string                 `json:"sessionId"`
	Update    map[string]interface{} `json:"update"`
}

func handleWS(cmdArgs []string) func(http.ResponseWriter, *http.Request) {
	adapter := protocol.New()

	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			log.Println("upgrade error:", err)
			return
		}
		defer conn.Close()

		cmd := exec.Command(cmdArgs[0], cmdArgs[1:]...)
		stdin, err := cmd.StdinPipe()
		if err != nil {
			log.Println("stdin pipe:", err)
			return
		}
		stdout, err := cmd.StdoutPipe()
		if err != nil {
			log.Println("stdout pipe:", err)
			return
		}
		stderr, err := cmd.StderrPipe()
		if err != nil {
			log.Println("stderr pipe:", err)
			return
		}
		if err := cmd.Start(); err != nil {
			log.Println("start agent:", err)
			return
		}
		defer cmd.Wait()

		go relayStdoutToWS(conn, stdout, adapter)
		go relayStderrToWS(conn, stderr)

		for {
			_, msg, err := conn.ReadMessage()
			if err != nil {
				log.Println("ws read error:", err)
				return
			}
			if _, err := stdin.Write(append(msg, '\n')); err != nil {
				log.Println("stdin write error:", err)
				return
			}
		}
	}
}

// relayStdoutToWS reads the subprocess's line-delimited JSON-RPC stream,
// translating session/update notifications into the same event frame the
// server package's own WebSocket handler emits and passing every other
// message through as-is so a client's own JSON-RPC response handling is
// unaffected.
func relayStdoutToWS(conn *websocket.Conn, stdout io.Reader, adapter *protocol.Adapter) {
	scanner := bufio.NewScanner(bufio.NewReader(stdout))
	for scanner.Scan() {
		line := scanner.Bytes()

		var n notification
		if err := json.Unmarshal(line, &n); err == nil && n.Method == "session/update" {
			var params sessionUpdateParams
			if err := json.Unmarshal(n.Params, &params); err == nil {
				if ev, ok := adapter.FromACPUpdate(params.SessionID, params.Update); ok {
					if err := conn.WriteJSON(adapter.ToWSMessage(ev, "")); err != nil {
						log.Println("ws write error:", err)
						return
					}
					continue
				}
			}
		}

		if err := conn.WriteMessage(websocket.TextMessage, line); err != nil {
			log.Println("ws write error:", err)
			return
		}
	}
}

func relayStderrToWS(conn *websocket.Conn, stderr io.Reader) {
	scanner := bufio.NewScanner(bufio.NewReader(stderr))
	for scanner.Scan() {
		line := scanner.Text()
		message := fmt.Sprintf(`{"type":"stderr","data":%q}`, line)
		if err := conn.WriteMessage(websocket.TextMessage, []byte(message)); err != nil {
			log.Println("ws write error:", err)
			return
		}
	}
}
