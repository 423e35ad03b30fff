package server

import (
	"fmt"
	"html"
	"net/http"
	"sync"
)

// LoginResult is delivered to [Options.OnLogin] when a callback completes.
type LoginResult struct {
	// Session is the session cookie value as sent to the browser.
	Session string
	err     error
}

func (l LoginResult) Error() error {
	return l.err
}

// LoginWaiter lets a CLI process block until the browser finishes the OAuth flow.
//
// Only the first result is delivered; later ones are dropped.
type LoginWaiter struct {
	resultChan chan LoginResult
	once       sync.Once
}

// NewLoginWaiter creates a waiter whose Send method can be used as [Options.OnLogin].
func NewLoginWaiter() *LoginWaiter {
	return &LoginWaiter{resultChan: make(chan LoginResult, 1)}
}

// Send delivers result through the channel (only once).
func (w *LoginWaiter) Send(result LoginResult) {
	w.once.Do(func() {
		w.resultChan <- result
		close(w.resultChan)
	})
}

// Result returns the channel that receives exactly one result and is then closed.
func (w *LoginWaiter) Result() <-chan LoginResult {
	return w.resultChan
}

// serveLoginPage renders the page the CLI login flow lands on.
func serveLoginPage(w http.ResponseWriter, r *http.Request) {
	title, message, color := "Signed in", "You can close this window and return to the terminal.", "#1DB954"
	if e := r.URL.Query().Get("error"); e != "" {
		title, message, color = "Sign-in failed", "Spotify returned: "+e, "#E22134"
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	fmt.Fprintf(w, `<!DOCTYPE html>
<html>
<head>
    <title>%[1]s</title>
    <style>
        body { font-family: -apple-system, BlinkMacSystemFont, "Segoe UI", Roboto, sans-serif;
               display: flex; align-items: center; justify-content: center; height: 100vh;
               margin: 0; background: #121212; }
        .container { text-align: center; background: #181818; padding: 2rem;
                     border-radius: 8px; box-shadow: 0 2px 8px rgba(0,0,0,0.4); }
        h1 { color: %[3]s; margin: 0 0 1rem 0; }
        p { color: #b3b3b3; margin: 0; }
    </style>
</head>
<body>
    <div class="container">
        <h1>%[1]s</h1>
        <p>%[2]s</p>
    </div>
</body>
</html>
`, title, html.EscapeString(message), color)
}
