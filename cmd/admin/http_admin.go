package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"
)

var httpPaths = map[string]string{
	"bots":     "/v1/bots",
	"zones":    "/v1/autobalance/zones",
	"maps":     "/v1/autobalance/maps",
	"offset":   "/v1/autobalance/offset",
	"creature": "/v1/autobalance/creatures/",
}

// httpCmd queries the observer endpoints of a running server. They only
// answer loopback clients.
func httpCmd(name string, args []string) {
	fs := flag.NewFlagSet(name, flag.ExitOnError)
	baseURL := fs.String("url", "http://127.0.0.1:8080", "server base url")
	set := fs.Int("set", 0, "offset: new level offset (applied when the flag is given)")
	_ = fs.Parse(args)

	u := strings.TrimRight(strings.TrimSpace(*baseURL), "/") + httpPaths[name]
	if name == "creature" {
		if fs.NArg() != 1 {
			fmt.Fprintln(os.Stderr, "usage: admin creature [-url URL] GUID")
			os.Exit(2)
		}
		u += strings.TrimSpace(fs.Arg(0))
	}

	req, _ := http.NewRequest(http.MethodGet, u, nil)
	if name == "offset" && flagGiven(fs, "set") {
		body, _ := json.Marshal(map[string]int{"offset": *set})
		req, _ = http.NewRequest(http.MethodPost, u, bytes.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}

	cl := &http.Client{Timeout: 5 * time.Second}
	resp, err := cl.Do(req)
	if err != nil {
		fmt.Fprintln(os.Stderr, "request:", err)
		os.Exit(1)
	}
	defer resp.Body.Close()
	b, _ := io.ReadAll(resp.Body)
	fmt.Println(strings.TrimSpace(string(b)))
	if resp.StatusCode/100 != 2 {
		os.Exit(1)
	}
}

func flagGiven(fs *flag.FlagSet, name string) bool {
	found := false
	fs.Visit(func(f *flag.Flag) {
		if f.Name == name {
			found = true
		}
	})
	return found
}
