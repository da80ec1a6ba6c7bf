package sniff

import "testing"

func TestExtractHTTPInfo(t *testing.T) {
	t.Run("simple get", func(t *testing.T) {
		req := []byte("GET / HTTP/1.1\r\nHost: example.com\r\n\r\n")
		info, ok := ExtractHTTPInfo(req)
		if !ok {
			t.Fatal("expected ok")
		}
		if info.Method != "GET" || info.Path != "/" || info.Host != "example.com" {
			t.Fatalf("got %+v", info)
		}
	})

	t.Run("post with path and extra headers", func(t *testing.T) {
		req := []byte("POST /api/users HTTP/1.1\r\nHost: api.example.com\r\nContent-Type: application/json\r\n\r\n")
		info, ok := ExtractHTTPInfo(req)
		if !ok {
			t.Fatal("expected ok")
		}
		if info.Method != "POST" || info.Path != "/api/users" || info.Host != "api.example.com" {
			t.Fatalf("got %+v", info)
		}
	})

	t.Run("no host header", func(t *testing.T) {
		req := []byte("GET /test HTTP/1.1\r\nUser-Agent: test\r\n\r\n")
		info, ok := ExtractHTTPInfo(req)
		if !ok {
			t.Fatal("expected ok")
		}
		if info.Host != "" {
			t.Fatalf("expected empty host, got %q", info.Host)
		}
	})

	t.Run("too short", func(t *testing.T) {
		if _, ok := ExtractHTTPInfo([]byte("GET")); ok {
			t.Fatal("expected failure for short input")
		}
	})

	t.Run("not http", func(t *testing.T) {
		if _, ok := ExtractHTTPInfo([]byte("INVALID REQUEST\r\n\r\n")); ok {
			t.Fatal("expected failure for non-HTTP request line")
		}
	})

	t.Run("binary data", func(t *testing.T) {
		data := []byte{0x16, 0x03, 0x01, 0x00, 0x05, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0}
		if _, ok := ExtractHTTPInfo(data); ok {
			t.Fatal("expected failure for binary data")
		}
	})

	t.Run("various methods", func(t *testing.T) {
		for _, method := range []string{"GET", "POST", "PUT", "DELETE", "HEAD"} {
			req := []byte(method + " /path HTTP/1.1\r\nHost: test.com\r\n\r\n")
			info, ok := ExtractHTTPInfo(req)
			if !ok || info.Method != method {
				t.Fatalf("method %s: got (%+v, %v)", method, info, ok)
			}
		}
	})

	t.Run("unknown method rejected", func(t *testing.T) {
		req := []byte("FOO /path HTTP/1.1\r\nHost: test.com\r\n\r\n")
		if _, ok := ExtractHTTPInfo(req); ok {
			t.Fatal("expected failure for unrecognized method")
		}
	})
}
