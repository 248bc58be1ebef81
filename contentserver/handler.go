package contentserver

import (
	"html/template"
	"io"
	"mime"
	"net/http"
	"path"
	"strconv"
	"strings"

	"github.com/anacrolix/log"
	"github.com/dustin/go-humanize"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/anacrolix/swarmedge/swarm"
)

const (
	dlnaTransferMode    = "Streaming"
	dlnaContentFeatures = "DLNA.ORG_OP=01;DLNA.ORG_CI=0;DLNA.ORG_FLAGS=01700000000000000000000000000000"
	// How long browsers may cache a preflight result, in seconds.
	corsMaxAge = "1728000"
)

var listingTemplate = template.Must(template.New("listing").Parse(`<!DOCTYPE html>
<html>
<head><meta charset="utf-8"><title>{{.Name}}</title></head>
<body>
<h1>{{.Name}}</h1>
<ol>
{{- range .Files}}
<li><a download="{{.Name}}" href="/{{.Index}}">{{.Path}}</a> ({{.Length}} bytes, {{.Size}})</li>
{{- end}}
</ol>
</body>
</html>
`))

var tracer = otel.Tracer("swarmedge.contentserver")

type listingFile struct {
	Index  int
	Name   string
	Path   string
	Length int64
	Size   string
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	contentRequests.Add(1)
	ctx, span := tracer.Start(
		r.Context(),
		"Server.ServeHTTP",
		trace.WithAttributes(
			attribute.String("http.request.method", r.Method),
			attribute.String("url.path", r.URL.Path),
			attribute.String("http.request.header.range", r.Header.Get("Range")),
		),
	)
	defer span.End()
	r = r.WithContext(ctx)
	s.Logger.Levelf(log.Debug, "%v %v %q (range %q)", r.RemoteAddr, r.Method, r.URL.Path, r.Header.Get("Range"))
	if origin := r.Header.Get("Origin"); origin != "" {
		w.Header().Set("Access-Control-Allow-Origin", origin)
	}
	if r.Method == http.MethodOptions && r.Header.Get("Access-Control-Request-Headers") != "" {
		corsPreflights.Add(1)
		h := w.Header()
		h.Set("Access-Control-Allow-Methods", "POST, GET, OPTIONS")
		h.Set("Access-Control-Allow-Headers", r.Header.Get("Access-Control-Request-Headers"))
		h.Set("Access-Control-Max-Age", corsMaxAge)
		w.WriteHeader(http.StatusOK)
		return
	}
	urlPath := r.URL.Path
	if urlPath == "/favicon.ico" {
		w.WriteHeader(http.StatusOK)
		return
	}
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		w.Header().Set("Allow", "GET, HEAD, OPTIONS")
		http.Error(w, "405 Method Not Allowed", http.StatusMethodNotAllowed)
		return
	}
	content, ok := s.awaitReady(r.Context())
	if !ok {
		span.SetStatus(codes.Error, "abandoned awaiting info")
		http.Error(w, "503 Service Unavailable", http.StatusServiceUnavailable)
		return
	}
	if urlPath == "/" {
		s.serveListing(w, r, content)
		return
	}
	s.serveFile(w, r, content, urlPath)
}

func (s *Server) serveListing(w http.ResponseWriter, r *http.Request, content Content) {
	data := struct {
		Name  string
		Files []listingFile
	}{
		Name: content.Name(),
	}
	for i, f := range content.Info().Files {
		data.Files = append(data.Files, listingFile{
			Index:  i,
			Name:   f.Name,
			Path:   f.Path,
			Length: f.Length,
			Size:   humanize.IBytes(uint64(f.Length)),
		})
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if r.Method == http.MethodHead {
		return
	}
	err := listingTemplate.Execute(w, data)
	if err != nil {
		s.Logger.Levelf(log.Warning, "writing listing: %v", err)
	}
}

func notFound(w http.ResponseWriter) {
	notFoundResponses.Add(1)
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusNotFound)
	io.WriteString(w, "404 Not Found")
}

func contentType(name string) string {
	if t := mime.TypeByExtension(path.Ext(name)); t != "" {
		return t
	}
	return "application/octet-stream"
}

// Only plain decimal digits, so each file has exactly one URL.
func parseFileIndex(s string) (int, bool) {
	if s == "" || (len(s) > 1 && s[0] == '0') {
		return 0, false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return 0, false
		}
	}
	i, err := strconv.Atoi(s)
	return i, err == nil
}

func (s *Server) serveFile(w http.ResponseWriter, r *http.Request, content Content, urlPath string) {
	index, ok := parseFileIndex(strings.TrimPrefix(urlPath, "/"))
	info := content.Info()
	if !ok || index >= len(info.Files) {
		notFound(w)
		return
	}
	f := info.Files[index]
	span := trace.SpanFromContext(r.Context())
	span.SetAttributes(attribute.Int("contentserver.file.index", index))
	h := w.Header()
	h.Set("Accept-Ranges", "bytes")
	h.Set("Content-Type", contentType(f.Name))
	// DLNA renderers match these case-sensitively, so they bypass canonicalization.
	h["transferMode.dlna.org"] = []string{dlnaTransferMode}
	h["contentFeatures.dlna.org"] = []string{dlnaContentFeatures}
	status := http.StatusOK
	off, n := int64(0), f.Length
	if br := parseRange(r.Header.Get("Range"), f.Length); br.Ok {
		rangedResponses.Add(1)
		status = http.StatusPartialContent
		off, n = br.Value.start, br.Value.length()
		span.SetAttributes(attribute.Int64("contentserver.range.start", off), attribute.Int64("contentserver.range.length", n))
		h.Set("Content-Range", br.Value.contentRange(f.Length))
	} else {
		fullResponses.Add(1)
	}
	h.Set("Content-Length", strconv.FormatInt(n, 10))
	if r.Method == http.MethodHead {
		w.WriteHeader(status)
		return
	}
	s.streamFile(w, r, content, index, f, status, off, n)
}

func (s *Server) streamFile(
	w http.ResponseWriter, r *http.Request,
	content Content, index int, f swarm.File,
	status int, off, n int64,
) {
	rc, err := content.NewFileReader(r.Context(), index, off, n)
	if err != nil {
		s.Logger.Levelf(log.Warning, "opening %q: %v", f.Path, err)
		trace.SpanFromContext(r.Context()).SetStatus(codes.Error, err.Error())
		h := w.Header()
		h.Del("Content-Length")
		h.Del("Content-Range")
		http.Error(w, "500 Internal Server Error", http.StatusInternalServerError)
		return
	}
	defer rc.Close()
	w.WriteHeader(status)
	written, err := io.Copy(w, rc)
	if err != nil {
		abortedStreams.Add(1)
		trace.SpanFromContext(r.Context()).SetStatus(codes.Error, err.Error())
		s.Logger.Levelf(log.Debug, "streaming %q after %v of %v bytes: %v", f.Path, written, n, err)
		// Headers promised more than we can deliver, so the connection can't be reused.
		panic(http.ErrAbortHandler)
	}
}
