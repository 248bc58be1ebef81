package contentserver

import (
	"fmt"
	"strconv"
	"strings"

	g "github.com/anacrolix/generics"
)

// An inclusive byte span within a file, as named by Range and Content-Range headers.
type byteRange struct {
	start int64
	end   int64
}

func (r byteRange) length() int64 {
	return r.end - r.start + 1
}

func (r byteRange) contentRange(size int64) string {
	return fmt.Sprintf("bytes %d-%d/%d", r.start, r.end, size)
}

// Parses a Range header against a resource of the given size. Only the first satisfiable range is
// returned; malformed and unsatisfiable specs are skipped.
func parseRange(header string, size int64) (ret g.Option[byteRange]) {
	specs, ok := strings.CutPrefix(header, "bytes=")
	if !ok {
		return
	}
	for _, spec := range strings.Split(specs, ",") {
		r, ok := parseRangeSpec(strings.TrimSpace(spec), size)
		if ok {
			return g.Some(r)
		}
	}
	return
}

func parseRangeSpec(spec string, size int64) (r byteRange, ok bool) {
	startStr, endStr, ok := strings.Cut(spec, "-")
	if !ok {
		return
	}
	if startStr == "" {
		// Suffix: the last n bytes.
		n, err := strconv.ParseInt(endStr, 10, 64)
		if err != nil || n <= 0 {
			return r, false
		}
		r.start = max(size-n, 0)
		r.end = size - 1
	} else {
		var err error
		r.start, err = strconv.ParseInt(startStr, 10, 64)
		if err != nil {
			return r, false
		}
		if endStr == "" {
			r.end = size - 1
		} else {
			r.end, err = strconv.ParseInt(endStr, 10, 64)
			if err != nil {
				return r, false
			}
			r.end = min(r.end, size-1)
		}
	}
	return r, r.start >= 0 && r.start <= r.end
}
