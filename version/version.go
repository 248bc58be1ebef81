// Package version provides the identity swarmedge presents to peers and HTTP servers.
package version

import (
	"fmt"
	"reflect"
	"runtime/debug"
	"strings"
)

const (
	major = 0
	minor = 1
	patch = 0
)

var (
	// The module version when built as a dependency, "(devel)" when built from this module, and
	// "unknown" without build info.
	ModuleVersion = "unknown"
	// Sent as User-Agent by webseed requests.
	DefaultHttpUserAgent string
	// Leads the peer ids the router hands out in handshakes.
	DefaultBep20Prefix = GenerateFingerprint("SE", major, minor, patch, 0)
)

func init() {
	type marker struct{}
	thisPkg := reflect.TypeOf(marker{}).PkgPath()
	if buildInfo, ok := debug.ReadBuildInfo(); ok {
		thisModule := ""
		for _, dep := range append(buildInfo.Deps, &buildInfo.Main) {
			if strings.HasPrefix(thisPkg, dep.Path) && len(dep.Path) >= len(thisModule) {
				thisModule = dep.Path
				ModuleVersion = dep.Version
			}
		}
	}
	// Per https://developer.mozilla.org/en-US/docs/Web/HTTP/Headers/User-Agent#library_and_net_tool_ua_strings
	DefaultHttpUserAgent = fmt.Sprintf("swarmedge/%v.%v.%v", major, minor, patch)
}
