package router

import (
	"expvar"
)

var (
	acceptedConns        = expvar.NewInt("routerAcceptedConns")
	unresolvableConns    = expvar.NewInt("routerUnresolvableRemoteAddrConns")
	preHandshakeDrops    = expvar.NewInt("routerPreHandshakeDrops")
	routedConns          = expvar.NewInt("routerRoutedConns")
	unexpectedInfoHashes = expvar.NewInt("routerUnexpectedInfoHashes")
)
