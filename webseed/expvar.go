package webseed

import (
	"expvar"
)

var (
	blockFetches      = expvar.NewInt("webseedBlockFetches")
	blockFetchErrors  = expvar.NewInt("webseedBlockFetchErrors")
	httpSubRequests   = expvar.NewInt("webseedHttpSubRequests")
	redirectProbes    = expvar.NewInt("webseedRedirectProbes")
	requestsUnchoked  = expvar.NewInt("webseedInterestedUnchoked")
	piecesServed      = expvar.NewInt("webseedPiecesServed")
	requestsCancelled = expvar.NewInt("webseedRequestsCancelled")
)
