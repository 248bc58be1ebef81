package contentserver

import (
	"expvar"
)

var (
	contentRequests       = expvar.NewInt("contentServerRequests")
	corsPreflights        = expvar.NewInt("contentServerCorsPreflights")
	rangedResponses       = expvar.NewInt("contentServerRangedResponses")
	fullResponses         = expvar.NewInt("contentServerFullResponses")
	notFoundResponses     = expvar.NewInt("contentServerNotFound")
	requestsAwaitingReady = expvar.NewInt("contentServerRequestsAwaitingReady")
	abortedStreams        = expvar.NewInt("contentServerAbortedStreams")
	acceptedConns         = expvar.NewInt("contentServerAcceptedConns")
)
