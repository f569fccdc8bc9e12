package middlewares

const (
	CtxRequestID = "request_id"
	CtxIdentity  = "auth.identity"
	CtxCSRFToken = "auth.csrf"
	CtxSessionID = "auth.session_id"
)
