package middlewares

const (
	CtxRequestID = "request_id"
	CtxClientIP  = "client_ip"
)

const requestIDHeader = "X-Request-Id"
