package ctxutil

import "context"

type requestDataKey struct{}

// RequestData carries the acting identity resolved by the auth middleware.
type RequestData struct {
	ActorID string
	Roles   []string
}

func WithRequestData(ctx context.Context, rd *RequestData) context.Context {
	return context.WithValue(ctx, requestDataKey{}, rd)
}

func GetRequestData(ctx context.Context) *RequestData {
	if rd, ok := ctx.Value(requestDataKey{}).(*RequestData); ok {
		return rd
	}
	return nil
}

// ActorID returns the acting user or "" when the request is anonymous.
func ActorID(ctx context.Context) string {
	if rd := GetRequestData(ctx); rd != nil {
		return rd.ActorID
	}
	return ""
}
