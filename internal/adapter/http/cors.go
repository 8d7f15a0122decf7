package httpadapter

import (
	"context"

	"github.com/cloudwego/hertz/pkg/app"
	"github.com/cloudwego/hertz/pkg/protocol/consts"
)

const corsAllowMethods = "GET,POST,OPTIONS"

const corsAllowHeaders = "Content-Type," + playerIDHeader

// corsPolicy lets browser overlays call the API. With no origins configured
// any origin is allowed; otherwise only listed origins are echoed back and
// others get no CORS headers at all.
type corsPolicy struct {
	origins map[string]struct{}
}

func newCORSPolicy(origins []string) corsPolicy {
	p := corsPolicy{}
	if len(origins) == 0 {
		return p
	}
	p.origins = make(map[string]struct{}, len(origins))
	for _, o := range origins {
		p.origins[o] = struct{}{}
	}
	return p
}

func (p corsPolicy) allowOrigin(origin string) (string, bool) {
	if p.origins == nil {
		return "*", true
	}
	if _, ok := p.origins[origin]; ok {
		return origin, true
	}
	return "", false
}

func (p corsPolicy) apply(ctx *app.RequestContext) {
	allowed, ok := p.allowOrigin(string(ctx.Request.Header.Peek("Origin")))
	if p.origins != nil {
		ctx.Response.Header.Set("Vary", "Origin")
	}
	if !ok {
		return
	}
	ctx.Response.Header.Set("Access-Control-Allow-Origin", allowed)
	ctx.Response.Header.Set("Access-Control-Allow-Methods", corsAllowMethods)
	ctx.Response.Header.Set("Access-Control-Allow-Headers", corsAllowHeaders)
	ctx.Response.Header.Set("Access-Control-Expose-Headers", playerIDHeader)
	ctx.Response.Header.Set("Access-Control-Max-Age", "600")
}

func corsMiddleware(p corsPolicy) app.HandlerFunc {
	return func(c context.Context, ctx *app.RequestContext) {
		p.apply(ctx)
		if string(ctx.Method()) == consts.MethodOptions {
			ctx.AbortWithStatus(consts.StatusNoContent)
			return
		}
		ctx.Next(c)
	}
}
