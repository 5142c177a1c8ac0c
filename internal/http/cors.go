package httpapi

import (
	"net/http"
	"strings"
)

// CORS 允许的前端来源。列表为空时允许所有来源；没有 Origin 头的请求（非浏览器客户端）总是允许。
type CORS struct {
	allowed map[string]struct{}
}

func NewCORS(origins []string) *CORS {
	c := &CORS{allowed: make(map[string]struct{})}
	for _, o := range origins {
		o = strings.TrimSuffix(strings.TrimSpace(o), "/")
		if o != "" {
			c.allowed[o] = struct{}{}
		}
	}
	return c
}

// CheckOrigin 用作 websocket.Upgrader.CheckOrigin
func (c *CORS) CheckOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" || len(c.allowed) == 0 {
		return true
	}
	_, ok := c.allowed[origin]
	return ok
}

// Apply 为允许的来源写 CORS 头；预检请求在此直接应答，返回 false 表示请求已处理完
func (c *CORS) Apply(w http.ResponseWriter, r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" || !c.CheckOrigin(r) {
		return true
	}

	h := w.Header()
	h.Set("Access-Control-Allow-Origin", origin)
	h.Set("Access-Control-Allow-Credentials", "true")
	h.Add("Vary", "Origin")

	if r.Method == http.MethodOptions && r.Header.Get("Access-Control-Request-Method") != "" {
		h.Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		if reqHeaders := r.Header.Get("Access-Control-Request-Headers"); reqHeaders != "" {
			h.Set("Access-Control-Allow-Headers", reqHeaders)
		}
		w.WriteHeader(http.StatusNoContent)
		return false
	}
	return true
}
