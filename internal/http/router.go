package httpapi

import (
	"net/http"

	"go.uber.org/zap"
)

// Router 使用标准库 http.ServeMux
type Router struct {
	mux    *http.ServeMux
	cors   *CORS
	logger *zap.Logger
}

func NewRouter(cors *CORS, logger *zap.Logger) *Router {
	return &Router{
		mux:    http.NewServeMux(),
		cors:   cors,
		logger: logger,
	}
}

func (r *Router) Handle(pattern string, h http.HandlerFunc) {
	r.mux.HandleFunc(pattern, h)
}

func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	if r.cors != nil && !r.cors.Apply(w, req) {
		return
	}
	r.mux.ServeHTTP(w, req)
}

// RegisterGatewayRoutes 注册 REST 与两个 websocket 端点
func (r *Router) RegisterGatewayRoutes(g *Gateway) {
	r.Handle("/", func(w http.ResponseWriter, req *http.Request) {
		if req.URL.Path != "/" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		if req.Method != http.MethodGet {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		g.Root(w, req)
	})

	r.Handle("/session-data", func(w http.ResponseWriter, req *http.Request) {
		if req.Method != http.MethodGet {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		g.SessionData(w, req)
	})

	r.Handle("/ws/student", g.StudentSocket)
	r.Handle("/ws/teacher", g.TeacherSocket)
}
