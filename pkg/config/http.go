package config

import (
	"context"
	"crypto/sha256"
	"crypto/subtle"
	"errors"
	"log/slog"
	"net/http"
	"time"
)

type Middleware func(string, http.Handler) http.Handler

type HTTP struct {
	ListenAddr    string        `default:":8080" desc:"listen address"`
	ListenAddrTLS string        `desc:"https listen address"`
	CertFile      string        `desc:"https certificate file"`
	KeyFile       string        `desc:"https key file"`
	CORS          bool          `default:"true" desc:"add CORS headers"`
	UserName      string        `desc:"basic auth user"`
	Password      string        `desc:"basic auth password"`
	ReadTimeout   time.Duration `desc:"read timeout"`
	WriteTimeout  time.Duration `desc:"write timeout"`
	IdleTimeout   time.Duration `desc:"idle timeout"`
	mux           *http.ServeMux
	middlewares   []Middleware
}

func (config *HTTP) GetHandler() http.Handler {
	if config.mux == nil {
		config.mux = http.NewServeMux()
	}
	return config.mux
}

func (config *HTTP) AddMiddleware(middleware Middleware) {
	config.middlewares = append(config.middlewares, middleware)
}

func (config *HTTP) Handle(path string, f http.Handler) {
	if config.mux == nil {
		config.mux = http.NewServeMux()
	}
	if config.CORS {
		f = CORS(f)
	}
	if config.UserName != "" && config.Password != "" {
		f = BasicAuth(config.UserName, config.Password, f)
	}
	for _, middleware := range config.middlewares {
		f = middleware(path, f)
	}
	config.mux.Handle(path, f)
}

// Serve runs the plain and TLS listeners until ctx is done.
func (config *HTTP) Serve(ctx context.Context, logger *slog.Logger) error {
	newServer := func(addr string) *http.Server {
		return &http.Server{
			Addr:         addr,
			ReadTimeout:  config.ReadTimeout,
			WriteTimeout: config.WriteTimeout,
			IdleTimeout:  config.IdleTimeout,
			Handler:      config.GetHandler(),
		}
	}
	errChan := make(chan error, 2)
	var servers []*http.Server
	if config.ListenAddr != "" {
		s := newServer(config.ListenAddr)
		servers = append(servers, s)
		logger.Info("listen http", "addr", config.ListenAddr)
		go func() { errChan <- s.ListenAndServe() }()
	}
	if config.ListenAddrTLS != "" {
		s := newServer(config.ListenAddrTLS)
		servers = append(servers, s)
		logger.Info("listen https", "addr", config.ListenAddrTLS)
		go func() { errChan <- s.ListenAndServeTLS(config.CertFile, config.KeyFile) }()
	}
	if len(servers) == 0 {
		<-ctx.Done()
		return nil
	}
	var err error
	select {
	case <-ctx.Done():
	case err = <-errChan:
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	for _, s := range servers {
		s.Shutdown(shutdownCtx)
	}
	logger.Info("http server stop")
	if errors.Is(err, http.ErrServerClosed) {
		err = nil
	}
	return err
}

func CORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := w.Header()
		header.Set("Access-Control-Allow-Credentials", "true")
		header.Set("Cross-Origin-Resource-Policy", "cross-origin")
		header.Set("Access-Control-Allow-Headers", "Content-Type,Access-Token")
		header.Set("Access-Control-Allow-Private-Network", "true")
		origin := r.Header["Origin"]
		if len(origin) == 0 {
			header.Set("Access-Control-Allow-Origin", "*")
		} else {
			header.Set("Access-Control-Allow-Origin", origin[0])
		}
		if next != nil && r.Method != "OPTIONS" {
			next.ServeHTTP(w, r)
		}
	})
}

func BasicAuth(u, p string, next http.Handler) http.Handler {
	expectedUser := sha256.Sum256([]byte(u))
	expectedPass := sha256.Sum256([]byte(p))
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if username, password, ok := r.BasicAuth(); ok {
			userHash := sha256.Sum256([]byte(username))
			passHash := sha256.Sum256([]byte(password))
			// evaluate both before branching
			userMatch := subtle.ConstantTimeCompare(userHash[:], expectedUser[:]) == 1
			passMatch := subtle.ConstantTimeCompare(passHash[:], expectedPass[:]) == 1
			if userMatch && passMatch {
				if next != nil {
					next.ServeHTTP(w, r)
				}
				return
			}
		}
		w.Header().Set("WWW-Authenticate", `Basic realm="restricted", charset="UTF-8"`)
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
	})
}
