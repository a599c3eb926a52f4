package main

import (
	"flag"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	rackcache "github.com/rack-cache/rack-cache"
)

var (
	configFilenameFlag string
	portFlag           int
	originFlag         string
	metastoreFlag      string
	entitystoreFlag    string
	defaultTTLFlag     int
	allowReloadFlag    bool
	allowRevalFlag     bool
	quietFlag          bool
	verbosityTraceFlag bool
)

func init() {
	flag.StringVar(&configFilenameFlag, "config", "", "Path to config file")
	flag.IntVar(&portFlag, "port", 8080, "Port to listen on")
	flag.StringVar(&originFlag, "origin", "", "Origin URL to proxy to (overrides config)")
	flag.StringVar(&metastoreFlag, "metastore", "", "Metastore URI, e.g. heap:/, file:/var/cache/meta, memcached://localhost:11211")
	flag.StringVar(&entitystoreFlag, "entitystore", "", "Entitystore URI")
	flag.IntVar(&defaultTTLFlag, "default-ttl", 0, "TTL in seconds for responses without freshness info")
	flag.BoolVar(&allowReloadFlag, "allow-reload", false, "Honor Cache-Control: no-cache on requests")
	flag.BoolVar(&allowRevalFlag, "allow-revalidate", false, "Honor Cache-Control: max-age=0 on requests")
	flag.BoolVar(&quietFlag, "quiet", false, "Suppress per-request trace lines")
	flag.BoolVar(&verbosityTraceFlag, "vv", false, "Verbosity: trace logging")
}

func main() {
	flag.Parse()

	logLevel := zerolog.DebugLevel
	if verbosityTraceFlag {
		logLevel = zerolog.TraceLevel
	}
	log.Logger = log.Level(logLevel).Output(zerolog.ConsoleWriter{Out: os.Stderr})

	var config Config
	if configFilenameFlag != "" {
		var err error
		if config, err = getConfig(configFilenameFlag); err != nil {
			log.Fatal().Err(err).Msg("Could not read config file")
		}
	}
	if config.Port == 0 {
		config.Port = portFlag
	}
	if originFlag != "" {
		config.Origin = originFlag
	}
	if metastoreFlag != "" {
		config.Metastore = metastoreFlag
	}
	if entitystoreFlag != "" {
		config.Entitystore = entitystoreFlag
	}
	if defaultTTLFlag > 0 {
		config.DefaultTTL = defaultTTLFlag
	}
	config.AllowReload = config.AllowReload || allowReloadFlag
	config.AllowRevalidate = config.AllowRevalidate || allowRevalFlag
	config.Quiet = config.Quiet || quietFlag

	if config.Origin == "" {
		log.Fatal().Msg("Please specify origin")
	}
	originURL, err := url.Parse(config.Origin)
	if err != nil {
		log.Fatal().Err(err).Msg("Could not parse origin url")
	}

	cache, err := rackcache.New(rackcache.Config{
		Metastore:       config.Metastore,
		Entitystore:     config.Entitystore,
		DefaultTTL:      time.Duration(config.DefaultTTL) * time.Second,
		PrivateHeaders:  config.PrivateHeaders,
		AllowReload:     config.AllowReload,
		AllowRevalidate: config.AllowRevalidate,
		Quiet:           config.Quiet,
		Logger:          &log.Logger,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Could not set up cache")
	}

	r := chi.NewRouter()
	r.Use(cache.Middleware)
	r.Handle("/*", newOriginHandler(originURL))

	log.Info().Msgf("Proxying port %d to %s", config.Port, originURL)
	if err := http.ListenAndServe(fmt.Sprintf(":%d", config.Port), r); err != nil {
		log.Fatal().Err(err).Msg("Server stopped")
	}
}

// originHandler forwards requests to the origin server, without
// following redirects, and pipes the response back.
type originHandler struct {
	origin *url.URL
	client http.Client
}

func newOriginHandler(origin *url.URL) *originHandler {
	return &originHandler{
		origin: origin,
		client: http.Client{
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
	}
}

func (h *originHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	req, err := http.NewRequestWithContext(r.Context(), r.Method, h.origin.String()+r.URL.RequestURI(), r.Body)
	if err != nil {
		http.Error(w, "Could not build origin request", http.StatusBadGateway)
		return
	}
	copyHeader(req.Header, r.Header)
	req.Host = h.origin.Host

	res, err := h.client.Do(req)
	if err != nil {
		log.Error().Err(err).Str("path", r.URL.Path).Msg("Could not get response from origin")
		http.Error(w, "Could not get response", http.StatusBadGateway)
		return
	}
	defer res.Body.Close()
	copyHeader(w.Header(), res.Header)
	w.WriteHeader(res.StatusCode)
	io.Copy(w, res.Body)
}

func copyHeader(dst, src http.Header) {
	for name, values := range src {
		for _, value := range values {
			dst.Add(name, value)
		}
	}
}
