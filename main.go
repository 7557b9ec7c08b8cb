package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"net/http"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/kelseyhightower/envconfig"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/michalmalinowski87/photo-sub013/cookie"
	"github.com/michalmalinowski87/photo-sub013/credentials"
	"github.com/michalmalinowski87/photo-sub013/sign"
	"github.com/michalmalinowski87/photo-sub013/utils"
)

// Config is the service configuration, read from SIGNER_* environment
// variables and overridable with flags.
type Config struct {
	Addr                 string        `envconfig:"ADDR" default:":8080"`
	Stage                string        `envconfig:"STAGE" default:"dev"`
	RuntimeMode          string        `envconfig:"RUNTIME_MODE"`
	LogLevel             string        `envconfig:"LOG_LEVEL" default:"info"`
	DefaultExpirySeconds int64         `envconfig:"DEFAULT_EXPIRY_SECONDS" default:"3600"`
	CredentialCacheTTL   time.Duration `envconfig:"CREDENTIAL_CACHE_TTL"`
	CookieDomain         string        `envconfig:"COOKIE_DOMAIN"`
}

var signerApp = utils.SignerApp{}

var (
	urlsIssued = promauto.NewCounter(prometheus.CounterOpts{
		Name: "signer_urls_issued_total",
		Help: "Signed URLs issued.",
	})
	cookiesIssued = promauto.NewCounter(prometheus.CounterOpts{
		Name: "signer_cookies_issued_total",
		Help: "Signed cookie sets issued.",
	})
	resolveFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "signer_credential_resolve_failures_total",
		Help: "Credential resolution failures by class.",
	}, []string{"class"})
)

// credentialSource is satisfied by both the plain and the cached resolver.
type credentialSource interface {
	Resolve(ctx context.Context, stage string) (credentials.Credential, error)
}

type signRequest struct {
	URL              string `json:"url"`
	ExpiresInSeconds int64  `json:"expiresInSeconds"`
}

type signResponse struct {
	SignedURL string `json:"signedUrl"`
	ExpiresAt int64  `json:"expiresAt"`
}

type cookieResponse struct {
	ExpiresAt int64 `json:"expiresAt"`
}

type errorResponse struct {
	Error string `json:"error"`
}

type service struct {
	cfg         Config
	credentials credentialSource
	logger      *zap.Logger
}

func (s *service) expiry(req signRequest) time.Duration {
	if req.ExpiresInSeconds > 0 {
		return time.Duration(req.ExpiresInSeconds) * time.Second
	}
	return time.Duration(s.cfg.DefaultExpirySeconds) * time.Second
}

// newSigner resolves the stage credentials and builds a signer from them.
func (s *service) newSigner(ctx context.Context) (*sign.Signer, int, error) {
	cred, err := s.credentials.Resolve(ctx, s.cfg.Stage)
	if err != nil {
		var storeErr *credentials.StoreError
		switch {
		case errors.Is(err, credentials.ErrNotConfigured):
			resolveFailures.WithLabelValues("not_configured").Inc()
			s.logger.Warn("signing credentials not configured", zap.String("stage", s.cfg.Stage))
			return nil, http.StatusServiceUnavailable, errors.New("signing credentials not configured")
		case errors.As(err, &storeErr):
			resolveFailures.WithLabelValues("store").Inc()
			s.logger.Error("credential store unavailable", zap.String("stage", s.cfg.Stage), zap.Error(err))
			return nil, http.StatusBadGateway, errors.New("credential store unavailable")
		default:
			resolveFailures.WithLabelValues("other").Inc()
			s.logger.Error("credential resolution failed", zap.String("stage", s.cfg.Stage), zap.Error(err))
			return nil, http.StatusInternalServerError, errors.New("credential resolution failed")
		}
	}

	signer, err := sign.NewSigner(cred.PrivateKeyPEM, cred.KeyPairID)
	if err != nil {
		s.logger.Error("invalid signing key material", zap.String("stage", s.cfg.Stage), zap.Error(err))
		return nil, http.StatusInternalServerError, errors.New("invalid signing key material")
	}
	return signer, 0, nil
}

func decodeSignRequest(w http.ResponseWriter, r *http.Request) (signRequest, bool) {
	var req signRequest
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return req, false
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return req, false
	}
	if req.URL == "" {
		writeError(w, http.StatusBadRequest, "url is required")
		return req, false
	}
	return req, true
}

func (s *service) signHandler(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeSignRequest(w, r)
	if !ok {
		return
	}

	signer, status, err := s.newSigner(r.Context())
	if err != nil {
		writeError(w, status, err.Error())
		return
	}

	expiresIn := s.expiry(req)
	signedURL, expiresAt, err := signer.SignURLWithExpiry(req.URL, expiresIn)
	if err != nil {
		s.logger.Info("rejected sign request", zap.String("url", req.URL), zap.Error(err))
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	urlsIssued.Inc()
	s.logger.Info("signed url issued",
		zap.String("url", req.URL),
		zap.Duration("expires_in", expiresIn))

	writeJSON(w, http.StatusOK, signResponse{
		SignedURL: signedURL,
		ExpiresAt: expiresAt,
	})
}

func (s *service) cookiesHandler(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeSignRequest(w, r)
	if !ok {
		return
	}

	signer, status, err := s.newSigner(r.Context())
	if err != nil {
		writeError(w, status, err.Error())
		return
	}

	cookies, expiresAt, err := cookie.New(signer, req.URL, s.expiry(req), cookie.Options{
		Domain: s.cfg.CookieDomain,
	})
	if err != nil {
		s.logger.Info("rejected cookie request", zap.String("url", req.URL), zap.Error(err))
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	for _, c := range cookies {
		http.SetCookie(w, c)
	}

	cookiesIssued.Inc()
	s.logger.Info("signed cookies issued",
		zap.String("url", req.URL),
		zap.Int64("expires_at", expiresAt))

	writeJSON(w, http.StatusOK, cookieResponse{ExpiresAt: expiresAt})
}

func healthzHandler(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok\n"))
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}

func buildCredentialSource(ctx context.Context, cfg Config, mode credentials.RuntimeMode, logger *zap.Logger) (credentialSource, error) {
	var store credentials.ParameterStore
	if mode == credentials.ModeManaged {
		awsConf, err := awsconfig.LoadDefaultConfig(ctx)
		if err != nil {
			return nil, err
		}
		store = credentials.NewSSMStore(awsConf, logger)
	}

	resolver := credentials.NewResolver(mode, store, logger)
	if cfg.CredentialCacheTTL > 0 {
		logger.Info("credential caching enabled", zap.Duration("ttl", cfg.CredentialCacheTTL))
		return credentials.NewCached(resolver, cfg.CredentialCacheTTL), nil
	}
	return resolver, nil
}

func main() {
	var cfg Config
	if err := envconfig.Process("signer", &cfg); err != nil {
		panic(err)
	}

	flag.StringVar(&cfg.Addr, "addr", cfg.Addr, "Listen address")
	flag.StringVar(&cfg.Stage, "stage", cfg.Stage, "Deployment stage (dev, staging, prod)")
	flag.StringVar(&cfg.RuntimeMode, "runtime-mode", cfg.RuntimeMode, "Credential resolution mode: managed, local (default: detected)")
	flag.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "Log level: debug, info, warn, error")
	flag.Parse()

	level := utils.ParseLogLevel(cfg.LogLevel)
	logger := utils.NewLogger(level)
	defer logger.Sync()

	mode, err := credentials.ParseRuntimeMode(cfg.RuntimeMode)
	if err != nil {
		logger.Fatal("invalid runtime mode", zap.Error(err))
	}

	signerApp = utils.SignerApp{
		Stage:       cfg.Stage,
		RuntimeMode: string(mode),
		Logger:      logger,
	}

	source, err := buildCredentialSource(context.Background(), cfg, mode, logger)
	if err != nil {
		logger.Fatal("could not set up credential resolver", zap.Error(err))
	}

	svc := &service{cfg: cfg, credentials: source, logger: logger}

	http.HandleFunc("/sign", svc.signHandler)
	http.HandleFunc("/cookies", svc.cookiesHandler)
	http.HandleFunc("/healthz", healthzHandler)
	http.Handle("/metrics", promhttp.Handler())

	signerApp.Logger.Info("Server listening",
		zap.String("address", cfg.Addr),
		zap.String("stage", signerApp.Stage),
		zap.String("runtime_mode", signerApp.RuntimeMode))
	if err := http.ListenAndServe(cfg.Addr, nil); err != nil {
		signerApp.Logger.Fatal("Failed to start server", zap.Error(err))
	}
}
