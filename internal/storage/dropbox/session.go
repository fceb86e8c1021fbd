package dropbox

import (
	"context"
	"io"
	"log/slog"
	"sync"

	"github.com/dropbox/dropbox-sdk-go-unofficial/v6/dropbox"
	"github.com/dropbox/dropbox-sdk-go-unofficial/v6/dropbox/async"
	"github.com/dropbox/dropbox-sdk-go-unofficial/v6/dropbox/files"
	"golang.org/x/oauth2"
	"golang.org/x/time/rate"

	"github.com/objectfs/cloudtable/pkg/errors"
)

// Client is the subset of the Dropbox files API the adapter uses.
// files.Client satisfies it.
type Client interface {
	GetMetadata(arg *files.GetMetadataArg) (files.IsMetadata, error)
	ListFolder(arg *files.ListFolderArg) (*files.ListFolderResult, error)
	ListFolderContinue(arg *files.ListFolderContinueArg) (*files.ListFolderResult, error)
	Download(arg *files.DownloadArg) (*files.FileMetadata, io.ReadCloser, error)
	Upload(arg *files.UploadArg, content io.Reader) (*files.FileMetadata, error)
	MoveV2(arg *files.RelocationArg) (*files.RelocationResult, error)
	DeleteV2(arg *files.DeleteArg) (*files.DeleteResult, error)
	DeleteBatch(arg *files.DeleteBatchArg) (*files.DeleteBatchLaunch, error)
	DeleteBatchCheck(arg *async.PollArg) (*files.DeleteBatchJobStatus, error)
}

// ClientFactory builds a Client for one access token.
type ClientFactory func(accessToken string) Client

// NewSDKClient is the ClientFactory backed by the Dropbox SDK.
func NewSDKClient(accessToken string) Client {
	return files.New(dropbox.Config{Token: accessToken, LogLevel: dropbox.LogOff})
}

// Session hands out a Client carrying a valid access token. The token is
// checked before every call and the client is rebuilt when it changes.
type Session struct {
	mu      sync.Mutex
	source  oauth2.TokenSource
	factory ClientFactory
	token   string
	client  Client
	limiter *rate.Limiter
	logger  *slog.Logger
}

// NewSession builds a session from cfg. With a refresh token the access
// token is renewed through the OAuth2 token endpoint as it expires.
func NewSession(ctx context.Context, cfg *Config, factory ClientFactory, logger *slog.Logger) (*Session, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if factory == nil {
		factory = NewSDKClient
	}
	if logger == nil {
		logger = slog.Default()
	}

	var source oauth2.TokenSource
	if cfg.RefreshToken != "" {
		oc := &oauth2.Config{
			ClientID:     cfg.AppKey,
			ClientSecret: cfg.AppSecret,
			Endpoint:     oauth2.Endpoint{TokenURL: cfg.TokenURL, AuthStyle: oauth2.AuthStyleInParams},
		}
		// No access token in the seed: it has no known expiry, and the first
		// call must refresh.
		seed := &oauth2.Token{RefreshToken: cfg.RefreshToken}
		source = oauth2.ReuseTokenSource(seed, oc.TokenSource(context.WithoutCancel(ctx), seed))
	} else {
		source = oauth2.StaticTokenSource(&oauth2.Token{AccessToken: cfg.AccessToken})
	}

	return NewSessionWithSource(source, factory, cfg, logger), nil
}

// NewSessionWithSource wraps an existing token source.
func NewSessionWithSource(source oauth2.TokenSource, factory ClientFactory, cfg *Config, logger *slog.Logger) *Session {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Session{
		source:  source,
		factory: factory,
		logger:  logger,
	}
	if cfg != nil && cfg.RequestsPerSecond > 0 {
		s.limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), cfg.Burst)
	}
	return s
}

// Client waits for the rate limiter, refreshes the token if needed and
// returns the client for it.
func (s *Session) Client(ctx context.Context) (Client, error) {
	if s.limiter != nil {
		if err := s.limiter.Wait(ctx); err != nil {
			return nil, errors.Wrap(err, backendName, "session", "")
		}
	}

	tok, err := s.source.Token()
	if err != nil {
		return nil, errors.NewError(errors.ErrCodeAuthFailure, "token refresh failed: "+err.Error()).
			WithComponent(backendName).
			WithOperation("session").
			WithCause(err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.client == nil || tok.AccessToken != s.token {
		if s.client != nil {
			s.logger.Info("dropbox access token refreshed", "expiry", tok.Expiry)
		}
		s.client = s.factory(tok.AccessToken)
		s.token = tok.AccessToken
	}
	return s.client, nil
}
