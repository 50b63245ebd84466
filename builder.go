package authcore

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/MrEthical07/authcore/internal/audit"
	"github.com/MrEthical07/authcore/password"
	"github.com/MrEthical07/authcore/verification"
)

// Driver names registered by Build.
const (
	PasswordDriverName      = "password"
	RememberTokenDriverName = "remember"
)

// Builder assembles an Engine. A Builder can be used once.
type Builder struct {
	config Config

	store                Store
	hasher               Hasher
	identityFactory      IdentityFactory
	events               EventSink
	auditSink            AuditSink
	logger               *slog.Logger
	logout               LogoutHandler
	verificationProvider VerificationProvider
	adapters             []namedAdapter
	limiter              AttemptLimiter
	now                  func() time.Time

	built bool
}

type namedAdapter struct {
	method  string
	adapter verification.Adapter
}

// New returns a Builder seeded with DefaultConfig.
func New() *Builder {
	return &Builder{
		config: defaultConfig(),
	}
}

func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cfg
	return b
}

// WithStore sets the required persistence collaborator.
func (b *Builder) WithStore(store Store) *Builder {
	b.store = store
	return b
}

// WithHasher replaces the Argon2id hasher built from Config.Password.
func (b *Builder) WithHasher(h Hasher) *Builder {
	b.hasher = h
	return b
}

func (b *Builder) WithIdentityFactory(f IdentityFactory) *Builder {
	b.identityFactory = f
	return b
}

// WithEventSink sets the sink that receives domain events.
func (b *Builder) WithEventSink(sink EventSink) *Builder {
	b.events = sink
	return b
}

// WithAuditSink sets the sink fed by the async audit dispatcher. It has no
// effect unless Config.Audit.Enabled is set.
func (b *Builder) WithAuditSink(sink AuditSink) *Builder {
	b.auditSink = sink
	return b
}

func (b *Builder) WithLogger(logger *slog.Logger) *Builder {
	b.logger = logger
	return b
}

func (b *Builder) WithLogoutHandler(fn LogoutHandler) *Builder {
	b.logout = fn
	return b
}

// WithVerificationProvider replaces the store-backed verification provider.
func (b *Builder) WithVerificationProvider(p VerificationProvider) *Builder {
	b.verificationProvider = p
	return b
}

// WithVerificationAdapter registers an adapter after the built-in "otp" and
// "weburl" adapters. Using a built-in name replaces that adapter in place.
func (b *Builder) WithVerificationAdapter(method string, adapter verification.Adapter) *Builder {
	b.adapters = append(b.adapters, namedAdapter{method: method, adapter: adapter})
	return b
}

// WithAttemptLimiter throttles Issue and Verify per account.
func (b *Builder) WithAttemptLimiter(l AttemptLimiter) *Builder {
	b.limiter = l
	return b
}

// WithClock overrides time.Now for lock and verification expiry.
func (b *Builder) WithClock(now func() time.Time) *Builder {
	b.now = now
	return b
}

func (b *Builder) WithMetricsEnabled(enabled bool) *Builder {
	b.config.Metrics.Enabled = enabled
	return b
}

func (b *Builder) WithLatencyHistograms(enabled bool) *Builder {
	b.config.Metrics.EnableLatencyHistograms = enabled
	return b
}

// Build validates the configuration and wires the engine.
func (b *Builder) Build() (*Engine, error) {
	if b.built {
		return nil, errors.New("builder already used")
	}

	cfg := b.config
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if b.store == nil {
		return nil, fmt.Errorf("%w: store required", ErrEngineNotReady)
	}

	now := b.now
	if now == nil {
		now = time.Now
	}
	logger := b.logger
	if logger == nil {
		logger = discardLogger()
	}

	hasher := b.hasher
	if hasher == nil {
		ph, err := password.NewArgon2(cfg.PasswordHasherConfig())
		if err != nil {
			return nil, err
		}
		hasher = ph
	}

	metrics := NewMetrics(cfg.Metrics)
	dispatcher := audit.NewDispatcher(audit.Config{
		Enabled:    cfg.Audit.Enabled,
		BufferSize: cfg.Audit.BufferSize,
		DropIfFull: cfg.Audit.DropIfFull,
	}, b.auditSink)

	lock := NewAccountLock(b.store, cfg.Lock, now)
	lock.metrics = metrics

	provider := NewCredentialProvider(b.store, hasher, lock, b.identityFactory)
	provider.upgradeOnLogin = cfg.Password.UpgradeOnLogin
	provider.logger = logger
	provider.metrics = metrics

	var signer *verification.LinkSigner
	if cfg.Verification.LinkBaseURL != "" {
		s, err := verification.NewLinkSigner(verification.LinkSignerConfig{
			BaseURL: cfg.Verification.LinkBaseURL,
			Key:     []byte(cfg.Verification.LinkSigningKey),
			Issuer:  cfg.Verification.LinkIssuer,
			Now:     now,
		})
		if err != nil {
			return nil, err
		}
		signer = s
	}

	vp := b.verificationProvider
	if vp == nil {
		vp = NewStoreVerificationProvider(b.store, now)
	}

	engine := &Engine{
		config:   cfg,
		store:    b.store,
		hasher:   hasher,
		lock:     lock,
		provider: provider,
		registry: NewRegistry(),
		audit:    dispatcher,
		metrics:  metrics,
		events:   b.events,
		logout:   b.logout,
		logger:   logger,
		signer:   signer,
		now:      now,
	}

	av := NewAccountVerification(vp, combineSinks(b.events, engine.sessionAudit("")))
	av.signer = signer
	av.ttl = cfg.Verification.TokenTTL
	av.now = now
	av.metrics = metrics
	av.limiter = b.limiter
	av.AddAdapter(verification.MethodOTP, verification.OTPAdapter{})
	av.AddAdapter(verification.MethodWebURL, verification.LinkAdapter{})
	for _, na := range b.adapters {
		av.AddAdapter(na.method, na.adapter)
	}
	engine.verification = av

	passwordFactory := func() (Driver, error) {
		return NewPasswordDriver(engine.NewSession()), nil
	}
	engine.registry.Register(PasswordDriverName, passwordFactory)
	engine.registry.Register(RememberTokenDriverName, func() (Driver, error) {
		return NewRememberTokenDriver(engine.NewSession()), nil
	})
	engine.registry.RegisterDefaultFactory(passwordFactory)

	b.built = true
	return engine, nil
}
