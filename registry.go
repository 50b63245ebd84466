package authcore

import (
	"context"
	"strings"
	"sync"
)

// DefaultDriverName is the name used by RegisterDefault and Default.
const DefaultDriverName = "default"

// Driver is a sign-in strategy. SignIn returns a nil identity when the
// credentials are rejected.
type Driver interface {
	SignIn(ctx context.Context, credentials Credentials, remember bool) (*Identity, error)
}

// DriverFactory builds a driver on every Resolve.
type DriverFactory func() (Driver, error)

// Registry maps case-insensitive names to sign-in drivers. A name, once
// registered, cannot be rebound; later registrations are ignored.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]DriverFactory
}

func NewRegistry() *Registry {
	return &Registry{factories: map[string]DriverFactory{}}
}

// Register binds name to factory unless name is already bound. It reports
// whether the binding took effect.
func (r *Registry) Register(name string, factory DriverFactory) bool {
	if factory == nil {
		return false
	}
	key := strings.ToLower(name)

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.factories[key]; exists {
		return false
	}
	r.factories[key] = factory
	return true
}

// RegisterDriver binds name to a fixed driver instance.
func (r *Registry) RegisterDriver(name string, driver Driver) bool {
	if driver == nil {
		return false
	}
	return r.Register(name, func() (Driver, error) { return driver, nil })
}

// Resolve builds the driver bound to name. Unknown names return a
// *DriverNotFoundError.
func (r *Registry) Resolve(name string) (Driver, error) {
	r.mu.RLock()
	factory, ok := r.factories[strings.ToLower(name)]
	r.mu.RUnlock()

	if !ok {
		return nil, &DriverNotFoundError{Name: name}
	}
	return factory()
}

func (r *Registry) RegisterDefault(driver Driver) bool {
	return r.RegisterDriver(DefaultDriverName, driver)
}

func (r *Registry) RegisterDefaultFactory(factory DriverFactory) bool {
	return r.Register(DefaultDriverName, factory)
}

// Default resolves the "default" driver.
func (r *Registry) Default() (Driver, error) {
	return r.Resolve(DefaultDriverName)
}

// Names returns the registered names in no particular order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]string, 0, len(r.factories))
	for name := range r.factories {
		out = append(out, name)
	}
	return out
}

// PasswordDriver signs in with login and password.
type PasswordDriver struct {
	session *AuthSession
}

func NewPasswordDriver(session *AuthSession) *PasswordDriver {
	return &PasswordDriver{session: session}
}

func (d *PasswordDriver) SignIn(ctx context.Context, credentials Credentials, remember bool) (*Identity, error) {
	ok, err := d.session.AuthenticateByLogin(ctx, credentials.Login, credentials.Password, remember)
	if err != nil || !ok {
		return nil, err
	}
	return d.session.CurrentUser(), nil
}

// RememberTokenDriver signs in with an account id and remember token.
// The remember flag is ignored.
type RememberTokenDriver struct {
	session *AuthSession
}

func NewRememberTokenDriver(session *AuthSession) *RememberTokenDriver {
	return &RememberTokenDriver{session: session}
}

func (d *RememberTokenDriver) SignIn(ctx context.Context, credentials Credentials, _ bool) (*Identity, error) {
	ok, err := d.session.AuthenticateViaToken(ctx, credentials.ID, credentials.Token)
	if err != nil || !ok {
		return nil, err
	}
	return d.session.CurrentUser(), nil
}
