package core

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/goliatone/go-config/cfgx"
	opts "github.com/goliatone/go-options"
	"gopkg.in/yaml.v3"
)

type ConfigProvider interface {
	Load(ctx context.Context, defaults Config) (Config, error)
}

type RawConfigLoader interface {
	LoadRaw(ctx context.Context) (map[string]any, error)
}

type OptionsResolver interface {
	Resolve(defaults Config, loaded Config, runtime Config) (Config, error)
}

type StaticRawConfigLoader struct {
	Values map[string]any
}

func (l StaticRawConfigLoader) LoadRaw(context.Context) (map[string]any, error) {
	return deepCopyMap(l.Values), nil
}

// YAMLConfigLoader reads a YAML document. A missing file yields an empty map
// unless Required is set.
type YAMLConfigLoader struct {
	Path     string
	Required bool
}

func (l YAMLConfigLoader) LoadRaw(context.Context) (map[string]any, error) {
	path := strings.TrimSpace(l.Path)
	if path == "" {
		return map[string]any{}, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) && !l.Required {
			return map[string]any{}, nil
		}
		return nil, fmt.Errorf("core: read config %s: %w", path, err)
	}
	raw := map[string]any{}
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("core: parse config %s: %w", path, err)
	}
	return raw, nil
}

// EnvBindings maps environment variable names to dotted config keys.
var EnvBindings = map[string]string{
	"SSO_API_URL":       "api_url",
	"REDIRECT_URL":      "redirect_base_url",
	"SSO_CLIENT_ID":     "sso.client_id",
	"SSO_REDIRECT_URI":  "sso.redirect_uri",
	"REDIRECTS_SESSION": "session.backend",
	"REDIRECTS_DSN":     "persistence.dsn",
}

type EnvConfigLoader struct {
	Bindings map[string]string
	Lookup   func(string) (string, bool)
}

func (l EnvConfigLoader) LoadRaw(context.Context) (map[string]any, error) {
	bindings := l.Bindings
	if bindings == nil {
		bindings = EnvBindings
	}
	lookup := l.Lookup
	if lookup == nil {
		lookup = os.LookupEnv
	}
	raw := map[string]any{}
	for name, key := range bindings {
		value, ok := lookup(name)
		if !ok || strings.TrimSpace(value) == "" {
			continue
		}
		setPath(raw, key, strings.TrimSpace(value))
	}
	return raw, nil
}

// LayeredRawLoader merges loaders in order; later loaders win.
type LayeredRawLoader []RawConfigLoader

func (l LayeredRawLoader) LoadRaw(ctx context.Context) (map[string]any, error) {
	out := map[string]any{}
	for _, loader := range l {
		if loader == nil {
			continue
		}
		raw, err := loader.LoadRaw(ctx)
		if err != nil {
			return nil, err
		}
		mergeMaps(out, raw)
	}
	return out, nil
}

type CfgxConfigProvider struct {
	Loader RawConfigLoader
}

func NewCfgxConfigProvider(loader RawConfigLoader) *CfgxConfigProvider {
	return &CfgxConfigProvider{Loader: loader}
}

func (p *CfgxConfigProvider) Load(ctx context.Context, defaults Config) (Config, error) {
	if p == nil {
		return defaults, nil
	}
	loader := p.Loader
	if loader == nil {
		loader = StaticRawConfigLoader{}
	}
	raw, err := loader.LoadRaw(ctx)
	if err != nil {
		return Config{}, err
	}
	cfg, err := cfgx.Build[Config](normalizeRaw(raw),
		cfgx.WithDefaults(defaults),
		cfgx.WithValidator[Config]((*Config).Validate),
	)
	if err != nil {
		return Config{}, err
	}
	return cfg, nil
}

type GoOptionsResolver struct{}

func (GoOptionsResolver) Resolve(defaults Config, loaded Config, runtime Config) (Config, error) {
	stack, err := opts.NewStack(
		opts.NewLayer(
			opts.NewScope("defaults", 0),
			configToLayerMap(defaults, true),
			opts.WithSnapshotID[map[string]any]("defaults"),
		),
		opts.NewLayer(
			opts.NewScope("config", 10),
			configToLayerMap(loaded, false),
			opts.WithSnapshotID[map[string]any]("config"),
		),
		opts.NewLayer(
			opts.NewScope("runtime", 20),
			configToLayerMap(runtime, false),
			opts.WithSnapshotID[map[string]any]("runtime"),
		),
	)
	if err != nil {
		return Config{}, fmt.Errorf("core: options stack build failed: %w", err)
	}
	merged, err := stack.Merge()
	if err != nil {
		return Config{}, fmt.Errorf("core: options merge failed: %w", err)
	}
	resolved, err := cfgx.Build[Config](merged.Value,
		cfgx.WithDefaults(defaults),
		cfgx.WithValidator[Config]((*Config).Validate),
	)
	if err != nil {
		return Config{}, err
	}
	if err := resolved.Validate(); err != nil {
		return Config{}, err
	}
	return resolved, nil
}

// LoadConfig runs provider then resolver over DefaultConfig, with runtime
// values taking precedence over anything loaded.
func LoadConfig(ctx context.Context, provider ConfigProvider, resolver OptionsResolver, runtime Config) (Config, error) {
	defaults := DefaultConfig()
	if provider == nil {
		provider = NewCfgxConfigProvider(nil)
	}
	if resolver == nil {
		resolver = GoOptionsResolver{}
	}
	loaded, err := provider.Load(ctx, defaults)
	if err != nil {
		return Config{}, err
	}
	return resolver.Resolve(defaults, loaded, runtime)
}

func configToLayerMap(cfg Config, includeZero bool) map[string]any {
	layer := map[string]any{}
	putString(layer, "api_url", cfg.APIURL, includeZero)
	putString(layer, "redirect_base_url", cfg.RedirectBaseURL, includeZero)
	if includeZero || cfg.PageSize > 0 {
		layer["page_size"] = cfg.PageSize
	}

	httpLayer := map[string]any{}
	putString(httpLayer, "timeout", cfg.HTTP.Timeout, includeZero)
	if includeZero || cfg.HTTP.MaxResponseBodyBytes > 0 {
		httpLayer["max_response_body_bytes"] = cfg.HTTP.MaxResponseBodyBytes
	}
	putSection(layer, "http", httpLayer)

	ssoLayer := map[string]any{}
	putString(ssoLayer, "login_url", cfg.SSO.LoginURL, includeZero)
	putString(ssoLayer, "client_id", cfg.SSO.ClientID, includeZero)
	putString(ssoLayer, "redirect_uri", cfg.SSO.RedirectURI, includeZero)
	putString(ssoLayer, "callback_path", cfg.SSO.CallbackPath, includeZero)
	putSection(layer, "sso", ssoLayer)

	sessionLayer := map[string]any{}
	putString(sessionLayer, "storage_key", cfg.Session.StorageKey, includeZero)
	putString(sessionLayer, "backend", cfg.Session.Backend, includeZero)
	putString(sessionLayer, "path", cfg.Session.Path, includeZero)
	putString(sessionLayer, "encryption_key", cfg.Session.EncryptionKey, includeZero)
	if includeZero || cfg.Session.Watch {
		sessionLayer["watch"] = cfg.Session.Watch
	}
	putSection(layer, "session", sessionLayer)

	recoveryLayer := map[string]any{}
	putString(recoveryLayer, "redirect_after", cfg.Recovery.RedirectAfter, includeZero)
	putSection(layer, "recovery", recoveryLayer)

	persistenceLayer := map[string]any{}
	putString(persistenceLayer, "driver", cfg.Persistence.Driver, includeZero)
	putString(persistenceLayer, "dsn", cfg.Persistence.DSN, includeZero)
	putString(persistenceLayer, "cache_ttl", cfg.Persistence.CacheTTL, includeZero)
	if includeZero || cfg.Persistence.Debug {
		persistenceLayer["debug"] = cfg.Persistence.Debug
	}
	putSection(layer, "persistence", persistenceLayer)
	return layer
}

func putString(layer map[string]any, key string, value string, includeZero bool) {
	if includeZero || strings.TrimSpace(value) != "" {
		layer[key] = value
	}
}

func putSection(layer map[string]any, key string, section map[string]any) {
	if len(section) > 0 {
		layer[key] = section
	}
}

func setPath(target map[string]any, dotted string, value any) {
	parts := strings.Split(dotted, ".")
	current := target
	for _, part := range parts[:len(parts)-1] {
		next, ok := current[part].(map[string]any)
		if !ok {
			next = map[string]any{}
			current[part] = next
		}
		current = next
	}
	current[parts[len(parts)-1]] = value
}

func mergeMaps(dst map[string]any, src map[string]any) {
	for key, value := range src {
		if nested, ok := value.(map[string]any); ok {
			existing, ok := dst[key].(map[string]any)
			if !ok {
				existing = map[string]any{}
				dst[key] = existing
			}
			mergeMaps(existing, nested)
			continue
		}
		dst[key] = value
	}
}

// normalizeRaw converts yaml's map[any]any nodes and drops nil values so the
// decoder sees plain string keyed maps.
func normalizeRaw(raw map[string]any) map[string]any {
	out := make(map[string]any, len(raw))
	for key, value := range raw {
		switch typed := value.(type) {
		case nil:
			continue
		case map[string]any:
			out[key] = normalizeRaw(typed)
		case map[any]any:
			converted := make(map[string]any, len(typed))
			for k, v := range typed {
				converted[fmt.Sprint(k)] = v
			}
			out[key] = normalizeRaw(converted)
		default:
			out[key] = value
		}
	}
	return out
}

func deepCopyMap(src map[string]any) map[string]any {
	out := map[string]any{}
	mergeMaps(out, src)
	return out
}
