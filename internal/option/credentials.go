package option

import (
	"io"

	toml "github.com/pelletier/go-toml"
	"github.com/pkg/errors"
)

// Credentials is the per-repo secret overlay kept out of the INI config a
// repo section lives in (spec §6 (expansion), "Credentials file"):
// proxy/basic-auth username+password and an sslclientkey path override.
// Keys absent here fall back to whatever (possibly empty) value the INI
// section itself carried.
type Credentials struct {
	ProxyUsername string `toml:"proxy_username"`
	ProxyPassword string `toml:"proxy_password"`
	Username      string `toml:"username"`
	Password      string `toml:"password"`
	SSLClientKey  string `toml:"sslclientkey"`
}

// rawCredentialsFile is keyed by repo id, mirroring the teacher's
// registry_config.go raw-struct-plus-Unmarshal pattern.
type rawCredentialsFile struct {
	Repos map[string]Credentials `toml:"repos"`
}

// ReadCredentials parses a credentials.toml document from r, returning one
// Credentials per repo id found under the top-level `[repos.<id>]` tables.
func ReadCredentials(r io.Reader) (map[string]Credentials, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, errors.Wrap(err, "unable to read credentials stream")
	}
	var raw rawCredentialsFile
	if err := toml.Unmarshal(data, &raw); err != nil {
		return nil, errors.Wrap(err, "unable to parse credentials as TOML")
	}
	return raw.Repos, nil
}

// ApplyCredentials loads username/password/sslclientkey keys from creds into
// binds at PriorityRepoConfig, for whichever of those option names are
// bound and not already set by the INI section (spec §6 (expansion)).
func ApplyCredentials(binds *Binds, creds Credentials) error {
	apply := func(name, value string) error {
		if value == "" {
			return nil
		}
		opt, ok := binds.Get(name)
		if !ok {
			return nil
		}
		if opt.IsSet() && opt.Priority() >= PriorityRepoConfig {
			return nil
		}
		return opt.Set(PriorityRepoConfig, value)
	}
	if err := apply("proxy_username", creds.ProxyUsername); err != nil {
		return err
	}
	if err := apply("proxy_password", creds.ProxyPassword); err != nil {
		return err
	}
	if err := apply("username", creds.Username); err != nil {
		return err
	}
	if err := apply("password", creds.Password); err != nil {
		return err
	}
	if err := apply("sslclientkey", creds.SSLClientKey); err != nil {
		return err
	}
	return nil
}

// MarshalCredentials serializes creds back to TOML, mirroring the teacher's
// own MarshalTOML pattern (registry_config.go). Not used by the library
// itself (the caller owns secret provisioning, per spec §6 (expansion)) but
// kept for callers that want to round-trip a credentials file they loaded.
func MarshalCredentials(repos map[string]Credentials) ([]byte, error) {
	raw := rawCredentialsFile{Repos: repos}
	out, err := toml.Marshal(raw)
	return out, errors.Wrap(err, "unable to marshal credentials to TOML")
}
