package config

import (
	"os"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"
)

// SiteCredential is one portal login from the credentials file.
type SiteCredential struct {
	Name     string `yaml:"name"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// Credentials holds the portal logins kept outside config.yaml so the
// main config can be committed.
type Credentials struct {
	Sites []SiteCredential `yaml:"sites"`
}

// For returns the credential for a named site.
func (c Credentials) For(name string) (SiteCredential, bool) {
	for _, s := range c.Sites {
		if s.Name == name {
			return s, true
		}
	}
	return SiteCredential{}, false
}

// LoadCredentials reads a credentials YAML file. A missing file is not
// an error; callers fall back to vendor.username/password.
func LoadCredentials(path string) (Credentials, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Credentials{}, nil
		}
		return Credentials{}, eris.Wrapf(err, "config: read credentials %s", path)
	}

	var creds Credentials
	if err := yaml.Unmarshal(data, &creds); err != nil {
		return Credentials{}, eris.Wrapf(err, "config: parse credentials %s", path)
	}

	return creds, nil
}

// ResolveVendorLogin returns the username/password for the vendor,
// preferring explicit config values over the credentials file.
func ResolveVendorLogin(v VendorConfig) (username, password string, err error) {
	if v.Username != "" && v.Password != "" {
		return v.Username, v.Password, nil
	}

	creds, err := LoadCredentials(v.CredentialsFile)
	if err != nil {
		return "", "", err
	}
	if site, ok := creds.For(v.Name); ok {
		u, p := v.Username, v.Password
		if u == "" {
			u = site.Username
		}
		if p == "" {
			p = site.Password
		}
		return u, p, nil
	}

	return v.Username, v.Password, nil
}
