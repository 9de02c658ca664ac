// Package vault holds per-crawler credentials and portal URLs in a
// json5 config file, with passwords encrypted at rest.
package vault

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"readtx/lib/configutil"
)

const (
	App        = "readtx"
	ConfigName = "readtx.json5"
	keyName    = "secret.key"
)

// ErrNotFound reports a lookup for a crawler the config does not know.
var ErrNotFound = errors.New("vault: no entry")

type Credentials struct {
	User     string `json:"user"`
	Password string `json:"password"`
}

type file struct {
	Credentials map[string]Credentials       `json:"credentials"`
	URLs        map[string]map[string]string `json:"urls"`
}

type Vault struct {
	// Path of the backing config file. Writes go here.
	Path string
	// KeyPath of the AES key used for ENC(...) passwords. Created on
	// first use.
	KeyPath string

	cfg file
}

// DefaultPath walks up from the cwd looking for the config file and
// falls back to the per-user config directory. The fallback path is
// returned even when no file exists there yet, so `config init` knows
// where to write.
func DefaultPath() (string, error) {
	found, err := configutil.FindRecursively(ConfigName)
	if err == nil {
		return found, nil
	}
	if !os.IsNotExist(err) {
		return "", err
	}
	dir, err := configutil.UserConfigDir(App)
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, ConfigName), nil
}

func defaultKeyPath() (string, error) {
	dir, err := configutil.UserConfigDir(App)
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, keyName), nil
}

// Open loads the vault at path, or at DefaultPath when path is empty.
// A missing file yields an empty vault bound to that path; lookups will
// fail but init and set can populate it.
func Open(path string) (*Vault, error) {
	if path == "" {
		var err error
		path, err = DefaultPath()
		if err != nil {
			return nil, err
		}
	}
	keyPath, err := defaultKeyPath()
	if err != nil {
		return nil, err
	}
	v := &Vault{Path: path, KeyPath: keyPath}

	cfg, err := configutil.ReadConfig[file](path)
	if err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("vault: read %s: %w", path, err)
	}
	if err == nil {
		v.cfg = cfg
	}
	return v, nil
}

// Credentials returns the decrypted credentials for a crawler name.
func (v *Vault) Credentials(name string) (Credentials, error) {
	name = strings.ToLower(name)
	creds, ok := v.cfg.Credentials[name]
	if !ok {
		return Credentials{}, fmt.Errorf("%w: credentials for %q", ErrNotFound, name)
	}
	password, err := v.maybeDecrypt(creds.Password)
	if err != nil {
		return Credentials{}, fmt.Errorf("vault: decrypt password for %q: %w", name, err)
	}
	creds.Password = password
	return creds, nil
}

// URLs returns the purpose-keyed URL map for a crawler name.
func (v *Vault) URLs(name string) (map[string]string, error) {
	name = strings.ToLower(name)
	urls, ok := v.cfg.URLs[name]
	if !ok {
		return nil, fmt.Errorf("%w: urls for %q", ErrNotFound, name)
	}
	return urls, nil
}

// SetCredentials stores credentials for a crawler, encrypting the
// password, and saves the vault.
func (v *Vault) SetCredentials(name, user, password string) error {
	encrypted, err := v.Encrypt(password)
	if err != nil {
		return err
	}
	if v.cfg.Credentials == nil {
		v.cfg.Credentials = map[string]Credentials{}
	}
	v.cfg.Credentials[strings.ToLower(name)] = Credentials{
		User:     user,
		Password: encrypted,
	}
	return v.Save()
}

// Save writes the vault back as indented JSON, which is valid json5.
// ENC(...) values are already ciphertext; everything else is stored as
// given.
func (v *Vault) Save() error {
	raw, err := json.MarshalIndent(v.cfg, "", "  ")
	if err != nil {
		return err
	}
	err = os.MkdirAll(filepath.Dir(v.Path), 0o700)
	if err != nil {
		return err
	}
	return os.WriteFile(v.Path, append(raw, '\n'), 0o600)
}

const template = `{
  // readtx configuration: one credentials entry and one urls entry per
  // crawler. run "readtx-cli config set <crawler> --user ... --password ..."
  // to store an encrypted password.
  credentials: {
    // amazon_visa: {user: "mail@example.org", password: "ENC(...)"},
  },
  urls: {
    // amazon_visa: {login: "https://...", transactions: "https://..."},
  },
}
`

// WriteTemplate writes a commented starter config. Refuses to clobber
// an existing file unless overwrite is set.
func WriteTemplate(path string, overwrite bool) error {
	if !overwrite {
		_, err := os.Stat(path)
		if err == nil {
			return fmt.Errorf("vault: %s already exists", path)
		}
		if !os.IsNotExist(err) {
			return err
		}
	}
	err := os.MkdirAll(filepath.Dir(path), 0o700)
	if err != nil {
		return err
	}
	return os.WriteFile(path, []byte(template), 0o600)
}
