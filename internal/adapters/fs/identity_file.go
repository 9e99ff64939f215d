package fs

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/bft-labs/rtcshare/internal/domain"
)

// IdentityFileName is the per-directory settings file holding the
// service identity. It is never shared.
const IdentityFileName = ".rtcshare.yaml"

// IdentityFile implements ports.IdentityRepository using the YAML
// settings file of a shared directory.
type IdentityFile struct {
	dir string
}

// NewIdentityFile creates an IdentityFile for dir.
func NewIdentityFile(dir string) *IdentityFile {
	return &IdentityFile{dir: dir}
}

// Path returns the full path to the settings file.
func (r *IdentityFile) Path() string {
	return filepath.Join(r.dir, IdentityFileName)
}

// Load reads the identity. Returns a zero identity and nil error if the
// file does not exist or holds no identity.
func (r *IdentityFile) Load(ctx context.Context) (domain.ServiceIdentity, error) {
	data, err := os.ReadFile(r.Path())
	if err != nil {
		if os.IsNotExist(err) {
			return domain.ServiceIdentity{}, nil
		}
		return domain.ServiceIdentity{}, err
	}

	var id domain.ServiceIdentity
	if err := yaml.Unmarshal(data, &id); err != nil {
		return domain.ServiceIdentity{}, fmt.Errorf("parse %s: %w", IdentityFileName, err)
	}
	if id.PrivateID != "" && id.PublicID == "" {
		id.PublicID = domain.DerivePublicID(id.PrivateID)
	}
	return id, nil
}

// Save writes the identity, keeping any other settings in the file.
// Uses atomic write (write to temp file, then rename).
func (r *IdentityFile) Save(ctx context.Context, id domain.ServiceIdentity) error {
	settings := map[string]interface{}{}
	if data, err := os.ReadFile(r.Path()); err == nil {
		if err := yaml.Unmarshal(data, &settings); err != nil {
			return fmt.Errorf("parse %s: %w", IdentityFileName, err)
		}
		if settings == nil {
			settings = map[string]interface{}{}
		}
	} else if !os.IsNotExist(err) {
		return err
	}
	settings["publicId"] = id.PublicID
	settings["privateId"] = id.PrivateID

	data, err := yaml.Marshal(settings)
	if err != nil {
		return err
	}

	tmp := r.Path() + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return err
	}
	return os.Rename(tmp, r.Path())
}

// LoadOrCreate returns the stored identity, generating and saving a new
// one on first use.
func (r *IdentityFile) LoadOrCreate(ctx context.Context) (domain.ServiceIdentity, error) {
	id, err := r.Load(ctx)
	if err != nil {
		return domain.ServiceIdentity{}, err
	}
	if id.Valid() {
		return id, nil
	}

	id, err = domain.NewServiceIdentity()
	if err != nil {
		return domain.ServiceIdentity{}, err
	}
	if err := r.Save(ctx, id); err != nil {
		return domain.ServiceIdentity{}, fmt.Errorf("save identity: %w", err)
	}
	return id, nil
}
