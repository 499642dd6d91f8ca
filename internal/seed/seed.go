// Package seed loads the reference catalog and the bootstrap ADMIN account.
// Running it twice leaves the database unchanged.
package seed

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/iliyamo/medconcierge/internal/config"
	"github.com/iliyamo/medconcierge/internal/model"
	"github.com/iliyamo/medconcierge/internal/utils"
)

//go:embed reference.yaml
var catalogYAML []byte

type entry struct {
	Code     string               `yaml:"code"`
	Sort     int                  `yaml:"sort"`
	Names    model.LocalizedNames `yaml:"names"`
	Inactive bool                 `yaml:"inactive"`
}

// Catalog maps each lookup kind to its rows in display order.
type Catalog map[model.LookupKind][]model.Reference

// LoadCatalog parses a YAML catalog. Unknown kinds, blank or repeated codes
// and rows without an English name are rejected.
func LoadCatalog(data []byte) (Catalog, error) {
	var raw map[string][]entry
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse catalog: %w", err)
	}
	out := make(Catalog, len(raw))
	for name, entries := range raw {
		kind := model.LookupKind(name)
		if kind.Table() == "" {
			return nil, fmt.Errorf("catalog: unknown kind %q", name)
		}
		seen := make(map[string]bool, len(entries))
		for _, e := range entries {
			code := strings.TrimSpace(e.Code)
			if code == "" {
				return nil, fmt.Errorf("catalog %s: entry without code", name)
			}
			if seen[code] {
				return nil, fmt.Errorf("catalog %s: duplicate code %q", name, code)
			}
			seen[code] = true
			if e.Names.En == "" {
				return nil, fmt.Errorf("catalog %s/%s: missing en name", name, code)
			}
			out[kind] = append(out[kind], model.Reference{
				Code: code, Names: e.Names, SortOrder: e.Sort, IsActive: !e.Inactive,
			})
		}
	}
	return out, nil
}

// Default returns the embedded catalog.
func Default() (Catalog, error) { return LoadCatalog(catalogYAML) }

// Store is the part of *repository.Queries the seed writes through.
type Store interface {
	UpsertReference(ctx context.Context, kind model.LookupKind, ref model.Reference) error
	UpsertAdmin(ctx context.Context, u model.User) error
}

// Run upserts every catalog row, then the ADMIN account when a password is
// configured.
func Run(ctx context.Context, store Store, cat Catalog, admin config.AdminConfig, bcryptCost int, log *zap.Logger) error {
	n := 0
	for _, kind := range model.LookupKinds {
		for _, ref := range cat[kind] {
			if err := store.UpsertReference(ctx, kind, ref); err != nil {
				return fmt.Errorf("seed %s/%s: %w", kind, ref.Code, err)
			}
			n++
		}
	}
	log.Info("reference data seeded", zap.Int("rows", n))

	if admin.Password == "" {
		log.Warn("ADMIN_PASSWORD not set, bootstrap admin skipped")
		return nil
	}
	if admin.Email == "" || admin.Phone == "" {
		return errors.New("seed admin: email and phone are required")
	}
	hash, err := utils.HashPassword(admin.Password, bcryptCost)
	if err != nil {
		return fmt.Errorf("seed admin: %w", err)
	}
	err = store.UpsertAdmin(ctx, model.User{
		Email: admin.Email, Phone: admin.Phone, PasswordHash: hash,
		FirstName: admin.FirstName, LastName: admin.LastName, Role: model.RoleAdmin, IsActive: true,
	})
	if err != nil {
		return fmt.Errorf("seed admin: %w", err)
	}
	log.Info("bootstrap admin ensured", zap.String("email", admin.Email))
	return nil
}
