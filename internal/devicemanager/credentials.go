package devicemanager

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/nerrad567/tuyable-bridge/internal/infrastructure/config"
	"github.com/nerrad567/tuyable-bridge/internal/infrastructure/mqtt"
)

// CredentialStore is a SQLite-backed CredentialsProvider.
//
// Rows are seeded from configuration and refreshed by info messages from
// the device manager. Reads go through an in-memory cache unless the
// caller forces an update.
type CredentialStore struct {
	db *sql.DB

	mu    sync.RWMutex
	cache map[string]Credentials
}

// NewCredentialStore returns a store over the credentials table.
func NewCredentialStore(db *sql.DB) *CredentialStore {
	return &CredentialStore{
		db:    db,
		cache: make(map[string]Credentials),
	}
}

// Seed upserts the devices listed in configuration. Configured local keys
// and UUIDs always win over stored ones.
func (s *CredentialStore) Seed(ctx context.Context, devices []config.DeviceConfig) error {
	for _, d := range devices {
		creds := Credentials{
			Address:      NormalizeAddress(d.Address),
			UUID:         d.UUID,
			LocalKey:     d.LocalKey,
			DeviceID:     d.DeviceID,
			Category:     d.Category,
			ProductID:    d.ProductID,
			DeviceName:   d.Name,
			ProductModel: d.ProductModel,
			ProductName:  d.ProductName,
		}
		if err := s.Save(ctx, creds); err != nil {
			return fmt.Errorf("seeding credentials for %s: %w", creds.Address, err)
		}
	}
	return nil
}

// Save upserts creds. Empty fields do not overwrite stored values.
func (s *CredentialStore) Save(ctx context.Context, creds Credentials) error {
	creds.Address = NormalizeAddress(creds.Address)
	if !ValidAddress(creds.Address) {
		return fmt.Errorf("%w: %q", ErrInvalidAddress, creds.Address)
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO credentials (
			address, uuid, local_key, device_id, category, product_id,
			device_name, product_model, product_name, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(address) DO UPDATE SET
			uuid = COALESCE(NULLIF(excluded.uuid, ''), credentials.uuid),
			local_key = COALESCE(NULLIF(excluded.local_key, ''), credentials.local_key),
			device_id = COALESCE(NULLIF(excluded.device_id, ''), credentials.device_id),
			category = COALESCE(NULLIF(excluded.category, ''), credentials.category),
			product_id = COALESCE(NULLIF(excluded.product_id, ''), credentials.product_id),
			device_name = COALESCE(NULLIF(excluded.device_name, ''), credentials.device_name),
			product_model = COALESCE(NULLIF(excluded.product_model, ''), credentials.product_model),
			product_name = COALESCE(NULLIF(excluded.product_name, ''), credentials.product_name),
			updated_at = excluded.updated_at`,
		creds.Address, creds.UUID, creds.LocalKey, creds.DeviceID, creds.Category, creds.ProductID,
		creds.DeviceName, creds.ProductModel, creds.ProductName,
		time.Now().UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("saving credentials: %w", err)
	}

	s.mu.Lock()
	delete(s.cache, creds.Address)
	s.mu.Unlock()
	return nil
}

// RecordInfo implements InfoRecorder.
func (s *CredentialStore) RecordInfo(ctx context.Context, address string, info Info) error {
	return s.Save(ctx, Credentials{
		Address:      address,
		DeviceID:     info.DeviceID,
		Category:     info.Category,
		ProductID:    info.ProductID,
		DeviceName:   info.Name,
		ProductModel: info.ProductModel,
		ProductName:  info.ProductName,
	})
}

// DeviceCredentials implements CredentialsProvider.
func (s *CredentialStore) DeviceCredentials(ctx context.Context, address string, forceUpdate bool) (*Credentials, error) {
	address = NormalizeAddress(address)

	if !forceUpdate {
		s.mu.RLock()
		cached, ok := s.cache[address]
		s.mu.RUnlock()
		if ok {
			return &cached, nil
		}
	}

	row := s.db.QueryRowContext(ctx, `
		SELECT address, uuid, local_key, device_id, category, product_id,
			device_name, product_model, product_name
		FROM credentials WHERE address = ?`, address)

	var c Credentials
	err := row.Scan(&c.Address, &c.UUID, &c.LocalKey, &c.DeviceID, &c.Category, &c.ProductID,
		&c.DeviceName, &c.ProductModel, &c.ProductName)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrCredentialsNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying credentials: %w", err)
	}

	s.mu.Lock()
	s.cache[address] = c
	s.mu.Unlock()

	return &c, nil
}

// List returns every stored credential ordered by address.
func (s *CredentialStore) List(ctx context.Context) ([]Credentials, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT address, uuid, local_key, device_id, category, product_id,
			device_name, product_model, product_name
		FROM credentials ORDER BY address`)
	if err != nil {
		return nil, fmt.Errorf("querying credentials: %w", err)
	}
	defer rows.Close()

	var out []Credentials
	for rows.Next() {
		var c Credentials
		if err := rows.Scan(&c.Address, &c.UUID, &c.LocalKey, &c.DeviceID, &c.Category, &c.ProductID,
			&c.DeviceName, &c.ProductModel, &c.ProductName); err != nil {
			return nil, fmt.Errorf("scanning credentials: %w", err)
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating credentials: %w", err)
	}
	return out, nil
}

// Publisher is the part of the MQTT client used to hand credentials to
// the device manager.
type Publisher interface {
	Publish(topic string, payload []byte, qos byte, retained bool) error
}

// credentialsMessage is the payload of {prefix}/manager/{address}/credentials.
// Unlike Credentials it carries the local key.
type credentialsMessage struct {
	Address      string `json:"address"`
	UUID         string `json:"uuid"`
	LocalKey     string `json:"local_key"`
	DeviceID     string `json:"device_id"`
	Category     string `json:"category,omitempty"`
	ProductID    string `json:"product_id,omitempty"`
	DeviceName   string `json:"device_name,omitempty"`
	ProductModel string `json:"product_model,omitempty"`
	ProductName  string `json:"product_name,omitempty"`
}

// PublishCredentials publishes every stored credential that has a local
// key as a retained message, so the device manager can pair and encrypt.
// It returns the number of devices published.
func (s *CredentialStore) PublishCredentials(ctx context.Context, pub Publisher, topics mqtt.Topics, qos byte) (int, error) {
	list, err := s.List(ctx)
	if err != nil {
		return 0, err
	}

	published := 0
	for _, c := range list {
		if c.LocalKey == "" {
			continue
		}
		payload, err := json.Marshal(credentialsMessage{
			Address:      c.Address,
			UUID:         c.UUID,
			LocalKey:     c.LocalKey,
			DeviceID:     c.DeviceID,
			Category:     c.Category,
			ProductID:    c.ProductID,
			DeviceName:   c.DeviceName,
			ProductModel: c.ProductModel,
			ProductName:  c.ProductName,
		})
		if err != nil {
			return published, fmt.Errorf("encoding credentials for %s: %w", c.Address, err)
		}
		if err := pub.Publish(topics.ManagerCredentials(c.Address), payload, qos, true); err != nil {
			return published, fmt.Errorf("publishing credentials for %s: %w", c.Address, err)
		}
		published++
	}
	return published, nil
}

var (
	_ CredentialsProvider = (*CredentialStore)(nil)
	_ InfoRecorder        = (*CredentialStore)(nil)
)
