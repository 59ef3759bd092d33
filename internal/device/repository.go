package device

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// Repository defines device, entity and entity state persistence.
// This abstraction allows unit testing the Registry without a database.
type Repository interface {
	// GetDevice returns ErrDeviceNotFound if the address is unknown.
	GetDevice(ctx context.Context, id string) (*Device, error)

	// ListDevices returns all devices ordered by address.
	ListDevices(ctx context.Context) ([]Device, error)

	// UpsertDevice inserts or replaces a device. CreatedAt and LastSeen
	// of an existing row are kept.
	UpsertDevice(ctx context.Context, device *Device) error

	// UpdateHealth returns ErrDeviceNotFound if the address is unknown.
	UpdateHealth(ctx context.Context, id string, status HealthStatus, lastSeen time.Time) error

	// ListEntities returns all entities ordered by entity id.
	ListEntities(ctx context.Context) ([]Entity, error)

	// UpsertEntity inserts or replaces an entity keyed by unique id.
	UpsertEntity(ctx context.Context, entity *Entity) error

	// GetEntityState returns ErrStateNotFound if nothing was written yet.
	GetEntityState(ctx context.Context, entityID string) (*EntityState, error)

	// UpsertEntityState replaces the stored state of an entity.
	UpsertEntityState(ctx context.Context, state *EntityState) error
}

// SQLiteRepository implements Repository using SQLite.
type SQLiteRepository struct {
	db *sql.DB
}

// NewSQLiteRepository creates a new SQLite-backed repository.
// The db parameter should be an open, migrated SQLite connection.
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

const deviceColumns = `id, device_id, name, manufacturer, model, hw_version, sw_version,
	category, product_id, health_status, last_seen, created_at, updated_at`

const entityColumns = `unique_id, entity_id, device_id, key, name, icon, device_class,
	unit, state_class, entity_category, enabled, created_at, updated_at`

// GetDevice retrieves a device by address.
func (r *SQLiteRepository) GetDevice(ctx context.Context, id string) (*Device, error) {
	row := r.db.QueryRowContext(ctx, "SELECT "+deviceColumns+" FROM devices WHERE id = ?", id)
	d, err := scanDevice(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrDeviceNotFound
		}
		return nil, fmt.Errorf("querying device by id: %w", err)
	}
	return d, nil
}

// ListDevices retrieves all devices.
func (r *SQLiteRepository) ListDevices(ctx context.Context) ([]Device, error) {
	rows, err := r.db.QueryContext(ctx, "SELECT "+deviceColumns+" FROM devices ORDER BY id")
	if err != nil {
		return nil, fmt.Errorf("querying devices: %w", err)
	}
	defer rows.Close()

	var devices []Device
	for rows.Next() {
		d, err := scanDevice(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning device: %w", err)
		}
		devices = append(devices, *d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating devices: %w", err)
	}
	return devices, nil
}

// UpsertDevice inserts a device or updates the existing row.
func (r *SQLiteRepository) UpsertDevice(ctx context.Context, d *Device) error {
	now := time.Now().UTC()
	if d.CreatedAt.IsZero() {
		d.CreatedAt = now
	}
	d.UpdatedAt = now
	if d.HealthStatus == "" {
		d.HealthStatus = HealthStatusUnknown
	}

	query := `
		INSERT INTO devices (` + deviceColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			device_id = excluded.device_id,
			name = excluded.name,
			manufacturer = excluded.manufacturer,
			model = excluded.model,
			hw_version = excluded.hw_version,
			sw_version = excluded.sw_version,
			category = excluded.category,
			product_id = excluded.product_id,
			health_status = excluded.health_status,
			last_seen = COALESCE(excluded.last_seen, devices.last_seen),
			updated_at = excluded.updated_at`

	_, err := r.db.ExecContext(ctx, query,
		d.ID,
		d.DeviceID,
		d.Name,
		d.Manufacturer,
		d.Model,
		d.HWVersion,
		d.SWVersion,
		d.Category,
		d.ProductID,
		string(d.HealthStatus),
		nullableTime(d.LastSeen),
		d.CreatedAt.Format(time.RFC3339),
		d.UpdatedAt.Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("upserting device: %w", err)
	}
	return nil
}

// UpdateHealth updates the health status and last seen timestamp.
func (r *SQLiteRepository) UpdateHealth(ctx context.Context, id string, status HealthStatus, lastSeen time.Time) error {
	now := time.Now().UTC()
	result, err := r.db.ExecContext(ctx,
		"UPDATE devices SET health_status = ?, last_seen = ?, updated_at = ? WHERE id = ?",
		string(status),
		lastSeen.UTC().Format(time.RFC3339),
		now.Format(time.RFC3339),
		id,
	)
	if err != nil {
		return fmt.Errorf("updating device health: %w", err)
	}
	return expectRow(result, ErrDeviceNotFound)
}

// ListEntities retrieves all entities.
func (r *SQLiteRepository) ListEntities(ctx context.Context) ([]Entity, error) {
	rows, err := r.db.QueryContext(ctx, "SELECT "+entityColumns+" FROM entities ORDER BY entity_id")
	if err != nil {
		return nil, fmt.Errorf("querying entities: %w", err)
	}
	defer rows.Close()

	var entities []Entity
	for rows.Next() {
		var e Entity
		var enabled int
		var createdAt, updatedAt string
		if err := rows.Scan(&e.UniqueID, &e.EntityID, &e.DeviceID, &e.Key, &e.Name, &e.Icon,
			&e.DeviceClass, &e.Unit, &e.StateClass, &e.EntityCategory, &enabled,
			&createdAt, &updatedAt); err != nil {
			return nil, fmt.Errorf("scanning entity: %w", err)
		}
		e.Enabled = enabled != 0
		e.CreatedAt = parseTime(createdAt)
		e.UpdatedAt = parseTime(updatedAt)
		entities = append(entities, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating entities: %w", err)
	}
	return entities, nil
}

// UpsertEntity inserts an entity or updates the existing row.
func (r *SQLiteRepository) UpsertEntity(ctx context.Context, e *Entity) error {
	now := time.Now().UTC()
	if e.CreatedAt.IsZero() {
		e.CreatedAt = now
	}
	e.UpdatedAt = now

	query := `
		INSERT INTO entities (` + entityColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(unique_id) DO UPDATE SET
			entity_id = excluded.entity_id,
			device_id = excluded.device_id,
			key = excluded.key,
			name = excluded.name,
			icon = excluded.icon,
			device_class = excluded.device_class,
			unit = excluded.unit,
			state_class = excluded.state_class,
			entity_category = excluded.entity_category,
			enabled = excluded.enabled,
			updated_at = excluded.updated_at`

	_, err := r.db.ExecContext(ctx, query,
		e.UniqueID,
		e.EntityID,
		e.DeviceID,
		e.Key,
		e.Name,
		e.Icon,
		e.DeviceClass,
		e.Unit,
		e.StateClass,
		e.EntityCategory,
		boolToInt(e.Enabled),
		e.CreatedAt.Format(time.RFC3339),
		e.UpdatedAt.Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("upserting entity: %w", err)
	}
	return nil
}

// GetEntityState retrieves the stored state of an entity.
func (r *SQLiteRepository) GetEntityState(ctx context.Context, entityID string) (*EntityState, error) {
	var (
		st         EntityState
		value      sql.NullString
		attributes string
		available  int
		updatedAt  string
	)
	err := r.db.QueryRowContext(ctx,
		`SELECT entity_id, value, unit, icon, attributes, available, updated_at
		 FROM entity_states WHERE entity_id = ?`, entityID,
	).Scan(&st.EntityID, &value, &st.Unit, &st.Icon, &attributes, &available, &updatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrStateNotFound
		}
		return nil, fmt.Errorf("querying entity state: %w", err)
	}

	if value.Valid {
		if err := json.Unmarshal([]byte(value.String), &st.Value); err != nil {
			return nil, fmt.Errorf("unmarshalling value: %w", err)
		}
	}
	if err := json.Unmarshal([]byte(attributes), &st.Attributes); err != nil {
		return nil, fmt.Errorf("unmarshalling attributes: %w", err)
	}
	if len(st.Attributes) == 0 {
		st.Attributes = nil
	}
	st.Available = available != 0
	st.UpdatedAt = parseTime(updatedAt)
	return &st, nil
}

// UpsertEntityState replaces the stored state of an entity.
func (r *SQLiteRepository) UpsertEntityState(ctx context.Context, st *EntityState) error {
	value, err := nullableJSON(st.Value)
	if err != nil {
		return fmt.Errorf("marshalling value: %w", err)
	}
	attributes := st.Attributes
	if attributes == nil {
		attributes = map[string]any{}
	}
	attrsJSON, err := json.Marshal(attributes)
	if err != nil {
		return fmt.Errorf("marshalling attributes: %w", err)
	}
	if st.UpdatedAt.IsZero() {
		st.UpdatedAt = time.Now().UTC()
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO entity_states (entity_id, value, unit, icon, attributes, available, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(entity_id) DO UPDATE SET
			value = excluded.value,
			unit = excluded.unit,
			icon = excluded.icon,
			attributes = excluded.attributes,
			available = excluded.available,
			updated_at = excluded.updated_at`,
		st.EntityID,
		value,
		st.Unit,
		st.Icon,
		string(attrsJSON),
		boolToInt(st.Available),
		st.UpdatedAt.UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("upserting entity state: %w", err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDevice(scanner rowScanner) (*Device, error) {
	var (
		d                    Device
		health               string
		lastSeen             sql.NullString
		createdAt, updatedAt string
	)
	if err := scanner.Scan(&d.ID, &d.DeviceID, &d.Name, &d.Manufacturer, &d.Model,
		&d.HWVersion, &d.SWVersion, &d.Category, &d.ProductID, &health, &lastSeen,
		&createdAt, &updatedAt); err != nil {
		return nil, err
	}
	d.HealthStatus = HealthStatus(health)
	if lastSeen.Valid {
		t := parseTime(lastSeen.String)
		d.LastSeen = &t
	}
	d.CreatedAt = parseTime(createdAt)
	d.UpdatedAt = parseTime(updatedAt)
	return &d, nil
}

func expectRow(result sql.Result, notFound error) error {
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return notFound
	}
	return nil
}

func nullableTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UTC().Format(time.RFC3339)
}

func nullableJSON(v any) (any, error) {
	if v == nil {
		return nil, nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// parseTime parses an RFC3339 column, yielding the zero time for
// anything unparseable.
func parseTime(s string) time.Time {
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}
	}
	return t
}
