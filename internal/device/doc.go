// Package device provides the host registry of the Tuya BLE bridge.
//
// The registry records every BLE device the bridge has set up, the sensor
// entities created for it and the last state written for each entity. On
// restart the bridge restores sensors from that state.
//
// # Architecture
//
//	┌───────────────────────────────────────────────────────────────┐
//	│                         Host Registry                          │
//	│                                                                │
//	│  ┌──────────────────┐   ┌──────────────────┐   ┌────────────┐  │
//	│  │     Registry     │   │    Repository    │   │ Validation │  │
//	│  │  (registry.go)   │──▶│  (repository.go) │   │            │  │
//	│  │ • in-memory cache│   │ • SQLite upserts │   │ • address  │  │
//	│  │ • deep copies    │   │ • JSON values    │   │ • key/name │  │
//	│  └──────────────────┘   └──────────────────┘   └────────────┘  │
//	│                                                                │
//	│  ┌──────────────────────────┐   ┌──────────────────────────┐   │
//	│  │ SQLiteStateHistoryRepo   │◀──│      HistoryPruner       │   │
//	│  │ (state_history_sqlite.go)│   │  (cron retention pass)   │   │
//	│  └──────────────────────────┘   └──────────────────────────┘   │
//	└───────────────────────────────────────────────────────────────┘
//
// # Usage
//
//	repo := device.NewSQLiteRepository(db.DB)
//	registry := device.NewRegistry(repo)
//	registry.SetLogger(log)
//	if err := registry.RefreshCache(ctx); err != nil {
//	    return err
//	}
//
//	history := device.NewSQLiteStateHistoryRepository(db.DB)
//	pruner, err := device.NewHistoryPruner(history, cfg.GetHistoryRetention(), cfg.History.PruneSchedule)
//
// Devices are keyed by their normalised BLE address ("DC:23:4D:11:22:33").
// Entities are keyed by unique id and looked up by entity id.
//
// # Thread Safety
//
// The Registry is safe for concurrent use. Reads return deep copies.
package device
