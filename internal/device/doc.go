// Package device provides the identity codec and the Device Registry.
//
// A device is a polling agent known by a durable id (chosen by the agent) and
// a short code derived from that id. Controllers address devices by code;
// devices address themselves by id.
//
// # Architecture
//
//	┌──────────────────────────────────────────────────────────────────┐
//	│                        Device Registry                          │
//	│                                                                  │
//	│  ┌──────────────────┐   ┌──────────────────┐   ┌──────────────┐  │
//	│  │     Registry     │   │    Repository    │   │    Codec     │  │
//	│  │  (registry.go)   │──▶│ (repository.go)  │   │  (code.go)   │  │
//	│  │                  │   │                  │   │              │  │
//	│  │ • register       │   │ • SQLite queries │   │ • DeriveCode │  │
//	│  │ • heartbeat      │   │ • immediate txns │   │ • Validate   │  │
//	│  │ • locate by code │   │                  │   │              │  │
//	│  │ • expire stale   │   │                  │   │              │  │
//	│  └──────────────────┘   └──────────────────┘   └──────────────┘  │
//	└──────────────────────────────────────────────────────────────────┘
//
// # Liveness
//
// A device is live when its status is online and it was seen within the
// registry's offline threshold. Only live devices can be located by code.
// The sweeper flips silent devices to offline; rows are never deleted, so a
// device that resumes polling is immediately addressable again.
//
// # Usage
//
//	repo := device.NewSQLiteRepository(db.DB)
//	registry := device.NewRegistry(repo, 10*time.Minute)
//	registry.SetLogger(log)
//
//	dev, err := registry.Register(ctx, "ext-install-ABC123", "chrome-extension")
//	// dev.Code == "ABC123"
//
//	found, err := registry.LocateByCode(ctx, "abc123")
package device
