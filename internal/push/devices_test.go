package push

import (
	"context"
	"fmt"
	"testing"
	"time"

	sqlite "github.com/glebarez/sqlite"
	"gorm.io/gorm"
)

func openDeviceDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:push_test_%d?mode=memory&cache=shared", time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("failed to open sqlite: %v", err)
	}
	if err := db.AutoMigrate(&DeviceEndpoint{}); err != nil {
		t.Fatalf("failed to migrate: %v", err)
	}
	return db
}

func newDeviceRegistry(t *testing.T) (*Devices, *gorm.DB) {
	t.Helper()
	db := openDeviceDB(t)
	devices, err := NewDevices(db)
	if err != nil {
		t.Fatalf("failed to build device registry: %v", err)
	}
	return devices, db
}

func TestRegisterStoresEndpointPerDevice(t *testing.T) {
	devices, _ := newDeviceRegistry(t)
	ctx := context.Background()

	if err := devices.Register(ctx, "alice", "phone-token", "ios"); err != nil {
		t.Fatalf("register failed: %v", err)
	}
	if err := devices.Register(ctx, "alice", "tablet-token", "android"); err != nil {
		t.Fatalf("register failed: %v", err)
	}

	endpoints, err := devices.Endpoints(ctx, "alice")
	if err != nil {
		t.Fatalf("listing failed: %v", err)
	}
	if len(endpoints) != 2 {
		t.Fatalf("expected both devices registered, got %d", len(endpoints))
	}
}

func TestRegisterIsIdempotentPerToken(t *testing.T) {
	devices, _ := newDeviceRegistry(t)
	ctx := context.Background()

	if err := devices.Register(ctx, "alice", "phone-token", "ios"); err != nil {
		t.Fatalf("register failed: %v", err)
	}
	if err := devices.Register(ctx, "alice", "phone-token", "Android"); err != nil {
		t.Fatalf("re-register failed: %v", err)
	}

	endpoints, err := devices.Endpoints(ctx, "alice")
	if err != nil {
		t.Fatalf("listing failed: %v", err)
	}
	if len(endpoints) != 1 {
		t.Fatalf("re-registering the same token must not duplicate, got %d rows", len(endpoints))
	}
	if endpoints[0].Platform != "android" {
		t.Fatalf("re-registration should refresh the platform, got %q", endpoints[0].Platform)
	}
}

func TestRegisterValidatesInput(t *testing.T) {
	devices, _ := newDeviceRegistry(t)
	ctx := context.Background()

	tests := []struct {
		name     string
		userID   string
		token    string
		platform string
	}{
		{name: "missing-user", userID: "", token: "tok", platform: "ios"},
		{name: "missing-token", userID: "alice", token: "  ", platform: "ios"},
		{name: "bad-platform", userID: "alice", token: "tok", platform: "blackberry"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := devices.Register(ctx, tt.userID, tt.token, tt.platform); err == nil {
				t.Fatalf("expected a validation error")
			}
		})
	}
}

func TestNewDevicesRequiresDatabase(t *testing.T) {
	if _, err := NewDevices(nil); err == nil {
		t.Fatalf("expected an error without a database")
	}
}
