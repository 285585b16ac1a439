package db

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/glebarez/sqlite"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func openGatewayDB(t *testing.T) (*Gateway, *gorm.DB) {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	gdb, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	sqlDB, err := gdb.DB()
	if err != nil {
		t.Fatalf("db handle: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	sqlDB.SetMaxIdleConns(1)

	if err := gdb.Exec(`CREATE TABLE entries (id BIGINT PRIMARY KEY, note TEXT)`).Error; err != nil {
		t.Fatalf("create table: %v", err)
	}
	return NewGateway(GatewayParam{DB: gdb, Log: zap.NewNop()}), gdb
}

func countEntries(t *testing.T, gdb *gorm.DB) int {
	t.Helper()
	var count int
	if err := gdb.Raw(`SELECT COUNT(1) FROM entries`).Scan(&count).Error; err != nil {
		t.Fatalf("count: %v", err)
	}
	return count
}

func TestWithTransactionCommits(t *testing.T) {
	gateway, gdb := openGatewayDB(t)

	err := gateway.WithTransaction(context.Background(), func(tx *gorm.DB) error {
		return tx.Exec(`INSERT INTO entries (id, note) VALUES (1, 'a')`).Error
	})
	if err != nil {
		t.Fatalf("transaction: %v", err)
	}
	if n := countEntries(t, gdb); n != 1 {
		t.Fatalf("expected committed row, got %d", n)
	}
}

func TestWithTransactionRollsBackOnError(t *testing.T) {
	gateway, gdb := openGatewayDB(t)
	boom := errors.New("boom")

	err := gateway.WithTransaction(context.Background(), func(tx *gorm.DB) error {
		if err := tx.Exec(`INSERT INTO entries (id, note) VALUES (1, 'a')`).Error; err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected callback error returned, got %v", err)
	}
	if n := countEntries(t, gdb); n != 0 {
		t.Fatalf("expected rollback, got %d rows", n)
	}
}

func TestCallProcedureRejectsBadIdentifiers(t *testing.T) {
	gateway, _ := openGatewayDB(t)
	ctx := context.Background()

	if _, err := gateway.CallProcedure(ctx, nil, "sp_x; DROP TABLE entries", nil, nil); err == nil {
		t.Fatal("expected invalid procedure name rejected")
	}
	if _, err := gateway.CallProcedure(ctx, nil, "sp_x", nil, []string{"out-1"}); err == nil {
		t.Fatal("expected invalid output name rejected")
	}
	if _, err := gateway.CallProcedure(ctx, nil, "", nil, nil); err == nil {
		t.Fatal("expected empty procedure name rejected")
	}
}

func TestValidateIdent(t *testing.T) {
	for _, ok := range []string{"sp_material_receipt", "transaction_id", "Out2"} {
		if err := validateIdent(ok); err != nil {
			t.Fatalf("expected %q accepted: %v", ok, err)
		}
	}
	for _, bad := range []string{"", "a b", "a;b", "a-b", "a'b"} {
		if err := validateIdent(bad); err == nil {
			t.Fatalf("expected %q rejected", bad)
		}
	}
}
