//go:build integration || postgres

package testhelpers

import (
	"context"
	"testing"

	"github.com/jackc/pgx/v5"
)

func TestGetTestDB_Connection(t *testing.T) {
	testDB := GetTestDB(t)

	ctx := context.Background()
	conn, err := pgx.Connect(ctx, testDB.ConnStr)
	if err != nil {
		t.Fatalf("failed to connect: %v", err)
	}
	defer conn.Close(ctx)

	var db string
	if err := conn.QueryRow(ctx, "SELECT current_database()").Scan(&db); err != nil {
		t.Fatalf("failed to query database name: %v", err)
	}
	if db != "test_data" {
		t.Errorf("expected database test_data, got %s", db)
	}
}

func TestGetTestDB_Shared(t *testing.T) {
	first := GetTestDB(t)
	second := GetTestDB(t)
	if first != second {
		t.Error("expected the container to be shared across calls")
	}
}
