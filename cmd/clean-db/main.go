package main

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"os"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/joho/godotenv"
)

// Test/dev helper: wipes tenantgate data and drops every managed login
// principal so integration runs start from a clean slate.
func main() {
	ctx := context.Background()

	_ = godotenv.Load()

	connStr := os.Getenv("DATABASE_URL")
	if len(os.Args) > 1 {
		connStr = os.Args[1]
	}
	if connStr == "" {
		log.Fatal("DATABASE_URL or a connection string argument is required")
	}

	db, err := sql.Open("pgx", connStr)
	if err != nil {
		log.Fatalf("Failed to connect: %v", err)
	}
	defer db.Close()

	fmt.Println("Cleaning database...")

	// Drop all data (in reverse dependency order)
	tables := []string{
		"tenant_data",
		"tenant_credentials",
		"tenants",
	}

	for _, table := range tables {
		_, err := db.ExecContext(ctx, fmt.Sprintf("TRUNCATE TABLE %s CASCADE", table))
		if err != nil {
			fmt.Printf("Warning: failed to truncate %s: %v\n", table, err)
		} else {
			fmt.Printf("✓ Cleared %s\n", table)
		}
	}

	// Drop managed login principals left behind by truncated catalogs.
	fmt.Println("\nDropping managed principals...")
	rows, err := db.QueryContext(ctx, `SELECT rolname FROM pg_roles WHERE rolname LIKE 'tg\_%' ESCAPE '\'`)
	if err != nil {
		log.Fatalf("Failed to list principals: %v", err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			log.Fatalf("Failed to scan principal: %v", err)
		}
		names = append(names, name)
	}
	if err := rows.Err(); err != nil {
		log.Fatalf("Failed to read principals: %v", err)
	}

	for _, name := range names {
		_, err := db.ExecContext(ctx, fmt.Sprintf(`DROP ROLE IF EXISTS "%s"`, name))
		if err != nil {
			fmt.Printf("Warning: failed to drop %s: %v\n", name, err)
		} else {
			fmt.Printf("✓ Dropped %s\n", name)
		}
	}

	fmt.Println("\n✓✓✓ Database cleaned and reset successfully!")
}
