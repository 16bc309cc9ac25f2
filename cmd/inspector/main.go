package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/contractguard/contractguard/internal/config"
	"github.com/contractguard/contractguard/internal/repository"
	"github.com/contractguard/contractguard/internal/service"
)

// 运维小工具：直连数据库查看审计链尾部并重放校验哈希链。
func main() {
	dsn := flag.String("dsn", os.Getenv("CONTRACTGUARD_DATABASE_DSN"), "PostgreSQL DSN")
	tenantID := flag.String("tenant", "default-tenant", "tenant whose chain to inspect")
	limit := flag.Int("limit", 20, "number of recent records to print")
	verify := flag.Bool("verify", true, "recompute the full hash chain")
	flag.Parse()

	if *dsn == "" {
		log.Fatal("no DSN: pass -dsn or set CONTRACTGUARD_DATABASE_DSN")
	}

	db, err := repository.NewDB(&config.Config{Database: config.DatabaseConfig{DSN: *dsn}})
	if err != nil {
		log.Fatalf("connect failed: %v", err)
	}
	defer db.Close()

	ctx := context.Background()
	store := repository.NewPostgresAuditStore(db)
	ledger := service.NewAuditLedger(store, config.AuditConfig{})

	records, err := ledger.List(ctx, *tenantID, *limit)
	if err != nil {
		log.Fatalf("list failed: %v", err)
	}
	fmt.Printf("--- Last %d records (tenant %s) ---\n", len(records), *tenantID)
	for _, rec := range records {
		fmt.Printf("seq=%-6d audit_id=%s verdict=%-16s risk=%-8s hash=%s\n",
			rec.Seq, rec.AuditID, rec.Verdict, rec.RiskLevel, rec.RecordHash[:16])
	}

	if *verify {
		ok, err := ledger.VerifyChain(ctx, *tenantID)
		if err != nil {
			log.Fatalf("verify failed: %v", err)
		}
		if ok {
			fmt.Println("\nchain OK")
		} else {
			fmt.Println("\nchain CORRUPTED")
			os.Exit(1)
		}
	}
}
