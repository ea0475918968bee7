// Command admin provides operator utilities for FamilyNova.
package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"familynova/internal/cache"
	"familynova/internal/config"
	"familynova/internal/database"
	"familynova/internal/models"
	"familynova/internal/repository"
	"familynova/internal/seed"

	"gorm.io/gorm"
)

func usage() {
	fmt.Println("Usage:")
	fmt.Println("  go run ./cmd/admin school-code <code> <school> [grade] [valid_days]  - Create a school code")
	fmt.Println("  go run ./cmd/admin import-school-codes <file.yaml>                   - Import school codes")
	fmt.Println("  go run ./cmd/admin list-school-codes                                 - List unused school codes")
	fmt.Println("  go run ./cmd/admin deactivate <account_id>                           - Close an account")
	fmt.Println("  go run ./cmd/admin reactivate <account_id>                           - Reopen an account")
	os.Exit(1)
}

func main() {
	if len(os.Args) < 2 {
		usage()
	}

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	db, err := database.Connect(cfg)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	ctx := context.Background()
	codes := repository.NewCodeRepository(db)

	switch os.Args[1] {
	case "school-code":
		if len(os.Args) < 4 {
			usage()
		}
		createSchoolCode(ctx, codes, os.Args[2:])

	case "import-school-codes":
		if len(os.Args) < 3 {
			usage()
		}
		importSchoolCodes(ctx, codes, os.Args[2])

	case "list-school-codes":
		listSchoolCodes(db)

	case "deactivate", "reactivate":
		if len(os.Args) < 3 {
			usage()
		}
		cache.InitRedis(cfg.RedisURL)
		defer func() { _ = cache.Close() }()
		setActive(ctx, db, os.Args[2], os.Args[1] == "reactivate")

	default:
		fmt.Printf("Unknown command: %s\n", os.Args[1])
		os.Exit(1)
	}
}

func createSchoolCode(ctx context.Context, codes repository.CodeRepository, args []string) {
	code := &models.SchoolCode{
		Code:   strings.ToUpper(strings.TrimSpace(args[0])),
		School: strings.TrimSpace(args[1]),
	}
	if len(args) > 2 {
		code.Grade = args[2]
	}
	days := 365
	if len(args) > 3 {
		n, err := strconv.Atoi(args[3])
		if err != nil || n <= 0 {
			log.Fatalf("valid_days must be a positive number, got %q", args[3])
		}
		days = n
	}
	code.ExpiresAt = time.Now().AddDate(0, 0, days)

	if err := codes.CreateSchoolCode(ctx, code); err != nil {
		log.Fatalf("Failed to create school code: %v", err)
	}
	fmt.Printf("✅ Created %s for %s (expires %s)\n", code.Code, code.School, code.ExpiresAt.Format("2006-01-02"))
}

func importSchoolCodes(ctx context.Context, codes repository.CodeRepository, path string) {
	f, err := os.Open(path) // #nosec G304: operator supplied path
	if err != nil {
		log.Fatalf("Failed to open %s: %v", path, err)
	}
	defer func() { _ = f.Close() }()

	parsed, err := seed.LoadSchoolCodes(f)
	if err != nil {
		log.Fatalf("Failed to read school codes: %v", err)
	}

	created, skipped := 0, 0
	for i := range parsed {
		if err := codes.CreateSchoolCode(ctx, &parsed[i]); err != nil {
			if models.ErrorCode(err) == models.CodeValidation {
				skipped++
				continue
			}
			log.Fatalf("Failed to create %s: %v", parsed[i].Code, err)
		}
		created++
	}
	fmt.Printf("✅ Imported %d school codes (%d already existed)\n", created, skipped)
}

func listSchoolCodes(db *gorm.DB) {
	var codes []models.SchoolCode
	if err := db.Where("used_at IS NULL AND expires_at > ?", time.Now()).Order("school, code").Find(&codes).Error; err != nil {
		log.Fatalf("Failed to fetch school codes: %v", err)
	}
	if len(codes) == 0 {
		fmt.Println("No unused school codes")
		return
	}

	fmt.Println("\n📋 Unused school codes:")
	fmt.Println("─────────────────────────────────────")
	for _, c := range codes {
		fmt.Printf("%s | %s | grade %s | expires %s\n", c.Code, c.School, c.Grade, c.ExpiresAt.Format("2006-01-02"))
	}
	fmt.Println("─────────────────────────────────────")
}

// setActive opens or closes an account and drops its cached copy so the API
// sees the change on the next request.
func setActive(ctx context.Context, db *gorm.DB, accountID string, active bool) {
	var account models.Account
	if err := db.First(&account, accountID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			fmt.Printf("Account with ID %s not found\n", accountID)
		} else {
			log.Fatalf("Database error: %v", err)
		}
		os.Exit(1)
	}

	if account.IsActive == active {
		fmt.Printf("Account %s (ID: %d) is already %s\n", account.DisplayName, account.ID, activeLabel(active))
		return
	}
	if err := db.Model(&account).Update("is_active", active).Error; err != nil {
		log.Fatalf("Failed to update account: %v", err)
	}
	cache.InvalidateAccount(ctx, account.ID)
	fmt.Printf("✅ Account %s (ID: %d) is now %s\n", account.DisplayName, account.ID, activeLabel(active))
}

func activeLabel(active bool) string {
	if active {
		return "active"
	}
	return "closed"
}
