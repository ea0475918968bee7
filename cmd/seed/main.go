// Command seed fills the configured database with demo FamilyNova families.
package main

import (
	"flag"
	"log"

	"familynova/internal/config"
	"familynova/internal/database"
	"familynova/internal/seed"
)

func main() {
	opts := seed.DefaultOptions()
	flag.IntVar(&opts.Families, "families", opts.Families, "Number of families to create")
	flag.IntVar(&opts.PostsPerAccount, "posts", opts.PostsPerAccount, "Posts per account")
	flag.IntVar(&opts.FriendsPerChild, "friends", opts.FriendsPerChild, "Friend attempts per child")
	flag.Float64Var(&opts.PendingShare, "pending", opts.PendingShare, "Share of children's content left pending review")
	flag.BoolVar(&opts.FastHash, "fast-hash", false, "Hash the demo password at minimum bcrypt cost")
	shouldClean := flag.Bool("clean", true, "Clean database before seeding")
	flag.Parse()

	log.Println("🌱 FamilyNova Seeder")
	log.Printf("Target: %d families, %d posts per account, clean=%v", opts.Families, opts.PostsPerAccount, *shouldClean)

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	db, err := database.Connect(cfg)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}

	s, err := seed.NewSeeder(db, opts)
	if err != nil {
		log.Fatalf("Failed to create seeder: %v", err)
	}
	if *shouldClean {
		if err := s.ClearAll(); err != nil {
			log.Fatalf("❌ Cleanup failed: %v", err)
		}
	}

	families, err := s.Run()
	if err != nil {
		log.Fatalf("❌ Seeding failed: %v", err)
	}

	log.Println("✨ All done!")
	if len(families) > 0 {
		log.Printf("📧 Try %s (parent) with password: %s", families[0].Parent.Email, seed.DemoPassword)
	}
}
