// Package seed populates a FamilyNova database with demo families for
// development and manual testing.
package seed

import (
	"bytes"
	_ "embed"
	"errors"
	"fmt"
	"io"
	"log"
	"strings"
	"time"

	"familynova/internal/database"
	"familynova/internal/models"

	"gopkg.in/yaml.v3"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

//go:embed school_codes.yaml
var defaultSchoolCodes []byte

// Options controls how much data the seeder creates.
type Options struct {
	Families        int
	PostsPerAccount int
	// FriendsPerChild is how many other children each child befriends.
	FriendsPerChild int
	// PendingShare is the fraction of children's content left awaiting review.
	PendingShare float64
	MaxDays      int
	FastHash     bool
	RandSeed     int64
}

// DefaultOptions is a small, varied dataset.
func DefaultOptions() Options {
	return Options{
		Families:        10,
		PostsPerAccount: 3,
		FriendsPerChild: 3,
		PendingShare:    0.25,
		MaxDays:         30,
	}
}

// Family is one seeded household.
type Family struct {
	Parent   *models.Account
	Children []*models.Account
}

// Seeder writes demo data through a Factory.
type Seeder struct {
	db      *gorm.DB
	opts    Options
	factory *Factory
}

// NewSeeder returns a Seeder over db.
func NewSeeder(db *gorm.DB, opts Options) (*Seeder, error) {
	f, err := NewFactory(db, opts)
	if err != nil {
		return nil, err
	}
	return &Seeder{db: db, opts: opts, factory: f}, nil
}

// Run seeds school codes, families, friendships and content.
func (s *Seeder) Run() ([]Family, error) {
	codes, err := LoadSchoolCodes(bytes.NewReader(defaultSchoolCodes))
	if err != nil {
		return nil, err
	}
	if err := s.SeedSchoolCodes(codes); err != nil {
		return nil, fmt.Errorf("school codes: %w", err)
	}
	log.Printf("✓ %d school codes available", len(codes))

	families, err := s.SeedFamilies(s.opts.Families)
	if err != nil {
		return nil, fmt.Errorf("families: %w", err)
	}
	log.Printf("✓ %d families created", len(families))

	edges, err := s.SeedFriendships(families)
	if err != nil {
		return nil, fmt.Errorf("friendships: %w", err)
	}
	log.Printf("✓ %d friendships created", edges)

	posts, err := s.SeedContent(families)
	if err != nil {
		return nil, fmt.Errorf("content: %w", err)
	}
	log.Printf("✓ %d posts created", posts)
	return families, nil
}

// ClearAll deletes every row of every FamilyNova table, children first.
func (s *Seeder) ClearAll() error {
	log.Println("🗑️  Clearing existing data...")
	all := database.PersistentModels()
	return s.db.Transaction(func(tx *gorm.DB) error {
		for i := len(all) - 1; i >= 0; i-- {
			if err := tx.Session(&gorm.Session{AllowGlobalUpdate: true}).Delete(all[i]).Error; err != nil {
				return fmt.Errorf("clear %T: %w", all[i], err)
			}
		}
		return nil
	})
}

// SeedFamilies creates n verified parents, each with one to three linked children.
func (s *Seeder) SeedFamilies(n int) ([]Family, error) {
	f := s.factory
	families := make([]Family, 0, n)
	for i := 0; i < n; i++ {
		now := time.Now()
		parent, err := f.CreateAccount(models.RoleParent, func(a *models.Account) {
			a.Verification = models.Verification{ParentVerified: true, VerifiedAt: &now}
		})
		if err != nil {
			return nil, err
		}
		family := Family{Parent: parent}

		lastName := parent.DisplayName[strings.LastIndex(parent.DisplayName, " ")+1:]
		kids := f.rnd.Intn(3) + 1
		for k := 0; k < kids; k++ {
			grade := fmt.Sprintf("%d", f.rnd.Intn(6)+1)
			child, err := f.CreateAccount(models.RoleChild, func(a *models.Account) {
				a.Email = strings.ToLower(fmt.Sprintf("%s.%s.%d@example.com", a.DisplayName, lastName, f.faker.Number(1000, 9999)))
				a.Grade = grade
				a.Verification = models.Verification{ParentVerified: true, VerifiedAt: &now}
			})
			if err != nil {
				return nil, err
			}
			if err := f.LinkChild(parent, child); err != nil {
				return nil, err
			}
			family.Children = append(family.Children, child)
		}
		families = append(families, family)
	}
	return families, nil
}

// SeedFriendships befriends children across families and connects the parents
// of every befriended pair. It returns the number of edges created.
func (s *Seeder) SeedFriendships(families []Family) (int, error) {
	type member struct {
		child  *models.Account
		family int
	}
	var children []member
	for i, fam := range families {
		for _, c := range fam.Children {
			children = append(children, member{child: c, family: i})
		}
	}

	seen := map[[2]uint]bool{}
	created := 0
	connect := func(a, b *models.Account) error {
		lo, hi := models.CanonicalPair(a.ID, b.ID)
		if lo == hi || seen[[2]uint{lo, hi}] {
			return nil
		}
		seen[[2]uint{lo, hi}] = true
		if _, err := s.factory.CreateFriendship(a, b); err != nil {
			return err
		}
		created++
		return nil
	}

	for _, m := range children {
		for j := 0; j < s.opts.FriendsPerChild && len(children) > 1; j++ {
			other := children[s.factory.rnd.Intn(len(children))]
			if other.family == m.family {
				continue
			}
			if err := connect(m.child, other.child); err != nil {
				return created, err
			}
			if err := connect(families[m.family].Parent, families[other.family].Parent); err != nil {
				return created, err
			}
		}
	}
	return created, nil
}

// SeedContent writes posts, likes, comments and messages for every account.
// It returns the number of posts created.
func (s *Seeder) SeedContent(families []Family) (int, error) {
	f := s.factory

	var friendships []models.Friendship
	if err := s.db.Where("status = ?", models.FriendshipStatusAccepted).Find(&friendships).Error; err != nil {
		return 0, err
	}
	accounts := map[uint]*models.Account{}
	moderator := map[uint]uint{}
	for _, fam := range families {
		accounts[fam.Parent.ID] = fam.Parent
		moderator[fam.Parent.ID] = fam.Parent.ID
		for _, c := range fam.Children {
			accounts[c.ID] = c
			moderator[c.ID] = fam.Parent.ID
		}
	}
	friendsOf := map[uint][]*models.Account{}
	for _, e := range friendships {
		a, b := accounts[e.AccountAID], accounts[e.AccountBID]
		if a == nil || b == nil {
			continue
		}
		friendsOf[a.ID] = append(friendsOf[a.ID], b)
		friendsOf[b.ID] = append(friendsOf[b.ID], a)
	}

	posts := 0
	for id, author := range accounts {
		for p := 0; p < s.opts.PostsPerAccount; p++ {
			post, err := f.CreatePost(author, moderator[id])
			if err != nil {
				return posts, err
			}
			posts++
			if post.Status != models.ModerationApproved {
				continue
			}
			for _, friend := range friendsOf[id] {
				if f.rnd.Intn(2) == 0 {
					if err := f.CreateLike(friend, post); err != nil {
						return posts, err
					}
				}
				if f.rnd.Intn(4) == 0 {
					if _, err := f.CreateComment(friend, post); err != nil {
						return posts, err
					}
				}
			}
		}
		for _, friend := range friendsOf[id] {
			if _, err := f.CreateMessage(author, friend, moderator[id]); err != nil {
				return posts, err
			}
		}
	}
	return posts, nil
}

// SchoolCodeEntry is one item of a school code file.
type SchoolCodeEntry struct {
	Code      string `yaml:"code"`
	School    string `yaml:"school"`
	Grade     string `yaml:"grade"`
	ValidDays int    `yaml:"valid_days"`
}

type schoolCodeFile struct {
	Codes []SchoolCodeEntry `yaml:"codes"`
}

// LoadSchoolCodes parses a YAML document of the form
//
//	codes:
//	  - code: OAK2026
//	    school: Oakridge Elementary
//	    grade: "4"
//	    valid_days: 365
func LoadSchoolCodes(r io.Reader) ([]models.SchoolCode, error) {
	var file schoolCodeFile
	if err := yaml.NewDecoder(r).Decode(&file); err != nil {
		return nil, fmt.Errorf("decode school codes: %w", err)
	}

	now := time.Now()
	codes := make([]models.SchoolCode, 0, len(file.Codes))
	for i, entry := range file.Codes {
		code := strings.ToUpper(strings.TrimSpace(entry.Code))
		if code == "" || strings.TrimSpace(entry.School) == "" {
			return nil, fmt.Errorf("school code #%d: code and school are required", i+1)
		}
		days := entry.ValidDays
		if days <= 0 {
			days = 365
		}
		codes = append(codes, models.SchoolCode{
			Code:      code,
			School:    strings.TrimSpace(entry.School),
			Grade:     strings.TrimSpace(entry.Grade),
			ExpiresAt: now.AddDate(0, 0, days),
		})
	}
	if len(codes) == 0 {
		return nil, errors.New("no school codes defined")
	}
	return codes, nil
}

// SeedSchoolCodes inserts codes, leaving existing ones untouched.
func (s *Seeder) SeedSchoolCodes(codes []models.SchoolCode) error {
	if len(codes) == 0 {
		return nil
	}
	return s.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "code"}},
		DoNothing: true,
	}).Create(&codes).Error
}
