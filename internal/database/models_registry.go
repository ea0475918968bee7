package database

import "familynova/internal/models"

// PersistentModels returns the authoritative set of schema-managed GORM models.
func PersistentModels() []interface{} {
	return []interface{}{
		&models.Account{},
		&models.ParentLink{},
		&models.Friendship{},
		&models.FriendCode{},
		&models.SchoolCode{},
		&models.Post{},
		&models.Like{},
		&models.Reaction{},
		&models.Comment{},
		&models.Message{},
		&models.ProfileChangeRequest{},
	}
}
