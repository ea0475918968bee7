// Package repository provides data access layer implementations for the application.
package repository

import (
	"errors"
	"strings"

	"familynova/internal/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// isUniqueConstraintError checks if a DB error is a unique constraint violation.
// TranslateError covers the configured drivers; the message check covers
// connections opened without it.
func isUniqueConstraintError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	msg := strings.ToLower(err.Error())
	// PostgreSQL unique violation SQLSTATE 23505
	return strings.Contains(msg, "duplicate key") ||
		strings.Contains(msg, "unique constraint") ||
		strings.Contains(msg, "23505")
}

// wrapFirst maps a First/Take error: record-not-found becomes a NotFound AppError.
func wrapFirst(err error, resource string, id interface{}) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return models.NewNotFoundError(resource, id)
	}
	var appErr *models.AppError
	if errors.As(err, &appErr) {
		return err
	}
	return models.NewInternalError(err)
}

// passThrough keeps AppErrors raised inside a transaction and wraps anything else.
func passThrough(err error) error {
	if err == nil {
		return nil
	}
	var appErr *models.AppError
	if errors.As(err, &appErr) {
		return err
	}
	return models.NewInternalError(err)
}

// lockAccount holds a row lock on the account until tx ends, so per-account
// check-then-insert sequences run one at a time. SQLite ignores the clause
// and serialises writers on its own.
func lockAccount(tx *gorm.DB, id uint) error {
	var account models.Account
	err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).Select("id").First(&account, id).Error
	if err != nil {
		return wrapFirst(err, "Account", id)
	}
	return nil
}
