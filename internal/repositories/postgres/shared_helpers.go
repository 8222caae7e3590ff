package postgres

import (
	"strings"

	"gorm.io/gorm"
)

// applyStudentSearch adds the name/email/cod substring filter.
func applyStudentSearch(query *gorm.DB, search string) *gorm.DB {
	pattern := "%" + escapeLike(search) + "%"
	return query.Where("name ILIKE ? OR email ILIKE ? OR cod ILIKE ?", pattern, pattern, pattern)
}

// applyRoomSearch adds the room name/cod substring filter.
func applyRoomSearch(query *gorm.DB, search string) *gorm.DB {
	pattern := "%" + escapeLike(search) + "%"
	return query.Where("name ILIKE ? OR cod ILIKE ?", pattern, pattern)
}

// escapeLike neutralizes LIKE wildcards in user-provided search input.
func escapeLike(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	s = strings.ReplaceAll(s, "%", `\%`)
	s = strings.ReplaceAll(s, "_", `\_`)
	return s
}
