package db

import (
	"fmt"

	"gorm.io/gorm"
)

var Factory = map[string]func(string) gorm.Dialector{}

// Open looks up the dialector registered for dbType.
func Open(dbType, dsn string, opts ...gorm.Option) (*gorm.DB, error) {
	factory, ok := Factory[dbType]
	if !ok {
		return nil, fmt.Errorf("db type %q not registered", dbType)
	}
	return gorm.Open(factory(dsn), opts...)
}
