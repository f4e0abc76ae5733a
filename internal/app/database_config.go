package app

import "github.com/randevubu/randevubu-server/internal/database"

// ConnectionConfig converts the database section for database.Open.
func (c DatabaseConfig) ConnectionConfig() database.Config {
	return database.Config{
		Driver:          c.Driver,
		Path:            c.Path,
		DSN:             c.DSN,
		Host:            c.Host,
		Port:            c.Port,
		Name:            c.Name,
		User:            c.User,
		Password:        c.Password,
		Options:         c.Options,
		MaxOpenConns:    c.MaxOpenConns,
		MaxIdleConns:    c.MaxIdleConns,
		ConnMaxLifetime: c.ConnMaxLifetime,
		Debug:           c.Debug,
	}
}
