package config

type DB struct {
	DBType string `default:"sqlite" desc:"database driver"`
	DSN    string `default:"mp4probe.db" desc:"database source name"`
}
